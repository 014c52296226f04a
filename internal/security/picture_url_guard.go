// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// 画像URLの検証エラー。呼び出し側はerrors.Isで判定する。
var (
	ErrEmptyURL         = errors.New("empty URL")
	ErrURLTooLong       = errors.New("URL too long")
	ErrMalformedURL     = errors.New("malformed URL")
	ErrDisallowedScheme = errors.New("disallowed scheme")
	ErrCredentialsInURL = errors.New("credentials in URL")
	ErrDisallowedPort   = errors.New("disallowed port")
	ErrBlockedHost      = errors.New("blocked host")
	errMissingHost      = errors.New("missing host")
)

// maxPictureURLLength は保存を許可する画像URLの最大バイト数。
const maxPictureURLLength = 2048

// pictureScheme は画像URLに許可するスキーム。混在コンテンツを避けるためhttpsのみ。
const pictureScheme = "https"

// blockedPrefixes は画像URLのホストとして拒否するアドレス範囲。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),      // カレントネットワーク
	netip.MustParsePrefix("10.0.0.0/8"),     // RFC 1918
	netip.MustParsePrefix("100.64.0.0/10"),  // CGNAT
	netip.MustParsePrefix("127.0.0.0/8"),    // ループバック
	netip.MustParsePrefix("169.254.0.0/16"), // リンクローカル（メタデータIPを含む）
	netip.MustParsePrefix("172.16.0.0/12"),  // RFC 1918
	netip.MustParsePrefix("192.168.0.0/16"), // RFC 1918
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// blockedHostSuffixes は内部向けの名前解決に使われるホスト名。サブドメインも拒否する。
var blockedHostSuffixes = []string{
	"localhost",
	"metadata.google.internal",
	"internal",
	"local",
}

// PictureURLGuard はプロフィール画像URLの静的検証と、安全な取得用クライアントの生成を行う。
type PictureURLGuard struct{}

// NewPictureURLGuard はPictureURLGuardを生成する。
func NewPictureURLGuard() *PictureURLGuard {
	return &PictureURLGuard{}
}

// ValidateURL は画像URLとして保存してよいかを DNS解決なしで検証する。
// 名前解決後のアドレスはNewSafeClientのクライアント側で検証される。
func (g *PictureURLGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return ErrEmptyURL
	}
	if len(rawURL) > maxPictureURLLength {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrURLTooLong, len(rawURL), maxPictureURLLength)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if !strings.EqualFold(u.Scheme, pictureScheme) {
		return fmt.Errorf("%w: %q", ErrDisallowedScheme, u.Scheme)
	}
	if u.User != nil {
		return ErrCredentialsInURL
	}
	if port := u.Port(); port != "" && port != "443" {
		return fmt.Errorf("%w: %s", ErrDisallowedPort, port)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: %w", ErrMalformedURL, errMissingHost)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(addr) {
			return fmt.Errorf("%w: %s", ErrBlockedHost, addr)
		}
		return nil
	}
	if isBlockedHostname(host) {
		return fmt.Errorf("%w: %s", ErrBlockedHost, host)
	}
	return nil
}

// NewSafeClient は画像の存在確認に使うHTTPクライアントを生成する。
// safeurlがDialerのControlフックで接続先IPを検証するため、DNS再バインディングも防げる。
func (g *PictureURLGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(pictureScheme).
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}

func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func isBlockedHostname(host string) bool {
	lower := strings.TrimSuffix(strings.ToLower(host), ".")
	for _, blocked := range blockedHostSuffixes {
		if lower == blocked || strings.HasSuffix(lower, "."+blocked) {
			return true
		}
	}
	return false
}
