package security

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// PictureProberService はプロフィール画像URLが画像を返すかを確認する。
type PictureProberService interface {
	Probe(ctx context.Context, rawURL string) error
}

// PictureProber はHEADリクエストでContent-Typeを確認するPictureProberServiceの実装。
// 本番ではPictureURLGuard.NewSafeClientで生成したクライアントを渡す。
type PictureProber struct {
	client *http.Client
}

// NewPictureProber はPictureProberを生成する。
func NewPictureProber(client *http.Client) *PictureProber {
	return &PictureProber{client: client}
}

// Probe はURLにHEADリクエストを送り、2xxかつimage/*のContent-Typeであることを確認する。
func (p *PictureProber) Probe(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("invalid picture URL: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach picture URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("picture URL returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("picture URL returned invalid content type %q: %w", contentType, err)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return fmt.Errorf("picture URL is not an image: %s", mediaType)
	}
	return nil
}

var _ PictureProberService = (*PictureProber)(nil)
