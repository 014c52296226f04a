// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextNormalizer は投稿本文や自己紹介などのユーザー入力をプレーンテキストとして検証する。
// 入力は書き換えずに保存し、マークアップを含む入力は拒否する。
package security

import (
	"errors"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ErrMarkupNotAllowed は入力にHTMLタグやコメントが含まれることを示す。
var ErrMarkupNotAllowed = errors.New("markup is not allowed")

// TextNormalizer はユーザー入力テキストの正規化機能のインターフェースを定義する。
type TextNormalizer interface {
	// Normalize は改行コードをLFに揃え、前後の空白を除いた入力を返す。
	// マークアップを含む場合はErrMarkupNotAllowedを返す。
	Normalize(raw string) (string, error)
}

// newlineReplacer は改行コードをLFに揃える。HTMLトークナイザもCRLFをLFに変換する。
var newlineReplacer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// textNormalizer はTextNormalizerの実装。
// bluemondayのポリシーはスレッドセーフなので共有して使用する。
type textNormalizer struct {
	policy *bluemonday.Policy
}

// NewTextNormalizer はTextNormalizerの新しいインスタンスを生成する。
func NewTextNormalizer() *textNormalizer {
	return &textNormalizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Normalize はStrictPolicyで全タグを除去した結果と入力を比較し、
// 差分があればマークアップとみなす。
// 文字参照の表記揺れ（&amp; と & など）は差分として扱わない。
func (n *textNormalizer) Normalize(raw string) (string, error) {
	text := strings.TrimSpace(newlineReplacer.Replace(raw))
	if text == "" {
		return "", nil
	}
	if html.UnescapeString(n.policy.Sanitize(text)) != html.UnescapeString(text) {
		return "", ErrMarkupNotAllowed
	}
	return text, nil
}
