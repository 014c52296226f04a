// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, social, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodePostNotFound       = "POST_NOT_FOUND"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeSelfFollow         = "SELF_FOLLOW"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeUsernameTaken      = "USERNAME_TAKEN"
	ErrCodePasswordMismatch   = "PASSWORD_MISMATCH"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidPostBody    = "INVALID_POST_BODY"
	ErrCodeInvalidPictureURL  = "INVALID_PICTURE_URL"
	ErrCodeStoreUnavailable   = "STORE_UNAVAILABLE"
)

// HasCode はerrがAPIErrorであり、指定のコードを持つかを判定する。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewPostNotFoundError は投稿未検出エラーを生成する。
func NewPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定された投稿が見つかりません: %s", postID),
		Category: "social",
		Action:   "投稿IDを確認してください。",
	}
}

// NewForbiddenError は他人の投稿を編集しようとした場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この投稿を編集する権限がありません。",
		Category: "auth",
		Action:   "自分の投稿のみ編集できます。",
	}
}

// NewSelfFollowError は自分自身をフォローしようとした場合のエラーを生成する。
func NewSelfFollowError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfFollow,
		Message:  "自分自身をフォローすることはできません。",
		Category: "validation",
		Action:   "他のユーザーを選択してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("ユーザーが見つかりません: %s", username),
		Category: "social",
		Action:   "ユーザー名を確認してください。",
	}
}

// NewUsernameTakenError はユーザー名が既に使われている場合のエラーを生成する。
func NewUsernameTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  "このユーザー名は既に使われています。",
		Category: "validation",
		Action:   "別のユーザー名を入力してください。",
	}
}

// NewPasswordMismatchError はパスワードと確認用パスワードが一致しない場合のエラーを生成する。
func NewPasswordMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordMismatch,
		Message:  "パスワードが一致しません。",
		Category: "validation",
		Action:   "確認用パスワードを入力し直してください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidRequestError はリクエスト内容の不備を表すエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  reason,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidPostBodyError は投稿本文が不正な場合のエラーを生成する。
func NewInvalidPostBodyError(maxLength int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPostBody,
		Message:  fmt.Sprintf("投稿本文は1文字以上%d文字以下で入力してください。", maxLength),
		Category: "validation",
		Action:   "本文の長さを調整してください。",
	}
}

// NewPostBodyMarkupError は投稿本文にHTMLタグが含まれる場合のエラーを生成する。
func NewPostBodyMarkupError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPostBody,
		Message:  "投稿本文にHTMLタグは使用できません。",
		Category: "validation",
		Action:   "「<」の直後に英字を続けないよう本文を修正してください。",
	}
}

// NewInvalidPictureURLError はプロフィール画像URLが不正な場合のエラーを生成する。
func NewInvalidPictureURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPictureURL,
		Message:  fmt.Sprintf("プロフィール画像のURLが無効です: %s", reason),
		Category: "validation",
		Action:   "公開されている https:// の画像URLを指定してください。",
	}
}

// NewStoreUnavailableError は永続化層の障害時にクライアントへ返すエラーを生成する。
// 原因の詳細はログにのみ記録する。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "現在データを取得できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// StoreError は永続化層の予期しない失敗を表す。
// 未検出（not found）とは区別され、呼び出し側へそのまま伝播する。
type StoreError struct {
	Op  string
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *StoreError) Error() string {
	return fmt.Sprintf("store error (%s): %v", e.Op, e.Err)
}

// Unwrap は原因となったエラーを返す。
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError はStoreErrorを生成する。errがnilの場合はnilを返す。
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
