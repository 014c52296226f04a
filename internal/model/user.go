// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// Usernameが識別キーであり、登録後に変更されることはない。
type User struct {
	ID           string
	Username     string
	FirstName    string
	LastName     string
	Email        string
	Bio          string
	PictureURL   string // プロフィール画像の参照URL（アップロードは扱わない）
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName は表示用の氏名を返す。姓名が未設定の場合はユーザー名を返す。
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	default:
		return u.Username
	}
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ProfileUpdate はプロフィール更新の入力値。
// nilフィールドは変更しない。
type ProfileUpdate struct {
	FirstName  *string
	LastName   *string
	Email      *string
	Bio        *string
	PictureURL *string
}
