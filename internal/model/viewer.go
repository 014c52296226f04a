package model

// Viewer は操作を行う主体を表す。UserIDが空の場合は匿名。
// セッションから解決され、サービス層の各操作に明示的に渡される。
type Viewer struct {
	UserID   string
	Username string
}

// Anonymous は未ログインの閲覧者。
var Anonymous = Viewer{}

// IsAnonymous は閲覧者が未認証かどうかを返す。
func (v Viewer) IsAnonymous() bool {
	return v.UserID == ""
}
