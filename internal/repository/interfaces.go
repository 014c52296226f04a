// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/socialnet/internal/model"
)

// ErrNotFound は操作対象のエンティティが存在しないことを表す。
// Find系メソッドはnilを返すが、トグル操作のように戻り値で表現できない場合に使用する。
var ErrNotFound = errors.New("entity not found")

// ErrDuplicateUsername はユーザー名のUNIQUE制約違反を表す。
var ErrDuplicateUsername = errors.New("username already exists")

// PostFilter はフィード取得時の投稿の絞り込み条件。
// 両方が空の場合は全投稿を対象とする。
type PostFilter struct {
	// AuthorID が指定された場合、その著者の投稿のみを対象とする。
	AuthorID string
	// FollowedBy が指定された場合、そのユーザーがフォローしている著者の投稿のみを対象とする。
	FollowedBy string
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成する。ユーザー名が重複する場合はErrDuplicateUsernameを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile はプロフィール項目（氏名、メール、自己紹介、画像URL）を更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// ListRecommendationCandidates は指定ユーザー自身と、
	// 指定ユーザーが既にフォローしているユーザーを除いた全ユーザーを返す。
	ListRecommendationCandidates(ctx context.Context, viewerID string) ([]*model.User, error)
}

// PostRepository は投稿データの永続化インターフェース。
type PostRepository interface {
	// Create は投稿を作成する。挿入順を表すSeqを設定する。
	Create(ctx context.Context, post *model.Post) error

	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Post, error)

	// FindWithLikes は投稿をいいね数と閲覧者のいいね状態付きで取得する。
	// viewerIDが空の場合、LikedByViewerは常にfalseになる。見つからない場合はnilを返す。
	FindWithLikes(ctx context.Context, id, viewerID string) (*model.PostWithLikes, error)

	// UpdateBody は投稿本文を更新する。著者と作成日時は変更しない。
	// 投稿が存在しない場合はErrNotFoundを返す。
	UpdateBody(ctx context.Context, id, body string, updatedAt time.Time) error

	// ListPage はフィルタ条件に一致する投稿の総件数と、windowが総件数から決めた範囲の投稿を返す。
	// 投稿は created_at降順、同時刻はSeq降順で並ぶ。
	// 件数と一覧は同一時点の状態から読むため、途中で投稿が増えても両者は食い違わない。
	ListPage(ctx context.Context, filter PostFilter, viewerID string, window PageWindow) (int, []model.PostWithLikes, error)
}

// PageWindow は総件数から取得範囲のoffsetとlimitを決める。
type PageWindow func(total int) (offset, limit int)

// LikeRepository は投稿のいいね集合の永続化インターフェース。
type LikeRepository interface {
	// Toggle は投稿のいいね集合に対してユーザーの有無を反転する。
	// 同一投稿に対する同時実行は直列化される。
	// 投稿が存在しない場合はErrNotFoundを返す。
	Toggle(ctx context.Context, postID, userID string) (liked bool, count int, err error)
}

// FollowRepository はフォローグラフの永続化インターフェース。
type FollowRepository interface {
	// Toggle はfollower→followeeのエッジの有無を反転し、followeeのフォロワー数を返す。
	// 同一ペアに対する同時実行は直列化される。
	Toggle(ctx context.Context, followerID, followeeID string) (followed bool, followerCount int, err error)

	// Exists はfollower→followeeのエッジが存在するかを返す。
	Exists(ctx context.Context, followerID, followeeID string) (bool, error)

	// CountFollowers は指定ユーザーをフォローしているユーザー数を返す。
	CountFollowers(ctx context.Context, userID string) (int, error)

	// CountFollowing は指定ユーザーがフォローしているユーザー数を返す。
	CountFollowing(ctx context.Context, userID string) (int, error)

	// ListFollowers は指定ユーザーのフォロワーをフォローされた順に返す。
	ListFollowers(ctx context.Context, userID string) ([]*model.User, error)

	// ListFollowing は指定ユーザーがフォローしているユーザーをフォローした順に返す。
	ListFollowing(ctx context.Context, userID string) ([]*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired はbefore時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Store は全リポジトリの束。起動時にバックエンド（postgres / memory）に応じて構築する。
type Store struct {
	Users    UserRepository
	Posts    PostRepository
	Likes    LikeRepository
	Follows  FollowRepository
	Sessions SessionRepository
}
