// Package feed はグローバル、フォロー中、プロフィールの各フィードを組み立てる。
package feed

import (
	"context"
	"fmt"

	"github.com/hitoshi/socialnet/internal/metrics"
	"github.com/hitoshi/socialnet/internal/model"
	"github.com/hitoshi/socialnet/internal/repository"
)

// View はフィードの種類。
type View string

const (
	ViewGlobal    View = "global"
	ViewFollowing View = "following"
	ViewProfile   View = "profile"
)

// Selector は組み立てるフィードを指定する。ViewProfileの場合のみUsernameを使用する。
type Selector struct {
	View     View
	Username string
}

// Global は全投稿のフィードを指定する。
func Global() Selector { return Selector{View: ViewGlobal} }

// Following は閲覧者がフォローしているユーザーの投稿のフィードを指定する。
func Following() Selector { return Selector{View: ViewFollowing} }

// Profile は指定ユーザーの投稿のフィードを指定する。
func Profile(username string) Selector { return Selector{View: ViewProfile, Username: username} }

// Recommender はフォロー推薦を提供する。
type Recommender interface {
	Recommend(ctx context.Context, viewer model.Viewer) ([]model.User, error)
}

// Page は1ページ分のフィード。
// Recommendationsは閲覧者が認証済みで推薦が有効な場合のみ設定される。
type Page struct {
	Posts           []model.PostWithLikes
	Info            PageInfo
	Recommendations []model.User
}

// Service はフィードの組み立てを行う。読み取り専用で副作用を持たない。
type Service struct {
	users       repository.UserRepository
	posts       repository.PostRepository
	recommender Recommender
	metrics     metrics.MetricsCollector
	pageSize    int
}

// NewService はServiceを生成する。recommenderがnilの場合は推薦を付与しない。
func NewService(
	users repository.UserRepository,
	posts repository.PostRepository,
	recommender Recommender,
	mc metrics.MetricsCollector,
	pageSize int,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{
		users:       users,
		posts:       posts,
		recommender: recommender,
		metrics:     mc,
		pageSize:    pageSize,
	}
}

// Compose はセレクタと閲覧者に応じたフィードの指定ページを返す。
// 投稿は作成日時の降順、同時刻は挿入順の降順で並ぶ。
func (s *Service) Compose(ctx context.Context, sel Selector, viewer model.Viewer, page int) (*Page, error) {
	filter, err := s.resolveFilter(ctx, sel, viewer)
	if err != nil {
		return nil, err
	}

	// ページ番号の丸めは取得時点の総件数で行う
	var info PageInfo
	_, posts, err := s.posts.ListPage(ctx, filter, viewer.UserID, func(total int) (int, int) {
		info = Paginate(total, page, s.pageSize)
		return info.Offset(), info.Size
	})
	if err != nil {
		return nil, model.NewStoreError("feed.Compose", err)
	}
	if posts == nil {
		posts = []model.PostWithLikes{}
	}

	result := &Page{Posts: posts, Info: info}

	if s.recommender != nil && !viewer.IsAnonymous() {
		recs, err := s.recommender.Recommend(ctx, viewer)
		if err != nil {
			return nil, err
		}
		result.Recommendations = recs
	}

	s.metrics.RecordFeedRequest(string(sel.View))
	return result, nil
}

// resolveFilter はセレクタを投稿の絞り込み条件に変換する。
func (s *Service) resolveFilter(ctx context.Context, sel Selector, viewer model.Viewer) (repository.PostFilter, error) {
	switch sel.View {
	case ViewGlobal:
		return repository.PostFilter{}, nil

	case ViewFollowing:
		if viewer.IsAnonymous() {
			return repository.PostFilter{}, model.NewUnauthenticatedError()
		}
		return repository.PostFilter{FollowedBy: viewer.UserID}, nil

	case ViewProfile:
		u, err := s.users.FindByUsername(ctx, sel.Username)
		if err != nil {
			return repository.PostFilter{}, model.NewStoreError("feed.Compose", err)
		}
		if u == nil {
			return repository.PostFilter{}, model.NewUserNotFoundError(sel.Username)
		}
		return repository.PostFilter{AuthorID: u.ID}, nil

	default:
		return repository.PostFilter{}, fmt.Errorf("unknown feed view: %q", sel.View)
	}
}
