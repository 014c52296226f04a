// Package follow はフォローグラフの操作を提供する。
package follow

import (
	"context"
	"log/slog"

	"github.com/hitoshi/socialnet/internal/metrics"
	"github.com/hitoshi/socialnet/internal/model"
	"github.com/hitoshi/socialnet/internal/repository"
)

// Result はフォロートグルの結果。
type Result struct {
	Followed            bool
	TargetFollowerCount int
}

// Service はフォロー関係のビジネスロジックを提供する。
type Service struct {
	users   repository.UserRepository
	follows repository.FollowRepository
	metrics metrics.MetricsCollector
}

// NewService はServiceを生成する。mcがnilの場合はメトリクスを記録しない。
func NewService(users repository.UserRepository, follows repository.FollowRepository, mc metrics.MetricsCollector) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{users: users, follows: follows, metrics: mc}
}

// Toggle は閲覧者から対象ユーザーへのフォローを反転する。
// フォロー済みなら解除し、未フォローならフォローする。エッジの重複はトグルの構造上発生しない。
func (s *Service) Toggle(ctx context.Context, viewer model.Viewer, targetUsername string) (*Result, error) {
	if viewer.IsAnonymous() {
		return nil, model.NewUnauthenticatedError()
	}

	target, err := s.lookup(ctx, "follow.Toggle", targetUsername)
	if err != nil {
		return nil, err
	}
	if target.ID == viewer.UserID {
		return nil, model.NewSelfFollowError()
	}

	followed, count, err := s.follows.Toggle(ctx, viewer.UserID, target.ID)
	if err != nil {
		return nil, model.NewStoreError("follow.Toggle", err)
	}

	s.metrics.RecordFollowToggled(followed)
	slog.Info("follow toggled",
		slog.String("follower_id", viewer.UserID),
		slog.String("followee_id", target.ID),
		slog.Bool("followed", followed),
	)

	return &Result{Followed: followed, TargetFollowerCount: count}, nil
}

// Followers は指定ユーザーのフォロワー一覧を返す。
func (s *Service) Followers(ctx context.Context, username string) ([]*model.User, error) {
	target, err := s.lookup(ctx, "follow.Followers", username)
	if err != nil {
		return nil, err
	}
	users, err := s.follows.ListFollowers(ctx, target.ID)
	if err != nil {
		return nil, model.NewStoreError("follow.Followers", err)
	}
	return users, nil
}

// Following は指定ユーザーがフォローしているユーザー一覧を返す。
func (s *Service) Following(ctx context.Context, username string) ([]*model.User, error) {
	target, err := s.lookup(ctx, "follow.Following", username)
	if err != nil {
		return nil, err
	}
	users, err := s.follows.ListFollowing(ctx, target.ID)
	if err != nil {
		return nil, model.NewStoreError("follow.Following", err)
	}
	return users, nil
}

func (s *Service) lookup(ctx context.Context, op, username string) (*model.User, error) {
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, model.NewStoreError(op, err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError(username)
	}
	return u, nil
}
