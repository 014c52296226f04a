// Package post は投稿の作成、編集、いいねトグルのドメインロジックを提供する。
package post

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/socialnet/internal/metrics"
	"github.com/hitoshi/socialnet/internal/model"
	"github.com/hitoshi/socialnet/internal/repository"
	"github.com/hitoshi/socialnet/internal/security"
)

// DefaultMaxLength は投稿本文の最大文字数のデフォルト値。
const DefaultMaxLength = 280

// Config は投稿サービスの設定。
type Config struct {
	MaxLength int // 投稿本文の最大文字数（rune数）
}

// LikeResult はいいねトグルの結果。
type LikeResult struct {
	Count          int
	CurrentlyLiked bool
}

// Service は投稿に関するビジネスロジックを提供する。
type Service struct {
	posts   repository.PostRepository
	likes   repository.LikeRepository
	text    security.TextNormalizer
	metrics metrics.MetricsCollector
	config  Config
	now     func() time.Time
}

// NewService はServiceを生成する。mcがnilの場合はメトリクスを記録しない。
func NewService(
	posts repository.PostRepository,
	likes repository.LikeRepository,
	text security.TextNormalizer,
	mc metrics.MetricsCollector,
	config Config,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if config.MaxLength <= 0 {
		config.MaxLength = DefaultMaxLength
	}
	return &Service{
		posts:   posts,
		likes:   likes,
		text:    text,
		metrics: mc,
		config:  config,
		now:     time.Now,
	}
}

// Create は閲覧者を著者とする投稿を作成する。
func (s *Service) Create(ctx context.Context, viewer model.Viewer, body string) (*model.PostWithLikes, error) {
	if viewer.IsAnonymous() {
		return nil, model.NewUnauthenticatedError()
	}

	clean, err := s.normalizeBody(body)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &model.Post{
		ID:        uuid.New().String(),
		AuthorID:  viewer.UserID,
		Body:      clean,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.posts.Create(ctx, p); err != nil {
		return nil, model.NewStoreError("post.Create", err)
	}

	s.metrics.RecordPostCreated()
	slog.Info("post created",
		slog.String("post_id", p.ID),
		slog.String("user_id", viewer.UserID),
	)

	return &model.PostWithLikes{Post: *p, AuthorUsername: viewer.Username}, nil
}

// Get は投稿をいいね数と閲覧者のいいね状態付きで取得する。
func (s *Service) Get(ctx context.Context, viewer model.Viewer, postID string) (*model.PostWithLikes, error) {
	p, err := s.posts.FindWithLikes(ctx, postID, viewer.UserID)
	if err != nil {
		return nil, model.NewStoreError("post.Get", err)
	}
	if p == nil {
		return nil, model.NewPostNotFoundError(postID)
	}
	return p, nil
}

// Edit は投稿本文を置き換える。著者本人のみ編集でき、著者と作成日時は変更されない。
func (s *Service) Edit(ctx context.Context, viewer model.Viewer, postID, body string) (*model.Post, error) {
	if viewer.IsAnonymous() {
		return nil, model.NewUnauthenticatedError()
	}

	p, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return nil, model.NewStoreError("post.Edit", err)
	}
	if p == nil {
		return nil, model.NewPostNotFoundError(postID)
	}
	if p.AuthorID != viewer.UserID {
		return nil, model.NewForbiddenError()
	}

	clean, err := s.normalizeBody(body)
	if err != nil {
		return nil, err
	}

	updatedAt := s.now().UTC()
	if err := s.posts.UpdateBody(ctx, postID, clean, updatedAt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewPostNotFoundError(postID)
		}
		return nil, model.NewStoreError("post.Edit", err)
	}

	p.Body = clean
	p.UpdatedAt = updatedAt
	return p, nil
}

// ToggleLike は閲覧者のいいね状態を反転し、更新後のいいね数を返す。
// 同一投稿への同時トグルはリポジトリ層で直列化される。
func (s *Service) ToggleLike(ctx context.Context, viewer model.Viewer, postID string) (*LikeResult, error) {
	if viewer.IsAnonymous() {
		return nil, model.NewUnauthenticatedError()
	}

	liked, count, err := s.likes.Toggle(ctx, postID, viewer.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewPostNotFoundError(postID)
	}
	if err != nil {
		return nil, model.NewStoreError("post.ToggleLike", err)
	}

	s.metrics.RecordLikeToggled(liked)
	return &LikeResult{Count: count, CurrentlyLiked: liked}, nil
}

// normalizeBody は本文の前後の空白を除き、マークアップと長さを検証する。
// 本文は切り詰めや書き換えをせずに保存する。
func (s *Service) normalizeBody(body string) (string, error) {
	clean, err := s.text.Normalize(body)
	if errors.Is(err, security.ErrMarkupNotAllowed) {
		return "", model.NewPostBodyMarkupError()
	}
	if err != nil {
		return "", err
	}
	n := utf8.RuneCountInString(clean)
	if n == 0 || n > s.config.MaxLength {
		return "", model.NewInvalidPostBodyError(s.config.MaxLength)
	}
	return clean, nil
}
