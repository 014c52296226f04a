// Package user はプロフィールの閲覧と更新のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/socialnet/internal/model"
	"github.com/hitoshi/socialnet/internal/repository"
	"github.com/hitoshi/socialnet/internal/security"
)

const (
	maxNameLength = 150
	maxBioLength  = 500
)

// URLValidator は画像URLの静的な安全性検証を行う。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// ProfileView はプロフィール画面に必要な情報。
type ProfileView struct {
	User             *model.User
	FollowerCount    int
	FollowingCount   int
	FollowedByViewer bool
	IsSelf           bool
}

// Service はユーザープロフィールのサービス層。
type Service struct {
	users        repository.UserRepository
	follows      repository.FollowRepository
	text         security.TextNormalizer
	urlValidator URLValidator
	prober       security.PictureProberService // nilの場合は画像の存在確認を行わない
	probeTimeout time.Duration
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	follows repository.FollowRepository,
	text security.TextNormalizer,
	urlValidator URLValidator,
	prober security.PictureProberService,
	probeTimeout time.Duration,
) *Service {
	return &Service{
		users:        users,
		follows:      follows,
		text:         text,
		urlValidator: urlValidator,
		prober:       prober,
		probeTimeout: probeTimeout,
		now:          time.Now,
	}
}

// Profile は指定ユーザーのプロフィールをフォロー数と閲覧者との関係付きで返す。
func (s *Service) Profile(ctx context.Context, viewer model.Viewer, username string) (*ProfileView, error) {
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, model.NewStoreError("user.Profile", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError(username)
	}

	view := &ProfileView{User: u, IsSelf: u.ID == viewer.UserID}

	if view.FollowerCount, err = s.follows.CountFollowers(ctx, u.ID); err != nil {
		return nil, model.NewStoreError("user.Profile", err)
	}
	if view.FollowingCount, err = s.follows.CountFollowing(ctx, u.ID); err != nil {
		return nil, model.NewStoreError("user.Profile", err)
	}
	if !viewer.IsAnonymous() && !view.IsSelf {
		if view.FollowedByViewer, err = s.follows.Exists(ctx, viewer.UserID, u.ID); err != nil {
			return nil, model.NewStoreError("user.Profile", err)
		}
	}

	return view, nil
}

// UpdateProfile は閲覧者自身のプロフィールを更新する。nilの項目は変更しない。
// 画像URLは空文字列で削除でき、それ以外はSSRF検証（と有効時は画像の存在確認）を通過する必要がある。
func (s *Service) UpdateProfile(ctx context.Context, viewer model.Viewer, in model.ProfileUpdate) (*model.User, error) {
	if viewer.IsAnonymous() {
		return nil, model.NewUnauthenticatedError()
	}

	u, err := s.users.FindByID(ctx, viewer.UserID)
	if err != nil {
		return nil, model.NewStoreError("user.UpdateProfile", err)
	}
	if u == nil {
		return nil, model.NewUnauthenticatedError()
	}

	if in.FirstName != nil {
		if u.FirstName, err = s.cleanName(*in.FirstName); err != nil {
			return nil, err
		}
	}
	if in.LastName != nil {
		if u.LastName, err = s.cleanName(*in.LastName); err != nil {
			return nil, err
		}
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email != "" {
			if _, err := mail.ParseAddress(email); err != nil {
				return nil, model.NewInvalidRequestError("メールアドレスの形式が正しくありません。")
			}
		}
		u.Email = email
	}
	if in.Bio != nil {
		bio, err := s.plainText(*in.Bio, "自己紹介")
		if err != nil {
			return nil, err
		}
		if utf8.RuneCountInString(bio) > maxBioLength {
			return nil, model.NewInvalidRequestError(fmt.Sprintf("自己紹介は%d文字以内で入力してください。", maxBioLength))
		}
		u.Bio = bio
	}
	if in.PictureURL != nil {
		pictureURL := strings.TrimSpace(*in.PictureURL)
		if pictureURL != "" {
			if err := s.checkPicture(ctx, pictureURL); err != nil {
				return nil, err
			}
		}
		u.PictureURL = pictureURL
	}

	u.UpdatedAt = s.now().UTC()
	if err := s.users.UpdateProfile(ctx, u); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewUnauthenticatedError()
		}
		return nil, model.NewStoreError("user.UpdateProfile", err)
	}

	slog.Info("profile updated", slog.String("user_id", u.ID))
	return u, nil
}

func (s *Service) cleanName(raw string) (string, error) {
	name, err := s.plainText(raw, "氏名")
	if err != nil {
		return "", err
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", model.NewInvalidRequestError(fmt.Sprintf("氏名は%d文字以内で入力してください。", maxNameLength))
	}
	return name, nil
}

// plainText はマークアップを含む入力をINVALID_REQUESTとして拒否する。
func (s *Service) plainText(raw, field string) (string, error) {
	text, err := s.text.Normalize(raw)
	if errors.Is(err, security.ErrMarkupNotAllowed) {
		return "", model.NewInvalidRequestError(field + "にHTMLタグは使用できません。")
	}
	return text, err
}

// checkPicture は画像URLを検証する。
func (s *Service) checkPicture(ctx context.Context, pictureURL string) error {
	if err := s.urlValidator.ValidateURL(pictureURL); err != nil {
		return model.NewInvalidPictureURLError(err.Error())
	}
	if s.prober == nil {
		return nil
	}

	if s.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.probeTimeout)
		defer cancel()
	}
	if err := s.prober.Probe(ctx, pictureURL); err != nil {
		slog.Warn("picture probe failed",
			slog.String("url", pictureURL),
			slog.String("error", err.Error()),
		)
		return model.NewInvalidPictureURLError("画像を取得できませんでした")
	}
	return nil
}
