// Package auth はユーザー登録、パスワード認証、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/socialnet/internal/model"
	"github.com/hitoshi/socialnet/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcryptは72バイトを超える入力を扱えない
	maxPasswordBytes = 72
)

// usernamePattern はユーザー名として許可する文字列。英数字と @ . + - _ の1〜150文字。
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9@.+\-_]{1,150}$`)

// dummyHash はユーザーが存在しない場合にも比較処理を行い、応答時間からユーザーの有無を推測されないようにするためのハッシュ。
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("socialnet-dummy-password"), bcrypt.MinCost)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	BcryptCost    int
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Username     string
	FirstName    string
	LastName     string
	Email        string
	Password     string
	Confirmation string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// Register はユーザーを作成し、そのままログイン状態にするためのセッションを発行する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, *model.Session, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if err := validateRegisterInput(in); err != nil {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.config.BcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     in.Username,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        in.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, nil, model.NewUsernameTakenError()
		}
		return nil, nil, model.NewStoreError("auth.Register", err)
	}

	slog.Info("new user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// validateRegisterInput は登録入力を検証する。
func validateRegisterInput(in RegisterInput) error {
	if !usernamePattern.MatchString(in.Username) {
		return model.NewInvalidRequestError("ユーザー名は英数字と @ . + - _ のみを使用し、150文字以内で入力してください。")
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return model.NewInvalidRequestError("メールアドレスの形式が正しくありません。")
		}
	}
	if len([]rune(in.Password)) < minPasswordLength {
		return model.NewInvalidRequestError(fmt.Sprintf("パスワードは%d文字以上で入力してください。", minPasswordLength))
	}
	if len(in.Password) > maxPasswordBytes {
		return model.NewInvalidRequestError(fmt.Sprintf("パスワードは%dバイト以内で入力してください。", maxPasswordBytes))
	}
	if in.Password != in.Confirmation {
		return model.NewPasswordMismatchError()
	}
	return nil
}

// Login はユーザー名とパスワードを検証し、セッションを発行する。
func (s *Service) Login(ctx context.Context, username, password string) (*model.User, *model.Session, error) {
	user, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, nil, model.NewStoreError("auth.Login", err)
	}

	if user == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Info("login failed", slog.String("username", user.Username))
		return nil, nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return user, session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return model.NewStoreError("auth.Logout", err)
	}

	slog.Info("user logged out")
	return nil
}

// ResolveViewer はセッションIDから閲覧者を解決する。
// セッションが存在しない、期限切れ、またはユーザーが存在しない場合は匿名の閲覧者を返す。
// エラーは永続化層の障害の場合のみ返す。
func (s *Service) ResolveViewer(ctx context.Context, sessionID string) (model.Viewer, error) {
	if sessionID == "" {
		return model.Anonymous, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return model.Anonymous, model.NewStoreError("auth.ResolveViewer", err)
	}
	if session == nil {
		return model.Anonymous, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return model.Anonymous, model.NewStoreError("auth.ResolveViewer", err)
	}
	if user == nil {
		return model.Anonymous, nil
	}

	return model.Viewer{UserID: user.ID, Username: user.Username}, nil
}

// GetCurrentUser は閲覧者のユーザー情報を取得する。
func (s *Service) GetCurrentUser(ctx context.Context, viewer model.Viewer) (*model.User, error) {
	if viewer.IsAnonymous() {
		return nil, model.NewUnauthenticatedError()
	}

	user, err := s.userRepo.FindByID(ctx, viewer.UserID)
	if err != nil {
		return nil, model.NewStoreError("auth.GetCurrentUser", err)
	}
	if user == nil {
		return nil, model.NewUnauthenticatedError()
	}
	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, model.NewStoreError("auth.createSession", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
