package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/socialnet/internal/model"
)

// userColumns はusersテーブルのSELECT列。scanUserと順序を合わせる。
const userColumns = `u.id, u.username, u.first_name, u.last_name, u.email, u.bio,
		u.picture_url, u.password_hash, u.created_at, u.updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	user := &model.User{}
	var firstName, lastName, email, bio, pictureURL sql.NullString
	if err := s.Scan(
		&user.ID, &user.Username, &firstName, &lastName, &email, &bio,
		&pictureURL, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.FirstName = nullStringValue(firstName)
	user.LastName = nullStringValue(lastName)
	user.Email = nullStringValue(email)
	user.Bio = nullStringValue(bio)
	user.PictureURL = nullStringValue(pictureURL)
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if !isUUID(id) {
		return nil, nil
	}
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.username = $1`,
		username,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。ユーザー名が重複する場合はErrDuplicateUsernameを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, first_name, last_name, email, bio, picture_url,
		                    password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.ID, user.Username, nullString(user.FirstName), nullString(user.LastName),
		nullString(user.Email), nullString(user.Bio), nullString(user.PictureURL),
		user.PasswordHash, user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateUsername
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateProfile はプロフィール項目を更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET
		    first_name = $2, last_name = $3, email = $4, bio = $5, picture_url = $6, updated_at = $7
		 WHERE id = $1`,
		user.ID, nullString(user.FirstName), nullString(user.LastName), nullString(user.Email),
		nullString(user.Bio), nullString(user.PictureURL), user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecommendationCandidates は自分自身とフォロー済みユーザーを除いた全ユーザーを返す。
func (r *PostgresUserRepo) ListRecommendationCandidates(ctx context.Context, viewerID string) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+`
		 FROM users u
		 WHERE u.id <> $1
		   AND NOT EXISTS (
		       SELECT 1 FROM follows f WHERE f.follower_id = $1 AND f.followee_id = u.id
		   )
		 ORDER BY u.created_at ASC`,
		viewerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendation candidates: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// collectUsers はrowsからユーザー一覧を読み取る。
func collectUsers(rows *sql.Rows) ([]*model.User, error) {
	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
