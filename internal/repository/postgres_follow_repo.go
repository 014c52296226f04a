package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/socialnet/internal/model"
)

// PostgresFollowRepo はPostgreSQLを使用したフォローグラフのリポジトリ。
type PostgresFollowRepo struct {
	db *sql.DB
}

// NewPostgresFollowRepo はPostgresFollowRepoを生成する。
func NewPostgresFollowRepo(db *sql.DB) *PostgresFollowRepo {
	return &PostgresFollowRepo{db: db}
}

// pairLockKey はフォローペアのアドバイザリロックのキー文字列を返す。
func pairLockKey(followerID, followeeID string) string {
	return "follow:" + followerID + ":" + followeeID
}

// Toggle はfollower→followeeのエッジの有無を反転する。
// ペア単位のpg_advisory_xact_lockで同一ペアへのトグルを直列化する。
// ロックはトランザクション終了時に自動で解放される。
func (r *PostgresFollowRepo) Toggle(ctx context.Context, followerID, followeeID string) (bool, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		pairLockKey(followerID, followeeID),
	); err != nil {
		return false, 0, fmt.Errorf("failed to acquire follow lock: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`,
		followerID, followeeID,
	)
	if err != nil {
		return false, 0, fmt.Errorf("failed to delete follow edge: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	followed := removed == 0
	if followed {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO follows (follower_id, followee_id, created_at) VALUES ($1, $2, $3)`,
			followerID, followeeID, time.Now().UTC(),
		); err != nil {
			return false, 0, fmt.Errorf("failed to insert follow edge: %w", err)
		}
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM follows WHERE followee_id = $1`,
		followeeID,
	).Scan(&count); err != nil {
		return false, 0, fmt.Errorf("failed to count followers: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return followed, count, nil
}

// Exists はfollower→followeeのエッジが存在するかを返す。
func (r *PostgresFollowRepo) Exists(ctx context.Context, followerID, followeeID string) (bool, error) {
	if !isUUID(followerID) || !isUUID(followeeID) {
		return false, nil
	}
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = $1 AND followee_id = $2)`,
		followerID, followeeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check follow edge: %w", err)
	}
	return exists, nil
}

// CountFollowers は指定ユーザーのフォロワー数を返す。
func (r *PostgresFollowRepo) CountFollowers(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM follows WHERE followee_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count followers: %w", err)
	}
	return count, nil
}

// CountFollowing は指定ユーザーのフォロー数を返す。
func (r *PostgresFollowRepo) CountFollowing(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM follows WHERE follower_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count following: %w", err)
	}
	return count, nil
}

// ListFollowers は指定ユーザーのフォロワーをフォローされた順に返す。
func (r *PostgresFollowRepo) ListFollowers(ctx context.Context, userID string) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+`
		 FROM follows f JOIN users u ON u.id = f.follower_id
		 WHERE f.followee_id = $1
		 ORDER BY f.created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list followers: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// ListFollowing は指定ユーザーがフォローしているユーザーをフォローした順に返す。
func (r *PostgresFollowRepo) ListFollowing(ctx context.Context, userID string) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+`
		 FROM follows f JOIN users u ON u.id = f.followee_id
		 WHERE f.follower_id = $1
		 ORDER BY f.created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list following: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// compile-time interface check
var _ FollowRepository = (*PostgresFollowRepo)(nil)
