package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresLikeRepo はPostgreSQLを使用したいいねリポジトリ。
type PostgresLikeRepo struct {
	db *sql.DB
}

// NewPostgresLikeRepo はPostgresLikeRepoを生成する。
func NewPostgresLikeRepo(db *sql.DB) *PostgresLikeRepo {
	return &PostgresLikeRepo{db: db}
}

// Toggle は投稿のいいね集合に対してユーザーの有無を反転する。
// 投稿行をSELECT ... FOR UPDATEでロックし、同一投稿へのトグルを直列化する。
// 別の投稿へのトグルは互いにブロックしない。
func (r *PostgresLikeRepo) Toggle(ctx context.Context, postID, userID string) (bool, int, error) {
	if !isUUID(postID) {
		return false, 0, ErrNotFound
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var lockedID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM posts WHERE id = $1 FOR UPDATE`,
		postID,
	).Scan(&lockedID)
	if err == sql.ErrNoRows {
		return false, 0, ErrNotFound
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to lock post: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`,
		postID, userID,
	)
	if err != nil {
		return false, 0, fmt.Errorf("failed to delete like: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	liked := removed == 0
	if liked {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO post_likes (post_id, user_id, created_at) VALUES ($1, $2, $3)`,
			postID, userID, time.Now().UTC(),
		); err != nil {
			return false, 0, fmt.Errorf("failed to insert like: %w", err)
		}
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM post_likes WHERE post_id = $1`,
		postID,
	).Scan(&count); err != nil {
		return false, 0, fmt.Errorf("failed to count likes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return liked, count, nil
}

// compile-time interface check
var _ LikeRepository = (*PostgresLikeRepo)(nil)
