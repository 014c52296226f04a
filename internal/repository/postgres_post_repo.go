package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/socialnet/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// postWithLikesColumns は投稿一覧のSELECT列。$1は閲覧者のユーザーID（匿名の場合はNULL）。
const postWithLikesColumns = `p.id, p.seq, p.author_id, u.username, p.body, p.created_at, p.updated_at,
		(SELECT COUNT(*) FROM post_likes l WHERE l.post_id = p.id) AS like_count,
		EXISTS (SELECT 1 FROM post_likes l WHERE l.post_id = p.id AND l.user_id = $1) AS liked`

// Create は投稿を作成する。seqはBIGSERIALで採番され、post.Seqに設定される。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO posts (id, author_id, body, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING seq`,
		post.ID, post.AuthorID, post.Body, post.CreatedAt, post.UpdatedAt,
	).Scan(&post.Seq)
	if err != nil {
		return fmt.Errorf("投稿の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	if !isUUID(id) {
		return nil, nil
	}
	post := &model.Post{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, seq, author_id, body, created_at, updated_at FROM posts WHERE id = $1`,
		id,
	).Scan(&post.ID, &post.Seq, &post.AuthorID, &post.Body, &post.CreatedAt, &post.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	return post, nil
}

// FindWithLikes は投稿をいいね数と閲覧者のいいね状態付きで取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindWithLikes(ctx context.Context, id, viewerID string) (*model.PostWithLikes, error) {
	if !isUUID(id) {
		return nil, nil
	}
	pwl, err := scanPostWithLikes(r.db.QueryRowContext(ctx,
		`SELECT `+postWithLikesColumns+`
		 FROM posts p JOIN users u ON u.id = p.author_id
		 WHERE p.id = $2`,
		viewerParam(viewerID), id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投稿（いいね付き）の取得に失敗しました: %w", err)
	}
	return pwl, nil
}

// UpdateBody は投稿本文を更新する。
func (r *PostgresPostRepo) UpdateBody(ctx context.Context, id, body string, updatedAt time.Time) error {
	if !isUUID(id) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE posts SET body = $2, updated_at = $3 WHERE id = $1`,
		id, body, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("投稿本文の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// postQuerier は*sql.DBと*sql.Txの共通インターフェース。
type postQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ListPage は読み取り専用のREPEATABLE READトランザクション内で件数と一覧を取得する。
func (r *PostgresPostRepo) ListPage(
	ctx context.Context,
	filter PostFilter,
	viewerID string,
	window PageWindow,
) (int, []model.PostWithLikes, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return 0, nil, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	total, err := countPosts(ctx, tx, filter)
	if err != nil {
		return 0, nil, err
	}
	offset, limit := window(total)
	posts, err := listPosts(ctx, tx, filter, viewerID, offset, limit)
	if err != nil {
		return 0, nil, err
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return total, posts, nil
}

// countPosts はフィルタ条件に一致する投稿数を返す。
func countPosts(ctx context.Context, q postQuerier, filter PostFilter) (int, error) {
	where, args := buildPostFilter(filter, 1)

	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts p`+where,
		args...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("投稿数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// listPosts はフィルタ条件に一致する投稿を created_at降順、同時刻はseq降順で返す。
func listPosts(
	ctx context.Context,
	q postQuerier,
	filter PostFilter,
	viewerID string,
	offset, limit int,
) ([]model.PostWithLikes, error) {
	// $1 は閲覧者IDとして予約済み
	where, filterArgs := buildPostFilter(filter, 2)

	args := append([]any{viewerParam(viewerID)}, filterArgs...)
	argIndex := len(args) + 1

	query := `SELECT ` + postWithLikesColumns + `
		FROM posts p JOIN users u ON u.id = p.author_id` + where +
		fmt.Sprintf(" ORDER BY p.created_at DESC, p.seq DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var posts []model.PostWithLikes
	for rows.Next() {
		pwl, err := scanPostWithLikes(rows)
		if err != nil {
			return nil, fmt.Errorf("投稿行の読み取りに失敗しました: %w", err)
		}
		posts = append(posts, *pwl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("投稿一覧の走査に失敗しました: %w", err)
	}
	return posts, nil
}

func scanPostWithLikes(s rowScanner) (*model.PostWithLikes, error) {
	pwl := &model.PostWithLikes{}
	if err := s.Scan(
		&pwl.ID, &pwl.Seq, &pwl.AuthorID, &pwl.AuthorUsername, &pwl.Body,
		&pwl.CreatedAt, &pwl.UpdatedAt, &pwl.LikeCount, &pwl.LikedByViewer,
	); err != nil {
		return nil, err
	}
	return pwl, nil
}

// buildPostFilter はPostFilterからWHERE句と引数を組み立てる。
// startIndexはプレースホルダ番号の開始値。
func buildPostFilter(filter PostFilter, startIndex int) (string, []any) {
	var conds []string
	var args []any
	idx := startIndex

	if filter.AuthorID != "" {
		conds = append(conds, fmt.Sprintf("p.author_id = $%d", idx))
		args = append(args, filter.AuthorID)
		idx++
	}
	if filter.FollowedBy != "" {
		conds = append(conds, fmt.Sprintf(
			"p.author_id IN (SELECT f.followee_id FROM follows f WHERE f.follower_id = $%d)", idx))
		args = append(args, filter.FollowedBy)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// viewerParam は閲覧者IDをクエリ引数に変換する。匿名（空文字列）はNULLになり、いいね判定は常にfalseになる。
func viewerParam(viewerID string) sql.NullString {
	if !isUUID(viewerID) {
		return sql.NullString{}
	}
	return nullString(viewerID)
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
