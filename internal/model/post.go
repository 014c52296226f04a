package model

import "time"

// Post はユーザーが投稿した短いテキストを表す。
// AuthorIDとCreatedAtは作成後に変更されない。
type Post struct {
	ID        string
	Seq       int64 // 挿入順。同一CreatedAtの並び順を決定的にする
	AuthorID  string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PostWithLikes は投稿といいね集計、閲覧者のいいね状態を結合したモデル。
type PostWithLikes struct {
	Post
	AuthorUsername string
	LikeCount      int
	LikedByViewer  bool
}

// FollowEdge はフォロー関係（follower → followee）を表す。
type FollowEdge struct {
	FollowerID string
	FolloweeID string
	CreatedAt  time.Time
}
