package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/socialnet/internal/middleware"
	"github.com/hitoshi/socialnet/internal/model"
	"github.com/hitoshi/socialnet/internal/post"
)

// PostServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	Create(ctx context.Context, viewer model.Viewer, body string) (*model.PostWithLikes, error)
	Get(ctx context.Context, viewer model.Viewer, postID string) (*model.PostWithLikes, error)
	Edit(ctx context.Context, viewer model.Viewer, postID, body string) (*model.Post, error)
	ToggleLike(ctx context.Context, viewer model.Viewer, postID string) (*post.LikeResult, error)
}

// PostHandler は投稿といいねのHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface) *PostHandler {
	return &PostHandler{service: service}
}

type postBodyRequest struct {
	Body string `json:"body"`
}

// likeResponse はいいねトグルのAPIレスポンス。
type likeResponse struct {
	Message        string `json:"message"`
	Count          int    `json:"count"`
	CurrentlyLiked bool   `json:"currently_liked"`
}

// editResponse は投稿編集のAPIレスポンス。
type editResponse struct {
	Message string `json:"message"`
	Body    string `json:"body"`
}

// Create は新規投稿を作成する。
// POST /api/posts
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req postBodyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	viewer := middleware.ViewerFromContext(r.Context())
	p, err := h.service.Create(r.Context(), viewer, req.Body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPostResponse(p, viewer))
}

// Get は投稿をいいね状態付きで返す。
// GET /api/posts/{id}
func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())
	p, err := h.service.Get(r.Context(), viewer, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(p, viewer))
}

// Edit は投稿本文を更新する。著者本人のみ実行できる。
// PUT /api/posts/{id}
func (h *PostHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req postBodyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.Edit(r.Context(), middleware.ViewerFromContext(r.Context()), chi.URLParam(r, "id"), req.Body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, editResponse{Message: "Post updated", Body: p.Body})
}

// ToggleLike は閲覧者のいいね状態を反転する。
// POST /api/posts/{id}/like
func (h *PostHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ToggleLike(r.Context(), middleware.ViewerFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, likeResponse{
		Message:        "Like updated",
		Count:          res.Count,
		CurrentlyLiked: res.CurrentlyLiked,
	})
}
