package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/socialnet/internal/follow"
	"github.com/hitoshi/socialnet/internal/middleware"
	"github.com/hitoshi/socialnet/internal/model"
	"github.com/hitoshi/socialnet/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするプロフィールサービスのインターフェース。
type UserServiceInterface interface {
	Profile(ctx context.Context, viewer model.Viewer, username string) (*user.ProfileView, error)
	UpdateProfile(ctx context.Context, viewer model.Viewer, in model.ProfileUpdate) (*model.User, error)
}

// FollowServiceInterface はユーザーハンドラーが必要とするフォローサービスのインターフェース。
type FollowServiceInterface interface {
	Toggle(ctx context.Context, viewer model.Viewer, targetUsername string) (*follow.Result, error)
	Followers(ctx context.Context, username string) ([]*model.User, error)
	Following(ctx context.Context, username string) ([]*model.User, error)
}

// UserHandler はプロフィールとフォロー関係のHTTPハンドラー。
type UserHandler struct {
	users   UserServiceInterface
	follows FollowServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(users UserServiceInterface, follows FollowServiceInterface) *UserHandler {
	return &UserHandler{
		users:   users,
		follows: follows,
	}
}

// profileResponse はプロフィールのAPIレスポンス。
type profileResponse struct {
	userResponse
	FollowerCount    int  `json:"follower_count"`
	FollowingCount   int  `json:"following_count"`
	FollowedByViewer bool `json:"followed_by_viewer"`
	IsSelf           bool `json:"is_self"`
}

// updateProfileRequest はプロフィール更新リクエスト。省略した項目は変更しない。
type updateProfileRequest struct {
	FirstName  *string `json:"first_name"`
	LastName   *string `json:"last_name"`
	Email      *string `json:"email"`
	Bio        *string `json:"bio"`
	PictureURL *string `json:"picture_url"`
}

// followResponse はフォロートグルのAPIレスポンス。
type followResponse struct {
	Message             string `json:"message"`
	TargetFollowerCount int    `json:"target_follower_count"`
	Followed            bool   `json:"followed"`
}

// Profile はユーザーのプロフィールを返す。
// GET /api/users/{username}
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	view, err := h.users.Profile(r.Context(), middleware.ViewerFromContext(r.Context()), chi.URLParam(r, "username"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		userResponse:     toUserResponse(view.User, view.IsSelf),
		FollowerCount:    view.FollowerCount,
		FollowingCount:   view.FollowingCount,
		FollowedByViewer: view.FollowedByViewer,
		IsSelf:           view.IsSelf,
	})
}

// UpdateMe は閲覧者自身のプロフィールを更新する。
// PUT /api/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.users.UpdateProfile(r.Context(), middleware.ViewerFromContext(r.Context()), model.ProfileUpdate{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Bio:        req.Bio,
		PictureURL: req.PictureURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u, true))
}

// Follow は閲覧者から対象ユーザーへのフォローを反転する。
// POST /api/users/{username}/follow
func (h *UserHandler) Follow(w http.ResponseWriter, r *http.Request) {
	res, err := h.follows.Toggle(r.Context(), middleware.ViewerFromContext(r.Context()), chi.URLParam(r, "username"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, followResponse{
		Message:             "Follow updated",
		TargetFollowerCount: res.TargetFollowerCount,
		Followed:            res.Followed,
	})
}

// Followers はユーザーのフォロワー一覧を返す。
// GET /api/users/{username}/followers
func (h *UserHandler) Followers(w http.ResponseWriter, r *http.Request) {
	h.writeUserList(w, r, h.follows.Followers)
}

// Following はユーザーがフォローしているユーザー一覧を返す。
// GET /api/users/{username}/following
func (h *UserHandler) Following(w http.ResponseWriter, r *http.Request) {
	h.writeUserList(w, r, h.follows.Following)
}

func (h *UserHandler) writeUserList(
	w http.ResponseWriter,
	r *http.Request,
	list func(ctx context.Context, username string) ([]*model.User, error),
) {
	users, err := list(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": toUserResponses(users)})
}
