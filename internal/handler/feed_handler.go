package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/socialnet/internal/feed"
	"github.com/hitoshi/socialnet/internal/middleware"
	"github.com/hitoshi/socialnet/internal/model"
)

// FeedServiceInterface はフィードハンドラーが必要とするサービスインターフェース。
type FeedServiceInterface interface {
	Compose(ctx context.Context, sel feed.Selector, viewer model.Viewer, page int) (*feed.Page, error)
}

// RecommenderInterface はフォロー推薦のインターフェース。
type RecommenderInterface interface {
	Recommend(ctx context.Context, viewer model.Viewer) ([]model.User, error)
}

// FeedHandler はフィードとフォロー推薦のHTTPハンドラー。
type FeedHandler struct {
	service     FeedServiceInterface
	recommender RecommenderInterface
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(service FeedServiceInterface, recommender RecommenderInterface) *FeedHandler {
	return &FeedHandler{
		service:     service,
		recommender: recommender,
	}
}

// pageInfoResponse はページ送り情報のAPIレスポンス。
type pageInfoResponse struct {
	Number      int  `json:"number"`
	TotalPages  int  `json:"total_pages"`
	TotalItems  int  `json:"total_items"`
	Size        int  `json:"size"`
	HasPrevious bool `json:"has_previous"`
	HasNext     bool `json:"has_next"`
}

// feedResponse はフィード1ページ分のAPIレスポンス。
type feedResponse struct {
	Posts           []postResponse   `json:"posts"`
	Page            pageInfoResponse `json:"page"`
	Recommendations []userResponse   `json:"recommendations"`
}

// Global は全投稿のフィードを返す。
// GET /api/feed/global?page=N
func (h *FeedHandler) Global(w http.ResponseWriter, r *http.Request) {
	h.compose(w, r, feed.Global())
}

// Following は閲覧者がフォローしているユーザーの投稿フィードを返す。
// GET /api/feed/following?page=N
func (h *FeedHandler) Following(w http.ResponseWriter, r *http.Request) {
	h.compose(w, r, feed.Following())
}

// Profile は指定ユーザーの投稿フィードを返す。
// GET /api/users/{username}/posts?page=N
func (h *FeedHandler) Profile(w http.ResponseWriter, r *http.Request) {
	h.compose(w, r, feed.Profile(chi.URLParam(r, "username")))
}

func (h *FeedHandler) compose(w http.ResponseWriter, r *http.Request, sel feed.Selector) {
	viewer := middleware.ViewerFromContext(r.Context())

	page, err := h.service.Compose(r.Context(), sel, viewer, pageParam(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFeedResponse(page, viewer))
}

// Recommendations は閲覧者へのフォロー推薦を返す。
// GET /api/recommendations
func (h *FeedHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	users, err := h.recommender.Recommend(r.Context(), middleware.ViewerFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": toRecommendationResponses(users)})
}

func toFeedResponse(page *feed.Page, viewer model.Viewer) feedResponse {
	posts := make([]postResponse, 0, len(page.Posts))
	for i := range page.Posts {
		posts = append(posts, toPostResponse(&page.Posts[i], viewer))
	}
	return feedResponse{
		Posts: posts,
		Page: pageInfoResponse{
			Number:      page.Info.Number,
			TotalPages:  page.Info.TotalPages,
			TotalItems:  page.Info.TotalItems,
			Size:        page.Info.Size,
			HasPrevious: page.Info.HasPrevious,
			HasNext:     page.Info.HasNext,
		},
		Recommendations: toRecommendationResponses(page.Recommendations),
	}
}

func toRecommendationResponses(users []model.User) []userResponse {
	res := make([]userResponse, 0, len(users))
	for i := range users {
		res = append(res, toUserResponse(&users[i], false))
	}
	return res
}
