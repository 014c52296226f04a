package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/socialnet/internal/middleware"
	"github.com/hitoshi/socialnet/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限。
const maxRequestBodyBytes = 64 << 10

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをvにデコードする。
// 失敗した場合は400レスポンスを書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err := dec.Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

// pageParam はクエリパラメータpageを返す。整数でない場合は1を返す。
// 範囲外の値の丸めはフィード側で行う。
func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		return 1
	}
	return page
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	var storeErr *model.StoreError
	if errors.As(err, &storeErr) {
		slog.Error("store failure",
			slog.String("op", storeErr.Op),
			slog.String("error", storeErr.Err.Error()),
		)
		middleware.WriteStoreUnavailable(w)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthenticated, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodePostNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeUsernameTaken:
		return http.StatusConflict
	case model.ErrCodeSelfFollow, model.ErrCodePasswordMismatch, model.ErrCodeInvalidRequest,
		model.ErrCodeInvalidPostBody, model.ErrCodeInvalidPictureURL:
		return http.StatusBadRequest
	case model.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// userResponse はユーザー情報のAPIレスポンス。メールアドレスは本人にのみ返す。
type userResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Bio         string `json:"bio"`
	PictureURL  string `json:"picture_url"`
	CreatedAt   string `json:"created_at"`
}

func toUserResponse(u *model.User, includeEmail bool) userResponse {
	res := userResponse{
		ID:          u.ID,
		Username:    u.Username,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		DisplayName: u.DisplayName(),
		Bio:         u.Bio,
		PictureURL:  u.PictureURL,
		CreatedAt:   u.CreatedAt.UTC().Format(time.RFC3339),
	}
	if includeEmail {
		res.Email = u.Email
	}
	return res
}

func toUserResponses(users []*model.User) []userResponse {
	res := make([]userResponse, 0, len(users))
	for _, u := range users {
		res = append(res, toUserResponse(u, false))
	}
	return res
}

// postResponse は投稿のAPIレスポンス。
type postResponse struct {
	ID             string `json:"id"`
	AuthorID       string `json:"author_id"`
	AuthorUsername string `json:"author_username"`
	Body           string `json:"body"`
	LikeCount      int    `json:"like_count"`
	LikedByViewer  bool   `json:"liked_by_viewer"`
	Editable       bool   `json:"editable"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func toPostResponse(p *model.PostWithLikes, viewer model.Viewer) postResponse {
	return postResponse{
		ID:             p.ID,
		AuthorID:       p.AuthorID,
		AuthorUsername: p.AuthorUsername,
		Body:           p.Body,
		LikeCount:      p.LikeCount,
		LikedByViewer:  p.LikedByViewer,
		Editable:       !viewer.IsAnonymous() && viewer.UserID == p.AuthorID,
		CreatedAt:      p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
