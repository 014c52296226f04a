package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/socialnet/internal/model"
	"github.com/hitoshi/socialnet/internal/post"
)

// --- モック定義 ---

type mockPostService struct {
	createFn     func(ctx context.Context, viewer model.Viewer, body string) (*model.PostWithLikes, error)
	getFn        func(ctx context.Context, viewer model.Viewer, postID string) (*model.PostWithLikes, error)
	editFn       func(ctx context.Context, viewer model.Viewer, postID, body string) (*model.Post, error)
	toggleLikeFn func(ctx context.Context, viewer model.Viewer, postID string) (*post.LikeResult, error)
}

func (m *mockPostService) Create(ctx context.Context, viewer model.Viewer, body string) (*model.PostWithLikes, error) {
	if m.createFn != nil {
		return m.createFn(ctx, viewer, body)
	}
	return nil, nil
}

func (m *mockPostService) Get(ctx context.Context, viewer model.Viewer, postID string) (*model.PostWithLikes, error) {
	if m.getFn != nil {
		return m.getFn(ctx, viewer, postID)
	}
	return nil, nil
}

func (m *mockPostService) Edit(ctx context.Context, viewer model.Viewer, postID, body string) (*model.Post, error) {
	if m.editFn != nil {
		return m.editFn(ctx, viewer, postID, body)
	}
	return nil, nil
}

func (m *mockPostService) ToggleLike(ctx context.Context, viewer model.Viewer, postID string) (*post.LikeResult, error) {
	if m.toggleLikeFn != nil {
		return m.toggleLikeFn(ctx, viewer, postID)
	}
	return nil, nil
}

// --- テスト ---

func TestPostHandler_Create(t *testing.T) {
	svc := &mockPostService{
		createFn: func(_ context.Context, viewer model.Viewer, body string) (*model.PostWithLikes, error) {
			return &model.PostWithLikes{
				Post:           model.Post{ID: "p1", AuthorID: viewer.UserID, Body: body},
				AuthorUsername: viewer.Username,
			}, nil
		},
	}

	w := httptest.NewRecorder()
	NewPostHandler(svc).Create(w, withViewer(jsonRequest(http.MethodPost, "/api/posts", `{"body":"hello"}`), alice))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	var body postResponse
	decodeBody(t, w, &body)
	if body.ID != "p1" || body.Body != "hello" || body.AuthorUsername != "alice" || body.LikeCount != 0 || !body.Editable {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestPostHandler_Create_InvalidBody(t *testing.T) {
	svc := &mockPostService{
		createFn: func(context.Context, model.Viewer, string) (*model.PostWithLikes, error) {
			return nil, model.NewInvalidPostBodyError(280)
		},
	}

	w := httptest.NewRecorder()
	NewPostHandler(svc).Create(w, withViewer(jsonRequest(http.MethodPost, "/api/posts", `{"body":""}`), alice))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeInvalidPostBody {
		t.Errorf("code = %q", body.Code)
	}
}

func TestPostHandler_Get_UsesURLParam(t *testing.T) {
	var gotID string
	svc := &mockPostService{
		getFn: func(_ context.Context, _ model.Viewer, postID string) (*model.PostWithLikes, error) {
			gotID = postID
			if postID != "p1" {
				return nil, model.NewPostNotFoundError(postID)
			}
			return &model.PostWithLikes{Post: model.Post{ID: "p1", AuthorID: bob.UserID}}, nil
		},
	}
	h := NewPostHandler(svc)

	w := httptest.NewRecorder()
	h.Get(w, withViewer(withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/posts/p1", nil), "id", "p1"), alice))
	if w.Code != http.StatusOK || gotID != "p1" {
		t.Errorf("status = %d, id = %q", w.Code, gotID)
	}
	var body postResponse
	decodeBody(t, w, &body)
	if body.Editable {
		t.Error("post of another author should not be editable")
	}

	w = httptest.NewRecorder()
	h.Get(w, withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/posts/zzz", nil), "id", "zzz"))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPostHandler_Edit(t *testing.T) {
	tests := []struct {
		name       string
		viewer     model.Viewer
		wantStatus int
	}{
		{"著者", alice, http.StatusOK},
		{"他人", bob, http.StatusForbidden},
		{"匿名", model.Anonymous, http.StatusUnauthorized},
	}
	svc := &mockPostService{
		editFn: func(_ context.Context, viewer model.Viewer, postID, body string) (*model.Post, error) {
			switch {
			case viewer.IsAnonymous():
				return nil, model.NewUnauthenticatedError()
			case viewer != alice:
				return nil, model.NewForbiddenError()
			}
			return &model.Post{ID: postID, AuthorID: alice.UserID, Body: body}, nil
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := jsonRequest(http.MethodPut, "/api/posts/p1", `{"body":"edited"}`)
			req = withViewer(withChiURLParam(req, "id", "p1"), tt.viewer)
			w := httptest.NewRecorder()
			NewPostHandler(svc).Edit(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				var body editResponse
				decodeBody(t, w, &body)
				if body.Body != "edited" || body.Message != "Post updated" {
					t.Errorf("unexpected body: %+v", body)
				}
			}
		})
	}
}

func TestPostHandler_ToggleLike_ResponseShape(t *testing.T) {
	svc := &mockPostService{
		toggleLikeFn: func(_ context.Context, _ model.Viewer, postID string) (*post.LikeResult, error) {
			if postID != "p1" {
				return nil, model.NewPostNotFoundError(postID)
			}
			return &post.LikeResult{Count: 3, CurrentlyLiked: true}, nil
		},
	}
	h := NewPostHandler(svc)

	w := httptest.NewRecorder()
	h.ToggleLike(w, withViewer(withChiURLParam(httptest.NewRequest(http.MethodPost, "/api/posts/p1/like", nil), "id", "p1"), alice))

	var raw map[string]any
	decodeBody(t, w, &raw)
	if raw["message"] != "Like updated" || raw["count"] != float64(3) || raw["currently_liked"] != true {
		t.Errorf("unexpected body: %v", raw)
	}

	w = httptest.NewRecorder()
	h.ToggleLike(w, withViewer(withChiURLParam(httptest.NewRequest(http.MethodPost, "/api/posts/x/like", nil), "id", "x"), alice))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodePostNotFound {
		t.Errorf("code = %q", body.Code)
	}
}
