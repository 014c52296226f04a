package post

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/socialnet/internal/model"
	"github.com/hitoshi/socialnet/internal/repository"
	"github.com/hitoshi/socialnet/internal/security"
)

var (
	alice = model.Viewer{UserID: "alice-id", Username: "alice"}
	bob   = model.Viewer{UserID: "bob-id", Username: "bob"}
)

// --- モック定義 ---

type mockLikeRepo struct {
	toggleFn func(ctx context.Context, postID, userID string) (bool, int, error)
}

func (m *mockLikeRepo) Toggle(ctx context.Context, postID, userID string) (bool, int, error) {
	return m.toggleFn(ctx, postID, userID)
}

type recordingMetrics struct {
	postsCreated int
	likes        []bool
}

func (r *recordingMetrics) RecordPostCreated()                 { r.postsCreated++ }
func (r *recordingMetrics) RecordLikeToggled(liked bool)       { r.likes = append(r.likes, liked) }
func (r *recordingMetrics) RecordFollowToggled(bool)           {}
func (r *recordingMetrics) RecordFeedRequest(string)           {}
func (r *recordingMetrics) RecordHTTPStatus(int)               {}
func (r *recordingMetrics) RecordRequestLatency(time.Duration) {}
func (r *recordingMetrics) RecordSessionsPurged(int64)         {}

func newTestService(t *testing.T) (*Service, *repository.Store, *recordingMetrics) {
	t.Helper()
	store := repository.NewMemoryStore().Store()
	for _, v := range []model.Viewer{alice, bob} {
		if err := store.Users.Create(context.Background(), &model.User{ID: v.UserID, Username: v.Username}); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	rec := &recordingMetrics{}
	svc := NewService(store.Posts, store.Likes, security.NewTextNormalizer(), rec, Config{MaxLength: 20})
	return svc, store, rec
}

// --- Create ---

func TestCreate_Success(t *testing.T) {
	svc, store, rec := newTestService(t)

	p, err := svc.Create(context.Background(), alice, "  hello world ")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if p.Body != "hello world" {
		t.Errorf("Body = %q, want trimmed %q", p.Body, "hello world")
	}
	if p.AuthorID != alice.UserID || p.AuthorUsername != "alice" {
		t.Errorf("unexpected author: %+v", p)
	}
	if rec.postsCreated != 1 {
		t.Errorf("postsCreated = %d, want 1", rec.postsCreated)
	}

	stored, _ := store.Posts.FindByID(context.Background(), p.ID)
	if stored == nil || stored.Seq == 0 {
		t.Errorf("post not persisted with seq: %+v", stored)
	}
}

func TestCreate_Anonymous(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), model.Anonymous, "hi")
	if !model.HasCode(err, model.ErrCodeUnauthenticated) {
		t.Errorf("expected UNAUTHENTICATED, got %v", err)
	}
}

func TestCreate_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"空文字", ""},
		{"空白のみ", "   \n\t"},
		{"タグのみ", "<script>alert(1)</script>"},
		{"タグを含む", "hello <b>world</b>"},
		{"英字が続く不等号", "a<b"},
		{"山括弧で囲まれた語", "x<y>z"},
		{"上限超過", strings.Repeat("あ", 21)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(t)
			_, err := svc.Create(context.Background(), alice, tt.body)
			if !model.HasCode(err, model.ErrCodeInvalidPostBody) {
				t.Errorf("expected INVALID_POST_BODY, got %v", err)
			}
		})
	}
}

// 記号を含む本文は書き換えずにそのまま保存される
func TestCreate_KeepsLiteralText(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	for _, body := range []string{"a < b", "&amp; is &", "x &lt;y&gt; z"} {
		p, err := svc.Create(ctx, alice, body)
		if err != nil {
			t.Fatalf("Create(%q) returned error: %v", body, err)
		}
		stored, _ := store.Posts.FindByID(ctx, p.ID)
		if stored.Body != body {
			t.Errorf("stored body = %q, want %q", stored.Body, body)
		}
	}
}

func TestCreate_MaxLengthCountsRunes(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.Create(context.Background(), alice, strings.Repeat("あ", 20)); err != nil {
		t.Errorf("20 runes should be accepted, got %v", err)
	}
}

// --- Get ---

func TestGet_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Get(context.Background(), alice, "missing")
	if !model.HasCode(err, model.ErrCodePostNotFound) {
		t.Errorf("expected POST_NOT_FOUND, got %v", err)
	}
}

func TestGet_ReflectsViewerLike(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	p, _ := svc.Create(ctx, bob, "hello")
	_, _ = svc.ToggleLike(ctx, alice, p.ID)

	got, err := svc.Get(ctx, alice, p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.LikeCount != 1 || !got.LikedByViewer {
		t.Errorf("alice view = %+v", got)
	}

	got, _ = svc.Get(ctx, model.Anonymous, p.ID)
	if got.LikeCount != 1 || got.LikedByViewer {
		t.Errorf("anonymous view = %+v", got)
	}
}

// --- Edit ---

func TestEdit_AuthorCanEdit(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return created }
	p, _ := svc.Create(ctx, alice, "first")

	edited := created.Add(time.Hour)
	svc.now = func() time.Time { return edited }
	got, err := svc.Edit(ctx, alice, p.ID, "second")
	if err != nil {
		t.Fatalf("Edit returned error: %v", err)
	}
	if got.Body != "second" || !got.UpdatedAt.Equal(edited) {
		t.Errorf("unexpected edited post: %+v", got)
	}

	stored, _ := store.Posts.FindByID(ctx, p.ID)
	if !stored.CreatedAt.Equal(created) || stored.AuthorID != alice.UserID {
		t.Errorf("created_at and author must not change: %+v", stored)
	}
	if stored.Body != "second" {
		t.Errorf("stored body = %q, want %q", stored.Body, "second")
	}

	got, err = svc.Edit(ctx, alice, p.ID, "type &amp; to get &")
	if err != nil {
		t.Fatalf("Edit returned error: %v", err)
	}
	if got.Body != "type &amp; to get &" {
		t.Errorf("edited body = %q, want it unchanged", got.Body)
	}
}

func TestEdit_Errors(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	p, _ := svc.Create(ctx, alice, "mine")

	tests := []struct {
		name     string
		viewer   model.Viewer
		postID   string
		body     string
		wantCode string
	}{
		{"匿名", model.Anonymous, p.ID, "x", model.ErrCodeUnauthenticated},
		{"存在しない投稿", alice, "missing", "x", model.ErrCodePostNotFound},
		{"他人の投稿", bob, p.ID, "hijack", model.ErrCodeForbidden},
		{"他人の投稿は本文が不正でもFORBIDDEN", bob, p.ID, "", model.ErrCodeForbidden},
		{"本文が空", alice, p.ID, "  ", model.ErrCodeInvalidPostBody},
		{"タグとして解釈される本文", alice, p.ID, "if a<b then c", model.ErrCodeInvalidPostBody},
		{"山括弧で囲まれた語", alice, p.ID, "x<y>z", model.ErrCodeInvalidPostBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Edit(ctx, tt.viewer, tt.postID, tt.body)
			if !model.HasCode(err, tt.wantCode) {
				t.Errorf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}

	got, _ := svc.Get(ctx, alice, p.ID)
	if got.Body != "mine" {
		t.Errorf("failed edits must not change the body, got %q", got.Body)
	}
}

// --- ToggleLike ---

// alice がまだいいねしていない投稿をトグルすると +1 / true、もう一度で元に戻る
func TestToggleLike_TwiceRestoresState(t *testing.T) {
	svc, _, rec := newTestService(t)
	ctx := context.Background()
	p, _ := svc.Create(ctx, bob, "post #5")
	_, _ = svc.ToggleLike(ctx, bob, p.ID)
	old := 1

	first, err := svc.ToggleLike(ctx, alice, p.ID)
	if err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	if first.Count != old+1 || !first.CurrentlyLiked {
		t.Errorf("first toggle = %+v, want {Count:%d CurrentlyLiked:true}", first, old+1)
	}

	second, _ := svc.ToggleLike(ctx, alice, p.ID)
	if second.Count != old || second.CurrentlyLiked {
		t.Errorf("second toggle = %+v, want {Count:%d CurrentlyLiked:false}", second, old)
	}

	if len(rec.likes) != 3 || !rec.likes[1] || rec.likes[2] {
		t.Errorf("recorded likes = %v", rec.likes)
	}
}

func TestToggleLike_Errors(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ToggleLike(context.Background(), model.Anonymous, "any")
	if !model.HasCode(err, model.ErrCodeUnauthenticated) {
		t.Errorf("expected UNAUTHENTICATED, got %v", err)
	}

	_, err = svc.ToggleLike(context.Background(), alice, "missing")
	if !model.HasCode(err, model.ErrCodePostNotFound) {
		t.Errorf("expected POST_NOT_FOUND, got %v", err)
	}
}

// ストア障害はPOST_NOT_FOUNDではなくStoreErrorとして伝播する
func TestToggleLike_StoreFailureIsNotNotFound(t *testing.T) {
	store := repository.NewMemoryStore().Store()
	likes := &mockLikeRepo{
		toggleFn: func(_ context.Context, _, _ string) (bool, int, error) {
			return false, 0, errors.New("deadlock detected")
		},
	}
	svc := NewService(store.Posts, likes, security.NewTextNormalizer(), nil, Config{})

	_, err := svc.ToggleLike(context.Background(), alice, "p1")
	var storeErr *model.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if model.HasCode(err, model.ErrCodePostNotFound) {
		t.Error("store failure must not be reported as POST_NOT_FOUND")
	}
	if storeErr.Op != "post.ToggleLike" {
		t.Errorf("Op = %q, want post.ToggleLike", storeErr.Op)
	}
}

func TestNewService_Defaults(t *testing.T) {
	store := repository.NewMemoryStore().Store()
	svc := NewService(store.Posts, store.Likes, security.NewTextNormalizer(), nil, Config{})
	if svc.config.MaxLength != DefaultMaxLength {
		t.Errorf("MaxLength = %d, want %d", svc.config.MaxLength, DefaultMaxLength)
	}
}
