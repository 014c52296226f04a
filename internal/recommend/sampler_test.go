package recommend

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/hitoshi/socialnet/internal/model"
	"github.com/hitoshi/socialnet/internal/repository"
)

type mockUserRepo struct {
	repository.UserRepository
	candidatesFn func(ctx context.Context, viewerID string) ([]*model.User, error)
}

func (m *mockUserRepo) ListRecommendationCandidates(ctx context.Context, viewerID string) ([]*model.User, error) {
	return m.candidatesFn(ctx, viewerID)
}

// seedStore はn人のユーザー（user0..user{n-1}）を作成し、viewerがfollowsをフォローした状態にする。
func seedStore(t *testing.T, n int, follows ...int) *repository.Store {
	t.Helper()
	store := repository.NewMemoryStore().Store()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("user%d", i)
		if err := store.Users.Create(ctx, &model.User{ID: name, Username: name}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	for _, f := range follows {
		if _, _, err := store.Follows.Toggle(ctx, "user0", fmt.Sprintf("user%d", f)); err != nil {
			t.Fatalf("follow: %v", err)
		}
	}
	return store
}

var viewer = model.Viewer{UserID: "user0", Username: "user0"}

func TestRecommend_NeverIncludesSelfOrFollowed(t *testing.T) {
	store := seedStore(t, 10, 1, 2, 3)
	sampler := NewSampler(store.Users, 3)
	r := rand.New(rand.NewPCG(1, 2))
	sampler.intN = r.IntN

	excluded := map[string]bool{"user0": true, "user1": true, "user2": true, "user3": true}
	for i := 0; i < 200; i++ {
		got, err := sampler.Recommend(context.Background(), viewer)
		if err != nil {
			t.Fatalf("Recommend: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		seen := map[string]bool{}
		for _, u := range got {
			if excluded[u.ID] {
				t.Fatalf("recommended excluded user %s", u.ID)
			}
			if seen[u.ID] {
				t.Fatalf("duplicate recommendation %s in %v", u.ID, got)
			}
			seen[u.ID] = true
		}
	}
}

func TestRecommend_SizeIsMinOfCountAndPool(t *testing.T) {
	tests := []struct {
		name    string
		users   int
		follows []int
		want    int
	}{
		{"候補が十分", 6, nil, 3},
		{"候補がちょうど3", 4, nil, 3},
		{"候補が2", 4, []int{1}, 2},
		{"候補が1", 2, nil, 1},
		{"全員フォロー済み", 3, []int{1, 2}, 0},
		{"自分しかいない", 1, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seedStore(t, tt.users, tt.follows...)
			got, err := NewSampler(store.Users, 3).Recommend(context.Background(), viewer)
			if err != nil {
				t.Fatalf("Recommend: %v", err)
			}
			if got == nil {
				t.Fatal("result must be an empty slice, not nil")
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestRecommend_AnonymousGetsEmpty(t *testing.T) {
	store := seedStore(t, 5)
	got, err := NewSampler(store.Users, 3).Recommend(context.Background(), model.Anonymous)
	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("Recommend(anonymous) = (%v, %v), want empty slice", got, err)
	}
}

// リポジトリが自分自身を返しても推薦から除外され、件数は維持されることを検証
func TestRecommend_ExcludesSelfEvenIfRepositoryReturnsIt(t *testing.T) {
	users := &mockUserRepo{
		candidatesFn: func(_ context.Context, _ string) ([]*model.User, error) {
			return []*model.User{
				{ID: "user0"}, {ID: "a"}, {ID: "b"}, {ID: "c"},
			}, nil
		},
	}
	sampler := NewSampler(users, 3)
	sampler.intN = func(int) int { return 0 }

	got, _ := sampler.Recommend(context.Background(), viewer)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for _, u := range got {
		if u.ID == "user0" {
			t.Error("viewer must never be recommended")
		}
	}
}

// 全候補が選ばれ得ることを検証（一様性の粗い確認）
func TestRecommend_EveryCandidateCanBePicked(t *testing.T) {
	store := seedStore(t, 6)
	sampler := NewSampler(store.Users, 1)
	r := rand.New(rand.NewPCG(42, 7))
	sampler.intN = r.IntN

	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		got, _ := sampler.Recommend(context.Background(), viewer)
		counts[got[0].ID]++
	}
	if len(counts) != 5 {
		t.Fatalf("picked %d distinct users, want 5: %v", len(counts), counts)
	}
	for id, n := range counts {
		if n < 100 {
			t.Errorf("%s picked only %d/1000 times", id, n)
		}
	}
}

func TestRecommend_StoreFailure(t *testing.T) {
	users := &mockUserRepo{
		candidatesFn: func(_ context.Context, _ string) ([]*model.User, error) {
			return nil, errors.New("timeout")
		},
	}
	_, err := NewSampler(users, 3).Recommend(context.Background(), viewer)
	var storeErr *model.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected StoreError, got %v", err)
	}
}

func TestNewSampler_DefaultCount(t *testing.T) {
	if s := NewSampler(nil, 0); s.count != DefaultCount {
		t.Errorf("count = %d, want %d", s.count, DefaultCount)
	}
}
