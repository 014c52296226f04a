// Package recommend はフォロー推薦ユーザーのサンプリングを提供する。
package recommend

import (
	"context"
	"math/rand/v2"

	"github.com/hitoshi/socialnet/internal/model"
	"github.com/hitoshi/socialnet/internal/repository"
)

// DefaultCount は推薦するユーザー数のデフォルト値。
const DefaultCount = 3

// Sampler は閲覧者がまだフォローしていないユーザーから無作為に推薦を選ぶ。
type Sampler struct {
	users repository.UserRepository
	count int
	intN  func(n int) int // [0, n) の一様乱数
}

// NewSampler はSamplerを生成する。countが0以下の場合はDefaultCountを使用する。
func NewSampler(users repository.UserRepository, count int) *Sampler {
	if count <= 0 {
		count = DefaultCount
	}
	return &Sampler{
		users: users,
		count: count,
		intN:  rand.IntN,
	}
}

// Recommend は候補（閲覧者自身とフォロー済みユーザーを除く全ユーザー）から
// min(count, 候補数) 人を重複なしで一様に選んで返す。
// 匿名の閲覧者や候補がいない場合は空のスライスを返す。
func (s *Sampler) Recommend(ctx context.Context, viewer model.Viewer) ([]model.User, error) {
	if viewer.IsAnonymous() {
		return []model.User{}, nil
	}

	pool, err := s.users.ListRecommendationCandidates(ctx, viewer.UserID)
	if err != nil {
		return nil, model.NewStoreError("recommend.Recommend", err)
	}

	// 自分自身は常に除外する
	candidates := pool[:0]
	for _, u := range pool {
		if u.ID != viewer.UserID {
			candidates = append(candidates, u)
		}
	}
	pool = candidates

	k := min(s.count, len(pool))
	// 部分Fisher-Yatesで先頭k件を確定させる
	for i := 0; i < k; i++ {
		j := i + s.intN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}

	picked := make([]model.User, k)
	for i, u := range pool[:k] {
		picked[i] = *u
	}
	return picked, nil
}
