package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/socialnet/internal/model"
)

// MemoryStore はプロセス内メモリを使用したストア。
// STORE_BACKEND=memory での開発用途と、サービス層のテストで使用する。
//
// ロックの取得順序は mu → followMu → memPost.likeMu とする。
// いいねのトグルは投稿ごとのlikeMuのみで直列化されるため、別の投稿へのトグルは互いにブロックしない。
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]*model.User
	usernames map[string]string // username → id
	posts     map[string]*memPost
	seq       int64
	sessions  map[string]*model.Session

	followMu sync.RWMutex
	follows  map[string]map[string]time.Time // follower → followee → created_at

	now func() time.Time
}

// memPost は投稿本体といいね集合を保持する。
// postはMemoryStore.mu、likesはlikeMuで保護される。
type memPost struct {
	post model.Post

	likeMu sync.Mutex
	likes  map[string]struct{}
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*model.User),
		usernames: make(map[string]string),
		posts:     make(map[string]*memPost),
		sessions:  make(map[string]*model.Session),
		follows:   make(map[string]map[string]time.Time),
		now:       time.Now,
	}
}

// Store はMemoryStoreを各リポジトリインターフェースとして公開する。
func (s *MemoryStore) Store() *Store {
	return &Store{
		Users:    memoryUsers{s},
		Posts:    memoryPosts{s},
		Likes:    memoryLikes{s},
		Follows:  memoryFollows{s},
		Sessions: memorySessions{s},
	}
}

// --- users ---

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r memoryUsers) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.usernames[username]
	if !ok {
		return nil, nil
	}
	cp := *r.s.users[id]
	return &cp, nil
}

func (r memoryUsers) Create(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.usernames[user.Username]; exists {
		return ErrDuplicateUsername
	}
	cp := *user
	r.s.users[user.ID] = &cp
	r.s.usernames[user.Username] = user.ID
	return nil
}

func (r memoryUsers) UpdateProfile(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	existing.FirstName = user.FirstName
	existing.LastName = user.LastName
	existing.Email = user.Email
	existing.Bio = user.Bio
	existing.PictureURL = user.PictureURL
	existing.UpdatedAt = user.UpdatedAt
	return nil
}

func (r memoryUsers) ListRecommendationCandidates(ctx context.Context, viewerID string) ([]*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	r.s.followMu.RLock()
	defer r.s.followMu.RUnlock()

	following := r.s.follows[viewerID]
	var candidates []*model.User
	for id, u := range r.s.users {
		if id == viewerID {
			continue
		}
		if _, ok := following[id]; ok {
			continue
		}
		cp := *u
		candidates = append(candidates, &cp)
	}
	sortUsersByCreatedAt(candidates)
	return candidates, nil
}

// sortUsersByCreatedAt はユーザーを作成日時昇順（同時刻はユーザー名順）に並べる。
func sortUsersByCreatedAt(users []*model.User) {
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].Username < users[j].Username
	})
}

// --- posts ---

type memoryPosts struct{ s *MemoryStore }

func (r memoryPosts) Create(ctx context.Context, post *model.Post) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.seq++
	post.Seq = r.s.seq
	r.s.posts[post.ID] = &memPost{
		post:  *post,
		likes: make(map[string]struct{}),
	}
	return nil
}

func (r memoryPosts) FindByID(ctx context.Context, id string) (*model.Post, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	mp, ok := r.s.posts[id]
	if !ok {
		return nil, nil
	}
	cp := mp.post
	return &cp, nil
}

func (r memoryPosts) FindWithLikes(ctx context.Context, id, viewerID string) (*model.PostWithLikes, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	mp, ok := r.s.posts[id]
	if !ok {
		return nil, nil
	}
	pwl := r.s.withLikes(mp, viewerID)
	return &pwl, nil
}

func (r memoryPosts) UpdateBody(ctx context.Context, id, body string, updatedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	mp, ok := r.s.posts[id]
	if !ok {
		return ErrNotFound
	}
	mp.post.Body = body
	mp.post.UpdatedAt = updatedAt
	return nil
}

// ListPage はmuを保持したまま件数と一覧を取得する。
func (r memoryPosts) ListPage(ctx context.Context, filter PostFilter, viewerID string, window PageWindow) (int, []model.PostWithLikes, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched := r.s.filterPosts(filter)
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i].post, matched[j].post
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Seq > b.Seq
	})

	total := len(matched)
	offset, limit := window(total)
	if offset < 0 {
		offset = 0
	}
	if offset >= total || limit <= 0 {
		return total, nil, nil
	}
	end := min(offset+limit, total)

	result := make([]model.PostWithLikes, 0, end-offset)
	for _, mp := range matched[offset:end] {
		result = append(result, r.s.withLikes(mp, viewerID))
	}
	return total, result, nil
}

// filterPosts はフィルタ条件に一致する投稿を返す。呼び出し側でmuを保持していること。
func (s *MemoryStore) filterPosts(filter PostFilter) []*memPost {
	var followees map[string]time.Time
	if filter.FollowedBy != "" {
		s.followMu.RLock()
		followees = make(map[string]time.Time, len(s.follows[filter.FollowedBy]))
		for id, at := range s.follows[filter.FollowedBy] {
			followees[id] = at
		}
		s.followMu.RUnlock()
	}

	var matched []*memPost
	for _, mp := range s.posts {
		if filter.AuthorID != "" && mp.post.AuthorID != filter.AuthorID {
			continue
		}
		if filter.FollowedBy != "" {
			if _, ok := followees[mp.post.AuthorID]; !ok {
				continue
			}
		}
		matched = append(matched, mp)
	}
	return matched
}

// withLikes は投稿にいいね集計を付与する。呼び出し側でmuを保持していること。
func (s *MemoryStore) withLikes(mp *memPost, viewerID string) model.PostWithLikes {
	pwl := model.PostWithLikes{Post: mp.post}
	if author, ok := s.users[mp.post.AuthorID]; ok {
		pwl.AuthorUsername = author.Username
	}

	mp.likeMu.Lock()
	pwl.LikeCount = len(mp.likes)
	if viewerID != "" {
		_, pwl.LikedByViewer = mp.likes[viewerID]
	}
	mp.likeMu.Unlock()
	return pwl
}

// --- likes ---

type memoryLikes struct{ s *MemoryStore }

func (r memoryLikes) Toggle(ctx context.Context, postID, userID string) (bool, int, error) {
	r.s.mu.RLock()
	mp, ok := r.s.posts[postID]
	r.s.mu.RUnlock()
	if !ok {
		return false, 0, ErrNotFound
	}

	mp.likeMu.Lock()
	defer mp.likeMu.Unlock()
	if _, liked := mp.likes[userID]; liked {
		delete(mp.likes, userID)
		return false, len(mp.likes), nil
	}
	mp.likes[userID] = struct{}{}
	return true, len(mp.likes), nil
}

// --- follows ---

type memoryFollows struct{ s *MemoryStore }

func (r memoryFollows) Toggle(ctx context.Context, followerID, followeeID string) (bool, int, error) {
	r.s.followMu.Lock()
	defer r.s.followMu.Unlock()

	edges := r.s.follows[followerID]
	if _, exists := edges[followeeID]; exists {
		delete(edges, followeeID)
		return false, r.s.countFollowersLocked(followeeID), nil
	}
	if edges == nil {
		edges = make(map[string]time.Time)
		r.s.follows[followerID] = edges
	}
	edges[followeeID] = r.s.now()
	return true, r.s.countFollowersLocked(followeeID), nil
}

// countFollowersLocked はフォロワー数を数える。呼び出し側でfollowMuを保持していること。
func (s *MemoryStore) countFollowersLocked(userID string) int {
	count := 0
	for _, edges := range s.follows {
		if _, ok := edges[userID]; ok {
			count++
		}
	}
	return count
}

func (r memoryFollows) Exists(ctx context.Context, followerID, followeeID string) (bool, error) {
	r.s.followMu.RLock()
	defer r.s.followMu.RUnlock()
	_, ok := r.s.follows[followerID][followeeID]
	return ok, nil
}

func (r memoryFollows) CountFollowers(ctx context.Context, userID string) (int, error) {
	r.s.followMu.RLock()
	defer r.s.followMu.RUnlock()
	return r.s.countFollowersLocked(userID), nil
}

func (r memoryFollows) CountFollowing(ctx context.Context, userID string) (int, error) {
	r.s.followMu.RLock()
	defer r.s.followMu.RUnlock()
	return len(r.s.follows[userID]), nil
}

func (r memoryFollows) ListFollowers(ctx context.Context, userID string) ([]*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	r.s.followMu.RLock()
	defer r.s.followMu.RUnlock()

	var edges []edgeAt
	for followerID, followees := range r.s.follows {
		if at, ok := followees[userID]; ok {
			edges = append(edges, edgeAt{userID: followerID, at: at})
		}
	}
	return r.s.usersByEdges(edges), nil
}

func (r memoryFollows) ListFollowing(ctx context.Context, userID string) ([]*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	r.s.followMu.RLock()
	defer r.s.followMu.RUnlock()

	var edges []edgeAt
	for followeeID, at := range r.s.follows[userID] {
		edges = append(edges, edgeAt{userID: followeeID, at: at})
	}
	return r.s.usersByEdges(edges), nil
}

type edgeAt struct {
	userID string
	at     time.Time
}

// usersByEdges はエッジ作成日時の昇順でユーザーを返す。呼び出し側でmuを保持していること。
func (s *MemoryStore) usersByEdges(edges []edgeAt) []*model.User {
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].at.Equal(edges[j].at) {
			return edges[i].at.Before(edges[j].at)
		}
		return edges[i].userID < edges[j].userID
	})
	users := make([]*model.User, 0, len(edges))
	for _, e := range edges {
		if u, ok := s.users[e.userID]; ok {
			cp := *u
			users = append(users, &cp)
		}
	}
	return users
}

// --- sessions ---

type memorySessions struct{ s *MemoryStore }

func (r memorySessions) Create(ctx context.Context, session *model.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *session
	r.s.sessions[session.ID] = &cp
	return nil
}

func (r memorySessions) FindByID(ctx context.Context, id string) (*model.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sess, ok := r.s.sessions[id]
	if !ok || !sess.ExpiresAt.After(r.s.now()) {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (r memorySessions) DeleteByID(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.sessions, id)
	return nil
}

func (r memorySessions) DeleteByUserID(ctx context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, sess := range r.s.sessions {
		if sess.UserID == userID {
			delete(r.s.sessions, id)
		}
	}
	return nil
}

func (r memorySessions) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var deleted int64
	for id, sess := range r.s.sessions {
		if !sess.ExpiresAt.After(before) {
			delete(r.s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

// compile-time interface checks
var (
	_ UserRepository    = memoryUsers{}
	_ PostRepository    = memoryPosts{}
	_ LikeRepository    = memoryLikes{}
	_ FollowRepository  = memoryFollows{}
	_ SessionRepository = memorySessions{}
)
