package http_test

import (
	"context"
	"sort"
	"sync"

	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/core/ports"
	"github.com/samirrijal/pharmacover/internal/core/usecases"
)

// ---- In-memory repositories ----

type memUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func (r *memUsers) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.Username]; ok {
		return domain.ErrUserExists
	}
	cp := *u
	r.users[u.Username] = &cp
	return nil
}

func (r *memUsers) UpsertAdmin(_ context.Context, username, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[username] = &domain.User{Username: username, PasswordHash: hash, IsAdmin: true}
	return nil
}

func (r *memUsers) Get(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUsers) List(_ context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.User
	for _, u := range r.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r *memUsers) Delete(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[username]; !ok {
		return domain.ErrNotFound
	}
	delete(r.users, username)
	return nil
}

func (r *memUsers) SetCredits(_ context.Context, username string, credits int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return domain.ErrNotFound
	}
	u.Credits = credits
	return nil
}

func (r *memUsers) DeductCredits(_ context.Context, username string, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return domain.ErrNotFound
	}
	if u.Credits < n {
		return domain.ErrInsufficientCredits
	}
	u.Credits -= n
	return nil
}

func (r *memUsers) AddRequests(_ context.Context, username string, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[username]; ok {
		u.TotalRequests += n
	}
	return nil
}

type memSearches struct {
	mu   sync.Mutex
	recs []domain.SearchRecord
}

func (r *memSearches) Create(_ context.Context, rec *domain.SearchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.recs {
		if existing.UserID == rec.UserID && existing.Name == rec.Name {
			return domain.ErrSearchNameTaken
		}
	}
	r.recs = append(r.recs, *rec)
	return nil
}

func (r *memSearches) GetByID(_ context.Context, id string) (*domain.SearchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.recs {
		if rec.ID == id {
			cp := rec
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memSearches) List(_ context.Context, userID string, offset, limit int) ([]domain.SearchRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.SearchRecord
	for i := len(r.recs) - 1; i >= 0; i-- {
		rec := r.recs[i]
		if userID == "" || rec.UserID == userID {
			rec.Places = nil
			matched = append(matched, rec)
		}
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *memSearches) NameExists(_ context.Context, userID, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.recs {
		if rec.UserID == userID && rec.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (r *memSearches) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rec := range r.recs {
		if rec.ID == id {
			r.recs = append(r.recs[:i], r.recs[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memSearches) DeleteByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.recs[:0]
	for _, rec := range r.recs {
		if rec.UserID != userID {
			kept = append(kept, rec)
		}
	}
	r.recs = kept
	return nil
}

func (r *memSearches) SumRequests(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := 0
	for _, rec := range r.recs {
		sum += rec.TotalRequests
	}
	return sum, nil
}

// ---- Cache ----

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ports.ErrCacheMiss
	}
	return v, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.sets++
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// ---- Async starter ----

type fakeStarter struct {
	startFn func(ctx context.Context, p domain.Principal, searchID string, req usecases.SearchRequest) (string, error)
}

func (f *fakeStarter) StartAreaSearch(ctx context.Context, p domain.Principal, searchID string, req usecases.SearchRequest) (string, error) {
	return f.startFn(ctx, p, searchID, req)
}
