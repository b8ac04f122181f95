package usecases_test

import (
	"context"
	"sync"

	"github.com/samirrijal/pharmacover/internal/core/domain"
)

// --- Mock SearchRepository ---

type mockSearchRepo struct {
	createFn       func(ctx context.Context, rec *domain.SearchRecord) error
	getByIDFn      func(ctx context.Context, id string) (*domain.SearchRecord, error)
	listFn         func(ctx context.Context, userID string, offset, limit int) ([]domain.SearchRecord, int, error)
	nameExistsFn   func(ctx context.Context, userID, name string) (bool, error)
	deleteFn       func(ctx context.Context, id string) error
	deleteByUserFn func(ctx context.Context, userID string) error
	sumRequestsFn  func(ctx context.Context) (int, error)
}

func (m *mockSearchRepo) Create(ctx context.Context, rec *domain.SearchRecord) error {
	if m.createFn != nil {
		return m.createFn(ctx, rec)
	}
	return nil
}

func (m *mockSearchRepo) GetByID(ctx context.Context, id string) (*domain.SearchRecord, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockSearchRepo) List(ctx context.Context, userID string, offset, limit int) ([]domain.SearchRecord, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, offset, limit)
	}
	return nil, 0, nil
}

func (m *mockSearchRepo) NameExists(ctx context.Context, userID, name string) (bool, error) {
	if m.nameExistsFn != nil {
		return m.nameExistsFn(ctx, userID, name)
	}
	return false, nil
}

func (m *mockSearchRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockSearchRepo) DeleteByUser(ctx context.Context, userID string) error {
	if m.deleteByUserFn != nil {
		return m.deleteByUserFn(ctx, userID)
	}
	return nil
}

func (m *mockSearchRepo) SumRequests(ctx context.Context) (int, error) {
	if m.sumRequestsFn != nil {
		return m.sumRequestsFn(ctx)
	}
	return 0, nil
}

// --- In-memory UserRepository ---

type memUserRepo struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	deductFn func(ctx context.Context, username string, n int) error
}

func newMemUserRepo(users ...domain.User) *memUserRepo {
	r := &memUserRepo{users: map[string]*domain.User{}}
	for i := range users {
		u := users[i]
		r.users[u.Username] = &u
	}
	return r
}

func (r *memUserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.Username]; ok {
		return domain.ErrUserExists
	}
	cp := *u
	r.users[u.Username] = &cp
	return nil
}

func (r *memUserRepo) UpsertAdmin(_ context.Context, username, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[username]; ok {
		u.PasswordHash, u.IsAdmin = hash, true
		return nil
	}
	r.users[username] = &domain.User{Username: username, PasswordHash: hash, IsAdmin: true}
	return nil
}

func (r *memUserRepo) Get(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) List(_ context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.User
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, nil
}

func (r *memUserRepo) Delete(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[username]; !ok {
		return domain.ErrNotFound
	}
	delete(r.users, username)
	return nil
}

func (r *memUserRepo) SetCredits(_ context.Context, username string, credits int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return domain.ErrNotFound
	}
	u.Credits = credits
	return nil
}

func (r *memUserRepo) DeductCredits(ctx context.Context, username string, n int) error {
	if r.deductFn != nil {
		return r.deductFn(ctx, username, n)
	}
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

func (r *memUserRepo) AddRequests(_ context.Context, username string, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[username]; ok {
		u.TotalRequests += n
	}
	return nil
}

func (r *memUserRepo) credits(username string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[username].Credits
}

func (r *memUserRepo) requests(username string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[username].TotalRequests
}

// --- Recording EventPublisher ---

type recordingPublisher struct {
	mu        sync.Mutex
	progress  []domain.SearchProgress
	completed []domain.SearchCompleted
}

func (p *recordingPublisher) PublishProgress(_ context.Context, ev *domain.SearchProgress) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress = append(p.progress, *ev)
	return nil
}

func (p *recordingPublisher) PublishCompleted(_ context.Context, ev *domain.SearchCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, *ev)
	return nil
}
