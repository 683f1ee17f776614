package memory

import (
	"context"
	"sort"

	"bank-ledger/internal/core/domain"
	"bank-ledger/internal/core/ports"
)

// UserRepo implements ports.UserRepository over a Store.
type UserRepo struct {
	store *Store
}

// NewUserRepo creates a UserRepo.
func NewUserRepo(store *Store) *UserRepo {
	return &UserRepo{store: store}
}

func copyUser(u *domain.User) *domain.User {
	cp := *u
	cp.Roles = append([]domain.Role(nil), u.Roles...)
	return &cp
}

func (r *UserRepo) Create(_ context.Context, u *domain.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.users[u.Username]; ok {
		return ports.ErrDuplicateUsername
	}
	r.store.users[u.Username] = copyUser(u)
	return nil
}

func (r *UserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	u, ok := r.store.users[username]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (r *UserRepo) List(_ context.Context) ([]domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	users := make([]domain.User, 0, len(r.store.users))
	for _, u := range r.store.users {
		users = append(users, *copyUser(u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (r *UserRepo) SetBlocked(_ context.Context, username string, blocked bool) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	u, ok := r.store.users[username]
	if !ok {
		return false, nil
	}
	u.Blocked = blocked
	return true, nil
}

func (r *UserRepo) UpdatePassword(_ context.Context, username, passwordHash string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	u, ok := r.store.users[username]
	if !ok {
		return false, nil
	}
	u.PasswordHash = passwordHash
	return true, nil
}

// AuditRepo implements ports.AuditRepository over a Store.
type AuditRepo struct {
	store *Store
}

// NewAuditRepo creates an AuditRepo.
func NewAuditRepo(store *Store) *AuditRepo {
	return &AuditRepo{store: store}
}

func (r *AuditRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.audit = append(r.store.audit, *entry)
	return nil
}

// Entries returns a copy of every audit log recorded so far.
func (r *AuditRepo) Entries() []domain.AuditLog {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return append([]domain.AuditLog(nil), r.store.audit...)
}
