// Package memory is an in-process implementation of the storage ports.
// Row locks are per-IBAN channels held for the life of a Tx; writes are
// buffered in the Tx and applied atomically on Commit.
package memory

import (
	"context"
	"errors"
	"sync"

	"bank-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

var errForeignTx = errors.New("memory: transaction was not started by this store")

// Store holds all tables. The zero value is not usable; call NewStore.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	entries  map[string][]domain.LedgerEntry
	users    map[string]*domain.User
	audit    []domain.AuditLog

	locksMu sync.Mutex
	locks   map[string]*rowLock
}

// rowLock is a one-slot channel shared by every Tx that holds or waits on a
// key. refs counts them; the entry is dropped when it reaches zero.
type rowLock struct {
	ch   chan struct{}
	refs int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[string]*domain.Account),
		entries:  make(map[string][]domain.LedgerEntry),
		users:    make(map[string]*domain.User),
		locks:    make(map[string]*rowLock),
	}
}

func (s *Store) acquireRef(key string) *rowLock {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[key]
	if !ok {
		l = &rowLock{ch: make(chan struct{}, 1)}
		s.locks[key] = l
	}
	l.refs++
	return l
}

func (s *Store) releaseRef(key string, l *rowLock) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
}

// lockCount reports how many keys currently have a holder or waiter.
func (s *Store) lockCount() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}

// Begin starts a unit of work. It satisfies ports.DBTransactor.
func (s *Store) Begin(_ context.Context) (pgx.Tx, error) {
	return &Tx{store: s, held: make(map[string]*rowLock)}, nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Name returns the dependency name.
func (s *Store) Name() string { return "memory" }

// op is a buffered write. It records the prior state of every key it
// touches in u before changing it.
type op func(s *Store, u *undoLog) error

// Tx is a unit of work against a Store. Only Commit and Rollback of the
// pgx.Tx surface are implemented; the store's repositories accept nothing else.
type Tx struct {
	pgx.Tx

	store  *Store
	held   map[string]*rowLock
	ops    []op
	closed bool
}

// lock acquires the exclusive lock on key, waiting until it is free or ctx ends.
// Re-acquiring a key already held by this Tx is a no-op.
func (t *Tx) lock(ctx context.Context, key string) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	if _, ok := t.held[key]; ok {
		return nil
	}

	l := t.store.acquireRef(key)
	select {
	case l.ch <- struct{}{}:
		t.held[key] = l
		return nil
	case <-ctx.Done():
		t.store.releaseRef(key, l)
		return ctx.Err()
	}
}

func (t *Tx) holds(key string) bool {
	_, ok := t.held[key]
	return ok
}

func (t *Tx) buffer(o op) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.ops = append(t.ops, o)
	return nil
}

func (t *Tx) release() {
	for key, l := range t.held {
		<-l.ch
		t.store.releaseRef(key, l)
		delete(t.held, key)
	}
	t.ops = nil
	t.closed = true
}

// Commit applies every buffered write atomically and releases held locks.
// If a write fails, the keys touched so far are restored.
func (t *Tx) Commit(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	defer t.release()

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	undo := newUndoLog()
	for _, o := range t.ops {
		if err := o(t.store, undo); err != nil {
			undo.restore(t.store)
			return err
		}
	}
	return nil
}

// Rollback discards buffered writes and releases held locks.
func (t *Tx) Rollback(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.release()
	return nil
}

func asTx(tx pgx.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return nil, errForeignTx
	}
	return t, nil
}

type savedEntries struct {
	rows    []domain.LedgerEntry
	present bool
}

// undoLog holds the pre-commit state of the keys a commit touched.
type undoLog struct {
	accounts map[string]*domain.Account // nil: the IBAN was absent
	entries  map[string]savedEntries
}

func newUndoLog() *undoLog {
	return &undoLog{
		accounts: make(map[string]*domain.Account),
		entries:  make(map[string]savedEntries),
	}
}

// saveAccount records iban's row the first time it is touched. Caller holds mu.
func (u *undoLog) saveAccount(s *Store, iban string) {
	if _, seen := u.accounts[iban]; seen {
		return
	}
	var prev *domain.Account
	if a, ok := s.accounts[iban]; ok {
		prev = copyAccount(a)
	}
	u.accounts[iban] = prev
}

// saveEntries records iban's entry slice header the first time it is touched.
// Entries are only appended or dropped wholesale, so the old header stays valid.
func (u *undoLog) saveEntries(s *Store, iban string) {
	if _, seen := u.entries[iban]; seen {
		return
	}
	rows, ok := s.entries[iban]
	u.entries[iban] = savedEntries{rows: rows, present: ok}
}

// restore reinstates every saved key. Caller holds mu.
func (u *undoLog) restore(s *Store) {
	for iban, prev := range u.accounts {
		if prev == nil {
			delete(s.accounts, iban)
			continue
		}
		s.accounts[iban] = prev
	}
	for iban, saved := range u.entries {
		if !saved.present {
			delete(s.entries, iban)
			continue
		}
		s.entries[iban] = saved.rows
	}
}

func copyAccount(a *domain.Account) *domain.Account {
	cp := *a
	if a.Owner != nil {
		owner := *a.Owner
		cp.Owner = &owner
	}
	return &cp
}
