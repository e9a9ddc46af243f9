package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cryptozy/earnd/internal/app/domain/ledger"
	"github.com/cryptozy/earnd/internal/app/domain/withdrawal"
	"github.com/cryptozy/earnd/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu           sync.RWMutex
	nextID       int64
	profiles     map[string]ledger.Profile
	transactions map[string][]ledger.Activity
	withdrawals  map[string][]withdrawal.Record
}

var _ storage.ProfileStore = (*Store)(nil)
var _ storage.TransactionStore = (*Store)(nil)
var _ storage.WithdrawalStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:       1,
		profiles:     make(map[string]ledger.Profile),
		transactions: make(map[string][]ledger.Activity),
		withdrawals:  make(map[string][]withdrawal.Record),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// ProfileStore implementation ------------------------------------------------

func (s *Store) CreateProfile(_ context.Context, p ledger.Profile) (ledger.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.profiles[p.ID]; exists {
		return ledger.Profile{}, fmt.Errorf("profile %s already exists", p.ID)
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Level < 1 {
		p.Level = 1
	}
	if p.XPToNext <= 0 {
		p.XPToNext = ledger.InitialXPToNext
	}

	s.profiles[p.ID] = p
	return p, nil
}

func (s *Store) UpdateProfile(_ context.Context, p ledger.Profile) (ledger.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.profiles[p.ID]
	if !ok {
		return ledger.Profile{}, fmt.Errorf("profile %s not found", p.ID)
	}

	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	s.profiles[p.ID] = p
	return p, nil
}

// Put stores a profile verbatim, timestamps included. Intended for tests
// that need to seed historical state.
func (s *Store) Put(p ledger.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

func (s *Store) GetProfile(_ context.Context, id string) (ledger.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return ledger.Profile{}, fmt.Errorf("profile %s not found", id)
	}
	return p, nil
}

func (s *Store) ResetTodayEarned(_ context.Context, boundary time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reset int64
	for id, p := range s.profiles {
		if p.TodayEarned != 0 && p.UpdatedAt.Before(boundary) {
			p.TodayEarned = 0
			s.profiles[id] = p
			reset++
		}
	}
	return reset, nil
}

// TransactionStore implementation ---------------------------------------------

func (s *Store) CreateTransaction(_ context.Context, act ledger.Activity) (ledger.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if act.ID == "" {
		act.ID = s.nextIDLocked()
	}
	if act.CreatedAt.IsZero() {
		act.CreatedAt = time.Now().UTC()
	}

	s.transactions[act.AccountID] = append(s.transactions[act.AccountID], act)
	return act, nil
}

func (s *Store) ListTransactions(_ context.Context, accountID string, limit int) ([]ledger.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := append([]ledger.Activity(nil), s.transactions[accountID]...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// WithdrawalStore implementation ----------------------------------------------

func (s *Store) CreateWithdrawal(_ context.Context, rec withdrawal.Record) (withdrawal.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = s.nextIDLocked()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.withdrawals[rec.AccountID] = append(s.withdrawals[rec.AccountID], rec)
	return rec, nil
}

func (s *Store) ListWithdrawals(_ context.Context, accountID string) ([]withdrawal.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]withdrawal.Record(nil), s.withdrawals[accountID]...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
