package storage

import (
	"context"
	"time"

	"github.com/cryptozy/earnd/internal/app/domain/ledger"
	"github.com/cryptozy/earnd/internal/app/domain/withdrawal"
)

// ProfileStore persists ledger profiles. The durable store is eventually
// consistent with the in-memory session aggregate: writes may lag behind
// credits, so readers needing authority must go through GetProfile.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p ledger.Profile) (ledger.Profile, error)
	UpdateProfile(ctx context.Context, p ledger.Profile) (ledger.Profile, error)
	GetProfile(ctx context.Context, id string) (ledger.Profile, error)

	// ResetTodayEarned zeroes today_earned for every profile last updated
	// before the given day boundary. Used by the midnight sweeper.
	ResetTodayEarned(ctx context.Context, boundary time.Time) (int64, error)
}

// TransactionStore persists the append-only activity trail.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, act ledger.Activity) (ledger.Activity, error)
	ListTransactions(ctx context.Context, accountID string, limit int) ([]ledger.Activity, error)
}

// WithdrawalStore persists withdrawal attempts.
type WithdrawalStore interface {
	CreateWithdrawal(ctx context.Context, rec withdrawal.Record) (withdrawal.Record, error)
	ListWithdrawals(ctx context.Context, accountID string) ([]withdrawal.Record, error)
}
