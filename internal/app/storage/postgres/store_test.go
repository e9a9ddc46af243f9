package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/cryptozy/earnd/internal/app/domain/ledger"
	"github.com/cryptozy/earnd/internal/app/domain/withdrawal"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestCreateProfileAssignsDefaults(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO profiles`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := store.CreateProfile(context.Background(), ledger.Profile{Username: "miner"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, 1, created.Level)
	require.Equal(t, int64(ledger.InitialXPToNext), created.XPToNext)
	require.False(t, created.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProfileMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE profiles`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.UpdateProfile(context.Background(), ledger.Profile{ID: "missing"})
	require.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfileScansNullReferrer(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "username", "balance_satoshi", "total_earned", "today_earned",
		"ads_watched", "links_visited", "offers_completed", "mining_earned",
		"referral_code", "referral_count", "referral_earnings",
		"level", "xp", "xp_to_next", "referred_by", "created_at", "updated_at",
	}).AddRow("u1", "miner", int64(100000), int64(150000), int64(2500),
		12, 5, 1, int64(400),
		"REF123", 2, int64(600),
		5, int64(950), int64(1000), nil, now, now)

	mock.ExpectQuery(`SELECT .+ FROM profiles`).
		WithArgs("u1").
		WillReturnRows(rows)

	p, err := store.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, int64(100000), p.BalanceSatoshi)
	require.Equal(t, "", p.ReferredBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetTodayEarnedReportsRowCount(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE profiles`).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := store.ResetTodayEarned(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, int64(7), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTransactionsOrdersNewestFirst(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "user_id", "type", "description", "amount", "created_at"}).
		AddRow("t2", "u1", "mining", "Mining session", int64(42), now).
		AddRow("t1", "u1", "ad", "Watched ad", int64(25), now.Add(-time.Minute))

	mock.ExpectQuery(`SELECT .+ FROM transactions`).
		WithArgs("u1", 50).
		WillReturnRows(rows)

	acts, err := store.ListTransactions(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	require.Equal(t, ledger.KindMining, acts[0].Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithdrawalPersistsNulls(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO withdrawals`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := store.CreateWithdrawal(context.Background(), withdrawal.Record{
		AccountID: "u1",
		Method:    "btc",
		Amount:    100000,
		Fee:       1000,
		NetAmount: 99000,
		Address:   "bc1qexampleaddress",
		Status:    withdrawal.StatusFailed,
	})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	require.False(t, rec.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListWithdrawalsScansProcessedAt(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "method", "amount", "fee", "net_amount",
		"address", "status", "tx_hash", "processed_at", "created_at",
	}).AddRow("w1", "u1", "btc", int64(100000), int64(1000), int64(99000),
		"bc1qexampleaddress", "completed", "abc123", now, now)

	mock.ExpectQuery(`SELECT .+ FROM withdrawals`).
		WithArgs("u1").
		WillReturnRows(rows)

	recs, err := store.ListWithdrawals(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, withdrawal.StatusCompleted, recs[0].Status)
	require.NotNil(t, recs[0].ProcessedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
