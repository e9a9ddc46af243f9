package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/cryptozy/earnd/internal/app/domain/ledger"
	"github.com/cryptozy/earnd/internal/app/domain/withdrawal"
	"github.com/cryptozy/earnd/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.ProfileStore = (*Store)(nil)
var _ storage.TransactionStore = (*Store)(nil)
var _ storage.WithdrawalStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- ProfileStore -----------------------------------------------------------

const profileColumns = `id, username, balance_satoshi, total_earned, today_earned,
	ads_watched, links_visited, offers_completed, mining_earned,
	referral_code, referral_count, referral_earnings,
	level, xp, xp_to_next, referred_by, created_at, updated_at`

func (s *Store) CreateProfile(ctx context.Context, p ledger.Profile) (ledger.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, p.ID, p.Username, p.BalanceSatoshi, p.TotalEarned, p.TodayEarned,
		p.AdsWatched, p.LinksVisited, p.OffersCompleted, p.MiningEarned,
		p.ReferralCode, p.ReferralCount, p.ReferralEarnings,
		p.Level, p.XP, p.XPToNext, nullString(p.ReferredBy), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return ledger.Profile{}, err
	}
	return p, nil
}

func (s *Store) UpdateProfile(ctx context.Context, p ledger.Profile) (ledger.Profile, error) {
	p.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET balance_satoshi = $2, total_earned = $3, today_earned = $4,
		    ads_watched = $5, links_visited = $6, offers_completed = $7,
		    mining_earned = $8, referral_count = $9, referral_earnings = $10,
		    level = $11, xp = $12, xp_to_next = $13, updated_at = $14
		WHERE id = $1
	`, p.ID, p.BalanceSatoshi, p.TotalEarned, p.TodayEarned,
		p.AdsWatched, p.LinksVisited, p.OffersCompleted,
		p.MiningEarned, p.ReferralCount, p.ReferralEarnings,
		p.Level, p.XP, p.XPToNext, p.UpdatedAt)
	if err != nil {
		return ledger.Profile{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ledger.Profile{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (ledger.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE id = $1
	`, id)

	var (
		p          ledger.Profile
		referredBy sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Username, &p.BalanceSatoshi, &p.TotalEarned, &p.TodayEarned,
		&p.AdsWatched, &p.LinksVisited, &p.OffersCompleted, &p.MiningEarned,
		&p.ReferralCode, &p.ReferralCount, &p.ReferralEarnings,
		&p.Level, &p.XP, &p.XPToNext, &referredBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return ledger.Profile{}, err
	}
	p.ReferredBy = referredBy.String
	return p, nil
}

func (s *Store) ResetTodayEarned(ctx context.Context, boundary time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET today_earned = 0
		WHERE today_earned <> 0 AND updated_at < $1
	`, boundary.UTC())
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// --- TransactionStore -------------------------------------------------------

func (s *Store) CreateTransaction(ctx context.Context, act ledger.Activity) (ledger.Activity, error) {
	if act.ID == "" {
		act.ID = uuid.NewString()
	}
	if act.CreatedAt.IsZero() {
		act.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, type, description, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, act.ID, act.AccountID, string(act.Kind), act.Description, act.Amount, act.CreatedAt)
	if err != nil {
		return ledger.Activity{}, err
	}
	return act, nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID string, limit int) ([]ledger.Activity, error) {
	if limit <= 0 {
		limit = ledger.ActivityLogCap
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, description, amount, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Activity
	for rows.Next() {
		var (
			act  ledger.Activity
			kind string
		)
		if err := rows.Scan(&act.ID, &act.AccountID, &kind, &act.Description, &act.Amount, &act.CreatedAt); err != nil {
			return nil, err
		}
		act.Kind = ledger.ActivityKind(kind)
		result = append(result, act)
	}
	return result, rows.Err()
}

// --- WithdrawalStore --------------------------------------------------------

func (s *Store) CreateWithdrawal(ctx context.Context, rec withdrawal.Record) (withdrawal.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var processedAt sql.NullTime
	if rec.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: rec.ProcessedAt.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO withdrawals (id, user_id, method, amount, fee, net_amount, address, status, tx_hash, processed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rec.ID, rec.AccountID, rec.Method, rec.Amount, rec.Fee, rec.NetAmount,
		rec.Address, string(rec.Status), nullString(rec.TxHash), processedAt, rec.CreatedAt)
	if err != nil {
		return withdrawal.Record{}, err
	}
	return rec, nil
}

func (s *Store) ListWithdrawals(ctx context.Context, accountID string) ([]withdrawal.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, method, amount, fee, net_amount, address, status, tx_hash, processed_at, created_at
		FROM withdrawals
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []withdrawal.Record
	for rows.Next() {
		var (
			rec         withdrawal.Record
			status      string
			txHash      sql.NullString
			processedAt sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Method, &rec.Amount, &rec.Fee, &rec.NetAmount,
			&rec.Address, &status, &txHash, &processedAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Status = withdrawal.Status(status)
		rec.TxHash = txHash.String
		if processedAt.Valid {
			t := processedAt.Time
			rec.ProcessedAt = &t
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
