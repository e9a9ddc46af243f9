package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cryptozy/earnd/internal/app/domain/ledger"
	"github.com/cryptozy/earnd/internal/app/storage"
	"github.com/cryptozy/earnd/pkg/logger"
)

// Sentinel errors returned by session operations.
var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Service owns account sessions and the write-behind persistence queue.
type Service struct {
	profiles storage.ProfileStore
	txs      storage.TransactionStore
	writer   *Writeback
	logger   *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewService creates a ledger service on top of the given stores.
func NewService(profiles storage.ProfileStore, txs storage.TransactionStore, writer *Writeback, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ledger-service")
	}
	return &Service{
		profiles: profiles,
		txs:      txs,
		writer:   writer,
		logger:   log,
		sessions: make(map[string]*Session),
	}
}

// Open loads the account's profile and recent activity into a live session.
// Repeated opens for the same account return the same session so that
// concurrent surfaces (HTTP, mining) share one in-memory balance.
func (s *Service) Open(ctx context.Context, accountID string) (*Session, error) {
	s.mu.Lock()
	if sess, ok := s.sessions[accountID]; ok {
		s.mu.Unlock()
		return sess, nil
	}
	s.mu.Unlock()

	profile, err := s.profiles.GetProfile(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	activities, err := s.txs.ListTransactions(ctx, accountID, ledger.ActivityLogCap)
	if err != nil {
		return nil, fmt.Errorf("load activity: %w", err)
	}

	sess := &Session{
		svc:        s,
		profile:    profile,
		activities: activities,
	}
	if sess.resetDailyIfStale(time.Now().UTC()) {
		// The stored value is stale too; converge it without waiting for
		// the midnight sweep.
		if err := s.writer.EnqueueProfile(sess.profile); err != nil {
			s.logger.WithError(err).WithField("account", accountID).
				Warn("daily reset correction not queued")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[accountID]; ok {
		return existing, nil
	}
	s.sessions[accountID] = sess
	return sess, nil
}

// Close drops the in-memory session for an account. Pending writes for it
// remain queued.
func (s *Service) Close(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, accountID)
}

// Session is the live in-memory view of one account's ledger. All mutation
// goes through it so the balance, counters and activity log stay consistent.
type Session struct {
	svc *Service

	mu         sync.Mutex
	profile    ledger.Profile
	activities []ledger.Activity
}

// Snapshot returns a copy of the current profile state.
func (sess *Session) Snapshot() ledger.Profile {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.profile
}

// Activities returns a copy of the recent activity log, newest first.
func (sess *Session) Activities() []ledger.Activity {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]ledger.Activity, len(sess.activities))
	copy(out, sess.activities)
	return out
}

// AccountID returns the owning account id.
func (sess *Session) AccountID() string {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.profile.ID
}

// CreditActivity records an earn event of the given kind. The balance,
// lifetime totals, per-kind counters and XP advance together, then the
// mutation is handed to the write-behind queue.
func (sess *Session) CreditActivity(kind ledger.ActivityKind, amount int64, description string) (ledger.Profile, error) {
	if amount <= 0 {
		return ledger.Profile{}, ErrInvalidAmount
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.resetDailyIfStale(time.Now().UTC())

	p := &sess.profile
	p.BalanceSatoshi += amount
	p.TotalEarned += amount
	p.TodayEarned += amount

	var xpGain int64
	switch kind {
	case ledger.KindAd:
		p.AdsWatched++
		xpGain = ledger.XPPerAd
	case ledger.KindLink:
		p.LinksVisited++
		xpGain = ledger.XPPerLink
	case ledger.KindOffer:
		p.OffersCompleted++
		xpGain = ledger.XPPerOffer
	case ledger.KindMining:
		p.MiningEarned += amount
	}
	if xpGain > 0 {
		prog := ledger.Advance(p.XP, p.Level, p.XPToNext, xpGain)
		p.XP = prog.XP
		p.Level = prog.Level
		p.XPToNext = prog.XPToNext
	}

	act := sess.appendActivityLocked(kind, description, amount)
	sess.enqueueLocked(act)
	return *p, nil
}

// CreditMiningTick applies a mining micro-reward to the in-memory balance
// only. No activity is recorded and nothing is queued for persistence; the
// mining loop settles the applied total later through FlushMining.
func (sess *Session) CreditMiningTick(amount int64) ledger.Profile {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if amount <= 0 {
		return sess.profile
	}

	sess.resetDailyIfStale(time.Now().UTC())

	p := &sess.profile
	p.BalanceSatoshi += amount
	p.TotalEarned += amount
	p.TodayEarned += amount
	p.MiningEarned += amount
	return *p
}

// FlushMining records one aggregated mining activity for rewards already
// applied via CreditMiningTick, and queues the ledger state for persistence.
func (sess *Session) FlushMining(amount int64, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	act := sess.appendActivityLocked(ledger.KindMining, description, amount)
	sess.enqueueLocked(act)
	return nil
}

// CreditReferral credits referral earnings without touching XP.
func (sess *Session) CreditReferral(amount int64, description string) (ledger.Profile, error) {
	if amount <= 0 {
		return ledger.Profile{}, ErrInvalidAmount
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	p := &sess.profile
	p.BalanceSatoshi += amount
	p.TotalEarned += amount
	p.ReferralEarnings += amount
	p.ReferralCount++

	act := sess.appendActivityLocked(ledger.KindReferral, description, amount)
	sess.enqueueLocked(act)
	return *p, nil
}

// Debit removes funds for a settled withdrawal. Unlike credits the write is
// synchronous: money leaving the platform must be durable before the caller
// reports success.
func (sess *Session) Debit(ctx context.Context, amount int64, description string) (ledger.Profile, error) {
	if amount <= 0 {
		return ledger.Profile{}, ErrInvalidAmount
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.profile.BalanceSatoshi < amount {
		return ledger.Profile{}, ErrInsufficientBalance
	}
	sess.profile.BalanceSatoshi -= amount
	act := sess.appendActivityLocked(ledger.KindWithdraw, description, -amount)

	if err := sess.svc.writer.Write(ctx, sess.profile, act); err != nil {
		return ledger.Profile{}, fmt.Errorf("persist debit: %w", err)
	}
	return sess.profile, nil
}

func (sess *Session) appendActivityLocked(kind ledger.ActivityKind, description string, amount int64) ledger.Activity {
	act := ledger.Activity{
		AccountID:   sess.profile.ID,
		Kind:        kind,
		Description: description,
		Amount:      amount,
		CreatedAt:   time.Now().UTC(),
	}
	sess.activities = append([]ledger.Activity{act}, sess.activities...)
	if len(sess.activities) > ledger.ActivityLogCap {
		sess.activities = sess.activities[:ledger.ActivityLogCap]
	}
	return act
}

func (sess *Session) enqueueLocked(act ledger.Activity) {
	if err := sess.svc.writer.Enqueue(sess.profile, act); err != nil {
		sess.svc.logger.WithError(err).WithField("account", sess.profile.ID).
			Warn("write-behind queue rejected mutation")
	}
}

// resetDailyIfStale zeroes today's earnings when the profile was last touched
// before the current UTC day started, and reports whether it did. Callers
// hold sess.mu or own the session exclusively.
func (sess *Session) resetDailyIfStale(now time.Time) bool {
	boundary := now.Truncate(24 * time.Hour)
	if sess.profile.TodayEarned != 0 && sess.profile.UpdatedAt.Before(boundary) {
		sess.profile.TodayEarned = 0
		return true
	}
	return false
}
