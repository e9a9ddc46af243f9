package withdraw

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cryptozy/earnd/internal/app/domain/withdrawal"
	svcledger "github.com/cryptozy/earnd/internal/app/services/ledger"
	"github.com/cryptozy/earnd/internal/app/services/session"
	"github.com/cryptozy/earnd/internal/app/storage"
	"github.com/cryptozy/earnd/pkg/logger"
)

const minAddressLength = 10

// Request is one withdrawal attempt.
type Request struct {
	Token   string
	Method  string
	Amount  int64
	Address string
	Proof   string
}

// Result is returned for a completed payout.
type Result struct {
	Message    string
	TxHash     string
	Amount     int64
	Fee        int64
	NetAmount  int64
	Currency   string
	NewBalance int64
}

// Options tunes the service.
type Options struct {
	// Verifier, when set, makes a verification proof mandatory.
	Verifier ProofVerifier
	// ThrottleInterval is the minimum spacing between attempts per account.
	// Zero disables throttling.
	ThrottleInterval time.Duration
}

// Service runs the withdrawal pipeline: validate, authenticate, check proof,
// check balance, submit to the payout processor, then settle the ledger.
type Service struct {
	ledger      *svcledger.Service
	sessions    *session.Service
	profiles    storage.ProfileStore
	withdrawals storage.WithdrawalStore
	processor   Processor
	verifier    ProofVerifier
	throttle    time.Duration
	logger      *logger.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewService wires the withdrawal pipeline.
func NewService(ledgerSvc *svcledger.Service, sessions *session.Service, profiles storage.ProfileStore, withdrawals storage.WithdrawalStore, processor Processor, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("withdraw")
	}
	return &Service{
		ledger:      ledgerSvc,
		sessions:    sessions,
		profiles:    profiles,
		withdrawals: withdrawals,
		processor:   processor,
		verifier:    opts.Verifier,
		throttle:    opts.ThrottleInterval,
		logger:      log,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// Submit runs one withdrawal end to end. Failures before the processor call
// leave no trace in the ledger; a processor rejection records a failed
// withdrawal but debits nothing. Only a confirmed payout moves money.
func (s *Service) Submit(ctx context.Context, req Request) (Result, error) {
	// Validating.
	if req.Amount <= 0 {
		return Result{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if len(req.Address) < minAddressLength {
		return Result{}, fmt.Errorf("%w: address is too short", ErrInvalidInput)
	}
	method, ok := withdrawal.LookupMethod(req.Method)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownMethod, req.Method)
	}

	// Authenticating.
	accountID, err := s.sessions.Resolve(req.Token)
	if err != nil {
		return Result{}, ErrUnauthorized
	}

	// ProofChecking.
	if s.verifier != nil {
		if req.Proof == "" {
			return Result{}, ErrProofRequired
		}
		passed, err := s.verifier.Verify(ctx, req.Proof)
		if err != nil {
			return Result{}, fmt.Errorf("check proof: %w", err)
		}
		if !passed {
			return Result{}, ErrProofFailed
		}
	}

	if !s.allow(accountID) {
		return Result{}, ErrThrottled
	}

	// BalanceChecking. The durable balance is authoritative here; the
	// in-memory session can run ahead of it.
	if req.Amount < method.Minimum {
		return Result{}, fmt.Errorf("%w: minimum for %s is %d", ErrBelowMinimum, method.ID, method.Minimum)
	}
	net := req.Amount - method.Fee
	if net <= 0 {
		return Result{}, fmt.Errorf("%w: fee is %d", ErrAmountTooSmall, method.Fee)
	}
	profile, err := s.profiles.GetProfile(ctx, accountID)
	if err != nil {
		return Result{}, fmt.Errorf("load profile: %w", err)
	}
	if profile.BalanceSatoshi < req.Amount {
		return Result{}, ErrInsufficientBalance
	}

	// Submitting.
	receipt, err := s.processor.Send(ctx, net, req.Address, method.Currency)
	if err != nil {
		s.recordFailure(accountID, method, req, net)
		var procErr *ProcessorError
		if errors.As(err, &procErr) {
			return Result{}, procErr
		}
		return Result{}, fmt.Errorf("submit payout: %w", err)
	}

	// Settling. The debit is synchronous so a success response implies a
	// durable balance.
	sess, err := s.ledger.Open(ctx, accountID)
	if err != nil {
		return Result{}, fmt.Errorf("open ledger session: %w", err)
	}
	snapshot, err := sess.Debit(ctx, req.Amount, fmt.Sprintf("Withdrawal via %s", method.ID))
	if err != nil {
		s.logger.WithError(err).
			WithField("account", accountID).
			WithField("tx_hash", receipt.TxHash).
			Warn("payout sent but ledger debit failed")
		return Result{}, fmt.Errorf("settle withdrawal: %w", err)
	}

	now := time.Now().UTC()
	if _, err := s.withdrawals.CreateWithdrawal(ctx, withdrawal.Record{
		AccountID:   accountID,
		Method:      method.ID,
		Amount:      req.Amount,
		Fee:         method.Fee,
		NetAmount:   net,
		Address:     req.Address,
		Status:      withdrawal.StatusCompleted,
		TxHash:      receipt.TxHash,
		ProcessedAt: &now,
	}); err != nil {
		s.logger.WithError(err).WithField("account", accountID).
			Warn("completed withdrawal not recorded")
	}

	s.logger.WithField("account", accountID).
		WithField("method", method.ID).
		WithField("net_amount", net).
		Info("withdrawal completed")

	return Result{
		Message:    fmt.Sprintf("Sent %d satoshi via %s", net, method.ID),
		TxHash:     receipt.TxHash,
		Amount:     req.Amount,
		Fee:        method.Fee,
		NetAmount:  net,
		Currency:   method.Currency,
		NewBalance: snapshot.BalanceSatoshi,
	}, nil
}

// History lists an account's withdrawals, newest first.
func (s *Service) History(ctx context.Context, token string) ([]withdrawal.Record, error) {
	accountID, err := s.sessions.Resolve(token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return s.withdrawals.ListWithdrawals(ctx, accountID)
}

func (s *Service) recordFailure(accountID string, method withdrawal.Method, req Request, net int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.withdrawals.CreateWithdrawal(ctx, withdrawal.Record{
		AccountID: accountID,
		Method:    method.ID,
		Amount:    req.Amount,
		Fee:       method.Fee,
		NetAmount: net,
		Address:   req.Address,
		Status:    withdrawal.StatusFailed,
	}); err != nil {
		s.logger.WithError(err).WithField("account", accountID).
			Warn("failed withdrawal not recorded")
	}
}

func (s *Service) allow(accountID string) bool {
	if s.throttle <= 0 {
		return true
	}
	s.mu.Lock()
	limiter, ok := s.limiters[accountID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(s.throttle), 1)
		s.limiters[accountID] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}
