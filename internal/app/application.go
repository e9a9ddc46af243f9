package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cryptozy/earnd/internal/app/domain/ledger"
	"github.com/cryptozy/earnd/internal/app/metrics"
	ledgersvc "github.com/cryptozy/earnd/internal/app/services/ledger"
	"github.com/cryptozy/earnd/internal/app/services/mining"
	"github.com/cryptozy/earnd/internal/app/services/session"
	"github.com/cryptozy/earnd/internal/app/services/withdraw"
	"github.com/cryptozy/earnd/internal/app/storage"
	"github.com/cryptozy/earnd/internal/app/storage/memory"
	"github.com/cryptozy/earnd/internal/app/system"
	"github.com/cryptozy/earnd/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Profiles     storage.ProfileStore
	Transactions storage.TransactionStore
	Withdrawals  storage.WithdrawalStore
}

// Options carries the secrets and tunables the application needs.
type Options struct {
	SessionSigningKey []byte
	SessionTTL        time.Duration

	FaucetPayAPIKey string
	// HCaptchaSecret enables proof checking on withdrawals when set.
	HCaptchaSecret string

	// Processor overrides the FaucetPay client, for tests.
	Processor withdraw.Processor

	WithdrawThrottle time.Duration
	WriteQueueSize   int
}

// Application ties the services together and manages their lifecycle.
type Application struct {
	manager  *system.Manager
	log      *logger.Logger
	profiles storage.ProfileStore

	Ledger   *ledgersvc.Service
	Sessions *session.Service
	Withdraw *withdraw.Service

	minersMu sync.Mutex
	miners   map[string]*mining.Controller
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Profiles == nil {
		stores.Profiles = mem
	}
	if stores.Transactions == nil {
		stores.Transactions = mem
	}
	if stores.Withdrawals == nil {
		stores.Withdrawals = mem
	}

	sessions, err := session.New(opts.SessionSigningKey, opts.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("configure sessions: %w", err)
	}

	writer := ledgersvc.NewWriteback(stores.Profiles, stores.Transactions, opts.WriteQueueSize, log)
	ledgerService := ledgersvc.NewService(stores.Profiles, stores.Transactions, writer, log)
	sweeper := ledgersvc.NewSweeper(stores.Profiles, log)

	processor := opts.Processor
	if processor == nil {
		processor = withdraw.NewFaucetPay(opts.FaucetPayAPIKey, log)
	}
	withdrawOpts := withdraw.Options{ThrottleInterval: opts.WithdrawThrottle}
	if opts.HCaptchaSecret != "" {
		withdrawOpts.Verifier = withdraw.NewHCaptcha(opts.HCaptchaSecret)
	} else {
		log.Warn("HCAPTCHA_SECRET_KEY not set; withdrawal proof checking disabled")
	}
	withdrawService := withdraw.NewService(ledgerService, sessions, stores.Profiles, stores.Withdrawals, processor, withdrawOpts, log)

	manager := system.NewManager()
	for _, svc := range []system.Service{writer, sweeper} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:  manager,
		log:      log,
		profiles: stores.Profiles,
		Ledger:   ledgerService,
		Sessions: sessions,
		Withdraw: withdrawService,
		miners:   make(map[string]*mining.Controller),
	}, nil
}

// Register creates a profile, issues its session token and, when the new
// account names a referrer, pays the referrer a bonus.
func (a *Application) Register(ctx context.Context, username, referredBy string, bonus int64) (ledger.Profile, string, error) {
	profile, err := a.profiles.CreateProfile(ctx, ledger.Profile{
		Username:     username,
		ReferralCode: strings.ToUpper(uuid.NewString()[:8]),
		ReferredBy:   referredBy,
	})
	if err != nil {
		return ledger.Profile{}, "", fmt.Errorf("create profile: %w", err)
	}

	token, err := a.Sessions.Issue(profile.ID)
	if err != nil {
		return ledger.Profile{}, "", fmt.Errorf("issue session: %w", err)
	}

	if referredBy != "" && bonus > 0 {
		if sess, err := a.Ledger.Open(ctx, referredBy); err == nil {
			if _, err := sess.CreditReferral(bonus, fmt.Sprintf("Referral bonus for %s", username)); err != nil {
				a.log.WithError(err).Warn("referral bonus not credited")
			}
		} else {
			a.log.WithField("referrer", referredBy).Warn("referrer not found; bonus skipped")
		}
	}
	return profile, token, nil
}

// Miner returns the mining controller for an account, creating it on first
// use. Controllers are bound to the account's shared ledger session.
func (a *Application) Miner(ctx context.Context, accountID string) (*mining.Controller, error) {
	a.minersMu.Lock()
	defer a.minersMu.Unlock()

	if ctrl, ok := a.miners[accountID]; ok {
		return ctrl, nil
	}
	sess, err := a.Ledger.Open(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("open ledger session: %w", err)
	}
	ctrl := mining.NewController(sess, a.log)
	ctrl.SetFlushHook(metrics.RecordMiningFlush)
	a.miners[accountID] = ctrl
	return ctrl, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop shuts down active miners, flushing their accumulators, then stops all
// services.
func (a *Application) Stop(ctx context.Context) error {
	a.minersMu.Lock()
	miners := make([]*mining.Controller, 0, len(a.miners))
	for _, ctrl := range a.miners {
		miners = append(miners, ctrl)
	}
	a.minersMu.Unlock()

	for _, ctrl := range miners {
		if err := ctrl.Shutdown(ctx); err != nil {
			a.log.WithError(err).Warn("mining shutdown flush failed")
		}
	}
	return a.manager.Stop(ctx)
}
