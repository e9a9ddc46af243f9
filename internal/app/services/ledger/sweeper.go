package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cryptozy/earnd/internal/app/storage"
	"github.com/cryptozy/earnd/pkg/logger"
)

// Sweeper zeroes every profile's daily earnings counter at UTC midnight.
// Sessions also reset lazily on load; the sweep keeps dormant rows honest.
type Sweeper struct {
	profiles storage.ProfileStore
	logger   *logger.Logger
	cron     *cron.Cron
	running  bool
}

// NewSweeper creates the daily reset job.
func NewSweeper(profiles storage.ProfileStore, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("ledger-sweeper")
	}
	return &Sweeper{
		profiles: profiles,
		logger:   log,
		cron:     cron.New(cron.WithLocation(time.UTC)),
	}
}

// Name implements system.Service.
func (sw *Sweeper) Name() string { return "ledger-sweeper" }

// Start schedules the midnight sweep.
func (sw *Sweeper) Start(ctx context.Context) error {
	if sw.running {
		return errors.New("sweeper already running")
	}
	if _, err := sw.cron.AddFunc("@midnight", sw.sweep); err != nil {
		return fmt.Errorf("schedule daily reset: %w", err)
	}
	sw.cron.Start()
	sw.running = true
	sw.logger.Info("daily reset sweeper started")
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep.
func (sw *Sweeper) Stop(ctx context.Context) error {
	if !sw.running {
		return nil
	}
	sw.running = false
	stopCtx := sw.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sweeper shutdown: %w", ctx.Err())
	}
}

func (sw *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	boundary := time.Now().UTC().Truncate(24 * time.Hour)
	n, err := sw.profiles.ResetTodayEarned(ctx, boundary)
	if err != nil {
		sw.logger.WithError(err).Warn("daily reset sweep failed")
		return
	}
	sw.logger.WithField("profiles", n).Info("daily earnings reset")
}
