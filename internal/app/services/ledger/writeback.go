package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cryptozy/earnd/internal/app/domain/ledger"
	"github.com/cryptozy/earnd/internal/app/storage"
	"github.com/cryptozy/earnd/pkg/logger"
)

const (
	defaultQueueSize  = 256
	writeAttempts     = 3
	writeRetryBackoff = 250 * time.Millisecond
)

// ErrQueueFull is returned when the write-behind queue cannot accept more
// mutations.
var ErrQueueFull = errors.New("write-behind queue is full")

type writeJob struct {
	profile  ledger.Profile
	activity ledger.Activity
	seq      int64
}

// Writeback persists ledger mutations asynchronously. Credits tolerate a
// short persistence lag; each queued activity carries a pre-assigned id so a
// retried insert cannot double-record. Snapshots are sequenced per account at
// submission time, and persistence skips any snapshot older than one already
// written, so a queued credit can never roll the durable balance back past a
// later synchronous debit.
type Writeback struct {
	profiles storage.ProfileStore
	txs      storage.TransactionStore
	logger   *logger.Logger
	jobs     chan writeJob

	seqMu sync.Mutex
	seqs  map[string]int64

	// persistMu serializes store writes; applied tracks the newest snapshot
	// sequence persisted per account and is only touched under it.
	persistMu sync.Mutex
	applied   map[string]int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewWriteback creates the write-behind worker. queueSize <= 0 selects the
// default capacity.
func NewWriteback(profiles storage.ProfileStore, txs storage.TransactionStore, queueSize int, log *logger.Logger) *Writeback {
	if log == nil {
		log = logger.NewDefault("ledger-writeback")
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Writeback{
		profiles: profiles,
		txs:      txs,
		logger:   log,
		jobs:     make(chan writeJob, queueSize),
		seqs:     make(map[string]int64),
		applied:  make(map[string]int64),
	}
}

// Name implements system.Service.
func (w *Writeback) Name() string { return "ledger-writeback" }

// Start launches the background worker.
func (w *Writeback) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("writeback already running")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go w.run(runCtx)

	w.logger.WithField("queue_size", cap(w.jobs)).Info("ledger writeback started")
	return nil
}

// Stop drains the queue and stops the worker.
func (w *Writeback) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.cancel()
	w.running = false
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("writeback shutdown: %w", ctx.Err())
	}
}

// Enqueue queues a mutation for asynchronous persistence. It never blocks;
// when the queue is full the caller gets ErrQueueFull.
func (w *Writeback) Enqueue(profile ledger.Profile, act ledger.Activity) error {
	if act.ID == "" {
		act.ID = uuid.NewString()
	}
	select {
	case w.jobs <- writeJob{profile: profile, activity: act, seq: w.nextSeq(profile.ID)}:
		return nil
	default:
		return ErrQueueFull
	}
}

// EnqueueProfile queues a profile snapshot with no activity row. Used for
// corrective writes, such as zeroing stale daily earnings on session load.
func (w *Writeback) EnqueueProfile(profile ledger.Profile) error {
	select {
	case w.jobs <- writeJob{profile: profile, seq: w.nextSeq(profile.ID)}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Write persists a mutation synchronously, bypassing the queue. Used for
// debits, where durability must precede the success response. The snapshot
// takes a sequence like any queued job, so credits still sitting in the
// queue cannot later overwrite it.
func (w *Writeback) Write(ctx context.Context, profile ledger.Profile, act ledger.Activity) error {
	if act.ID == "" {
		act.ID = uuid.NewString()
	}
	return w.persist(ctx, writeJob{profile: profile, activity: act, seq: w.nextSeq(profile.ID)})
}

// nextSeq orders snapshots for one account. Callers submit mutations for an
// account under the session lock, so assignment order matches mutation order.
func (w *Writeback) nextSeq(accountID string) int64 {
	w.seqMu.Lock()
	defer w.seqMu.Unlock()
	w.seqs[accountID]++
	return w.seqs[accountID]
}

func (w *Writeback) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case job := <-w.jobs:
			w.persistWithRetry(job)
		}
	}
}

// drain flushes whatever is still queued at shutdown.
func (w *Writeback) drain() {
	for {
		select {
		case job := <-w.jobs:
			w.persistWithRetry(job)
		default:
			return
		}
	}
}

func (w *Writeback) persistWithRetry(job writeJob) {
	var err error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = w.persist(ctx, job)
		cancel()
		if err == nil {
			return
		}
		if attempt < writeAttempts {
			time.Sleep(writeRetryBackoff * time.Duration(attempt))
		}
	}
	w.logger.WithError(err).
		WithField("account", job.profile.ID).
		WithField("activity", job.activity.ID).
		Warn("dropping ledger mutation after retries")
}

func (w *Writeback) persist(ctx context.Context, job writeJob) error {
	w.persistMu.Lock()
	defer w.persistMu.Unlock()

	// A snapshot older than one already written is superseded; its activity
	// row (if any) is still recorded.
	if job.seq > w.applied[job.profile.ID] {
		if _, err := w.profiles.UpdateProfile(ctx, job.profile); err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		w.applied[job.profile.ID] = job.seq
	}
	if job.activity.ID != "" {
		if _, err := w.txs.CreateTransaction(ctx, job.activity); err != nil {
			return fmt.Errorf("record activity: %w", err)
		}
	}
	return nil
}
