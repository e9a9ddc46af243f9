package mining

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	svcledger "github.com/cryptozy/earnd/internal/app/services/ledger"
	"github.com/cryptozy/earnd/pkg/logger"
)

const (
	rewardInterval = 3 * time.Second
	flushInterval  = 15 * time.Second

	rewardMin = 1
	rewardMax = 3

	hashRateMin = 15
	hashRateMax = 45
)

// State is a point-in-time view of one account's miner.
type State struct {
	Active      bool    `json:"active"`
	HashRate    float64 `json:"hash_rate"`
	Accumulated int64   `json:"accumulated"`
}

// Controller runs the simulated miner for a single account session. Rewards
// accumulate in memory and are flushed to the ledger periodically, plus a
// final synchronous flush when mining turns off.
type Controller struct {
	session *svcledger.Session
	logger  *logger.Logger
	onFlush func()

	// randInt returns a value in [min, max]; swapped out in tests.
	randInt func(min, max int) int

	mu          sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	active      bool
	hashRate    float64
	accumulated int64
}

// NewController creates a miner bound to a ledger session.
func NewController(session *svcledger.Session, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.NewDefault("mining")
	}
	return &Controller{
		session: session,
		logger:  log,
		randInt: func(min, max int) int { return min + rand.Intn(max-min+1) },
	}
}

// SetFlushHook registers a callback invoked after every ledger flush.
func (c *Controller) SetFlushHook(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFlush = fn
}

// State reports the miner's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Active: c.active, HashRate: c.hashRate, Accumulated: c.accumulated}
}

// Toggle flips the miner on or off and returns the resulting state. Turning
// the miner off flushes the accumulator before returning, so the caller sees
// the credited balance.
func (c *Controller) Toggle(ctx context.Context) (State, error) {
	c.mu.Lock()
	if c.active {
		cancel := c.cancel
		c.active = false
		c.mu.Unlock()

		cancel()
		c.wg.Wait()

		if err := c.flush(); err != nil {
			return c.State(), fmt.Errorf("flush mining rewards: %w", err)
		}
		return c.State(), nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.active = true
	c.hashRate = float64(hashRateMin) + rand.Float64()*float64(hashRateMax-hashRateMin)
	c.accumulated = 0
	c.wg.Add(1)
	go c.run(runCtx)
	state := State{Active: true, HashRate: c.hashRate}
	c.mu.Unlock()

	c.logger.WithField("account", c.session.AccountID()).Info("mining activated")
	return state, nil
}

// Shutdown stops an active miner and flushes, for server drain.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.active = false
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	return c.flush()
}

func (c *Controller) run(ctx context.Context) {
	defer c.wg.Done()

	reward := time.NewTicker(rewardInterval)
	defer reward.Stop()
	flush := time.NewTicker(flushInterval)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reward.C:
			c.tick(int64(c.randInt(rewardMin, rewardMax)))
		case <-flush.C:
			if err := c.flush(); err != nil {
				c.logger.WithError(err).Warn("periodic mining flush failed")
			}
		}
	}
}

// tick applies one reward to the live balance and the un-flushed
// accumulator, and resamples the cosmetic hash rate.
func (c *Controller) tick(reward int64) {
	c.mu.Lock()
	c.accumulated += reward
	c.hashRate = float64(hashRateMin) + rand.Float64()*float64(hashRateMax-hashRateMin)
	c.mu.Unlock()

	c.session.CreditMiningTick(reward)
}

// flush settles the accumulator: rewards are already on the in-memory
// balance, so this records the aggregated activity and queues persistence.
// A zero accumulator is a no-op.
func (c *Controller) flush() error {
	c.mu.Lock()
	amount := c.accumulated
	c.accumulated = 0
	hook := c.onFlush
	c.mu.Unlock()

	if amount <= 0 {
		return nil
	}
	if err := c.session.FlushMining(amount, "Mining session reward"); err != nil {
		c.mu.Lock()
		c.accumulated += amount
		c.mu.Unlock()
		return err
	}
	if hook != nil {
		hook()
	}
	return nil
}
