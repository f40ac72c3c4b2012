// Package health runs periodic self-checks on the ledger: database
// reachability and event log chain integrity. The liveness endpoint reports
// the last observed state instead of probing on every request, so a cheap
// /healthz cannot be used to hammer the chain verifier.
package health

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/h2trust/hydroledger/internal/eventlog"
	"go.uber.org/zap"
)

// Config holds self-check configuration.
type Config struct {
	CheckInterval time.Duration
	CheckTimeout  time.Duration
	FailThreshold int
}

// Pinger reports storage reachability. Satisfied by pgxpool.Pool; nil means
// no external storage to probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MetricsRecordFunc is an optional callback for recording check results.
type MetricsRecordFunc func(success bool)

// Status is a point-in-time snapshot of the last self-check.
type Status struct {
	Healthy             bool      `json:"healthy"`
	LastChecked         time.Time `json:"last_checked"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// Checker runs the periodic self-check loop.
type Checker struct {
	log    eventlog.Log
	db     Pinger
	cfg    Config
	logger *zap.Logger

	onMetrics MetricsRecordFunc

	mu        sync.Mutex
	failCount int
	lastErr   string
	lastCheck time.Time
}

// New creates a Checker. db may be nil when the store has no external
// backend to probe.
func New(log eventlog.Log, db Pinger, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.CheckTimeout == 0 {
		cfg.CheckTimeout = 10 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Checker{log: log, db: db, cfg: cfg, logger: logger}
}

// SetMetricsRecord configures the metrics recording callback.
func (c *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	c.onMetrics = fn
}

// Start runs the self-check loop until quit is signalled. An initial check
// runs immediately so Status is populated before the first tick.
func (c *Checker) Start(quit <-chan os.Signal) {
	c.runOnce()

	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runOnce()
		case <-quit:
			return
		}
	}
}

// CheckNow performs one self-check: storage ping, then full chain
// verification. The first failure wins.
func (c *Checker) CheckNow(ctx context.Context) error {
	if c.db != nil {
		if err := c.db.Ping(ctx); err != nil {
			return err
		}
	}
	return c.log.Verify(ctx)
}

// Status returns the snapshot recorded by the most recent check.
func (c *Checker) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Healthy:             c.lastErr == "" && !c.lastCheck.IsZero(),
		LastChecked:         c.lastCheck,
		ConsecutiveFailures: c.failCount,
		LastError:           c.lastErr,
	}
}

func (c *Checker) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CheckTimeout)
	err := c.CheckNow(ctx)
	cancel()

	if c.onMetrics != nil {
		c.onMetrics(err == nil)
	}

	c.mu.Lock()
	c.lastCheck = time.Now().UTC()
	prev := c.failCount
	if err != nil {
		c.failCount++
		c.lastErr = err.Error()
	} else {
		c.failCount = 0
		c.lastErr = ""
	}
	count := c.failCount
	c.mu.Unlock()

	switch {
	case err == nil && prev >= c.cfg.FailThreshold:
		c.logger.Info("health: recovered")
	case err != nil && count == c.cfg.FailThreshold:
		// Log the degradation exactly once, at the threshold.
		c.logger.Warn("health: degraded",
			zap.Int("fail_count", count),
			zap.Error(err),
		)
	}
}
