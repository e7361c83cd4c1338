/*
reloader.go - Periodic rate table reload

PURPOSE:
  Payroll staff publish next year's table (or a mid-year re-issue) by
  dropping a YAML or JSON file into the rate table directory. The reloader
  re-reads that directory on a ticker so the running server picks the file
  up without a restart.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Loads the directory immediately on start, then on every tick
  - A broken file is logged and skipped; the other files still load and
    tables already registered stay
  - Registering replaces the year's pointer, so in-flight calculations
    keep the table they started with

CONFIGURATION:
  - CheckInterval: How often to check (default: 5 minutes)
  - Enabled: Whether reloader is active (default: true)

USAGE:
  reloader := NewRateTableReloader(registry, "./rates", log)
  reloader.Start()
  // ... later
  reloader.Stop()

SEE ALSO:
  - ratetable/registry.go: LoadDir
  - cmd/server/main.go: RATE_TABLE_DIR
*/
package api

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-engine/ratetable"
)

// RateTableReloader periodically loads a directory of rate documents.
type RateTableReloader struct {
	Registry      *ratetable.Registry
	Dir           string
	CheckInterval time.Duration
	Enabled       bool
	Log           *zap.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRateTableReloader creates a new reloader.
func NewRateTableReloader(registry *ratetable.Registry, dir string, log *zap.Logger) *RateTableReloader {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateTableReloader{
		Registry:      registry,
		Dir:           dir,
		CheckInterval: 5 * time.Minute,
		Enabled:       dir != "",
		Log:           log,
	}
}

// Start begins the reloader.
func (rr *RateTableReloader) Start() {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if !rr.Enabled {
		rr.Log.Info("rate table reloader disabled")
		return
	}
	if rr.ticker != nil {
		return
	}

	rr.ticker = time.NewTicker(rr.CheckInterval)
	rr.stop = make(chan struct{})
	rr.wg.Add(1)

	go rr.run(rr.ticker.C, rr.stop)

	rr.Log.Info("rate table reloader started",
		zap.String("dir", rr.Dir),
		zap.Duration("interval", rr.CheckInterval),
	)
}

// Stop stops the reloader and waits for an in-progress reload.
func (rr *RateTableReloader) Stop() {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if rr.ticker != nil {
		rr.ticker.Stop()
		close(rr.stop)
		rr.wg.Wait()
		rr.ticker = nil
		rr.Log.Info("rate table reloader stopped")
	}
}

func (rr *RateTableReloader) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer rr.wg.Done()

	// Run immediately on start
	rr.Reload()

	for {
		select {
		case <-tick:
			rr.Reload()
		case <-stop:
			return
		}
	}
}

// Reload loads the directory once. Errors are logged, not returned.
func (rr *RateTableReloader) Reload() {
	if err := rr.Registry.LoadDir(rr.Dir); err != nil {
		rr.Log.Error("rate table reload failed", zap.String("dir", rr.Dir), zap.Error(err))
		return
	}
	rr.Log.Debug("rate tables reloaded", zap.Ints("years", rr.Registry.Years()))
}
