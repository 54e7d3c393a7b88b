package claustra

import (
	"context"
	"sync"
	"time"

	"github.com/strataplan/claustra/internal/models"
	"github.com/strataplan/claustra/pkg/logger"
	"github.com/strataplan/claustra/pkg/metrics"
)

// DefaultReaperInterval is how often expired lock rows are swept away.
const DefaultReaperInterval = time.Minute

// Reaper physically deletes lock rows whose expiry has passed. Every read
// path already treats such rows as absent; the sweep only keeps the table
// from accumulating dead rows. It is safe to run one reaper per service
// instance since the delete is idempotent.
type Reaper struct {
	logger *logger.Logger

	repo     models.LockRepository
	interval time.Duration
	now      func() time.Time

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReaper creates a Reaper sweeping at the given interval. A non-positive
// interval falls back to DefaultReaperInterval.
func NewReaper(repo models.LockRepository, logger *logger.Logger, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultReaperInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reaper{
		repo:     repo,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the periodic sweep goroutine.
func (r *Reaper) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.sweep()
			case <-r.ctx.Done():
				r.logger.Info("Lock reaper stopped")
				return
			}
		}
	}()
}

// sweep removes every lock row past its expiry and refreshes the active-locks
// gauge.
func (r *Reaper) sweep() {
	now := r.now().Unix()

	removed, err := r.repo.RemoveExpiredLocks(now)
	if err != nil {
		r.logger.Error("Failed to remove expired field locks", "error", err)
		return
	}
	if removed > 0 {
		metrics.LockReapTotal.Add(float64(removed))
		r.logger.Debug("Removed expired field locks", "count", removed)
	}

	active, err := r.repo.CountActiveLocks(now)
	if err != nil {
		r.logger.Error("Failed to count active field locks", "error", err)
		return
	}
	metrics.LocksActive.Set(float64(active))
}

// Stop halts the sweep goroutine and waits for it to exit.
func (r *Reaper) Stop() {
	r.cancel()
	r.wg.Wait()
}
