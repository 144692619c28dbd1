package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/odoobridge/internal/export"
	"github.com/xelth-com/odoobridge/internal/metrics"
	"github.com/xelth-com/odoobridge/internal/reconcile"
)

const startupDelay = 5 * time.Second

// Flusher drains the delayed export queue
type Flusher interface {
	SyncAndFlush(ctx context.Context, strict bool) (*export.FlushReport, error)
	QueueDepth(ctx context.Context) (int64, error)
}

// Reconciler repairs invoices of recently changed orders
type Reconciler interface {
	RecentOrderIDs(ctx context.Context, since time.Time) ([]int64, error)
	Run(ctx context.Context, orderIDs []int64) (*reconcile.Report, error)
}

// Config sets the two loop intervals. A zero interval disables that loop.
type Config struct {
	FlushInterval     time.Duration
	Strict            bool
	ReconcileInterval time.Duration
	ReconcileLookback time.Duration
	StartupDelay      time.Duration
}

// SyncService runs queue flushes and reconciliation in the background
type SyncService struct {
	flusher    Flusher
	reconciler Reconciler
	metrics    *metrics.Metrics
	cfg        Config
	log        *logrus.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	// one run at a time per loop, shared with manual triggers
	flushMu     sync.Mutex
	reconcileMu sync.Mutex
}

// NewSyncService creates the scheduler; m may be nil
func NewSyncService(f Flusher, r Reconciler, m *metrics.Metrics, cfg Config, log *logrus.Logger) *SyncService {
	if cfg.StartupDelay == 0 {
		cfg.StartupDelay = startupDelay
	}
	return &SyncService{
		flusher:    f,
		reconciler: r,
		metrics:    m,
		cfg:        cfg,
		log:        log,
	}
}

// Start launches the loops. It returns immediately.
func (s *SyncService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.cfg.FlushInterval > 0 {
		s.loop(ctx, "flush", s.cfg.FlushInterval, func(ctx context.Context) { s.Flush(ctx) })
	} else {
		s.log.Info("Queue flush loop disabled")
	}

	if s.cfg.ReconcileInterval > 0 && s.reconciler != nil {
		s.loop(ctx, "reconcile", s.cfg.ReconcileInterval, func(ctx context.Context) { s.Reconcile(ctx) })
	} else {
		s.log.Info("Reconciliation loop disabled")
	}
}

func (s *SyncService) loop(ctx context.Context, name string, interval time.Duration, run func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger := s.log.WithField("loop", name)
		logger.Infof("📡 Scheduler loop started (every %v)", interval)

		select {
		case <-time.After(s.cfg.StartupDelay):
			run(ctx)
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				run(ctx)
			case <-ctx.Done():
				logger.Info("🛑 Scheduler loop stopped")
				return
			}
		}
	}()
}

// Stop cancels the loops and waits for a running pass to return
func (s *SyncService) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
}

// Flush runs one queue drain
func (s *SyncService) Flush(ctx context.Context) (*export.FlushReport, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	report, err := s.flusher.SyncAndFlush(ctx, s.cfg.Strict)
	if s.metrics != nil {
		depth, derr := s.flusher.QueueDepth(ctx)
		if derr != nil {
			s.log.Warnf("failed to read queue depth: %v", derr)
		}
		s.metrics.ObserveFlush(report, depth)
	}
	if err != nil {
		s.log.Errorf("❌ Queue flush failed: %v", err)
	}
	return report, err
}

// Reconcile checks the orders changed within the lookback window
func (s *SyncService) Reconcile(ctx context.Context) (*reconcile.Report, error) {
	s.reconcileMu.Lock()
	defer s.reconcileMu.Unlock()

	since := time.Now().Add(-s.cfg.ReconcileLookback)
	ids, err := s.reconciler.RecentOrderIDs(ctx, since)
	if err != nil {
		s.log.Errorf("❌ Failed to list orders for reconciliation: %v", err)
		return nil, err
	}
	if len(ids) == 0 {
		s.log.Debug("No orders changed since last reconciliation window")
		return &reconcile.Report{}, nil
	}

	report, err := s.reconciler.Run(ctx, ids)
	if s.metrics != nil {
		s.metrics.ObserveReconcile(report)
	}
	if err != nil {
		s.log.Errorf("❌ Reconciliation failed: %v", err)
	}
	return report, err
}
