// Package scheduler runs the background maintenance loops: periodic hard
// expiry of overdue entries and periodic consolidation sweeps across all
// known tenants.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/consolidation"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

// expireSweepBatch bounds a single expiry pass so a long-neglected store
// cannot hold the maintenance loop for an entire interval.
const expireSweepBatch = 5000

// jobTimeout bounds a single scheduled run.
const jobTimeout = 10 * time.Minute

// Scheduler owns the background maintenance and consolidation loops.
//
// All public methods are thread-safe; running state is guarded by a mutex
// so concurrent Start/Stop calls cannot race.
type Scheduler struct {
	store         *store.Store
	consolidation *consolidation.Engine
	cfg           config.SchedulerConfig
	logger        *logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    sync.WaitGroup
}

// New creates a scheduler. It does not start automatically; call Start.
func New(st *store.Store, cons *consolidation.Engine, cfg config.SchedulerConfig, logger *logging.Logger) (*Scheduler, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cons == nil {
		return nil, fmt.Errorf("consolidation engine cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = 12 * time.Hour
	}
	if cfg.ConsolidationInterval <= 0 {
		cfg.ConsolidationInterval = 6 * time.Hour
	}
	if cfg.TenantParallelism <= 0 {
		cfg.TenantParallelism = 4
	}
	return &Scheduler{
		store:         st,
		consolidation: cons,
		cfg:           cfg,
		logger:        logger.Named("scheduler"),
	}, nil
}

// Start launches the background loops. Calling Start on a running
// scheduler returns an error without spawning more goroutines.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.stopCh = make(chan struct{})
	s.running = true

	s.logger.Info(context.Background(), "scheduler started",
		zap.Duration("maintenance_interval", s.cfg.MaintenanceInterval),
		zap.Duration("consolidation_interval", s.cfg.ConsolidationInterval),
		zap.Int("tenant_parallelism", s.cfg.TenantParallelism))

	s.done.Add(2)
	go s.loop(s.stopCh, s.cfg.MaintenanceInterval, "maintenance", s.runMaintenance)
	go s.loop(s.stopCh, s.cfg.ConsolidationInterval, "consolidation", s.runConsolidation)

	return nil
}

// Stop signals the loops to exit and waits for them. Stopping an already
// stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.done.Wait()
	s.logger.Info(context.Background(), "scheduler stopped")
}

// loop runs job on every tick until stopCh closes. A panicking job is
// logged and the loop keeps going.
func (s *Scheduler) loop(stopCh <-chan struct{}, interval time.Duration, name string, job func(context.Context)) {
	defer s.done.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeRun(name, job)
		case <-stopCh:
			return
		}
	}
}

func (s *Scheduler) safeRun(name string, job func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(context.Background(), "scheduled job panicked, continuing",
				zap.String("job", name),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	job(ctx)
}

// runMaintenance hard-expires overdue entries in batches until a batch
// comes back short.
func (s *Scheduler) runMaintenance(ctx context.Context) {
	total := 0
	for {
		n, err := s.store.ExpireSweep(ctx, expireSweepBatch)
		if err != nil {
			s.logger.Error(ctx, "expiry sweep failed", zap.Error(err), zap.Int("expired", total))
			return
		}
		total += n
		if n < expireSweepBatch {
			break
		}
	}
	if total > 0 {
		s.logger.Info(ctx, "expiry sweep finished", zap.Int("expired", total))
	}
}

// runConsolidation sweeps every known tenant, a bounded number in
// parallel. Per-tenant failures are logged and do not abort the run.
func (s *Scheduler) runConsolidation(ctx context.Context) {
	tenants, err := s.store.Tenants(ctx)
	if err != nil {
		s.logger.Error(ctx, "listing tenants for consolidation failed", zap.Error(err))
		return
	}
	if len(tenants) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.TenantParallelism)

	for _, tenant := range tenants {
		tenant := tenant
		g.Go(func() error {
			scope := memory.Scope{TenantID: tenant, UserID: "system", Role: memory.RoleAdmin}
			result, err := s.consolidation.Sweep(gctx, scope, s.cfg.TenantBudget)
			if err != nil {
				s.logger.Warn(gctx, "tenant consolidation sweep failed",
					zap.String("tenant_id", tenant), zap.Error(err))
				return nil
			}
			if result.Candidates > 0 {
				s.logger.Debug(gctx, "tenant consolidation sweep done",
					zap.String("tenant_id", tenant),
					zap.Int("consolidated", result.Consolidated))
			}
			return nil
		})
	}
	// Workers swallow their own errors; Wait only propagates context
	// cancellation.
	if err := g.Wait(); err != nil {
		s.logger.Warn(ctx, "consolidation run interrupted", zap.Error(err))
	}
}

// RunMaintenanceNow executes one maintenance pass synchronously. Used by
// the sweep command.
func (s *Scheduler) RunMaintenanceNow(ctx context.Context) {
	s.runMaintenance(ctx)
}

// RunConsolidationNow executes one consolidation pass synchronously.
func (s *Scheduler) RunConsolidationNow(ctx context.Context) {
	s.runConsolidation(ctx)
}
