// Package scheduler runs the periodic maintenance jobs of the booking engine.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/rinkdesk/ice-booking-api/internal/dto"
	"github.com/rinkdesk/ice-booking-api/pkg/config"
)

const (
	JobOccupancyRebuild = "occupancy_rebuild"
	JobMonthlyInvoices  = "monthly_invoices"
	JobInvoiceCleanup   = "invoice_cleanup"

	jobTimeout = 5 * time.Minute
)

type occupancyRebuilder interface {
	Rebuild(ctx context.Context) error
}

type invoiceGenerator interface {
	Generate(ctx context.Context, in dto.GenerateInvoicesRequest) (*dto.InvoiceRunResult, error)
}

type documentCleaner interface {
	CleanupDocuments(ttl time.Duration) (int, error)
}

// Deps are the services driven by scheduled jobs.
type Deps struct {
	Occupancy occupancyRebuilder
	Invoices  invoiceGenerator
	Documents documentCleaner
	// DocumentTTL is how long rendered invoice PDFs are kept on disk.
	DocumentTTL time.Duration
	Location    *time.Location
	Logger      *zap.Logger
}

// Scheduler wraps a cron runner evaluated in the rink's timezone.
type Scheduler struct {
	cron    *cron.Cron
	deps    Deps
	logger  *zap.Logger
	jobs    map[string]func(ctx context.Context) error
	mu      sync.Mutex
	running map[string]bool
}

// New registers every job with a non-empty spec.
func New(cfg config.SchedulerConfig, deps Deps) (*Scheduler, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		deps:    deps,
		logger:  logger.Named("scheduler"),
		jobs:    make(map[string]func(ctx context.Context) error),
		running: make(map[string]bool),
	}
	s.jobs[JobOccupancyRebuild] = s.rebuildOccupancy
	s.jobs[JobMonthlyInvoices] = s.generateInvoices
	s.jobs[JobInvoiceCleanup] = s.cleanupDocuments

	specs := map[string]string{
		JobOccupancyRebuild: cfg.OccupancyRebuild,
		JobMonthlyInvoices:  cfg.MonthlyInvoices,
		JobInvoiceCleanup:   cfg.InvoiceCleanup,
	}
	for name, spec := range specs {
		if spec == "" {
			continue
		}
		name := name
		if _, err := s.cron.AddFunc(spec, func() { _ = s.Run(context.Background(), name) }); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", name, err)
		}
		s.logger.Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	}
	return s, nil
}

// Start begins firing jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// Entries returns the number of scheduled jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Run executes a job immediately. Overlapping runs of the same job are skipped.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		s.logger.Warn("job still running, skipping", zap.String("job", name))
		return nil
	}
	s.running[name] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Error("job failed", zap.String("job", name), zap.Duration("duration", time.Since(start)), zap.Error(err))
		return err
	}
	s.logger.Info("job completed", zap.String("job", name), zap.Duration("duration", time.Since(start)))
	return nil
}

func (s *Scheduler) rebuildOccupancy(ctx context.Context) error {
	if s.deps.Occupancy == nil {
		return nil
	}
	return s.deps.Occupancy.Rebuild(ctx)
}

func (s *Scheduler) generateInvoices(ctx context.Context) error {
	if s.deps.Invoices == nil {
		return nil
	}
	result, err := s.deps.Invoices.Generate(ctx, dto.GenerateInvoicesRequest{})
	if err != nil {
		return err
	}
	s.logger.Info("invoice run finished",
		zap.Int("year", result.Year),
		zap.Int("month", result.Month),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped))
	return nil
}

func (s *Scheduler) cleanupDocuments(ctx context.Context) error {
	if s.deps.Documents == nil || s.deps.DocumentTTL <= 0 {
		return nil
	}
	removed, err := s.deps.Documents.CleanupDocuments(s.deps.DocumentTTL)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.logger.Info("stale invoice documents removed", zap.Int("removed", removed))
	}
	return nil
}
