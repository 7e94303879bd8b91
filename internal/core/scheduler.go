package core

// scheduler.go runs background maintenance for long-running servers.
//
// Two jobs are supported:
//  1. Revalidate the watched folder so rejected months show up in the log
//     and in run history without anyone opening the UI
//  2. Prune run history older than the retention period
//
// Jobs never stop the scheduler; failures are logged and the next tick runs
// as usual.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleConfig configures a Scheduler. Empty specs disable their job.
type ScheduleConfig struct {
	Folder       string
	ValidateSpec string
	PruneSpec    string
	Retention    time.Duration
}

// Scheduler drives the periodic jobs of a Service.
type Scheduler struct {
	cron *cron.Cron
	svc  *Service
	cfg  ScheduleConfig
	ctx  context.Context
}

// NewScheduler registers the configured jobs. Nothing runs until Start.
func NewScheduler(ctx context.Context, svc *Service, cfg ScheduleConfig) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(),
		svc:  svc,
		cfg:  cfg,
		ctx:  ctx,
	}

	if cfg.ValidateSpec != "" {
		if cfg.Folder == "" {
			return nil, fmt.Errorf("%w: scheduled validation needs a folder", ErrInvalidRequest)
		}
		if _, err := s.cron.AddFunc(cfg.ValidateSpec, s.runValidation); err != nil {
			return nil, fmt.Errorf("register validation job: %w", err)
		}
	}
	if cfg.PruneSpec != "" && cfg.Retention > 0 {
		if _, err := s.cron.AddFunc(cfg.PruneSpec, s.runPrune); err != nil {
			return nil, fmt.Errorf("register prune job: %w", err)
		}
	}
	return s, nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int { return len(s.cron.Entries()) }

// Start runs the jobs in the background until Stop.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started",
		"jobs", s.Jobs(),
		"validate", s.cfg.ValidateSpec,
		"prune", s.cfg.PruneSpec,
		"retention", s.cfg.Retention,
	)
}

// Stop stops scheduling and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

func (s *Scheduler) runValidation() {
	if s.ctx.Err() != nil {
		return
	}
	report, err := s.svc.ValidateFolder(s.ctx, s.cfg.Folder)
	if err != nil {
		slog.Error("scheduled validation failed", "folder", s.cfg.Folder, "code", Describe(err).Code, "error", err)
		return
	}
	if invalid := report.Invalid(); len(invalid) > 0 {
		names := make([]string, len(invalid))
		for i, res := range invalid {
			names[i] = res.Name
		}
		slog.Warn("scheduled validation found incomplete months", "folder", s.cfg.Folder, "files", names)
	}
}

func (s *Scheduler) runPrune() {
	if s.ctx.Err() != nil {
		return
	}
	start := s.svc.now()
	n, err := s.svc.recorder.Prune(s.ctx, start.Add(-s.cfg.Retention))
	if err != nil {
		slog.Error("history prune failed", "error", err)
		return
	}
	slog.Info("pruned run history",
		"runs_removed", n,
		"retention", s.cfg.Retention,
		"duration_ms", s.svc.now().Sub(start).Milliseconds(),
	)
}
