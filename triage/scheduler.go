package triage

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"room-triage/utils"
)

// Scheduler runs the unattended pipeline (harvest, process, score, export)
// on a cron schedule. A run still in progress when the next one is due is
// skipped.
type Scheduler struct {
	cron       *cron.Cron
	orch       *Orchestrator
	exportPath string
	logger     *utils.Logger
	isRunning  bool
}

// NewScheduler creates a scheduler for orch.
func NewScheduler(orch *Orchestrator, exportPath string, logger *utils.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		orch:       orch,
		exportPath: exportPath,
		logger:     logger,
	}
}

// Start schedules the pipeline with a standard five-field cron spec.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Info("[scheduler] Starting pipeline run")
		if err := s.RunNow(ctx); err != nil {
			s.logger.Error("[scheduler] Pipeline run failed: %v", err)
		} else {
			s.logger.Info("[scheduler] Pipeline run completed")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", spec, err)
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.Info("[scheduler] Started (cron: %s)", spec)
	return nil
}

// Stop stops scheduling and waits for a running pipeline to finish.
func (s *Scheduler) Stop() {
	if s.isRunning {
		<-s.cron.Stop().Done()
		s.isRunning = false
		s.logger.Info("[scheduler] Stopped")
	}
}

// RunNow runs the whole pipeline once. A partial harvest does not stop the
// later stages; any other failure does.
func (s *Scheduler) RunNow(ctx context.Context) error {
	if _, err := s.orch.HarvestMessages(ctx); err != nil {
		s.logger.Warn("[scheduler] Harvest: %v", err)
	}
	if _, err := s.orch.ProcessMessages(ctx); err != nil {
		return fmt.Errorf("process messages: %w", err)
	}
	if _, err := s.orch.ScoreListings(ctx); err != nil {
		return fmt.Errorf("score listings: %w", err)
	}
	if s.exportPath != "" {
		if _, err := s.orch.Export(ctx, s.exportPath); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	return nil
}
