package rematch

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/robfig/cron/v3"
)

// Scheduler runs a bulk rematch on a standard 5-field cron expression
// (minute hour day-of-month month day-of-week), e.g. "0 3 * * *" for daily at 3am.
type Scheduler struct {
	cron         *cron.Cron
	orchestrator *Orchestrator
	opts         Options
	logger       ectologger.Logger
}

// NewScheduler parses schedule and prepares the job. Overlapping runs are skipped, not queued.
func NewScheduler(logger ectologger.Logger, orchestrator *Orchestrator, schedule string, opts Options) (*Scheduler, error) {
	schedule = strings.TrimSpace(schedule)
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, errkind.Wrap(errkind.InvalidArgument, err, "invalid rematch schedule "+schedule)
	}

	s := &Scheduler{
		cron:         cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		orchestrator: orchestrator,
		opts:         opts,
		logger:       logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.runOnce); err != nil {
		return nil, errkind.Wrap(errkind.InvalidArgument, err, "invalid rematch schedule "+schedule)
	}
	return s, nil
}

func (s *Scheduler) runOnce() {
	ctx := context.Background()
	result, err := s.orchestrator.Run(ctx, s.opts)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled rematch failed")
		return
	}
	s.logger.WithFields(map[string]any{
		"processed": result.Processed,
		"failed":    result.Failed,
	}).Info("Scheduled rematch finished")
}

// Start begins the schedule in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron.Start()
	for _, entry := range s.cron.Entries() {
		s.logger.WithField("next", entry.Next.String()).Info("Rematch scheduled")
	}
	return nil
}

// Stop halts the schedule and waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
