package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultUpdateSpec fires five seconds past every minute.
const DefaultUpdateSpec = "5 * * * * *"

var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSpec reports whether spec is a valid cron expression with an
// optional seconds field.
func ValidateSpec(spec string) error {
	if _, err := specParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}

// Scheduler drives the controller from cron expressions. It decides when
// a tick happens; the controller decides whether it runs.
type Scheduler struct {
	cron        *cron.Cron
	controller  *UpdateCycleController
	logger      *slog.Logger
	baseCtx     context.Context
	tickTimeout time.Duration
}

// NewScheduler creates a stopped scheduler evaluating specs in loc.
func NewScheduler(baseCtx context.Context, controller *UpdateCycleController, loc *time.Location, logger *slog.Logger) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(specParser),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cron.DefaultLogger)),
		),
		controller:  controller,
		logger:      logger.With("component", "scheduler"),
		baseCtx:     baseCtx,
		tickTimeout: 55 * time.Second,
	}
}

// ScheduleUpdates registers the per-minute update tick.
func (s *Scheduler) ScheduleUpdates(spec string) (cron.EntryID, error) {
	if spec == "" {
		spec = DefaultUpdateSpec
	}
	return s.add(spec, "update", func(ctx context.Context) {
		res := s.controller.RunScheduled(ctx)
		if res.Outcome == OutcomeRejected {
			s.logger.Info("Scheduled tick rejected", "bucket", res.Bucket, "error", res.Error)
		}
	})
}

// ScheduleReset registers the daily clearing of the data region.
func (s *Scheduler) ScheduleReset(spec string) (cron.EntryID, error) {
	return s.add(spec, "reset", func(ctx context.Context) {
		res, err := s.controller.Reset(ctx)
		if err != nil {
			s.logger.Error("Scheduled reset failed", "error", err)
			return
		}
		s.logger.Info("Scheduled reset done", "first_row", res.FirstRow, "last_row", res.LastRow)
	})
}

func (s *Scheduler) add(spec, name string, job func(context.Context)) (cron.EntryID, error) {
	if err := ValidateSpec(spec); err != nil {
		return 0, err
	}
	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(s.baseCtx, s.tickTimeout)
		defer cancel()
		job(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to schedule %s job: %w", name, err)
	}
	s.logger.Info("Job scheduled", "job", name, "spec", spec)
	return id, nil
}

// Next returns the next activation of entry id.
func (s *Scheduler) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

func (s *Scheduler) Start() {
	s.logger.Info("Scheduler started")
	s.cron.Start()
}

// Stop waits for running jobs to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}
