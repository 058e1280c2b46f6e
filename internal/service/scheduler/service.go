// Package scheduler runs the periodic stale ticket sweep and gauge refresh.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aimd54/judge-helpdesk-bot/internal/config"
	prommetrics "github.com/aimd54/judge-helpdesk-bot/internal/metrics"
	"github.com/aimd54/judge-helpdesk-bot/internal/service/tickets"
	"github.com/aimd54/judge-helpdesk-bot/pkg/logger"
)

// Job names, used as metric labels.
const (
	jobAutoClose    = "auto_close"
	jobTicketGauges = "ticket_gauges"
)

const gaugeRefreshSchedule = "@every 1m"

// Sweeper closes stale tickets.
type Sweeper interface {
	AutoCloseStale(ctx context.Context) (*tickets.SweepResult, error)
}

// GaugeRefresher publishes ticket counts.
type GaugeRefresher interface {
	RefreshGauges(ctx context.Context) error
}

// Service handles background job scheduling.
type Service struct {
	config  *config.SchedulerConfig
	sweeper Sweeper
	gauges  GaugeRefresher // optional
	log     *logger.Logger
	cron    *cron.Cron
}

// NewService creates a new scheduler service.
func NewService(cfg *config.SchedulerConfig, sweeper Sweeper, gauges GaugeRefresher, log *logger.Logger) *Service {
	return &Service{
		config:  cfg,
		sweeper: sweeper,
		gauges:  gauges,
		log:     log,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Timezone, err)
	}

	interval, err := s.config.GetInterval()
	if err != nil {
		return err
	}

	// Recover must sit inside SkipIfStillRunning, which only frees its slot
	// when the wrapped job returns.
	cl := cronLogger{log: s.log}
	s.cron = cron.New(
		cron.WithLocation(location),
		cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
	)

	autoCloseSchedule := "@every " + interval.String()
	if _, err := s.cron.AddFunc(autoCloseSchedule, func() {
		s.RunAutoClose(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to register auto-close job: %w", err)
	}

	if s.gauges != nil {
		if _, err := s.cron.AddFunc(gaugeRefreshSchedule, func() {
			s.RunGaugeRefresh(context.Background())
		}); err != nil {
			return fmt.Errorf("failed to register gauge refresh job: %w", err)
		}
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("schedule", autoCloseSchedule).
		Str("timezone", s.config.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for a running job.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// RunAutoClose executes one stale ticket sweep. Errors are logged; they never
// stop later runs.
func (s *Service) RunAutoClose(ctx context.Context) {
	start := time.Now()

	defer func() {
		prommetrics.ObserveSchedulerJobDuration(jobAutoClose, time.Since(start).Seconds())
		prommetrics.SetSchedulerLastRun(jobAutoClose)
	}()

	s.log.Info().Msg("Running auto-close job")

	result, err := s.sweeper.AutoCloseStale(ctx)
	if err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Auto-close job failed")
		prommetrics.RecordSchedulerJobRun(jobAutoClose, "error")
		return
	}

	status := "success"
	if result.Failed > 0 {
		status = "partial"
	}
	prommetrics.RecordSchedulerJobRun(jobAutoClose, status)

	s.log.Info().
		Int("closed", len(result.Closed)).
		Int("failed", result.Failed).
		Dur("duration", time.Since(start)).
		Msg("Auto-close job completed")
}

// RunGaugeRefresh publishes ticket counts by status.
func (s *Service) RunGaugeRefresh(ctx context.Context) {
	if err := s.gauges.RefreshGauges(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to refresh ticket gauges")
		prommetrics.RecordSchedulerJobRun(jobTicketGauges, "error")
		return
	}
	prommetrics.RecordSchedulerJobRun(jobTicketGauges, "success")
}

// cronLogger adapts the application logger to cron's logging interface.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
