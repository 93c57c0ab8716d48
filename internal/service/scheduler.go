package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wpsteward/steward/internal/config"
	"github.com/wpsteward/steward/internal/service/reminder"
)

var errNonPositiveInterval = errors.New("reminder interval must be positive")

// ReminderRunner is the part of the reminder batcher the scheduler drives.
type ReminderRunner interface {
	Run(ctx context.Context) ([]reminder.GroupResult, error)
}

type Scheduler struct {
	config   *config.SchedulerConfig
	logger   *zap.Logger
	runner   ReminderRunner
	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(cfg *config.SchedulerConfig, logger *zap.Logger, runner ReminderRunner) *Scheduler {
	return &Scheduler{
		config: cfg,
		logger: logger,
		runner: runner,
		stopCh: make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	interval, err := time.ParseDuration(s.config.ReminderInterval)
	if err != nil {
		s.logger.Error("Invalid reminder interval", zap.String("interval", s.config.ReminderInterval), zap.Error(err))
		return err
	}
	if interval <= 0 {
		s.logger.Error("Reminder interval must be positive", zap.String("interval", s.config.ReminderInterval))
		return errNonPositiveInterval
	}

	s.logger.Info("Starting scheduler", zap.String("reminder_interval", s.config.ReminderInterval))

	s.ticker = time.NewTicker(interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.ticker.C:
				s.logger.Info("Running scheduled reminders")
				s.runReminders(ctx)
			case <-s.stopCh:
				s.logger.Info("Scheduler stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Scheduler context cancelled")
				return
			}
		}
	}()

	return nil
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
	})
	s.wg.Wait()
	s.logger.Info("Scheduler shutdown completed")
}

func (s *Scheduler) runReminders(ctx context.Context) {
	start := time.Now()
	results, err := s.runner.Run(ctx)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("Scheduled reminders failed",
			zap.Error(err),
			zap.Duration("duration", duration))
		return
	}

	s.logger.Info("Scheduled reminders completed",
		zap.String("summary", reminder.Summary(results)),
		zap.Duration("duration", duration))
}
