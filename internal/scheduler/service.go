package scheduler

import (
	"context"
	"errors"

	"github.com/redditmod/modbot/internal/config"
	"github.com/redditmod/modbot/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner performs one moderation pass
type Runner interface {
	RunModeration(ctx context.Context) (*models.RunReport, error)
}

// Service handles scheduling of moderation runs
type Service struct {
	config *config.Config
	runner Runner
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a new scheduler service. A run still in progress when
// the next one is due causes that tick to be skipped.
func NewService(cfg *config.Config, runner Runner) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		config: cfg,
		runner: runner,
		cron: cron.New(
			cron.WithParser(config.ScheduleParser),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logrus.StandardLogger()))),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the scheduled moderation runs
func (s *Service) Start() error {
	if _, err := s.cron.AddFunc(s.config.RunSchedule, s.run); err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with schedule %q", s.config.RunSchedule)
	return nil
}

func (s *Service) run() {
	logrus.Info("Starting scheduled moderation run")
	report, err := s.runner.RunModeration(s.ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logrus.Info("Scheduled moderation run cancelled")
			return
		}
		logrus.Errorf("Scheduled moderation run failed: %v", err)
		return
	}
	logrus.Infof("Scheduled moderation run finished with %d actions", report.TotalActions)
}

// Stop stops the scheduler, cancels a running pass and waits for it
func (s *Service) Stop() {
	if s.cron != nil {
		done := s.cron.Stop()
		s.cancel()
		<-done.Done()
		logrus.Info("Scheduler stopped")
	}
}
