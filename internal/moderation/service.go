package moderation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redditmod/modbot/internal/conditions"
	"github.com/redditmod/modbot/internal/config"
	"github.com/redditmod/modbot/internal/models"
	"github.com/redditmod/modbot/internal/notifications"
	"github.com/redditmod/modbot/internal/persistence"
	"github.com/redditmod/modbot/internal/storage"
	"github.com/sirupsen/logrus"
)

const commitTimeout = 30 * time.Second

// ErrRunInProgress is returned when a run is requested while one is active
var ErrRunInProgress = errors.New("a moderation run is already in progress")

// Dependencies are the collaborators a Service runs against. Memes, Archive
// and Notifications are optional.
type Dependencies struct {
	Store         persistence.Persistence
	Platform      Platform
	Memes         conditions.MemeLookup
	Archive       *storage.Archive
	Notifications notifications.NotificationInterface
}

// Service runs moderation passes over every enabled community
type Service struct {
	config              *config.Config
	store               persistence.Persistence
	platform            Platform
	matcher             *Matcher
	dispatcher          *Dispatcher
	archive             *storage.Archive
	notificationService notifications.NotificationInterface
	metrics             *Metrics
	latest              *models.RunReport
	mu                  sync.RWMutex
	running             atomic.Bool
	now                 func() time.Time
}

// NewService creates a new moderation service
func NewService(cfg *config.Config, deps Dependencies) *Service {
	accounts := conditions.NewCachedAccounts(deps.Platform, cfg.AccountCacheSize, cfg.AccountCacheTTL)
	evaluator := conditions.NewEvaluator(accounts, deps.Memes)
	dispatcher := NewDispatcher(deps.Platform, cfg.WriteDelay, cfg.DryRun)

	return &Service{
		config:              cfg,
		store:               deps.Store,
		platform:            deps.Platform,
		matcher:             NewMatcher(evaluator, dispatcher),
		dispatcher:          dispatcher,
		archive:             deps.Archive,
		notificationService: deps.Notifications,
		metrics: &Metrics{
			ActionMetrics: make(map[string]int),
			StreamMetrics: make(map[string]int),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// RunModeration performs one full pass. Communities are processed one after
// another and a failing community does not stop the others. Only failing to
// authenticate or to list communities fails the run.
func (s *Service) RunModeration(ctx context.Context) (*models.RunReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	start := s.now()
	logrus.Info("Starting moderation run")

	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}

	if err := s.platform.Authenticate(ctx); err != nil {
		err = fmt.Errorf("failed to authenticate as %s: %w", s.platform.Username(), err)
		logrus.Errorf("Moderation run aborted: %v", err)
		s.recordRunError(err)
		return nil, err
	}

	communities, err := s.store.ListEnabledCommunities(ctx)
	if err != nil {
		err = fmt.Errorf("failed to load enabled communities: %w", err)
		logrus.Errorf("Moderation run aborted: %v", err)
		s.recordRunError(err)
		return nil, err
	}

	report := &models.RunReport{StartedAt: start, DryRun: s.config.DryRun}
	names := make(map[int64]string, len(communities))
	for _, community := range communities {
		names[community.ID] = community.Name
		run := s.runCommunity(ctx, community)
		for _, n := range run.Actions {
			report.TotalActions += n
		}
		report.TotalActions += run.Reapprovals
		report.Communities = append(report.Communities, run)
	}

	replies, err := s.respondToModmail(ctx, start, names)
	if err != nil {
		logrus.Errorf("Failed to respond to modmail: %v", err)
	}
	report.ModmailReplies = replies

	duration := s.now().Sub(start)
	report.Duration = duration.String()
	s.updateMetrics(report, duration)

	s.mu.Lock()
	s.latest = report
	s.mu.Unlock()

	s.publish(ctx, report)

	logrus.Infof("Moderation run completed in %v with %d actions", duration, report.TotalActions)
	return report, nil
}

// runCommunity scans every stream of one community, processes its report
// listing and commits the staged state
func (s *Service) runCommunity(ctx context.Context, community models.Community) (summary models.CommunityRun) {
	summary = models.CommunityRun{
		Community:    community.Name,
		ItemsScanned: make(map[string]int),
		Actions:      make(map[string]int),
	}

	var rc *runContext
	defer func() {
		if r := recover(); r != nil {
			s.failCommunity(ctx, rc, community, &summary, fmt.Errorf("panic: %v", r))
		}
	}()

	conds, err := s.store.LoadConditions(ctx, community.ID)
	if err != nil {
		s.failCommunity(ctx, nil, community, &summary, fmt.Errorf("failed to load conditions: %w", err))
		return summary
	}
	forest, err := conditions.NewForest(conds)
	if err != nil {
		s.failCommunity(ctx, nil, community, &summary, fmt.Errorf("invalid rules: %w", err))
		return summary
	}

	pending := NewPendingQueue(s.platform.PendingQueue(community.Name, s.config.StreamLimit))
	rc = newRunContext(community, forest, pending, &summary)

	for _, stream := range models.Streams {
		if err = s.scanStream(ctx, rc, stream); err != nil {
			s.failCommunity(ctx, rc, community, &summary, fmt.Errorf("failed to scan %s: %w", stream, err))
			return summary
		}
	}

	if err = s.processReportListing(ctx, rc); err != nil {
		s.failCommunity(ctx, rc, community, &summary, err)
		return summary
	}

	if err = s.commit(ctx, rc.state); err != nil {
		s.failCommunity(ctx, nil, community, &summary, fmt.Errorf("failed to commit: %w", err))
		return summary
	}
	s.mirrorAlerts(ctx, rc.alerts)

	logrus.WithField("community", community.Name).Infof("Finished /r/%s: %d actions, %d reapprovals", community.Name, len(rc.state.Actions), summary.Reapprovals)
	return summary
}

// failCommunity records err for the community. Actions already performed on
// the platform are still written to the audit log, but the watermarks stay
// where they were so the next run scans the same items again.
func (s *Service) failCommunity(ctx context.Context, rc *runContext, community models.Community, summary *models.CommunityRun, err error) {
	logrus.WithField("community", community.Name).Errorf("Community pass failed: %v", err)
	summary.Error = err.Error()
	communityFailuresTotal.Inc()

	if rc == nil || (len(rc.state.Actions) == 0 && len(rc.state.Reapprovals) == 0) {
		return
	}

	partial := *rc.state
	partial.Community = community
	if err := s.commit(ctx, &partial); err != nil {
		logrus.WithField("community", community.Name).Errorf("Failed to record performed actions: %v", err)
		return
	}
	s.mirrorAlerts(ctx, rc.alerts)
}

// commit writes state to the store even when ctx is already done, so actions
// performed before a shutdown or run timeout still reach the audit log
func (s *Service) commit(ctx context.Context, state *persistence.RunState) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	return s.store.CommitRun(ctx, state)
}

func (s *Service) mirrorAlerts(ctx context.Context, alerts []models.Alert) {
	if s.notificationService == nil {
		return
	}
	for i := range alerts {
		if err := s.notificationService.SendAlert(ctx, &alerts[i]); err != nil {
			logrus.Errorf("Failed to mirror alert for %s: %v", alerts[i].Permalink, err)
		}
	}
}

// publish archives the report and sends a summary when anything happened
func (s *Service) publish(ctx context.Context, report *models.RunReport) {
	if s.archive != nil {
		if name, err := s.archive.Save(ctx, report); err != nil {
			logrus.Errorf("Failed to archive run report: %v", err)
		} else {
			logrus.Debugf("Archived run report as %s", name)
		}
		if deleted, err := s.archive.Prune(ctx, report.StartedAt); err != nil {
			logrus.Errorf("Failed to prune run archive: %v", err)
		} else if deleted > 0 {
			logrus.Infof("Pruned %d archived run reports", deleted)
		}
	}

	if s.notificationService != nil && report.TotalActions > 0 {
		if err := s.notificationService.SendRunReport(ctx, report); err != nil {
			logrus.Errorf("Failed to send run report: %v", err)
		}
	}
}

// LatestReport returns the most recent run report, from memory when this
// process has run one and from the archive otherwise
func (s *Service) LatestReport(ctx context.Context) (*models.RunReport, error) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	if latest != nil || s.archive == nil {
		return latest, nil
	}
	return s.archive.Latest(ctx)
}
