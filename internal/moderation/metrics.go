package moderation

import (
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redditmod/modbot/internal/models"
)

var itemsScannedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_items_scanned_total",
	Help: "Items checked against the rules, by stream.",
}, []string{"stream"})

var actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_actions_total",
	Help: "Moderation actions performed, by action.",
}, []string{"action"})

var reapprovalsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modbot_reapprovals_total",
	Help: "Reported items approved again automatically.",
})

var evalErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modbot_condition_errors_total",
	Help: "Condition evaluations that failed and were treated as non-matches.",
})

var communityFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modbot_community_failures_total",
	Help: "Community passes aborted by an error.",
})

var runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "modbot_run_duration_seconds",
	Help:    "Duration of full moderation runs.",
	Buckets: prometheus.ExponentialBuckets(1, 2, 12),
})

// Metrics holds the status of the latest run
type Metrics struct {
	Running         bool           `json:"running"`
	LastRun         time.Time      `json:"last_run"`
	LastRunDuration string         `json:"last_run_duration"`
	TotalActions    int            `json:"total_actions"`
	ActionMetrics   map[string]int `json:"action_metrics"`
	StreamMetrics   map[string]int `json:"stream_metrics"`
	ModmailReplies  int            `json:"modmail_replies"`
	ErrorCount      int            `json:"error_count"`
	LastError       string         `json:"last_error,omitempty"`
}

func (s *Service) updateMetrics(report *models.RunReport, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.LastRun = report.StartedAt
	s.metrics.LastRunDuration = duration.String()
	s.metrics.TotalActions = report.TotalActions
	s.metrics.ModmailReplies = report.ModmailReplies
	s.metrics.LastError = ""

	// Reset counters
	s.metrics.ActionMetrics = make(map[string]int)
	s.metrics.StreamMetrics = make(map[string]int)
	s.metrics.ErrorCount = 0

	for _, c := range report.Communities {
		for action, n := range c.Actions {
			s.metrics.ActionMetrics[action] += n
		}
		for stream, n := range c.ItemsScanned {
			s.metrics.StreamMetrics[stream] += n
		}
		if c.Error != "" {
			s.metrics.ErrorCount++
		}
	}

	runDuration.Observe(duration.Seconds())
}

func (s *Service) recordRunError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.ErrorCount++
	s.metrics.LastError = err.Error()
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := *s.metrics
	m.Running = s.running.Load()
	data, _ := json.MarshalIndent(m, "", "  ")
	return string(data)
}
