package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redditmod/modbot/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	runPrefix     = "runs/"
	runNameLayout = "20060102T150405Z"
)

// Archive keeps one JSON document per moderation run
type Archive struct {
	store     StorageInterface
	retention time.Duration
}

func NewArchive(store StorageInterface, retention time.Duration) *Archive {
	return &Archive{store: store, retention: retention}
}

func runName(t time.Time) string {
	return runPrefix + t.UTC().Format(runNameLayout) + ".json"
}

// Save stores report under its start time and returns the blob name
func (a *Archive) Save(ctx context.Context, report *models.RunReport) (string, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run report: %w", err)
	}

	name := runName(report.StartedAt)
	if err = a.store.Store(ctx, name, data); err != nil {
		return "", err
	}
	return name, nil
}

// Latest returns the most recent archived report, or nil if there is none
func (a *Archive) Latest(ctx context.Context) (*models.RunReport, error) {
	names, err := a.store.List(ctx, runPrefix)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)

	data, err := a.store.Retrieve(ctx, names[len(names)-1])
	if err != nil {
		return nil, err
	}

	var report models.RunReport
	if err = json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode run report: %w", err)
	}
	return &report, nil
}

// Prune deletes reports older than the retention window
func (a *Archive) Prune(ctx context.Context, now time.Time) (int, error) {
	if a.retention <= 0 {
		return 0, nil
	}

	names, err := a.store.List(ctx, runPrefix)
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-a.retention)
	deleted := 0
	for _, name := range names {
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, runPrefix), ".json")
		t, err := time.Parse(runNameLayout, stamp)
		if err != nil {
			logrus.Debugf("Ignoring unexpected archive entry %s", name)
			continue
		}
		if !t.Before(cutoff) {
			continue
		}
		if err = a.store.Delete(ctx, name); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
