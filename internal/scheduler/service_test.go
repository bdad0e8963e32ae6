package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redditmod/modbot/internal/config"
	"github.com/redditmod/modbot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRunner is a mock implementation of Runner
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) RunModeration(ctx context.Context) (*models.RunReport, error) {
	args := m.Called(ctx)
	report, _ := args.Get(0).(*models.RunReport)
	return report, args.Error(1)
}

// blockingRunner holds every run until released
type blockingRunner struct {
	started atomic.Int32
	release chan struct{}
}

func (b *blockingRunner) RunModeration(ctx context.Context) (*models.RunReport, error) {
	b.started.Add(1)
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &models.RunReport{}, nil
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := NewService(&config.Config{RunSchedule: "every five minutes"}, new(MockRunner))
	assert.Error(t, s.Start())
}

func TestRun_LogsFailures(t *testing.T) {
	runner := new(MockRunner)
	runner.On("RunModeration", mock.Anything).Return(nil, errors.New("reddit down")).Once()
	runner.On("RunModeration", mock.Anything).Return(&models.RunReport{TotalActions: 2}, nil).Once()

	s := NewService(&config.Config{RunSchedule: "@every 1h"}, runner)
	s.run()
	s.run()

	runner.AssertExpectations(t)
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	s := NewService(&config.Config{RunSchedule: "* * * * * *"}, runner)
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return runner.started.Load() == 1 }, 3*time.Second, 10*time.Millisecond)

	// further ticks are dropped while the first run is blocked
	time.Sleep(2100 * time.Millisecond)
	assert.Equal(t, int32(1), runner.started.Load())

	close(runner.release)
	s.Stop()
}

func TestStop_CancelsRunningPass(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	s := NewService(&config.Config{RunSchedule: "* * * * * *"}, runner)
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return runner.started.Load() == 1 }, 3*time.Second, 10*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return after cancelling the run")
	}
}
