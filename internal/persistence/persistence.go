package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redditmod/modbot/internal/models"
)

// Persistence stores community configuration, the audit log and scan state
type Persistence interface {
	Close(ctx context.Context) error
	Migrate(ctx context.Context) error

	ListEnabledCommunities(ctx context.Context) ([]models.Community, error)
	LoadConditions(ctx context.Context, communityID int64) ([]models.Condition, error)

	HasAction(ctx context.Context, communityID int64, permalink string, action models.Action) (bool, error)
	ListActionsSince(ctx context.Context, action models.Action, since time.Time) ([]models.ActionRecord, error)
	GetReapproval(ctx context.Context, communityID int64, permalink string) (*models.ReapprovalRecord, error)

	// CommitRun atomically persists everything one community pass produced
	CommitRun(ctx context.Context, state *RunState) error

	UpsertCommunity(ctx context.Context, community *models.Community) (int64, error)
	// ReplaceConditions swaps a community's whole forest. Parents must
	// precede their children and ParentID refers to ids within conds.
	ReplaceConditions(ctx context.Context, communityID int64, conds []models.Condition) error
}

// RunState is the batch of changes staged while a community is scanned
type RunState struct {
	Community   models.Community
	Actions     []models.ActionRecord
	Reapprovals []*models.ReapprovalRecord
}

var (
	ErrNotFound          = errors.New("record not found")
	ErrUnsupportedDriver = errors.New("unsupported persistence driver")
)

// Drivers lists the accepted DATABASE_DRIVER values
var Drivers = []string{"postgres", "mysql", "sqlite", "memory"}

// New opens the store for driver. The memory driver ignores dsn.
func New(ctx context.Context, driver, dsn string) (Persistence, error) {
	switch driver {
	case "postgres":
		return NewHandle(ctx, dialectPostgres, dsn)
	case "mysql":
		return NewHandle(ctx, dialectMySQL, dsn)
	case "sqlite":
		return NewHandle(ctx, dialectSQLite, dsn)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, ErrUnsupportedDriver
	}
}
