package conditions

import (
	"context"

	"github.com/redditmod/modbot/internal/models"
)

// AccountLookup resolves author details for eligibility checks
type AccountLookup interface {
	GetAccount(ctx context.Context, name string) (*models.Account, error)
	// IsReachable probes whether the account's public history can be read.
	// Suppressed accounts report false.
	IsReachable(ctx context.Context, name string) (bool, error)
}

// MemeLookup resolves the meme template name of a linked image
type MemeLookup interface {
	MemeName(ctx context.Context, item *models.Item) (string, error)
}
