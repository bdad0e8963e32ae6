package conditions

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redditmod/modbot/internal/models"
)

// CachedAccounts memoizes account lookups and reachability probes.
// Failed lookups are not cached.
type CachedAccounts struct {
	next      AccountLookup
	accounts  *expirable.LRU[string, *models.Account]
	reachable *expirable.LRU[string, bool]
}

var _ AccountLookup = (*CachedAccounts)(nil)

// NewCachedAccounts wraps next with an expiring LRU of the given capacity
func NewCachedAccounts(next AccountLookup, capacity int, ttl time.Duration) *CachedAccounts {
	return &CachedAccounts{
		next:      next,
		accounts:  expirable.NewLRU[string, *models.Account](capacity, nil, ttl),
		reachable: expirable.NewLRU[string, bool](capacity, nil, ttl),
	}
}

func (c *CachedAccounts) GetAccount(ctx context.Context, name string) (*models.Account, error) {
	if acct, ok := c.accounts.Get(name); ok {
		return acct, nil
	}
	acct, err := c.next.GetAccount(ctx, name)
	if err != nil {
		return nil, err
	}
	c.accounts.Add(name, acct)
	return acct, nil
}

func (c *CachedAccounts) IsReachable(ctx context.Context, name string) (bool, error) {
	if ok, found := c.reachable.Get(name); found {
		return ok, nil
	}
	ok, err := c.next.IsReachable(ctx, name)
	if err != nil {
		return false, err
	}
	c.reachable.Add(name, ok)
	return ok, nil
}
