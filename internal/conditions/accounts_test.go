package conditions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redditmod/modbot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedAccounts(t *testing.T) {
	ctx := context.Background()
	next := &MockAccounts{}
	next.On("GetAccount", "someone").Return(&models.Account{Name: "someone", LinkKarma: 5}, nil).Once()
	next.On("GetAccount", "flaky").Return(nil, errors.New("503")).Twice()
	next.On("IsReachable", "someone").Return(false, nil).Once()

	cached := NewCachedAccounts(next, 16, time.Minute)

	for i := 0; i < 3; i++ {
		acct, err := cached.GetAccount(ctx, "someone")
		require.NoError(t, err)
		assert.Equal(t, 5, acct.LinkKarma)

		ok, err := cached.IsReachable(ctx, "someone")
		require.NoError(t, err)
		assert.False(t, ok)
	}

	_, err := cached.GetAccount(ctx, "flaky")
	assert.Error(t, err)
	_, err = cached.GetAccount(ctx, "flaky")
	assert.Error(t, err)

	next.AssertExpectations(t)
}
