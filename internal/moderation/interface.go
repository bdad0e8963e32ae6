package moderation

import (
	"context"

	"github.com/redditmod/modbot/internal/conditions"
	"github.com/redditmod/modbot/internal/models"
	"github.com/redditmod/modbot/internal/reddit"
)

// Platform is everything a moderation run needs from Reddit
type Platform interface {
	conditions.AccountLookup

	Username() string
	Authenticate(ctx context.Context) error

	Stream(community string, stream models.StreamKind, limit int) reddit.Iterator[*models.Item]
	PendingQueue(community string, limit int) reddit.Iterator[*models.Item]
	Modmail(limit int) reddit.Iterator[*models.ModmailMessage]
	ReportListing(ctx context.Context, community string) ([]models.ReportedItem, error)

	Remove(ctx context.Context, fullname string) error
	Approve(ctx context.Context, fullname string) error
	Reply(ctx context.Context, parent, text string) (string, error)
	Distinguish(ctx context.Context, fullname string) error
	NotifyModerators(ctx context.Context, community, subject, body string) error
	ReplyToModmail(ctx context.Context, fullname, text string) error
}

var _ Platform = (*reddit.Client)(nil)
