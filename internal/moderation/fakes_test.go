package moderation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redditmod/modbot/internal/config"
	"github.com/redditmod/modbot/internal/models"
	"github.com/redditmod/modbot/internal/persistence"
	"github.com/redditmod/modbot/internal/reddit"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func ago(d time.Duration) time.Time { return fixedNow.Add(-d) }

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func idPtr(v int64) *int64 { return &v }

// sliceIterator yields a fixed slice, then fails with err or ends the stream
type sliceIterator[T any] struct {
	items []T
	err   error
	calls int
}

func iterate[T any](items ...T) *sliceIterator[T] {
	return &sliceIterator[T]{items: items}
}

func (it *sliceIterator[T]) Next(ctx context.Context) (T, error) {
	it.calls++
	var zero T
	if len(it.items) == 0 {
		if it.err != nil {
			return zero, it.err
		}
		return zero, models.ErrEndOfStream
	}
	next := it.items[0]
	it.items = it.items[1:]
	return next, nil
}

// fakePlatform records every write and serves canned listings
type fakePlatform struct {
	username    string
	authErr     error
	streams     map[string]map[models.StreamKind][]*models.Item
	streamErr   map[string]error
	panicOn     string
	pending     map[string][]*models.Item
	modmail     []*models.ModmailMessage
	reports     map[string][]models.ReportedItem
	unreachable map[string]bool
	onNotify    func()

	calls    []string
	replies  []string
	notified []string
}

var _ Platform = (*fakePlatform)(nil)

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		username:    "modbot",
		streams:     make(map[string]map[models.StreamKind][]*models.Item),
		streamErr:   make(map[string]error),
		pending:     make(map[string][]*models.Item),
		reports:     make(map[string][]models.ReportedItem),
		unreachable: make(map[string]bool),
	}
}

func (p *fakePlatform) addStream(community string, stream models.StreamKind, items ...*models.Item) {
	if p.streams[community] == nil {
		p.streams[community] = make(map[models.StreamKind][]*models.Item)
	}
	p.streams[community][stream] = append(p.streams[community][stream], items...)
}

func (p *fakePlatform) Username() string { return p.username }

func (p *fakePlatform) Authenticate(ctx context.Context) error { return p.authErr }

func (p *fakePlatform) Stream(community string, stream models.StreamKind, limit int) reddit.Iterator[*models.Item] {
	if community == p.panicOn {
		panic("listing exploded")
	}
	it := iterate(p.streams[community][stream]...)
	if stream == models.StreamSubmissions {
		it.err = p.streamErr[community]
	}
	return it
}

func (p *fakePlatform) PendingQueue(community string, limit int) reddit.Iterator[*models.Item] {
	return iterate(p.pending[community]...)
}

func (p *fakePlatform) Modmail(limit int) reddit.Iterator[*models.ModmailMessage] {
	return iterate(p.modmail...)
}

func (p *fakePlatform) ReportListing(ctx context.Context, community string) ([]models.ReportedItem, error) {
	return p.reports[community], nil
}

func (p *fakePlatform) GetAccount(ctx context.Context, name string) (*models.Account, error) {
	return &models.Account{Name: name, CreatedAt: fixedNow.AddDate(-1, 0, 0)}, nil
}

func (p *fakePlatform) IsReachable(ctx context.Context, name string) (bool, error) {
	return !p.unreachable[name], nil
}

func (p *fakePlatform) Remove(ctx context.Context, fullname string) error {
	p.calls = append(p.calls, "remove "+fullname)
	return nil
}

func (p *fakePlatform) Approve(ctx context.Context, fullname string) error {
	p.calls = append(p.calls, "approve "+fullname)
	return nil
}

func (p *fakePlatform) Reply(ctx context.Context, parent, text string) (string, error) {
	p.calls = append(p.calls, "reply "+parent)
	p.replies = append(p.replies, text)
	return "t1_reply", nil
}

func (p *fakePlatform) Distinguish(ctx context.Context, fullname string) error {
	p.calls = append(p.calls, "distinguish "+fullname)
	return nil
}

func (p *fakePlatform) NotifyModerators(ctx context.Context, community, subject, body string) error {
	p.calls = append(p.calls, "notify "+community)
	p.notified = append(p.notified, body)
	if p.onNotify != nil {
		p.onNotify()
	}
	return nil
}

func (p *fakePlatform) ReplyToModmail(ctx context.Context, fullname, text string) error {
	p.calls = append(p.calls, "modmail "+fullname)
	return nil
}

// MockNotifications is a mock implementation of NotificationInterface
type MockNotifications struct {
	mock.Mock
}

func (m *MockNotifications) SendRunReport(ctx context.Context, report *models.RunReport) error {
	args := m.Called(report)
	return args.Error(0)
}

func (m *MockNotifications) SendAlert(ctx context.Context, alert *models.Alert) error {
	args := m.Called(alert)
	return args.Error(0)
}

func testConfig() *config.Config {
	return &config.Config{
		StreamLimit:      100,
		ReportBacklog:    48 * time.Hour,
		AccountCacheSize: 10,
		AccountCacheTTL:  time.Minute,
	}
}

func newTestService(cfg *config.Config, platform Platform, store persistence.Persistence) *Service {
	s := NewService(cfg, Dependencies{Store: store, Platform: platform})
	s.now = func() time.Time { return fixedNow }
	s.dispatcher.now = func() time.Time { return fixedNow }
	return s
}

// seedCommunity stores community with its watermarks and conditions and
// returns the stored copy
func seedCommunity(t *testing.T, store persistence.Persistence, community models.Community, conds ...models.Condition) models.Community {
	t.Helper()
	ctx := context.Background()

	id, err := store.UpsertCommunity(ctx, &community)
	require.NoError(t, err)
	community.ID = id
	require.NoError(t, store.CommitRun(ctx, &persistence.RunState{Community: community}))
	require.NoError(t, store.ReplaceConditions(ctx, id, conds))
	return community
}

func findCommunity(t *testing.T, store persistence.Persistence, name string) models.Community {
	t.Helper()
	communities, err := store.ListEnabledCommunities(context.Background())
	require.NoError(t, err)
	for _, c := range communities {
		if c.Name == name {
			return c
		}
	}
	require.Fail(t, fmt.Sprintf("community %s not stored", name))
	return models.Community{}
}

func submission(id, title string, created time.Time) *models.Item {
	return &models.Item{
		ID:        id,
		Kind:      models.SubjectSubmission,
		CreatedAt: created,
		Author:    "alice",
		Subreddit: "pics",
		Title:     title,
		URL:       "https://i.imgur.com/" + id + ".png",
		Domain:    "i.imgur.com",
		Permalink: "https://www.reddit.com/r/pics/comments/" + id + "/post/",
	}
}

func comment(id, author, body string, created time.Time) *models.Item {
	return &models.Item{
		ID:        id,
		Kind:      models.SubjectComment,
		CreatedAt: created,
		Author:    author,
		Subreddit: "pics",
		Body:      body,
		LinkID:    "t3_post",
	}
}

func rule(id int64, parent *int64, subject models.Subject, attr models.Attribute, value string, action models.Action) models.Condition {
	return models.Condition{
		ID:        id,
		ParentID:  parent,
		Subject:   subject,
		Attribute: attr,
		Value:     value,
		Action:    action,
	}
}

var errListing = errors.New("listing unavailable")

// liveContextStore fails commits on a done context like a SQL store does
type liveContextStore struct {
	persistence.Persistence
}

func (s liveContextStore) CommitRun(ctx context.Context, state *persistence.RunState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Persistence.CommitRun(ctx, state)
}
