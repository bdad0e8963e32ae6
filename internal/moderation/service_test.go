package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/redditmod/modbot/internal/models"
	"github.com/redditmod/modbot/internal/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func withComment(c models.Condition, text string) models.Condition {
	c.Comment = text
	return c
}

func TestRunModeration_RemovalTakesPrecedence(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemory()
	platform := newFakePlatform()

	pics := seedCommunity(t, store, models.Community{Name: "pics", Enabled: true},
		rule(1, nil, models.SubjectSubmission, models.AttributeTitle, ".*free.*", models.ActionRemove),
		rule(2, nil, models.SubjectSubmission, models.AttributeTitle, ".*", models.ActionApprove),
	)

	free := submission("a", "free stuff", ago(time.Minute))
	hello := submission("b", "hello", ago(2*time.Minute))
	handled := submission("c", "later", ago(3*time.Minute))
	platform.addStream("pics", models.StreamSpam, free, hello, handled)
	platform.pending["pics"] = []*models.Item{free, hello}

	s := newTestService(testConfig(), platform, store)
	report, err := s.RunModeration(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"remove t3_a", "approve t3_b"}, platform.calls)
	assert.Equal(t, 2, report.TotalActions)
	require.Len(t, report.Communities, 1)
	assert.Equal(t, 3, report.Communities[0].ItemsScanned["spam"])
	assert.Equal(t, map[string]int{"remove": 1, "approve": 1}, report.Communities[0].Actions)

	removed, err := store.HasAction(ctx, pics.ID, free.Permalink, models.ActionRemove)
	require.NoError(t, err)
	assert.True(t, removed)
	approved, err := store.HasAction(ctx, pics.ID, free.Permalink, models.ActionApprove)
	require.NoError(t, err)
	assert.False(t, approved)

	assert.Equal(t, free.CreatedAt, findCommunity(t, store, "pics").LastSpam)
	assert.Contains(t, s.GetMetrics(), `"total_actions": 2`)
}

func TestRunModeration_Comments(t *testing.T) {
	tests := []struct {
		name       string
		checkAll   bool
		wantPrefix string
	}{
		{
			name:       "first match posts its comment as written",
			wantPrefix: "Reason A\n\n*I am a bot",
		},
		{
			name:       "check all conditions lists every reason",
			checkAll:   true,
			wantPrefix: "This has been removed for the following reasons:\n\n* Reason A\n* Reason B\n* Reason C\n\n\n*I am a bot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := persistence.NewMemory()
			platform := newFakePlatform()

			seedCommunity(t, store, models.Community{Name: "pics", Enabled: true, CheckAllConditions: tt.checkAll},
				withComment(rule(1, nil, models.SubjectSubmission, models.AttributeTitle, ".*", models.ActionRemove), "Reason A"),
				withComment(rule(2, nil, models.SubjectSubmission, models.AttributeDomain, "i\\.imgur\\.com", models.ActionRemove), "Reason B"),
				withComment(rule(3, nil, models.SubjectSubmission, models.AttributeUser, "alice", models.ActionRemove), "Reason C"),
			)
			item := submission("a", "meme", ago(time.Minute))
			platform.addStream("pics", models.StreamSubmissions, item)

			s := newTestService(testConfig(), platform, store)
			_, err := s.RunModeration(ctx)
			require.NoError(t, err)

			assert.Equal(t, []string{"reply t3_a", "distinguish t1_reply", "remove t3_a"}, platform.calls)
			require.Len(t, platform.replies, 1)
			assert.True(t, len(platform.replies[0]) > len(tt.wantPrefix))
			assert.Equal(t, tt.wantPrefix, platform.replies[0][:len(tt.wantPrefix)])
			assert.Contains(t, platform.replies[0], "compose?to=%23pics")

			records, err := store.ListActionsSince(ctx, models.ActionRemove, time.Time{})
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, item.Permalink, records[0].Permalink)
			assert.Equal(t, "meme", records[0].Title)
			require.NotNil(t, records[0].ConditionID)
		})
	}
}

func TestRunModeration_ApprovalSuppressedByProbeRemoval(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemory()
	platform := newFakePlatform()
	platform.unreachable["ghost"] = true

	shadowbanned := rule(1, nil, models.SubjectComment, models.AttributeUser, ".*", models.ActionRemove)
	shadowbanned.IsShadowbanned = boolPtr(true)
	seedCommunity(t, store, models.Community{Name: "pics", Enabled: true},
		shadowbanned,
		rule(2, nil, models.SubjectComment, models.AttributeBody, ".*", models.ActionApprove),
	)
	platform.addStream("pics", models.StreamReports,
		comment("c1", "ghost", "hi", ago(time.Minute)),
		comment("c2", "alice", "hi", ago(2*time.Minute)),
	)

	s := newTestService(testConfig(), platform, store)
	report, err := s.RunModeration(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"approve t1_c2"}, platform.calls)
	assert.Equal(t, 2, report.Communities[0].ItemsScanned["reports"])

	records, err := store.ListActionsSince(ctx, models.ActionApprove, time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "https://www.reddit.com/r/pics/comments/post/a/c2", records[0].Permalink)
}

func TestRunModeration_ReapprovalAccumulatesAcrossRuns(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemory()
	platform := newFakePlatform()

	pics := seedCommunity(t, store, models.Community{Name: "pics", Enabled: true, AutoReapprove: true})
	first := "https://www.reddit.com/r/pics/comments/a/post/"
	botOnly := "https://www.reddit.com/r/pics/comments/b/post/"
	platform.reports["pics"] = []models.ReportedItem{
		{Fullname: "t3_a", Permalink: first, Reports: 3, ApprovedBy: "human"},
		{Fullname: "t3_b", Permalink: botOnly, Reports: 2, ApprovedBy: "ModBot"},
	}

	s := newTestService(testConfig(), platform, store)
	report, err := s.RunModeration(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"approve t3_a"}, platform.calls)
	assert.Equal(t, 1, report.TotalActions)
	assert.Equal(t, 1, report.Communities[0].Reapprovals)

	rec, err := store.GetReapproval(ctx, pics.ID, first)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.TotalReports)
	assert.Equal(t, "human", rec.OriginalApprover)
	firstID := rec.ID

	_, err = store.GetReapproval(ctx, pics.ID, botOnly)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	later := fixedNow.Add(time.Hour)
	s.now = func() time.Time { return later }
	platform.reports["pics"] = []models.ReportedItem{
		{Fullname: "t3_a", Permalink: first, Reports: 4, ApprovedBy: "modbot"},
	}

	_, err = s.RunModeration(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"approve t3_a", "approve t3_a"}, platform.calls)

	rec, err = store.GetReapproval(ctx, pics.ID, first)
	require.NoError(t, err)
	assert.Equal(t, firstID, rec.ID)
	assert.Equal(t, 7, rec.TotalReports)
	assert.Equal(t, "human", rec.OriginalApprover)
	assert.Equal(t, fixedNow, rec.FirstApprovalTime)
	assert.Equal(t, later, rec.LastApprovalTime)
}

func TestRunModeration_AlertsOncePerPermalink(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemory()
	platform := newFakePlatform()

	seedCommunity(t, store, models.Community{Name: "pics", Enabled: true, ReportThreshold: intPtr(5)})
	hot := "https://www.reddit.com/r/pics/comments/a/post/"
	platform.reports["pics"] = []models.ReportedItem{
		{Fullname: "t3_a", Permalink: hot, Reports: 6},
		{Fullname: "t3_b", Permalink: "https://www.reddit.com/r/pics/comments/b/post/", Reports: 4},
	}

	notifier := new(MockNotifications)
	notifier.On("SendAlert", mock.MatchedBy(func(a *models.Alert) bool {
		return a.Permalink == hot && a.Community == "pics"
	})).Return(nil).Once()
	notifier.On("SendRunReport", mock.AnythingOfType("*models.RunReport")).Return(nil).Once()

	s := newTestService(testConfig(), platform, store)
	s.notificationService = notifier

	for i := 0; i < 2; i++ {
		_, err := s.RunModeration(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"notify pics"}, platform.calls)
	require.Len(t, platform.notified, 1)
	assert.Contains(t, platform.notified[0], hot)
	notifier.AssertExpectations(t)
}

func TestRunModeration_CancelledRunKeepsPerformedAlerts(t *testing.T) {
	memory := persistence.NewMemory()
	store := liveContextStore{Persistence: memory}
	platform := newFakePlatform()

	community := seedCommunity(t, memory, models.Community{Name: "pics", Enabled: true, ReportThreshold: intPtr(5)})
	first := "https://www.reddit.com/r/pics/comments/a/post/"
	second := "https://www.reddit.com/r/pics/comments/c/post/"
	platform.reports["pics"] = []models.ReportedItem{
		{Fullname: "t3_a", Permalink: first, Reports: 6},
		{Fullname: "t3_c", Permalink: second, Reports: 9},
	}

	ctx, cancel := context.WithCancel(context.Background())
	platform.onNotify = cancel

	s := newTestService(testConfig(), platform, store)
	report, err := s.RunModeration(ctx)
	require.NoError(t, err)
	require.Len(t, report.Communities, 1)
	assert.Contains(t, report.Communities[0].Error, context.Canceled.Error())

	recorded, err := memory.HasAction(context.Background(), community.ID, first, models.ActionAlert)
	require.NoError(t, err)
	assert.True(t, recorded)

	platform.onNotify = nil
	_, err = s.RunModeration(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"notify pics", "notify pics"}, platform.calls)
	require.Len(t, platform.notified, 2)
	assert.Contains(t, platform.notified[0], first)
	assert.Contains(t, platform.notified[1], second)
}

func TestRunModeration_CommunityFailureIsIsolated(t *testing.T) {
	tests := []struct {
		name        string
		breakIt     func(p *fakePlatform)
		wantErr     string
		wantPartial bool
	}{
		{
			name:        "listing error keeps performed actions",
			breakIt:     func(p *fakePlatform) { p.streamErr["broken"] = errListing },
			wantErr:     "failed to scan submissions",
			wantPartial: true,
		},
		{
			name:    "panic is recovered",
			breakIt: func(p *fakePlatform) { p.panicOn = "broken" },
			wantErr: "panic: listing exploded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := persistence.NewMemory()
			platform := newFakePlatform()

			broken := seedCommunity(t, store, models.Community{Name: "broken", Enabled: true},
				rule(1, nil, models.SubjectSubmission, models.AttributeTitle, ".*", models.ActionRemove),
			)
			seedCommunity(t, store, models.Community{Name: "pics", Enabled: true},
				rule(1, nil, models.SubjectSubmission, models.AttributeTitle, ".*", models.ActionRemove),
			)

			spam := submission("s1", "spam", ago(time.Minute))
			platform.addStream("broken", models.StreamSpam, spam)
			platform.pending["broken"] = []*models.Item{spam}
			platform.addStream("pics", models.StreamSubmissions, submission("p1", "post", ago(time.Minute)))
			tt.breakIt(platform)

			s := newTestService(testConfig(), platform, store)
			report, err := s.RunModeration(ctx)
			require.NoError(t, err)

			require.Len(t, report.Communities, 2)
			assert.Contains(t, report.Communities[0].Error, tt.wantErr)
			assert.Empty(t, report.Communities[1].Error)
			assert.Contains(t, platform.calls, "remove t3_p1")

			removed, err := store.HasAction(ctx, broken.ID, spam.Permalink, models.ActionRemove)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPartial, removed)
			assert.True(t, findCommunity(t, store, "broken").LastSpam.IsZero())
			assert.Equal(t, ago(time.Minute), findCommunity(t, store, "pics").LastSubmission)
			assert.Contains(t, s.GetMetrics(), `"error_count": 1`)
		})
	}
}

func TestRunModeration_AnswersModmailAboutApprovals(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemory()
	platform := newFakePlatform()

	seedCommunity(t, store, models.Community{Name: "pics", Enabled: true},
		rule(1, nil, models.SubjectSubmission, models.AttributeTitle, ".*", models.ActionApprove),
	)
	item := submission("b", "hello", ago(10*time.Minute))
	platform.addStream("pics", models.StreamSpam, item)
	platform.pending["pics"] = []*models.Item{item}
	platform.modmail = []*models.ModmailMessage{
		{Fullname: "t4_4", Author: "alice", Dest: "#funny", CreatedAt: ago(time.Minute)},
		{Fullname: "t4_3", Author: "alice", Dest: "#Pics", CreatedAt: ago(2 * time.Minute)},
		{Fullname: "t4_2", Author: "bob", Dest: "#pics", CreatedAt: ago(3 * time.Minute)},
		{Fullname: "t4_1", Author: "alice", Dest: "#pics", CreatedAt: ago(5 * time.Minute), HasReplies: true},
	}

	s := newTestService(testConfig(), platform, store)
	report, err := s.RunModeration(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"approve t3_b", "modmail t4_3"}, platform.calls)
	assert.Equal(t, 1, report.ModmailReplies)
}

func TestRunModeration_DryRun(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemory()
	platform := newFakePlatform()

	pics := seedCommunity(t, store, models.Community{Name: "pics", Enabled: true},
		withComment(rule(1, nil, models.SubjectSubmission, models.AttributeTitle, ".*", models.ActionRemove), "No."),
	)
	item := submission("a", "anything", ago(time.Minute))
	platform.addStream("pics", models.StreamSubmissions, item)

	cfg := testConfig()
	cfg.DryRun = true
	s := newTestService(cfg, platform, store)
	report, err := s.RunModeration(ctx)
	require.NoError(t, err)

	assert.Empty(t, platform.calls)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.TotalActions)

	recorded, err := store.HasAction(ctx, pics.ID, item.Permalink, models.ActionRemove)
	require.NoError(t, err)
	assert.True(t, recorded)
}

func TestRunModeration_WatermarksPreventRescans(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemory()
	platform := newFakePlatform()

	seedCommunity(t, store, models.Community{Name: "pics", Enabled: true, ReportedCommentsOnly: true},
		rule(1, nil, models.SubjectSubmission, models.AttributeTitle, ".*spam.*", models.ActionRemove),
		rule(2, nil, models.SubjectComment, models.AttributeBody, ".*", models.ActionRemove),
	)
	platform.addStream("pics", models.StreamSubmissions,
		submission("x", "spam here", ago(time.Minute)),
		submission("y", "fine", ago(2*time.Minute)),
	)
	platform.addStream("pics", models.StreamComments, comment("c1", "alice", "anything", ago(time.Minute)))

	s := newTestService(testConfig(), platform, store)
	first, err := s.RunModeration(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"remove t3_x"}, platform.calls)
	assert.Equal(t, 2, first.Communities[0].ItemsScanned["submissions"])
	assert.Zero(t, first.Communities[0].ItemsScanned["comments"])

	second, err := s.RunModeration(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"remove t3_x"}, platform.calls)
	assert.Zero(t, second.Communities[0].ItemsScanned["submissions"])
	assert.Equal(t, ago(time.Minute), findCommunity(t, store, "pics").LastSubmission)
}

func TestRunModeration_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent run is rejected", func(t *testing.T) {
		s := newTestService(testConfig(), newFakePlatform(), persistence.NewMemory())
		s.running.Store(true)

		_, err := s.RunModeration(ctx)
		assert.ErrorIs(t, err, ErrRunInProgress)
	})

	t.Run("authentication failure aborts the run", func(t *testing.T) {
		platform := newFakePlatform()
		platform.authErr = errListing
		s := newTestService(testConfig(), platform, persistence.NewMemory())

		report, err := s.RunModeration(ctx)
		assert.ErrorIs(t, err, errListing)
		assert.Nil(t, report)
		assert.Contains(t, s.GetMetrics(), "failed to authenticate as modbot")
		assert.False(t, s.running.Load())
	})

	t.Run("latest report without runs or archive", func(t *testing.T) {
		s := newTestService(testConfig(), newFakePlatform(), persistence.NewMemory())
		report, err := s.LatestReport(ctx)
		require.NoError(t, err)
		assert.Nil(t, report)
	})
}
