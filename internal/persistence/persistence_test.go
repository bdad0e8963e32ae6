package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redditmod/modbot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func idPtr(v int64) *int64 { return &v }

func testStores(t *testing.T) map[string]Persistence {
	t.Helper()
	stores := map[string]Persistence{"memory": NewMemory()}

	// the libsql driver needs cgo, so the SQL suite is opt in
	if os.Getenv("MODBOT_SQL_TESTS") != "" {
		ctx := context.Background()
		handle, err := New(ctx, "sqlite", "file:"+filepath.Join(t.TempDir(), "modbot.db"))
		require.NoError(t, err)
		require.NoError(t, handle.Migrate(ctx))
		t.Cleanup(func() { _ = handle.Close(ctx) })
		stores["sqlite"] = handle
	}
	return stores
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New(context.Background(), "oracle", "")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestStore_Communities(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id, err := store.UpsertCommunity(ctx, &models.Community{Name: "pics", Enabled: true, ReportThreshold: intPtr(5)})
			require.NoError(t, err)
			_, err = store.UpsertCommunity(ctx, &models.Community{Name: "off", Enabled: false})
			require.NoError(t, err)

			again, err := store.UpsertCommunity(ctx, &models.Community{Name: "pics", Enabled: true, AutoReapprove: true})
			require.NoError(t, err)
			assert.Equal(t, id, again)

			communities, err := store.ListEnabledCommunities(ctx)
			require.NoError(t, err)
			require.Len(t, communities, 1)
			assert.Equal(t, "pics", communities[0].Name)
			assert.True(t, communities[0].AutoReapprove)
			assert.Nil(t, communities[0].ReportThreshold)
			assert.True(t, communities[0].LastSubmission.IsZero())
		})
	}
}

func TestStore_ReplaceConditionsRemapsParents(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := store.UpsertCommunity(ctx, &models.Community{Name: "pics", Enabled: true})
			require.NoError(t, err)

			conds := []models.Condition{
				{ID: 1, Subject: models.SubjectSubmission, Attribute: models.AttributeTitle, Value: "spam", Action: models.ActionRemove, Comment: "no spam"},
				{ID: 2, ParentID: idPtr(1), Subject: models.SubjectSubmission, Attribute: models.AttributeDomain, Value: "example.com", AccountAge: intPtr(3), IsGold: boolPtr(false)},
			}
			require.NoError(t, store.ReplaceConditions(ctx, id, conds))
			// replacing twice must not duplicate the forest
			require.NoError(t, store.ReplaceConditions(ctx, id, conds))

			loaded, err := store.LoadConditions(ctx, id)
			require.NoError(t, err)
			require.Len(t, loaded, 2)

			root, child := loaded[0], loaded[1]
			assert.Nil(t, root.ParentID)
			assert.Equal(t, models.ActionRemove, root.Action)
			assert.Equal(t, "no spam", root.Comment)
			require.NotNil(t, child.ParentID)
			assert.Equal(t, root.ID, *child.ParentID)
			assert.Equal(t, models.Action(""), child.Action)
			assert.Equal(t, 3, *child.AccountAge)
			assert.False(t, *child.IsGold)
			assert.Nil(t, child.LinkKarma)
		})
	}
}

func TestStore_CommitRun(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := store.UpsertCommunity(ctx, &models.Community{Name: "pics", Enabled: true})
			require.NoError(t, err)

			now := time.Unix(1_700_000_000, 0).UTC()
			created := now.Add(-time.Hour)
			community := models.Community{ID: id, Name: "pics", Enabled: true, LastSubmission: now, LastComment: now.Add(-time.Minute)}

			require.NoError(t, store.CommitRun(ctx, &RunState{
				Community: community,
				Actions: []models.ActionRecord{
					{Action: models.ActionRemove, ConditionID: idPtr(9), Title: "t", User: "alice", Permalink: "https://www.reddit.com/r/pics/comments/a/", ItemCreatedAt: &created, ActionTime: now},
					{Action: models.ActionApprove, Permalink: "https://www.reddit.com/r/pics/comments/b/", ActionTime: now},
				},
				Reapprovals: []*models.ReapprovalRecord{
					{Permalink: "https://www.reddit.com/r/pics/comments/c/", OriginalApprover: "mod", TotalReports: 3, FirstApprovalTime: now, LastApprovalTime: now},
				},
			}))

			communities, err := store.ListEnabledCommunities(ctx)
			require.NoError(t, err)
			require.Len(t, communities, 1)
			assert.True(t, communities[0].LastSubmission.Equal(now))
			assert.True(t, communities[0].LastSpam.IsZero())

			has, err := store.HasAction(ctx, id, "https://www.reddit.com/r/pics/comments/a/", models.ActionRemove)
			require.NoError(t, err)
			assert.True(t, has)
			has, err = store.HasAction(ctx, id, "https://www.reddit.com/r/pics/comments/a/", models.ActionAlert)
			require.NoError(t, err)
			assert.False(t, has)

			approvals, err := store.ListActionsSince(ctx, models.ActionApprove, now)
			require.NoError(t, err)
			require.Len(t, approvals, 1)
			assert.Equal(t, id, approvals[0].CommunityID)
			assert.Nil(t, approvals[0].ItemCreatedAt)

			later, err := store.ListActionsSince(ctx, models.ActionApprove, now.Add(time.Second))
			require.NoError(t, err)
			assert.Empty(t, later)

			rec, err := store.GetReapproval(ctx, id, "https://www.reddit.com/r/pics/comments/c/")
			require.NoError(t, err)
			assert.Equal(t, 3, rec.TotalReports)
			assert.Equal(t, "mod", rec.OriginalApprover)

			rec.TotalReports += 4
			rec.LastApprovalTime = now.Add(time.Hour)
			require.NoError(t, store.CommitRun(ctx, &RunState{Community: communities[0], Reapprovals: []*models.ReapprovalRecord{rec}}))

			updated, err := store.GetReapproval(ctx, id, rec.Permalink)
			require.NoError(t, err)
			assert.Equal(t, rec.ID, updated.ID)
			assert.Equal(t, 7, updated.TotalReports)
			assert.True(t, updated.FirstApprovalTime.Equal(now))
			assert.True(t, updated.LastApprovalTime.Equal(now.Add(time.Hour)))

			_, err = store.GetReapproval(ctx, id, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}
