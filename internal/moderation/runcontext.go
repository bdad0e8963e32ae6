package moderation

import (
	"github.com/redditmod/modbot/internal/conditions"
	"github.com/redditmod/modbot/internal/models"
	"github.com/redditmod/modbot/internal/persistence"
)

// runContext is the state owned by one community pass. Nothing in it
// outlives the pass.
type runContext struct {
	forest  *conditions.Forest
	state   *persistence.RunState
	pending *PendingQueue
	summary *models.CommunityRun
	alerts  []models.Alert

	// staged reapprovals by permalink, mirrored in state.Reapprovals
	reapprovals map[string]*models.ReapprovalRecord
}

func newRunContext(community models.Community, forest *conditions.Forest, pending *PendingQueue, summary *models.CommunityRun) *runContext {
	return &runContext{
		forest:      forest,
		state:       &persistence.RunState{Community: community},
		pending:     pending,
		summary:     summary,
		reapprovals: make(map[string]*models.ReapprovalRecord),
	}
}

func (rc *runContext) community() *models.Community {
	return &rc.state.Community
}

func (rc *runContext) record(rec models.ActionRecord) {
	rec.CommunityID = rc.community().ID
	rc.state.Actions = append(rc.state.Actions, rec)
	rc.summary.Actions[string(rec.Action)]++
}

// stagedAction reports whether this pass already recorded action for permalink
func (rc *runContext) stagedAction(permalink string, action models.Action) bool {
	for _, rec := range rc.state.Actions {
		if rec.Action == action && rec.Permalink == permalink {
			return true
		}
	}
	return false
}

func (rc *runContext) stageReapproval(rec *models.ReapprovalRecord) {
	if _, ok := rc.reapprovals[rec.Permalink]; ok {
		return
	}
	rc.reapprovals[rec.Permalink] = rec
	rc.state.Reapprovals = append(rc.state.Reapprovals, rec)
}

// streamRoots selects the rule trees each stream evaluates
func (rc *runContext) streamRoots(stream models.StreamKind) []int {
	f := rc.forest
	switch stream {
	case models.StreamSpam:
		return f.Roots
	case models.StreamReports:
		return f.RootsWhere(func(idx int, n *conditions.Node) bool {
			return n.Condition.Subject == models.SubjectComment && !f.UsesProbe(idx)
		})
	default:
		return f.RootsWhere(func(idx int, n *conditions.Node) bool {
			return n.RootAction == models.ActionRemove && !f.UsesProbe(idx)
		})
	}
}
