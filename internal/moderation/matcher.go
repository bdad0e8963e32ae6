package moderation

import (
	"context"

	"github.com/redditmod/modbot/internal/conditions"
	"github.com/redditmod/modbot/internal/models"
	"github.com/sirupsen/logrus"
)

// Matcher selects the rule trees that apply to an item and dispatches them
type Matcher struct {
	evaluator  *conditions.Evaluator
	dispatcher *Dispatcher
}

func NewMatcher(evaluator *conditions.Evaluator, dispatcher *Dispatcher) *Matcher {
	return &Matcher{evaluator: evaluator, dispatcher: dispatcher}
}

// Match evaluates the roots carrying action against item, cheapest first.
// It returns the dispatched nodes, or nil when nothing matched. Approvals are
// suppressed for items any removal rule of the community would also match.
func (m *Matcher) Match(ctx context.Context, rc *runContext, item *models.Item, roots []int, action models.Action) ([]int, error) {
	f := rc.forest
	var candidates []int
	for _, idx := range roots {
		n := f.Node(idx)
		if n.Condition.Subject == item.Kind && n.RootAction == action {
			candidates = append(candidates, idx)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	var removable *bool
	collectAll := rc.community().CheckAllConditions
	var matched []int

	for _, idx := range conditions.Order(f, candidates) {
		if !m.matches(ctx, rc, item, idx) {
			continue
		}

		if action == models.ActionApprove {
			if removable == nil {
				r := m.removable(ctx, rc, item)
				removable = &r
			}
			if *removable {
				logrus.Debugf("Approval of %s suppressed by a matching removal rule", item.Fullname())
				continue
			}
		}

		matched = append(matched, idx)
		if !collectAll {
			break
		}
	}

	if len(matched) == 0 {
		return nil, nil
	}
	if err := m.dispatcher.Dispatch(ctx, rc, item, matched); err != nil {
		return nil, err
	}
	return matched, nil
}

// matches folds evaluation errors into a non-match
func (m *Matcher) matches(ctx context.Context, rc *runContext, item *models.Item, idx int) bool {
	res := m.evaluator.Evaluate(ctx, item, rc.forest, idx)
	if res.Outcome == conditions.EvalError {
		evalErrorsTotal.Inc()
		logrus.Debugf("Condition %d on %s: %v", rc.forest.Node(idx).Condition.ID, item.Fullname(), res.Err)
	}
	return res.Matched()
}

// removable reports whether any removal tree of the community matches item,
// without acting on it
func (m *Matcher) removable(ctx context.Context, rc *runContext, item *models.Item) bool {
	f := rc.forest
	removals := f.RootsWhere(func(_ int, n *conditions.Node) bool {
		return n.RootAction == models.ActionRemove && n.Condition.Subject == item.Kind
	})
	for _, idx := range conditions.Order(f, removals) {
		if m.matches(ctx, rc, item, idx) {
			return true
		}
	}
	return false
}
