package conditions

import (
	"context"
	"fmt"
	"time"

	"github.com/redditmod/modbot/internal/models"
	"github.com/sirupsen/logrus"
)

// Outcome is the result of evaluating one condition tree
type Outcome int

const (
	NoMatch Outcome = iota
	Match
	EvalError
)

func (o Outcome) String() string {
	switch o {
	case Match:
		return "match"
	case EvalError:
		return "error"
	}
	return "no match"
}

// Result carries the outcome and, for EvalError, the reason
type Result struct {
	Outcome Outcome
	Err     error
}

// Matched folds EvalError into a non-match
func (r Result) Matched() bool {
	return r.Outcome == Match
}

func matchResult(ok bool) Result {
	if ok {
		return Result{Outcome: Match}
	}
	return Result{Outcome: NoMatch}
}

func errorResult(err error) Result {
	return Result{Outcome: EvalError, Err: err}
}

// Evaluator tests condition trees against items
type Evaluator struct {
	extractor *Extractor
	accounts  AccountLookup
	now       func() time.Time
}

// NewEvaluator creates an evaluator. accounts may be nil when no condition
// uses eligibility thresholds.
func NewEvaluator(accounts AccountLookup, memes MemeLookup) *Evaluator {
	return &Evaluator{
		extractor: NewExtractor(memes),
		accounts:  accounts,
		now:       time.Now,
	}
}

// Evaluate tests the tree rooted at idx against item
func (e *Evaluator) Evaluate(ctx context.Context, item *models.Item, f *Forest, idx int) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = errorResult(fmt.Errorf("condition %d panicked: %v", f.Node(idx).Condition.ID, r))
		}
	}()

	node := f.Node(idx)
	c := &node.Condition

	if node.patternErr != nil {
		return errorResult(node.patternErr)
	}

	value, err := e.extractor.Extract(ctx, c.Attribute, item)
	if err != nil {
		return errorResult(fmt.Errorf("extracting %s: %w", c.Attribute, err))
	}

	satisfied := node.pattern.MatchString(value)
	logrus.Debugf("Check #%d: %q match %s = %t", c.ID, value, node.pattern.String(), satisfied)

	if satisfied {
		satisfied, err = e.eligible(ctx, item, node)
		if err != nil {
			return errorResult(err)
		}
	}

	if c.Inverse {
		satisfied = !satisfied
	}
	if !satisfied {
		return matchResult(false)
	}

	for _, child := range node.Children {
		if r := e.Evaluate(ctx, item, f, child); !r.Matched() {
			return r
		}
	}

	return matchResult(true)
}

// eligible runs the author threshold checks. A failed check returns the
// tree's fail result: true for removals and alerts, false for approvals.
func (e *Evaluator) eligible(ctx context.Context, item *models.Item, node *Node) (bool, error) {
	c := &node.Condition
	if !c.HasEligibility() {
		return true, nil
	}

	failResult := node.RootAction != models.ActionApprove

	if item.AuthorDeleted() {
		return failResult, nil
	}
	if e.accounts == nil {
		return false, fmt.Errorf("no account lookup configured")
	}

	if c.IsShadowbanned != nil {
		reachable, err := e.accounts.IsReachable(ctx, item.Author)
		if err != nil {
			logrus.Debugf("Reachability probe for %s failed: %v", item.Author, err)
			return failResult, nil
		}
		if !reachable {
			return failResult, nil
		}
	}

	acct, err := e.accounts.GetAccount(ctx, item.Author)
	if err != nil {
		return false, fmt.Errorf("looking up account %s: %w", item.Author, err)
	}

	if c.IsGold != nil && *c.IsGold != acct.IsGold {
		return failResult, nil
	}
	if c.LinkKarma != nil && acct.LinkKarma < *c.LinkKarma {
		return failResult, nil
	}
	if c.CommentKarma != nil && acct.CommentKarma < *c.CommentKarma {
		return failResult, nil
	}
	if c.CombinedKarma != nil && acct.LinkKarma+acct.CommentKarma < *c.CombinedKarma {
		return failResult, nil
	}
	if c.AccountAge != nil {
		days := int(e.now().Sub(acct.CreatedAt) / (24 * time.Hour))
		if days < *c.AccountAge {
			return failResult, nil
		}
	}

	return !failResult, nil
}
