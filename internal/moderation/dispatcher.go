package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redditmod/modbot/internal/conditions"
	"github.com/redditmod/modbot/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	alertSubject = "Reported Item Alert"
	alertBody    = "The following item has received a large number of reports, please investigate:\n\n"
)

// Dispatcher performs matched actions on the platform and stages their audit
// records. Every mutating call waits on the limiter so writes stay spaced.
type Dispatcher struct {
	platform Platform
	limiter  *rate.Limiter
	dryRun   bool
	now      func() time.Time
}

func NewDispatcher(platform Platform, writeDelay time.Duration, dryRun bool) *Dispatcher {
	return &Dispatcher{
		platform: platform,
		limiter:  rate.NewLimiter(rate.Every(writeDelay), 1),
		dryRun:   dryRun,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) write(ctx context.Context, desc string, fn func() error) error {
	if d.dryRun {
		logrus.Infof("Dry run, skipping %s", desc)
		return nil
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return fmt.Errorf("failed to %s: %w", desc, err)
	}
	return nil
}

// Dispatch acts on item for the matched nodes, which all share one action.
// Communities checking all conditions get one combined comment.
func (d *Dispatcher) Dispatch(ctx context.Context, rc *runContext, item *models.Item, matched []int) error {
	if len(matched) == 0 {
		return nil
	}
	first := rc.forest.Node(matched[0])
	action := first.RootAction
	if action != models.ActionRemove && action != models.ActionApprove {
		return fmt.Errorf("condition %d: items cannot be dispatched with action %q", first.Condition.ID, action)
	}

	if text := composeComment(rc.forest, matched, action, rc.community().CheckAllConditions); text != "" && item.Kind == models.SubjectSubmission {
		text += disclaimer(rc.community().Name)
		if err := d.reply(ctx, item, text); err != nil {
			return err
		}
	}

	var err error
	switch action {
	case models.ActionRemove:
		err = d.write(ctx, "remove "+item.Fullname(), func() error { return d.platform.Remove(ctx, item.Fullname()) })
	case models.ActionApprove:
		err = d.write(ctx, "approve "+item.Fullname(), func() error { return d.platform.Approve(ctx, item.Fullname()) })
	}
	if err != nil {
		return err
	}

	conditionID := first.Condition.ID
	created := item.CreatedAt
	rec := models.ActionRecord{
		Action:        action,
		ConditionID:   &conditionID,
		User:          item.Author,
		ItemCreatedAt: &created,
		ActionTime:    d.now(),
	}
	if item.Kind == models.SubjectSubmission {
		rec.Title = item.Title
		rec.Permalink = item.Permalink
		rec.URL = item.URL
		rec.Domain = item.Domain
	} else {
		rec.Permalink = commentPermalink(item)
	}
	rc.record(rec)
	actionsTotal.WithLabelValues(string(action)).Inc()

	logrus.WithFields(logrus.Fields{
		"community": rc.community().Name,
		"action":    action,
		"kind":      item.Kind,
		"author":    item.Author,
		"permalink": rec.Permalink,
		"condition": conditionID,
	}).Infof("Item %s", action.PastTense())
	return nil
}

func (d *Dispatcher) reply(ctx context.Context, item *models.Item, text string) error {
	var comment string
	err := d.write(ctx, "reply to "+item.Fullname(), func() error {
		var err error
		comment, err = d.platform.Reply(ctx, item.Fullname(), text)
		return err
	})
	if err != nil || comment == "" {
		return err
	}
	return d.write(ctx, "distinguish "+comment, func() error { return d.platform.Distinguish(ctx, comment) })
}

// Alert messages the community's moderators about a heavily reported item.
// Only the permalink is known for these items.
func (d *Dispatcher) Alert(ctx context.Context, rc *runContext, permalink string) error {
	name := rc.community().Name
	err := d.write(ctx, "alert moderators of "+name, func() error {
		return d.platform.NotifyModerators(ctx, name, alertSubject, alertBody+permalink)
	})
	if err != nil {
		return err
	}

	now := d.now()
	rc.record(models.ActionRecord{Action: models.ActionAlert, Permalink: permalink, ActionTime: now})
	rc.alerts = append(rc.alerts, models.Alert{
		Community: name,
		Title:     alertSubject,
		Message:   alertBody + permalink,
		Permalink: permalink,
		CreatedAt: now,
	})
	actionsTotal.WithLabelValues(string(models.ActionAlert)).Inc()

	logrus.WithFields(logrus.Fields{
		"community": name,
		"action":    models.ActionAlert,
		"permalink": permalink,
	}).Info("Alerted moderators")
	return nil
}

// Reapprove approves a reported item again. The guard in the report pass
// keeps the record.
func (d *Dispatcher) Reapprove(ctx context.Context, fullname string) error {
	return d.write(ctx, "reapprove "+fullname, func() error { return d.platform.Approve(ctx, fullname) })
}

// ReplyToModmail answers a modmail message
func (d *Dispatcher) ReplyToModmail(ctx context.Context, fullname, text string) error {
	return d.write(ctx, "answer modmail "+fullname, func() error { return d.platform.ReplyToModmail(ctx, fullname, text) })
}

// composeComment returns "" when no matched condition carries a comment.
// A single rule's comment is posted as written; combined matches are listed.
func composeComment(f *conditions.Forest, matched []int, action models.Action, combined bool) string {
	var comments []string
	for _, idx := range matched {
		if c := f.Node(idx).Condition.Comment; c != "" {
			comments = append(comments, c)
		}
	}
	if len(comments) == 0 {
		return ""
	}
	if !combined {
		return comments[0]
	}

	var b strings.Builder
	b.WriteString("This has been " + action.PastTense() + " for the following reasons:\n\n")
	for _, c := range comments {
		b.WriteString("* " + c + "\n")
	}
	return b.String()
}

func disclaimer(community string) string {
	return "\n\n*I am a bot, and this action was performed automatically. " +
		"Please [contact the moderators of this subreddit](https://www.reddit.com/message/compose?to=%23" +
		community + ") if you have any questions or concerns.*"
}

func commentPermalink(item *models.Item) string {
	return "https://www.reddit.com/r/" + item.Subreddit + "/comments/" +
		strings.TrimPrefix(item.LinkID, "t3_") + "/a/" + item.ID
}
