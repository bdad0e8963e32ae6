package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redditmod/modbot/internal/models"
	"github.com/redditmod/modbot/internal/persistence"
	"github.com/sirupsen/logrus"
)

// processReportListing raises report-threshold alerts and re-approves items
// a human moderator already approved
func (s *Service) processReportListing(ctx context.Context, rc *runContext) error {
	community := rc.community()
	threshold := 0
	if community.ReportThreshold != nil {
		threshold = *community.ReportThreshold
	}
	if threshold <= 0 && !community.AutoReapprove {
		return nil
	}

	reported, err := s.platform.ReportListing(ctx, community.Name)
	if err != nil {
		return fmt.Errorf("failed to load report listing: %w", err)
	}

	for _, item := range reported {
		if threshold > 0 && item.Reports >= threshold {
			if err = s.alertOnce(ctx, rc, item.Permalink); err != nil {
				return err
			}
		}
	}

	if !community.AutoReapprove {
		return nil
	}
	for _, item := range reported {
		if item.ApprovedBy == "" {
			continue
		}
		if err = s.reapprove(ctx, rc, item); err != nil {
			return err
		}
	}
	return nil
}

// alertOnce alerts at most once per permalink over the life of the audit log
func (s *Service) alertOnce(ctx context.Context, rc *runContext, permalink string) error {
	if rc.stagedAction(permalink, models.ActionAlert) {
		return nil
	}
	done, err := s.store.HasAction(ctx, rc.community().ID, permalink, models.ActionAlert)
	if err != nil {
		return err
	}
	if done {
		return nil
	}
	return s.dispatcher.Alert(ctx, rc, permalink)
}

// reapprove approves a reported item again and accumulates its reports. A
// first reapproval needs a human approver; once the bot is the approver the
// record must already exist.
func (s *Service) reapprove(ctx context.Context, rc *runContext, item models.ReportedItem) error {
	rec, ok := rc.reapprovals[item.Permalink]
	if !ok {
		stored, err := s.store.GetReapproval(ctx, rc.community().ID, item.Permalink)
		switch {
		case errors.Is(err, persistence.ErrNotFound):
		case err != nil:
			return err
		default:
			rec = stored
		}
	}

	now := s.now()
	if rec == nil {
		if strings.EqualFold(item.ApprovedBy, s.platform.Username()) {
			logrus.Debugf("Skipping reapproval of %s, approved by the bot without a record", item.Permalink)
			return nil
		}
		rec = &models.ReapprovalRecord{
			CommunityID:       rc.community().ID,
			Permalink:         item.Permalink,
			OriginalApprover:  item.ApprovedBy,
			FirstApprovalTime: now,
		}
	}

	if err := s.dispatcher.Reapprove(ctx, item.Fullname); err != nil {
		return err
	}

	rec.TotalReports += item.Reports
	rec.LastApprovalTime = now
	rc.stageReapproval(rec)
	rc.summary.Reapprovals++
	reapprovalsTotal.Inc()

	logrus.WithFields(logrus.Fields{
		"community":     rc.community().Name,
		"permalink":     item.Permalink,
		"total_reports": rec.TotalReports,
	}).Info("Re-approved reported item")
	return nil
}
