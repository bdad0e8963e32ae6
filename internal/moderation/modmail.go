package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redditmod/modbot/internal/models"
	"github.com/sirupsen/logrus"
)

func approvalNotice(bot string) string {
	return "Your submission has been approved automatically by " + bot + ". " +
		"For future submissions please wait at least 5 minutes before messaging the mods, " +
		"this post would have been approved automatically even without you sending this message."
}

// respondToModmail answers unanswered modmail sent by authors whose items
// were approved during this run. It returns the number of replies sent.
func (s *Service) respondToModmail(ctx context.Context, since time.Time, names map[int64]string) (int, error) {
	approvals, err := s.store.ListActionsSince(ctx, models.ActionApprove, since)
	if err != nil {
		return 0, fmt.Errorf("failed to list approvals: %w", err)
	}
	if len(approvals) == 0 {
		return 0, nil
	}

	inbox := NewLazyCache(s.platform.Modmail(s.config.StreamLimit), func(m *models.ModmailMessage) time.Time {
		return m.CreatedAt
	})
	notice := approvalNotice(s.platform.Username())

	replies := 0
	for _, rec := range approvals {
		name, ok := names[rec.CommunityID]
		if !ok || rec.ItemCreatedAt == nil || rec.User == "" {
			continue
		}

		msg, found, err := inbox.Find(ctx, *rec.ItemCreatedAt, func(m *models.ModmailMessage) bool {
			return strings.EqualFold(m.Dest, "#"+name) && m.Author == rec.User && !m.HasReplies
		})
		if err != nil {
			return replies, fmt.Errorf("failed to read modmail: %w", err)
		}
		if !found {
			continue
		}

		if err = s.dispatcher.ReplyToModmail(ctx, msg.Fullname, notice); err != nil {
			return replies, err
		}
		msg.HasReplies = true
		replies++
		logrus.WithFields(logrus.Fields{
			"community": name,
			"author":    rec.User,
			"message":   msg.Fullname,
		}).Info("Answered modmail about an approved item")
	}
	return replies, nil
}
