package moderation

import (
	"context"
	"errors"
	"time"

	"github.com/redditmod/modbot/internal/models"
	"github.com/redditmod/modbot/internal/reddit"
	"github.com/sirupsen/logrus"
)

// Scan walks a time-descending stream and visits every item newer than stop.
// It returns the creation time of the first item seen, which becomes the
// stream's next watermark, or the zero time when nothing was newer than stop.
// Sources that are not time ordered defeat the stop rule.
func Scan(ctx context.Context, items reddit.Iterator[*models.Item], stop time.Time, visit func(*models.Item) error) (time.Time, int, error) {
	var newest time.Time
	scanned := 0

	for {
		item, err := items.Next(ctx)
		if errors.Is(err, models.ErrEndOfStream) {
			return newest, scanned, nil
		}
		if err != nil {
			return time.Time{}, scanned, err
		}
		if !item.CreatedAt.After(stop) {
			return newest, scanned, nil
		}
		if newest.IsZero() {
			newest = item.CreatedAt
		}

		if err = visit(item); err != nil {
			return time.Time{}, scanned, err
		}
		scanned++
	}
}

// scanStream runs one stream of a community through the matcher
func (s *Service) scanStream(ctx context.Context, rc *runContext, stream models.StreamKind) error {
	community := rc.community()
	if stream == models.StreamComments && community.ReportedCommentsOnly {
		return nil
	}

	stop := community.Watermark(stream)
	if stream == models.StreamReports {
		stop = s.now().Add(-s.config.ReportBacklog)
	}
	roots := rc.streamRoots(stream)

	logrus.Debugf("Checking %s of /r/%s since %s against %d rules", stream, community.Name, stop.Format(time.RFC3339), len(roots))

	items := s.platform.Stream(community.Name, stream, s.config.StreamLimit)
	newest, scanned, err := Scan(ctx, items, stop, func(item *models.Item) error {
		if len(roots) == 0 {
			return nil
		}
		if stream == models.StreamSpam {
			pending, err := rc.pending.IsPending(ctx, item)
			if err != nil {
				return err
			}
			if !pending {
				return nil
			}
		}

		matched, err := s.matcher.Match(ctx, rc, item, roots, models.ActionRemove)
		if err != nil || matched != nil {
			return err
		}
		_, err = s.matcher.Match(ctx, rc, item, roots, models.ActionApprove)
		return err
	})

	rc.summary.ItemsScanned[string(stream)] += scanned
	itemsScannedTotal.WithLabelValues(string(stream)).Add(float64(scanned))
	if err != nil {
		return err
	}

	if !newest.IsZero() {
		community.SetWatermark(stream, newest)
	}
	logrus.Infof("Checked %d %s items in /r/%s", scanned, stream, community.Name)
	return nil
}
