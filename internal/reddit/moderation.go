package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/redditmod/modbot/internal/models"
)

var streamPaths = map[models.StreamKind]string{
	models.StreamReports:     "/about/reports",
	models.StreamSpam:        "/about/spam",
	models.StreamSubmissions: "/new",
	models.StreamComments:    "/comments",
}

// Stream lists a community's items newest first, up to limit entries
func (c *Client) Stream(community string, stream models.StreamKind, limit int) Iterator[*models.Item] {
	return newListing(c, subredditPath(community, streamPaths[stream]), limit, toItem)
}

// PendingQueue lists items still awaiting moderation, newest first
func (c *Client) PendingQueue(community string, limit int) Iterator[*models.Item] {
	return newListing(c, subredditPath(community, "/about/modqueue"), limit, toItem)
}

// Modmail lists messages sent to the moderators of communities the bot moderates
func (c *Client) Modmail(limit int) Iterator[*models.ModmailMessage] {
	return newListing(c, "/message/moderator", limit, toModmail)
}

// ReportListing returns every currently reported item with its report count
// and last approver
func (c *Client) ReportListing(ctx context.Context, community string) ([]models.ReportedItem, error) {
	listing := newListing(c, subredditPath(community, "/about/reports"), 1000, func(kind string, t *thing) (models.ReportedItem, bool) {
		if kind != "t1" && kind != "t3" {
			return models.ReportedItem{}, false
		}
		reports := 0
		if t.NumReports != nil {
			reports = *t.NumReports
		}
		return models.ReportedItem{
			Fullname:   t.Name,
			Permalink:  absolutePermalink(t.Permalink),
			Reports:    reports,
			ApprovedBy: deref(t.ApprovedBy),
		}, true
	})

	var out []models.ReportedItem
	for {
		item, err := listing.Next(ctx)
		if errors.Is(err, models.ErrEndOfStream) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
}

type accountResponse struct {
	Data struct {
		Name         string  `json:"name"`
		IsGold       bool    `json:"is_gold"`
		LinkKarma    int     `json:"link_karma"`
		CommentKarma int     `json:"comment_karma"`
		CreatedUTC   float64 `json:"created_utc"`
	} `json:"data"`
}

// GetAccount returns the public profile of an author
func (c *Client) GetAccount(ctx context.Context, name string) (*models.Account, error) {
	var resp accountResponse
	if err := c.get(ctx, "/user/"+url.PathEscape(name)+"/about", nil, &resp); err != nil {
		return nil, err
	}
	return &models.Account{
		Name:         resp.Data.Name,
		IsGold:       resp.Data.IsGold,
		LinkKarma:    resp.Data.LinkKarma,
		CommentKarma: resp.Data.CommentKarma,
		CreatedAt:    time.Unix(int64(resp.Data.CreatedUTC), 0).UTC(),
	}, nil
}

// IsReachable reads one entry of the author's history. Suppressed accounts
// answer 404.
func (c *Client) IsReachable(ctx context.Context, name string) (bool, error) {
	err := c.get(ctx, "/user/"+url.PathEscape(name)+"/overview", map[string]string{"limit": "1"}, nil)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Remove removes an item without marking it as spam
func (c *Client) Remove(ctx context.Context, fullname string) error {
	_, err := c.post(ctx, "/api/remove", map[string]string{"id": fullname, "spam": "false"})
	return err
}

// Approve approves an item
func (c *Client) Approve(ctx context.Context, fullname string) error {
	_, err := c.post(ctx, "/api/approve", map[string]string{"id": fullname})
	return err
}

// Reply comments on an item and returns the fullname of the new comment
func (c *Client) Reply(ctx context.Context, parent, text string) (string, error) {
	resp, err := c.post(ctx, "/api/comment", map[string]string{"thing_id": parent, "text": text})
	if err != nil {
		return "", err
	}
	if len(resp.JSON.Data.Things) == 0 {
		return "", fmt.Errorf("reply to %s returned no comment", parent)
	}
	return resp.JSON.Data.Things[0].Data.Name, nil
}

// Distinguish marks a comment as posted by a moderator
func (c *Client) Distinguish(ctx context.Context, fullname string) error {
	_, err := c.post(ctx, "/api/distinguish", map[string]string{"id": fullname, "how": "yes"})
	return err
}

// NotifyModerators sends a private message to a community's moderators
func (c *Client) NotifyModerators(ctx context.Context, community, subject, body string) error {
	_, err := c.post(ctx, "/api/compose", map[string]string{
		"to":      "/r/" + community,
		"subject": subject,
		"text":    body,
	})
	return err
}

// ReplyToModmail answers a modmail message
func (c *Client) ReplyToModmail(ctx context.Context, fullname, text string) error {
	_, err := c.post(ctx, "/api/comment", map[string]string{"thing_id": fullname, "text": text})
	return err
}
