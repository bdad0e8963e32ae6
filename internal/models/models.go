package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DeletedUser is the author name the platform reports for removed accounts
const DeletedUser = "[deleted]"

// ErrEndOfStream is returned by item iterators once the source is exhausted
var ErrEndOfStream = errors.New("end of stream")

// ErrUnknownAttribute is returned when a condition names an attribute with no extractor
var ErrUnknownAttribute = errors.New("unknown condition attribute")

// Subject is the kind of item a condition applies to
type Subject string

const (
	SubjectSubmission Subject = "submission"
	SubjectComment    Subject = "comment"
)

// ParseSubject accepts "reply" as an alias of "comment"
func ParseSubject(s string) (Subject, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "submission":
		return SubjectSubmission, nil
	case "comment", "reply":
		return SubjectComment, nil
	}
	return "", fmt.Errorf("unknown condition subject %q", s)
}

// Action is what the bot does once a condition tree matches
type Action string

const (
	ActionApprove Action = "approve"
	ActionRemove  Action = "remove"
	ActionAlert   Action = "alert"
)

// PastTense is used when wording the reply posted alongside an action
func (a Action) PastTense() string {
	switch a {
	case ActionApprove:
		return "approved"
	case ActionRemove:
		return "removed"
	case ActionAlert:
		return "flagged"
	}
	return string(a) + "d"
}

// ParseAction validates a root condition action
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionApprove, ActionRemove, ActionAlert:
		return a, nil
	}
	return "", fmt.Errorf("unknown condition action %q", s)
}

// Attribute names the value a condition's pattern is tested against
type Attribute string

const (
	AttributeUser                Attribute = "user"
	AttributeTitle               Attribute = "title"
	AttributeDomain              Attribute = "domain"
	AttributeURL                 Attribute = "url"
	AttributeBody                Attribute = "body"
	AttributeMediaUser           Attribute = "media_user"
	AttributeMediaTitle          Attribute = "media_title"
	AttributeMediaDescription    Attribute = "media_description"
	AttributeAuthorFlairText     Attribute = "author_flair_text"
	AttributeAuthorFlairCSSClass Attribute = "author_flair_css_class"
	AttributeMemeName            Attribute = "meme_name"
)

// Attributes lists every attribute a condition may reference
var Attributes = []Attribute{
	AttributeUser,
	AttributeTitle,
	AttributeDomain,
	AttributeURL,
	AttributeBody,
	AttributeMediaUser,
	AttributeMediaTitle,
	AttributeMediaDescription,
	AttributeAuthorFlairText,
	AttributeAuthorFlairCSSClass,
	AttributeMemeName,
}

// ParseAttribute rejects attribute keys that have no extractor
func ParseAttribute(s string) (Attribute, error) {
	key := Attribute(strings.ToLower(strings.TrimSpace(s)))
	for _, a := range Attributes {
		if a == key {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAttribute, s)
}

// StreamKind identifies one of the item listings scanned per community
type StreamKind string

const (
	StreamReports     StreamKind = "reports"
	StreamSpam        StreamKind = "spam"
	StreamSubmissions StreamKind = "submissions"
	StreamComments    StreamKind = "comments"
)

// Streams is the order streams are scanned in during a run
var Streams = []StreamKind{StreamReports, StreamSpam, StreamSubmissions, StreamComments}

// Community is a moderated subreddit and its scan state
type Community struct {
	ID                   int64     `json:"id"`
	Name                 string    `json:"name"`
	Enabled              bool      `json:"enabled"`
	LastSubmission       time.Time `json:"last_submission"`
	LastSpam             time.Time `json:"last_spam"`
	LastComment          time.Time `json:"last_comment"`
	ReportThreshold      *int      `json:"report_threshold,omitempty"`
	AutoReapprove        bool      `json:"auto_reapprove"`
	CheckAllConditions   bool      `json:"check_all_conditions"`
	ReportedCommentsOnly bool      `json:"reported_comments_only"`
}

// Watermark returns the persisted high-water mark for a stream.
// The reports stream has none and always returns the zero time.
func (c *Community) Watermark(stream StreamKind) time.Time {
	switch stream {
	case StreamSpam:
		return c.LastSpam
	case StreamSubmissions:
		return c.LastSubmission
	case StreamComments:
		return c.LastComment
	}
	return time.Time{}
}

// SetWatermark records a new high-water mark for a stream
func (c *Community) SetWatermark(stream StreamKind, t time.Time) {
	switch stream {
	case StreamSpam:
		c.LastSpam = t
	case StreamSubmissions:
		c.LastSubmission = t
	case StreamComments:
		c.LastComment = t
	}
}

// Condition is one node of a community's rule forest
type Condition struct {
	ID             int64     `json:"id"`
	CommunityID    int64     `json:"community_id"`
	ParentID       *int64    `json:"parent_id,omitempty"`
	Subject        Subject   `json:"subject"`
	Attribute      Attribute `json:"attribute"`
	Value          string    `json:"value"`
	Inverse        bool      `json:"inverse"`
	IsGold         *bool     `json:"is_gold,omitempty"`
	IsShadowbanned *bool     `json:"is_shadowbanned,omitempty"`
	AccountAge     *int      `json:"account_age,omitempty"`
	LinkKarma      *int      `json:"link_karma,omitempty"`
	CommentKarma   *int      `json:"comment_karma,omitempty"`
	CombinedKarma  *int      `json:"combined_karma,omitempty"`
	Action         Action    `json:"action,omitempty"`
	Comment        string    `json:"comment,omitempty"`
	Notes          string    `json:"notes,omitempty"`
}

// HasEligibility reports whether any author threshold is set
func (c *Condition) HasEligibility() bool {
	return c.IsGold != nil ||
		c.IsShadowbanned != nil ||
		c.AccountAge != nil ||
		c.LinkKarma != nil ||
		c.CommentKarma != nil ||
		c.CombinedKarma != nil
}

// Oembed is the subset of embedded media metadata conditions can match
type Oembed struct {
	AuthorName  string `json:"author_name"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Item is a submission or comment pulled from one of the streams
type Item struct {
	ID                  string    `json:"id"`
	Kind                Subject   `json:"kind"`
	CreatedAt           time.Time `json:"created_at"`
	Author              string    `json:"author"`
	Subreddit           string    `json:"subreddit"`
	Title               string    `json:"title,omitempty"`
	URL                 string    `json:"url,omitempty"`
	Domain              string    `json:"domain,omitempty"`
	Selftext            string    `json:"selftext,omitempty"`
	Body                string    `json:"body,omitempty"`
	Permalink           string    `json:"permalink,omitempty"`
	LinkID              string    `json:"link_id,omitempty"`
	AuthorFlairText     string    `json:"author_flair_text,omitempty"`
	AuthorFlairCSSClass string    `json:"author_flair_css_class,omitempty"`
	Oembed              *Oembed   `json:"oembed,omitempty"`
}

// Fullname is the type-prefixed identifier write endpoints expect
func (i *Item) Fullname() string {
	if i.Kind == SubjectComment {
		return "t1_" + i.ID
	}
	return "t3_" + i.ID
}

// AuthorDeleted reports whether the author account no longer exists
func (i *Item) AuthorDeleted() bool {
	return i.Author == "" || i.Author == DeletedUser
}

// Account is the author information eligibility checks need
type Account struct {
	Name         string    `json:"name"`
	IsGold       bool      `json:"is_gold"`
	LinkKarma    int       `json:"link_karma"`
	CommentKarma int       `json:"comment_karma"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActionRecord is an immutable audit entry for one performed action
type ActionRecord struct {
	ID            int64      `json:"id"`
	CommunityID   int64      `json:"community_id"`
	Action        Action     `json:"action"`
	ConditionID   *int64     `json:"condition_id,omitempty"`
	Title         string     `json:"title,omitempty"`
	User          string     `json:"user,omitempty"`
	URL           string     `json:"url,omitempty"`
	Domain        string     `json:"domain,omitempty"`
	Permalink     string     `json:"permalink"`
	ItemCreatedAt *time.Time `json:"item_created_at,omitempty"`
	ActionTime    time.Time  `json:"action_time"`
}

// ReapprovalRecord tracks repeated automatic re-approvals of one permalink
type ReapprovalRecord struct {
	ID                int64     `json:"id"`
	CommunityID       int64     `json:"community_id"`
	Permalink         string    `json:"permalink"`
	OriginalApprover  string    `json:"original_approver"`
	TotalReports      int       `json:"total_reports"`
	FirstApprovalTime time.Time `json:"first_approval_time"`
	LastApprovalTime  time.Time `json:"last_approval_time"`
}

// ReportedItem is one entry of a community's report listing
type ReportedItem struct {
	Fullname   string `json:"fullname"`
	Permalink  string `json:"permalink"`
	Reports    int    `json:"reports"`
	ApprovedBy string `json:"approved_by,omitempty"`
}

// ModmailMessage is a message sent to a community's moderators
type ModmailMessage struct {
	Fullname   string    `json:"fullname"`
	Author     string    `json:"author"`
	Dest       string    `json:"dest"`
	CreatedAt  time.Time `json:"created_at"`
	HasReplies bool      `json:"has_replies"`
}

// CommunityRun summarizes what one community pass did
type CommunityRun struct {
	Community    string         `json:"community"`
	ItemsScanned map[string]int `json:"items_scanned"`
	Actions      map[string]int `json:"actions"`
	Reapprovals  int            `json:"reapprovals"`
	Error        string         `json:"error,omitempty"`
}

// RunReport summarizes a full moderation pass
type RunReport struct {
	StartedAt      time.Time      `json:"started_at"`
	Duration       string         `json:"duration"`
	Communities    []CommunityRun `json:"communities"`
	TotalActions   int            `json:"total_actions"`
	ModmailReplies int            `json:"modmail_replies"`
	DryRun         bool           `json:"dry_run"`
}

// Alert mirrors a report-threshold alert to out-of-band channels
type Alert struct {
	Community string    `json:"community"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Permalink string    `json:"permalink"`
	CreatedAt time.Time `json:"created_at"`
}
