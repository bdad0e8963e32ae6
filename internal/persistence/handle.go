package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redditmod/modbot/internal/models"
	_ "github.com/tursodatabase/go-libsql"
)

func init() {
	sqlx.BindDriver("libsql", sqlx.QUESTION)
}

// Handle is the SQL implementation shared by every supported database
type Handle struct {
	dbPtr   atomic.Pointer[sqlx.DB]
	running atomic.Bool
	mu      sync.Mutex
	dialect dialect
}

var _ Persistence = (*Handle)(nil)

func NewHandle(ctx context.Context, d dialect, dsn string) (*Handle, error) {
	db, err := sqlx.Open(d.driverName(), dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if err = db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach %s database: %w", d.driverName(), err)
	}

	handle := &Handle{dialect: d}

	handle.dbPtr.Store(db)
	handle.running.Store(true)

	return handle, nil
}

func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running.Load() {
		h.running.Swap(false)
		db := h.dbPtr.Swap(nil)
		if db != nil {
			return db.Close()
		}
	}
	return nil
}

func (h *Handle) db() (*sqlx.DB, error) {
	if db := h.dbPtr.Load(); db != nil {
		return db, nil
	}

	return nil, errors.New("no usable database connection found")
}

func (h *Handle) Migrate(ctx context.Context) error {
	db, err := h.db()
	if err != nil {
		return err
	}

	for _, stmt := range schemas[h.dialect] {
		if _, err = db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// flag encodes a boolean for the dialect. SQLite stores booleans as integers.
func (h *Handle) flag(b bool) any {
	if h.dialect != dialectSQLite {
		return b
	}
	if b {
		return 1
	}
	return 0
}

func (h *Handle) optFlag(b *bool) any {
	if b == nil {
		return nil
	}
	return h.flag(*b)
}

func namedGet(ctx context.Context, ext sqlx.ExtContext, dest any, query string, arg any) error {
	bound, args, err := sqlx.Named(query, arg)
	if err != nil {
		return err
	}
	return sqlx.GetContext(ctx, ext, dest, ext.Rebind(bound), args...)
}

func namedSelect(ctx context.Context, ext sqlx.ExtContext, dest any, query string, arg any) error {
	bound, args, err := sqlx.Named(query, arg)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, ext, dest, ext.Rebind(bound), args...)
}

// insertID runs an INSERT and returns the generated primary key
func (h *Handle) insertID(ctx context.Context, ext sqlx.ExtContext, query string, arg any) (int64, error) {
	if h.dialect != dialectMySQL {
		var id int64
		err := namedGet(ctx, ext, &id, query+" RETURNING id", arg)
		return id, err
	}

	res, err := sqlx.NamedExecContext(ctx, ext, query, arg)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type communityRow struct {
	ID                   int64  `db:"id"`
	Name                 string `db:"name"`
	Enabled              bool   `db:"enabled"`
	LastSubmission       int64  `db:"last_submission"`
	LastSpam             int64  `db:"last_spam"`
	LastComment          int64  `db:"last_comment"`
	ReportThreshold      *int   `db:"report_threshold"`
	AutoReapprove        bool   `db:"auto_reapprove"`
	CheckAllConditions   bool   `db:"check_all_conditions"`
	ReportedCommentsOnly bool   `db:"reported_comments_only"`
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func (r *communityRow) toModel() models.Community {
	return models.Community{
		ID:                   r.ID,
		Name:                 r.Name,
		Enabled:              r.Enabled,
		LastSubmission:       fromUnix(r.LastSubmission),
		LastSpam:             fromUnix(r.LastSpam),
		LastComment:          fromUnix(r.LastComment),
		ReportThreshold:      r.ReportThreshold,
		AutoReapprove:        r.AutoReapprove,
		CheckAllConditions:   r.CheckAllConditions,
		ReportedCommentsOnly: r.ReportedCommentsOnly,
	}
}

const listEnabledCommunitiesQuery = `
SELECT
	id, name, enabled, last_submission, last_spam, last_comment,
	report_threshold, auto_reapprove, check_all_conditions, reported_comments_only
FROM
	communities
WHERE
	enabled = TRUE
ORDER BY
	id
`

func (h *Handle) ListEnabledCommunities(ctx context.Context) ([]models.Community, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	var rows []communityRow
	if err = db.SelectContext(ctx, &rows, listEnabledCommunitiesQuery); err != nil {
		return nil, fmt.Errorf("failed to list communities: %w", err)
	}

	out := make([]models.Community, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

type conditionRow struct {
	ID             int64  `db:"id"`
	CommunityID    int64  `db:"community_id"`
	ParentID       *int64 `db:"parent_id"`
	Subject        string `db:"subject"`
	Attribute      string `db:"attribute"`
	Value          string `db:"value"`
	Inverse        bool   `db:"inverse"`
	IsGold         *bool  `db:"is_gold"`
	IsShadowbanned *bool  `db:"is_shadowbanned"`
	AccountAge     *int   `db:"account_age"`
	LinkKarma      *int   `db:"link_karma"`
	CommentKarma   *int   `db:"comment_karma"`
	CombinedKarma  *int   `db:"combined_karma"`
	Action         string `db:"action"`
	Comment        string `db:"comment"`
	Notes          string `db:"notes"`
}

const loadConditionsQuery = `
SELECT
	id, community_id, parent_id, subject, attribute, value, inverse,
	is_gold, is_shadowbanned, account_age, link_karma, comment_karma, combined_karma,
	COALESCE(action, '') AS action,
	COALESCE(comment, '') AS comment,
	COALESCE(notes, '') AS notes
FROM
	conditions
WHERE
	community_id = :community_id
ORDER BY
	id
`

func (h *Handle) LoadConditions(ctx context.Context, communityID int64) ([]models.Condition, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	var rows []conditionRow
	if err = namedSelect(ctx, db, &rows, loadConditionsQuery, map[string]any{"community_id": communityID}); err != nil {
		return nil, fmt.Errorf("failed to load conditions for community %d: %w", communityID, err)
	}

	out := make([]models.Condition, 0, len(rows))
	for _, r := range rows {
		subject, err := models.ParseSubject(r.Subject)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", r.ID, err)
		}
		out = append(out, models.Condition{
			ID:             r.ID,
			CommunityID:    r.CommunityID,
			ParentID:       r.ParentID,
			Subject:        subject,
			Attribute:      models.Attribute(r.Attribute),
			Value:          r.Value,
			Inverse:        r.Inverse,
			IsGold:         r.IsGold,
			IsShadowbanned: r.IsShadowbanned,
			AccountAge:     r.AccountAge,
			LinkKarma:      r.LinkKarma,
			CommentKarma:   r.CommentKarma,
			CombinedKarma:  r.CombinedKarma,
			Action:         models.Action(r.Action),
			Comment:        r.Comment,
			Notes:          r.Notes,
		})
	}
	return out, nil
}

const hasActionQuery = `
SELECT
	COUNT(*)
FROM
	action_log
WHERE
	community_id = :community_id AND permalink = :permalink AND action = :action
`

func (h *Handle) HasAction(ctx context.Context, communityID int64, permalink string, action models.Action) (bool, error) {
	db, err := h.db()
	if err != nil {
		return false, err
	}

	args := map[string]any{
		"community_id": communityID,
		"permalink":    permalink,
		"action":       string(action),
	}

	var n int
	if err = namedGet(ctx, db, &n, hasActionQuery, args); err != nil {
		return false, fmt.Errorf("failed to look up %s for %s: %w", action, permalink, err)
	}
	return n > 0, nil
}

type actionRow struct {
	ID            int64  `db:"id"`
	CommunityID   int64  `db:"community_id"`
	Action        string `db:"action"`
	ConditionID   *int64 `db:"condition_id"`
	Title         string `db:"title"`
	User          string `db:"username"`
	URL           string `db:"url"`
	Domain        string `db:"domain"`
	Permalink     string `db:"permalink"`
	ItemCreatedAt *int64 `db:"item_created_at"`
	ActionTime    int64  `db:"action_time"`
}

const listActionsSinceQuery = `
SELECT
	id, community_id, action, condition_id,
	COALESCE(title, '') AS title,
	COALESCE(username, '') AS username,
	COALESCE(url, '') AS url,
	COALESCE(domain, '') AS domain,
	COALESCE(permalink, '') AS permalink,
	item_created_at, action_time
FROM
	action_log
WHERE
	action = :action AND action_time >= :since
ORDER BY
	action_time, id
`

func (h *Handle) ListActionsSince(ctx context.Context, action models.Action, since time.Time) ([]models.ActionRecord, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	var rows []actionRow
	args := map[string]any{"action": string(action), "since": since.Unix()}
	if err = namedSelect(ctx, db, &rows, listActionsSinceQuery, args); err != nil {
		return nil, fmt.Errorf("failed to list %s actions: %w", action, err)
	}

	out := make([]models.ActionRecord, 0, len(rows))
	for _, r := range rows {
		rec := models.ActionRecord{
			ID:          r.ID,
			CommunityID: r.CommunityID,
			Action:      models.Action(r.Action),
			ConditionID: r.ConditionID,
			Title:       r.Title,
			User:        r.User,
			URL:         r.URL,
			Domain:      r.Domain,
			Permalink:   r.Permalink,
			ActionTime:  fromUnix(r.ActionTime),
		}
		if r.ItemCreatedAt != nil {
			t := fromUnix(*r.ItemCreatedAt)
			rec.ItemCreatedAt = &t
		}
		out = append(out, rec)
	}
	return out, nil
}

type reapprovalRow struct {
	ID                int64  `db:"id"`
	CommunityID       int64  `db:"community_id"`
	Permalink         string `db:"permalink"`
	OriginalApprover  string `db:"original_approver"`
	TotalReports      int    `db:"total_reports"`
	FirstApprovalTime int64  `db:"first_approval_time"`
	LastApprovalTime  int64  `db:"last_approval_time"`
}

const getReapprovalQuery = `
SELECT
	id, community_id, permalink,
	COALESCE(original_approver, '') AS original_approver,
	total_reports, first_approval_time, last_approval_time
FROM
	auto_reapprovals
WHERE
	community_id = :community_id AND permalink = :permalink
`

func (h *Handle) GetReapproval(ctx context.Context, communityID int64, permalink string) (*models.ReapprovalRecord, error) {
	db, err := h.db()
	if err != nil {
		return nil, err
	}

	var r reapprovalRow
	args := map[string]any{"community_id": communityID, "permalink": permalink}
	if err = namedGet(ctx, db, &r, getReapprovalQuery, args); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load reapproval for %s: %w", permalink, err)
	}

	return &models.ReapprovalRecord{
		ID:                r.ID,
		CommunityID:       r.CommunityID,
		Permalink:         r.Permalink,
		OriginalApprover:  r.OriginalApprover,
		TotalReports:      r.TotalReports,
		FirstApprovalTime: fromUnix(r.FirstApprovalTime),
		LastApprovalTime:  fromUnix(r.LastApprovalTime),
	}, nil
}

const (
	updateWatermarksQuery = `
UPDATE
	communities
SET
	last_submission = :last_submission, last_spam = :last_spam, last_comment = :last_comment
WHERE
	id = :id
`
	insertActionQuery = `
INSERT INTO
	action_log (community_id, action, condition_id, title, username, url, domain, permalink, item_created_at, action_time)
VALUES (:community_id, :action, :condition_id, :title, :username, :url, :domain, :permalink, :item_created_at, :action_time)
`
	insertReapprovalQuery = `
INSERT INTO
	auto_reapprovals (community_id, permalink, original_approver, total_reports, first_approval_time, last_approval_time)
VALUES (:community_id, :permalink, :original_approver, :total_reports, :first_approval_time, :last_approval_time)
`
	updateReapprovalQuery = `
UPDATE
	auto_reapprovals
SET
	total_reports = :total_reports, last_approval_time = :last_approval_time
WHERE
	id = :id
`
)

func (h *Handle) CommitRun(ctx context.Context, state *RunState) error {
	db, err := h.db()
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	c := state.Community
	if _, err = sqlx.NamedExecContext(ctx, tx, updateWatermarksQuery, map[string]any{
		"id":              c.ID,
		"last_submission": toUnix(c.LastSubmission),
		"last_spam":       toUnix(c.LastSpam),
		"last_comment":    toUnix(c.LastComment),
	}); err != nil {
		return fmt.Errorf("failed to update watermarks for %s: %w", c.Name, err)
	}

	for _, rec := range state.Actions {
		var created any
		if rec.ItemCreatedAt != nil {
			created = rec.ItemCreatedAt.Unix()
		}
		if _, err = sqlx.NamedExecContext(ctx, tx, insertActionQuery, map[string]any{
			"community_id":    c.ID,
			"action":          string(rec.Action),
			"condition_id":    rec.ConditionID,
			"title":           rec.Title,
			"username":        rec.User,
			"url":             rec.URL,
			"domain":          rec.Domain,
			"permalink":       rec.Permalink,
			"item_created_at": created,
			"action_time":     rec.ActionTime.Unix(),
		}); err != nil {
			return fmt.Errorf("failed to log %s of %s: %w", rec.Action, rec.Permalink, err)
		}
	}

	for _, rec := range state.Reapprovals {
		args := map[string]any{
			"id":                  rec.ID,
			"community_id":        c.ID,
			"permalink":           rec.Permalink,
			"original_approver":   rec.OriginalApprover,
			"total_reports":       rec.TotalReports,
			"first_approval_time": rec.FirstApprovalTime.Unix(),
			"last_approval_time":  rec.LastApprovalTime.Unix(),
		}
		if rec.ID == 0 {
			_, err = sqlx.NamedExecContext(ctx, tx, insertReapprovalQuery, args)
		} else {
			_, err = sqlx.NamedExecContext(ctx, tx, updateReapprovalQuery, args)
		}
		if err != nil {
			return fmt.Errorf("failed to record reapproval of %s: %w", rec.Permalink, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const (
	findCommunityQuery   = `SELECT id FROM communities WHERE name = :name`
	insertCommunityQuery = `
INSERT INTO
	communities (name, enabled, report_threshold, auto_reapprove, check_all_conditions, reported_comments_only)
VALUES (:name, :enabled, :report_threshold, :auto_reapprove, :check_all_conditions, :reported_comments_only)
`
	updateCommunityQuery = `
UPDATE
	communities
SET
	enabled = :enabled, report_threshold = :report_threshold, auto_reapprove = :auto_reapprove,
	check_all_conditions = :check_all_conditions, reported_comments_only = :reported_comments_only
WHERE
	id = :id
`
)

func (h *Handle) UpsertCommunity(ctx context.Context, community *models.Community) (int64, error) {
	db, err := h.db()
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	args := map[string]any{
		"name":                   community.Name,
		"enabled":                h.flag(community.Enabled),
		"report_threshold":       community.ReportThreshold,
		"auto_reapprove":         h.flag(community.AutoReapprove),
		"check_all_conditions":   h.flag(community.CheckAllConditions),
		"reported_comments_only": h.flag(community.ReportedCommentsOnly),
	}

	var id int64
	err = namedGet(ctx, tx, &id, findCommunityQuery, args)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if id, err = h.insertID(ctx, tx, insertCommunityQuery, args); err != nil {
			return 0, fmt.Errorf("failed to create community %s: %w", community.Name, err)
		}
	case err != nil:
		return 0, fmt.Errorf("failed to look up community %s: %w", community.Name, err)
	default:
		args["id"] = id
		if _, err = sqlx.NamedExecContext(ctx, tx, updateCommunityQuery, args); err != nil {
			return 0, fmt.Errorf("failed to update community %s: %w", community.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

const (
	detachConditionsQuery = `UPDATE conditions SET parent_id = NULL WHERE community_id = :community_id`
	deleteConditionsQuery = `DELETE FROM conditions WHERE community_id = :community_id`
	insertConditionQuery  = `
INSERT INTO
	conditions (community_id, parent_id, subject, attribute, value, inverse,
		is_gold, is_shadowbanned, account_age, link_karma, comment_karma, combined_karma,
		action, comment, notes)
VALUES (:community_id, :parent_id, :subject, :attribute, :value, :inverse,
	:is_gold, :is_shadowbanned, :account_age, :link_karma, :comment_karma, :combined_karma,
	:action, :comment, :notes)
`
)

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (h *Handle) ReplaceConditions(ctx context.Context, communityID int64, conds []models.Condition) error {
	db, err := h.db()
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	scope := map[string]any{"community_id": communityID}
	for _, q := range []string{detachConditionsQuery, deleteConditionsQuery} {
		if _, err = sqlx.NamedExecContext(ctx, tx, q, scope); err != nil {
			return fmt.Errorf("failed to clear conditions for community %d: %w", communityID, err)
		}
	}

	ids := make(map[int64]int64, len(conds))
	for _, c := range conds {
		var parent *int64
		if c.ParentID != nil {
			mapped, ok := ids[*c.ParentID]
			if !ok {
				return fmt.Errorf("condition %d references parent %d before it was inserted", c.ID, *c.ParentID)
			}
			parent = &mapped
		}

		id, err := h.insertID(ctx, tx, insertConditionQuery, map[string]any{
			"community_id":    communityID,
			"parent_id":       parent,
			"subject":         string(c.Subject),
			"attribute":       string(c.Attribute),
			"value":           c.Value,
			"inverse":         h.flag(c.Inverse),
			"is_gold":         h.optFlag(c.IsGold),
			"is_shadowbanned": h.optFlag(c.IsShadowbanned),
			"account_age":     c.AccountAge,
			"link_karma":      c.LinkKarma,
			"comment_karma":   c.CommentKarma,
			"combined_karma":  c.CombinedKarma,
			"action":          nullString(string(c.Action)),
			"comment":         nullString(c.Comment),
			"notes":           nullString(c.Notes),
		})
		if err != nil {
			return fmt.Errorf("failed to insert condition %d: %w", c.ID, err)
		}
		ids[c.ID] = id
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
