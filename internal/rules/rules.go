package rules

import (
	"context"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/redditmod/modbot/internal/models"
	"github.com/redditmod/modbot/internal/persistence"
	"github.com/sirupsen/logrus"
)

type (
	// File is a rules document describing communities and their rule trees
	File struct {
		Communities []Community `koanf:"communities" validate:"required,min=1,unique=Name,dive"`
	}

	Community struct {
		Name                 string `koanf:"name" validate:"required,excludesall=/# "`
		Enabled              *bool  `koanf:"enabled"`
		ReportThreshold      *int   `koanf:"report_threshold" validate:"omitempty,min=1"`
		AutoReapprove        bool   `koanf:"auto_reapprove"`
		CheckAllConditions   bool   `koanf:"check_all_conditions"`
		ReportedCommentsOnly bool   `koanf:"reported_comments_only"`
		Rules                []Rule `koanf:"rules" validate:"dive"`
	}

	// Rule is one condition. Top-level rules need an action; nested rules
	// inherit the action of their tree.
	Rule struct {
		Subject        string `koanf:"subject" validate:"required,oneof=submission comment reply"`
		Attribute      string `koanf:"attribute" validate:"required,attribute"`
		Value          string `koanf:"value" validate:"pattern"`
		Inverse        bool   `koanf:"inverse"`
		Action         string `koanf:"action" validate:"omitempty,oneof=approve remove alert"`
		Comment        string `koanf:"comment"`
		Notes          string `koanf:"notes"`
		IsGold         *bool  `koanf:"is_gold"`
		IsShadowbanned *bool  `koanf:"is_shadowbanned"`
		AccountAge     *int   `koanf:"account_age" validate:"omitempty,min=0"`
		LinkKarma      *int   `koanf:"link_karma"`
		CommentKarma   *int   `koanf:"comment_karma"`
		CombinedKarma  *int   `koanf:"combined_karma"`
		Children       []Rule `koanf:"children" validate:"dive"`
	}
)

// NewValidator returns a validator that knows the rule specific tags
func NewValidator() (*validator.Validate, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	if err := validate.RegisterValidation("attribute", func(fl validator.FieldLevel) bool {
		_, err := models.ParseAttribute(fl.Field().String())
		return err == nil
	}); err != nil {
		return nil, err
	}

	// patterns are anchored the same way the evaluator anchors them
	if err := validate.RegisterValidation("pattern", func(fl validator.FieldLevel) bool {
		_, err := regexp.Compile(`(?is)^(?:` + fl.Field().String() + `)$`)
		return err == nil
	}); err != nil {
		return nil, err
	}

	return validate, nil
}

// Load reads and validates a YAML rules file
func Load(ctx context.Context, path string, validate *validator.Validate) (*File, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}

	var f File
	if err := k.Unmarshal("", &f); err != nil {
		return nil, fmt.Errorf("failed to decode rules file %s: %w", path, err)
	}

	if err := validate.StructCtx(ctx, &f); err != nil {
		return nil, fmt.Errorf("invalid rules file %s: %w", path, err)
	}

	for _, c := range f.Communities {
		for i, r := range c.Rules {
			if r.Action == "" {
				return nil, fmt.Errorf("invalid rules file %s: rule %d of %s has no action", path, i+1, c.Name)
			}
		}
	}

	return &f, nil
}

func (c *Community) toModel() models.Community {
	enabled := c.Enabled == nil || *c.Enabled
	return models.Community{
		Name:                 c.Name,
		Enabled:              enabled,
		ReportThreshold:      c.ReportThreshold,
		AutoReapprove:        c.AutoReapprove,
		CheckAllConditions:   c.CheckAllConditions,
		ReportedCommentsOnly: c.ReportedCommentsOnly,
	}
}

// Flatten turns rule trees into a condition list with parents first. The
// ids are only meaningful within the list.
func Flatten(rules []Rule) ([]models.Condition, error) {
	var out []models.Condition

	var walk func(r *Rule, parent *int64) error
	walk = func(r *Rule, parent *int64) error {
		subject, err := models.ParseSubject(r.Subject)
		if err != nil {
			return err
		}
		attr, err := models.ParseAttribute(r.Attribute)
		if err != nil {
			return err
		}

		c := models.Condition{
			ID:             int64(len(out) + 1),
			ParentID:       parent,
			Subject:        subject,
			Attribute:      attr,
			Value:          r.Value,
			Inverse:        r.Inverse,
			IsGold:         r.IsGold,
			IsShadowbanned: r.IsShadowbanned,
			AccountAge:     r.AccountAge,
			LinkKarma:      r.LinkKarma,
			CommentKarma:   r.CommentKarma,
			CombinedKarma:  r.CombinedKarma,
			Comment:        r.Comment,
			Notes:          r.Notes,
		}
		if parent == nil || r.Action != "" {
			if c.Action, err = models.ParseAction(r.Action); err != nil {
				return err
			}
		}
		out = append(out, c)

		id := c.ID
		for i := range r.Children {
			if err := walk(&r.Children[i], &id); err != nil {
				return err
			}
		}
		return nil
	}

	for i := range rules {
		if err := walk(&rules[i], nil); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
	}
	return out, nil
}

// Applied describes what Apply wrote for one community
type Applied struct {
	Community  string
	ID         int64
	Conditions int
}

// Apply writes every community of f and replaces its rule forest
func Apply(ctx context.Context, store persistence.Persistence, f *File) ([]Applied, error) {
	var applied []Applied

	for i := range f.Communities {
		c := &f.Communities[i]

		conds, err := Flatten(c.Rules)
		if err != nil {
			return applied, fmt.Errorf("community %s: %w", c.Name, err)
		}

		community := c.toModel()
		id, err := store.UpsertCommunity(ctx, &community)
		if err != nil {
			return applied, fmt.Errorf("failed to store community %s: %w", c.Name, err)
		}

		if err = store.ReplaceConditions(ctx, id, conds); err != nil {
			return applied, fmt.Errorf("failed to store rules of %s: %w", c.Name, err)
		}

		logrus.WithField("community", c.Name).Infof("Imported %d conditions", len(conds))
		applied = append(applied, Applied{Community: c.Name, ID: id, Conditions: len(conds)})
	}

	return applied, nil
}
