// Package rules is the rule engine: condition/action types, rule
// matching, and a JSON-file-backed rule store, grounded on src/rules.py's
// EmailRule/RuleCondition/RuleAction/RuleManager (spec §4.3).
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/real-pm/mailrulez/internal/lists"
)

// ConditionType is the closed set of rule condition kinds.
type ConditionType string

const (
	SenderContains     ConditionType = "sender_contains"
	SenderDomainEquals ConditionType = "sender_domain"
	SenderExact        ConditionType = "sender_exact"
	SubjectContains    ConditionType = "subject_contains"
	SubjectExact       ConditionType = "subject_exact"
	SubjectRegex       ConditionType = "subject_regex"
	ContentContains    ConditionType = "content_contains"
	SenderInList       ConditionType = "sender_in_list"
)

// ActionType is the closed set of rule action kinds. Forward is accepted
// for backward-compatible rule files but never executed (spec §1 non-goal:
// no outbound mail sending).
type ActionType string

const (
	ActionMoveToFolder  ActionType = "move_to_folder"
	ActionAddToList     ActionType = "add_to_list"
	ActionCreateList    ActionType = "create_list"
	ActionForward       ActionType = "forward"
	ActionMarkRead      ActionType = "mark_read"
	ActionSetRetention  ActionType = "set_retention"
)

// Message is the subset of an email's metadata rule conditions evaluate
// against. Content is only populated by callers that fetched the full body.
type Message struct {
	From    string
	Subject string
	Content string
}

// Condition is a single predicate within a rule.
type Condition struct {
	Type          ConditionType `json:"type" validate:"required"`
	Value         string        `json:"value" validate:"required"`
	CaseSensitive bool          `json:"case_sensitive"`
}

// Matches evaluates the condition against msg. list lookups that fail
// (unknown list name, unreadable file) degrade to no-match rather than
// erroring, per the original's try/except-and-log behavior.
func (c Condition) Matches(msg Message, listStore *lists.Store) bool {
	fold := func(s string) string {
		if c.CaseSensitive {
			return s
		}
		return strings.ToLower(s)
	}

	switch c.Type {
	case SenderContains:
		return strings.Contains(fold(msg.From), fold(c.Value))
	case SenderDomainEquals:
		at := strings.LastIndex(msg.From, "@")
		if at < 0 {
			return false
		}
		domain := strings.TrimSuffix(msg.From[at+1:], ">")
		return strings.EqualFold(domain, c.Value)
	case SenderExact:
		return fold(msg.From) == fold(c.Value)
	case SubjectContains:
		return strings.Contains(fold(msg.Subject), fold(c.Value))
	case SubjectExact:
		return fold(msg.Subject) == fold(c.Value)
	case SubjectRegex:
		pattern := c.Value
		if !c.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(msg.Subject)
	case ContentContains:
		return strings.Contains(fold(msg.Content), fold(c.Value))
	case SenderInList:
		if listStore == nil {
			return false
		}
		sender := extractAddress(msg.From)
		entries, err := listStore.Read(c.Value)
		if err != nil {
			return false
		}
		for _, e := range entries {
			if strings.EqualFold(e, sender) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func extractAddress(from string) string {
	if l, r := strings.Index(from, "<"), strings.Index(from, ">"); l >= 0 && r > l {
		return strings.TrimSpace(from[l+1 : r])
	}
	return strings.TrimSpace(from)
}

// Action is a single effect applied when a rule matches.
type Action struct {
	Type               ActionType     `json:"type" validate:"required"`
	Target             string         `json:"target"`
	Parameters         map[string]any `json:"parameters,omitempty"`
	RetentionDays      *int           `json:"retention_days,omitempty"`
	TrashRetentionDays *int           `json:"trash_retention_days,omitempty"`
	SkipTrash          bool           `json:"skip_trash"`
}

// HasRetentionSettings reports whether this action carries retention
// configuration, regardless of its nominal type.
func (a Action) HasRetentionSettings() bool {
	return a.Type == ActionSetRetention || a.RetentionDays != nil || a.TrashRetentionDays != nil
}

// ConditionLogic combines a rule's conditions.
type ConditionLogic string

const (
	LogicAll ConditionLogic = "AND"
	LogicAny ConditionLogic = "OR"
)

// Rule is one complete email processing rule.
type Rule struct {
	ID             string         `json:"id"`
	Name           string         `json:"name" validate:"required"`
	Description    string         `json:"description"`
	Conditions     []Condition    `json:"conditions" validate:"dive"`
	Actions        []Action       `json:"actions" validate:"dive"`
	AccountEmail   string         `json:"account_email" validate:"omitempty,email"`
	ConditionLogic ConditionLogic `json:"condition_logic" validate:"omitempty,oneof=AND OR"`
	Active         bool           `json:"active"`
	Priority       int            `json:"priority" validate:"gte=0"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      string         `json:"updated_at"`
}

// Matches reports whether every (AND) or any (OR) of the rule's conditions
// match msg. An inactive rule, or one with no conditions, never matches.
func (r Rule) Matches(msg Message, listStore *lists.Store) bool {
	if !r.Active || len(r.Conditions) == 0 {
		return false
	}
	if r.ConditionLogic == LogicAny {
		for _, c := range r.Conditions {
			if c.Matches(msg, listStore) {
				return true
			}
		}
		return false
	}
	for _, c := range r.Conditions {
		if !c.Matches(msg, listStore) {
			return false
		}
	}
	return true
}

// HasRetentionActions reports whether any action on this rule carries
// retention configuration.
func (r Rule) HasRetentionActions() bool {
	for _, a := range r.Actions {
		if a.HasRetentionSettings() {
			return true
		}
	}
	return false
}

// RetentionSettings is the retention configuration extracted from a
// rule's first retention-carrying action.
type RetentionSettings struct {
	RetentionDays      int
	TrashRetentionDays int
	SkipTrash          bool
	TargetFolder       string
}

// RetentionSettings extracts retention configuration from the rule's first
// matching action, defaulting TrashRetentionDays to 7 (src/rules.py parity).
func (r Rule) RetentionSettings() (RetentionSettings, bool) {
	for _, a := range r.Actions {
		if !a.HasRetentionSettings() {
			continue
		}
		settings := RetentionSettings{TrashRetentionDays: 7, SkipTrash: a.SkipTrash}
		if a.RetentionDays != nil {
			settings.RetentionDays = *a.RetentionDays
		}
		if a.TrashRetentionDays != nil {
			settings.TrashRetentionDays = *a.TrashRetentionDays
		}
		if a.Type == ActionMoveToFolder {
			settings.TargetFolder = a.Target
		}
		return settings, true
	}
	return RetentionSettings{}, false
}

func validateConditionType(t ConditionType) error {
	switch t {
	case SenderContains, SenderDomainEquals, SenderExact, SubjectContains, SubjectExact, SubjectRegex, ContentContains, SenderInList:
		return nil
	default:
		return fmt.Errorf("unknown condition type %q", t)
	}
}

func validateActionType(t ActionType) error {
	switch t {
	case ActionMoveToFolder, ActionAddToList, ActionCreateList, ActionForward, ActionMarkRead, ActionSetRetention:
		return nil
	default:
		return fmt.Errorf("unknown action type %q", t)
	}
}
