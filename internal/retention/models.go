package retention

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Stage identifies a point in the two-stage retention lifecycle.
type Stage string

const (
	StageMoveToTrash     Stage = "move_to_trash"
	StagePermanentDelete Stage = "permanent_delete"
)

// Policy is a single retention policy, keyed by exactly one of
// FolderPattern or RuleID (retention/models.py's mutual-exclusivity
// invariant).
type Policy struct {
	ID                       string    `json:"id"`
	Name                     string    `json:"name"`
	Description              string    `json:"description"`
	RetentionDays            int       `json:"retention_days"`
	TrashRetentionDays       int       `json:"trash_retention_days"`
	FolderPattern            string    `json:"folder_pattern,omitempty"`
	RuleID                   string    `json:"rule_id,omitempty"`
	SkipTrash                bool      `json:"skip_trash"`
	DryRunMode               bool      `json:"dry_run_mode"`
	Active                   bool      `json:"active"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
	LastApplied              time.Time `json:"last_applied,omitempty"`
	EmailsMovedToTrash       int       `json:"emails_moved_to_trash"`
	EmailsPermanentlyDeleted int       `json:"emails_permanently_deleted"`
}

// Validate enforces the same invariants as RetentionPolicy.__post_init__.
func (p Policy) Validate(minDays int) error {
	if p.RetentionDays < minDays {
		return &InvalidRetentionPeriodError{Days: p.RetentionDays, MinDays: minDays}
	}
	if p.TrashRetentionDays < 1 {
		return &InvalidRetentionPeriodError{Days: p.TrashRetentionDays, MinDays: 1}
	}
	if p.FolderPattern == "" && p.RuleID == "" {
		return &PolicyValidationError{PolicyID: p.ID, Errors: []string{"policy must specify either folder_pattern or rule_id"}}
	}
	if p.FolderPattern != "" && p.RuleID != "" {
		return &PolicyValidationError{PolicyID: p.ID, Errors: []string{"policy cannot specify both folder_pattern and rule_id"}}
	}
	return nil
}

// TotalLifecycleDays is the total days from creation to permanent
// deletion, skipping the trash stage when SkipTrash is set.
func (p Policy) TotalLifecycleDays() int {
	if p.SkipTrash {
		return p.RetentionDays
	}
	return p.RetentionDays + p.TrashRetentionDays
}

// PolicyType reports whether this is a folder- or rule-based policy.
func (p Policy) PolicyType() string {
	if p.FolderPattern != "" {
		return "folder"
	}
	return "rule"
}

// GlobalSettings holds the process-wide retention defaults.
type GlobalSettings struct {
	MinRetentionDays           int  `json:"min_retention_days"`
	MaxEmailsPerOperation      int  `json:"max_emails_per_operation"`
	DefaultTrashRetentionDays  int  `json:"default_trash_retention_days"`
	SchedulerEnabled           bool `json:"scheduler_enabled"`
	SchedulerHour              int  `json:"scheduler_hour"`
	AuditRetentionDays         int  `json:"audit_retention_days"`
}

// DefaultGlobalSettings mirrors RetentionSettings.global_settings' defaults.
func DefaultGlobalSettings() GlobalSettings {
	return GlobalSettings{
		MinRetentionDays:          1,
		MaxEmailsPerOperation:     1000,
		DefaultTrashRetentionDays: 7,
		SchedulerEnabled:          true,
		SchedulerHour:             2,
		AuditRetentionDays:        365,
	}
}

// TrashFolders maps provider pattern keys to their default trash folder
// names (RetentionSettings.trash_folders).
type TrashFolders map[string]string

// DefaultTrashFolders mirrors the original's hardcoded provider defaults.
func DefaultTrashFolders() TrashFolders {
	return TrashFolders{
		"default":         "INBOX.Trash",
		"gmail_pattern":   "[Gmail]/Trash",
		"outlook_pattern": "Deleted Items",
		"icloud_pattern":  "INBOX.Trash",
	}
}

// Settings is the full on-disk retention configuration: every policy plus
// global settings and trash-folder defaults.
type Settings struct {
	FolderPolicies map[string]Policy `json:"folder_policies"`
	RulePolicies   map[string]Policy `json:"rule_policies"`
	GlobalSettings GlobalSettings    `json:"global_settings"`
	TrashFolders   TrashFolders      `json:"trash_folders"`
}

// NewSettings builds an empty Settings with the standard defaults.
func NewSettings() Settings {
	return Settings{
		FolderPolicies: map[string]Policy{},
		RulePolicies:   map[string]Policy{},
		GlobalSettings: DefaultGlobalSettings(),
		TrashFolders:   DefaultTrashFolders(),
	}
}

// AllPolicies returns every policy, folder-based first, each group sorted
// by ID so that callers (stage-1 execution order, list endpoints) see a
// deterministic order across runs rather than Go's randomized map
// iteration (spec's open question on applicable-policy priority).
func (s Settings) AllPolicies() []Policy {
	out := make([]Policy, 0, len(s.FolderPolicies)+len(s.RulePolicies))
	out = append(out, sortedPolicies(s.FolderPolicies)...)
	out = append(out, sortedPolicies(s.RulePolicies)...)
	return out
}

func sortedPolicies(m map[string]Policy) []Policy {
	out := make([]Policy, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PolicyByID looks a policy up by ID across both maps.
func (s Settings) PolicyByID(id string) (Policy, bool) {
	if p, ok := s.FolderPolicies[id]; ok {
		return p, true
	}
	p, ok := s.RulePolicies[id]
	return p, ok
}

// PolicyByRuleID finds the rule-based policy tied to ruleID, if any.
func (s Settings) PolicyByRuleID(ruleID string) (Policy, bool) {
	for _, p := range s.RulePolicies {
		if p.RuleID == ruleID {
			return p, true
		}
	}
	return Policy{}, false
}

// AddPolicy files a policy under the folder or rule map by its type.
func (s *Settings) AddPolicy(p Policy) {
	if p.FolderPattern != "" {
		s.FolderPolicies[p.ID] = p
	} else {
		s.RulePolicies[p.ID] = p
	}
}

// RemovePolicy deletes a policy by ID from whichever map holds it.
func (s *Settings) RemovePolicy(id string) bool {
	if _, ok := s.FolderPolicies[id]; ok {
		delete(s.FolderPolicies, id)
		return true
	}
	if _, ok := s.RulePolicies[id]; ok {
		delete(s.RulePolicies, id)
		return true
	}
	return false
}

// ApplicableFolderPolicies returns active folder policies whose pattern
// matches folderName (substring or suffix match, same as the original's
// "simple pattern matching - can be enhanced later"), sorted by ID so that
// when more than one policy matches the same folder, priority is a
// deterministic function of policy ID rather than map iteration order.
func (s Settings) ApplicableFolderPolicies(folderName string) []Policy {
	var out []Policy
	lower := strings.ToLower(folderName)
	for _, p := range sortedPolicies(s.FolderPolicies) {
		if !p.Active || p.FolderPattern == "" {
			continue
		}
		pattern := strings.ToLower(p.FolderPattern)
		if strings.Contains(lower, pattern) || strings.HasSuffix(lower, pattern) {
			out = append(out, p)
		}
	}
	return out
}

// TrashItem is a message currently staged in trash, awaiting stage-2
// permanent deletion.
type TrashItem struct {
	UID                   string    `json:"uid"`
	AccountEmail          string    `json:"account_email"`
	Subject               string    `json:"subject"`
	Sender                string    `json:"sender"`
	MovedToTrashDate      time.Time `json:"moved_to_trash_date"`
	OriginalFolder        string    `json:"original_folder,omitempty"`
	PolicyID              string    `json:"policy_id,omitempty"`
	ScheduledDeletionDate time.Time `json:"scheduled_deletion_date,omitempty"`
}

// DaysInTrash is how many whole days the item has sat in trash, as of now.
func (t TrashItem) DaysInTrash(now time.Time) int {
	return int(now.Sub(t.MovedToTrashDate).Hours() / 24)
}

// IsScheduledForDeletion reports whether now has reached the scheduled
// deletion date.
func (t TrashItem) IsScheduledForDeletion(now time.Time) bool {
	if t.ScheduledDeletionDate.IsZero() {
		return false
	}
	return !now.Before(t.ScheduledDeletionDate)
}

// Result reports the outcome of one retention operation, used both for
// the audit log and for Prometheus counters.
type Result struct {
	Success             bool
	Stage               Stage
	PolicyID            string
	Folder              string
	EmailsProcessed      int
	EmailsAffected       int
	ErrorMessage         string
	ExecutionTimeSeconds float64
	DryRun               bool
}

func (r Result) String() string {
	status := "ok"
	if !r.Success {
		status = "error: " + r.ErrorMessage
	}
	return fmt.Sprintf("[%s] policy=%s folder=%s processed=%d affected=%d (%s)",
		r.Stage, r.PolicyID, r.Folder, r.EmailsProcessed, r.EmailsAffected, status)
}

// DefaultFolderPolicies mirrors create_default_folder_policies.
func DefaultFolderPolicies(now time.Time) map[string]Policy {
	mk := func(id, name, desc string, pattern string, days int) Policy {
		return Policy{
			ID: id, Name: name, Description: desc,
			RetentionDays: days, TrashRetentionDays: 7,
			FolderPattern: pattern, Active: true,
			CreatedAt: now, UpdatedAt: now,
		}
	}
	return map[string]Policy{
		"approved_ads": mk("default-approved-ads", "Vendor Email Cleanup",
			"Move vendor/marketing emails to trash after 30 days", "approved_ads", 30),
		"junk": mk("default-junk", "Junk Email Cleanup",
			"Move junk emails to trash after 7 days", "junk", 7),
		"processed": mk("default-processed", "Processed Email Cleanup",
			"Move processed emails to trash after 90 days", "processed", 90),
	}
}

func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// MigrateLegacyRetentionSettings converts the legacy folder-type -> days
// map (config.RetentionSettings) into a full Settings value.
func MigrateLegacyRetentionSettings(legacy map[string]int, now time.Time) Settings {
	settings := NewSettings()
	for folderType, days := range legacy {
		p := Policy{
			ID:                 "migrated-" + folderType,
			Name:               titleCase(folderType) + " Cleanup (Migrated)",
			Description:        "Migrated policy for " + folderType + " folder",
			RetentionDays:      days,
			TrashRetentionDays: 7,
			FolderPattern:      folderType,
			Active:             true,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		settings.AddPolicy(p)
	}
	return settings
}
