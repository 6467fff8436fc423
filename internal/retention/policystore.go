package retention

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PolicyStore is the JSON-file-backed retention policy store, mirroring
// RetentionPolicyManager's load_policies/save_policies atomic-write cycle.
type PolicyStore struct {
	path string

	mu       sync.RWMutex
	settings Settings
}

// OpenPolicyStore loads retention_policies.json from path, seeding the
// three default folder policies (approved_ads, junk, processed) if the
// file does not exist.
func OpenPolicyStore(path string) (*PolicyStore, error) {
	s := &PolicyStore{path: path, settings: NewSettings()}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PolicyStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			for _, p := range DefaultFolderPolicies(time.Now()) {
				s.settings.AddPolicy(p)
			}
			return nil
		}
		return fmt.Errorf("read retention policies file: %w", err)
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		for _, p := range DefaultFolderPolicies(time.Now()) {
			s.settings.AddPolicy(p)
		}
		return nil
	}
	if settings.FolderPolicies == nil {
		settings.FolderPolicies = map[string]Policy{}
	}
	if settings.RulePolicies == nil {
		settings.RulePolicies = map[string]Policy{}
	}
	if settings.TrashFolders == nil {
		settings.TrashFolders = DefaultTrashFolders()
	}
	s.settings = settings
	return nil
}

func (s *PolicyStore) saveLocked() error {
	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal retention policies: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "retention_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp policies file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp policies file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp policies file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp policies file: %w", err)
	}
	return os.Rename(tmpPath, s.path)
}

// Settings returns a snapshot of the current policy settings.
func (s *PolicyStore) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// MigrateLegacy merges policies derived from the legacy folder-type -> days
// config into the store, legacy values taking precedence on conflict.
func (s *PolicyStore) MigrateLegacy(legacy map[string]int) error {
	migrated := MigrateLegacyRetentionSettings(legacy, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range migrated.AllPolicies() {
		s.settings.AddPolicy(p)
	}
	return s.saveLocked()
}

// CreateFolderPolicy adds a new folder-pattern policy.
func (s *PolicyStore) CreateFolderPolicy(folderPattern string, retentionDays int, name, description string, trashRetentionDays int) (Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if retentionDays < s.settings.GlobalSettings.MinRetentionDays {
		return Policy{}, &InvalidRetentionPeriodError{Days: retentionDays, MinDays: s.settings.GlobalSettings.MinRetentionDays}
	}
	now := time.Now()
	if name == "" {
		name = titleCase(folderPattern) + " Cleanup"
	}
	if description == "" {
		description = fmt.Sprintf("Retention policy for %s folder", folderPattern)
	}
	p := Policy{
		ID:                 fmt.Sprintf("folder-%s-%d", folderPattern, now.Unix()),
		Name:               name,
		Description:        description,
		RetentionDays:      retentionDays,
		TrashRetentionDays: trashRetentionDays,
		FolderPattern:       folderPattern,
		Active:              true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	s.settings.AddPolicy(p)
	return p, s.saveLocked()
}

// CreateRulePolicy adds a new rule-based policy.
func (s *PolicyStore) CreateRulePolicy(ruleID string, retentionDays int, name, description string, trashRetentionDays int) (Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if retentionDays < s.settings.GlobalSettings.MinRetentionDays {
		return Policy{}, &InvalidRetentionPeriodError{Days: retentionDays, MinDays: s.settings.GlobalSettings.MinRetentionDays}
	}
	now := time.Now()
	if name == "" {
		name = "Rule-based retention for " + ruleID
	}
	if description == "" {
		description = "Retention policy for rule " + ruleID
	}
	p := Policy{
		ID:                 fmt.Sprintf("rule-%s-%d", ruleID, now.Unix()),
		Name:               name,
		Description:        description,
		RetentionDays:      retentionDays,
		TrashRetentionDays: trashRetentionDays,
		RuleID:              ruleID,
		Active:              true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	s.settings.AddPolicy(p)
	return p, s.saveLocked()
}

// UpdatePolicy applies fn to the existing policy with id and persists it.
func (s *PolicyStore) UpdatePolicy(id string, fn func(*Policy)) (Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.settings.PolicyByID(id)
	if !ok {
		return Policy{}, &PolicyNotFoundError{PolicyID: id}
	}
	fn(&p)
	if p.RetentionDays < s.settings.GlobalSettings.MinRetentionDays {
		return Policy{}, &InvalidRetentionPeriodError{Days: p.RetentionDays, MinDays: s.settings.GlobalSettings.MinRetentionDays}
	}
	p.UpdatedAt = time.Now()
	s.settings.AddPolicy(p)
	return p, s.saveLocked()
}

// DeletePolicy removes a policy by ID.
func (s *PolicyStore) DeletePolicy(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.settings.PolicyByID(id); !ok {
		return &PolicyNotFoundError{PolicyID: id}
	}
	s.settings.RemovePolicy(id)
	return s.saveLocked()
}

// ApplicablePolicies returns active policies matching folder and/or ruleID.
func (s *PolicyStore) ApplicablePolicies(folder, ruleID string) []Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	applicable := s.settings.ApplicableFolderPolicies(folder)
	if ruleID != "" {
		if p, ok := s.settings.PolicyByRuleID(ruleID); ok && p.Active {
			applicable = append(applicable, p)
		}
	}
	return applicable
}

// RecordApplied bumps a policy's stage counters and last-applied timestamp.
func (s *PolicyStore) RecordApplied(id string, movedToTrash, permanentlyDeleted int) error {
	_, err := s.UpdatePolicy(id, func(p *Policy) {
		p.EmailsMovedToTrash += movedToTrash
		p.EmailsPermanentlyDeleted += permanentlyDeleted
		p.LastApplied = time.Now()
	})
	return err
}
