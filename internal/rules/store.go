package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/real-pm/mailrulez/internal/lists"
)

// Store is the JSON-file-backed rule store, mirroring RuleManager's
// load_rules/save_rules atomic-write cycle in src/rules.py.
type Store struct {
	path     string
	validate *validator.Validate

	mu    sync.RWMutex
	rules []Rule
}

// Open loads rules.json from path, creating an empty rule set if the file
// does not yet exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path, validate: validator.New(validator.WithRequiredStructEnabled())}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.rules = nil
			return nil
		}
		return fmt.Errorf("read rules file: %w", err)
	}
	var loaded []Rule
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parse rules file: %w", err)
	}
	for _, r := range loaded {
		for _, c := range r.Conditions {
			if err := validateConditionType(c.Type); err != nil {
				return fmt.Errorf("rule %s: %w", r.ID, err)
			}
		}
		for _, a := range r.Actions {
			if err := validateActionType(a.Type); err != nil {
				return fmt.Errorf("rule %s: %w", r.ID, err)
			}
		}
	}
	sort.SliceStable(loaded, func(i, j int) bool { return loaded[i].Priority < loaded[j].Priority })
	s.rules = loaded
	return nil
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.rules, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "rules_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp rules file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp rules file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp rules file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp rules file: %w", err)
	}
	return os.Rename(tmpPath, s.path)
}

// All returns every rule, sorted ascending by priority (lower wins).
func (s *Store) All() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Get looks up a rule by ID.
func (s *Store) Get(id string) (Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

// Add validates and persists a new rule, minting an ID if the caller left
// it blank (the original required a caller-supplied ID; we generate one
// with google/uuid instead).
func (s *Store) Add(r Rule) (Rule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ConditionLogic == "" {
		r.ConditionLogic = LogicAll
	}
	now := time.Now().Format(time.RFC3339)
	if r.CreatedAt == "" {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if err := s.validateRule(r); err != nil {
		return Rule{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, r)
	sort.SliceStable(s.rules, func(i, j int) bool { return s.rules[i].Priority < s.rules[j].Priority })
	if err := s.saveLocked(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Update replaces the rule with the given ID. Returns false if no rule
// with that ID exists.
func (s *Store) Update(id string, updated Rule) (bool, error) {
	updated.ID = id
	if err := s.validateRule(updated); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rules {
		if r.ID == id {
			s.rules[i] = updated
			sort.SliceStable(s.rules, func(a, b int) bool { return s.rules[a].Priority < s.rules[b].Priority })
			return true, s.saveLocked()
		}
	}
	return false, nil
}

// Delete removes a rule by ID. Absent IDs are a no-op.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.rules[:0:0]
	for _, r := range s.rules {
		if r.ID != id {
			out = append(out, r)
		}
	}
	s.rules = out
	return s.saveLocked()
}

func (s *Store) validateRule(r Rule) error {
	if err := s.validate.Struct(r); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	for _, c := range r.Conditions {
		if err := validateConditionType(c.Type); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}
	for _, a := range r.Actions {
		if err := validateActionType(a.Type); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}
	return nil
}

// MatchingActions returns the concatenated actions of every active rule
// that matches msg, evaluated in priority order (RuleManager.process_email).
func (s *Store) MatchingActions(msg Message, listStore *lists.Store) []Action {
	var actions []Action
	for _, r := range s.All() {
		if r.Matches(msg, listStore) {
			actions = append(actions, r.Actions...)
		}
	}
	return actions
}
