// Package lists is the sender-list store: read, add, remove, move, and
// conflict-detect addresses across the core white/black/vendor lists and any custom lists an operator has created, each backed by a
// plain newline-delimited .txt file under the configured lists directory
// (spec §4.2), grounded on src/list_manager.py and src/functions.py's
// open_read/remove_entry/new_entries/rm_blanks helpers.
package lists

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/real-pm/mailrulez/internal/config"
)

// Store is the sender-list store for a single process. Every write takes
// the store-wide mutex and goes through a temp-file-plus-rename so a
// concurrent reader never observes a half-written list.
type Store struct {
	cfg *config.Config
	mu  sync.Mutex
}

// New builds a Store rooted at cfg.ListsDir.
func New(cfg *config.Config) *Store {
	return &Store{cfg: cfg}
}

// AllLists returns every list name discoverable in the lists directory,
// core lists first, then custom lists alphabetically.
func (s *Store) AllLists() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.ListsDir)
	if err != nil {
		return nil, fmt.Errorf("read lists dir: %w", err)
	}
	core := []string{"white", "black", "vendor"}
	coreSet := map[string]bool{"white": true, "black": true, "vendor": true}
	var custom []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".txt")
		if !coreSet[name] {
			custom = append(custom, name)
		}
	}
	sort.Strings(custom)
	return append(core, custom...), nil
}

func (s *Store) path(name string) (string, error) {
	return s.cfg.ListFilePath(name)
}

// Read returns the addresses in a list, in file order, blank lines
// already dropped.
func (s *Store) Read(name string) ([]string, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	return readFile(path)
}

func readFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open list %s: %w", path, err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read list %s: %w", path, err)
	}
	return out, nil
}

func writeFileAtomic(path string, lines []string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".list-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp list file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			tmp.Close()
			return fmt.Errorf("write temp list file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush temp list file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp list file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp list file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp list file: %w", err)
	}
	return nil
}

// Add appends entries to a list, skipping any already present.
func (s *Store) Add(name string, entries ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(name)
	if err != nil {
		return err
	}
	existing, err := readFile(path)
	if err != nil {
		return err
	}
	have := foldedSet(existing)
	out := existing
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		key := strings.ToLower(e)
		if _, ok := have[key]; ok {
			continue
		}
		have[key] = e
		out = append(out, e)
	}
	return writeFileAtomic(path, out)
}

// Remove deletes an entry from a list. Absent entries are a no-op.
func (s *Store) Remove(name, entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(name)
	if err != nil {
		return err
	}
	existing, err := readFile(path)
	if err != nil {
		return err
	}
	out := existing[:0:0]
	for _, e := range existing {
		if e != entry {
			out = append(out, e)
		}
	}
	return writeFileAtomic(path, out)
}

// Move removes entry from fromList and adds it to toList.
func (s *Store) Move(entry, fromList, toList string) error {
	if err := s.Remove(fromList, entry); err != nil {
		return err
	}
	return s.Add(toList, entry)
}

// RmBlanks drops blank lines from a list file. Add/Remove/Move never
// write blanks in the first place, so this only matters for lists edited
// by hand outside the store.
func (s *Store) RmBlanks(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(name)
	if err != nil {
		return err
	}
	existing, err := readFile(path)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, existing)
}

// Conflict is one address present in two lists at once.
type Conflict struct {
	Entry string
	ListA string
	ListB string
}

// Conflicts reports every address that appears on more than one of the
// given lists (case-insensitively), one Conflict per (entry, pair)
// combination, mirroring list_manager.py's pairwise intersections across
// white/black/vendor/head.
func (s *Store) Conflicts(listNames ...string) ([]Conflict, error) {
	contents := make(map[string]map[string]string, len(listNames))
	for _, name := range listNames {
		entries, err := s.Read(name)
		if err != nil {
			return nil, err
		}
		contents[name] = foldedSet(entries)
	}

	var conflicts []Conflict
	for i := 0; i < len(listNames); i++ {
		for j := i + 1; j < len(listNames); j++ {
			a, b := listNames[i], listNames[j]
			for key, entry := range contents[a] {
				if _, ok := contents[b][key]; ok {
					conflicts = append(conflicts, Conflict{Entry: entry, ListA: a, ListB: b})
				}
			}
		}
	}
	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].Entry != conflicts[j].Entry {
			return conflicts[i].Entry < conflicts[j].Entry
		}
		return conflicts[i].ListA < conflicts[j].ListA
	})
	return conflicts, nil
}

// foldedSet maps each entry's lowercased form to its original-case value
// (first occurrence wins), the basis for case-insensitive membership and
// conflict checks.
func foldedSet(values []string) map[string]string {
	set := make(map[string]string, len(values))
	for _, v := range values {
		key := strings.ToLower(v)
		if _, ok := set[key]; !ok {
			set[key] = v
		}
	}
	return set
}
