package lists

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/real-pm/mailrulez/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{ListsDir: dir}
	for _, name := range []string{"white", "black", "vendor"} {
		if err := os.WriteFile(filepath.Join(dir, name+".txt"), nil, 0o600); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	return New(cfg)
}

func TestAddAndRead(t *testing.T) {
	s := newTestStore(t)
	if err := s.Add("white", "a@example.com", "b@example.com", "a@example.com"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, err := s.Read("white")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []string{"a@example.com", "b@example.com"}
	if len(got) != len(want) {
		t.Fatalf("Read() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Read() = %v, want %v", got, want)
		}
	}
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	_ = s.Add("black", "x@example.com", "y@example.com")
	if err := s.Remove("black", "x@example.com"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	got, _ := s.Read("black")
	if len(got) != 1 || got[0] != "y@example.com" {
		t.Fatalf("Read() after Remove = %v", got)
	}
	// removing an absent entry is a no-op, not an error
	if err := s.Remove("black", "absent@example.com"); err != nil {
		t.Fatalf("Remove absent: %v", err)
	}
}

func TestMove(t *testing.T) {
	s := newTestStore(t)
	_ = s.Add("white", "move@example.com")
	if err := s.Move("move@example.com", "white", "black"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	white, _ := s.Read("white")
	black, _ := s.Read("black")
	if len(white) != 0 {
		t.Fatalf("white still has %v", white)
	}
	if len(black) != 1 || black[0] != "move@example.com" {
		t.Fatalf("black = %v", black)
	}
}

func TestConflicts(t *testing.T) {
	s := newTestStore(t)
	_ = s.Add("white", "dup@example.com", "only-white@example.com")
	_ = s.Add("black", "dup@example.com", "only-black@example.com")
	_ = s.Add("vendor", "dup@example.com")

	conflicts, err := s.Conflicts("white", "black", "vendor")
	if err != nil {
		t.Fatalf("Conflicts: %v", err)
	}
	if len(conflicts) != 3 {
		t.Fatalf("Conflicts() = %v, want 3 entries for dup@example.com across 3 pairs", conflicts)
	}
	for _, c := range conflicts {
		if c.Entry != "dup@example.com" {
			t.Errorf("unexpected conflicting entry %q", c.Entry)
		}
	}
}

func TestAllLists(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(filepath.Join(s.cfg.ListsDir, "headhunter.txt"), nil, 0o600); err != nil {
		t.Fatalf("seed custom list: %v", err)
	}
	names, err := s.AllLists()
	if err != nil {
		t.Fatalf("AllLists: %v", err)
	}
	want := []string{"white", "black", "vendor", "headhunter"}
	if len(names) != len(want) {
		t.Fatalf("AllLists() = %v, want %v", names, want)
	}
}
