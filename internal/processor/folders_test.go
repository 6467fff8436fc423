package processor

import (
	"sort"
	"testing"

	"go.uber.org/zap"

	"github.com/real-pm/mailrulez/internal/config"
)

func TestRequiredFoldersSkipsInboxAndUnconfiguredKeys(t *testing.T) {
	p := &Processor{
		logger: zap.NewNop(),
		account: config.Account{
			Email: "user@example.com",
			Folders: map[string]string{
				"inbox":     "INBOX",
				"pending":   "INBOX.Pending",
				"junk":      "INBOX.Junk",
				"whitelist": "",
			},
		},
	}

	required := p.requiredFolders()

	if got, want := required["pending"], "INBOX.Pending"; got != want {
		t.Fatalf("required[pending] = %q, want %q", got, want)
	}
	if got, want := required["junk"], "INBOX.Junk"; got != want {
		t.Fatalf("required[junk] = %q, want %q", got, want)
	}
	if _, ok := required["inbox"]; ok {
		t.Fatal("expected inbox to never be in the required-folder set")
	}
	if _, ok := required["whitelist"]; ok {
		t.Fatal("expected an empty-string override to be skipped, not required")
	}
	if _, ok := required["approved_ads"]; ok {
		t.Fatal("expected a key absent from the account's folder map to be skipped")
	}
}

func TestRequiredFoldersEmptyWhenNoOverrides(t *testing.T) {
	p := &Processor{
		logger:  zap.NewNop(),
		account: config.Account{Email: "user@example.com"},
	}

	required := p.requiredFolders()
	if len(required) != 0 {
		t.Fatalf("expected no required folders with an empty folder map, got %v", required)
	}
}

func TestEssentialFoldersCoversExpectedVocabulary(t *testing.T) {
	want := []string{
		"pending", "processed", "junk", "approved_ads", "headhunt",
		"packages", "receipts", "linkedin",
		"whitelist", "blacklist", "vendor", "headhunter",
	}
	got := append([]string(nil), essentialFolders...)
	sort.Strings(got)
	sort.Strings(want)

	if len(got) != len(want) {
		t.Fatalf("essentialFolders has %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("essentialFolders mismatch at %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
