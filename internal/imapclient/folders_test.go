package imapclient

import (
	"testing"

	imap "github.com/emersion/go-imap/v2"
)

func TestIsUserFolder(t *testing.T) {
	cases := []struct {
		name  string
		flags []imap.MailboxAttr
		want  bool
	}{
		{"INBOX", nil, true},
		{"INBOX.Processed", nil, true},
		{"[Gmail]/All Mail", nil, false},
		{"[Gmail]", nil, false},
		{"Noselect", []imap.MailboxAttr{imap.MailboxAttrNoSelect}, false},
		{"&AP8-", nil, false},
		{"#shared/team", nil, false},
	}
	for _, tc := range cases {
		if got := IsUserFolder(tc.name, tc.flags); got != tc.want {
			t.Errorf("IsUserFolder(%q, %v) = %v, want %v", tc.name, tc.flags, got, tc.want)
		}
	}
}
