package imapclient

import "testing"

func TestIsGmail(t *testing.T) {
	cases := map[string]bool{
		"user@gmail.com":                 true,
		"user@googlemail.com":            true,
		"User@Gmail.com":                 true,
		"user@corp-mail.example.com":     false,
		"not-an-email":                   false,
		"user@sub.gmail.com.example.org": false,
	}
	for addr, want := range cases {
		if got := IsGmail(addr); got != want {
			t.Errorf("IsGmail(%q) = %v, want %v", addr, got, want)
		}
	}
}
