package imapclient

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"

	imap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/real-pm/mailrulez/internal/config"
)

var gmailDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
}

// IsGmail reports whether an account's address is hosted on Gmail, the
// trigger for the label-aware move path (spec §4.1).
func IsGmail(email string) bool {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return false
	}
	return gmailDomains[strings.ToLower(email[i+1:])]
}

// GmailMoveResult reports what a label-aware move actually did.
type GmailMoveResult struct {
	Moved         []imap.UID
	LabelsRemoved []imap.UID
	Errors        []error
}

// GmailMove relocates uids from source to dest using RFC 6851 MOVE, then
// strips the synthetic source-folder label with a raw UID STORE
// -X-GM-LABELS command, matching the original's gmail_aware_move +
// remove_gmail_label pair. The label is left alone when source is INBOX
// (Gmail never lets a message lose its INBOX label through this path
// either), the same condition the original checks before calling
// remove_gmail_label.
func (c *Client) GmailMove(ctx context.Context, uids []imap.UID, dest, source string) (*GmailMoveResult, error) {
	res := &GmailMoveResult{}
	if len(uids) == 0 {
		return res, nil
	}

	err := c.withConn(ctx, func(conn *imapclient.Client) error {
		if err := c.selectLocked(source); err != nil {
			return err
		}
		var set imap.UIDSet
		for _, u := range uids {
			set.AddNum(u)
		}
		if _, err := conn.Move(set, dest).Wait(); err != nil {
			res.Errors = append(res.Errors, &MoveError{Dest: dest, Err: err})
			return nil
		}
		res.Moved = append(res.Moved, uids...)
		return nil
	})
	if err != nil {
		return res, err
	}

	if !strings.EqualFold(source, "INBOX") && len(res.Moved) > 0 {
		if err := c.removeGmailLabel(ctx, source, res.Moved); err != nil {
			res.Errors = append(res.Errors, err)
		} else {
			res.LabelsRemoved = append(res.LabelsRemoved, res.Moved...)
		}
	}

	return res, nil
}

// removeGmailLabel issues "UID STORE <uids> -X-GM-LABELS (<label>)" against
// source. X-GM-EXT-1 is a Gmail-only extension go-imap v2 has no typed
// command for, so this drops to the wire protocol directly over its own
// short-lived connection rather than reusing the shared session, the way
// the original's remove_gmail_label issues the raw STORE itself instead of
// going through the mailbox library's move/copy helpers.
func (c *Client) removeGmailLabel(ctx context.Context, source string, uids []imap.UID) error {
	if len(uids) == 0 {
		return nil
	}

	conn, r, err := c.dialRaw(ctx)
	if err != nil {
		return &MoveError{Dest: "X-GM-LABELS", Err: err}
	}
	defer conn.Close()

	if err := rawIMAPCommand(conn, r, "a1", fmt.Sprintf("LOGIN %s %s", quoteIMAP(c.account.Email), quoteIMAP(c.account.Password))); err != nil {
		return &MoveError{Dest: "X-GM-LABELS", Err: err}
	}
	if err := rawIMAPCommand(conn, r, "a2", fmt.Sprintf("SELECT %s", quoteIMAP(source))); err != nil {
		return &MoveError{Dest: "X-GM-LABELS", Err: err}
	}

	set := make([]string, len(uids))
	for i, u := range uids {
		set[i] = strconv.FormatUint(uint64(u), 10)
	}
	label := strings.TrimPrefix(source, "INBOX.")
	cmd := fmt.Sprintf("UID STORE %s -X-GM-LABELS (%s)", strings.Join(set, ","), quoteIMAP(label))
	if err := rawIMAPCommand(conn, r, "a3", cmd); err != nil {
		return &MoveError{Dest: "X-GM-LABELS", Err: err}
	}

	_ = rawIMAPCommand(conn, r, "a4", "LOGOUT")
	return nil
}

// dialRaw opens a second connection for the one command go-imap v2 can't
// issue, honoring the account's configured security mode the same way
// connect does.
func (c *Client) dialRaw(ctx context.Context) (net.Conn, *bufio.Reader, error) {
	d := net.Dialer{Timeout: DefaultTimeout}
	addr := c.addr()

	var conn net.Conn
	var err error
	if c.account.Security == config.SecurityNone || c.account.Security == config.SecurityStartTLS {
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = tls.DialWithDialer(&d, "tcp", addr, &tls.Config{ServerName: c.account.Server})
	}
	if err != nil {
		return nil, nil, err
	}

	r := bufio.NewReader(conn)
	if _, err := r.ReadString('\n'); err != nil {
		conn.Close()
		return nil, nil, err
	}

	if c.account.Security == config.SecurityStartTLS {
		if err := rawIMAPCommand(conn, r, "a0", "STARTTLS"); err != nil {
			conn.Close()
			return nil, nil, err
		}
		tlsConn := tls.Client(conn, &tls.Config{ServerName: c.account.Server})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, nil, err
		}
		conn = tlsConn
		r = bufio.NewReader(conn)
	}

	return conn, r, nil
}

// rawIMAPCommand writes a single tagged command and reads until its tagged
// response line, returning an error unless that response is OK.
func rawIMAPCommand(w net.Conn, r *bufio.Reader, tag, cmd string) error {
	if _, err := fmt.Fprintf(w, "%s %s\r\n", tag, cmd); err != nil {
		return err
	}
	prefix := tag + " "
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		if !strings.HasPrefix(line[len(prefix):], "OK") {
			return fmt.Errorf("imap: %s: %s", cmd, line)
		}
		return nil
	}
}

func quoteIMAP(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
