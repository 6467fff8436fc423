// Package imapclient is the IMAP client adapter (spec §4.1): connect,
// list folders, fetch headers, move/delete/flag, and the Gmail-aware label
// extension, built on github.com/emersion/go-imap/v2 the way
// _examples/other_examples/.../internal-imap-client.go.go wraps the same
// library for its own per-account lazily-dialed connection.
package imapclient

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	imap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"github.com/real-pm/mailrulez/internal/config"
)

// DefaultTimeout is the dial timeout of the raw connection used for Gmail
// label removal. The go-imap connection itself sets no per-call timeout.
const DefaultTimeout = 30 * time.Second

// Header is a message header record: (uid, subject, sender, date).
type Header struct {
	UID     imap.UID
	Subject string
	Sender  string
	Date    time.Time
}

// Folder describes one entry from a folder listing.
type Folder struct {
	Name      string
	Delimiter string
	Flags     []imap.MailboxAttr
}

// Client is a single account's lazily-dialed IMAP connection. It is not
// safe for concurrent use from multiple goroutines at once by design: a
// processor opens and closes its own session per job (spec §5, "no shared
// mutable IMAP session").
type Client struct {
	account config.Account
	logger  *zap.Logger

	mu              sync.Mutex
	conn            *imapclient.Client
	selectedMailbox string
	mailboxCache    []Folder
}

// New builds a Client for the given account. The connection is established
// lazily on first use.
func New(account config.Account, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{account: account, logger: logger}
}

func (c *Client) addr() string {
	return fmt.Sprintf("%s:%d", c.account.Server, c.account.Port)
}

// connect dials and authenticates. Caller must hold mu.
func (c *Client) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	opts := &imapclient.Options{}
	var (
		conn *imapclient.Client
		err  error
	)
	switch c.account.Security {
	case config.SecurityStartTLS:
		conn, err = imapclient.DialStartTLS(c.addr(), opts)
	case config.SecurityNone:
		conn, err = imapclient.DialInsecure(c.addr(), opts)
	default:
		conn, err = imapclient.DialTLS(c.addr(), opts)
	}
	if err != nil {
		return &ConnectionError{Account: c.account.Email, Err: err}
	}

	if err := conn.Login(c.account.Email, c.account.Password).Wait(); err != nil {
		_ = conn.Close()
		return &ConnectionError{Account: c.account.Email, Err: err}
	}

	c.conn = conn
	c.selectedMailbox = ""
	c.logger.Debug("connected", zap.String("addr", c.addr()))
	return nil
}

// withConn runs fn against the live connection, dialing first if needed.
func (c *Client) withConn(ctx context.Context, fn func(*imapclient.Client) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connect(ctx); err != nil {
		return err
	}
	return fn(c.conn)
}

func (c *Client) selectLocked(folder string) error {
	if c.selectedMailbox == folder {
		return nil
	}
	if _, err := c.conn.Select(folder, nil).Wait(); err != nil {
		return &FolderError{Folder: folder, Op: "select", Err: err}
	}
	c.selectedMailbox = folder
	return nil
}

// Logout closes the session. Safe to call even if never connected.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	c.selectedMailbox = ""
	c.mailboxCache = nil
	return conn.Logout().Wait()
}

// ListFolders returns every mailbox the server reports, annotated with its
// delimiter and attribute flags.
func (c *Client) ListFolders(ctx context.Context) ([]Folder, error) {
	var folders []Folder
	err := c.withConn(ctx, func(conn *imapclient.Client) error {
		items, err := conn.List("", "*", nil).Collect()
		if err != nil {
			return &FolderError{Op: "list", Err: err}
		}
		folders = make([]Folder, 0, len(items))
		for _, item := range items {
			folders = append(folders, Folder{
				Name:      item.Mailbox,
				Delimiter: string(item.Delim),
				Flags:     item.Attrs,
			})
		}
		c.mailboxCache = folders
		return nil
	})
	return folders, err
}

// Select chooses the active mailbox for subsequent operations.
func (c *Client) Select(ctx context.Context, folder string) error {
	return c.withConn(ctx, func(conn *imapclient.Client) error {
		return c.selectLocked(folder)
	})
}

// CreateFolder issues IMAP CREATE for a new mailbox.
func (c *Client) CreateFolder(ctx context.Context, name string) error {
	return c.withConn(ctx, func(conn *imapclient.Client) error {
		if err := conn.Create(name, nil).Wait(); err != nil {
			return &FolderError{Folder: name, Op: "create", Err: err}
		}
		return nil
	})
}

// FetchHeaders fetches headers-only from folder, newest first, without
// marking messages seen. limit<=0 means unbounded.
func (c *Client) FetchHeaders(ctx context.Context, folder string, limit int) ([]Header, error) {
	var headers []Header
	err := c.withConn(ctx, func(conn *imapclient.Client) error {
		if err := c.selectLocked(folder); err != nil {
			return err
		}

		searchData, err := conn.UIDSearch(&imap.SearchCriteria{}, &imap.SearchOptions{ReturnAll: true}).Wait()
		if err != nil {
			return &FolderError{Folder: folder, Op: "search", Err: err}
		}
		uidSet, ok := searchData.All.(imap.UIDSet)
		if !ok {
			return nil
		}

		fetchOpts := &imap.FetchOptions{UID: true, Envelope: true}
		msgs, err := conn.Fetch(uidSet, fetchOpts).Collect()
		if err != nil {
			return &FolderError{Folder: folder, Op: "fetch", Err: err}
		}

		headers = make([]Header, 0, len(msgs))
		for _, m := range msgs {
			h := Header{UID: m.UID}
			if m.Envelope != nil {
				h.Subject = m.Envelope.Subject
				h.Sender = formatSender(m.Envelope)
				h.Date = m.Envelope.Date
			}
			headers = append(headers, h)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// newest first
	sort.Slice(headers, func(i, j int) bool {
		if headers[i].Date.Equal(headers[j].Date) {
			return headers[i].UID > headers[j].UID
		}
		return headers[i].Date.After(headers[j].Date)
	})
	if limit > 0 && len(headers) > limit {
		headers = headers[:limit]
	}
	return headers, nil
}

func formatSender(env *imap.Envelope) string {
	addrs := env.From
	if len(addrs) == 0 {
		addrs = env.Sender
	}
	if len(addrs) == 0 {
		return ""
	}
	a := addrs[0]
	addr := fmt.Sprintf("%s@%s", a.Mailbox, a.Host)
	if a.Name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", a.Name, addr)
}

// Move relocates uids from the currently selected folder to dest using the
// server-side MOVE command.
func (c *Client) Move(ctx context.Context, uids []imap.UID, dest string) error {
	if len(uids) == 0 {
		return nil
	}
	return c.withConn(ctx, func(conn *imapclient.Client) error {
		var set imap.UIDSet
		for _, u := range uids {
			set.AddNum(u)
		}
		if _, err := conn.Move(set, dest).Wait(); err != nil {
			return &MoveError{Dest: dest, Err: err}
		}
		return nil
	})
}

// Delete permanently removes uids: UID STORE \Deleted followed by UID EXPUNGE.
func (c *Client) Delete(ctx context.Context, uids []imap.UID) error {
	if len(uids) == 0 {
		return nil
	}
	return c.withConn(ctx, func(conn *imapclient.Client) error {
		var set imap.UIDSet
		for _, u := range uids {
			set.AddNum(u)
		}
		if err := conn.Store(set, &imap.StoreFlags{
			Op:     imap.StoreFlagsAdd,
			Silent: true,
			Flags:  []imap.Flag{imap.FlagDeleted},
		}, nil).Close(); err != nil {
			return &MoveError{Dest: "\\Deleted", Err: err}
		}
		if err := conn.UIDExpunge(set).Close(); err != nil {
			return &MoveError{Dest: "expunge", Err: err}
		}
		return nil
	})
}

// Flag sets or clears a flag on uids.
func (c *Client) Flag(ctx context.Context, uids []imap.UID, flag imap.Flag, set bool) error {
	if len(uids) == 0 {
		return nil
	}
	return c.withConn(ctx, func(conn *imapclient.Client) error {
		var uidSet imap.UIDSet
		for _, u := range uids {
			uidSet.AddNum(u)
		}
		op := imap.StoreFlagsAdd
		if !set {
			op = imap.StoreFlagsDel
		}
		if err := conn.Store(uidSet, &imap.StoreFlags{Op: op, Silent: true, Flags: []imap.Flag{flag}}, nil).Close(); err != nil {
			return &MoveError{Dest: string(flag), Err: err}
		}
		return nil
	})
}

// IsUserFolder returns false for server-reserved containers, NOSELECT
// mailboxes, and shared/remote namespace prefixes (spec §4.1).
func IsUserFolder(name string, flags []imap.MailboxAttr) bool {
	for _, f := range flags {
		if f == imap.MailboxAttrNoSelect {
			return false
		}
	}
	if strings.HasPrefix(name, "[") && strings.Contains(name, "]") {
		return false
	}
	if strings.HasPrefix(name, "&") || strings.HasPrefix(name, "#") {
		return false
	}
	return true
}
