package retention

import (
	"context"
	"strconv"
	"strings"
	"time"

	imap "github.com/emersion/go-imap/v2"

	"github.com/real-pm/mailrulez/internal/config"
	"github.com/real-pm/mailrulez/internal/imapclient"
)

// TrashManager owns trash-folder discovery, staging moves, restoration,
// and permanent deletion, grounded on retention/trash_manager.py.
type TrashManager struct {
	audit *AuditLogger

	// trashPatterns lists candidate trash folder names per provider, tried
	// in order, falling back to the "default" list.
	trashPatterns map[string][]string
}

// NewTrashManager builds a TrashManager. audit may be nil in contexts
// (like a dry-run preview) that never want a side-effecting log write.
func NewTrashManager(audit *AuditLogger) *TrashManager {
	return &TrashManager{
		audit: audit,
		trashPatterns: map[string][]string{
			"gmail":   {"[Gmail]/Trash", "[Google Mail]/Trash"},
			"outlook": {"Deleted Items", "INBOX.Deleted Items"},
			"yahoo":   {"Trash", "INBOX.Trash"},
			"icloud":  {"INBOX.Trash"},
			"default": {"INBOX.Trash", "Trash", "INBOX.Deleted Items"},
		},
	}
}

func detectProvider(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return "default"
	}
	switch strings.ToLower(email[i+1:]) {
	case "gmail.com", "googlemail.com":
		return "gmail"
	case "outlook.com", "hotmail.com", "live.com":
		return "outlook"
	case "yahoo.com", "yahoo.co.uk":
		return "yahoo"
	case "icloud.com", "me.com", "mac.com":
		return "icloud"
	default:
		return "default"
	}
}

// GetTrashFolder resolves the trash folder for an account: an explicit
// account.Folders["trash"] wins, otherwise it's detected from the
// account's provider against the server's actual folder listing, falling
// back to the first provider-pattern candidate if nothing matches.
func (t *TrashManager) GetTrashFolder(ctx context.Context, account config.Account, client *imapclient.Client) (string, error) {
	if folder := account.Folders["trash"]; folder != "" {
		return folder, nil
	}

	patterns := t.trashPatterns[detectProvider(account.Email)]
	if len(patterns) == 0 {
		patterns = t.trashPatterns["default"]
	}

	if client != nil {
		if folders, err := client.ListFolders(ctx); err == nil {
			available := make(map[string]bool, len(folders))
			for _, f := range folders {
				available[f.Name] = true
			}
			for _, p := range patterns {
				if available[p] {
					return p, nil
				}
			}
			for _, p := range t.trashPatterns["default"] {
				if available[p] {
					return p, nil
				}
			}
		}
	}

	if len(patterns) == 0 {
		return "", &TrashFolderNotFoundError{AccountEmail: account.Email}
	}
	return patterns[0], nil
}

// MoveToTrash relocates uids from source to the account's trash folder,
// using the Gmail-aware label path when the account is hosted on Gmail.
func (t *TrashManager) MoveToTrash(ctx context.Context, client *imapclient.Client, account config.Account, uids []imap.UID, sourceFolder, policyID string) (int, error) {
	if len(uids) == 0 {
		return 0, nil
	}

	trashFolder, err := t.GetTrashFolder(ctx, account, client)
	if err != nil {
		return 0, err
	}

	var moveErr error
	if imapclient.IsGmail(account.Email) {
		_, moveErr = client.GmailMove(ctx, uids, trashFolder, sourceFolder)
	} else {
		moveErr = client.Move(ctx, uids, trashFolder)
	}

	uidStrings := uidsToStrings(uids)
	if t.audit != nil {
		_ = t.audit.LogTrashOperation("move_to_trash", account.Email, sourceFolder, uidStrings, moveErr == nil, policyID, errString(moveErr))
	}
	if moveErr != nil {
		return 0, &TrashOperationError{Operation: "move_to_trash", Folder: sourceFolder, Reason: moveErr.Error()}
	}
	return len(uids), nil
}

// RestoreFromTrash moves uids from the account's trash folder to target.
func (t *TrashManager) RestoreFromTrash(ctx context.Context, client *imapclient.Client, account config.Account, uids []imap.UID, target string) (int, error) {
	if len(uids) == 0 {
		return 0, nil
	}
	trashFolder, err := t.GetTrashFolder(ctx, account, client)
	if err != nil {
		return 0, err
	}

	var moveErr error
	if imapclient.IsGmail(account.Email) {
		_, moveErr = client.GmailMove(ctx, uids, target, trashFolder)
	} else {
		if err := client.Select(ctx, trashFolder); err != nil {
			return 0, err
		}
		moveErr = client.Move(ctx, uids, target)
	}

	if t.audit != nil {
		_ = t.audit.LogTrashOperation("restore_from_trash", account.Email, trashFolder, uidsToStrings(uids), moveErr == nil, "", errString(moveErr))
	}
	if moveErr != nil {
		return 0, &TrashOperationError{Operation: "restore_from_trash", Folder: trashFolder, Reason: moveErr.Error()}
	}
	return len(uids), nil
}

// GetTrashContents lists messages currently sitting in trash.
func (t *TrashManager) GetTrashContents(ctx context.Context, client *imapclient.Client, account config.Account) ([]TrashItem, error) {
	trashFolder, err := t.GetTrashFolder(ctx, account, client)
	if err != nil {
		return nil, err
	}
	headers, err := client.FetchHeaders(ctx, trashFolder, 0)
	if err != nil {
		return nil, err
	}

	items := make([]TrashItem, 0, len(headers))
	for _, h := range headers {
		subject := h.Subject
		if subject == "" {
			subject = "No Subject"
		}
		sender := h.Sender
		if sender == "" {
			sender = "Unknown Sender"
		}
		movedDate := h.Date
		if movedDate.IsZero() {
			movedDate = time.Now()
		}
		items = append(items, TrashItem{
			UID:              strconv.FormatUint(uint64(h.UID), 10),
			AccountEmail:     account.Email,
			Subject:          subject,
			Sender:           sender,
			MovedToTrashDate: movedDate,
		})
	}
	return items, nil
}

// PermanentDeleteFromTrash deletes every trashed message older than
// daysOld, returning the number of messages deleted.
func (t *TrashManager) PermanentDeleteFromTrash(ctx context.Context, client *imapclient.Client, account config.Account, daysOld int) (int, error) {
	trashFolder, err := t.GetTrashFolder(ctx, account, client)
	if err != nil {
		return 0, err
	}

	headers, err := client.FetchHeaders(ctx, trashFolder, 0)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().AddDate(0, 0, -daysOld)
	var old []imap.UID
	for _, h := range headers {
		if h.Date.Before(cutoff) {
			old = append(old, h.UID)
		}
	}
	if len(old) == 0 {
		return 0, nil
	}

	if err := client.Delete(ctx, old); err != nil {
		if t.audit != nil {
			_ = t.audit.LogTrashOperation("permanent_delete", account.Email, trashFolder, uidsToStrings(old), false, "", err.Error())
		}
		return 0, &TrashOperationError{Operation: "permanent_delete", Folder: trashFolder, Reason: err.Error()}
	}
	if t.audit != nil {
		_ = t.audit.LogTrashOperation("permanent_delete", account.Email, trashFolder, uidsToStrings(old), true, "", "")
	}
	return len(old), nil
}

// CleanupOldTrash is the Stage 2 entrypoint: permanently delete anything
// older than retentionDays in the account's trash folder.
func (t *TrashManager) CleanupOldTrash(ctx context.Context, client *imapclient.Client, account config.Account, retentionDays int) (int, error) {
	return t.PermanentDeleteFromTrash(ctx, client, account, retentionDays)
}

func uidsToStrings(uids []imap.UID) []string {
	out := make([]string, len(uids))
	for i, u := range uids {
		out[i] = strconv.FormatUint(uint64(u), 10)
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
