package processor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/real-pm/mailrulez/internal/imapclient"
)

// essentialFolders lists the folder vocabulary keys email processing
// needs on the server, grounded on _get_required_folders.
var essentialFolders = []string{
	"pending", "processed", "junk", "approved_ads", "headhunt",
	"packages", "receipts", "linkedin",
	"whitelist", "blacklist", "vendor", "headhunter",
}

// requiredFolders resolves each essential folder key to the account's
// configured folder name, skipping INBOX (never created) and any key the
// account doesn't override.
func (p *Processor) requiredFolders() map[string]string {
	required := make(map[string]string)
	for _, key := range essentialFolders {
		name, ok := p.account.Folders[key]
		if !ok || name == "" || name == "INBOX" {
			continue
		}
		required[key] = name
	}
	return required
}

// validateAndSetupFoldersLocked creates any required folder missing from
// the server. Called with p.mu held.
func (p *Processor) validateAndSetupFoldersLocked(ctx context.Context, client *imapclient.Client) (FolderStatus, error) {
	existingFolders, err := client.ListFolders(ctx)
	if err != nil {
		return FolderStatus{}, err
	}
	existing := make(map[string]bool, len(existingFolders))
	existingNames := make([]string, 0, len(existingFolders))
	for _, f := range existingFolders {
		existing[f.Name] = true
		existingNames = append(existingNames, f.Name)
	}

	required := p.requiredFolders()
	missing := make(map[string]string)
	for key, name := range required {
		if !existing[name] {
			missing[key] = name
		}
	}

	created := 0
	for key, name := range missing {
		if err := client.CreateFolder(ctx, name); err != nil {
			p.logger.Warn("failed to create folder", zap.String("folder", name), zap.String("key", key), zap.Error(err))
			continue
		}
		p.logger.Info("created folder", zap.String("folder", name), zap.String("key", key))
		created++
	}

	if len(missing) > 0 && created == 0 {
		return FolderStatus{Existing: existingNames, Required: required, Missing: missing},
			fmt.Errorf("folder provisioning failed: all %d missing folder(s) could not be created", len(missing))
	}

	return FolderStatus{Existing: existingNames, Required: required, Missing: missing}, nil
}

// GetFolderStatus is the non-mutating counterpart to Start's folder
// provisioning: it reports what's missing without creating anything.
func (p *Processor) GetFolderStatus(ctx context.Context) (FolderStatus, error) {
	client := p.newClient()
	defer client.Logout(ctx)

	existingFolders, err := client.ListFolders(ctx)
	if err != nil {
		return FolderStatus{}, err
	}
	existing := make(map[string]bool, len(existingFolders))
	existingNames := make([]string, 0, len(existingFolders))
	for _, f := range existingFolders {
		existing[f.Name] = true
		existingNames = append(existingNames, f.Name)
	}

	required := p.requiredFolders()
	missing := make(map[string]string)
	for key, name := range required {
		if !existing[name] {
			missing[key] = name
		}
	}

	return FolderStatus{Existing: existingNames, Required: required, Missing: missing}, nil
}
