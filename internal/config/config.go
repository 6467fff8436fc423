// Package config loads the mail-rulez application configuration from
// environment variables and an optional YAML defaults file, and describes
// the per-account connection and folder-map shape the rest of the engine
// operates on.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SecurityMode selects how the IMAP client adapter dials an account's server.
type SecurityMode string

const (
	SecuritySSL      SecurityMode = "ssl"
	SecurityStartTLS SecurityMode = "starttls"
	SecurityNone     SecurityMode = "none"
)

// Folder keys of the fixed account folder-map vocabulary. Keys outside it
// are kept as loaded; they are not rejected.
const (
	FolderInbox       = "inbox"
	FolderProcessed   = "processed"
	FolderPending     = "pending"
	FolderJunk        = "junk"
	FolderApprovedAds = "approved_ads"
	FolderHeadhunt    = "headhunt"
	FolderPackages    = "packages"
	FolderReceipts    = "receipts"
	FolderLinkedIn    = "linkedin"
	FolderWhitelist   = "whitelist"
	FolderBlacklist   = "blacklist"
	FolderVendor      = "vendor"
	FolderHeadhunter  = "headhunter"
)

var folderVocabulary = map[string]bool{
	FolderInbox: true, FolderProcessed: true, FolderPending: true,
	FolderJunk: true, FolderApprovedAds: true, FolderHeadhunt: true,
	FolderPackages: true, FolderReceipts: true, FolderLinkedIn: true,
	FolderWhitelist: true, FolderBlacklist: true, FolderVendor: true,
	FolderHeadhunter: true,
}

// defaultFolders mirrors AccountConfig's Python __post_init__ defaults.
func defaultFolders() map[string]string {
	return map[string]string{
		FolderInbox:       "INBOX",
		FolderProcessed:   "INBOX.Processed",
		FolderPending:     "INBOX.Pending",
		FolderJunk:        "INBOX.Junk",
		FolderApprovedAds: "INBOX.Approved_Ads",
		FolderHeadhunt:    "INBOX.HeadHunt",
		FolderWhitelist:   "INBOX._whitelist",
		FolderBlacklist:   "INBOX._blacklist",
		FolderVendor:      "INBOX._vendor",
		FolderHeadhunter:  "INBOX._headhunter",
	}
}

// Account identifies a single mail account: name, credentials, server
// address, and its folder map. Owned by the configuration collaborator;
// the core receives it by value.
type Account struct {
	Name     string            `yaml:"name" json:"name"`
	Server   string            `yaml:"server" json:"server"`
	Port     int               `yaml:"port" json:"port"`
	Security SecurityMode      `yaml:"security" json:"security"`
	Email    string            `yaml:"email" json:"email"`
	Password string            `yaml:"password" json:"-"`
	Folders  map[string]string `yaml:"folders" json:"folders"`
}

// Folder returns the provider-specific folder name for a vocabulary key,
// falling back to the default mapping when the account didn't override it.
func (a Account) Folder(key string) string {
	if name, ok := a.Folders[key]; ok && name != "" {
		return name
	}
	return defaultFolders()[key]
}

// RequiredFolders returns the account's folder map filtered to the fixed
// vocabulary, excluding INBOX (§4.9 folder provisioning).
func (a Account) RequiredFolders() map[string]string {
	out := make(map[string]string)
	defaults := defaultFolders()
	for key := range folderVocabulary {
		if key == FolderInbox {
			continue
		}
		name := a.Folders[key]
		if name == "" {
			name = defaults[key]
		}
		if name == "" || name == "INBOX" {
			continue
		}
		out[key] = name
	}
	return out
}

func normalizeAccount(a *Account) {
	if a.Folders == nil {
		a.Folders = map[string]string{}
	}
	for key, name := range defaultFolders() {
		if _, ok := a.Folders[key]; !ok {
			a.Folders[key] = name
		}
	}
	if a.Security == "" {
		a.Security = SecuritySSL
	}
	if a.Port == 0 {
		switch a.Security {
		case SecurityNone:
			a.Port = 143
		default:
			a.Port = 993
		}
	}
}

// Config is the centralized, process-wide configuration, mirroring the
// original Config class: directories resolved from environment variables
// with sane fallbacks, plus accounts and legacy retention settings.
type Config struct {
	BaseDir    string `yaml:"-"`
	DataDir    string `yaml:"-"`
	ListsDir   string `yaml:"-"`
	ConfigDir  string `yaml:"-"`
	BackupsDir string `yaml:"-"`

	Timezone string `yaml:"timezone"`

	// ProcessingIntervals: maintenance-mode job intervals in minutes, as
	// loaded from the config file. internal/processor does not read them; it
	// schedules its jobs on its own fixed intervals.
	ProcessingIntervals struct {
		InboxMinutes      int `yaml:"inbox_minutes"`
		FoldersMinutes    int `yaml:"folders_minutes"`
		ForwardingMinutes int `yaml:"forwarding_minutes"`
	} `yaml:"processing_intervals"`

	// RetentionSettings is the legacy folder-type -> days mapping used for
	// the immediate approved_ads purge applied right after inbox processing
	// moves vendor-list senders into approved_ads, independent of the full policy system in internal/retention.
	RetentionSettings map[string]int `yaml:"retention_settings"`

	Accounts []Account `yaml:"accounts"`

	StrictValidation bool   `yaml:"-"`
	LogLevel         string `yaml:"-"`

	// RedisAddr, when set, enables cross-instance coordination (retention
	// scheduler leader election). Empty means single-instance mode.
	RedisAddr string `yaml:"-"`
}

const (
	coreListWhite  = "white"
	coreListBlack  = "black"
	coreListVendor = "vendor"
)

var coreLists = []string{coreListWhite, coreListBlack, coreListVendor}

// Load builds the Config the way the original resolved it: a YAML defaults
// file (optional) first, then environment variable overrides, matching the
// precedence of src/config.py's Config.__init__ / _load_from_env.
func Load(yamlPath string) (*Config, error) {
	cfg := &Config{
		RetentionSettings: map[string]int{
			FolderApprovedAds: 30,
			FolderProcessed:   90,
			FolderPending:     365,
			FolderJunk:        7,
		},
		Timezone: "US/Pacific",
	}
	cfg.ProcessingIntervals.InboxMinutes = 5
	cfg.ProcessingIntervals.FoldersMinutes = 4
	cfg.ProcessingIntervals.ForwardingMinutes = 1

	if yamlPath != "" {
		if data, err := os.ReadFile(yamlPath); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", yamlPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", yamlPath, err)
		}
	}

	cfg.resolveDirectories()
	cfg.applyEnv()

	for i := range cfg.Accounts {
		normalizeAccount(&cfg.Accounts[i])
	}

	if err := cfg.ensureDirectories(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) resolveDirectories() {
	base := firstNonEmpty(os.Getenv("MAIL_RULEZ_APP_DIR"), os.Getenv("MAIL_RULEZ_BASE_DIR"))
	if base == "" {
		if wd, err := os.Getwd(); err == nil {
			base = wd
		}
	}
	c.BaseDir = base

	c.DataDir = firstNonEmpty(os.Getenv("MAIL_RULEZ_DATA_DIR"), filepath.Join(base, "data"))
	c.ListsDir = firstNonEmpty(os.Getenv("MAIL_RULEZ_LISTS_DIR"), filepath.Join(base, "lists"))
	c.ConfigDir = firstNonEmpty(os.Getenv("MAIL_RULEZ_CONFIG_DIR"), base)
	c.BackupsDir = firstNonEmpty(os.Getenv("MAIL_RULEZ_BACKUPS_DIR"), filepath.Join(base, "backups"))
}

func (c *Config) applyEnv() {
	if tz := os.Getenv("MAIL_RULEZ_TIMEZONE"); tz != "" {
		c.Timezone = tz
	}
	if lvl := os.Getenv("MAIL_RULEZ_LOG_LEVEL"); lvl != "" {
		c.LogLevel = lvl
	}
	if v := os.Getenv("MAIL_RULEZ_STRICT_VALIDATION"); v != "" {
		b, err := strconv.ParseBool(v)
		c.StrictValidation = err == nil && b
	}
	c.RedisAddr = os.Getenv("MAIL_RULEZ_REDIS_ADDR")

	server := os.Getenv("MAIL_RULEZ_SERVER")
	email := os.Getenv("MAIL_RULEZ_EMAIL")
	password := os.Getenv("MAIL_RULEZ_PASSWORD")
	if server != "" && email != "" && password != "" {
		filtered := c.Accounts[:0]
		for _, a := range c.Accounts {
			if a.Name != "env_account" {
				filtered = append(filtered, a)
			}
		}
		c.Accounts = filtered
		acc := Account{Name: "env_account", Server: server, Email: email, Password: password}
		normalizeAccount(&acc)
		c.Accounts = append(c.Accounts, acc)
	}
}

func (c *Config) ensureDirectories() error {
	for _, dir := range []string{c.DataDir, c.ListsDir, c.ConfigDir, c.BackupsDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	for _, name := range coreLists {
		path := filepath.Join(c.ListsDir, name+".txt")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if f, ferr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600); ferr == nil {
				f.Close()
			}
		}
	}
	return nil
}

// ListFilePath resolves a list name (core or custom) to its path, mirroring
// Config.get_list_file_path. Core lists always resolve even before they
// have been discovered on disk.
func (c *Config) ListFilePath(name string) (string, error) {
	for _, core := range coreLists {
		if name == core {
			return filepath.Join(c.ListsDir, name+".txt"), nil
		}
	}
	entries, err := os.ReadDir(c.ListsDir)
	if err != nil {
		return "", fmt.Errorf("unknown list name: %s", name)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".txt")
		if stem == name {
			return filepath.Join(c.ListsDir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("unknown list name: %s", name)
}

// RetentionSetting returns the legacy per-folder-type retention days,
// defaulting to 30 when unset (Config.get_retention_setting).
func (c *Config) RetentionSetting(folderType string) int {
	if days, ok := c.RetentionSettings[folderType]; ok {
		return days
	}
	return 30
}

// Account looks up a configured account by email address.
func (c *Config) Account(email string) (Account, bool) {
	for _, a := range c.Accounts {
		if a.Email == email {
			return a, true
		}
	}
	return Account{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
