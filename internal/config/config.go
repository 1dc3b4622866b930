package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Gateway contains configuration for the realtime session gateway and API.
type Gateway struct {
	Bind                 string `toml:"bind"`
	AuthRequired         bool   `toml:"auth_required"`
	APIToken             string `toml:"api_token"`
	RateLimitWindowMS    int    `toml:"rate_limit_window_ms"`
	RateLimitMaxMessages int    `toml:"rate_limit_max_messages"`
}

// AI contains configuration for the upstream vision/speech service.
type AI struct {
	LiveURL        string `toml:"live_url"`
	AnalyzeURL     string `toml:"analyze_url"`
	APIKey         string `toml:"api_key"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Webhook contains delivery configuration for one externally-visible action.
// All fields are optional; an empty URL means local fallback behavior.
type Webhook struct {
	URL             string `toml:"url"`
	Provider        string `toml:"provider"`  // generic | jira | servicenow
	AuthType        string `toml:"auth_type"` // none | bearer | basic
	AuthToken       string `toml:"auth_token"`
	AuthUser        string `toml:"auth_user"`
	AuthPass        string `toml:"auth_pass"`
	JiraProjectKey  string `toml:"jira_project_key"`
	JiraIssueType   string `toml:"jira_issue_type"`
	JiraADF         bool   `toml:"jira_adf_description"`
	ServiceNowTable string `toml:"servicenow_table"`
	RequestTimeout  int    `toml:"request_timeout"`
}

// Webhooks groups per-action webhook targets.
type Webhooks struct {
	CreateTicket     Webhook `toml:"create_ticket"`
	NotifySupervisor Webhook `toml:"notify_supervisor"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for fieldlink.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Gateway: bind address, auth, inbound rate limiting
//   - AI: upstream vision/speech service endpoints
//   - Webhooks: per-action ticketing/notification delivery targets
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Gateway  Gateway  `toml:"gateway"`
	AI       AI       `toml:"ai"`
	Webhooks Webhooks `toml:"webhooks"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/fieldlink/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("fieldlink.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RateLimitWindow returns the gateway rate limit window as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.Gateway.RateLimitWindowMS) * time.Millisecond
}

// WebhookFor returns the webhook settings bound to the given action name,
// or false when the action has no external delivery target.
func (c *Config) WebhookFor(action string) (Webhook, bool) {
	switch action {
	case "create_ticket":
		return c.Webhooks.CreateTicket, true
	case "notify_supervisor":
		return c.Webhooks.NotifySupervisor, true
	default:
		return Webhook{}, false
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
