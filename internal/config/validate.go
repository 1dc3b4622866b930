package config

import (
	"errors"
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}

	c.Gateway.Bind = strings.TrimSpace(c.Gateway.Bind)
	if c.Gateway.Bind == "" {
		c.Gateway.Bind = defaultBind
	}
	if c.Gateway.RateLimitWindowMS <= 0 {
		c.Gateway.RateLimitWindowMS = defaultRateLimitWindowMS
	}
	if c.Gateway.RateLimitMaxMessages <= 0 {
		c.Gateway.RateLimitMaxMessages = defaultRateLimitMaxMessages
	}
	c.Gateway.APIToken = strings.TrimSpace(c.Gateway.APIToken)

	c.AI.LiveURL = strings.TrimSpace(c.AI.LiveURL)
	c.AI.AnalyzeURL = strings.TrimSpace(c.AI.AnalyzeURL)
	c.AI.APIKey = strings.TrimSpace(c.AI.APIKey)
	if c.AI.RequestTimeout <= 0 {
		c.AI.RequestTimeout = defaultAIRequestTimeout
	}

	normalizeWebhook(&c.Webhooks.CreateTicket)
	normalizeWebhook(&c.Webhooks.NotifySupervisor)

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}

func normalizeWebhook(w *Webhook) {
	w.URL = strings.TrimSpace(w.URL)
	w.Provider = strings.ToLower(strings.TrimSpace(w.Provider))
	if w.Provider == "" {
		w.Provider = defaultWebhookProvider
	}
	w.AuthType = strings.ToLower(strings.TrimSpace(w.AuthType))
	if w.AuthType == "" {
		w.AuthType = defaultWebhookAuthType
	}
	w.JiraProjectKey = strings.TrimSpace(w.JiraProjectKey)
	if strings.TrimSpace(w.JiraIssueType) == "" {
		w.JiraIssueType = defaultJiraIssueType
	}
	if strings.TrimSpace(w.ServiceNowTable) == "" {
		w.ServiceNowTable = defaultServiceNowTable
	}
	if w.RequestTimeout <= 0 {
		w.RequestTimeout = defaultWebhookTimeout
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGateway(); err != nil {
		return err
	}
	if err := validateWebhook("webhooks.create_ticket", c.Webhooks.CreateTicket); err != nil {
		return err
	}
	if err := validateWebhook("webhooks.notify_supervisor", c.Webhooks.NotifySupervisor); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateGateway() error {
	if c.Gateway.AuthRequired && c.Gateway.APIToken == "" {
		return errors.New("gateway.api_token must be set when gateway.auth_required is true")
	}
	return nil
}

func validateWebhook(section string, w Webhook) error {
	switch w.Provider {
	case "generic", "jira", "servicenow":
	default:
		return fmt.Errorf("%s.provider: unsupported value %q", section, w.Provider)
	}
	switch w.AuthType {
	case "none":
	case "bearer":
		if w.URL != "" && strings.TrimSpace(w.AuthToken) == "" {
			return fmt.Errorf("%s.auth_token must be set for bearer auth", section)
		}
	case "basic":
		if w.URL != "" && strings.TrimSpace(w.AuthUser) == "" {
			return fmt.Errorf("%s.auth_user must be set for basic auth", section)
		}
	default:
		return fmt.Errorf("%s.auth_type: unsupported value %q", section, w.AuthType)
	}
	if w.Provider == "jira" && w.URL != "" && w.JiraProjectKey == "" {
		return fmt.Errorf("%s.jira_project_key must be set for the jira provider", section)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
