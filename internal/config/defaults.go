package config

const (
	defaultDataDir              = "~/.local/share/fieldlink"
	defaultLogDir               = "~/.local/share/fieldlink/logs"
	defaultBind                 = "127.0.0.1:8617"
	defaultRateLimitWindowMS    = 10000
	defaultRateLimitMaxMessages = 120
	defaultAIRequestTimeout     = 30
	defaultWebhookTimeout       = 10
	defaultWebhookProvider      = "generic"
	defaultWebhookAuthType      = "none"
	defaultJiraIssueType        = "Task"
	defaultServiceNowTable      = "incident"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Gateway: Gateway{
			Bind:                 defaultBind,
			RateLimitWindowMS:    defaultRateLimitWindowMS,
			RateLimitMaxMessages: defaultRateLimitMaxMessages,
		},
		AI: AI{
			RequestTimeout: defaultAIRequestTimeout,
		},
		Webhooks: Webhooks{
			CreateTicket:     defaultWebhook(),
			NotifySupervisor: defaultWebhook(),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func defaultWebhook() Webhook {
	return Webhook{
		Provider:        defaultWebhookProvider,
		AuthType:        defaultWebhookAuthType,
		JiraIssueType:   defaultJiraIssueType,
		ServiceNowTable: defaultServiceNowTable,
		RequestTimeout:  defaultWebhookTimeout,
	}
}
