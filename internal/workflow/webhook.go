package workflow

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"fieldlink/internal/config"
)

// Provider selects the payload dialect for a webhook target.
type Provider int

const (
	ProviderGeneric Provider = iota
	ProviderJira
	ProviderServiceNow
)

func (p Provider) String() string {
	switch p {
	case ProviderJira:
		return "jira"
	case ProviderServiceNow:
		return "servicenow"
	default:
		return "generic"
	}
}

func parseProvider(value string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "generic":
		return ProviderGeneric, nil
	case "jira":
		return ProviderJira, nil
	case "servicenow":
		return ProviderServiceNow, nil
	default:
		return ProviderGeneric, fmt.Errorf("unknown webhook provider %q", value)
	}
}

const jiraDefaultIssuePath = "/rest/api/3/issue"

// endpoint is a resolved webhook target for one action.
type endpoint struct {
	url      *url.URL
	provider Provider

	authHeader string

	jiraProjectKey string
	jiraIssueType  string
	jiraADF        bool

	serviceNowTable string

	timeout time.Duration
}

// resolveEndpoint turns webhook settings into a deliverable endpoint.
// A nil endpoint with nil error means no URL is configured and the caller
// should synthesize a local result.
func resolveEndpoint(hook config.Webhook) (*endpoint, error) {
	if strings.TrimSpace(hook.URL) == "" {
		return nil, nil
	}

	target, err := url.Parse(hook.URL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, &DeliveryError{
			Kind: KindConnectionFailed,
			Err:  fmt.Errorf("invalid webhook url %q", hook.URL),
		}
	}

	provider, err := parseProvider(hook.Provider)
	if err != nil {
		return nil, &DeliveryError{Kind: KindConnectionFailed, Err: err}
	}

	authHeader, err := buildAuthHeader(hook)
	if err != nil {
		return nil, &DeliveryError{Kind: KindAuthConfigMissing, Err: err}
	}

	ep := &endpoint{
		url:             target,
		provider:        provider,
		authHeader:      authHeader,
		jiraProjectKey:  strings.TrimSpace(hook.JiraProjectKey),
		jiraIssueType:   strings.TrimSpace(hook.JiraIssueType),
		jiraADF:         hook.JiraADF,
		serviceNowTable: strings.TrimSpace(hook.ServiceNowTable),
		timeout:         time.Duration(hook.RequestTimeout) * time.Second,
	}
	if ep.timeout <= 0 {
		ep.timeout = 10 * time.Second
	}
	if ep.jiraIssueType == "" {
		ep.jiraIssueType = "Task"
	}
	if ep.serviceNowTable == "" {
		ep.serviceNowTable = "incident"
	}

	switch provider {
	case ProviderJira:
		if ep.url.Path == "" || ep.url.Path == "/" {
			ep.url.Path = jiraDefaultIssuePath
		}
	case ProviderServiceNow:
		// A bare table API path gets the configured table appended.
		if strings.TrimRight(ep.url.Path, "/") == "/api/now/table" {
			ep.url.Path = "/api/now/table/" + ep.serviceNowTable
		}
	}

	return ep, nil
}

func buildAuthHeader(hook config.Webhook) (string, error) {
	switch strings.ToLower(strings.TrimSpace(hook.AuthType)) {
	case "", "none":
		return "", nil
	case "bearer":
		token := strings.TrimSpace(hook.AuthToken)
		if token == "" {
			return "", errors.New("bearer auth requires auth_token")
		}
		return "Bearer " + token, nil
	case "basic":
		user := strings.TrimSpace(hook.AuthUser)
		if user == "" {
			return "", errors.New("basic auth requires auth_user")
		}
		credentials := base64.StdEncoding.EncodeToString([]byte(user + ":" + hook.AuthPass))
		return "Basic " + credentials, nil
	default:
		return "", fmt.Errorf("unknown auth type %q", hook.AuthType)
	}
}

// isServiceNowTablePath reports whether the target path addresses the
// ServiceNow table API directly (flat record body) rather than a proxy.
func (e *endpoint) isServiceNowTablePath() bool {
	return strings.Contains(e.url.Path, "/api/now/table/")
}
