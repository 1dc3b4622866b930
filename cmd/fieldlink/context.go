package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"fieldlink/internal/config"
)

// commandContext resolves shared CLI state lazily: configuration, the
// daemon address, and the API token.
type commandContext struct {
	addrFlag   *string
	tokenFlag  *string
	configFlag *string
	jsonFlag   *bool

	cfg        *config.Config
	httpClient *http.Client
}

func newCommandContext(addr, token, configPath *string, jsonOut *bool) *commandContext {
	return &commandContext{
		addrFlag:   addr,
		tokenFlag:  token,
		configFlag: configPath,
		jsonFlag:   jsonOut,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, _, _, err := config.Load(strings.TrimSpace(*c.configFlag))
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) apiAddr() (string, error) {
	if addr := strings.TrimSpace(*c.addrFlag); addr != "" {
		return addr, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return cfg.Gateway.Bind, nil
}

func (c *commandContext) apiToken() string {
	if token := strings.TrimSpace(*c.tokenFlag); token != "" {
		return token
	}
	if cfg, err := c.ensureConfig(); err == nil {
		return cfg.Gateway.APIToken
	}
	return ""
}

// jsonOutput reports whether results should be printed as raw JSON.
// Piped output defaults to JSON so scripts get a stable format.
func (c *commandContext) jsonOutput() bool {
	if *c.jsonFlag {
		return true
	}
	return !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// getJSON issues a GET against the daemon API and decodes the response.
func (c *commandContext) getJSON(path string, target any) error {
	return c.doJSON(http.MethodGet, path, nil, target)
}

// postJSON issues a POST with a JSON body and decodes the response.
func (c *commandContext) postJSON(path string, body, target any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.doJSON(http.MethodPost, path, raw, target)
}

func (c *commandContext) doJSON(method, path string, body []byte, target any) error {
	addr, err := c.apiAddr()
	if err != nil {
		return err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, "http://"+addr+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.apiToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("is fieldlinkd running? %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned HTTP %d", resp.StatusCode)
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func printJSON(payload any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
