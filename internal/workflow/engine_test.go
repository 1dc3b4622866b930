package workflow_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fieldlink/internal/config"
	"fieldlink/internal/logging"
	"fieldlink/internal/workflow"
)

func testConfig() *config.Config {
	cfg := config.Default()
	return &cfg
}

func TestInternalActionCompletesWithoutNetwork(t *testing.T) {
	engine := workflow.NewEngine(testConfig(), logging.NewNop(),
		workflow.WithHTTPClient(failingDoer{t}))

	result := engine.RunAction(context.Background(), workflow.Request{
		InspectionID: "insp-1",
		Action:       workflow.ActionLogIssue,
		Note:         "corroded valve",
	})
	if !result.Completed() {
		t.Fatalf("result = %+v", result)
	}
	if !strings.HasPrefix(result.ExternalReferenceID, "log_") {
		t.Fatalf("reference = %q", result.ExternalReferenceID)
	}
}

type failingDoer struct{ t *testing.T }

func (d failingDoer) Do(*http.Request) (*http.Response, error) {
	d.t.Fatal("unexpected HTTP delivery")
	return nil, nil
}

func TestNoWebhookFallbackGeneratesLocalReference(t *testing.T) {
	engine := workflow.NewEngine(testConfig(), logging.NewNop())
	result := engine.RunAction(context.Background(), workflow.Request{
		InspectionID: "insp-2",
		Action:       workflow.ActionCreateTicket,
		Note:         "pump failure",
	})
	if !result.Completed() {
		t.Fatalf("result = %+v", result)
	}
	if !regexp.MustCompile(`^ticket_`).MatchString(result.ExternalReferenceID) {
		t.Fatalf("reference = %q", result.ExternalReferenceID)
	}
}

func TestNotifyFallbackUsesNotificationPrefix(t *testing.T) {
	engine := workflow.NewEngine(testConfig(), logging.NewNop())
	result := engine.RunAction(context.Background(), workflow.Request{
		InspectionID: "insp-2",
		Action:       workflow.ActionNotifySupervisor,
	})
	if !result.Completed() || !strings.HasPrefix(result.ExternalReferenceID, "notification_") {
		t.Fatalf("result = %+v", result)
	}
}

func TestRetriesTransientStatusesThenSucceeds(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "TCK-9", "message": "created"})
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Webhooks.CreateTicket.URL = server.URL

	engine := workflow.NewEngine(cfg, logging.NewNop(), noDelay())
	result := engine.RunAction(context.Background(), workflow.Request{
		InspectionID: "insp-3",
		Action:       workflow.ActionCreateTicket,
		Note:         "leaking seal",
	})

	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
	if !result.Completed() {
		t.Fatalf("result = %+v", result)
	}
	if result.ExternalReferenceID != "TCK-9" {
		t.Fatalf("reference = %q", result.ExternalReferenceID)
	}
	if result.ResultMessage != "created" {
		t.Fatalf("message = %q", result.ResultMessage)
	}
}

func TestNonRetriableStatusFailsAfterOneAttempt(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Webhooks.CreateTicket.URL = server.URL

	engine := workflow.NewEngine(cfg, logging.NewNop(), noDelay())
	result := engine.RunAction(context.Background(), workflow.Request{
		InspectionID: "insp-4",
		Action:       workflow.ActionCreateTicket,
	})

	if got := attempts.Load(); got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
	if result.Status != workflow.StatusFailed {
		t.Fatalf("status = %q", result.Status)
	}
	if !strings.Contains(result.ResultMessage, "400") {
		t.Fatalf("message = %q", result.ResultMessage)
	}
}

func TestTimeoutExhaustsAttemptCap(t *testing.T) {
	var attempts atomic.Int64
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		attempts.Add(1)
		return nil, context.DeadlineExceeded
	})

	cfg := testConfig()
	cfg.Webhooks.NotifySupervisor.URL = "https://hooks.example.test/notify"

	engine := workflow.NewEngine(cfg, logging.NewNop(), workflow.WithHTTPClient(doer), noDelay())
	result := engine.RunAction(context.Background(), workflow.Request{
		InspectionID: "insp-5",
		Action:       workflow.ActionNotifySupervisor,
	})

	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
	if result.Status != workflow.StatusFailed {
		t.Fatalf("status = %q", result.Status)
	}
	if !strings.Contains(result.ResultMessage, "timed out") {
		t.Fatalf("message = %q", result.ResultMessage)
	}
}

func TestIdempotentReplayDeliversOnce(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		if got := r.Header.Get("X-Idempotency-Key"); got != "job-42" {
			t.Errorf("idempotency header = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "TCK-1"})
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Webhooks.CreateTicket.URL = server.URL

	engine := workflow.NewEngine(cfg, logging.NewNop(), noDelay())
	req := workflow.Request{
		InspectionID:   "insp-6",
		Action:         workflow.ActionCreateTicket,
		Note:           "duplicate submit",
		IdempotencyKey: "job-42",
	}

	first := engine.RunAction(context.Background(), req)
	second := engine.RunAction(context.Background(), req)

	if got := attempts.Load(); got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
	if first != second {
		t.Fatalf("replay mismatch: %+v vs %+v", first, second)
	}
	if engine.Snapshot().Replayed != 1 {
		t.Fatalf("counters = %+v", engine.Snapshot())
	}
}

func TestFailedResultsAreNotCached(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "TCK-2"})
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Webhooks.CreateTicket.URL = server.URL

	engine := workflow.NewEngine(cfg, logging.NewNop(), noDelay())
	req := workflow.Request{
		InspectionID:   "insp-7",
		Action:         workflow.ActionCreateTicket,
		IdempotencyKey: "job-43",
	}

	if first := engine.RunAction(context.Background(), req); first.Completed() {
		t.Fatalf("first = %+v", first)
	}
	second := engine.RunAction(context.Background(), req)
	if !second.Completed() {
		t.Fatalf("second = %+v", second)
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
}

func TestJiraPayloadShaping(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		if r.URL.Path != "/rest/api/3/issue" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); !strings.HasPrefix(got, "Basic ") {
			t.Errorf("authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"key": "FS-77"})
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Webhooks.CreateTicket = config.Webhook{
		URL:            server.URL,
		Provider:       "jira",
		AuthType:       "basic",
		AuthUser:       "bot@example.test",
		AuthPass:       "secret",
		JiraProjectKey: "FS",
		JiraIssueType:  "Bug",
		RequestTimeout: 5,
	}

	engine := workflow.NewEngine(cfg, logging.NewNop(), noDelay())
	result := engine.RunAction(context.Background(), workflow.Request{
		InspectionID: "insp-8",
		Action:       workflow.ActionCreateTicket,
		Note:         "gauge reads past redline",
	})

	if result.ExternalReferenceID != "FS-77" {
		t.Fatalf("reference = %q", result.ExternalReferenceID)
	}
	fields, _ := captured["fields"].(map[string]any)
	if fields == nil {
		t.Fatalf("captured = %v", captured)
	}
	if project, _ := fields["project"].(map[string]any); project["key"] != "FS" {
		t.Fatalf("project = %v", fields["project"])
	}
	if issuetype, _ := fields["issuetype"].(map[string]any); issuetype["name"] != "Bug" {
		t.Fatalf("issuetype = %v", fields["issuetype"])
	}
	if fields["description"] != "gauge reads past redline" {
		t.Fatalf("description = %v", fields["description"])
	}
}

func TestJiraADFDescription(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		_ = json.NewEncoder(w).Encode(map[string]any{"key": "FS-78"})
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Webhooks.CreateTicket = config.Webhook{
		URL:            server.URL,
		Provider:       "jira",
		AuthType:       "none",
		JiraProjectKey: "FS",
		JiraADF:        true,
		RequestTimeout: 5,
	}

	engine := workflow.NewEngine(cfg, logging.NewNop(), noDelay())
	engine.RunAction(context.Background(), workflow.Request{
		InspectionID: "insp-9",
		Action:       workflow.ActionCreateTicket,
		Note:         "structured note",
	})

	fields, _ := captured["fields"].(map[string]any)
	description, _ := fields["description"].(map[string]any)
	if description["type"] != "doc" {
		t.Fatalf("description = %v", fields["description"])
	}
}

func TestServiceNowTableEndpointSendsFlatRecord(t *testing.T) {
	var captured map[string]any
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"number": "INC0010042"}})
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Webhooks.NotifySupervisor = config.Webhook{
		URL:             server.URL + "/api/now/table",
		Provider:        "servicenow",
		AuthType:        "none",
		ServiceNowTable: "incident",
		RequestTimeout:  5,
	}

	engine := workflow.NewEngine(cfg, logging.NewNop(), noDelay())
	result := engine.RunAction(context.Background(), workflow.Request{
		InspectionID: "insp-10",
		Action:       workflow.ActionNotifySupervisor,
		Note:         "supervisor needed on site",
	})

	if path != "/api/now/table/incident" {
		t.Fatalf("path = %q, want bare table path normalized", path)
	}
	if captured["u_inspection_id"] != "insp-10" {
		t.Fatalf("captured = %v", captured)
	}
	if _, wrapped := captured["record"]; wrapped {
		t.Fatal("table endpoint should receive a flat record")
	}
	if result.ExternalReferenceID != "INC0010042" {
		t.Fatalf("reference = %q", result.ExternalReferenceID)
	}
}

func TestServiceNowProxyEndpointWrapsRecord(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "row-7"}})
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Webhooks.NotifySupervisor = config.Webhook{
		URL:             server.URL + "/hooks/servicenow",
		Provider:        "servicenow",
		AuthType:        "none",
		ServiceNowTable: "incident",
		RequestTimeout:  5,
	}

	engine := workflow.NewEngine(cfg, logging.NewNop(), noDelay())
	result := engine.RunAction(context.Background(), workflow.Request{
		InspectionID: "insp-11",
		Action:       workflow.ActionNotifySupervisor,
	})

	if captured["table"] != "incident" {
		t.Fatalf("captured = %v", captured)
	}
	record, _ := captured["record"].(map[string]any)
	if record["u_inspection_id"] != "insp-11" {
		t.Fatalf("record = %v", record)
	}
	if result.ExternalReferenceID != "row-7" {
		t.Fatalf("reference = %q", result.ExternalReferenceID)
	}
}

func TestBearerAuthMissingTokenFailsWithoutDelivery(t *testing.T) {
	cfg := testConfig()
	cfg.Webhooks.CreateTicket = config.Webhook{
		URL:      "https://hooks.example.test",
		Provider: "generic",
		AuthType: "bearer",
	}

	engine := workflow.NewEngine(cfg, logging.NewNop(),
		workflow.WithHTTPClient(failingDoer{t}), noDelay())
	result := engine.RunAction(context.Background(), workflow.Request{
		InspectionID: "insp-12",
		Action:       workflow.ActionCreateTicket,
	})
	if result.Status != workflow.StatusFailed {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(result.ResultMessage, "auth") {
		t.Fatalf("message = %q", result.ResultMessage)
	}
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func noDelay() workflow.Option {
	return workflow.WithSleep(func(context.Context, time.Duration) error { return nil })
}
