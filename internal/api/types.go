// Package api defines the transport types shared by the daemon's control
// endpoints and the CLI.
package api

import "fieldlink/internal/workflow"

// DaemonStatus is the /api/status payload.
type DaemonStatus struct {
	Running          bool              `json:"running"`
	PID              int               `json:"pid"`
	Sessions         int               `json:"sessions"`
	Delivery         workflow.Counters `json:"delivery"`
	InspectionDBPath string            `json:"inspectionDbPath"`
	LockFilePath     string            `json:"lockFilePath"`
}

// SessionEntry describes one connected session in a transport-friendly
// format.
type SessionEntry struct {
	ClientID     string `json:"clientId"`
	SessionLabel string `json:"sessionLabel,omitempty"`
	InspectionID string `json:"inspectionId,omitempty"`
	Mode         string `json:"mode"`
	JoinedAt     string `json:"joinedAt"`
}

// SessionListResponse is the /api/sessions payload.
type SessionListResponse struct {
	Sessions []SessionEntry `json:"sessions"`
}

// WorkflowTestRequest triggers one workflow action from the CLI.
type WorkflowTestRequest struct {
	InspectionID   string            `json:"inspectionId"`
	Action         string            `json:"action"`
	Note           string            `json:"note,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
}

// WorkflowTestResponse is the /api/workflow/test payload.
type WorkflowTestResponse struct {
	Status              string `json:"status"`
	ResultMessage       string `json:"resultMessage"`
	ExternalReferenceID string `json:"externalReferenceId,omitempty"`
}

// HealthResponse is the /healthz payload.
type HealthResponse struct {
	Status string `json:"status"`
}
