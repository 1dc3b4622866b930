package workflow

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Action identifies a workflow automation triggered from a detected voice
// intent or an explicit API request.
type Action string

const (
	ActionLogIssue         Action = "log_issue"
	ActionCreateTicket     Action = "create_ticket"
	ActionNotifySupervisor Action = "notify_supervisor"
	ActionAddToHistory     Action = "add_to_history"
)

// ParseAction maps a string onto a known action.
func ParseAction(value string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(value))) {
	case ActionLogIssue:
		return ActionLogIssue, true
	case ActionCreateTicket:
		return ActionCreateTicket, true
	case ActionNotifySupervisor:
		return ActionNotifySupervisor, true
	case ActionAddToHistory:
		return ActionAddToHistory, true
	default:
		return "", false
	}
}

// External reports whether the action is delivered to an outside system.
// Internal actions complete locally with no network I/O.
func (a Action) External() bool {
	return a == ActionCreateTicket || a == ActionNotifySupervisor
}

var titleCaser = cases.Title(language.English)

// Label returns a human-readable name for the action ("Create Ticket").
func (a Action) Label() string {
	return titleCaser.String(strings.ReplaceAll(string(a), "_", " "))
}

// referencePrefix is used for locally generated reference ids.
func (a Action) referencePrefix() string {
	switch a {
	case ActionCreateTicket:
		return "ticket_"
	case ActionNotifySupervisor:
		return "notification_"
	case ActionAddToHistory:
		return "history_"
	default:
		return "log_"
	}
}

// Request describes one workflow action invocation. Immutable once
// submitted.
type Request struct {
	InspectionID   string            `json:"inspectionId"`
	Action         Action            `json:"action"`
	Note           string            `json:"note,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
}

// Status reports the terminal state of a workflow action.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Result is produced once per logical request and cached under its
// idempotency key for replay.
type Result struct {
	Status              Status `json:"status"`
	ResultMessage       string `json:"resultMessage"`
	ExternalReferenceID string `json:"externalReferenceId,omitempty"`
}

// Completed reports whether the result reached a completed status.
func (r Result) Completed() bool {
	return r.Status == StatusCompleted
}
