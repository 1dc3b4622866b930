package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fieldlink/internal/inspection"
	"fieldlink/internal/logging"
	"fieldlink/internal/workflow"
)

const (
	debounceInterval    = 15 * time.Second
	confirmationTimeout = 30 * time.Second

	eventSource = "voice_intent"
)

// Store is the inspection persistence the trigger needs.
type Store interface {
	GetInspection(ctx context.Context, id string) (*inspection.Record, error)
	AppendEvent(ctx context.Context, event inspection.Event) (int64, error)
}

// ActionRunner executes a workflow action to completion.
type ActionRunner interface {
	RunAction(ctx context.Context, req workflow.Request) workflow.Result
}

type pendingConfirmation struct {
	action       workflow.Action
	transcript   string
	inspectionID string
	expiresAt    time.Time
}

// lastIntent remembers the most recent action that actually proceeded for
// a client. Only a repeat of the same action is debounced.
type lastIntent struct {
	action workflow.Action
	at     time.Time
}

// Trigger watches final user transcripts for workflow intent and runs the
// matching action, gated by per-client debounce and voice confirmation for
// externally-visible actions.
type Trigger struct {
	store  Store
	runner ActionRunner
	logger *slog.Logger
	now    func() time.Time

	mu           sync.Mutex
	lastTrigger  map[string]lastIntent
	pending      map[string]*pendingConfirmation
	inspectionID map[string]string
}

// NewTrigger creates a trigger over the given store and runner.
func NewTrigger(store Store, runner ActionRunner, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Trigger{
		store:        store,
		runner:       runner,
		logger:       logger.With(logging.String(logging.FieldComponent, "intent")),
		now:          time.Now,
		lastTrigger:  make(map[string]lastIntent),
		pending:      make(map[string]*pendingConfirmation),
		inspectionID: make(map[string]string),
	}
}

// WithClock overrides the trigger's time source. Test hook.
func (t *Trigger) WithClock(now func() time.Time) *Trigger {
	t.now = now
	return t
}

// SetInspection binds a client to an inspection for subsequent intents.
func (t *Trigger) SetInspection(clientID, inspectionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inspectionID[clientID] = inspectionID
}

// ClearClient drops all per-client state after a disconnect.
func (t *Trigger) ClearClient(clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastTrigger, clientID)
	delete(t.pending, clientID)
	delete(t.inspectionID, clientID)
}

// HandleTranscript processes one final user transcript for the client and
// returns any spoken replies to send back. A nil slice means the transcript
// carried no workflow intent and no confirmation was pending.
func (t *Trigger) HandleTranscript(ctx context.Context, clientID, transcript string) []string {
	if replies, handled := t.resolvePending(ctx, clientID, transcript); handled {
		return replies
	}

	action, ok := DetectWorkflowIntent(transcript)
	if !ok {
		return nil
	}

	now := t.now()
	t.mu.Lock()
	if last, seen := t.lastTrigger[clientID]; seen && last.action == action && now.Sub(last.at) < debounceInterval {
		t.mu.Unlock()
		t.logger.Debug("intent debounced",
			logging.String(logging.FieldClientID, clientID),
			logging.String(logging.FieldAction, string(action)))
		return nil
	}
	inspectionID := t.inspectionID[clientID]
	t.mu.Unlock()

	// A stopped intent arms no debounce: the user can repeat the phrase
	// right after supplying the missing context.
	if inspectionID == "" {
		return []string{"I need to know which inspection you're working on first. Please share the inspection context."}
	}

	if RequiresVoiceConfirmation(action) {
		t.mu.Lock()
		t.lastTrigger[clientID] = lastIntent{action: action, at: now}
		t.pending[clientID] = &pendingConfirmation{
			action:       action,
			transcript:   transcript,
			inspectionID: inspectionID,
			expiresAt:    now.Add(confirmationTimeout),
		}
		t.mu.Unlock()
		return []string{fmt.Sprintf("Do you want me to %s for inspection %s? Say yes to confirm or no to cancel.",
			actionVerb(action), inspectionID)}
	}

	t.mu.Lock()
	t.lastTrigger[clientID] = lastIntent{action: action, at: now}
	t.mu.Unlock()
	return t.execute(ctx, clientID, action, transcript, inspectionID)
}

// resolvePending consumes the transcript as a confirmation answer when one
// is pending. The second return reports whether the transcript was consumed.
func (t *Trigger) resolvePending(ctx context.Context, clientID, transcript string) ([]string, bool) {
	t.mu.Lock()
	pending, ok := t.pending[clientID]
	if !ok {
		t.mu.Unlock()
		return nil, false
	}
	if t.now().After(pending.expiresAt) {
		delete(t.pending, clientID)
		t.mu.Unlock()
		return nil, false
	}
	decision := ClassifyConfirmation(transcript)
	if decision == DecisionNone {
		t.mu.Unlock()
		return nil, false
	}
	delete(t.pending, clientID)
	t.mu.Unlock()

	if decision == DecisionCancel {
		return []string{fmt.Sprintf("Okay, I won't %s.", actionVerb(pending.action))}, true
	}
	return t.execute(ctx, clientID, pending.action, pending.transcript, pending.inspectionID), true
}

func (t *Trigger) execute(ctx context.Context, clientID string, action workflow.Action, transcript, inspectionID string) []string {
	if _, err := t.store.GetInspection(ctx, inspectionID); err != nil {
		if errors.Is(err, inspection.ErrNotFound) {
			return []string{fmt.Sprintf("I couldn't find inspection %s. Please rejoin with a valid inspection context.", inspectionID)}
		}
		t.logger.Error("inspection lookup failed",
			logging.String(logging.FieldClientID, clientID),
			logging.String(logging.FieldInspectionID, inspectionID),
			logging.Error(err))
		return []string{"I hit a problem looking up the inspection. Please try again."}
	}

	result := t.runner.RunAction(ctx, workflow.Request{
		InspectionID: inspectionID,
		Action:       action,
		Note:         transcript,
		Metadata:     map[string]string{"source": eventSource},
	})

	if _, err := t.store.AppendEvent(ctx, inspection.Event{
		InspectionID:        inspectionID,
		Action:              string(action),
		Status:              string(result.Status),
		Message:             result.ResultMessage,
		ExternalReferenceID: result.ExternalReferenceID,
		Source:              eventSource,
	}); err != nil {
		t.logger.Error("failed to record workflow event",
			logging.String(logging.FieldInspectionID, inspectionID),
			logging.String(logging.FieldAction, string(action)),
			logging.Error(err))
	}

	t.logger.Info("voice intent executed",
		logging.String(logging.FieldClientID, clientID),
		logging.String(logging.FieldInspectionID, inspectionID),
		logging.String(logging.FieldAction, string(action)),
		logging.String("status", string(result.Status)))

	if !result.Completed() {
		return []string{fmt.Sprintf("I couldn't %s: %s", actionVerb(action), result.ResultMessage)}
	}
	summary := fmt.Sprintf("Done. %s for inspection %s.", action.Label(), inspectionID)
	if result.ExternalReferenceID != "" {
		summary = fmt.Sprintf("Done. %s for inspection %s (reference %s).",
			action.Label(), inspectionID, result.ExternalReferenceID)
	}
	return []string{summary}
}

func actionVerb(action workflow.Action) string {
	switch action {
	case workflow.ActionCreateTicket:
		return "create a ticket"
	case workflow.ActionNotifySupervisor:
		return "notify your supervisor"
	case workflow.ActionLogIssue:
		return "log this issue"
	case workflow.ActionAddToHistory:
		return "add this to the history"
	default:
		return string(action)
	}
}
