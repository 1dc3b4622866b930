package inspection_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"fieldlink/internal/inspection"
)

func openStore(t *testing.T) *inspection.Store {
	t.Helper()
	store, err := inspection.OpenPath(filepath.Join(t.TempDir(), "fieldlink.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateAndGetInspection(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	created, err := store.CreateInspection(ctx, "insp-1", "Pump house quarterly", "pump-7")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != "open" {
		t.Fatalf("status = %q", created.Status)
	}

	got, err := store.GetInspection(ctx, "insp-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Pump house quarterly" || got.Equipment != "pump-7" {
		t.Fatalf("record = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("created_at not parsed")
	}
}

func TestGetMissingInspectionReturnsNotFound(t *testing.T) {
	store := openStore(t)
	_, err := store.GetInspection(context.Background(), "missing")
	if !errors.Is(err, inspection.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestAppendAndListEventsPreservesOrder(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if _, err := store.CreateInspection(ctx, "insp-2", "Boiler check", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := store.AppendEvent(ctx, inspection.Event{
		InspectionID: "insp-2",
		Action:       "log_issue",
		Status:       "completed",
		Message:      "noted corrosion",
		Source:       "voice_intent",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	second, err := store.AppendEvent(ctx, inspection.Event{
		InspectionID:        "insp-2",
		Action:              "create_ticket",
		Status:              "completed",
		Message:             "ticket created",
		ExternalReferenceID: "FS-5",
		Source:              "voice_intent",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if second <= first {
		t.Fatalf("event ids not monotonic: %d then %d", first, second)
	}

	events, err := store.ListEvents(ctx, "insp-2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d", len(events))
	}
	if events[0].Action != "log_issue" || events[1].Action != "create_ticket" {
		t.Fatalf("order = %q, %q", events[0].Action, events[1].Action)
	}
	if events[0].ExternalReferenceID != "" {
		t.Fatalf("empty reference should round-trip as empty, got %q", events[0].ExternalReferenceID)
	}
	if events[1].ExternalReferenceID != "FS-5" {
		t.Fatalf("reference = %q", events[1].ExternalReferenceID)
	}
}
