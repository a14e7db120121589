package activity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNormalizeEventTrimsClonesAndDefaults(t *testing.T) {
	meta := map[string]any{"k": "v"}
	evt := Event{
		Verb:       " save.loaded ",
		ActorID:    " actor ",
		ObjectType: " save ",
		ObjectID:   " mod-0 ",
		Channel:    " saves ",
		Metadata:   meta,
	}

	got := NormalizeEvent(evt)

	if got.Verb != "save.loaded" || got.ObjectType != "save" || got.ObjectID != "mod-0" {
		t.Fatalf("unexpected normalized fields: %+v", got)
	}
	if got.ActorID != "actor" || got.Channel != "saves" {
		t.Fatalf("unexpected trimming: %+v", got)
	}
	if got.OccurredAt.IsZero() {
		t.Fatalf("expected OccurredAt to be set")
	}
	got.Metadata["k"] = "changed"
	if evt.Metadata["k"] != "v" {
		t.Fatalf("expected original metadata untouched: %+v", evt.Metadata)
	}
}

func TestHooksNotifyShortCircuitsMissingRequired(t *testing.T) {
	capture := &Journal{}
	if err := (Hooks{capture}).Notify(context.Background(), Event{Verb: "save.loaded"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events()) != 0 {
		t.Fatalf("expected no events captured, got %d", len(capture.Events()))
	}
}

func TestHooksNotifyFanOutAndJoinErrors(t *testing.T) {
	boom1 := errors.New("boom1")
	boom2 := errors.New("boom2")
	capture := &Journal{}
	var ctxSeen bool
	hooks := Hooks{
		HookFunc(func(ctx context.Context, event Event) error {
			ctxSeen = ctx != nil
			return nil
		}),
		capture,
		HookFunc(func(_ context.Context, _ Event) error { return boom1 }),
		nil,
		HookFunc(func(_ context.Context, _ Event) error { return boom2 }),
	}

	err := hooks.Notify(nil, Event{Verb: "save.persisted", ObjectType: "save", ObjectID: "mod-0"})
	if !errors.Is(err, boom1) || !errors.Is(err, boom2) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !ctxSeen {
		t.Fatalf("expected context fallback to be non-nil")
	}
	if len(capture.Events()) != 1 {
		t.Fatalf("expected event to be captured once, got %d", len(capture.Events()))
	}
}

func TestEmitterDisabledAndEnabled(t *testing.T) {
	capture := &Journal{}

	disabled := NewEmitter(Hooks{capture}, Config{Enabled: false})
	if disabled.Enabled() {
		t.Fatalf("expected emitter to be disabled")
	}
	if err := disabled.Emit(context.Background(), BuildSaveEvent(VerbSaveCreated, SaveEventInput{SaveID: "mod-0"})); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events()) != 0 {
		t.Fatalf("expected no events captured when disabled")
	}

	var nilEmitter *Emitter
	if err := nilEmitter.Emit(context.Background(), Event{}); err != nil {
		t.Fatalf("expected nil emitter to drop events, got %v", err)
	}

	enabled := NewEmitter(Hooks{capture}, Config{Enabled: true})
	if err := enabled.Emit(context.Background(), BuildSaveEvent(VerbSaveCreated, SaveEventInput{SaveID: "mod-0"})); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(capture.Events()) != 1 || capture.Events()[0].Channel != DefaultChannel {
		t.Fatalf("expected one event on the default channel, got %+v", capture.Events())
	}
}

func TestBuildSaveEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	evt := BuildSaveEvent(VerbSaveRejected, SaveEventInput{
		SaveID:     " mod-4 ",
		ModID:      "other-mod",
		Reason:     "foreign save",
		Metadata:   map[string]any{"attempt": 1},
		OccurredAt: at,
	})
	if evt.ObjectType != ObjectTypeSave || evt.ObjectID != "mod-4" || evt.OccurredAt != at {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.Metadata["mod_id"] != "other-mod" || evt.Metadata["reason"] != "foreign save" || evt.Metadata["attempt"] != 1 {
		t.Fatalf("unexpected metadata %+v", evt.Metadata)
	}
	if _, ok := evt.Metadata["name"]; ok {
		t.Fatalf("expected empty name omitted")
	}

	anonymous := BuildSaveEvent(VerbSaveDeleted, SaveEventInput{})
	if anonymous.ObjectID != ObjectTypeSave || anonymous.Metadata != nil {
		t.Fatalf("unexpected anonymous event %+v", anonymous)
	}
}
