package action

import (
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"

	"github.com/groupwarden/warden/internal/decision"
	"github.com/groupwarden/warden/internal/event"
)

type fakePublisher struct {
	decisions [][]byte
	audits    [][]byte
	fail      bool
}

func (f *fakePublisher) PublishDecision(_ int64, data []byte) error {
	if f.fail {
		return errors.New("nats down")
	}
	f.decisions = append(f.decisions, data)
	return nil
}

func (f *fakePublisher) PublishAudit(data []byte) error {
	f.audits = append(f.audits, data)
	return nil
}

func msgEvent() *event.Event {
	return &event.Event{
		ID:        "evt-1",
		Type:      event.TypeMessage,
		ChatID:    100,
		UserID:    7,
		MessageID: 555,
		Timestamp: 1700000000,
		Text:      "buy followers",
	}
}

func TestExecutePublishesEnforcement(t *testing.T) {
	pub := &fakePublisher{}
	ex := NewExecutor(pub, nil, nil, NewContextBuffer())

	d := decision.Decision{
		Action:        decision.ActionRestrict,
		DeleteMessage: true,
		MuteMinutes:   30,
		Reason:        "score 120 in band",
		TriggeredBy:   "band:3",
		IsSpam:        true,
		Source:        decision.SourceThreshold,
	}
	if err := ex.Execute(context.Background(), msgEvent(), d); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(pub.decisions) != 1 {
		t.Fatalf("published %d decisions, want 1", len(pub.decisions))
	}
	var enf Enforcement
	if err := json.Unmarshal(pub.decisions[0], &enf); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if enf.Action != decision.ActionRestrict || enf.MuteMinutes != 30 || !enf.DeleteMsg {
		t.Errorf("payload = %+v, want restrict/30/delete", enf)
	}
	if enf.ChatID != 100 || enf.UserID != 7 || enf.MessageID != 555 {
		t.Errorf("payload targets = %+v", enf)
	}
	if len(pub.audits) != 1 {
		t.Errorf("published %d audit copies, want 1", len(pub.audits))
	}
}

func TestExecuteSkipsOff(t *testing.T) {
	pub := &fakePublisher{}
	ex := NewExecutor(pub, nil, nil, nil)

	if err := ex.Execute(context.Background(), msgEvent(), decision.None()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(pub.decisions) != 0 {
		t.Errorf("off decision should publish nothing, got %d", len(pub.decisions))
	}
}

func TestExecuteWarnSetsCleanup(t *testing.T) {
	pub := &fakePublisher{}
	ex := NewExecutor(pub, nil, nil, nil)

	d := decision.Decision{Action: decision.ActionWarn, Reason: "first strike", Source: decision.SourceThreshold}
	if err := ex.Execute(context.Background(), msgEvent(), d); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var enf Enforcement
	if err := json.Unmarshal(pub.decisions[0], &enf); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if enf.CleanupAfter != int(NoticeTTL.Seconds()) {
		t.Errorf("CleanupAfter = %d, want %d", enf.CleanupAfter, int(NoticeTTL.Seconds()))
	}
}

func TestExecutePublishFailure(t *testing.T) {
	pub := &fakePublisher{fail: true}
	ex := NewExecutor(pub, nil, nil, nil)

	d := decision.Decision{Action: decision.ActionBan, Reason: "banned image", Source: decision.SourceImageHash}
	if err := ex.Execute(context.Background(), msgEvent(), d); err == nil {
		t.Fatal("expected error when publish fails")
	}
}

// A restrict decision without an explicit duration gets the escalated one
// from the offense ladder: 15 minutes on the first offense, an hour on the
// second.
func TestExecuteEscalatesOpenEndedRestrict(t *testing.T) {
	store := newTestRestrictions(t)
	pub := &fakePublisher{}
	ex := NewExecutor(pub, nil, store, nil)
	ctx := context.Background()

	d := decision.Decision{Action: decision.ActionRestrict, Reason: "profile link", Source: decision.SourceProfile}
	ev := msgEvent()
	ev.ChatID = 7777

	want := []int{int(Restrict15Min.Minutes()), int(Restrict1Hour.Minutes())}
	for i, minutes := range want {
		if err := ex.Execute(ctx, ev, d); err != nil {
			t.Fatalf("Execute #%d: %v", i+1, err)
		}
		var enf Enforcement
		if err := json.Unmarshal(pub.decisions[i], &enf); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if enf.MuteMinutes != minutes {
			t.Errorf("offense #%d: MuteMinutes = %d, want %d", i+1, enf.MuteMinutes, minutes)
		}
		if enf.OffenseCount != i+1 {
			t.Errorf("offense #%d: OffenseCount = %d, want %d", i+1, enf.OffenseCount, i+1)
		}
	}

	restricted, remaining, _, err := store.IsRestricted(ctx, 7777, ev.UserID)
	if err != nil {
		t.Fatalf("IsRestricted: %v", err)
	}
	if !restricted {
		t.Fatal("user should be restricted")
	}
	if remaining <= 0 || remaining > int(Restrict1Hour.Seconds()) {
		t.Errorf("remaining = %d, want (0, 3600]", remaining)
	}
}

// An explicit duration on the decision is used as-is, not escalated.
func TestExecuteKeepsExplicitDuration(t *testing.T) {
	store := newTestRestrictions(t)
	pub := &fakePublisher{}
	ex := NewExecutor(pub, nil, store, nil)

	d := decision.Decision{
		Action:      decision.ActionRestrict,
		MuteMinutes: 30,
		Reason:      "score in band",
		Source:      decision.SourceThreshold,
	}
	ev := msgEvent()
	ev.ChatID = 7777

	if err := ex.Execute(context.Background(), ev, d); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var enf Enforcement
	if err := json.Unmarshal(pub.decisions[0], &enf); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if enf.MuteMinutes != 30 {
		t.Errorf("MuteMinutes = %d, want the decision's own 30", enf.MuteMinutes)
	}
}

func TestObserveBuffersMessages(t *testing.T) {
	buf := NewContextBuffer()
	ex := NewExecutor(&fakePublisher{}, nil, nil, buf)

	ex.Observe(msgEvent())
	ex.Observe(&event.Event{Type: event.TypeMemberJoin, ChatID: 100, UserID: 8})

	msgs := buf.Recent(100)
	if len(msgs) != 1 {
		t.Fatalf("buffered %d messages, want 1 (joins are not buffered)", len(msgs))
	}
	if msgs[0].Text != "buy followers" {
		t.Errorf("buffered text = %q", msgs[0].Text)
	}
}
