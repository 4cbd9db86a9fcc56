package profile

import (
	"testing"
	"time"

	"github.com/groupwarden/warden/internal/decision"
	"github.com/groupwarden/warden/internal/event"
	"github.com/groupwarden/warden/internal/pattern"
)

func profileEvent(p event.ProfileChange, at time.Time) *event.Event {
	return &event.Event{
		ID:        "pe-1",
		Type:      event.TypeProfileEdit,
		ChatID:    -100,
		UserID:    7,
		Timestamp: at.Unix(),
		Profile:   &p,
	}
}

func enabled() Settings {
	return Settings{Enabled: true, MuteMinutes: 60, RenameGrace: 10 * time.Minute, ScoreThreshold: 50}
}

func TestCheck_LinkInName(t *testing.T) {
	tests := []struct {
		name    string
		newName string
		wantTag string
	}{
		{"https link", "Alice https://spam.example.com", "profile:name_link"},
		{"tme link", "join t.me/freestuff", "profile:name_link"},
		{"bare domain", "deals.example.com promos", "profile:name_link"},
		{"plain name", "Alice Smith", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Check(profileEvent(event.ProfileChange{NewName: tt.newName}, time.Now()), enabled(), nil)
			if tt.wantTag == "" {
				if d != nil {
					t.Errorf("unexpected decision: %+v", d)
				}
				return
			}
			if d == nil {
				t.Fatal("expected a decision")
			}
			if d.TriggeredBy != tt.wantTag {
				t.Errorf("TriggeredBy = %q, want %q", d.TriggeredBy, tt.wantTag)
			}
			if d.Action != decision.ActionRestrict {
				t.Errorf("Action = %q, want restrict", d.Action)
			}
			if d.Source != decision.SourceProfile {
				t.Errorf("Source = %v, want profile", d.Source)
			}
		})
	}
}

func TestCheck_LinkInBio(t *testing.T) {
	d := Check(profileEvent(event.ProfileChange{NewName: "Alice", Bio: "visit www.shady.biz now"}, time.Now()), enabled(), nil)
	if d == nil || d.TriggeredBy != "profile:bio_link" {
		t.Errorf("decision = %+v, want bio_link trigger", d)
	}
}

func TestCheck_ScoredProfileText(t *testing.T) {
	p := &pattern.Pattern{ID: 1, Kind: pattern.KindWord, Text: "casino", Weight: 60, Active: true}
	if err := pattern.Compile(p); err != nil {
		t.Fatalf("Compile error: %v", err)
	}

	d := Check(profileEvent(event.ProfileChange{NewName: "casino king"}, time.Now()), enabled(), []*pattern.Pattern{p})
	if d == nil || d.TriggeredBy != "profile:scored_text" {
		t.Errorf("decision = %+v, want scored_text trigger", d)
	}

	// Below threshold stays silent.
	weak := &pattern.Pattern{ID: 2, Kind: pattern.KindWord, Text: "casino", Weight: 10, Active: true}
	if err := pattern.Compile(weak); err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	if d := Check(profileEvent(event.ProfileChange{NewName: "casino king"}, time.Now()), enabled(), []*pattern.Pattern{weak}); d != nil {
		t.Errorf("weak score triggered: %+v", d)
	}
}

func TestCheck_QuickRename(t *testing.T) {
	now := time.Now()
	joined := now.Add(-5 * time.Minute)

	d := Check(profileEvent(event.ProfileChange{
		OldName: "Alice", NewName: "Bob", JoinedAt: joined.Unix(),
	}, now), enabled(), nil)
	if d == nil || d.TriggeredBy != "profile:quick_rename" {
		t.Errorf("decision = %+v, want quick_rename trigger", d)
	}

	// A rename long after joining is fine.
	oldJoin := now.Add(-48 * time.Hour)
	d = Check(profileEvent(event.ProfileChange{
		OldName: "Alice", NewName: "Bob", JoinedAt: oldJoin.Unix(),
	}, now), enabled(), nil)
	if d != nil {
		t.Errorf("late rename triggered: %+v", d)
	}
}

func TestCheck_DisabledOrWrongType(t *testing.T) {
	s := enabled()
	s.Enabled = false
	if d := Check(profileEvent(event.ProfileChange{NewName: "t.me/spam"}, time.Now()), s, nil); d != nil {
		t.Errorf("disabled monitor triggered: %+v", d)
	}

	ev := &event.Event{Type: event.TypeMessage, Text: "t.me/spam"}
	if d := Check(ev, enabled(), nil); d != nil {
		t.Errorf("non-profile event triggered: %+v", d)
	}
}
