package rules

import (
	"testing"
	"time"

	"github.com/groupwarden/warden/internal/decision"
	"github.com/groupwarden/warden/internal/event"
)

func msgEvent(text string) *event.Event {
	return &event.Event{
		ID:        "ev1",
		Type:      event.TypeMessage,
		ChatID:    -100,
		UserID:    7,
		MessageID: 1,
		Text:      text,
	}
}

func TestClassify_Links(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Violation
	}{
		{
			name: "external https link",
			text: "buy at https://spam.example.com/deal",
			want: []Violation{{CategoryExternalLink, "spam.example.com"}},
		},
		{
			name: "www link",
			text: "go to www.phishing.net now",
			want: []Violation{{CategoryExternalLink, "phishing.net"}},
		},
		{
			name: "bare domain with path",
			text: "see evil.com/free",
			want: []Violation{{CategoryExternalLink, "evil.com"}},
		},
		{
			name: "telegram link",
			text: "join t.me/spamchannel",
			want: []Violation{{CategoryTelegramLink, "spamchannel"}},
		},
		{
			name: "tg scheme",
			text: "open tg://resolve?domain=spambot",
			want: []Violation{{CategoryTelegramLink, "spambot"}},
		},
		{
			name: "telegram and external",
			text: "t.me/chan and https://evil.com/x",
			want: []Violation{
				{CategoryTelegramLink, "chan"},
				{CategoryExternalLink, "evil.com"},
			},
		},
		{
			name: "duplicate domains collapse",
			text: "https://evil.com/a https://evil.com/b",
			want: []Violation{{CategoryExternalLink, "evil.com"}},
		},
		{name: "version string clean", text: "upgrade to v2.0 please", want: nil},
		{name: "plain text clean", text: "hello there", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(msgEvent(tt.text))
			if len(got) != len(tt.want) {
				t.Fatalf("Classify(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("violation %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestClassify_ForwardsAndQuotes(t *testing.T) {
	ev := msgEvent("interesting post")
	ev.ForwardFrom = &event.EntityRef{Kind: event.EntityChannel, ID: 42, Username: "newschan"}
	ev.ReplyTo = &event.EntityRef{Kind: event.EntityBot, ID: 9, Username: "somebot"}

	got := Classify(ev)
	if len(got) != 2 {
		t.Fatalf("expected 2 violations, got %+v", got)
	}
	if got[0].Category != CategoryForwardChannel || got[0].Content != "newschan" {
		t.Errorf("violation 0 = %+v", got[0])
	}
	if got[1].Category != CategoryQuoteBot || got[1].Content != "somebot" {
		t.Errorf("violation 1 = %+v", got[1])
	}
}

// TestEvaluate_AnyLinkDelete covers the basic link-rule path: a chat with a
// delete rule for external links and no whitelist.
func TestEvaluate_AnyLinkDelete(t *testing.T) {
	ruleset := []Rule{{
		ID: 1, ChatID: -100, Category: CategoryExternalLink,
		Action: decision.ActionDelete,
	}}

	d := Evaluate(msgEvent("https://spam.example.com"), ruleset, nil)
	if d == nil {
		t.Fatal("expected a decision")
	}
	if d.Action != decision.ActionDelete {
		t.Errorf("Action = %q, want delete", d.Action)
	}
	if !d.DeleteMessage {
		t.Error("delete action must imply DeleteMessage")
	}
	if d.TriggeredBy != "rule:external_link" {
		t.Errorf("TriggeredBy = %q", d.TriggeredBy)
	}
	if !d.IsSpam {
		t.Error("expected IsSpam")
	}
}

func TestEvaluate_NoRuleNoDecision(t *testing.T) {
	if d := Evaluate(msgEvent("https://spam.example.com"), nil, nil); d != nil {
		t.Errorf("expected nil decision, got %+v", d)
	}
}

func TestEvaluate_OffRuleSkipped(t *testing.T) {
	ruleset := []Rule{{
		ID: 1, Category: CategoryExternalLink, Action: decision.ActionOff,
	}}
	if d := Evaluate(msgEvent("https://spam.example.com"), ruleset, nil); d != nil {
		t.Errorf("off rule produced decision: %+v", d)
	}
}

// TestEvaluate_WhitelistSuppresses verifies whitelist precedence: content
// matching a whitelist entry in the violating scope never triggers.
func TestEvaluate_WhitelistSuppresses(t *testing.T) {
	ruleset := []Rule{{
		ID: 1, Category: CategoryExternalLink, Action: decision.ActionBan,
	}}
	whitelist := []WhitelistEntry{{Scope: ScopeLinks, Pattern: "spam.example.com"}}

	if d := Evaluate(msgEvent("https://spam.example.com/x"), ruleset, whitelist); d != nil {
		t.Errorf("whitelisted domain triggered: %+v", d)
	}

	// A different domain still triggers.
	if d := Evaluate(msgEvent("https://other.example.net/x"), ruleset, whitelist); d == nil {
		t.Error("non-whitelisted domain should trigger")
	}
}

func TestEvaluate_WhitelistWildcard(t *testing.T) {
	ruleset := []Rule{{ID: 1, Category: CategoryExternalLink, Action: decision.ActionWarn}}
	whitelist := []WhitelistEntry{{Scope: ScopeLinks, Pattern: "*.example.com"}}

	if d := Evaluate(msgEvent("https://cdn.example.com/img"), ruleset, whitelist); d != nil {
		t.Errorf("subdomain of whitelisted base triggered: %+v", d)
	}
	if d := Evaluate(msgEvent("https://example.com/img"), ruleset, whitelist); d != nil {
		t.Errorf("whitelisted base domain triggered: %+v", d)
	}
	if d := Evaluate(msgEvent("https://notexample.com/img"), ruleset, whitelist); d == nil {
		t.Error("unrelated domain should trigger")
	}
}

func TestEvaluate_WhitelistScopeIsolation(t *testing.T) {
	// A forward whitelist entry must not suppress a link violation.
	ruleset := []Rule{{ID: 1, Category: CategoryExternalLink, Action: decision.ActionWarn}}
	whitelist := []WhitelistEntry{{Scope: ScopeForwards, Pattern: "spam.example.com"}}

	if d := Evaluate(msgEvent("https://spam.example.com/x"), ruleset, whitelist); d == nil {
		t.Error("whitelist in a different scope suppressed a link violation")
	}
}

// TestEvaluate_PriorityOrder verifies that the specific forward category
// outranks the generic link category when both match.
func TestEvaluate_PriorityOrder(t *testing.T) {
	ev := msgEvent("forwarded ad https://evil.com/x")
	ev.ForwardFrom = &event.EntityRef{Kind: event.EntityChannel, Username: "adschan"}

	ruleset := []Rule{
		{ID: 1, Category: CategoryExternalLink, Action: decision.ActionWarn},
		{ID: 2, Category: CategoryForwardChannel, Action: decision.ActionKick},
	}

	d := Evaluate(ev, ruleset, nil)
	if d == nil {
		t.Fatal("expected a decision")
	}
	if d.Action != decision.ActionKick {
		t.Errorf("Action = %q, want kick (forward_channel outranks external_link)", d.Action)
	}
	if d.TriggeredBy != "rule:forward_channel" {
		t.Errorf("TriggeredBy = %q", d.TriggeredBy)
	}
}

// TestEvaluate_WhitelistedCategoryFallsThrough checks that suppressing the
// highest-priority category lets a lower one trigger.
func TestEvaluate_WhitelistedCategoryFallsThrough(t *testing.T) {
	ev := msgEvent("forwarded ad https://evil.com/x")
	ev.ForwardFrom = &event.EntityRef{Kind: event.EntityChannel, Username: "newschan"}

	ruleset := []Rule{
		{ID: 1, Category: CategoryExternalLink, Action: decision.ActionWarn},
		{ID: 2, Category: CategoryForwardChannel, Action: decision.ActionKick},
	}
	whitelist := []WhitelistEntry{{Scope: ScopeForwards, Pattern: "newschan"}}

	d := Evaluate(ev, ruleset, whitelist)
	if d == nil {
		t.Fatal("expected a decision from the link category")
	}
	if d.Action != decision.ActionWarn {
		t.Errorf("Action = %q, want warn", d.Action)
	}
}

func TestEvaluate_MostRecentRuleWins(t *testing.T) {
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := old.Add(time.Hour)
	ruleset := []Rule{
		{ID: 1, Category: CategoryExternalLink, Action: decision.ActionBan, UpdatedAt: old},
		{ID: 2, Category: CategoryExternalLink, Action: decision.ActionWarn, UpdatedAt: newer},
	}

	d := Evaluate(msgEvent("https://evil.com/x"), ruleset, nil)
	if d == nil {
		t.Fatal("expected a decision")
	}
	if d.Action != decision.ActionWarn {
		t.Errorf("Action = %q, want warn (most recently updated rule)", d.Action)
	}
}

func TestEvaluate_RestrictCarriesMinutes(t *testing.T) {
	ev := msgEvent("https://evil.com/x")
	ruleset := []Rule{{
		ID: 1, Category: CategoryExternalLink,
		Action: decision.ActionRestrict, RestrictMinutes: 60, DeleteMessage: true,
	}}

	d := Evaluate(ev, ruleset, nil)
	if d == nil {
		t.Fatal("expected a decision")
	}
	if d.MuteMinutes != 60 {
		t.Errorf("MuteMinutes = %d, want 60", d.MuteMinutes)
	}
	if !d.DeleteMessage {
		t.Error("rule delete flag not carried")
	}
}
