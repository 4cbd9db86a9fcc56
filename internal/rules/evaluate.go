package rules

import (
	"fmt"
	"strings"

	"github.com/groupwarden/warden/internal/decision"
	"github.com/groupwarden/warden/internal/event"
)

// Evaluate runs the static rule set against one event and returns the
// triggered decision, or nil when no rule fires.
//
// For each matched category the effective rule (most recently updated, when
// configuration holds duplicates) is looked up; categories whose rule is
// absent or set to off are skipped, and categories whose every matched
// content is whitelisted in the corresponding scope are suppressed entirely.
// Among the remaining categories the fixed priority order decides: named
// forward and quote sources outrank the generic link categories.
func Evaluate(ev *event.Event, ruleset []Rule, whitelist []WhitelistEntry) *decision.Decision {
	violations := Classify(ev)
	if len(violations) == 0 {
		return nil
	}

	effective := effectiveRules(ruleset)

	for _, category := range categoryPriority {
		rule, ok := effective[category]
		if !ok || rule.Action == decision.ActionOff {
			continue
		}

		content, matched := firstUnsuppressed(category, violations, whitelist)
		if !matched {
			continue
		}

		d := &decision.Decision{
			Action:        rule.Action,
			DeleteMessage: rule.DeleteMessage,
			MuteMinutes:   rule.RestrictMinutes,
			Reason:        fmt.Sprintf("%s: %s", category, content),
			TriggeredBy:   "rule:" + string(category),
			IsSpam:        true,
			Source:        decision.SourceRule,
		}
		// A delete action always removes the message, regardless of the
		// rule's own delete flag.
		if rule.Action == decision.ActionDelete {
			d.DeleteMessage = true
		}
		return d
	}
	return nil
}

// effectiveRules reduces the stored rule list to one rule per category,
// keeping the most recently updated. Duplicates are a configuration
// concern; runtime just resolves them deterministically.
func effectiveRules(ruleset []Rule) map[Category]Rule {
	effective := make(map[Category]Rule, len(ruleset))
	for _, r := range ruleset {
		if existing, ok := effective[r.Category]; ok && !r.UpdatedAt.After(existing.UpdatedAt) {
			continue
		}
		effective[r.Category] = r
	}
	return effective
}

// firstUnsuppressed returns the first violating content for category that
// no whitelist entry covers, and whether any such content exists.
func firstUnsuppressed(category Category, violations []Violation, whitelist []WhitelistEntry) (string, bool) {
	scope := scopeFor(category)
	for _, v := range violations {
		if v.Category != category {
			continue
		}
		if !whitelisted(v.Content, scope, whitelist) {
			return v.Content, true
		}
	}
	return "", false
}

// whitelisted reports whether content matches any whitelist entry in scope.
// Comparison is case-insensitive; a "*." prefix on the entry makes it match
// the domain itself and any subdomain.
func whitelisted(content string, scope WhitelistScope, whitelist []WhitelistEntry) bool {
	c := strings.ToLower(content)
	for _, w := range whitelist {
		if w.Scope != scope {
			continue
		}
		p := strings.ToLower(w.Pattern)
		if base, ok := strings.CutPrefix(p, "*."); ok {
			if c == base || strings.HasSuffix(c, "."+base) {
				return true
			}
			continue
		}
		if c == p {
			return true
		}
	}
	return false
}
