// Package rules implements the static per-message rule evaluator: it
// classifies a message into link/forward/quote categories, applies the
// chat's configured rule for each category, and suppresses categories that
// match a whitelist entry before any action is decided.
package rules

import (
	"time"

	"github.com/groupwarden/warden/internal/decision"
)

// Category is a static rule type a message can violate.
type Category string

const (
	CategoryForwardChannel Category = "forward_channel"
	CategoryForwardGroup   Category = "forward_group"
	CategoryForwardBot     Category = "forward_bot"
	CategoryForwardUser    Category = "forward_user"
	CategoryQuoteChannel   Category = "quote_channel"
	CategoryQuoteGroup     Category = "quote_group"
	CategoryQuoteBot       Category = "quote_bot"
	CategoryQuoteUser      Category = "quote_user"
	CategoryTelegramLink   Category = "telegram_link"
	CategoryExternalLink   Category = "external_link"
)

// categoryPriority is the fixed total order applied when several categories
// trigger on one message: named forward sources first, then named quote
// sources, then messenger links, then generic external links. The first
// non-suppressed category in this order wins.
var categoryPriority = []Category{
	CategoryForwardChannel,
	CategoryForwardGroup,
	CategoryForwardBot,
	CategoryForwardUser,
	CategoryQuoteChannel,
	CategoryQuoteGroup,
	CategoryQuoteBot,
	CategoryQuoteUser,
	CategoryTelegramLink,
	CategoryExternalLink,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range categoryPriority {
		if c == known {
			return true
		}
	}
	return false
}

// Rule is the chat's configured response to one category. RestrictMinutes
// zero leaves the restriction duration to the executor's offense ladder.
type Rule struct {
	ID              int64
	ChatID          int64
	Category        Category
	Action          decision.Action
	DeleteMessage   bool
	RestrictMinutes int
	UpdatedAt       time.Time
}

// WhitelistScope groups categories for whitelist purposes: one whitelist
// entry for a domain suppresses both link categories, one for a channel
// suppresses its forward and quote categories.
type WhitelistScope string

const (
	ScopeLinks    WhitelistScope = "links"
	ScopeForwards WhitelistScope = "forwards"
	ScopeQuotes   WhitelistScope = "quotes"
)

// WhitelistEntry exempts content matching Pattern within a scope. Pattern
// is compared case-insensitively against the violating content (domain,
// channel username or id); a leading "*." makes it a suffix match for
// subdomains.
type WhitelistEntry struct {
	ChatID  int64
	Scope   WhitelistScope
	Pattern string
}

// scopeFor maps a category to its whitelist scope.
func scopeFor(c Category) WhitelistScope {
	switch c {
	case CategoryForwardChannel, CategoryForwardGroup, CategoryForwardBot, CategoryForwardUser:
		return ScopeForwards
	case CategoryQuoteChannel, CategoryQuoteGroup, CategoryQuoteBot, CategoryQuoteUser:
		return ScopeQuotes
	default:
		return ScopeLinks
	}
}
