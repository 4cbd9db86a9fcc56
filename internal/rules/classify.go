package rules

import (
	"regexp"
	"strings"

	"github.com/groupwarden/warden/internal/event"
)

// Compiled link patterns. Compiled once at package init and reused for
// every call, safe for concurrent use.
var (
	// urlPattern matches http/https URLs, www. URLs, and bare domains
	// with a path. The bare-domain variant requires a trailing "/" to
	// avoid false positives on version strings like "v2.0".
	urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

	// messengerLinkPattern matches Telegram-style invite and channel
	// links, including the tg:// scheme.
	messengerLinkPattern = regexp.MustCompile(`(?i)(?:https?://)?(?:t\.me|telegram\.me|telegram\.dog)/([a-z0-9_+]+)|tg://(?:resolve\?domain=|join\?invite=)([a-z0-9_+]+)`)
)

// Violation is one category a message matched, with the content identifier
// used for whitelist comparison (a domain, channel username or numeric id).
type Violation struct {
	Category Category
	Content  string
}

// Classify inspects an event and returns every category it matches.
// Classification is independent per category; one message can violate
// several at once. It never returns an error: a message that matches
// nothing yields an empty slice.
func Classify(ev *event.Event) []Violation {
	var out []Violation

	if ev.ForwardFrom != nil {
		if c, ok := forwardCategory(ev.ForwardFrom.Kind); ok {
			out = append(out, Violation{Category: c, Content: ev.ForwardFrom.Ident()})
		}
	}
	if ev.ReplyTo != nil {
		if c, ok := quoteCategory(ev.ReplyTo.Kind); ok {
			out = append(out, Violation{Category: c, Content: ev.ReplyTo.Ident()})
		}
	}

	if ev.Text != "" {
		seenTG := map[string]bool{}
		for _, m := range messengerLinkPattern.FindAllStringSubmatch(ev.Text, -1) {
			target := m[1]
			if target == "" {
				target = m[2]
			}
			target = strings.ToLower(target)
			if target == "" || seenTG[target] {
				continue
			}
			seenTG[target] = true
			out = append(out, Violation{Category: CategoryTelegramLink, Content: target})
		}

		seenDomain := map[string]bool{}
		for _, raw := range urlPattern.FindAllString(ev.Text, -1) {
			domain := extractDomain(raw)
			if domain == "" || isMessengerDomain(domain) || seenDomain[domain] {
				continue
			}
			seenDomain[domain] = true
			out = append(out, Violation{Category: CategoryExternalLink, Content: domain})
		}
	}

	return out
}

func forwardCategory(kind event.EntityKind) (Category, bool) {
	switch kind {
	case event.EntityChannel:
		return CategoryForwardChannel, true
	case event.EntityGroup:
		return CategoryForwardGroup, true
	case event.EntityBot:
		return CategoryForwardBot, true
	case event.EntityUser:
		return CategoryForwardUser, true
	}
	return "", false
}

func quoteCategory(kind event.EntityKind) (Category, bool) {
	switch kind {
	case event.EntityChannel:
		return CategoryQuoteChannel, true
	case event.EntityGroup:
		return CategoryQuoteGroup, true
	case event.EntityBot:
		return CategoryQuoteBot, true
	case event.EntityUser:
		return CategoryQuoteUser, true
	}
	return "", false
}

// extractDomain reduces a matched URL to its bare lowercase host.
func extractDomain(raw string) string {
	s := strings.ToLower(raw)
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "https://")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "www.")
	return strings.Trim(s, ".")
}

func isMessengerDomain(domain string) bool {
	switch domain {
	case "t.me", "telegram.me", "telegram.dog", "telegram.org":
		return true
	}
	return false
}
