// Package pattern implements the weighted keyword/phrase/regex matcher.
// Patterns are validated and compiled when configuration is written; the
// matching path is pure computation and can never fail.
package pattern

import (
	"fmt"
	"regexp"
	"time"

	"github.com/groupwarden/warden/internal/textnorm"
)

// Kind selects how a pattern's text is matched against normalized message
// text.
type Kind string

const (
	// KindWord matches on token boundaries.
	KindWord Kind = "word"
	// KindPhrase matches as a substring.
	KindPhrase Kind = "phrase"
	// KindRegex matches a precompiled regular expression.
	KindRegex Kind = "regex"
)

// Pattern is one weighted scoring pattern. Section is the configuration
// namespace it belongs to: empty for chat-wide patterns, a section name for
// patterns scoped to a named section.
//
// Normalized is a deterministic function of Text and textnorm.NormVersion;
// the matching path never recomputes it. TriggerCount and LastTriggeredAt
// are best-effort telemetry, written back outside the hot path.
type Pattern struct {
	ID              int64
	ChatID          int64
	Section         string
	Kind            Kind
	Text            string
	Normalized      string
	Weight          int
	Active          bool
	TriggerCount    int64
	LastTriggeredAt time.Time

	re *regexp.Regexp
}

// Compile validates the pattern and precomputes its matching form. It is
// called when configuration is written or loaded, never during matching, so
// an invalid pattern is a configuration error and cannot surface mid-event.
func Compile(p *Pattern) error {
	switch p.Kind {
	case KindWord, KindPhrase:
		p.Normalized = textnorm.Normalize(p.Text)
		if p.Normalized == "" {
			return fmt.Errorf("pattern: %q normalizes to empty text", p.Text)
		}
	case KindRegex:
		re, err := regexp.Compile(p.Text)
		if err != nil {
			return fmt.Errorf("pattern: invalid regex %q: %w", p.Text, err)
		}
		p.re = re
		p.Normalized = p.Text
	default:
		return fmt.Errorf("pattern: unknown kind %q", p.Kind)
	}
	if p.Weight <= 0 {
		return fmt.Errorf("pattern: %q has non-positive weight %d", p.Text, p.Weight)
	}
	return nil
}
