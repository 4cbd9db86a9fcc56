// Package config provides the per-chat moderation configuration: static
// rules, scoring patterns, threshold bands, whitelists, detector settings
// and banned image fingerprints. Configuration is read-mostly; the
// detection path sees it through a TTL cache that administrators'
// writes invalidate.
//
// All validation happens on the write path. By the time a ChatConfig
// reaches a detector every regex is compiled, every action parsed and
// every band range checked, so evaluation can never hit a configuration
// error.
package config

import (
	"time"

	"github.com/groupwarden/warden/internal/decision"
	"github.com/groupwarden/warden/internal/flood"
	"github.com/groupwarden/warden/internal/imagehash"
	"github.com/groupwarden/warden/internal/pattern"
	"github.com/groupwarden/warden/internal/profile"
	"github.com/groupwarden/warden/internal/rules"
	"github.com/groupwarden/warden/internal/threshold"
)

// ChatConfig is the effective configuration for one chat, with all
// defaults already resolved (global defaults, overridden by the chat's
// stored settings). Detectors never re-interpret absent values.
type ChatConfig struct {
	ChatID int64

	DefaultAction decision.Action
	ScoreWindow   time.Duration

	Rules     []rules.Rule
	Whitelist []rules.WhitelistEntry
	Patterns  []*pattern.Pattern
	Bands     []threshold.Band

	Flood   flood.Config
	Profile profile.Settings

	ImageAction    decision.Action
	ImageDelete    bool
	HashThresholds imagehash.Thresholds

	// ExemptUsers are administrator-exempted user ids; events from them
	// short-circuit every detector.
	ExemptUsers map[int64]bool
}

// Defaults returns the global fallback configuration applied where a chat
// has no stored override.
func Defaults(chatID int64) *ChatConfig {
	return &ChatConfig{
		ChatID:        chatID,
		DefaultAction: decision.ActionOff,
		ScoreWindow:   2 * time.Hour,
		Flood: flood.Config{
			MessageFlood: flood.Settings{
				Enabled: true, Window: 10 * time.Second, Threshold: 7,
				Action: decision.ActionRestrict, MuteMinutes: 10, DeleteMessage: true,
			},
			MassJoin: flood.Settings{
				Enabled: true, Window: time.Minute, Threshold: 10,
				Action: decision.ActionRestrict, MuteMinutes: 60,
			},
			JoinExitChurn: flood.Settings{
				Enabled: false, Window: time.Hour, Threshold: 4,
				Action: decision.ActionKick,
			},
			MassInvite: flood.Settings{
				Enabled: false, Window: time.Hour, Threshold: 20,
				Action: decision.ActionRestrict, MuteMinutes: 120,
			},
			ReactionUser: flood.Settings{
				Enabled: false, Window: time.Minute, Threshold: 20,
				Action: decision.ActionWarn,
			},
			ReactionMessage: flood.Settings{
				Enabled: false, Window: time.Minute, Threshold: 50,
				Action: decision.ActionDelete, DeleteMessage: true,
			},
		},
		Profile: profile.Settings{
			Enabled:     false,
			MuteMinutes: 60,
			RenameGrace: 10 * time.Minute,
		},
		ImageAction:    decision.ActionBan,
		ImageDelete:    true,
		HashThresholds: imagehash.DefaultThresholds(),
		ExemptUsers:    map[int64]bool{},
	}
}

// resolveAction picks the first valid non-empty action from the override
// chain: per-chat value, then the global default.
func resolveAction(perChat string, global decision.Action) decision.Action {
	if perChat == "" {
		return global
	}
	a, err := decision.ParseAction(perChat)
	if err != nil {
		// Write-path validation should make this unreachable; inherit
		// rather than fail.
		return global
	}
	return a
}

// resolveSeconds converts a stored per-chat seconds override, zero meaning
// inherit the global value.
func resolveSeconds(perChat int64, global time.Duration) time.Duration {
	if perChat <= 0 {
		return global
	}
	return time.Duration(perChat) * time.Second
}

// resolveInt picks a per-chat integer override, zero meaning inherit.
func resolveInt(perChat int64, global int) int {
	if perChat <= 0 {
		return global
	}
	return int(perChat)
}
