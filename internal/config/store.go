package config

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/groupwarden/warden/internal/decision"
	"github.com/groupwarden/warden/internal/flood"
	"github.com/groupwarden/warden/internal/imagehash"
	"github.com/groupwarden/warden/internal/pattern"
	"github.com/groupwarden/warden/internal/rules"
	"github.com/groupwarden/warden/internal/threshold"
)

// GlobalChatID is the chat id under which global patterns and bands are
// stored; they apply to every chat.
const GlobalChatID = 0

// Store reads and writes moderation configuration in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a configuration store backed by the given database
// handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Load assembles the effective configuration for a chat: the global
// defaults, the chat's stored settings, and the chat's (plus global) rule,
// pattern and band sets. Patterns that fail to compile are skipped with a
// log line; the write path validates them, so a skip means the stored
// configuration predates a normalization change.
func (s *Store) Load(ctx context.Context, chatID int64) (*ChatConfig, error) {
	cfg := Defaults(chatID)

	if err := s.loadSettings(ctx, chatID, cfg); err != nil {
		return nil, err
	}
	if err := s.loadRules(ctx, chatID, cfg); err != nil {
		return nil, err
	}
	if err := s.loadWhitelist(ctx, chatID, cfg); err != nil {
		return nil, err
	}
	if err := s.loadPatterns(ctx, chatID, cfg); err != nil {
		return nil, err
	}
	if err := s.loadBands(ctx, chatID, cfg); err != nil {
		return nil, err
	}
	if err := s.loadDetectorSettings(ctx, chatID, cfg); err != nil {
		return nil, err
	}
	if err := s.loadExemptUsers(ctx, chatID, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Store) loadSettings(ctx context.Context, chatID int64, cfg *ChatConfig) error {
	const query = `
		SELECT COALESCE(default_action, ''), COALESCE(score_window_seconds, 0),
		       COALESCE(image_action, ''), COALESCE(image_delete, true),
		       COALESCE(phash_max_distance, 0), COALESCE(dhash_max_distance, 0),
		       COALESCE(profile_enabled, false), COALESCE(profile_mute_minutes, 0),
		       COALESCE(profile_rename_grace_seconds, 0), COALESCE(profile_score_threshold, 0)
		FROM chat_settings WHERE chat_id = $1`

	var (
		defaultAction, imageAction string
		scoreWindow                int64
		imageDelete, profEnabled   bool
		phashMax, dhashMax         int64
		profMute, profGrace        int64
		profScore                  int64
	)
	err := s.db.QueryRowContext(ctx, query, chatID).Scan(
		&defaultAction, &scoreWindow, &imageAction, &imageDelete,
		&phashMax, &dhashMax, &profEnabled, &profMute, &profGrace, &profScore)
	if err == sql.ErrNoRows {
		return nil // chat uses pure defaults
	}
	if err != nil {
		return fmt.Errorf("config: load settings: %w", err)
	}

	cfg.DefaultAction = resolveAction(defaultAction, cfg.DefaultAction)
	cfg.ScoreWindow = resolveSeconds(scoreWindow, cfg.ScoreWindow)
	cfg.ImageAction = resolveAction(imageAction, cfg.ImageAction)
	cfg.ImageDelete = imageDelete
	cfg.HashThresholds.PHashMax = resolveInt(phashMax, cfg.HashThresholds.PHashMax)
	cfg.HashThresholds.DHashMax = resolveInt(dhashMax, cfg.HashThresholds.DHashMax)
	cfg.Profile.Enabled = profEnabled
	cfg.Profile.MuteMinutes = resolveInt(profMute, cfg.Profile.MuteMinutes)
	cfg.Profile.RenameGrace = resolveSeconds(profGrace, cfg.Profile.RenameGrace)
	cfg.Profile.ScoreThreshold = int(profScore)
	return nil
}

func (s *Store) loadRules(ctx context.Context, chatID int64, cfg *ChatConfig) error {
	const query = `
		SELECT id, chat_id, category, action, delete_message,
		       COALESCE(restrict_minutes, 0), updated_at
		FROM chat_rules WHERE chat_id = $1`

	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return fmt.Errorf("config: load rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r rules.Rule
		var category, action string
		if err := rows.Scan(&r.ID, &r.ChatID, &category, &action,
			&r.DeleteMessage, &r.RestrictMinutes, &r.UpdatedAt); err != nil {
			return fmt.Errorf("config: scan rule: %w", err)
		}
		r.Category = rules.Category(category)
		r.Action = resolveAction(action, decision.ActionOff)
		cfg.Rules = append(cfg.Rules, r)
	}
	return rows.Err()
}

func (s *Store) loadWhitelist(ctx context.Context, chatID int64, cfg *ChatConfig) error {
	const query = `SELECT chat_id, scope, pattern FROM whitelist_entries WHERE chat_id IN ($1, $2)`

	rows, err := s.db.QueryContext(ctx, query, chatID, GlobalChatID)
	if err != nil {
		return fmt.Errorf("config: load whitelist: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var w rules.WhitelistEntry
		var scope string
		if err := rows.Scan(&w.ChatID, &scope, &w.Pattern); err != nil {
			return fmt.Errorf("config: scan whitelist: %w", err)
		}
		w.Scope = rules.WhitelistScope(scope)
		cfg.Whitelist = append(cfg.Whitelist, w)
	}
	return rows.Err()
}

func (s *Store) loadPatterns(ctx context.Context, chatID int64, cfg *ChatConfig) error {
	const query = `
		SELECT id, chat_id, COALESCE(section, ''), kind, text, weight, active,
		       trigger_count, COALESCE(last_triggered_at, to_timestamp(0))
		FROM patterns WHERE chat_id IN ($1, $2) AND active`

	rows, err := s.db.QueryContext(ctx, query, chatID, GlobalChatID)
	if err != nil {
		return fmt.Errorf("config: load patterns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p := &pattern.Pattern{}
		var kind string
		if err := rows.Scan(&p.ID, &p.ChatID, &p.Section, &kind, &p.Text,
			&p.Weight, &p.Active, &p.TriggerCount, &p.LastTriggeredAt); err != nil {
			return fmt.Errorf("config: scan pattern: %w", err)
		}
		p.Kind = pattern.Kind(kind)
		if err := pattern.Compile(p); err != nil {
			log.Printf("[config] skipping stored pattern %d: %v", p.ID, err)
			continue
		}
		cfg.Patterns = append(cfg.Patterns, p)
	}
	return rows.Err()
}

func (s *Store) loadBands(ctx context.Context, chatID int64, cfg *ChatConfig) error {
	const query = `
		SELECT id, chat_id, COALESCE(scope, ''), min_score, COALESCE(max_score, 0),
		       action, COALESCE(mute_minutes, 0), enabled, priority
		FROM threshold_bands WHERE chat_id IN ($1, $2)`

	rows, err := s.db.QueryContext(ctx, query, chatID, GlobalChatID)
	if err != nil {
		return fmt.Errorf("config: load bands: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b threshold.Band
		var action string
		if err := rows.Scan(&b.ID, &b.ChatID, &b.Scope, &b.MinScore, &b.MaxScore,
			&action, &b.MuteMinutes, &b.Enabled, &b.Priority); err != nil {
			return fmt.Errorf("config: scan band: %w", err)
		}
		b.Action = resolveAction(action, decision.ActionOff)
		cfg.Bands = append(cfg.Bands, b)
	}
	return rows.Err()
}

func (s *Store) loadDetectorSettings(ctx context.Context, chatID int64, cfg *ChatConfig) error {
	const query = `
		SELECT detector, enabled, window_seconds, threshold, action,
		       COALESCE(mute_minutes, 0), delete_message
		FROM detector_settings WHERE chat_id = $1`

	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return fmt.Errorf("config: load detector settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, action string
		var set flood.Settings
		var windowSeconds int64
		if err := rows.Scan(&name, &set.Enabled, &windowSeconds, &set.Threshold,
			&action, &set.MuteMinutes, &set.DeleteMessage); err != nil {
			return fmt.Errorf("config: scan detector setting: %w", err)
		}
		set.Window = time.Duration(windowSeconds) * time.Second
		set.Action = resolveAction(action, decision.ActionOff)

		switch name {
		case "message_flood":
			cfg.Flood.MessageFlood = set
		case "mass_join":
			cfg.Flood.MassJoin = set
		case "join_exit_churn":
			cfg.Flood.JoinExitChurn = set
		case "mass_invite":
			cfg.Flood.MassInvite = set
		case "mass_reaction_user":
			cfg.Flood.ReactionUser = set
		case "mass_reaction_message":
			cfg.Flood.ReactionMessage = set
		default:
			log.Printf("[config] unknown detector %q for chat %d", name, chatID)
		}
	}
	return rows.Err()
}

func (s *Store) loadExemptUsers(ctx context.Context, chatID int64, cfg *ChatConfig) error {
	const query = `SELECT user_id FROM exempt_users WHERE chat_id = $1`

	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return fmt.Errorf("config: load exempt users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return fmt.Errorf("config: scan exempt user: %w", err)
		}
		cfg.ExemptUsers[userID] = true
	}
	return rows.Err()
}

// ---------------------------------------------------------------------------
// Write path — every mutation validates before touching storage, so the
// detection path can never observe an un-validated configuration.
// ---------------------------------------------------------------------------

// SavePattern validates and inserts a scoring pattern. The normalized form
// is recomputed here; administrators supply only the raw text.
func (s *Store) SavePattern(ctx context.Context, p *pattern.Pattern) error {
	if err := pattern.Compile(p); err != nil {
		return err
	}
	const query = `
		INSERT INTO patterns (chat_id, section, kind, text, normalized, weight, active)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7)
		ON CONFLICT (chat_id, text) DO UPDATE
		SET kind = EXCLUDED.kind, normalized = EXCLUDED.normalized,
		    weight = EXCLUDED.weight, active = EXCLUDED.active
		RETURNING id`
	err := s.db.QueryRowContext(ctx, query, p.ChatID, p.Section, string(p.Kind),
		p.Text, p.Normalized, p.Weight, p.Active).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("config: save pattern: %w", err)
	}
	return nil
}

// SaveRule validates and upserts a static rule for its category.
func (s *Store) SaveRule(ctx context.Context, r *rules.Rule) error {
	if !r.Category.Valid() {
		return fmt.Errorf("config: unknown rule category %q", r.Category)
	}
	if !r.Action.Valid() {
		return fmt.Errorf("config: invalid rule action %q", r.Action)
	}
	const query = `
		INSERT INTO chat_rules (chat_id, category, action, delete_message, restrict_minutes, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (chat_id, category) DO UPDATE
		SET action = EXCLUDED.action, delete_message = EXCLUDED.delete_message,
		    restrict_minutes = EXCLUDED.restrict_minutes, updated_at = NOW()
		RETURNING id`
	err := s.db.QueryRowContext(ctx, query, r.ChatID, string(r.Category),
		string(r.Action), r.DeleteMessage, r.RestrictMinutes).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("config: save rule: %w", err)
	}
	return nil
}

// SaveBand validates and inserts a threshold band.
func (s *Store) SaveBand(ctx context.Context, b *threshold.Band) error {
	if err := threshold.Validate(*b); err != nil {
		return err
	}
	const query = `
		INSERT INTO threshold_bands (chat_id, scope, min_score, max_score, action, mute_minutes, enabled, priority)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, 0), $5, NULLIF($6, 0), $7, $8)
		RETURNING id`
	err := s.db.QueryRowContext(ctx, query, b.ChatID, b.Scope, b.MinScore,
		b.MaxScore, string(b.Action), b.MuteMinutes, b.Enabled, b.Priority).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("config: save band: %w", err)
	}
	return nil
}

// SaveWhitelistEntry inserts a whitelist entry.
func (s *Store) SaveWhitelistEntry(ctx context.Context, w rules.WhitelistEntry) error {
	switch w.Scope {
	case rules.ScopeLinks, rules.ScopeForwards, rules.ScopeQuotes:
	default:
		return fmt.Errorf("config: unknown whitelist scope %q", w.Scope)
	}
	const query = `
		INSERT INTO whitelist_entries (chat_id, scope, pattern)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, w.ChatID, string(w.Scope), w.Pattern); err != nil {
		return fmt.Errorf("config: save whitelist entry: %w", err)
	}
	return nil
}

// RecordPatternTriggers bumps trigger telemetry for the hit patterns.
// Best-effort: failures are logged by the caller and never affect the
// decision.
func (s *Store) RecordPatternTriggers(ctx context.Context, patternIDs []int64) error {
	if len(patternIDs) == 0 {
		return nil
	}
	const query = `
		UPDATE patterns
		SET trigger_count = trigger_count + 1, last_triggered_at = NOW()
		WHERE id = ANY($1)`
	if _, err := s.db.ExecContext(ctx, query, pq.Array(patternIDs)); err != nil {
		return fmt.Errorf("config: record triggers: %w", err)
	}
	return nil
}

// BannedFingerprints returns the banned image fingerprint set. Malformed
// stored fingerprints are skipped with a log line.
func (s *Store) BannedFingerprints(ctx context.Context) ([]imagehash.Banned, error) {
	const query = `SELECT id, fingerprint, COALESCE(note, '') FROM banned_fingerprints`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("config: load banned fingerprints: %w", err)
	}
	defer rows.Close()

	var out []imagehash.Banned
	for rows.Next() {
		var b imagehash.Banned
		var raw string
		if err := rows.Scan(&b.ID, &raw, &b.Note); err != nil {
			return nil, fmt.Errorf("config: scan banned fingerprint: %w", err)
		}
		fp, err := imagehash.Parse(raw)
		if err != nil {
			log.Printf("[config] skipping banned fingerprint %d: %v", b.ID, err)
			continue
		}
		b.Fingerprint = fp
		out = append(out, b)
	}
	return out, rows.Err()
}

// AddBannedFingerprint stores a new banned fingerprint. Administrative
// write path; the detection path only reads.
func (s *Store) AddBannedFingerprint(ctx context.Context, fp imagehash.Fingerprint, note string) error {
	const query = `
		INSERT INTO banned_fingerprints (fingerprint, note)
		VALUES ($1, NULLIF($2, '')) ON CONFLICT DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, fp.String(), note); err != nil {
		return fmt.Errorf("config: add banned fingerprint: %w", err)
	}
	return nil
}
