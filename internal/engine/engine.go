// Package engine orchestrates one event's trip through the detector
// pipeline: delivery dedup, configuration lookup, the per-tier detectors,
// precedence resolution, and enforcement. The engine itself holds no
// per-user state; everything stateful lives behind the store interfaces.
package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/groupwarden/warden/internal/config"
	"github.com/groupwarden/warden/internal/decision"
	"github.com/groupwarden/warden/internal/event"
	"github.com/groupwarden/warden/internal/flood"
	"github.com/groupwarden/warden/internal/imagehash"
	"github.com/groupwarden/warden/internal/metrics"
	"github.com/groupwarden/warden/internal/pattern"
	"github.com/groupwarden/warden/internal/profile"
	"github.com/groupwarden/warden/internal/rules"
	"github.com/groupwarden/warden/internal/score"
	"github.com/groupwarden/warden/internal/textnorm"
	"github.com/groupwarden/warden/internal/threshold"
)

// ConfigSource provides the effective configuration for a chat.
// *config.Cache implements it.
type ConfigSource interface {
	Get(ctx context.Context, chatID int64) (*config.ChatConfig, error)
}

// ScoreStore is the sliding-window score accumulator dependency.
// *score.Accumulator implements it.
type ScoreStore interface {
	Add(ctx context.Context, key score.Key, weight int, window time.Duration) (int, error)
	Reset(ctx context.Context, key score.Key) error
}

// Deduper filters redelivered events. *event.DedupStore implements it.
type Deduper interface {
	FirstDelivery(ctx context.Context, eventID string) bool
}

// FloodChecker runs the rate detectors. *flood.Detector implements it.
type FloodChecker interface {
	Check(ctx context.Context, ev *event.Event, cfg flood.Config) []decision.Decision
}

// Executor enforces the final decision. *action.Executor implements it.
type Executor interface {
	Observe(ev *event.Event)
	Execute(ctx context.Context, ev *event.Event, d decision.Decision) error
}

// TriggerRecorder persists pattern trigger telemetry. *config.Store
// implements it; nil disables the write-back.
type TriggerRecorder interface {
	RecordPatternTriggers(ctx context.Context, patternIDs []int64) error
}

// Engine evaluates events against the full detector pipeline.
type Engine struct {
	configs  ConfigSource
	dedup    Deduper
	scores   ScoreStore
	flood    FloodChecker
	executor Executor
	triggers TriggerRecorder

	mu     sync.RWMutex
	banned []imagehash.Banned
}

// New wires an engine. triggers may be nil.
func New(configs ConfigSource, dedup Deduper, scores ScoreStore, fl FloodChecker, executor Executor, triggers TriggerRecorder) *Engine {
	return &Engine{
		configs:  configs,
		dedup:    dedup,
		scores:   scores,
		flood:    fl,
		executor: executor,
		triggers: triggers,
	}
}

// SetBanned replaces the banned image fingerprint set. Called at startup
// and on periodic refresh.
func (e *Engine) SetBanned(banned []imagehash.Banned) {
	e.mu.Lock()
	e.banned = banned
	e.mu.Unlock()
}

func (e *Engine) bannedSet() []imagehash.Banned {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.banned
}

// Process runs one event through the pipeline and enforces the outcome.
// It returns the resolved decision; the error is non-nil only when
// enforcement itself failed. Store failures inside the pipeline fail
// open: the affected detector contributes nothing and the event is
// otherwise evaluated normally.
func (e *Engine) Process(ctx context.Context, ev *event.Event) (decision.Decision, error) {
	start := time.Now()
	defer func() {
		metrics.EvalLatency.Observe(time.Since(start).Seconds())
	}()
	metrics.EventsTotal.WithLabelValues(string(ev.Type)).Inc()

	if ev.ID != "" && !e.dedup.FirstDelivery(ctx, ev.ID) {
		metrics.DedupDrops.Inc()
		return decision.None(), nil
	}

	cfg, err := e.configs.Get(ctx, ev.ChatID)
	if err != nil {
		// No configuration means no moderation for this event.
		log.Printf("[engine] config load chat=%d: %v (failing open)", ev.ChatID, err)
		metrics.StoreErrors.WithLabelValues("postgres").Inc()
		return decision.None(), nil
	}

	var candidates []decision.Decision

	if cfg.ExemptUsers[ev.UserID] {
		candidates = append(candidates, decision.Decision{
			Action: decision.ActionOff,
			Reason: "user exempt",
			Source: decision.SourceExemption,
		})
	} else {
		candidates = append(candidates, e.checkImage(ev, cfg)...)

		if d := rules.Evaluate(ev, cfg.Rules, cfg.Whitelist); d != nil {
			candidates = append(candidates, *d)
		}

		candidates = append(candidates, e.checkScore(ctx, ev, cfg)...)
		candidates = append(candidates, e.flood.Check(ctx, ev, cfg.Flood)...)

		if d := profile.Check(ev, cfg.Profile, cfg.Patterns); d != nil {
			candidates = append(candidates, *d)
		}
	}

	for _, c := range candidates {
		metrics.DetectorFires.WithLabelValues(c.Source.String()).Inc()
	}

	final := decision.Resolve(candidates)
	metrics.DecisionsTotal.WithLabelValues(string(final.Action)).Inc()

	// Buffer the message before enforcement so a journal snapshot
	// includes the offending message itself.
	e.executor.Observe(ev)

	if final.Action == decision.ActionOff {
		return final, nil
	}
	if err := e.executor.Execute(ctx, ev, final); err != nil {
		return final, fmt.Errorf("engine: enforce: %w", err)
	}
	return final, nil
}

// checkImage compares an attached image's fingerprint against the banned
// set.
func (e *Engine) checkImage(ev *event.Event, cfg *config.ChatConfig) []decision.Decision {
	if ev.Image == nil || cfg.ImageAction == decision.ActionOff {
		return nil
	}
	banned := e.bannedSet()
	if len(banned) == 0 {
		return nil
	}

	fp := imagehash.Fingerprint{PHash: ev.Image.PHash, DHash: ev.Image.DHash}
	matched, id := imagehash.MatchSet(fp, banned, cfg.HashThresholds)
	if !matched {
		return nil
	}
	return []decision.Decision{{
		Action:        cfg.ImageAction,
		DeleteMessage: cfg.ImageDelete,
		Reason:        fmt.Sprintf("image matches banned fingerprint %d", id),
		TriggeredBy:   fmt.Sprintf("imagehash:%d", id),
		IsSpam:        true,
		Source:        decision.SourceImageHash,
	}}
}

// checkScore matches the chat's patterns against the message text, feeds
// the per-scope accumulators and resolves threshold bands. A band that
// fires resets its accumulator so the next offense builds from zero.
func (e *Engine) checkScore(ctx context.Context, ev *event.Event, cfg *config.ChatConfig) []decision.Decision {
	if ev.Type != event.TypeMessage || ev.Text == "" || len(cfg.Patterns) == 0 {
		return nil
	}

	cache := textnorm.NewCache()
	hits := pattern.Match(ev.Text, cfg.Patterns, cache)
	if len(hits) == 0 {
		return nil
	}

	if e.triggers != nil {
		ids := make([]int64, len(hits))
		for i, h := range hits {
			ids[i] = h.PatternID
		}
		if err := e.triggers.RecordPatternTriggers(ctx, ids); err != nil {
			log.Printf("[engine] trigger telemetry: %v", err)
		}
	}

	// Sum hit weights per scope. A pattern's section is its score scope;
	// sectionless patterns feed the chat-wide accumulator.
	byScope := make(map[string]int)
	for _, h := range hits {
		byScope[h.Section] += h.Weight
	}
	scopes := make([]string, 0, len(byScope))
	for s := range byScope {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)

	var out []decision.Decision
	fired := false
	for _, scope := range scopes {
		key := score.Key{ChatID: ev.ChatID, UserID: ev.UserID, Scope: scope}
		total, err := e.scores.Add(ctx, key, byScope[scope], cfg.ScoreWindow)
		if err != nil {
			log.Printf("[engine] score add chat=%d user=%d scope=%q: %v (failing open)",
				ev.ChatID, ev.UserID, scope, err)
			metrics.StoreErrors.WithLabelValues("redis").Inc()
			continue
		}

		band := threshold.Resolve(total, bandsForScope(cfg.Bands, scope))
		if band == nil {
			continue
		}
		fired = true
		out = append(out, decision.Decision{
			Action:        band.Action,
			DeleteMessage: band.Action != decision.ActionWarn,
			MuteMinutes:   band.MuteMinutes,
			Reason:        fmt.Sprintf("score %d reached band %d..%s", total, band.MinScore, bandUpper(band)),
			TriggeredBy:   fmt.Sprintf("band:%d", band.ID),
			IsSpam:        true,
			Source:        decision.SourceThreshold,
		})
		if err := e.scores.Reset(ctx, key); err != nil {
			log.Printf("[engine] score reset chat=%d user=%d scope=%q: %v",
				ev.ChatID, ev.UserID, scope, err)
		}
	}

	// Patterns matched but no band covered the total: fall back to the
	// chat's default action.
	if !fired && cfg.DefaultAction != decision.ActionOff {
		out = append(out, decision.Decision{
			Action:      cfg.DefaultAction,
			Reason:      fmt.Sprintf("%d pattern hits, no threshold band matched", len(hits)),
			TriggeredBy: "default_action",
			IsSpam:      true,
			Source:      decision.SourceThreshold,
		})
	}
	return out
}

func bandsForScope(bands []threshold.Band, scope string) []threshold.Band {
	var out []threshold.Band
	for _, b := range bands {
		if b.Scope == scope {
			out = append(out, b)
		}
	}
	return out
}

func bandUpper(b *threshold.Band) string {
	if b.MaxScore == 0 {
		return "inf"
	}
	return fmt.Sprintf("%d", b.MaxScore)
}
