package decision

// Resolve merges candidate decisions from independent detectors into exactly
// one final Decision for the event.
//
// Precedence between tiers is fixed: exemption > image hash > static rule >
// score threshold > flood/raid > profile heuristic. Within one tier the
// higher-severity action wins; on equal severity the first-submitted
// candidate wins, and detector submission order is fixed by the caller, so
// the result is deterministic.
//
// Resolve is a pure function of its input. Calling it twice with the same
// candidates yields the same Decision, which is what makes re-evaluation of
// a retried event safe.
func Resolve(candidates []Decision) Decision {
	if len(candidates) == 0 {
		return None()
	}

	// An explicit exemption suppresses everything, including candidates
	// from higher-severity detectors.
	for _, c := range candidates {
		if c.Source == SourceExemption {
			return Decision{
				Action:      ActionOff,
				Reason:      c.Reason,
				TriggeredBy: c.TriggeredBy,
				Source:      SourceExemption,
			}
		}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Source < best.Source {
			best = c
			continue
		}
		if c.Source == best.Source && c.Action.Severity() > best.Action.Severity() {
			best = c
		}
	}
	return best
}
