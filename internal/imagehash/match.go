package imagehash

// Banned is one banned fingerprint from the configuration store.
type Banned struct {
	ID          int64
	Fingerprint Fingerprint
	Note        string
}

// Thresholds holds the per-algorithm maximum Hamming distances. A candidate
// matches a banned fingerprint when either algorithm is within its own
// threshold (OR policy).
type Thresholds struct {
	PHashMax int
	DHashMax int
}

// DefaultThresholds are tolerant enough to survive resizing and
// recompression without matching unrelated images.
func DefaultThresholds() Thresholds {
	return Thresholds{PHashMax: 10, DHashMax: 10}
}

// MatchSet compares fp against the banned set and returns whether any entry
// matched, along with the id of the closest matching entry. Closeness is
// the smaller of the two per-algorithm distances.
func MatchSet(fp Fingerprint, banned []Banned, t Thresholds) (bool, int64) {
	matched := false
	var closestID int64
	closest := 65 // beyond any 64-bit Hamming distance

	for _, b := range banned {
		pd := Distance(fp.PHash, b.Fingerprint.PHash)
		dd := Distance(fp.DHash, b.Fingerprint.DHash)
		if pd > t.PHashMax && dd > t.DHashMax {
			continue
		}
		matched = true
		d := pd
		if dd < d {
			d = dd
		}
		if d < closest {
			closest = d
			closestID = b.ID
		}
	}
	return matched, closestID
}
