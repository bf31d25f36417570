// Package detect turns scammer messages into scoring signals and tracks
// per-session confidence. Confidence starts at 1.0 for a fresh session and
// only moves down: every detected signal contributes a decay, the per-turn
// total is clamped, and the running value never goes below zero.
package detect

// SignalType names one scoring category.
type SignalType string

const (
	SignalUrgency      SignalType = "urgency"
	SignalThreat       SignalType = "threat"
	SignalKeywords     SignalType = "scam_keywords"
	SignalRepetition   SignalType = "repetition"
	SignalEscalation   SignalType = "escalation"
	SignalSemantic     SignalType = "semantic"
)

// Signal is one weighted detection with its decay contribution.
// Decay is a non-negative amount subtracted from confidence.
type Signal struct {
	Type   SignalType `json:"type"`
	Decay  float64    `json:"decay"`
	Reason string     `json:"reason,omitempty"`
	Count  int        `json:"count,omitempty"`
}

// Vector is the full set of signals one message produced.
type Vector []Signal

// TotalDecay sums the signal decays, clamped to maxTurnDecay so a single
// keyword-stuffed message cannot crater confidence in one step.
func (v Vector) TotalDecay(maxTurnDecay float64) float64 {
	var total float64
	for _, s := range v {
		total += s.Decay
	}
	if total > maxTurnDecay {
		return maxTurnDecay
	}
	return total
}

// Has reports whether the vector contains a signal of the given type.
func (v Vector) Has(t SignalType) bool {
	for _, s := range v {
		if s.Type == t {
			return true
		}
	}
	return false
}

// Reasons returns the human-readable reason strings, useful for agent notes
// and events.
func (v Vector) Reasons() []string {
	var out []string
	for _, s := range v {
		if s.Reason != "" {
			out = append(out, s.Reason)
		}
	}
	return out
}
