package detect

import (
	"fmt"
	"strings"

	"github.com/hivetrap/hivetrap/pkg/config"
)

// Scorer evaluates a scammer message against the configured vocabulary and
// the session's recent history. It is stateless; per-session counters live
// on the session and are passed in.
type Scorer struct {
	cfg *config.Config
}

// NewScorer creates a Scorer bound to cfg. The config is read-only after
// construction, so a single Scorer is safe for concurrent use.
func NewScorer(cfg *config.Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Behavior carries the per-session counters the scorer needs and updates.
// Callers persist it on the session between turns. UrgencyCount,
// ThreatCount and EscalationCount count messages, not word hits, so a
// sustained one-word-per-turn campaign reads the same as a wordy one.
// RepeatedCount tracks consecutive near-identical turns and resets when a
// novel message arrives. LoopStreak is consecutive near-identical turns
// that produced no new intelligence; the orchestrator maintains it.
type Behavior struct {
	UrgencyCount    int `json:"urgency_count"`
	ThreatCount     int `json:"threat_count"`
	EscalationCount int `json:"escalation_count"`
	RepeatedCount   int `json:"repeated_count"`
	LoopStreak      int `json:"loop_streak"`
}

// Score analyzes one inbound message. recent holds the scammer's previous
// messages, newest last; only the configured window is compared for
// repetition. The returned vector carries every triggered signal, and the
// behavior counters are updated in place.
func (s *Scorer) Score(message string, recent []string, b *Behavior) Vector {
	var v Vector
	lower := strings.ToLower(message)

	urgency := countHits(lower, s.cfg.UrgencyWords)
	threat := countHits(lower, s.cfg.ThreatWords)
	escalation := countHits(lower, s.cfg.EscalationWords)
	keywords := countHits(lower, s.cfg.ScamKeywords)

	// Escalation reads the counters as they stood before this message, so
	// the check sees only the pressure history, never the current turn.
	priorUrgency, priorThreat := b.UrgencyCount, b.ThreatCount
	if urgency > 0 {
		b.UrgencyCount++
	}
	if threat > 0 {
		b.ThreatCount++
	}
	if escalation > 0 {
		b.EscalationCount++
	}

	if urgency > 0 {
		v = append(v, Signal{
			Type:   SignalUrgency,
			Decay:  s.cfg.UrgencyWeight,
			Reason: "urgency language",
			Count:  urgency,
		})
	}
	if threat > 0 {
		v = append(v, Signal{
			Type:   SignalThreat,
			Decay:  s.cfg.ThreatWeight,
			Reason: "threat language",
			Count:  threat,
		})
	}

	switch {
	case keywords >= 3:
		v = append(v, Signal{
			Type:   SignalKeywords,
			Decay:  s.cfg.KeywordDenseWeight,
			Reason: fmt.Sprintf("%d scam keywords", keywords),
			Count:  keywords,
		})
	case keywords >= 2:
		v = append(v, Signal{
			Type:   SignalKeywords,
			Decay:  s.cfg.KeywordPairWeight,
			Reason: fmt.Sprintf("%d scam keywords", keywords),
			Count:  keywords,
		})
	}

	if sig, ok := s.repetition(message, recent, b); ok {
		v = append(v, sig)
	}
	if sig, ok := s.escalation(escalation, priorUrgency, priorThreat); ok {
		v = append(v, sig)
	}

	return v
}

// repetition compares the message against the recent window. A near-match
// means the scammer is running a script; repeating it more than once makes
// the penalty grow, capped at the configured weight. A novel message
// breaks the streak and resets the counter.
func (s *Scorer) repetition(message string, recent []string, b *Behavior) (Signal, bool) {
	window := recent
	if n := s.cfg.RepetitionWindow; len(window) > n {
		window = window[len(window)-n:]
	}

	var best float64
	for _, prev := range window {
		if sim := Similarity(message, prev); sim > best {
			best = sim
		}
	}
	if best < s.cfg.SimilarityThreshold {
		b.RepeatedCount = 0
		return Signal{}, false
	}

	b.RepeatedCount++
	decay := 0.10 * best
	if b.RepeatedCount >= 2 {
		decay += 0.10
	}
	if decay > s.cfg.RepetitionCapWeight {
		decay = s.cfg.RepetitionCapWeight
	}

	return Signal{
		Type:   SignalRepetition,
		Decay:  decay,
		Reason: fmt.Sprintf("message repeated (similarity %.2f)", best),
		Count:  b.RepeatedCount,
	}, true
}

// escalation fires on explicit final-warning vocabulary in the current
// message, or when the session already carries two or more urgent or
// threatening messages: sustained pressure across turns, not a single
// wordy one. Final warnings take the heavier weight.
func (s *Scorer) escalation(escalation, priorUrgency, priorThreat int) (Signal, bool) {
	if escalation > 0 {
		return Signal{
			Type:   SignalEscalation,
			Decay:  s.cfg.FinalWarningWeight,
			Reason: "final warning issued",
			Count:  escalation,
		}, true
	}
	if priorUrgency >= 2 || priorThreat >= 2 {
		return Signal{
			Type:   SignalEscalation,
			Decay:  s.cfg.PressureWeight,
			Reason: "repeated pressure",
			Count:  priorUrgency + priorThreat,
		}, true
	}
	return Signal{}, false
}

// countHits counts how many distinct vocabulary entries appear in the
// lowercased text. Substring containment, same as the extraction side, so
// "immediately" matches the "immediate" stem and inflections come along.
func countHits(lower string, vocab []string) int {
	n := 0
	for _, w := range vocab {
		if strings.Contains(lower, strings.ToLower(w)) {
			n++
		}
	}
	return n
}
