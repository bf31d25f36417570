package engage

import (
	"fmt"

	"github.com/hivetrap/hivetrap/pkg/config"
	"github.com/hivetrap/hivetrap/pkg/extract"
	"github.com/hivetrap/hivetrap/pkg/session"
)

// Exit reasons recorded on the session and in the final report.
const (
	ReasonConfidenceFloor = "confidence at exit threshold"
	ReasonIntelSufficient = "critical intelligence collected"
	ReasonTurnCap         = "maximum turns reached"
	ReasonLoopDetected    = "conversation looping without new intelligence"
)

// shouldExit evaluates the exit policy for an engaged session. The checks
// run in severity order; the first that trips names the reason. Turn
// budgets count engaged turns only, so pass-through monitoring traffic
// never eats into the engagement.
func shouldExit(cfg *config.Config, sess *session.Session) (string, bool) {
	if sess.Confidence <= cfg.ExitThreshold {
		return ReasonConfidenceFloor, true
	}
	if sess.EngagedTurns >= cfg.MinIntelTurns && intelSufficient(sess.Intel) {
		return ReasonIntelSufficient, true
	}
	if sess.EngagedTurns >= cfg.MaxTurns {
		return ReasonTurnCap, true
	}
	if sess.Behavior.LoopStreak >= cfg.LoopGuardTurns {
		return ReasonLoopDetected, true
	}
	return "", false
}

// intelSufficient holds when we have both a money destination (payment
// handle or bank account) and a contact channel (phone or URL). At that
// point the session has yielded what a takedown request needs; dragging
// the conversation further only risks the cover.
func intelSufficient(items []extract.Item) bool {
	counts := extract.CountByKind(items)
	destination := counts[extract.KindPaymentHandle] > 0 || counts[extract.KindBankAccount] > 0
	contact := counts[extract.KindPhoneNumber] > 0 || counts[extract.KindURL] > 0
	return destination && contact
}

// agentNotes summarizes the session's behavior counters for the report.
func agentNotes(sess *session.Session) string {
	b := sess.Behavior
	return fmt.Sprintf(
		"urgency=%d threat=%d escalation=%d repeats=%d persona_switches=%d exit=%s",
		b.UrgencyCount, b.ThreatCount, b.EscalationCount, b.RepeatedCount,
		len(sess.PersonaHistory), sess.ExitReason)
}
