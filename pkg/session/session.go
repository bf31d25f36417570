// Package session holds the per-conversation state machine and its storage
// backends. A session is keyed by the caller-supplied session ID and moves
// through a one-way lifecycle: new, monitoring, engaged, terminated.
package session

import (
	"time"

	"github.com/hivetrap/hivetrap/pkg/detect"
	"github.com/hivetrap/hivetrap/pkg/extract"
	"github.com/hivetrap/hivetrap/pkg/persona"
	"github.com/hivetrap/hivetrap/pkg/profile"
)

// State is the session lifecycle stage.
type State string

const (
	StateNew        State = "NEW"
	StateMonitoring State = "MONITORING"
	StateEngaged    State = "ENGAGED"
	StateTerminated State = "TERMINATED"
)

// Role tags who produced a turn.
type Role string

const (
	RoleScammer Role = "scammer"
	RoleAgent   Role = "agent"
)

// Turn is one message in the conversation, annotated with the state the
// decision pipeline computed for it: the triggered signals, the confidence
// after the turn, the persona active while handling it, and whatever
// intelligence the turn newly surfaced.
type Turn struct {
	Role       Role           `json:"role"`
	Text       string         `json:"text"`
	Timestamp  time.Time      `json:"timestamp"`
	Signals    detect.Vector  `json:"signals,omitempty"`
	Confidence float64        `json:"confidence"`
	Persona    persona.Type   `json:"persona,omitempty"`
	NewIntel   []extract.Item `json:"new_intel,omitempty"`
}

// PersonaChange records a persona switch for the audit trail.
type PersonaChange struct {
	From persona.Type `json:"from,omitempty"`
	To   persona.Type `json:"to"`
	Turn int          `json:"turn"`
}

// Session is the full state for one conversation.
type Session struct {
	ID           string    `json:"id"`
	State        State     `json:"state"`
	Confidence   float64   `json:"confidence"`
	Turns        int       `json:"turns"`         // inbound scammer messages processed
	EngagedTurns int       `json:"engaged_turns"` // scammer messages handled while the agent was engaged
	CreatedAt    time.Time `json:"created_at"`
	LastTurnAt   time.Time `json:"last_turn_at"`

	History        []Turn          `json:"history"`
	Intel          []extract.Item  `json:"intel,omitempty"`
	Behavior       detect.Behavior `json:"behavior"`
	Persona        persona.Type    `json:"persona,omitempty"`
	PersonaHistory []PersonaChange `json:"persona_history,omitempty"`
	Family         profile.Family  `json:"family,omitempty"`

	AgentEngaged bool   `json:"agent_engaged"`
	ScamDetected bool   `json:"scam_detected"`
	ExitReason   string `json:"exit_reason,omitempty"`
	CallbackURL  string `json:"callback_url,omitempty"`
}

// New creates a fresh session at full confidence.
func New(id string) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		State:      StateNew,
		Confidence: 1.0,
		CreatedAt:  now,
		LastTurnAt: now,
	}
}

// AppendTurn records a message and bumps the activity timestamp. Scammer
// turns increment the turn counter. The turn is seeded with the session's
// current confidence and persona; the returned pointer lets the caller
// overwrite them once the turn's own scoring has run. It stays valid only
// until the next append.
func (s *Session) AppendTurn(role Role, text string) *Turn {
	now := time.Now()
	s.History = append(s.History, Turn{
		Role:       role,
		Text:       text,
		Timestamp:  now,
		Confidence: s.Confidence,
		Persona:    s.Persona,
	})
	s.LastTurnAt = now
	if role == RoleScammer {
		s.Turns++
	}
	return &s.History[len(s.History)-1]
}

// ScammerMessages returns the inbound message texts in order.
func (s *Session) ScammerMessages() []string {
	var out []string
	for _, t := range s.History {
		if t.Role == RoleScammer {
			out = append(out, t.Text)
		}
	}
	return out
}

// RecentScammerMessages returns up to n of the most recent inbound
// messages, excluding the last one (the message currently being scored).
func (s *Session) RecentScammerMessages(n int) []string {
	msgs := s.ScammerMessages()
	if len(msgs) == 0 {
		return nil
	}
	msgs = msgs[:len(msgs)-1]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}

// SetPersona switches the active persona and records the change.
func (s *Session) SetPersona(t persona.Type) {
	if s.Persona == t {
		return
	}
	s.PersonaHistory = append(s.PersonaHistory, PersonaChange{From: s.Persona, To: t, Turn: s.Turns})
	s.Persona = t
}

// Terminated reports whether the session has ended.
func (s *Session) Terminated() bool {
	return s.State == StateTerminated
}
