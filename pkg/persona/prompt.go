package persona

import (
	"fmt"
	"strings"
)

// Topic classifies what the scammer is currently pushing for.
type Topic string

const (
	TopicPayment Topic = "PAYMENT"
	TopicOTP     Topic = "OTP"
	TopicLink    Topic = "LINK"
	TopicBank    Topic = "BANK"
	TopicGeneral Topic = "GENERAL"
)

// Mode is the agent's behavior posture for the turn.
type Mode string

const (
	ModeNormal     Mode = "NORMAL"
	ModeDeflection Mode = "DEFLECTION"
	ModeExit       Mode = "EXIT"
)

// DetectTopic classifies the message by its dominant ask. Checks run in
// priority order; the first hit wins.
func DetectTopic(message string) Topic {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "fee") || strings.Contains(msg, "payment"):
		return TopicPayment
	case strings.Contains(msg, "otp"):
		return TopicOTP
	case strings.Contains(msg, "link") || strings.Contains(msg, "click"):
		return TopicLink
	case strings.Contains(msg, "bank") || strings.Contains(msg, "upi"):
		return TopicBank
	default:
		return TopicGeneral
	}
}

// DecideMode maps confidence to the behavior posture. exitBelow and
// deflectBelow come from config; exitBelow must be the smaller value.
func DecideMode(confidence, exitBelow, deflectBelow float64) Mode {
	switch {
	case confidence < exitBelow:
		return ModeExit
	case confidence < deflectBelow:
		return ModeDeflection
	default:
		return ModeNormal
	}
}

var modeInstructions = map[Mode]string{
	ModeNormal:     "Engage naturally while staying in character.",
	ModeDeflection: "Show hesitation and ask for time to think or consult someone.",
	ModeExit:       "Express intention to handle this through official channels or in person.",
}

// BuildPrompt assembles the generation prompt for one turn: the persona's
// character sheet, the conversation posture, and the message to react to.
func BuildPrompt(p *Persona, topic Topic, mode Mode, scammerMessage string) string {
	instruction, ok := modeInstructions[mode]
	if !ok {
		instruction = modeInstructions[ModeNormal]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Persona: %s\n", p.Name)
	fmt.Fprintf(&b, "Characteristics: %s\n", strings.Join(p.Traits, ", "))
	fmt.Fprintf(&b, "Response Style: %s\n\n", p.ResponseStyle)
	b.WriteString("You must embody this persona completely. Your responses should naturally reflect these traits.\n\n")
	fmt.Fprintf(&b, "Conversation Context:\n- Topic: %s\n- Current Mode: %s\n- Mode Instruction: %s\n\n", topic, mode, instruction)
	fmt.Fprintf(&b, "Scammer's Message:\n%q\n\n", scammerMessage)
	b.WriteString("Important Rules:\n")
	fmt.Fprintf(&b, "1. Stay completely in character as %s\n", p.Name)
	b.WriteString("2. Keep response under 2 short sentences\n")
	b.WriteString("3. Sound natural and human\n")
	b.WriteString("4. Do NOT accuse of scam or mention fraud\n")
	b.WriteString("5. Show the personality traits naturally\n")
	b.WriteString("6. Ask relevant questions or show appropriate reactions\n\n")
	fmt.Fprintf(&b, "Generate ONE reply only as %s:\n", p.Name)
	return b.String()
}

// ExitMessage returns a farewell line in the persona's voice. turns seeds
// the pick so back-to-back exits across sessions do not sound identical.
func ExitMessage(p *Persona, turns int) string {
	if len(p.ExitMessages) == 0 {
		return "I'll sort this out at the branch in person. Goodbye."
	}
	return p.ExitMessages[turns%len(p.ExitMessages)]
}

// StallMessage returns an in-character filler reply, used when the
// generation backend is unavailable.
func StallMessage(p *Persona, turns int) string {
	if len(p.StallMessages) == 0 {
		return "I'm having trouble understanding. Can you repeat that?"
	}
	return p.StallMessages[turns%len(p.StallMessages)]
}
