package engage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/hivetrap/hivetrap/pkg/config"
	"github.com/hivetrap/hivetrap/pkg/events"
	"github.com/hivetrap/hivetrap/pkg/extract"
	"github.com/hivetrap/hivetrap/pkg/session"
)

const aggressiveOpener = "Your account is blocked! Pay immediately or face legal action. Verify your KYC now!"

type fakeGenerator struct {
	text  string
	err   error
	calls int
}

func (g *fakeGenerator) Generate(_ context.Context, _ string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.text, nil
}

type captureSink struct {
	mu  sync.Mutex
	evs []events.Event
}

func (s *captureSink) Emit(_ context.Context, ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evs = append(s.evs, ev)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) has(typ events.Type) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.evs {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

func newTestEngine(t *testing.T, cfg *config.Config, opts Options) (*Engine, *session.MemoryStore) {
	t.Helper()
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config invalid: %v", err)
	}

	store := session.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	e, err := New(cfg, store, zaptest.NewLogger(t), opts)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e, store
}

func TestBenignMessagePassesThrough(t *testing.T) {
	e, _ := newTestEngine(t, nil, Options{})

	resp, err := e.Process(context.Background(), Request{SessionID: "s1", Message: "Hello, how are you?"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if resp.AgentEngaged || resp.ScamDetected {
		t.Errorf("benign message engaged the agent: %+v", resp)
	}
	if resp.Confidence != 1.0 {
		t.Errorf("confidence = %.2f, want 1.0", resp.Confidence)
	}
	if resp.Reply != "" {
		t.Errorf("unexpected reply %q for unengaged session", resp.Reply)
	}
	if resp.Status != "monitoring" {
		t.Errorf("status = %q, want monitoring", resp.Status)
	}
}

func TestAggressiveOpenerEngages(t *testing.T) {
	gen := &fakeGenerator{text: "Oh no, which account is this about?"}
	e, _ := newTestEngine(t, nil, Options{Generator: gen})

	resp, err := e.Process(context.Background(), Request{SessionID: "s2", Message: aggressiveOpener})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !resp.ScamDetected || !resp.AgentEngaged {
		t.Fatalf("aggressive opener did not engage: %+v", resp)
	}
	if resp.Confidence >= 0.75 {
		t.Errorf("confidence = %.2f, want below engage threshold", resp.Confidence)
	}
	if resp.Reply != gen.text {
		t.Errorf("reply = %q, want generated text", resp.Reply)
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls)
	}
}

func TestDetectionNeverReverts(t *testing.T) {
	e, _ := newTestEngine(t, nil, Options{Generator: &fakeGenerator{text: "ok"}})
	ctx := context.Background()

	resp, err := e.Process(ctx, Request{SessionID: "s3", Message: aggressiveOpener})
	if err != nil {
		t.Fatal(err)
	}
	first := resp.Confidence

	// A harmless follow-up cannot undo detection or raise confidence.
	resp, err = e.Process(ctx, Request{SessionID: "s3", Message: "Lovely weather we are having"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.ScamDetected {
		t.Error("scam detection reverted on benign message")
	}
	if resp.Confidence > first {
		t.Errorf("confidence rose from %.2f to %.2f", first, resp.Confidence)
	}
}

func TestExitOnConfidenceFloor(t *testing.T) {
	e, _ := newTestEngine(t, nil, Options{Generator: &fakeGenerator{text: "hmm"}})
	ctx := context.Background()

	if _, err := e.Process(ctx, Request{SessionID: "s4", Message: aggressiveOpener}); err != nil {
		t.Fatal(err)
	}
	resp, err := e.Process(ctx, Request{SessionID: "s4", Message: "FINAL WARNING: account suspended, pay the penalty immediately or legal action today!"})
	if err != nil {
		t.Fatal(err)
	}

	if resp.Status != "terminated" {
		t.Fatalf("status = %q, want terminated (confidence %.2f)", resp.Status, resp.Confidence)
	}
	if resp.Reply == "" {
		t.Error("exit without a farewell line")
	}
}

func TestExitOnIntelSufficiency(t *testing.T) {
	e, store := newTestEngine(t, nil, Options{Generator: &fakeGenerator{text: "one moment"}})
	ctx := context.Background()

	steps := []string{
		aggressiveOpener,
		"Send the amount to scammer@paytm please",
		"You can also reach me on 9876543210 for help",
	}
	var resp *Response
	var err error
	for _, msg := range steps {
		resp, err = e.Process(ctx, Request{SessionID: "s5", Message: msg})
		if err != nil {
			t.Fatal(err)
		}
	}

	if resp.Status != "terminated" {
		t.Fatalf("status = %q after destination + contact collected, want terminated", resp.Status)
	}

	sess, err := store.Get(ctx, "s5")
	if err != nil || sess == nil {
		t.Fatalf("load session: %v", err)
	}
	if sess.ExitReason != ReasonIntelSufficient {
		t.Errorf("exit reason = %q, want %q", sess.ExitReason, ReasonIntelSufficient)
	}
	counts := extract.CountByKind(sess.Intel)
	if counts[extract.KindPaymentHandle] == 0 || counts[extract.KindPhoneNumber] == 0 {
		t.Errorf("intel = %+v, want handle and phone", sess.Intel)
	}
}

func TestIntelSufficiencyWaitsMinTurns(t *testing.T) {
	e, _ := newTestEngine(t, nil, Options{Generator: &fakeGenerator{text: "ok"}})
	ctx := context.Background()

	// Everything arrives on turn 2, but the minimum-turn gate holds.
	if _, err := e.Process(ctx, Request{SessionID: "s6", Message: aggressiveOpener}); err != nil {
		t.Fatal(err)
	}
	resp, err := e.Process(ctx, Request{SessionID: "s6", Message: "Pay scammer@paytm or call 9876543210"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status == "terminated" {
		t.Errorf("exited on turn %d, before the minimum intel turns", resp.Turns)
	}
}

func TestExitOnTurnCap(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.MaxTurns = 4
	e, store := newTestEngine(t, cfg, Options{Generator: &fakeGenerator{text: "hm"}})
	ctx := context.Background()

	if _, err := e.Process(ctx, Request{SessionID: "s7", Message: aggressiveOpener}); err != nil {
		t.Fatal(err)
	}
	var resp *Response
	var err error
	for i := 2; i <= 4; i++ {
		resp, err = e.Process(ctx, Request{SessionID: "s7", Message: fmt.Sprintf("Reply number %d with different words each time", i)})
		if err != nil {
			t.Fatal(err)
		}
	}

	if resp.Status != "terminated" {
		t.Fatalf("status = %q at turn cap, want terminated", resp.Status)
	}
	sess, _ := store.Get(ctx, "s7")
	if sess.ExitReason != ReasonTurnCap {
		t.Errorf("exit reason = %q, want %q", sess.ExitReason, ReasonTurnCap)
	}
}

func TestExitOnLoop(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.ExitThreshold = 0.05 // keep the floor out of the way
	e, store := newTestEngine(t, cfg, Options{Generator: &fakeGenerator{text: "hm"}})
	ctx := context.Background()

	if _, err := e.Process(ctx, Request{SessionID: "s8", Message: aggressiveOpener}); err != nil {
		t.Fatal(err)
	}
	var resp *Response
	var err error
	for i := 0; i < 4; i++ {
		resp, err = e.Process(ctx, Request{SessionID: "s8", Message: "just send it over to me please friend"})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Status == "terminated" {
			break
		}
	}

	if resp.Status != "terminated" {
		t.Fatalf("looping scammer never exited: %+v", resp)
	}
	sess, _ := store.Get(ctx, "s8")
	if sess.ExitReason != ReasonLoopDetected {
		t.Errorf("exit reason = %q, want %q", sess.ExitReason, ReasonLoopDetected)
	}
}

func TestLoopGuardSparesIntelBearingRepeats(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.RepetitionCapWeight = 0.02 // keep the confidence floor out of the way
	e, store := newTestEngine(t, cfg, Options{Generator: &fakeGenerator{text: "hm"}})
	ctx := context.Background()

	if _, err := e.Process(ctx, Request{SessionID: "s14", Message: aggressiveOpener}); err != nil {
		t.Fatal(err)
	}

	// Near-identical phrasing, but every message drips a fresh phone number.
	var resp *Response
	var err error
	for i := 0; i < 4; i++ {
		resp, err = e.Process(ctx, Request{SessionID: "s14", Message: fmt.Sprintf("My backup number is 987654321%d, call me there", i)})
		if err != nil {
			t.Fatal(err)
		}
	}

	sess, _ := store.Get(ctx, "s14")
	if resp.Status == "terminated" {
		t.Fatalf("exit %q cut off a scammer still yielding intelligence", sess.ExitReason)
	}
	if counts := extract.CountByKind(sess.Intel); counts[extract.KindPhoneNumber] != 4 {
		t.Errorf("phone numbers collected = %d, want 4", counts[extract.KindPhoneNumber])
	}
	// The repeats did register; only the guard held off.
	if sess.Behavior.RepeatedCount < cfg.LoopGuardTurns {
		t.Errorf("repeated count = %d, want at least %d", sess.Behavior.RepeatedCount, cfg.LoopGuardTurns)
	}
	if sess.Behavior.LoopStreak != 0 {
		t.Errorf("loop streak = %d for intel-bearing repeats, want 0", sess.Behavior.LoopStreak)
	}
}

func TestMonitoringTurnsDontConsumeExitBudgets(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.MaxTurns = 3
	e, store := newTestEngine(t, cfg, Options{Generator: &fakeGenerator{text: "hm"}})
	ctx := context.Background()

	// Pass-through chatter before the scam starts.
	for _, msg := range []string{"hi there", "how are you doing", "thanks for the chat"} {
		resp, err := e.Process(ctx, Request{SessionID: "s15", Message: msg})
		if err != nil {
			t.Fatal(err)
		}
		if resp.AgentEngaged {
			t.Fatalf("benign message %q engaged the agent", msg)
		}
	}

	resp, err := e.Process(ctx, Request{SessionID: "s15", Message: aggressiveOpener})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status == "terminated" {
		t.Fatal("turn cap consumed by monitoring traffic")
	}

	sess, _ := store.Get(ctx, "s15")
	if sess.Turns != 4 {
		t.Errorf("turns = %d, want 4", sess.Turns)
	}
	if sess.EngagedTurns != 1 {
		t.Errorf("engaged turns = %d, want 1", sess.EngagedTurns)
	}
}

func TestThreatEmitsAggressiveEvent(t *testing.T) {
	sink := &captureSink{}
	e, _ := newTestEngine(t, nil, Options{Sink: sink, Generator: &fakeGenerator{text: "hm"}})
	ctx := context.Background()

	// Threat vocabulary alone: no final-warning language, no built-up pressure.
	if _, err := e.Process(ctx, Request{SessionID: "s16", Message: "There will be a penalty on your account"}); err != nil {
		t.Fatal(err)
	}
	if !sink.has(events.ScammerAggressive) {
		t.Error("threat signal did not emit the aggressive event")
	}

	calm := &captureSink{}
	e2, _ := newTestEngine(t, nil, Options{Sink: calm})
	if _, err := e2.Process(ctx, Request{SessionID: "s17", Message: "hello there friend"}); err != nil {
		t.Fatal(err)
	}
	if calm.has(events.ScammerAggressive) {
		t.Error("aggressive event emitted for a harmless message")
	}
}

func TestTurnRecordsCarryDecisionState(t *testing.T) {
	e, store := newTestEngine(t, nil, Options{Generator: &fakeGenerator{text: "which account is this?"}})
	ctx := context.Background()

	resp, err := e.Process(ctx, Request{SessionID: "s18", Message: aggressiveOpener})
	if err != nil {
		t.Fatal(err)
	}

	sess, _ := store.Get(ctx, "s18")
	if len(sess.History) != 2 {
		t.Fatalf("history length = %d, want scammer + agent turn", len(sess.History))
	}

	in := sess.History[0]
	if in.Role != session.RoleScammer {
		t.Fatalf("first turn role = %s", in.Role)
	}
	if len(in.Signals) == 0 {
		t.Error("scammer turn missing its signal vector")
	}
	if in.Confidence != resp.Confidence {
		t.Errorf("turn confidence = %.2f, want post-turn value %.2f", in.Confidence, resp.Confidence)
	}
	if in.Persona == "" {
		t.Error("engaged turn missing its active persona")
	}
	if len(in.NewIntel) == 0 {
		t.Error("keyword intelligence not recorded on the turn")
	}

	out := sess.History[1]
	if out.Role != session.RoleAgent || out.Persona == "" {
		t.Errorf("agent turn = %+v, want agent role with persona", out)
	}
	if out.Confidence != resp.Confidence {
		t.Errorf("agent turn confidence = %.2f, want %.2f", out.Confidence, resp.Confidence)
	}
}

func TestTerminalRejectPolicy(t *testing.T) {
	e, _ := newTestEngine(t, nil, Options{Generator: &fakeGenerator{text: "hm"}})
	ctx := context.Background()

	if _, err := e.Process(ctx, Request{SessionID: "s9", Message: aggressiveOpener}); err != nil {
		t.Fatal(err)
	}
	terminated, err := e.Process(ctx, Request{SessionID: "s9", Message: "FINAL WARNING: account suspended, pay the penalty immediately or legal action today!"})
	if err != nil {
		t.Fatal(err)
	}
	if terminated.Status != "terminated" {
		t.Fatalf("setup failed, status = %q", terminated.Status)
	}

	resp, err := e.Process(ctx, Request{SessionID: "s9", Message: "Are you still there?"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != "terminated" {
		t.Errorf("status = %q, want terminated snapshot", resp.Status)
	}
	if resp.Turns != terminated.Turns {
		t.Errorf("turns advanced from %d to %d on a terminal session", terminated.Turns, resp.Turns)
	}
	if resp.Reply != "" {
		t.Errorf("terminal session produced reply %q", resp.Reply)
	}
}

func TestTerminalRestartPolicy(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.TerminalPolicy = config.TerminalRestart
	e, _ := newTestEngine(t, cfg, Options{Generator: &fakeGenerator{text: "hm"}})
	ctx := context.Background()

	if _, err := e.Process(ctx, Request{SessionID: "s10", Message: aggressiveOpener}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Process(ctx, Request{SessionID: "s10", Message: "FINAL WARNING: account suspended, pay the penalty immediately or legal action today!"}); err != nil {
		t.Fatal(err)
	}

	resp, err := e.Process(ctx, Request{SessionID: "s10", Message: "Hello again, nice day"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Turns != 1 {
		t.Errorf("turns = %d, want 1 for restarted session", resp.Turns)
	}
	if resp.ScamDetected {
		t.Error("restarted session inherited scam detection")
	}
}

func TestGeneratorFailureFallsBack(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("provider down")}
	e, store := newTestEngine(t, nil, Options{Generator: gen})
	ctx := context.Background()

	resp, err := e.Process(ctx, Request{SessionID: "s11", Message: aggressiveOpener})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if resp.Reply == "" {
		t.Fatal("no fallback reply on generator failure")
	}

	// The confidence update survives the failed generation.
	sess, _ := store.Get(ctx, "s11")
	if sess.Confidence >= 0.75 {
		t.Errorf("confidence = %.2f, decay rolled back", sess.Confidence)
	}
}

func TestNoGeneratorUsesStallLines(t *testing.T) {
	e, _ := newTestEngine(t, nil, Options{})

	resp, err := e.Process(context.Background(), Request{SessionID: "s12", Message: aggressiveOpener})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Reply == "" {
		t.Error("engaged session with no generator produced no reply")
	}
}

func TestPersonaFollowsConfidence(t *testing.T) {
	e, store := newTestEngine(t, nil, Options{Generator: &fakeGenerator{text: "hm"}})
	ctx := context.Background()

	if _, err := e.Process(ctx, Request{SessionID: "s13", Message: aggressiveOpener}); err != nil {
		t.Fatal(err)
	}

	sess, _ := store.Get(ctx, "s13")
	if sess.Persona == "" {
		t.Fatal("engaged session has no persona")
	}
	if len(sess.PersonaHistory) == 0 {
		t.Error("persona assignment not recorded in history")
	}
	// Confidence 0.60 lands in the nervous-elder band.
	if sess.Persona != "nervous_elder" {
		t.Errorf("persona = %s for confidence %.2f", sess.Persona, sess.Confidence)
	}
}

func TestValidationErrors(t *testing.T) {
	e, _ := newTestEngine(t, nil, Options{})
	ctx := context.Background()

	if _, err := e.Process(ctx, Request{Message: "hi"}); !errors.Is(err, ErrMissingSessionID) {
		t.Errorf("missing session ID: err = %v", err)
	}
	if _, err := e.Process(ctx, Request{SessionID: "x", Message: "   "}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank message without image: err = %v", err)
	}
}

func TestAgentNotesSummary(t *testing.T) {
	sess := session.New("s")
	sess.Behavior.UrgencyCount = 4
	sess.Behavior.ThreatCount = 2
	sess.ExitReason = ReasonTurnCap

	notes := agentNotes(sess)
	for _, want := range []string{"urgency=4", "threat=2", ReasonTurnCap} {
		if !strings.Contains(notes, want) {
			t.Errorf("notes %q missing %q", notes, want)
		}
	}
}
