// Package engage is the session orchestrator: it scores inbound messages,
// runs the confidence and persona state machines, decides when to engage
// and when to walk away, and assembles the agent's replies.
package engage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hivetrap/hivetrap/pkg/archive"
	"github.com/hivetrap/hivetrap/pkg/config"
	"github.com/hivetrap/hivetrap/pkg/detect"
	"github.com/hivetrap/hivetrap/pkg/events"
	"github.com/hivetrap/hivetrap/pkg/extract"
	"github.com/hivetrap/hivetrap/pkg/persona"
	"github.com/hivetrap/hivetrap/pkg/profile"
	"github.com/hivetrap/hivetrap/pkg/reply"
	"github.com/hivetrap/hivetrap/pkg/session"
	"github.com/hivetrap/hivetrap/pkg/vision"
)

// Request-level validation failures. Callers map these to 4xx responses.
var (
	ErrMissingSessionID = errors.New("session ID is required")
	ErrEmptyMessage     = errors.New("message or image is required")
)

// Request is one inbound scammer message.
type Request struct {
	SessionID   string `json:"session_id"`
	Message     string `json:"message"`
	ImageBase64 string `json:"image,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// Response is what the caller relays back to the scammer's channel.
type Response struct {
	Status       string  `json:"status"`
	Reply        string  `json:"reply"`
	Confidence   float64 `json:"confidence"`
	SessionID    string  `json:"session_id"`
	Turns        int     `json:"turns"`
	AgentEngaged bool    `json:"agent_engaged"`
	ScamDetected bool    `json:"scam_detected"`
}

// Engine wires the pipeline together. All dependencies except cfg, store
// and log may be nil; the engine degrades to lexical-only scoring with
// canned replies.
type Engine struct {
	cfg       *config.Config
	store     session.Store
	locks     *session.KeyLock
	extractor *extract.Extractor
	scorer    *detect.Scorer
	selector  *persona.Selector
	semantic  *detect.SemanticDetector
	generator reply.Generator
	vision    *vision.Client
	sink      events.Sink
	reporter  *events.Reporter
	archive   *archive.Archive
	log       *zap.Logger
}

// Options bundles the optional dependencies.
type Options struct {
	Semantic  *detect.SemanticDetector
	Generator reply.Generator
	Vision    *vision.Client
	Sink      events.Sink
	Reporter  *events.Reporter
	Archive   *archive.Archive
}

// New builds an Engine. The persona catalog comes from config; a bad
// catalog path is a startup error, not a per-request one.
func New(cfg *config.Config, store session.Store, log *zap.Logger, opts Options) (*Engine, error) {
	catalog, err := persona.LoadCatalog(cfg.PersonaFile)
	if err != nil {
		return nil, fmt.Errorf("load persona catalog: %w", err)
	}

	sink := opts.Sink
	if sink == nil {
		sink = events.NewLogSink(log)
	}

	return &Engine{
		cfg:   cfg,
		store: store,
		locks: session.NewKeyLock(),
		extractor: extract.New(extract.Options{
			PaymentProviders: cfg.PaymentProviders,
			Keywords:         cfg.ScamKeywords,
			PhoneLength:      cfg.PhoneLength,
			AccountMinDigits: cfg.AccountMinDigits,
			AccountMaxDigits: cfg.AccountMaxDigits,
		}),
		scorer:    detect.NewScorer(cfg),
		selector:  persona.NewSelector(catalog, cfg.PersonaHysteresis),
		semantic:  opts.Semantic,
		generator: opts.Generator,
		vision:    opts.Vision,
		sink:      sink,
		reporter:  opts.Reporter,
		archive:   opts.Archive,
		log:       log,
	}, nil
}

// Process handles one message end to end. Per-session processing is
// serialized; the session lock is released before any reply generation so
// a slow LLM cannot stall the session's throughput accounting.
func (e *Engine) Process(ctx context.Context, req Request) (*Response, error) {
	if req.SessionID == "" {
		return nil, ErrMissingSessionID
	}
	if strings.TrimSpace(req.Message) == "" && req.ImageBase64 == "" {
		return nil, ErrEmptyMessage
	}

	// Network lookups that do not need session state run before the lock.
	ocrText, qrPayload := e.analyzeImage(ctx, req)
	semanticMatch := e.analyzeSemantic(ctx, req.Message)

	unlock := e.locks.Lock(req.SessionID)

	sess, err := e.store.Get(ctx, req.SessionID)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("load session: %w", err)
	}

	if sess != nil && sess.Terminated() {
		switch e.cfg.TerminalPolicy {
		case config.TerminalRestart:
			sess = nil // fall through to a fresh session under the same key
		default:
			resp := snapshot(sess)
			unlock()
			return resp, nil
		}
	}
	if sess == nil {
		sess = session.New(req.SessionID)
	}
	if req.CallbackURL != "" {
		sess.CallbackURL = req.CallbackURL
	}

	turn := sess.AppendTurn(session.RoleScammer, req.Message)

	// Score and decay confidence.
	recent := sess.RecentScammerMessages(e.cfg.RepetitionWindow)
	vector := e.scorer.Score(req.Message, recent, &sess.Behavior)
	if sig, ok := semanticMatch.Signal(e.cfg.SemanticWeight); ok {
		vector = append(vector, sig)
	}
	tracker := detect.RestoreConfidence(sess.Confidence)
	sess.Confidence = tracker.Apply(vector, e.cfg.MaxTurnDecay)
	turn.Signals = vector
	turn.Confidence = sess.Confidence

	// Extract and merge intelligence.
	found := e.extractor.Extract(req.Message, ocrText, qrPayload)
	var added []extract.Item
	sess.Intel, added = extract.Merge(sess.Intel, found, sess.Turns)
	sess.Family, _ = profile.Classify(sess.ScammerMessages())
	turn.NewIntel = added

	// The loop guard only counts stale repeats: a near-identical message
	// that still surfaced new intelligence is worth staying for.
	if vector.Has(detect.SignalRepetition) && len(added) == 0 {
		sess.Behavior.LoopStreak++
	} else {
		sess.Behavior.LoopStreak = 0
	}

	e.emitTurnEvents(ctx, sess, vector, added)

	// Engagement decision. Once a scam, always a scam: detection never
	// reverts even if later messages look harmless.
	if sess.Confidence < e.cfg.EngageThreshold {
		sess.ScamDetected = true
		sess.AgentEngaged = true
		if sess.State == session.StateNew || sess.State == session.StateMonitoring {
			sess.State = session.StateEngaged
		}
	} else if sess.State == session.StateNew {
		sess.State = session.StateMonitoring
	}
	if sess.AgentEngaged {
		sess.EngagedTurns++
	}

	if !sess.AgentEngaged {
		if err := e.store.Save(ctx, sess); err != nil {
			unlock()
			return nil, fmt.Errorf("save session: %w", err)
		}
		resp := snapshot(sess)
		unlock()
		return resp, nil
	}

	// Persona selection with hysteresis, then the exit policy.
	p := e.selector.Select(sess.Confidence, sess.Persona)
	sess.SetPersona(p.Type)
	turn.Persona = p.Type

	if reason, exit := shouldExit(e.cfg, sess); exit {
		resp, err := e.terminate(ctx, sess, p, reason)
		unlock()
		return resp, err
	}

	topic := persona.DetectTopic(req.Message)
	mode := persona.DecideMode(sess.Confidence, e.cfg.ExitThreshold, e.cfg.DeflectThreshold)
	prompt := persona.BuildPrompt(p, topic, mode, req.Message)

	// Persist the scored state before generation; a generator failure must
	// not roll back the confidence update.
	if err := e.store.Save(ctx, sess); err != nil {
		unlock()
		return nil, fmt.Errorf("save session: %w", err)
	}
	turns := sess.Turns
	unlock()

	text := e.generate(ctx, sess.ID, p, prompt, turns)

	// Re-acquire to append the agent turn; the session may have advanced.
	unlock = e.locks.Lock(req.SessionID)
	defer unlock()

	current, err := e.store.Get(ctx, req.SessionID)
	if err != nil || current == nil {
		current = sess
	}
	if !current.Terminated() {
		current.AppendTurn(session.RoleAgent, text)
		if err := e.store.Save(ctx, current); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
	}

	resp := snapshot(current)
	resp.Reply = text
	return resp, nil
}

// terminate ends the session: exit message, completion event, final
// report, archive. Called with the session lock held.
func (e *Engine) terminate(ctx context.Context, sess *session.Session, p *persona.Persona, reason string) (*Response, error) {
	sess.State = session.StateTerminated
	sess.ExitReason = reason
	exitLine := persona.ExitMessage(p, sess.Turns)
	sess.AppendTurn(session.RoleAgent, exitLine)

	if err := e.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	e.emit(ctx, events.Event{
		Type:      events.SessionCompleted,
		SessionID: sess.ID,
		Turn:      sess.Turns,
		Timestamp: time.Now(),
		Fields: map[string]any{
			"exit_reason": reason,
			"confidence":  sess.Confidence,
			"intel_items": len(sess.Intel),
			"family":      string(sess.Family),
		},
	})

	e.reporter.Deliver(events.FinalReport{
		SessionID:              sess.ID,
		ScamDetected:           sess.ScamDetected,
		TotalMessagesExchanged: sess.Turns,
		ExtractedIntelligence:  sess.Intel,
		ScamFamily:             sess.Family,
		AgentNotes:             agentNotes(sess),
		FinalConfidence:        sess.Confidence,
	})

	if err := e.archive.Store(ctx, sess); err != nil {
		e.log.Error("archive completed session", zap.String("session_id", sess.ID), zap.Error(err))
	}

	resp := snapshot(sess)
	resp.Reply = exitLine
	return resp, nil
}

// generate runs the LLM, falling back to the persona's stall lines when
// no generator is configured or the call fails.
func (e *Engine) generate(ctx context.Context, sessionID string, p *persona.Persona, prompt string, turns int) string {
	if e.generator == nil {
		return persona.StallMessage(p, turns)
	}
	text, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		e.log.Warn("reply generation failed, using fallback",
			zap.String("session_id", sessionID),
			zap.String("persona", string(p.Type)),
			zap.Error(err))
		return persona.StallMessage(p, turns)
	}
	return text
}

// analyzeImage runs the vision sidecar when an image is attached. Sidecar
// failures are logged and the image contributes nothing.
func (e *Engine) analyzeImage(ctx context.Context, req Request) (ocrText, qrPayload string) {
	if req.ImageBase64 == "" || !e.vision.Available() {
		return "", ""
	}
	res, err := e.vision.Analyze(ctx, req.ImageBase64)
	if err != nil {
		e.log.Warn("vision analysis failed", zap.String("session_id", req.SessionID), zap.Error(err))
		return "", ""
	}
	return res.Text, res.QRPayload
}

// analyzeSemantic queries the embedding detector. Always returns a usable
// match object; failures degrade to no signal.
func (e *Engine) analyzeSemantic(ctx context.Context, message string) *detect.SemanticMatch {
	if e.semantic == nil || !e.semantic.Ready() || message == "" {
		return &detect.SemanticMatch{}
	}
	m, err := e.semantic.Detect(ctx, message)
	if err != nil {
		e.log.Warn("semantic detection failed", zap.Error(err))
		return &detect.SemanticMatch{}
	}
	return m
}

func (e *Engine) emitTurnEvents(ctx context.Context, sess *session.Session, v detect.Vector, added []extract.Item) {
	if len(added) > 0 {
		kinds := make([]string, 0, len(added))
		for _, it := range added {
			kinds = append(kinds, string(it.Kind))
		}
		e.emit(ctx, events.Event{
			Type:      events.IntelExtracted,
			SessionID: sess.ID,
			Turn:      sess.Turns,
			Timestamp: time.Now(),
			Fields:    map[string]any{"kinds": kinds, "total_items": len(sess.Intel)},
		})
	}
	if v.Has(detect.SignalThreat) || v.Has(detect.SignalEscalation) {
		e.emit(ctx, events.Event{
			Type:      events.ScammerAggressive,
			SessionID: sess.ID,
			Turn:      sess.Turns,
			Timestamp: time.Now(),
			Fields:    map[string]any{"reasons": v.Reasons(), "confidence": sess.Confidence},
		})
	}
}

func (e *Engine) emit(ctx context.Context, ev events.Event) {
	if err := e.sink.Emit(ctx, ev); err != nil {
		e.log.Warn("event emission failed", zap.String("event", string(ev.Type)), zap.Error(err))
	}
}

// snapshot builds the wire response from session state.
func snapshot(sess *session.Session) *Response {
	return &Response{
		Status:       strings.ToLower(string(sess.State)),
		Confidence:   sess.Confidence,
		SessionID:    sess.ID,
		Turns:        sess.Turns,
		AgentEngaged: sess.AgentEngaged,
		ScamDetected: sess.ScamDetected,
	}
}
