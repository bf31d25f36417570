package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hivetrap/hivetrap/pkg/archive"
	"github.com/hivetrap/hivetrap/pkg/config"
	"github.com/hivetrap/hivetrap/pkg/detect"
	"github.com/hivetrap/hivetrap/pkg/engage"
	"github.com/hivetrap/hivetrap/pkg/events"
	"github.com/hivetrap/hivetrap/pkg/extract"
	"github.com/hivetrap/hivetrap/pkg/profile"
	"github.com/hivetrap/hivetrap/pkg/reply"
	"github.com/hivetrap/hivetrap/pkg/session"
	"github.com/hivetrap/hivetrap/pkg/vision"
)

// Version is set at build time via -ldflags.
var Version = "0.3.0"

var startedAt = time.Now()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		addr := ""
		if len(os.Args) > 2 {
			addr = ":" + strings.TrimPrefix(os.Args[2], ":")
		}
		runServer(addr)
	case "analyze":
		if len(os.Args) < 3 {
			fmt.Println("Usage: hivetrap analyze <message>")
			os.Exit(1)
		}
		runAnalyze(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("hivetrap v%s\n", Version)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("hivetrap v%s - scam honeypot gateway\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  hivetrap serve [port]      Start the HTTP gateway")
	fmt.Println("  hivetrap analyze <text>    Score one message offline")
	fmt.Println("  hivetrap version           Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  HIVETRAP_API_KEY           Gateway auth key (required in production)")
	fmt.Println("  HIVETRAP_REDIS_URL         Redis session store; empty = in-memory")
	fmt.Println("  HIVETRAP_LLM_PROVIDER      Reply backend: ollama, openrouter, groq, openai, custom")
	fmt.Println("  HIVETRAP_REPORT_URL        Final-report webhook")
	fmt.Println("  HIVETRAP_NATS_URL          NATS event broker")
	fmt.Println("  HIVETRAP_POSTGRES_URL      Archive database")
}

func newLogger() *zap.Logger {
	var log *zap.Logger
	var err error
	if strings.HasPrefix(strings.ToLower(os.Getenv("HIVETRAP_ENV")), "prod") {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	return log
}

func runServer(addr string) {
	cfg := config.NewDefaultConfig()
	if addr != "" {
		cfg.ServeAddr = addr
	}
	cfg.MustValidate()

	log := newLogger()
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	store := newStore(ctx, cfg, log)
	defer func() { _ = store.Close() }()

	opts := engage.Options{
		Sink:     newSink(cfg, log),
		Reporter: events.NewReporter(cfg.ReportURL, cfg.ReportTimeout, cfg.ReportRetries, log),
		Vision:   vision.NewClient(cfg.VisionBaseURL),
	}
	defer func() { _ = opts.Sink.Close() }()

	if gen, err := reply.NewLLMGenerator(cfg); err != nil {
		log.Warn("reply generation disabled, using persona fallbacks", zap.Error(err))
	} else {
		opts.Generator = gen
		log.Info("reply generation enabled", zap.String("provider", string(cfg.LLMProvider)))
	}

	if cfg.EnableSemantics {
		if sd, err := detect.NewSemanticDetector(cfg.EmbedBaseURL, cfg.EmbedModel); err != nil {
			log.Warn("semantic detector unavailable", zap.Error(err))
		} else if err := sd.LoadPhrases(ctx, nil); err != nil {
			log.Warn("semantic phrase load failed", zap.Error(err))
		} else {
			opts.Semantic = sd
			log.Info("semantic detection enabled", zap.String("embed_url", cfg.EmbedBaseURL))
		}
	}

	arc, err := archive.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal("archive init failed", zap.Error(err))
	}
	if arc != nil {
		defer arc.Close()
		log.Info("session archive enabled")
	}
	opts.Archive = arc

	engine, err := engage.New(cfg, store, log, opts)
	if err != nil {
		log.Fatal("engine init failed", zap.Error(err))
	}

	app := buildApp(cfg, engine, store, arc, log)
	log.Info("gateway listening", zap.String("addr", cfg.ServeAddr))
	if err := app.Listen(cfg.ServeAddr); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func newStore(ctx context.Context, cfg *config.Config, log *zap.Logger) session.Store {
	if cfg.RedisURL == "" {
		log.Info("using in-memory session store")
		return session.NewMemoryStore(
			session.WithMaxAge(cfg.SessionTTL),
		)
	}

	addr := strings.TrimPrefix(strings.TrimPrefix(cfg.RedisURL, "redis://"), "rediss://")
	store, err := session.NewRedisStore(ctx, addr, os.Getenv("HIVETRAP_REDIS_PASSWORD"), 0, cfg.SessionTTL)
	if err != nil {
		log.Fatal("redis session store init failed", zap.Error(err))
	}
	log.Info("using redis session store", zap.String("addr", addr))
	return store
}

func newSink(cfg *config.Config, log *zap.Logger) events.Sink {
	logSink := events.NewLogSink(log)
	if cfg.NATSURL == "" {
		return logSink
	}
	natsSink, err := events.NewNATSSink(cfg.NATSURL, log)
	if err != nil {
		log.Warn("nats sink unavailable, events go to logs only", zap.Error(err))
		return logSink
	}
	log.Info("nats event sink enabled", zap.String("url", cfg.NATSURL))
	return events.NewMultiSink(logSink, natsSink)
}

func buildApp(cfg *config.Config, engine *engage.Engine, store session.Store, arc *archive.Archive, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "hivetrap",
	})

	// Request ID + auth. Health stays open for probes.
	app.Use(func(c fiber.Ctx) error {
		reqID := c.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set("X-Request-ID", reqID)

		if cfg.APIKey != "" && c.Path() != "/health" {
			if c.Get("X-API-Key") != cfg.APIKey {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid API key"})
			}
		}
		return c.Next()
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": Version})
	})

	app.Post("/honeypot/message", func(c fiber.Ctx) error {
		var req engage.Request
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
		}
		resp, err := engine.Process(c.Context(), req)
		if err != nil {
			if errors.Is(err, engage.ErrMissingSessionID) || errors.Is(err, engage.ErrEmptyMessage) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			}
			log.Error("message processing failed",
				zap.String("session_id", req.SessionID),
				zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing failed"})
		}
		return c.JSON(resp)
	})

	app.Get("/sessions", func(c fiber.Ctx) error {
		sessions, err := store.List(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "list failed"})
		}

		out := make([]fiber.Map, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, fiber.Map{
				"session_id":    s.ID,
				"state":         s.State,
				"confidence":    s.Confidence,
				"turns":         s.Turns,
				"scam_detected": s.ScamDetected,
				"family":        s.Family,
				"intel_items":   len(s.Intel),
			})
		}
		return c.JSON(fiber.Map{"sessions": out, "count": len(out)})
	})

	app.Get("/sessions/:id", func(c fiber.Ctx) error {
		sess, err := store.Get(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup failed"})
		}
		if sess == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
		}
		return c.JSON(sess)
	})

	app.Get("/intelligence", func(c fiber.Ctx) error {
		// Live sessions first, archive aggregate when available.
		sessions, err := store.List(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "list failed"})
		}

		live := make(map[string][]extract.Item)
		for _, s := range sessions {
			if len(s.Intel) > 0 {
				live[s.ID] = s.Intel
			}
		}

		result := fiber.Map{"live": live}
		if arc != nil {
			top, err := arc.TopIntel(c.Context(), 100)
			if err != nil {
				log.Warn("archive intel query failed", zap.Error(err))
			} else {
				result["archived_top"] = top
			}
		}
		return c.JSON(result)
	})

	app.Get("/metrics", func(c fiber.Ctx) error {
		sessions, err := store.List(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "list failed"})
		}

		byState := map[session.State]int{}
		detected, intelItems := 0, 0
		confidenceSum := 0.0
		for _, s := range sessions {
			byState[s.State]++
			if s.ScamDetected {
				detected++
			}
			intelItems += len(s.Intel)
			confidenceSum += s.Confidence
		}
		avgConfidence := 0.0
		if len(sessions) > 0 {
			avgConfidence = confidenceSum / float64(len(sessions))
		}
		return c.JSON(fiber.Map{
			"version":        Version,
			"uptime_seconds": int(time.Since(startedAt).Seconds()),
			"sessions_live":  len(sessions),
			"sessions_state": byState,
			"scams_detected": detected,
			"avg_confidence": avgConfidence,
			"intel_items":    intelItems,
		})
	})

	return app
}

// runAnalyze scores one message offline, printing the signal breakdown
// and extracted intelligence as JSON.
func runAnalyze(text string) {
	cfg := config.NewDefaultConfig()

	scorer := detect.NewScorer(cfg)
	var behavior detect.Behavior
	vector := scorer.Score(text, nil, &behavior)

	tracker := detect.NewConfidence()
	confidence := tracker.Apply(vector, cfg.MaxTurnDecay)

	extractor := extract.New(extract.Options{
		PaymentProviders: cfg.PaymentProviders,
		Keywords:         cfg.ScamKeywords,
		PhoneLength:      cfg.PhoneLength,
		AccountMinDigits: cfg.AccountMinDigits,
		AccountMaxDigits: cfg.AccountMaxDigits,
	})
	items := extractor.Extract(text, "", "")
	family, _ := profile.Classify([]string{text})

	out, err := json.MarshalIndent(map[string]any{
		"confidence":    confidence,
		"would_engage":  confidence < cfg.EngageThreshold,
		"signals":       vector,
		"intelligence":  items,
		"probable_scam": family,
	}, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
