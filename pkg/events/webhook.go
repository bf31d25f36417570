package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hivetrap/hivetrap/pkg/extract"
	"github.com/hivetrap/hivetrap/pkg/httputil"
	"github.com/hivetrap/hivetrap/pkg/profile"
)

// FinalReport is the payload delivered to the reporting endpoint when a
// session completes. Field names match what the downstream case-management
// system already consumes.
type FinalReport struct {
	SessionID              string         `json:"sessionId"`
	ScamDetected           bool           `json:"scamDetected"`
	TotalMessagesExchanged int            `json:"totalMessagesExchanged"`
	ExtractedIntelligence  []extract.Item `json:"extractedIntelligence"`
	ScamFamily             profile.Family `json:"scamFamily,omitempty"`
	AgentNotes             string         `json:"agentNotes"`
	FinalConfidence        float64        `json:"finalConfidence"`
}

// Reporter delivers final reports with bounded retries. Deliveries run
// fire-and-forget behind a semaphore so a slow endpoint cannot pile up
// goroutines.
type Reporter struct {
	url     string
	client  *http.Client
	retries int
	backoff time.Duration
	sem     *httputil.Semaphore
	log     *zap.Logger
}

// NewReporter creates a reporter. An empty url returns nil; a nil
// Reporter ignores Deliver calls.
func NewReporter(url string, timeout time.Duration, retries int, log *zap.Logger) *Reporter {
	if url == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retries <= 0 {
		retries = 3
	}
	return &Reporter{
		url:     url,
		client:  httputil.NewClient(timeout),
		retries: retries,
		backoff: time.Second,
		sem:     httputil.NewSemaphore(50),
		log:     log,
	}
}

// Deliver queues the report for background delivery. When the semaphore
// is saturated the report is dropped and logged rather than queued.
func (r *Reporter) Deliver(report FinalReport) {
	if r == nil {
		return
	}
	if !r.sem.TryAcquire() {
		r.log.Warn("report delivery dropped at capacity",
			zap.String("session_id", report.SessionID),
			zap.Int64("dropped_total", r.sem.Dropped()))
		return
	}

	go func() {
		defer r.sem.Release()
		if err := r.send(report); err != nil {
			r.log.Error("final report delivery failed",
				zap.String("session_id", report.SessionID),
				zap.Error(err))
			return
		}
		r.log.Info("final report delivered",
			zap.String("session_id", report.SessionID),
			zap.Int("intel_items", len(report.ExtractedIntelligence)))
	}()
}

// send posts the report, retrying with exponential backoff: 1s, 2s, 4s.
func (r *Reporter) send(report FinalReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < r.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(r.backoff << (attempt - 1))
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.client.Timeout)
		req, err := http.NewRequestWithContext(ctx, "POST", r.url, bytes.NewReader(payload))
		if err != nil {
			cancel()
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			cancel()
			lastErr = err
			continue
		}
		err = httputil.CheckResponse(resp, "report endpoint")
		httputil.DrainAndClose(resp.Body)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("after %d attempts: %w", r.retries, lastErr)
}
