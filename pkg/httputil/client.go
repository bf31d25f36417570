// Package httputil provides the shared HTTP plumbing for outbound calls:
// pooled transports, tiered-timeout clients, bounded body reads and a
// counting semaphore for fire-and-forget work.
package httputil

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// MaxResponseSize caps response body reads so a compromised collaborator
// service cannot OOM the gateway.
const MaxResponseSize = 10 * 1024 * 1024 // 10MB

// sharedTransport pools TCP connections across every outbound call:
// LLM providers, the vision collaborator, embedding backends and the
// final-report webhook all reuse it.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// TimeoutTier names the standard timeout categories.
type TimeoutTier int

const (
	// TierFast for health checks and webhook posts (5s)
	TierFast TimeoutTier = iota
	// TierMedium for collaborator API calls (30s)
	TierMedium
	// TierSlow for LLM generation (60s)
	TierSlow
)

var timeoutDurations = map[TimeoutTier]time.Duration{
	TierFast:   5 * time.Second,
	TierMedium: 30 * time.Second,
	TierSlow:   60 * time.Second,
}

var (
	tierClients map[TimeoutTier]*http.Client
	clientOnce  sync.Once
)

// Client returns the shared client for a timeout tier. Prefer this over
// constructing http.Client per call site so the connection pool is
// actually shared.
func Client(tier TimeoutTier) *http.Client {
	clientOnce.Do(func() {
		tierClients = make(map[TimeoutTier]*http.Client, len(timeoutDurations))
		for t, d := range timeoutDurations {
			tierClients[t] = &http.Client{Timeout: d, Transport: sharedTransport}
		}
	})
	if c, ok := tierClients[tier]; ok {
		return c
	}
	return tierClients[TierMedium]
}

// NewClient returns a client with a custom timeout on the shared
// transport, for callers whose deadline fits none of the tiers.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: sharedTransport}
}

// ReadResponseBody reads a response body with a size limit. maxSize <= 0
// falls back to MaxResponseSize.
func ReadResponseBody(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxResponseSize
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// DrainAndClose drains and closes a response body so the underlying
// connection returns to the pool.
func DrainAndClose(body io.ReadCloser) {
	if body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
		_ = body.Close()
	}
}

// CheckResponse turns a non-2xx response into an error that names the
// service and includes a bounded slice of the body.
func CheckResponse(resp *http.Response, service string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("%s returned status %d: %s", service, resp.StatusCode, string(body))
}
