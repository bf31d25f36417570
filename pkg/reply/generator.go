// Package reply produces the agent's outbound text. The primary path is
// an OpenAI-compatible chat completion against whichever provider is
// configured; when no provider is reachable the engine falls back to the
// persona's canned stall lines.
package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hivetrap/hivetrap/pkg/config"
	"github.com/hivetrap/hivetrap/pkg/httputil"
)

// Generator produces one reply from a fully built prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// DefaultTemperature keeps replies varied enough to read as human without
// drifting out of character.
const DefaultTemperature = 0.7

const maxAttempts = 3

var _ Generator = (*LLMGenerator)(nil)

// LLMGenerator calls an OpenAI-compatible chat completions endpoint.
// Transient failures are retried with linear backoff before giving up.
type LLMGenerator struct {
	client      *http.Client
	provider    config.LLMProvider
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	backoff     time.Duration
}

// NewLLMGenerator builds a generator from config. Returns an error for
// ProviderNone or a cloud provider with no API key; callers treat that as
// "run on fallback replies".
func NewLLMGenerator(cfg *config.Config) (*LLMGenerator, error) {
	if cfg.LLMProvider == config.ProviderNone {
		return nil, fmt.Errorf("no LLM provider configured")
	}

	model := cfg.LLMModel
	var baseURL string

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		baseURL = "http://localhost:11434/v1"
		if model == "" {
			model = "qwen2.5:7b"
		}
	case config.ProviderGroq:
		baseURL = "https://api.groq.com/openai/v1"
		if model == "" {
			model = "llama-3.1-8b-instant"
		}
	case config.ProviderOpenAI:
		baseURL = "https://api.openai.com/v1"
		if model == "" {
			model = "gpt-4o-mini"
		}
	case config.ProviderCustom:
		if cfg.LLMBaseURL == "" {
			return nil, fmt.Errorf("custom provider requires a base URL")
		}
		baseURL = cfg.LLMBaseURL
	default: // openrouter
		baseURL = "https://openrouter.ai/api/v1"
		if model == "" {
			model = "meta-llama/llama-3.1-8b-instruct:free"
		}
	}
	if cfg.LLMBaseURL != "" {
		baseURL = cfg.LLMBaseURL
	}

	if cfg.LLMProvider != config.ProviderOllama && cfg.LLMProvider != config.ProviderCustom && cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("provider %s requires an API key", cfg.LLMProvider)
	}

	timeout := cfg.LLMTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &LLMGenerator{
		client:      httputil.NewClient(timeout),
		provider:    cfg.LLMProvider,
		baseURL:     baseURL,
		apiKey:      cfg.LLMAPIKey,
		model:       model,
		temperature: DefaultTemperature,
		backoff:     2 * time.Second,
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate runs the prompt through the provider. Rate-limit and network
// errors are retried; anything else fails immediately.
func (g *LLMGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * g.backoff
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := g.call(ctx, prompt)
		if err == nil {
			return strings.TrimSpace(text), nil
		}
		lastErr = err
		if !retryable(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("generation failed after %d attempts: %w", maxAttempts, lastErr)
}

func (g *LLMGenerator) call(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:       g.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: g.temperature,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(g.baseURL, "/") + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	// Providers are external; bound the read even on the happy path.
	const maxResponseSize = 2 * 1024 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unmarshal error: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}

	return result.Choices[0].Message.Content, nil
}

// retryable classifies provider failures worth another attempt: quota
// trips, connection drops and server-side errors.
func retryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"quota", "rate", "connection", "timeout", "429", "502", "503"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
