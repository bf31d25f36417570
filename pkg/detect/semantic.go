package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/hivetrap/hivetrap/pkg/httputil"
)

// ScamPhrase is one seed phrase with metadata for the vector store.
type ScamPhrase struct {
	Text     string
	Category string
	Severity float32 // 0.0-1.0
}

// SemanticDetector scores messages by embedding similarity against known
// scam openers and pressure lines. It is optional: when no embedding
// backend is reachable the engine runs on lexical signals alone.
type SemanticDetector struct {
	db         *chromem.DB
	collection *chromem.Collection
	threshold  float32
	mu         sync.RWMutex
	ready      bool
}

// SemanticMatch is the outcome of one semantic query.
type SemanticMatch struct {
	Score       float32
	Category    string
	MatchedText string
	IsThreat    bool
}

// NewSemanticDetector creates a detector backed by Ollama embeddings at
// ollamaURL. Returns an error if the collection cannot be created.
func NewSemanticDetector(ollamaURL, model string) (*SemanticDetector, error) {
	if model == "" {
		model = "embeddinggemma"
	}

	db := chromem.NewDB()

	collection, err := db.CreateCollection("scam_phrases", nil, newOllamaEmbeddingFunc(model, ollamaURL))
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &SemanticDetector{
		db:         db,
		collection: collection,
		threshold:  0.65,
	}, nil
}

// newOllamaEmbeddingFunc builds an embedding function against Ollama's
// /api/embeddings endpoint.
func newOllamaEmbeddingFunc(model, baseURL string) chromem.EmbeddingFunc {
	client := httputil.NewClient(30 * time.Second)

	return func(ctx context.Context, text string) ([]float32, error) {
		reqBody := map[string]string{
			"model":  model,
			"prompt": text,
		}
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/api/embeddings", bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if err := httputil.CheckResponse(resp, "ollama embedding"); err != nil {
			return nil, err
		}

		var result struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}

		return result.Embedding, nil
	}
}

// LoadPhrases embeds the seed phrases into the vector store. Documents are
// added with a single worker to avoid overwhelming the Ollama API.
func (sd *SemanticDetector) LoadPhrases(ctx context.Context, phrases []ScamPhrase) error {
	sd.mu.Lock()
	defer sd.mu.Unlock()

	if len(phrases) == 0 {
		phrases = defaultScamPhrases()
	}

	docs := make([]chromem.Document, len(phrases))
	for i, p := range phrases {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("phrase_%d", i),
			Content: p.Text,
			Metadata: map[string]string{
				"category": p.Category,
				"severity": fmt.Sprintf("%.2f", p.Severity),
			},
		}
	}

	if err := sd.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("add phrases: %w", err)
	}

	sd.ready = true
	return nil
}

// Ready reports whether the phrase store has been loaded.
func (sd *SemanticDetector) Ready() bool {
	sd.mu.RLock()
	defer sd.mu.RUnlock()
	return sd.ready
}

// Detect queries the store for the closest scam phrase. Errors and a
// not-ready store are soft failures at the call site; the engine simply
// skips the semantic signal for that turn.
func (sd *SemanticDetector) Detect(ctx context.Context, text string) (*SemanticMatch, error) {
	sd.mu.RLock()
	defer sd.mu.RUnlock()

	if !sd.ready {
		return nil, fmt.Errorf("semantic detector not initialized, call LoadPhrases first")
	}

	results, err := sd.collection.Query(ctx, strings.ToLower(text), 3, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	if len(results) == 0 {
		return &SemanticMatch{}, nil
	}

	best := results[0]
	return &SemanticMatch{
		Score:       best.Similarity,
		Category:    best.Metadata["category"],
		MatchedText: best.Content,
		IsThreat:    best.Similarity >= sd.threshold,
	}, nil
}

// Signal converts a match into a scoring signal. The decay scales with
// similarity and is capped at weight.
func (m *SemanticMatch) Signal(weight float64) (Signal, bool) {
	if m == nil || !m.IsThreat {
		return Signal{}, false
	}
	decay := weight * float64(m.Score)
	if decay > weight {
		decay = weight
	}
	return Signal{
		Type:   SignalSemantic,
		Decay:  decay,
		Reason: fmt.Sprintf("semantic match: %s", m.Category),
	}, true
}

// defaultScamPhrases is the built-in seed set covering the scam families
// this deployment sees most.
func defaultScamPhrases() []ScamPhrase {
	return []ScamPhrase{
		{Text: "your account has been blocked due to suspicious activity", Category: "banking_fraud", Severity: 0.9},
		{Text: "complete your kyc verification immediately or lose access", Category: "banking_fraud", Severity: 0.9},
		{Text: "share the otp you just received to verify your identity", Category: "banking_fraud", Severity: 1.0},
		{Text: "your debit card will be deactivated today unless you confirm", Category: "banking_fraud", Severity: 0.9},
		{Text: "we detected a virus on your computer, install this tool now", Category: "tech_support", Severity: 0.8},
		{Text: "your microsoft license has expired, call this number", Category: "tech_support", Severity: 0.8},
		{Text: "congratulations you have won a lottery prize, pay the processing fee", Category: "lottery", Severity: 0.9},
		{Text: "you are selected for a lucky draw reward, claim before midnight", Category: "lottery", Severity: 0.8},
		{Text: "i need money urgently for a medical emergency, please transfer", Category: "romance", Severity: 0.7},
		{Text: "work from home and earn daily, small registration fee required", Category: "job_offer", Severity: 0.8},
		{Text: "your parcel is held at customs, pay the release charge", Category: "delivery", Severity: 0.8},
		{Text: "refund is pending on your account, approve the collect request", Category: "banking_fraud", Severity: 0.9},
	}
}
