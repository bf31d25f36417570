// Package patterns provides a centralized, high-performance pattern registry
// for intelligence extraction. All regex patterns are compiled once at package
// init and shared across the extractor and scorer.
//
// Design principles:
// - COMPILE ONCE: All patterns compiled at init, not per-request
// - DRY: Single source of truth for all extraction patterns
// - CATEGORIZED: Patterns organized by artifact category for targeted scans
// - EXTENSIBLE: Easy to add new patterns without modifying extractor code
package patterns

import (
	"regexp"
	"sync"
)

// Category represents an extraction-pattern category
type Category string

const (
	// CategoryPaymentHandle matches local-part@provider payment handles.
	// Provider validation against the configured suffix list happens in
	// the extractor; the registry only finds candidates.
	CategoryPaymentHandle Category = "payment_handle"

	// CategoryURL matches scheme-prefixed and bare-domain links.
	CategoryURL Category = "url"

	// CategoryDigitRun matches contiguous or lightly-separated digit
	// sequences. Length banding (phone vs. bank account) happens in the
	// extractor from configuration.
	CategoryDigitRun Category = "digit_run"

	// CategoryQRPayload matches payment-app deep links carried in QR codes.
	CategoryQRPayload Category = "qr_payload"
)

// Pattern holds a compiled regex with metadata
type Pattern struct {
	Name        string         // Human-readable name for logging
	Regex       *regexp.Regexp // Compiled regex (never nil after init)
	Category    Category       // Artifact category
	Description string         // What this pattern matches
}

// Registry holds all compiled patterns, organized by category
type Registry struct {
	mu         sync.RWMutex
	byCategory map[Category][]*Pattern
	all        []*Pattern
}

// global singleton - initialized once at package load
var (
	globalRegistry *Registry
	initOnce       sync.Once
)

// Get returns the global pattern registry (singleton).
// Thread-safe and guaranteed to be initialized.
func Get() *Registry {
	initOnce.Do(func() {
		globalRegistry = newRegistry()
	})
	return globalRegistry
}

func newRegistry() *Registry {
	r := &Registry{
		byCategory: make(map[Category][]*Pattern),
		all:        make([]*Pattern, 0, 16),
	}

	r.registerPaymentHandlePatterns()
	r.registerURLPatterns()
	r.registerDigitRunPatterns()
	r.registerQRPayloadPatterns()

	return r
}

func (r *Registry) register(name string, pattern string, category Category, description string) {
	compiled := regexp.MustCompile(pattern)
	p := &Pattern{
		Name:        name,
		Regex:       compiled,
		Category:    category,
		Description: description,
	}

	r.byCategory[category] = append(r.byCategory[category], p)
	r.all = append(r.all, p)
}

// GetByCategory returns all patterns for a specific category.
// Returns empty slice if category not found (never nil).
func (r *Registry) GetByCategory(cat Category) []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if patterns, ok := r.byCategory[cat]; ok {
		return patterns
	}
	return []*Pattern{}
}

// FindAllIndex returns all [start, end) spans matched by any pattern in
// the category. Spans are in the order the patterns were registered;
// callers that need overlap resolution sort and filter themselves.
func (r *Registry) FindAllIndex(text string, cat Category) [][]int {
	var spans [][]int
	for _, p := range r.GetByCategory(cat) {
		spans = append(spans, p.Regex.FindAllStringIndex(text, -1)...)
	}
	return spans
}

// MatchAny checks if text matches any pattern in the given categories.
// Returns the first matching pattern or nil.
func (r *Registry) MatchAny(text string, cats ...Category) *Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cat := range cats {
		for _, p := range r.byCategory[cat] {
			if p.Regex.MatchString(text) {
				return p
			}
		}
	}
	return nil
}

// TotalPatterns returns the total count of registered patterns
func (r *Registry) TotalPatterns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// CategoryCount returns the number of patterns in a category
func (r *Registry) CategoryCount(cat Category) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCategory[cat])
}
