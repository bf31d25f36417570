package persona

// Selector picks a persona from confidence with hysteresis: once a
// character is established, confidence has to leave its band by more
// than the margin before the agent switches voices. A mid-conversation
// personality flip right at a band boundary is exactly the kind of tell
// a careful scammer notices.
type Selector struct {
	catalog *Catalog
	margin  float64
}

// NewSelector creates a selector over the catalog. margin is the
// hysteresis width; zero disables it.
func NewSelector(catalog *Catalog, margin float64) *Selector {
	return &Selector{catalog: catalog, margin: margin}
}

// Select returns the persona for the given confidence. current is the
// session's established persona type, or empty on first engagement; the
// first selection never applies hysteresis.
func (s *Selector) Select(confidence float64, current Type) *Persona {
	if current != "" {
		if p := s.catalog.Get(current); p != nil {
			if confidence >= p.MinConfidence-s.margin && confidence <= p.MaxConfidence+s.margin {
				return p
			}
		}
	}

	for i := range s.catalog.personas {
		if p := &s.catalog.personas[i]; p.Matches(confidence) {
			return p
		}
	}

	// Out-of-range input falls back to the calmest character.
	if p := s.catalog.Get(ConfusedUser); p != nil {
		return p
	}
	return &s.catalog.personas[0]
}
