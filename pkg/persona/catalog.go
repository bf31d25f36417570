// Package persona holds the believable-victim characters the agent plays
// and the logic for picking one from the current confidence value.
package persona

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Type identifies a persona.
type Type string

const (
	ConfusedUser Type = "confused_user"
	NervousElder Type = "nervous_elder"
	OverPolite   Type = "over_polite"
	TechSavvy    Type = "tech_savvy"
)

// Persona describes one character the agent can play. Confidence bands
// are inclusive on both ends; the catalog keeps them ordered from highest
// band to lowest so the first match wins at shared boundaries.
type Persona struct {
	Type          Type     `yaml:"type"`
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Traits        []string `yaml:"traits"`
	ResponseStyle string   `yaml:"response_style"`
	MinConfidence float64  `yaml:"min_confidence"`
	MaxConfidence float64  `yaml:"max_confidence"`
	ExitMessages  []string `yaml:"exit_messages"`
	StallMessages []string `yaml:"stall_messages"`
}

// Matches reports whether confidence falls inside this persona's band.
func (p *Persona) Matches(confidence float64) bool {
	return confidence >= p.MinConfidence && confidence <= p.MaxConfidence
}

// Catalog is the ordered persona set.
type Catalog struct {
	personas []Persona
	byType   map[Type]*Persona
}

// NewCatalog builds a catalog from an explicit persona list. At least one
// persona is required and types must be unique.
func NewCatalog(personas []Persona) (*Catalog, error) {
	if len(personas) == 0 {
		return nil, fmt.Errorf("catalog requires at least one persona")
	}
	c := &Catalog{
		personas: personas,
		byType:   make(map[Type]*Persona, len(personas)),
	}
	for i := range c.personas {
		p := &c.personas[i]
		if p.Type == "" {
			return nil, fmt.Errorf("persona %d has no type", i)
		}
		if _, dup := c.byType[p.Type]; dup {
			return nil, fmt.Errorf("duplicate persona type %q", p.Type)
		}
		if p.MinConfidence > p.MaxConfidence {
			return nil, fmt.Errorf("persona %q: min confidence %.2f above max %.2f", p.Type, p.MinConfidence, p.MaxConfidence)
		}
		c.byType[p.Type] = p
	}
	return c, nil
}

// LoadCatalog reads a persona catalog from a YAML file. An empty path
// returns the built-in defaults.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return NewCatalog(defaultPersonas())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona catalog: %w", err)
	}

	var doc struct {
		Personas []Persona `yaml:"personas"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse persona catalog: %w", err)
	}

	return NewCatalog(doc.Personas)
}

// Get returns the persona for the given type, or nil if unknown.
func (c *Catalog) Get(t Type) *Persona {
	return c.byType[t]
}

// All returns the personas in band order.
func (c *Catalog) All() []Persona {
	return c.personas
}

// defaultPersonas is the built-in character set, ordered from the calm
// high-confidence band down to the suspicious low-confidence band.
func defaultPersonas() []Persona {
	return []Persona{
		{
			Type:        ConfusedUser,
			Name:        "Confused User",
			Description: "A user who is confused and asks many clarifying questions",
			Traits: []string{
				"easily confused",
				"asks for clarification",
				"repeats information back",
				"uncertain about technical terms",
				"needs step-by-step guidance",
			},
			ResponseStyle: "Ask clarifying questions, express confusion about technical terms, request simpler explanations",
			MinConfidence: 0.7,
			MaxConfidence: 1.0,
			ExitMessages: []string{
				"I'm getting too confused. I'll visit the branch directly to sort this out.",
				"This is too complicated for me. I'll go to the office in person tomorrow.",
			},
			StallMessages: []string{
				"Sorry, I don't understand. Can you explain that again?",
				"Wait, which account do you mean? I have two.",
			},
		},
		{
			Type:        NervousElder,
			Name:        "Nervous Elder",
			Description: "An elderly person who is nervous about technology and security",
			Traits: []string{
				"worried about security",
				"not tech-savvy",
				"cautious and hesitant",
				"asks about safety",
				"mentions family members who help with tech",
			},
			ResponseStyle: "Express worry and caution, mention needing to ask family, show hesitation about online actions",
			MinConfidence: 0.5,
			MaxConfidence: 0.7,
			ExitMessages: []string{
				"I'm feeling very nervous about this. I'll ask my son to help me at the bank.",
				"This is making me worried. I prefer to handle this face-to-face at the branch.",
			},
			StallMessages: []string{
				"Oh dear, this sounds serious. Is it safe to do this on the phone?",
				"My grandson usually helps me with these things. Can I call you back?",
			},
		},
		{
			Type:        OverPolite,
			Name:        "Over-Polite User",
			Description: "An excessively polite user who apologizes frequently",
			Traits: []string{
				"extremely polite",
				"apologizes often",
				"thanks repeatedly",
				"deferential to authority",
				"eager to comply but slow to act",
			},
			ResponseStyle: "Be overly polite, apologize for delays, thank profusely, show eagerness to help while being slow",
			MinConfidence: 0.3,
			MaxConfidence: 0.5,
			ExitMessages: []string{
				"Thank you so much for your help, but I think I'll visit the branch to be safe. Sorry for the trouble!",
				"I really appreciate your assistance, but I'd feel more comfortable doing this in person. Thank you!",
			},
			StallMessages: []string{
				"So sorry for the delay, sir. I am trying my best, please give me a moment.",
				"Thank you for your patience. I am just looking for my papers now.",
			},
		},
		{
			Type:        TechSavvy,
			Name:        "Tech-Savvy Skeptic",
			Description: "A tech-aware user who is becoming suspicious",
			Traits: []string{
				"asks technical questions",
				"requests verification",
				"mentions security concerns",
				"questions legitimacy subtly",
				"wants official channels",
			},
			ResponseStyle: "Ask for verification, mention official websites, express mild skepticism, request documentation",
			MinConfidence: 0.0,
			MaxConfidence: 0.3,
			ExitMessages: []string{
				"I'll verify this through the official website and contact support directly. Thanks.",
				"I prefer to handle this through official channels. I'll call the verified customer service number.",
			},
			StallMessages: []string{
				"Which department did you say you're calling from? I'd like a reference number.",
				"Can you send this request from the official email domain first?",
			},
		},
	}
}
