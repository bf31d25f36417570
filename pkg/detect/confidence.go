package detect

// Confidence tracks a session's scam-confidence value. The scale is
// inverted: 1.0 means the sender looks legitimate, 0.0 means certain scam.
// Movement is monotonic downward; there is no recovery path, because one
// benign-looking message after three threats does not make a sender safe.
type Confidence struct {
	value float64
}

// NewConfidence returns a tracker starting at full confidence.
func NewConfidence() *Confidence {
	return &Confidence{value: 1.0}
}

// RestoreConfidence rebuilds a tracker from a persisted value, clamped
// to [0, 1].
func RestoreConfidence(value float64) *Confidence {
	c := &Confidence{value: value}
	if c.value > 1.0 {
		c.value = 1.0
	}
	if c.value < 0.0 {
		c.value = 0.0
	}
	return c
}

// Apply subtracts the vector's clamped total decay and returns the new
// value. The floor is zero.
func (c *Confidence) Apply(v Vector, maxTurnDecay float64) float64 {
	c.value -= v.TotalDecay(maxTurnDecay)
	if c.value < 0.0 {
		c.value = 0.0
	}
	return c.value
}

// Value returns the current confidence.
func (c *Confidence) Value() float64 {
	return c.value
}
