package patterns

// =============================================================================
// PATTERN DEFINITIONS BY CATEGORY
// All patterns are registered here and compiled once at package init.
// This provides a single source of truth for all extraction patterns.
// =============================================================================

// --- PAYMENT HANDLE PATTERNS ---
// Candidates look like user@paytm, raj.kumar@ybl, name-1@okicici.
// The extractor validates the provider token against the configured list.
func (r *Registry) registerPaymentHandlePatterns() {
	cat := CategoryPaymentHandle

	r.register("vpa_handle", `\b[a-zA-Z0-9][\w.\-]*@[a-zA-Z]\w*\b`, cat, "Virtual payment address candidate")
}

// --- URL PATTERNS ---
func (r *Registry) registerURLPatterns() {
	cat := CategoryURL

	r.register("scheme_url", `(?i)https?://(?:www\.)?[\w\-.]+(?:\.[a-z]{2,})+(?:/[\w\-./?%&=+#~]*)?`, cat, "Scheme-prefixed URL")
	r.register("bare_domain", `(?i)\b(?:www\.)?[a-z0-9][a-z0-9\-]*(?:\.[a-z0-9\-]+)*\.(?:com|net|org|in|co|io|xyz|info|online|site|top|club|link|app)(?:/[\w\-./?%&=+#~]*)?\b`, cat, "Bare-domain link")
}

// --- DIGIT RUN PATTERNS ---
// A run is digits optionally broken by single spaces or dashes, so
// "98765-43210" and "9876543210" both surface as one candidate. The
// extractor strips separators and applies phone/account length bands.
func (r *Registry) registerDigitRunPatterns() {
	cat := CategoryDigitRun

	r.register("digit_run", `\+?\d(?:[ \-]?\d){5,}`, cat, "Contiguous or lightly-separated digit sequence")
}

// --- QR PAYLOAD PATTERNS ---
// UPI deep links carried in QR codes, e.g. upi://pay?pa=user@paytm&am=500.
func (r *Registry) registerQRPayloadPatterns() {
	cat := CategoryQRPayload

	r.register("upi_deeplink", `(?i)upi://pay\?[\w.\-=&@%]+`, cat, "UPI payment deep link")
}
