// Package extract pulls structured intelligence out of raw scammer text.
// The extractor is a pure function over its input: running it twice on the
// same text yields the same item set, and merging results into a session
// never duplicates an item already present.
package extract

import (
	"net/url"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/hivetrap/hivetrap/pkg/patterns"
)

// Kind tags the variant of an intelligence item.
type Kind string

const (
	KindPaymentHandle Kind = "payment_handle"
	KindPhoneNumber   Kind = "phone_number"
	KindBankAccount   Kind = "bank_account"
	KindURL           Kind = "url"
	KindKeyword       Kind = "keyword"
	KindOCRText       Kind = "ocr_text"
)

// Item is one extracted artifact. Uniqueness within a session is by
// (Kind, Value); Turn records the turn index that first produced it.
type Item struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value"`
	Turn  int    `json:"turn"`
}

// Key returns the dedup key for the item.
func (it Item) Key() string {
	return string(it.Kind) + "\x00" + it.Value
}

// Extractor recognizes payment handles, phone numbers, bank accounts,
// URLs and configured keywords in free text. Safe for concurrent use.
type Extractor struct {
	providers   []string // payment-app suffixes, lowercase
	keywords    []string // threat/urgency vocabulary, lowercase
	phoneLength int
	accountMin  int
	accountMax  int
}

// Options configures an Extractor. Zero values fall back to defaults
// matching Indian payment rails.
type Options struct {
	PaymentProviders []string
	Keywords         []string
	PhoneLength      int
	AccountMinDigits int
	AccountMaxDigits int
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	e := &Extractor{
		phoneLength: opts.PhoneLength,
		accountMin:  opts.AccountMinDigits,
		accountMax:  opts.AccountMaxDigits,
	}
	if e.phoneLength == 0 {
		e.phoneLength = 10
	}
	if e.accountMin == 0 {
		e.accountMin = 11
	}
	if e.accountMax == 0 {
		e.accountMax = 18
	}
	for _, p := range opts.PaymentProviders {
		e.providers = append(e.providers, strings.ToLower(p))
	}
	for _, k := range opts.Keywords {
		e.keywords = append(e.keywords, strings.ToLower(k))
	}
	return e
}

// Extract returns the intelligence items found in text. ocrText, when
// non-empty, is scanned with the same patterns and additionally recorded
// as an OCR-derived text item; qrPayload is parsed for payment deep links.
// Items come back with Turn zero; callers stamp the turn index on merge.
func (e *Extractor) Extract(text, ocrText, qrPayload string) []Item {
	seen := make(map[string]struct{})
	var items []Item

	add := func(kind Kind, value string) {
		if value == "" {
			return
		}
		it := Item{Kind: kind, Value: value}
		if _, dup := seen[it.Key()]; dup {
			return
		}
		seen[it.Key()] = struct{}{}
		items = append(items, it)
	}

	e.extractInto(text, add)
	if ocrText != "" {
		add(KindOCRText, strings.TrimSpace(ocrText))
		e.extractInto(ocrText, add)
	}
	if qrPayload != "" {
		e.extractQR(qrPayload, add)
	}

	return items
}

// extractInto runs the span-based pass over one body of text.
// Span priority: URLs, then payment handles, then digit runs. A later
// span that overlaps an earlier one is dropped, so a phone number inside
// an already-matched account number or URL never becomes a second item.
func (e *Extractor) extractInto(raw string, add func(Kind, string)) {
	text := norm.NFKC.String(raw)
	reg := patterns.Get()

	var claimed [][]int
	overlaps := func(span []int) bool {
		for _, c := range claimed {
			if span[0] < c[1] && c[0] < span[1] {
				return true
			}
		}
		return false
	}

	urlSpans := reg.FindAllIndex(text, patterns.CategoryURL)
	sort.Slice(urlSpans, func(i, j int) bool {
		if urlSpans[i][0] != urlSpans[j][0] {
			return urlSpans[i][0] < urlSpans[j][0]
		}
		return urlSpans[i][1] > urlSpans[j][1] // longest match first at same start
	})
	for _, span := range urlSpans {
		if overlaps(span) {
			continue
		}
		claimed = append(claimed, span)
		add(KindURL, strings.TrimRight(text[span[0]:span[1]], ".,!?"))
	}

	for _, span := range reg.FindAllIndex(text, patterns.CategoryPaymentHandle) {
		if overlaps(span) {
			continue
		}
		handle := strings.ToLower(text[span[0]:span[1]])
		if !e.validHandle(handle) {
			continue
		}
		claimed = append(claimed, span)
		add(KindPaymentHandle, handle)
	}

	for _, span := range reg.FindAllIndex(text, patterns.CategoryDigitRun) {
		if overlaps(span) {
			continue
		}
		kind, value := e.classifyDigits(text[span[0]:span[1]])
		if kind == "" {
			continue
		}
		claimed = append(claimed, span)
		add(kind, value)
	}

	lower := strings.ToLower(text)
	for _, kw := range e.keywords {
		if strings.Contains(lower, kw) {
			add(KindKeyword, kw)
		}
	}
}

// extractQR pulls the payee handle out of a UPI deep link and records the
// payload itself as a URL-kind artifact.
func (e *Extractor) extractQR(payload string, add func(Kind, string)) {
	if patterns.Get().MatchAny(payload, patterns.CategoryQRPayload) == nil {
		// Not a payment deep link; treat as ordinary text.
		e.extractInto(payload, add)
		return
	}
	add(KindURL, payload)

	if idx := strings.Index(payload, "?"); idx >= 0 {
		if vals, err := url.ParseQuery(payload[idx+1:]); err == nil {
			if pa := strings.ToLower(vals.Get("pa")); pa != "" && e.validHandle(pa) {
				add(KindPaymentHandle, pa)
			}
		}
	}
}

// validHandle checks the provider token against the known payment-app
// suffixes. A provider containing "bank" is accepted as well, matching
// how new bank VPAs appear faster than any static list updates.
func (e *Extractor) validHandle(handle string) bool {
	at := strings.LastIndex(handle, "@")
	if at <= 0 || at == len(handle)-1 {
		return false
	}
	provider := handle[at+1:]
	if strings.Contains(provider, "bank") {
		return true
	}
	for _, p := range e.providers {
		if strings.Contains(provider, p) {
			return true
		}
	}
	return false
}

// classifyDigits strips separators and applies the length bands.
// An exact phone-length match (with or without country code) wins over
// the account band; anything outside both bands is discarded.
func (e *Extractor) classifyDigits(run string) (Kind, string) {
	var b strings.Builder
	for _, r := range run {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	// Country-code forms: +91XXXXXXXXXX or 91XXXXXXXXXX.
	if len(digits) == e.phoneLength+2 && strings.HasPrefix(digits, "91") &&
		digits[2] >= '6' && digits[2] <= '9' {
		return KindPhoneNumber, digits[2:]
	}
	if len(digits) == e.phoneLength && digits[0] >= '6' && digits[0] <= '9' {
		return KindPhoneNumber, digits
	}
	if len(digits) >= e.accountMin && len(digits) <= e.accountMax {
		return KindBankAccount, digits
	}
	return "", ""
}

// Merge appends the new items not already present in existing, stamping
// them with the given turn index. It returns the combined set and the
// newly added items. Existing items are never modified.
func Merge(existing, found []Item, turn int) (merged, added []Item) {
	index := make(map[string]struct{}, len(existing))
	for _, it := range existing {
		index[it.Key()] = struct{}{}
	}

	merged = existing
	for _, it := range found {
		if _, dup := index[it.Key()]; dup {
			continue
		}
		index[it.Key()] = struct{}{}
		it.Turn = turn
		merged = append(merged, it)
		added = append(added, it)
	}
	return merged, added
}

// CountByKind tallies items per kind, useful for sufficiency checks and
// reporting.
func CountByKind(items []Item) map[Kind]int {
	counts := make(map[Kind]int)
	for _, it := range items {
		counts[it.Kind]++
	}
	return counts
}
