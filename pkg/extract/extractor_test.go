package extract

import (
	"reflect"
	"testing"
)

func testExtractor() *Extractor {
	return New(Options{
		PaymentProviders: []string{"paytm", "phonepe", "googlepay", "ybl", "oksbi", "okhdfcbank", "okicici", "okaxis", "ibl", "axl", "upi"},
		Keywords:         []string{"blocked", "urgent", "otp", "kyc", "verify"},
	})
}

func TestExtractPaymentHandles(t *testing.T) {
	e := testExtractor()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "known provider",
			text: "Send the fee to scammer@paytm right away",
			want: []string{"scammer@paytm"},
		},
		{
			name: "bank suffix accepted",
			text: "Transfer to victim.fund@examplebank today",
			want: []string{"victim.fund@examplebank"},
		},
		{
			name: "unknown provider rejected",
			text: "Email me at someone@gmail for details",
			want: nil,
		},
		{
			name: "case folded",
			text: "Pay RAHUL@YBL now",
			want: []string{"rahul@ybl"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, it := range e.Extract(tt.text, "", "") {
				if it.Kind == KindPaymentHandle {
					got = append(got, it.Value)
				}
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("handles = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractPhoneNumbers(t *testing.T) {
	e := testExtractor()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "bare ten digits",
			text: "Call 9876543210 immediately",
			want: []string{"9876543210"},
		},
		{
			name: "country code stripped",
			text: "WhatsApp +91 9876543210",
			want: []string{"9876543210"},
		},
		{
			name: "separated digits",
			text: "Our helpline is 98765-43210",
			want: []string{"9876543210"},
		},
		{
			name: "invalid leading digit",
			text: "Reference 1234567890 on the form",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, it := range e.Extract(tt.text, "", "") {
				if it.Kind == KindPhoneNumber {
					got = append(got, it.Value)
				}
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("phones = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractBankAccounts(t *testing.T) {
	e := testExtractor()

	items := e.Extract("Deposit to account 123456789012345 before noon", "", "")
	var accounts []string
	for _, it := range items {
		if it.Kind == KindBankAccount {
			accounts = append(accounts, it.Value)
		}
	}
	if !reflect.DeepEqual(accounts, []string{"123456789012345"}) {
		t.Errorf("accounts = %v", accounts)
	}

	// Ten digits starting 6-9 must classify as a phone, never an account.
	items = e.Extract("Use 9876543210 as the reference", "", "")
	for _, it := range items {
		if it.Kind == KindBankAccount {
			t.Errorf("phone-length run misclassified as account: %v", it)
		}
	}
}

func TestExtractURLs(t *testing.T) {
	e := testExtractor()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "scheme url",
			text: "Click https://kyc-update.example.com/verify now!",
			want: []string{"https://kyc-update.example.com/verify"},
		},
		{
			name: "bare domain",
			text: "Visit secure-login.xyz to restore access",
			want: []string{"secure-login.xyz"},
		},
		{
			name: "trailing punctuation trimmed",
			text: "Go to http://refund.example.in.",
			want: []string{"http://refund.example.in"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, it := range e.Extract(tt.text, "", "") {
				if it.Kind == KindURL {
					got = append(got, it.Value)
				}
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("urls = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSpanOverlapPriority(t *testing.T) {
	e := testExtractor()

	// The digits inside the URL must not surface as a phone number.
	items := e.Extract("Verify at https://pay.example.com/u/9876543210 today", "", "")
	for _, it := range items {
		if it.Kind == KindPhoneNumber {
			t.Errorf("digits inside URL extracted as phone: %v", it)
		}
	}
	var urls int
	for _, it := range items {
		if it.Kind == KindURL {
			urls++
		}
	}
	if urls != 1 {
		t.Errorf("urls = %d, want 1", urls)
	}
}

func TestExtractKeywords(t *testing.T) {
	e := testExtractor()

	items := e.Extract("URGENT: your KYC is blocked, verify now", "", "")
	got := make(map[string]bool)
	for _, it := range items {
		if it.Kind == KindKeyword {
			got[it.Value] = true
		}
	}
	for _, want := range []string{"urgent", "kyc", "blocked", "verify"} {
		if !got[want] {
			t.Errorf("keyword %q not extracted", want)
		}
	}
}

func TestExtractQRPayload(t *testing.T) {
	e := testExtractor()

	items := e.Extract("", "", "upi://pay?pa=fraud@ybl&pn=Support&am=4999")
	var handle, url bool
	for _, it := range items {
		switch it.Kind {
		case KindPaymentHandle:
			if it.Value != "fraud@ybl" {
				t.Errorf("handle = %q", it.Value)
			}
			handle = true
		case KindURL:
			url = true
		}
	}
	if !handle || !url {
		t.Errorf("handle=%v url=%v, want both", handle, url)
	}
}

func TestExtractOCRText(t *testing.T) {
	e := testExtractor()

	items := e.Extract("See attached screenshot", "Pay scammer@paytm or call 9876543210", "")
	kinds := CountByKind(items)
	if kinds[KindOCRText] != 1 {
		t.Errorf("ocr items = %d, want 1", kinds[KindOCRText])
	}
	if kinds[KindPaymentHandle] != 1 {
		t.Errorf("handles from OCR = %d, want 1", kinds[KindPaymentHandle])
	}
	if kinds[KindPhoneNumber] != 1 {
		t.Errorf("phones from OCR = %d, want 1", kinds[KindPhoneNumber])
	}
}

func TestExtractIdempotent(t *testing.T) {
	e := testExtractor()
	text := "URGENT: pay scammer@paytm or call +91 9876543210, see https://kyc.example.in"

	first := e.Extract(text, "", "")
	second := e.Extract(text, "", "")
	if !reflect.DeepEqual(first, second) {
		t.Errorf("extraction not deterministic:\nfirst  %v\nsecond %v", first, second)
	}
}

func TestMerge(t *testing.T) {
	existing := []Item{{Kind: KindPaymentHandle, Value: "scammer@paytm", Turn: 1}}
	found := []Item{
		{Kind: KindPaymentHandle, Value: "scammer@paytm"},
		{Kind: KindPhoneNumber, Value: "9876543210"},
	}

	merged, added := Merge(existing, found, 3)
	if len(merged) != 2 {
		t.Fatalf("merged = %d items, want 2", len(merged))
	}
	if len(added) != 1 {
		t.Fatalf("added = %d items, want 1", len(added))
	}
	if added[0].Turn != 3 {
		t.Errorf("added turn = %d, want 3", added[0].Turn)
	}
	if merged[0].Turn != 1 {
		t.Errorf("existing turn mutated to %d", merged[0].Turn)
	}

	// Merging the same findings again adds nothing.
	merged2, added2 := Merge(merged, found, 4)
	if len(merged2) != 2 || len(added2) != 0 {
		t.Errorf("re-merge changed the set: merged=%d added=%d", len(merged2), len(added2))
	}
}
