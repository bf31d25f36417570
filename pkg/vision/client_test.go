package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNilClientUnavailable(t *testing.T) {
	c := NewClient("")
	if c.Available() {
		t.Error("nil client reports available")
	}
	if _, err := c.Analyze(context.Background(), "aGk="); err == nil {
		t.Error("nil client analyze should error")
	}
}

func TestAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["image"] == "" {
			t.Errorf("bad request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Result{
			Text:      "Pay scammer@paytm today",
			QRPayload: "upi://pay?pa=scammer@paytm&am=4999",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	if !c.Available() {
		t.Fatal("configured client reports unavailable")
	}

	got, err := c.Analyze(context.Background(), "aW1hZ2U=")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got.Text == "" || got.QRPayload == "" {
		t.Errorf("result = %+v", got)
	}
}

func TestAnalyzeSidecarError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ocr backend down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Analyze(context.Background(), "aW1hZ2U="); err == nil {
		t.Error("5xx not surfaced")
	}
}
