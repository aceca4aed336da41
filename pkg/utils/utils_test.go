package utils

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestResolveUserID(t *testing.T) {
	if got := ResolveUserID(" u1 ", "hi"); got != "u1" {
		t.Fatalf("expected u1, got %s", got)
	}

	a := ResolveUserID("", "I want pizza")
	b := ResolveUserID("", "I want pizza")
	c := ResolveUserID("", "I want a taxi")
	if a != b {
		t.Fatalf("expected stable id, got %s and %s", a, b)
	}
	if a == c {
		t.Fatalf("expected different ids for different messages")
	}
	if !strings.HasPrefix(a, "anon-") {
		t.Fatalf("expected anon- prefix, got %s", a)
	}
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusBadRequest, "bad")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"error":"bad"}` {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestSendSSEEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := SendSSEEvent(rec, rec, "message", map[string]string{"reply": "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := rec.Body.String(); got != "event: message\ndata: {\"reply\":\"hi\"}\n\n" {
		t.Fatalf("unexpected frame %q", got)
	}
	if !rec.Flushed {
		t.Fatalf("expected flush")
	}
}

func TestDecodeJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"a":"b"}`))
	var out map[string]string
	if err := DecodeJSON(httptest.NewRecorder(), req, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["a"] != "b" {
		t.Fatalf("unexpected %v", out)
	}
}
