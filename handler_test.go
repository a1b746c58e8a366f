package afetch

import (
	"bytes"
	"io"
	"net/http"
	"testing"
)

func textResponse(body []byte, contentType string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {contentType}},
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}

func TestDecodeResponseText(t *testing.T) {
	out, err := decodeResponse(textResponse([]byte("héllo"), "text/plain; charset=utf-8"), ResponseTypeText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "héllo" {
		t.Errorf("Text = %q, want héllo", out.Text)
	}
	if out.Type != ResponseTypeText {
		t.Errorf("Type = %q", out.Type)
	}
}

func TestDecodeResponseDeclaredCharset(t *testing.T) {
	// 0xE9 is é in Latin-1.
	out, err := decodeResponse(textResponse([]byte{0xE9}, "text/plain; charset=iso-8859-1"), ResponseTypeText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "é" {
		t.Errorf("Text = %q, want é", out.Text)
	}
}

func TestDecodeResponseJSON(t *testing.T) {
	out, err := decodeResponse(textResponse([]byte(`{"a":1,"b":"x"}`), "application/json"), ResponseTypeJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := out.JSON.(map[string]any)
	if !ok {
		t.Fatalf("JSON type = %T, want map", out.JSON)
	}
	if m["a"] != float64(1) || m["b"] != "x" {
		t.Errorf("JSON = %v", m)
	}

	if _, err := decodeResponse(textResponse([]byte("not json"), "application/json"), ResponseTypeJSON); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestDecodeResponseBytes(t *testing.T) {
	raw := []byte{0x00, 0x01, 0xFF}
	out, err := decodeResponse(textResponse(raw, "application/octet-stream"), ResponseTypeBytes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out.Bytes, raw) {
		t.Errorf("Bytes = %v, want %v", out.Bytes, raw)
	}
}

func TestDecodeResponseRawLeavesBodyUnconsumed(t *testing.T) {
	resp := textResponse([]byte("stream me"), "text/plain")
	out, err := decodeResponse(resp, ResponseTypeRaw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Raw != resp {
		t.Fatal("Raw should be the original response")
	}
	body, err := io.ReadAll(out.Raw.Body)
	if err != nil {
		t.Fatalf("reading raw body: %v", err)
	}
	if string(body) != "stream me" {
		t.Errorf("body = %q, want unconsumed content", body)
	}
}

func TestEntryResponseRoundTrip(t *testing.T) {
	resp := textResponse([]byte("payload"), "text/plain")

	entry, err := entryFromResponse(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The original response must stay readable after the snapshot.
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "payload" {
		t.Errorf("original body = %q after snapshot", body)
	}

	rebuilt := responseFromEntry(entry)
	out, err := decodeResponse(rebuilt, ResponseTypeText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "payload" {
		t.Errorf("rebuilt body = %q, want payload", out.Text)
	}
	if out.Header.Get("Content-Type") != "text/plain" {
		t.Errorf("rebuilt Content-Type = %q", out.Header.Get("Content-Type"))
	}
}
