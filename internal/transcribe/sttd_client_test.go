package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func clientFor(t *testing.T, ts *httptest.Server, timeout time.Duration) *STTDClient {
	t.Helper()
	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	c := NewSTTDClient("127.0.0.1", 0, timeout)
	c.baseURL = "http://" + u.Host
	return c
}

func TestSTTDClient_Transcribe(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			http.NotFound(w, r)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "audio/wav" {
			t.Errorf("Expected audio/wav content type, got %s", ct)
		}
		json.NewEncoder(w).Encode(Result{
			Text:     "hello world",
			Language: "en",
			Segments: []Segment{{Start: 0, End: 1.5, Text: "hello world", Confidence: 0.92}},
		})
	}))
	defer ts.Close()

	result, err := clientFor(t, ts, 5*time.Second).Transcribe(context.Background(), []byte("fake audio"), "audio/wav")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if result.Text != "hello world" {
		t.Errorf("Expected text %q, got %q", "hello world", result.Text)
	}
	if len(result.Segments) != 1 || result.Segments[0].Confidence != 0.92 {
		t.Errorf("Unexpected segments: %+v", result.Segments)
	}
}

func TestSTTDClient_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := clientFor(t, ts, 5*time.Second).Transcribe(context.Background(), nil, "")
	if err == nil {
		t.Fatal("Expected error for HTTP 500")
	}
	if !strings.Contains(err.Error(), "HTTP 500") {
		t.Errorf("Expected status in error, got: %v", err)
	}
}

func TestSTTDClient_Unavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // nothing listening anymore

	_, err := clientFor(t, ts, 2*time.Second).Transcribe(context.Background(), nil, "")
	if err == nil {
		t.Fatal("Expected error for refused connection")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got: %v", err)
	}
}

func TestSTTDClient_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := clientFor(t, ts, 5*time.Second).Transcribe(ctx, nil, "")
	if err == nil {
		t.Fatal("Expected error for slow server")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got: %v", err)
	}
}

func TestSTTDClient_HealthCheck(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()

	if !clientFor(t, ts, time.Second).HealthCheck(context.Background()) {
		t.Error("Expected healthy daemon to pass the health check")
	}

	ts.Close()
	if clientFor(t, ts, time.Second).HealthCheck(context.Background()) {
		t.Error("Expected unreachable daemon to fail the health check")
	}
}
