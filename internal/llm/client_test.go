package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func completionServer(t *testing.T, reply string, failures int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= int32(failures) {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header: %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": reply}},
			},
		})
	}))
	return srv, &calls
}

func TestComplete(t *testing.T) {
	srv, _ := completionServer(t, "hola!", 0)
	defer srv.Close()

	c := NewClient(Config{APIBase: srv.URL, APIKey: "test-key"})
	got, err := c.Complete(context.Background(), "saluda", CompleteOptions{System: "eres amable"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "hola!" {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestComplete_RetriesTransientErrors(t *testing.T) {
	srv, calls := completionServer(t, "listo", 1)
	defer srv.Close()

	c := NewClient(Config{APIBase: srv.URL, APIKey: "test-key"})
	got, err := c.Complete(context.Background(), "hola", CompleteOptions{})
	if err != nil {
		t.Fatalf("complete after retry: %v", err)
	}
	if got != "listo" {
		t.Fatalf("unexpected reply: %q", got)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestComplete_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad prompt", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Config{APIBase: srv.URL, APIKey: "test-key"})
	if _, err := c.Complete(context.Background(), "hola", CompleteOptions{}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", calls.Load())
	}
}

func TestHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{APIBase: srv.URL, APIKey: "test-key"})
	if err := c.Healthy(context.Background()); err != nil {
		t.Fatalf("healthy: %v", err)
	}
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("bad multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model field: %q", got)
		}
		if got := r.FormValue("language"); got != "es" {
			t.Errorf("language field: %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "vendo depa en providencia"})
	}))
	defer srv.Close()

	tr := NewTranscriber(TranscriberConfig{APIBase: srv.URL, APIKey: "test-key", Language: "es"})
	got, err := tr.Transcribe(context.Background(), []byte("ogg-bytes"), "nota.ogg")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got != "vendo depa en providencia" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}
