package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newFakeOpenAI(t *testing.T, content string, calls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if msgs, ok := req["messages"].([]interface{}); !ok || len(msgs) != 2 {
			t.Errorf("Expected system and user messages, got %v", req["messages"])
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]interface{}{"role": "assistant", "content": content},
			}},
			"usage": map[string]interface{}{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  "test-embed",
			"data": []map[string]interface{}{{
				"object":    "embedding",
				"index":     0,
				"embedding": []float32{0.1, 0.2, 0.3},
			}},
			"usage": map[string]interface{}{"prompt_tokens": 3, "total_tokens": 3},
		})
	})
	return httptest.NewServer(mux)
}

func TestLLMAdapter_Generate(t *testing.T) {
	var calls int32
	srv := newFakeOpenAI(t, `{"intent":"Q_AND_A","data":{"responseText":"hi"}}`, &calls)
	defer srv.Close()

	a := NewLLMAdapter(srv.URL+"/v1", "", "test-model", true)
	out, err := a.Generate(context.Background(), "instruction", "context")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out != `{"intent":"Q_AND_A","data":{"responseText":"hi"}}` {
		t.Errorf("Unexpected content: %s", out)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected exactly one call, got %d", calls)
	}
}

func TestLLMAdapter_NoRetryOnFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewLLMAdapter(srv.URL+"/v1", "", "test-model", false)
	if _, err := a.Generate(context.Background(), "instruction", "context"); err == nil {
		t.Fatal("Expected error from failing endpoint")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected a single attempt, got %d", calls)
	}
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var calls int32
	srv := newFakeOpenAI(t, "", &calls)
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL+"/v1", "", "test-embed")
	vec, err := e.Embed(context.Background(), "My dog's name is Rex")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("Expected 3 dimensions, got %d", len(vec))
	}
}

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return []float32{float32(len(text)), 1}, nil
}

func TestCachedEmbedder_ServesRepeats(t *testing.T) {
	inner := &countingEmbedder{}
	cached, err := NewCachedEmbedder(inner, 100)
	if err != nil {
		t.Fatalf("NewCachedEmbedder failed: %v", err)
	}
	defer cached.Close()

	ctx := context.Background()
	first, err := cached.Embed(ctx, "Rex")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	cached.Wait()

	second, err := cached.Embed(ctx, "Rex")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("Expected one inner call, got %d", inner.calls)
	}
	if first[0] != second[0] {
		t.Errorf("Cached vector differs: %v vs %v", first, second)
	}
}

func TestBreaker_TripsAfterFailures(t *testing.T) {
	b := NewBreakerWithConfig("test", BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      2,
	})
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		if err := b.Do(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("Expected underlying error, got %v", err)
		}
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Open breaker must not invoke the call")
	}
}

func TestBreaker_CancellationIsNotFailure(t *testing.T) {
	b := NewBreakerWithConfig("test", BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 0.5, MinRequests: 1})
	for i := 0; i < 3; i++ {
		_ = b.Do(func() error { return context.Canceled })
	}
	if b.State() != "closed" {
		t.Errorf("Expected closed breaker, got %s", b.State())
	}
}
