package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestHTTPProviderTextsShape(t *testing.T) {
	t.Parallel()

	var got embedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"embeddings": [[0.1, 0.2, 0.3]]}`))
	}))
	defer server.Close()

	values, err := NewHTTPProvider(server.URL, "", time.Second).Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(values) != 3 || values[2] != 0.3 {
		t.Fatalf("unexpected vector %v", values)
	}
	if len(got.Texts) != 1 || got.Texts[0] != "hello" || got.MaxLength != DefaultHTTPMaxLength {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestHTTPProviderOpenAIShape(t *testing.T) {
	t.Parallel()

	var got embedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"data": [{"index": 0, "embedding": [1, 0]}]}`))
	}))
	defer server.Close()

	values, err := NewHTTPProvider(server.URL+"/v1/embeddings", "bge-m3", time.Second).Embed(context.Background(), "안녕")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(values) != 2 || values[0] != 1 {
		t.Fatalf("unexpected vector %v", values)
	}
	if len(got.Input) != 1 || got.Model != "bge-m3" || len(got.Texts) != 0 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestHTTPProviderFailures(t *testing.T) {
	t.Parallel()

	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		},
		"empty": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"embeddings": []}`))
		},
		"garbage": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		},
	}
	for name, handler := range cases {
		server := httptest.NewServer(handler)
		_, err := NewHTTPProvider(server.URL, "", time.Second).Embed(context.Background(), "x")
		server.Close()
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if name == "empty" && !errors.Is(err, ErrEmptyEmbedding) {
			t.Fatalf("empty: expected ErrEmptyEmbedding, got %v", err)
		}
	}

	if _, err := NewHTTPProvider("http://127.0.0.1:1", "", time.Second).Embed(context.Background(), "  "); err == nil {
		t.Fatalf("expected blank text to be rejected")
	}
}

func TestInput(t *testing.T) {
	t.Parallel()

	if got := Input(" 제목 ", "", "요약"); got != "제목\n\n요약" {
		t.Fatalf("expected summary fallback, got %q", got)
	}
	if got := Input("제목", "본문", "요약"); got != "제목\n\n본문" {
		t.Fatalf("unexpected input %q", got)
	}
	if Input("", "", "") != "" {
		t.Fatalf("expected empty input")
	}
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	raw, ok := m.data[key]
	return raw, ok, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

type countingProvider struct {
	calls int
}

func (c *countingProvider) Name() string { return "counting" }

func (c *countingProvider) Embed(_ context.Context, text string) ([]float64, error) {
	c.calls++
	return []float64{float64(len(text)), 1}, nil
}

func TestCachedProviderMemoizes(t *testing.T) {
	t.Parallel()

	inner := &countingProvider{}
	store := &memoryStore{data: map[string][]byte{}}
	cached := NewCachedProvider(inner, store, time.Hour, "m", zerolog.Nop())

	for range 3 {
		values, err := cached.Embed(context.Background(), "same text")
		if err != nil {
			t.Fatalf("embed: %v", err)
		}
		if values[0] != 9 {
			t.Fatalf("unexpected vector %v", values)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", inner.calls)
	}
	if cached.Name() != "counting" {
		t.Fatalf("expected inner provider name")
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	registry := NewRegistry("")
	if _, err := registry.Provider(""); err == nil {
		t.Fatalf("expected error from empty registry")
	}

	builds := 0
	if err := registry.Register("HTTP", func() (Provider, error) {
		builds++
		return NewHTTPProvider("", "", 0), nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register("openai", func() (Provider, error) {
		return nil, errors.New("OPENAI_API_KEY is required")
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register("counting", nil); err == nil {
		t.Fatalf("expected nil factory error")
	}

	for range 2 {
		provider, err := registry.Provider("")
		if err != nil || provider.Name() != "http" {
			t.Fatalf("expected default http provider, got %v %v", provider, err)
		}
	}
	if builds != 1 {
		t.Fatalf("expected one build, got %d", builds)
	}
	if _, err := registry.Provider("openai"); err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("expected factory error, got %v", err)
	}
	if _, err := registry.Provider("cohere"); err == nil {
		t.Fatalf("expected unknown provider error")
	}
	if names := registry.ProviderNames(); len(names) != 2 || names[0] != "http" {
		t.Fatalf("unexpected names %v", names)
	}
}
