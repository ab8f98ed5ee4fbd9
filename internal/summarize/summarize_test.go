package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/trustwire/internal/db"
)

func TestExtractiveGeneratorTakesLeadingSentences(t *testing.T) {
	t.Parallel()

	got, err := ExtractiveGenerator{}.Summarize(context.Background(), Request{
		Title: "금리 동결",
		Sources: []Source{
			{Title: "a", Text: "   "},
			{Title: "b", Text: "첫 문장이다. 둘째 문장이다. 셋째 문장이다. 넷째 문장이다."},
		},
	})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got.Title != "금리 동결" {
		t.Fatalf("title = %q", got.Title)
	}
	if strings.Contains(got.Summary, "넷째") || !strings.Contains(got.Summary, "셋째") {
		t.Fatalf("summary = %q, want first three sentences", got.Summary)
	}

	if _, err := (ExtractiveGenerator{}).Summarize(context.Background(), Request{}); err == nil {
		t.Fatalf("Summarize(empty) error = nil")
	}
}

func TestParseSummary(t *testing.T) {
	t.Parallel()

	got, err := parseSummary("```json\n{\"title\":\" 제목 \",\"summary\":\"요약\"}\n```", "fallback")
	if err != nil {
		t.Fatalf("parseSummary() error = %v", err)
	}
	if got != (Summary{Title: "제목", Summary: "요약"}) {
		t.Fatalf("parseSummary() = %+v", got)
	}

	got, err = parseSummary("그냥 텍스트 요약", "fallback")
	if err != nil {
		t.Fatalf("parseSummary(plain) error = %v", err)
	}
	if got.Title != "fallback" || got.Summary != "그냥 텍스트 요약" {
		t.Fatalf("parseSummary(plain) = %+v", got)
	}

	if _, err := parseSummary(`{"title":"x"}`, ""); err == nil {
		t.Fatalf("parseSummary(missing summary) error = nil")
	}
}

func TestChatCompletionsURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                                     "http://127.0.0.1:8845/v1/chat/completions",
		"localhost:9000":                       "http://localhost:9000/v1/chat/completions",
		"http://llm.local/v1/":                 "http://llm.local/v1/chat/completions",
		"http://llm.local/v1/chat/completions": "http://llm.local/v1/chat/completions",
	}
	for in, want := range cases {
		if got := chatCompletionsURL(normalizeEndpoint(in)); got != want {
			t.Fatalf("chatCompletionsURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLocalGeneratorSummarize(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req localChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) != 1 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if !strings.Contains(req.Messages[0].Content, "기준금리") {
			http.Error(w, "prompt missing source", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"title\":\"한은 금리 동결\",\"summary\":\"기준금리가 동결됐다.\"}"}}]}`))
	}))
	defer srv.Close()

	gen := NewLocalGenerator(srv.URL+"/v1", "", time.Second)
	got, err := gen.Summarize(context.Background(), Request{
		Title:   "원제목",
		Sources: []Source{{Title: "한은", Text: "한국은행이 기준금리를 동결했다."}},
	})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got.Title != "한은 금리 동결" || got.Summary != "기준금리가 동결됐다." {
		t.Fatalf("Summarize() = %+v", got)
	}
}

func TestLocalGeneratorErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"model loading"}}`))
	}))
	defer srv.Close()

	_, err := NewLocalGenerator(srv.URL, "m", time.Second).Summarize(context.Background(), Request{
		Sources: []Source{{Text: "본문."}},
	})
	if err == nil || !strings.Contains(err.Error(), "model loading") {
		t.Fatalf("Summarize() error = %v, want endpoint message", err)
	}
}

type stubStore struct {
	members   map[int64][]db.SummaryMember
	updates   []db.ClusterSummaryUpdate
	articles  []db.SummaryTarget
	summaries map[int64]string
}

func (s *stubStore) ListSummaryMembers(_ context.Context, _ []int64) (map[int64][]db.SummaryMember, error) {
	return s.members, nil
}

func (s *stubStore) UpdateClusterSummary(_ context.Context, u db.ClusterSummaryUpdate) error {
	s.updates = append(s.updates, u)
	return nil
}

func (s *stubStore) ListArticleSummaryTargets(_ context.Context, _ []int64) ([]db.SummaryTarget, error) {
	return s.articles, nil
}

func (s *stubStore) UpdateArticleAISummary(_ context.Context, id int64, summary string) error {
	if s.summaries == nil {
		s.summaries = make(map[int64]string)
	}
	s.summaries[id] = summary
	return nil
}

type failingGenerator struct{}

func (failingGenerator) Name() string { return "broken" }

func (failingGenerator) Summarize(context.Context, Request) (Summary, error) {
	return Summary{}, errors.New("upstream down")
}

func TestSummarizeClustersFallsBackToExtractive(t *testing.T) {
	t.Parallel()

	image := "https://img.example/1.jpg"
	store := &stubStore{members: map[int64][]db.SummaryMember{
		10: {
			{ClusterID: 10, ArticleID: 1, Title: "대표 제목", AISummary: "요약 문장이다. 두번째 문장이다."},
			{ClusterID: 10, ArticleID: 2, Title: "다른 제목", Body: "본문.", ImageURL: &image},
		},
		20: {
			{ClusterID: 20, ArticleID: 3, Title: "빈 기사"},
		},
	}}

	svc := NewService(store, failingGenerator{}, zerolog.Nop())
	result, err := svc.SummarizeClusters(context.Background(), []int64{10, 20, 30})
	if err != nil {
		t.Fatalf("SummarizeClusters() error = %v", err)
	}
	if result != (Result{Attempted: 2, Summarized: 1, Failed: 1}) {
		t.Fatalf("SummarizeClusters() = %+v", result)
	}
	if len(store.updates) != 1 {
		t.Fatalf("updates = %+v", store.updates)
	}
	update := store.updates[0]
	if update.ClusterID != 10 || update.Title != "대표 제목" || !strings.HasPrefix(update.Summary, "요약 문장이다.") {
		t.Fatalf("update = %+v", update)
	}
	if update.ImageURL == nil || *update.ImageURL != image {
		t.Fatalf("image = %v, want %q", update.ImageURL, image)
	}
}

func TestSummarizeClustersNoIDs(t *testing.T) {
	t.Parallel()

	svc := NewService(&stubStore{}, nil, zerolog.Nop())
	result, err := svc.SummarizeClusters(context.Background(), nil)
	if err != nil || result != (Result{}) {
		t.Fatalf("SummarizeClusters(nil) = %+v, %v", result, err)
	}

	var nilSvc *Service
	if _, err := nilSvc.SummarizeClusters(context.Background(), []int64{1}); err == nil {
		t.Fatalf("SummarizeClusters() on nil service error = nil")
	}
}

func TestSummarizeArticlesFillsMissingSummaries(t *testing.T) {
	t.Parallel()

	store := &stubStore{articles: []db.SummaryTarget{
		{ID: 7, Title: "기준금리 동결", Body: "한국은행이 기준금리를 동결했다. 물가 상승률이 둔화됐다. 시장은 안정적이었다. 환율은 하락했다."},
		{ID: 8, Title: "빈 본문", Body: "   "},
	}}

	svc := NewService(store, failingGenerator{}, zerolog.Nop())
	result, err := svc.SummarizeArticles(context.Background(), []int64{7, 8})
	if err != nil {
		t.Fatalf("SummarizeArticles() error = %v", err)
	}
	if result != (ArticleResult{Attempted: 2, Summarized: 1, Failed: 1}) {
		t.Fatalf("SummarizeArticles() = %+v", result)
	}
	got := store.summaries[7]
	if !strings.HasPrefix(got, "한국은행이 기준금리를 동결했다.") || strings.Contains(got, "환율") {
		t.Fatalf("summary = %q, want the leading three sentences", got)
	}
	if _, ok := store.summaries[8]; ok {
		t.Fatalf("blank body must not be summarized")
	}

	var nilSvc *Service
	if _, err := nilSvc.SummarizeArticles(context.Background(), []int64{1}); err == nil {
		t.Fatalf("SummarizeArticles() on nil service error = nil")
	}
}
