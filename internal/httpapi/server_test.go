package httpapi

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
	"horse.fit/trustwire/internal/pipeline"
)

type fakeStore struct {
	pingErr   error
	clusters  map[int64]db.ClusterRecord
	members   map[int64][]db.ClusterMember
	evidence  map[int64][]db.EvidenceRecord
	listCalls []db.ClusterListOptions
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) ListClusters(_ context.Context, opts db.ClusterListOptions) ([]db.ClusterRecord, int64, error) {
	s.listCalls = append(s.listCalls, opts)
	out := make([]db.ClusterRecord, 0, len(s.clusters))
	for _, record := range s.clusters {
		out = append(out, record)
	}
	return out, int64(len(out)), nil
}

func (s *fakeStore) GetCluster(_ context.Context, id int64) (db.ClusterRecord, error) {
	record, ok := s.clusters[id]
	if !ok {
		return db.ClusterRecord{}, db.ErrNoRows
	}
	return record, nil
}

func (s *fakeStore) ListClusterMembers(_ context.Context, id int64) ([]db.ClusterMember, error) {
	return s.members[id], nil
}

func (s *fakeStore) ListArticleEvidence(_ context.Context, id int64) ([]db.EvidenceRecord, error) {
	return s.evidence[id], nil
}

func (s *fakeStore) ArticleExists(_ context.Context, id int64) (bool, error) {
	_, ok := s.evidence[id]
	return ok, nil
}

type fakeRunner struct {
	newIDs      []int64
	pending     int
	category    string
	window      time.Duration
	keywordSize int
	err         error
}

func (r *fakeRunner) RunNew(_ context.Context, ids []int64) (pipeline.RunReport, error) {
	r.newIDs = ids
	return pipeline.RunReport{RunID: "run-1", Mode: pipeline.ModeNew, Input: len(ids)}, r.err
}

func (r *fakeRunner) RunPending(_ context.Context, limit int) (pipeline.RunReport, error) {
	r.pending = limit
	return pipeline.RunReport{RunID: "run-2", Mode: pipeline.ModePending}, r.err
}

func (r *fakeRunner) RunCategory(_ context.Context, category string, window time.Duration, _ int) (pipeline.RunReport, error) {
	r.category = category
	r.window = window
	return pipeline.RunReport{RunID: "run-3", Mode: "category:" + category}, r.err
}

func (r *fakeRunner) ClusterByKeywords(_ context.Context, limit int) (pipeline.KeywordResult, error) {
	r.keywordSize = limit
	return pipeline.KeywordResult{Scanned: 3, Assigned: 2, Skipped: 1}, r.err
}

type envelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

func doRequest(t *testing.T, s *Server, method, target, body string) (int, envelope) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, env
}

func newTestServer(store *fakeStore, runner *fakeRunner) *Server {
	return NewServer(store, runner, zerolog.Nop(), Options{})
}

func TestHealth(t *testing.T) {
	t.Parallel()

	code, env := doRequest(t, newTestServer(&fakeStore{}, &fakeRunner{}), http.MethodGet, "/api/v1/health", "")
	if code != http.StatusOK || env.Status != "success" {
		t.Fatalf("health = %d %+v", code, env)
	}

	code, env = doRequest(t, newTestServer(&fakeStore{pingErr: errors.New("down")}, &fakeRunner{}), http.MethodGet, "/api/v1/health", "")
	if code != http.StatusInternalServerError || env.Status != "error" {
		t.Fatalf("health with db down = %d %+v", code, env)
	}
}

func TestClustersListAndDetail(t *testing.T) {
	t.Parallel()

	title := "한은 금리 동결"
	score := 85
	store := &fakeStore{
		clusters: map[int64]db.ClusterRecord{
			7: {ID: 7, Key: "abc", Category: "economy", Title: &title, QualityScore: &score, RiskFlags: `["NO_EVIDENCE"]`, MemberCount: 2},
		},
		members: map[int64][]db.ClusterMember{
			7: {{ArticleID: 1, Provider: "yna", Title: "a", RiskFlags: "[]"}, {ArticleID: 2, Provider: "kbs", Title: "b", RiskFlags: ""}},
		},
	}
	s := newTestServer(store, &fakeRunner{})

	code, env := doRequest(t, s, http.MethodGet, "/api/v1/clusters?category=Economy&page=2&page_size=10", "")
	if code != http.StatusOK {
		t.Fatalf("list = %d %+v", code, env)
	}
	if len(store.listCalls) != 1 || store.listCalls[0] != (db.ClusterListOptions{Category: "economy", Limit: 10, Offset: 10}) {
		t.Fatalf("list options = %+v", store.listCalls)
	}

	code, env = doRequest(t, s, http.MethodGet, "/api/v1/clusters/7", "")
	if code != http.StatusOK {
		t.Fatalf("detail = %d %+v", code, env)
	}
	var detail struct {
		Cluster struct {
			ID        int64    `json:"id"`
			RiskFlags []string `json:"risk_flags"`
		} `json:"cluster"`
		Members []struct {
			ArticleID int64    `json:"article_id"`
			RiskFlags []string `json:"risk_flags"`
		} `json:"members"`
	}
	if err := json.Unmarshal(env.Data, &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Cluster.ID != 7 || len(detail.Cluster.RiskFlags) != 1 || detail.Cluster.RiskFlags[0] != "NO_EVIDENCE" {
		t.Fatalf("cluster = %+v", detail.Cluster)
	}
	if len(detail.Members) != 2 || detail.Members[1].RiskFlags == nil {
		t.Fatalf("members = %+v", detail.Members)
	}

	code, env = doRequest(t, s, http.MethodGet, "/api/v1/clusters/99", "")
	if code != http.StatusNotFound || env.Status != "fail" {
		t.Fatalf("missing cluster = %d %+v", code, env)
	}

	code, _ = doRequest(t, s, http.MethodGet, "/api/v1/clusters/abc", "")
	if code != http.StatusBadRequest {
		t.Fatalf("bad id = %d", code)
	}

	code, _ = doRequest(t, s, http.MethodGet, "/api/v1/clusters?page_size=500", "")
	if code != http.StatusBadRequest {
		t.Fatalf("oversized page = %d", code)
	}
}

func TestArticleEvidence(t *testing.T) {
	t.Parallel()

	text := "근거"
	store := &fakeStore{evidence: map[int64][]db.EvidenceRecord{
		5: {{SentIdx: 0, SummarySent: "요약", EvidenceText: &text, Score: 1, Verdict: "ENTAILED"}},
	}}
	s := newTestServer(store, &fakeRunner{})

	code, env := doRequest(t, s, http.MethodGet, "/api/v1/articles/5/evidence", "")
	if code != http.StatusOK || !strings.Contains(string(env.Data), "ENTAILED") {
		t.Fatalf("evidence = %d %s", code, env.Data)
	}

	code, _ = doRequest(t, s, http.MethodGet, "/api/v1/articles/6/evidence", "")
	if code != http.StatusNotFound {
		t.Fatalf("unknown article = %d", code)
	}
}

func TestAdminTriggers(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	s := newTestServer(&fakeStore{}, runner)

	code, env := doRequest(t, s, http.MethodPost, "/api/v1/admin/pipeline/run", `{"ids":[3,1,3,-2]}`)
	if code != http.StatusOK || env.Status != "success" {
		t.Fatalf("run = %d %+v", code, env)
	}
	if len(runner.newIDs) != 2 || runner.newIDs[0] != 3 || runner.newIDs[1] != 1 {
		t.Fatalf("run ids = %v", runner.newIDs)
	}

	code, _ = doRequest(t, s, http.MethodPost, "/api/v1/admin/pipeline/run", `{"ids":[]}`)
	if code != http.StatusBadRequest {
		t.Fatalf("empty run = %d", code)
	}

	code, _ = doRequest(t, s, http.MethodPost, "/api/v1/admin/pipeline/pending?limit=25", "")
	if code != http.StatusOK || runner.pending != 25 {
		t.Fatalf("pending = %d limit=%d", code, runner.pending)
	}

	code, _ = doRequest(t, s, http.MethodPost, "/api/v1/admin/pipeline/category/Sports?hours=6", "")
	if code != http.StatusOK || runner.category != "sports" || runner.window != 6*time.Hour {
		t.Fatalf("category = %d %q %s", code, runner.category, runner.window)
	}

	code, env = doRequest(t, s, http.MethodPost, "/api/v1/admin/cluster/keywords?limit=40", "")
	if code != http.StatusOK || runner.keywordSize != 40 || !strings.Contains(string(env.Data), `"assigned":2`) {
		t.Fatalf("keywords = %d %s", code, env.Data)
	}
}

func TestAdminRunFailure(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeStore{}, &fakeRunner{err: db.ErrClusterNotResolved})
	code, env := doRequest(t, s, http.MethodPost, "/api/v1/admin/pipeline/pending", "")
	if code != http.StatusInternalServerError || env.Status != "error" {
		t.Fatalf("failed run = %d %+v", code, env)
	}
}

func TestUnknownRouteUsesJSend(t *testing.T) {
	t.Parallel()

	code, env := doRequest(t, newTestServer(&fakeStore{}, &fakeRunner{}), http.MethodGet, "/api/v1/nope", "")
	if code != http.StatusNotFound || env.Status != "fail" {
		t.Fatalf("unknown route = %d %+v", code, env)
	}
	if env.RequestID == "" {
		t.Fatalf("expected request id on failure envelope, got %+v", env)
	}
}
