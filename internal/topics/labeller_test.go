package topics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/umbusk1/bibliofep/internal/topics/llm"
	"github.com/umbusk1/bibliofep/pkg/config"
	apperrors "github.com/umbusk1/bibliofep/pkg/errors"
	"github.com/umbusk1/bibliofep/pkg/metrics"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, whose view worker starts at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeRepo struct {
	mu     sync.Mutex
	convs  []Conversation
	saved  []Assignment
	gotIDs []string
}

func (r *fakeRepo) UserMessages(_ context.Context, ids []string) ([]Conversation, error) {
	r.gotIDs = ids
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []Conversation
	for _, c := range r.convs {
		if want[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeRepo) Save(_ context.Context, a []Assignment) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, a...)
	return len(a), nil
}

// scriptedModel answers every prompt with reply(prompt).
type scriptedModel struct {
	calls atomic.Int32
	reply func(prompt string) (string, error)
}

func (m *scriptedModel) Name() string { return "fake" }

func (m *scriptedModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.reply(prompt)
}

type countingCache struct{ calls atomic.Int32 }

func (c *countingCache) Invalidate(context.Context) error {
	c.calls.Add(1)
	return nil
}

func testConfig() config.LabellerConfig {
	return config.LabellerConfig{
		BatchSize:        2,
		Concurrency:      2,
		MaxAttempts:      3,
		InitialBackoff:   time.Millisecond,
		FailureThreshold: 10,
		ResetTimeout:     time.Second,
	}
}

func threeConversations() []Conversation {
	return []Conversation{
		{ID: "c1", Title: "Independencia", Messages: []string{"acta"}},
		{ID: "c2", Title: "Carabobo", Messages: []string{"batalla"}},
		{ID: "c3", Title: "Bolívar", Messages: []string{"libertador"}},
	}
}

func TestAnalyzeBatchesAndAssigns(t *testing.T) {
	repo := &fakeRepo{convs: threeConversations()}
	model := &scriptedModel{reply: func(prompt string) (string, error) {
		if strings.Contains(prompt, "[c3]") {
			return `{"topics":[{"name":"Simón Bolívar","category":"personajes","relevance":0.9}]}`, nil
		}
		return "Resultado:\n" + `{"topics":[
			{"name":"Independencia","category":"eventos","relevance":0.8,"conversation_ids":["c1","zz"]},
			{"name":"simón bolívar","category":"personajes"}
		]}`, nil
	}}
	cache := &countingCache{}
	m := metrics.New(prometheus.NewRegistry())
	l := NewLabeller(repo, model, cache, testConfig(), time.Second, m)

	res, err := l.Analyze(context.Background(), []string{"c1", "c2", "c1", "", "c3"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if diff := cmp.Diff([]string{"c1", "c2", "c3"}, repo.gotIDs); diff != "" {
		t.Errorf("ids not deduplicated (-want +got):\n%s", diff)
	}
	if model.calls.Load() != 2 {
		t.Errorf("model called %d times, want 2 batches", model.calls.Load())
	}
	if !res.Success || res.TopicsAnalyzed != 2 || res.TopicsSaved != 4 {
		t.Errorf("unexpected result %+v", res)
	}

	got := make([]string, 0, len(repo.saved))
	for _, a := range repo.saved {
		got = append(got, a.ConversationID+":"+a.Name)
	}
	sort.Strings(got)
	want := []string{"c1:Independencia", "c1:simón bolívar", "c2:simón bolívar", "c3:Simón Bolívar"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("assignments (-want +got):\n%s", diff)
	}
	if cache.calls.Load() != 1 {
		t.Errorf("cache invalidated %d times", cache.calls.Load())
	}
	if testutil.ToFloat64(m.TopicsSavedTotal) != 4 {
		t.Errorf("topics saved metric = %v", testutil.ToFloat64(m.TopicsSavedTotal))
	}
	if testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("fake", "ok")) != 2 {
		t.Error("llm request metric not recorded")
	}
}

func TestAnalyzeNoMessages(t *testing.T) {
	l := NewLabeller(&fakeRepo{}, &scriptedModel{}, nil, testConfig(), 0, nil)
	_, err := l.Analyze(context.Background(), []string{"missing"})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if apperrors.HTTPStatusCode(err) != http.StatusNotFound {
		t.Errorf("status = %d", apperrors.HTTPStatusCode(err))
	}
}

func TestAnalyzeRetriesTransientFailures(t *testing.T) {
	repo := &fakeRepo{convs: threeConversations()[:1]}
	var n atomic.Int32
	model := &scriptedModel{reply: func(string) (string, error) {
		if n.Add(1) < 3 {
			return "", &llm.ErrStatus{Provider: "fake", Code: 529, Message: "overloaded"}
		}
		return `{"topics":[{"name":"Acta","category":"eventos","relevance":0.7}]}`, nil
	}}
	l := NewLabeller(repo, model, nil, testConfig(), time.Second, nil)

	res, err := l.Analyze(context.Background(), []string{"c1"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if model.calls.Load() != 3 || res.TopicsSaved != 1 {
		t.Errorf("calls=%d result=%+v", model.calls.Load(), res)
	}
}

func TestAnalyzeDoesNotRetryClientErrors(t *testing.T) {
	repo := &fakeRepo{convs: threeConversations()[:1]}
	model := &scriptedModel{reply: func(string) (string, error) {
		return "", &llm.ErrStatus{Provider: "fake", Code: 400, Message: "bad request"}
	}}
	l := NewLabeller(repo, model, nil, testConfig(), time.Second, nil)

	_, err := l.Analyze(context.Background(), []string{"c1"})
	if !errors.Is(err, apperrors.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if model.calls.Load() != 1 {
		t.Errorf("model called %d times, want 1", model.calls.Load())
	}
}

func TestAnalyzeKeepsSucceededBatches(t *testing.T) {
	repo := &fakeRepo{convs: threeConversations()}
	model := &scriptedModel{reply: func(prompt string) (string, error) {
		if strings.Contains(prompt, "[c3]") {
			return "", &llm.ErrStatus{Provider: "fake", Code: 400, Message: "bad request"}
		}
		return `{"topics":[{"name":"Independencia","category":"eventos","relevance":0.8}]}`, nil
	}}
	cache := &countingCache{}
	cfg := testConfig()
	cfg.Concurrency = 1
	l := NewLabeller(repo, model, cache, cfg, time.Second, nil)

	res, err := l.Analyze(context.Background(), []string{"c1", "c2", "c3"})
	if !errors.Is(err, apperrors.ErrUpstream) || res != nil {
		t.Fatalf("expected upstream failure, got res=%+v err=%v", res, err)
	}
	if !strings.Contains(err.Error(), "batch 2 of 2") {
		t.Errorf("error does not name the failed batch: %v", err)
	}

	got := make([]string, 0, len(repo.saved))
	for _, a := range repo.saved {
		got = append(got, a.ConversationID+":"+a.Name)
	}
	sort.Strings(got)
	if diff := cmp.Diff([]string{"c1:Independencia", "c2:Independencia"}, got); diff != "" {
		t.Errorf("saved assignments (-want +got):\n%s", diff)
	}
	if cache.calls.Load() != 1 {
		t.Errorf("cache invalidated %d times, want 1", cache.calls.Load())
	}
}

func TestAnalyzeBadModelOutput(t *testing.T) {
	repo := &fakeRepo{convs: threeConversations()[:1]}
	model := &scriptedModel{reply: func(string) (string, error) { return "lo siento", nil }}
	l := NewLabeller(repo, model, nil, testConfig(), time.Second, nil)

	_, err := l.Analyze(context.Background(), []string{"c1"})
	if !errors.Is(err, apperrors.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if apperrors.HTTPStatusCode(err) != http.StatusBadGateway {
		t.Errorf("status = %d", apperrors.HTTPStatusCode(err))
	}
}

func TestAnalyzeBreakerOpens(t *testing.T) {
	repo := &fakeRepo{convs: threeConversations()[:1]}
	model := &scriptedModel{reply: func(string) (string, error) { return "", fmt.Errorf("connection reset") }}
	cfg := testConfig()
	cfg.MaxAttempts = 1
	cfg.FailureThreshold = 2
	cfg.ResetTimeout = time.Hour
	m := metrics.New(prometheus.NewRegistry())
	l := NewLabeller(repo, model, nil, cfg, time.Second, m)

	for i := 0; i < 2; i++ {
		if _, err := l.Analyze(context.Background(), []string{"c1"}); err == nil {
			t.Fatal("expected failure")
		}
	}
	_, err := l.Analyze(context.Background(), []string{"c1"})
	if err == nil || !strings.Contains(err.Error(), "circuit breaker is open") {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if model.calls.Load() != 2 {
		t.Errorf("model called %d times, want 2", model.calls.Load())
	}
	if got := testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("llm-fake")); got != 1 {
		t.Errorf("breaker state gauge = %v, want 1 (open)", got)
	}
}
