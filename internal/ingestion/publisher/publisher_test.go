package publisher

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/umbusk1/bibliofep/internal/ingestion"
	apperrors "github.com/umbusk1/bibliofep/pkg/errors"
	"github.com/umbusk1/bibliofep/pkg/kafka"
	"github.com/umbusk1/bibliofep/pkg/metrics"
	"github.com/umbusk1/bibliofep/pkg/postgres/pgtest"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

type countingCache struct{ calls int }

func (c *countingCache) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func ptr(f float64) *float64 { return &f }

func sampleExport() *ingestion.Export {
	return &ingestion.Export{
		ChatbotName:  "Bibliobot",
		StartDateStr: "2025-02-01",
		EndDateStr:   "2025-02-28",
		Conversations: []ingestion.Conversation{
			{
				ID:        "conv-1",
				CreatedAt: "2025-02-03T14:00:00Z",
				Title:     "Independencia",
				Country:   "VE",
				Messages: []ingestion.Message{
					{Role: "assistant", Content: "Hola, ¿en qué puedo ayudarte?"},
					{ID: "m1", Role: "user", Content: "¿Quién firmó el acta?", CreatedAt: "2025-02-03T14:00:05Z"},
					{ID: "m2", Role: "assistant", Content: "...", Score: ptr(0.8), StepID: "s1"},
				},
			},
			{
				ID:        "conv-2",
				CreatedAt: "2025-02-10T09:30:00Z",
				Messages: []ingestion.Message{
					{ID: "m3", Role: "user", Content: "Batalla de Carabobo", Score: ptr(0)},
				},
			},
		},
	}
}

func TestIngestWritesExport(t *testing.T) {
	db := pgtest.Open(t)
	pub := &recordingPublisher{err: errors.New("broker down")}
	cache := &countingCache{}
	m := metrics.New(prometheus.NewRegistry())
	p := New(db, pub, cache, m)
	ctx := context.Background()

	res, err := p.Ingest(ctx, sampleExport())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	want := &ingestion.UploadResult{
		ConversationsProcessed: 2,
		MessagesProcessed:      3,
		Filename:               "2025-02-01_2025-02-28.json",
		Period:                 "2025-02-01 a 2025-02-28",
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	var country string
	var month, year, count int
	if err := db.DB.QueryRowContext(ctx,
		`SELECT country, month, year, message_count FROM conversations WHERE id = 'conv-2'`,
	).Scan(&country, &month, &year, &count); err != nil {
		t.Fatal(err)
	}
	if country != "Unknown" || month != 2 || year != 2025 || count != 1 {
		t.Errorf("conv-2 stored as country=%s month=%d year=%d count=%d", country, month, year, count)
	}

	var scoreNull bool
	if err := db.DB.QueryRowContext(ctx, `SELECT score IS NULL FROM messages WHERE id = 'm3'`).Scan(&scoreNull); err != nil {
		t.Fatal(err)
	}
	if !scoreNull {
		t.Error("a zero score should be stored as NULL")
	}

	if cache.calls != 1 {
		t.Errorf("cache invalidated %d times, want 1", cache.calls)
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	ev := pub.events[0].Value.(ingestion.ConversationsIngested)
	if diff := cmp.Diff([]string{"conv-1", "conv-2"}, ev.ConversationIDs); diff != "" {
		t.Errorf("event ids mismatch (-want +got):\n%s", diff)
	}
	if got := testutil.ToFloat64(m.UploadsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok uploads = %v", got)
	}
}

func TestIngestRejectsDuplicateFile(t *testing.T) {
	db := pgtest.Open(t)
	p := New(db, nil, nil, nil)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, sampleExport()); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	_, err := p.Ingest(ctx, sampleExport())
	if !errors.Is(err, apperrors.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
	if apperrors.HTTPStatusCode(err) != http.StatusConflict {
		t.Errorf("status = %d", apperrors.HTTPStatusCode(err))
	}
	if got := apperrors.Fields(err)["filename"]; got != "2025-02-01_2025-02-28.json" {
		t.Errorf("filename field = %v", got)
	}
}
