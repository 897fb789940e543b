package watcher

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/umbusk1/bibliofep/internal/ingestion"
	apperrors "github.com/umbusk1/bibliofep/pkg/errors"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeIngester struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (f *fakeIngester) Ingest(_ context.Context, e *ingestion.Export) (*ingestion.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := e.Filename()
	if f.seen[name] {
		return nil, apperrors.New(apperrors.ErrAlreadyProcessed, http.StatusConflict, "already processed")
	}
	f.seen[name] = true
	return &ingestion.UploadResult{Filename: name, ConversationsProcessed: len(e.Conversations)}, nil
}

const export = `{"startDateStr":"2025-04-01","endDateStr":"2025-04-30","conversations":[{"id":"c1","created_at":"2025-04-02T08:00:00Z"}]}`

func TestWatcherIngestsDroppedFiles(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, 50*time.Millisecond, &fakeIngester{seen: map[string]bool{}})
	outcomes := make(chan Outcome, 4)
	w.OnOutcome = func(o Outcome) { outcomes <- o }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "april.json"), []byte(export), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case o := <-outcomes:
		if o.Err != nil {
			t.Fatalf("unexpected error: %v", o.Err)
		}
		if filepath.Base(o.Path) != "april.json" || o.Result.ConversationsProcessed != 1 {
			t.Errorf("unexpected outcome %+v", o)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ingest")
	}

	if err := os.WriteFile(filepath.Join(dir, "april-copy.json"), []byte(export), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case o := <-outcomes:
		if !errors.Is(o.Err, apperrors.ErrAlreadyProcessed) {
			t.Errorf("expected duplicate, got %v", o.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for duplicate outcome")
	}
}

func TestIngestFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"conversations":{}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := IngestFile(context.Background(), &fakeIngester{seen: map[string]bool{}}, path); err == nil {
		t.Fatal("expected error for invalid export")
	}
}
