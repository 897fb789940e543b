// Package watcher ingests export files dropped into a directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/umbusk1/bibliofep/internal/ingestion"
	"github.com/umbusk1/bibliofep/internal/ingestion/validator"
	apperrors "github.com/umbusk1/bibliofep/pkg/errors"
)

// Ingester stores a validated export.
type Ingester interface {
	Ingest(ctx context.Context, export *ingestion.Export) (*ingestion.UploadResult, error)
}

// Outcome describes what happened to one dropped file.
type Outcome struct {
	Path   string
	Result *ingestion.UploadResult
	Err    error
}

// Watcher debounces writes to *.json files in a directory and ingests each
// file once it has been quiet for the debounce interval.
type Watcher struct {
	dir      string
	debounce time.Duration
	ingester Ingester
	pending  map[string]time.Time
	// OnOutcome, when set, is called after every processed file.
	OnOutcome func(Outcome)
	logger    *slog.Logger
}

// New creates a watcher for dir.
func New(dir string, debounce time.Duration, ingester Ingester) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		ingester: ingester,
		pending:  make(map[string]time.Time),
		logger:   slog.Default().With("component", "drop-watcher", "dir", dir),
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fs watcher: %w", err)
	}
	defer fw.Close()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating drop dir: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching drop directory", "debounce", w.debounce)

	tick := w.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("drop watcher stopped")
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("fs watcher error", "error", err)
		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.EqualFold(filepath.Ext(event.Name), ".json") {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	w.pending[event.Name] = time.Now()
}

func (w *Watcher) flush(ctx context.Context, now time.Time) {
	for path, last := range w.pending {
		if now.Sub(last) < w.debounce {
			continue
		}
		delete(w.pending, path)
		w.process(ctx, path)
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	out := Outcome{Path: path}
	out.Result, out.Err = IngestFile(ctx, w.ingester, path)

	switch {
	case out.Err == nil:
		w.logger.Info("dropped file ingested",
			"file", filepath.Base(path),
			"conversations", out.Result.ConversationsProcessed,
			"messages", out.Result.MessagesProcessed,
		)
	case errors.Is(out.Err, apperrors.ErrAlreadyProcessed):
		w.logger.Info("dropped file already processed, skipping", "file", filepath.Base(path))
	default:
		w.logger.Error("failed to ingest dropped file", "file", filepath.Base(path), "error", out.Err)
	}
	if w.OnOutcome != nil {
		w.OnOutcome(out)
	}
}

// IngestFile decodes, validates and ingests the export stored at path.
func IngestFile(ctx context.Context, ingester Ingester, path string) (*ingestion.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	export, err := validator.DecodeExport(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return ingester.Ingest(ctx, export)
}
