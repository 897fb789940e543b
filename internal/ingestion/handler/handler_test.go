package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/umbusk1/bibliofep/internal/ingestion"
	apperrors "github.com/umbusk1/bibliofep/pkg/errors"
)

type fakeIngester struct {
	got *ingestion.Export
	err error
}

func (f *fakeIngester) Ingest(_ context.Context, e *ingestion.Export) (*ingestion.UploadResult, error) {
	f.got = e
	if f.err != nil {
		return nil, f.err
	}
	return &ingestion.UploadResult{
		ConversationsProcessed: len(e.Conversations),
		Filename:               e.Filename(),
		Period:                 e.Period(),
	}, nil
}

const validBody = `{"chatbotName":"bot","startDateStr":"2025-01-01","endDateStr":"2025-01-31",
 "conversations":[{"id":"c1","created_at":"2025-01-03T10:00:00Z","messages":[{"id":"m1","role":"user","content":"hola"}]}]}`

func upload(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Upload(rec, req)
	return rec
}

func TestUploadSuccess(t *testing.T) {
	fake := &fakeIngester{}
	rec := upload(New(fake, 1<<20), validBody)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var resp struct {
		Success bool                   `json:"success"`
		Stats   ingestion.UploadResult `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Stats.Filename != "2025-01-01_2025-01-31.json" || resp.Stats.Period != "2025-01-01 a 2025-01-31" {
		t.Errorf("unexpected response %+v", resp)
	}
	if fake.got == nil || fake.got.ChatbotName != "bot" {
		t.Error("export not passed to ingester")
	}
}

func TestUploadRejections(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		maxBytes int64
		want     int
		wantErr  string
	}{
		{"not json", "nope", 0, http.StatusBadRequest, "invalid JSON body"},
		{"no conversations", `{"startDateStr":"a","endDateStr":"b"}`, 0, http.StatusBadRequest, "invalid export structure"},
		{"conversations object", `{"conversations":{}}`, 0, http.StatusBadRequest, "invalid export structure"},
		{"field errors", `{"conversations":[{"id":"c"}]}`, 0, http.StatusBadRequest, "validation failed"},
		{"too large", validBody, 16, http.StatusRequestEntityTooLarge, "file too large"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeIngester{}
			rec := upload(New(fake, tc.maxBytes), tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body)
			}
			var body map[string]any
			json.Unmarshal(rec.Body.Bytes(), &body)
			if body["error"] != tc.wantErr {
				t.Errorf("error = %v, want %q", body["error"], tc.wantErr)
			}
			if fake.got != nil {
				t.Error("ingester should not be called")
			}
		})
	}
}

func TestUploadDuplicate(t *testing.T) {
	fake := &fakeIngester{err: apperrors.New(apperrors.ErrAlreadyProcessed, http.StatusConflict,
		"Este archivo ya fue procesado anteriormente").With("filename", "2025-01-01_2025-01-31.json")}
	rec := upload(New(fake, 0), validBody)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["filename"] != "2025-01-01_2025-01-31.json" {
		t.Errorf("missing filename in %v", body)
	}
}
