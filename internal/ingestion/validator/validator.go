// Package validator checks an export document before it is ingested and
// returns per-field error details.
package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/umbusk1/bibliofep/internal/ingestion"
)

var (
	// ErrInvalidStructure means the document has no conversations array.
	ErrInvalidStructure = errors.New("invalid export structure")
	ErrMalformedJSON    = errors.New("invalid JSON body")
)

// maxFieldErrors bounds the per-conversation messages returned to clients.
const maxFieldErrors = 20

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateExport checks the date range and that every conversation has an
// id and a parsable created_at. Conversation errors are keyed by index,
// e.g. "conversations[3].created_at".
func ValidateExport(e *ingestion.Export) error {
	if e == nil || e.Conversations == nil {
		return ErrInvalidStructure
	}

	errs := make(map[string]string)
	if strings.TrimSpace(e.StartDateStr) == "" {
		errs["startDateStr"] = "startDateStr is required"
	}
	if strings.TrimSpace(e.EndDateStr) == "" {
		errs["endDateStr"] = "endDateStr is required"
	}

	add := func(key, msg string) {
		if len(errs) < maxFieldErrors {
			errs[key] = msg
		}
	}
	for i, c := range e.Conversations {
		prefix := fmt.Sprintf("conversations[%d]", i)
		if strings.TrimSpace(c.ID) == "" {
			add(prefix+".id", "conversation id is required")
		}
		if _, err := ingestion.ParseTime(c.CreatedAt); err != nil {
			add(prefix+".created_at", "created_at must be a valid timestamp")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// DecodeExport reads an export document from r and validates it. Type
// mismatches anywhere in the document are reported as ErrInvalidStructure.
func DecodeExport(r io.Reader) (*ingestion.Export, error) {
	var export ingestion.Export
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return nil, err
		case errors.As(err, &typeErr):
			return nil, fmt.Errorf("%w: field %s", ErrInvalidStructure, typeErr.Field)
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
		}
	}
	if err := ValidateExport(&export); err != nil {
		return nil, err
	}
	return &export, nil
}
