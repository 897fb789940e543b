package topics

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON means the model answered without a JSON object.
var ErrNoJSON = errors.New("no JSON object in model response")

const defaultRelevance = 0.5

// ExtractTopics decodes the span from the first '{' to the last '}' of text.
// Topics without a name are dropped and relevance is normalised to (0, 1].
func ExtractTopics(text string) ([]Topic, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, ErrNoJSON
	}

	var payload struct {
		Topics []Topic `json:"topics"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("decoding model JSON: %w", err)
	}

	out := make([]Topic, 0, len(payload.Topics))
	for _, t := range payload.Topics {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			continue
		}
		t.Category = strings.TrimSpace(t.Category)
		switch {
		case t.Relevance <= 0:
			t.Relevance = defaultRelevance
		case t.Relevance > 1:
			t.Relevance = 1
		}
		out = append(out, t)
	}
	return out, nil
}
