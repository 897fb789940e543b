// Package llm provides the language-model clients used for topic labelling.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/umbusk1/bibliofep/pkg/config"
)

// ErrDisabled is returned by Disabled.
var ErrDisabled = errors.New("no language model configured")

// ErrStatus wraps non-2xx responses. Status codes of 4xx other than 408 and
// 429 are not worth retrying.
type ErrStatus struct {
	Provider   string
	Code       int
	Message    string
	RetryAfter time.Duration
}

func (e *ErrStatus) Error() string {
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.Code, e.Message)
}

// Retryable reports whether err is a transient model failure.
func Retryable(err error) bool {
	var se *ErrStatus
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests || se.Code == http.StatusRequestTimeout
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, ErrDisabled)
}

// RetryAfter returns the delay the provider asked for, or zero.
func RetryAfter(err error) time.Duration {
	var se *ErrStatus
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}

// parseRetryAfter reads a Retry-After header given in seconds. HTTP dates are
// not used by the providers and count as absent.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Model completes a single-turn prompt.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// New builds the provider selected by cfg.
func New(ctx context.Context, cfg config.LLMConfig) (Model, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is empty")
		}
		return NewAnthropic(cfg.AnthropicAPIKey, cfg.Model, cfg.MaxTokens, cfg.AnthropicURL,
			&http.Client{Timeout: cfg.Timeout}), nil
	case "gemini":
		model := cfg.Model
		if strings.HasPrefix(model, "claude") {
			model = ""
		}
		return NewGemini(ctx, cfg.GeminiAPIKey, model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Disabled fails every call. The dashboard runs with it when no provider key
// is configured so everything except topic analysis keeps working.
type Disabled struct {
	Reason error
}

func (d Disabled) Complete(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: %v", ErrDisabled, d.Reason)
}

func (Disabled) Name() string { return "disabled" }
