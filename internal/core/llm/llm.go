// Package llm implements the LLM transport: a bounded-concurrency,
// rate-limited HTTP client wrapping an OpenAI-style chat completion
// endpoint, with retry/back-off on transient failure.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lsilvatti/subtrans/internal/core/tokenizer"
)

// Message is one OpenAI-chat-style message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TransportError reports an LLM call that exhausted its retries. It is
// never surfaced directly to ladder/pipeline callers (see Call's second
// return value) but is kept available for logging call sites that want
// the typed reason.
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("llm: exhausted %d attempt(s): %v", e.Attempts, e.Err)
}
func (e *TransportError) Unwrap() error { return e.Err }

// Config parameterizes a Transport. Fields mirror the enumerated
// transport options in the external-interfaces configuration.
type Config struct {
	APIKey    string
	APIURL    string
	ModelName string

	MaxConcurrentRequests int
	RPMLimit              int

	MaxRetries int
	RetryDelay time.Duration
}

// Transport is the process-wide LLM client: a counting semaphore bounds
// in-flight requests, and a mutex-guarded token bucket bounds requests
// per minute. Both are owned by this Transport instance rather than
// package-level globals, so tests may construct independent transports.
type Transport struct {
	cfg    Config
	client *http.Client
	sem    *semaphore.Weighted
	bucket *tokenBucket
	tokens *tokenizer.Estimator

	// LogFunc receives warning/error lines the way the teacher's
	// Pipeline.LogCallback does; nil discards them.
	LogFunc func(string)

	// now is overridable in tests to avoid real sleeps/time reads.
	now   func() time.Time
	sleep func(time.Duration)
}

// New constructs a Transport with its own semaphore and token bucket.
func New(cfg Config) *Transport {
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = 4
	}
	if cfg.RPMLimit <= 0 {
		cfg.RPMLimit = 60
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	t := &Transport{
		cfg:    cfg,
		client: &http.Client{Timeout: 120 * time.Second},
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
		tokens: tokenizer.NewEstimator(),
		now:    time.Now,
		sleep:  time.Sleep,
	}
	t.bucket = newTokenBucket(float64(cfg.RPMLimit), t.now)
	return t
}

func (t *Transport) log(format string, args ...any) {
	if t.LogFunc != nil {
		t.LogFunc(fmt.Sprintf(format, args...))
	}
}

// logTokenEstimate reports an approximate token count for one request's
// prompt and completion, letting a pipeline run track its rough LLM
// spend without depending on a provider-specific usage field.
func (t *Transport) logTokenEstimate(messages []Message, content string) {
	if t.LogFunc == nil {
		return
	}
	var prompt strings.Builder
	for _, m := range messages {
		prompt.WriteString(m.Content)
	}
	used := t.tokens.EstimateTokens(prompt.String()) + t.tokens.EstimateTokens(content)
	t.log("llm: call used ~%d estimated tokens", used)
}

// tokenBucket is a mutex-guarded token-bucket rate limiter: capacity
// tokens, refilling continuously at capacity/60 tokens per second.
type tokenBucket struct {
	mu        sync.Mutex
	capacity  float64
	tokens    float64
	fillRate  float64
	timestamp time.Time
	now       func() time.Time
}

func newTokenBucket(capacity float64, now func() time.Time) *tokenBucket {
	return &tokenBucket{
		capacity:  capacity,
		tokens:    capacity,
		fillRate:  capacity / 60.0,
		timestamp: now(),
		now:       now,
	}
}

// acquire blocks (via sleep) until at least one token is available, then
// consumes it. The wait duration is computed under lock so concurrent
// acquirers see a consistent (tokens, timestamp) pair.
func (b *tokenBucket) acquire(sleep func(time.Duration)) {
	b.mu.Lock()
	now := b.now()
	elapsed := now.Sub(b.timestamp).Seconds()
	b.tokens = minF(b.capacity, b.tokens+elapsed*b.fillRate)
	b.timestamp = now

	var wait time.Duration
	b.tokens--
	if b.tokens < 0 {
		wait = time.Duration(-b.tokens / b.fillRate * float64(time.Second))
	}
	b.mu.Unlock()

	if wait > 0 {
		sleep(wait)
	}
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Call performs one chat-completion request, acquiring the concurrency
// permit and a rate-limit token first. It returns (content, true) on
// success, soft refusal, or content-filter ("" content is valid in the
// latter two cases), and ("", false) once max_retries attempts are
// exhausted — callers must not distinguish those cases from the return
// values alone; TransportError is only available via logging.
func (t *Transport) Call(ctx context.Context, messages []Message, temperature float64) (string, bool) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return "", false
	}
	defer t.sem.Release(1)

	t.bucket.acquire(t.sleep)

	payload := chatRequest{
		Model:       t.cfg.ModelName,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   4096,
		Stream:      false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.log("llm: marshal request: %v", err)
		return "", false
	}

	var lastErr error
	for attempt := 0; attempt < t.cfg.MaxRetries; attempt++ {
		content, ok, retry, rateLimited, err := t.attempt(ctx, body)
		if err == nil {
			if ok {
				t.logTokenEstimate(messages, content)
			}
			return content, ok
		}
		lastErr = err
		if !retry {
			break
		}
		// A 429 already slept its own 5s inside attempt; sleeping
		// RetryDelay here too would stack both durations.
		if attempt < t.cfg.MaxRetries-1 && !rateLimited {
			t.sleep(t.cfg.RetryDelay)
		}
	}

	t.log("llm: request finally failed: %v", &TransportError{Attempts: t.cfg.MaxRetries, Err: lastErr})
	return "", false
}

// attempt performs a single HTTP round-trip. retry reports whether the
// caller should retry (true for 429, other non-2xx, network errors, or
// non-JSON bodies); rateLimited reports specifically a 429, whose 5s
// sleep already happened here so Call must not sleep RetryDelay again;
// err is non-nil whenever the attempt did not produce a usable result.
func (t *Transport) attempt(ctx context.Context, body []byte) (content string, ok bool, retry bool, rateLimited bool, err error) {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.APIURL, bytes.NewReader(body))
	if reqErr != nil {
		return "", false, false, false, reqErr
	}
	req.Header.Set("Content-Type", "application/json")
	if t.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	}

	resp, doErr := t.client.Do(req)
	if doErr != nil {
		return "", false, true, false, doErr
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		t.sleep(5 * time.Second)
		return "", false, true, true, fmt.Errorf("429 rate limited")
	}

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return "", false, true, false, readErr
	}

	if resp.StatusCode != http.StatusOK {
		t.log("llm: API returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
		return "", false, true, false, fmt.Errorf("http %d", resp.StatusCode)
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", false, true, false, fmt.Errorf("invalid JSON response: %w", err)
	}

	if len(decoded.Choices) == 0 {
		return "", false, true, false, fmt.Errorf("missing choices")
	}

	msg := decoded.Choices[0].Message
	if msg.Refusal != "" {
		t.log("llm: model refused: %s", msg.Refusal)
		return "", true, false, false, nil
	}

	trimmed := strings.TrimSpace(msg.Content)
	if trimmed == "" {
		if decoded.Choices[0].FinishReason == "content_filter" {
			t.log("llm: empty content due to content_filter")
		}
		return "", true, false, false, nil
	}

	return trimmed, true, false, false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
