package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/avast/retry-go/v4"

	"github.com/dgallion1/annoscope/internal/annotation"
	"github.com/dgallion1/annoscope/internal/chunker"
)

const defaultBaseURL = "https://api.anthropic.com"

// Classification is the label assigned to one annotation.
type Classification struct {
	Ref        annotation.Ref `json:"ref"`
	Label      Label          `json:"label"`
	Confidence float64        `json:"confidence"`
	Rationale  string         `json:"rationale,omitempty"`
}

// Result is the classification of one annotation snapshot. Unclassified
// lists annotations the model returned no valid answer for.
type Result struct {
	Model           string           `json:"model"`
	Classifications []Classification `json:"classifications"`
	Unclassified    []annotation.Ref `json:"unclassified,omitempty"`
}

// Counts tallies classifications per label.
func (r *Result) Counts() map[Label]int {
	out := make(map[Label]int)
	for _, c := range r.Classifications {
		out[c.Label]++
	}
	return out
}

// ClaudeClient calls the Anthropic Messages API to classify annotations.
type ClaudeClient struct {
	apiKey      string
	model       string
	baseURL     string
	maxRetries  int
	retryDelay  time.Duration
	batchTokens int
	httpClient  *http.Client
	stats       *LLMStats
	log         *slog.Logger
}

// Option configures a ClaudeClient.
type Option func(*ClaudeClient)

// WithBaseURL points the client at another Messages API endpoint.
func WithBaseURL(u string) Option {
	return func(c *ClaudeClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithRetries sets how many times a 429/5xx response is retried.
func WithRetries(n int, delay time.Duration) Option {
	if n < 0 {
		n = 0
	}
	return func(c *ClaudeClient) {
		c.maxRetries = n
		c.retryDelay = delay
	}
}

// WithBatchTokens caps the estimated annotation tokens per request.
func WithBatchTokens(n int) Option {
	return func(c *ClaudeClient) { c.batchTokens = n }
}

// WithStats records call latencies.
func WithStats(s *LLMStats) Option {
	return func(c *ClaudeClient) { c.stats = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *ClaudeClient) { c.log = l }
}

func NewClaudeClient(apiKey, model string, opts ...Option) *ClaudeClient {
	c := &ClaudeClient{
		apiKey:      apiKey,
		model:       model,
		baseURL:     defaultBaseURL,
		maxRetries:  3,
		retryDelay:  time.Second,
		batchTokens: 2000,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Classify labels every annotation in the set. Annotations are sent in
// batches bounded by the configured token estimate; a batch that fails
// after retries fails the whole call.
func (c *ClaudeClient) Classify(ctx context.Context, docTitle string, set *annotation.Set) (*Result, error) {
	items := Items(set)
	result := &Result{Model: c.model, Classifications: []Classification{}}
	if len(items) == 0 {
		return result, nil
	}

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}
	batches := chunker.Batch(texts, c.batchTokens)
	for bi, idx := range batches {
		batch := make([]Item, len(idx))
		for i, j := range idx {
			batch[i] = items[j]
		}
		labels, err := c.classifyBatch(ctx, docTitle, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d/%d: %w", bi+1, len(batches), err)
		}
		for i, it := range batch {
			cl, ok := labels[i+1]
			if !ok {
				result.Unclassified = append(result.Unclassified, it.Ref)
				continue
			}
			result.Classifications = append(result.Classifications, Classification{
				Ref:        it.Ref,
				Label:      cl.Label,
				Confidence: cl.Confidence,
				Rationale:  cl.Rationale,
			})
		}
	}
	if c.stats != nil {
		c.stats.RecordRun(result)
	}
	c.log.Info("classified annotations",
		"items", len(items),
		"batches", len(batches),
		"unclassified", len(result.Unclassified),
	)
	return result, nil
}

// classifyBatch returns valid answers keyed by 1-based item number. The
// first answer for an item wins.
func (c *ClaudeClient) classifyBatch(ctx context.Context, docTitle string, batch []Item) (map[int]rawClassification, error) {
	var text string
	err := retry.Do(
		func() error {
			var err error
			text, err = c.complete(ctx, BuildBatchPrompt(docTitle, batch))
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)+1),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var re *RetryableError
			return errors.As(err, &re)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("retrying classification", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	var raw []rawClassification
	if err := json.Unmarshal([]byte(stripCodeBlock(text)), &raw); err != nil {
		return nil, fmt.Errorf("parse classifications json: %w (raw: %s)", err, truncate(text, 200))
	}
	out := make(map[int]rawClassification, len(raw))
	for i := range raw {
		if !validateClassification(&raw[i], len(batch)) {
			continue
		}
		if _, dup := out[raw[i].Item]; dup {
			continue
		}
		out[raw[i].Item] = raw[i]
	}
	return out, nil
}

// complete sends one prompt and returns the first text block.
func (c *ClaudeClient) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: 4096,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if c.stats != nil {
		status := 0
		if err == nil {
			status = resp.StatusCode
		}
		c.stats.RecordCall(time.Since(start), status, err)
	}
	if err != nil {
		return "", fmt.Errorf("claude api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("claude api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("claude error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Content) == 0 {
		return "", fmt.Errorf("empty response from claude")
	}
	return apiResp.Content[0].Text, nil
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// Close releases resources.
func (c *ClaudeClient) Close() {
	c.httpClient.CloseIdleConnections()
}
