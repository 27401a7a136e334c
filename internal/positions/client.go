// Package positions talks to the backend position-extraction service,
// which reads a contract in chunks and reports the commercial positions
// it takes (who pays, liability caps, termination rights, ...).
package positions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgallion1/annoscope/internal/chunker"
	"github.com/dgallion1/annoscope/internal/doctree"
)

// Client communicates with the position-extraction HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	chunking   chunker.Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(baseURL, apiKey string, chunking chunker.Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		chunking: chunking,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		log: log,
	}
}

// Position is one extracted position, located in the combined document.
type Position struct {
	SectionNumber string `json:"sectionNumber"`
	Topic         string `json:"topic"`
	Stance        string `json:"stance,omitempty"`
	Summary       string `json:"summary"`
	Text          string `json:"text"`
	StartOffset   int    `json:"startOffset"`
	EndOffset     int    `json:"endOffset"`
}

// Result is the service's answer for one document snapshot. Dropped counts
// positions whose chunk or offsets did not resolve.
type Result struct {
	Positions []Position `json:"positions"`
	Dropped   int        `json:"dropped,omitempty"`
}

// ExtractRequest is the body for POST /v1/positions.
type ExtractRequest struct {
	Title  string          `json:"title"`
	Chunks []chunker.Chunk `json:"chunks"`
}

// rawPosition offsets are runes relative to the chunk's text.
type rawPosition struct {
	ChunkIndex int    `json:"chunkIndex"`
	Topic      string `json:"topic"`
	Stance     string `json:"stance"`
	Summary    string `json:"summary"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

type extractResponse struct {
	Positions []rawPosition `json:"positions"`
}

// Extract sends the structure's chunks to the service and translates the
// answers into combined-document offsets.
func (c *Client) Extract(ctx context.Context, s *doctree.Structure) (*Result, error) {
	chunks := chunker.ChunkStructure(s, c.chunking)
	if len(chunks) == 0 {
		return &Result{Positions: []Position{}}, nil
	}

	body, err := json.Marshal(ExtractRequest{Title: s.Title, Chunks: chunks})
	if err != nil {
		return nil, fmt.Errorf("marshal chunks: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/positions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("extract positions: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("extract positions: status %d: %s", resp.StatusCode, string(respBody))
	}

	var raw extractResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}

	result := &Result{Positions: make([]Position, 0, len(raw.Positions))}
	for _, rp := range raw.Positions {
		p, ok := locate(rp, chunks, s)
		if !ok {
			result.Dropped++
			continue
		}
		result.Positions = append(result.Positions, p)
	}
	c.log.Info("extracted positions",
		"chunks", len(chunks),
		"positions", len(result.Positions),
		"dropped", result.Dropped,
	)
	return result, nil
}

func locate(rp rawPosition, chunks []chunker.Chunk, s *doctree.Structure) (Position, bool) {
	if rp.ChunkIndex < 0 || rp.ChunkIndex >= len(chunks) {
		return Position{}, false
	}
	ch := chunks[rp.ChunkIndex]
	if rp.Start < 0 || rp.End < rp.Start || ch.StartOffset+rp.End > ch.EndOffset {
		return Position{}, false
	}
	if strings.TrimSpace(rp.Topic) == "" {
		return Position{}, false
	}
	start, end := ch.StartOffset+rp.Start, ch.StartOffset+rp.End
	return Position{
		SectionNumber: ch.Breadcrumb[len(ch.Breadcrumb)-1],
		Topic:         strings.TrimSpace(rp.Topic),
		Stance:        rp.Stance,
		Summary:       rp.Summary,
		Text:          s.Slice(start, end),
		StartOffset:   start,
		EndOffset:     end,
	}, true
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
