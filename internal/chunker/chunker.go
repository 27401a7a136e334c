package chunker

import (
	"github.com/dgallion1/annoscope/internal/doctree"
)

// Config controls chunking behavior.
type Config struct {
	ChunkSize int // Target chunk size in tokens.
	MinChunk  int // Minimum chunk size to emit.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize: 1500,
		MinChunk:  1,
	}
}

// Chunk is a run of one section's own text, positioned in the combined document.
type Chunk struct {
	Text        string   `json:"text"`
	Index       int      `json:"index"`
	Breadcrumb  []string `json:"breadcrumb"`
	StartOffset int      `json:"startOffset"`
	EndOffset   int      `json:"endOffset"`
}

// ChunkStructure walks the section tree and produces section-aligned chunks.
// A section's own text becomes one chunk when it fits ChunkSize and is
// otherwise split at sentence boundaries. Breadcrumbs are the section
// numbers from the root down.
func ChunkStructure(s *doctree.Structure, cfg Config) []Chunk {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1500
	}
	if cfg.MinChunk <= 0 {
		cfg.MinChunk = 1
	}

	var chunks []Chunk
	for _, root := range s.Roots {
		walkNode(root, nil, cfg, &chunks)
	}
	return chunks
}

// walkNode recursively visits nodes, collecting own text and splitting it into chunks.
func walkNode(node *doctree.Node, breadcrumb []string, cfg Config, chunks *[]Chunk) {
	bc := append(copyBreadcrumb(breadcrumb), node.SectionNumber)

	own := []rune(node.OwnText())
	if len(own) > 0 {
		for _, sp := range splitOwnText(own, cfg.ChunkSize) {
			text := string(own[sp.Start:sp.End])
			if EstimateTokens(text) < cfg.MinChunk {
				continue
			}
			*chunks = append(*chunks, Chunk{
				Text:        text,
				Index:       len(*chunks),
				Breadcrumb:  copyBreadcrumb(bc),
				StartOffset: node.StartOffset + sp.Start,
				EndOffset:   node.StartOffset + sp.End,
			})
		}
	}

	for _, child := range node.Children {
		walkNode(child, bc, cfg, chunks)
	}
}

// splitOwnText groups sentences into spans of at most targetTokens. A single
// sentence larger than the target becomes its own span. Spans tile the text.
func splitOwnText(text []rune, targetTokens int) []Span {
	if EstimateTokens(string(text)) <= targetTokens {
		return []Span{{0, len(text)}}
	}

	var result []Span
	start := 0
	for _, sent := range Sentences(string(text)) {
		if sent.Start > start && EstimateTokens(string(text[start:sent.End])) > targetTokens {
			result = append(result, Span{start, sent.Start})
			start = sent.Start
		}
	}
	return append(result, Span{start, len(text)})
}

// Batch groups item indexes so each group's estimated tokens stay within
// maxTokens. An item larger than maxTokens gets a group of its own.
func Batch(items []string, maxTokens int) [][]int {
	var result [][]int
	var current []int
	currentTokens := 0

	for i, item := range items {
		tokens := EstimateTokens(item)
		if currentTokens+tokens > maxTokens && len(current) > 0 {
			result = append(result, current)
			current, currentTokens = nil, 0
		}
		current = append(current, i)
		currentTokens += tokens
	}
	if len(current) > 0 {
		result = append(result, current)
	}
	return result
}

func copyBreadcrumb(bc []string) []string {
	if len(bc) == 0 {
		return nil
	}
	out := make([]string, len(bc))
	copy(out, bc)
	return out
}
