// Package synthesis turns a script snapshot into a single rendered audio file:
// chunking, per-chunk speech synthesis, stitching and progress reporting.
package synthesis

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"voicestudio/internal/domain"
)

const (
	DefaultContextTokens  = 64000
	DefaultFillRatio      = 0.8
	DefaultWordsPerMinute = 150

	segmentTokenOverhead = 50
)

// Chunk is a contiguous run of segments small enough for one engine call.
type Chunk struct {
	Index             int
	Text              string
	SpeakerIDs        []int
	EstimatedDuration time.Duration
	FirstSegment      int
	LastSegment       int
}

// ChunkerConfig sizes chunks against the engine context window.
type ChunkerConfig struct {
	ContextTokens  int
	FillRatio      float64
	WordsPerMinute int
}

// Chunker packs segments greedily into chunks.
type Chunker struct {
	maxTokens int
	wpm       int
}

func NewChunker(cfg ChunkerConfig) *Chunker {
	if cfg.ContextTokens <= 0 {
		cfg.ContextTokens = DefaultContextTokens
	}
	if cfg.FillRatio <= 0 || cfg.FillRatio > 1 {
		cfg.FillRatio = DefaultFillRatio
	}
	if cfg.WordsPerMinute <= 0 {
		cfg.WordsPerMinute = DefaultWordsPerMinute
	}
	return &Chunker{
		maxTokens: int(float64(cfg.ContextTokens) * cfg.FillRatio),
		wpm:       cfg.WordsPerMinute,
	}
}

// EstimateTokens approximates the engine token cost of one segment.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text)/4 + segmentTokenOverhead
}

// Split packs non-blank segments, in order, into chunks. A single segment
// larger than the budget gets a chunk of its own.
func (c *Chunker) Split(segments []domain.Segment) []Chunk {
	var (
		chunks  []Chunk
		current []domain.Segment
		first   int
		tokens  int
	)
	flush := func(last int) {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, c.build(len(chunks), current, first, last))
		current = nil
		tokens = 0
	}

	for i, seg := range segments {
		text := strings.TrimSpace(norm.NFC.String(seg.Text))
		if text == "" {
			continue
		}
		seg.Text = text
		cost := EstimateTokens(text)
		if tokens+cost > c.maxTokens && len(current) > 0 {
			flush(i - 1)
		}
		if len(current) == 0 {
			first = i
		}
		current = append(current, seg)
		tokens += cost
	}
	flush(len(segments) - 1)
	return chunks
}

func (c *Chunker) build(index int, segments []domain.Segment, first, last int) Chunk {
	lines := make([]string, 0, len(segments))
	speakers := map[int]struct{}{}
	words := 0
	for _, s := range segments {
		lines = append(lines, fmt.Sprintf("[%d] %s", s.SpeakerID, s.Text))
		speakers[s.SpeakerID] = struct{}{}
		words += len(strings.Fields(s.Text))
	}
	ids := make([]int, 0, len(speakers))
	for id := range speakers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	return Chunk{
		Index:             index,
		Text:              strings.Join(lines, "\n\n"),
		SpeakerIDs:        ids,
		EstimatedDuration: time.Duration(words) * time.Minute / time.Duration(c.wpm),
		FirstSegment:      first,
		LastSegment:       last,
	}
}
