package synthesis

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicestudio/internal/domain"
)

func TestChunkerSingleChunk(t *testing.T) {
	c := NewChunker(ChunkerConfig{})
	chunks := c.Split([]domain.Segment{
		{Text: "Hello there.", SpeakerID: 1},
		{Text: "  ", SpeakerID: 2},
		{Text: "Hi Carter, how are you today?", SpeakerID: 2},
	})
	require.Len(t, chunks, 1)
	assert.Equal(t, "[1] Hello there.\n\n[2] Hi Carter, how are you today?", chunks[0].Text)
	assert.Equal(t, []int{1, 2}, chunks[0].SpeakerIDs)
	assert.Equal(t, 0, chunks[0].FirstSegment)
	assert.Equal(t, 2, chunks[0].LastSegment)
	// 8 words at 150 wpm.
	assert.Equal(t, 3200*time.Millisecond, chunks[0].EstimatedDuration)
}

func TestChunkerRespectsBudget(t *testing.T) {
	// Budget of 200 tokens; each segment costs 400/4+50 = 150.
	c := NewChunker(ChunkerConfig{ContextTokens: 250, FillRatio: 0.8})
	text := strings.Repeat("a", 400)
	segments := make([]domain.Segment, 5)
	for i := range segments {
		segments[i] = domain.Segment{Text: text, SpeakerID: i%2 + 1}
	}

	chunks := c.Split(segments)
	require.Len(t, chunks, 5)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, i, ch.FirstSegment)
		assert.Equal(t, i, ch.LastSegment)
	}
}

func TestChunkerPacksGreedily(t *testing.T) {
	// Budget 400; segments cost 100 each, so four fit per chunk.
	c := NewChunker(ChunkerConfig{ContextTokens: 500, FillRatio: 0.8})
	segments := make([]domain.Segment, 10)
	for i := range segments {
		segments[i] = domain.Segment{Text: strings.Repeat("b", 200), SpeakerID: 1}
	}
	chunks := c.Split(segments)
	require.Len(t, chunks, 3)
	assert.Equal(t, 3, chunks[0].LastSegment)
	assert.Equal(t, 4, chunks[1].FirstSegment)
	assert.Equal(t, 9, chunks[2].LastSegment)
}

func TestChunkerNormalizesText(t *testing.T) {
	c := NewChunker(ChunkerConfig{})
	// "e" followed by a combining acute accent composes to U+00E9.
	chunks := c.Split([]domain.Segment{{Text: "Cafe\u0301", SpeakerID: 3}})
	require.Len(t, chunks, 1)
	assert.Equal(t, "[3] Caf\u00e9", chunks[0].Text)
}

func TestChunkerEmpty(t *testing.T) {
	assert.Empty(t, NewChunker(ChunkerConfig{}).Split(nil))
	assert.Empty(t, NewChunker(ChunkerConfig{}).Split([]domain.Segment{{Text: "\n\t"}}))
}

func TestEstimateTokensCountsRunes(t *testing.T) {
	assert.Equal(t, 50, EstimateTokens(""))
	assert.Equal(t, 51, EstimateTokens("żółć"))
}
