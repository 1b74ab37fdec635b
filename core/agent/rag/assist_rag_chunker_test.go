package rag

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"assist_server/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultChunker() *Chunker {
	return NewChunker(DefaultChunkerConfig())
}

func paragraphs(n, size int) string {
	parts := make([]string, n)
	for i := range parts {
		word := fmt.Sprintf("p%02d ", i)
		parts[i] = strings.TrimSpace(strings.Repeat(word, size/len(word)))
	}
	return strings.Join(parts, "\n\n")
}

func TestChunk_Empty(t *testing.T) {
	assert.Empty(t, newDefaultChunker().Chunk(""))
}

func TestChunk_WhitespaceOnly(t *testing.T) {
	assert.Empty(t, newDefaultChunker().Chunk("   \n\n \t "))
}

func TestChunk_ShortText(t *testing.T) {
	text := "Hello, thanks for reaching out."
	chunks := newDefaultChunker().Chunk(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, domain.Chunk{
		Index:       0,
		StartOffset: 0,
		EndOffset:   len(text),
		Content:     text,
		ContentHash: domain.HashContent(text),
	}, chunks[0])
}

func TestChunk_SingleLongParagraph(t *testing.T) {
	text := strings.Repeat("a", 10000)
	chunks := newDefaultChunker().Chunk(text)

	want := [][2]int{{0, 3200}, {2800, 6000}, {5600, 8800}, {8400, 10000}}
	require.Len(t, chunks, len(want))
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, want[i][0], c.StartOffset, "chunk %d start", i)
		assert.Equal(t, want[i][1], c.EndOffset, "chunk %d end", i)
		assert.LessOrEqual(t, len(c.Content), 3200)
		if i > 0 {
			assert.Equal(t, 400, chunks[i-1].EndOffset-c.StartOffset, "overlap before chunk %d", i)
		}
	}
}

func TestChunk_EndsOnParagraphBoundary(t *testing.T) {
	p1 := strings.Repeat("x", 2000)
	p2 := strings.Repeat("y", 2000)
	text := p1 + "\n\n" + p2

	chunks := newDefaultChunker().Chunk(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, 2002, chunks[0].EndOffset)
	assert.Equal(t, 1602, chunks[1].StartOffset)
	assert.Equal(t, len(text), chunks[1].EndOffset)
}

func TestChunk_PicksLargestBoundary(t *testing.T) {
	// boundaries at 1001, 2002 and 3003 all fit; the largest wins
	text := paragraphs(6, 1000)
	chunks := newDefaultChunker().Chunk(text)

	require.NotEmpty(t, chunks)
	assert.Equal(t, 3003, chunks[0].EndOffset)
	assert.True(t, strings.HasSuffix(chunks[0].Content, "\n\n"))
}

func TestChunk_CoverageAndOrdering(t *testing.T) {
	text := paragraphs(25, 700)
	chunks := newDefaultChunker().Chunk(text)

	require.NotEmpty(t, chunks)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len(text), chunks[len(chunks)-1].EndOffset)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Less(t, c.StartOffset, c.EndOffset)
		assert.LessOrEqual(t, c.EndOffset-c.StartOffset, 3200)
		assert.Equal(t, string([]rune(text)[c.StartOffset:c.EndOffset]), c.Content)
		assert.Equal(t, domain.HashContent(c.Content), c.ContentHash)
		assert.NotEmpty(t, strings.TrimSpace(c.Content))
		if i > 0 {
			prev := chunks[i-1]
			assert.Greater(t, c.StartOffset, prev.StartOffset, "start must advance")
			assert.LessOrEqual(t, c.StartOffset, prev.EndOffset, "gap before chunk %d", i)
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	text := paragraphs(12, 900)
	c := newDefaultChunker()
	assert.Equal(t, c.Chunk(text), c.Chunk(text))
}

func TestChunk_SkipsBlankWindowsKeepsIndicesContiguous(t *testing.T) {
	text := "x" + strings.Repeat(" ", 7000) + "y"
	chunks := newDefaultChunker().Chunk(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, 1, chunks[1].Index)
	assert.Equal(t, 5600, chunks[1].StartOffset)
	assert.Equal(t, len(text), chunks[1].EndOffset)
}

func TestChunk_HashCoversUntrimmedSlice(t *testing.T) {
	text := "first paragraph\n\n"
	chunks := newDefaultChunker().Chunk(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Content)
	assert.NotEqual(t, domain.HashContent(strings.TrimSpace(text)), chunks[0].ContentHash)
}

func TestChunk_MultiByteRunesStayIntact(t *testing.T) {
	text := strings.Repeat("한", 3000)
	chunks := newDefaultChunker().Chunk(text)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Content), "chunk %d split a rune", c.Index)
	}
	assert.Equal(t, utf8.RuneCountInString(text), chunks[len(chunks)-1].EndOffset)
}

func TestChunk_SizesCountCharactersNotBytes(t *testing.T) {
	text := strings.Repeat("文", 12000)
	chunks := newDefaultChunker().Chunk(text)

	want := [][2]int{{0, 3200}, {2800, 6000}, {5600, 8800}, {8400, 11600}, {11200, 12000}}
	require.Len(t, chunks, len(want))
	for i, c := range chunks {
		assert.Equal(t, want[i][0], c.StartOffset, "chunk %d start", i)
		assert.Equal(t, want[i][1], c.EndOffset, "chunk %d end", i)
		assert.Equal(t, c.EndOffset-c.StartOffset, utf8.RuneCountInString(c.Content))
	}
	assert.Equal(t, 3200*len("文"), len(chunks[0].Content))
}

func TestChunk_MixedWidthOffsetsIndexRunes(t *testing.T) {
	p1 := strings.Repeat("é", 2000)
	p2 := strings.Repeat("y", 2000)
	text := p1 + "\n\n" + p2
	runes := []rune(text)

	chunks := newDefaultChunker().Chunk(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, 2002, chunks[0].EndOffset)
	assert.Equal(t, 1602, chunks[1].StartOffset)
	assert.Equal(t, len(runes), chunks[1].EndOffset)
	for _, c := range chunks {
		assert.Equal(t, string(runes[c.StartOffset:c.EndOffset]), c.Content)
	}
}

func TestChunk_OverlapNotSmallerThanStep(t *testing.T) {
	// overlap equal to the window must still make progress
	c := NewChunker(ChunkerConfig{TargetTokens: 10, OverlapTokens: 10, CharsPerToken: 1})
	chunks := c.Chunk(strings.Repeat("b", 35))

	require.NotEmpty(t, chunks)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].StartOffset, chunks[i-1].StartOffset)
	}
	assert.Equal(t, 35, chunks[len(chunks)-1].EndOffset)
}

func TestEach_StopsEarly(t *testing.T) {
	var seen []int
	newDefaultChunker().Each(strings.Repeat("z", 20000), func(c domain.Chunk) bool {
		seen = append(seen, c.Index)
		return len(seen) < 2
	})
	assert.Equal(t, []int{0, 1}, seen)
}

func TestParagraphBoundaries(t *testing.T) {
	tests := []struct {
		text string
		want []int
	}{
		{"abc", []int{0, 3}},
		{"a\n\nb", []int{0, 3, 4}},
		{"a\n\n", []int{0, 3}},
		{"a\n\n\nb", []int{0, 3, 4, 5}},
		{"가나\n\n다", []int{0, 4, 5}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, paragraphBoundaries([]rune(tt.text)), "%q", tt.text)
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"crlf", "a\r\nb", "a\nb"},
		{"trailing spaces", "a  \t\nb ", "a\nb"},
		{"blank runs", "a\n\n\n\n b", "a\n\n b"},
		{"whitespace-only lines", "a\n   \n\t\nb", "a\n\nb"},
		{"outer whitespace", "\n\n  hello  \n\n", "hello"},
		{"nul bytes", "a\x00b", "ab"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeText(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizeText(got), "not idempotent")
		})
	}
}
