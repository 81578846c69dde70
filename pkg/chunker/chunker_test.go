package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragpipe/ragpipe/pkg/domain"
)

func mustNew(t *testing.T, opts Options) *Service {
	t.Helper()
	s, err := New(opts)
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"valid", Options{ChunkSize: 100, Overlap: 10}, false},
		{"zero chunk size", Options{ChunkSize: 0}, true},
		{"negative overlap", Options{ChunkSize: 100, Overlap: -1}, true},
		{"overlap equals chunk size", Options{ChunkSize: 100, Overlap: 100}, true},
		{"chunk size over the cap", Options{ChunkSize: MaxChunkChars + 1}, true},
		{"chunk size plus overlap at the cap", Options{ChunkSize: 19000, Overlap: 1000}, true},
		{"chunk size plus overlap under the cap", Options{ChunkSize: 18000, Overlap: 1000}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChunkPages_SinglePage(t *testing.T) {
	s := mustNew(t, Options{ChunkSize: 1000, Overlap: 0, DetectChapters: true})

	chunks, metas, err := s.ChunkPages([]string{"Hello world."})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Hello world.", chunks[0])
	assert.Equal(t, []int{1}, metas[0].Pages)
	assert.Empty(t, metas[0].Chapters)
}

func TestChunkPages_BoundaryLengths(t *testing.T) {
	const size = 40

	t.Run("single character page", func(t *testing.T) {
		s := mustNew(t, Options{ChunkSize: size})
		chunks, metas, err := s.ChunkPages([]string{"x"})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "x", chunks[0])
		assert.Equal(t, []int{1}, metas[0].Pages)
	})

	t.Run("page exactly chunk size", func(t *testing.T) {
		s := mustNew(t, Options{ChunkSize: size})
		page := strings.Repeat("a", size)
		chunks, _, err := s.ChunkPages([]string{page})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, page, chunks[0])
	})

	t.Run("page one over chunk size", func(t *testing.T) {
		s := mustNew(t, Options{ChunkSize: size})
		chunks, _, err := s.ChunkPages([]string{strings.Repeat("a", size+1)})
		require.NoError(t, err)
		assert.Len(t, chunks, 2)
	})
}

func TestChunkPages_EmptyPagesSkipped(t *testing.T) {
	s := mustNew(t, Options{ChunkSize: 100})

	chunks, metas, err := s.ChunkPages([]string{"first page", "", "   ", "fourth page"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	// Page numbering follows input positions, not surviving pages.
	assert.Equal(t, []int{1, 4}, metas[0].Pages)
	assert.NotContains(t, chunks[0], "\x00")
}

func TestChunkPages_PagesSortedAndDeduplicated(t *testing.T) {
	s := mustNew(t, Options{ChunkSize: 25})

	pages := []string{
		"alpha beta gamma delta epsilon zeta",
		"eta theta",
	}
	chunks, metas, err := s.ChunkPages(pages)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, meta := range metas {
		require.NotEmpty(t, meta.Pages, "chunk %d has no pages", i)
		for j := 1; j < len(meta.Pages); j++ {
			assert.Greater(t, meta.Pages[j], meta.Pages[j-1], "pages of chunk %d not strictly increasing", i)
		}
		for _, p := range meta.Pages {
			assert.GreaterOrEqual(t, p, 1)
			assert.LessOrEqual(t, p, len(pages))
		}
	}
}

func TestChunkPages_SizeInvariant(t *testing.T) {
	const size, overlap = 50, 20
	s := mustNew(t, Options{ChunkSize: size, Overlap: overlap})

	pages := []string{
		"The quick brown fox jumps over the lazy dog and keeps on running through the quiet forest until dawn breaks over the hills.",
		"A second page with yet more words to push the grouping logic across several chunk boundaries in a row.",
	}
	chunks, metas, err := s.ChunkPages(pages)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	require.Len(t, metas, len(chunks))

	for i, c := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(c))
		assert.LessOrEqual(t, len([]rune(c)), size+overlap+1, "chunk %d exceeds budget: %q", i, c)
	}
}

func TestChunkPages_OverlapSharesWholeWord(t *testing.T) {
	s := mustNew(t, Options{ChunkSize: 50, Overlap: 20})

	chunks, _, err := s.ChunkPages([]string{"First part of text. Second part. Third part. Fourth part."})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1])
		curWords := map[string]bool{}
		for _, w := range strings.Fields(chunks[i]) {
			curWords[w] = true
		}
		shared := false
		for _, w := range prevWords {
			if curWords[w] {
				shared = true
				break
			}
		}
		assert.True(t, shared, "chunks %d and %d share no word", i-1, i)
	}
}

func TestChunkPages_OrderPreserved(t *testing.T) {
	s := mustNew(t, Options{ChunkSize: 30, Overlap: 0})

	pages := []string{"one two three four five six seven eight nine ten eleven twelve"}
	chunks, _, err := s.ChunkPages(pages)
	require.NoError(t, err)

	joined := strings.Fields(strings.Join(chunks, " "))
	assert.Equal(t, strings.Fields(pages[0]), joined)
}

func TestChunkPages_ChapterDetection(t *testing.T) {
	s := mustNew(t, Options{ChunkSize: 20, Overlap: 0, DetectChapters: true})

	pages := []string{
		"Capítulo I\nIntro.",
		"More text.",
		"II\nSecond chapter content.",
	}
	chunks, metas, err := s.ChunkPages(pages)
	require.NoError(t, err)
	require.Len(t, metas, len(chunks))

	chaptersForPage := func(page int) []string {
		var out []string
		for _, meta := range metas {
			for _, p := range meta.Pages {
				if p == page {
					out = append(out, meta.Chapters...)
				}
			}
		}
		return out
	}

	assert.Contains(t, chaptersForPage(1), "Capítulo I")
	assert.Contains(t, chaptersForPage(3), "II")
}

func TestChunkPages_CurrentChapterCarriesForward(t *testing.T) {
	s := mustNew(t, Options{ChunkSize: 15, Overlap: 0, DetectChapters: true})

	pages := []string{"Capítulo Uno", "plain body text", "more body here"}
	_, metas, err := s.ChunkPages(pages)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(metas), 2)

	for i, meta := range metas {
		assert.Contains(t, meta.Chapters, "Capítulo Uno", "chunk %d lost the active chapter", i)
	}
}

func TestChunkPages_NoPages(t *testing.T) {
	s := mustNew(t, Options{ChunkSize: 100})
	_, _, err := s.ChunkPages(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDefaultChapterPolicy(t *testing.T) {
	policy := DefaultChapterPolicy{}

	tests := []struct {
		name  string
		line  string
		label string
		ok    bool
	}{
		{"capitulo lower", "capítulo 3: el mar", "capítulo 3: el mar", true},
		{"capitulo upper", "CAPÍTULO III", "CAPÍTULO III", true},
		{"roman numeral", "XIV La batalla", "XIV La batalla", true},
		{"roman single", "II", "II", true},
		{"word starting with roman letter", "More text here", "", false},
		{"lowercase roman", "iv section", "", false},
		{"plain text", "just a sentence", "", false},
		{"empty", "   ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, ok := policy.Heading(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.label, label)
		})
	}
}

func TestDefaultChapterPolicy_TruncatesLongLabels(t *testing.T) {
	policy := DefaultChapterPolicy{}

	long := "Capítulo " + strings.Repeat("x", 600)
	label, ok := policy.Heading(long)
	require.True(t, ok)
	assert.Len(t, []rune(label), 450)
}
