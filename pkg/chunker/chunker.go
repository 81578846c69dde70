// Package chunker splits page-aligned document text into overlapping,
// chapter-aware chunks bounded by a configured character budget.
package chunker

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/ragpipe/ragpipe/pkg/domain"
)

// MaxChunkChars caps how much text a single chunk may carry, keeping every
// chunk inside the embedding model's input window.
const MaxChunkChars = 20000

// Options controls chunk construction.
type Options struct {
	ChunkSize      int
	Overlap        int
	DetectChapters bool
	// Policy recognizes chapter headings. Nil selects DefaultChapterPolicy.
	Policy ChapterPolicy
}

type Service struct {
	chunkSize      int
	overlap        int
	detectChapters bool
	policy         ChapterPolicy
}

func New(opts Options) (*Service, error) {
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidInput, opts.ChunkSize)
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.ChunkSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, chunk size), got %d", domain.ErrInvalidInput, opts.Overlap)
	}
	// A chunk may carry the overlap tail, a joining space and a full-size
	// segment, so the sum must stay under the cap.
	if opts.ChunkSize+opts.Overlap >= MaxChunkChars {
		return nil, fmt.Errorf("%w: chunk size plus overlap must stay below %d, got %d",
			domain.ErrInvalidInput, MaxChunkChars, opts.ChunkSize+opts.Overlap)
	}
	policy := opts.Policy
	if policy == nil {
		policy = DefaultChapterPolicy{}
	}
	return &Service{
		chunkSize:      opts.ChunkSize,
		overlap:        opts.Overlap,
		detectChapters: opts.DetectChapters,
		policy:         policy,
	}, nil
}

// segment is a piece of page text guaranteed to fit inside one chunk.
type segment struct {
	text string
	page int
}

// ChunkPages splits the ordered page texts into chunks and returns per-chunk
// structured metadata. Page numbers are 1-based positions in the input.
func (s *Service) ChunkPages(pages []string) ([]string, []domain.ChunkMetadata, error) {
	if len(pages) == 0 {
		return nil, nil, fmt.Errorf("%w: no pages to chunk", domain.ErrInvalidInput)
	}

	segments := s.ensureLength(pages)
	chunks, metas := s.group(segments)

	if s.detectChapters {
		s.annotateChapters(chunks, metas)
	}
	return chunks, metas, nil
}

// ensureLength walks the pages in order and cuts any page longer than the
// chunk size at the last whitespace inside the window, or at the window edge
// when the window holds no whitespace. Empty pages are skipped without
// disturbing the page numbering of later pages.
func (s *Service) ensureLength(pages []string) []segment {
	var segments []segment
	for i, page := range pages {
		pageNum := i + 1
		text := strings.TrimSpace(page)
		if text == "" {
			continue
		}
		runes := []rune(text)
		for len(runes) > s.chunkSize {
			cut := lastWhitespace(runes[:s.chunkSize])
			next := cut + 1
			if cut < 0 {
				cut = s.chunkSize
				next = cut
			}
			piece := strings.TrimSpace(string(runes[:cut]))
			if piece != "" {
				segments = append(segments, segment{text: piece, page: pageNum})
			}
			runes = []rune(strings.TrimLeftFunc(string(runes[next:]), unicode.IsSpace))
		}
		if rest := strings.TrimSpace(string(runes)); rest != "" {
			segments = append(segments, segment{text: rest, page: pageNum})
		}
	}
	return segments
}

// group accumulates segments into chunks no longer than the chunk size plus
// a single word-boundary of slack, seeding each new chunk with the overlap
// tail of its predecessor when overlap is enabled.
func (s *Service) group(segments []segment) ([]string, []domain.ChunkMetadata) {
	var (
		chunks []string
		metas  []domain.ChunkMetadata

		parts   []string
		pageSet = map[int]struct{}{}
		length  int
	)

	emit := func() {
		if len(parts) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(parts, " "))
		if text == "" {
			parts, pageSet, length = nil, map[int]struct{}{}, 0
			return
		}
		chunks = append(chunks, text)
		metas = append(metas, domain.ChunkMetadata{Pages: sortedPages(pageSet)})
		parts, pageSet, length = nil, map[int]struct{}{}, 0
	}

	for _, seg := range segments {
		segLen := len([]rune(seg.text))
		joined := segLen
		if length > 0 {
			joined += 1 // joining space
		}

		if length+joined > s.chunkSize && length > 0 {
			lastPage := seg.page
			if n := len(parts); n > 0 {
				lastPage = pageOfLast(pageSet)
			}
			prev := strings.Join(parts, " ")
			emit()

			if s.overlap > 0 {
				if tail := overlapTail(prev, s.overlap); tail != "" {
					parts = append(parts, tail)
					length = len([]rune(tail))
					pageSet[lastPage] = struct{}{}
				}
			}
			if length > 0 {
				length++ // space before the incoming segment
			}
		}

		parts = append(parts, seg.text)
		pageSet[seg.page] = struct{}{}
		length += segLen
	}
	emit()

	return chunks, metas
}

// overlapTail returns the suffix of text no longer than overlap runes,
// trimmed forward to the next word boundary so words are never cut. When
// the window holds a single unbroken word, that word is returned whole.
func overlapTail(text string, overlap int) string {
	runes := []rune(text)
	if len(runes) <= overlap {
		return strings.TrimSpace(text)
	}
	window := runes[len(runes)-overlap:]
	ws := strings.IndexFunc(string(window), unicode.IsSpace)
	if ws >= 0 {
		return strings.TrimSpace(string(window)[ws:])
	}
	return strings.TrimSpace(string(window))
}

func (s *Service) annotateChapters(chunks []string, metas []domain.ChunkMetadata) {
	current := ""
	for i, chunk := range chunks {
		var active []string
		seen := map[string]struct{}{}
		add := func(label string) {
			if label == "" {
				return
			}
			if _, ok := seen[label]; ok {
				return
			}
			seen[label] = struct{}{}
			active = append(active, label)
		}

		add(current)
		for _, line := range strings.Split(chunk, "\n") {
			if label, ok := s.policy.Heading(line); ok {
				add(label)
				current = label
			}
		}
		metas[i].Chapters = active
	}
}

func lastWhitespace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

func sortedPages(set map[int]struct{}) []int {
	pages := make([]int, 0, len(set))
	for p := range set {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

func pageOfLast(set map[int]struct{}) int {
	last := 0
	for p := range set {
		if p > last {
			last = p
		}
	}
	return last
}
