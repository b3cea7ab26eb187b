// Package stream drives token generation and splits the response into
// ordered sentences for downstream synthesis.
package stream

import (
	"regexp"
	"strings"
)

// Sentence is one segmented unit of the streaming response. Seq is assigned
// at detection time and is strictly increasing from zero.
type Sentence struct {
	Seq  int
	Text string
}

// Sentence boundaries: western terminals plus the Devanagari full stop.
var boundaryPattern = regexp.MustCompile(`[.!?।]`)

// Segmenter accumulates token fragments and emits completed sentences in
// arrival order.
type Segmenter struct {
	buf  strings.Builder
	next int
}

// NewSegmenter returns a Segmenter.
func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Push appends a fragment and returns any sentences completed by it. The
// possibly-incomplete remainder stays buffered.
func (s *Segmenter) Push(fragment string) []Sentence {
	if fragment == "" {
		return nil
	}
	s.buf.WriteString(fragment)

	text := s.buf.String()
	locs := boundaryPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	var out []Sentence
	start := 0
	for _, loc := range locs {
		segment := strings.TrimSpace(text[start:loc[0]])
		start = loc[1]
		if segment == "" {
			continue
		}
		out = append(out, Sentence{Seq: s.next, Text: segment})
		s.next++
	}

	s.buf.Reset()
	s.buf.WriteString(text[start:])
	return out
}

// Flush emits the buffered remainder as the final sentence, if any. Called
// once at stream end.
func (s *Segmenter) Flush() *Sentence {
	remainder := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	if remainder == "" {
		return nil
	}
	sent := &Sentence{Seq: s.next, Text: remainder}
	s.next++
	return sent
}

// Count reports how many sentences have been emitted so far.
func (s *Segmenter) Count() int {
	return s.next
}
