// Package document holds the immutable text model consumed by the
// classification core: an ordered list of page or section segments, each
// tagged with how its text was obtained.
package document

import (
	"strings"
)

// Source records how a segment's text was produced.
type Source string

const (
	// SourceNative is text pulled from the container's own text layer.
	SourceNative Source = "native"
	// SourceOCR is text recovered from scanned page images.
	SourceOCR Source = "ocr"
)

// Segment is one page or section of a document.
type Segment struct {
	Index  int    // page/section number as reported by the extractor
	Text   string // raw extracted text
	Source Source
}

// Text is the ordered sequence of segments for a single document.
// Callers must treat it as read-only once built.
type Text struct {
	segments []Segment
}

// Span references a byte range inside one segment of a Text.
// Segment is the position in Text.Segments(), not Segment.Index.
type Span struct {
	Segment int `json:"segment"`
	Start   int `json:"start"`
	End     int `json:"end"`
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// New builds a Text from the given segments. The slice is copied so later
// changes by the caller cannot leak into the document.
func New(segments ...Segment) Text {
	out := make([]Segment, len(segments))
	copy(out, segments)
	return Text{segments: out}
}

// FromPages builds a Text where each string is one page.
func FromPages(pages []string, src Source) Text {
	segs := make([]Segment, 0, len(pages))
	for i, p := range pages {
		segs = append(segs, Segment{Index: i, Text: p, Source: src})
	}
	return Text{segments: segs}
}

// Segments returns a copy of the document's segments in order.
func (t Text) Segments() []Segment {
	out := make([]Segment, len(t.segments))
	copy(out, t.segments)
	return out
}

// NumSegments returns the number of segments.
func (t Text) NumSegments() int { return len(t.segments) }

// At returns the segment at position i.
func (t Text) At(i int) Segment { return t.segments[i] }

// IsEmpty reports whether the document carries no non-whitespace text.
func (t Text) IsEmpty() bool {
	for _, s := range t.segments {
		if strings.TrimSpace(s.Text) != "" {
			return false
		}
	}
	return true
}

// Slice returns the text referenced by sp, or "" when the span is out of range.
func (t Text) Slice(sp Span) string {
	if sp.Segment < 0 || sp.Segment >= len(t.segments) {
		return ""
	}
	txt := t.segments[sp.Segment].Text
	if sp.Start < 0 || sp.End > len(txt) || sp.Start > sp.End {
		return ""
	}
	return txt[sp.Start:sp.End]
}

// Prefix returns up to n bytes of the document text, segments joined by newlines.
func (t Text) Prefix(n int) string {
	var b strings.Builder
	for i, s := range t.segments {
		if b.Len() >= n {
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s.Text)
	}
	out := b.String()
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Split turns a raw extracted string into segments. Form feeds mark page
// boundaries. A string without form feeds is cut into blocks of
// linesPerSegment lines so a tail can still be located; linesPerSegment <= 0
// keeps it as a single segment.
func Split(raw string, src Source, linesPerSegment int) Text {
	if strings.ContainsRune(raw, '\f') {
		return FromPages(strings.Split(raw, "\f"), src)
	}
	if linesPerSegment <= 0 || raw == "" {
		return FromPages([]string{raw}, src)
	}

	var pages []string
	var current strings.Builder
	lines := 0
	for _, r := range raw {
		current.WriteRune(r)
		if r == '\n' {
			lines++
			if lines == linesPerSegment {
				pages = append(pages, current.String())
				current.Reset()
				lines = 0
			}
		}
	}
	if current.Len() > 0 {
		pages = append(pages, current.String())
	}
	return FromPages(pages, src)
}
