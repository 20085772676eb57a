package position

import (
	"fmt"
	"strings"
)

type Place struct {
	Line      int
	Character int
}

type Range struct {
	Start Place
	End   Place
}

// Span represents a run of text in a source document
type Span struct {
	// Offset is the byte offset of the first byte of Text in the source document
	Offset int
	// Text is the exact source text covered by the span
	Text string
}

func NewSpan(text string, offset int) Span {
	return Span{Text: text, Offset: offset}
}

// Length returns the length of the text in bytes
func (p Span) Length() int {
	return len(p.Text)
}

// End returns the byte offset just past the span
func (p Span) End() int {
	return p.Offset + p.Length()
}

func (p Span) HasRangeOverlapWith(start Span) bool {
	startOffset := start.Offset
	endOffset := start.End()

	posOffset := p.Offset
	posEndOffset := p.End()

	// Handle zero-length ranges
	if p.Length() == 0 {
		return posOffset >= startOffset && posOffset <= endOffset
	}
	if start.Length() == 0 {
		return startOffset >= posOffset && startOffset <= posEndOffset
	}

	return startOffset < posEndOffset && endOffset > posOffset
}

// GetLineAndColumn calculates the line and column number of the span start.
// Returns zero-based line and column numbers
func (p Span) GetLineAndColumn(text string) (line, col int) {
	if p.Offset <= 0 {
		return 0, 0
	}

	offset := min(p.Offset, len(text))

	line = strings.Count(text[:offset], "\n")
	lastNewline := strings.LastIndexByte(text[:offset], '\n')

	// Column is just the distance from the last newline
	col = offset - lastNewline - 1

	return line, col
}

func (p Span) GetEndPosition() Span {
	return Span{
		Text:   "",
		Offset: p.End(),
	}
}

// GetRange calculates the one-based line/column range for a Span
func (p Span) GetRange(fileText string) Range {
	startLine, startCol := p.GetLineAndColumn(fileText)
	endLine, endCol := p.GetEndPosition().GetLineAndColumn(fileText)
	return Range{
		Start: Place{Line: startLine + 1, Character: startCol + 1},
		End:   Place{Line: endLine + 1, Character: endCol + 1},
	}
}

func (p Span) String() string {
	return fmt.Sprintf("%s@%d", p.Text, p.Offset)
}

type SpanArray []Span

func (me SpanArray) ToStrings() []string {
	var texts []string
	for _, pos := range me {
		texts = append(texts, pos.String())
	}
	return texts
}
