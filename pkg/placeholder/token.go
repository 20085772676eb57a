// Package placeholder swaps embedded PHP regions in an HTML document for
// markup-safe placeholder tokens and puts the original regions back after the
// document has been through an HTML formatter.
package placeholder

import (
	"fmt"

	"github.com/walteh/htmlphpfmt/pkg/position"
)

// ContextKind describes where in the markup a region was found
type ContextKind int

const (
	// Standalone regions sit outside any open tag, between tags or in text content.
	Standalone ContextKind = iota
	// InAttribute regions sit inside an open tag, before its closing '>'.
	InAttribute
	// InRawText regions sit inside a comment or the content of a raw text
	// element such as <script> or <style>.
	InRawText
)

func (k ContextKind) String() string {
	switch k {
	case Standalone:
		return "standalone"
	case InAttribute:
		return "attribute"
	case InRawText:
		return "rawtext"
	}
	return fmt.Sprintf("ContextKind(%d)", int(k))
}

// Shape returns the token shape that is grammatically legal in this context
func (k ContextKind) Shape() Shape {
	if k == Standalone {
		return TagShape
	}
	return AttributeShape
}

// Shape is the surface form of a rendered token
type Shape int

const (
	// TagShape tokens are self-closing tags: <php_0__ />
	TagShape Shape = iota
	// AttributeShape tokens are bare identifiers: _php_0__
	AttributeShape
)

func (s Shape) String() string {
	if s == TagShape {
		return "tag"
	}
	return "attribute"
}

// Region is one embedded PHP region found in the source document
type Region struct {
	position.Span
	Context ContextKind
	// Terminated is false when the region ran to the end of the document
	// without a closing delimiter.
	Terminated bool
}

// Token is the placeholder substituted for exactly one Region
type Token struct {
	ID       int
	Shape    Shape
	Rendered string
	Region   Region
}

func (t Token) String() string {
	return fmt.Sprintf("%s#%d(%s)", t.Shape, t.ID, t.Rendered)
}
