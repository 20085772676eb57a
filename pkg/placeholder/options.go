package placeholder

import (
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
)

const (
	DefaultPrefix   = "php_"
	DefaultFiller   = '_'
	DefaultMaxWidth = 80

	tagLead       = "<"
	tagTail       = " />"
	attributeLead = "_"
)

// Options controls how tokens are rendered
type Options struct {
	// Prefix is the literal start of every token name, before the id.
	Prefix string
	// Filler pads tokens up to the length of the region they replace.
	Filler byte
	// MaxWidth caps the rendered length of a token, delimiters included.
	MaxWidth int
}

type Option func(*Options)

func WithPrefix(prefix string) Option {
	return func(o *Options) { o.Prefix = prefix }
}

func WithFiller(filler byte) Option {
	return func(o *Options) { o.Filler = filler }
}

func WithMaxWidth(width int) Option {
	return func(o *Options) { o.MaxWidth = width }
}

func DefaultOptions() Options {
	return Options{
		Prefix:   DefaultPrefix,
		Filler:   DefaultFiller,
		MaxWidth: DefaultMaxWidth,
	}
}

func NewOptions(opts ...Option) (Options, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

// Validate checks that tokens rendered with these options are legal both as a
// tag name and as an unquoted attribute value.
func (o Options) Validate() error {
	if o.Prefix == "" {
		return errors.Errorf("%w: empty prefix", ErrInvalidOptions)
	}
	if !isASCIILetter(o.Prefix[0]) {
		return errors.Errorf("%w: prefix %q must start with a letter", ErrInvalidOptions, o.Prefix)
	}
	for i := 0; i < len(o.Prefix); i++ {
		if !isNameByte(o.Prefix[i]) {
			return errors.Errorf("%w: prefix %q contains %q", ErrInvalidOptions, o.Prefix, o.Prefix[i])
		}
	}
	if !isFillerByte(o.Filler) {
		return errors.Errorf("%w: filler %q is not one of '_', '-', '.'", ErrInvalidOptions, o.Filler)
	}
	if o.MaxWidth < len(tagLead)+len(o.Prefix)+1+2+len(tagTail) {
		return errors.Errorf("%w: max width %d cannot hold a single token", ErrInvalidOptions, o.MaxWidth)
	}
	return nil
}

// render builds the token text for the given id and shape, padded towards
// width and never longer than MaxWidth.
func (o Options) render(id int, shape Shape, width int) (string, error) {
	payload := o.payload(id)

	lead, tail := attributeLead, ""
	if shape == TagShape {
		lead, tail = tagLead, tagTail
	}

	minimal := len(lead) + len(payload) + len(tail)
	if minimal > o.MaxWidth {
		return "", errors.Errorf("%w: token %d needs %d characters, max is %d", ErrTokenTooWide, id, minimal, o.MaxWidth)
	}

	target := max(min(width, o.MaxWidth), minimal)

	var sb strings.Builder
	sb.Grow(target)
	sb.WriteString(lead)
	sb.WriteString(payload)
	for i := minimal; i < target; i++ {
		sb.WriteByte(o.Filler)
	}
	sb.WriteString(tail)
	return sb.String(), nil
}

// payload is the name part shared by both shapes: prefix, id, then two separators.
func (o Options) payload(id int) string {
	return o.Prefix + strconv.Itoa(id) + "__"
}

func isASCIILetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isNameByte(c byte) bool {
	return isASCIILetter(c) || ('0' <= c && c <= '9') || c == '_' || c == '-'
}

func isFillerByte(c byte) bool {
	return c == '_' || c == '-' || c == '.'
}
