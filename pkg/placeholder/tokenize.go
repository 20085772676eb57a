package placeholder

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/apparentlymart/go-textseg/v13/textseg"
	"github.com/rs/zerolog"
	"github.com/walteh/htmlphpfmt/pkg/position"
	"gitlab.com/tozd/go/errors"
)

const closeDelim = "?>"

// raw text elements keep their content away from the markup grammar
var rawTextElements = map[string]bool{
	"script":   true,
	"style":    true,
	"textarea": true,
	"title":    true,
}

// Result is the output of Tokenize
type Result struct {
	// Placeholder is the document with every region replaced by its token
	Placeholder string
	// Map holds rendered token -> original region text, in discovery order
	Map *TokenMap
	// Tokens lists every issued token together with the region it replaced
	Tokens []Token
}

// Regions returns the regions found in the source document, in order
func (r *Result) Regions() []Region {
	regions := make([]Region, 0, len(r.Tokens))
	for _, tok := range r.Tokens {
		regions = append(regions, tok.Region)
	}
	return regions
}

// Tokenize replaces every embedded PHP region in document with a placeholder
// token using the default options.
func Tokenize(ctx context.Context, document string) (*Result, error) {
	return DefaultOptions().Tokenize(ctx, document)
}

// Tokenize replaces every embedded PHP region in document with a placeholder token.
func (o Options) Tokenize(ctx context.Context, document string) (*Result, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	logger := zerolog.Ctx(ctx)

	opts := o
	for attempt := 1; ; attempt++ {
		res, err := opts.scan(document)
		if err != nil {
			return nil, errors.Errorf("tokenizing document: %w", err)
		}

		// text that already reads like one of our tokens would be replaced on
		// restore, so the prefix changes until the document restores exactly
		if restore(res.Placeholder, res.Map).Text == document {
			logger.Debug().
				Int("regions", len(res.Tokens)).
				Int("bytes_in", len(document)).
				Int("bytes_out", len(res.Placeholder)).
				Str("prefix", opts.Prefix).
				Msg("tokenized document")
			return res, nil
		}

		if attempt >= maxPrefixAttempts {
			return nil, errors.Errorf("%w: document already contains tokens for prefixes %q to %q", ErrTokenCollision, o.Prefix, opts.Prefix)
		}

		opts.Prefix = saltedPrefix(o.Prefix, attempt)
		logger.Debug().
			Str("prefix", opts.Prefix).
			Msg("document contains placeholder text, retrying with another prefix")
	}
}

// maxPrefixAttempts bounds how many prefixes Tokenize tries on one document
const maxPrefixAttempts = 32

func saltedPrefix(prefix string, n int) string {
	return prefix + "x" + strconv.Itoa(n) + "_"
}

func (o Options) scan(document string) (*Result, error) {
	s := &scanner{
		doc:  document,
		opts: o,
		res: &Result{
			Map: NewTokenMap(),
		},
	}
	s.out.Grow(len(document))

	if err := s.run(); err != nil {
		return nil, err
	}

	s.res.Placeholder = s.out.String()
	return s.res, nil
}

type markupState int

const (
	stateText markupState = iota
	stateTag
	stateComment
	stateRawText
)

// scanner walks the document once. Its only state is where in the markup the
// last emitted byte left us, which is all the context classification needs.
type scanner struct {
	doc  string
	opts Options
	res  *Result
	out  strings.Builder

	state markupState
	// quote is the open quote character inside a tag, or 0
	quote byte
	// valueStart is set from an attribute's '=' up to the first byte of its
	// value. Only there does a quote open a quoted value.
	valueStart bool
	// tagName is the lowercased name of the tag currently open, if it is a start tag
	tagName string
	// rawClose is the end tag that leaves the current raw text element, e.g. "</script"
	rawClose string
	nextID   int
}

func (s *scanner) run() error {
	i := 0
	for i < len(s.doc) {
		if n := openerLen(s.doc, i); n > 0 {
			end, terminated := regionEnd(s.doc, i+n)
			if err := s.emitRegion(i, end, terminated); err != nil {
				return err
			}
			i = end
			continue
		}
		i += s.step(i)
	}
	return nil
}

// step copies markup starting at i to the output, updates the markup state and
// returns how many bytes it consumed.
func (s *scanner) step(i int) int {
	rest := s.doc[i:]
	c := rest[0]

	switch s.state {
	case stateText:
		if c == '<' {
			if strings.HasPrefix(rest, "<!--") {
				s.state = stateComment
				s.out.WriteString("<!--")
				return 4
			}
			if opensTag(s.doc, i) {
				s.state = stateTag
				s.quote = 0
				s.valueStart = false
				s.tagName = startTagName(rest[1:])
			}
		}
	case stateTag:
		switch {
		case s.quote != 0:
			if c == s.quote {
				s.quote = 0
			}
		case c == '=':
			s.valueStart = true
		case isSpace(c):
		case (c == '"' || c == '\'') && s.valueStart:
			s.quote = c
			s.valueStart = false
		case c == '>':
			s.state = stateText
			s.valueStart = false
			if rawTextElements[s.tagName] && !selfClosed(s.out.String()) {
				s.state = stateRawText
				s.rawClose = "</" + s.tagName
			}
			s.tagName = ""
		default:
			s.valueStart = false
		}
	case stateComment:
		if strings.HasPrefix(rest, "-->") {
			s.state = stateText
			s.out.WriteString("-->")
			return 3
		}
	case stateRawText:
		if c == '<' && closesRawText(rest, s.rawClose) {
			s.state = stateTag
			s.quote = 0
			s.valueStart = false
			s.tagName = ""
			s.rawClose = ""
		}
	}

	s.out.WriteByte(c)
	return 1
}

func (s *scanner) context() ContextKind {
	switch s.state {
	case stateTag:
		return InAttribute
	case stateComment, stateRawText:
		return InRawText
	}
	return Standalone
}

func (s *scanner) emitRegion(start, end int, terminated bool) error {
	region := Region{
		Span:       position.NewSpan(s.doc[start:end], start),
		Context:    s.context(),
		Terminated: terminated,
	}

	shape := region.Context.Shape()
	rendered, err := s.opts.render(s.nextID, shape, displayWidth(region.Text))
	if err != nil {
		return err
	}

	if err := s.res.Map.Add(rendered, region.Text); err != nil {
		return err
	}

	s.res.Tokens = append(s.res.Tokens, Token{
		ID:       s.nextID,
		Shape:    shape,
		Rendered: rendered,
		Region:   region,
	})
	s.nextID++
	// a region right after '=' is the value itself
	s.valueStart = false

	s.out.WriteString(rendered)
	return nil
}

// openerLen returns the length of the region opening delimiter at i, or 0.
func openerLen(doc string, i int) int {
	rest := doc[i:]
	if len(rest) < 3 || rest[0] != '<' || rest[1] != '?' {
		return 0
	}
	if rest[2] == '=' {
		return 3
	}
	if len(rest) >= 5 && strings.EqualFold(rest[2:5], "php") {
		return 5
	}
	return 0
}

// regionEnd finds the end of a region whose body starts at from. A region
// without a closing delimiter runs to the end of the document.
func regionEnd(doc string, from int) (end int, terminated bool) {
	idx := strings.Index(doc[from:], closeDelim)
	if idx < 0 {
		return len(doc), false
	}
	return from + idx + len(closeDelim), true
}

// opensTag reports whether the '<' at i starts a tag rather than plain text.
func opensTag(doc string, i int) bool {
	if i+1 >= len(doc) {
		return false
	}
	c := doc[i+1]
	return isASCIILetter(c) || c == '/' || c == '!' || c == '?' || openerLen(doc, i+1) > 0
}

func startTagName(s string) string {
	n := 0
	for n < len(s) && isNameByte(s[n]) {
		n++
	}
	return strings.ToLower(s[:n])
}

// selfClosed reports whether the tag just emitted ends in "/" before its '>'.
func selfClosed(out string) bool {
	return strings.HasSuffix(strings.TrimRight(out, " \t\r\n"), "/")
}

func closesRawText(rest, rawClose string) bool {
	if len(rest) < len(rawClose) || !strings.EqualFold(rest[:len(rawClose)], rawClose) {
		return false
	}
	if len(rest) == len(rawClose) {
		return true
	}
	switch rest[len(rawClose)] {
	case '>', '/', ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}

// displayWidth measures text in grapheme clusters, which is what line width
// decisions in a formatter are based on.
func displayWidth(text string) int {
	n, err := textseg.TokenCount([]byte(text), textseg.ScanGraphemeClusters)
	if err != nil {
		return utf8.RuneCountInString(text)
	}
	return n
}
