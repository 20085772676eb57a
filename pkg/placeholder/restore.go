package placeholder

import (
	"context"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Miss is a token that Restore could not find in the document
type Miss struct {
	// Index is the position of the token in the TokenMap
	Index    int
	Token    string
	Original string
}

// Restored is the output of Restore
type Restored struct {
	Text string
	// Replaced counts substituted occurrences, which can exceed the number of
	// tokens if a formatter duplicated one.
	Replaced int
	Misses   []Miss
}

// Err returns every miss as a *MissError combined in a multierror, or nil when
// all tokens were restored. Misses are warnings: Text is still usable.
func (r *Restored) Err() error {
	var result *multierror.Error
	for _, m := range r.Misses {
		result = multierror.Append(result, &MissError{Miss: m})
	}
	return result.ErrorOrNil()
}

// matcher recognises one token in a (possibly reformatted) document
type matcher struct {
	index    int
	token    string
	original string
	// name is the token up to the whitespace before "/>" for tag tokens, and
	// the whole token otherwise
	name  string
	isTag bool
	hits  int
}

// match reports the length of the token occurrence at the start of s, or 0.
// Tag tokens accept any non-empty whitespace run before their "/>".
func (m *matcher) match(s string) int {
	if !strings.HasPrefix(s, m.name) {
		return 0
	}
	if !m.isTag {
		return len(m.name)
	}

	j := len(m.name)
	ws := j
	for j < len(s) && isSpace(s[j]) {
		j++
	}
	if j == ws || !strings.HasPrefix(s[j:], "/>") {
		return 0
	}
	return j + 2
}

func newMatcher(index int, token, original string) *matcher {
	m := &matcher{index: index, token: token, original: original, name: token}
	if strings.HasPrefix(token, tagLead) && strings.HasSuffix(token, tagTail) {
		m.isTag = true
		m.name = strings.TrimSuffix(token, tagTail)
	}
	return m
}

// Restore puts the original region text back in place of every token in
// tokens. Substitution is literal and restored text is never rescanned, so
// region text containing '$', '\' or token-like strings comes back verbatim.
func Restore(ctx context.Context, document string, tokens *TokenMap) *Restored {
	res := restore(document, tokens)

	logger := zerolog.Ctx(ctx)
	for _, m := range res.Misses {
		logger.Warn().
			Int("index", m.Index).
			Str("token", m.Token).
			Int("original_bytes", len(m.Original)).
			Msg("token not found in formatted document, original region dropped")
	}

	logger.Debug().
		Int("tokens", tokens.Len()).
		Int("replaced", res.Replaced).
		Int("missed", len(res.Misses)).
		Msg("restored document")

	return res
}

func restore(document string, tokens *TokenMap) *Restored {
	res := &Restored{Text: document}
	if tokens.Len() == 0 {
		return res
	}

	matchers := make([]*matcher, 0, tokens.Len())
	i := 0
	for token, original := range tokens.All() {
		matchers = append(matchers, newMatcher(i, token, original))
		i++
	}

	// bucket matchers on a fixed-length key so each document position only
	// tries the few tokens that could start there
	keyLen := len(matchers[0].name)
	for _, m := range matchers {
		keyLen = min(keyLen, len(m.name))
	}
	buckets := make(map[string][]*matcher, len(matchers))
	for _, m := range matchers {
		k := m.name[:keyLen]
		buckets[k] = append(buckets[k], m)
	}
	for _, b := range buckets {
		// longest first so a token is never shadowed by one that prefixes it
		sort.SliceStable(b, func(x, y int) bool { return len(b[x].name) > len(b[y].name) })
	}

	var out strings.Builder
	out.Grow(len(document))

	pos := 0
	for pos < len(document) {
		if keyLen > 0 && pos+keyLen <= len(document) {
			if candidates, ok := buckets[document[pos:pos+keyLen]]; ok {
				if m, n := firstMatch(candidates, document[pos:]); m != nil {
					out.WriteString(m.original)
					m.hits++
					res.Replaced++
					pos += n
					continue
				}
			}
		}
		out.WriteByte(document[pos])
		pos++
	}
	res.Text = out.String()

	for _, m := range matchers {
		if m.hits == 0 {
			res.Misses = append(res.Misses, Miss{Index: m.index, Token: m.token, Original: m.original})
		}
	}

	return res
}

func firstMatch(candidates []*matcher, s string) (*matcher, int) {
	for _, m := range candidates {
		if n := m.match(s); n > 0 {
			return m, n
		}
	}
	return nil, 0
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
