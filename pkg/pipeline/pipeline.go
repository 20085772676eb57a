// Package pipeline formats mixed HTML and PHP documents: PHP regions are
// swapped for placeholders, the markup goes through an HTML formatter, the
// regions are restored, and the result optionally goes through a PHP formatter.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/htmlphpfmt/pkg/diagnostic"
	"github.com/walteh/htmlphpfmt/pkg/format"
	"github.com/walteh/htmlphpfmt/pkg/placeholder"
	"gitlab.com/tozd/go/errors"
)

// Pipeline holds everything needed to format one document
type Pipeline struct {
	Formatter   format.Formatter
	Placeholder placeholder.Options
	HTML        format.Options
	PHP         format.Options
	// SkipPHPPass leaves restored documents as the HTML formatter produced them
	SkipPHPPass bool
}

func New(formatter format.Formatter) *Pipeline {
	return &Pipeline{
		Formatter:   formatter,
		Placeholder: placeholder.DefaultOptions(),
		HTML:        format.Options{PrintWidth: 80, TabWidth: 2},
		PHP:         format.Options{PrintWidth: 80, TabWidth: 4},
	}
}

// DocumentResult is the outcome of formatting one document
type DocumentResult struct {
	Formatted   string
	Tokenized   *placeholder.Result
	Restored    *placeholder.Restored
	Diagnostics *diagnostic.Diagnostics
	Took        time.Duration
}

// Changed reports whether formatting altered the source
func (r *DocumentResult) Changed(source string) bool {
	return r.Formatted != source
}

// FormatDocument runs the full pipeline over source. Regions the HTML
// formatter mangled are reported in the result's diagnostics, not as an error.
func (p *Pipeline) FormatDocument(ctx context.Context, source string) (*DocumentResult, error) {
	return p.formatDocument(ctx, source, p.HTML, p.PHP)
}

func (p *Pipeline) formatDocument(ctx context.Context, source string, htmlOpts, phpOpts format.Options) (*DocumentResult, error) {
	if p.Formatter == nil {
		return nil, errors.Errorf("pipeline has no formatter")
	}

	start := time.Now()

	tokenized, err := p.Placeholder.Tokenize(ctx, source)
	if err != nil {
		return nil, err
	}

	html, err := p.Formatter.Format(ctx, tokenized.Placeholder, format.HTML, htmlOpts)
	if err != nil {
		return nil, errors.Errorf("formatting html: %w", err)
	}

	restored := placeholder.Restore(ctx, html, tokenized.Map)
	formatted := restored.Text

	// a document without php has nothing for the php formatter to do
	if !p.SkipPHPPass && tokenized.Map.Len() > 0 {
		formatted, err = p.Formatter.Format(ctx, restored.Text, format.PHP, phpOpts)
		if err != nil {
			return nil, errors.Errorf("formatting php: %w", err)
		}
	}

	diags, err := diagnostic.Generate(source, tokenized, restored)
	if err != nil {
		return nil, err
	}

	res := &DocumentResult{
		Formatted:   formatted,
		Tokenized:   tokenized,
		Restored:    restored,
		Diagnostics: diags,
		Took:        time.Since(start),
	}

	zerolog.Ctx(ctx).Debug().
		Int("regions", tokenized.Map.Len()).
		Int("lost", len(restored.Misses)).
		Dur("took", res.Took).
		Msg("formatted document")

	return res, nil
}
