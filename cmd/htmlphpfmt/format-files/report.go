package format_files

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/walteh/htmlphpfmt/pkg/diagnostic"
	"github.com/walteh/htmlphpfmt/pkg/pipeline"
	"golang.org/x/term"
)

const (
	defaultWidth  = 80
	messageIndent = 4
)

// reporter prints diagnostics and the run summary for humans, or collects the
// diagnostics of every file for a machine readable formatter.
type reporter struct {
	w         io.Writer
	color     bool
	width     int
	formatter diagnostic.Formatter
	// pending holds diagnostics for the formatter until flush
	pending []diagnostic.FileDiagnostics
}

func newReporter(w io.Writer, formatName string) (*reporter, error) {
	r := &reporter{w: w, width: defaultWidth}

	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r.color = true
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			r.width = width
		}
	}

	if formatName != "text" {
		fm, err := diagnostic.NewFormatter(formatName)
		if err != nil {
			return nil, err
		}
		r.formatter = fm
	}

	return r, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func (r *reporter) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if r.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func (r *reporter) severity(s diagnostic.DiagnosticSeverity) string {
	switch s {
	case diagnostic.Error:
		return r.paint(color.FgRed, color.Bold).Sprint(s)
	case diagnostic.Warning:
		return r.paint(color.FgYellow, color.Bold).Sprint(s)
	}
	return r.paint(color.FgCyan).Sprint(s)
}

func (r *reporter) diagnostics(path string, d *diagnostic.Diagnostics) error {
	if d.Len() == 0 {
		return nil
	}

	if r.formatter != nil {
		r.pending = append(r.pending, diagnostic.FileDiagnostics{Path: path, Diagnostics: d})
		return nil
	}

	for _, diag := range d.All() {
		loc := r.paint(color.Bold).Sprintf("%s:%d:%d", path, diag.Line, diag.Column)
		fmt.Fprintf(r.w, "%s: %s\n", loc, r.severity(diag.Severity))

		msg := wordwrap.String(diag.Message, max(r.width-messageIndent, 20))
		fmt.Fprintln(r.w, indent.String(msg, messageIndent))
	}
	return nil
}

// flush writes everything collected for the formatter as one document. A run
// without diagnostics still writes an empty one.
func (r *reporter) flush() error {
	if r.formatter == nil {
		return nil
	}

	data, err := r.formatter.FormatFiles(r.pending)
	if err != nil {
		return err
	}
	r.pending = nil

	_, err = fmt.Fprintf(r.w, "%s\n", data)
	return err
}

func (r *reporter) summary(results pipeline.Results, check bool, took time.Duration) {
	if r.formatter != nil {
		return
	}

	changed, failed := 0, 0
	for _, res := range results {
		switch {
		case res.Err != nil:
			failed++
		case res.Changed:
			changed++
			if check {
				fmt.Fprintf(r.w, "%s %s\n", r.paint(color.FgYellow).Sprint("would reformat"), res.Path)
			}
		}
	}

	verb := "formatted"
	if check {
		verb = "unformatted"
	}

	line := fmt.Sprintf("%d files checked, %d %s", len(results), changed, verb)
	if failed > 0 {
		line += r.paint(color.FgRed).Sprintf(", %d failed", failed)
	}
	if lost := results.Warnings(); lost > 0 {
		line += r.paint(color.FgYellow).Sprintf(", %d php regions lost", lost)
	}
	fmt.Fprintf(r.w, "%s (%s)\n", line, took.Round(time.Millisecond))
}
