// Package format wraps the external formatters the pipeline hands documents to.
package format

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

type Language string

const (
	HTML Language = "html"
	PHP  Language = "php"
)

// Options are the layout settings passed to a formatter for one document
type Options struct {
	PrintWidth int
	TabWidth   int
	UseTabs    bool
}

// Formatter reformats text written in the given language
type Formatter interface {
	Format(ctx context.Context, text string, lang Language, opts Options) (string, error)
}

// FormatterFunc adapts a function to the Formatter interface
type FormatterFunc func(ctx context.Context, text string, lang Language, opts Options) (string, error)

func (f FormatterFunc) Format(ctx context.Context, text string, lang Language, opts Options) (string, error) {
	return f(ctx, text, lang, opts)
}

// Identity returns every document unchanged
var Identity Formatter = FormatterFunc(func(_ context.Context, text string, _ Language, _ Options) (string, error) {
	return text, nil
})

// ExecFormatter runs a prettier-compatible command line, feeding the document
// on stdin and reading the result from stdout.
type ExecFormatter struct {
	// Command is the executable, "prettier" by default
	Command string
	// Args are placed before the generated flags
	Args []string
	// Plugins lists the plugins to load per language, e.g. @prettier/plugin-php
	Plugins map[Language][]string
	// Timeout bounds a single invocation; zero means no limit beyond ctx
	Timeout time.Duration
}

func NewExecFormatter(command string, timeout time.Duration) *ExecFormatter {
	if command == "" {
		command = "prettier"
	}
	return &ExecFormatter{
		Command: command,
		Plugins: map[Language][]string{
			PHP: {"@prettier/plugin-php"},
		},
		Timeout: timeout,
	}
}

// BuildArgs returns the full argument list for one invocation
func (f *ExecFormatter) BuildArgs(lang Language, opts Options) []string {
	args := append([]string(nil), f.Args...)
	for _, plugin := range f.Plugins[lang] {
		args = append(args, "--plugin", plugin)
	}
	args = append(args, "--parser", string(lang))
	if opts.PrintWidth > 0 {
		args = append(args, "--print-width", strconv.Itoa(opts.PrintWidth))
	}
	if opts.TabWidth > 0 {
		args = append(args, "--tab-width", strconv.Itoa(opts.TabWidth))
	}
	if opts.UseTabs {
		args = append(args, "--use-tabs")
	}
	return args
}

func (f *ExecFormatter) Format(ctx context.Context, text string, lang Language, opts Options) (string, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	args := f.BuildArgs(lang, opts)
	cmd := exec.CommandContext(ctx, f.Command, args...)
	cmd.Stdin = strings.NewReader(text)
	// stop waiting on pipes held open by orphaned children once the command is killed
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	zerolog.Ctx(ctx).Debug().
		Str("command", f.Command).
		Strs("args", args).
		Str("language", string(lang)).
		Dur("took", time.Since(start)).
		Msg("ran formatter")

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", errors.Errorf("running %s for %s: %w", f.Command, lang, ctxErr)
	}
	if err != nil {
		return "", errors.Errorf("running %s for %s: %w: %s", f.Command, lang, err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}
