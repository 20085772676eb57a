package format_files

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/htmlphpfmt/pkg/config"
	"github.com/walteh/htmlphpfmt/pkg/debug"
	"github.com/walteh/htmlphpfmt/pkg/diff"
	"github.com/walteh/htmlphpfmt/pkg/pipeline"
	"gitlab.com/tozd/go/errors"
)

var (
	ErrUnformatted = errors.Base("files are not formatted")
	ErrLostRegions = errors.Base("php regions were lost")
)

type Handler struct {
	paths      []string
	check      bool
	stdout     bool
	showDiff   bool
	strict     bool
	noPHPPass  bool
	debug      bool
	format     string // text, json, vscode
	configPath string
	jobs       int

	// overridable in tests
	fs          afero.Fs
	dir         string
	newPipeline func(cfg *config.Config) (*pipeline.Pipeline, error)
}

func NewFormatCommand() *cobra.Command {
	me := &Handler{
		fs:          afero.NewOsFs(),
		newPipeline: pipeline.NewFromConfig,
	}

	cmd := &cobra.Command{
		Use:     "fmt [paths...]",
		Aliases: []string{"format"},
		Short:   "format html files with embedded php",
		Long: "Formats the given files, or the matching files below the given directories, " +
			"by hiding php regions behind placeholders while prettier formats the html.",
	}

	cmd.Flags().BoolVar(&me.check, "check", false, "report files that would change and exit non-zero, without writing")
	cmd.Flags().BoolVar(&me.stdout, "stdout", false, "print formatted documents instead of writing them")
	cmd.Flags().BoolVar(&me.showDiff, "diff", false, "print a diff of the changes instead of writing them")
	cmd.Flags().BoolVar(&me.strict, "strict", false, "exit non-zero when a php region could not be restored")
	cmd.Flags().BoolVar(&me.noPHPPass, "no-php-pass", false, "skip the php formatting pass after restoring regions")
	cmd.Flags().BoolVar(&me.debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&me.format, "format", "text", "the format of the diagnostics (text, json, vscode)")
	cmd.Flags().StringVar(&me.configPath, "config", "", "config file to use instead of the nearest .htmlphpfmt.{hcl,yaml,toml}")
	cmd.Flags().IntVar(&me.jobs, "jobs", 0, "number of files formatted in parallel (default from config, then GOMAXPROCS)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		me.paths = args
		return me.Run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context, out, errOut io.Writer) error {
	ctx = debug.WithLogger(ctx, debug.Options{
		Writer: errOut,
		Debug:  me.debug,
		Color:  isTerminal(errOut),
	})

	rep, err := newReporter(errOut, me.format)
	if err != nil {
		return err
	}

	dir := me.dir
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return errors.Errorf("getting working directory: %w", err)
		}
	}

	cfg, err := config.Resolve(me.fs, dir, me.configPath)
	if err != nil {
		return err
	}

	p, err := me.newPipeline(cfg)
	if err != nil {
		return err
	}
	if me.noPHPPass {
		p.SkipPHPPass = true
	}

	opts := pipeline.PathOptionsFromConfig(me.fs, cfg)
	if me.jobs > 0 {
		opts.Jobs = me.jobs
	}
	opts.Check = me.check || me.showDiff
	opts.Stdout = me.stdout

	paths := me.paths
	if len(paths) == 0 {
		paths = []string{dir}
	}

	zerolog.Ctx(ctx).Debug().Strs("paths", paths).Int("jobs", opts.Jobs).Msg("formatting")

	start := time.Now()
	results, err := p.FormatPaths(ctx, me.fs, paths, opts)
	if err != nil {
		return err
	}

	for _, res := range results {
		if res.Err != nil {
			continue
		}
		if me.stdout {
			if _, err := out.Write(res.Formatted); err != nil {
				return errors.Errorf("writing output: %w", err)
			}
		}
		if me.showDiff && res.Changed {
			if _, err := fmt.Fprint(out, diff.Document(res.Path, string(res.Original), string(res.Formatted))); err != nil {
				return errors.Errorf("writing diff: %w", err)
			}
		}
		if err := rep.diagnostics(res.Path, res.Diagnostics); err != nil {
			return err
		}
	}

	if err := rep.flush(); err != nil {
		return errors.Errorf("writing diagnostics: %w", err)
	}
	rep.summary(results, opts.Check, time.Since(start))

	if err := results.Err(); err != nil {
		return err
	}

	if me.check {
		if n := countChanged(results); n > 0 {
			return errors.Errorf("%w: %d", ErrUnformatted, n)
		}
	}

	if me.strict {
		if n := results.Warnings(); n > 0 {
			return errors.Errorf("%w: %d", ErrLostRegions, n)
		}
	}

	return nil
}

func countChanged(results pipeline.Results) int {
	n := 0
	for _, res := range results {
		if res.Err == nil && res.Changed {
			n++
		}
	}
	return n
}
