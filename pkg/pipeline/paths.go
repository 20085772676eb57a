package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/walteh/htmlphpfmt/pkg/diagnostic"
	"github.com/walteh/htmlphpfmt/pkg/format"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// PathOptions configures formatting of files on disk
type PathOptions struct {
	// Check leaves files untouched; Changed reports whether they would change
	Check bool
	// Stdout leaves files untouched as well; callers print Formatted instead
	Stdout bool
	// Jobs bounds concurrent files; zero means GOMAXPROCS
	Jobs int
	// Include and Exclude are doublestar patterns matched against paths
	// relative to each directory argument
	Include []string
	Exclude []string
	// Resolve adjusts formatter options per file; nil means StaticOptions
	Resolve OptionsResolver
}

// FileResult captures the result of formatting a single file
type FileResult struct {
	Path        string
	Changed     bool
	Err         error
	Formatted   []byte
	Original    []byte
	Diagnostics *diagnostic.Diagnostics
	Took        time.Duration
}

type Results []FileResult

// Err combines the per-file errors, or returns nil
func (r Results) Err() error {
	var err error
	for _, res := range r {
		if res.Err != nil {
			err = multierr.Append(err, errors.Errorf("%s: %w", res.Path, res.Err))
		}
	}
	return err
}

// Warnings counts regions lost across all files
func (r Results) Warnings() int {
	n := 0
	for _, res := range r {
		if res.Diagnostics != nil {
			n += len(res.Diagnostics.Warnings)
		}
	}
	return n
}

// FormatPaths formats the given files, and the files under the given
// directories that match opts.Include and not opts.Exclude. Files are handled
// in parallel; a failing file does not stop the others.
func (p *Pipeline) FormatPaths(ctx context.Context, fs afero.Fs, paths []string, opts PathOptions) (Results, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files, err := CollectFiles(ctx, fs, paths, opts.Include, opts.Exclude)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no source files found")
	}

	resolve := opts.Resolve
	if resolve == nil {
		resolve = StaticOptions
	}

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	logger := zerolog.Ctx(ctx)

	// each goroutine owns one index, no locking needed
	results := make(Results, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(files)))

	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res := p.formatFile(gctx, fs, path, opts, resolve)
			results[i] = res

			event := logger.Info()
			if res.Err != nil {
				event = logger.Error().Err(res.Err)
			} else if res.Diagnostics != nil && len(res.Diagnostics.Warnings) > 0 {
				event = logger.Warn().Int("lost_regions", len(res.Diagnostics.Warnings))
			}
			event.
				Str("file", path).
				Bool("changed", res.Changed).
				Str("took", formatMillis(res.Took)).
				Msg("processed file")

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	return results, nil
}

func (p *Pipeline) formatFile(ctx context.Context, fs afero.Fs, path string, opts PathOptions, resolve OptionsResolver) FileResult {
	result := FileResult{Path: path}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		result.Err = errors.Errorf("reading: %w", err)
		return result
	}
	result.Original = data

	htmlOpts := resolve(path, format.HTML, p.HTML)
	phpOpts := resolve(path, format.PHP, p.PHP)

	doc, err := p.formatDocument(ctx, string(data), htmlOpts, phpOpts)
	if err != nil {
		result.Err = err
		return result
	}

	result.Took = doc.Took
	result.Diagnostics = doc.Diagnostics
	result.Changed = doc.Changed(string(data))
	result.Formatted = []byte(doc.Formatted)

	if opts.Check || opts.Stdout {
		return result
	}

	if result.Changed {
		mode := os.FileMode(0o644)
		if info, statErr := fs.Stat(path); statErr == nil {
			mode = info.Mode()
		}
		if err := afero.WriteFile(fs, path, result.Formatted, mode.Perm()); err != nil {
			result.Err = errors.Errorf("writing: %w", err)
		}
	}

	return result
}

// CollectFiles expands directories into the files below them matching
// include and not exclude. Files named explicitly are always kept.
func CollectFiles(ctx context.Context, fs afero.Fs, paths, include, exclude []string) ([]string, error) {
	for _, pattern := range append(append([]string(nil), include...), exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.Errorf("invalid glob pattern %q", pattern)
		}
	}

	var files []string
	seen := make(map[string]struct{})
	addFile := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, root := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := fs.Stat(root)
		if err != nil {
			return nil, errors.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			addFile(root)
			continue
		}

		err = afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)

			if info.IsDir() {
				if rel != "." && (matchAny(exclude, rel) || matchAny(exclude, rel+"/")) {
					return filepath.SkipDir
				}
				return nil
			}

			if matchAny(include, rel) && !matchAny(exclude, rel) {
				addFile(path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Errorf("walking %s: %w", root, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func formatMillis(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 2, 64) + "ms"
}
