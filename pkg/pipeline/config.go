package pipeline

import (
	"github.com/spf13/afero"
	"github.com/walteh/htmlphpfmt/pkg/config"
	"github.com/walteh/htmlphpfmt/pkg/format"
)

// NewFromConfig builds a pipeline around the prettier command described by cfg
func NewFromConfig(cfg *config.Config) (*Pipeline, error) {
	fmtr, err := cfg.Formatter()
	if err != nil {
		return nil, err
	}

	opts, err := cfg.PlaceholderOptions()
	if err != nil {
		return nil, err
	}

	p := New(fmtr)
	p.Placeholder = opts
	p.HTML = cfg.FormatOptions(format.HTML)
	p.PHP = cfg.FormatOptions(format.PHP)
	p.SkipPHPPass = cfg.SkipPHPPass
	return p, nil
}

// PathOptionsFromConfig returns the file selection and concurrency settings of
// cfg. Per file options come from the .editorconfig files on fs.
func PathOptionsFromConfig(fs afero.Fs, cfg *config.Config) PathOptions {
	return PathOptions{
		Jobs:    cfg.Jobs,
		Include: cfg.Include,
		Exclude: cfg.Exclude,
		Resolve: EditorConfigOptions(fs),
	}
}
