package tokenize

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/htmlphpfmt/pkg/config"
	"github.com/walteh/htmlphpfmt/pkg/debug"
	"github.com/walteh/htmlphpfmt/pkg/placeholder"
	"gitlab.com/tozd/go/errors"
)

type Handler struct {
	file       string
	tokensPath string
	configPath string
	prefix     string
	maxWidth   int
	debug      bool

	fs  afero.Fs
	dir string
}

func NewTokenizeCommand() *cobra.Command {
	me := &Handler{fs: afero.NewOsFs()}

	cmd := &cobra.Command{
		Use:   "tokenize <file>",
		Short: "replace php regions with placeholders and print the result",
		Long: "Prints the document with every php region replaced by a placeholder token. " +
			"The token map needed by restore is written to --tokens. Use - to read stdin.",
	}

	cmd.Flags().StringVar(&me.tokensPath, "tokens", "", "where to write the token map (default <file>.tokens.json)")
	cmd.Flags().StringVar(&me.configPath, "config", "", "config file to use instead of the nearest .htmlphpfmt.{hcl,yaml,toml}")
	cmd.Flags().StringVar(&me.prefix, "prefix", "", "token prefix (default from config, then "+placeholder.DefaultPrefix+")")
	cmd.Flags().IntVar(&me.maxWidth, "max-width", 0, "longest token emitted (default from config)")
	cmd.Flags().BoolVar(&me.debug, "debug", false, "enable debug logging")
	cmd.Args = cobra.ExactArgs(1)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		me.file = args[0]
		return me.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context, in io.Reader, out, errOut io.Writer) error {
	ctx = debug.WithLogger(ctx, debug.Options{Writer: errOut, Debug: me.debug})

	opts, err := me.options()
	if err != nil {
		return err
	}

	doc, err := readDocument(me.fs, me.file, in)
	if err != nil {
		return err
	}

	res, err := opts.Tokenize(ctx, string(doc))
	if err != nil {
		return err
	}

	tokensPath := me.tokensPath
	if tokensPath == "" {
		if me.file == "-" {
			return errors.Errorf("--tokens is required when reading stdin")
		}
		tokensPath = me.file + ".tokens.json"
	}

	data, err := json.MarshalIndent(res.Map, "", "  ")
	if err != nil {
		return errors.Errorf("encoding token map: %w", err)
	}
	if err := afero.WriteFile(me.fs, tokensPath, append(data, '\n'), 0o644); err != nil {
		return errors.Errorf("writing token map: %w", err)
	}

	if _, err := io.WriteString(out, res.Placeholder); err != nil {
		return errors.Errorf("writing output: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("file", me.file).
		Int("regions", res.Map.Len()).
		Str("tokens", tokensPath).
		Msg("tokenized")

	return nil
}

func (me *Handler) options() (placeholder.Options, error) {
	dir := me.dir
	if dir == "" {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return placeholder.Options{}, errors.Errorf("getting working directory: %w", err)
		}
	}

	cfg, err := config.Resolve(me.fs, dir, me.configPath)
	if err != nil {
		return placeholder.Options{}, err
	}
	if me.prefix != "" {
		cfg.Placeholder.Prefix = me.prefix
	}
	if me.maxWidth != 0 {
		cfg.Placeholder.MaxWidth = me.maxWidth
	}
	return cfg.PlaceholderOptions()
}

func readDocument(fs afero.Fs, path string, in io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, errors.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
