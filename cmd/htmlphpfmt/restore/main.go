package restore

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/htmlphpfmt/pkg/debug"
	"github.com/walteh/htmlphpfmt/pkg/placeholder"
	"gitlab.com/tozd/go/errors"
)

type Handler struct {
	file       string
	tokensPath string
	strict     bool
	debug      bool

	fs afero.Fs
}

func NewRestoreCommand() *cobra.Command {
	me := &Handler{fs: afero.NewOsFs()}

	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "put php regions back in place of their placeholders",
		Long: "Reads a (possibly reformatted) placeholder document and prints it with every token " +
			"replaced by the php region it stands for. Use - to read stdin.",
	}

	cmd.Flags().StringVar(&me.tokensPath, "tokens", "", "token map written by tokenize")
	cmd.Flags().BoolVar(&me.strict, "strict", false, "exit non-zero when a token is missing from the document")
	cmd.Flags().BoolVar(&me.debug, "debug", false, "enable debug logging")
	_ = cmd.MarkFlagRequired("tokens")
	cmd.Args = cobra.ExactArgs(1)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		me.file = args[0]
		return me.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context, in io.Reader, out, errOut io.Writer) error {
	ctx = debug.WithLogger(ctx, debug.Options{Writer: errOut, Debug: me.debug})

	data, err := afero.ReadFile(me.fs, me.tokensPath)
	if err != nil {
		return errors.Errorf("reading token map: %w", err)
	}

	tokens := placeholder.NewTokenMap()
	if err := json.Unmarshal(data, tokens); err != nil {
		return errors.Errorf("decoding token map %s: %w", me.tokensPath, err)
	}

	var doc []byte
	if me.file == "-" {
		doc, err = io.ReadAll(in)
	} else {
		doc, err = afero.ReadFile(me.fs, me.file)
	}
	if err != nil {
		return errors.Errorf("reading %s: %w", me.file, err)
	}

	restored := placeholder.Restore(ctx, string(doc), tokens)

	if _, err := io.WriteString(out, restored.Text); err != nil {
		return errors.Errorf("writing output: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("file", me.file).
		Int("replaced", restored.Replaced).
		Int("missed", len(restored.Misses)).
		Msg("restored")

	if me.strict {
		if err := restored.Err(); err != nil {
			return err
		}
	}

	return nil
}
