package pipeline

import (
	"path/filepath"
	"strconv"

	"github.com/editorconfig/editorconfig-core-go/v2"
	"github.com/spf13/afero"
	"github.com/walteh/htmlphpfmt/pkg/format"
)

const editorconfigName = ".editorconfig"

// OptionsResolver adjusts the formatter options for one file
type OptionsResolver func(path string, lang format.Language, base format.Options) format.Options

// StaticOptions leaves the configured options untouched
func StaticOptions(_ string, _ format.Language, base format.Options) format.Options {
	return base
}

// EditorConfigOptions returns a resolver that applies indent_style,
// indent_size, tab_width and max_line_length from the .editorconfig files on
// fs governing a path. Closer files win; a file marked root ends the search.
func EditorConfigOptions(fs afero.Fs) OptionsResolver {
	return func(path string, _ format.Language, base format.Options) format.Options {
		defs := editorconfigDefinitions(fs, path)

		opts := base
		for i := len(defs) - 1; i >= 0; i-- {
			opts = applyDefinition(opts, defs[i])
		}
		return opts
	}
}

// editorconfigDefinitions returns the sections matching path, closest file first.
// Unreadable or malformed files are skipped.
func editorconfigDefinitions(fs afero.Fs, path string) []*editorconfig.Definition {
	if _, ok := fs.(*afero.OsFs); ok {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	var defs []*editorconfig.Definition
	for dir := filepath.Dir(path); ; {
		if ec := parseEditorconfig(fs, filepath.Join(dir, editorconfigName)); ec != nil {
			if rel, err := filepath.Rel(dir, path); err == nil {
				def, err := ec.GetDefinitionForFilename("/" + filepath.ToSlash(rel))
				if err == nil && def != nil {
					defs = append(defs, def)
				}
			}
			if ec.Root {
				break
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return defs
}

func parseEditorconfig(fs afero.Fs, name string) *editorconfig.Editorconfig {
	f, err := fs.Open(name)
	if err != nil {
		return nil
	}
	defer f.Close()

	ec, err := editorconfig.Parse(f)
	if err != nil {
		return nil
	}
	return ec
}

func applyDefinition(opts format.Options, def *editorconfig.Definition) format.Options {
	switch def.IndentStyle {
	case "tab":
		opts.UseTabs = true
	case "space":
		opts.UseTabs = false
	}

	if n, err := strconv.Atoi(def.IndentSize); err == nil && n > 0 {
		opts.TabWidth = n
	} else if def.TabWidth > 0 {
		opts.TabWidth = def.TabWidth
	}

	if v, ok := def.Raw["max_line_length"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.PrintWidth = n
		}
	}

	return opts
}
