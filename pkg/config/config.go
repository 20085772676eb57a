package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/walteh/htmlphpfmt/pkg/format"
	"github.com/walteh/htmlphpfmt/pkg/placeholder"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrettier   = "HTMLPHPFMT_PRETTIER"
	EnvPrintWidth = "HTMLPHPFMT_PRINT_WIDTH"
	EnvJobs       = "HTMLPHPFMT_JOBS"
	EnvTimeout    = "HTMLPHPFMT_TIMEOUT"
)

// FileNames are the config files looked up by Find, in order of preference
var FileNames = []string{".htmlphpfmt.hcl", ".htmlphpfmt.yaml", ".htmlphpfmt.yml", ".htmlphpfmt.toml"}

// Config file structure
type Config struct {
	// Prettier is the formatter executable
	Prettier string `json:"prettier,omitempty" hcl:"prettier,optional" yaml:"prettier,omitempty" toml:"prettier"`
	// PrettierArgs are passed before the generated flags
	PrettierArgs []string `json:"prettier_args,omitempty" hcl:"prettier_args,optional" yaml:"prettier_args,omitempty" toml:"prettier_args"`
	// Timeout bounds one formatter invocation, as a Go duration string
	Timeout string `json:"timeout,omitempty" hcl:"timeout,optional" yaml:"timeout,omitempty" toml:"timeout"`
	Jobs    int    `json:"jobs,omitempty" hcl:"jobs,optional" yaml:"jobs,omitempty" toml:"jobs"`
	// SkipPHPPass disables the php formatting pass that runs after restore
	SkipPHPPass bool     `json:"skip_php_pass,omitempty" hcl:"skip_php_pass,optional" yaml:"skip_php_pass,omitempty" toml:"skip_php_pass"`
	Include     []string `json:"include,omitempty" hcl:"include,optional" yaml:"include,omitempty" toml:"include"`
	Exclude     []string `json:"exclude,omitempty" hcl:"exclude,optional" yaml:"exclude,omitempty" toml:"exclude"`

	Placeholder *PlaceholderBlock `json:"placeholder,omitempty" hcl:"placeholder,block" yaml:"placeholder,omitempty" toml:"placeholder"`
	HTML        *LanguageBlock    `json:"html,omitempty" hcl:"html,block" yaml:"html,omitempty" toml:"html"`
	PHP         *LanguageBlock    `json:"php,omitempty" hcl:"php,block" yaml:"php,omitempty" toml:"php"`
}

// PlaceholderBlock tunes token rendering
type PlaceholderBlock struct {
	Prefix   string `json:"prefix,omitempty" hcl:"prefix,optional" yaml:"prefix,omitempty" toml:"prefix"`
	MaxWidth int    `json:"max_width,omitempty" hcl:"max_width,optional" yaml:"max_width,omitempty" toml:"max_width"`
}

// LanguageBlock holds formatter layout settings for one language
type LanguageBlock struct {
	PrintWidth int   `json:"print_width,omitempty" hcl:"print_width,optional" yaml:"print_width,omitempty" toml:"print_width"`
	TabWidth   int   `json:"tab_width,omitempty" hcl:"tab_width,optional" yaml:"tab_width,omitempty" toml:"tab_width"`
	UseTabs    *bool `json:"use_tabs,omitempty" hcl:"use_tabs,optional" yaml:"use_tabs,omitempty" toml:"use_tabs"`
}

// Default returns the configuration used when no file is found
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Prettier == "" {
		cfg.Prettier = "prettier"
	}
	if cfg.Timeout == "" {
		cfg.Timeout = "30s"
	}
	if len(cfg.Include) == 0 {
		cfg.Include = []string{"**/*.php"}
	}
	if cfg.Exclude == nil {
		cfg.Exclude = []string{"**/vendor/**", "**/node_modules/**"}
	}
	if cfg.Placeholder == nil {
		cfg.Placeholder = &PlaceholderBlock{}
	}
	if cfg.Placeholder.Prefix == "" {
		cfg.Placeholder.Prefix = placeholder.DefaultPrefix
	}
	if cfg.Placeholder.MaxWidth == 0 {
		cfg.Placeholder.MaxWidth = placeholder.DefaultMaxWidth
	}
	cfg.HTML = withLanguageDefaults(cfg.HTML, 80, 2)
	cfg.PHP = withLanguageDefaults(cfg.PHP, 80, 4)
}

func withLanguageDefaults(b *LanguageBlock, printWidth, tabWidth int) *LanguageBlock {
	if b == nil {
		b = &LanguageBlock{}
	}
	if b.PrintWidth == 0 {
		b.PrintWidth = printWidth
	}
	if b.TabWidth == 0 {
		b.TabWidth = tabWidth
	}
	return b
}

// FormatOptions returns the formatter layout for lang
func (cfg *Config) FormatOptions(lang format.Language) format.Options {
	b := cfg.HTML
	if lang == format.PHP {
		b = cfg.PHP
	}
	if b == nil {
		return format.Options{}
	}
	return format.Options{
		PrintWidth: b.PrintWidth,
		TabWidth:   b.TabWidth,
		UseTabs:    b.UseTabs != nil && *b.UseTabs,
	}
}

// PlaceholderOptions returns validated token rendering options
func (cfg *Config) PlaceholderOptions() (placeholder.Options, error) {
	var opts []placeholder.Option
	if cfg.Placeholder != nil {
		if cfg.Placeholder.Prefix != "" {
			opts = append(opts, placeholder.WithPrefix(cfg.Placeholder.Prefix))
		}
		if cfg.Placeholder.MaxWidth != 0 {
			opts = append(opts, placeholder.WithMaxWidth(cfg.Placeholder.MaxWidth))
		}
	}
	return placeholder.NewOptions(opts...)
}

func (cfg *Config) TimeoutDuration() (time.Duration, error) {
	if cfg.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return 0, errors.Errorf("parsing timeout %q: %w", cfg.Timeout, err)
	}
	return d, nil
}

// Formatter builds the external formatter described by the config
func (cfg *Config) Formatter() (*format.ExecFormatter, error) {
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	f := format.NewExecFormatter(cfg.Prettier, timeout)
	f.Args = cfg.PrettierArgs
	return f, nil
}

// Find walks up from dir looking for a config file and returns its path, or
// "" when there is none.
func Find(fs afero.Fs, dir string) (string, error) {
	dir = filepath.Clean(dir)
	for {
		for _, name := range FileNames {
			candidate := filepath.Join(dir, name)
			ok, err := afero.Exists(fs, candidate)
			if err != nil {
				return "", errors.Errorf("checking %s: %w", candidate, err)
			}
			if ok {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load reads a config file (HCL, YAML or TOML by extension), applies defaults,
// then applies environment overrides. An empty path yields the defaults.
func Load(fs afero.Fs, path string, env Env) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := LoadConfig(fs, path, env)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.applyDefaults()
	if err := cfg.ApplyEnv(env); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve loads the configuration for a run started in dir: the .env file in
// dir, then explicit if set, otherwise the nearest config file above dir.
func Resolve(fs afero.Fs, dir, explicit string) (*Config, error) {
	env, err := LoadEnv(fs, dir)
	if err != nil {
		return nil, err
	}

	path := explicit
	if path == "" {
		path, err = Find(fs, dir)
		if err != nil {
			return nil, err
		}
	}

	cfg, err := Load(fs, path, env)
	if err != nil {
		if path != "" {
			return nil, errors.Errorf("loading %s: %w", path, err)
		}
		return nil, err
	}
	return cfg, nil
}

// LoadConfig decodes a config file without applying defaults
func LoadConfig(fs afero.Fs, path string, env Env) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	var cfg Config

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, errors.Errorf("parsing YAML: %w", err)
		}
		return &cfg, nil
	case ".toml":
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, errors.Errorf("parsing TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.Errorf("parsing TOML: unknown keys %v", undecoded)
		}
		return &cfg, nil
	}

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	// env.NAME is available inside expressions
	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": env.ctyValue(),
		},
	}

	diags = gohcl.DecodeBody(hclFile.Body, ctx, &cfg)
	if diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}

	return &cfg, nil
}

// ApplyEnv overrides config values from environment variables
func (cfg *Config) ApplyEnv(env Env) error {
	if v, ok := env.Lookup(EnvPrettier); ok && v != "" {
		cfg.Prettier = v
	}
	if v, ok := env.Lookup(EnvTimeout); ok && v != "" {
		cfg.Timeout = v
	}
	if v, ok := env.Lookup(EnvJobs); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Errorf("parsing %s: %w", EnvJobs, err)
		}
		cfg.Jobs = n
	}
	if v, ok := env.Lookup(EnvPrintWidth); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Errorf("parsing %s: %w", EnvPrintWidth, err)
		}
		cfg.HTML.PrintWidth = n
		cfg.PHP.PrintWidth = n
	}
	return nil
}

// Env is a snapshot of environment variables
type Env map[string]string

// LoadEnv reads the process environment and fills in values from a .env file
// in dir, if present. Process variables win over the file.
func LoadEnv(fs afero.Fs, dir string) (Env, error) {
	env := Env{}

	path := filepath.Join(dir, ".env")
	ok, err := afero.Exists(fs, path)
	if err != nil {
		return nil, errors.Errorf("checking %s: %w", path, err)
	}
	if ok {
		f, err := fs.Open(path)
		if err != nil {
			return nil, errors.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()

		fromFile, err := godotenv.Parse(f)
		if err != nil {
			return nil, errors.Errorf("parsing %s: %w", path, err)
		}
		for k, v := range fromFile {
			env[k] = v
		}
	}

	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}

	return env, nil
}

func (e Env) Lookup(key string) (string, bool) {
	v, ok := e[key]
	return v, ok
}

func (e Env) ctyValue() cty.Value {
	if len(e) == 0 {
		return cty.EmptyObjectVal
	}
	vals := make(map[string]cty.Value, len(e))
	for k, v := range e {
		vals[k] = cty.StringVal(v)
	}
	return cty.ObjectVal(vals)
}
