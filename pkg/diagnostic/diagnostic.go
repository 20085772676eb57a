package diagnostic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/walteh/htmlphpfmt/pkg/placeholder"
	"github.com/walteh/htmlphpfmt/pkg/position"
	"gitlab.com/tozd/go/errors"
)

// Diagnostics represents diagnostic information that can be formatted in different ways
type Diagnostics struct {
	Errors   []Diagnostic
	Warnings []Diagnostic
	Hints    []Diagnostic
}

// Diagnostic represents a single diagnostic message. Lines and columns are one-based.
type Diagnostic struct {
	Message  string
	Line     int
	Column   int
	EndLine  int
	EndCol   int
	Severity DiagnosticSeverity
}

// DiagnosticSeverity represents the severity level of a diagnostic
type DiagnosticSeverity string

const (
	Error   DiagnosticSeverity = "error"
	Warning DiagnosticSeverity = "warning"
	Info    DiagnosticSeverity = "info"
	Hint    DiagnosticSeverity = "hint"
)

func (d *Diagnostics) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Errors) + len(d.Warnings) + len(d.Hints)
}

// All returns errors, then warnings, then hints
func (d *Diagnostics) All() []Diagnostic {
	if d == nil {
		return nil
	}
	all := make([]Diagnostic, 0, d.Len())
	all = append(all, d.Errors...)
	all = append(all, d.Warnings...)
	all = append(all, d.Hints...)
	return all
}

func newDiagnostic(source string, span position.Span, severity DiagnosticSeverity, msg string) Diagnostic {
	rng := span.GetRange(source)
	return Diagnostic{
		Message:  msg,
		Line:     rng.Start.Line,
		Column:   rng.Start.Character,
		EndLine:  rng.End.Line,
		EndCol:   rng.End.Character,
		Severity: severity,
	}
}

// Generate builds diagnostics for one document: a hint for every region left
// open at end of file and a warning for every region lost at restore time.
// Positions refer to the original source document.
func Generate(source string, tokenized *placeholder.Result, restored *placeholder.Restored) (*Diagnostics, error) {
	if tokenized == nil {
		return nil, errors.Errorf("tokenize result is nil")
	}

	diagnostics := &Diagnostics{
		Errors:   make([]Diagnostic, 0),
		Warnings: make([]Diagnostic, 0),
		Hints:    make([]Diagnostic, 0),
	}

	for _, tok := range tokenized.Tokens {
		if tok.Region.Terminated {
			continue
		}
		diagnostics.Hints = append(diagnostics.Hints, newDiagnostic(source, tok.Region.Span, Hint,
			"php region is not closed before end of file"))
	}

	if restored == nil {
		return diagnostics, nil
	}

	for _, miss := range restored.Misses {
		if miss.Index < 0 || miss.Index >= len(tokenized.Tokens) {
			return nil, errors.Errorf("restore miss %d does not belong to this document", miss.Index)
		}
		tok := tokenized.Tokens[miss.Index]
		diagnostics.Warnings = append(diagnostics.Warnings, newDiagnostic(source, tok.Region.Span, Warning,
			fmt.Sprintf("formatter altered placeholder %s beyond whitespace changes; php region was dropped", tok.Rendered)))
	}

	return diagnostics, nil
}

// FileDiagnostics pairs a file path with the diagnostics found in it
type FileDiagnostics struct {
	Path        string
	Diagnostics *Diagnostics
}

// Formatter formats diagnostics into different output formats
type Formatter interface {
	// Format formats the diagnostics of one file
	Format(path string, diagnostics *Diagnostics) ([]byte, error)
	// FormatFiles formats the diagnostics of several files as one document
	FormatFiles(files []FileDiagnostics) ([]byte, error)
}

func NewFormatter(name string) (Formatter, error) {
	switch name {
	case "text":
		return NewTextFormatter(), nil
	case "json":
		return NewJSONFormatter(), nil
	case "vscode":
		return NewVSCodeFormatter(), nil
	}
	return nil, errors.Errorf("unknown diagnostic format %q", name)
}

func single(path string, diagnostics *Diagnostics) ([]FileDiagnostics, error) {
	if diagnostics == nil {
		return nil, errors.Errorf("diagnostics is nil")
	}
	return []FileDiagnostics{{Path: path, Diagnostics: diagnostics}}, nil
}

// TextFormatter writes one "path:line:col: severity: message" line per diagnostic
type TextFormatter struct{}

func NewTextFormatter() *TextFormatter {
	return &TextFormatter{}
}

func (f *TextFormatter) Format(path string, diagnostics *Diagnostics) ([]byte, error) {
	files, err := single(path, diagnostics)
	if err != nil {
		return nil, err
	}
	return f.FormatFiles(files)
}

func (f *TextFormatter) FormatFiles(files []FileDiagnostics) ([]byte, error) {
	var sb strings.Builder
	for _, file := range files {
		for _, d := range file.Diagnostics.All() {
			fmt.Fprintf(&sb, "%s:%d:%d: %s: %s\n", file.Path, d.Line, d.Column, d.Severity, d.Message)
		}
	}
	return []byte(sb.String()), nil
}

// JSONFormatter writes the diagnostics as a flat json array
type JSONFormatter struct{}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

type jsonDiagnostic struct {
	Path     string             `json:"path"`
	Severity DiagnosticSeverity `json:"severity"`
	Message  string             `json:"message"`
	Line     int                `json:"line"`
	Column   int                `json:"column"`
	EndLine  int                `json:"end_line"`
	EndCol   int                `json:"end_column"`
}

func (f *JSONFormatter) Format(path string, diagnostics *Diagnostics) ([]byte, error) {
	files, err := single(path, diagnostics)
	if err != nil {
		return nil, err
	}
	return f.FormatFiles(files)
}

func (f *JSONFormatter) FormatFiles(files []FileDiagnostics) ([]byte, error) {
	result := make([]jsonDiagnostic, 0)
	for _, file := range files {
		for _, d := range file.Diagnostics.All() {
			result = append(result, jsonDiagnostic{
				Path:     file.Path,
				Severity: d.Severity,
				Message:  d.Message,
				Line:     d.Line,
				Column:   d.Column,
				EndLine:  d.EndLine,
				EndCol:   d.EndCol,
			})
		}
	}
	return json.Marshal(result)
}

// VSCodeFormatter formats diagnostics into VSCode-compatible format
type VSCodeFormatter struct{}

// NewVSCodeFormatter creates a new VSCodeFormatter
func NewVSCodeFormatter() *VSCodeFormatter {
	return &VSCodeFormatter{}
}

type vscodePosition struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type vscodeRange struct {
	Start vscodePosition `json:"start"`
	End   vscodePosition `json:"end"`
}

type vscodeDiagnostic struct {
	Severity int         `json:"severity"`
	Message  string      `json:"message"`
	Source   string      `json:"source"`
	Range    vscodeRange `json:"range"`
}

// VSCode severities: Error = 1, Warning = 2, Information = 3, Hint = 4
var vscodeSeverity = map[DiagnosticSeverity]int{
	Error:   1,
	Warning: 2,
	Info:    3,
	Hint:    4,
}

// Format implements Formatter
func (f *VSCodeFormatter) Format(path string, diagnostics *Diagnostics) ([]byte, error) {
	files, err := single(path, diagnostics)
	if err != nil {
		return nil, err
	}
	return f.FormatFiles(files)
}

// FormatFiles implements Formatter. Source carries the file path.
func (f *VSCodeFormatter) FormatFiles(files []FileDiagnostics) ([]byte, error) {
	result := make([]vscodeDiagnostic, 0)
	for _, file := range files {
		for _, d := range file.Diagnostics.All() {
			result = append(result, vscodeDiagnostic{
				Severity: vscodeSeverity[d.Severity],
				Message:  d.Message,
				Source:   file.Path,
				Range: vscodeRange{
					// VSCode is 0-based
					Start: vscodePosition{Line: d.Line - 1, Character: d.Column - 1},
					End:   vscodePosition{Line: d.EndLine - 1, Character: d.EndCol - 1},
				},
			})
		}
	}

	return json.Marshal(result)
}
