package diff

import (
	"fmt"
	"strings"

	"github.com/k0kubun/pp/v3"
	"github.com/kylelemons/godebug/diff"
)

// DiffExportedOnly pretty prints both values and returns a line diff of the
// printed forms, or "" when they match.
func DiffExportedOnly[T any](want T, got T) string {
	printer := pp.New()
	printer.SetExportedOnly(true)
	printer.SetColoringEnabled(false)
	abc := diff.Diff(printer.Sprint(got), printer.Sprint(want))
	if abc == "" {
		return ""
	}
	str := "\n\n"
	str += "to convert ACTUAL ⏩️ EXPECTED:\n\n"
	str += "add:    ➕\n"
	str += "remove: ➖\n"
	str += "\n"
	str += strings.ReplaceAll(strings.ReplaceAll(abc, "\n-", "\n➖"), "\n+", "\n➕")

	return str
}

// Document returns a line diff between the original and formatted contents of
// a file, headed with its path, or "" when nothing changed.
func Document(path, original, formatted string) string {
	if original == formatted {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s (formatted)\n", path, path)
	sb.WriteString(diff.Diff(original, formatted))
	sb.WriteString("\n")
	return sb.String()
}
