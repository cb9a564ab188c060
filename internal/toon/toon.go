// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/phobologic/scout/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a discovery Result into TOON format. project names the
// scanned project.
func Encode(project string, res *model.Result) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("project: %s", encodeValue(project)))

	var fileRows [][]string
	for i := range res.Files {
		f := &res.Files[i]
		fileRows = append(fileRows, []string{
			f.Rel,
			strconv.Itoa(f.Depth),
			f.Via,
		})
	}
	parts = append(parts, formatTabular("files", []string{"path", "depth", "via"}, fileRows))

	var diagRows [][]string
	for i := range res.Diagnostics {
		d := &res.Diagnostics[i]
		diagRows = append(diagRows, []string{
			d.File,
			d.Reference,
			string(d.Reason),
			d.Detail,
		})
	}
	parts = append(parts, formatTabular("diagnostics", []string{"file", "reference", "reason", "detail"}, diagRows))

	var depRows [][]string
	for i := range res.Dependencies {
		d := &res.Dependencies[i]
		depRows = append(depRows, []string{
			d.Source,
			d.Target,
			strings.Join(d.References, "; "),
		})
	}
	parts = append(parts, formatTabular("dependencies", []string{"source", "target", "references"}, depRows))

	return strings.Join(parts, "\n")
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
