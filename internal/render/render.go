// Package render builds the files-context block that is embedded in an
// analysis prompt.
package render

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/viant/afs"

	"github.com/phobologic/scout/internal/model"
)

// NoFiles is rendered in place of an empty file list.
const NoFiles = "No files listed in config."

// Renderer reads files under a root and formats them for a prompt.
type Renderer struct {
	fs     afs.Service
	root   string
	logger *log.Logger
}

// New creates a Renderer for files under root. A nil logger discards output.
func New(root string, logger *log.Logger) *Renderer {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Renderer{fs: afs.New(), root: root, logger: logger}
}

// Files renders each root-relative path as a `// File:` header followed by
// its trimmed content. Missing and undecodable files become placeholder
// comments so the reader still sees which files were requested.
func (r *Renderer) Files(ctx context.Context, paths []string) string {
	if len(paths) == 0 {
		return NoFiles
	}

	r.logger.Info("Building files context", "files", len(paths))
	chunks := make([]string, 0, len(paths))
	for _, rel := range paths {
		chunks = append(chunks, r.file(ctx, rel))
	}
	return strings.Join(chunks, "\n\n")
}

func (r *Renderer) file(ctx context.Context, rel string) string {
	resolved := filepath.Join(r.root, filepath.FromSlash(rel))
	if canonical, err := filepath.EvalSymlinks(resolved); err == nil {
		resolved = canonical
	}

	ok, err := r.fs.Exists(ctx, resolved)
	if err != nil || !ok {
		r.logger.Warn("File listed in config not found", "file", rel)
		return "// File not found: " + rel
	}

	content, err := r.fs.DownloadWithURL(ctx, resolved)
	if err != nil {
		r.logger.Warn("Unable to read file", "file", rel, "err", err)
		return "// File not found: " + rel
	}
	if !utf8.Valid(content) {
		r.logger.Warn("Unable to decode file as UTF-8", "file", rel)
		return "// Unable to decode file as UTF-8: " + rel
	}

	return "// File: " + r.display(resolved) + "\n" + strings.TrimSpace(string(content)) + "\n"
}

// display returns path relative to the root when it lies inside it.
func (r *Renderer) display(path string) string {
	root := r.root
	if canonical, err := filepath.EvalSymlinks(root); err == nil {
		root = canonical
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.ToSlash(rel)
}

// Diagnostics renders one `// Warning:` line per diagnostic.
func Diagnostics(diags []model.Diagnostic) string {
	lines := make([]string, len(diags))
	for i, d := range diags {
		lines[i] = "// Warning: " + d.String()
	}
	return strings.Join(lines, "\n")
}
