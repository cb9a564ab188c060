// Package ranking trims a discovery result to the files most relevant to its
// seeds.
//
// Files in a Result are already in discovery order: seeds first, then each
// depth tier in turn. That order is the ranking; nearer files come first.
package ranking

import (
	"strings"

	"github.com/phobologic/scout/internal/model"
)

// SelectFiles returns a new Result with only the first maxFiles files.
// If maxFiles is <= 0 or >= len(files), res is returned unchanged.
func SelectFiles(res *model.Result, maxFiles int) *model.Result {
	if maxFiles <= 0 || maxFiles >= len(res.Files) {
		return res
	}

	selected := res.Files[:maxFiles]
	selectedPaths := make(map[string]struct{}, maxFiles)
	for i := range selected {
		selectedPaths[selected[i].Rel] = struct{}{}
	}

	var deps []model.Dependency
	for i := range res.Dependencies {
		d := &res.Dependencies[i]
		_, srcOK := selectedPaths[d.Source]
		_, tgtOK := selectedPaths[d.Target]
		if srcOK && tgtOK {
			deps = append(deps, *d)
		}
	}

	return &model.Result{
		Root:         res.Root,
		Files:        selected,
		Diagnostics:  diagnosticsFor(res.Diagnostics, selectedPaths),
		Dependencies: deps,
	}
}

// FilterByFile returns a new Result containing only files whose path
// contains substr (case-insensitive), with all dependency edges touching
// those files and the diagnostics they produced.
func FilterByFile(res *model.Result, substr string) *model.Result {
	lower := strings.ToLower(substr)

	matchedFiles := make(map[string]struct{})
	var files []model.SourceUnit
	for i := range res.Files {
		if strings.Contains(strings.ToLower(res.Files[i].Rel), lower) {
			matchedFiles[res.Files[i].Rel] = struct{}{}
			files = append(files, res.Files[i])
		}
	}

	var deps []model.Dependency
	for i := range res.Dependencies {
		d := &res.Dependencies[i]
		_, srcOK := matchedFiles[d.Source]
		_, tgtOK := matchedFiles[d.Target]
		if srcOK || tgtOK {
			deps = append(deps, *d)
		}
	}

	return &model.Result{
		Root:         res.Root,
		Files:        files,
		Diagnostics:  diagnosticsFor(res.Diagnostics, matchedFiles),
		Dependencies: deps,
	}
}

func diagnosticsFor(diags []model.Diagnostic, files map[string]struct{}) []model.Diagnostic {
	var out []model.Diagnostic
	for _, d := range diags {
		if _, ok := files[d.File]; ok {
			out = append(out, d)
		}
	}
	return out
}
