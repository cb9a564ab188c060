// Package resolve maps Rust module references onto files under a project root.
package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/phobologic/scout/internal/lang"
	"github.com/phobologic/scout/internal/model"
)

// externalRoots are path roots that always name the standard library.
var externalRoots = map[string]struct{}{
	"std":   {},
	"core":  {},
	"alloc": {},
}

// Resolution is the outcome of resolving one reference.
type Resolution struct {
	// Path is the canonical resolved file; empty unless the reference resolved
	// inside the project root.
	Path string
	// Reason is set when the reference could not be followed.
	Reason model.Reason
	Detail string
	// Skipped is set for references that contribute no file: external crates,
	// inline modules and paths that name an enclosing module.
	Skipped bool
	// Candidates lists the paths tried, in order.
	Candidates []string
}

// Resolver resolves references relative to a project root. It is read-only
// after construction and safe for concurrent use.
type Resolver struct {
	root     string
	crateDir string
	roots    map[string]struct{}
	lang     *lang.Language
}

// New creates a Resolver. root and crateDir must be canonical; crateDir is
// where `crate::` paths start and defaults to root. crateRoots are files whose
// own directory is their module directory.
func New(root, crateDir string, crateRoots []string) *Resolver {
	if crateDir == "" {
		crateDir = root
	}
	r := &Resolver{
		root:     root,
		crateDir: crateDir,
		roots:    make(map[string]struct{}, len(crateRoots)),
		lang:     lang.Languages[lang.Rust],
	}
	for _, p := range crateRoots {
		r.roots[p] = struct{}{}
	}
	return r
}

// Canonical returns the absolute path with symlinks evaluated.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// Root returns the project root.
func (r *Resolver) Root() string { return r.root }

// Rel returns path relative to the project root, slash-separated. Paths
// outside the root are returned unchanged.
func (r *Resolver) Rel(path string) string {
	rel, err := filepath.Rel(r.root, path)
	if err != nil || !r.Within(path) {
		return path
	}
	return filepath.ToSlash(rel)
}

// Within reports whether path lies inside the project root.
func (r *Resolver) Within(path string) bool {
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// IsCrateRoot reports whether origin is a designated crate root, or a
// conventional root file (lib.rs, main.rs) in the crate directory.
func (r *Resolver) IsCrateRoot(origin string) bool {
	if _, ok := r.roots[origin]; ok {
		return true
	}
	return filepath.Dir(origin) == r.crateDir && r.lang.IsRootFile(filepath.Base(origin))
}

// ModuleDir returns the directory holding the child modules of origin,
// descended into the given inline scope.
func (r *Resolver) ModuleDir(origin string, scope []string) string {
	dir := filepath.Dir(origin)
	base := filepath.Base(origin)
	if !r.lang.IsModuleFile(base) && !r.IsCrateRoot(origin) {
		dir = filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base)))
	}
	return filepath.Join(append([]string{dir}, scope...)...)
}

// Resolve resolves ref. locals describes the modules declared in ref's
// origin file.
func (r *Resolver) Resolve(ref model.ModuleReference, locals Locals) Resolution {
	switch ref.Kind {
	case model.Inline:
		return Resolution{Skipped: true}
	case model.Declaration:
		return r.resolveDeclaration(ref)
	default:
		return r.resolveImport(ref, locals)
	}
}

func (r *Resolver) resolveDeclaration(ref model.ModuleReference) Resolution {
	if ref.PathAttr != "" {
		base := filepath.Dir(ref.Origin)
		if len(ref.Scope) > 0 {
			base = r.ModuleDir(ref.Origin, ref.Scope)
		}
		candidate := filepath.Join(base, filepath.FromSlash(ref.PathAttr))
		res := Resolution{Candidates: []string{candidate}}
		if isFile(candidate) {
			return r.finish(res, candidate)
		}
		res.Reason = model.Unresolved
		res.Detail = "path attribute target not found"
		return res
	}

	dir := r.ModuleDir(ref.Origin, ref.Scope)
	var res Resolution
	if file := r.moduleFile(dir, ref.Segments[0], &res); file != "" {
		return r.finish(res, file)
	}
	res.Reason = model.Unresolved
	res.Detail = "file not found"
	return res
}

func (r *Resolver) resolveImport(ref model.ModuleReference, locals Locals) Resolution {
	segs := ref.Segments
	dir := r.ModuleDir(ref.Origin, ref.Scope)

	i := 0
	anchored := false
	switch segs[0] {
	case model.SegCrate:
		dir = r.crateDir
		i, anchored = 1, true
	case model.SegSelf:
		i, anchored = 1, true
	}
	// Each super is one module level up from wherever the path is anchored.
	ups := 0
	for i < len(segs) && segs[i] == model.SegSuper {
		ups++
		i++
	}
	if ups > 0 {
		anchored = true
		for ; ups > 0; ups-- {
			dir = filepath.Dir(dir)
		}
		if !r.Within(dir) {
			return Resolution{Reason: model.OutsideRoot, Detail: "path ascends above project root"}
		}
	}

	rest := segs[i:]
	if len(rest) == 0 {
		return Resolution{Skipped: true}
	}

	if !anchored {
		first := rest[0]
		if _, ok := externalRoots[first]; ok {
			return Resolution{Skipped: true}
		}
		if locals.IsInline(ref.Scope, first) {
			return Resolution{Skipped: true}
		}
		if !locals.IsDeclared(ref.Scope, first) && !r.moduleExists(dir, first) {
			return Resolution{Skipped: true}
		}
	}

	var res Resolution
	var parent string
	for j, seg := range rest {
		last := j == len(rest)-1
		file := r.moduleFile(dir, seg, &res)

		if last {
			switch {
			case file != "":
				return r.finish(res, file)
			case parent != "" && !ref.HasGlob && !ref.ModuleOnly:
				// The final segment names an item inside the parent module.
				return r.finish(res, parent)
			}
			res.Reason = model.Unresolved
			res.Detail = fmt.Sprintf("module %q not found", seg)
			return res
		}

		if file == "" && !isDir(filepath.Join(dir, seg)) {
			res.Reason = model.Unresolved
			res.Detail = fmt.Sprintf("module %q not found", seg)
			return res
		}
		parent = file
		dir = filepath.Join(dir, seg)
	}
	return res
}

// moduleFile returns the first existing file among <dir>/<name>.rs and
// <dir>/<name>/mod.rs, recording the candidates tried.
func (r *Resolver) moduleFile(dir, name string, res *Resolution) string {
	for _, candidate := range r.candidates(dir, name) {
		res.Candidates = append(res.Candidates, candidate)
		if isFile(candidate) {
			return candidate
		}
	}
	return ""
}

func (r *Resolver) moduleExists(dir, name string) bool {
	for _, candidate := range r.candidates(dir, name) {
		if isFile(candidate) {
			return true
		}
	}
	return false
}

func (r *Resolver) candidates(dir, name string) []string {
	ext := r.lang.Extensions[0]
	out := []string{filepath.Join(dir, name+ext)}
	for _, mf := range r.lang.ModuleFiles {
		out = append(out, filepath.Join(dir, name, mf))
	}
	return out
}

// finish canonicalizes file and enforces the root boundary.
func (r *Resolver) finish(res Resolution, file string) Resolution {
	canonical, err := Canonical(file)
	if err != nil {
		res.Reason = model.Unresolved
		res.Detail = err.Error()
		return res
	}
	if !r.Within(canonical) {
		res.Reason = model.OutsideRoot
		res.Detail = canonical
		return res
	}
	res.Path = canonical
	return res
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
