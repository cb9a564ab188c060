// Package scan discovers the local Rust files a set of seed files depends on.
//
// Discovery is a breadth-first search over files. Each file in a depth tier
// is read, parsed and resolved independently, so a tier is expanded by a pool
// of workers; results are merged in frontier order, which keeps the output
// identical to a sequential run.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/scout/internal/graph"
	"github.com/phobologic/scout/internal/lang"
	"github.com/phobologic/scout/internal/model"
	"github.com/phobologic/scout/internal/parse"
	"github.com/phobologic/scout/internal/resolve"
)

var (
	// ErrInvalidRoot is returned when the project root is missing or not a directory.
	ErrInvalidRoot = errors.New("invalid project root")
	// ErrNoSeeds is returned when no seed files are given.
	ErrNoSeeds = errors.New("no seed files")
	// ErrSeedNotFound is returned when a seed file does not exist.
	ErrSeedNotFound = errors.New("seed file not found")
	// ErrSeedOutsideRoot is returned when a seed file lies outside the project root.
	ErrSeedOutsideRoot = errors.New("seed file outside project root")
)

// Options configures one discovery run.
type Options struct {
	// Root is the project root; nothing outside it is ever followed.
	Root string
	// Seeds are the starting files, relative to Root or absolute.
	Seeds []string
	// MaxDepth bounds expansion; 0 returns the seeds unchanged.
	MaxDepth int
	// CrateDir is where `crate::` paths start. Defaults to Root.
	CrateDir string
	// CrateRoots are extra crate-root files (relative to Root or absolute).
	// Seeds are always crate roots.
	CrateRoots []string
	// Workers bounds per-tier parallelism. Defaults to GOMAXPROCS.
	Workers int
	// Cache, if set, is consulted before parsing a file.
	Cache *Cache
	// Logger receives progress and warnings. Nil discards them.
	Logger *log.Logger
}

type link struct {
	ref  string
	path string
}

type outcome struct {
	links []link
	diags []model.Diagnostic
}

type engine struct {
	opts     Options
	resolver *resolve.Resolver
	lang     *lang.Language
	query    *sitter.Query
	logger   *log.Logger
}

// Discover runs a discovery and returns the seeds followed by every local
// file reached within MaxDepth, in breadth-first discovery order. Per-file
// problems are reported as diagnostics; only invalid options and context
// cancellation return an error.
func Discover(ctx context.Context, opts Options) (*model.Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	root, err := resolve.Canonical(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s: not a directory", ErrInvalidRoot, root)
	}
	if len(opts.Seeds) == 0 {
		return nil, ErrNoSeeds
	}

	crateDir := root
	if opts.CrateDir != "" {
		crateDir, err = resolve.Canonical(absUnder(root, opts.CrateDir))
		if err != nil {
			return nil, fmt.Errorf("crate directory: %w", err)
		}
	}

	seeds, err := canonicalSeeds(root, opts.Seeds)
	if err != nil {
		return nil, err
	}

	crateRoots := append([]string(nil), seeds...)
	for _, p := range opts.CrateRoots {
		if c, err := resolve.Canonical(absUnder(root, p)); err == nil {
			crateRoots = append(crateRoots, c)
		}
	}

	l := lang.Languages[lang.Rust]
	query, err := l.GetModuleQuery()
	if err != nil {
		return nil, fmt.Errorf("module query: %w", err)
	}

	e := &engine{
		opts:     opts,
		resolver: resolve.New(root, crateDir, crateRoots),
		lang:     l,
		query:    query,
		logger:   logger,
	}
	return e.run(ctx, seeds)
}

func (e *engine) run(ctx context.Context, seeds []string) (*model.Result, error) {
	result := &model.Result{Root: e.resolver.Root()}
	visited := make(map[string]struct{}, len(seeds))

	var frontier []model.SourceUnit
	for _, p := range seeds {
		visited[p] = struct{}{}
		unit := model.SourceUnit{Path: p, Rel: e.resolver.Rel(p)}
		result.Files = append(result.Files, unit)
		frontier = append(frontier, unit)
	}

	if e.opts.MaxDepth < 1 {
		e.logger.Info("Dependency depth < 1; returning seed files only.")
		return result, nil
	}
	e.logger.Info("Dependency scan queued", "files", len(seeds), "depth", e.opts.MaxDepth)

	var edges []graph.Edge
	for depth := 0; len(frontier) > 0 && depth < e.opts.MaxDepth; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		outcomes := e.expandTier(frontier)

		var next []model.SourceUnit
		for i, out := range outcomes {
			origin := frontier[i]
			result.Diagnostics = append(result.Diagnostics, out.diags...)
			for _, ln := range out.links {
				rel := e.resolver.Rel(ln.path)
				edges = append(edges, graph.Edge{Source: origin.Rel, Target: rel, Reference: ln.ref})
				if _, seen := visited[ln.path]; seen {
					continue
				}
				visited[ln.path] = struct{}{}
				unit := model.SourceUnit{Path: ln.path, Rel: rel, Depth: depth + 1, Via: origin.Rel}
				result.Files = append(result.Files, unit)
				next = append(next, unit)
			}
		}
		frontier = next
	}

	result.Dependencies = graph.BuildGraph(edges)
	e.logger.Info("Dependency expansion complete",
		"seeds", len(seeds), "files", len(result.Files), "diagnostics", len(result.Diagnostics))
	return result, nil
}

// expandTier extracts and resolves every unit concurrently. The returned
// slice is indexed like units.
func (e *engine) expandTier(units []model.SourceUnit) []outcome {
	numWorkers := e.opts.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if numWorkers > len(units) {
		numWorkers = len(units)
	}

	work := make(chan int, len(units))
	outcomes := make([]outcome, len(units))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Each goroutine gets its own parser
			parser := e.lang.NewParser()
			for idx := range work {
				outcomes[idx] = e.expandFile(parser, units[idx])
			}
		}()
	}

	for i := range units {
		work <- i
	}
	close(work)
	wg.Wait()

	return outcomes
}

func (e *engine) expandFile(parser *sitter.Parser, unit model.SourceUnit) outcome {
	var out outcome

	source, err := os.ReadFile(unit.Path)
	if err != nil {
		e.logger.Warn("Unable to read dependency file", "file", unit.Rel, "err", err)
		out.diags = append(out.diags, model.Diagnostic{File: unit.Rel, Reason: model.ParseError, Detail: err.Error()})
		return out
	}
	if !utf8.Valid(source) {
		e.logger.Warn("Unable to decode dependency file as UTF-8", "file", unit.Rel)
		out.diags = append(out.diags, model.Diagnostic{File: unit.Rel, Reason: model.ParseError, Detail: "not valid UTF-8"})
		return out
	}

	extract := func() ([]model.ModuleReference, error) {
		return parse.ExtractReferences(parser, e.query, source, unit.Path)
	}
	var refs []model.ModuleReference
	if e.opts.Cache != nil {
		refs, err = e.opts.Cache.References(unit.Path, source, extract)
	} else {
		refs, err = extract()
	}
	if err != nil {
		e.logger.Warn("Skipping file with parse errors", "file", unit.Rel, "err", err)
		out.diags = append(out.diags, model.Diagnostic{File: unit.Rel, Reason: model.ParseError, Detail: err.Error()})
		return out
	}

	e.logger.Debug("Scanning file", "file", unit.Rel, "references", len(refs))

	locals := resolve.NewLocals(refs)
	for _, ref := range refs {
		res := e.resolver.Resolve(ref, locals)
		if res.Skipped {
			continue
		}
		if res.Reason != "" {
			e.logger.Warn("Unable to follow module reference",
				"file", unit.Rel, "reference", ref.String(), "reason", res.Reason, "detail", res.Detail)
			out.diags = append(out.diags, model.Diagnostic{
				File:      unit.Rel,
				Reference: ref.String(),
				Reason:    res.Reason,
				Detail:    res.Detail,
			})
			continue
		}
		e.logger.Info("Dependency detected", "file", unit.Rel, "reference", ref.String(), "target", e.resolver.Rel(res.Path))
		out.links = append(out.links, link{ref: ref.String(), path: res.Path})
	}
	return out
}

func canonicalSeeds(root string, seeds []string) ([]string, error) {
	bounds := resolve.New(root, "", nil)
	seen := make(map[string]struct{}, len(seeds))
	var out []string
	for _, s := range seeds {
		p, err := resolve.Canonical(absUnder(root, s))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrSeedNotFound, s)
		}
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: %s", ErrSeedNotFound, s)
		}
		if !bounds.Within(p) {
			return nil, fmt.Errorf("%w: %s", ErrSeedOutsideRoot, s)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

func absUnder(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, filepath.FromSlash(p))
}
