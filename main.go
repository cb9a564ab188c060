// scout collects the local Rust files a contract review depends on and
// renders them as prompt context.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/scout/internal/cargo"
	"github.com/phobologic/scout/internal/config"
	"github.com/phobologic/scout/internal/discover"
	"github.com/phobologic/scout/internal/model"
	"github.com/phobologic/scout/internal/ranking"
	"github.com/phobologic/scout/internal/render"
	"github.com/phobologic/scout/internal/scan"
	"github.com/phobologic/scout/internal/toon"
)

var version = "dev"

const (
	defaultDependencyDepth = 1
	logLevelEnv            = "SCOUT_LOG_LEVEL"
)

// Output formats.
const (
	formatContext = "context"
	formatTOON    = "toon"
	formatYAML    = "yaml"
	formatPaths   = "paths"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

type rootOptions struct {
	configPath  string
	includeDeps bool
	depth       int
	format      string
	workers     int
	maxFiles    int
	fileFilter  string
	cacheSize   int
	showVersion bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:   "scout [target]",
		Short: "Collect the local Rust sources a contract review needs",
		Long: `scout reads the .scout file of a project, optionally follows the listed
files' local module dependencies (mod declarations and use paths), and prints
the resulting files as prompt context.

target is the project root and defaults to the current directory.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				_, _ = fmt.Fprintf(stdout, "scout %s\n", version)
				return nil
			}
			target := "."
			if len(args) > 0 {
				target = args[0]
			}
			depthSet := cmd.Flags().Changed("dependency-depth")
			return runScout(cmd.Context(), target, opts, depthSet, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "directory containing .scout, or the .scout file itself (default: target)")
	f.BoolVar(&opts.includeDeps, "include-deps", false, "follow listed files' local module dependencies")
	f.IntVar(&opts.depth, "dependency-depth", defaultDependencyDepth, "maximum dependency depth when --include-deps is set (default: config value, else 1)")
	f.StringVar(&opts.format, "format", formatContext, "output format: context, toon, yaml or paths")
	f.IntVar(&opts.workers, "workers", 0, "parallel parsers per depth tier (default: GOMAXPROCS)")
	f.IntVarP(&opts.maxFiles, "max-files", "n", 0, "keep only the N files nearest the listed files")
	f.StringVar(&opts.fileFilter, "file", "", "keep only files whose path contains this substring")
	f.IntVar(&opts.cacheSize, "cache-size", scan.DefaultCacheSize, "parsed files kept in the parse cache (0 disables it)")
	f.BoolVarP(&opts.showVersion, "version", "V", false, "show version and exit")

	cmd.AddCommand(newInitCmd(stdout, stderr))
	return cmd
}

func runScout(ctx context.Context, target string, opts rootOptions, depthSet bool, stdout, stderr io.Writer) error {
	switch opts.format {
	case formatContext, formatTOON, formatYAML, formatPaths:
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}
	if opts.cacheSize < 0 {
		return fmt.Errorf("cache size must not be negative, got %d", opts.cacheSize)
	}

	root, err := projectRoot(target)
	if err != nil {
		return err
	}
	loadEnv(root)
	logger := newLogger(stderr)
	logger.Info("Starting run", "target", root, "include_deps", opts.includeDeps)

	cfgPath, err := config.ResolvePath(root, opts.configPath)
	if err != nil {
		return err
	}
	logger.Info("Using config file", "path", cfgPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	depth := 0
	if opts.includeDeps {
		depth = defaultDependencyDepth
		if cfg.DependencyDepth != nil {
			depth = *cfg.DependencyDepth
		}
		if depthSet {
			depth = opts.depth
		}
	}

	listed, seeds, err := expandEntries(root, cfg.Files, logger)
	if err != nil {
		return err
	}

	res := &model.Result{Root: root}
	if len(seeds) > 0 {
		scanOpts := scan.Options{
			Root:     root,
			Seeds:    seeds,
			MaxDepth: depth,
			Workers:  opts.workers,
			Logger:   logger,
		}
		if crate, err := cargo.Find(root, root); err == nil {
			logger.Debug("Using Cargo manifest", "dir", crate.Dir, "src", crate.SrcDir)
			scanOpts.CrateDir = crate.SrcDir
			scanOpts.CrateRoots = crate.Roots
		} else if !errors.Is(err, cargo.ErrNoManifest) {
			logger.Warn("Ignoring unreadable Cargo manifest", "err", err)
		}
		if opts.cacheSize > 0 {
			cache, err := scan.NewCache(opts.cacheSize)
			if err != nil {
				return fmt.Errorf("creating parse cache: %w", err)
			}
			scanOpts.Cache = cache
		}

		res, err = scan.Discover(ctx, scanOpts)
		if err != nil {
			return err
		}
		if c := scanOpts.Cache; c != nil {
			hits, misses := c.Stats()
			logger.Debug("Parse cache", "hits", hits, "misses", misses, "entries", c.Len())
		}
		for _, d := range res.Diagnostics {
			logger.Warn("Dependency diagnostic", "diagnostic", d.String())
		}
	}

	// A selection shows discovered files only; missing entries drop out.
	if opts.fileFilter != "" {
		res = ranking.FilterByFile(res, opts.fileFilter)
		listed = nil
	}
	if opts.maxFiles > 0 {
		res = ranking.SelectFiles(res, opts.maxFiles)
		listed = nil
	}

	return writeOutput(ctx, stdout, opts.format, root, listed, res, logger)
}

// expandEntries turns config file entries into the display list and the
// discovery seeds. Directory entries expand to the Rust files beneath them;
// missing entries stay in the display list but are not seeded.
func expandEntries(root string, entries []string, logger *log.Logger) (listed, seeds []string, err error) {
	seen := make(map[string]struct{}, len(entries))
	add := func(rel string, seed bool) {
		if _, dup := seen[rel]; dup {
			return
		}
		seen[rel] = struct{}{}
		listed = append(listed, rel)
		if seed {
			seeds = append(seeds, rel)
		}
	}

	for _, entry := range entries {
		rel := filepath.ToSlash(filepath.Clean(entry))
		info, statErr := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		switch {
		case statErr != nil:
			logger.Warn("File listed in config not found", "file", entry)
			add(rel, false)
		case info.IsDir():
			files, err := discover.Files(root, filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				return nil, nil, fmt.Errorf("listing %s: %w", entry, err)
			}
			for _, f := range files {
				add(f.Path, true)
			}
		default:
			add(rel, true)
		}
	}
	return listed, seeds, nil
}

// writeOutput prints res in the chosen format. The context format renders
// the listed entries (including missing ones) followed by discovered files.
func writeOutput(ctx context.Context, w io.Writer, format, root string, listed []string, res *model.Result, logger *log.Logger) error {
	switch format {
	case formatTOON:
		_, _ = fmt.Fprintln(w, toon.Encode(filepath.Base(root), res))
	case formatYAML:
		data, err := yaml.Marshal(res)
		if err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		_, _ = w.Write(data)
	case formatPaths:
		for _, p := range mergePaths(listed, res) {
			_, _ = fmt.Fprintln(w, p)
		}
	default:
		r := render.New(root, logger)
		out := r.Files(ctx, mergePaths(listed, res))
		if len(res.Diagnostics) > 0 {
			out += "\n\n" + render.Diagnostics(res.Diagnostics)
		}
		_, _ = fmt.Fprintln(w, out)
	}
	return nil
}

// mergePaths returns listed followed by every discovered file not already in it.
func mergePaths(listed []string, res *model.Result) []string {
	out := append([]string(nil), listed...)
	seen := make(map[string]struct{}, len(listed))
	for _, p := range listed {
		seen[p] = struct{}{}
	}
	for _, p := range res.Paths() {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func projectRoot(target string) (string, error) {
	root, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: not a directory", root)
	}
	return root, nil
}

// loadEnv loads .env from the project root and the working directory.
// Variables already set in the environment win.
func loadEnv(root string) {
	for _, p := range []string{filepath.Join(root, ".env"), ".env"} {
		_ = godotenv.Load(p)
	}
}

func newLogger(w io.Writer) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{Prefix: "scout"})
	raw := strings.TrimSpace(os.Getenv(logLevelEnv))
	if raw == "" {
		logger.SetLevel(log.WarnLevel)
		return logger
	}
	level, err := log.ParseLevel(strings.ToLower(raw))
	if err != nil {
		logger.SetLevel(log.InfoLevel)
		logger.Warn("Unknown log level; using info", "env", logLevelEnv, "value", raw)
		return logger
	}
	logger.SetLevel(level)
	return logger
}
