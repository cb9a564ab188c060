package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/scout/internal/config"
	"github.com/phobologic/scout/internal/discover"
)

type initOptions struct {
	contractType string
	includeTests bool
	dryRun       bool
}

// newInitCmd implements `scout init`, which writes (or refreshes) the .scout
// file of a project with every Rust source file it contains.
func newInitCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init [target]",
		Short: "Write a .scout file listing the project's Rust sources",
		Long: `Write a .scout file listing every Rust source file under target. If the
file already exists its file list is refreshed and the other settings are kept.
Test, bench and example sources are skipped unless --include-tests is given.

target defaults to the current directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "."
			if len(args) > 0 {
				target = args[0]
			}
			return runInit(target, opts, stdout, stderr)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.contractType, "contract-type", "t", "", "contract type to record (required when creating the file)")
	f.BoolVar(&opts.includeTests, "include-tests", false, "also list test, bench and example sources")
	f.BoolVar(&opts.dryRun, "dry-run", false, "print what would be written without modifying the file")
	return cmd
}

func runInit(target string, opts initOptions, stdout, stderr io.Writer) error {
	root, err := projectRoot(target)
	if err != nil {
		return err
	}
	path := filepath.Join(root, config.FileName)

	var existing *config.Config
	if _, err := os.Stat(path); err == nil {
		if existing, err = config.Load(path); err != nil && opts.contractType == "" {
			return fmt.Errorf("existing %s: %w", path, err)
		}
	}

	entries, err := discover.Files(root, "")
	if err != nil {
		return fmt.Errorf("discovering files: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !opts.includeTests && discover.IsTestFile(e.Path) {
			continue
		}
		files = append(files, e.Path)
	}

	cfg, err := applyConfig(existing, opts.contractType, files)
	if err != nil {
		return err
	}
	data, err := config.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", config.FileName, err)
	}

	if opts.dryRun {
		_, _ = stdout.Write(data)
		return nil
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(stderr, "wrote %d files to %s\n", len(files), path)
	return nil
}

// applyConfig returns existing with its file list replaced, or a new config
// when existing is nil. A non-empty contractType always wins. It is a pure
// function for easy testing.
func applyConfig(existing *config.Config, contractType string, files []string) (*config.Config, error) {
	cfg := &config.Config{}
	if existing != nil {
		*cfg = *existing
	}
	if contractType != "" {
		cfg.ContractType = contractType
	}
	if cfg.ContractType == "" {
		return nil, errors.New("--contract-type is required when creating " + config.FileName)
	}
	cfg.Files = append([]string{}, files...)
	return cfg, nil
}
