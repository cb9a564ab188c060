// Package cargo reads the parts of a Cargo.toml manifest that decide where a
// crate's module tree starts.
package cargo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// ManifestName is the Cargo manifest file name.
const ManifestName = "Cargo.toml"

// ErrNoManifest is returned by Find when no manifest exists at or above start.
var ErrNoManifest = errors.New("no " + ManifestName + " found")

// Manifest is the subset of Cargo.toml scout reads.
type Manifest struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
	Lib *Target  `toml:"lib"`
	Bin []Target `toml:"bin"`
}

// Target is a [lib] or [[bin]] section.
type Target struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// Crate describes one crate on disk.
type Crate struct {
	Name string
	// Dir holds Cargo.toml.
	Dir string
	// SrcDir is where `crate::` paths resolve from: the directory of the
	// library root, else of the first binary root, else Dir.
	SrcDir string
	// Roots are the existing crate-root files, library first.
	Roots []string
}

// Parse decodes manifest content.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ManifestName, err)
	}
	return &m, nil
}

// Load reads the manifest in dir and locates its crate roots.
func Load(dir string) (*Crate, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return m.Crate(dir), nil
}

// Find walks up from start looking for a manifest, stopping at stop (which
// is searched too). Both must be absolute.
func Find(start, stop string) (*Crate, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, ManifestName)); err == nil {
			return Load(dir)
		}
		if dir == stop {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil, fmt.Errorf("%w at or above %s", ErrNoManifest, start)
}

// Crate resolves the manifest's targets against dir.
func (m *Manifest) Crate(dir string) *Crate {
	c := &Crate{Name: m.Package.Name, Dir: dir}

	lib := filepath.Join("src", "lib.rs")
	if m.Lib != nil && m.Lib.Path != "" {
		lib = filepath.FromSlash(m.Lib.Path)
	}
	c.addRoot(lib)

	bins := []string{filepath.Join("src", "main.rs")}
	for _, b := range m.Bin {
		if b.Path != "" {
			bins = append(bins, filepath.FromSlash(b.Path))
		}
	}
	for _, b := range bins {
		c.addRoot(b)
	}

	c.SrcDir = dir
	if len(c.Roots) > 0 {
		c.SrcDir = filepath.Dir(c.Roots[0])
	}
	return c
}

func (c *Crate) addRoot(rel string) {
	p := filepath.Join(c.Dir, rel)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	for _, r := range c.Roots {
		if r == p {
			return
		}
	}
	c.Roots = append(c.Roots, p)
}
