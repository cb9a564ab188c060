// Package model defines core data structures for scout.
package model

import (
	"fmt"
	"strings"
)

// RefKind tells how a module reference was written.
type RefKind string

const (
	// Declaration is a body-less `mod name;` that names a separate file.
	Declaration RefKind = "declaration"
	// Inline is `mod name { ... }`; its content is already in the origin file.
	Inline RefKind = "inline"
	// Import is one leaf path of a `use` statement.
	Import RefKind = "import"
)

// Path prefixes with special meaning in Rust paths.
const (
	SegCrate = "crate"
	SegSelf  = "self"
	SegSuper = "super"
)

// ModuleReference is a single syntactic module reference found in a source file.
type ModuleReference struct {
	Kind RefKind
	// Segments are the path components in source order, including any
	// crate/self/super prefix. For declarations it is just the module name.
	Segments []string
	// HasGlob is set for `use a::b::*`; the reference targets module b.
	HasGlob bool
	// ModuleOnly is set for a `self` leaf in a use group (`use a::{self}`);
	// the reference targets module a and never an item inside it.
	ModuleOnly bool
	// Scope lists the inline modules enclosing the reference, outermost first.
	Scope []string
	// PathAttr is the value of a #[path = "..."] attribute on a declaration.
	PathAttr string
	Line     int
	// Origin is the canonical path of the file the reference was found in.
	Origin string
}

// String renders the reference the way it appeared in source.
func (r ModuleReference) String() string {
	switch r.Kind {
	case Declaration, Inline:
		return "mod " + strings.Join(r.Segments, "::")
	}
	s := strings.Join(r.Segments, "::")
	if r.HasGlob {
		s += "::*"
	}
	return "use " + s
}

// SourceUnit is a file visited during discovery.
type SourceUnit struct {
	// Path is absolute and canonical.
	Path string `yaml:"-"`
	// Rel is Path relative to the project root, slash-separated.
	Rel string `yaml:"path"`
	// Depth is the BFS distance from the nearest seed.
	Depth int `yaml:"depth"`
	// Via is the root-relative path of the file whose reference first
	// discovered this one; empty for seeds.
	Via string `yaml:"via,omitempty"`
}

// Reason classifies a diagnostic.
type Reason string

const (
	Unresolved  Reason = "unresolved"
	ParseError  Reason = "parse_error"
	OutsideRoot Reason = "outside_root"
)

// Diagnostic is a non-fatal problem recorded during discovery.
type Diagnostic struct {
	// File is the root-relative path of the file that produced the diagnostic.
	File string `yaml:"file"`
	// Reference is the rendered reference, empty for whole-file problems.
	Reference string `yaml:"reference,omitempty"`
	Reason    Reason `yaml:"reason"`
	Detail    string `yaml:"detail,omitempty"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(d.File)
	if d.Reference != "" {
		fmt.Fprintf(&b, ": %s", d.Reference)
	}
	fmt.Fprintf(&b, ": %s", d.Reason)
	if d.Detail != "" {
		fmt.Fprintf(&b, " (%s)", d.Detail)
	}
	return b.String()
}

// Dependency is an edge discovered while expanding Source:
// Source references modules stored in Target.
type Dependency struct {
	Source     string   `yaml:"source"`
	Target     string   `yaml:"target"`
	References []string `yaml:"references"`
}

// Result is the output of one discovery run.
type Result struct {
	Root         string       `yaml:"root"`
	Files        []SourceUnit `yaml:"files"`
	Diagnostics  []Diagnostic `yaml:"diagnostics"`
	Dependencies []Dependency `yaml:"dependencies"`
}

// Paths returns the root-relative file paths in output order.
func (r *Result) Paths() []string {
	paths := make([]string, len(r.Files))
	for i := range r.Files {
		paths[i] = r.Files[i].Rel
	}
	return paths
}
