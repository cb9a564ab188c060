// Package parse extracts module references from Rust source files using tree-sitter.
package parse

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/scout/internal/lang"
	"github.com/phobologic/scout/internal/model"
)

// ErrSyntax is returned when the source contains syntax errors.
var ErrSyntax = errors.New("syntax error")

var pathAttrRe = regexp.MustCompile(`^#\[\s*path\s*=\s*"([^"]*)"\s*\]$`)

type found struct {
	start uint32
	ref   model.ModuleReference
}

// ExtractReferences parses a Rust source file and returns its module
// references in source order. The parser and query must be created for Rust.
// origin is recorded on every reference and should be the canonical path.
//
// A file with syntax errors yields no references and an error wrapping
// ErrSyntax.
func ExtractReferences(parser *sitter.Parser, query *sitter.Query, source []byte, origin string) ([]model.ModuleReference, error) {
	if len(source) == 0 {
		return nil, nil
	}

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%w near line %d", ErrSyntax, firstErrorLine(root))
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, root)

	var refs []found

	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)

		for _, c := range match.Captures {
			switch query.CaptureNameForId(c.Index) {
			case "module.declaration":
				if r, ok := moduleReference(c.Node, source, origin); ok {
					refs = append(refs, found{start: c.Node.StartByte(), ref: r})
				}
			case "module.import":
				for _, r := range importReferences(c.Node, source, origin) {
					refs = append(refs, found{start: c.Node.StartByte(), ref: r})
				}
			}
		}
	}

	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].start < refs[j].start
	})

	out := make([]model.ModuleReference, len(refs))
	for i := range refs {
		out[i] = refs[i].ref
	}
	return out, nil
}

func moduleReference(node *sitter.Node, source []byte, origin string) (model.ModuleReference, bool) {
	name := node.ChildByFieldName("name")
	if name == nil {
		return model.ModuleReference{}, false
	}

	kind := model.Declaration
	if node.ChildByFieldName("body") != nil {
		kind = model.Inline
	}

	ref := model.ModuleReference{
		Kind:     kind,
		Segments: []string{lang.NodeText(name, source)},
		Scope:    enclosingScope(node, source),
		Line:     int(node.StartPoint().Row) + 1,
		Origin:   origin,
	}
	if kind == model.Declaration {
		ref.PathAttr = pathAttribute(node, source)
	}
	return ref, true
}

type useLeaf struct {
	segments   []string
	glob       bool
	moduleOnly bool
}

func importReferences(node *sitter.Node, source []byte, origin string) []model.ModuleReference {
	arg := node.ChildByFieldName("argument")
	if arg == nil {
		return nil
	}

	var leaves []useLeaf
	collectUse(arg, source, nil, &leaves)

	scope := enclosingScope(node, source)
	line := int(node.StartPoint().Row) + 1

	refs := make([]model.ModuleReference, 0, len(leaves))
	for _, leaf := range leaves {
		if len(leaf.segments) == 0 {
			continue
		}
		refs = append(refs, model.ModuleReference{
			Kind:       model.Import,
			Segments:   leaf.segments,
			HasGlob:    leaf.glob,
			ModuleOnly: leaf.moduleOnly,
			Scope:      scope,
			Line:       line,
			Origin:     origin,
		})
	}
	return refs
}

// collectUse flattens a use tree into leaf paths. Every leaf gets its own
// copy of prefix so brace groups never share backing arrays.
func collectUse(node *sitter.Node, source []byte, prefix []string, out *[]useLeaf) {
	switch node.Type() {
	case "identifier", "crate", "super":
		*out = append(*out, useLeaf{segments: join(prefix, lang.NodeText(node, source))})

	case "self":
		if len(prefix) > 0 {
			*out = append(*out, useLeaf{segments: join(prefix), moduleOnly: true})
			return
		}
		*out = append(*out, useLeaf{segments: []string{model.SegSelf}})

	case "scoped_identifier":
		*out = append(*out, useLeaf{segments: join(prefix, flatten(node, source)...)})

	case "use_as_clause":
		if path := node.ChildByFieldName("path"); path != nil {
			collectUse(path, source, prefix, out)
		}

	case "use_wildcard":
		// A bare `*` inside a group targets the group prefix.
		if node.NamedChildCount() > 0 {
			target := node.NamedChild(0)
			*out = append(*out, useLeaf{segments: join(prefix, flatten(target, source)...), glob: true})
		} else if len(prefix) > 0 {
			*out = append(*out, useLeaf{segments: join(prefix), glob: true})
		}

	case "scoped_use_list":
		next := prefix
		if path := node.ChildByFieldName("path"); path != nil {
			next = join(prefix, flatten(path, source)...)
		}
		if list := node.ChildByFieldName("list"); list != nil {
			collectUse(list, source, next, out)
		}

	case "use_list":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			collectUse(node.NamedChild(i), source, prefix, out)
		}
	}
}

// flatten expands a (possibly scoped) path node into its segments.
func flatten(node *sitter.Node, source []byte) []string {
	switch node.Type() {
	case "scoped_identifier":
		var parts []string
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child.Type() == "::" {
				continue
			}
			parts = append(parts, flatten(child, source)...)
		}
		return parts
	case "identifier", "crate", "self", "super":
		return []string{lang.NodeText(node, source)}
	}
	return nil
}

func join(prefix []string, rest ...string) []string {
	out := make([]string, 0, len(prefix)+len(rest))
	out = append(out, prefix...)
	return append(out, rest...)
}

// enclosingScope returns the names of the inline modules around node,
// outermost first.
func enclosingScope(node *sitter.Node, source []byte) []string {
	var scope []string
	for p := node.Parent(); p != nil; p = p.Parent() {
		if p.Type() != "mod_item" {
			continue
		}
		if name := p.ChildByFieldName("name"); name != nil {
			scope = append([]string{lang.NodeText(name, source)}, scope...)
		}
	}
	return scope
}

// pathAttribute returns the value of a #[path = "..."] attribute attached to
// a module declaration.
func pathAttribute(node *sitter.Node, source []byte) string {
	for prev := node.PrevNamedSibling(); prev != nil; prev = prev.PrevNamedSibling() {
		switch prev.Type() {
		case "attribute_item":
			if m := pathAttrRe.FindStringSubmatch(lang.NodeText(prev, source)); m != nil {
				return m[1]
			}
		case "line_comment", "block_comment":
		default:
			return ""
		}
	}
	return ""
}

func firstErrorLine(node *sitter.Node) int {
	if node.IsError() || node.IsMissing() {
		return int(node.StartPoint().Row) + 1
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.HasError() || child.IsMissing() {
			return firstErrorLine(child)
		}
	}
	return int(node.StartPoint().Row) + 1
}
