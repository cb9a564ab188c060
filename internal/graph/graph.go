// Package graph collapses discovery edges into a dependency table.
package graph

import (
	"sort"

	"github.com/phobologic/scout/internal/model"
)

// Edge is a single resolved reference from Source to Target, both
// root-relative paths.
type Edge struct {
	Source    string
	Target    string
	Reference string
}

// BuildGraph groups edges by (source, target) and returns one dependency per
// pair, listing the references in the order they were recorded. Self-edges are
// dropped and the result is sorted for deterministic output.
func BuildGraph(edges []Edge) []model.Dependency {
	type edgeKey struct{ src, tgt string }
	refs := make(map[edgeKey][]string)

	for _, e := range edges {
		if e.Source == e.Target {
			continue // no self-edges
		}
		key := edgeKey{e.Source, e.Target}
		if !contains(refs[key], e.Reference) {
			refs[key] = append(refs[key], e.Reference)
		}
	}

	deps := make([]model.Dependency, 0, len(refs))
	for key, r := range refs {
		deps = append(deps, model.Dependency{
			Source:     key.src,
			Target:     key.tgt,
			References: r,
		})
	}

	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Source != deps[j].Source {
			return deps[i].Source < deps[j].Source
		}
		return deps[i].Target < deps[j].Target
	})

	return deps
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
