package resolve

import (
	"strings"

	"github.com/phobologic/scout/internal/model"
)

// Locals records the modules a single file declares, keyed by their inline
// scope, so relative use paths can be told apart from external crates.
type Locals struct {
	declared map[string]struct{}
	inline   map[string]struct{}
}

// NewLocals collects module declarations from refs.
func NewLocals(refs []model.ModuleReference) Locals {
	l := Locals{
		declared: make(map[string]struct{}),
		inline:   make(map[string]struct{}),
	}
	for _, ref := range refs {
		key := localKey(ref.Scope, ref.Segments[0])
		switch ref.Kind {
		case model.Declaration:
			l.declared[key] = struct{}{}
		case model.Inline:
			l.inline[key] = struct{}{}
		}
	}
	return l
}

// IsDeclared reports whether name is declared with `mod name;` in scope.
func (l Locals) IsDeclared(scope []string, name string) bool {
	_, ok := l.declared[localKey(scope, name)]
	return ok
}

// IsInline reports whether name is an inline module in scope.
func (l Locals) IsInline(scope []string, name string) bool {
	_, ok := l.inline[localKey(scope, name)]
	return ok
}

func localKey(scope []string, name string) string {
	if len(scope) == 0 {
		return name
	}
	return strings.Join(scope, "::") + "::" + name
}
