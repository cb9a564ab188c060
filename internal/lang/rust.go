package lang

import (
	"github.com/smacker/go-tree-sitter/rust"
)

// Rust is the name under which the Rust language is registered.
const Rust = "rust"

func init() {
	Languages[Rust] = &Language{
		Name:        Rust,
		Extensions:  []string{".rs"},
		ModuleFiles: []string{"mod.rs"},
		RootFiles:   []string{"lib.rs", "main.rs"},
		lang:        rust.GetLanguage(),
	}
}
