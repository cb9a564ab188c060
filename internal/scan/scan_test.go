package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"testing"

	"github.com/phobologic/scout/internal/model"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func discover(t *testing.T, opts Options) *model.Result {
	t.Helper()
	result, err := Discover(context.Background(), opts)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	return result
}

func wantPaths(t *testing.T, result *model.Result, want ...string) {
	t.Helper()
	if got := result.Paths(); !reflect.DeepEqual(got, want) {
		t.Errorf("paths = %v, want %v", got, want)
	}
}

func wantNoDiagnostics(t *testing.T, result *model.Result) {
	t.Helper()
	if len(result.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %v", result.Diagnostics)
	}
}

func reasons(diags []model.Diagnostic) []model.Reason {
	out := make([]model.Reason, len(diags))
	for i, d := range diags {
		out[i] = d.Reason
	}
	return out
}

func TestDiscoverGatewayScenario(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "gateway.rs", "mod pool;\nuse crate::util::math;\n")
	writeFile(t, root, "pool.rs", "pub struct Pool;\n")
	writeFile(t, root, "util/mod.rs", "pub mod math;\n")
	writeFile(t, root, "util/math.rs", "pub fn lerp() {}\n")

	result := discover(t, Options{Root: root, Seeds: []string{"gateway.rs"}, MaxDepth: 2})

	wantPaths(t, result, "gateway.rs", "pool.rs", "util/math.rs")
	wantNoDiagnostics(t, result)
	if result.Files[1].Depth != 1 {
		t.Errorf("pool.rs depth = %d, want 1", result.Files[1].Depth)
	}
	if result.Files[2].Via != "gateway.rs" {
		t.Errorf("util/math.rs via = %q, want gateway.rs", result.Files[2].Via)
	}
}

func TestDiscoverMissingModule(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "lib.rs", "mod missing;\n")

	result := discover(t, Options{Root: root, Seeds: []string{"lib.rs"}, MaxDepth: 3})

	wantPaths(t, result, "lib.rs")
	if len(result.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic, got %v", result.Diagnostics)
	}
	d := result.Diagnostics[0]
	if d.Reason != model.Unresolved || d.File != "lib.rs" || d.Reference != "mod missing" {
		t.Errorf("unexpected diagnostic: %+v", d)
	}
}

func TestDiscoverDepthZeroReturnsSeeds(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "b.rs", "mod missing;\n")
	writeFile(t, root, "a.rs", "mod c;\n")
	writeFile(t, root, "c.rs", "")

	result := discover(t, Options{Root: root, Seeds: []string{"b.rs", "a.rs"}, MaxDepth: 0})

	wantPaths(t, result, "b.rs", "a.rs")
	wantNoDiagnostics(t, result)
	if len(result.Dependencies) != 0 {
		t.Errorf("unexpected dependencies: %v", result.Dependencies)
	}
}

func TestDiscoverDepthBoundsExpansionNotInclusion(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "lib.rs", "mod a;\n")
	writeFile(t, root, "a.rs", "use crate::b;\n")
	writeFile(t, root, "b.rs", "use crate::c;\n")
	writeFile(t, root, "c.rs", "mod missing;\n")

	result := discover(t, Options{Root: root, Seeds: []string{"lib.rs"}, MaxDepth: 2})

	wantPaths(t, result, "lib.rs", "a.rs", "b.rs")
	// b.rs sits at the depth limit and is never parsed.
	wantNoDiagnostics(t, result)
}

func TestDiscoverDepthMonotonic(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "lib.rs", "mod a;\nmod b;\n")
	writeFile(t, root, "a.rs", "use crate::c;\n")
	writeFile(t, root, "b.rs", "use crate::d;\n")
	writeFile(t, root, "c.rs", "use crate::e;\n")
	writeFile(t, root, "d.rs", "")
	writeFile(t, root, "e.rs", "")

	var prev []string
	for depth := 0; depth <= 4; depth++ {
		paths := discover(t, Options{Root: root, Seeds: []string{"lib.rs"}, MaxDepth: depth}).Paths()
		for _, p := range prev {
			if !slices.Contains(paths, p) {
				t.Errorf("depth %d lost %s found at depth %d", depth, p, depth-1)
			}
		}
		prev = paths
	}
	if want := []string{"lib.rs", "a.rs", "b.rs", "c.rs", "d.rs", "e.rs"}; !reflect.DeepEqual(prev, want) {
		t.Errorf("paths = %v, want %v", prev, want)
	}
}

func TestDiscoverCycleBetweenSeeds(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "a.rs", "mod b;\n")
	writeFile(t, root, "b.rs", "mod a;\n")

	for _, depth := range []int{1, 2, 10} {
		result := discover(t, Options{Root: root, Seeds: []string{"a.rs", "b.rs"}, MaxDepth: depth})
		wantPaths(t, result, "a.rs", "b.rs")
		wantNoDiagnostics(t, result)
	}
}

func TestDiscoverCycleFromOneSeed(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "a.rs", "mod b;\n")
	writeFile(t, root, "b.rs", "mod a;\n")

	for _, depth := range []int{1, 2, 3, 10} {
		result := discover(t, Options{Root: root, Seeds: []string{"a.rs"}, MaxDepth: depth})
		wantPaths(t, result, "a.rs", "b.rs")

		if depth < 2 {
			wantNoDiagnostics(t, result)
			continue
		}
		// b.rs is a leaf module, so its `mod a;` looks for b/a.rs.
		if len(result.Diagnostics) != 1 {
			t.Fatalf("depth %d: expected 1 diagnostic, got %v", depth, result.Diagnostics)
		}
		d := result.Diagnostics[0]
		if d.File != "b.rs" || d.Reference != "mod a" || d.Reason != model.Unresolved {
			t.Errorf("depth %d: unexpected diagnostic %+v", depth, d)
		}
	}
}

func TestDiscoverCycleThroughImports(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "a.rs", "mod b;\n")
	writeFile(t, root, "b.rs", "use crate::a::Thing;\n")

	result := discover(t, Options{Root: root, Seeds: []string{"a.rs"}, MaxDepth: 50})

	wantPaths(t, result, "a.rs", "b.rs")
	wantNoDiagnostics(t, result)
	if len(result.Dependencies) != 2 {
		t.Errorf("expected 2 dependencies, got %v", result.Dependencies)
	}
}

func TestDiscoverNoDuplicates(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "lib.rs", "mod a;\nmod b;\nuse crate::a::x;\nuse self::b::{y, z};\n")
	writeFile(t, root, "a.rs", "use crate::b;\n")
	writeFile(t, root, "b.rs", "use crate::a;\n")

	result := discover(t, Options{Root: root, Seeds: []string{"lib.rs", "./lib.rs"}, MaxDepth: 5})

	wantPaths(t, result, "lib.rs", "a.rs", "b.rs")
}

func TestDiscoverOutsideRoot(t *testing.T) {
	t.Parallel()
	outside := t.TempDir()
	writeFile(t, outside, "secret.rs", "")
	root := t.TempDir()
	writeFile(t, root, "lib.rs", "mod secret;\nuse super::shared;\n")
	if err := os.Symlink(filepath.Join(outside, "secret.rs"), filepath.Join(root, "secret.rs")); err != nil {
		t.Skip("symlinks not supported")
	}

	result := discover(t, Options{Root: root, Seeds: []string{"lib.rs"}, MaxDepth: 2})

	wantPaths(t, result, "lib.rs")
	if got, want := reasons(result.Diagnostics), []model.Reason{model.OutsideRoot, model.OutsideRoot}; !reflect.DeepEqual(got, want) {
		t.Errorf("reasons = %v, want %v", got, want)
	}
}

func TestDiscoverParseErrorIsLocal(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "lib.rs", "mod broken;\nmod fine;\n")
	writeFile(t, root, "broken.rs", "mod hidden;\nfn oops( {\n")
	writeFile(t, root, "hidden.rs", "")
	writeFile(t, root, "fine.rs", "use crate::extra;\n")
	writeFile(t, root, "extra.rs", "")

	result := discover(t, Options{Root: root, Seeds: []string{"lib.rs"}, MaxDepth: 3})

	wantPaths(t, result, "lib.rs", "broken.rs", "fine.rs", "extra.rs")
	if len(result.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic, got %v", result.Diagnostics)
	}
	if d := result.Diagnostics[0]; d.Reason != model.ParseError || d.File != "broken.rs" {
		t.Errorf("unexpected diagnostic: %+v", d)
	}
}

func TestDiscoverInvalidUTF8(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "lib.rs", "mod bin;\n")
	writeFile(t, root, "bin.rs", "\xff\xfe mod x;")

	result := discover(t, Options{Root: root, Seeds: []string{"lib.rs"}, MaxDepth: 2})

	wantPaths(t, result, "lib.rs", "bin.rs")
	if got := reasons(result.Diagnostics); !reflect.DeepEqual(got, []model.Reason{model.ParseError}) {
		t.Errorf("reasons = %v, want [parse_error]", got)
	}
}

// A glob import is treated as a reference to its target module only; the
// children of that module are not enumerated from syntax.
func TestDiscoverGlobIncludesOnlyTargetModule(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "lib.rs", "use crate::math::*;\n")
	writeFile(t, root, "math.rs", "")
	writeFile(t, root, "math/ratios.rs", "")

	result := discover(t, Options{Root: root, Seeds: []string{"lib.rs"}, MaxDepth: 1})

	wantPaths(t, result, "lib.rs", "math.rs")
}

func TestDiscoverMissingIntermediateModule(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "gateway.rs", "use crate::util::nope::thing;\n")
	writeFile(t, root, "util/mod.rs", "pub mod math;\n")
	writeFile(t, root, "util/math.rs", "")

	result := discover(t, Options{Root: root, Seeds: []string{"gateway.rs"}, MaxDepth: 2})

	wantPaths(t, result, "gateway.rs")
	if got := reasons(result.Diagnostics); !reflect.DeepEqual(got, []model.Reason{model.Unresolved}) {
		t.Fatalf("reasons = %v, want [unresolved]", got)
	}
	if ref := result.Diagnostics[0].Reference; ref != "use crate::util::nope::thing" {
		t.Errorf("reference = %q", ref)
	}
}

func TestDiscoverExternalCratesIgnored(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "lib.rs", "use serde::Serialize;\nuse std::collections::HashMap;\nmod inner { pub struct X; }\nuse inner::X;\n")

	result := discover(t, Options{Root: root, Seeds: []string{"lib.rs"}, MaxDepth: 2})

	wantPaths(t, result, "lib.rs")
	wantNoDiagnostics(t, result)
}

func TestDiscoverContractsExample(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "contracts/gateway.rs", `mod adapters;
mod risk;

use adapters::{dex::build_dex_route, lending::build_lending_route};
use risk::throttler::ThrottleGuard;
use crate::math::ratios::basis_points::apply_bps_fee;

pub fn rebalance(amount: u64, throttle_bps: u64) -> u64 {
    let guard = ThrottleGuard::new(throttle_bps);
    apply_bps_fee(build_dex_route(guard.clamp(amount)) + build_lending_route(amount), 25)
}
`)
	writeFile(t, root, "contracts/adapters/mod.rs", `pub mod dex;
pub mod lending;

pub use dex::build_dex_route;
pub use lending::build_lending_route;
`)
	writeFile(t, root, "contracts/adapters/dex.rs", `use crate::math::ratios::basis_points::apply_bps_fee;

pub fn build_dex_route(amount: u64) -> u64 {
    apply_bps_fee(amount, 80) / 2
}
`)
	writeFile(t, root, "contracts/adapters/lending.rs", `use crate::math::ratios::basis_points::apply_bps_fee;
use crate::math::ratios::interpolation::weighted_average;

pub fn build_lending_route(amount: u64) -> u64 {
    weighted_average(apply_bps_fee(amount, 20), apply_bps_fee(amount, 5), 60)
}
`)
	writeFile(t, root, "contracts/risk/mod.rs", `pub mod throttler;

pub use throttler::ThrottleGuard;
`)
	writeFile(t, root, "contracts/risk/throttler.rs", `pub struct ThrottleGuard {
    max_bps: u64,
}

impl ThrottleGuard {
    pub fn new(max_bps: u64) -> Self {
        Self { max_bps }
    }
}
`)

	result := discover(t, Options{Root: root, Seeds: []string{"contracts/gateway.rs"}, MaxDepth: 2})

	wantPaths(t, result,
		"contracts/gateway.rs",
		"contracts/adapters/mod.rs",
		"contracts/risk/mod.rs",
		"contracts/adapters/dex.rs",
		"contracts/adapters/lending.rs",
		"contracts/risk/throttler.rs",
	)

	var files []string
	for _, d := range result.Diagnostics {
		if d.Reason != model.Unresolved {
			t.Errorf("unexpected diagnostic: %+v", d)
		}
		files = append(files, d.File)
	}
	want := []string{
		"contracts/gateway.rs",
		"contracts/adapters/dex.rs",
		"contracts/adapters/lending.rs",
		"contracts/adapters/lending.rs",
	}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("diagnostic files = %v, want %v", files, want)
	}
}

func TestDiscoverDeterministicAcrossWorkers(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	lib := ""
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		lib += "mod " + name + ";\n"
		writeFile(t, root, name+".rs", "use crate::shared;\nmod missing_"+name+";\n")
	}
	writeFile(t, root, "lib.rs", lib)
	writeFile(t, root, "shared.rs", "")

	want := discover(t, Options{Root: root, Seeds: []string{"lib.rs"}, MaxDepth: 3, Workers: 1})
	for i := 0; i < 5; i++ {
		got := discover(t, Options{Root: root, Seeds: []string{"lib.rs"}, MaxDepth: 3, Workers: 8})
		if !reflect.DeepEqual(got.Paths(), want.Paths()) {
			t.Errorf("run %d: paths = %v, want %v", i, got.Paths(), want.Paths())
		}
		if !reflect.DeepEqual(got.Diagnostics, want.Diagnostics) {
			t.Errorf("run %d: diagnostics differ: %v vs %v", i, got.Diagnostics, want.Diagnostics)
		}
		if !reflect.DeepEqual(got.Dependencies, want.Dependencies) {
			t.Errorf("run %d: dependencies differ", i)
		}
	}
	if last := want.Files[len(want.Files)-1].Rel; last != "shared.rs" {
		t.Errorf("last file = %q, want shared.rs", last)
	}
}

func TestDiscoverCrateDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "src/lib.rs", "mod net;\n")
	writeFile(t, root, "src/net.rs", "use crate::codec;\n")
	writeFile(t, root, "src/codec.rs", "")

	result := discover(t, Options{Root: root, Seeds: []string{"src/lib.rs"}, CrateDir: "src", MaxDepth: 2})

	wantPaths(t, result, "src/lib.rs", "src/net.rs", "src/codec.rs")
}

func TestDiscoverInvalidOptions(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "lib.rs", "")
	other := t.TempDir()
	writeFile(t, other, "x.rs", "")

	tests := []struct {
		name string
		opts Options
		want error
	}{
		{"missing root", Options{Root: filepath.Join(root, "nope"), Seeds: []string{"lib.rs"}}, ErrInvalidRoot},
		{"no seeds", Options{Root: root}, ErrNoSeeds},
		{"missing seed", Options{Root: root, Seeds: []string{"missing.rs"}}, ErrSeedNotFound},
		{"seed outside root", Options{Root: root, Seeds: []string{filepath.Join(other, "x.rs")}}, ErrSeedOutsideRoot},
	}
	for _, tt := range tests {
		_, err := Discover(context.Background(), tt.opts)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestDiscoverCanceled(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "lib.rs", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Discover(ctx, Options{Root: root, Seeds: []string{"lib.rs"}, MaxDepth: 1})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDiscoverWithCache(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "lib.rs", "mod a;\n")
	writeFile(t, root, "a.rs", "")

	cache, err := NewCache(0)
	if err != nil {
		t.Fatal(err)
	}

	opts := Options{Root: root, Seeds: []string{"lib.rs"}, MaxDepth: 2, Cache: cache}
	first := discover(t, opts)
	second := discover(t, opts)
	if !reflect.DeepEqual(first.Paths(), second.Paths()) {
		t.Errorf("cached run paths = %v, want %v", second.Paths(), first.Paths())
	}

	hits, misses := cache.Stats()
	if hits != 2 || misses != 2 {
		t.Errorf("hits, misses = %d, %d; want 2, 2", hits, misses)
	}
	if cache.Len() != 2 {
		t.Errorf("Len = %d, want 2", cache.Len())
	}

	// Editing a file changes its hash and forces a re-parse.
	writeFile(t, root, "a.rs", "mod b;\n")
	writeFile(t, root, "a/b.rs", "")
	third := discover(t, opts)
	wantPaths(t, third, "lib.rs", "a.rs", "a/b.rs")
}
