package runner

import (
	"sort"
	"strings"

	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/config"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwcert_err"
	"github.com/CodeMonkeyCybersecurity/hwcert/pkg/hwtest"
)

// Factory builds a test with its defaults.
type Factory func(cfg *config.Config) hwtest.Test

// Entry is one registered test.
type Entry struct {
	Path string
	New  Factory
	// Explicit tests only run when named, e.g. reboot.
	Explicit bool
}

type Registry struct {
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]Entry{}}
}

// Register adds or replaces the test at path.
func (r *Registry) Register(path string, f Factory) {
	r.entries[path] = Entry{Path: path, New: f}
}

// RegisterExplicit adds a test that is skipped unless asked for by name.
func (r *Registry) RegisterExplicit(path string, f Factory) {
	r.entries[path] = Entry{Path: path, New: f, Explicit: true}
}

// Names returns every registered path, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Entry(path string) (Entry, bool) {
	e, ok := r.entries[path]
	return e, ok
}

// Select resolves names into entries. With no names every non-explicit test
// is chosen, plus the explicit ones when includeExplicit is set. A name
// selects the test at that path and every test below it.
func (r *Registry) Select(names []string, includeExplicit bool) ([]Entry, error) {
	chosen := map[string]Entry{}
	if len(names) == 0 {
		for _, e := range r.entries {
			if !e.Explicit || includeExplicit {
				chosen[e.Path] = e
			}
		}
	}

	var unknown []string
	for _, name := range names {
		name = strings.Trim(name, "/")
		found := false
		for _, e := range r.entries {
			if e.Path == name || strings.HasPrefix(e.Path, name+"/") {
				chosen[e.Path] = e
				found = true
			}
		}
		if !found {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return nil, hwcert_err.NewValidationError(
			"unknown test: "+strings.Join(unknown, ", "),
			"run 'hwcert list' to see the available tests",
		)
	}
	if includeExplicit {
		for _, e := range r.entries {
			if e.Explicit {
				chosen[e.Path] = e
			}
		}
	}

	out := make([]Entry, 0, len(chosen))
	for _, e := range chosen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Build constructs the tests for entries.
func Build(cfg *config.Config, entries []Entry) []hwtest.Test {
	tests := make([]hwtest.Test, 0, len(entries))
	for _, e := range entries {
		tests = append(tests, e.New(cfg))
	}
	return tests
}

// Order sorts interactive tests first, then by ascending priority, then by
// path. The sort is stable.
func Order(tests []hwtest.Test) {
	sort.SliceStable(tests, func(i, j int) bool {
		a, b := tests[i].Descriptor(), tests[j].Descriptor()
		if a.IsInteractive() != b.IsInteractive() {
			return a.IsInteractive()
		}
		if a.Priority() != b.Priority() {
			return a.Priority() < b.Priority()
		}
		return a.Path() < b.Path()
	})
}
