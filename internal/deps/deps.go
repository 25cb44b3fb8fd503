// Package deps implements the requires/provides/conflicts dependency
// resolver: version-constrained satisfaction and a topological build
// order (leaves last).
package deps

import (
	"regexp"
	"strings"

	"github.com/ec-ssm/ssm/internal/ssmerr"
	"github.com/ec-ssm/ssm/internal/version"
)

var testableRe = regexp.MustCompile(
	`^([A-Za-z][A-Za-z0-9-]*)(\s*(<=|>=|==|!=|<|>|~)\s*([0-9]+(?:\.[0-9]+)*[+\-A-Za-z0-9]*))?$`)

// Provider is a (name, version) pair, or an alias provider with no
// version of its own.
type Provider struct {
	Name    string
	Version string
}

// Testable is one parsed clause of a comma-separated requires,
// provides, or conflicts list: NAME (OP VERSION)?.
type Testable struct {
	TestSpec string
	Name     string
	Op       version.Op
	Version  string
	hasOp    bool
}

// ParseTestable parses a single testable expression.
func ParseTestable(spec string) (Testable, error) {
	m := testableRe.FindStringSubmatch(strings.TrimSpace(spec))
	if m == nil {
		return Testable{}, ssmerr.New(ssmerr.KindValidation, "bad test expression %q", spec)
	}
	t := Testable{TestSpec: spec, Name: m[1]}
	if m[3] != "" {
		t.hasOp = true
		t.Op = version.Op(m[3])
		t.Version = m[4]
	}
	return t, nil
}

// Test reports whether prov satisfies this testable: same name, and
// (if an operator is present) prov's version compares as required.
func (t Testable) Test(prov *Provider) (bool, error) {
	if prov == nil || prov.Name != t.Name {
		return false, nil
	}
	if !t.hasOp {
		return true, nil
	}
	return version.Test(prov.Version, t.Op, t.Version)
}

func parseTestableList(s string) ([]Testable, error) {
	if s == "" {
		return nil, nil
	}
	var out []Testable
	for _, part := range strings.Split(s, ",") {
		t, err := ParseTestable(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Manager resolves requires/provides/conflicts across a set of named
// packages.
type Manager struct {
	provider   map[string]*Provider
	requires   map[string][]Testable
	provides   map[string][]Provider
	conflicts  map[string][]Testable
	requiredBy map[string][]string
}

// NewManager returns an empty dependency manager.
func NewManager() *Manager {
	return &Manager{
		provider:   map[string]*Provider{},
		requires:   map[string][]Testable{},
		provides:   map[string][]Provider{},
		conflicts:  map[string][]Testable{},
		requiredBy: map[string][]string{},
	}
}

// Add registers name with its version and comma-separated
// requires/provides/conflicts testable-expression lists. Each alias
// in provides gets a synthetic provider and a synthetic requirement
// edge back to name, so selecting the alias pulls in the real
// provider.
func (m *Manager) Add(name, ver, requires, provides, conflicts string) error {
	if _, ok := m.provider[name]; ok {
		return ssmerr.New(ssmerr.KindDuplicate, "duplicate (%s) found with provider (%s)", name, m.provider[name].Name)
	}
	m.provider[name] = &Provider{Name: name, Version: ver}

	reqs, err := parseTestableList(requires)
	if err != nil {
		return err
	}
	if reqs != nil {
		m.requires[name] = reqs
		for _, r := range reqs {
			m.requiredBy[r.Name] = append(m.requiredBy[r.Name], name)
		}
	}

	provs, err := parseTestableList(provides)
	if err != nil {
		return err
	}
	for _, p := range provs {
		alias := Provider{Name: p.Name}
		m.provides[name] = append(m.provides[name], alias)
		if existing, ok := m.provider[p.Name]; ok {
			return ssmerr.New(ssmerr.KindDuplicate, "duplicate provider (%s) found", existing.Name)
		}
		m.provider[p.Name] = &alias
		m.requires[p.Name] = []Testable{{TestSpec: name, Name: name}}
	}

	confs, err := parseTestableList(conflicts)
	if err != nil {
		return err
	}
	if confs != nil {
		m.conflicts[name] = confs
	}

	return nil
}

// GetNames returns every registered name (direct providers and alias
// providers).
func (m *Manager) GetNames() []string {
	names := make([]string, 0, len(m.provider))
	for n := range m.provider {
		names = append(names, n)
	}
	return names
}

// GetRequiredBy returns the names that require any of names. indirect
// follows the requires-by graph transitively.
func (m *Manager) GetRequiredBy(names []string, indirect bool) []string {
	seen := map[string]bool{}
	queue := append([]string{}, names...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, dep := range m.requiredBy[n] {
			if !seen[dep] {
				seen[dep] = true
				if indirect {
					queue = append(queue, dep)
				}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return out
}

// Verify confirms every requirement of every registered package is
// satisfied by some provider, and no conflict matches a present
// provider.
func (m *Manager) Verify() error {
	for name := range m.provider {
		if _, err := m.generateOne(name); err != nil {
			return err
		}
	}
	return nil
}

// generateOne evaluates name's conflicts and requirements, returning
// the names name directly requires.
func (m *Manager) generateOne(name string) ([]string, error) {
	prov, ok := m.provider[name]
	if !ok {
		return nil, ssmerr.New(ssmerr.KindMissingProvider, "cannot find name (%s)", name)
	}

	for _, conf := range m.conflicts[name] {
		tprov := m.provider[conf.Name]
		matches, err := conf.Test(tprov)
		if err != nil {
			return nil, err
		}
		if matches {
			return nil, ssmerr.New(ssmerr.KindConflictDetected, "conflict (%s) found for provide (%s)", conf.TestSpec, tprov.Name)
		}
	}

	var out []string
	for _, req := range m.requires[name] {
		tprov, ok := m.provider[req.Name]
		if !ok {
			return nil, ssmerr.New(ssmerr.KindMissingProvider, "cannot find/missing name (%s)", req.Name)
		}
		ok2, err := req.Test(tprov)
		if err != nil {
			return nil, err
		}
		if !ok2 {
			return nil, ssmerr.New(ssmerr.KindUnresolvedRequire, "require (%s) does not satisfy provide (%s)", req.TestSpec, tprov.Name)
		}
		out = append(out, req.Name)
	}
	_ = prov
	return out, nil
}

// Generate returns names and their transitive requirements ordered so
// that every package appears before all of its requirements (leaves
// last: P5), duplicates removed keeping the first occurrence.
//
// The requirement BFS naturally yields this order already (inputs,
// then their direct requirements, then those requirements'
// requirements, ...); a final reversal, as the original source
// applies, would instead put leaves first and is not reproduced here
// (see open question (b)).
func (m *Manager) Generate(names []string) ([]string, error) {
	deps := append([]string{}, names...)
	newDeps := append([]string{}, names...)

	for len(newDeps) > 0 {
		var next []string
		for _, name := range newDeps {
			add, err := m.generateOne(name)
			if err != nil {
				return nil, err
			}
			next = append(next, add...)
		}
		deps = append(deps, next...)
		newDeps = next
	}

	return uniqueKeepFirst(deps), nil
}

// uniqueKeepFirst removes duplicates from deps, keeping each name's
// first occurrence.
func uniqueKeepFirst(deps []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(deps))
	for _, n := range deps {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
