// Package walker implements the directory-tree search used by the find
// and listd subcommands: a cooperative walk that lets the caller prune
// a subtree after being shown it, terminal-aware column layout, and CSV
// rendering of the records it finds.
package walker

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/term"

	"github.com/ec-ssm/ssm/internal/domain"
)

// DirWalker performs a cooperative directory walk rooted at one or
// more starting paths: the entries of a directory are returned one
// after another, and the subdirectories they open are then walked from
// the most recently pushed one back (a stack, not a queue). Every call
// to Next returns the next path (directory or file); the caller may
// then call Skip to prevent descent into the directory just returned,
// mirroring ssm_find.py's DirWalker.
type DirWalker struct {
	dirsOnly bool
	stack    []frame
	root     string
	pending  []string
	pushed   bool // the path last returned by Next pushed a frame
}

type frame struct {
	root  string
	names []string
}

// NewDirWalker starts a walk at the given root paths.
func NewDirWalker(paths []string, dirsOnly bool) *DirWalker {
	return &DirWalker{dirsOnly: dirsOnly, pending: append([]string(nil), paths...)}
}

// Skip tells the walker not to descend into the directory most
// recently returned by Next.
func (w *DirWalker) Skip() {
	if w.pushed {
		w.stack = w.stack[:len(w.stack)-1]
		w.pushed = false
	}
}

// Next returns the next path in the walk, or "", false when the walk
// is exhausted.
func (w *DirWalker) Next() (string, bool) {
	w.pushed = false
	for {
		var name string
		for {
			if len(w.pending) > 0 {
				name = w.pending[0]
				w.pending = w.pending[1:]
				break
			}
			if len(w.stack) > 0 {
				top := w.stack[len(w.stack)-1]
				w.stack = w.stack[:len(w.stack)-1]
				w.root = top.root
				w.pending = top.names
				continue
			}
			return "", false
		}

		path := filepath.Join(w.root, name)
		info, err := os.Stat(path)
		isDir := err == nil && info.IsDir()

		if isDir && w.dirsOnly {
			// directory readability gate, matching os.access(R_OK|X_OK)
			if f, err := os.Open(path); err != nil {
				continue
			} else {
				f.Close()
			}
		}

		if isDir {
			entries, err := os.ReadDir(path)
			if err == nil {
				names := make([]string, 0, len(entries))
				for _, e := range entries {
					names = append(names, e.Name())
				}
				w.stack = append(w.stack, frame{root: path, names: names})
				w.pushed = true
			}
		}

		return path, true
	}
}

// TerminalWidth returns the current terminal's column width, or 80
// when it cannot be determined (not a terminal, or on error).
func TerminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// Columnize lays lines out in as many fixed-width columns as fit
// within width, padded by gap spaces between columns; at least one
// column is used even when the widest line does not fit.
func Columnize(lines []string, width, gap int) []string {
	if len(lines) == 0 {
		return nil
	}
	maxLen := 0
	for _, l := range lines {
		if len(l) > maxLen {
			maxLen = len(l)
		}
	}
	colWidth := maxLen + gap
	ncols := 1
	if colWidth > 0 {
		ncols = width / colWidth
	}
	if ncols < 1 {
		ncols = 1
	}

	nrows := (len(lines) + ncols - 1) / ncols
	out := make([]string, 0, nrows)
	for r := 0; r < nrows; r++ {
		var b strings.Builder
		for c := 0; c < ncols; c++ {
			i := c*nrows + r
			if i >= len(lines) {
				break
			}
			if c > 0 {
				b.WriteString(strings.Repeat(" ", gap))
			}
			b.WriteString(lines[i])
			if c < ncols-1 && i+nrows < len(lines) {
				b.WriteString(strings.Repeat(" ", maxLen-len(lines[i])))
			}
		}
		out = append(out, b.String())
	}
	return out
}

// Record is one (domain, platform, package) match produced by Find, or
// a bare domain match when Name is empty.
type Record struct {
	DomainPath string
	State      string // "I", "p", or "IP"
	Platform   string
	Name       string
}

// FindOptions configures Find.
type FindOptions struct {
	DomainPattern  func(string) bool
	PackagePattern func(string) bool
	PlatformPattern func(string) bool
	Platforms       []string // used when PlatformPattern is nil
	DomainsOnly     bool     // list matching domains only, skip package records
	OnSkip          func(path string)
}

// Find walks every path in paths looking for domains (directories
// containing etc/ssm.d), matching dompatt/pkgpatt/platpatt, and
// returns one Record per (domain) or per (domain, platform, package)
// match, mirroring ssm_find.py's run().
func Find(paths []string, opts FindOptions) []Record {
	var out []Record
	dw := NewDirWalker(paths, true)
	for {
		path, ok := dw.Next()
		if !ok {
			break
		}
		if _, err := os.Stat(filepath.Join(path, ".skip-ssm")); err == nil {
			if opts.OnSkip != nil {
				opts.OnSkip(path)
			}
			dw.Skip()
			continue
		}
		if strings.HasPrefix(filepath.Base(path), ".") {
			dw.Skip()
			continue
		}

		d := domain.New(path)
		if !d.Exists() {
			continue
		}
		dw.Skip()

		domName := filepath.Base(d.Path)
		if opts.DomainPattern != nil && !opts.DomainPattern(domName) {
			continue
		}

		inv, err := d.GetInventory()
		if err != nil {
			continue
		}

		out = append(out, Record{DomainPath: d.Path})
		if opts.DomainsOnly {
			continue
		}

		platforms := opts.Platforms
		if opts.PlatformPattern != nil {
			platSet := map[string]bool{}
			for plat := range inv.Published {
				if opts.PlatformPattern(plat) {
					platSet[plat] = true
				}
			}
			for name := range inv.Installed {
				fields := strings.Split(name, "_")
				platSet[fields[len(fields)-1]] = true
			}
			platforms = nil
			for p := range platSet {
				platforms = append(platforms, p)
			}
		}

		allNames := map[string]bool{}
		for name := range inv.Installed {
			allNames[name] = true
		}
		for _, plat := range platforms {
			for name := range inv.Published[plat] {
				allNames[name] = true
			}
		}
		if opts.PackagePattern != nil {
			for name := range allNames {
				if !opts.PackagePattern(name) {
					delete(allNames, name)
				}
			}
		}

		names := make([]string, 0, len(allNames))
		for name := range allNames {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			for _, plat := range platforms {
				state := ""
				if _, ok := inv.Installed[name]; ok && strings.HasSuffix(name, "_"+plat) {
					state = "I"
				}
				if _, ok := inv.Published[plat][name]; ok {
					if state != "" {
						state += "P"
					} else {
						state = "p"
					}
				}
				if state == "" {
					continue
				}
				out = append(out, Record{DomainPath: d.Path, State: state, Platform: plat, Name: name})
			}
		}
	}
	return out
}

// WriteCSV renders records as domain,state,platform,name rows.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	for _, r := range records {
		if err := cw.Write([]string{r.DomainPath, r.State, r.Platform, r.Name}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
