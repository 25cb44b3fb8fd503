// Package repository locates package files by name across one or
// more filesystem-path or http(s) URLs.
package repository

import (
	"path/filepath"
	"strings"

	"github.com/ec-ssm/ssm/internal/packagefile"
)

// Repository manages access to a collection of package files rooted
// at a single URL (a filesystem path or an http(s) base URL).
type Repository struct {
	URL string
}

// New wraps a repository URL.
func New(url string) *Repository {
	return &Repository{URL: url}
}

func (r *Repository) isHTTP() bool {
	return strings.HasPrefix(r.URL, "http://") || strings.HasPrefix(r.URL, "https://")
}

// GetPackageFile returns the PackageFile for name, or nil if it isn't
// present in this repository. For an http(s) URL it first checks
// existence with an HTTP fetch (see http.go); a filesystem URL is
// joined as url/name.ssm, matching the original's os.path.join.
func (r *Repository) GetPackageFile(name string) (*packagefile.PackageFile, error) {
	if r.isHTTP() {
		return fetchHTTP(r.URL, name)
	}
	path := filepath.Join(r.URL, name+".ssm")
	pf, err := packagefile.New(path)
	if err != nil {
		return nil, err
	}
	if !pf.Exists() {
		return nil, nil
	}
	return pf, nil
}

// GetURL returns the repository's base URL.
func (r *Repository) GetURL() string {
	return r.URL
}

// Group manages an ordered set of Repository objects, returning the
// first package file found.
type Group struct {
	repos []*Repository
}

// NewGroup builds a Group from zero or more URLs, in lookup order.
func NewGroup(urls []string) *Group {
	g := &Group{}
	for _, u := range urls {
		g.AddURL(u)
	}
	return g
}

// AddURL appends a repository URL to the group's lookup order.
func (g *Group) AddURL(url string) {
	g.repos = append(g.repos, New(url))
}

// GetPackageFile queries repositories in order, returning the first
// whose package file exists.
func (g *Group) GetPackageFile(name string) (*packagefile.PackageFile, error) {
	for _, repo := range g.repos {
		pf, err := repo.GetPackageFile(name)
		if err != nil {
			return nil, err
		}
		if pf != nil {
			return pf, nil
		}
	}
	return nil, nil
}
