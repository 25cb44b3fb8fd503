// Package naming parses and joins the package name triple and the
// domain-qualified package reference shape used throughout ssm.
package naming

import (
	"strings"

	"github.com/ec-ssm/ssm/internal/ssmerr"
)

// Triple holds the three fields of a package name
// SHORT_VERSION_PLATFORM.
type Triple struct {
	// Short is the package identity used for dependency resolution;
	// never contains an underscore.
	Short string
	// Version is the dotted version string.
	Version string
	// Platform is an opaque label, or one of the sentinels "all"/"multi".
	Platform string
}

// Name reassembles the triple into SHORT_VERSION_PLATFORM.
func (t Triple) Name() string {
	return t.Short + "_" + t.Version + "_" + t.Platform
}

// ParseTriple splits a package name into its SHORT_VERSION_PLATFORM
// fields. SHORT and VERSION never contain an underscore, so the split
// takes the first underscore for SHORT and the next one to separate
// VERSION from PLATFORM; PLATFORM keeps any further underscores
// (hello_1.0_linux_x86 has platform linux_x86).
func ParseTriple(name string) (Triple, error) {
	first := strings.Index(name, "_")
	if first < 0 {
		return Triple{}, ssmerr.New(ssmerr.KindValidation, "package name %q is not SHORT_VERSION_PLATFORM", name)
	}
	rest := name[first+1:]
	last := strings.Index(rest, "_")
	if last < 0 {
		return Triple{}, ssmerr.New(ssmerr.KindValidation, "package name %q is not SHORT_VERSION_PLATFORM", name)
	}
	t := Triple{
		Short:    name[:first],
		Version:  rest[:last],
		Platform: rest[last+1:],
	}
	if t.Short == "" || t.Version == "" || t.Platform == "" {
		return Triple{}, ssmerr.New(ssmerr.KindValidation, "package name %q is not SHORT_VERSION_PLATFORM", name)
	}
	return t, nil
}

// PkgRef is a package reference as accepted on the CLI: an optional
// domain path, and the package name.
type PkgRef struct {
	DomPath  string
	Name     string
	Platform string
}

// SplitPkgRef decomposes "[DOMPATH/]NAME" by taking the text after the
// last '/' as NAME, and NAME's own triple to recover PLATFORM.
func SplitPkgRef(ref string) (PkgRef, error) {
	domPath := ""
	name := ref
	if idx := strings.LastIndex(ref, "/"); idx >= 0 {
		domPath = ref[:idx]
		name = ref[idx+1:]
	}
	triple, err := ParseTriple(name)
	if err != nil {
		return PkgRef{}, err
	}
	return PkgRef{DomPath: domPath, Name: name, Platform: triple.Platform}, nil
}
