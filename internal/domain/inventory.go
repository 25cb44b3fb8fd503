package domain

import (
	"os"
	"path/filepath"
)

// Inventory is a single-object snapshot of a domain's metadata and
// registries, as returned by GetInventory.
type Inventory struct {
	Path      string                        `json:"path"`
	Meta      map[string]interface{}        `json:"meta"`
	Legacy    bool                          `json:"legacy"`
	Installed map[string]string            `json:"installed"` // name -> realpath of the installed link
	Published map[string]map[string]string `json:"published"` // platform -> name -> realpath
}

func buildInventory(d *Domain) (*Inventory, error) {
	meta, err := d.GetMeta()
	if err != nil {
		return nil, err
	}

	inv := &Inventory{
		Path:      d.Path,
		Meta:      meta.All(),
		Legacy:    d.IsLegacy(),
		Installed: map[string]string{},
		Published: map[string]map[string]string{},
	}

	if inv.Legacy {
		fillFlatLinks(inv.Installed, d.InstalledPath)
		platPublished := map[string]string{}
		fillFlatLinks(platPublished, d.PublishedPath)
		inv.Published[""] = platPublished
		return inv, nil
	}

	installedPlatforms, err := d.GetInstalledPlatforms()
	if err != nil {
		return nil, err
	}
	for _, plat := range installedPlatforms {
		fillFlatLinks(inv.Installed, filepath.Join(d.InstalledPath, plat))
	}

	publishedPlatforms, err := d.GetPublishedPlatforms()
	if err != nil {
		return nil, err
	}
	for _, plat := range publishedPlatforms {
		platPublished := map[string]string{}
		fillFlatLinks(platPublished, filepath.Join(d.PublishedPath, plat))
		inv.Published[plat] = platPublished
	}

	return inv, nil
}

// fillFlatLinks reads every symlink directly under dir into dst,
// keyed by entry name, valued by the realpath of its target; links
// that cannot be resolved are left out.
func fillFlatLinks(dst map[string]string, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		target, err := filepath.EvalSymlinks(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		dst[e.Name()] = target
	}
}
