package domain

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ec-ssm/ssm/internal/control"
	"github.com/ec-ssm/ssm/internal/fsutil"
	"github.com/ec-ssm/ssm/internal/pkg"
	"github.com/ec-ssm/ssm/internal/ssmerr"
	"github.com/ec-ssm/ssm/internal/ssmlog"
)

// legacyComponents is the default set of upgrade components, self
// first so a dangling self-symlink doesn't block the rest (matches
// ssm_upgraded.py's "fix self first!").
var legacyComponents = []string{"self", "meta", "control", "installed", "published", "old-files", "old-dirs"}

func (d *Domain) getInstalledPackagesLegacy(platforms []string) ([]*pkg.Package, error) {
	names, err := listDirNames(d.InstalledPath)
	if err != nil {
		return nil, err
	}
	var pkgs []*pkg.Package
	for _, name := range names {
		p, err := pkg.New(filepath.Join(d.Path, name))
		if err != nil {
			continue
		}
		pkgs = append(pkgs, p)
	}
	return filterByPlatform(pkgs, platforms), nil
}

func (d *Domain) getPublishedPackagesLegacy(platforms []string) ([]*pkg.Package, error) {
	names, err := listDirNames(d.PublishedPath)
	if err != nil {
		return nil, err
	}
	var pkgs []*pkg.Package
	for _, name := range names {
		p, err := pkg.New(filepath.Join(d.Path, name))
		if err != nil {
			continue
		}
		pkgs = append(pkgs, p)
	}
	return filterByPlatform(pkgs, platforms), nil
}

func filterByPlatform(pkgs []*pkg.Package, platforms []string) []*pkg.Package {
	if platforms == nil {
		return pkgs
	}
	want := map[string]bool{}
	for _, p := range platforms {
		want[p] = true
	}
	var out []*pkg.Package
	for _, p := range pkgs {
		if want[p.Platform] {
			out = append(out, p)
		}
	}
	return out
}

func (d *Domain) isInstalledLegacy(p *pkg.Package) (bool, error) {
	linkName := filepath.Join(d.InstalledPath, p.Name)
	target, err := os.Readlink(linkName)
	if err != nil {
		return false, nil
	}
	return target == p.Path, nil
}

func (d *Domain) setInstalledLegacy(p *pkg.Package) error {
	return fsutil.Symlink(p.Path, filepath.Join(d.InstalledPath, p.Name), true)
}

func (d *Domain) unsetInstalledLegacy(p *pkg.Package) error {
	return fsutil.Remove(filepath.Join(d.InstalledPath, p.Name))
}

// UpgradeLegacy converts a legacy (flat, SSM 7-10) domain to the
// current layout, one independently toggleable component at a time,
// grounded on ssm_upgraded.py's upgrade_legacy: self, meta, control,
// installed, published, old-files, old-dirs, self run first so a
// dangling self-symlink is fixed before anything else runs.
func UpgradeLegacy(dompath string, components []string) error {
	if components == nil {
		components = legacyComponents
	}
	has := func(name string) bool {
		for _, c := range components {
			if c == name {
				return true
			}
		}
		return false
	}

	d := New(dompath)
	ssmdPath := filepath.Join(dompath, "etc/ssm.d")
	installedDir := filepath.Join(ssmdPath, "installed")
	publishedDir := filepath.Join(ssmdPath, "published")
	labelPath := filepath.Join(ssmdPath, "label")
	loginPath := filepath.Join(ssmdPath, "login")
	profilePath := filepath.Join(ssmdPath, "profile")
	sourcesPath := filepath.Join(ssmdPath, "sources.list")
	subdomainsPath := filepath.Join(ssmdPath, "subdomains")
	versionPath := filepath.Join(ssmdPath, "version")
	domainHomesDir := filepath.Join(ssmdPath, "domainHomes")
	platformsDir := filepath.Join(ssmdPath, "platforms")

	version := d.getVersionLegacy()

	if has("self") {
		ssmlog.Info("upgrading self path")
		if _, err := os.Lstat(d.SelfPath); err == nil {
			if err := os.Remove(d.SelfPath); err != nil {
				return ssmlog.Failed(ssmerr.Wrap(ssmerr.KindIO, err, "removing old self link"))
			}
		}
		if err := os.Symlink(d.Path, d.SelfPath); err != nil {
			return ssmlog.Failed(ssmerr.Wrap(ssmerr.KindIO, err, "creating self link"))
		}
		ssmlog.Done()
	}

	if has("meta") {
		ssmlog.Info("upgrading domain metadata")
		metadata := map[string]interface{}{
			"label":      readOrEmpty(labelPath),
			"repository": readOrEmpty(sourcesPath),
			"version":    SSMVersion,
		}
		if err := d.Create(metadata, true); err != nil {
			return ssmlog.Failed(err)
		}
		ssmlog.Done()
	}

	if has("control") {
		if err := upgradeLegacyControls(installedDir); err != nil {
			return err
		}
	}

	if has("installed") {
		if err := upgradeLegacyRegistry(d, installedDir, d.setInstalled); err != nil {
			return err
		}
	}

	if has("published") && isOldEnoughForPublishedUpgrade(version) {
		if err := upgradeLegacyRegistry(d, publishedDir, func(p *pkg.Package) error {
			return d.setPublished(p, "")
		}); err != nil {
			return err
		}
	}

	if has("old-files") {
		for _, path := range []string{labelPath, loginPath, profilePath, sourcesPath, subdomainsPath, versionPath} {
			ssmlog.Info("removing old file (%s)", path)
			_ = os.Remove(path)
			ssmlog.Done()
		}
	}

	if has("old-dirs") {
		for _, path := range []string{domainHomesDir, platformsDir} {
			ssmlog.Info("removing old directory (%s)", path)
			_ = os.RemoveAll(path)
			ssmlog.Done()
		}
	}

	return nil
}

func isOldEnoughForPublishedUpgrade(version string) bool {
	for _, prefix := range []string{"9.", "8.", "7."} {
		if strings.HasPrefix(version, prefix) {
			return true
		}
	}
	return false
}

func readOrEmpty(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// upgradeLegacyControls upgrades every installed package's control
// file from legacy to current format, synthesizing name/version/
// platform from the package directory name when the legacy control is
// itself missing a name.
func upgradeLegacyControls(installedDir string) error {
	names, err := getLegacyPackageNames(installedDir)
	if err != nil {
		return nil
	}
	for _, name := range names {
		pkgPath := filepath.Join(installedDir, name)
		p, err := pkg.New(pkgPath)
		if err != nil {
			continue
		}
		if p.HasControl(false) {
			continue
		}
		c, err := p.GetControl(true)
		if err != nil {
			c = control.New()
		}
		if c.GetString("name") == "" {
			ssmlog.Info("generating control file from name (%s)", name)
			fields := strings.SplitN(name, "_", 3)
			if len(fields) != 3 {
				ssmlog.Failed(ssmerr.New(ssmerr.KindValidation, "could not generate control file from name (%s)", name))
				continue
			}
			c.Set("name", fields[0])
			c.Set("version", fields[1])
			c.Set("platform", fields[2])
			ssmlog.Done()
		}
		ssmlog.Info("upgrading package control file (%s)", pkgPath)
		if err := p.PutControl(c); err != nil {
			return ssmlog.Failed(err)
		}
		ssmlog.Done()
	}
	return nil
}

func getLegacyPackageNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if len(strings.Split(e.Name(), "_")) == 3 {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// upgradeLegacyRegistry rewrites a flat legacy registry directory
// (installed/ or published/) into the current per-platform layout:
// read every existing symlink's target, rename the old directory
// aside, recreate it empty, then re-register each resolved package
// via setter.
func upgradeLegacyRegistry(d *Domain, dir string, setter func(*pkg.Package) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var targets []string
	for _, e := range entries {
		target, err := os.Readlink(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		targets = append(targets, target)
	}

	if err := os.Rename(dir, dir+"-old"); err != nil {
		return ssmlog.Failed(ssmerr.Wrap(ssmerr.KindIO, err, "renaming %s aside", dir))
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return ssmlog.Failed(ssmerr.Wrap(ssmerr.KindIO, err, "recreating %s", dir))
	}

	for _, target := range targets {
		p, err := pkg.New(target)
		if err != nil || !p.Exists() {
			continue
		}
		ssmlog.Info("upgrading registry entry for package (%s)", p.Name)
		if err := setter(p); err != nil {
			return ssmlog.Failed(err)
		}
		ssmlog.Done()
	}
	return nil
}
