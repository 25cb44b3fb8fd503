// Package domain implements the on-disk domain state model: the
// installed/published registries, inventory reporting, and the
// install/publish/uninstall/unpublish mutation primitives.
package domain

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ec-ssm/ssm/internal/control"
	"github.com/ec-ssm/ssm/internal/deps"
	"github.com/ec-ssm/ssm/internal/fsutil"
	"github.com/ec-ssm/ssm/internal/packagefile"
	"github.com/ec-ssm/ssm/internal/pkg"
	"github.com/ec-ssm/ssm/internal/repository"
	"github.com/ec-ssm/ssm/internal/ssmerr"
	"github.com/ec-ssm/ssm/internal/ssmlog"
)

// PublishableDirs re-exports the subtrees a package may contribute to
// a published platform tree.
var PublishableDirs = pkg.PublishableDirs

// SSMVersion is the current domain meta "version" value written by
// Create and by a legacy-domain upgrade.
const SSMVersion = "11.7"

// Domain is a filesystem-backed registry of installed and published
// packages rooted at etc/ssm.d/ under Path.
type Domain struct {
	Path          string
	SelfPath      string
	InstalledPath string
	PublishedPath string
	MetaPath      string

	meta   *control.Control
	legacy *bool
}

// New resolves a domain rooted at path, following etc/ssm.d/self when
// it exists as a symlink (the canonical self-path overrides the
// constructor's path, matching ssm/domain.py's __init__).
func New(path string) *Domain {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	selfPath := filepath.Join(path, "etc/ssm.d/self")
	if target, err := os.Readlink(selfPath); err == nil {
		abs = target
	}

	return &Domain{
		Path:          abs,
		SelfPath:      selfPath,
		InstalledPath: filepath.Join(abs, "etc/ssm.d/installed"),
		PublishedPath: filepath.Join(abs, "etc/ssm.d/published"),
		MetaPath:      filepath.Join(abs, "etc/ssm.d/meta.json"),
	}
}

// Exists reports whether the domain directory and its etc/ssm.d
// registry are present.
func (d *Domain) Exists() bool {
	return fsutil.IsRealDir(d.Path) && fsutil.IsRealDir(filepath.Join(d.Path, "etc/ssm.d"))
}

// IsOwner reports whether the current process owns the domain
// directory.
func (d *Domain) IsOwner() bool {
	fi, err := os.Stat(d.Path)
	if err != nil {
		return false
	}
	return isOwnedByCurrentUser(fi)
}

// GetMeta loads (and caches) the domain's meta.json.
func (d *Domain) GetMeta() (*control.Control, error) {
	if d.meta == nil {
		m, err := control.Load(d.MetaPath)
		if err != nil {
			return nil, err
		}
		d.meta = m
	}
	return d.meta, nil
}

// PutMeta merges the given key/value pairs into the domain's meta and
// writes it back to disk.
func (d *Domain) PutMeta(metadata map[string]interface{}) error {
	meta, err := d.GetMeta()
	if err != nil {
		return err
	}
	for k, v := range metadata {
		meta.Set(k, v)
	}
	return meta.Dump(d.MetaPath)
}

// GetRepository returns a repository.Group seeded with the domain's
// meta "repository" URL, or nil if none is configured.
func (d *Domain) GetRepository() (*repository.Group, error) {
	meta, err := d.GetMeta()
	if err != nil {
		return nil, err
	}
	url := meta.GetString("repository")
	if url == "" {
		return nil, nil
	}
	return repository.NewGroup([]string{url}), nil
}

// IsLegacy reports whether the domain was created under SSM 7-10
// (flat installed/published layout), caching the result. Per open
// question (d), a version is legacy only when it begins with one of
// "7.", "8.", "9.", "10".
func (d *Domain) IsLegacy() bool {
	if d.legacy != nil {
		return *d.legacy
	}
	version := ""
	if meta, err := d.GetMeta(); err == nil {
		version = meta.GetString("version")
	}
	if version == "" {
		version = d.getVersionLegacy()
	}
	legacy := isLegacyVersion(version)
	d.legacy = &legacy
	return legacy
}

func isLegacyVersion(version string) bool {
	for _, prefix := range []string{"7.", "8.", "9.", "10"} {
		if strings.HasPrefix(version, prefix) {
			return true
		}
	}
	return false
}

func (d *Domain) getVersionLegacy() string {
	data, err := os.ReadFile(filepath.Join(d.Path, "etc/ssm.d/version"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// GetInstalledPlatforms lists the platform tiers under installed/.
func (d *Domain) GetInstalledPlatforms() ([]string, error) {
	return listDirNames(d.InstalledPath)
}

// GetPublishedPlatforms lists the platform tiers under published/.
func (d *Domain) GetPublishedPlatforms() ([]string, error) {
	return listDirNames(d.PublishedPath)
}

func listDirNames(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ssmerr.Wrap(ssmerr.KindIO, err, "listing %s", path)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || e.Type()&os.ModeSymlink != 0 {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// GetInstalledPackages returns every installed package across the
// given platforms, or all platforms when platforms is nil.
func (d *Domain) GetInstalledPackages(platforms []string) ([]*pkg.Package, error) {
	if d.IsLegacy() {
		return d.getInstalledPackagesLegacy(platforms)
	}
	if platforms == nil {
		var err error
		platforms, err = d.GetInstalledPlatforms()
		if err != nil {
			return nil, err
		}
	}
	var pkgs []*pkg.Package
	for _, platform := range platforms {
		names, err := listDirNames(filepath.Join(d.InstalledPath, platform))
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			p, err := pkg.New(filepath.Join(d.Path, name))
			if err != nil {
				continue
			}
			pkgs = append(pkgs, p)
		}
	}
	return pkgs, nil
}

// GetPublishedPackages returns every published package across the
// given platforms, or all published platforms when platforms is nil.
func (d *Domain) GetPublishedPackages(platforms []string) ([]*pkg.Package, error) {
	if d.IsLegacy() {
		return d.getPublishedPackagesLegacy(platforms)
	}
	if platforms == nil {
		var err error
		platforms, err = d.GetPublishedPlatforms()
		if err != nil {
			return nil, err
		}
	}
	var pkgs []*pkg.Package
	for _, platform := range platforms {
		root := filepath.Join(d.PublishedPath, platform)
		names, err := listDirNames(root)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			p, err := pkg.New(filepath.Join(root, name))
			if err != nil {
				continue
			}
			pkgs = append(pkgs, p)
		}
	}
	return pkgs, nil
}

// GetInstalledPackage returns the installed package named name, or
// nil if it doesn't exist.
func (d *Domain) GetInstalledPackage(name string) (*pkg.Package, error) {
	p, err := pkg.New(filepath.Join(d.Path, name))
	if err != nil {
		return nil, nil
	}
	if !p.Exists() {
		return nil, nil
	}
	return p, nil
}

// GetPublishedPackage returns the published package named name on
// platform (pkg's own platform if empty), or nil if absent.
func (d *Domain) GetPublishedPackage(name, platform string) (*pkg.Package, error) {
	triple, err := pkg.New(name)
	if platform == "" {
		if err == nil {
			platform = triple.Platform
		}
	}
	p, err := pkg.New(filepath.Join(d.PublishedPath, platform, name))
	if err != nil {
		return nil, nil
	}
	if !p.Exists() {
		return nil, nil
	}
	return p, nil
}

// GetPublishedPackageShort returns the published package under
// platform whose short name matches shortName, or nil.
func (d *Domain) GetPublishedPackageShort(shortName, platform string) (*pkg.Package, error) {
	names, err := listDirNames(filepath.Join(d.PublishedPath, platform))
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		p, err := pkg.New(filepath.Join(d.PublishedPath, platform, name))
		if err != nil {
			continue
		}
		if p.Short == shortName {
			if p.Exists() {
				return p, nil
			}
			return nil, nil
		}
	}
	return nil, nil
}

// IsInstalled reports whether p is the currently installed package of
// its name.
func (d *Domain) IsInstalled(p *pkg.Package) (bool, error) {
	if d.IsLegacy() {
		return d.isInstalledLegacy(p)
	}
	ip, err := d.GetInstalledPackage(p.Name)
	if err != nil {
		return false, err
	}
	return ip != nil && ip.Path == p.Path, nil
}

// IsPublished reports whether p is published on any of platforms (all
// published platforms if nil).
func (d *Domain) IsPublished(p *pkg.Package, platforms []string) (bool, error) {
	if !p.Exists() {
		return false, nil
	}
	if platforms == nil {
		var err error
		platforms, err = d.GetPublishedPlatforms()
		if err != nil {
			return false, err
		}
	}
	for _, platform := range platforms {
		pp, err := d.GetPublishedPackage(p.Name, platform)
		if err != nil {
			return false, err
		}
		if pp == nil {
			continue
		}
		real1, err1 := filepath.EvalSymlinks(pp.Path)
		real2, err2 := filepath.EvalSymlinks(p.Path)
		if err1 == nil && err2 == nil && real1 == real2 {
			return true, nil
		}
	}
	return false, nil
}

// GetDependents returns p itself followed by the published packages
// (on platform) that transitively require it, derived from a
// DependencyManager seeded with every published package on platform.
func (d *Domain) GetDependents(p *pkg.Package, platform string) ([]*pkg.Package, error) {
	ppkgs, err := d.GetPublishedPackages([]string{platform})
	if err != nil {
		return nil, err
	}
	short2pkg := map[string]*pkg.Package{}
	for _, pp := range ppkgs {
		short2pkg[pp.Short] = pp
	}

	dm, err := d.createDepManager([]string{platform})
	if err != nil {
		return nil, nil
	}
	shorts := dm.GetRequiredBy([]string{p.Short}, true)

	out := []*pkg.Package{p}
	for _, short := range shorts {
		if found, ok := short2pkg[short]; ok {
			out = append(out, found)
		}
	}
	return out, nil
}

// createDepManager seeds a dependency manager with every package
// currently published on platforms.
func (d *Domain) createDepManager(platforms []string) (*deps.Manager, error) {
	ppkgs, err := d.GetPublishedPackages(platforms)
	if err != nil {
		return nil, err
	}
	dm := deps.NewManager()
	for _, p := range ppkgs {
		c, err := p.GetControl(false)
		if err != nil {
			continue
		}
		name := c.GetString("name")
		if name == "" {
			continue
		}
		if err := dm.Add(name, c.GetString("version"), c.GetString("requires"), c.GetString("provides"), c.GetString("conflicts")); err != nil {
			continue
		}
	}
	return dm, nil
}

// Create initializes the domain's on-disk layout: broken/, installed/,
// published/, the self symlink, and meta.json. Fails with
// AlreadyExists unless force is set.
func (d *Domain) Create(metadata map[string]interface{}, force bool) error {
	if d.Exists() && !force {
		return ssmerr.New(ssmerr.KindAlreadyExists, "domain already exists")
	}
	for _, dirname := range []string{".", "etc/ssm.d/broken", "etc/ssm.d/installed", "etc/ssm.d/published"} {
		path := filepath.Join(d.Path, dirname)
		if !fsutil.IsRealDir(path) {
			if err := fsutil.Makedirs(path); err != nil {
				return err
			}
		}
	}
	if _, err := os.Lstat(d.SelfPath); os.IsNotExist(err) {
		if err := fsutil.Symlink(d.Path, d.SelfPath, false); err != nil {
			return err
		}
	}
	return d.PutMeta(metadata)
}

// Install validates and extracts a package file into the domain,
// registering it under installed/. Failure during unpack or
// post-install leaves the package directory but moves it into
// broken/ rather than leaving it half-registered (open question (c)).
func (d *Domain) Install(pf *packagefile.PackageFile, force, reinstall bool) error {
	return d.installSource(pf.Name, pf, force, reinstall)
}

// InstallSkeleton installs a synthesized package (control.json only,
// or with empty PUBLISHABLE_DIRS) in place of an archive, matching
// ssm_install.py's --skeleton and -s <srcdir> paths, which both pass a
// PackageFileSkeleton to the same dom.install call as a real archive.
func (d *Domain) InstallSkeleton(s *packagefile.Skeleton, force, reinstall bool) error {
	return d.installSource(s.Name, s, force, reinstall)
}

// source is satisfied by both *packagefile.PackageFile and
// *packagefile.Skeleton.
type source interface {
	IsValid() bool
	Unpack(dstDir string) error
}

func (d *Domain) installSource(name string, src source, force, reinstall bool) error {
	if !d.IsOwner() {
		return ssmerr.New(ssmerr.KindNotOwner, "must own domain")
	}
	if !src.IsValid() {
		return ssmerr.New(ssmerr.KindValidation, "package file is not valid")
	}

	p, err := pkg.New(filepath.Join(d.Path, name))
	if err != nil {
		return err
	}
	installed, err := d.IsInstalled(p)
	if err != nil {
		return err
	}
	if installed && !force && !reinstall {
		return ssmerr.New(ssmerr.KindAlreadyInstalled, "package already installed")
	}

	ssmlog.Info("installing %s", name)
	if err := src.Unpack(d.Path); err != nil {
		d.moveToBroken(p)
		return ssmlog.Failed(err)
	}
	if err := p.ExecuteScript("post-install", d.Path); err != nil {
		d.moveToBroken(p)
		return ssmlog.Failed(err)
	}
	if err := d.setInstalled(p); err != nil {
		return ssmlog.Failed(err)
	}
	return ssmlog.Done()
}

// moveToBroken relocates a package directory that failed unpack or
// post-install into etc/ssm.d/broken/, best-effort.
func (d *Domain) moveToBroken(p *pkg.Package) {
	dst := filepath.Join(d.Path, "etc/ssm.d/broken", p.Name)
	_ = os.Rename(p.Path, dst)
}

func (d *Domain) setInstalled(p *pkg.Package) error {
	if d.IsLegacy() {
		return d.setInstalledLegacy(p)
	}
	linkDir := filepath.Join(d.InstalledPath, p.Platform)
	if !fsutil.IsRealDir(linkDir) {
		if err := fsutil.Makedirs(linkDir); err != nil {
			return err
		}
	}
	return fsutil.Symlink(p.Path, filepath.Join(linkDir, p.Name), true)
}

func (d *Domain) unsetInstalled(p *pkg.Package) error {
	if d.IsLegacy() {
		return d.unsetInstalledLegacy(p)
	}
	return fsutil.Remove(filepath.Join(d.InstalledPath, p.Platform, p.Name))
}

func (d *Domain) setPublished(p *pkg.Package, platform string) error {
	if platform == "" {
		platform = p.Platform
	}
	linkDir := filepath.Join(d.PublishedPath, platform)
	if !fsutil.IsRealDir(linkDir) {
		if err := fsutil.Makedirs(linkDir); err != nil {
			return err
		}
	}
	return fsutil.Symlink(p.Path, filepath.Join(linkDir, p.Name), true)
}

func (d *Domain) unsetPublished(p *pkg.Package, platform string) error {
	if platform == "" {
		platform = p.Platform
	}
	return fsutil.Remove(filepath.Join(d.PublishedPath, platform, p.Name))
}

// Uninstall removes an installed package: it must not be published on
// any platform (I5), runs pre-uninstall, deletes the package tree,
// and removes its installed/ registry entry.
func (d *Domain) Uninstall(p *pkg.Package) error {
	installed, err := d.IsInstalled(p)
	if err != nil {
		return err
	}
	if !installed {
		return ssmerr.New(ssmerr.KindNotFound, "package is not installed")
	}
	published, err := d.IsPublished(p, nil)
	if err != nil {
		return err
	}
	if published {
		return ssmerr.New(ssmerr.KindAlreadyPublished, "package is published")
	}

	ssmlog.Info("uninstalling %s", p.Name)
	if err := p.ExecuteScript("pre-uninstall", d.Path); err != nil {
		return ssmlog.Failed(err)
	}
	if err := fsutil.RemoveTree(p.Path); err != nil {
		return ssmlog.Failed(err)
	}
	if err := d.unsetInstalled(p); err != nil {
		return ssmlog.Failed(err)
	}
	return ssmlog.Done()
}

// Prepublish checks that publishing pkg on platform would not leave
// any of its requirements unsatisfied by the packages already
// published there.
func (d *Domain) Prepublish(p *pkg.Package, platform string) error {
	ppkgs, err := d.GetPublishedPackages([]string{platform})
	if err != nil {
		return err
	}
	short2pkg := map[string]*pkg.Package{}
	for _, pp := range ppkgs {
		short2pkg[pp.Short] = pp
	}

	dm, err := d.createDepManager([]string{platform})
	if err != nil {
		return err
	}
	c, err := p.GetControl(false)
	if err != nil {
		return err
	}
	if err := dm.Add(c.GetString("name"), c.GetString("version"), c.GetString("requires"), c.GetString("provides"), c.GetString("conflicts")); err != nil {
		return ssmerr.Wrap(ssmerr.KindValidation, err, "prepublish was unsuccessful")
	}

	shorts, err := dm.Generate([]string{p.Short})
	if err != nil {
		return ssmerr.Wrap(ssmerr.KindValidation, err, "prepublish was unsuccessful")
	}
	for _, short := range shorts {
		if short == p.Short {
			continue
		}
		if _, ok := short2pkg[short]; !ok {
			return ssmerr.New(ssmerr.KindNotFound, "missing package (%s)", short)
		}
	}
	return nil
}

// Publish materializes pkg's PUBLISHABLE_DIRS into platform's
// published tree via symlinks, then registers published/. If pkg is
// already published on platform: fails unless force, in which case it
// is unpublished first.
func (d *Domain) Publish(p *pkg.Package, platform string, force bool) error {
	if !d.IsOwner() {
		return ssmerr.New(ssmerr.KindNotOwner, "must own domain")
	}
	published, err := d.IsPublished(p, []string{platform})
	if err != nil {
		return err
	}
	if published {
		if !force {
			return ssmerr.New(ssmerr.KindAlreadyPublished, "package is already published")
		}
		if err := d.Unpublish(p, platform, force); err != nil {
			return err
		}
	}

	ssmlog.Info("publishing %s on %s", p.Name, platform)
	pubPlatPath := filepath.Join(d.Path, platform)
	for _, pubDirName := range PublishableDirs {
		if err := publishDir(p, pubPlatPath, pubDirName, force); err != nil {
			return ssmlog.Failed(err)
		}
	}
	if err := d.setPublished(p, platform); err != nil {
		return ssmlog.Failed(err)
	}
	return ssmlog.Done()
}

// publishDir walks pkg.Path/pubDirName and mirrors every file as a
// symlink under pubPlatPath, creating intermediate directories as
// needed.
func publishDir(p *pkg.Package, pubPlatPath, pubDirName string, force bool) error {
	root := filepath.Join(p.Path, pubDirName)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(p.Path, path)
		if err != nil {
			return err
		}
		target := filepath.Join(pubPlatPath, rel)

		if info.IsDir() {
			if !fsutil.IsRealDir(target) {
				if err := fsutil.Makedirs(target); err != nil {
					return err
				}
			}
			return nil
		}

		ssmlog.ExtraInfo("symlink %s", rel)
		return fsutil.Symlink(path, target, force)
	})
}

// Unpublish is the surgical inverse of Publish (I4): it removes only
// the symlinks whose realpath lies under the realpath of pkg.Path
// (which may itself be a registry link), then prunes
// directories left empty, stopping at each PUBLISHABLE_DIRS root.
func (d *Domain) Unpublish(p *pkg.Package, platform string, force bool) error {
	published, err := d.IsPublished(p, []string{platform})
	if err != nil {
		return err
	}
	if !published && !force {
		return ssmerr.New(ssmerr.KindNotFound, "package is not published")
	}

	ssmlog.Info("unpublishing %s from %s", p.Name, platform)
	pubPlatPath := filepath.Join(d.Path, platform)
	for _, pubDirName := range PublishableDirs {
		if err := unpublishDir(p, pubPlatPath, pubDirName); err != nil {
			return ssmlog.Failed(err)
		}
	}
	if err := d.unsetPublished(p, platform); err != nil {
		return ssmlog.Failed(err)
	}
	return ssmlog.Done()
}

// unpublishDir walks pubPlatPath/pubDirName bottom-up, removing any
// symlink whose target resolves under the realpath of pkg.Path, and
// pruning directories left fully empty by that removal.
func unpublishDir(p *pkg.Package, pubPlatPath, pubDirName string) error {
	pubDirPath := filepath.Join(pubPlatPath, pubDirName)
	if _, err := os.Stat(pubDirPath); os.IsNotExist(err) {
		return nil
	}
	pkgReal := p.Path
	if resolved, err := filepath.EvalSymlinks(p.Path); err == nil {
		pkgReal = resolved
	}

	var dirs []string
	err := filepath.Walk(pubDirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// process bottom-up so a directory emptied by this unpublish is
	// itself a candidate for removal before its parent is considered.
	for i := len(dirs) - 1; i >= 0; i-- {
		dir := dirs[i]
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		total := len(entries)
		removed := 0
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			linkName := filepath.Join(dir, e.Name())
			real, err := filepath.EvalSymlinks(linkName)
			if err != nil {
				continue
			}
			if isUnder(real, pkgReal) {
				if err := fsutil.Remove(linkName); err != nil {
					return err
				}
				removed++
			}
		}
		if removed == total && dir != pubDirPath {
			fsutil.Rmdir(dir)
		}
	}
	return nil
}

func isUnder(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "")
}

// GetInventory returns the domain's path, meta, legacy flag, and the
// installed/published registries resolved to realpaths.
func (d *Domain) GetInventory() (*Inventory, error) {
	return buildInventory(d)
}
