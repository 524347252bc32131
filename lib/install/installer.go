// Package install drives the installer side of spec.md 4.H: fetch the new
// manifest, diff against the previously installed one, materialize the
// target directory by reusing old files where possible and fetching only
// novel blobs, install packages through the shared index with a bounded
// worker pool, link the library view, and append install history. Ordering
// (skeleton -> assets -> packages -> launcher -> history) follows spec.md
// 5's installer ordering guarantees; the package-fetch worker pool is
// grounded on lib/concurrency, itself grounded on
// gravitational-gravity/lib/run and SeleniaProject-Orizon's errgroup-based
// dependency fetcher.
package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"

	"github.com/Likianta/depsland/lib/archiveutil"
	"github.com/Likianta/depsland/lib/blob"
	"github.com/Likianta/depsland/lib/concurrency"
	"github.com/Likianta/depsland/lib/defaults"
	"github.com/Likianta/depsland/lib/deperrors"
	"github.com/Likianta/depsland/lib/diff"
	"github.com/Likianta/depsland/lib/loc"
	"github.com/Likianta/depsland/lib/manifest"
	"github.com/Likianta/depsland/lib/pkgindex"
	"github.com/Likianta/depsland/lib/registry"
	"github.com/Likianta/depsland/lib/semver"
)

// LauncherEmitter is the external collaborator that turns a manifest and a
// target directory into a runnable entry point (spec.md 1's explicit
// Non-goal: "a platform-specific file emitter"). The installer only invokes
// it at the documented point in the algorithm.
type LauncherEmitter interface {
	Emit(m *manifest.Manifest, targetDir string) error
}

// NoopLauncherEmitter satisfies LauncherEmitter without producing anything,
// for environments (tests, headless installs) that don't need a launcher.
type NoopLauncherEmitter struct{}

// Emit does nothing.
func (NoopLauncherEmitter) Emit(*manifest.Manifest, string) error { return nil }

// Options configures one Install call.
type Options struct {
	Upgrade   bool
	Reinstall bool
}

// Installer materializes app releases into a local apps/ tree, backed by a
// shared blob Store and package Index.
type Installer struct {
	Root     string
	Store    blob.Store
	Index    *pkgindex.Index
	Registry *registry.Registry
	Launcher LauncherEmitter
	Actor    string
	PoolSize int
}

// New returns an Installer rooted at root.
func New(root string, store blob.Store, index *pkgindex.Index, reg *registry.Registry) *Installer {
	return &Installer{
		Root:     root,
		Store:    store,
		Index:    index,
		Registry: reg,
		Launcher: NoopLauncherEmitter{},
		PoolSize: defaults.FetchPoolSize,
	}
}

func (inst *Installer) appDir(appid string) string {
	return filepath.Join(inst.Root, defaults.AppsDirName, appid)
}

func (inst *Installer) versionDir(appid, version string) string {
	return filepath.Join(inst.appDir(appid), version)
}

func (inst *Installer) libraryView(appid, version string) string {
	return filepath.Join(inst.Root, defaults.AppsDirName, defaults.VenvDirName, appid, version)
}

func (inst *Installer) installedPackageDir(pkgID loc.PackageID) string {
	return filepath.Join(inst.Root, defaults.PypiDirName, defaults.PypiInstalledDirName, pkgID.Name, pkgID.Version)
}

func (inst *Installer) downloadPackagePath(pkgID loc.PackageID) string {
	return filepath.Join(inst.Root, defaults.PypiDirName, defaults.PypiDownloadsDirName, pkgID.Name, pkgID.String()+".zip")
}

func manifestBlobKey(appid string) string {
	return fmt.Sprintf("%s/%s/%s", defaults.AppsDirName, appid, defaults.ManifestPklFileName)
}

func assetBlobKey(appid, uid string) string {
	return fmt.Sprintf("%s/%s/assets/%s", defaults.AppsDirName, appid, uid)
}

func packageBlobKey(appid string, pkgID loc.PackageID) string {
	return fmt.Sprintf("%s/%s/pypi/%s", defaults.AppsDirName, appid, pkgID.String())
}

// Install runs the full installer algorithm for appid. newM may be supplied
// directly (local install against a colocated manifest); otherwise it is
// downloaded from the blob store.
func (inst *Installer) Install(ctx context.Context, appid string, newM *manifest.Manifest, opts Options) error {
	if newM == nil {
		fetched, err := inst.fetchManifest(ctx, appid)
		if err != nil {
			return trace.Wrap(err)
		}
		newM = fetched
	}

	oldM, err := inst.loadInstalledManifest(appid)
	if err != nil {
		return trace.Wrap(err)
	}
	lastInstalled, err := inst.Registry.LastVersion(appid, registry.InstallHistory)
	if err != nil {
		return trace.Wrap(err)
	}
	// a first install has nothing to upgrade from, so it needs no flag.
	firstInstall := lastInstalled == ""

	newVer, err := newM.SemVersion()
	if err != nil {
		return trace.Wrap(err)
	}
	oldVer, err := oldM.SemVersion()
	if err != nil {
		return trace.Wrap(err)
	}

	switch {
	case oldVer.Less(newVer) && (opts.Upgrade || firstInstall):
		// proceed
	case !oldVer.Less(newVer) && !newVer.Less(oldVer) && opts.Reinstall:
		if err := os.RemoveAll(inst.versionDir(appid, oldM.Version)); err != nil {
			return trace.ConvertSystemError(err)
		}
	case !oldVer.Less(newVer) && !newVer.Less(oldVer):
		// spec.md 4.H step 3 + Invariant 5: already installed, no flags set, no-op.
		log.WithFields(log.Fields{"appid": appid, "version": newM.Version}).Info("already up to date")
		return nil
	case newVer.Less(oldVer):
		log.WithFields(log.Fields{"appid": appid, "installed": oldM.Version}).Info("new version not requested")
		return nil
	default:
		return trace.BadParameter("a new version is available but Upgrade was not set")
	}

	targetDir := inst.versionDir(appid, newM.Version)
	if _, err := os.Stat(targetDir); err == nil && !opts.Reinstall {
		return deperrors.TargetExists(targetDir)
	} else if err != nil && !os.IsNotExist(err) {
		return trace.ConvertSystemError(err)
	}

	if err := inst.provisionSkeleton(targetDir, newM); err != nil {
		return trace.Wrap(err)
	}

	result := diff.Diff(oldM, newM)

	if err := inst.installAssets(ctx, appid, oldM, targetDir, result.Assets); err != nil {
		return trace.Wrap(err)
	}

	if err := inst.installPackages(ctx, appid, result.Dependencies); err != nil {
		return trace.Wrap(err)
	}

	if err := inst.linkLibraryView(appid, oldM.Version, newM.Version, result.Dependencies); err != nil {
		return trace.Wrap(err)
	}

	if err := inst.Launcher.Emit(newM, targetDir); err != nil {
		return trace.Wrap(err, "emitting launcher for %v", appid)
	}

	if err := manifest.Dump(newM, filepath.Join(targetDir, defaults.ManifestPklFileName)); err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(inst.Registry.Prepend(appid, registry.InstallHistory, newM.Version, inst.Actor))
}

func (inst *Installer) fetchManifest(ctx context.Context, appid string) (*manifest.Manifest, error) {
	r, err := inst.Store.Download(ctx, manifestBlobKey(appid))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	defer r.Close()

	tmp, err := os.CreateTemp("", "manifest-*.pkl")
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.ReadFrom(r); err != nil {
		tmp.Close()
		return nil, trace.Wrap(err)
	}
	tmp.Close()
	return manifest.Load(tmp.Name())
}

func (inst *Installer) loadInstalledManifest(appid string) (*manifest.Manifest, error) {
	lastVersion, err := inst.Registry.LastVersion(appid, registry.InstallHistory)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if lastVersion == "" {
		return manifest.Empty(appid, appid), nil
	}
	return manifest.Load(filepath.Join(inst.versionDir(appid, lastVersion), defaults.ManifestPklFileName))
}

// provisionSkeleton creates targetDir and a subdirectory for every
// directory-type asset, regardless of scheme, per spec.md 4.H step 4.
func (inst *Installer) provisionSkeleton(targetDir string, m *manifest.Manifest) error {
	if err := os.MkdirAll(targetDir, defaults.DirPerm); err != nil {
		return trace.ConvertSystemError(err)
	}
	for relpath, info := range m.Assets {
		if info.Type != manifest.AssetDir {
			continue
		}
		if err := os.MkdirAll(filepath.Join(targetDir, relpath), defaults.DirPerm); err != nil {
			return trace.ConvertSystemError(err)
		}
	}
	return nil
}

func (inst *Installer) installAssets(ctx context.Context, appid string, oldM *manifest.Manifest, targetDir string, changes []diff.AssetChange) error {
	oldDir := inst.versionDir(appid, oldM.Version)
	for _, change := range changes {
		if err := inst.installOneAsset(ctx, appid, oldDir, targetDir, change); err != nil {
			return trace.Wrap(err, "installing asset %v", change.Path)
		}
	}
	return nil
}

func (inst *Installer) installOneAsset(ctx context.Context, appid, oldDir, targetDir string, change diff.AssetChange) error {
	target := filepath.Join(targetDir, change.Path)

	switch change.Action {
	case diff.Delete:
		return nil
	case diff.Ignore:
		source := filepath.Join(oldDir, change.Path)
		if _, err := os.Stat(source); err != nil {
			if os.IsNotExist(err) {
				// spec.md 4.H/7: promote ignore -> append on missing reuse source.
				log.WithError(deperrors.AssetReuseMiss(change.Path)).Warn("reuse source missing, fetching instead")
				return inst.downloadAsset(ctx, appid, target, change.New)
			}
			return trace.ConvertSystemError(err)
		}
		return trace.Wrap(copyAsset(source, target, change.Old))
	case diff.Append, diff.Update:
		if change.New.Scheme == manifest.SchemeRoot {
			return nil // mount point, skeleton already created
		}
		return inst.downloadAsset(ctx, appid, target, change.New)
	default:
		return trace.BadParameter("unknown asset action %v", change.Action)
	}
}

func (inst *Installer) downloadAsset(ctx context.Context, appid, target string, info manifest.AssetInfo) error {
	r, err := inst.Store.Download(ctx, assetBlobKey(appid, info.UID))
	if err != nil {
		return trace.Wrap(err)
	}
	defer r.Close()

	if info.Type == manifest.AssetFile {
		if err := os.MkdirAll(filepath.Dir(target), defaults.DirPerm); err != nil {
			return trace.ConvertSystemError(err)
		}
		f, err := os.Create(target)
		if err != nil {
			return trace.ConvertSystemError(err)
		}
		defer f.Close()
		return trace.Wrap(archiveutil.CopyFile(r, f))
	}

	tmp, err := os.CreateTemp("", "asset-*.zip")
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	defer os.Remove(tmp.Name())
	size, err := tmp.ReadFrom(r)
	if err != nil {
		tmp.Close()
		return trace.Wrap(err)
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		tmp.Close()
		return trace.ConvertSystemError(err)
	}
	if err := os.MkdirAll(target, defaults.DirPerm); err != nil {
		tmp.Close()
		return trace.ConvertSystemError(err)
	}
	defer tmp.Close()
	return trace.Wrap(archiveutil.UnzipDir(tmp, size, target))
}

// installPackages runs spec.md 4.H step 6: each append/update dependency is
// fetched and unpacked on the bounded pool, then recorded in the index on
// the driver goroutine (the add_to_index calls are never run concurrently,
// matching the "invoked from the driver thread" concurrency policy of
// spec.md 4.E).
func (inst *Installer) installPackages(ctx context.Context, appid string, changes []diff.DependencyChange) error {
	type task struct {
		pkgID loc.PackageID
		appid string
	}
	var tasks []task
	for _, change := range changes {
		if change.Action != diff.Append && change.Action != diff.Update {
			continue
		}
		pkgID := change.New.ID()
		deps := make([]string, len(change.New.Dependencies))
		for i, dep := range change.New.Dependencies {
			deps[i] = semver.NormalizeName(dep)
		}
		if err := inst.Index.RecordDependencies(pkgID.Name, deps); err != nil {
			return trace.Wrap(err)
		}
		if inst.Index.HasID(pkgID) {
			continue // already installed: idempotent no-op per spec.md 4.H.
		}
		tasks = append(tasks, task{pkgID: pkgID, appid: appid})
	}
	if len(tasks) == 0 {
		return nil
	}

	poolSize := len(tasks)
	if inst.PoolSize > 0 && inst.PoolSize < poolSize {
		poolSize = inst.PoolSize
	}
	pool, poolCtx := concurrency.NewPool(ctx, poolSize)

	type fetched struct {
		pkgID        loc.PackageID
		downloadPath string
		installPath  string
	}
	results := make(chan fetched, len(tasks))

	for _, t := range tasks {
		t := t
		pool.Go(func() error {
			downloadPath := inst.downloadPackagePath(t.pkgID)
			installPath := inst.installedPackageDir(t.pkgID)
			if err := inst.fetchAndUnpackPackage(poolCtx, t.appid, t.pkgID, downloadPath, installPath); err != nil {
				return trace.Wrap(err)
			}
			results <- fetched{pkgID: t.pkgID, downloadPath: downloadPath, installPath: installPath}
			return nil
		})
	}

	if err := pool.Wait(); err != nil {
		return trace.Wrap(err)
	}
	close(results)

	for r := range results {
		inst.Index.StashDownload(r.pkgID, r.downloadPath)
		if err := inst.Index.AddInstalled(r.pkgID, r.installPath); err != nil {
			return trace.Wrap(err)
		}
	}
	return trace.Wrap(inst.Index.Save())
}

func (inst *Installer) fetchAndUnpackPackage(ctx context.Context, appid string, pkgID loc.PackageID, downloadPath, installPath string) error {
	r, err := inst.Store.Download(ctx, packageBlobKey(appid, pkgID))
	if err != nil {
		return trace.Wrap(err)
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(downloadPath), defaults.DirPerm); err != nil {
		return trace.ConvertSystemError(err)
	}
	f, err := os.Create(downloadPath)
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	size, err := f.ReadFrom(r)
	if err != nil {
		f.Close()
		return trace.Wrap(err)
	}
	f.Close()

	rf, err := os.Open(downloadPath)
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	defer rf.Close()

	if err := os.MkdirAll(installPath, defaults.DirPerm); err != nil {
		return trace.ConvertSystemError(err)
	}
	return trace.Wrap(archiveutil.UnzipDir(rf, size, installPath))
}

// linkLibraryView creates the per-version library view directory, symlinked
// to each required installed package directory (spec.md 4.H step 7). When
// the dependency set is unchanged, the whole previous view is fast-linked
// as a single symlink instead.
func (inst *Installer) linkLibraryView(appid, oldVersion, newVersion string, changes []diff.DependencyChange) error {
	view := inst.libraryView(appid, newVersion)
	if err := os.MkdirAll(filepath.Dir(view), defaults.DirPerm); err != nil {
		return trace.ConvertSystemError(err)
	}

	changed := false
	for _, c := range changes {
		if c.Action != diff.Ignore {
			changed = true
			break
		}
	}
	if !changed && oldVersion != "" {
		oldView := inst.libraryView(appid, oldVersion)
		if _, err := os.Stat(oldView); err == nil {
			return trace.ConvertSystemError(os.Symlink(oldView, view))
		}
	}

	if err := os.MkdirAll(view, defaults.DirPerm); err != nil {
		return trace.ConvertSystemError(err)
	}
	for _, c := range changes {
		if c.Action == diff.Delete {
			continue
		}
		info := c.New
		if c.Action == diff.Ignore {
			info = c.Old
		}
		pkgID := info.ID()
		target := filepath.Join(view, info.Name)
		if _, err := os.Lstat(target); err == nil {
			continue
		}
		if err := os.Symlink(inst.installedPackageDir(pkgID), target); err != nil {
			return trace.ConvertSystemError(err)
		}
	}
	return nil
}

// copyAsset reuses an unchanged asset from the previous install into target,
// applying the same scheme restriction uploadAsset staged it under (spec.md
// 4.G step 2 / 4.H: a reused directory asset must only carry forward the
// subset its scheme selects, not whatever else accumulated on disk next to
// it). A root-scheme directory is a mount point and is never copied.
func copyAsset(src, dst string, info manifest.AssetInfo) error {
	if info.Type == manifest.AssetFile {
		return trace.Wrap(copyTree(src, dst))
	}
	if info.Scheme == manifest.SchemeRoot {
		return nil
	}
	filter, err := archiveutil.SchemeFilter(string(info.Scheme))
	if err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(archiveutil.StageDir(src, dst, filter))
}

// copyTree copies a single-file asset from src to dst, creating dst's
// parent directory if needed.
func copyTree(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), defaults.DirPerm); err != nil {
		return trace.ConvertSystemError(err)
	}
	in, err := os.Open(src)
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	defer out.Close()
	return trace.Wrap(archiveutil.CopyFile(in, out))
}
