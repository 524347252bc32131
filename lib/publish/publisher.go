// Package publish drives the publisher side of spec.md 4.G: diff the new
// manifest against the previous release, package and upload changed
// assets/dependencies, upload the manifest last, and append distribution
// history. Upload-then-delete ordering on an asset/package "update" is a
// deliberate divergence from the naive delete-then-upload ordering (see
// DESIGN.md's Open Question 2 decision). The serial, single-threaded shape
// is grounded on original_source/depsland/api/user_api/install.py's
// synchronous publish path; upload/delete calls route through lib/blob.Store
// the way gravitational-gravity/lib/blob/client.Client wraps a remote blob
// service behind the same interface its local lib/blob/fs implementation
// satisfies.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"

	"github.com/Likianta/depsland/lib/archiveutil"
	"github.com/Likianta/depsland/lib/blob"
	"github.com/Likianta/depsland/lib/defaults"
	"github.com/Likianta/depsland/lib/deperrors"
	"github.com/Likianta/depsland/lib/diff"
	"github.com/Likianta/depsland/lib/loc"
	"github.com/Likianta/depsland/lib/manifest"
	"github.com/Likianta/depsland/lib/registry"
)

// Publisher publishes new releases of one or more apps to a blob Store,
// recording each publish in the distribution history.
type Publisher struct {
	Store    blob.Store
	Registry *registry.Registry
	Actor    string
}

// New returns a Publisher writing to store and recording history via reg.
func New(store blob.Store, reg *registry.Registry, actor string) *Publisher {
	return &Publisher{Store: store, Registry: reg, Actor: actor}
}

func manifestKey(appid string) string {
	return fmt.Sprintf("%s/%s/%s", defaults.AppsDirName, appid, defaults.ManifestPklFileName)
}

func assetKey(appid, uid string) string {
	return fmt.Sprintf("%s/%s/assets/%s", defaults.AppsDirName, appid, uid)
}

func packageKey(appid string, pkgID loc.PackageID) string {
	return fmt.Sprintf("%s/%s/pypi/%s", defaults.AppsDirName, appid, pkgID.String())
}

// Publish runs the full publisher algorithm of spec.md 4.G against newM. If
// oldM is nil, the most recent distribution-history entry for newM.AppID is
// loaded, falling back to manifest.Empty when there is none.
func (p *Publisher) Publish(ctx context.Context, newM *manifest.Manifest, oldM *manifest.Manifest) error {
	if err := newM.Validate(); err != nil {
		return trace.Wrap(err)
	}

	if oldM == nil {
		resolved, err := p.loadPreviousManifest(ctx, newM.AppID)
		if err != nil {
			return trace.Wrap(err)
		}
		oldM = resolved
	}

	if newM.AppID != oldM.AppID {
		return deperrors.AppIDMismatch(newM.AppID, oldM.AppID)
	}
	newVer, err := newM.SemVersion()
	if err != nil {
		return trace.Wrap(err)
	}
	oldVer, err := oldM.SemVersion()
	if err != nil {
		return trace.Wrap(err)
	}
	if !oldVer.Less(newVer) {
		return deperrors.VersionNotIncreasing(newM.AppID, oldM.Version, newM.Version)
	}

	result := diff.Diff(oldM, newM)

	for _, change := range result.Assets {
		if err := p.applyAssetChange(ctx, newM, change); err != nil {
			return trace.Wrap(err, "publishing asset %v", change.Path)
		}
	}
	for _, change := range result.Dependencies {
		if err := p.applyDependencyChange(ctx, newM, change); err != nil {
			return trace.Wrap(err, "publishing dependency %v", change.Name)
		}
	}

	if err := p.uploadManifest(ctx, newM); err != nil {
		return trace.Wrap(err)
	}

	log.WithFields(log.Fields{"appid": newM.AppID, "version": newM.Version}).Info("published release")
	return trace.Wrap(p.Registry.Prepend(newM.AppID, registry.DistributionHistory, newM.Version, p.Actor))
}

func (p *Publisher) loadPreviousManifest(ctx context.Context, appid string) (*manifest.Manifest, error) {
	lastVersion, err := p.Registry.LastVersion(appid, registry.DistributionHistory)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if lastVersion == "" {
		return manifest.Empty(appid, appid), nil
	}

	r, err := p.Store.Download(ctx, manifestKey(appid))
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

func (p *Publisher) applyAssetChange(ctx context.Context, newM *manifest.Manifest, change diff.AssetChange) error {
	switch change.Action {
	case diff.Ignore:
		return nil
	case diff.Delete:
		return trace.Wrap(p.deleteAssetBlob(ctx, newM.AppID, change.Old))
	case diff.Append, diff.Update:
		if change.New.Scheme == manifest.SchemeRoot {
			// mount point: packaging is a no-op per spec.md 4.F.
			if change.Action == diff.Update {
				return trace.Wrap(p.deleteAssetBlob(ctx, newM.AppID, change.Old))
			}
			return nil
		}
		if err := p.uploadAsset(ctx, newM, change.Path, change.New); err != nil {
			return trace.Wrap(err)
		}
		if change.Action == diff.Update {
			return trace.Wrap(p.deleteAssetBlob(ctx, newM.AppID, change.Old))
		}
		return nil
	default:
		return trace.BadParameter("unknown asset action %v", change.Action)
	}
}

func (p *Publisher) uploadAsset(ctx context.Context, m *manifest.Manifest, relpath string, info manifest.AssetInfo) error {
	full := filepath.Join(m.StartDirectory, relpath)
	key := assetKey(m.AppID, info.UID)

	if info.Type == manifest.AssetDir {
		stageDir, err := os.MkdirTemp("", "depsland-stage-*")
		if err != nil {
			return trace.ConvertSystemError(err)
		}
		defer os.RemoveAll(stageDir)

		filter, err := archiveutil.SchemeFilter(string(info.Scheme))
		if err != nil {
			return trace.Wrap(err)
		}
		if err := archiveutil.StageDir(full, stageDir, filter); err != nil {
			return trace.Wrap(err)
		}

		var buf bytes.Buffer
		if err := archiveutil.ZipDir(stageDir, &buf); err != nil {
			return trace.Wrap(err)
		}
		env, err := p.Store.Upload(ctx, key, &buf)
		if err != nil {
			return trace.Wrap(err)
		}
		logUpload(key, env.SizeBytes)
		return nil
	}

	f, err := os.Open(full)
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	defer f.Close()
	env, err := p.Store.Upload(ctx, key, f)
	if err != nil {
		return trace.Wrap(err)
	}
	logUpload(key, env.SizeBytes)
	return nil
}

func logUpload(key string, size int64) {
	log.WithFields(log.Fields{"key": key, "size": humanize.Bytes(uint64(size))}).Debug("uploaded blob")
}

func (p *Publisher) deleteAssetBlob(ctx context.Context, appid string, info manifest.AssetInfo) error {
	if info.UID == "" || info.Scheme == manifest.SchemeRoot {
		return nil
	}
	err := p.Store.Delete(ctx, assetKey(appid, info.UID))
	if deperrors.IsBlobNotFound(err) {
		return nil
	}
	return trace.Wrap(err)
}

func (p *Publisher) applyDependencyChange(ctx context.Context, newM *manifest.Manifest, change diff.DependencyChange) error {
	switch change.Action {
	case diff.Ignore:
		return nil
	case diff.Delete:
		return trace.Wrap(p.deletePackageBlob(ctx, newM.AppID, change.Old))
	case diff.Append, diff.Update:
		if err := p.uploadPackage(ctx, newM, change.New); err != nil {
			return trace.Wrap(err)
		}
		if change.Action == diff.Update {
			return trace.Wrap(p.deletePackageBlob(ctx, newM.AppID, change.Old))
		}
		return nil
	default:
		return trace.BadParameter("unknown dependency action %v", change.Action)
	}
}

// uploadPackage archives the package tree at dep.CustomURL and uploads it.
// The tree is taken only from CustomURL: no library root is searched, and a
// dependency without CustomURL fails with BadParameter.
func (p *Publisher) uploadPackage(ctx context.Context, m *manifest.Manifest, dep manifest.PackageInfo) error {
	pkgID := dep.ID()
	src := dep.CustomURL
	if src == "" {
		return trace.BadParameter(
			"dependency %v has no resolved install path to package from", pkgID)
	}
	var buf bytes.Buffer
	if err := archiveutil.ZipDir(src, &buf); err != nil {
		return trace.Wrap(err)
	}
	key := packageKey(m.AppID, pkgID)
	env, err := p.Store.Upload(ctx, key, &buf)
	if err != nil {
		return trace.Wrap(err)
	}
	logUpload(key, env.SizeBytes)
	return nil
}

func (p *Publisher) deletePackageBlob(ctx context.Context, appid string, dep manifest.PackageInfo) error {
	err := p.Store.Delete(ctx, packageKey(appid, dep.ID()))
	if deperrors.IsBlobNotFound(err) {
		return nil
	}
	return trace.Wrap(err)
}

func (p *Publisher) uploadManifest(ctx context.Context, m *manifest.Manifest) error {
	var buf bytes.Buffer
	if err := encodeManifestForUpload(m, &buf); err != nil {
		return trace.Wrap(err)
	}
	_, err := p.Store.Upload(ctx, manifestKey(m.AppID), &buf)
	return trace.Wrap(err)
}

func encodeManifestForUpload(m *manifest.Manifest, buf *bytes.Buffer) error {
	tmp, err := os.CreateTemp("", "manifest-*.pkl")
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	defer os.Remove(tmp.Name())
	if err := manifest.Dump(m, tmp.Name()); err != nil {
		return trace.Wrap(err)
	}
	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	buf.Write(data)
	return nil
}
