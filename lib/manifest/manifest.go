// Package manifest is the typed in-memory model of a release (spec.md 3),
// and the load/dump/validate machinery that turns it into and out of the
// two on-wire forms (manifest.json, manifest.pkl).
//
// Field and lifecycle shapes are grounded on
// gravitational-gravity/lib/pack/pack.go's PackageEnvelope and
// original_source/depsland/api/user_api/install.py's manifest usage; the
// in-package scanning/enrichment in asset.go plays the role of the
// teacher's lib/pack/utils.go:GetPackageManifest reading a manifest back
// out of a package tree.
package manifest

import (
	"path/filepath"
	"sort"

	"github.com/gravitational/trace"

	"github.com/Likianta/depsland/lib/deperrors"
	"github.com/Likianta/depsland/lib/loc"
	"github.com/Likianta/depsland/lib/semver"
)

// SchemaVersion records the manifest wire-format revision. It exists so a
// future change to AssetInfo.UID semantics (see DESIGN.md Open Question 1)
// has a place to branch on without guessing a manifest's vintage.
const SchemaVersion = 1

// LauncherInfo configures the external launcher emitter. It is
// opaque to the core in the sense that nothing here branches on its
// contents; it is typed rather than a bare map so (de)serialization stays
// exact, per SPEC_FULL.md 3's note on original_source's launcher config.
type LauncherInfo struct {
	Command        string                 `json:"command"`
	Icon           string                 `json:"icon,omitempty"`
	ShowConsole    bool                   `json:"show_console,omitempty"`
	EnableCLI      bool                   `json:"enable_cli,omitempty"`
	AddToDesktop   bool                   `json:"add_to_desktop,omitempty"`
	AddToStartMenu bool                   `json:"add_to_start_menu,omitempty"`
	Extra          map[string]interface{} `json:"extra,omitempty"`
}

// PackageInfo is a pinned dependency entry, spec.md 3.
type PackageInfo struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Dependencies []string `json:"dependencies,omitempty"`
	CustomURL    string   `json:"custom_url,omitempty"`
}

// ID returns the package identifier "{name}-{version}".
func (p PackageInfo) ID() loc.PackageID {
	return loc.NewPackageID(p.Name, p.Version)
}

// Manifest is an immutable snapshot of one release of one app.
type Manifest struct {
	SchemaVersion  int                    `json:"schema_version,omitempty"`
	AppID          string                 `json:"appid"`
	Name           string                 `json:"name"`
	Version        string                 `json:"version"`
	StartDirectory string                 `json:"-"` // omitted from manifest.json; Load overwrites it for either form
	Assets         map[string]AssetInfo   `json:"assets"`
	Dependencies   map[string]PackageInfo `json:"dependencies"`
	Launcher       LauncherInfo           `json:"launcher"`
}

// Empty builds the synthetic "no previous release" manifest the publisher
// and installer diff against when there is no prior version on record.
func Empty(appid, name string) *Manifest {
	return &Manifest{
		SchemaVersion: SchemaVersion,
		AppID:         loc.NormalizeAppID(appid),
		Name:          name,
		Version:       "0.0.0",
		Assets:        map[string]AssetInfo{},
		Dependencies:  map[string]PackageInfo{},
	}
}

// SemVersion parses Version with the shared version algebra.
func (m *Manifest) SemVersion() (semver.Version, error) {
	return semver.Parse(m.Version)
}

// Validate checks the three invariants from spec.md 3:
// (a) every asset key is relative and resolves under StartDirectory,
// (b) every dependency has a pinned exact version,
// (c) appid matches the expected normalized form.
func (m *Manifest) Validate() error {
	if m.AppID == "" {
		return deperrors.ManifestSchema("manifest is missing appid")
	}
	if normalized := loc.NormalizeAppID(m.AppID); normalized != m.AppID {
		return deperrors.ManifestSchema(
			"appid %q is not normalized (expected %q)", m.AppID, normalized)
	}
	if m.Version == "" {
		return deperrors.ManifestSchema("manifest %v is missing version", m.AppID)
	}
	if _, err := m.SemVersion(); err != nil {
		return deperrors.ManifestSchema("manifest %v has invalid version %q: %v", m.AppID, m.Version, err)
	}

	for relpath := range m.Assets {
		if filepath.IsAbs(relpath) {
			return deperrors.ManifestSchema("asset key %q must be relative", relpath)
		}
		clean := filepath.Clean(relpath)
		if clean == ".." || len(clean) >= 3 && clean[:3] == "../" {
			return deperrors.ManifestSchema("asset key %q escapes start_directory", relpath)
		}
	}

	for name, dep := range m.Dependencies {
		if dep.Version == "" || semver.IsWildcard(dep.Version) {
			return deperrors.ManifestSchema(
				"dependency %q must pin an exact version, got %q", name, dep.Version)
		}
		if _, err := semver.Parse(dep.Version); err != nil {
			return deperrors.ManifestSchema("dependency %q has invalid version %q: %v", name, dep.Version, err)
		}
	}
	return nil
}

// SortedAssetKeys returns asset map keys in deterministic (lexical) order.
func (m *Manifest) SortedAssetKeys() []string {
	keys := make([]string, 0, len(m.Assets))
	for k := range m.Assets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SortedDependencyNames returns dependency map keys in deterministic order.
func (m *Manifest) SortedDependencyNames() []string {
	keys := make([]string, 0, len(m.Dependencies))
	for k := range m.Dependencies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EnrichFromDisk fills in UpdatedTime/Hash/UID for any asset missing them,
// by scanning under StartDirectory (used when loading an authored
// manifest.json, which may omit those derived fields per spec.md 4.C).
func (m *Manifest) EnrichFromDisk() error {
	if m.StartDirectory == "" {
		return trace.BadParameter("cannot enrich manifest %v: start_directory is unset", m.AppID)
	}
	for relpath, info := range m.Assets {
		if info.UID != "" {
			continue
		}
		enriched, err := enrich(m.StartDirectory, relpath, info)
		if err != nil {
			return trace.Wrap(err, "enriching asset %q", relpath)
		}
		m.Assets[relpath] = enriched
	}
	return nil
}

// Clone returns a deep copy, for callers that mutate a manifest (e.g. a
// test deriving the next release from the previous one) without perturbing
// the original.
func (m *Manifest) Clone() *Manifest {
	out := *m
	out.Assets = make(map[string]AssetInfo, len(m.Assets))
	for k, v := range m.Assets {
		out.Assets[k] = v
	}
	out.Dependencies = make(map[string]PackageInfo, len(m.Dependencies))
	for k, v := range m.Dependencies {
		cp := v
		if v.Dependencies != nil {
			cp.Dependencies = append([]string(nil), v.Dependencies...)
		}
		out.Dependencies[k] = cp
	}
	if m.Launcher.Extra != nil {
		out.Launcher.Extra = make(map[string]interface{}, len(m.Launcher.Extra))
		for k, v := range m.Launcher.Extra {
			out.Launcher.Extra[k] = v
		}
	}
	return &out
}
