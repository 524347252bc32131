// Package loc implements the identifier algebra for depsland: normalized
// app ids and the "{name}-{version}" package id grammar, modeled on
// gravitational/gravity's lib/loc.Locator but flattened to depsland's
// single-segment id instead of gravity's repository/name/version triple.
package loc

import (
	"strings"

	"github.com/gravitational/trace"

	"github.com/Likianta/depsland/lib/semver"
)

// NormalizeAppID lowercases an appid and maps hyphens to underscores, per
// spec.md 3: "appid: stable identifier of the app (lowercase,
// underscore-separated)".
func NormalizeAppID(appid string) string {
	return semver.NormalizeName(appid)
}

// PackageID is the content identifier of a pinned package:
// "{normalized_name}-{exact_version}".
type PackageID struct {
	Name    string
	Version string
}

// NewPackageID normalizes name and builds the id.
func NewPackageID(name, version string) PackageID {
	return PackageID{Name: semver.NormalizeName(name), Version: version}
}

// String renders the id in "{name}-{version}" form.
func (p PackageID) String() string {
	return p.Name + "-" + p.Version
}

// ParsePackageID splits a package id string of the form "{name}-{version}"
// back into its parts by splitting on the last hyphen, so a version that
// itself contains a hyphen is not split correctly.
func ParsePackageID(id string) (PackageID, error) {
	idx := strings.LastIndexByte(id, '-')
	if idx < 0 || idx == len(id)-1 {
		return PackageID{}, trace.BadParameter("malformed package id %q", id)
	}
	return PackageID{Name: id[:idx], Version: id[idx+1:]}, nil
}

// SameName reports whether two package ids share a (normalized) name,
// regardless of version.
func (p PackageID) SameName(other PackageID) bool {
	return p.Name == other.Name
}
