// Package semver implements the version algebra used to compare package and
// app versions, and to select the best match for a dependency specifier.
//
// Names are lowercased with hyphens mapped to underscores; version strings
// use the PEP-440-adjacent "minor form fix" before being handed to a strict
// semver parser (see FixMinorForm), and the tokens "latest"/"any"/"*"
// normalize to the empty specifier that matches anything.
package semver

import (
	"regexp"
	"sort"

	gosemver "github.com/coreos/go-semver/semver"
	"github.com/gravitational/trace"
)

// minorFormPattern rewrites version tails like "0.1.0b3" into the
// dash-qualified prerelease form "0.1.0-b.3" that a strict semver parser
// understands, mirroring original_source/depsland/utils/verspec.py's
// `_minor_fix_version_form`.
var minorFormPattern = regexp.MustCompile(`(\d)([a-zA-Z]+)(\d+)`)

// FixMinorForm applies the PEP 440 -> semver prerelease rewrite.
func FixMinorForm(raw string) string {
	return minorFormPattern.ReplaceAllString(raw, "$1-$2.$3")
}

// NormalizeName lowercases a package name and maps hyphens to underscores.
func NormalizeName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '-':
			out = append(out, '_')
		case c >= 'A' && c <= 'Z':
			out = append(out, c-'A'+'a')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// IsWildcard reports whether a version token means "matches anything":
// "", "latest", or "any"/"*".
func IsWildcard(v string) bool {
	switch v {
	case "", "latest", "any", "*":
		return true
	default:
		return false
	}
}

// Version wraps a strict semantic version for ordering.
type Version struct {
	v gosemver.Version
}

// Parse parses an exact version string, applying the minor-form fix first.
func Parse(raw string) (Version, error) {
	fixed := FixMinorForm(raw)
	v, err := gosemver.NewVersion(fixed)
	if err != nil {
		return Version{}, trace.BadParameter("invalid version %q: %v", raw, err)
	}
	return Version{v: *v}, nil
}

// MustParse panics on error; for use with compile-time-known literals.
func MustParse(raw string) Version {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the normalized version string.
func (v Version) String() string { return v.v.String() }

// Compare returns -1, 0 or 1 as v is less than, equal to, or greater than
// other.
func (v Version) Compare(other Version) int { return v.v.Compare(other.v) }

// Less reports whether v sorts strictly before other.
func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

// SortVersions sorts raw version strings by semantic order. desc=true sorts
// highest first; wildcard tokens ("", "latest", "*", "any") sort as +Inf
// (always first when desc, always last when ascending).
func SortVersions(versions []string, desc bool) {
	sort.SliceStable(versions, func(i, j int) bool {
		less := versionLess(versions[i], versions[j])
		if desc {
			return !less && versions[i] != versions[j]
		}
		return less
	})
}

func versionLess(a, b string) bool {
	aWild, bWild := IsWildcard(a), IsWildcard(b)
	if aWild && bWild {
		return false
	}
	if aWild {
		return false // a == +Inf, never less
	}
	if bWild {
		return true // b == +Inf, a is always less
	}
	va, errA := Parse(a)
	vb, errB := Parse(b)
	if errA != nil || errB != nil {
		// fall back to lexicographic order for unparseable fragments,
		// keeping SortVersions total even on malformed input.
		return a < b
	}
	return va.Less(vb)
}
