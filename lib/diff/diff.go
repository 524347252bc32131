// Package diff computes the minimum set of asset and dependency changes
// between two manifests (spec.md 4.F). The sorted-union-of-keys walk is
// grounded on gravitational-gravity/lib/loc.DiffDockerImages, which unions
// and sorts the repository/tag keyspace from two image lists before
// classifying each key's presence on either side; this package does the
// same over asset paths and dependency names instead of Docker tags.
package diff

import (
	"sort"

	"github.com/Likianta/depsland/lib/loc"
	"github.com/Likianta/depsland/lib/manifest"
)

// Action classifies what must happen to an asset or dependency entry to
// move from the old manifest to the new one.
type Action string

const (
	Append Action = "append"
	Update Action = "update"
	Delete Action = "delete"
	Ignore Action = "ignore"
)

// AssetChange is one entry of the asset-level diff, keyed by relative path.
type AssetChange struct {
	Path   string
	Action Action
	Old    manifest.AssetInfo
	New    manifest.AssetInfo
}

// DependencyChange is one entry of the dependency-level diff, keyed by
// normalized package name.
type DependencyChange struct {
	Name   string
	Action Action
	Old    manifest.PackageInfo
	New    manifest.PackageInfo
}

// Result is the full differ output for one publish or install cycle.
type Result struct {
	Assets       []AssetChange
	Dependencies []DependencyChange
}

// Diff compares oldM against newM, both describing the same appid, and
// returns the ordered (by sorted key) set of changes. Callers are expected
// to have already established oldM.AppID == newM.AppID; Diff does not
// re-check that invariant (spec.md leaves AppIDMismatch detection to the
// caller that loaded both manifests).
func Diff(oldM, newM *manifest.Manifest) Result {
	return Result{
		Assets:       diffAssets(oldM, newM),
		Dependencies: diffDependencies(oldM, newM),
	}
}

func diffAssets(oldM, newM *manifest.Manifest) []AssetChange {
	keys := unionKeys(oldM.Assets, newM.Assets)
	changes := make([]AssetChange, 0, len(keys))
	for _, key := range keys {
		oldInfo, hadOld := oldM.Assets[key]
		newInfo, hasNew := newM.Assets[key]
		switch {
		case !hadOld && hasNew:
			changes = append(changes, AssetChange{Path: key, Action: Append, New: newInfo})
		case hadOld && !hasNew:
			changes = append(changes, AssetChange{Path: key, Action: Delete, Old: oldInfo})
		case oldInfo.SameContent(newInfo):
			changes = append(changes, AssetChange{Path: key, Action: Ignore, Old: oldInfo, New: newInfo})
		default:
			changes = append(changes, AssetChange{Path: key, Action: Update, Old: oldInfo, New: newInfo})
		}
	}
	return changes
}

func diffDependencies(oldM, newM *manifest.Manifest) []DependencyChange {
	keys := unionDepKeys(oldM.Dependencies, newM.Dependencies)
	changes := make([]DependencyChange, 0, len(keys))
	for _, name := range keys {
		oldDep, hadOld := oldM.Dependencies[name]
		newDep, hasNew := newM.Dependencies[name]
		switch {
		case !hadOld && hasNew:
			changes = append(changes, DependencyChange{Name: name, Action: Append, New: newDep})
		case hadOld && !hasNew:
			changes = append(changes, DependencyChange{Name: name, Action: Delete, Old: oldDep})
		case loc.NewPackageID(oldDep.Name, oldDep.Version) == loc.NewPackageID(newDep.Name, newDep.Version):
			changes = append(changes, DependencyChange{Name: name, Action: Ignore, Old: oldDep, New: newDep})
		default:
			// same name, different version: spec.md 4.F's "update" case.
			changes = append(changes, DependencyChange{Name: name, Action: Update, Old: oldDep, New: newDep})
		}
	}
	return changes
}

func unionKeys(a, b map[string]manifest.AssetInfo) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unionDepKeys(a, b map[string]manifest.PackageInfo) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
