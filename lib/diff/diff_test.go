package diff

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/Likianta/depsland/internal/testutil/compare"
	"github.com/Likianta/depsland/lib/manifest"
)

func TestDiff(t *testing.T) { TestingT(t) }

type DiffSuite struct{}

var _ = Suite(&DiffSuite{})

func changeByPath(changes []AssetChange, path string) (AssetChange, bool) {
	for _, c := range changes {
		if c.Path == path {
			return c, true
		}
	}
	return AssetChange{}, false
}

func (s *DiffSuite) TestAssetAppendUpdateDeleteIgnore(c *C) {
	oldM := manifest.Empty("hello_app", "Hello")
	oldM.Assets["kept.txt"] = manifest.AssetInfo{Type: manifest.AssetFile, UID: "h1"}
	oldM.Assets["changed.txt"] = manifest.AssetInfo{Type: manifest.AssetFile, UID: "h2"}
	oldM.Assets["removed.txt"] = manifest.AssetInfo{Type: manifest.AssetFile, UID: "h3"}

	newM := manifest.Empty("hello_app", "Hello")
	newM.Assets["kept.txt"] = manifest.AssetInfo{Type: manifest.AssetFile, UID: "h1"}
	newM.Assets["changed.txt"] = manifest.AssetInfo{Type: manifest.AssetFile, UID: "h2-new"}
	newM.Assets["added.txt"] = manifest.AssetInfo{Type: manifest.AssetFile, UID: "h4"}

	result := Diff(oldM, newM)
	c.Assert(result.Assets, HasLen, 4)

	kept, ok := changeByPath(result.Assets, "kept.txt")
	c.Assert(ok, Equals, true)
	c.Assert(kept.Action, Equals, Ignore)

	changed, ok := changeByPath(result.Assets, "changed.txt")
	c.Assert(ok, Equals, true)
	c.Assert(changed.Action, Equals, Update)

	removed, ok := changeByPath(result.Assets, "removed.txt")
	c.Assert(ok, Equals, true)
	c.Assert(removed.Action, Equals, Delete)

	added, ok := changeByPath(result.Assets, "added.txt")
	c.Assert(ok, Equals, true)
	c.Assert(added.Action, Equals, Append)
}

func (s *DiffSuite) TestAssetOrderIsSortedByKey(c *C) {
	oldM := manifest.Empty("hello_app", "Hello")
	newM := manifest.Empty("hello_app", "Hello")
	newM.Assets["zzz.txt"] = manifest.AssetInfo{Type: manifest.AssetFile, UID: "1"}
	newM.Assets["aaa.txt"] = manifest.AssetInfo{Type: manifest.AssetFile, UID: "2"}

	result := Diff(oldM, newM)
	c.Assert(result.Assets[0].Path, Equals, "aaa.txt")
	c.Assert(result.Assets[1].Path, Equals, "zzz.txt")
}

func (s *DiffSuite) TestDependencyUpdateOnVersionBump(c *C) {
	oldM := manifest.Empty("hello_app", "Hello")
	oldM.Dependencies["requests"] = manifest.PackageInfo{Name: "requests", Version: "2.30.0"}
	newM := manifest.Empty("hello_app", "Hello")
	newM.Dependencies["requests"] = manifest.PackageInfo{Name: "requests", Version: "2.31.0"}

	result := Diff(oldM, newM)
	c.Assert(result.Dependencies, HasLen, 1)
	c.Assert(result.Dependencies[0].Action, Equals, Update)
}

func (s *DiffSuite) TestDependencyIgnoredWhenUnchanged(c *C) {
	oldM := manifest.Empty("hello_app", "Hello")
	oldM.Dependencies["requests"] = manifest.PackageInfo{Name: "requests", Version: "2.31.0"}
	newM := manifest.Empty("hello_app", "Hello")
	newM.Dependencies["requests"] = manifest.PackageInfo{Name: "requests", Version: "2.31.0"}

	result := Diff(oldM, newM)
	c.Assert(result.Dependencies, HasLen, 1)
	c.Assert(result.Dependencies[0].Action, Equals, Ignore)
}

// TestAssetPathsAreSetEqualRegardlessOfWalkOrder asserts the changed asset
// paths as a set, independent of the sorted order Diff happens to return
// them in, and gets a readable diff instead of a raw struct dump if the set
// is ever wrong.
func (s *DiffSuite) TestAssetPathsAreSetEqualRegardlessOfWalkOrder(c *C) {
	oldM := manifest.Empty("hello_app", "Hello")
	newM := manifest.Empty("hello_app", "Hello")
	newM.Assets["zzz.txt"] = manifest.AssetInfo{Type: manifest.AssetFile, UID: "1"}
	newM.Assets["aaa.txt"] = manifest.AssetInfo{Type: manifest.AssetFile, UID: "2"}
	newM.Assets["mmm.txt"] = manifest.AssetInfo{Type: manifest.AssetFile, UID: "3"}

	result := Diff(oldM, newM)
	var paths []string
	for _, change := range result.Assets {
		paths = append(paths, change.Path)
	}
	c.Assert(paths, compare.SortedSliceEquals, []string{"mmm.txt", "zzz.txt", "aaa.txt"})
}
