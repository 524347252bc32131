package pkgindex

import (
	"path/filepath"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/Likianta/depsland/internal/testutil/compare"
	"github.com/Likianta/depsland/lib/loc"
)

func TestIndex(t *testing.T) { TestingT(t) }

type IndexSuite struct{}

var _ = Suite(&IndexSuite{})

func (s *IndexSuite) TestStashThenInstallRoundTrip(c *C) {
	idx, err := Load(c.MkDir())
	c.Assert(err, IsNil)

	pkgID := loc.NewPackageID("requests", "2.31.0")
	c.Assert(idx.HasID(pkgID), Equals, false)

	downloadPath := filepath.Join(idx.downloadsDir(), "requests", "requests-2.31.0.zip")
	installPath := filepath.Join(idx.installedDir(), "requests", "2.31.0")
	idx.StashDownload(pkgID, downloadPath)
	c.Assert(idx.AddInstalled(pkgID, installPath), IsNil)

	c.Assert(idx.HasID(pkgID), Equals, true)
	paths, ok := idx.Paths(pkgID)
	c.Assert(ok, Equals, true)
	c.Assert(paths.InstallPath, Equals, installPath)
}

func (s *IndexSuite) TestAddInstalledWithoutStashIsIndexInconsistency(c *C) {
	idx, err := Load(c.MkDir())
	c.Assert(err, IsNil)

	pkgID := loc.NewPackageID("requests", "2.31.0")
	err = idx.AddInstalled(pkgID, "/pypi/installed/requests/2.31.0")
	c.Assert(err, NotNil)
}

func (s *IndexSuite) TestSavePersistsAndReloads(c *C) {
	root := c.MkDir()
	idx, err := Load(root)
	c.Assert(err, IsNil)

	d1, i1 := idx.downloadsDir()+"/d1.zip", idx.installedDir()+"/requests/2.30.0"
	d2, i2 := idx.downloadsDir()+"/d2.zip", idx.installedDir()+"/requests/2.31.0"
	c.Assert(idx.Update(loc.NewPackageID("requests", "2.30.0"), d1, i1, false), IsNil)
	c.Assert(idx.Update(loc.NewPackageID("requests", "2.31.0"), d2, i2, false), IsNil)
	c.Assert(idx.Save(), IsNil)

	reloaded, err := Load(root)
	c.Assert(err, IsNil)
	c.Assert(reloaded.Versions("requests"), DeepEquals, []string{"2.31.0", "2.30.0"})
}

func (s *IndexSuite) TestUpdateWithoutForceSkipsExisting(c *C) {
	idx, err := Load(c.MkDir())
	c.Assert(err, IsNil)

	pkgID := loc.NewPackageID("requests", "2.31.0")
	d1, i1 := idx.downloadsDir()+"/d1.zip", idx.installedDir()+"/requests/2.31.0"
	d2, i2 := idx.downloadsDir()+"/d2.zip", idx.installedDir()+"/requests-2/2.31.0"
	c.Assert(idx.Update(pkgID, d1, i1, false), IsNil)
	c.Assert(idx.Update(pkgID, d2, i2, false), IsNil)

	paths, _ := idx.Paths(pkgID)
	c.Assert(paths.DownloadPath, Equals, d1)
}

func (s *IndexSuite) TestUpdateRejectsPathOutsideRoots(c *C) {
	idx, err := Load(c.MkDir())
	c.Assert(err, IsNil)

	pkgID := loc.NewPackageID("requests", "2.31.0")
	err = idx.Update(pkgID, "/tmp/elsewhere/requests-2.31.0.zip", idx.installedDir()+"/requests/2.31.0", false)
	c.Assert(err, NotNil)
	c.Assert(idx.HasID(pkgID), Equals, false)
}

func (s *IndexSuite) TestRecordDependenciesDetectsCycle(c *C) {
	idx, err := Load(c.MkDir())
	c.Assert(err, IsNil)

	c.Assert(idx.RecordDependencies("a", []string{"b"}), IsNil)
	c.Assert(idx.RecordDependencies("b", []string{"c"}), IsNil)
	err = idx.RecordDependencies("c", []string{"a"})
	c.Assert(err, NotNil)
}

func (s *IndexSuite) TestRecordDependenciesAllowsDiamond(c *C) {
	idx, err := Load(c.MkDir())
	c.Assert(err, IsNil)

	c.Assert(idx.RecordDependencies("a", []string{"b", "c"}), IsNil)
	c.Assert(idx.RecordDependencies("b", []string{"d"}), IsNil)
	c.Assert(idx.RecordDependencies("c", []string{"d"}), IsNil)
	c.Assert(idx.RecordDependencies("d", nil), IsNil)
}

func (s *IndexSuite) TestPendingDownloadsReflectsStash(c *C) {
	idx, err := Load(c.MkDir())
	c.Assert(err, IsNil)

	c.Assert(idx.PendingDownloads(), DeepEquals, []string{})

	requests := loc.NewPackageID("requests", "2.31.0")
	flask := loc.NewPackageID("flask", "3.0.0")
	idx.StashDownload(requests, idx.downloadsDir()+"/requests/requests-2.31.0.zip")
	idx.StashDownload(flask, idx.downloadsDir()+"/flask/flask-3.0.0.zip")
	// stash iteration order is map order; assert the set regardless of it.
	c.Assert(idx.PendingDownloads(), compare.SortedSliceEquals,
		[]string{requests.String(), flask.String()})
	c.Assert(idx.Save(), IsNil) // exercises the non-empty-stash warning path
}
