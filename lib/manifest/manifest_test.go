package manifest

import (
	"os"
	"path/filepath"
	"testing"

	. "gopkg.in/check.v1"
)

func TestManifest(t *testing.T) { TestingT(t) }

type ManifestSuite struct{}

var _ = Suite(&ManifestSuite{})

func (s *ManifestSuite) TestValidateRejectsAbsoluteAssetKey(c *C) {
	m := Empty("hello_app", "Hello App")
	m.Assets["/etc/passwd"] = AssetInfo{Type: AssetFile, UID: "x"}
	err := m.Validate()
	c.Assert(err, NotNil)
}

func (s *ManifestSuite) TestValidateRejectsWildcardDependency(c *C) {
	m := Empty("hello_app", "Hello App")
	m.Dependencies["requests"] = PackageInfo{Name: "requests", Version: "latest"}
	err := m.Validate()
	c.Assert(err, NotNil)
}

func (s *ManifestSuite) TestValidateAcceptsWellFormedManifest(c *C) {
	m := Empty("hello_app", "Hello App")
	m.Version = "1.0.0"
	m.Dependencies["requests"] = PackageInfo{Name: "requests", Version: "2.31.0"}
	c.Assert(m.Validate(), IsNil)
}

func (s *ManifestSuite) TestEnrichFromDiskFile(c *C) {
	dir := c.MkDir()
	main := filepath.Join(dir, "main.py")
	c.Assert(os.WriteFile(main, []byte("print('hi')"), 0o644), IsNil)

	m := Empty("hello_app", "Hello App")
	m.Version = "1.0.0"
	m.StartDirectory = dir
	m.Assets["main.py"] = AssetInfo{Type: AssetFile}
	c.Assert(m.EnrichFromDisk(), IsNil)

	info := m.Assets["main.py"]
	c.Assert(info.Hash, Not(Equals), "")
	c.Assert(info.UID, Equals, info.Hash)
}

func (s *ManifestSuite) TestEnrichFromDiskDir(c *C) {
	dir := c.MkDir()
	sub := filepath.Join(dir, "assets")
	c.Assert(os.MkdirAll(sub, 0o755), IsNil)
	c.Assert(os.WriteFile(filepath.Join(sub, "a.txt"), []byte("a"), 0o644), IsNil)

	m := Empty("hello_app", "Hello App")
	m.Version = "1.0.0"
	m.StartDirectory = dir
	m.Assets["assets"] = AssetInfo{Type: AssetDir, Scheme: SchemeAll}
	c.Assert(m.EnrichFromDisk(), IsNil)

	info := m.Assets["assets"]
	c.Assert(info.Hash, Equals, "")
	c.Assert(info.UID, Not(Equals), "")
}

func (s *ManifestSuite) TestDumpLoadRoundTrip(c *C) {
	dir := c.MkDir()
	c.Assert(os.WriteFile(filepath.Join(dir, "main.py"), []byte("x"), 0o644), IsNil)

	m := Empty("hello_app", "Hello App")
	m.Version = "1.0.0"
	m.StartDirectory = dir
	m.Assets["main.py"] = AssetInfo{Type: AssetFile}
	m.Dependencies["requests"] = PackageInfo{Name: "requests", Version: "2.31.0"}
	m.Launcher = LauncherInfo{Command: "py main.py", EnableCLI: true}
	c.Assert(m.EnrichFromDisk(), IsNil)

	pklPath := filepath.Join(dir, "manifest.pkl")
	c.Assert(Dump(m, pklPath), IsNil)

	loaded, err := Load(pklPath)
	c.Assert(err, IsNil)
	c.Assert(loaded.AppID, Equals, m.AppID)
	c.Assert(loaded.Version, Equals, m.Version)
	c.Assert(loaded.Assets["main.py"].UID, Equals, m.Assets["main.py"].UID)
	c.Assert(loaded.Dependencies["requests"].Version, Equals, "2.31.0")
	c.Assert(loaded.Launcher.Command, Equals, "py main.py")
	// StartDirectory is rewritten to the absolute directory containing
	// the loaded file, per spec.md 4.C, not preserved byte-for-byte.
	c.Assert(loaded.StartDirectory, Equals, dir)
}

func (s *ManifestSuite) TestSortedKeysAreDeterministic(c *C) {
	m := Empty("hello_app", "Hello App")
	m.Assets["b.txt"] = AssetInfo{Type: AssetFile}
	m.Assets["a.txt"] = AssetInfo{Type: AssetFile}
	c.Assert(m.SortedAssetKeys(), DeepEquals, []string{"a.txt", "b.txt"})
}

func (s *ManifestSuite) TestEnrichSkipsAlreadyPopulated(c *C) {
	dir := c.MkDir()
	m := Empty("hello_app", "Hello App")
	m.StartDirectory = dir
	m.Assets["missing.txt"] = AssetInfo{Type: AssetFile, UID: "precomputed"}
	// would fail to stat missing.txt if enrich() were invoked for it
	c.Assert(m.EnrichFromDisk(), IsNil)
	c.Assert(m.Assets["missing.txt"].UID, Equals, "precomputed")
}
