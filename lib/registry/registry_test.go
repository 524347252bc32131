package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mailgun/timetools"
	. "gopkg.in/check.v1"

	"github.com/Likianta/depsland/lib/defaults"
)

func TestRegistry(t *testing.T) { TestingT(t) }

type RegistrySuite struct{}

var _ = Suite(&RegistrySuite{})

func (s *RegistrySuite) TestPrependBuildsNewestFirst(c *C) {
	reg := New(c.MkDir())
	appid := "hello_app"

	c.Assert(reg.Prepend(appid, InstallHistory, "1.0.0", "alice"), IsNil)
	c.Assert(reg.Prepend(appid, InstallHistory, "1.1.0", "alice"), IsNil)

	history, err := reg.History(appid, InstallHistory)
	c.Assert(err, IsNil)
	c.Assert(history, DeepEquals, []string{"1.1.0", "1.0.0"})

	last, err := reg.LastVersion(appid, InstallHistory)
	c.Assert(err, IsNil)
	c.Assert(last, Equals, "1.1.0")
}

func (s *RegistrySuite) TestPrependDeduplicatesRepeatedHead(c *C) {
	reg := New(c.MkDir())
	appid := "hello_app"

	c.Assert(reg.Prepend(appid, InstallHistory, "1.0.0", "alice"), IsNil)
	c.Assert(reg.Prepend(appid, InstallHistory, "1.0.0", "alice"), IsNil)

	history, err := reg.History(appid, InstallHistory)
	c.Assert(err, IsNil)
	c.Assert(history, DeepEquals, []string{"1.0.0"})
}

func (s *RegistrySuite) TestEmptyHistoryReturnsNoError(c *C) {
	reg := New(c.MkDir())
	last, err := reg.LastVersion("never_installed", InstallHistory)
	c.Assert(err, IsNil)
	c.Assert(last, Equals, "")
}

func (s *RegistrySuite) TestInstallAndDistributionHistoriesAreIndependent(c *C) {
	root := c.MkDir()
	reg := New(root)
	appid := "hello_app"

	c.Assert(reg.Prepend(appid, InstallHistory, "1.0.0", ""), IsNil)
	c.Assert(reg.Prepend(appid, DistributionHistory, "1.0.0", ""), IsNil)
	c.Assert(reg.Prepend(appid, DistributionHistory, "1.1.0", ""), IsNil)

	instHistory, err := reg.History(appid, InstallHistory)
	c.Assert(err, IsNil)
	c.Assert(instHistory, DeepEquals, []string{"1.0.0"})

	distHistory, err := reg.History(appid, DistributionHistory)
	c.Assert(err, IsNil)
	c.Assert(distHistory, DeepEquals, []string{"1.1.0", "1.0.0"})
}

func (s *RegistrySuite) TestMetaSidecarRecordsActorAndTime(c *C) {
	root := c.MkDir()
	frozen := &timetools.FreezedTime{CurrentTime: (&timetools.RealTime{}).UtcNow()}
	reg := NewWithClock(root, frozen)
	appid := "hello_app"

	c.Assert(reg.Prepend(appid, InstallHistory, "1.0.0", "alice"), IsNil)

	metaPath := filepath.Join(root, defaults.AppsDirName, appid, defaults.InstallHistoryFileName+defaults.HistoryMetaSuffix)
	data, err := os.ReadFile(metaPath)
	c.Assert(err, IsNil)
	c.Assert(string(data), Matches, `(?s).*"version":"1.0.0".*"actor":"alice".*`)
}
