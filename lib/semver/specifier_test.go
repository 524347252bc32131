package semver

import (
	. "gopkg.in/check.v1"
)

type SpecifierSuite struct{}

var _ = Suite(&SpecifierSuite{})

func (s *SpecifierSuite) TestWildcardMatchesAnything(c *C) {
	for _, raw := range []string{"", "latest", "any", "*"} {
		spec, err := ParseSpecifier(raw)
		c.Assert(err, IsNil)
		c.Assert(spec.Match("0.0.1"), Equals, true)
		c.Assert(spec.Match("9.9.9"), Equals, true)
	}
}

func (s *SpecifierSuite) TestSimpleComparators(c *C) {
	spec, err := ParseSpecifier(">=1.0.0,<2.0.0")
	c.Assert(err, IsNil)
	c.Assert(spec.Match("1.5.0"), Equals, true)
	c.Assert(spec.Match("2.0.0"), Equals, false)
	c.Assert(spec.Match("0.9.0"), Equals, false)
}

func (s *SpecifierSuite) TestExactMatch(c *C) {
	spec, err := ParseSpecifier("==2.31.0")
	c.Assert(err, IsNil)
	c.Assert(spec.Match("2.31.0"), Equals, true)
	c.Assert(spec.Match("2.31.1"), Equals, false)
}

func (s *SpecifierSuite) TestNotEqual(c *C) {
	spec, err := ParseSpecifier("!=1.3.4")
	c.Assert(err, IsNil)
	c.Assert(spec.Match("1.3.4"), Equals, false)
	c.Assert(spec.Match("1.3.5"), Equals, true)
}

func (s *SpecifierSuite) TestAsteriskMajor(c *C) {
	spec, err := ParseSpecifier("4.*")
	c.Assert(err, IsNil)
	c.Assert(spec.Match("4.0.0"), Equals, true)
	c.Assert(spec.Match("4.9.9"), Equals, true)
	c.Assert(spec.Match("5.0.0"), Equals, false)
}

func (s *SpecifierSuite) TestAsteriskMinor(c *C) {
	spec, err := ParseSpecifier("4.3.*")
	c.Assert(err, IsNil)
	c.Assert(spec.Match("4.3.0"), Equals, true)
	c.Assert(spec.Match("4.3.99"), Equals, true)
	c.Assert(spec.Match("4.4.0"), Equals, false)
}

func (s *SpecifierSuite) TestCompatibleRelease(c *C) {
	spec, err := ParseSpecifier("~=2.2")
	c.Assert(err, IsNil)
	c.Assert(spec.Match("2.2.0"), Equals, true)
	c.Assert(spec.Match("2.9.9"), Equals, true)
	c.Assert(spec.Match("3.0.0"), Equals, false)

	spec2, err := ParseSpecifier("~=2.2.1")
	c.Assert(err, IsNil)
	c.Assert(spec2.Match("2.2.1"), Equals, true)
	c.Assert(spec2.Match("2.2.9"), Equals, true)
	c.Assert(spec2.Match("2.3.0"), Equals, false)
}

func (s *SpecifierSuite) TestMinorFormFixInSpecifier(c *C) {
	spec, err := ParseSpecifier("==0.1.0b3")
	c.Assert(err, IsNil)
	c.Assert(spec.Match("0.1.0b3"), Equals, true)
}

func (s *SpecifierSuite) TestBestMatch(c *C) {
	specs := []Specifier{
		mustParseSpecifier(c, ">=1.0.0"),
		mustParseSpecifier(c, "!=1.3.4"),
	}
	candidates := []string{"2.0.0", "1.3.4", "1.3.3", "1.0.0", "0.9.0"}
	best, ok := BestMatch(specs, candidates)
	c.Assert(ok, Equals, true)
	c.Assert(best, Equals, "2.0.0")
}

func (s *SpecifierSuite) TestBestMatchEmptyIntersection(c *C) {
	specs := []Specifier{mustParseSpecifier(c, ">=5.0.0")}
	candidates := []string{"1.0.0", "2.0.0"}
	_, ok := BestMatch(specs, candidates)
	c.Assert(ok, Equals, false)
}

func mustParseSpecifier(c *C, raw string) Specifier {
	spec, err := ParseSpecifier(raw)
	c.Assert(err, IsNil)
	return spec
}
