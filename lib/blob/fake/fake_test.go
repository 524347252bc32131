package fake

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/Likianta/depsland/lib/deperrors"
)

func TestFake(t *testing.T) { TestingT(t) }

type FakeSuite struct{}

var _ = Suite(&FakeSuite{})

func (s *FakeSuite) TestRoundTripAndDelete(c *C) {
	store := New()
	ctx := context.Background()

	_, err := store.Upload(ctx, "a", bytes.NewReader([]byte("hi")))
	c.Assert(err, IsNil)

	r, err := store.Download(ctx, "a")
	c.Assert(err, IsNil)
	data, err := io.ReadAll(r)
	c.Assert(err, IsNil)
	c.Assert(string(data), Equals, "hi")

	c.Assert(store.Delete(ctx, "a"), IsNil)
	_, err = store.Download(ctx, "a")
	c.Assert(deperrors.IsBlobNotFound(err), Equals, true)
}

func (s *FakeSuite) TestListPrefix(c *C) {
	store := New()
	ctx := context.Background()
	store.Upload(ctx, "apps/a/1.0.0/x", bytes.NewReader(nil))
	store.Upload(ctx, "apps/b/1.0.0/x", bytes.NewReader(nil))

	keys, err := store.List(ctx, "apps/a/")
	c.Assert(err, IsNil)
	c.Assert(keys, DeepEquals, []string{"apps/a/1.0.0/x"})
}

// TestSymlinkModeTracksLiveSource mirrors lib/blob/fs's hard-link upload
// path: when Upload's src is a local *os.File, the store reads the file by
// path rather than copying its bytes, so a later change to the source is
// visible on Download.
func (s *FakeSuite) TestSymlinkModeTracksLiveSource(c *C) {
	store := NewWithConfig(Config{Symlink: true})
	ctx := context.Background()

	srcPath := filepath.Join(c.MkDir(), "main.py")
	c.Assert(os.WriteFile(srcPath, []byte("print(1)"), 0o644), IsNil)

	f, err := os.Open(srcPath)
	c.Assert(err, IsNil)
	defer f.Close()
	env, err := store.Upload(ctx, "k", f)
	c.Assert(err, IsNil)
	c.Assert(env.SizeBytes, Equals, int64(8))

	c.Assert(os.WriteFile(srcPath, []byte("print(2) longer"), 0o644), IsNil)

	r, err := store.Download(ctx, "k")
	c.Assert(err, IsNil)
	defer r.Close()
	data, err := io.ReadAll(r)
	c.Assert(err, IsNil)
	c.Assert(string(data), Equals, "print(2) longer")
}

// TestSymlinkModeFallsBackForNonFileSources checks that a non-*os.File
// reader still uploads by copy even with Symlink enabled.
func (s *FakeSuite) TestSymlinkModeFallsBackForNonFileSources(c *C) {
	store := NewWithConfig(Config{Symlink: true})
	ctx := context.Background()

	_, err := store.Upload(ctx, "k", bytes.NewReader([]byte("raw")))
	c.Assert(err, IsNil)

	r, err := store.Download(ctx, "k")
	c.Assert(err, IsNil)
	data, err := io.ReadAll(r)
	c.Assert(err, IsNil)
	c.Assert(string(data), Equals, "raw")
}
