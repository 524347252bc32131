package fs

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

func TestFS(t *testing.T) { TestingT(t) }

type FSSuite struct{}

var _ = Suite(&FSSuite{})

func (s *FSSuite) TestUploadDownloadRoundTrip(c *C) {
	store, err := New(c.MkDir())
	c.Assert(err, IsNil)
	defer store.Close()

	ctx := context.Background()
	env, err := store.Upload(ctx, "apps/hello/1.0.0/main.py", bytes.NewReader([]byte("print(1)")))
	c.Assert(err, IsNil)
	c.Assert(env.SizeBytes, Equals, int64(8))

	r, err := store.Download(ctx, "apps/hello/1.0.0/main.py")
	c.Assert(err, IsNil)
	defer r.Close()
	data, err := io.ReadAll(r)
	c.Assert(err, IsNil)
	c.Assert(string(data), Equals, "print(1)")
}

func (s *FSSuite) TestDownloadMissingKeyIsBlobNotFound(c *C) {
	store, err := New(c.MkDir())
	c.Assert(err, IsNil)
	defer store.Close()

	_, err = store.Download(context.Background(), "nope")
	c.Assert(deperrors.IsBlobNotFound(err), Equals, true)
}

func (s *FSSuite) TestDeleteThenDownloadFails(c *C) {
	store, err := New(c.MkDir())
	c.Assert(err, IsNil)
	defer store.Close()

	ctx := context.Background()
	_, err = store.Upload(ctx, "k", bytes.NewReader([]byte("x")))
	c.Assert(err, IsNil)
	c.Assert(store.Delete(ctx, "k"), IsNil)

	_, err = store.Download(ctx, "k")
	c.Assert(deperrors.IsBlobNotFound(err), Equals, true)
}

func (s *FSSuite) TestListReturnsSortedKeysUnderPrefix(c *C) {
	store, err := New(c.MkDir())
	c.Assert(err, IsNil)
	defer store.Close()

	ctx := context.Background()
	for _, k := range []string{"apps/a/1.0.0/x", "apps/a/2.0.0/x", "apps/b/1.0.0/x"} {
		_, err := store.Upload(ctx, k, bytes.NewReader([]byte("x")))
		c.Assert(err, IsNil)
	}

	keys, err := store.List(ctx, "apps/a/")
	c.Assert(err, IsNil)
	c.Assert(keys, DeepEquals, []string{"apps/a/1.0.0/x", "apps/a/2.0.0/x"})
}

// TestSymlinkModeHardLinksLocalFiles checks that Upload with SymlinkMode
// hard-links a local *os.File source instead of copying it, so a later
// write through the source path is visible through the stored object (both
// names resolve to the same inode).
func (s *FSSuite) TestSymlinkModeHardLinksLocalFiles(c *C) {
	store, err := NewWithConfig(Config{Path: c.MkDir(), SymlinkMode: true})
	c.Assert(err, IsNil)
	defer store.Close()

	srcPath := filepath.Join(c.MkDir(), "main.py")
	c.Assert(os.WriteFile(srcPath, []byte("print(1)"), 0o644), IsNil)

	f, err := os.Open(srcPath)
	c.Assert(err, IsNil)
	defer f.Close()
	ctx := context.Background()
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
