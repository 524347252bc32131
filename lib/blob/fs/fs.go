// Package fs is the local-disk Blob Store Adapter, the "local-oss" backend
// of spec.md 5. Object bytes live directly under root at their logical key
// path, the same flat layout gravitational-gravity/lib/blob/fs.objects uses
// under its "blobs" subdirectory (there keyed by content hash; here keyed by
// the caller's logical key). A boltdb index keyed by the same path tracks
// size/mtime so List doesn't need to walk the tree, mirroring how
// gravitational-gravity/lib/storage/keyval.blt wraps boltdb.DB behind a
// small, mutex-guarded struct.
package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"github.com/gravitational/trace"

	"github.com/Likianta/depsland/lib/blob"
	"github.com/Likianta/depsland/lib/defaults"
	"github.com/Likianta/depsland/lib/deperrors"
)

var indexBucket = []byte("keys")

// Config configures the local-disk store.
type Config struct {
	// Path is the root directory objects and the index are stored under.
	Path string
	// SymlinkMode hard-links (rather than copies) the source file into the
	// store when the source is a local *os.File whose name is known, the
	// same shortcut original_source's local publisher path takes to avoid
	// doubling disk usage during same-host publish/install.
	SymlinkMode bool
}

func (c *Config) checkAndSetDefaults() error {
	if c.Path == "" {
		return trace.BadParameter("missing Path parameter")
	}
	return nil
}

type store struct {
	mu     sync.Mutex
	config Config
	db     *bolt.DB
}

// New creates a local-disk blob.Store rooted at root.
func New(root string) (blob.Store, error) {
	return NewWithConfig(Config{Path: root})
}

// NewWithConfig creates a local-disk blob.Store with explicit configuration.
func NewWithConfig(config Config) (blob.Store, error) {
	if err := config.checkAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := os.MkdirAll(config.Path, defaults.DirPerm); err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	dbPath := filepath.Join(config.Path, "index.db")
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, trace.Wrap(err, "opening blob index at %v", dbPath)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, trace.Wrap(err)
	}
	return &store{config: config, db: db}, nil
}

func (s *store) Close() error {
	return trace.Wrap(s.db.Close())
}

func (s *store) objectPath(key string) string {
	return filepath.Join(s.config.Path, filepath.FromSlash(key))
}

func (s *store) Upload(ctx context.Context, key string, src io.Reader) (*blob.Envelope, error) {
	target := s.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(target), defaults.DirPerm); err != nil {
		return nil, trace.ConvertSystemError(err)
	}

	if s.config.SymlinkMode {
		if f, ok := src.(*os.File); ok {
			if env, err := s.linkFile(f.Name(), target); err == nil {
				if indexErr := s.recordIndex(key, *env); indexErr != nil {
					return nil, trace.Wrap(indexErr)
				}
				return env, nil
			}
			// fall through to the copy path if linking didn't pan out
			// (e.g. cross-device).
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "blob-*")
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		return nil, trace.Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return nil, trace.ConvertSystemError(err)
	}

	fi, err := os.Stat(target)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	env := blob.Envelope{SizeBytes: size, Modified: fi.ModTime().UTC()}
	if err := s.recordIndex(key, env); err != nil {
		return nil, trace.Wrap(err)
	}
	return &env, nil
}

func (s *store) linkFile(srcPath, target string) (*blob.Envelope, error) {
	if err := os.Link(srcPath, target); err != nil {
		return nil, trace.Wrap(err)
	}
	fi, err := os.Stat(target)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	return &blob.Envelope{SizeBytes: fi.Size(), Modified: fi.ModTime().UTC()}, nil
}

func (s *store) Download(ctx context.Context, key string) (blob.ReadSeekCloser, error) {
	f, err := os.Open(s.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, deperrors.BlobNotFound(key)
		}
		return nil, trace.ConvertSystemError(err)
	}
	return f, nil
}

func (s *store) Delete(ctx context.Context, key string) error {
	if err := os.Remove(s.objectPath(key)); err != nil {
		if os.IsNotExist(err) {
			return deperrors.BlobNotFound(key)
		}
		return trace.ConvertSystemError(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(indexBucket).Delete([]byte(key))
	})
	return trace.Wrap(err)
}

func (s *store) Stat(ctx context.Context, key string) (*blob.Envelope, error) {
	fi, err := os.Stat(s.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, deperrors.BlobNotFound(key)
		}
		return nil, trace.ConvertSystemError(err)
	}
	return &blob.Envelope{SizeBytes: fi.Size(), Modified: fi.ModTime().UTC()}, nil
}

// List returns every key under prefix, sorted, served from the boltdb index
// rather than a directory walk.
func (s *store) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(indexBucket).Cursor()
		for k, _ := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			out = append(out, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	sort.Strings(out)
	return out, nil
}

func (s *store) recordIndex(key string, env blob.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return trace.Wrap(s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(indexBucket)
		return b.Put([]byte(key), []byte(strconv.FormatInt(env.SizeBytes, 10)+"|"+env.Modified.Format(time.RFC3339Nano)))
	}))
}
