// Package fake is an in-memory blob.Store test double, the counterpart of
// gravitational-gravity/lib/blob/suite.RunBLOBSuite's pattern of running the
// same behavioral contract against whichever backend is under test — except
// here the double itself is the thing being provided, for tests in other
// packages (publish, install) that need a Store without touching disk.
package fake

import (
	"bytes"
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gravitational/trace"

	"github.com/Likianta/depsland/lib/blob"
	"github.com/Likianta/depsland/lib/deperrors"
)

// Config configures the in-memory store. It mirrors lib/blob/fs.Config's
// SymlinkMode so a test written against one backend's symlink behavior runs
// against the other unchanged.
type Config struct {
	// Symlink, like fs.Config.SymlinkMode, has Upload reference the source
	// file in place instead of copying its bytes, when src is a local
	// *os.File. Download then re-reads the file live, the in-memory
	// equivalent of a hard link sharing the same inode as the original.
	Symlink bool
}

type object struct {
	data       []byte
	sourcePath string // set instead of data when linked rather than copied
	size       int64
	modified   time.Time
}

type store struct {
	mu      sync.Mutex
	config  Config
	objects map[string]object
}

// New returns an empty in-memory blob.Store with the default configuration.
func New() blob.Store {
	return &store{objects: map[string]object{}}
}

// NewWithConfig returns an empty in-memory blob.Store with explicit
// configuration, the fake counterpart of fs.NewWithConfig.
func NewWithConfig(config Config) blob.Store {
	return &store{config: config, objects: map[string]object{}}
}

func (s *store) Close() error { return nil }

func (s *store) Upload(ctx context.Context, key string, src io.Reader) (*blob.Envelope, error) {
	if s.config.Symlink {
		if f, ok := src.(*os.File); ok {
			if env, obj, err := s.linkFile(f.Name()); err == nil {
				s.mu.Lock()
				s.objects[key] = obj
				s.mu.Unlock()
				return env, nil
			}
			// fall through to the copy path, matching fs.store.Upload's
			// same fallback when linking doesn't pan out.
		}
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := object{data: data, size: int64(len(data)), modified: time.Now().UTC()}
	s.objects[key] = obj
	return &blob.Envelope{SizeBytes: obj.size, Modified: obj.modified}, nil
}

func (s *store) linkFile(srcPath string) (*blob.Envelope, object, error) {
	fi, err := os.Stat(srcPath)
	if err != nil {
		return nil, object{}, trace.ConvertSystemError(err)
	}
	obj := object{sourcePath: srcPath, size: fi.Size(), modified: fi.ModTime().UTC()}
	return &blob.Envelope{SizeBytes: obj.size, Modified: obj.modified}, obj, nil
}

func (s *store) Download(ctx context.Context, key string) (blob.ReadSeekCloser, error) {
	s.mu.Lock()
	obj, ok := s.objects[key]
	s.mu.Unlock()
	if !ok {
		return nil, deperrors.BlobNotFound(key)
	}
	if obj.sourcePath != "" {
		f, err := os.Open(obj.sourcePath)
		if err != nil {
			return nil, trace.ConvertSystemError(err)
		}
		return f, nil
	}
	return nopSeekCloser{bytes.NewReader(obj.data)}, nil
}

func (s *store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return deperrors.BlobNotFound(key)
	}
	delete(s.objects, key)
	return nil
}

func (s *store) Stat(ctx context.Context, key string) (*blob.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, deperrors.BlobNotFound(key)
	}
	return &blob.Envelope{SizeBytes: obj.size, Modified: obj.modified}, nil
}

func (s *store) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

type nopSeekCloser struct {
	*bytes.Reader
}

func (nopSeekCloser) Close() error { return nil }
