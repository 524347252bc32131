// Package archiveutil stages directory assets per their packaging scheme
// (spec.md 3's "Scheme semantics") and packages the result into the two
// blob shapes spec.md 4.E calls for: a zip of a directory, or a raw copy of
// a single file ("fzip" convention). Compression itself is out of scope per
// spec.md 1's Non-goals ("archive compress/decompress primitives - a
// library call"); this package is exactly that library call, using the
// standard archive/zip the way datawire-ocibuild/pkg/python/wheel.go builds
// wheel archives with it.
package archiveutil

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gravitational/trace"

	"github.com/Likianta/depsland/lib/defaults"
)

// Scheme names mirror manifest.Scheme's wire values. Duplicated here rather
// than imported so this package stays a mechanical packaging library with
// no dependency on the manifest model it serves (manifest.go's asset
// enrichment already depends the other way, on hashutil, the same
// direction this package's callers expect).
const (
	SchemeRoot     = "root"
	SchemeAll      = "all"
	SchemeAllDirs  = "all_dirs"
	SchemeTop      = "top"
	SchemeTopFiles = "top_files"
	SchemeTopDirs  = "top_dirs"
)

// Filter decides, for an entry at relpath (slash-separated, relative to a
// staged tree's root) found at depth (1 for immediate children of the
// root), whether to include it in the staged copy and whether to descend
// into it when it is a directory.
type Filter func(relpath string, isDir bool, depth int) (include, descend bool)

// SchemeFilter returns the Filter implementing one of AssetInfo's directory
// packaging schemes (spec.md 3's "Scheme semantics"). SchemeRoot has no
// filter of its own: callers special-case it before staging, since a root
// asset's contents are never packaged at all.
func SchemeFilter(scheme string) (Filter, error) {
	switch scheme {
	case SchemeAll:
		return func(relpath string, isDir bool, depth int) (bool, bool) {
			return true, true
		}, nil
	case SchemeAllDirs:
		return func(relpath string, isDir bool, depth int) (bool, bool) {
			return isDir, true
		}, nil
	case SchemeTop:
		return func(relpath string, isDir bool, depth int) (bool, bool) {
			return depth == 1, false
		}, nil
	case SchemeTopFiles:
		return func(relpath string, isDir bool, depth int) (bool, bool) {
			return depth == 1 && !isDir, false
		}, nil
	case SchemeTopDirs:
		return func(relpath string, isDir bool, depth int) (bool, bool) {
			return depth == 1 && isDir, false
		}, nil
	default:
		return nil, trace.BadParameter("unpackageable scheme %q", scheme)
	}
}

// StageDir copies the subset of src that filter selects into dst,
// preserving relative paths, so a directory asset can be zipped per its
// scheme instead of unconditionally in full (spec.md 4.G step 2: "materialize
// the asset into a temporary staging tree per its scheme, then compress").
func StageDir(src, dst string, filter Filter) error {
	if err := os.MkdirAll(dst, defaults.DirPerm); err != nil {
		return trace.ConvertSystemError(err)
	}
	return trace.Wrap(filepath.Walk(src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return trace.Wrap(err)
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return trace.Wrap(err)
		}
		if rel == "." {
			return nil
		}
		depth := strings.Count(filepath.ToSlash(rel), "/") + 1
		include, descend := filter(filepath.ToSlash(rel), fi.IsDir(), depth)

		if fi.IsDir() {
			if include {
				if err := os.MkdirAll(filepath.Join(dst, rel), defaults.DirPerm); err != nil {
					return trace.ConvertSystemError(err)
				}
			}
			if !descend {
				return filepath.SkipDir
			}
			return nil
		}
		if !include {
			return nil
		}
		if err := os.MkdirAll(filepath.Join(dst, filepath.Dir(rel)), defaults.DirPerm); err != nil {
			return trace.ConvertSystemError(err)
		}
		in, err := os.Open(path)
		if err != nil {
			return trace.ConvertSystemError(err)
		}
		defer in.Close()
		out, err := os.Create(filepath.Join(dst, rel))
		if err != nil {
			return trace.ConvertSystemError(err)
		}
		defer out.Close()
		return trace.Wrap(CopyFile(in, out))
	}))
}

// ZipDir writes a zip archive of every file under dir to w, with entry names
// relative to dir using forward slashes (the zip format's own convention,
// matched by datawire-ocibuild's wheel writer).
func ZipDir(dir string, w io.Writer) error {
	zw := zip.NewWriter(w)
	err := filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return trace.Wrap(err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return trace.Wrap(err)
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)
		if fi.IsDir() {
			_, err := zw.Create(name + "/")
			return trace.Wrap(err)
		}
		header, err := zip.FileInfoHeader(fi)
		if err != nil {
			return trace.Wrap(err)
		}
		header.Name = name
		header.Method = zip.Deflate
		entry, err := zw.CreateHeader(header)
		if err != nil {
			return trace.Wrap(err)
		}
		f, err := os.Open(path)
		if err != nil {
			return trace.ConvertSystemError(err)
		}
		defer f.Close()
		_, err = io.Copy(entry, f)
		return trace.Wrap(err)
	})
	if err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(zw.Close())
}

// UnzipDir extracts a zip archive read from r into dir, recreating the
// directory skeleton for "root"/skeleton-only entries (zero-length names
// ending in "/") even when they carry no files.
func UnzipDir(r io.ReaderAt, size int64, dir string) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return trace.Wrap(err)
	}
	for _, f := range zr.File {
		target := filepath.Join(dir, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) && target != filepath.Clean(dir) {
			return trace.BadParameter("zip entry %q escapes target directory", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return trace.ConvertSystemError(err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return trace.ConvertSystemError(err)
		}
		if err := extractFile(f, target); err != nil {
			return trace.Wrap(err, "extracting %v", f.Name)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return trace.Wrap(err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return trace.Wrap(err)
}

// CopyFile is the ".fzip" path: single-file assets are stored as a raw byte
// copy, since a one-entry zip buys nothing, per spec.md 4.E's "the latter
// may be a raw copy" note.
func CopyFile(src io.Reader, dst io.Writer) error {
	_, err := io.Copy(dst, src)
	return trace.Wrap(err)
}
