package manifest

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/gravitational/trace"

	"github.com/Likianta/depsland/lib/hashutil"
)

// AssetType distinguishes a file asset from a directory asset.
type AssetType string

const (
	AssetFile AssetType = "file"
	AssetDir  AssetType = "dir"
)

// Scheme decides what is packaged/restored for a directory asset, per
// spec.md 3 AssetInfo.
type Scheme string

const (
	// SchemeRoot marks a mount point whose contents are never packaged
	// (output/cache directories).
	SchemeRoot Scheme = "root"
	// SchemeAll packages the entire tree recursively.
	SchemeAll Scheme = "all"
	// SchemeAllDirs packages only the directory skeleton, recursively.
	SchemeAllDirs Scheme = "all_dirs"
	// SchemeTop packages immediate children: files plus one-level subdir
	// skeletons.
	SchemeTop Scheme = "top"
	// SchemeTopFiles packages only immediate files.
	SchemeTopFiles Scheme = "top_files"
	// SchemeTopDirs packages only immediate subdirectory names (skeleton).
	SchemeTopDirs Scheme = "top_dirs"
)

func (s Scheme) valid() bool {
	switch s {
	case SchemeRoot, SchemeAll, SchemeAllDirs, SchemeTop, SchemeTopFiles, SchemeTopDirs:
		return true
	}
	return false
}

// AssetInfo describes one entry of a manifest's asset map.
type AssetInfo struct {
	Type        AssetType `json:"type"`
	Scheme      Scheme    `json:"scheme,omitempty"`
	UpdatedTime int64     `json:"updated_time,omitempty"`
	Hash        string    `json:"hash,omitempty"`
	UID         string    `json:"uid,omitempty"`
}

// SameContent reports whether two AssetInfos describe unchanged content per
// spec.md 4.F: (type, scheme, uid) all equal means "ignore" at diff time.
func (a AssetInfo) SameContent(b AssetInfo) bool {
	return a.Type == b.Type && a.Scheme == b.Scheme && a.UID == b.UID
}

// enrich fills UpdatedTime/Hash/UID for an asset that was authored in
// manifest.json (which may omit them) by scanning the asset at
// filepath.Join(startDir, relpath).
func enrich(startDir, relpath string, info AssetInfo) (AssetInfo, error) {
	full := filepath.Join(startDir, relpath)
	fi, err := os.Stat(full)
	if err != nil {
		return AssetInfo{}, trace.ConvertSystemError(err)
	}

	switch info.Type {
	case AssetFile:
		if fi.IsDir() {
			return AssetInfo{}, trace.BadParameter(
				"asset %q declared as file but is a directory", relpath)
		}
		hash, err := hashutil.HashFile(full)
		if err != nil {
			return AssetInfo{}, trace.Wrap(err)
		}
		info.Hash = hash
		info.UID = hash
		info.UpdatedTime = fi.ModTime().Unix()
		return info, nil
	case AssetDir:
		if !fi.IsDir() {
			return AssetInfo{}, trace.BadParameter(
				"asset %q declared as dir but is a file", relpath)
		}
		if !info.Scheme.valid() {
			return AssetInfo{}, trace.BadParameter(
				"asset %q has invalid scheme %q", relpath, info.Scheme)
		}
		latest, err := latestModTime(full, info.Scheme, fi.ModTime().Unix())
		if err != nil {
			return AssetInfo{}, trace.Wrap(err)
		}
		info.UpdatedTime = latest
		info.Hash = ""
		info.UID = strconv.FormatInt(latest, 10)
		return info, nil
	default:
		return AssetInfo{}, trace.BadParameter("asset %q has invalid type %q", relpath, info.Type)
	}
}

// latestModTime walks dir according to scheme and returns the maximum mtime
// (epoch seconds) seen among the entries the scheme includes. A directory
// asset is "re-packaged whenever any [included] mtime changes" per
// spec.md 4.B; this is the cheap-scan tradeoff the spec calls out
// explicitly (see DESIGN.md's Open Question 1).
func latestModTime(dir string, scheme Scheme, base int64) (int64, error) {
	if scheme == SchemeRoot {
		return base, nil
	}

	max := base
	bump := func(t int64) {
		if t > max {
			max = t
		}
	}

	switch scheme {
	case SchemeAll, SchemeAllDirs:
		err := filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return trace.Wrap(err)
			}
			if scheme == SchemeAllDirs && !fi.IsDir() {
				return nil
			}
			bump(fi.ModTime().Unix())
			return nil
		})
		if err != nil {
			return 0, trace.Wrap(err)
		}
	case SchemeTop, SchemeTopFiles, SchemeTopDirs:
		entries, err := os.ReadDir(dir)
		if err != nil {
			return 0, trace.ConvertSystemError(err)
		}
		for _, e := range entries {
			if scheme == SchemeTopFiles && e.IsDir() {
				continue
			}
			if scheme == SchemeTopDirs && !e.IsDir() {
				continue
			}
			fi, err := e.Info()
			if err != nil {
				return 0, trace.ConvertSystemError(err)
			}
			bump(fi.ModTime().Unix())
		}
	}
	return max, nil
}
