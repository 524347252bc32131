// Package pkgindex is the process-local, on-disk shared package catalog of
// spec.md 4.E: a mapping from package id to its download archive and
// unpacked install tree, plus the transient download-but-not-installed
// stash. Lifecycle and method shapes are grounded on
// original_source/depsland/pypi/index.py's Index class (load_index,
// add_to_index, update_index, save_index); atomic persistence follows
// gravitational-gravity/lib/storage/keyval's temp-then-rename discipline.
package pkgindex

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"

	"github.com/Likianta/depsland/lib/defaults"
	"github.com/Likianta/depsland/lib/deperrors"
	"github.com/Likianta/depsland/lib/loc"
	"github.com/Likianta/depsland/lib/semver"
)

// Paths is a package's known storage locations, relative to Index.root.
type Paths struct {
	DownloadPath string `json:"download_path"`
	InstallPath  string `json:"install_path"`
}

// Index is the shared, process-wide package catalog. The zero value is not
// usable; construct with Load. All exported methods are safe for concurrent
// use (spec.md 4.E: "writers serialize on a process-wide mutex; readers may
// proceed concurrently").
type Index struct {
	mu   sync.RWMutex
	root string

	idToPaths      map[string]Paths
	nameToVers     map[string][]string
	stashDownloads map[string]string   // package id -> absolute download path
	edges          map[string][]string // package name -> names it depends on

	changedNames map[string]struct{}
}

// Load reads the index JSON files (id_2_paths, name_2_vers, deps) under
// root/pypi/index, creating that directory if needed and starting with an
// empty map for any file that is absent (first run).
func Load(root string) (*Index, error) {
	idx := &Index{
		root:           root,
		idToPaths:      map[string]Paths{},
		nameToVers:     map[string][]string{},
		stashDownloads: map[string]string{},
		edges:          map[string][]string{},
		changedNames:   map[string]struct{}{},
	}
	if err := idx.load(); err != nil {
		return nil, trace.Wrap(err)
	}
	return idx, nil
}

func (idx *Index) indexDir() string {
	return filepath.Join(idx.root, defaults.PypiDirName, defaults.PypiIndexDirName)
}

func (idx *Index) idToPathsFile() string {
	return filepath.Join(idx.indexDir(), defaults.IndexIDToPathsFileName)
}

func (idx *Index) nameToVersFile() string {
	return filepath.Join(idx.indexDir(), defaults.IndexNameToVersionsFileName)
}

func (idx *Index) edgesFile() string {
	return filepath.Join(idx.indexDir(), defaults.IndexDependencyEdgesFileName)
}

func (idx *Index) downloadsDir() string {
	return filepath.Join(idx.root, defaults.PypiDirName, defaults.PypiDownloadsDirName)
}

func (idx *Index) installedDir() string {
	return filepath.Join(idx.root, defaults.PypiDirName, defaults.PypiInstalledDirName)
}

func (idx *Index) load() error {
	if err := os.MkdirAll(idx.indexDir(), defaults.DirPerm); err != nil {
		return trace.ConvertSystemError(err)
	}
	if err := loadJSONOrEmpty(idx.idToPathsFile(), &idx.idToPaths); err != nil {
		return trace.Wrap(err)
	}
	if err := loadJSONOrEmpty(idx.nameToVersFile(), &idx.nameToVers); err != nil {
		return trace.Wrap(err)
	}
	if err := loadJSONOrEmpty(idx.edgesFile(), &idx.edges); err != nil {
		return trace.Wrap(err)
	}
	return nil
}

func loadJSONOrEmpty(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return trace.ConvertSystemError(err)
	}
	if len(data) == 0 {
		return nil
	}
	return trace.Wrap(json.Unmarshal(data, v))
}

// HasID reports whether pkgID is already present in the index.
func (idx *Index) HasID(pkgID loc.PackageID) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.idToPaths[pkgID.String()]
	return ok
}

// HasName reports whether any version of name is present in the index.
func (idx *Index) HasName(name string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.nameToVers[name]
	return ok
}

// Paths returns the stored (download, install) paths for pkgID.
func (idx *Index) Paths(pkgID loc.PackageID) (Paths, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	p, ok := idx.idToPaths[pkgID.String()]
	return p, ok
}

// Versions returns the known versions of name, newest first.
func (idx *Index) Versions(name string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, len(idx.nameToVers[name]))
	copy(out, idx.nameToVers[name])
	return out
}

// StashDownload records that an archive was fetched to downloadPath for
// pkgID, awaiting a matching AddInstalled call. Mirrors add_to_index(kind=0).
func (idx *Index) StashDownload(pkgID loc.PackageID, downloadPath string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.stashDownloads[pkgID.String()] = downloadPath
}

// AddInstalled pairs a previously stashed download with its unpacked
// install path and records the pair in the index. Mirrors
// add_to_index(kind=1) followed by update_index. Returns IndexInconsistency
// if no matching StashDownload call preceded it, the same failure mode as
// the source's KeyError-then-exit(1) path but surfaced as a typed error
// instead of terminating the process.
func (idx *Index) AddInstalled(pkgID loc.PackageID, installPath string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	downloadPath, ok := idx.stashDownloads[pkgID.String()]
	if !ok {
		return deperrors.IndexInconsistency(
			"no stashed download for package %v; run a full index rebuild", pkgID)
	}
	delete(idx.stashDownloads, pkgID.String())
	return idx.updateLocked(pkgID, downloadPath, installPath, false)
}

// Update records an (download, install) path pair directly, skipping the
// stash handshake. Used when a package is already fully materialized (e.g.
// by a concurrent installer run) and only the index bookkeeping is needed.
func (idx *Index) Update(pkgID loc.PackageID, downloadPath, installPath string, force bool) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.updateLocked(pkgID, downloadPath, installPath, force)
}

// hasPrefixPath reports whether path resolves under root, tolerating the
// case-insensitive filesystems spec.md 4.E calls out ("platforms with
// case-insensitive paths").
func hasPrefixPath(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	rel, err := filepath.Rel(strings.ToLower(root), strings.ToLower(path))
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel != ".." && !strings.HasPrefix(rel, "../")
}

func (idx *Index) updateLocked(pkgID loc.PackageID, downloadPath, installPath string, force bool) error {
	id := pkgID.String()
	if _, exists := idx.idToPaths[id]; exists && !force {
		return nil
	}
	if downloadPath != "" && !hasPrefixPath(downloadPath, idx.downloadsDir()) {
		return deperrors.IndexInconsistency(
			"download path %v for %v does not resolve under %v", downloadPath, pkgID, idx.downloadsDir())
	}
	if installPath != "" && !hasPrefixPath(installPath, idx.installedDir()) {
		return deperrors.IndexInconsistency(
			"install path %v for %v does not resolve under %v", installPath, pkgID, idx.installedDir())
	}
	idx.idToPaths[id] = Paths{DownloadPath: downloadPath, InstallPath: installPath}
	idx.nameToVers[pkgID.Name] = append(idx.nameToVers[pkgID.Name], pkgID.Version)
	idx.changedNames[pkgID.Name] = struct{}{}
	return nil
}

// RecordDependencies adds name's dependency edges to the index's graph and
// checks the result for a cycle (spec.md 8: "the installer must report
// IndexInconsistency rather than loop" on a cyclic dependency graph), per
// spec.md 4.H step 6, "record dependency edges in the index". On a cycle,
// the edges are not committed and the existing graph is left untouched.
func (idx *Index) RecordDependencies(name string, deps []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	candidate := make(map[string][]string, len(idx.edges)+1)
	for k, v := range idx.edges {
		candidate[k] = v
	}
	candidate[name] = deps

	if cyclic, chain := hasCycle(candidate); cyclic {
		return deperrors.IndexInconsistency(
			"cyclic dependency graph detected: %v", strings.Join(chain, " -> "))
	}

	idx.edges[name] = deps
	return nil
}

// hasCycle runs a DFS with visited/in-progress marking over graph, reporting
// the first cycle found as a printable chain of names.
func hasCycle(graph map[string][]string) (bool, []string) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(graph))
	var path []string

	var visit func(name string) []string
	visit = func(name string) []string {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return append(append([]string(nil), path...), name)
		}
		state[name] = visiting
		path = append(path, name)
		for _, dep := range graph[name] {
			if chain := visit(dep); chain != nil {
				return chain
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		return nil
	}

	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if state[name] == unvisited {
			if chain := visit(name); chain != nil {
				return true, chain
			}
		}
	}
	return false, nil
}

// Save re-sorts the version lists of every name touched since the last
// Save, then atomically (temp-then-rename) persists all three index files.
// Mirrors save_index's "refresh versions stack" + dumps sequence.
func (idx *Index) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for name := range idx.changedNames {
		vers := idx.nameToVers[name]
		semver.SortVersions(vers, true)
		idx.nameToVers[name] = vers
	}
	idx.changedNames = map[string]struct{}{}

	if err := writeJSONAtomic(idx.idToPathsFile(), idx.idToPaths); err != nil {
		return trace.Wrap(err)
	}
	if err := writeJSONAtomic(idx.nameToVersFile(), idx.nameToVers); err != nil {
		return trace.Wrap(err)
	}
	if err := writeJSONAtomic(idx.edgesFile(), idx.edges); err != nil {
		return trace.Wrap(err)
	}

	if pending := idx.pendingDownloadsLocked(); len(pending) > 0 {
		log.WithField("pending", pending).Warn("save_index: stash is non-empty; downloads without a matching install")
	}
	return nil
}

// PendingDownloads returns the package ids currently stashed (downloaded,
// not yet installed), sorted, for diagnostics surfaced by Save's caller.
func (idx *Index) PendingDownloads() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.pendingDownloadsLocked()
}

func (idx *Index) pendingDownloadsLocked() []string {
	out := make([]string, 0, len(idx.stashDownloads))
	for id := range idx.stashDownloads {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return trace.Wrap(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "index-*.json")
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return trace.Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return trace.ConvertSystemError(err)
	}
	return trace.ConvertSystemError(os.Rename(tmp.Name(), path))
}
