// Package defaults collects the path layout, filenames, and tunables shared
// across depsland's packages, the way gravitational-gravity/lib/defaults
// centralizes cluster-wide constants instead of letting each package invent
// its own magic strings.
package defaults

import "time"

const (
	// AppsDirName holds installed application trees: apps/<appid>/<version>/.
	AppsDirName = "apps"

	// VenvDirName holds per-appid virtual environments: apps/.venv/<appid>/<version>/.
	VenvDirName = ".venv"

	// BinDirName holds generated launcher entry points: apps/.bin/<appid>.{exe,sh}.
	BinDirName = ".bin"

	// InstallHistoryFileName is the per-appid, newest-first install log.
	InstallHistoryFileName = ".inst_history"

	// DistHistoryFileName is the per-appid, newest-first publish log.
	DistHistoryFileName = ".dist_history"

	// HistoryMetaSuffix names the JSON-lines sidecar carrying the actor and
	// timestamp of each history entry (SPEC_FULL.md supplemented feature;
	// absent from spec.md, additive and never required to read history).
	HistoryMetaSuffix = ".meta"

	// PypiDirName roots the shared package cache: pypi/downloads,
	// pypi/installed, pypi/index.
	PypiDirName = "pypi"

	// PypiDownloadsDirName holds fetched package archives, stored as
	// <name>/<package id>.zip and kept after the package is installed.
	PypiDownloadsDirName = "downloads"

	// PypiInstalledDirName holds unpacked, installed package trees, keyed by
	// loc.PackageID.
	PypiInstalledDirName = "installed"

	// PypiIndexDirName holds the shared catalog's two JSON files.
	PypiIndexDirName = "index"

	// IndexIDToPathsFileName maps a package id to its known storage paths.
	IndexIDToPathsFileName = "id_2_paths.json"

	// IndexNameToVersionsFileName maps a package name to its known versions.
	IndexNameToVersionsFileName = "name_2_vers.json"

	// IndexDependencyEdgesFileName maps a package name to the names of the
	// packages it depends on (spec.md 4.H step 6: "record dependency edges
	// in the index").
	IndexDependencyEdgesFileName = "deps.json"

	// ManifestJSONFileName is the authored, human-editable manifest form.
	ManifestJSONFileName = "manifest.json"

	// ManifestPklFileName is the machine-built, fully enriched manifest form.
	ManifestPklFileName = "manifest.pkl"

	// BlobKeySeparator joins a blob store's logical path segments.
	BlobKeySeparator = "/"

	// DirPerm is the mode new directories are created with.
	DirPerm = 0o755

	// FilePerm is the mode new regular files are created with.
	FilePerm = 0o644

	// FetchPoolSize bounds concurrent package downloads during install,
	// the counterpart of gravitational-gravity/lib/run's worker pool size
	// but scoped to this repo's installer fetch phase.
	FetchPoolSize = 4

	// UploadTimeout is a time budget for a single blob upload/download
	// round trip. Nothing in this module applies it; stores and their
	// callers run without a deadline.
	UploadTimeout = 2 * time.Minute
)
