// Package deperrors defines the typed error taxonomy used across the
// publish/install pipeline. Each kind wraps github.com/gravitational/trace
// so callers can either pattern-match with the Is* predicates here or fall
// back to trace's own IsNotFound/IsAlreadyExists/IsBadParameter checks.
package deperrors

import (
	"fmt"

	"github.com/gravitational/trace"
)

type kind string

const (
	kindVersionNotIncreasing kind = "version_not_increasing"
	kindAppIDMismatch        kind = "appid_mismatch"
	kindManifestSchema       kind = "manifest_schema"
	kindBlobNotFound         kind = "blob_not_found"
	kindIndexInconsistency   kind = "index_inconsistency"
	kindTargetExists         kind = "target_exists"
	kindAssetReuseMiss       kind = "asset_reuse_miss"
)

// taggedError carries a kind alongside the wrapped trace error so the Is*
// helpers below can identify it without string matching.
type taggedError struct {
	kind kind
	err  error
}

func (e *taggedError) Error() string { return e.err.Error() }
func (e *taggedError) Unwrap() error { return e.err }

func tag(k kind, err error) error {
	return &taggedError{kind: k, err: err}
}

func hasKind(err error, k kind) bool {
	for err != nil {
		if te, ok := err.(*taggedError); ok {
			if te.kind == k {
				return true
			}
			err = te.err
			continue
		}
		err = trace.Unwrap(err)
	}
	return false
}

// VersionNotIncreasing is returned by the publisher when the new manifest's
// version does not strictly exceed the previous one.
func VersionNotIncreasing(appid, old, new string) error {
	return tag(kindVersionNotIncreasing, trace.BadParameter(
		"publish %v: new version %v must be greater than current version %v",
		appid, new, old))
}

// IsVersionNotIncreasing reports whether err is a VersionNotIncreasing error.
func IsVersionNotIncreasing(err error) bool { return hasKind(err, kindVersionNotIncreasing) }

// AppIDMismatch is returned when two manifests expected to describe the same
// app disagree on appid.
func AppIDMismatch(a, b string) error {
	return tag(kindAppIDMismatch, trace.BadParameter(
		"appid mismatch: %v != %v", a, b))
}

// IsAppIDMismatch reports whether err is an AppIDMismatch error.
func IsAppIDMismatch(err error) bool { return hasKind(err, kindAppIDMismatch) }

// ManifestSchema is returned when a manifest is missing a required field or
// carries a malformed asset/dependency entry.
func ManifestSchema(format string, args ...interface{}) error {
	return tag(kindManifestSchema, trace.BadParameter(format, args...))
}

// IsManifestSchema reports whether err is a ManifestSchema error.
func IsManifestSchema(err error) bool { return hasKind(err, kindManifestSchema) }

// BlobNotFound is returned when a download of a referenced blob fails
// because the key does not exist in the store.
func BlobNotFound(key string) error {
	return tag(kindBlobNotFound, trace.NotFound("blob not found: %v", key))
}

// IsBlobNotFound reports whether err is a BlobNotFound error.
func IsBlobNotFound(err error) bool { return hasKind(err, kindBlobNotFound) }

// IndexInconsistency is returned when the package index encounters a path
// that doesn't match its expected layout, or an install-phase stash miss.
func IndexInconsistency(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return tag(kindIndexInconsistency, trace.Wrap(
		trace.BadParameter("%v", msg),
		"package index is inconsistent; run rebuild_pypi_index"))
}

// IsIndexInconsistency reports whether err is an IndexInconsistency error.
func IsIndexInconsistency(err error) bool { return hasKind(err, kindIndexInconsistency) }

// TargetExists is returned when the installer would write into an existing
// per-version app directory without the reinstall flag set.
func TargetExists(path string) error {
	return tag(kindTargetExists, trace.AlreadyExists(
		"%v already exists; pass Reinstall to overwrite", path))
}

// IsTargetExists reports whether err is a TargetExists error.
func IsTargetExists(err error) bool { return hasKind(err, kindTargetExists) }

// AssetReuseMiss is a local, installer-internal signal: an "ignore" action
// expected to reuse a previously installed file, but that file is absent
// from the target tree. It is recovered from by promoting the action to
// "append" (spec.md 4.H); callers outside lib/install should never see it
// escape unhandled.
func AssetReuseMiss(relpath string) error {
	return tag(kindAssetReuseMiss, trace.NotFound(
		"asset %v missing from target tree; promoting to append", relpath))
}

// IsAssetReuseMiss reports whether err is an AssetReuseMiss error.
func IsAssetReuseMiss(err error) bool { return hasKind(err, kindAssetReuseMiss) }
