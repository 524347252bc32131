// Package hashutil computes the stable content digest used as the uid of
// file-type assets (spec.md 4.B). The streaming copy-through-a-hasher idiom
// mirrors gravitational/gravity's lib/blob/fs.WriteBLOB, which streams file
// bytes through io.MultiWriter into a sha512.New() hasher; this package
// uses SHA-256 per spec.md's recommendation.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/gravitational/trace"
)

// HashFile computes the hex-encoded SHA-256 digest of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", trace.ConvertSystemError(err)
	}
	defer f.Close()
	return HashReader(f)
}

// HashReader computes the hex-encoded SHA-256 digest of r's remaining
// contents.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", trace.Wrap(err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
