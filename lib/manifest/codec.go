package manifest

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gravitational/trace"

	"github.com/Likianta/depsland/lib/loc"
)

// Load reads a manifest from path, accepting either on-wire form:
//   - manifest.json: human-authored, may omit derived asset fields
//   - manifest.pkl: machine-built, fully populated (gob-encoded)
//
// StartDirectory is always rewritten to the absolute directory containing
// path, per spec.md 4.C, and EnrichFromDisk + Validate run before return.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}

	var m Manifest
	if strings.HasSuffix(path, ".pkl") {
		if err := decodePkl(data, &m); err != nil {
			return nil, trace.Wrap(err, "decoding %v", path)
		}
	} else {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, trace.Wrap(err, "decoding %v", path)
		}
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	m.StartDirectory = abs
	if m.AppID != "" {
		m.AppID = loc.NormalizeAppID(m.AppID)
	}
	if m.Assets == nil {
		m.Assets = map[string]AssetInfo{}
	}
	if m.Dependencies == nil {
		m.Dependencies = map[string]PackageInfo{}
	}
	if m.SchemaVersion == 0 {
		m.SchemaVersion = SchemaVersion
	}

	if err := m.EnrichFromDisk(); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := m.Validate(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &m, nil
}

// Dump writes the manifest in the machine-built .pkl form (gob-encoded),
// per spec.md 4.C: "dump_manifest writes the .pkl form". A
// language-neutral encoding (e.g. MessagePack) is an acceptable substitute
// per spec.md 6 as long as publisher and installer agree; gob is this
// repo's choice because the teacher's own storage layer (the bolt-backed
// metadata in lib/pack/localpack) likewise prefers an opaque binary
// encoding over a textual one for the machine-built form.
func Dump(m *Manifest, path string) error {
	var buf bytes.Buffer
	if err := encodePkl(m, &buf); err != nil {
		return trace.Wrap(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return trace.ConvertSystemError(err)
	}
	return nil
}

func encodePkl(m *Manifest, w io.Writer) error {
	return trace.Wrap(gob.NewEncoder(w).Encode(m))
}

func decodePkl(data []byte, m *Manifest) error {
	return trace.Wrap(gob.NewDecoder(bytes.NewReader(data)).Decode(m))
}
