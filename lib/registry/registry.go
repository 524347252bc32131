// Package registry is the App Registry of spec.md 4.I: the per-appid
// install/distribution history files under apps/<appid>/, newest first,
// deduplicating a repeated head entry. The plain-text, line-oriented
// history format mirrors the shape of
// gravitational-gravity/lib/storage's flat append-only audit logs; the
// optional JSON-lines ".meta" sidecars recording actor/timestamp are a
// supplemented feature (SPEC_FULL.md, not present in spec.md) grounded on
// original_source's publish/install call sites always having an actor and
// a wall-clock time available at the point a history line is written.
package registry

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/mailgun/timetools"

	"github.com/Likianta/depsland/lib/defaults"
)

// Kind selects which of the two history files a Registry call targets.
type Kind string

const (
	InstallHistory      Kind = "install"
	DistributionHistory Kind = "distribution"
)

func (k Kind) fileName() string {
	if k == DistributionHistory {
		return defaults.DistHistoryFileName
	}
	return defaults.InstallHistoryFileName
}

// MetaEntry is one line of a history's ".meta" sidecar.
type MetaEntry struct {
	Version string    `json:"version"`
	Actor   string    `json:"actor,omitempty"`
	Time    time.Time `json:"time"`
}

// Registry reads and mutates the two history files for every appid under a
// single apps/ root. Clock is overridable for tests, the same role
// clockwork.Clock plays in gravitational-gravity/lib/storage/keyval.
type Registry struct {
	mu    sync.Mutex
	root  string
	clock timetools.TimeProvider
}

// New returns a Registry rooted at root (the directory containing apps/).
func New(root string) *Registry {
	return &Registry{root: root, clock: &timetools.RealTime{}}
}

// NewWithClock returns a Registry using an injected clock, for deterministic
// .meta timestamps in tests.
func NewWithClock(root string, clock timetools.TimeProvider) *Registry {
	return &Registry{root: root, clock: clock}
}

func (r *Registry) appDir(appid string) string {
	return filepath.Join(r.root, defaults.AppsDirName, appid)
}

func (r *Registry) historyFile(appid string, kind Kind) string {
	return filepath.Join(r.appDir(appid), kind.fileName())
}

func (r *Registry) metaFile(appid string, kind Kind) string {
	return r.historyFile(appid, kind) + defaults.HistoryMetaSuffix
}

// LastVersion returns the most recently recorded version for appid, or ""
// if the history is empty or absent. This backs
// get_last_installed_version/get_distribution_history's "most recent"
// query.
func (r *Registry) LastVersion(appid string, kind Kind) (string, error) {
	versions, err := r.History(appid, kind)
	if err != nil {
		return "", trace.Wrap(err)
	}
	if len(versions) == 0 {
		return "", nil
	}
	return versions[0], nil
}

// History returns every recorded version for appid, newest first.
func (r *Registry) History(appid string, kind Kind) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readLocked(appid, kind)
}

func (r *Registry) readLocked(appid string, kind Kind) ([]string, error) {
	f, err := os.Open(r.historyFile(appid, kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, trace.ConvertSystemError(err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out, trace.Wrap(scanner.Err())
}

// Prepend adds version to the head of appid's history, deduplicating: a
// version equal to the current head is a no-op (spec.md 4.I: "both
// histories deduplicate - if the incoming version equals the head, skip").
func (r *Registry) Prepend(appid string, kind Kind, version, actor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.readLocked(appid, kind)
	if err != nil {
		return trace.Wrap(err)
	}
	if len(existing) > 0 && existing[0] == version {
		return nil
	}

	if err := os.MkdirAll(r.appDir(appid), defaults.DirPerm); err != nil {
		return trace.ConvertSystemError(err)
	}
	updated := append([]string{version}, existing...)
	if err := writeLines(r.historyFile(appid, kind), updated); err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(r.appendMetaLocked(appid, kind, version, actor))
}

func (r *Registry) appendMetaLocked(appid string, kind Kind, version, actor string) error {
	entry := MetaEntry{Version: version, Actor: actor, Time: r.clock.UtcNow()}
	data, err := json.Marshal(entry)
	if err != nil {
		return trace.Wrap(err)
	}
	f, err := os.OpenFile(r.metaFile(appid, kind), os.O_APPEND|os.O_CREATE|os.O_WRONLY, defaults.FilePerm)
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return trace.Wrap(err)
}

func writeLines(path string, lines []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "history-*")
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			tmp.Close()
			return trace.Wrap(err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return trace.Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return trace.ConvertSystemError(err)
	}
	return trace.ConvertSystemError(os.Rename(tmp.Name(), path))
}
