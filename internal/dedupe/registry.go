package dedupe

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrCorruptRegistry is returned when persisted registry state cannot be read.
// Callers must abort the run rather than start from an empty registry.
var ErrCorruptRegistry = errors.New("registry is corrupt")

// Entry is the first-seen record for one uid.
type Entry struct {
	UID        string
	FirstSeen  time.Time
	Title      string
	Source     string
	RecordedAt time.Time
}

// Store persists registry entries. Implementations must never delete.
type Store interface {
	RegistryEntries() ([]Entry, error)
	AppendRegistry(entries []Entry) error
}

// Registry is the in-memory snapshot of every uid seen by earlier runs, plus
// the uids recorded during the current run.
type Registry struct {
	entries map[string]Entry
	added   []Entry
}

// NewRegistry returns a registry seeded with entries.
func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		r.entries[e.UID] = e
	}
	return r
}

// LoadRegistry reads the full registry from store.
func LoadRegistry(store Store) (*Registry, error) {
	entries, err := store.RegistryEntries()
	if err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}
	return NewRegistry(entries...), nil
}

// Contains reports whether uid has been recorded.
func (r *Registry) Contains(uid string) bool {
	_, ok := r.entries[uid]
	return ok
}

// Add records a new uid. It returns false when the uid already exists; the
// original entry is never overwritten.
func (r *Registry) Add(e Entry) bool {
	if r.Contains(e.UID) {
		return false
	}
	r.entries[e.UID] = e
	r.added = append(r.added, e)
	return true
}

// Added returns the entries recorded since the registry was loaded or saved.
func (r *Registry) Added() []Entry {
	return r.added
}

// Entries returns all entries ordered by uid.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// Save appends the newly added entries to store in one write.
func (r *Registry) Save(store Store) error {
	if len(r.added) == 0 {
		return nil
	}
	if err := store.AppendRegistry(r.added); err != nil {
		return fmt.Errorf("saving registry: %w", err)
	}
	r.added = nil
	return nil
}

type fileEntry struct {
	FirstSeen string `json:"first_seen"`
	Title     string `json:"title,omitempty"`
	Source    string `json:"source,omitempty"`
}

// ReadFile loads a JSON registry of the form {"<uid>": {"first_seen": ...}}.
// A missing file is an empty registry.
func ReadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading registry file: %w", err)
	}
	var raw map[string]fileEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRegistry, path, err)
	}
	entries := make([]Entry, 0, len(raw))
	for uid, fe := range raw {
		e := Entry{UID: uid, Title: fe.Title, Source: fe.Source}
		if fe.FirstSeen != "" {
			t, err := time.Parse(time.RFC3339, fe.FirstSeen)
			if err != nil {
				// Older registries stored local times without an offset.
				t, err = time.ParseInLocation("2006-01-02T15:04", fe.FirstSeen, time.Local)
			}
			if err != nil {
				return nil, fmt.Errorf("%w: %s: uid %s: bad first_seen %q", ErrCorruptRegistry, path, uid, fe.FirstSeen)
			}
			e.FirstSeen = t
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UID < entries[j].UID })
	return entries, nil
}

// WriteFile writes entries as a JSON registry. The file is replaced atomically
// so a crash mid-write leaves the previous version intact.
func WriteFile(path string, entries []Entry) error {
	raw := make(map[string]fileEntry, len(entries))
	for _, e := range entries {
		fe := fileEntry{Title: e.Title, Source: e.Source}
		if !e.FirstSeen.IsZero() {
			fe.FirstSeen = e.FirstSeen.Format(time.RFC3339)
		}
		raw[e.UID] = fe
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".registry-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing registry file: %w", err)
	}
	return nil
}
