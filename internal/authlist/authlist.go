// Package authlist is the local authorization whitelist: idTag ->
// {status, expiryDate?, parentIdTag?}, with a monotonic listVersion and
// support for the 1.6 SendLocalList full/differential update protocol
// (spec §4.5). Grounded on internal/variables' persistence idiom, reusing
// internal/persistence the same way.
package authlist

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ruslanhut/ocpp-chargepoint/internal/persistence"
)

// Status is the local authorization status for one idTag.
type Status string

const (
	StatusAccepted     Status = "Accepted"
	StatusBlocked      Status = "Blocked"
	StatusExpired      Status = "Expired"
	StatusConcurrentTx Status = "ConcurrentTx"
)

// Entry is one local list record.
type Entry struct {
	IDTag       string     `json:"idTag"`
	Status      Status     `json:"status"`
	ParentIDTag string     `json:"parentIdTag,omitempty"`
	ExpiryDate  *time.Time `json:"expiryDate,omitempty"`
}

const file = "authlist.jsn"

type onDisk struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// Store is the persisted local whitelist.
type Store struct {
	mu      sync.RWMutex
	fs      persistence.FS
	version int
	entries map[string]Entry
}

// New creates an empty Store backed by fs.
func New(fs persistence.FS) *Store {
	return &Store{fs: fs, entries: make(map[string]Entry)}
}

// Load reads the persisted list, if any.
func (s *Store) Load() error {
	data, err := s.fs.Read(file)
	if err != nil {
		if err == persistence.ErrNotFound {
			return nil
		}
		return fmt.Errorf("authlist: load %s: %w", file, err)
	}
	var d onDisk
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("authlist: decode %s: %w", file, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = d.Version
	if d.Entries == nil {
		d.Entries = make(map[string]Entry)
	}
	s.entries = d.Entries
	return nil
}

func (s *Store) save() error {
	d := onDisk{Version: s.version, Entries: s.entries}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("authlist: encode: %w", err)
	}
	if err := s.fs.Write(file, data); err != nil {
		return fmt.Errorf("authlist: save %s: %w", file, err)
	}
	return nil
}

// Version returns the current listVersion.
func (s *Store) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Status reports whether idTag is known locally, and if so its
// acceptance state and parentIdTag. Expired entries are reported as
// known=true, accepted=false so callers can distinguish "known but
// expired" from "never heard of this tag".
func (s *Store) Status(idTag string) (accepted bool, parentIDTag string, known bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[idTag]
	if !ok {
		return false, "", false
	}
	if e.ExpiryDate != nil && time.Now().After(*e.ExpiryDate) {
		return false, e.ParentIDTag, true
	}
	return e.Status == StatusAccepted, e.ParentIDTag, true
}

// FullUpdate replaces the whole list (SendLocalList UpdateType=Full) and
// bumps the version to newVersion. Per spec, newVersion must be strictly
// greater than the current version, or the update is rejected as a
// VersionMismatch.
func (s *Store) FullUpdate(newVersion int, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if newVersion <= s.version {
		return fmt.Errorf("authlist: version mismatch: have %d, got %d", s.version, newVersion)
	}
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.IDTag] = e
	}
	s.entries = m
	s.version = newVersion
	return s.save()
}

// DifferentialUpdate merges entries into the existing list
// (SendLocalList UpdateType=Differential); an Entry with an empty Status
// removes that idTag. It also requires newVersion > current version.
func (s *Store) DifferentialUpdate(newVersion int, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if newVersion <= s.version {
		return fmt.Errorf("authlist: version mismatch: have %d, got %d", s.version, newVersion)
	}
	for _, e := range entries {
		if e.Status == "" {
			delete(s.entries, e.IDTag)
			continue
		}
		s.entries[e.IDTag] = e
	}
	s.version = newVersion
	return s.save()
}

// Len returns the number of entries currently in the list.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a stable, idTag-sorted snapshot of the list.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IDTag < out[j].IDTag })
	return out
}
