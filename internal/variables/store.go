// Package variables is the typed key/value configuration store shared by
// OCPP 1.6 GetConfiguration/ChangeConfiguration and 2.0.1
// GetVariables/SetVariables. Each declared key carries a type, a factory
// default, mutability/persistence/reboot flags, and validation; the store
// itself is a thin wrapper over internal/persistence so values survive a
// restart, grounded on the teacher's filesystem-backed config idiom
// (internal/config/loader.go) but re-targeted at the protocol surface
// rather than process bootstrap.
package variables

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/ruslanhut/ocpp-chargepoint/internal/persistence"
)

// Type enumerates the value kinds the store accepts.
type Type int

const (
	TypeInt Type = iota
	TypeBool
	TypeString
)

// Accessibility mirrors OCPP 2.0.1's AttributeType access scoping; 1.6 only
// ever uses the implicit ReadWrite/ReadOnly split captured by Mutability.
type Accessibility string

const (
	AccessReadWrite Accessibility = "ReadWrite"
	AccessReadOnly  Accessibility = "ReadOnly"
	AccessWriteOnly Accessibility = "WriteOnly"
)

// Definition declares one configuration key.
type Definition struct {
	Key             string
	Type            Type
	FactoryDefault  string
	Mutable         bool
	Persistent      bool
	RebootRequired  bool
	Accessibility   Accessibility
	Validate        func(value string) error
}

// Store holds declared definitions and their current values.
type Store struct {
	mu          sync.RWMutex
	defs        map[string]Definition
	values      map[string]string
	dirty       map[string]struct{}
	fs          persistence.FS
	file        string
	rebootAfter map[string]struct{} // keys changed but needing reboot to take effect
}

// New creates an empty Store writing through fs at file (default
// "ocpp-config.jsn" per spec §6, but volatile stores may pass a nil fs).
func New(fs persistence.FS, file string) *Store {
	if file == "" {
		file = "ocpp-config.jsn"
	}
	return &Store{
		defs:        make(map[string]Definition),
		values:      make(map[string]string),
		dirty:       make(map[string]struct{}),
		fs:          fs,
		file:        file,
		rebootAfter: make(map[string]struct{}),
	}
}

// Declare registers a key. Declaring a key that already has a persisted
// value leaves that value in place; otherwise the factory default is
// seeded. Declare is idempotent and meant to be called once per key at
// startup from a catalog (see catalog.go).
func (s *Store) Declare(def Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.Key] = def
	if _, ok := s.values[def.Key]; !ok {
		s.values[def.Key] = def.FactoryDefault
	}
}

// Load reads persisted values from the filesystem, overlaying them onto
// whatever factory defaults Declare already seeded. Unknown persisted
// keys (a key dropped from a newer catalog) are kept in memory and
// readable through Get, but GetMany does not list them and Save does not
// write them back.
func (s *Store) Load() error {
	if s.fs == nil {
		return nil
	}
	data, err := s.fs.Read(s.file)
	if err != nil {
		if err == persistence.ErrNotFound {
			return nil
		}
		return fmt.Errorf("variables: load %s: %w", s.file, err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("variables: decode %s: %w", s.file, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range raw {
		s.values[k] = v
	}
	return nil
}

// Save persists all declared, persistent keys' current values.
func (s *Store) Save() error {
	if s.fs == nil {
		return nil
	}
	s.mu.RLock()
	out := make(map[string]string)
	for k, def := range s.defs {
		if def.Persistent {
			out[k] = s.values[k]
		}
	}
	s.mu.RUnlock()

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("variables: encode: %w", err)
	}
	if err := s.fs.Write(s.file, data); err != nil {
		return fmt.Errorf("variables: save %s: %w", s.file, err)
	}
	return nil
}

// Status values returned by Set, matching OCPP 1.6 ChangeConfiguration /
// 2.0.1 SetVariables semantics.
type Status string

const (
	StatusAccepted       Status = "Accepted"
	StatusRejected       Status = "Rejected"
	StatusRebootRequired Status = "RebootRequired"
	StatusNotSupported   Status = "NotSupported"  // 1.6: unknown key
	StatusUnknownVariable Status = "UnknownVariable" // 2.0.1: unknown key
	StatusReadOnly       Status = "ReadOnly"
)

// Set validates and stores a new value for key. Rejected values are never
// stored. unknown201 selects which "key not found" status to return.
func (s *Store) Set(key, value string, unknown201 bool) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.defs[key]
	if !ok {
		if unknown201 {
			return StatusUnknownVariable
		}
		return StatusNotSupported
	}
	if !def.Mutable || def.Accessibility == AccessReadOnly {
		return StatusReadOnly
	}
	if err := typeCheck(def.Type, value); err != nil {
		return StatusRejected
	}
	if def.Validate != nil {
		if err := def.Validate(value); err != nil {
			return StatusRejected
		}
	}

	s.values[key] = value
	if def.Persistent {
		s.dirty[key] = struct{}{}
	}
	if def.RebootRequired {
		s.rebootAfter[key] = struct{}{}
		return StatusRebootRequired
	}
	return StatusAccepted
}

func typeCheck(t Type, value string) error {
	switch t {
	case TypeInt:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("not an integer: %q", value)
		}
	case TypeBool:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("not a boolean: %q", value)
		}
	case TypeString:
		// any string accepted
	}
	return nil
}

// Get returns the current string value of key and whether a value is held
// for it (a declared key, or an undeclared one read back by Load).
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// GetInt and GetBool are typed convenience accessors used by the
// transaction engine's configuration knobs. They return the zero value if
// the key is undeclared or unparsable, which should never happen for
// catalog-declared keys.
func (s *Store) GetInt(key string) int {
	v, _ := s.Get(key)
	n, _ := strconv.Atoi(v)
	return n
}

func (s *Store) GetBool(key string) bool {
	v, _ := s.Get(key)
	b, _ := strconv.ParseBool(v)
	return b
}

// KeyValue is the (key, readonly, value) triple GetConfiguration/
// GetVariables responses are built from.
type KeyValue struct {
	Key      string
	Readonly bool
	Value    string
}

// GetMany returns the requested keys (or all declared keys if keys is
// empty) plus the subset of requested keys that are undeclared.
func (s *Store) GetMany(keys []string) (found []KeyValue, unknown []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(keys) == 0 {
		all := make([]string, 0, len(s.defs))
		for k := range s.defs {
			all = append(all, k)
		}
		sort.Strings(all)
		keys = all
	}

	for _, k := range keys {
		def, ok := s.defs[k]
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		found = append(found, KeyValue{
			Key:      k,
			Readonly: !def.Mutable || def.Accessibility == AccessReadOnly,
			Value:    s.values[k],
		})
	}
	return found, unknown
}
