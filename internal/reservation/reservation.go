// Package reservation implements ReserveNow/CancelReservation (spec
// §4.6, added by this expansion to cover the dropped reservation feature
// from original_source/). A reservation binds a connector to one idTag
// (and optional parentIdTag) until an expiry timestamp; txengine consults
// MatchesAndIsLive before allowing a reserved connector's Begin to
// proceed. Grounded on internal/authlist's persisted-map idiom.
package reservation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ruslanhut/ocpp-chargepoint/internal/persistence"
)

// Reservation is one ReserveNow grant.
type Reservation struct {
	ID          int       `json:"id"`
	EvseID      int       `json:"evseId"`
	IDTag       string    `json:"idTag"`
	ParentIDTag string    `json:"parentIdTag,omitempty"`
	ExpiryDate  time.Time `json:"expiryDate"`
}

// Service persists reservations one-per-file so each can be loaded,
// removed, or expired independently, mirroring the journal's
// reservation-*.jsn naming from spec §6.
type Service struct {
	fs   persistence.FS
	byID map[int]*Reservation
	byEvse map[int]int // evseID -> reservation ID, at most one live reservation per connector
}

// New creates an empty Service backed by fs.
func New(fs persistence.FS) *Service {
	return &Service{fs: fs, byID: make(map[int]*Reservation), byEvse: make(map[int]int)}
}

func recordName(id int) string {
	return persistence.RecordName("reservation", 0, id)
}

// Load scans persisted reservation files and rebuilds the in-memory
// index, dropping any reservation whose expiry has already passed.
func (s *Service) Load() error {
	names, err := s.fs.List("reservation-0-")
	if err != nil {
		return fmt.Errorf("reservation: list: %w", err)
	}
	now := time.Now()
	for _, name := range names {
		data, err := s.fs.Read(name)
		if err != nil {
			continue
		}
		var r Reservation
		if err := json.Unmarshal(data, &r); err != nil {
			continue // corrupt record: leave the file in place, skip it
		}
		if now.After(r.ExpiryDate) {
			_ = s.fs.Remove(name)
			continue
		}
		rc := r
		s.byID[r.ID] = &rc
		s.byEvse[r.EvseID] = r.ID
	}
	return nil
}

// Reserve creates a new reservation, refusing if evseID already has a
// live one.
func (s *Service) Reserve(id, evseID int, idTag, parentIDTag string, expiry time.Time) error {
	if existingID, ok := s.byEvse[evseID]; ok {
		if existing, ok := s.byID[existingID]; ok && time.Now().Before(existing.ExpiryDate) {
			return fmt.Errorf("reservation: connector %d already reserved (id %d)", evseID, existingID)
		}
	}
	r := &Reservation{ID: id, EvseID: evseID, IDTag: idTag, ParentIDTag: parentIDTag, ExpiryDate: expiry}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("reservation: encode: %w", err)
	}
	if err := s.fs.Write(recordName(id), data); err != nil {
		return fmt.Errorf("reservation: commit: %w", err)
	}
	s.byID[id] = r
	s.byEvse[evseID] = id
	return nil
}

// Cancel removes a reservation by ID. It reports ok=false if no such
// reservation exists (CancelReservation.conf Rejected).
func (s *Service) Cancel(id int) (ok bool) {
	r, exists := s.byID[id]
	if !exists {
		return false
	}
	_ = s.fs.Remove(recordName(id))
	delete(s.byID, id)
	if s.byEvse[r.EvseID] == id {
		delete(s.byEvse, r.EvseID)
	}
	return true
}

// MatchesAndIsLive reports whether evseID has a live (unexpired)
// reservation that idTag (or its parentIdTag) may start against.
func (s *Service) MatchesAndIsLive(evseID int, idTag string, now time.Time) bool {
	id, ok := s.byEvse[evseID]
	if !ok {
		return false
	}
	r, ok := s.byID[id]
	if !ok || now.After(r.ExpiryDate) {
		return false
	}
	return r.IDTag == idTag || (r.ParentIDTag != "" && r.ParentIDTag == idTag)
}

// ReservationFor returns the live reservation ID on evseID, if any.
func (s *Service) ReservationFor(evseID int) (int, bool) {
	id, ok := s.byEvse[evseID]
	return id, ok
}
