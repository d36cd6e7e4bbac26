// Package certstore is the 2.0.1 certificate management surface
// (InstallCertificate/DeleteCertificate/GetInstalledCertificateIds, spec
// §4.9, added by this expansion): PEM blobs keyed by their SHA-256 hash,
// persisted one file per certificate. Grounded on internal/persistence's
// write-then-rename idiom; uses crypto/sha256 from the standard library
// for hashing (no third-party hashing library appears anywhere in the
// example pack -- see DESIGN.md); golang.org/x/crypto is not used here.
package certstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ruslanhut/ocpp-chargepoint/internal/persistence"
)

// CertificateUse mirrors the 2.0.1 CertificateUseEnumType.
type CertificateUse string

const (
	UseCentralSystemRootCertificate   CertificateUse = "CentralSystemRootCertificate"
	UseManufacturerRootCertificate    CertificateUse = "ManufacturerRootCertificate"
	UseChargingStationChain          CertificateUse = "ChargingStationCertificate"
)

// Certificate is one installed PEM blob.
type Certificate struct {
	HashSHA256 string         `json:"hashSha256"`
	Use        CertificateUse `json:"certificateType"`
	PEM        string         `json:"pem"`
}

// Store holds installed certificates in memory, persisting each as
// "cert-<use>-<hash prefix>.pem" (spec §6 file layout).
type Store struct {
	mu    sync.RWMutex
	fs    persistence.FS
	certs map[string]*Certificate // hashSHA256 -> cert
}

// New creates an empty Store backed by fs.
func New(fs persistence.FS) *Store {
	return &Store{fs: fs, certs: make(map[string]*Certificate)}
}

func hashOf(pem string) string {
	sum := sha256.Sum256([]byte(pem))
	return hex.EncodeToString(sum[:])
}

func recordName(use CertificateUse, hash string) string {
	prefix := hash
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	return fmt.Sprintf("cert-%s-%s.pem", use, prefix)
}

// InstallStatus mirrors InstallCertificateStatusEnumType.
type InstallStatus string

const (
	InstallAccepted     InstallStatus = "Accepted"
	InstallRejected     InstallStatus = "Rejected"
	InstallFailed       InstallStatus = "Failed"
)

// MaxCertificates bounds how many certificates this store accepts before
// refusing further installs (spec's carried-over CertificateStoreMaxLength
// knob; the bound is fixed at compile time).
const MaxCertificates = 20

// Install adds cert to the store, hashing its PEM content to derive the
// lookup key. It returns InstallRejected if capacity is already at
// MaxCertificates.
func (s *Store) Install(use CertificateUse, pem string) (string, InstallStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.certs) >= MaxCertificates {
		return "", InstallRejected, nil
	}
	hash := hashOf(pem)
	cert := &Certificate{HashSHA256: hash, Use: use, PEM: pem}
	data, err := json.Marshal(cert)
	if err != nil {
		return "", InstallFailed, fmt.Errorf("certstore: encode: %w", err)
	}
	if err := s.fs.Write(recordName(use, hash), data); err != nil {
		return "", InstallFailed, fmt.Errorf("certstore: commit: %w", err)
	}
	s.certs[hash] = cert
	return hash, InstallAccepted, nil
}

// DeleteStatus mirrors DeleteCertificateStatusEnumType.
type DeleteStatus string

const (
	DeleteAccepted  DeleteStatus = "Accepted"
	DeleteNotFound  DeleteStatus = "NotFound"
)

// Delete removes the certificate identified by hash.
func (s *Store) Delete(hash string) DeleteStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.certs[hash]
	if !ok {
		return DeleteNotFound
	}
	_ = s.fs.Remove(recordName(cert.Use, hash))
	delete(s.certs, hash)
	return DeleteAccepted
}

// List returns installed certificates, optionally filtered by use
// (pass "" for no filter).
func (s *Store) List(use CertificateUse) []Certificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Certificate
	for _, c := range s.certs {
		if use != "" && c.Use != use {
			continue
		}
		out = append(out, *c)
	}
	return out
}

// Load rebuilds the in-memory index from persisted certificate files.
func (s *Store) Load() error {
	names, err := s.fs.List("cert-")
	if err != nil {
		return fmt.Errorf("certstore: list: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		data, err := s.fs.Read(name)
		if err != nil {
			continue
		}
		var c Certificate
		if err := json.Unmarshal(data, &c); err != nil {
			continue // corrupt: leave file in place, skip
		}
		cc := c
		s.certs[c.HashSHA256] = &cc
	}
	return nil
}
