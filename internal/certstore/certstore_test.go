package certstore

import (
	"testing"

	"github.com/ruslanhut/ocpp-chargepoint/internal/persistence"
)

func TestInstallThenList(t *testing.T) {
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s := New(fs)
	hash, status, err := s.Install(UseManufacturerRootCertificate, "-----BEGIN CERTIFICATE-----\nfake\n-----END CERTIFICATE-----")
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if status != InstallAccepted {
		t.Fatalf("status = %v, want Accepted", status)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}
	list := s.List(UseManufacturerRootCertificate)
	if len(list) != 1 || list[0].HashSHA256 != hash {
		t.Fatalf("List = %+v", list)
	}
}

func TestDeleteNotFound(t *testing.T) {
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s := New(fs)
	if status := s.Delete("no-such-hash"); status != DeleteNotFound {
		t.Fatalf("Delete = %v, want NotFound", status)
	}
}

func TestInstallRejectsOverCapacity(t *testing.T) {
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s := New(fs)
	for i := 0; i < MaxCertificates; i++ {
		pem := "cert-" + string(rune('A'+i))
		if _, status, err := s.Install(UseManufacturerRootCertificate, pem); err != nil || status != InstallAccepted {
			t.Fatalf("Install %d: status=%v err=%v", i, status, err)
		}
	}
	_, status, err := s.Install(UseManufacturerRootCertificate, "one-too-many")
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if status != InstallRejected {
		t.Fatalf("status = %v, want Rejected once over capacity", status)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs, err := persistence.NewDir(dir)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s := New(fs)
	hash, _, err := s.Install(UseCentralSystemRootCertificate, "pem-data")
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	fs2, err := persistence.NewDir(dir)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	s2 := New(fs2)
	if err := s2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	list := s2.List("")
	if len(list) != 1 || list[0].HashSHA256 != hash {
		t.Fatalf("List after reload = %+v", list)
	}
}
