// Package firmware tracks the UpdateFirmware/FirmwareStatusNotification
// and GetDiagnostics/DiagnosticsStatusNotification status state machines
// (spec §4.8, added by this expansion). Neither operation performs an
// actual download or upload here -- that belongs to the out-of-scope
// transport layer -- this package only tracks the state a charge point
// reports back to the CSMS as the (host-driven) operation progresses.
package firmware

import "fmt"

// FirmwareStatus mirrors FirmwareStatusNotification's status enum.
type FirmwareStatus string

const (
	FirmwareIdle               FirmwareStatus = "Idle"
	FirmwareDownloading        FirmwareStatus = "Downloading"
	FirmwareDownloaded         FirmwareStatus = "Downloaded"
	FirmwareDownloadFailed     FirmwareStatus = "DownloadFailed"
	FirmwareInstalling         FirmwareStatus = "Installing"
	FirmwareInstalled          FirmwareStatus = "Installed"
	FirmwareInstallationFailed FirmwareStatus = "InstallationFailed"
)

// DiagnosticsStatus mirrors DiagnosticsStatusNotification's status enum.
type DiagnosticsStatus string

const (
	DiagnosticsIdle             DiagnosticsStatus = "Idle"
	DiagnosticsUploading        DiagnosticsStatus = "Uploading"
	DiagnosticsUploaded         DiagnosticsStatus = "Uploaded"
	DiagnosticsUploadFailed     DiagnosticsStatus = "UploadFailed"
)

var validFirmwareTransitions = map[FirmwareStatus]map[FirmwareStatus]bool{
	FirmwareIdle:           {FirmwareDownloading: true},
	FirmwareDownloading:    {FirmwareDownloaded: true, FirmwareDownloadFailed: true},
	FirmwareDownloaded:     {FirmwareInstalling: true},
	FirmwareDownloadFailed: {FirmwareDownloading: true, FirmwareIdle: true},
	FirmwareInstalling:     {FirmwareInstalled: true, FirmwareInstallationFailed: true},
	FirmwareInstalled:      {FirmwareIdle: true},
	FirmwareInstallationFailed: {FirmwareDownloading: true, FirmwareIdle: true},
}

var validDiagnosticsTransitions = map[DiagnosticsStatus]map[DiagnosticsStatus]bool{
	DiagnosticsIdle:         {DiagnosticsUploading: true},
	DiagnosticsUploading:    {DiagnosticsUploaded: true, DiagnosticsUploadFailed: true},
	DiagnosticsUploaded:     {DiagnosticsIdle: true},
	DiagnosticsUploadFailed: {DiagnosticsUploading: true, DiagnosticsIdle: true},
}

// FirmwareService tracks one in-progress (or idle) firmware update.
type FirmwareService struct {
	status FirmwareStatus
}

// NewFirmwareService creates a service starting Idle.
func NewFirmwareService() *FirmwareService {
	return &FirmwareService{status: FirmwareIdle}
}

// Status returns the current status.
func (f *FirmwareService) Status() FirmwareStatus { return f.status }

// Transition moves to next, rejecting any transition not in the state
// machine above.
func (f *FirmwareService) Transition(next FirmwareStatus) error {
	allowed, ok := validFirmwareTransitions[f.status]
	if !ok || !allowed[next] {
		return fmt.Errorf("firmware: invalid transition %s -> %s", f.status, next)
	}
	f.status = next
	return nil
}

// DiagnosticsService tracks one in-progress (or idle) diagnostics upload.
type DiagnosticsService struct {
	status DiagnosticsStatus
}

// NewDiagnosticsService creates a service starting Idle.
func NewDiagnosticsService() *DiagnosticsService {
	return &DiagnosticsService{status: DiagnosticsIdle}
}

// Status returns the current status.
func (d *DiagnosticsService) Status() DiagnosticsStatus { return d.status }

// Transition moves to next, rejecting any transition not in the state
// machine above.
func (d *DiagnosticsService) Transition(next DiagnosticsStatus) error {
	allowed, ok := validDiagnosticsTransitions[d.status]
	if !ok || !allowed[next] {
		return fmt.Errorf("firmware: invalid diagnostics transition %s -> %s", d.status, next)
	}
	d.status = next
	return nil
}
