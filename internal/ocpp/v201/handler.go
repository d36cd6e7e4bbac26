package v201

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruslanhut/ocpp-chargepoint/internal/authlist"
	"github.com/ruslanhut/ocpp-chargepoint/internal/certstore"
	"github.com/ruslanhut/ocpp-chargepoint/internal/dispatch"
	"github.com/ruslanhut/ocpp-chargepoint/internal/firmware"
	"github.com/ruslanhut/ocpp-chargepoint/internal/reservation"
	"github.com/ruslanhut/ocpp-chargepoint/internal/smartcharging"
	"github.com/ruslanhut/ocpp-chargepoint/internal/txengine"
	"github.com/ruslanhut/ocpp-chargepoint/internal/variables"
)

// Deps are the domain services a CSMS-initiated 2.0.1 Call is routed into.
// Mirrors v16's Deps/RegisterHandlers shape -- the two protocol packages
// share the same dispatch.Registry, just with different wire structs.
type Deps struct {
	Engine *txengine.Engine
	Vars   *variables.Store
	Certs  *certstore.Store
	Queue  *dispatch.Queue
	Logger *slog.Logger

	AuthList       *authlist.Store
	Reservations   *reservation.Service
	Profiles       *smartcharging.Store
	Firmware       *firmware.FirmwareService
	Diagnostics    *firmware.DiagnosticsService
	ConnectorCount int

	// TransactionLookup resolves a CSMS-known transactionId back to the
	// EVSE that owns it, for RequestStopTransaction and
	// GetTransactionStatus. Wired by cmd/chargepoint from the journal.
	TransactionLookup func(transactionID string) (evseID int, ok bool)
}

// RegisterHandlers populates reg with one dispatch.HandlerFunc per 2.0.1
// action this charge point supports, closing over deps.
func RegisterHandlers(reg *dispatch.Registry, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	reg.Register(string(ActionRequestStartTransaction), deps.handleRequestStartTransaction)
	reg.Register(string(ActionRequestStopTransaction), deps.handleRequestStopTransaction)
	reg.Register(string(ActionGetTransactionStatus), deps.handleGetTransactionStatus)
	reg.Register(string(ActionReset), deps.handleReset)
	reg.Register(string(ActionGetVariables), deps.handleGetVariables)
	reg.Register(string(ActionSetVariables), deps.handleSetVariables)
	reg.Register(string(ActionChangeAvailability), deps.handleChangeAvailability)
	reg.Register(string(ActionUnlockConnector), deps.handleUnlockConnector)
	reg.Register(string(ActionClearCache), deps.handleClearCache)
	reg.Register(string(ActionDataTransfer), deps.handleDataTransfer)
	reg.Register(string(ActionTriggerMessage), deps.handleTriggerMessage)

	reg.Register(string(ActionCertificateSigned), deps.handleCertificateSigned)
	reg.Register(string(ActionDeleteCertificate), deps.handleDeleteCertificate)
	reg.Register(string(ActionGetInstalledCertificateIds), deps.handleGetInstalledCertificateIds)
	reg.Register(string(ActionInstallCertificate), deps.handleInstallCertificate)

	reg.Register(string(ActionReserveNow), deps.handleReserveNow)
	reg.Register(string(ActionCancelReservation), deps.handleCancelReservation)
	reg.Register(string(ActionSendLocalList), deps.handleSendLocalList)
	reg.Register(string(ActionGetLocalListVersion), deps.handleGetLocalListVersion)
	reg.Register(string(ActionSetChargingProfile), deps.handleSetChargingProfile)
	reg.Register(string(ActionClearChargingProfile), deps.handleClearChargingProfile)
	reg.Register(string(ActionUpdateFirmware), deps.handleUpdateFirmware)
	reg.Register(string(ActionGetLog), deps.handleGetLog)
}

func decode(payload map[string]interface{}, v interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func asPayload(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// transactionID derives the transactionId this charge point reports back
// to the CSMS from a TxHandle -- evse and sequence number are enough to
// make it unique for the lifetime of the journal.
func transactionID(h txengine.TxHandle) string {
	return fmt.Sprintf("%d-%d", h.EvseID, h.TxNr)
}

func statusInfo(reason string) *StatusInfo {
	return &StatusInfo{ReasonCode: reason}
}

func (d Deps) handleRequestStartTransaction(evseID int, payload map[string]interface{}) (interface{}, error) {
	var req RequestStartTransactionRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}

	target := evseID
	if req.EvseId != nil {
		target = *req.EvseId
	}
	if target <= 0 {
		return asPayload(RequestStartTransactionResponse{Status: "Rejected", StatusInfo: statusInfo("NoEvseSpecified")})
	}

	h, err := d.Engine.RemoteStart(target, req.IdToken.IdToken)
	if err != nil {
		d.Logger.Info("2.0.1: RequestStartTransaction rejected", "evseId", target, "error", err)
		return asPayload(RequestStartTransactionResponse{Status: "Rejected"})
	}
	return asPayload(RequestStartTransactionResponse{
		Status:        "Accepted",
		TransactionId: transactionID(h),
	})
}

func (d Deps) handleRequestStopTransaction(_ int, payload map[string]interface{}) (interface{}, error) {
	var req RequestStopTransactionRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}

	if d.TransactionLookup == nil {
		return asPayload(RequestStopTransactionResponse{Status: "Rejected"})
	}
	evseID, ok := d.TransactionLookup(req.TransactionId)
	if !ok {
		return asPayload(RequestStopTransactionResponse{Status: "Rejected"})
	}
	if _, err := d.Engine.RemoteStop(evseID); err != nil {
		return asPayload(RequestStopTransactionResponse{Status: "Rejected"})
	}
	return asPayload(RequestStopTransactionResponse{Status: "Accepted"})
}

func (d Deps) handleGetTransactionStatus(_ int, payload map[string]interface{}) (interface{}, error) {
	var req GetTransactionStatusRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}

	resp := GetTransactionStatusResponse{}
	if req.TransactionId != "" && d.TransactionLookup != nil {
		evseID, ok := d.TransactionLookup(req.TransactionId)
		ongoing := false
		if ok {
			_, ongoing = d.Engine.CurrentHandle(evseID)
		}
		resp.OngoingIndicator = &ongoing
		if d.Queue != nil {
			resp.MessagesInQueue = d.Queue.Len(evseID) > 0
		}
	}
	return asPayload(resp)
}

func (d Deps) handleReset(_ int, payload map[string]interface{}) (interface{}, error) {
	var req ResetRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	d.Logger.Warn("2.0.1: Reset requested", "type", req.Type, "evseId", req.EvseId)
	return asPayload(ResetResponse{Status: ResetStatusAccepted})
}

// setVariableStatus maps a variables.Status to the narrower 2.0.1
// SetVariables status enum, which has no direct ReadOnly value.
func setVariableStatus(s variables.Status) SetVariableStatusType {
	switch s {
	case variables.StatusAccepted:
		return SetVariableStatusAccepted
	case variables.StatusRebootRequired:
		return SetVariableStatusRebootRequired
	case variables.StatusUnknownVariable:
		return SetVariableStatusUnknownVariable
	case variables.StatusReadOnly:
		return SetVariableStatusRejected
	default:
		return SetVariableStatusRejected
	}
}

func (d Deps) handleSetVariables(_ int, payload map[string]interface{}) (interface{}, error) {
	var req SetVariablesRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}

	resp := SetVariablesResponse{}
	for _, item := range req.SetVariableData {
		status := d.Vars.Set(item.Variable.Name, item.AttributeValue, true)
		resp.SetVariableResult = append(resp.SetVariableResult, SetVariableResult{
			AttributeType:   item.AttributeType,
			AttributeStatus: setVariableStatus(status),
			Component:       item.Component,
			Variable:        item.Variable,
		})
	}
	return asPayload(resp)
}

func (d Deps) handleGetVariables(_ int, payload map[string]interface{}) (interface{}, error) {
	var req GetVariablesRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}

	resp := GetVariablesResponse{}
	for _, item := range req.GetVariableData {
		value, ok := d.Vars.Get(item.Variable.Name)
		result := GetVariableResult{
			AttributeType: item.AttributeType,
			Component:     item.Component,
			Variable:      item.Variable,
		}
		if !ok {
			result.AttributeStatus = GetVariableStatusUnknownVariable
		} else {
			result.AttributeStatus = GetVariableStatusAccepted
			result.AttributeValue = value
		}
		resp.GetVariableResult = append(resp.GetVariableResult, result)
	}
	return asPayload(resp)
}

func (d Deps) handleChangeAvailability(_ int, payload map[string]interface{}) (interface{}, error) {
	var req ChangeAvailabilityRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if req.EVSE != nil {
		d.Engine.SetAvailable(req.EVSE.ID, req.OperationalStatus == "Operative")
	}
	return asPayload(ChangeAvailabilityResponse{Status: "Accepted"})
}

func (d Deps) handleUnlockConnector(_ int, payload map[string]interface{}) (interface{}, error) {
	var req UnlockConnectorRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if _, ok := d.Engine.CurrentHandle(req.EvseId); ok {
		return asPayload(UnlockConnectorResponse{Status: "UnlockFailed"})
	}
	return asPayload(UnlockConnectorResponse{Status: "Unlocked"})
}

func (d Deps) handleClearCache(_ int, _ map[string]interface{}) (interface{}, error) {
	return asPayload(ClearCacheResponse{Status: "Accepted"})
}

func (d Deps) handleDataTransfer(_ int, payload map[string]interface{}) (interface{}, error) {
	var req DataTransferRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	d.Logger.Debug("2.0.1: DataTransfer received", "vendorId", req.VendorId, "messageId", req.MessageId)
	return asPayload(DataTransferResponse{Status: DataTransferStatusUnknownVendorId})
}

// handleTriggerMessage reports NotImplemented rather than claiming a
// resend it can't perform: there is no store-and-resend path for prior
// messages wired up here.
func (d Deps) handleTriggerMessage(_ int, payload map[string]interface{}) (interface{}, error) {
	var req TriggerMessageRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	d.Logger.Info("2.0.1: TriggerMessage requested", "message", req.RequestedMessage)
	return asPayload(TriggerMessageResponse{Status: "NotImplemented"})
}

func (d Deps) handleCertificateSigned(_ int, payload map[string]interface{}) (interface{}, error) {
	var req CertificateSignedRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	use := certstore.UseChargingStationChain
	if _, status, err := d.Certs.Install(use, req.CertificateChain); err == nil && status == certstore.InstallAccepted {
		return asPayload(CertificateSignedResponse{Status: "Accepted"})
	}
	return asPayload(CertificateSignedResponse{Status: "Rejected"})
}

// deleteCertificateHashKey maps the protocol's CertificateHashDataType onto
// this store's plain content-hash key. certstore indexes PEM blobs by their
// own SHA-256 digest rather than by issuer name/key hash pairs, so the
// CSMS's SerialNumber field is treated as that digest -- a documented
// simplification (see DESIGN.md), consistent with GetVariables/SetVariables
// only matching on Variable.Name.
func deleteCertificateHashKey(h CertificateHashDataType) string {
	return h.SerialNumber
}

func (d Deps) handleDeleteCertificate(_ int, payload map[string]interface{}) (interface{}, error) {
	var req DeleteCertificateRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	status := d.Certs.Delete(deleteCertificateHashKey(req.CertificateHashData))
	return asPayload(DeleteCertificateResponse{Status: string(status)})
}

func (d Deps) handleGetInstalledCertificateIds(_ int, payload map[string]interface{}) (interface{}, error) {
	var req GetInstalledCertificateIdsRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}

	var use certstore.CertificateUse
	if len(req.CertificateType) == 1 {
		use = certstore.CertificateUse(req.CertificateType[0])
	}
	certs := d.Certs.List(use)
	resp := GetInstalledCertificateIdsResponse{Status: "NotFound"}
	for _, c := range certs {
		resp.Status = "Accepted"
		resp.CertificateHashDataChain = append(resp.CertificateHashDataChain, CertificateHashDataChainType{
			CertificateType:     string(c.Use),
			CertificateHashData: CertificateHashDataType{HashAlgorithm: "SHA256", SerialNumber: c.HashSHA256},
		})
	}
	return asPayload(resp)
}

func (d Deps) handleInstallCertificate(_ int, payload map[string]interface{}) (interface{}, error) {
	var req InstallCertificateRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	_, status, err := d.Certs.Install(certstore.CertificateUse(req.CertificateType), req.Certificate)
	if err != nil {
		return asPayload(InstallCertificateResponse{Status: "Failed"})
	}
	return asPayload(InstallCertificateResponse{Status: string(status)})
}

func (d Deps) handleReserveNow(evseID int, payload map[string]interface{}) (interface{}, error) {
	var req ReserveNowRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	target := evseID
	if req.EvseId != nil {
		target = *req.EvseId
	}
	if d.Reservations == nil || target <= 0 {
		return asPayload(ReserveNowResponse{Status: "Rejected"})
	}
	if err := d.Engine.Reserve(target, req.Id); err != nil {
		return asPayload(ReserveNowResponse{Status: "Occupied"})
	}
	if err := d.Reservations.Reserve(req.Id, target, req.IdToken.IdToken, "", req.ExpiryDateTime.Time); err != nil {
		d.Engine.ClearReservation(target)
		return asPayload(ReserveNowResponse{Status: "Rejected"})
	}
	return asPayload(ReserveNowResponse{Status: "Accepted"})
}

func (d Deps) handleCancelReservation(_ int, payload map[string]interface{}) (interface{}, error) {
	var req CancelReservationRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if d.Reservations == nil {
		return asPayload(CancelReservationResponse{Status: "Rejected"})
	}
	for evseID := 1; evseID <= d.ConnectorCount; evseID++ {
		if id, ok := d.Reservations.ReservationFor(evseID); ok && id == req.ReservationId {
			d.Engine.ClearReservation(evseID)
		}
	}
	if !d.Reservations.Cancel(req.ReservationId) {
		return asPayload(CancelReservationResponse{Status: "Rejected"})
	}
	return asPayload(CancelReservationResponse{Status: "Accepted"})
}

func (d Deps) handleSendLocalList(_ int, payload map[string]interface{}) (interface{}, error) {
	var req SendLocalListRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if d.AuthList == nil {
		return asPayload(SendLocalListResponse{Status: "Failed"})
	}

	entries := make([]authlist.Entry, 0, len(req.LocalAuthorizationList))
	for _, a := range req.LocalAuthorizationList {
		if a.IdTokenInfo == nil {
			continue
		}
		entry := authlist.Entry{
			IDTag:  a.IdToken.IdToken,
			Status: authlist.Status(a.IdTokenInfo.Status),
		}
		if a.IdTokenInfo.GroupIdToken != nil {
			entry.ParentIDTag = a.IdTokenInfo.GroupIdToken.IdToken
		}
		if a.IdTokenInfo.CacheExpiryDateTime != nil {
			t := a.IdTokenInfo.CacheExpiryDateTime.Time
			entry.ExpiryDate = &t
		}
		entries = append(entries, entry)
	}

	var err error
	if req.UpdateType == "Differential" {
		err = d.AuthList.DifferentialUpdate(req.VersionNumber, entries)
	} else {
		err = d.AuthList.FullUpdate(req.VersionNumber, entries)
	}
	if err != nil {
		return asPayload(SendLocalListResponse{Status: "VersionMismatch"})
	}
	return asPayload(SendLocalListResponse{Status: "Accepted"})
}

func (d Deps) handleGetLocalListVersion(_ int, _ map[string]interface{}) (interface{}, error) {
	if d.AuthList == nil {
		return asPayload(GetLocalListVersionResponse{VersionNumber: -1})
	}
	return asPayload(GetLocalListVersionResponse{VersionNumber: d.AuthList.Version()})
}

func (d Deps) handleSetChargingProfile(_ int, payload map[string]interface{}) (interface{}, error) {
	var req SetChargingProfileRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if d.Profiles == nil || len(req.ChargingProfile.ChargingSchedule) == 0 {
		return asPayload(SetChargingProfileResponse{Status: "Rejected"})
	}

	schedule := req.ChargingProfile.ChargingSchedule[0]
	periods := make([]smartcharging.Period, 0, len(schedule.ChargingSchedulePeriod))
	for _, p := range schedule.ChargingSchedulePeriod {
		phases := 0
		if p.NumberPhases != nil {
			phases = *p.NumberPhases
		}
		periods = append(periods, smartcharging.Period{
			StartSeconds: p.StartPeriod,
			LimitAmps:    p.Limit,
			NumberPhases: phases,
		})
	}
	profile := smartcharging.Profile{
		ID:         req.ChargingProfile.Id,
		EvseID:     req.EvseId,
		StackLevel: req.ChargingProfile.StackLevel,
		Purpose:    smartcharging.Purpose(req.ChargingProfile.ChargingProfilePurpose),
		Periods:    periods,
	}
	if schedule.Duration != nil {
		profile.DurationSecond = *schedule.Duration
	}
	if req.ChargingProfile.ValidFrom != nil {
		profile.ValidFrom = req.ChargingProfile.ValidFrom.Time
	}
	if req.ChargingProfile.ValidTo != nil {
		profile.ValidTo = req.ChargingProfile.ValidTo.Time
	}

	if err := d.Profiles.Set(profile); err != nil {
		return asPayload(SetChargingProfileResponse{Status: "Rejected"})
	}
	return asPayload(SetChargingProfileResponse{Status: "Accepted"})
}

func (d Deps) handleClearChargingProfile(_ int, payload map[string]interface{}) (interface{}, error) {
	var req ClearChargingProfileRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if d.Profiles == nil {
		return asPayload(ClearChargingProfileResponse{Status: "Unknown"})
	}

	filter := smartcharging.ClearFilter{}
	if req.ChargingProfileId != nil {
		filter.ID, filter.HasID = *req.ChargingProfileId, true
	}
	if req.ChargingProfileCriteria != nil {
		c := req.ChargingProfileCriteria
		if c.EvseId != nil {
			filter.EvseID, filter.HasEvseID = *c.EvseId, true
		}
		if c.ChargingProfilePurpose != nil {
			filter.Purpose, filter.HasPurpose = smartcharging.Purpose(*c.ChargingProfilePurpose), true
		}
		if c.StackLevel != nil {
			filter.StackLevel, filter.HasStack = *c.StackLevel, true
		}
	}

	if d.Profiles.Clear(filter) == 0 {
		return asPayload(ClearChargingProfileResponse{Status: "Unknown"})
	}
	return asPayload(ClearChargingProfileResponse{Status: "Accepted"})
}

func (d Deps) handleUpdateFirmware(_ int, payload map[string]interface{}) (interface{}, error) {
	var req UpdateFirmwareRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	d.Logger.Info("2.0.1: UpdateFirmware requested", "location", req.Firmware.Location)
	if d.Firmware != nil {
		if err := d.Firmware.Transition(firmware.FirmwareDownloading); err != nil {
			d.Logger.Warn("2.0.1: UpdateFirmware rejected by state machine", "error", err)
			return asPayload(UpdateFirmwareResponse{Status: "Rejected"})
		}
	}
	return asPayload(UpdateFirmwareResponse{Status: "Accepted"})
}

func (d Deps) handleGetLog(_ int, payload map[string]interface{}) (interface{}, error) {
	var req GetLogRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if d.Diagnostics == nil {
		return asPayload(GetLogResponse{Status: "Rejected"})
	}
	if err := d.Diagnostics.Transition(firmware.DiagnosticsUploading); err != nil {
		d.Logger.Warn("2.0.1: GetLog rejected by state machine", "error", err)
		return asPayload(GetLogResponse{Status: "Rejected"})
	}
	fileName := time.Now().UTC().Format("20060102_150405") + "_" + req.LogType + ".log"
	return asPayload(GetLogResponse{Status: "Accepted", Filename: fileName})
}
