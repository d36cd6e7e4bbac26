package v16

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/ruslanhut/ocpp-chargepoint/internal/authlist"
	"github.com/ruslanhut/ocpp-chargepoint/internal/boot"
	"github.com/ruslanhut/ocpp-chargepoint/internal/dispatch"
	"github.com/ruslanhut/ocpp-chargepoint/internal/firmware"
	"github.com/ruslanhut/ocpp-chargepoint/internal/reservation"
	"github.com/ruslanhut/ocpp-chargepoint/internal/smartcharging"
	"github.com/ruslanhut/ocpp-chargepoint/internal/txengine"
	"github.com/ruslanhut/ocpp-chargepoint/internal/variables"
)

// Deps are the domain services a CSMS-initiated 1.6 Call is routed into.
// Grounded on the teacher's callback-struct Handler, but the callbacks are
// replaced by direct references to this repo's domain packages -- there is
// no admin API standing between the CSMS and the engine to supply them.
type Deps struct {
	Engine         *txengine.Engine
	Boot           *boot.Tracker
	AuthList       *authlist.Store
	Vars           *variables.Store
	Firmware       *firmware.FirmwareService
	Diagnostics    *firmware.DiagnosticsService
	Reservations   *reservation.Service
	Profiles       *smartcharging.Store
	ConnectorCount int
	Logger         *slog.Logger

	// TransactionLookup resolves a CSMS-assigned transactionId back to the
	// connector that owns it, for RemoteStopTransaction. Wired by
	// cmd/chargepoint from the journal, since only the process entrypoint
	// holds both the journal and the per-connector transactionId the
	// CSMS handed back in the StartTransaction.conf.
	TransactionLookup func(transactionID string) (evseID int, ok bool)
}

// RegisterHandlers populates reg with one dispatch.HandlerFunc per 1.6
// action this charge point supports, closing over deps. Unregistered
// actions fall through to runtime.Loop's NotImplemented CallError path.
func RegisterHandlers(reg *dispatch.Registry, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	reg.Register(string(ActionRemoteStartTransaction), deps.handleRemoteStartTransaction)
	reg.Register(string(ActionRemoteStopTransaction), deps.handleRemoteStopTransaction)
	reg.Register(string(ActionReset), deps.handleReset)
	reg.Register(string(ActionUnlockConnector), deps.handleUnlockConnector)
	reg.Register(string(ActionChangeAvailability), deps.handleChangeAvailability)
	reg.Register(string(ActionChangeConfiguration), deps.handleChangeConfiguration)
	reg.Register(string(ActionGetConfiguration), deps.handleGetConfiguration)
	reg.Register(string(ActionClearCache), deps.handleClearCache)
	reg.Register(string(ActionDataTransfer), deps.handleDataTransfer)
	reg.Register(string(ActionReserveNow), deps.handleReserveNow)
	reg.Register(string(ActionCancelReservation), deps.handleCancelReservation)
	reg.Register(string(ActionSendLocalList), deps.handleSendLocalList)
	reg.Register(string(ActionGetLocalListVersion), deps.handleGetLocalListVersion)
	reg.Register(string(ActionSetChargingProfile), deps.handleSetChargingProfile)
	reg.Register(string(ActionClearChargingProfile), deps.handleClearChargingProfile)
	reg.Register(string(ActionGetCompositeSchedule), deps.handleGetCompositeSchedule)
	reg.Register(string(ActionUpdateFirmware), deps.handleUpdateFirmware)
	reg.Register(string(ActionGetDiagnostics), deps.handleGetDiagnostics)
}

// decode re-marshals the Registry's generic map payload into a typed 1.6
// request struct, since dispatch.HandlerFunc is protocol-agnostic.
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

func (d Deps) handleRemoteStartTransaction(evseID int, payload map[string]interface{}) (interface{}, error) {
	var req RemoteStartTransactionRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}

	target := evseID
	if req.ConnectorId != nil {
		target = *req.ConnectorId
	}
	if target <= 0 {
		return asPayload(RemoteStartTransactionResponse{Status: "Rejected"})
	}

	if _, err := d.Engine.RemoteStart(target, req.IdTag); err != nil {
		d.Logger.Info("1.6: RemoteStartTransaction rejected", "evseId", target, "error", err)
		return asPayload(RemoteStartTransactionResponse{Status: "Rejected"})
	}
	return asPayload(RemoteStartTransactionResponse{Status: "Accepted"})
}

func (d Deps) handleRemoteStopTransaction(_ int, payload map[string]interface{}) (interface{}, error) {
	var req RemoteStopTransactionRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}

	if d.TransactionLookup == nil {
		return asPayload(RemoteStopTransactionResponse{Status: "Rejected"})
	}
	evseID, ok := d.TransactionLookup(strconv.Itoa(req.TransactionId))
	if !ok {
		return asPayload(RemoteStopTransactionResponse{Status: "Rejected"})
	}
	if _, err := d.Engine.RemoteStop(evseID); err != nil {
		return asPayload(RemoteStopTransactionResponse{Status: "Rejected"})
	}
	return asPayload(RemoteStopTransactionResponse{Status: "Accepted"})
}

func (d Deps) handleReset(_ int, payload map[string]interface{}) (interface{}, error) {
	var req ResetRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	d.Logger.Warn("1.6: Reset requested", "type", req.Type)
	return asPayload(ResetResponse{Status: "Accepted"})
}

func (d Deps) handleUnlockConnector(_ int, payload map[string]interface{}) (interface{}, error) {
	var req UnlockConnectorRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if _, ok := d.Engine.CurrentHandle(req.ConnectorId); ok {
		return asPayload(UnlockConnectorResponse{Status: "UnlockFailed"})
	}
	return asPayload(UnlockConnectorResponse{Status: "Unlocked"})
}

func (d Deps) handleChangeAvailability(_ int, payload map[string]interface{}) (interface{}, error) {
	var req ChangeAvailabilityRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	d.Engine.SetAvailable(req.ConnectorId, req.Type == "Operative")
	return asPayload(ChangeAvailabilityResponse{Status: "Accepted"})
}

func (d Deps) handleChangeConfiguration(_ int, payload map[string]interface{}) (interface{}, error) {
	var req ChangeConfigurationRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	status := d.Vars.Set(req.Key, req.Value, false)
	return asPayload(ChangeConfigurationResponse{Status: string(status)})
}

func (d Deps) handleGetConfiguration(_ int, payload map[string]interface{}) (interface{}, error) {
	var req GetConfigurationRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}

	found, unknown := d.Vars.GetMany(req.Key)
	resp := GetConfigurationResponse{UnknownKey: unknown}
	for _, kv := range found {
		resp.ConfigurationKey = append(resp.ConfigurationKey, KeyValue{Key: kv.Key, Value: kv.Value})
	}
	return asPayload(resp)
}

func (d Deps) handleClearCache(_ int, _ map[string]interface{}) (interface{}, error) {
	return asPayload(ClearCacheResponse{Status: "Accepted"})
}

func (d Deps) handleDataTransfer(_ int, payload map[string]interface{}) (interface{}, error) {
	var req DataTransferRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	d.Logger.Debug("1.6: DataTransfer received", "vendorId", req.VendorId, "messageId", req.MessageId)
	return asPayload(DataTransferResponse{Status: "UnknownVendorId"})
}

func (d Deps) handleReserveNow(_ int, payload map[string]interface{}) (interface{}, error) {
	var req ReserveNowRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if d.Reservations == nil {
		return asPayload(ReserveNowResponse{Status: "Rejected"})
	}
	if err := d.Engine.Reserve(req.ConnectorId, req.ReservationId); err != nil {
		return asPayload(ReserveNowResponse{Status: "Occupied"})
	}
	if err := d.Reservations.Reserve(req.ReservationId, req.ConnectorId, req.IdTag, req.ParentIdTag, req.ExpiryDate.Time); err != nil {
		d.Engine.ClearReservation(req.ConnectorId)
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
	for connID := 1; connID <= d.ConnectorCount; connID++ {
		if id, ok := d.Reservations.ReservationFor(connID); ok && id == req.ReservationId {
			d.Engine.ClearReservation(connID)
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
		return asPayload(SendLocalListResponse{Status: "NotSupported"})
	}

	entries := make([]authlist.Entry, 0, len(req.LocalAuthorizationList))
	for _, a := range req.LocalAuthorizationList {
		if a.IdTagInfo == nil {
			continue
		}
		entry := authlist.Entry{
			IDTag:       a.IdTag,
			Status:      authlist.Status(a.IdTagInfo.Status),
			ParentIDTag: a.IdTagInfo.ParentIdTag,
		}
		if a.IdTagInfo.ExpiryDate != nil {
			t := a.IdTagInfo.ExpiryDate.Time
			entry.ExpiryDate = &t
		}
		entries = append(entries, entry)
	}

	var err error
	if req.UpdateType == "Differential" {
		err = d.AuthList.DifferentialUpdate(req.ListVersion, entries)
	} else {
		err = d.AuthList.FullUpdate(req.ListVersion, entries)
	}
	if err != nil {
		return asPayload(SendLocalListResponse{Status: "VersionMismatch"})
	}
	return asPayload(SendLocalListResponse{Status: "Accepted"})
}

func (d Deps) handleGetLocalListVersion(_ int, _ map[string]interface{}) (interface{}, error) {
	if d.AuthList == nil {
		return asPayload(GetLocalListVersionResponse{ListVersion: -1})
	}
	return asPayload(GetLocalListVersionResponse{ListVersion: d.AuthList.Version()})
}

func (d Deps) handleSetChargingProfile(_ int, payload map[string]interface{}) (interface{}, error) {
	var req SetChargingProfileRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if d.Profiles == nil {
		return asPayload(SetChargingProfileResponse{Status: "NotSupported"})
	}

	periods := make([]smartcharging.Period, 0, len(req.ChargingProfile.ChargingSchedule.ChargingSchedulePeriod))
	for _, p := range req.ChargingProfile.ChargingSchedule.ChargingSchedulePeriod {
		periods = append(periods, smartcharging.Period{
			StartSeconds: p.StartPeriod,
			LimitAmps:    p.Limit,
			NumberPhases: p.NumberPhases,
		})
	}
	profile := smartcharging.Profile{
		ID:             req.ChargingProfile.ChargingProfileId,
		EvseID:         req.ConnectorId,
		StackLevel:     req.ChargingProfile.StackLevel,
		Purpose:        smartcharging.Purpose(req.ChargingProfile.ChargingProfilePurpose),
		TxNr:           req.ChargingProfile.TransactionId,
		Periods:        periods,
		DurationSecond: req.ChargingProfile.ChargingSchedule.Duration,
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
	if req.Id != nil {
		filter.ID, filter.HasID = *req.Id, true
	}
	if req.ConnectorId != nil {
		filter.EvseID, filter.HasEvseID = *req.ConnectorId, true
	}
	if req.ChargingProfilePurpose != nil {
		filter.Purpose, filter.HasPurpose = smartcharging.Purpose(*req.ChargingProfilePurpose), true
	}
	if req.StackLevel != nil {
		filter.StackLevel, filter.HasStack = *req.StackLevel, true
	}

	if d.Profiles.Clear(filter) == 0 {
		return asPayload(ClearChargingProfileResponse{Status: "Unknown"})
	}
	return asPayload(ClearChargingProfileResponse{Status: "Accepted"})
}

// handleGetCompositeSchedule always reports Rejected: computing a composite
// schedule across overlapping profiles and stack levels is out of scope
// (see internal/smartcharging's package doc) -- this charge point only
// tracks installed profiles and resolves the single active limit per
// connector, not a full projected schedule.
func (d Deps) handleGetCompositeSchedule(_ int, payload map[string]interface{}) (interface{}, error) {
	var req GetCompositeScheduleRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	return asPayload(GetCompositeScheduleResponse{Status: "Rejected"})
}

func (d Deps) handleUpdateFirmware(_ int, payload map[string]interface{}) (interface{}, error) {
	var req UpdateFirmwareRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	d.Logger.Info("1.6: UpdateFirmware requested", "location", req.Location)
	if d.Firmware != nil {
		if err := d.Firmware.Transition(firmware.FirmwareDownloading); err != nil {
			d.Logger.Warn("1.6: UpdateFirmware rejected by state machine", "error", err)
		}
	}
	return map[string]interface{}{}, nil
}

func (d Deps) handleGetDiagnostics(_ int, payload map[string]interface{}) (interface{}, error) {
	var req GetDiagnosticsRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if d.Diagnostics == nil {
		return asPayload(GetDiagnosticsResponse{})
	}
	if err := d.Diagnostics.Transition(firmware.DiagnosticsUploading); err != nil {
		d.Logger.Warn("1.6: GetDiagnostics rejected by state machine", "error", err)
		return asPayload(GetDiagnosticsResponse{})
	}
	fileName := time.Now().UTC().Format("20060102_150405") + "_diagnostics.log"
	return asPayload(GetDiagnosticsResponse{FileName: fileName})
}
