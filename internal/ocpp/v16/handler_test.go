package v16

import (
	"testing"
	"time"

	"github.com/ruslanhut/ocpp-chargepoint/internal/clockwork"
	"github.com/ruslanhut/ocpp-chargepoint/internal/dispatch"
	"github.com/ruslanhut/ocpp-chargepoint/internal/journal"
	"github.com/ruslanhut/ocpp-chargepoint/internal/metering"
	"github.com/ruslanhut/ocpp-chargepoint/internal/persistence"
	"github.com/ruslanhut/ocpp-chargepoint/internal/reservation"
	"github.com/ruslanhut/ocpp-chargepoint/internal/smartcharging"
	"github.com/ruslanhut/ocpp-chargepoint/internal/txengine"
	"github.com/ruslanhut/ocpp-chargepoint/internal/variables"
)

func newTestEngine(t *testing.T) *txengine.Engine {
	t.Helper()
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	j := journal.New(fs, journal.DefaultCapacity)
	vars := variables.New(nil, "")
	variables.Declare1_6(vars)
	clock := clockwork.NewReal()
	sampler := metering.New(vars, nil)
	e := txengine.New(j, vars, clock, sampler)
	e.RegisterConnector(1)
	// No Authorizer is wired in these handler-level tests; enable free vend
	// so RemoteStart's authorizeSubflow has a path to accept offline.
	vars.Set("FreeVendActive", "true", false)
	return e
}

func TestRegisterHandlersWiresRemoteStartTransaction(t *testing.T) {
	reg := dispatch.NewRegistry()
	deps := Deps{Engine: newTestEngine(t), Vars: variables.New(nil, ""), ConnectorCount: 1}
	variables.Declare1_6(deps.Vars)
	RegisterHandlers(reg, deps)

	h, ok := reg.Lookup(string(ActionRemoteStartTransaction))
	if !ok {
		t.Fatal("RemoteStartTransaction not registered")
	}

	connID := 1
	payload := map[string]interface{}{"connectorId": float64(connID), "idTag": "TAG123"}
	result, err := h(0, payload)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	resp, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map result, got %T", result)
	}
	if resp["status"] != "Accepted" {
		t.Fatalf("status = %v, want Accepted", resp["status"])
	}
}

func TestRegisterHandlersWiresChangeConfiguration(t *testing.T) {
	reg := dispatch.NewRegistry()
	vars := variables.New(nil, "")
	variables.Declare1_6(vars)
	deps := Deps{Engine: newTestEngine(t), Vars: vars, ConnectorCount: 1}
	RegisterHandlers(reg, deps)

	h, _ := reg.Lookup(string(ActionChangeConfiguration))
	result, err := h(0, map[string]interface{}{"key": "HeartbeatInterval", "value": "120"})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	resp := result.(map[string]interface{})
	if resp["status"] != "Accepted" {
		t.Fatalf("status = %v, want Accepted", resp["status"])
	}
	if v, _ := vars.Get("HeartbeatInterval"); v != "120" {
		t.Fatalf("HeartbeatInterval = %q, want 120", v)
	}
}

func TestRegisterHandlersWiresGetConfiguration(t *testing.T) {
	reg := dispatch.NewRegistry()
	vars := variables.New(nil, "")
	variables.Declare1_6(vars)
	deps := Deps{Engine: newTestEngine(t), Vars: vars, ConnectorCount: 1}
	RegisterHandlers(reg, deps)

	h, _ := reg.Lookup(string(ActionGetConfiguration))
	result, err := h(0, map[string]interface{}{"key": []interface{}{"HeartbeatInterval", "NoSuchKey"}})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	resp := result.(map[string]interface{})
	unknown, _ := resp["unknownKey"].([]interface{})
	if len(unknown) != 1 || unknown[0] != "NoSuchKey" {
		t.Fatalf("unknownKey = %v", resp["unknownKey"])
	}
}

func TestRegisterHandlersRejectsRemoteStopWithoutLookup(t *testing.T) {
	reg := dispatch.NewRegistry()
	deps := Deps{Engine: newTestEngine(t), Vars: variables.New(nil, ""), ConnectorCount: 1}
	RegisterHandlers(reg, deps)

	h, _ := reg.Lookup(string(ActionRemoteStopTransaction))
	result, err := h(0, map[string]interface{}{"transactionId": float64(7)})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	resp := result.(map[string]interface{})
	if resp["status"] != "Rejected" {
		t.Fatalf("status = %v, want Rejected without a TransactionLookup wired", resp["status"])
	}
}

func newTestReservations(t *testing.T) *reservation.Service {
	t.Helper()
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	svc := reservation.New(fs)
	if err := svc.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return svc
}

func newTestProfiles(t *testing.T) *smartcharging.Store {
	t.Helper()
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	store := smartcharging.New(fs)
	if err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return store
}

func TestRegisterHandlersWiresReserveNowAndCancel(t *testing.T) {
	reg := dispatch.NewRegistry()
	deps := Deps{
		Engine:         newTestEngine(t),
		Vars:           variables.New(nil, ""),
		Reservations:   newTestReservations(t),
		ConnectorCount: 1,
	}
	RegisterHandlers(reg, deps)

	reserve, _ := reg.Lookup(string(ActionReserveNow))
	result, err := reserve(0, map[string]interface{}{
		"connectorId":   float64(1),
		"reservationId": float64(42),
		"idTag":         "TAG123",
		"expiryDate":    time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if resp := result.(map[string]interface{}); resp["status"] != "Accepted" {
		t.Fatalf("ReserveNow status = %v, want Accepted", resp["status"])
	}

	cancel, _ := reg.Lookup(string(ActionCancelReservation))
	result, err = cancel(0, map[string]interface{}{"reservationId": float64(42)})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if resp := result.(map[string]interface{}); resp["status"] != "Accepted" {
		t.Fatalf("CancelReservation status = %v, want Accepted", resp["status"])
	}
}

func TestRegisterHandlersWiresSetAndClearChargingProfile(t *testing.T) {
	reg := dispatch.NewRegistry()
	deps := Deps{
		Engine:         newTestEngine(t),
		Vars:           variables.New(nil, ""),
		Profiles:       newTestProfiles(t),
		ConnectorCount: 1,
	}
	RegisterHandlers(reg, deps)

	set, _ := reg.Lookup(string(ActionSetChargingProfile))
	result, err := set(0, map[string]interface{}{
		"connectorId": float64(1),
		"csChargingProfiles": map[string]interface{}{
			"chargingProfileId":      float64(1),
			"stackLevel":             float64(0),
			"chargingProfilePurpose": "TxDefaultProfile",
			"chargingProfileKind":    "Absolute",
			"chargingSchedule": map[string]interface{}{
				"chargingSchedulePeriod": []interface{}{
					map[string]interface{}{"startPeriod": float64(0), "limit": float64(16)},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if resp := result.(map[string]interface{}); resp["status"] != "Accepted" {
		t.Fatalf("SetChargingProfile status = %v, want Accepted", resp["status"])
	}

	clear, _ := reg.Lookup(string(ActionClearChargingProfile))
	result, err = clear(0, map[string]interface{}{"id": float64(1)})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if resp := result.(map[string]interface{}); resp["status"] != "Accepted" {
		t.Fatalf("ClearChargingProfile status = %v, want Accepted", resp["status"])
	}
}

func TestRegisterHandlersRejectsSendLocalListWithoutStore(t *testing.T) {
	reg := dispatch.NewRegistry()
	deps := Deps{Engine: newTestEngine(t), Vars: variables.New(nil, ""), ConnectorCount: 1}
	RegisterHandlers(reg, deps)

	h, _ := reg.Lookup(string(ActionSendLocalList))
	result, err := h(0, map[string]interface{}{"listVersion": float64(1), "updateType": "Full"})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if resp := result.(map[string]interface{}); resp["status"] != "NotSupported" {
		t.Fatalf("SendLocalList status = %v, want NotSupported without an AuthList store", resp["status"])
	}
}
