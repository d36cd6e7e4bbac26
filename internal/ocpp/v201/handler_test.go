package v201

import (
	"testing"
	"time"

	"github.com/ruslanhut/ocpp-chargepoint/internal/certstore"
	"github.com/ruslanhut/ocpp-chargepoint/internal/clockwork"
	"github.com/ruslanhut/ocpp-chargepoint/internal/dispatch"
	"github.com/ruslanhut/ocpp-chargepoint/internal/journal"
	"github.com/ruslanhut/ocpp-chargepoint/internal/metering"
	"github.com/ruslanhut/ocpp-chargepoint/internal/persistence"
	"github.com/ruslanhut/ocpp-chargepoint/internal/reservation"
	"github.com/ruslanhut/ocpp-chargepoint/internal/txengine"
	"github.com/ruslanhut/ocpp-chargepoint/internal/variables"
)

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	j := journal.New(fs, journal.DefaultCapacity)
	vars := variables.New(nil, "")
	variables.Declare2_0_1(vars)
	clock := clockwork.NewReal()
	sampler := metering.New(vars, nil)
	e := txengine.New(j, vars, clock, sampler)
	e.RegisterConnector(1)
	// No Authorizer is wired in these handler-level tests; enable free
	// vend so RequestStartTransaction's authorizeSubflow has a path to
	// accept offline.
	vars.Set("FreeVendActive", "true", false)

	certs := certstore.New(fs)
	return Deps{Engine: e, Vars: vars, Certs: certs, Queue: dispatch.New(), ConnectorCount: 1}
}

func TestRegisterHandlersWiresReserveNowAndCancel(t *testing.T) {
	reg := dispatch.NewRegistry()
	deps := newTestDeps(t)
	fs, err := persistence.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	deps.Reservations = reservation.New(fs)
	if err := deps.Reservations.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	RegisterHandlers(reg, deps)

	reserve, _ := reg.Lookup(string(ActionReserveNow))
	result, err := reserve(0, map[string]interface{}{
		"id":             float64(42),
		"evseId":         float64(1),
		"idToken":        map[string]interface{}{"idToken": "TAG123", "type": "Central"},
		"expiryDateTime": time.Now().Add(time.Hour).Format(time.RFC3339),
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

func TestRegisterHandlersRejectsSendLocalListWithoutStore(t *testing.T) {
	reg := dispatch.NewRegistry()
	RegisterHandlers(reg, newTestDeps(t))

	h, _ := reg.Lookup(string(ActionSendLocalList))
	result, err := h(0, map[string]interface{}{"versionNumber": float64(1), "updateType": "Full"})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if resp := result.(map[string]interface{}); resp["status"] != "Failed" {
		t.Fatalf("SendLocalList status = %v, want Failed without an AuthList store", resp["status"])
	}
}

func TestRegisterHandlersWiresGetLocalListVersion(t *testing.T) {
	reg := dispatch.NewRegistry()
	RegisterHandlers(reg, newTestDeps(t))

	h, _ := reg.Lookup(string(ActionGetLocalListVersion))
	result, err := h(0, map[string]interface{}{})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if resp := result.(map[string]interface{}); resp["versionNumber"] != float64(-1) {
		t.Fatalf("versionNumber = %v, want -1 without an AuthList store", resp["versionNumber"])
	}
}

func TestRegisterHandlersWiresRequestStartTransaction(t *testing.T) {
	reg := dispatch.NewRegistry()
	RegisterHandlers(reg, newTestDeps(t))

	h, ok := reg.Lookup(string(ActionRequestStartTransaction))
	if !ok {
		t.Fatal("RequestStartTransaction not registered")
	}

	evseID := 1
	payload := map[string]interface{}{
		"idToken":       map[string]interface{}{"idToken": "TAG123", "type": "Central"},
		"remoteStartId": float64(1),
		"evseId":        float64(evseID),
	}
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
	if resp["transactionId"] == "" || resp["transactionId"] == nil {
		t.Fatal("expected a non-empty transactionId")
	}
}

func TestRegisterHandlersWiresSetAndGetVariables(t *testing.T) {
	reg := dispatch.NewRegistry()
	RegisterHandlers(reg, newTestDeps(t))

	setH, _ := reg.Lookup(string(ActionSetVariables))
	setPayload := map[string]interface{}{
		"setVariableData": []interface{}{
			map[string]interface{}{
				"attributeValue": "120",
				"component":      map[string]interface{}{"name": "OCPPCommCtrlr"},
				"variable":       map[string]interface{}{"name": "HeartbeatInterval"},
			},
		},
	}
	result, err := setH(0, setPayload)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	setResp := result.(map[string]interface{})
	results := setResp["setVariableResult"].([]interface{})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	first := results[0].(map[string]interface{})
	if first["attributeStatus"] != "Accepted" {
		t.Fatalf("attributeStatus = %v, want Accepted", first["attributeStatus"])
	}

	getH, _ := reg.Lookup(string(ActionGetVariables))
	getPayload := map[string]interface{}{
		"getVariableData": []interface{}{
			map[string]interface{}{
				"component": map[string]interface{}{"name": "OCPPCommCtrlr"},
				"variable":  map[string]interface{}{"name": "HeartbeatInterval"},
			},
		},
	}
	result, err = getH(0, getPayload)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	getResp := result.(map[string]interface{})
	getResults := getResp["getVariableResult"].([]interface{})
	got := getResults[0].(map[string]interface{})
	if got["attributeValue"] != "120" {
		t.Fatalf("attributeValue = %v, want 120", got["attributeValue"])
	}
}

func TestRegisterHandlersInstallAndGetInstalledCertificateIds(t *testing.T) {
	reg := dispatch.NewRegistry()
	RegisterHandlers(reg, newTestDeps(t))

	installH, _ := reg.Lookup(string(ActionInstallCertificate))
	result, err := installH(0, map[string]interface{}{
		"certificateType": "CSMSRootCertificate",
		"certificate":     "-----BEGIN CERTIFICATE-----\nfake\n-----END CERTIFICATE-----",
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.(map[string]interface{})["status"] != "Accepted" {
		t.Fatalf("install status = %v, want Accepted", result.(map[string]interface{})["status"])
	}

	listH, _ := reg.Lookup(string(ActionGetInstalledCertificateIds))
	result, err = listH(0, map[string]interface{}{})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	resp := result.(map[string]interface{})
	if resp["status"] != "Accepted" {
		t.Fatalf("list status = %v, want Accepted", resp["status"])
	}
}

func TestRegisterHandlersRejectsRequestStopWithoutLookup(t *testing.T) {
	reg := dispatch.NewRegistry()
	RegisterHandlers(reg, newTestDeps(t))

	h, _ := reg.Lookup(string(ActionRequestStopTransaction))
	result, err := h(0, map[string]interface{}{"transactionId": "1-1"})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.(map[string]interface{})["status"] != "Rejected" {
		t.Fatalf("status = %v, want Rejected without a TransactionLookup wired", result.(map[string]interface{})["status"])
	}
}
