// Package runtime is the charge point's single cooperative event loop
// (spec §5 "single-threaded cooperative" requirement). txengine.Engine and
// journal.Journal are not goroutine-safe and must only ever be touched
// from the goroutine running Loop.Run; every other goroutine (the
// connection's read pump, a wall-clock ticker, the analytics mirror)
// hands its work off through a channel instead of calling into the engine
// directly, mirroring the teacher's connection-package callback-to-channel
// pattern. The loop's own periodic ticker goroutine runs under a
// sourcegraph/conc WaitGroup so a panic in it surfaces instead of silently
// killing the process.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/ruslanhut/ocpp-chargepoint/internal/analytics"
	"github.com/ruslanhut/ocpp-chargepoint/internal/boot"
	"github.com/ruslanhut/ocpp-chargepoint/internal/clockwork"
	"github.com/ruslanhut/ocpp-chargepoint/internal/connection"
	"github.com/ruslanhut/ocpp-chargepoint/internal/dispatch"
	"github.com/ruslanhut/ocpp-chargepoint/internal/journal"
	"github.com/ruslanhut/ocpp-chargepoint/internal/ocpp"
	"github.com/ruslanhut/ocpp-chargepoint/internal/txengine"
	"github.com/ruslanhut/ocpp-chargepoint/internal/variables"
)

// defaultTxMaxAttempts and defaultTxRetryInterval back txRetryPolicy when
// TransactionMessageAttempts/TransactionMessageRetryInterval are not
// configured (spec defaults for TXRECORD retry).
const (
	defaultTxMaxAttempts   = 3
	defaultTxRetryInterval = 60 * time.Second
)

// inboundMessage is a raw frame handed from the connection's read pump
// into the loop goroutine.
type inboundMessage struct {
	data []byte
}

// pendingCorrelation remembers which (evseID, opNr) a sent uniqueId maps
// to, so a later CallResult/CallError can be routed back to
// dispatch.Queue.Confirm/Fail -- dispatch itself is transport-agnostic and
// only knows opNr, not the wire-level uniqueId.
type pendingCorrelation struct {
	evseID int
	opNr   int
	action string
}

// Loop drives one charge point: pulling ready calls off the dispatch
// queue, sending them over the connection, routing inbound Calls to the
// registry, and correlating CallResult/CallError replies back to the
// dispatch queue.
type Loop struct {
	StationID string
	Protocol201 bool

	Engine   *txengine.Engine
	Journal  *journal.Journal
	Queue    *dispatch.Queue
	Registry *dispatch.Registry
	Conn     *connection.Connection
	Clock    *clockwork.Clock
	Mirror   *analytics.Mirror // nil if analytics disabled
	Boot     *boot.Tracker     // nil if the caller handles registration itself
	Vars     *variables.Store  // nil falls back to the built-in retry defaults

	TickInterval time.Duration

	logger  *slog.Logger
	encoder *ocpp.MessageEncoder

	inbound      chan inboundMessage
	correlations map[string]pendingCorrelation
}

// New wires a Loop. The caller must have already registered the engine's
// WithNotify callback produced by loop.NewNotifier() before the engine
// starts emitting events, and must assign Conn.OnMessage to loop.OnMessage
// before calling Conn.Connect.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		logger:       logger,
		encoder:      ocpp.NewMessageEncoder(),
		inbound:      make(chan inboundMessage, 256),
		correlations: make(map[string]pendingCorrelation),
		TickInterval: time.Second,
	}
	return l
}

// OnMessage is wired as connection.Config.OnMessage. It must never block:
// the read pump goroutine only hands the frame off to the loop channel.
func (l *Loop) OnMessage(data []byte) {
	select {
	case l.inbound <- inboundMessage{data: data}:
	default:
		l.logger.Warn("runtime: inbound buffer full, dropping frame")
	}
}

// NewNotifier returns the callback to pass to txengine.WithNotify. It
// turns StartTx/StopTx events into outbound dispatch calls and mirrors
// completed transactions into analytics, closing the gap between the
// engine's in-process notifications and the message queue that actually
// talks to the CSMS.
func (l *Loop) NewNotifier() func(evseID int, ev journal.Event) {
	return func(evseID int, ev journal.Event) {
		switch ev {
		case journal.EventStartTx:
			l.enqueueStartTransaction(evseID)
		case journal.EventStopTx:
			l.enqueueStopTransaction(evseID)
		default:
			l.logger.Debug("runtime: transaction event", "evseId", evseID, "event", ev)
		}
	}
}

// txRetryPolicy returns the TransactionMessageAttempts/
// TransactionMessageRetryInterval bound a tx-bound Call must be enqueued
// with (spec §4.2 property 1): a transaction is silenced, not retried
// forever, once delivery has failed this many times.
func (l *Loop) txRetryPolicy() (maxAttempts int, interval time.Duration) {
	maxAttempts, interval = defaultTxMaxAttempts, defaultTxRetryInterval
	if l.Vars == nil {
		return maxAttempts, interval
	}
	if n := l.Vars.GetInt("TransactionMessageAttempts"); n > 0 {
		maxAttempts = n
	}
	if s := l.Vars.GetInt("TransactionMessageRetryInterval"); s > 0 {
		interval = time.Duration(s) * time.Second
	}
	return maxAttempts, interval
}

func (l *Loop) enqueueStartTransaction(evseID int) {
	txNr, ok := l.Journal.Front(evseID)
	if !ok {
		return
	}
	rec, lerr := l.Journal.Load(evseID, txNr)
	if lerr != nil {
		l.logger.Warn("runtime: StartTx notified but record unreadable", "evseId", evseID, "txNr", txNr, "error", lerr)
		return
	}

	action := "StartTransaction"
	payload := map[string]interface{}{
		"connectorId":   evseID,
		"idTag":         rec.IDTag,
		"meterStart":    rec.MeterStart,
		"timestamp":     time.Unix(rec.StartUnixTime, 0).UTC().Format(time.RFC3339),
	}
	if l.Protocol201 {
		action = "TransactionEvent"
		payload = map[string]interface{}{
			"eventType":     "Started",
			"timestamp":     time.Unix(rec.StartUnixTime, 0).UTC().Format(time.RFC3339),
			"triggerReason": "CablePluggedIn",
			"seqNo":         0,
			"transactionInfo": map[string]interface{}{
				"transactionId": rec.TransactionID,
			},
			"evse": map[string]interface{}{"id": evseID},
			"idToken": map[string]interface{}{"idToken": rec.IDTag, "type": "ISO14443"},
		}
	}

	maxAttempts, interval := l.txRetryPolicy()
	call := l.Queue.Enqueue(evseID, action, payload, true, maxAttempts, interval)
	l.logger.Info("runtime: enqueued transaction start", "evseId", evseID, "txNr", txNr, "opNr", call.OpNr)
}

func (l *Loop) enqueueStopTransaction(evseID int) {
	txNr, ok := l.Journal.Front(evseID)
	if !ok {
		return
	}
	rec, lerr := l.Journal.Load(evseID, txNr)
	if lerr != nil {
		l.logger.Warn("runtime: StopTx notified but record unreadable", "evseId", evseID, "txNr", txNr, "error", lerr)
		return
	}

	action := "StopTransaction"
	payload := map[string]interface{}{
		"meterStop": rec.MeterStop,
		"timestamp": time.Unix(rec.StopUnixTime, 0).UTC().Format(time.RFC3339),
		"reason":    string(rec.StopReason),
	}
	if l.Protocol201 {
		action = "TransactionEvent"
		payload = map[string]interface{}{
			"eventType":     "Ended",
			"timestamp":     time.Unix(rec.StopUnixTime, 0).UTC().Format(time.RFC3339),
			"triggerReason": "EVDeparted",
			"seqNo":         rec.SeqNos,
			"transactionInfo": map[string]interface{}{
				"transactionId":  rec.TransactionID,
				"stoppedReason":  rec.StoppedReason,
			},
			"evse": map[string]interface{}{"id": evseID},
		}
	}

	maxAttempts, interval := l.txRetryPolicy()
	call := l.Queue.Enqueue(evseID, action, payload, true, maxAttempts, interval)
	l.logger.Info("runtime: enqueued transaction stop", "evseId", evseID, "txNr", txNr, "opNr", call.OpNr)

	if l.Mirror != nil {
		l.Mirror.TransactionCompleted(analytics.TransactionSummary{
			EvseID:         evseID,
			TxNr:           txNr,
			IDTag:          rec.IDTag,
			StartTimestamp: time.Unix(rec.StartUnixTime, 0).UTC(),
			StopTimestamp:  time.Unix(rec.StopUnixTime, 0).UTC(),
			MeterStartWh:   rec.MeterStart,
			MeterStopWh:    rec.MeterStop,
			EnergyWh:       rec.MeterStop - rec.MeterStart,
			StopReason:     string(rec.StopReason),
		})
	}
}

// Run drives the loop until ctx is cancelled. It supervises the periodic
// ticker as a background goroutine via conc.WaitGroup (the connection's
// own read/write/ping pumps are supervised internally by
// *connection.Connection) and processes inbound frames and dispatch
// retries from the single loop goroutine.
func (l *Loop) Run(ctx context.Context) {
	var wg conc.WaitGroup

	ticks := make(chan time.Time, 1)
	wg.Go(func() {
		ticker := time.NewTicker(l.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				select {
				case ticks <- t:
				default:
				}
			}
		}
	})

	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-l.inbound:
			l.handleFrame(msg.data)

		case now := <-ticks:
			if l.Engine != nil {
				l.Engine.Tick()
			}
			l.pumpDispatch(now)
		}
	}
}

func (l *Loop) pumpDispatch(now time.Time) {
	if l.Conn == nil || l.Conn.GetState() != connection.StateConnected {
		return
	}
	call, ok := l.Queue.Next(now)
	if !ok {
		return
	}

	data, err := l.encoder.EncodeCall(call.Action, call.Payload)
	if err != nil {
		l.logger.Error("runtime: failed to encode call, dropping", "action", call.Action, "error", err)
		return
	}

	uniqueID, idErr := ocpp.GetMessageID(data)
	if idErr != nil {
		l.logger.Error("runtime: failed to read generated uniqueId", "error", idErr)
		return
	}

	if err := l.Conn.Send(data); err != nil {
		l.logger.Warn("runtime: send failed, will retry", "action", call.Action, "error", err)
		l.handleDispatchFailure(call.EvseID, call.OpNr, call.Action, now)
		return
	}

	l.correlations[uniqueID] = pendingCorrelation{evseID: call.EvseID, opNr: call.OpNr, action: call.Action}
}

func (l *Loop) handleFrame(data []byte) {
	msg, err := ocpp.ParseMessage(data)
	if err != nil {
		l.logger.Warn("runtime: failed to parse inbound frame", "error", err)
		return
	}

	switch m := msg.(type) {
	case *ocpp.Call:
		l.handleInboundCall(m)
	case *ocpp.CallResult:
		l.handleInboundCallResult(m)
	case *ocpp.CallError:
		l.handleInboundCallError(m)
	}
}

func (l *Loop) handleInboundCall(call *ocpp.Call) {
	var payload map[string]interface{}
	if len(call.Payload) > 0 {
		if err := json.Unmarshal(call.Payload, &payload); err != nil {
			l.sendCallError(call.UniqueID, ocpp.ErrorCodeFormationViolation, err.Error())
			return
		}
	}

	handler, ok := l.Registry.Lookup(call.Action)
	if !ok {
		l.sendCallError(call.UniqueID, ocpp.ErrorCodeNotImplemented, fmt.Sprintf("no handler for action %s", call.Action))
		return
	}

	evseID := 0
	if v, ok := payload["connectorId"]; ok {
		if f, ok := v.(float64); ok {
			evseID = int(f)
		}
	} else if evse, ok := payload["evse"].(map[string]interface{}); ok {
		if id, ok := evse["id"].(float64); ok {
			evseID = int(id)
		}
	}

	result, err := handler(evseID, payload)
	if err != nil {
		l.sendCallError(call.UniqueID, ocpp.ErrorCodeInternalError, err.Error())
		return
	}

	data, err := l.encoder.EncodeCallResult(call.UniqueID, result)
	if err != nil {
		l.logger.Error("runtime: failed to encode call result", "action", call.Action, "error", err)
		return
	}
	if err := l.Conn.Send(data); err != nil {
		l.logger.Warn("runtime: failed to send call result", "action", call.Action, "error", err)
	}
}

func (l *Loop) handleInboundCallResult(result *ocpp.CallResult) {
	corr, ok := l.correlations[result.UniqueID]
	if !ok {
		return
	}
	delete(l.correlations, result.UniqueID)
	l.recordTransactionID(corr, result.Payload)
	l.recordBootResult(corr, result.Payload)
	l.recordClockSync(corr, result.Payload)
	l.Queue.Confirm(corr.evseID, corr.opNr)
}

// recordClockSync applies the currentTime a BootNotification.conf or
// Heartbeat.conf carries to Clock, then asks the engine to re-stamp any
// uptime-only transaction timestamps now that the wall clock is known
// (spec §4.2 scenarios S1/S5).
func (l *Loop) recordClockSync(corr pendingCorrelation, payload json.RawMessage) {
	if corr.action != "BootNotification" && corr.action != "Heartbeat" {
		return
	}
	var resp struct {
		CurrentTime string `json:"currentTime"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil || resp.CurrentTime == "" {
		return
	}
	t, err := time.Parse(time.RFC3339, resp.CurrentTime)
	if err != nil {
		return
	}
	if l.Clock != nil {
		l.Clock.Set(t)
	}
	if l.Engine != nil {
		l.Engine.ResyncClock()
	}
}

// recordBootResult applies a BootNotification.conf's registration status
// to Boot and toggles Queue's boot-pending gate accordingly (spec §4.3).
func (l *Loop) recordBootResult(corr pendingCorrelation, payload json.RawMessage) {
	if corr.action != "BootNotification" || l.Boot == nil {
		return
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return
	}
	switch boot.Status(resp.Status) {
	case boot.StatusAccepted:
		if err := l.Boot.Accept(); err != nil {
			l.logger.Warn("runtime: failed to persist boot acceptance", "error", err)
		}
		l.Queue.SetBootPending(false)
	case boot.StatusPending, boot.StatusRejected:
		if err := l.Boot.Reject(boot.Status(resp.Status)); err != nil {
			l.logger.Warn("runtime: failed to persist boot rejection", "error", err)
		}
		l.Queue.SetBootPending(true)
	}
}

// recordTransactionID captures the CSMS-assigned transactionId out of a
// StartTransaction.conf (1.6) or TransactionEvent.conf (2.0.1) reply and
// writes it onto the journal's front record for that connector, so a later
// RemoteStopTransaction/RequestStopTransaction referencing that id can be
// resolved back to its owning EVSE.
func (l *Loop) recordTransactionID(corr pendingCorrelation, payload json.RawMessage) {
	if corr.action != "StartTransaction" && corr.action != "TransactionEvent" {
		return
	}

	var txID string
	switch corr.action {
	case "StartTransaction":
		var resp struct {
			TransactionId int `json:"transactionId"`
		}
		if err := json.Unmarshal(payload, &resp); err != nil || resp.TransactionId == 0 {
			return
		}
		txID = fmt.Sprintf("%d", resp.TransactionId)
	case "TransactionEvent":
		var resp struct {
			TransactionId string `json:"transactionId"`
		}
		if err := json.Unmarshal(payload, &resp); err != nil || resp.TransactionId == "" {
			return
		}
		txID = resp.TransactionId
	}

	txNr, ok := l.Journal.Front(corr.evseID)
	if !ok {
		return
	}
	rec, err := l.Journal.Load(corr.evseID, txNr)
	if err != nil {
		return
	}
	rec.TransactionID = txID
	if err := l.Journal.Commit(rec); err != nil {
		l.logger.Warn("runtime: failed to persist transactionId", "evseId", corr.evseID, "txNr", txNr, "error", err)
	}
}

func (l *Loop) handleInboundCallError(callErr *ocpp.CallError) {
	corr, ok := l.correlations[callErr.UniqueID]
	if !ok {
		return
	}
	delete(l.correlations, callErr.UniqueID)
	l.handleDispatchFailure(corr.evseID, corr.opNr, corr.action, l.now())
}

// handleDispatchFailure records a failed delivery attempt and, once the
// queue gives up on a transaction-bound Call, silences the transaction it
// belongs to: the record is dropped from the journal's front, its meter
// data is discarded, and the connector returns to Available (spec §4.2
// property 1, scenario S2).
func (l *Loop) handleDispatchFailure(evseID, opNr int, action string, now time.Time) {
	gaveUp := l.Queue.Fail(evseID, opNr, now)
	if !gaveUp || !isTxBoundAction(action) {
		return
	}
	txNr, ok := l.Journal.Front(evseID)
	if !ok {
		return
	}
	l.Engine.Silence(evseID, txNr)
	l.logger.Warn("runtime: transaction silenced after exhausting delivery attempts",
		"evseId", evseID, "txNr", txNr, "action", action)
}

func isTxBoundAction(action string) bool {
	switch action {
	case "StartTransaction", "StopTransaction", "TransactionEvent":
		return true
	default:
		return false
	}
}

func (l *Loop) sendCallError(uniqueID string, code ocpp.ErrorCode, desc string) {
	data, err := l.encoder.EncodeCallError(uniqueID, code, desc, nil)
	if err != nil {
		l.logger.Error("runtime: failed to encode call error", "error", err)
		return
	}
	if err := l.Conn.Send(data); err != nil {
		l.logger.Warn("runtime: failed to send call error", "error", err)
	}
}

func (l *Loop) now() time.Time {
	if l.Clock != nil {
		if t, ok := l.Clock.Resolve(l.Clock.Uptime()); ok {
			return t
		}
	}
	return time.Now()
}
