package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruslanhut/ocpp-chargepoint/internal/analytics"
	"github.com/ruslanhut/ocpp-chargepoint/internal/authlist"
	"github.com/ruslanhut/ocpp-chargepoint/internal/boot"
	"github.com/ruslanhut/ocpp-chargepoint/internal/certstore"
	"github.com/ruslanhut/ocpp-chargepoint/internal/clockwork"
	"github.com/ruslanhut/ocpp-chargepoint/internal/config"
	"github.com/ruslanhut/ocpp-chargepoint/internal/connection"
	"github.com/ruslanhut/ocpp-chargepoint/internal/dispatch"
	"github.com/ruslanhut/ocpp-chargepoint/internal/firmware"
	"github.com/ruslanhut/ocpp-chargepoint/internal/journal"
	"github.com/ruslanhut/ocpp-chargepoint/internal/metering"
	"github.com/ruslanhut/ocpp-chargepoint/internal/ocpp/v16"
	"github.com/ruslanhut/ocpp-chargepoint/internal/ocpp/v201"
	"github.com/ruslanhut/ocpp-chargepoint/internal/persistence"
	"github.com/ruslanhut/ocpp-chargepoint/internal/reservation"
	"github.com/ruslanhut/ocpp-chargepoint/internal/runtime"
	"github.com/ruslanhut/ocpp-chargepoint/internal/smartcharging"
	"github.com/ruslanhut/ocpp-chargepoint/internal/txengine"
	"github.com/ruslanhut/ocpp-chargepoint/internal/variables"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	appName    = "ocpp-chargepoint"
	appVersion = "0.1.0"
)

func main() {
	configPath := flag.String("conf", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("Error loading config: %v", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	logger.Info("starting charge point",
		slog.String("version", appVersion),
		slog.String("app", appName),
		slog.String("station", cfg.Station.ID),
		slog.String("protocol", cfg.Station.ProtocolVersion))

	fs, err := persistence.NewDir(cfg.Storage.Directory)
	if err != nil {
		logger.Error("failed to open storage directory", "error", err)
		os.Exit(1)
	}

	protocol201 := cfg.Station.ProtocolVersion == "2.0.1"

	vars := variables.New(fs, "variables.jsn")
	if protocol201 {
		variables.Declare2_0_1(vars)
	} else {
		variables.Declare1_6(vars)
	}
	if err := vars.Load(); err != nil {
		logger.Error("failed to load variables", "error", err)
		os.Exit(1)
	}

	bootTracker := boot.New(fs)
	if err := bootTracker.Load(); err != nil {
		logger.Error("failed to load boot stats", "error", err)
		os.Exit(1)
	}
	if bootTracker.CrashedLastBoot() {
		logger.Warn("previous run did not shut down cleanly", "bootCount", bootTracker.BootCount())
	}

	authListStore := authlist.New(fs)
	if err := authListStore.Load(); err != nil {
		logger.Error("failed to load authorization list", "error", err)
		os.Exit(1)
	}

	reservationSvc := reservation.New(fs)
	if err := reservationSvc.Load(); err != nil {
		logger.Error("failed to load reservations", "error", err)
		os.Exit(1)
	}

	profiles := smartcharging.New(fs)
	if err := profiles.Load(); err != nil {
		logger.Error("failed to load charging profiles", "error", err)
		os.Exit(1)
	}

	certs := certstore.New(fs)
	if err := certs.Load(); err != nil {
		logger.Error("failed to load certificate store", "error", err)
		os.Exit(1)
	}

	j := journal.New(fs, journal.DefaultCapacity)
	for evseID := 1; evseID <= cfg.Station.ConnectorCount; evseID++ {
		if err := j.Recover(evseID); err != nil {
			logger.Warn("journal recovery reported an issue", "evseId", evseID, "error", err)
		}
	}

	clock := clockwork.NewReal()
	reader := newStaticMeterReader()
	sampler := metering.New(vars, reader)

	engine := txengine.New(j, vars, clock, sampler,
		txengine.WithProtocol201(protocol201),
		txengine.WithLocalList(authListStore),
		txengine.WithChargingLimiter(profiles),
		txengine.WithLimitNotify(func(evseID int, limitAmps float64, ok bool) {
			if ok {
				logger.Debug("runtime: smart charging limit", "evseId", evseID, "limitAmps", limitAmps)
			}
		}),
	)
	for evseID := 1; evseID <= cfg.Station.ConnectorCount; evseID++ {
		engine.RegisterConnector(evseID)
		if err := engine.Resume(evseID); err != nil {
			logger.Warn("failed to resume persisted transaction", "evseId", evseID, "error", err)
		}
	}

	queue := dispatch.New()
	queue.SetBootPending(true)
	registry := dispatch.NewRegistry()

	loop := runtime.New(logger)
	loop.StationID = cfg.Station.ID
	loop.Protocol201 = protocol201
	loop.Engine = engine
	loop.Journal = j
	loop.Queue = queue
	loop.Registry = registry
	loop.Clock = clock
	loop.Boot = bootTracker
	loop.Vars = vars

	txengine.WithNotify(loop.NewNotifier())(engine)

	lookup := transactionLookup(j, cfg.Station.ConnectorCount)

	if protocol201 {
		v201.RegisterHandlers(registry, v201.Deps{
			Engine:            engine,
			Vars:              vars,
			Certs:             certs,
			Queue:             queue,
			Logger:            logger,
			AuthList:          authListStore,
			Reservations:      reservationSvc,
			Profiles:          profiles,
			Firmware:          firmware.NewFirmwareService(),
			Diagnostics:       firmware.NewDiagnosticsService(),
			ConnectorCount:    cfg.Station.ConnectorCount,
			TransactionLookup: lookup,
		})
	} else {
		v16.RegisterHandlers(registry, v16.Deps{
			Engine:            engine,
			Boot:              bootTracker,
			AuthList:          authListStore,
			Vars:              vars,
			Firmware:          firmware.NewFirmwareService(),
			Diagnostics:       firmware.NewDiagnosticsService(),
			Reservations:      reservationSvc,
			Profiles:          profiles,
			ConnectorCount:    cfg.Station.ConnectorCount,
			Logger:            logger,
			TransactionLookup: lookup,
		})
	}

	var mirror *analytics.Mirror
	if cfg.Analytics.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Analytics.MongoDB.ConnectionTimeout)
		client, cerr := newMongoClient(ctx, cfg)
		cancel()
		if cerr != nil {
			logger.Error("failed to connect analytics mirror to MongoDB", "error", cerr)
			os.Exit(1)
		}
		collection := client.Database(cfg.Analytics.MongoDB.Database).Collection(cfg.Analytics.Collection)
		mirror = analytics.NewMirror(collection, logger, analytics.Config{
			BufferSize:    cfg.Analytics.BufferSize,
			BatchSize:     cfg.Analytics.BatchSize,
			FlushInterval: cfg.Analytics.FlushInterval,
		})
		mirror.Start()
		loop.Mirror = mirror
		logger.Info("analytics mirror enabled", "database", cfg.Analytics.MongoDB.Database)
	}

	connCfg := connection.Config{
		URL:                  cfg.CSMS.URL,
		StationID:            cfg.Station.ID,
		ProtocolVersion:      cfg.Station.ProtocolVersion,
		ConnectionTimeout:    cfg.CSMS.ConnectionTimeout,
		MaxReconnectAttempts: cfg.CSMS.MaxReconnectAttempts,
		ReconnectBackoff:     cfg.CSMS.ReconnectBackoff,
		ReconnectMaxBackoff:  cfg.CSMS.ReconnectMaxBackoff,
		TLSEnabled:           cfg.CSMS.TLS.Enabled,
		TLSCACert:            cfg.CSMS.TLS.CACert,
		TLSClientCert:        cfg.CSMS.TLS.ClientCert,
		TLSClientKey:         cfg.CSMS.TLS.ClientKey,
		TLSSkipVerify:        cfg.CSMS.TLS.InsecureSkipVerify,
		BasicAuthUsername:    cfg.CSMS.BasicAuthUsername,
		BasicAuthPassword:    cfg.CSMS.BasicAuthPassword,
		OnMessage:            loop.OnMessage,
		OnConnected: func() {
			logger.Info("connected to CSMS, sending BootNotification")
			queue.Enqueue(0, "BootNotification", bootNotificationPayload(cfg, protocol201), false, 0, 30*time.Second)
		},
		OnDisconnected: func(err error) {
			if err != nil {
				logger.Warn("disconnected from CSMS", "error", err)
			}
		},
	}
	conn := connection.New(connCfg, logger)
	loop.Conn = conn

	if err := conn.Connect(); err != nil {
		logger.Error("failed to connect to CSMS", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	logger.Info("charge point started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	if err := conn.Disconnect(); err != nil {
		logger.Warn("error during disconnect", "error", err)
	}
	if mirror != nil {
		mirror.Shutdown()
	}
}

// transactionLookup scans the journal's front record on every connector
// for one matching the CSMS-assigned transactionId, closing the gap
// between RemoteStopTransaction/RequestStopTransaction's opaque id and
// the EVSE that owns it.
func transactionLookup(j *journal.Journal, connectorCount int) func(transactionID string) (evseID int, ok bool) {
	return func(transactionID string) (int, bool) {
		for evseID := 1; evseID <= connectorCount; evseID++ {
			txNr, ok := j.Front(evseID)
			if !ok {
				continue
			}
			rec, err := j.Load(evseID, txNr)
			if err != nil {
				continue
			}
			if rec.TransactionID == transactionID {
				return evseID, true
			}
		}
		return 0, false
	}
}

// newStaticMeterReader stands in for a real meter driver: there is no
// hardware behind this charge point, so every measurand reads back as
// unavailable and the sampler simply emits no meter values. A real
// deployment replaces this with a Reader backed by the station's actual
// energy meter.
func newStaticMeterReader() metering.Reader {
	return func(measurand string) (value, unit string, ok bool) {
		return "", "", false
	}
}

func bootNotificationPayload(cfg *config.Config, protocol201 bool) map[string]interface{} {
	if protocol201 {
		return map[string]interface{}{
			"reason": "PowerUp",
			"chargingStation": map[string]interface{}{
				"model":           cfg.Station.Model,
				"vendorName":      cfg.Station.VendorName,
				"serialNumber":    cfg.Station.SerialNumber,
				"firmwareVersion": cfg.Station.FirmwareVersion,
			},
		}
	}
	return map[string]interface{}{
		"chargePointVendor":       cfg.Station.VendorName,
		"chargePointModel":        cfg.Station.Model,
		"chargePointSerialNumber": cfg.Station.SerialNumber,
		"firmwareVersion":         cfg.Station.FirmwareVersion,
	}
}

func newMongoClient(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.Analytics.MongoDB.URI).
		SetMaxPoolSize(cfg.Analytics.MongoDB.MaxPoolSize).
		SetServerSelectionTimeout(cfg.Analytics.MongoDB.ConnectionTimeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// initLogger builds the process-wide slog.Logger per cfg.Logging, mirroring
// the teacher's initLogger (stdout, stderr or file target, debug/info level switch).
func initLogger(cfg *config.Config) *slog.Logger {
	var out *os.File
	if cfg.Logging.Output == "stdout" || cfg.Logging.Output == "" {
		out = os.Stdout
	} else if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	} else {
		f, err := os.OpenFile(cfg.Logging.Output, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("error opening log file: ", err)
		}
		out = f
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	switch cfg.Logging.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}
