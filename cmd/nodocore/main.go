// Nodo Core - Home Automation Hub
//
// This is the main entry point for the Nodo Core application. Nodo
// Core owns the home's device state: it decodes radio node frames,
// tracks link health, dispatches actuator commands, and syncs state
// with the cloud gateway over MQTT.
//
// The hub is offline-first: everything except the gateway link works
// with no internet connection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nodoproject/nodo-core/internal/api"
	"github.com/nodoproject/nodo-core/internal/gateway"
	"github.com/nodoproject/nodo-core/internal/hub"
	"github.com/nodoproject/nodo-core/internal/infrastructure/config"
	"github.com/nodoproject/nodo-core/internal/infrastructure/database"
	"github.com/nodoproject/nodo-core/internal/infrastructure/influxdb"
	"github.com/nodoproject/nodo-core/internal/infrastructure/logging"
	"github.com/nodoproject/nodo-core/internal/infrastructure/mqtt"
	"github.com/nodoproject/nodo-core/internal/radio"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// radioTransport defers to a bridge created after the hub controller.
// The controller needs a transport at construction and the bridge
// needs the controller as its frame sink; the field is set before
// either side starts.
type radioTransport struct {
	bridge *radio.Bridge
}

func (t *radioTransport) Send(deviceID uint32, frame []byte) error {
	return t.bridge.Send(deviceID, frame)
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Nodo Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Build the hub controller around a transport placeholder; the
	// radio bridge fills it in below, before anything starts.
	transport := &radioTransport{}
	ctrl := hub.New(hub.Config{
		LivenessWindow: cfg.GetLivenessWindow(),
		GracePeriod:    cfg.GetGracePeriod(),
		RetryBase:      cfg.GetRetryBase(),
		MaxAttempts:    cfg.Hub.MaxAttempts,
		BufferCapacity: cfg.Hub.BufferCapacity,
	}, transport)
	ctrl.SetLogger(log)
	ctrl.SetStore(database.NewStore(db))

	bridge, err := radio.NewBridge(mqttClient, ctrl)
	if err != nil {
		return fmt.Errorf("creating radio bridge: %w", err)
	}
	bridge.SetLogger(log)
	transport.bridge = bridge

	// Connect to InfluxDB (optional) and attach it as the telemetry sink
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		ctrl.SetSink(influxClient)
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the API server before the hub so the WebSocket notifier is
	// in place when the loop starts emitting updates.
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Controller: ctrl,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	ctrl.SetNotifier(server.Hub())
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Start the hub event loop (restores persisted identities first)
	if startErr := ctrl.Start(ctx); startErr != nil {
		return fmt.Errorf("starting hub controller: %w", startErr)
	}
	log.Info("hub controller started")

	// Start the radio bridge: node frames begin flowing into the hub
	if startErr := bridge.Start(); startErr != nil {
		return fmt.Errorf("starting radio bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping radio bridge")
		bridge.Stop()
	}()
	log.Info("radio bridge started")

	// Start the gateway syncer (if enabled)
	if cfg.Gateway.Enabled {
		syncer, syncErr := gateway.NewSyncer(gateway.Config{
			DrainBatch:     cfg.Gateway.DrainBatch,
			DrainInterval:  time.Duration(cfg.Gateway.DrainInterval) * time.Second,
			PublishTimeout: time.Duration(cfg.Gateway.PublishTimeout) * time.Second,
		}, mqttClient, ctrl)
		if syncErr != nil {
			return fmt.Errorf("creating gateway syncer: %w", syncErr)
		}
		syncer.SetLogger(log)
		if startErr := syncer.Start(); startErr != nil {
			return fmt.Errorf("starting gateway syncer: %w", startErr)
		}
		defer func() {
			log.Info("stopping gateway syncer")
			syncer.Stop()
		}()
		log.Info("gateway syncer started",
			"drain_batch", cfg.Gateway.DrainBatch,
			"drain_interval", cfg.Gateway.DrainInterval,
		)
	} else {
		log.Info("gateway sync disabled, events buffer locally")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Gateway syncer (if enabled)
	// 2. Radio bridge
	// 3. API server
	// 4. InfluxDB (if enabled)
	// 5. MQTT
	// 6. Database

	log.Info("Nodo Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses NODO_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("NODO_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
