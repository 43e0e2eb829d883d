// Smart home device registry service.
//
// This is the main entry point. It keeps an in-memory registry of smart home
// devices and connects it to:
//   - an MQTT broker (set/exec commands in, state updates out)
//   - an HTTP and WebSocket operator API
//   - an optional SQLite state history audit trail
//   - optional InfluxDB telemetry
//
// Configuration is read from configs/config.yaml or the file named by
// SMARTHOME_CONFIG.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/api"
	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/bridge"
	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/device"
	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/infrastructure/config"
	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/infrastructure/database"
	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/infrastructure/influxdb"
	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/infrastructure/logging"
	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/infrastructure/mqtt"
	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/report"
	"github.com/nk-gears/node-red-contrib-google-smarthome/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// historyPruneInterval is how often expired state history is deleted.
const historyPruneInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, blocks until ctx is cancelled and shuts the
// components down in reverse order.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting smart home registry",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	registry := device.NewRegistry()
	registry.SetLogger(log.With("component", "registry"))

	checks := make(map[string]api.HealthChecker)

	var history device.StateHistoryRepository
	if cfg.Database.Enabled {
		db, repo, dbErr := openHistory(ctx, cfg, registry, log)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		checks["database"] = db
		history = repo
	} else {
		log.Info("state history disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
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
		registry.AddReporter(report.NewTelemetry(influxClient))
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	owners := loggingOwners(log)
	if cfg.MQTT.Enabled {
		mqttClient, mqttBridge, mqttErr := startBridge(ctx, cfg, registry, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			mqttBridge.Stop()
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = mqttClient
		owners = mqttBridge.Owner
		mqttBridge.RegisterDevices(cfg.Devices)
	} else {
		log.Info("MQTT disabled")
		registerDevices(registry, cfg.Devices, owners, log)
	}
	log.Info("device registry initialised", "devices", registry.GetDeviceCount())

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log.With("component", "api"),
		Registry: registry,
		Owners:   owners,
		History:  history,
		Checks:   checks,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	registry.AddReporter(server.Hub())
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal", "api", server.Addr())

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

func getConfigPath() string {
	if path := os.Getenv("SMARTHOME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openHistory opens and migrates the SQLite database, adds the audit trail
// reporter and starts the retention loop.
func openHistory(ctx context.Context, cfg *config.Config, registry *device.Registry, log *logging.Logger) (*database.DB, *device.SQLiteStateHistoryRepository, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	repo := device.NewSQLiteStateHistoryRepository(db.DB)
	registry.AddReporter(report.NewHistory(repo, 0, log.With("component", "history")))

	if retention := cfg.GetRetention(); retention > 0 {
		go pruneLoop(ctx, repo, retention, log)
	}
	return db, repo, nil
}

// pruneLoop deletes expired state history now and then every hour until
// ctx is cancelled.
func pruneLoop(ctx context.Context, repo *device.SQLiteStateHistoryRepository, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()

	for {
		deleted, err := repo.PruneHistory(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("state history prune failed", "error", err)
			}
		} else if deleted > 0 {
			log.Info("state history pruned", "deleted", deleted)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// startBridge connects to the broker and starts the MQTT bridge with a
// retained state publisher.
func startBridge(ctx context.Context, cfg *config.Config, registry *device.Registry, log *logging.Logger) (*mqtt.Client, *bridge.Bridge, error) {
	mqttClient, err := mqtt.Connect(ctx, cfg.MQTT)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttLog := log.With("component", "mqtt")
	mqttClient.SetLogger(mqttLog)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttClient.ClientID(),
	)

	topics := mqttClient.Topics()
	mqttBridge, err := bridge.New(bridge.Options{
		Registry: registry,
		MQTT:     mqttClient,
		Topics:   topics,
		QoS:      byte(cfg.MQTT.QoS), // #nosec G115 -- validated to be 0..2
		Logger:   mqttLog,
	})
	if err != nil {
		mqttClient.Close()
		return nil, nil, fmt.Errorf("creating MQTT bridge: %w", err)
	}
	if err := mqttBridge.Start(); err != nil {
		mqttClient.Close()
		return nil, nil, fmt.Errorf("starting MQTT bridge: %w", err)
	}

	registry.AddReporter(report.NewMQTTPublisher(mqttClient, topics.DeviceState, mqttLog))
	return mqttClient, mqttBridge, nil
}

// loggingOwners returns owners that only log notifications. They are used
// when no MQTT bridge is running.
func loggingOwners(log *logging.Logger) api.OwnerFactory {
	return func(id string) device.Owner {
		return device.NewOwner(id, func(states device.States) {
			log.Debug("device updated", "device_id", id, "states", states)
		})
	}
}

// registerDevices registers the configured devices without a bridge.
func registerDevices(registry *device.Registry, devices []config.DeviceConfig, owners api.OwnerFactory, log *logging.Logger) {
	for _, d := range devices {
		if !registry.NewDevice(d.Category, owners(d.ID), d.Name) {
			log.Warn("device not registered", "device_id", d.ID, "category", d.Category)
		}
	}
}
