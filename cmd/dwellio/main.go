// Dwellio Core - Smart Home Device Integration Platform
//
// This is the main entry point for the Dwellio Core application.
// Dwellio Core is the device integration layer for multi-tenant
// residential property portfolios:
//   - One normalised device model across vendor platforms
//   - Role-scoped access control for every command
//   - A complete, append-only audit trail
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/mbegale/dwellio-core/migrations"

	"github.com/mbegale/dwellio-core/internal/access"
	"github.com/mbegale/dwellio-core/internal/adapter"
	"github.com/mbegale/dwellio-core/internal/adapter/august"
	"github.com/mbegale/dwellio-core/internal/adapter/hue"
	"github.com/mbegale/dwellio-core/internal/adapter/nest"
	"github.com/mbegale/dwellio-core/internal/adapter/smartthings"
	"github.com/mbegale/dwellio-core/internal/api"
	"github.com/mbegale/dwellio-core/internal/audit"
	"github.com/mbegale/dwellio-core/internal/device"
	"github.com/mbegale/dwellio-core/internal/infrastructure/config"
	"github.com/mbegale/dwellio-core/internal/infrastructure/database"
	"github.com/mbegale/dwellio-core/internal/infrastructure/influxdb"
	"github.com/mbegale/dwellio-core/internal/infrastructure/logging"
	"github.com/mbegale/dwellio-core/internal/infrastructure/mqtt"
	"github.com/mbegale/dwellio-core/internal/pipeline"
	"github.com/mbegale/dwellio-core/internal/ratelimit"
	"github.com/mbegale/dwellio-core/internal/retry"
	"github.com/mbegale/dwellio-core/internal/statesync"
	"github.com/mbegale/dwellio-core/internal/webhook"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Dwellio Core",
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device registry
	deviceRepo := device.NewSQLiteRepository(db.DB)
	registry := device.NewRegistry(deviceRepo)
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.GetDeviceCount())

	// Audit trail
	auditLog := audit.NewLogger(audit.NewSQLiteStore(db.DB))
	auditLog.SetLogger(log)

	// Vendor adapters
	adapters, err := buildAdapters(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialising vendor adapters: %w", err)
	}
	log.Info("vendor adapters initialised", "vendors", adapters.Vendors())

	// MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB telemetry (optional)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// State sync engine
	syncOpts := []statesync.Option{
		statesync.WithPollInterval(cfg.GetPollInterval()),
		statesync.WithLogger(log),
	}
	if influxClient != nil {
		syncOpts = append(syncOpts, statesync.WithTelemetry(influxClient))
	}
	if mqttClient != nil {
		syncOpts = append(syncOpts, statesync.WithPublisher(&mqttStatePublisher{client: mqttClient}))
	}
	engine := statesync.NewEngine(registry, adapters, syncOpts...)

	// Track every known device for polling and fan-out.
	devices, err := registry.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("listing devices for sync: %w", err)
	}
	for i := range devices {
		engine.Track(devices[i].ID)
	}
	go engine.Run(ctx)
	log.Info("state sync engine started",
		"poll_interval", cfg.GetPollInterval(),
		"tracked", len(devices),
	)

	// Access control and command pipeline
	userStore := access.NewSQLiteUserStore(db.DB)
	validator := access.NewValidator(userStore, registry, auditLog, access.Config{
		RequireStepUp: cfg.Security.RequireStepUp,
	})
	limiter := ratelimit.New(ratelimit.Config{
		Window:     cfg.GetRateLimitWindow(),
		MaxActions: cfg.Security.RateLimit.MaxActions,
	})
	policy := retry.Policy{
		MaxRetries:     cfg.Retry.MaxRetries,
		BaseDelay:      time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:       time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond,
		JitterFraction: cfg.Retry.JitterFraction,
	}
	executor := pipeline.NewExecutor(validator, limiter, adapters, auditLog, engine, policy)
	executor.SetLogger(log)

	// Webhook ingestion
	hooks := webhook.NewHandler(engine, registry, adapters, auditLog, cfg.Webhook.DedupWindow)
	hooks.SetLogger(log)

	// Vendor events can also arrive over the broker (an edge relay
	// forwarding cloud webhooks). They go through the same handler as
	// HTTP deliveries, so dedup and auditing apply either way.
	if mqttClient != nil {
		if subErr := mqttClient.Subscribe(mqtt.Topics{}.AllVendorEvents(), byte(cfg.MQTT.QoS), func(topic string, payload []byte) error {
			vendor := topic[strings.LastIndexByte(topic, '/')+1:]
			var ev webhook.Event
			if unmarshalErr := json.Unmarshal(payload, &ev); unmarshalErr != nil {
				return fmt.Errorf("decoding vendor event: %w", unmarshalErr)
			}
			return hooks.Handle(ctx, vendor, ev)
		}); subErr != nil {
			return fmt.Errorf("subscribing to vendor events: %w", subErr)
		}
	}

	// HTTP API
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Registry: registry,
		Executor: executor,
		Webhooks: hooks,
		Audit:    auditLog,
		MQTT:     mqttClient,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("Dwellio Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DWELLIO_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DWELLIO_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildAdapters initialises every enabled vendor adapter and registers
// it under its manufacturer name. A vendor whose token is rejected fails
// startup: a silently dead integration is worse than a loud one.
func buildAdapters(ctx context.Context, cfg *config.Config, log *logging.Logger) (*adapter.Registry, error) {
	var adapters []adapter.Adapter

	if v := cfg.Vendors.SmartThings; v.Enabled {
		var c *smartthings.Client
		if v.BaseURL != "" {
			c = smartthings.NewWithURL(cfg.Property.ID, v.BaseURL)
		} else {
			c = smartthings.New(cfg.Property.ID)
		}
		if err := c.Initialize(ctx, v.Token); err != nil {
			return nil, fmt.Errorf("smartthings: %w", err)
		}
		adapters = append(adapters, c)
		log.Info("vendor adapter ready", "vendor", "smartthings")
	}

	if v := cfg.Vendors.Nest; v.Enabled {
		var c *nest.Client
		if v.BaseURL != "" {
			c = nest.NewWithURL(cfg.Property.ID, v.ProjectID, v.BaseURL)
		} else {
			c = nest.New(cfg.Property.ID, v.ProjectID)
		}
		if err := c.Initialize(ctx, v.Token); err != nil {
			return nil, fmt.Errorf("nest: %w", err)
		}
		adapters = append(adapters, c)
		log.Info("vendor adapter ready", "vendor", "nest")
	}

	if v := cfg.Vendors.August; v.Enabled {
		var c *august.Client
		if v.BaseURL != "" {
			c = august.NewWithURL(cfg.Property.ID, v.BaseURL)
		} else {
			c = august.New(cfg.Property.ID)
		}
		if err := c.Initialize(ctx, v.Token); err != nil {
			return nil, fmt.Errorf("august: %w", err)
		}
		adapters = append(adapters, c)
		log.Info("vendor adapter ready", "vendor", "august")
	}

	if v := cfg.Vendors.Hue; v.Enabled {
		c := hue.New(cfg.Property.ID, v.BridgeURL)
		if err := c.Initialize(ctx, v.Token); err != nil {
			return nil, fmt.Errorf("hue: %w", err)
		}
		adapters = append(adapters, c)
		log.Info("vendor adapter ready", "vendor", "hue")
	}

	return adapter.NewRegistry(adapters...), nil
}

// healthCheck verifies all infrastructure connections are healthy.
// MQTT and InfluxDB are skipped when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// mqttStatePublisher adapts the infrastructure MQTT client to the state
// sync engine's Publisher interface. State is published retained so a
// client connecting later still sees the current state of every device.
type mqttStatePublisher struct {
	client *mqtt.Client
}

// PublishState implements statesync.Publisher.
func (p *mqttStatePublisher) PublishState(d *device.Device) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshalling device state: %w", err)
	}
	return p.client.PublishRetained(mqtt.Topics{}.DeviceState(d.ID), payload)
}
