// grow - greenhouse controller
//
// This is the main entry point for the grow controller. It polls the
// inventory's Air, Water, Light and Tank devices, raises alerts, drives fans
// and lamps, and waters dry stations with the shared arm and pump.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joakim000/grow/internal/actuator"
	"github.com/joakim000/grow/internal/alert"
	"github.com/joakim000/grow/internal/api"
	"github.com/joakim000/grow/internal/control"
	"github.com/joakim000/grow/internal/device"
	"github.com/joakim000/grow/internal/event"
	"github.com/joakim000/grow/internal/hardware"
	"github.com/joakim000/grow/internal/infrastructure/config"
	"github.com/joakim000/grow/internal/infrastructure/database"
	"github.com/joakim000/grow/internal/infrastructure/influxdb"
	"github.com/joakim000/grow/internal/infrastructure/logging"
	"github.com/joakim000/grow/internal/infrastructure/mqtt"
	"github.com/joakim000/grow/internal/irrigation"
	"github.com/joakim000/grow/internal/light"
	"github.com/joakim000/grow/migrations"
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

const (
	// shutdownGrace bounds how long shutdown waits for watering cycles to
	// switch their pumps off.
	shutdownGrace = 30 * time.Second

	// pruneInterval is how often expired history events are deleted.
	pruneInterval = 24 * time.Hour

	// recentEvents is how many events the in-memory feed of the API keeps.
	recentEvents = 500

	// cycleReportBuffer holds finished cycles until the control loop reads them.
	cycleReportBuffer = 32
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting grow",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"site", cfg.Site.Name,
		"hardware", cfg.Hardware.Mode,
	)

	// Inventory errors are configuration errors: refuse to start.
	registry, err := device.LoadInventory(cfg.Inventory.Path)
	if err != nil {
		return fmt.Errorf("loading inventory: %w", err)
	}
	stats := registry.GetStats()
	log.Info("inventory loaded", "path", cfg.Inventory.Path, "devices", stats.Total)

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
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT, log.Component("mqtt"))
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
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// Observability sinks
	history := event.NewSQLiteHistory(db.DB, log.Component("history"))
	metrics := event.NewMetrics()
	recent := event.NewRecorder(recentEvents)
	sinks := event.Fanout{event.NewLogSink(log.Component("events")), history, metrics, recent}
	if mqttClient != nil {
		sinks = append(sinks, event.NewMQTTSink(mqttClient, log.Component("events")))
	}
	if influxClient != nil {
		sinks = append(sinks, event.NewTelemetrySink(influxClient))
	}

	hw, err := newHardware(cfg, registry, mqttClient, log)
	if err != nil {
		return err
	}

	seq, err := irrigation.New(irrigation.Deps{
		Registry: registry,
		Locks:    actuator.NewLocks(cfg.Control.AcquireTimeout),
		Driver:   hw,
		Sink:     sinks,
		Logger:   log.Component("irrigation"),
	})
	if err != nil {
		return fmt.Errorf("creating sequencer: %w", err)
	}
	dispatcher := irrigation.NewDispatcher(seq, cfg.Control.Workers, log.Component("irrigation"))
	reports := make(chan irrigation.Report, cycleReportBuffer)
	dispatcher.NotifyReports(reports)

	lights := light.NewScheduler(registry, hw, cfg.Location(), sinks, log.Component("light"))

	loop, err := control.New(control.Deps{
		Registry:  registry,
		Sensor:    hw,
		Fans:      hw,
		Irrigator: dispatcher,
		Lights:    lights,
		Sink:      sinks,
		Logger:    log.Component("control"),
		Reports:   reports,
	}, control.Config{
		Interval:           cfg.Control.Interval,
		SensorTimeout:      cfg.Control.SensorTimeout,
		Hysteresis:         cfg.Control.Hysteresis,
		BreakerMaxFailures: cfg.Control.Breaker.MaxFailures,
		BreakerOpenTimeout: cfg.Control.Breaker.OpenTimeout,
		Tank: alert.TankBands{
			Empty:    cfg.Control.Tank.Empty,
			Low:      cfg.Control.Tank.Low,
			Overfill: cfg.Control.Tank.Overfill,
		},
	})
	if err != nil {
		return fmt.Errorf("creating control loop: %w", err)
	}

	if cfg.API.Enabled {
		checks := map[string]api.HealthChecker{"database": db}
		if mqttClient != nil {
			checks["mqtt"] = mqttClient
		}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}
		server, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log.Component("api"),
			Registry: registry,
			Status:   loop,
			Cycles:   dispatcher,
			History:  history,
			Events:   recent,
			Metrics:  metrics.Handler(),
			Checks:   checks,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr := server.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if cfg.Database.RetentionDays > 0 {
		go pruneHistory(ctx, history, time.Duration(cfg.Database.RetentionDays)*24*time.Hour, log)
	}

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.Run(ctx)
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if loopErr := <-loopDone; loopErr != nil {
		log.Error("control loop error", "error", loopErr)
	}

	// Cycles are cancelled here; each one switches its pump off before
	// returning, so the hardware bridge must still be connected.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Error("watering cycles did not finish in time", "error", err)
	}

	// Deferred Close() calls run in reverse order:
	// API, InfluxDB (if enabled), MQTT (if enabled), database.
	log.Info("grow stopped")
	return nil
}

// newHardware builds the sensor/actuator bridge selected by hardware.mode.
func newHardware(cfg *config.Config, registry *device.Registry, mqttClient *mqtt.Client, log *logging.Logger) (hardware.Hardware, error) {
	switch cfg.Hardware.Mode {
	case config.HardwareModeSim:
		log.Warn("hardware simulator active, no real devices are driven")
		return hardware.NewSimulator(registry, hardware.DefaultSimConfig(), nil), nil
	case config.HardwareModeMQTT:
		if mqttClient == nil {
			return nil, errors.New("hardware mode mqtt requires an MQTT connection")
		}
		bridge := hardware.NewMQTTBridge(mqttClient, hardware.BridgeConfig{
			AckTimeout: cfg.Hardware.AckTimeout,
			StaleAfter: cfg.Hardware.StaleAfter,
			QoS:        byte(cfg.MQTT.QoS),
		}, nil, log.Component("hardware"))
		if err := bridge.Start(); err != nil {
			return nil, fmt.Errorf("starting hardware bridge: %w", err)
		}
		return bridge, nil
	default:
		return nil, fmt.Errorf("unknown hardware mode %q", cfg.Hardware.Mode)
	}
}

// pruneHistory deletes history events older than retention, once at
// startup and then every pruneInterval until ctx ends.
func pruneHistory(ctx context.Context, history *event.SQLiteHistory, retention time.Duration, log *logging.Logger) {
	prune := func() {
		n, err := history.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("history prune failed", "error", err)
			}
			return
		}
		if n > 0 {
			log.Info("history pruned", "deleted", n, "retention", retention)
		}
	}

	prune()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses GROW_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GROW_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
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
