// labrig - laboratory rig orchestrator
//
// This is the main entry point for the labrig application. labrig runs
// one experimental session end to end: it builds the configured
// instruments, routes their record streams to persistence and live
// views, and guarantees teardown whatever happens mid-run.
//
// The process exit code reflects the terminal session state: 0 for
// Done, non-zero for Failed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/labrig/migrations"

	"github.com/nerrad567/labrig/internal/api"
	"github.com/nerrad567/labrig/internal/data"
	"github.com/nerrad567/labrig/internal/device"
	"github.com/nerrad567/labrig/internal/devices"
	"github.com/nerrad567/labrig/internal/hardware"
	"github.com/nerrad567/labrig/internal/infrastructure/config"
	"github.com/nerrad567/labrig/internal/infrastructure/database"
	"github.com/nerrad567/labrig/internal/infrastructure/influxdb"
	"github.com/nerrad567/labrig/internal/infrastructure/logging"
	"github.com/nerrad567/labrig/internal/infrastructure/mqtt"
	"github.com/nerrad567/labrig/internal/session"
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

func main() {
	// Cancel on interrupt signals so a Ctrl+C mid-run still tears the
	// rig down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error lets main handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting labrig",
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

	// Open the session archive and bring the schema up to date
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Connect to MQTT broker (optional)
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
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Register the device drivers
	registry := device.NewRegistry()
	if err := devices.RegisterAll(registry); err != nil {
		return fmt.Errorf("registering device drivers: %w", err)
	}
	log.Info("device drivers registered", "types", registry.Types())

	// Data routing
	queue := data.NewQueue(cfg.Data.QueueCapacity)
	dm := data.NewManager(log.With("component", "data"))

	// Hardware manager over the configured instruments
	rig := hardware.NewManager(registry, hardware.Timeouts{
		Initialize: cfg.InitTimeout(),
		Start:      cfg.StartTimeout(),
		Stop:       cfg.StopTimeout(),
		Close:      cfg.CloseTimeout(),
	}, log.With("component", "hardware"))

	// The session procedure ties it all together
	var notifier session.Notifier
	if mqttClient != nil {
		notifier = &mqttNotifier{
			client: mqttClient,
			qos:    byte(cfg.MQTT.QoS), // #nosec G115 -- validated to 0..2
			influx: influxClient,
			log:    log,
		}
	}
	proc := session.NewProcedure(cfg, rig, queue, dm, session.Deps{
		Archive:  session.NewRepository(db),
		Notifier: notifier,
		Logger:   log.With("component", "session"),
	})
	log.Info("session created",
		"session_id", proc.ID(),
		"experiment_id", cfg.Session.ExperimentID,
		"duration_seconds", cfg.Session.DurationSeconds,
	)

	// Persistence consumers
	if cfg.Data.CSVLog.Enabled {
		csv, csvErr := data.NewCSVLogger(cfg.Data.CSVLog.Dir, proc.ID())
		if csvErr != nil {
			return fmt.Errorf("creating CSV logger: %w", csvErr)
		}
		dm.RegisterConsumer(csv, nil)
		log.Info("CSV record log enabled", "path", csv.Path())
	}
	if influxClient != nil {
		dm.RegisterConsumer(data.NewInfluxSink(influxClient), nil)
	}
	if mqttClient != nil {
		dm.RegisterConsumer(data.NewMQTTSink(mqttClient), nil)

		// Remote stop trigger: any stop request for any session ends this run.
		topics := mqtt.Topics{}
		subErr := mqttClient.Subscribe(topics.AllSessionStops(), byte(cfg.MQTT.QoS), // #nosec G115 -- validated to 0..2
			func(topic string, _ []byte) error {
				log.Info("stop requested over MQTT", "topic", topic)
				proc.Stop()
				return nil
			})
		if subErr != nil {
			log.Warn("subscribing to stop topic failed", "error", subErr)
		}
	}

	// Snapshot HTTP API (optional)
	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.API.WS,
			Logger:  log.With("component", "api"),
			Session: proc,
			Rig:     rig,
			Data:    dm,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		dm.RegisterConsumer(srv.Hub(), nil)
	}

	// Run the session; the error decides the exit code
	if runErr := proc.Run(ctx); runErr != nil {
		if errors.Is(runErr, session.ErrRunFailed) {
			for _, f := range proc.Faults() {
				log.Error("recorded fault", "fault", f.String())
			}
		}
		return runErr
	}

	log.Info("session complete", "session_id", proc.ID())
	return nil
}

// getConfigPath returns the configuration file path from LABRIG_CONFIG,
// falling back to the default.
func getConfigPath() string {
	if path := os.Getenv("LABRIG_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// mqttNotifier publishes session state transitions to the broker and,
// when wired, mirrors them into InfluxDB as session events.
type mqttNotifier struct {
	client *mqtt.Client
	qos    byte
	influx *influxdb.Client
	log    *logging.Logger
}

func (n *mqttNotifier) SessionState(sessionID string, state session.State) {
	payload, err := json.Marshal(map[string]string{
		"session_id": sessionID,
		"state":      state.String(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	topics := mqtt.Topics{}
	if pubErr := n.client.Publish(topics.SessionState(sessionID), payload, n.qos, true); pubErr != nil {
		n.log.Warn("publishing session state failed", "state", state.String(), "error", pubErr)
	}

	if n.influx != nil {
		n.influx.WriteSessionEvent(sessionID, state.String())
	}
}
