// skysync mirrors a cloud-connected security account locally.
//
// It logs in to the account API, builds a live model of every panel and its
// devices, keeps that model current from the push channel, and republishes
// changes to a local HTTP/WebSocket API, an MQTT broker, a SQLite change
// journal and InfluxDB.
//
// Usage:
//
//	skysync                         run the mirror (config from SKYSYNC_CONFIG)
//	skysync token <subject> [role]  print an API bearer token (role: viewer|controller)
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/skysync/internal/api"
	"github.com/nerrad567/skysync/internal/auth"
	"github.com/nerrad567/skysync/internal/events"
	"github.com/nerrad567/skysync/internal/infrastructure/config"
	"github.com/nerrad567/skysync/internal/infrastructure/database"
	"github.com/nerrad567/skysync/internal/infrastructure/influxdb"
	"github.com/nerrad567/skysync/internal/infrastructure/logging"
	"github.com/nerrad567/skysync/internal/infrastructure/mqtt"
	"github.com/nerrad567/skysync/internal/infrastructure/pubnub"
	"github.com/nerrad567/skysync/internal/journal"
	"github.com/nerrad567/skysync/internal/session"
	"github.com/nerrad567/skysync/internal/sky"
	"github.com/nerrad567/skysync/internal/skyapi"
	"github.com/nerrad567/skysync/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// shutdownTimeout bounds the push unsubscribe on exit.
	shutdownTimeout = 10 * time.Second

	// retentionInterval is how often the journal is pruned.
	retentionInterval = time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := dispatch(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// dispatch selects the subcommand. With no arguments the mirror runs.
func dispatch(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return run(ctx)
	}
	switch args[0] {
	case "token":
		return runToken(args[1:], out)
	case "migrate":
		return runMigrate(ctx, args[1:], out)
	case "version":
		fmt.Fprintf(out, "skysync %s (%s, %s)\n", version, commit, date)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// runToken prints a signed API token for subject.
func runToken(args []string, out io.Writer) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: skysync token <subject> [viewer|controller]")
	}

	role := auth.RoleController
	if len(args) == 2 {
		role = auth.Role(args[1])
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.API.Auth.JWTSecret == "" {
		return errors.New("api.auth.jwt_secret is not set; the API is unauthenticated")
	}

	token, err := auth.IssueToken(args[0], role, cfg.API.Auth.JWTSecret, cfg.GetTokenTTL())
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}

// runMigrate manages the journal schema without starting the mirror:
// "status" (default) lists applied and pending migrations, "up" applies
// the pending ones and "down" rolls back the latest.
func runMigrate(ctx context.Context, args []string, out io.Writer) error {
	action := "status"
	if len(args) > 0 {
		action = args[0]
	}
	if len(args) > 1 || (action != "status" && action != "up" && action != "down") {
		return errors.New("usage: skysync migrate [status|up|down]")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.Database.Enabled {
		return errors.New("database.enabled is false; there is no journal to migrate")
	}

	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	switch action {
	case "up":
		err = db.Migrate(ctx, migrations.FS)
	case "down":
		err = db.MigrateDown(ctx, migrations.FS)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", action, err)
	}

	applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	fmt.Fprintf(out, "database: %s\n", db.Path())
	for _, r := range applied {
		fmt.Fprintf(out, "applied  %s  %s\n", r.Version, r.AppliedAt.Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
	}
	return nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting skysync",
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

	fanout := events.NewFanout(log.Component("events"))

	// Change journal (optional)
	var history api.HistoryReader
	if cfg.Database.Enabled {
		db, store, openErr := openJournal(ctx, cfg)
		if openErr != nil {
			return openErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("change journal ready", "path", cfg.Database.Path)

		history = store
		fanout.AddSink(events.NewJournalSink(store))
		if keep := cfg.GetRetention(); keep > 0 {
			go store.RunRetention(ctx, retentionInterval, keep, log.Component("journal"))
		}
	} else {
		log.Info("change journal disabled")
	}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, version)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			st := mqttClient.Stats()
			log.Info("disconnecting from MQTT", "published", st.Published, "received", st.Received, "failed", st.Failed)
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetConnectionHooks(
			func() { log.Info("MQTT connected") },
			func(err error) { log.Warn("MQTT disconnected", "error", err) },
		)
		log.Info("MQTT ready",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		fanout.AddSink(events.NewMQTTSink(mqttClient, mqttClient.Topics()))
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			written, failed := influxClient.Counts()
			log.Info("closing InfluxDB connection", "points", written, "failed_batches", failed)
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.OnWriteError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		fanout.AddSink(events.NewInfluxSink(influxClient))
	} else {
		log.Info("InfluxDB disabled")
	}

	// WebSocket change stream rides on the API server.
	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log.Component("websocket"))
		fanout.AddSink(hub)
	}

	go fanout.Run(ctx)

	orch, err := newOrchestrator(cfg, fanout, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("closing push channel")
		if closeErr := orch.Close(closeCtx); closeErr != nil {
			log.Warn("error closing push channel", "error", closeErr)
		}
	}()

	if err := orch.Connect(ctx); err != nil {
		return fmt.Errorf("connecting account mirror: %w", err)
	}
	st := orch.Status()
	log.Info("account mirror connected", "panels", st.Panels, "channel", st.Channel)

	if mqttClient != nil && cfg.MQTT.Commands {
		commands := events.NewCommands(mqttClient, mqttClient.Topics(), orch, byte(cfg.MQTT.QoS), log.Component("commands")) //nolint:gosec // QoS validated to 0..2
		if err := commands.Start(); err != nil {
			return fmt.Errorf("starting MQTT commands: %w", err)
		}
		defer func() {
			if stopErr := commands.Stop(); stopErr != nil {
				log.Warn("error stopping MQTT commands", "error", stopErr)
			}
		}()
		log.Info("MQTT command topics enabled")
	}

	if cfg.API.Enabled {
		server, err := api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.Component("api"),
			Mirror:  orch,
			History: history,
			Hub:     hub,
			Version: version,
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
		if cfg.API.Auth.JWTSecret == "" {
			log.Warn("API authentication disabled; keep the listener on a trusted interface")
		}
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up",
		"events_dropped", fanout.Dropped(),
	)
	return nil
}

// newOrchestrator wires the account API client, the push transport and the
// event fanout into an orchestrator.
func newOrchestrator(cfg *config.Config, fanout *events.Fanout, log *logging.Logger) (*sky.Orchestrator, error) {
	client, err := skyapi.New(skyapi.Config{
		BaseURL: cfg.Sky.APIURL,
		Timeout: cfg.GetRequestTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating API client: %w", err)
	}
	client.SetLogger(log.Component("skyapi"))

	transport := pubnub.Factory(pubnub.Config{
		SubscribeKey:   cfg.Sky.PubNub.SubscribeKey,
		ConnectTimeout: cfg.Sky.PubNub.ConnectTimeout,
	}, log.Component("pubnub"))

	orch, err := sky.New(sky.Deps{
		Config: sky.Config{
			Credentials:    session.NewCredentials(cfg.Sky.Username, cfg.Sky.Password),
			Panels:         cfg.Sky.Panels,
			ChannelPrefix:  cfg.Sky.PubNub.ChannelPrefix,
			ConnectTimeout: cfg.GetConnectTimeout(),
		},
		API:       client,
		Transport: transport,
		Attacher:  fanout,
		Logger:    log.Component("sky"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	orch.SetOnConnected(func() {
		log.Info("push channel connected")
	})
	orch.SetOnDisconnected(func() {
		log.Warn("push channel disconnected")
	})
	return orch, nil
}

// openJournal opens the SQLite database, applies migrations and returns the
// journal store over it.
func openJournal(ctx context.Context, cfg *config.Config) (*database.DB, *journal.Store, error) {
	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	if err := db.HealthCheck(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("database health check: %w", err)
	}

	return db, journal.NewStore(db.DB), nil
}

// getConfigPath returns the configuration file path.
// Uses SKYSYNC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SKYSYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
