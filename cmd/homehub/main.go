// HomeHub Core - home automation hub.
//
// This is the main entry point for the HomeHub Core service. It controls
// devices over three protocols (Shelly-style HTTP, MQTT and Philips Hue)
// through one device registry, keeps the device list in a key-value store
// and serves the REST and WebSocket API used by the dashboard.
//
// Usage:
//
//	homehub                 run the hub (config from HOMEHUB_CONFIG)
//	homehub hash-password   read a password on stdin, print its Argon2id hash
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/homehub-core/internal/adapter/hue"
	"github.com/nerrad567/homehub-core/internal/adapter/mqttdevice"
	"github.com/nerrad567/homehub-core/internal/adapter/shelly"
	"github.com/nerrad567/homehub-core/internal/api"
	"github.com/nerrad567/homehub-core/internal/auth"
	"github.com/nerrad567/homehub-core/internal/infrastructure/config"
	"github.com/nerrad567/homehub-core/internal/infrastructure/database"
	"github.com/nerrad567/homehub-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/homehub-core/internal/infrastructure/logging"
	"github.com/nerrad567/homehub-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homehub-core/internal/kv"
	"github.com/nerrad567/homehub-core/internal/registry"
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

// shutdownFlushTimeout bounds the final KV flush.
const shutdownFlushTimeout = 10 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run starts every component in dependency order, blocks until ctx is
// cancelled, then stops them in reverse. Pending KV writes are flushed
// before the store is closed.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting HomeHub Core",
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
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Key-value store
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening kv store: %w", err)
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			log.Error("error closing kv store", "error", closeErr)
		}
	}()
	log.Info("kv store ready", "backend", cfg.KV.Backend)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := registry.NewMetrics(promReg)

	writer := kv.NewWriter(store, cfg.DebounceWindow(),
		kv.WithLogger(log.Component("kv")),
		kv.WithFlushObserver(metrics.KVFlushObserver()),
		kv.WithFlushTimeout(cfg.KVTimeout()),
	)
	defer func() {
		flushCtx, stop := context.WithTimeout(context.Background(), shutdownFlushTimeout)
		defer stop()
		log.Info("flushing pending kv writes")
		if closeErr := writer.Close(flushCtx); closeErr != nil {
			log.Error("error flushing kv writes", "error", closeErr)
		}
	}()

	// Telemetry (optional)
	shellyOpts := []shelly.Option{shelly.WithTimeout(cfg.CommandTimeout())}
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		shellyOpts = append(shellyOpts, shelly.WithTelemetry(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// MQTT connection (optional)
	var mqttManager *mqtt.Manager
	if cfg.MQTT.Enabled {
		mqttManager = mqtt.NewManager(cfg.MQTT, log.Component("mqtt"))
		if initErr := mqttManager.Init(ctx); initErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", initErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			mqttManager.Shutdown()
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Protocol adapters
	adapters := registry.Adapters{HTTP: shelly.New(shellyOpts...)}
	if mqttManager != nil {
		adapters.MQTT = mqttdevice.New(mqttManager)
	}
	var hueBridge *hue.Adapter
	if cfg.Devices.Hue.BridgeHost != "" {
		hueBridge = hue.New(cfg.Devices.Hue.BridgeHost, cfg.Devices.Hue.Username,
			hue.WithTimeout(cfg.CommandTimeout()),
		)
		adapters.Hue = hueBridge
		log.Info("Hue bridge configured", "host", cfg.Devices.Hue.BridgeHost)
	}

	// Device registry
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	deps := registry.Deps{
		Adapters:       adapters,
		Store:          store,
		Persister:      writer,
		Notifier:       hub,
		Metrics:        metrics,
		Logger:         log.Component("registry"),
		CommandTimeout: cfg.CommandTimeout(),
	}
	if hueBridge != nil {
		deps.Hue = hueBridge
	}
	reg := registry.New(deps)
	if loadErr := reg.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading device registry: %w", loadErr)
	}
	log.Info("device registry initialised", "devices", reg.DeviceCount())

	if mqttManager != nil {
		if attachErr := reg.AttachMQTT(mqttManager); attachErr != nil {
			return fmt.Errorf("attaching registry to MQTT: %w", attachErr)
		}
	}

	// Status poller
	pollCtx, stopPoll := context.WithCancel(ctx)
	var pollers sync.WaitGroup
	pollers.Go(func() { reg.Poll(pollCtx, cfg.PollInterval()) })
	defer func() {
		stopPoll()
		pollers.Wait()
	}()

	// HTTP API
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.Component("api"),
		Registry: reg,
		Hub:      hub,
		Gatherer: promReg,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// API, poller, MQTT, InfluxDB, KV writer flush, KV store.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HOMEHUB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOMEHUB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openStore opens the configured KV backend. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config) (kv.Store, func() error, error) {
	switch cfg.KV.Backend {
	case config.KVBackendRedis:
		s, err := kv.OpenRedis(ctx, cfg.KV.Redis)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.KVBackendSQLite:
		s, err := kv.OpenSQLite(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := kv.NewRESTStore(cfg.KV.URL, kv.WithTimeout(cfg.KVTimeout()))
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	}
}

// hashPassword reads one line from r and writes its PHC hash to w.
func hashPassword(r io.Reader, w io.Writer) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	hash, err := auth.HashPassword(strings.TrimRight(line, "\r\n"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}
