package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lcalzada-xor/ridwatch/internal/adapters/storage"
	"github.com/lcalzada-xor/ridwatch/internal/adapters/transport/grpcfeed"
	"github.com/lcalzada-xor/ridwatch/internal/adapters/transport/multicast"
	"github.com/lcalzada-xor/ridwatch/internal/adapters/transport/pubsub"
	"github.com/lcalzada-xor/ridwatch/internal/adapters/transport/serial"
	"github.com/lcalzada-xor/ridwatch/internal/adapters/transport/wifi"
	"github.com/lcalzada-xor/ridwatch/internal/adapters/vendor"
	"github.com/lcalzada-xor/ridwatch/internal/adapters/web"
	"github.com/lcalzada-xor/ridwatch/internal/clock"
	"github.com/lcalzada-xor/ridwatch/internal/config"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
	"github.com/lcalzada-xor/ridwatch/internal/core/services/correlator"
	"github.com/lcalzada-xor/ridwatch/internal/core/services/detection"
	"github.com/lcalzada-xor/ridwatch/internal/core/services/persistence"
	"github.com/lcalzada-xor/ridwatch/internal/core/services/pipeline"
	"github.com/lcalzada-xor/ridwatch/internal/core/services/response"
	"github.com/lcalzada-xor/ridwatch/internal/geo"
	"github.com/lcalzada-xor/ridwatch/internal/mock"
	"github.com/lcalzada-xor/ridwatch/internal/telemetry"
)

const (
	CleanupInterval = 30 * time.Second
	// Retention bounds how long persisted sightings are kept.
	Retention = 7 * 24 * time.Hour

	retentionInterval = time.Hour
	persistenceBuffer = 10000
	vendorCacheSize   = 20000
	publishQueueSize  = 4096
)

// ErrNoTransports is returned when the configuration enables no input at all.
var ErrNoTransports = errors.New("no transports configured: set -i, -pcap, -serial, -redis, -multicast, -grpc or -mock")

// Application holds the core components and owns their lifecycle.
type Application struct {
	Config             *config.Config
	Clock              clock.Clock
	Pipeline           *pipeline.Pipeline
	WebServer          *web.Server
	Store              *storage.SQLiteAdapter
	PersistenceManager *persistence.PersistenceManager
	Publisher          *pubsub.Publisher
	Vendors            *vendor.Resolver
	Associations       *wifi.Associations
	Transports         []ports.Transport

	redis *redis.Client
	wifi  *wifi.Source
}

// New creates a new Application and bootstraps its components.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{
		Config: cfg,
		Clock:  clock.Real{},
	}

	if err := app.bootstrap(); err != nil {
		app.closeResources()
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}

	return app, nil
}

// bootstrap orchestrates the initialization sequence.
func (app *Application) bootstrap() error {
	// 1. Foundation
	telemetry.InitMetrics()
	app.initVendors()

	if err := app.initStorage(); err != nil {
		return err
	}

	// 2. Inputs. Wi-Fi comes first since its hopper backs scan requests.
	if err := app.initTransports(); err != nil {
		return err
	}

	// 3. Analysis
	app.initPipeline()

	// 4. Outputs
	app.initSinks()

	return nil
}

func (app *Application) initVendors() {
	static := vendor.NewDefaultRepository()
	if path := app.Config.OUIFile; path != "" {
		n, err := static.LoadFile(path)
		if err != nil {
			slog.Warn("could not load OUI file", "path", path, "error", err)
		} else {
			slog.Info("loaded OUI file", "path", path, "entries", n)
		}
	}

	var repos []vendor.Repository
	if path := app.Config.OUIDBPath; path != "" {
		registry, err := vendor.OpenRegistry(path)
		if err != nil {
			slog.Warn("OUI registry unavailable, using static fallback", "path", path, "error", err)
		} else {
			repos = append(repos, registry)
		}
	}
	repos = append(repos, static)

	app.Vendors = vendor.NewResolver(vendor.NewCompositeRepository(repos...), vendorCacheSize)
}

func (app *Application) initStorage() error {
	if !app.Config.PersistenceEnabled() {
		slog.Info("persistence disabled")
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(app.Config.DBPath), 0755); err != nil {
		return fmt.Errorf("failed to create DB directory: %w", err)
	}

	store, err := storage.NewSQLiteAdapter(app.Config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}
	app.Store = store
	return nil
}

func (app *Application) initTransports() error {
	cfg := app.Config
	app.Associations = wifi.NewAssociations(cfg.AssociatedNetworks...)

	if cfg.WiFiInterface != "" || cfg.PcapFile != "" {
		app.wifi = wifi.NewSource(wifi.Options{
			Interface:    cfg.WiFiInterface,
			File:         cfg.PcapFile,
			Channels:     cfg.Channels,
			Dwell:        time.Duration(cfg.DwellTime) * time.Millisecond,
			Associations: app.Associations,
			Clock:        app.Clock,
			Debug:        cfg.Debug,
		})
		app.Transports = append(app.Transports, app.wifi)
	}

	if cfg.SerialPort != "" {
		app.Transports = append(app.Transports, serial.NewSource(serial.Options{
			Port:      cfg.SerialPort,
			BaudRate:  cfg.SerialBaud,
			Reconnect: true,
		}))
	}

	if cfg.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		app.Transports = append(app.Transports, pubsub.NewSource(app.redis, cfg.RedisChannels...))
	}

	if cfg.MulticastGroup != "" {
		app.Transports = append(app.Transports, multicast.NewSource(multicast.Options{
			Group:     cfg.MulticastGroup,
			Interface: cfg.MulticastIface,
		}))
	}

	if cfg.GRPCPort > 0 {
		app.Transports = append(app.Transports, grpcfeed.NewSource(grpcfeed.Options{
			Addr: ":" + strconv.Itoa(cfg.GRPCPort),
		}))
	}

	if cfg.Mock {
		observer := geo.Location{Latitude: cfg.Latitude, Longitude: cfg.Longitude}
		sim := mock.NewSimulator(cfg.MockScenario, observer, app.Clock, mock.DefaultInterval)
		slog.Info("mock mode active", "scenario", sim.Scenario())
		app.Transports = append(app.Transports, sim)
	}

	if len(app.Transports) == 0 {
		return ErrNoTransports
	}
	return nil
}

func (app *Application) initPipeline() {
	cfg := app.Config
	tables := app.loadSignatures()

	var scanner ports.ScanRequester
	if app.wifi != nil && app.wifi.Hopper() != nil {
		scanner = app.wifi.Hopper()
	}

	app.Pipeline = pipeline.New(pipeline.Options{
		Clock: app.Clock,
		Correlator: correlator.New(correlator.Options{
			Clock:             app.Clock,
			EstimatePositions: cfg.EstimatePositions,
			Observer:          geo.NewStaticProvider(cfg.Latitude, cfg.Longitude),
		}),
		Engine: detection.NewEngine(detection.Options{
			ProximityThreshold: cfg.ProximityThreshold,
			Tables:             tables,
		}),
		Orchestrator: response.New(response.Options{
			Clock:   app.Clock,
			Scanner: scanner,
			Network: app.Associations,
		}),
		Vendors: app.Vendors,
	})
}

// loadSignatures merges the configured table extensions over the defaults. A
// missing or invalid file falls back to the built-in tables.
func (app *Application) loadSignatures() *detection.Tables {
	path := app.Config.Signatures
	if path == "" {
		return nil
	}
	ext, err := detection.LoadExtensions(path)
	if err != nil {
		slog.Warn("could not load signatures", "path", path, "error", err)
		return nil
	}
	tables, err := ext.Apply(detection.DefaultTables())
	if err != nil {
		slog.Warn("invalid signatures, using defaults", "path", path, "error", err)
		return nil
	}
	slog.Info("loaded signatures", "path", path,
		"keywords", len(ext.Keywords), "ouis", len(ext.OUIs), "fingerprints", len(ext.Fingerprints))
	return tables
}

func (app *Application) initSinks() {
	cfg := app.Config

	opts := web.Options{
		Addr:           cfg.Addr,
		Site:           cfg.Site,
		AllowedOrigins: cfg.AllowedOrigins,
		Clock:          app.Clock,
	}
	if app.Store != nil {
		opts.Store = app.Store
	}
	app.WebServer = web.NewServer(app.Pipeline, opts)
	app.Pipeline.AddSink(app.WebServer.Hub)

	if app.Store != nil {
		app.PersistenceManager = persistence.NewPersistenceManager(app.Store, app.Pipeline, persistenceBuffer)
		app.Pipeline.AddSink(app.PersistenceManager)
	}

	if cfg.RedisPublish != "" {
		client := app.redis
		if client == nil {
			client = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			app.redis = client
		}
		app.Publisher = pubsub.NewPublisher(client, cfg.RedisPublish, publishQueueSize)
		app.Pipeline.AddSink(app.Publisher)
	}
}

// Run restores saved state, starts every component and blocks until ctx is done
// or the web server fails. Shutdown closes inputs before outputs so nothing
// accepted is lost.
func (app *Application) Run(ctx context.Context) error {
	slog.Info("starting ridwatch components", "transports", len(app.Transports))

	// 1. Saved state
	if app.Store != nil {
		if _, err := persistence.Restore(ctx, app.Store, app.Pipeline); err != nil {
			slog.Warn("could not restore defensive state", "error", err)
		}
	}

	// 2. Auxiliary loops
	app.Pipeline.StartCleanupLoop(ctx, CleanupInterval)

	// Persistence outlives ctx so it can flush what the pipeline drains on shutdown.
	persistCtx, stopPersist := context.WithCancel(context.Background())
	defer stopPersist()
	if app.PersistenceManager != nil {
		app.PersistenceManager.Start(persistCtx)
		go app.runRetention(ctx)
	}

	// 3. Servers and transports
	errChan := make(chan error, 1)

	go func() {
		if err := app.WebServer.Run(ctx); err != nil {
			errChan <- fmt.Errorf("web server error: %w", err)
		}
	}()

	var transports sync.WaitGroup
	for _, t := range app.Transports {
		transports.Add(1)
		go func(t ports.Transport) {
			defer transports.Done()
			slog.Info("transport starting", "transport", t.Name())
			if err := t.Start(ctx, app.Pipeline); err != nil {
				app.Pipeline.OnError(t.Name(), err)
				return
			}
			slog.Info("transport stopped", "transport", t.Name())
		}(t)
	}

	slog.Info("ridwatch ready")

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("termination signal received")
	case runErr = <-errChan:
		slog.Error("shutting down", "error", runErr)
	}

	// 4. Shutdown: inputs, pipeline, then outputs
	for _, t := range app.Transports {
		if err := t.Close(); err != nil {
			slog.Warn("transport close failed", "transport", t.Name(), "error", err)
		}
	}
	transports.Wait()
	app.Pipeline.Close()

	if app.Publisher != nil {
		app.Publisher.Close()
	}
	if app.PersistenceManager != nil {
		stopPersist()
		app.PersistenceManager.Wait()
	}
	app.closeResources()

	slog.Info("ridwatch stopped")
	return runErr
}

func (app *Application) runRetention(ctx context.Context) {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.Store.PruneSightings(ctx, app.Clock.Now().Add(-Retention))
			if err != nil {
				slog.Warn("sighting retention failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("pruned stored sightings", "count", n)
			}
		}
	}
}

// closeResources releases handles opened during bootstrap.
func (app *Application) closeResources() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			slog.Warn("redis close failed", "error", err)
		}
		app.redis = nil
	}
	if app.Vendors != nil {
		app.Vendors.Close()
	}
	if app.Store != nil {
		if err := app.Store.Close(); err != nil {
			slog.Warn("storage close failed", "error", err)
		}
		app.Store = nil
	}
}
