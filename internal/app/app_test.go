package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/ridwatch/internal/adapters/storage"
	"github.com/lcalzada-xor/ridwatch/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Addr:               "127.0.0.1:0",
		Latitude:           40.4168,
		Longitude:          -3.7038,
		DBPath:             "-",
		Channels:           []int{1, 6, 11},
		DwellTime:          300,
		SerialBaud:         115200,
		RedisChannels:      []string{"remoteid"},
		ProximityThreshold: -60,
		MockScenario:       "basic",
	}
}

func names(app *Application) []string {
	out := make([]string, 0, len(app.Transports))
	for _, t := range app.Transports {
		out = append(out, t.Name())
	}
	return out
}

func TestNewRequiresTransport(t *testing.T) {
	_, err := New(baseConfig())
	assert.ErrorIs(t, err, ErrNoTransports)
}

func TestNewBuildsConfiguredTransports(t *testing.T) {
	cfg := baseConfig()
	cfg.PcapFile = filepath.Join(t.TempDir(), "capture.pcap")
	cfg.SerialPort = "/dev/ttyUSB0"
	cfg.RedisAddr = "127.0.0.1:6379"
	cfg.RedisPublish = "ridwatch"
	cfg.MulticastGroup = "239.2.3.1:6970"
	cfg.GRPCPort = 9000
	cfg.Mock = true
	cfg.AssociatedNetworks = []string{"CorpNet"}

	app, err := New(cfg)
	require.NoError(t, err)
	defer app.closeResources()

	assert.Equal(t, []string{"wifi", "serial", "pubsub", "multicast", "grpc", "mock"}, names(app))
	assert.NotNil(t, app.Publisher)
	assert.Nil(t, app.Store)
	assert.Nil(t, app.PersistenceManager)
	assert.True(t, app.Associations.IsAssociated("CorpNet"))
	assert.Nil(t, app.wifi.Hopper(), "no hopper when reading a capture file")
}

func TestNewLiveWiFiGetsHopper(t *testing.T) {
	cfg := baseConfig()
	cfg.WiFiInterface = "wlan0mon"

	app, err := New(cfg)
	require.NoError(t, err)
	defer app.closeResources()

	require.NotNil(t, app.wifi.Hopper())
	assert.Equal(t, []int{1, 6, 11}, app.wifi.Hopper().Channels())
}

func TestNewOpensStorage(t *testing.T) {
	cfg := baseConfig()
	cfg.Mock = true
	cfg.DBPath = filepath.Join(t.TempDir(), "nested", "ridwatch.db")

	app, err := New(cfg)
	require.NoError(t, err)
	defer app.closeResources()

	assert.NotNil(t, app.Store)
	assert.NotNil(t, app.PersistenceManager)
	assert.FileExists(t, cfg.DBPath)
}

func TestRunMockEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the simulator in real time")
	}

	cfg := baseConfig()
	cfg.Mock = true
	cfg.MockScenario = "attack"
	cfg.DBPath = filepath.Join(t.TempDir(), "ridwatch.db")

	app, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(app.Pipeline.Sightings()) > 0 && len(app.Pipeline.RecentDetections(0)) > 0
	}, 10*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	store, err := storage.NewSQLiteAdapter(cfg.DBPath)
	require.NoError(t, err)
	defer store.Close()

	sightings, err := store.ListSightings(context.Background(), 10)
	require.NoError(t, err)
	assert.NotEmpty(t, sightings, "sightings flushed on shutdown")

	snap, ok, err := store.LoadDefense(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, snap.Quarantined)
}
