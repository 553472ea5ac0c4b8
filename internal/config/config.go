package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

// Config holds all application configuration.
type Config struct {
	Addr           string
	Site           string
	AllowedOrigins []string
	Latitude       float64
	Longitude      float64
	DBPath         string
	OUIDBPath      string
	OUIFile        string
	Signatures     string
	Debug          bool
	Mock           bool
	MockScenario   string

	// Wi-Fi capture
	WiFiInterface      string
	PcapFile           string
	Channels           []int
	DwellTime          int // in milliseconds
	AssociatedNetworks []string

	// Feeds
	RedisAddr      string
	RedisChannels  []string
	RedisPublish   string
	MulticastGroup string
	MulticastIface string
	SerialPort     string
	SerialBaud     int
	GRPCPort       int

	// Analysis
	EstimatePositions  bool
	ProximityThreshold int
}

// Load reads configuration from RIDWATCH_* environment variables and the
// process command line. Flags take precedence over environment variables.
func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs is Load with explicit arguments.
func LoadArgs(args []string) (*Config, error) {
	cfg := &Config{}

	// Defaults and Environment Variables
	cfg.Addr = getEnv("RIDWATCH_ADDR", ":8080")
	cfg.Site = getEnv("RIDWATCH_SITE", "")
	origins := getEnv("RIDWATCH_ALLOWED_ORIGINS", "")
	cfg.Latitude = getEnvFloat("RIDWATCH_LAT", 40.4168)
	cfg.Longitude = getEnvFloat("RIDWATCH_LNG", -3.7038)
	cfg.DBPath = getEnv("RIDWATCH_DB", "")
	cfg.OUIDBPath = getEnv("RIDWATCH_OUI_DB", "")
	cfg.OUIFile = getEnv("RIDWATCH_OUI_FILE", "")
	cfg.Signatures = getEnv("RIDWATCH_SIGNATURES", "")
	cfg.Debug = getEnvBool("RIDWATCH_DEBUG", false)
	cfg.Mock = getEnvBool("RIDWATCH_MOCK", false)
	cfg.MockScenario = getEnv("RIDWATCH_MOCK_SCENARIO", "basic")

	cfg.WiFiInterface = getEnv("RIDWATCH_WIFI_INTERFACE", "")
	cfg.PcapFile = getEnv("RIDWATCH_PCAP", "")
	channels := getEnv("RIDWATCH_CHANNELS", "1,6,11")
	cfg.DwellTime = getEnvInt("RIDWATCH_DWELL", 300)
	associated := getEnv("RIDWATCH_ASSOCIATED", "")

	cfg.RedisAddr = getEnv("RIDWATCH_REDIS_ADDR", "")
	redisChannels := getEnv("RIDWATCH_REDIS_CHANNELS", "remoteid")
	cfg.RedisPublish = getEnv("RIDWATCH_REDIS_PUBLISH", "")
	cfg.MulticastGroup = getEnv("RIDWATCH_MULTICAST_GROUP", "")
	cfg.MulticastIface = getEnv("RIDWATCH_MULTICAST_INTERFACE", "")
	cfg.SerialPort = getEnv("RIDWATCH_SERIAL_PORT", "")
	cfg.SerialBaud = getEnvInt("RIDWATCH_SERIAL_BAUD", 115200)
	cfg.GRPCPort = getEnvInt("RIDWATCH_GRPC", 0)

	cfg.EstimatePositions = getEnvBool("RIDWATCH_ESTIMATE_POSITIONS", false)
	cfg.ProximityThreshold = getEnvInt("RIDWATCH_PROXIMITY_THRESHOLD", -60)

	// Command Line Flags (Override Env)
	fs := flag.NewFlagSet("ridwatch", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address")
	fs.StringVar(&cfg.Site, "site", cfg.Site, "Site name printed on incident reports")
	fs.StringVar(&origins, "origins", origins, "Allowed WebSocket origins (comma separated, * for any)")
	fs.Float64Var(&cfg.Latitude, "lat", cfg.Latitude, "Observer latitude")
	fs.Float64Var(&cfg.Longitude, "lng", cfg.Longitude, "Observer longitude")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite database (empty for ~/.ridwatch/ridwatch.db, - to disable)")
	fs.StringVar(&cfg.OUIDBPath, "oui-db", cfg.OUIDBPath, "Path to SQLite OUI registry")
	fs.StringVar(&cfg.OUIFile, "oui-file", cfg.OUIFile, "Path to text OUI list (XX:XX:XX Vendor)")
	fs.StringVar(&cfg.Signatures, "signatures", cfg.Signatures, "Path to JSON detection table extensions")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable verbose debug logging")
	fs.BoolVar(&cfg.Mock, "mock", cfg.Mock, "Feed simulated Remote ID traffic")
	fs.StringVar(&cfg.MockScenario, "scenario", cfg.MockScenario, "Simulated scenario: basic, busy or attack")

	fs.StringVar(&cfg.WiFiInterface, "i", cfg.WiFiInterface, "Wi-Fi interface in monitor mode")
	fs.StringVar(&cfg.PcapFile, "pcap", cfg.PcapFile, "Read Wi-Fi frames from a pcap file instead of an interface")
	fs.StringVar(&channels, "channels", channels, "Channels to hop (comma separated)")
	fs.IntVar(&cfg.DwellTime, "dwell", cfg.DwellTime, "Channel dwell time in milliseconds")
	fs.StringVar(&associated, "associated", associated, "Networks this host is joined to (comma separated)")

	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for pub/sub feeds")
	fs.StringVar(&redisChannels, "redis-channels", redisChannels, "Redis channels to subscribe (comma separated)")
	fs.StringVar(&cfg.RedisPublish, "redis-publish", cfg.RedisPublish, "Channel prefix to republish output on (empty to disable)")
	fs.StringVar(&cfg.MulticastGroup, "multicast", cfg.MulticastGroup, "Multicast group host:port")
	fs.StringVar(&cfg.MulticastIface, "multicast-iface", cfg.MulticastIface, "Interface to join the multicast group on")
	fs.StringVar(&cfg.SerialPort, "serial", cfg.SerialPort, "Serial receiver device")
	fs.IntVar(&cfg.SerialBaud, "baud", cfg.SerialBaud, "Serial baud rate")
	fs.IntVar(&cfg.GRPCPort, "grpc", cfg.GRPCPort, "gRPC ingest port (0 to disable)")

	fs.BoolVar(&cfg.EstimatePositions, "estimate", cfg.EstimatePositions, "Estimate positions from RSSI when none is reported")
	fs.IntVar(&cfg.ProximityThreshold, "proximity", cfg.ProximityThreshold, "RSSI above which a drone counts as close (dBm)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if cfg.Channels, err = parseChannels(channels); err != nil {
		return nil, err
	}
	for _, iface := range []string{cfg.WiFiInterface, cfg.MulticastIface} {
		if iface != "" && !domain.IsValidInterface(iface) {
			return nil, fmt.Errorf("invalid interface name %q", iface)
		}
	}
	cfg.AllowedOrigins = parseList(origins)
	cfg.AssociatedNetworks = parseList(associated)
	cfg.RedisChannels = parseList(redisChannels)
	if cfg.DBPath == "" {
		cfg.DBPath = getDefaultDBPath()
	}
	return cfg, nil
}

// PersistenceEnabled reports whether a database should be opened.
func (c *Config) PersistenceEnabled() bool {
	return c.DBPath != "" && c.DBPath != "-"
}

func parseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseChannels(s string) ([]int, error) {
	var out []int
	for _, p := range parseList(s) {
		ch, err := strconv.Atoi(p)
		if err != nil || ch <= 0 || ch > 233 {
			return nil, fmt.Errorf("invalid channel %q", p)
		}
		out = append(out, ch)
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getDefaultDBPath returns ~/.ridwatch/ridwatch.db, creating the directory.
func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("no home directory, using current dir", "error", err)
		return "ridwatch.db"
	}

	dir := filepath.Join(home, ".ridwatch")
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Warn("could not create data directory, using current dir", "dir", dir, "error", err)
		return "ridwatch.db"
	}
	return filepath.Join(dir, "ridwatch.db")
}
