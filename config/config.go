package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Destination is a fixed commute target scored against every listing.
type Destination struct {
	Label     string  `yaml:"label"`
	Latitude  string  `yaml:"latitude"`
	Longitude string  `yaml:"longitude"`
	Weight    float64 `yaml:"weight"`
}

// Thresholds are the suitability ceilings applied by the validator.
// A negative flatmate or bedroom ceiling disables that rule.
type Thresholds struct {
	MaxMonthlyPrice   int
	MaxCommuteMinutes int
	MaxFlatmates      int
	MaxBedrooms       int
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	StoreBackend       string
	SQLitePath         string
	StoreMaxValueBytes int
	RedisURL           string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	SiteRootURL    string
	SiteEmail      string
	SitePassword   string
	ChromeBin      string
	Headless       bool
	RateLimitMs    int
	MaxRetries     int
	LinkDepthLimit int

	DirectionsURL    string
	GoogleMapsAPIKey string
	DestinationsFile string
	Destinations     []Destination

	Thresholds Thresholds

	ExportCSVPath string
	Schedule      string
	LogLevel      string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		StoreBackend:       strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
		SQLitePath:         getEnv("SQLITE_PATH", "./data/triage.db"),
		StoreMaxValueBytes: getEnvInt("STORE_MAX_VALUE_BYTES", 8192),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "triage"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "triage"),
		PostgresDB:       getEnv("POSTGRES_DB", "triage"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		SiteRootURL:    strings.TrimRight(getEnv("SITE_ROOT_URL", "https://www.spareroom.co.uk"), "/"),
		SiteEmail:      getEnv("SITE_EMAIL", ""),
		SitePassword:   getEnv("SITE_PASSWORD", ""),
		ChromeBin:      getEnv("CHROME_BIN", ""),
		Headless:       getEnvBool("HEADLESS", false),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 1000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		LinkDepthLimit: getEnvInt("LINK_DEPTH_LIMIT", 64),

		DirectionsURL:    getEnv("DIRECTIONS_URL", "https://maps.googleapis.com/maps/api/directions/json"),
		GoogleMapsAPIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
		DestinationsFile: getEnv("DESTINATIONS_FILE", "./destinations.yaml"),

		Thresholds: Thresholds{
			MaxMonthlyPrice:   getEnvInt("MAX_PRICE", 850),
			MaxCommuteMinutes: getEnvInt("MAX_COMMUTE_MINUTES", 40),
			MaxFlatmates:      getEnvInt("MAX_FLATMATES", 3),
			MaxBedrooms:       getEnvInt("MAX_BEDROOMS", 4),
		},

		ExportCSVPath: getEnv("EXPORT_CSV_PATH", "./output/scored_listings.csv"),
		Schedule:      getEnv("SCHEDULE", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	destinations, err := LoadDestinations(cfg.DestinationsFile)
	if err != nil {
		log.Printf("[config] %v, using built-in destinations", err)
		destinations = DefaultDestinations()
	}
	cfg.Destinations = destinations

	return cfg
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// DestinationWeights maps destination labels to their score weight.
func (c *Config) DestinationWeights() map[string]float64 {
	weights := make(map[string]float64, len(c.Destinations))
	for _, d := range c.Destinations {
		weights[d.Label] = d.Weight
	}
	return weights
}

type destinationsFile struct {
	Destinations []Destination `yaml:"destinations"`
}

// LoadDestinations parses the YAML destinations file at path.
func LoadDestinations(path string) ([]Destination, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read destinations file: %w", err)
	}

	var f destinationsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse destinations file %q: %w", path, err)
	}
	if len(f.Destinations) == 0 {
		return nil, fmt.Errorf("destinations file %q lists no destinations", path)
	}

	for i, d := range f.Destinations {
		if d.Label == "" || d.Latitude == "" || d.Longitude == "" {
			return nil, fmt.Errorf("destination %d in %q is missing label or coordinates", i, path)
		}
		if d.Weight == 0 {
			f.Destinations[i].Weight = 1
		}
	}
	return f.Destinations, nil
}

// DefaultDestinations is used when no destinations file is present.
func DefaultDestinations() []Destination {
	return []Destination{
		{Label: "Soho", Latitude: "51.5105546", Longitude: "-0.1383121", Weight: 0.5},
		{Label: "Aldgate", Latitude: "51.5156236", Longitude: "-0.0679687", Weight: 2},
		{Label: "Bermondsey", Latitude: "51.4999826", Longitude: "-0.0501279", Weight: 3},
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
