package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Local durable store
	DataDir  string
	ClinicID string

	// Remote replicated store
	RemoteEnable    bool
	RemoteURL       string
	RemotePassword  string
	RemoteDB        int
	RemoteKeyPrefix string
	PollInterval    time.Duration
	SyncSecret      string

	// Token creation policy (evaluated by the HTTP layer)
	AdminSecret    string
	AllowWebTokens bool

	// Wait-time estimator
	DefaultAvgServiceSeconds int
	ServiceCapacity          int
	MedianSampleSize         int

	// PubNub device channel
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	DeviceTopicPrefix  string

	// Pairing
	PairingTimeout time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	dataDir := getEnv("DATA_DIR", "data")

	cfg := &Config{
		// Server
		Port:        getEnv("PORT", "3000"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Local store
		DataDir:  dataDir,
		ClinicID: loadClinicID(dataDir),

		// Remote store
		RemoteEnable:    getEnvAsBool("REMOTE_ENABLE", false),
		RemoteURL:       getEnv("REMOTE_URL", "localhost:6379"),
		RemotePassword:  getEnv("REMOTE_PASSWORD", ""),
		RemoteDB:        getEnvAsInt("REMOTE_DB", 0),
		RemoteKeyPrefix: getEnv("REMOTE_KEY_PREFIX", "queue:entry:"),
		PollInterval:    getEnvAsDuration("REMOTE_POLL_INTERVAL", "30s"),
		SyncSecret:      getEnv("SYNC_SECRET", ""),

		// Policy
		AdminSecret:    getEnv("SECRET_ADMIN_TOKEN", ""),
		AllowWebTokens: getEnvAsBool("ALLOW_WEB_TOKENS", false),

		// Estimator
		DefaultAvgServiceSeconds: getEnvAsInt("AVG_SERVICE_SECONDS", 180),
		ServiceCapacity:          getEnvAsInt("SERVICE_CAPACITY", 1),
		MedianSampleSize:         getEnvAsInt("MEDIAN_SAMPLE_SIZE", 50),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Pairing
		PairingTimeout: getEnvAsDuration("PAIRING_TIMEOUT", "30s"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}

	if cfg.ServiceCapacity < 1 {
		cfg.ServiceCapacity = 1
	}

	cfg.DeviceTopicPrefix = getEnv("DEVICE_TOPIC_PREFIX",
		fmt.Sprintf("queue.clinic.%s.", cfg.ClinicID))

	return cfg
}

// DeviceUpdatesChannel is the topic the broadcaster publishes snapshots to.
func (c *Config) DeviceUpdatesChannel() string {
	return c.DeviceTopicPrefix + "updates"
}

// DeviceIncomingChannel is the topic field devices publish messages on.
func (c *Config) DeviceIncomingChannel() string {
	return c.DeviceTopicPrefix + "incoming"
}

// loadClinicID prefers the CLINIC_ID env var, then the persisted id file,
// and finally generates one and persists it so the facility keeps a stable
// identity across restarts.
func loadClinicID(dataDir string) string {
	if id := os.Getenv("CLINIC_ID"); id != "" {
		return id
	}

	idFile := filepath.Join(dataDir, "clinic_id.txt")
	if raw, err := os.ReadFile(idFile); err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Printf("Failed to create data dir for clinic id, using default-clinic: %v", err)
		return "default-clinic"
	}
	if err := os.WriteFile(idFile, []byte(id), 0o644); err != nil {
		log.Printf("Failed to persist clinic id, using default-clinic: %v", err)
		return "default-clinic"
	}
	log.Printf("Generated new clinic id and saved to %s", idFile)
	return id
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
