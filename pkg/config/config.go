package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Gate identity
	GateID string

	// MQTT Configuration
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	// Per-gate topic patterns ({gate_id} is substituted per gate; the
	// dashboard subscribes with the MQTT wildcard in its place)
	MQTTTopicCommands  string
	MQTTTopicStatus    string
	MQTTTopicHeartbeat string
	MQTTTopicDetection string

	// Relay Configuration
	DashboardURL      string
	RelayTimeout      time.Duration
	HeartbeatInterval time.Duration

	// Inference engine
	DetectorURL           string
	DetectorPollInterval  time.Duration
	DetectorTimeout       time.Duration
	DetectorMinConfidence float64
	DetectionRetryDelay   time.Duration

	// Rules
	RulesPath string

	// Edge HTTP server
	ServerAddr      string
	CameraStreamURL string

	// Reverse tunnel
	TunnelEnabled      bool
	TunnelSSHUser      string
	TunnelSSHHost      string
	TunnelIdentityFile string
	TunnelRemotePort   int
	TunnelLocalPort    int

	// Dashboard
	DashboardAddr    string
	GateOfflineAfter time.Duration

	// ClickHouse Configuration (dashboard event history)
	ClickHouseEnabled bool
	ClickHouseAddr    string
	ClickHouseDB      string
	ClickHouseUser    string
	ClickHousePass    string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		// Gate identity
		GateID: getEnv("GATE_ID", "1"),

		// MQTT Configuration
		MQTTBroker:   getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "smartgate"),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),

		// Per-gate topic patterns
		MQTTTopicCommands:  getEnv("MQTT_TOPIC_COMMANDS", "gates/{gate_id}/commands"),
		MQTTTopicStatus:    getEnv("MQTT_TOPIC_STATUS", "gates/{gate_id}/status"),
		MQTTTopicHeartbeat: getEnv("MQTT_TOPIC_HEARTBEAT", "gates/{gate_id}/heartbeat"),
		MQTTTopicDetection: getEnv("MQTT_TOPIC_DETECTION", "gates/{gate_id}/detection"),

		// Relay Configuration
		DashboardURL:      getEnv("DASHBOARD_URL", "http://localhost:5000"),
		RelayTimeout:      getEnvDuration("RELAY_TIMEOUT", 2*time.Second),
		HeartbeatInterval: getEnvDuration("HEARTBEAT_INTERVAL", 10*time.Second),

		// Inference engine
		DetectorURL:           getEnv("DETECTOR_URL", "http://localhost:8090/detections"),
		DetectorPollInterval:  getEnvDuration("DETECTOR_POLL_INTERVAL", 200*time.Millisecond),
		DetectorTimeout:       getEnvDuration("DETECTOR_TIMEOUT", 2*time.Second),
		DetectorMinConfidence: getEnvFloat("DETECTOR_MIN_CONFIDENCE", 0.5),
		DetectionRetryDelay:   getEnvDuration("DETECTION_RETRY_DELAY", time.Second),

		// Rules
		RulesPath: getEnv("RULES_PATH", "./rules.yaml"),

		// Edge HTTP server
		ServerAddr:      getEnv("SERVER_ADDR", ":5000"),
		CameraStreamURL: getEnv("CAMERA_STREAM_URL", "http://localhost:8081/stream"),

		// Reverse tunnel
		TunnelEnabled:      getEnvBool("TUNNEL_ENABLED", false),
		TunnelSSHUser:      getEnv("TUNNEL_SSH_USER", ""),
		TunnelSSHHost:      getEnv("TUNNEL_SSH_HOST", ""),
		TunnelIdentityFile: getEnv("TUNNEL_IDENTITY_FILE", ""),
		TunnelRemotePort:   getEnvInt("TUNNEL_REMOTE_PORT", 8022),
		TunnelLocalPort:    getEnvInt("TUNNEL_LOCAL_PORT", 5000),

		// Dashboard
		DashboardAddr:    getEnv("DASHBOARD_ADDR", ":5000"),
		GateOfflineAfter: getEnvDuration("GATE_OFFLINE_AFTER", 30*time.Second),

		// ClickHouse Configuration
		ClickHouseEnabled: getEnvBool("CLICKHOUSE_ENABLED", false),
		ClickHouseAddr:    getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:      getEnv("CLICKHOUSE_DB", "smartgate"),
		ClickHouseUser:    getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass:    getEnv("CLICKHOUSE_PASS", ""),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return intValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: failed to parse %s as float, using default: %v", key, err)
		return defaultValue
	}
	return floatValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as bool, using default: %v", key, err)
		return defaultValue
	}
	return boolValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as duration, using default: %v", key, err)
		return defaultValue
	}
	return duration
}
