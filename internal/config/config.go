package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string
	DataDir    string
	DBPath     string
	ConfigPath string
	LogLevel   string
	Retention  time.Duration
	AdminToken string

	OpenAIKey    string
	GoogleKey    string
	AnthropicKey string
	DeepSeekKey  string

	UCIEnginePath string
	UCIEngineArgs []string
	UCIMovetimeMS int

	KafkaBrokers []string
	KafkaTopic   string

	MQTTBroker      string
	MQTTTopicPrefix string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// FromEnv reads the process environment after loading an optional .env file
// from the working directory.
func FromEnv() Config {
	_ = godotenv.Load()

	dataDir := getenv("ARENA_DATA_DIR", "./data")
	return Config{
		ListenAddr: getenv("ARENA_LISTEN_ADDR", ":8080"),
		DataDir:    dataDir,
		DBPath:     getenv("ARENA_DB_PATH", filepath.Join(dataDir, "arena.sqlite")),
		ConfigPath: getenv("ARENA_CONFIG_PATH", filepath.Join(dataDir, "config.json")),
		LogLevel:   getenv("ARENA_LOG_LEVEL", "info"),
		Retention:  getduration("ARENA_RETENTION", time.Hour),
		AdminToken: strings.TrimSpace(os.Getenv("ARENA_ADMIN_TOKEN")),

		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		GoogleKey:    getenv("GOOGLE_API_KEY", os.Getenv("GEMINI_API_KEY")),
		AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
		DeepSeekKey:  os.Getenv("DEEPSEEK_API_KEY"),

		UCIEnginePath: os.Getenv("ARENA_UCI_ENGINE"),
		UCIEngineArgs: strings.Fields(os.Getenv("ARENA_UCI_ARGS")),
		UCIMovetimeMS: getint("ARENA_UCI_MOVETIME_MS", 100),

		KafkaBrokers: getlist("ARENA_KAFKA_BROKERS"),
		KafkaTopic:   getenv("ARENA_KAFKA_TOPIC", "arena.events"),

		MQTTBroker:      os.Getenv("ARENA_MQTT_BROKER"),
		MQTTTopicPrefix: getenv("ARENA_MQTT_TOPIC_PREFIX", "arena"),

		S3Bucket:    os.Getenv("ARENA_S3_BUCKET"),
		S3Region:    getenv("ARENA_S3_REGION", "auto"),
		S3Endpoint:  os.Getenv("ARENA_S3_ENDPOINT"),
		S3AccessKey: os.Getenv("ARENA_S3_ACCESS_KEY_ID"),
		S3SecretKey: os.Getenv("ARENA_S3_SECRET_ACCESS_KEY"),
	}
}

func getenv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getint(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getduration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

func getlist(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
