package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config captures everything the service reads from the environment so main
// stays lean. Optional subsystems (Redis, Kafka) are disabled when their
// settings are absent.
type Config struct {
	Addr string

	// Database connection. URL wins when set; otherwise the split host/port/
	// name/user/password variables are assembled into a DSN.
	DatabaseURL string

	// Feature flags. Both default to off so a misconfigured environment
	// records nothing rather than failing requests.
	AnalyticsEnabled bool
	ReadinessEnabled bool

	RedisURL     string
	KafkaBrokers []string

	// Topics for the outbox publisher and the orchestrator scorecard consumer.
	EventsTopic     string
	ScorecardsTopic string
	ConsumerGroup   string

	AdminToken    string
	JWTSigningKey string

	// RecomputeInterval drives the background readiness sweep; zero disables it.
	RecomputeInterval time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:             getenv("PULSE_ANALYTICS_ADDR", ":8080"),
		AnalyticsEnabled: truthy(os.Getenv("PULSE_ANALYTICS_ENABLED")),
		ReadinessEnabled: truthy(os.Getenv("PULSE_READINESS_ENABLED")),
		RedisURL:         os.Getenv("PULSE_REDIS_URL"),
		EventsTopic:      getenv("PULSE_EVENTS_TOPIC", "pulse.analytics.session-events"),
		ScorecardsTopic:  getenv("PULSE_SCORECARDS_TOPIC", "pulse.orchestrator.scorecards"),
		ConsumerGroup:    getenv("PULSE_CONSUMER_GROUP", "pulse-analytics"),
		AdminToken:       os.Getenv("PULSE_ADMIN_TOKEN"),
		JWTSigningKey:    os.Getenv("PULSE_JWT_SIGNING_KEY"),
	}

	if brokers := os.Getenv("PULSE_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	if raw := os.Getenv("PULSE_RECOMPUTE_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse PULSE_RECOMPUTE_INTERVAL: %w", err)
		}
		cfg.RecomputeInterval = d
	}

	dsn, err := databaseURL()
	if err != nil {
		return Config{}, err
	}
	cfg.DatabaseURL = dsn

	return cfg, nil
}

// databaseURL resolves PULSE_ANALYTICS_DATABASE_URL, falling back to the split
// host/name/user/password variables the orchestrator deployments use.
func databaseURL() (string, error) {
	if dsn := strings.TrimSpace(os.Getenv("PULSE_ANALYTICS_DATABASE_URL")); dsn != "" {
		return dsn, nil
	}

	host := strings.TrimSpace(os.Getenv("PULSE_ANALYTICS_DB_HOST"))
	name := strings.TrimSpace(os.Getenv("PULSE_ANALYTICS_DB_NAME"))
	user := strings.TrimSpace(os.Getenv("PULSE_ANALYTICS_DB_USER"))
	password := strings.TrimSpace(os.Getenv("PULSE_ANALYTICS_DB_PASSWORD"))
	port := strings.TrimSpace(os.Getenv("PULSE_ANALYTICS_DB_PORT"))
	if port == "" {
		port = "5432"
	}

	if host == "" || name == "" || user == "" || password == "" {
		return "", fmt.Errorf(
			"analytics database configuration is incomplete: " +
				"set PULSE_ANALYTICS_DATABASE_URL or PULSE_ANALYTICS_DB_HOST/NAME/USER/PASSWORD")
	}

	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s",
		url.QueryEscape(user), url.QueryEscape(password), host, port, name), nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// truthy matches the orchestrator's flag parsing: true/1/yes enable.
func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
