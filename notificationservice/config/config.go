package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

const (
	DefaultEventBuffer   = 64
	DefaultPayloadTTL    = 24 * time.Hour
	DefaultFirestoreRoot = "users"
	// DefaultDeviceCacheTTL bounds how long a missed invalidation can serve
	// a stale device list.
	DefaultDeviceCacheTTL = 10 * time.Minute
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int

	DeviceCacheTTL time.Duration
}

type VapidConfig struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
	TTLSeconds      int
}

// ApnsConfig selects APNs instead of FCM for mobile relay when Enabled.
type ApnsConfig struct {
	Enabled  bool
	KeyID    string
	TeamID   string
	BundleID string
	P8Key    string
	Sandbox  bool
}

// Config is the single, authoritative configuration for the dispatch service.
type Config struct {
	ProjectID              string
	ListenAddr             string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int

	// DeviceURN identifies this host when it registers for push.
	DeviceURN     string
	EventBuffer   int
	PayloadTTL    time.Duration
	FirestoreRoot string

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	Vapid      VapidConfig
	Apns       ApnsConfig

	TopicID              string
	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

func envOverride(logger *slog.Logger, key string, apply func(string)) {
	if val := os.Getenv(key); val != "" {
		logger.Debug("Overriding config value", "key", key, "source", "env")
		apply(val)
	}
}

func positiveInt(val string, target *int) {
	if n, err := strconv.Atoi(val); err == nil && n > 0 {
		*target = n
	}
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	envOverride(logger, "PROJECT_ID", func(v string) { cfg.ProjectID = v })
	envOverride(logger, "PORT", func(v string) { cfg.ListenAddr = ":" + v })
	envOverride(logger, "SUBSCRIPTION_ID", func(v string) {
		cfg.SubscriptionID = v
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(v)
	})
	envOverride(logger, "SUBSCRIPTION_DLQ_TOPIC_ID", func(v string) { cfg.SubscriptionDLQTopicID = v })
	envOverride(logger, "NUM_PIPELINE_WORKERS", func(v string) { positiveInt(v, &cfg.NumPipelineWorkers) })
	envOverride(logger, "EVENT_BUFFER", func(v string) { positiveInt(v, &cfg.EventBuffer) })
	envOverride(logger, "DEVICE_URN", func(v string) { cfg.DeviceURN = v })
	envOverride(logger, "FIRESTORE_ROOT", func(v string) { cfg.FirestoreRoot = v })
	envOverride(logger, "PAYLOAD_TTL", func(v string) {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.PayloadTTL = d
		}
	})

	// Redis
	envOverride(logger, "REDIS_ADDR", func(v string) {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	})
	envOverride(logger, "REDIS_PASSWORD", func(v string) { cfg.Redis.Password = v })
	envOverride(logger, "REDIS_DB", func(v string) {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	})
	envOverride(logger, "REDIS_DEVICE_CACHE_TTL", func(v string) {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Redis.DeviceCacheTTL = d
		}
	})
	envOverride(logger, "REDIS_ENABLED", func(v string) {
		enabled, _ := strconv.ParseBool(v)
		cfg.Redis.Enabled = enabled
	})

	// VAPID
	envOverride(logger, "VAPID_PUBLIC_KEY", func(v string) { cfg.Vapid.PublicKey = v })
	envOverride(logger, "VAPID_PRIVATE_KEY", func(v string) { cfg.Vapid.PrivateKey = v })
	envOverride(logger, "VAPID_SUB_EMAIL", func(v string) { cfg.Vapid.SubscriberEmail = v })

	// APNs
	envOverride(logger, "APNS_KEY_ID", func(v string) { cfg.Apns.KeyID = v })
	envOverride(logger, "APNS_TEAM_ID", func(v string) { cfg.Apns.TeamID = v })
	envOverride(logger, "APNS_BUNDLE_ID", func(v string) { cfg.Apns.BundleID = v })
	envOverride(logger, "APNS_P8_KEY", func(v string) {
		cfg.Apns.P8Key = v
		cfg.Apns.Enabled = true
	})
	envOverride(logger, "APNS_SANDBOX", func(v string) {
		sandbox, _ := strconv.ParseBool(v)
		cfg.Apns.Sandbox = sandbox
	})

	envOverride(logger, "CORS_ALLOWED_ORIGINS", func(v string) {
		var cleanOrigins []string
		for _, o := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	})

	// Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	if cfg.DeviceURN == "" {
		return nil, fmt.Errorf("device_urn is required (set via YAML or DEVICE_URN env var)")
	}
	if _, err := urn.Parse(cfg.DeviceURN); err != nil {
		return nil, fmt.Errorf("invalid device_urn %q: %w", cfg.DeviceURN, err)
	}

	if cfg.Apns.Enabled && cfg.Apns.BundleID == "" {
		return nil, fmt.Errorf("apns bundle_id is required when APNs is enabled")
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.PayloadTTL <= 0 {
		cfg.PayloadTTL = DefaultPayloadTTL
	}
	if cfg.Redis.DeviceCacheTTL <= 0 {
		cfg.Redis.DeviceCacheTTL = DefaultDeviceCacheTTL
	}
	if cfg.FirestoreRoot == "" {
		cfg.FirestoreRoot = DefaultFirestoreRoot
	}
	if cfg.PubsubConsumerConfig == nil {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
