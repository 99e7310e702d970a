package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`

	DeviceCacheTTL string `yaml:"device_cache_ttl"`
}

type YamlVapidConfig struct {
	PublicKey       string `yaml:"public_key"`
	PrivateKey      string `yaml:"private_key"`
	SubscriberEmail string `yaml:"subscriber_email"`
	TTLSeconds      int    `yaml:"ttl_seconds"`
}

type YamlApnsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	KeyID    string `yaml:"key_id"`
	TeamID   string `yaml:"team_id"`
	BundleID string `yaml:"bundle_id"`
	P8Key    string `yaml:"p8_key"`
	Sandbox  bool   `yaml:"sandbox"`
}

// YamlConfig mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string          `yaml:"project_id"`
	ListenAddr             string          `yaml:"listen_addr"`
	TopicID                string          `yaml:"topic_id"`
	SubscriptionID         string          `yaml:"subscription_id"`
	SubscriptionDLQTopicID string          `yaml:"subscription_dlq_topic_id"`
	NumPipelineWorkers     int             `yaml:"num_pipeline_workers"`
	DeviceURN              string          `yaml:"device_urn"`
	EventBuffer            int             `yaml:"event_buffer"`
	PayloadTTL             string          `yaml:"payload_ttl"`
	FirestoreRoot          string          `yaml:"firestore_root"`
	CorsConfig             YamlCorsConfig  `yaml:"cors"`
	RedisConfig            YamlRedisConfig `yaml:"redis"`
	VapidConfig            YamlVapidConfig `yaml:"vapid"`
	ApnsConfig             YamlApnsConfig  `yaml:"apns"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ProjectID:              baseCfg.ProjectID,
		ListenAddr:             baseCfg.ListenAddr,
		TopicID:                baseCfg.TopicID,
		SubscriptionID:         baseCfg.SubscriptionID,
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
		DeviceURN:              baseCfg.DeviceURN,
		EventBuffer:            baseCfg.EventBuffer,
		FirestoreRoot:          baseCfg.FirestoreRoot,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
		},
		Vapid: VapidConfig{
			PublicKey:       baseCfg.VapidConfig.PublicKey,
			PrivateKey:      baseCfg.VapidConfig.PrivateKey,
			SubscriberEmail: baseCfg.VapidConfig.SubscriberEmail,
			TTLSeconds:      baseCfg.VapidConfig.TTLSeconds,
		},
		Apns: ApnsConfig{
			Enabled:  baseCfg.ApnsConfig.Enabled,
			KeyID:    baseCfg.ApnsConfig.KeyID,
			TeamID:   baseCfg.ApnsConfig.TeamID,
			BundleID: baseCfg.ApnsConfig.BundleID,
			P8Key:    baseCfg.ApnsConfig.P8Key,
			Sandbox:  baseCfg.ApnsConfig.Sandbox,
		},
	}

	if baseCfg.PayloadTTL != "" {
		ttl, err := time.ParseDuration(baseCfg.PayloadTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid payload_ttl %q: %w", baseCfg.PayloadTTL, err)
		}
		cfg.PayloadTTL = ttl
	}

	if baseCfg.RedisConfig.DeviceCacheTTL != "" {
		ttl, err := time.ParseDuration(baseCfg.RedisConfig.DeviceCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis device_cache_ttl %q: %w", baseCfg.RedisConfig.DeviceCacheTTL, err)
		}
		cfg.Redis.DeviceCacheTTL = ttl
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
		"device_urn", cfg.DeviceURN,
	)

	return cfg, nil
}
