package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-notification-dispatch/internal/platform/apns"
	"github.com/tinywideclouds/go-notification-dispatch/internal/platform/fcm"
	"github.com/tinywideclouds/go-notification-dispatch/internal/platform/web"
	"github.com/tinywideclouds/go-notification-dispatch/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-notification-dispatch/internal/storage/firestore"
	"github.com/tinywideclouds/go-notification-dispatch/internal/storage/memory"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"

	"github.com/tinywideclouds/go-notification-dispatch/notificationservice"
	"github.com/tinywideclouds/go-notification-dispatch/notificationservice/config"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-notification-dispatch")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Config mapping failed", "err", err)
		os.Exit(1)
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Infrastructure Clients ---
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("PubSub client failed", "err", err)
		os.Exit(1)
	}
	defer psClient.Close()

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("Firestore client failed", "err", err)
		os.Exit(1)
	}
	defer fsClient.Close()

	// --- Stores ---
	var tokenStore dispatch.TokenStore = fsStore.NewTokenStore(fsClient, cfg.FirestoreRoot)
	var payloadStore dispatch.PayloadStore = memory.NewPayloadStore()
	logger.Info("Stores initialized", "tokens", "firestore", "payloads", "memory")

	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		tokenStore = cache.NewDeviceCache(tokenStore, redisClient, cfg.Redis.DeviceCacheTTL, logger)
		payloadStore = cache.NewPayloadStore(redisClient, cfg.PayloadTTL)
		logger.Info("Stores upgraded", "tokens", "redis_cached_firestore", "payloads", "redis")
	}

	// --- Auth ---
	identityURL := os.Getenv("IDENTITY_SERVICE_URL")
	if identityURL == "" {
		identityURL = "http://localhost:3000"
	}
	jwksURL, err := middleware.DiscoverAndValidateJWTConfig(identityURL, middleware.RSA256, logger)
	if err != nil {
		logger.Error("JWT discovery failed", "identity_url", identityURL, "err", err)
		os.Exit(1)
	}
	authMiddleware, err := middleware.NewJWKSAuthMiddleware(jwksURL, logger)
	if err != nil {
		logger.Error("Auth middleware failed", "err", err)
		os.Exit(1)
	}

	// --- Relay Dispatchers ---
	mobileDispatcher, err := newMobileDispatcher(ctx, cfg, logger)
	if err != nil {
		logger.Error("Mobile dispatcher failed", "err", err)
		os.Exit(1)
	}

	if cfg.Vapid.PrivateKey == "" || cfg.Vapid.PublicKey == "" {
		logger.Warn("VAPID keys missing in configuration. Web Push relay will fail.")
	}
	webDispatcher := web.NewDispatcher(cfg.Vapid, logger)

	// --- Consumer & Service ---
	consumer, err := newIngestionConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		logger.Error("Consumer creation failed", "err", err)
		os.Exit(1)
	}

	service, err := notificationservice.New(
		cfg,
		consumer,
		mobileDispatcher,
		webDispatcher,
		tokenStore,
		payloadStore,
		authMiddleware,
		logger,
	)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting service...", "device_urn", cfg.DeviceURN)
		errCh <- service.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Service stopped with error", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", "err", err)
	}
}

// newMobileDispatcher picks APNs when configured, FCM otherwise.
func newMobileDispatcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (dispatch.Dispatcher, error) {
	if cfg.Apns.Enabled {
		logger.Info("Mobile relay via APNs", "bundle_id", cfg.Apns.BundleID, "sandbox", cfg.Apns.Sandbox)
		return apns.NewDispatcher(apns.Config{
			KeyID:        cfg.Apns.KeyID,
			TeamID:       cfg.Apns.TeamID,
			BundleID:     cfg.Apns.BundleID,
			P8KeyContent: cfg.Apns.P8Key,
			Sandbox:      cfg.Apns.Sandbox,
		}, logger)
	}

	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	messaging, err := fbApp.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create FCM messaging client: %w", err)
	}
	logger.Info("Mobile relay via FCM")
	return fcm.NewDispatcher(messaging, logger), nil
}

// newIngestionConsumer ensures the push subscription exists, with its
// dead-letter policy, and returns a consumer for it.
func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := resourceName(cfg.ProjectID, "subscriptions", cfg.PubsubConsumerConfig.SubscriptionID)

	if cfg.TopicID != "" {
		subConfig := &pubsubpb.Subscription{
			Name:               sub,
			Topic:              resourceName(cfg.ProjectID, "topics", cfg.TopicID),
			AckDeadlineSeconds: 10,
		}
		if cfg.SubscriptionDLQTopicID != "" {
			subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
				DeadLetterTopic:     resourceName(cfg.ProjectID, "topics", cfg.SubscriptionDLQTopicID),
				MaxDeliveryAttempts: 5,
			}
		}

		logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
		if _, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig); err != nil {
			if status.Code(err) != codes.AlreadyExists {
				return nil, fmt.Errorf("could not create subscription %s: %w", sub, err)
			}
			logger.Debug("Subscription already exists, skipping creation", "sub", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(sub), psClient, logger,
	)
}

func resourceName(project, kind, id string) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, kind, id)
}
