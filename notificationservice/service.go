// Package notificationservice assembles the dispatch engine and its HTTP and
// Pub/Sub surfaces into a runnable service.
package notificationservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-notification-dispatch/internal/api"
	"github.com/tinywideclouds/go-notification-dispatch/internal/eventloop"
	"github.com/tinywideclouds/go-notification-dispatch/internal/pipeline"
	"github.com/tinywideclouds/go-notification-dispatch/internal/platform/host"
	"github.com/tinywideclouds/go-notification-dispatch/internal/relay"
	"github.com/tinywideclouds/go-notification-dispatch/notificationmanager"
	"github.com/tinywideclouds/go-notification-dispatch/notificationservice/config"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-dispatch/pkg/notify"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[pipeline.InboundPush]
	loop            *eventloop.Loop
	manager         *notificationmanager.Manager
	host            *host.Host
	relay           *relay.Relay
	engineCtx       context.Context
	stopEngine      context.CancelFunc
	logger          *slog.Logger
}

// New assembles the service. Events flow from the host platform and the
// push pipeline through the event loop into the Manager; fired local
// notifications with a recipient are relayed to that user's devices.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	mobileDispatcher dispatch.Dispatcher,
	webDispatcher dispatch.WebDispatcher,
	tokenStore dispatch.TokenStore,
	payloadStore dispatch.PayloadStore,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {
	device, err := urn.Parse(cfg.DeviceURN)
	if err != nil {
		return nil, fmt.Errorf("invalid device urn %q: %w", cfg.DeviceURN, err)
	}

	// 1. Engine: loop -> manager -> host, wired in a cycle through the loop.
	var manager *notificationmanager.Manager
	loop := eventloop.New(eventloop.SinkFunc(func(ev notify.Event) {
		manager.CustomEvent(ev)
	}), cfg.EventBuffer, logger)

	hostPlatform := host.New(host.Config{DeviceURN: device}, loop, payloadStore, tokenStore, logger)
	manager = notificationmanager.New(hostPlatform, logger)

	// 2. Relay
	relayListener := relay.New(mobileDispatcher, webDispatcher, tokenStore, cfg.EventBuffer, logger)
	manager.AddLocalListener(relayListener)

	// 3. Push ingestion pipeline
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.PushMessageTransformer,
		pipeline.NewProcessor(hostPlatform, logger),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. HTTP
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)
	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)
	protected := func(h http.Handler) http.Handler {
		return corsMiddleware(authMiddleware(h))
	}

	tokenAPI := api.NewTokenAPI(tokenStore, logger)
	mux.Handle("POST /api/v1/register/fcm", protected(http.HandlerFunc(tokenAPI.RegisterFCM)))
	mux.Handle("POST /api/v1/register/web", protected(http.HandlerFunc(tokenAPI.RegisterWeb)))
	mux.Handle("POST /api/v1/unregister/fcm", protected(http.HandlerFunc(tokenAPI.UnregisterFCM)))
	mux.Handle("POST /api/v1/unregister/web", protected(http.HandlerFunc(tokenAPI.UnregisterWeb)))

	api.NewControlAPI(manager, logger).Routes(mux, protected)

	// CORS preflight for the whole namespace
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	engineCtx, stopEngine := context.WithCancel(context.Background())
	return &Wrapper{
		BaseServer:      baseServer,
		engineCtx:       engineCtx,
		stopEngine:      stopEngine,
		pipelineService: streamingService,
		loop:            loop,
		manager:         manager,
		host:            hostPlatform,
		relay:           relayListener,
		logger:          logger,
	}, nil
}

// Manager exposes the engine so callers can attach their own listeners.
func (w *Wrapper) Manager() *notificationmanager.Manager {
	return w.manager
}

// Host exposes the in-process platform backing the Manager.
func (w *Wrapper) Host() *host.Host {
	return w.host
}

// Start runs the engine, the ingestion pipeline and the HTTP server. The
// engine outlives ctx: it keeps dispatching until Shutdown has stopped intake.
func (w *Wrapper) Start(ctx context.Context) error {
	w.loop.Start(w.engineCtx)
	w.relay.Start(w.engineCtx)

	w.logger.Info("Push ingestion pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

// Shutdown stops intake first, then the engine, then the HTTP server.
func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}

	w.host.Close()
	w.host.Wait()
	if err := w.loop.Stop(ctx); err != nil {
		w.logger.Error("Event loop shutdown failed.", "err", err)
		finalErr = err
	}
	w.relay.Stop()
	w.stopEngine()
	w.manager.Close()

	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
