// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/actualpc/phillip-therapy/internal/audit"
	"github.com/actualpc/phillip-therapy/internal/billing"
	"github.com/actualpc/phillip-therapy/internal/config"
	"github.com/actualpc/phillip-therapy/internal/handler"
	"github.com/actualpc/phillip-therapy/internal/ledger"
	"github.com/actualpc/phillip-therapy/internal/llm"
	"github.com/actualpc/phillip-therapy/internal/middleware"
	natsclient "github.com/actualpc/phillip-therapy/internal/nats"
	"github.com/actualpc/phillip-therapy/internal/safety"
	"github.com/actualpc/phillip-therapy/internal/service"
	"github.com/actualpc/phillip-therapy/internal/tokens"
	"github.com/actualpc/phillip-therapy/pkg/logger"
	"github.com/actualpc/phillip-therapy/pkg/tracing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewFromEnv(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "phillip-therapy", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	policy, err := safety.LoadPolicy(cfg.SafetyPolicyFile)
	if err != nil {
		log.Fatal("failed to load safety policy", zap.Error(err))
	}

	// Audit sinks: the local file always, JetStream when NATS is configured
	fileSink, err := audit.OpenFileSink(cfg.AuditLogPath)
	if err != nil {
		log.Fatal("failed to open audit log", zap.String("path", cfg.AuditLogPath), zap.Error(err))
	}
	defer fileSink.Close()
	sinks := []audit.Sink{fileSink}

	var natsClient *natsclient.Client
	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:   cfg.NATSURL,
			Token: cfg.NATSToken,
			Name:  "phillip-therapy",
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure audit stream", zap.Error(err))
		}
		sinks = append(sinks, audit.NewStreamSink(streamManager))
	}
	recorder := audit.NewRecorder(log.Named("audit"), sinks...)

	// Initialize LLM client
	llmClient, err := llm.NewClient(llm.ProviderConfig{
		Provider:        llm.Provider(cfg.LLMProvider),
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
	})
	if err != nil {
		log.Fatal("failed to create LLM client", zap.Error(err))
	}

	// Stripe: the webhook only needs the secret key, checkout also needs a price
	var (
		checkout service.CheckoutCreator
		verifier service.EventVerifier
	)
	if cfg.StripeSecretKey != "" {
		stripeClient, err := billing.NewStripeClient(billing.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			PriceID:       cfg.StripePriceID,
			WebhookSecret: cfg.StripeWebhookSecret,
			SuccessURL:    cfg.CheckoutSuccessURL,
			CancelURL:     cfg.CheckoutCancelURL,
		})
		if err != nil {
			log.Fatal("failed to create Stripe client", zap.Error(err))
		}
		verifier = stripeClient
		if cfg.StripeEnabled() {
			checkout = stripeClient
		}
	} else {
		log.Warn("Stripe not configured, checkout and webhook disabled")
	}

	// Initialize services
	store := ledger.NewMemoryStore(cfg.InitialCredits)
	chatSvc := service.NewChatService(service.ChatServiceConfig{
		Ledger:      store,
		Policy:      policy,
		Relay:       llm.NewRelay(llmClient, cfg.LLMTimeout),
		Recorder:    recorder,
		Counter:     tokens.NewCounter(),
		Temperature: cfg.LLMTemperature,
		Logger:      log.Named("chat"),
	})
	paymentSvc := service.NewPaymentService(store, checkout, verifier, recorder, cfg.CreditsPerPurchase, log.Named("payments"))

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient)
	chatHandler := handler.NewChatHandler(chatSvc, cfg.DefaultModel, log)
	streamHandler := handler.NewStreamHandler(chatSvc, cfg.DefaultModel, log)
	creditsHandler := handler.NewCreditsHandler(store, log)
	stripeHandler := handler.NewStripeHandler(paymentSvc, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.LimitBody(middleware.MaxBodyBytes))
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

			r.Post("/chat", chatHandler.Chat)
			r.Post("/chat/stream", streamHandler.Stream)
		})

		r.Get("/credits", creditsHandler.Get)

		r.Route("/stripe", func(r chi.Router) {
			r.With(middleware.LimitBody(middleware.MaxBodyBytes)).
				Post("/create-checkout-session", stripeHandler.CreateCheckoutSession)
			r.Post("/webhook", stripeHandler.Webhook)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening",
			zap.String("port", cfg.ServerPort),
			zap.String("llm_provider", llmClient.Name()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
