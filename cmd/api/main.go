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
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lumenhq/agent-platform/internal/assembler"
	"github.com/lumenhq/agent-platform/internal/attachments"
	"github.com/lumenhq/agent-platform/internal/config"
	"github.com/lumenhq/agent-platform/internal/handler"
	"github.com/lumenhq/agent-platform/internal/llm"
	"github.com/lumenhq/agent-platform/internal/mailer"
	"github.com/lumenhq/agent-platform/internal/middleware"
	natsclient "github.com/lumenhq/agent-platform/internal/nats"
	"github.com/lumenhq/agent-platform/internal/retrieval"
	"github.com/lumenhq/agent-platform/internal/service"
	"github.com/lumenhq/agent-platform/internal/splitter"
	"github.com/lumenhq/agent-platform/internal/store"
	"github.com/lumenhq/agent-platform/internal/tool"
	"github.com/lumenhq/agent-platform/pkg/logger"
	"github.com/lumenhq/agent-platform/pkg/tracing"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	ctx := context.Background()
	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(ctx, "agent-platform", cfg.Tracing.Endpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Persistence.
	var st store.Store
	if cfg.Database.UseInMemory {
		st = store.NewMemoryStore()
		log.Info("using in-memory store")
	} else {
		pg, err := store.NewPostgresStore(cfg.Database)
		if err != nil {
			log.Error("failed to connect to database", zap.Error(err))
			os.Exit(1)
		}
		st = pg
	}
	defer st.Close()

	// Event stream.
	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATS.URL,
		CAFile:   cfg.NATS.CAFile,
		CertFile: cfg.NATS.CertFile,
		KeyFile:  cfg.NATS.KeyFile,
		Token:    cfg.NATS.Token,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	streamManager := natsclient.NewStreamManager(natsClient)
	if err := streamManager.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure stream", zap.Error(err))
		os.Exit(1)
	}

	// Model gateway.
	gateway, err := llm.NewGateway(llm.GatewayConfig{
		OpenAIAPIKey:    cfg.Providers.OpenAIAPIKey,
		AnthropicAPIKey: cfg.Providers.AnthropicAPIKey,
		EmbeddingModel:  cfg.Providers.EmbeddingModel,
	}, log)
	if err != nil {
		log.Error("failed to create model gateway", zap.Error(err))
		os.Exit(1)
	}

	// Turn collaborators.
	var retriever retrieval.Retriever
	if cfg.Retrieval.BaseURL != "" {
		retriever = retrieval.NewClient(cfg.Retrieval.BaseURL, cfg.Retrieval.APIKey)
	}
	asm := assembler.New(retriever, log)

	split, err := splitter.New(cfg.Providers.OpenAIAPIKey, cfg.Providers.SplitterModel, log)
	if err != nil {
		log.Error("failed to create splitter", zap.Error(err))
		os.Exit(1)
	}

	var extractor attachments.Extractor
	if cfg.Extraction.BaseURL != "" {
		extractor = attachments.NewHTTPExtractor(cfg.Extraction.BaseURL, cfg.Extraction.APIKey)
	}
	resolver := attachments.NewResolver(cfg.Providers.OpenAIAPIKey, extractor, log)

	var mail mailer.Mailer
	if cfg.Mail.Host != "" {
		mail = mailer.NewSMTP(cfg.Mail)
	}

	var actions *tool.ActionsClient
	if cfg.Actions.BaseURL != "" {
		actions = tool.NewActionsClient(cfg.Actions.BaseURL, cfg.Actions.APIKey)
	}

	// Each turn gets its own gateway session so the call gate never spans
	// tenants.
	gatewayFactory := func() service.ModelGateway { return gateway.Session() }

	chatSvc := service.NewChatService(st, gatewayFactory, asm, split, resolver, mail, streamManager, actions, service.ChatConfig{
		RetrievalTopK:     cfg.Retrieval.TopK,
		RetrievalMinScore: cfg.Retrieval.MinScore,
		FormBaseURL:       cfg.Forms.BaseURL,
	}, log)
	conversationSvc := service.NewConversationService(st, log)

	healthHandler := handler.NewHealthHandler(natsClient)
	chatHandler := handler.NewChatHandler(chatSvc, log)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	webhookHandler := handler.NewWebhookHandler(chatSvc, st, nil, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// Inbound channel webhooks, authenticated channel-side.
	r.Post("/webhooks/{channel}", webhookHandler.Receive)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT.Secret))
		r.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))

		r.Post("/chat", chatHandler.Query)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Get("/messages", conversationHandler.Messages)
				r.Get("/approvals", conversationHandler.Approvals)
				r.Put("/ai", conversationHandler.SetAIEnabled)
				r.Put("/status", conversationHandler.SetStatus)
			})
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
