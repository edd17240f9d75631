// Training portal core server: class timelines and the grounded chat assistant.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/portal-treinamento/core/internal/api"
	"github.com/portal-treinamento/core/internal/chat"
	"github.com/portal-treinamento/core/internal/config"
	"github.com/portal-treinamento/core/internal/health"
	"github.com/portal-treinamento/core/internal/identity"
	"github.com/portal-treinamento/core/internal/llm"
	"github.com/portal-treinamento/core/internal/middleware"
	"github.com/portal-treinamento/core/internal/retrieval"
	"github.com/portal-treinamento/core/internal/scheduler"
	"github.com/portal-treinamento/core/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "db_driver", cfg.DB.Driver, "chat_provider", cfg.LLM.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.New(ctx, store.Options{Driver: cfg.DB.Driver, Path: cfg.DB.Path, DSN: cfg.DB.DSN})
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	slog.Info("Database connected")

	completer, err := llm.NewCompleter(ctx, llm.Config{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.CompletionKey(),
		BaseURL:     cfg.LLM.OpenAIBaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: llm.Float64(cfg.LLM.Temperature),
	})
	if err != nil {
		slog.Error("Failed to initialize chat provider", "error", err)
		os.Exit(1)
	}

	// Retrieval needs embeddings; without an OpenAI key the chat answers
	// without document context.
	var lookup chat.ContextLookup
	if cfg.Retrieval.Enabled && cfg.LLM.OpenAIKey != "" {
		embedder, err := llm.NewOpenAIEmbedder(cfg.LLM.OpenAIKey, cfg.LLM.OpenAIBaseURL, cfg.LLM.EmbeddingModel)
		if err != nil {
			slog.Error("Failed to initialize embedder", "error", err)
			os.Exit(1)
		}
		lookup = retrieval.NewIndex(embedder, repo, logger)
		slog.Info("Document retrieval enabled", "embedding_model", cfg.LLM.EmbeddingModel)
	} else {
		slog.Info("Document retrieval disabled (RETRIEVAL_ENABLED=false or OPENAI_API_KEY not set)")
	}

	opts := chat.DefaultOptions()
	opts.UseRetrieval = lookup != nil
	opts.HistoryLimit = cfg.Chat.HistoryLimit
	opts.RetrievalThreshold = cfg.Retrieval.Threshold
	opts.RetrievalTopK = cfg.Retrieval.TopK
	opts.RetrievalTimeout = cfg.Retrieval.Timeout
	opts.StreamTimeout = cfg.Chat.StreamTimeout
	opts.SaveTimeout = cfg.Chat.SaveTimeout
	chatService := chat.NewService(completer, lookup, repo, cfg.Tenants, opts, logger)

	// Identity: a nil verifier means anonymous development identities.
	var verifier *identity.Verifier
	if cfg.JWTSecret != "" {
		verifier = identity.NewVerifier(cfg.JWTSecret)
	} else {
		slog.Warn("JWT_SECRET not set, using anonymous development identities")
	}

	// Initialize handlers.
	handler := api.NewHandler(repo, chatService, nil)
	if cfg.Chat.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.Chat.RateLimit, time.Minute)
		defer limiter.Stop()
		handler.WithChatLimit(middleware.RateLimit(limiter, func(r *http.Request) string {
			return identity.UserIDFromContext(r.Context())
		}))
	}
	healthHandler := api.NewHealthHandler(repo, chatService, 5*time.Second)
	wsHandler := api.NewChatWebSocketHandler(chatService, cfg.FrontendURL, cfg.IsDevelopment())

	origins := []string{"*"}
	if !cfg.IsDevelopment() {
		origins = []string{cfg.FrontendURL}
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(origins))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(verifier))
		handler.RegisterRoutes(r)
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	// Create server.
	// Note: SSE connections require long timeouts (no WriteTimeout)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	// gRPC health service.
	grpcHealth := health.NewServer(repo, 5*time.Second, logger)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		slog.Error("Failed to listen for gRPC", "port", cfg.GRPCPort, "error", err)
		os.Exit(1)
	}
	go grpcHealth.Watch(ctx, 15*time.Second)
	go func() {
		if err := grpcHealth.Serve(lis); err != nil {
			slog.Error("gRPC health server failed", "error", err)
		}
	}()

	// Background jobs.
	jobs, err := scheduler.New(repo, chatService, scheduler.Config{
		SweepAt:        cfg.Jobs.StatusSweepAt,
		SessionIdleTTL: cfg.Chat.IdleTTL,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize scheduler", "error", err)
		os.Exit(1)
	}
	go jobs.Run(ctx)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcHealth.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
