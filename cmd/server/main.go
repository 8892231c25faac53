package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dealdesk/internal/auth"
	"dealdesk/internal/config"
	"dealdesk/internal/handler"
	"dealdesk/internal/handler/sse"
	"dealdesk/internal/middleware"
	"dealdesk/internal/repository/postgres"
	chatSvc "dealdesk/internal/service/chat"
	dealSvc "dealdesk/internal/service/deal"
	gateSvc "dealdesk/internal/service/gate"
	"dealdesk/internal/service/llm"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	var logOut io.Writer = os.Stdout
	if cfg.Debug {
		logFile, err := config.OpenLogFile("logs", 5)
		if err != nil {
			log.Printf("log file setup failed, logging to stdout only: %v", err)
		} else {
			defer logFile.Close()
			logOut = io.MultiWriter(os.Stdout, logFile)
		}
	}

	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger) // Set as default logger

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	// Create JWT verifier for authenticated routes
	jwtVerifier, err := auth.NewJWTVerifier(cfg.JWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// Create pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected",
		"max_conns", 25,
		"min_conns", 5,
	)

	// Create table names
	tables := postgres.NewTableNames(cfg.TablePrefix)

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	sessionRepo := postgres.NewSessionRepository(repoConfig)
	conversationRepo := postgres.NewConversationRepository(repoConfig)
	messageRepo := postgres.NewMessageRepository(repoConfig)
	dealRepo := postgres.NewDealRepository(repoConfig)
	deliverableRepo := postgres.NewDeliverableRepository(repoConfig)
	ledgerRepo := postgres.NewLedgerRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	// Load gate journeys
	journeys, err := config.LoadJourneys(cfg.JourneysPath)
	if err != nil {
		log.Fatalf("Failed to load journeys: %v", err)
	}

	// Setup LLM provider
	provider, err := llm.SetupProvider(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to setup LLM provider: %v", err)
	}
	model := llm.DefaultModelFor(provider, cfg)

	// Create services
	gateService := gateSvc.NewService(journeys, conversationRepo, dealRepo, ledgerRepo, deliverableRepo, txManager, logger)
	chatService := chatSvc.NewService(
		sessionRepo, conversationRepo, messageRepo, dealRepo,
		provider, gateService, journeys, txManager,
		model, cfg.AnonymousMessageSeed, logger,
	)
	dealService := dealSvc.NewService(dealRepo, deliverableRepo, logger)

	// Create handlers
	sessionHandler := handler.NewSessionHandler(chatService, logger)
	chatHandler := handler.NewChatHandler(chatService, sse.DefaultConfig(), logger)
	dealHandler := handler.NewDealHandler(dealService, logger)
	gateHandler := handler.NewGateHandler(gateService, logger)

	// Session creation is rate limited per client IP
	sessionLimiter := middleware.NewSessionRateLimiter(10, 3, logger)

	logger.Info("services initialized", "model", model, "provider", provider.Name())

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", handler.HealthCheck)

	// Anonymous session routes (public, rate limited on create)
	mux.Handle("POST /api/anon/sessions", sessionLimiter.Middleware(http.HandlerFunc(sessionHandler.CreateSession)))
	mux.HandleFunc("GET /api/anon/sessions/{token}", sessionHandler.GetSession)
	mux.HandleFunc("POST /api/anon/sessions/{token}/messages", chatHandler.StreamSessionMessage) // SSE streaming endpoint

	// Conversation routes
	mux.HandleFunc("POST /api/conversations", chatHandler.CreateConversation)
	mux.HandleFunc("GET /api/conversations", chatHandler.ListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", chatHandler.GetConversation)
	mux.HandleFunc("GET /api/conversations/{id}/messages", chatHandler.ListConversationMessages)
	mux.HandleFunc("POST /api/conversations/{id}/messages", chatHandler.StreamConversationMessage) // SSE streaming endpoint

	// Deal routes
	mux.HandleFunc("GET /api/deals", dealHandler.ListDeals)
	mux.HandleFunc("GET /api/deals/{id}", dealHandler.GetDeal)

	// Gate purchase routes
	mux.HandleFunc("POST /api/gates/{gate}/purchase", gateHandler.Purchase)

	// Build middleware chain
	var httpHandler http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → Routes
	httpHandler = middleware.AuthMiddleware(jwtVerifier)(httpHandler)
	httpHandler = middleware.Recovery(logger)(httpHandler)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	})
	httpHandler = corsHandler.Handler(httpHandler)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	// Run the server and the shutdown watcher together
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		logger.Info("server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	logger.Info("server stopped")
}
