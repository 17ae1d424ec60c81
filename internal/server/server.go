package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/kardai/apiserver/config"
	"github.com/kardai/apiserver/internal/auth"
	"github.com/kardai/apiserver/internal/db"
	"github.com/kardai/apiserver/internal/generation"
	"github.com/kardai/apiserver/internal/handlers"
	kardmw "github.com/kardai/apiserver/internal/middleware"
	"github.com/kardai/apiserver/internal/mq"
	"github.com/kardai/apiserver/internal/services"
	"github.com/kardai/apiserver/internal/storage"
	"github.com/kardai/apiserver/internal/store"
)

const (
	shutdownTimeout = 15 * time.Second

	// requestTimeout must exceed two generation calls plus the insert.
	// writeTimeout must exceed requestTimeout so the fallback response
	// can still be written.
	requestTimeout = 60 * time.Second
	writeTimeout   = requestTimeout + 15*time.Second
	persistBudget  = 5 * time.Second
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	publisher  *mq.Publisher
	logger     *slog.Logger
}

// New wires dependencies and constructs a Server.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	call := cfg.OpenAI.CallTimeout
	if call <= 0 {
		call = generation.DefaultCallTimeout
	}
	if 2*call+persistBudget >= requestTimeout {
		return nil, fmt.Errorf("OPENAI_CALL_TIMEOUT %s does not fit twice inside the %s request timeout", call, requestTimeout)
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	var cardOpts []services.CardServiceOption

	backend, err := storage.NewBackend(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if backend != nil {
		if err := backend.EnsureBucket(ctx); err != nil {
			_ = dbConn.Close()
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		cardOpts = append(cardOpts, services.WithArchiver(storage.NewArchiver(backend)))
		logger.Info("image archival enabled", "backend", cfg.Storage.Backend, "bucket", backend.Bucket())
	}

	var publisher *mq.Publisher
	mqBackend, err := mq.NewBackend(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init mq: %w", err)
	}
	if mqBackend != nil {
		publisher = mq.NewPublisher(mqBackend, cfg.MQ.Topic)
		cardOpts = append(cardOpts, services.WithPublisher(publisher))
		logger.Info("card events enabled", "backend", cfg.MQ.Backend, "topic", cfg.MQ.Topic)
	}

	userRepo := store.NewUserRepository(dbConn)
	cardRepo := store.NewCardRepository(dbConn)

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL)
	identityService := services.NewIdentityService(userRepo, tokens)
	generator := generation.NewClient(
		generation.NewOpenAIProvider(generation.ConfigFromApp(cfg.OpenAI)),
		generation.WithCallTimeout(cfg.OpenAI.CallTimeout),
	)
	cardService := services.NewCardService(cardRepo, generator, logger, cardOpts...)

	router := newRouter(cfg, logger, dbConn, identityService, cardService)

	port := cfg.ServerPort
	if port == 0 {
		port = 8000
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		publisher:  publisher,
		logger:     logger,
	}, nil
}

// corsAllowedMethods lists every method a browser may send cross-origin.
// go-chi/cors matches methods exactly and has no wildcard for them.
var corsAllowedMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

func newRouter(
	cfg config.Config,
	logger *slog.Logger,
	pinger handlers.Pinger,
	identityService *services.IdentityService,
	cardService *services.CardService,
) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		kardmw.Logger(logger),
		kardmw.Recoverer(logger),
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{cfg.CORSAllowedOrigin},
			AllowedMethods:   corsAllowedMethods,
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.Timeout(requestTimeout),
	)

	var authLimiter func(http.Handler) http.Handler
	if cfg.AuthRateLimit > 0 {
		authLimiter = httprate.Limit(
			cfg.AuthRateLimit,
			cfg.AuthRateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		)
	}

	authMiddleware := handlers.RequireAuth(identityService, logger)

	router.Get("/", handlers.Root)
	router.Get("/healthz", handlers.Healthz(pinger))
	handlers.AuthRouter(router, identityService, logger, authLimiter)
	router.Route("/cards", func(r chi.Router) {
		handlers.CardRouter(r, cardService, logger, authMiddleware)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if s.publisher != nil {
		if cerr := s.publisher.Close(); cerr != nil {
			s.logger.Warn("close publisher", "error", cerr)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
