package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tasktracker/apiserver/config"
	"github.com/tasktracker/apiserver/internal/db"
	"github.com/tasktracker/apiserver/internal/events"
	"github.com/tasktracker/apiserver/internal/handlers"
	"github.com/tasktracker/apiserver/internal/logging"
	"github.com/tasktracker/apiserver/internal/mq"
	"github.com/tasktracker/apiserver/internal/services"
	"github.com/tasktracker/apiserver/internal/storage"
	"github.com/tasktracker/apiserver/internal/store"
)

const requestTimeout = 60 * time.Second

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	logger     *log.Logger
}

// New connects to Postgres and the optional object storage and broker,
// then builds the router.
func New(ctx context.Context, cfg config.Config, logger *log.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	publisher := events.NewPublisher(queue, cfg.MQ.EventsChannel, logger)

	accountRepo := store.NewAccountRepository(dbConn)
	taskRepo := store.NewTaskRepository(dbConn)
	attachmentRepo := store.NewAttachmentRepository(dbConn)

	tokens := services.NewTokenIssuer(cfg.SecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	credentials := services.NewCredentialService(accountRepo, tokens, publisher)

	var attachments *services.AttachmentService
	if objects != nil {
		attachments = services.NewAttachmentService(taskRepo, attachmentRepo, objects, publisher, logger)
	}

	api := handlers.API{
		Credentials: credentials,
		Accounts:    services.NewAccountService(accountRepo, credentials, attachments, publisher, logger),
		Tasks:       services.NewTaskService(taskRepo, attachments, publisher),
		Attachments: attachments,
		PageSize:    cfg.PageSize,
		Logger:      logger,
	}
	router := NewRouter(cfg, api, logger)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server configured",
		"port", port,
		"storage", backendName(cfg.Storage.Backend),
		"mq", backendName(cfg.MQ.Backend),
		"debug", cfg.Debug,
	)

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		logger:     logger,
	}, nil
}

// NewRouter builds the HTTP handler with the standard middleware stack.
func NewRouter(cfg config.Config, api handlers.API, logger *log.Logger) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(logger),
		middleware.Recoverer,
		middleware.StripSlashes,
		handlers.AllowedHosts(allowedHosts(cfg)),
		middleware.Timeout(requestTimeout),
	)
	router.Get("/healthz", handlers.Healthz)
	handlers.Mount(router, api)
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.queue != nil {
		if closeErr := s.queue.Close(); closeErr != nil {
			s.logger.Warn("failed to close message queue", "err", closeErr)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}

// allowedHosts falls back to local names when debugging without an
// explicit list.
func allowedHosts(cfg config.Config) []string {
	if len(cfg.AllowedHosts) == 0 && cfg.Debug {
		return []string{".localhost", "127.0.0.1", "::1"}
	}
	return cfg.AllowedHosts
}

func backendName(name string) string {
	if name == "" {
		return "disabled"
	}
	return name
}
