package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/flaretrack/apiserver/config"
	"github.com/flaretrack/apiserver/internal/db"
	"github.com/flaretrack/apiserver/internal/handlers"
	"github.com/flaretrack/apiserver/internal/mq"
	"github.com/flaretrack/apiserver/internal/services"
	"github.com/flaretrack/apiserver/internal/storage"
	"github.com/flaretrack/apiserver/internal/store"
	"github.com/flaretrack/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     *mq.MQ
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	catalogRepo := store.NewCatalogRepository(dbConn)
	assignmentRepo := store.NewAssignmentRepository(dbConn)
	trackingRepo := store.NewTrackingRepository(dbConn)

	broker, err := openBroker(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	exportStore, err := openStorage(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	events := services.NewEventPublisher(broker)
	userService := services.NewUserService(userRepo, assignmentRepo)
	catalogService := services.NewCatalogService(catalogRepo)
	assignmentService := services.NewAssignmentService(userRepo, catalogRepo, assignmentRepo, events)
	trackingService := services.NewTrackingService(userRepo, assignmentRepo, trackingRepo, events)
	exportService := services.NewExportService(userRepo, trackingRepo, exportStore)

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		_ = dbConn.Close()
		return nil, errors.New("JWT_SECRET is required")
	}

	authMiddleware := handlers.RequireAuth(jwtSecret)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, jwtSecret)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userService, exportService, authMiddleware)
	})

	for _, kind := range []types.ItemKind{types.ItemDiagnosis, types.ItemSymptom, types.ItemMedication} {
		router.Route("/"+kindRoute(kind), func(r chi.Router) {
			handlers.ItemRouter(r, kind, catalogService, assignmentService, userService, authMiddleware)
			// ItemRouter installs auth on the whole kind router, so the
			// tracking subtree inherits it.
			if kind != types.ItemDiagnosis {
				r.Route("/users/{userID}/tracking", func(r chi.Router) {
					handlers.TrackingRouter(r, kind, trackingService, userService)
				})
			}
		})
	}

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		broker:     broker,
	}, nil
}

func kindRoute(kind types.ItemKind) string {
	switch kind {
	case types.ItemDiagnosis:
		return "diagnoses"
	case types.ItemSymptom:
		return "symptoms"
	default:
		return "medications"
	}
}

// openBroker builds the configured message queue backend, or nil when no
// backend is configured. Events degrade to no-ops without a broker.
func openBroker(ctx context.Context, cfg config.Config) (*mq.MQ, error) {
	switch cfg.MQ.Backend {
	case "rabbitmq":
		client, err := mq.NewRabbitMQClient(cfg.MQ.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		return mq.New(client), nil
	case "pubsub":
		client, err := mq.NewPubSubClient(ctx, cfg.MQ.PubSub)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		return mq.New(client), nil
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.MQ.Backend)
	}
}

// openStorage builds the configured object storage backend, or nil when no
// backend is configured. Exports return 503 without storage.
func openStorage(ctx context.Context, cfg config.Config) (*storage.Storage, error) {
	var backend storage.ObjectStorage
	switch cfg.Storage.Backend {
	case "minio":
		client, err := storage.NewMinioClient(cfg.Storage.Minio)
		if err != nil {
			return nil, fmt.Errorf("connect minio: %w", err)
		}
		backend = client
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.Storage.GCS)
		if err != nil {
			return nil, fmt.Errorf("connect gcs: %w", err)
		}
		backend = client
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	s := storage.NewStorage(backend)
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	return s, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
