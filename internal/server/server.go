// Package server orchestrates all components: node directory, handlers,
// router, the HTTP multipart endpoint and the optional NATS transport.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/catalog-broker/internal/config"
	"github.com/morezero/catalog-broker/pkg/commsutil"
	"github.com/morezero/catalog-broker/pkg/db"
	"github.com/morezero/catalog-broker/pkg/directory"
	"github.com/morezero/catalog-broker/pkg/events"
	"github.com/morezero/catalog-broker/pkg/handlers"
	"github.com/morezero/catalog-broker/pkg/ids"
	"github.com/morezero/catalog-broker/pkg/router"
	"github.com/morezero/catalog-broker/pkg/selfdescription"
)

const logPrefix = "server:server"

const shutdownTimeout = 10 * time.Second

var errCommsDisconnected = errors.New("not connected")

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// NewServerParams holds the collaborators of a Server.
type NewServerParams struct {
	Config    *config.Config
	Directory directory.NodeDirectory
	// Publisher defaults to a no-op publisher.
	Publisher events.EventPublisher
	// SelfDescription defaults to one generated from Config.
	SelfDescription *selfdescription.Description
	// HealthChecks are reported by /health, keyed by dependency name.
	HealthChecks map[string]HealthCheck
}

// Server is the catalog-broker orchestrator.
type Server struct {
	cfg       *config.Config
	router    *router.Router
	nodes     directory.NodeDirectory
	publisher events.EventPublisher
	self      *selfdescription.Description
	checks    map[string]HealthCheck
	started   time.Time
}

// New wires the handlers and router for cfg.
func New(params NewServerParams) (*Server, error) {
	cfg := params.Config
	if cfg == nil {
		return nil, fmt.Errorf("%s - config is required", logPrefix)
	}
	if params.Directory == nil {
		return nil, fmt.Errorf("%s - node directory is required", logPrefix)
	}

	gate, err := handlers.NewVersionGate(cfg.SupportedModelVersions)
	if err != nil {
		return nil, err
	}

	self := params.SelfDescription
	if self == nil {
		self, err = selfdescription.Default(SelfDescriptionParams(cfg))
		if err != nil {
			return nil, err
		}
	}

	publisher := params.Publisher
	if publisher == nil {
		publisher = &events.NoOpPublisher{}
	}

	factory := ids.NewFactory(ids.Identity{ConnectorID: cfg.ConnectorID, ModelVersion: cfg.ModelVersion})
	h := handlers.New(handlers.Deps{
		Factory:         factory,
		Directory:       params.Directory,
		Publisher:       publisher,
		SelfDescription: self.Raw,
		Versions:        gate,
	})

	var verifier router.TokenVerifier = router.PresenceVerifier{}
	if cfg.JWTSubjects {
		verifier = router.SubjectVerifier{}
	}

	checks := make(map[string]HealthCheck, len(params.HealthChecks))
	for name, check := range params.HealthChecks {
		checks[name] = check
	}

	return &Server{
		cfg: cfg,
		router: router.NewRouter(router.NewRouterParams{
			Factory:  factory,
			Handlers: h.Routes(),
			Verifier: verifier,
		}),
		nodes:     params.Directory,
		publisher: publisher,
		self:      self,
		checks:    checks,
		started:   time.Now().UTC(),
	}, nil
}

// SelfDescriptionParams derives the generated self-description from cfg.
func SelfDescriptionParams(cfg *config.Config) selfdescription.Params {
	return selfdescription.Params{
		ConnectorID:  cfg.ConnectorID,
		Title:        cfg.Title,
		ModelVersion: cfg.ModelVersion,
		EndpointURL:  cfg.EndpointURL(),
	}
}

// handleMessage routes one broker message under the configured request timeout.
func (s *Server) handleMessage(ctx context.Context, header io.Reader, payload *string) *router.Response {
	ctx, cancel := s.requestContext(ctx)
	defer cancel()
	return s.router.Handle(ctx, header, payload)
}

// requestContext bounds ctx by the request timeout when one is configured.
func (s *Server) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// malformed answers a request whose transport framing could not be read.
func (s *Server) malformed() *router.Response {
	return &router.Response{Header: s.router.Factory().Malformed(nil)}
}

// ParseLogLevel maps LOG_LEVEL to a slog level; unknown values mean info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: ParseLogLevel(cfg.LogLevel)})))

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting catalog-broker as %s", logPrefix, cfg.ConnectorID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	checks := make(map[string]HealthCheck)

	// Step 1: Node directory
	var nodes directory.NodeDirectory
	if cfg.UsesDatabase() {
		var pool *pgxpool.Pool
		pool, err = db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		cleanup = append(cleanup, pool.Close)

		if cfg.RunMigrations {
			migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
			if err != nil {
				return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
				return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}

		repo := db.NewRepository(pool)
		nodes = repo
		checks["database"] = repo.Ping
	} else {
		slog.Warn(fmt.Sprintf("%s - Using in-memory node directory; registrations are lost on restart", logPrefix))
		nodes = directory.NewMemory()
	}

	// Step 2: NATS (optional)
	var nc *comms.Conn
	var publisher events.EventPublisher = &events.NoOpPublisher{}
	if cfg.COMMSEnabled {
		nc, err = commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
		if err != nil {
			return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
		}
		cleanup = append(cleanup, func() { nc.Drain() })
		slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, cfg.COMMSURL))

		publisher = events.NewCommsPublisher(nc, &events.CommsPublisherOpts{ChangeSubject: cfg.ChangeEventSubject})
		checks["comms"] = func(context.Context) error {
			if !nc.IsConnected() {
				return errCommsDisconnected
			}
			return nil
		}
	}

	// Step 3: Self-description
	self, err := selfdescription.Load(SelfDescriptionParams(cfg), cfg.SelfDescriptionFile)
	if err != nil {
		return fmt.Errorf("%s - failed to load self-description: %w", logPrefix, err)
	}

	// Step 4: Handlers and router
	s, err := New(NewServerParams{
		Config:          cfg,
		Directory:       nodes,
		Publisher:       publisher,
		SelfDescription: self,
		HealthChecks:    checks,
	})
	if err != nil {
		return err
	}

	if nc != nil {
		sub, err := s.Subscribe(nc)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, func() { sub.Unsubscribe() })
	}

	// Step 5: HTTP
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.RequestTimeout,
	}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s (infrastructure %s)", logPrefix, httpServer.Addr, cfg.InfrastructurePath()))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - Catalog broker is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}
