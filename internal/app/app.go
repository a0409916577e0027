// Package app wires the engine's components together: repositories on the
// metastore pools, the directory snapshot, the shared configuration store,
// the federation negotiator, and the reconciliation controller with its
// HTTP surface.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"idflow/internal/api"
	"idflow/internal/config"
	"idflow/internal/db/repository"
	"idflow/internal/directory"
	"idflow/internal/domain"
	"idflow/internal/expiration"
	"idflow/internal/federation"
	"idflow/internal/lifecycle"
	"idflow/internal/middleware"
	"idflow/internal/notify"
	"idflow/internal/reconcile"
	"idflow/internal/store"
	"idflow/internal/ui"
)

// Deps holds the external dependencies that main() must provide: config,
// the metastore pool pair, and the root logger.
type Deps struct {
	Cfg     *config.Config
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Logger  *slog.Logger
}

// App is the fully-wired application.
type App struct {
	Controller *lifecycle.Controller
	Negotiator *federation.Negotiator // nil without a federation peer
	Dispatcher *notify.Dispatcher
	Router     http.Handler
}

// New wires repositories, engine components, and the HTTP router from the
// provided deps. The caller owns starting and stopping the returned app.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger

	// === Repositories on the metastore pools ===
	provisioner := repository.NewMembershipRepo(deps.WriteDB, deps.ReadDB)
	stateRepo := repository.NewStateRepo(deps.WriteDB, deps.ReadDB)
	outboxRepo := repository.NewOutboxRepo(deps.WriteDB, deps.ReadDB)
	failureRepo := repository.NewFailureRepo(deps.WriteDB, deps.ReadDB)

	// === Directory snapshot ===
	dir, err := directory.Load(cfg.DirectoryPath)
	if err != nil {
		return nil, fmt.Errorf("load directory snapshot: %w", err)
	}

	// === Federation (optional) ===
	var negotiator *federation.Negotiator
	if cfg.Federation.Configured() {
		sharedStore, err := buildStore(ctx, cfg, deps.WriteDB)
		if err != nil {
			return nil, fmt.Errorf("open shared store: %w", err)
		}
		negotiator, err = federation.NewNegotiator(
			cfg.OrgName,
			cfg.Federation.PeerOrg,
			cfg.Federation.Role,
			cfg.Federation.Metadata(),
			sharedStore,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("federation: %w", err)
		}
	}

	// === Engine components ===
	scheduler := expiration.NewScheduler(stateRepo, cfg.WarningDays, cfg.FinalNoticeDays, logger)
	reconciler := reconcile.New(provisioner, failureRepo, logger, reconcile.Config{
		Workers: cfg.ReconcileWorkers,
	})

	sinks := make([]domain.NotificationSink, 0, len(cfg.NotifyEndpoints))
	for _, endpoint := range cfg.NotifyEndpoints {
		sinks = append(sinks, notify.NewHTTPSink(endpoint, cfg.OrgName, cfg.NotifySigningSecret, 10*time.Second))
	}
	dispatcher := notify.NewDispatcher(sinks, outboxRepo, logger, notify.Config{
		RatePerSec: cfg.NotifyRatePerSec,
	})

	controller, err := lifecycle.NewController(
		dir, stateRepo, scheduler, reconciler, dispatcher, negotiator, cfg.RulesPath, logger,
	)
	if err != nil {
		return nil, err
	}

	// === HTTP surface ===
	validator, err := buildValidator(ctx, cfg)
	if err != nil {
		return nil, err
	}

	handler := api.NewHandler(controller, negotiator, outboxRepo, failureRepo, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		Validator: validator,
	})

	mux := chi.NewRouter()
	mux.Mount("/", router)
	mux.Route("/ui", func(r chi.Router) {
		ui.MountRoutes(r, ui.NewHandler(cfg.OrgName, controller, negotiator))
	})

	return &App{
		Controller: controller,
		Negotiator: negotiator,
		Dispatcher: dispatcher,
		Router:     mux,
	}, nil
}

// buildStore opens the configured shared store backend. The SQLite backend
// reuses the metastore write pool, so it only federates processes that can
// reach the same file.
func buildStore(ctx context.Context, cfg *config.Config, writeDB *sql.DB) (domain.SharedStore, error) {
	s := cfg.Store
	switch s.Backend {
	case store.BackendMemory:
		return store.NewMemory(), nil
	case store.BackendSQLite:
		return store.NewSQLite(writeDB), nil
	case store.BackendS3:
		return store.NewS3(store.S3Config{
			Endpoint: s.S3Endpoint,
			Region:   s.S3Region,
			KeyID:    s.S3KeyID,
			Secret:   s.S3Secret,
			Bucket:   s.S3Bucket,
		})
	case store.BackendGCS:
		return store.NewGCS(ctx, s.GCSKeyFile, s.GCSBucket)
	case store.BackendAzure:
		return store.NewAzure(s.AzureAccount, s.AzureKey, s.AzureContainer)
	default:
		return nil, fmt.Errorf("unknown store backend %q", s.Backend)
	}
}

// buildValidator picks the bearer-token validator for the admin API. OIDC
// discovery wins over the shared secret; neither configured means no auth.
func buildValidator(ctx context.Context, cfg *config.Config) (middleware.TokenValidator, error) {
	switch {
	case cfg.Auth.IssuerURL != "":
		v, err := middleware.NewOIDCValidator(ctx, cfg.Auth.IssuerURL, cfg.Auth.Audience)
		if err != nil {
			return nil, fmt.Errorf("oidc validator: %w", err)
		}
		return v, nil
	case cfg.Auth.JWTSecret != "":
		return middleware.NewSharedSecretValidator(cfg.Auth.JWTSecret), nil
	default:
		return nil, nil
	}
}
