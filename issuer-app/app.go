package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/compose-network/issuer/issuer-app/config"
	"github.com/compose-network/issuer/metrics"
	apisrv "github.com/compose-network/issuer/server/api"
	apimw "github.com/compose-network/issuer/server/api/middleware"
	"github.com/compose-network/issuer/x/credential"
	"github.com/compose-network/issuer/x/credential/achievement"
	"github.com/compose-network/issuer/x/credential/catalog"
	credhttp "github.com/compose-network/issuer/x/credential/http"
	"github.com/compose-network/issuer/x/credential/ledger"
	"github.com/compose-network/issuer/x/credential/metadata"
	"github.com/compose-network/issuer/x/credential/mint"
	"github.com/compose-network/issuer/x/credential/registry"
	"github.com/compose-network/issuer/x/credential/relay"
	"github.com/compose-network/issuer/x/credential/store"
	"github.com/compose-network/issuer/x/credential/store/sqlstore"
	"github.com/compose-network/issuer/x/credential/verification"
)

const statsInterval = 30 * time.Second

// App represents the credential issuer application
type App struct {
	cfg *config.Config
	log zerolog.Logger

	repo         store.Repository
	catalog      *catalog.Static
	achievements *achievement.Store
	registry     *registry.Registry
	coordinator  *verification.Coordinator
	ledger       *ledger.Ledger
	signer       *mint.Signer

	// API server (HTTP)
	apiServer *apisrv.Server

	startedAt time.Time
	cancel    context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg: cfg,
		log: log.With().Str("component", "app").Logger(),
	}

	if err := app.initialize(ctx, log); err != nil {
		if app.repo != nil {
			_ = app.repo.Close()
		}
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

// initialize sets up the application components
func (a *App) initialize(ctx context.Context, log zerolog.Logger) error {
	if err := a.initializeStore(ctx); err != nil {
		return err
	}

	cat, err := catalog.New(a.cfg.Categories...)
	if err != nil {
		return fmt.Errorf("failed to build category catalog: %w", err)
	}
	a.catalog = cat

	a.achievements = achievement.New(a.repo, cat, log)
	a.registry = registry.New(a.repo, cat, log)
	a.coordinator = verification.NewCoordinator(a.achievements, a.registry, verification.NewMetrics(), log)

	objects, err := a.initializeLedger(log)
	if err != nil {
		return err
	}

	return a.initializeAPIServer(log, objects)
}

// initializeStore opens the configured repository backend
func (a *App) initializeStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case config.DriverMemory:
		a.repo = store.NewMemory()
	case config.DriverSQLite, config.DriverPostgres:
		s, err := sqlstore.Open(ctx, a.cfg.Store.Driver, a.cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("failed to open %s store: %w", a.cfg.Store.Driver, err)
		}
		a.repo = s
	default:
		return fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
	a.log.Info().Str("driver", a.cfg.Store.Driver).Msg("Repository ready")
	return nil
}

// initializeLedger sets up signing, the relay and the certificate ledger
func (a *App) initializeLedger(log zerolog.Logger) (*metadata.Memory, error) {
	signer, err := mint.NewSignerFromHex(a.cfg.Issuer.PrivateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to load issuer key: %w", err)
	}
	a.signer = signer
	authorizer := mint.NewAuthorizer(signer, a.repo, a.cfg.Issuer, log)

	var r relay.Relay
	switch a.cfg.Relay.Mode {
	case relay.ModeHTTP:
		hc, err := relay.NewHTTPClient(a.cfg.Relay.BaseURL, &http.Client{Timeout: a.cfg.Relay.Timeout}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create relay client: %w", err)
		}
		r = hc
	default:
		r = relay.NewLocal(signer.Address(), log)
	}

	objects := metadata.NewMemory(a.cfg.Metadata.BaseURI)

	a.ledger = ledger.New(
		a.achievements,
		a.repo,
		a.catalog,
		authorizer,
		r,
		objects,
		ledger.Config{RelayTimeout: a.cfg.Relay.Timeout, MaxAttempts: a.cfg.Relay.MaxAttempts},
		log,
		ledger.WithMetrics(ledger.NewMetrics()),
	)

	a.log.Info().
		Str("issuer", signer.Address().Hex()).
		Str("relay_mode", a.cfg.Relay.Mode).
		Msg("Certificate ledger initialized")
	return objects, nil
}

// initializeAPIServer sets up the HTTP API server with all endpoints
func (a *App) initializeAPIServer(log zerolog.Logger, objects *metadata.Memory) error {
	s := apisrv.NewServer(a.cfg.API, log)
	s.Use(apimw.Recover(log))
	s.Use(apimw.RequestID())
	s.Use(apimw.Logger(log))
	s.EnableCORS()

	// Health/readiness/stats
	s.Router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	s.Router.HandleFunc("/ready", a.handleReady).Methods(http.MethodGet)
	s.Router.HandleFunc("/stats", a.handleStats).Methods(http.MethodGet)

	// Metrics
	if a.cfg.Metrics.Enabled {
		s.Router.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
		s.Router.Use(apimw.NewHTTPMetrics().Instrument)
	}

	// Credential API
	h := credhttp.NewHandler(credhttp.Deps{
		Achievements: a.achievements,
		Verification: a.coordinator,
		Registry:     a.registry,
		Ledger:       a.ledger,
		Catalog:      a.catalog,
		Images:       metadata.NewImageStore(objects, a.cfg.Metadata.MaxImageBytes),
		Objects:      objects,
	}, log)
	h.RegisterMux(s.Router)

	a.apiServer = s
	return nil
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.startedAt = time.Now()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		if err := a.apiServer.Start(gctx); err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.statsReporter(gctx)
		return nil
	})
	g.Go(func() error {
		return a.runWithGracefulShutdown(gctx)
	})

	err := g.Wait()
	if closeErr := a.shutdown(); err == nil {
		err = closeErr
	}
	return err
}

// runWithGracefulShutdown handles shutdown signals.
func (a *App) runWithGracefulShutdown(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a.log.Info().Str("issuer", a.signer.Address().Hex()).Msg("Credential issuer started successfully")

	select {
	case <-ctx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	if a.cancel != nil {
		a.cancel()
	}
	return nil
}

// shutdown releases the repository once the HTTP server has drained.
func (a *App) shutdown() error {
	a.log.Info().Msg("Initiating graceful shutdown")
	if err := a.repo.Close(); err != nil {
		a.log.Error().Err(err).Msg("Repository close error")
		return err
	}
	a.log.Info().Msg("Graceful shutdown complete")
	return nil
}

// handleHealth responds to health check requests.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleReady probes the repository.
func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	code := http.StatusOK
	if _, err := a.repo.ListVerifiers(r.Context()); err != nil {
		a.log.Warn().Err(err).Msg("Readiness probe failed")
		status = "store_unavailable"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":"%s","store":"%s"}`, status, a.cfg.Store.Driver)
}

func (a *App) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.GetStats(r.Context())
	if err != nil {
		apisrv.WriteError(w, r, http.StatusInternalServerError, "internal", "failed to collect stats", nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// GetStats returns application statistics.
func (a *App) GetStats(ctx context.Context) (map[string]interface{}, error) {
	all, err := a.repo.ListAchievements(ctx, store.AchievementFilter{})
	if err != nil {
		return nil, err
	}
	byStatus := map[credential.Status]int{}
	for _, ach := range all {
		byStatus[ach.Status]++
	}
	verifiers, err := a.registry.List(ctx)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"achievements":    len(all),
		"by_status":       byStatus,
		"verifiers":       len(verifiers),
		"categories":      len(a.catalog.List()),
		"issuer":          a.signer.Address().Hex(),
		"uptime_seconds":  time.Since(a.startedAt).Seconds(),
		"app_version":     Version,
		"app_build_time":  BuildTime,
		"app_git_commit":  GitCommit,
		"store_driver":    a.cfg.Store.Driver,
		"relay_mode":      a.cfg.Relay.Mode,
		"metrics_enabled": a.cfg.Metrics.Enabled,
	}, nil
}

// statsReporter periodically logs application statistics.
func (a *App) statsReporter(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := a.GetStats(ctx)
			if err != nil {
				a.log.Warn().Err(err).Msg("Failed to collect statistics")
				continue
			}
			a.log.Info().
				Int("achievements", stats["achievements"].(int)).
				Int("verifiers", stats["verifiers"].(int)).
				Float64("uptime_seconds", stats["uptime_seconds"].(float64)).
				Msg("Credential issuer statistics")
		}
	}
}
