// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tillstack/tillstack/adapters/clock"
	"github.com/tillstack/tillstack/adapters/hasher"
	"github.com/tillstack/tillstack/adapters/http/admin"
	"github.com/tillstack/tillstack/adapters/idgen"
	"github.com/tillstack/tillstack/adapters/memory"
	"github.com/tillstack/tillstack/adapters/metrics"
	"github.com/tillstack/tillstack/adapters/remote"
	"github.com/tillstack/tillstack/adapters/sqlite"
	"github.com/tillstack/tillstack/app"
	"github.com/tillstack/tillstack/config"
	"github.com/tillstack/tillstack/core/events"
	"github.com/tillstack/tillstack/ports"
)

// sweepInterval is how often pending invoices are checked for overdue.
const sweepInterval = time.Hour

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	DB         *sqlite.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector
	Bus        *events.Bus

	// Services
	Catalog  *app.CatalogService
	Ledger   *app.LedgerService
	Invoices *app.InvoiceService

	// cfgSource carries the live configuration for request-path readers;
	// reloads swap the snapshot here while Config keeps the boot-time value.
	cfgSource *config.AtomicSource

	holder *config.Holder
	stopCh chan struct{}
}

// New creates and initializes the application from a loaded configuration.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)
	logger.Info().Msg("initializing tillstack")

	a := &App{
		Logger:    logger,
		Config:    cfg,
		cfgSource: config.NewAtomicSource(cfg),
		stopCh:    make(chan struct{}),
	}

	if err := a.init(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewWithHotReload creates the application with a file-watching config
// holder. Reloadable fields (log level, admin credentials) apply without a
// restart; the rest require one.
func NewWithHotReload(path string) (*App, error) {
	bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	holder, err := config.NewHolder(path, bootLogger)
	if err != nil {
		return nil, err
	}

	a, err := New(holder.Get())
	if err != nil {
		holder.Stop()
		return nil, err
	}
	a.holder = holder

	holder.OnChange(func(cfg *config.Config) {
		a.applyReloadableConfig(cfg)
	})
	holder.OnError(func(err error) {
		a.Metrics.ConfigReloadErrors.Inc()
	})

	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watching disabled")
	}
	holder.WatchSignals()

	return a, nil
}

func (a *App) init() error {
	cfg := a.Config

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	a.DB = db
	a.Logger.Info().Str("dsn", cfg.Database.DSN).Msg("database initialized")

	a.Metrics = metrics.New()
	a.Bus = events.NewBus(a.Logger)

	// Every notification lands in the log; the console UI is a subscriber
	// like any other.
	a.Bus.Subscribe("*", func(ctx context.Context, n events.Notification) error {
		a.Logger.Info().
			Str("notification", n.Name).
			Str("organization_id", n.OrganizationID).
			Str("subject", n.Subject).
			Msg(n.Message)
		return nil
	})

	// Catalog CRUD always persists locally; in remote mode the gateway is
	// additionally the refresh source.
	planStore := sqlite.NewPlanStore(db)
	addonStore := sqlite.NewAddonStore(db)

	var (
		gateway  ports.BillingGateway
		orgs     ports.OrganizationStore
		invoices ports.InvoiceStore
	)

	switch cfg.Gateway.Mode {
	case "remote":
		client := remote.NewClient(remote.ClientConfig{
			BaseURL: cfg.Gateway.URL,
			APIKey:  cfg.Gateway.APIKey,
			Timeout: cfg.Gateway.Timeout,
			Headers: cfg.Gateway.Headers,
		})
		gateway = remote.NewBillingGateway(client)

		// Resident optimistic caches, replaced wholesale on refresh.
		orgs = memory.NewOrganizationStore()
		invoices = memory.NewInvoiceStore()
		a.Logger.Info().Str("url", cfg.Gateway.URL).Msg("remote billing gateway configured")
	default:
		gateway = remote.NewNoop()
		orgs = sqlite.NewOrganizationStore(db)
		invoices = sqlite.NewInvoiceStore(db)
		a.Logger.Info().Msg("running in local mode, embedded database is the source of truth")
	}

	realClock := clock.Real{}

	a.Catalog = app.NewCatalogService(planStore, addonStore, gateway, a.Logger)
	a.Ledger = app.NewLedgerService(orgs, a.Catalog, gateway, a.Bus, realClock, a.Metrics, a.Logger)
	a.Invoices = app.NewInvoiceService(invoices, orgs, a.Catalog, gateway, a.Bus, realClock, idgen.UUID{}, a.Metrics, a.Logger)

	ctx := context.Background()
	if err := a.Catalog.Refresh(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("initial catalog refresh failed")
	}
	if err := a.Ledger.Refresh(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("initial organization refresh failed")
	}
	if err := a.Invoices.Refresh(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("initial invoice refresh failed")
	}

	a.initHTTPServer()
	return nil
}

func (a *App) initHTTPServer() {
	cfg := a.Config

	adminHandler := admin.NewHandler(admin.Deps{
		Catalog:  a.Catalog,
		Ledger:   a.Ledger,
		Invoices: a.Invoices,
		Config:   a.cfgSource,
		Logger:   a.Logger,
		Hasher:   hasher.NewBcrypt(0),
	})

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(a.requestMetrics)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, promhttp.Handler())
		a.Logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	r.Mount("/admin", adminHandler.Router())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	a.HTTPServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	a.Logger.Info().Str("addr", addr).Msg("http server configured")
}

// requestMetrics counts and times every request.
func (a *App) requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// Prefer the route pattern over the raw path to keep label
		// cardinality bounded.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		status := strconv.Itoa(ww.Status())

		a.Metrics.RequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		a.Metrics.RequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

// Run starts the HTTP server and the overdue sweeper, blocking until
// shutdown.
func (a *App) Run() error {
	go a.sweepLoop()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// sweepLoop periodically transitions pending invoices past their due date to
// overdue.
func (a *App) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			swept, err := a.Invoices.SweepOverdue(context.Background())
			if err != nil {
				a.Logger.Error().Err(err).Msg("overdue sweep failed")
			} else if swept > 0 {
				a.Logger.Info().Int("count", swept).Msg("overdue sweep complete")
			}
		case <-a.stopCh:
			return
		}
	}
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	close(a.stopCh)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.holder != nil {
		a.holder.Stop()
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// applyReloadableConfig applies the fields that take effect without a
// restart.
func (a *App) applyReloadableConfig(cfg *config.Config) {
	a.Metrics.ConfigReloads.Inc()

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	// The admin handler reads credentials through the live source; the swap
	// is atomic, so requests in flight keep a consistent snapshot.
	a.cfgSource.Store(cfg)
	a.Logger.Info().Msg("reloadable configuration applied")
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
