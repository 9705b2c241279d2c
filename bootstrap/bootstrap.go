// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/schemaql/adapters/hasher"
	apihttp "github.com/artpar/schemaql/adapters/http"
	"github.com/artpar/schemaql/adapters/memory"
	"github.com/artpar/schemaql/adapters/metrics"
	"github.com/artpar/schemaql/adapters/schemastore"
	"github.com/artpar/schemaql/adapters/sqldb"
	"github.com/artpar/schemaql/app"
	"github.com/artpar/schemaql/config"
	"github.com/artpar/schemaql/domain/value"
)

// Options configures application initialization.
type Options struct {
	// ConfigPath is loaded when the file exists; otherwise configuration
	// comes from SCHEMAQL_* environment variables.
	ConfigPath string

	// WatchConfig reloads ConfigPath on change and on SIGHUP.
	WatchConfig bool

	Version string

	// LogOutput receives log lines (default: os.Stdout).
	LogOutput io.Writer
}

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	HTTPServer *http.Server
	Router     http.Handler
	Metrics    *metrics.Collector

	// Services
	Queries *app.QueryService
	Merger  *app.SchemaMerger
	Plugins *app.PluginRegistry

	// Adapters (for cleanup)
	Connections *sqldb.Registry
	Schemas     *schemastore.Store
	Cache       *memory.Cache[[]value.Row]
	holder      *config.Holder
}

// New creates and initializes the application.
func New(opts Options) (*App, error) {
	a := &App{}

	if opts.LogOutput == nil {
		opts.LogOutput = os.Stdout
	}

	if err := a.initConfig(opts); err != nil {
		return nil, fmt.Errorf("init config: %w", err)
	}

	a.Logger = setupLogger(a.Config.Logging, opts.LogOutput)
	a.Logger.Info().Str("version", opts.Version).Msg("initializing schemaql")

	if a.holder != nil {
		a.holder.SetLogger(a.Logger)
		a.holder.OnChange(func(cfg *config.Config) {
			applyLogLevel(cfg.Logging.Level)
		})
	}

	var reg *prometheus.Registry
	if a.Config.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(reg)
		if a.holder != nil {
			a.holder.SetMetrics(a.Metrics)
		}
		a.Logger.Info().Msg("prometheus metrics enabled")
	}

	if err := a.initConnections(); err != nil {
		a.Shutdown()
		return nil, fmt.Errorf("init connections: %w", err)
	}

	if err := a.initSchemas(); err != nil {
		a.Shutdown()
		return nil, fmt.Errorf("init schemas: %w", err)
	}

	a.initServices()

	if err := a.initHTTPServer(opts.Version, reg); err != nil {
		a.Shutdown()
		return nil, fmt.Errorf("init http server: %w", err)
	}

	if a.holder != nil && opts.WatchConfig {
		if err := a.holder.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch disabled")
		}
		a.holder.WatchSignals()
	}

	return a, nil
}

func (a *App) initConfig(opts Options) error {
	if opts.ConfigPath != "" {
		if _, err := os.Stat(opts.ConfigPath); err == nil {
			// The holder logs through a nop logger until ours exists.
			h, err := config.NewHolder(opts.ConfigPath, zerolog.Nop())
			if err != nil {
				return err
			}
			a.holder = h
			a.Config = h.Get()
			return nil
		}
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	a.Config = cfg
	return nil
}

func (a *App) initConnections() error {
	specs := make([]sqldb.ConnectionSpec, 0, len(a.Config.Connections))
	for _, c := range a.Config.Connections {
		specs = append(specs, sqldb.ConnectionSpec{
			Name:         c.Name,
			Aliases:      c.Aliases,
			Driver:       c.Driver,
			DSN:          c.DSN,
			MaxOpenConns: c.MaxOpenConns,
			Default:      c.Default,
		})
	}

	conns, err := sqldb.OpenRegistry(specs)
	if err != nil {
		return err
	}
	a.Connections = conns

	a.Logger.Info().Strs("names", conns.Names()).Msg("database connections opened")
	return nil
}

func (a *App) initSchemas() error {
	cfg := schemastore.Config{
		Dir:     a.Config.Schemas.Directory,
		Logger:  a.Logger,
		Metrics: a.Metrics,
	}
	if a.Config.Schemas.BundledEnabled() {
		cfg.Bundled = schemastore.Bundled()
	}

	store, err := schemastore.New(cfg)
	if err != nil {
		return err
	}
	a.Schemas = store

	if a.Config.Schemas.Watch {
		if err := store.Watch(); err != nil {
			a.Logger.Warn().Err(err).Str("dir", cfg.Dir).Msg("schema watch disabled")
		}
	}
	return nil
}

func (a *App) initServices() {
	logger := a.Logger

	a.Cache = memory.NewResultCache(memory.CacheConfig{
		NumShards:       a.Config.Cache.Shards,
		CleanupInterval: a.Config.Cache.CleanupInterval,
	})

	executor := sqldb.NewExecutor(a.Connections, logger, a.Metrics)
	upstream := apihttp.NewUpstreamClient(apihttp.UpstreamConfig{
		ConnectTimeout:  a.Config.API.ConnectTimeout,
		ReadTimeout:     a.Config.API.ReadTimeout,
		MaxIdleConns:    a.Config.API.MaxIdleConns,
		IdleConnTimeout: a.Config.API.IdleConnTimeout,
		MaxBodySize:     a.Config.API.MaxBodySize,
		Logger:          logger,
		Metrics:         a.Metrics,
	})
	transform := app.NewTransformService()

	a.Plugins = app.NewPluginRegistry(
		app.NewDatabasePlugin(executor, transform, logger, a.Metrics),
		app.NewAPIPlugin(upstream, transform, logger, a.Metrics),
	)

	a.Queries = app.NewQueryService(app.QueryConfig{
		Schemas:     a.Schemas,
		Cache:       a.Cache,
		Plugins:     a.Plugins,
		Views:       app.NewViewComposer(a.Schemas, executor, a.Plugins, transform, logger),
		Logger:      logger,
		Metrics:     a.Metrics,
		MaxParallel: a.Config.Engine.MaxParallel,
	})
	a.Merger = app.NewSchemaMerger(a.Schemas, logger)

	for _, p := range a.Plugins.List() {
		logger.Debug().Str("kind", p.Type).Msg("source plugin registered")
	}
}

func (a *App) initHTTPServer(version string, reg *prometheus.Registry) error {
	handler := apihttp.NewHandler(apihttp.HandlerConfig{
		Queries: a.Queries,
		Cache:   a.Cache,
		Schemas: a.Schemas,
		Plugins: a.Plugins,
		Merger:  a.Merger,
		Logger:  a.Logger,
	})

	routerCfg := apihttp.RouterConfig{
		Version:        version,
		RequestTimeout: a.Config.Server.RequestTimeout,
		Metrics:        a.Metrics,
		MetricsPath:    a.Config.Metrics.Path,
	}
	if reg != nil {
		routerCfg.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	if a.Config.Admin.TokenHash != "" {
		routerCfg.AdminTokenHash = []byte(a.Config.Admin.TokenHash)
		routerCfg.Hasher = hasher.NewBcrypt(0)
	} else {
		a.Logger.Warn().Msg("admin.token_hash not set, /debug endpoints are unauthenticated")
	}

	a.Router = apihttp.NewRouter(handler, apihttp.NewHealthHandler(a.Connections), a.Logger, routerCfg)

	a.HTTPServer = &http.Server{
		Addr:         net.JoinHostPort(a.Config.Server.Host, strconv.Itoa(a.Config.Server.Port)),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
	return nil
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application. It is safe to call on a
// partially initialized App.
func (a *App) Shutdown() error {
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

	if a.Schemas != nil {
		a.Schemas.Stop()
	}

	if a.Cache != nil {
		a.Cache.Close()
	}

	if a.Connections != nil {
		if err := a.Connections.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func setupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	applyLogLevel(cfg.Level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}

func applyLogLevel(levelStr string) {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
