package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ddi-assistant/internal/application"
	"ddi-assistant/internal/domain"
	"ddi-assistant/internal/infrastructure"
	"ddi-assistant/internal/logging"
)

// app holds the components shared by the commands that talk to the
// appliance. It is built once per command invocation.
type app struct {
	settings *domain.Settings
	loggers  *logging.Loggers
	logger   *zap.Logger
	metrics  *infrastructure.Metrics
	client   *infrastructure.WAPIClient
	store    *infrastructure.CacheStore
	mapper   domain.ResponseMapper
	schemas  *application.SchemaManager
	catalog  *application.Catalog
}

// loadSettings reads the settings for cmd, applying --config and any
// explicitly-set flags.
func loadSettings(cmd *cobra.Command) (*domain.Settings, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	settings, err := domain.LoadSettings(path, flags)
	if err != nil {
		return nil, err
	}
	if verbose, _ := flags.GetBool("verbose"); verbose && !flags.Changed("log-level") {
		settings.Logging.Level = "DEBUG"
	}
	return settings, nil
}

// newApp follows the startup order settings, logging, client, cache,
// schema manager and catalog. Nothing here touches the network.
func newApp(cmd *cobra.Command) (*app, error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}

	loggers, err := logging.New(logging.Config{
		Level:         settings.Logging.Level,
		Dir:           settings.Logging.Dir,
		File:          settings.Logging.File,
		SecurityAudit: settings.Logging.SecurityAudit,
		Console:       cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger := loggers.App

	if settings.InsecureTLS() {
		logger.Warn("TLS certificate verification is disabled", zap.String("host", settings.Infoblox.Host))
		loggers.Audit.ConfigurationChange("verify_ssl", "true", "false")
	}

	metrics := infrastructure.NewMetrics()
	client, err := infrastructure.NewWAPIClientFromSettings(settings,
		infrastructure.WithLogger(logger),
		infrastructure.WithAudit(loggers.Audit),
		infrastructure.WithMetrics(metrics),
	)
	if err != nil {
		loggers.Sync()
		return nil, err
	}

	store, err := infrastructure.NewCacheStore(settings.Cache.Dir)
	if err != nil {
		loggers.Sync()
		return nil, err
	}

	schemas := application.NewSchemaManager(client, store, logger, loggers.Audit)
	custom := application.NewCustomToolManager(store, logger)
	generator := application.NewToolGenerator(settings.Infoblox.ReadOnly)

	logger.Debug("settings loaded", zap.Stringer("settings", settings))
	return &app{
		settings: settings,
		loggers:  loggers,
		logger:   logger,
		metrics:  metrics,
		client:   client,
		store:    store,
		mapper:   domain.NewResponseMapper(),
		schemas:  schemas,
		catalog:  application.NewCatalog(schemas, custom, store, generator, logger),
	}, nil
}

func (a *app) close() {
	a.loggers.Sync()
}

func (a *app) handlerOptions() application.HandlerOptions {
	return application.HandlerOptions{
		Logger:   a.logger,
		Audit:    a.loggers.Audit,
		Metrics:  a.metrics,
		ReadOnly: a.settings.Infoblox.ReadOnly,
	}
}

// wapiHandler builds the tool catalog and the handler dispatching it.
func (a *app) wapiHandler(ctx context.Context, refresh bool) (*application.WAPIHandler, *application.LoadResult, error) {
	tools, loaded, err := a.catalog.Build(ctx, refresh)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build tool catalog: %w", err)
	}
	h := application.NewWAPIHandler(a.client, a.mapper, tools, a.handlerOptions())
	h.SetCustomTools(a.catalog.CustomTools())
	return h, loaded, nil
}

func (a *app) lookupService() *application.LookupService {
	return application.NewLookupService(a.client, a.logger)
}

func (a *app) lookupHandler() *application.LookupHandler {
	return application.NewLookupHandler(a.lookupService(), a.mapper, a.handlerOptions())
}
