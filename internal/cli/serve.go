package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ddi-assistant/internal/application"
	"ddi-assistant/internal/domain"
	"ddi-assistant/internal/infrastructure"
)

// customToolsDebounce collapses editor save bursts on custom_tools.json.
const customToolsDebounce = 500 * time.Millisecond

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server.

On first run the appliance's object schemas are discovered and cached; later
runs reuse the cache unless --refresh is given or the schemas changed.

With --transport http the server exposes:
  GET  /mcp          SSE event stream (first event names the message endpoint)
  POST /mcp/message  JSON-RPC requests
  GET  /metrics      Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("transport", "", "transport type: stdio or http")
	cmd.Flags().String("host", "", "HTTP listen host")
	cmd.Flags().Int("port", 0, "HTTP listen port")
	cmd.Flags().Bool("read-only", false, "refuse create, update and delete tools")
	cmd.Flags().Bool("refresh", false, "re-discover schemas even if cached")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger

	refresh, _ := cmd.Flags().GetBool("refresh")
	wapi, loaded, err := a.wapiHandler(ctx, refresh)
	if err != nil {
		return err
	}
	if loaded.Changed && !loaded.FromCache {
		logger.Info("tool catalog regenerated from discovered schemas")
	}

	router := application.NewRequestRouter(wapi, a.lookupHandler())
	logger.Info("request router initialized", zap.Int("tools", len(router.ListAllTools())))

	transport := newTransport(a)
	server := application.NewServer(transport, router,
		application.ServerInfo{Name: "ddi-assistant", Version: buildVersion}, logger)

	watcher, err := infrastructure.NewWatcher(a.store.Path(infrastructure.CustomToolsFile),
		customToolsDebounce, func() { a.catalog.ReloadCustom(wapi) }, logger)
	if err != nil {
		logger.Warn("custom tool hot reload disabled", zap.Error(err))
	} else {
		defer watcher.Close()
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("custom tool hot reload disabled", zap.Error(err))
		}
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}
	logger.Info("MCP server started",
		zap.String("transport", a.settings.Transport.Type),
		zap.Bool("read_only", a.settings.Infoblox.ReadOnly))

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case <-server.Done():
		logger.Info("transport closed")
	}

	if err := server.Close(); err != nil {
		return fmt.Errorf("error during server shutdown: %w", err)
	}
	waitForServer(server, 5*time.Second)
	logger.Info("server shutdown complete")
	return nil
}

func newTransport(a *app) domain.Transport {
	if a.settings.Transport.Type != "http" {
		return domain.NewStdioTransport(a.logger)
	}
	t := domain.NewHTTPTransport(a.settings.Transport.HTTP.Host, a.settings.Transport.HTTP.Port, a.logger)
	t.Handle("/metrics", a.metrics.Handler())
	return t
}

func waitForServer(server *application.Server, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	select {
	case <-server.Done():
	case <-ctx.Done():
	}
}
