// Package server composes HTTP API, MCP, and websocket transports into one process handler.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hylla/pipedesk/internal/adapters/server/common"
	"github.com/hylla/pipedesk/internal/adapters/server/httpapi"
	"github.com/hylla/pipedesk/internal/adapters/server/mcpapi"
	"github.com/hylla/pipedesk/internal/adapters/server/wsapi"
)

// defaultBindAddress defines the localhost-first serve default.
const defaultBindAddress = "127.0.0.1:8080"

// defaultShutdownTimeout bounds graceful shutdown time once context cancellation starts.
const defaultShutdownTimeout = 5 * time.Second

// Config defines serve-mode endpoint configuration.
type Config struct {
	HTTPBind      string
	APIEndpoint   string
	MCPEndpoint   string
	WSEndpoint    string
	ServerName    string
	ServerVersion string
}

// Logger receives request and lifecycle logs.
type Logger interface {
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
}

// Dependencies defines app-facing adapters required by server transports.
type Dependencies struct {
	Service common.Service
	// Hub is optional; without it the websocket endpoint is not mounted.
	Hub    *wsapi.Hub
	Auth   httpapi.AuthConfig
	Logger Logger
}

// NewHandler composes one root HTTP mux containing health, REST API, MCP, and websocket endpoints.
func NewHandler(cfg Config, deps Dependencies) (http.Handler, Config, error) {
	normalizedCfg, err := normalizeConfig(cfg)
	if err != nil {
		return nil, Config{}, err
	}
	if deps.Service == nil {
		return nil, Config{}, fmt.Errorf("pipedesk service dependency is required")
	}

	mcpHandler, err := mcpapi.NewHandler(
		mcpapi.Config{
			ServerName:    normalizedCfg.ServerName,
			ServerVersion: normalizedCfg.ServerVersion,
			EndpointPath:  normalizedCfg.MCPEndpoint,
		},
		deps.Service,
	)
	if err != nil {
		return nil, Config{}, fmt.Errorf("configure mcp handler: %w", err)
	}
	apiHandler := httpapi.RequireBearer(deps.Auth, httpapi.NewHandler(deps.Service))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", writeHealthStatus)
	mux.HandleFunc("/readyz", writeHealthStatus)
	mux.Handle(normalizedCfg.MCPEndpoint, httpapi.RequireBearer(deps.Auth, mcpHandler))
	mux.Handle(normalizedCfg.APIEndpoint, http.StripPrefix(normalizedCfg.APIEndpoint, apiHandler))
	mux.Handle(normalizedCfg.APIEndpoint+"/", http.StripPrefix(normalizedCfg.APIEndpoint, apiHandler))
	if deps.Hub != nil {
		mux.Handle(normalizedCfg.WSEndpoint, httpapi.RequireBearer(deps.Auth, deps.Hub))
	}
	if deps.Logger != nil {
		return logRequests(deps.Logger, mux), normalizedCfg, nil
	}
	return mux, normalizedCfg, nil
}

// Run starts the composed HTTP server and blocks until shutdown or startup failure.
func Run(ctx context.Context, cfg Config, deps Dependencies) error {
	if ctx == nil {
		ctx = context.Background()
	}

	handler, normalizedCfg, err := NewHandler(cfg, deps)
	if err != nil {
		return fmt.Errorf("build server handler: %w", err)
	}
	httpServer := &http.Server{
		Addr:              normalizedCfg.HTTPBind,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if deps.Logger != nil {
		deps.Logger.Info("http server listening",
			"bind", normalizedCfg.HTTPBind,
			"api", normalizedCfg.APIEndpoint,
			"mcp", normalizedCfg.MCPEndpoint,
			"ws", normalizedCfg.WSEndpoint,
			"auth", deps.Auth.Enabled(),
		)
	}

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErrCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen and serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		// Hijacked websocket connections are not closed by Shutdown.
		if deps.Hub != nil {
			deps.Hub.Close()
		}
		shutdownErr := httpServer.Shutdown(shutdownCtx)
		serveErr := <-serveErrCh
		if shutdownErr != nil && !errors.Is(shutdownErr, context.Canceled) {
			return fmt.Errorf("shutdown server: %w", shutdownErr)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("serve after shutdown: %w", serveErr)
		}
		return nil
	}
}

// normalizeConfig applies defaults and validates endpoint collisions.
func normalizeConfig(cfg Config) (Config, error) {
	cfg.HTTPBind = strings.TrimSpace(cfg.HTTPBind)
	if cfg.HTTPBind == "" {
		cfg.HTTPBind = defaultBindAddress
	}

	cfg.APIEndpoint = normalizeEndpoint(cfg.APIEndpoint, "/api/v1")
	cfg.MCPEndpoint = normalizeEndpoint(cfg.MCPEndpoint, "/mcp")
	cfg.WSEndpoint = normalizeEndpoint(cfg.WSEndpoint, "/ws")
	if cfg.APIEndpoint == cfg.MCPEndpoint || cfg.APIEndpoint == cfg.WSEndpoint || cfg.MCPEndpoint == cfg.WSEndpoint {
		return Config{}, fmt.Errorf("api, mcp, and ws endpoints must differ")
	}

	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "pipedesk"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	return cfg, nil
}

// normalizeEndpoint normalizes one endpoint path and applies fallback defaults.
func normalizeEndpoint(path string, fallback string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = fallback
	}
	path = "/" + strings.Trim(path, "/")
	if path == "/" {
		return fallback
	}
	return path
}

// writeHealthStatus responds with a deterministic readiness payload.
func writeHealthStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}
