package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/hylla/pipedesk/internal/adapters/cache/rediscache"
	"github.com/hylla/pipedesk/internal/adapters/server"
	"github.com/hylla/pipedesk/internal/adapters/server/httpapi"
	"github.com/hylla/pipedesk/internal/adapters/server/wsapi"
	"github.com/hylla/pipedesk/internal/adapters/storage/sqlstore"
	"github.com/hylla/pipedesk/internal/app"
	"github.com/hylla/pipedesk/internal/client"
	"github.com/hylla/pipedesk/internal/config"
	"github.com/hylla/pipedesk/internal/platform"
	"github.com/hylla/pipedesk/internal/tui"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time.
var version = "dev"

// program is the part of tea.Program the CLI drives.
type program interface {
	Run() (tea.Model, error)
}

// programFactory builds the TUI program. Tests swap it for a fake.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveFunc runs the HTTP server. Tests swap it to avoid binding sockets.
var serveFunc = server.Run

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(os.Stdout, os.Stderr)
	if err := fang.Execute(ctx, root, fang.WithVersion(version)); err != nil {
		stop()
		os.Exit(1)
	}
}

// run executes the CLI with explicit args and writers.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SilenceErrors = true
	return root.ExecuteContext(ctx)
}

// cliOptions holds persistent flag values shared by every command.
type cliOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool

	stdout io.Writer
	stderr io.Writer
}

// newRootCommand builds the pipedesk command tree. With no subcommand it starts the TUI.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &cliOptions{stdout: stdout, stderr: stderr}

	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("PIPEDESK_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	defaultApp := "pipedesk"
	if envApp := strings.TrimSpace(os.Getenv("PIPEDESK_APP_NAME")); envApp != "" {
		defaultApp = envApp
	}

	root := &cobra.Command{
		Use:           "pipedesk",
		Short:         "Kanban funnels for projects and subprojects",
		Long:          "pipedesk groups projects and subprojects into funnels of ordered stages.\nRun without a command to open the board.",
		Version:       version,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.runTUI(cmd.Context())
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("pipedesk {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", defaultApp, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		newTUICommand(opts),
		newServeCommand(opts),
		newPathsCommand(opts),
		newTokenCommand(opts),
		newExportCommand(opts),
		newImportCommand(opts),
	)
	return root
}

func newTUICommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the kanban board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.runTUI(cmd.Context())
		},
	}
}

func newServeCommand(opts *cliOptions) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST, MCP, and websocket endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.runServe(cmd.Context(), bind)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "listen address (overrides server.bind)")
	return cmd
}

func newPathsCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			paths, err := opts.paths()
			if err != nil {
				return err
			}
			out := opts.stdout
			_, _ = fmt.Fprintf(out, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(out, "env: %s\n", paths.EnvPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(out, "log_dir: %s\n", paths.LogDir)
			return nil
		},
	}
}

func newTokenCommand(opts *cliOptions) *cobra.Command {
	var subject, name string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with auth.jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			rt, err := opts.load()
			if err != nil {
				return err
			}
			defer rt.Close()
			token, err := httpapi.IssueToken(authConfig(rt.cfg), subject, name, time.Now().UTC())
			if err != nil {
				return err
			}
			rt.logger.Debug("token issued", "subject", subject)
			_, err = fmt.Fprintln(opts.stdout, token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", app.DefaultActorID, "token subject (actor id)")
	cmd.Flags().StringVar(&name, "name", "", "display name carried in the token")
	return cmd
}

func newExportCommand(opts *cliOptions) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON snapshot of funnels, entities, and comments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.runExport(cmd.Context(), outPath)
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	return cmd
}

func newImportCommand(opts *cliOptions) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a JSON snapshot into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.runImport(cmd.Context(), inPath)
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot JSON file")
	return cmd
}

// paths resolves platform paths and loads the optional .env file beside the config.
func (o *cliOptions) paths() (platform.Paths, error) {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: o.appName,
		DevMode: o.devMode,
	})
	if err != nil {
		return platform.Paths{}, err
	}
	if err := loadEnvFile(paths.EnvPath); err != nil {
		return platform.Paths{}, err
	}
	return paths, nil
}

// runtimeEnv is the loaded config plus the resources opened for one command.
type runtimeEnv struct {
	configPath string
	cfg        config.Config
	logger     *runtimeLogger

	repo  *sqlstore.Repository
	cache *rediscache.Cache
}

// load resolves config with flag and environment overrides and builds the logger.
func (o *cliOptions) load() (*runtimeEnv, error) {
	paths, err := o.paths()
	if err != nil {
		return nil, err
	}

	configPath := strings.TrimSpace(o.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("PIPEDESK_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(o.dbPath)
	if dbPath == "" {
		dbPath = strings.TrimSpace(os.Getenv("PIPEDESK_DB_PATH"))
	}

	cfg, err := config.Load(configPath, config.Default(paths.DBPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	applyEnvOverrides(&cfg, dbPath)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", configPath, err)
	}

	logger, err := newRuntimeLogger(o.stderr, o.appName, o.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, err
	}
	if devLogPath := logger.DevLogPath(); devLogPath != "" {
		logger.Info("dev file logging enabled", "path", devLogPath)
	}
	logger.Debug("config resolved", "config_path", configPath, "driver", cfg.Database.Driver)
	return &runtimeEnv{configPath: configPath, cfg: cfg, logger: logger}, nil
}

// applyEnvOverrides layers PIPEDESK_* variables over file config.
func applyEnvOverrides(cfg *config.Config, dbPath string) {
	if dbPath != "" {
		cfg.Database.Driver = config.DriverSQLite
		cfg.Database.Path = dbPath
	}
	if dsn := strings.TrimSpace(os.Getenv("PIPEDESK_DB_DSN")); dsn != "" && dbPath == "" {
		cfg.Database.Driver = config.DriverPostgres
		cfg.Database.DSN = dsn
	}
	if secret := strings.TrimSpace(os.Getenv("PIPEDESK_JWT_SECRET")); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if token := strings.TrimSpace(os.Getenv("PIPEDESK_TOKEN")); token != "" {
		cfg.Client.Token = token
	}
}

// openStore opens the repository and, when configured, the redis funnel cache.
func (rt *runtimeEnv) openStore(ctx context.Context) error {
	db := rt.cfg.Database
	repo, err := sqlstore.Open(db.Driver, db.Path, db.DSN)
	if err != nil {
		rt.logger.Error("repository open failed", "driver", db.Driver, "err", err)
		return fmt.Errorf("open %s repository: %w", db.Driver, err)
	}
	rt.repo = repo
	if repo.Dialect() == sqlstore.DialectSQLite {
		rt.logger.Info("sqlite repository ready", "db_path", db.Path)
	} else {
		rt.logger.Info("postgres repository ready")
	}

	if strings.TrimSpace(rt.cfg.Cache.RedisURL) == "" {
		return nil
	}
	ttl, err := rt.cfg.CacheTTL()
	if err != nil {
		return err
	}
	cache, err := rediscache.Open(rt.cfg.Cache.RedisURL, ttl)
	if err != nil {
		return fmt.Errorf("open redis cache: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := cache.Ping(pingCtx); err != nil {
		rt.logger.Warn("redis cache unavailable, continuing without cache", "err", err)
		_ = cache.Close()
		return nil
	}
	rt.cache = cache
	rt.logger.Info("redis funnel cache ready", "ttl", ttl)
	return nil
}

// service builds the app service over the open store. notifier may be nil.
func (rt *runtimeEnv) service(notifier app.Notifier) *app.Service {
	cfg := app.ServiceConfig{Notifier: notifier}
	if rt.cache != nil {
		cfg.Cache = rt.cache
	}
	return app.NewService(rt.repo, uuid.NewString, nil, cfg)
}

// Close releases the store, cache, and log file.
func (rt *runtimeEnv) Close() {
	if rt == nil {
		return
	}
	if rt.cache != nil {
		if err := rt.cache.Close(); err != nil {
			rt.logger.Warn("redis cache close failed", "err", err)
		}
	}
	if rt.repo != nil {
		if err := rt.repo.Close(); err != nil {
			rt.logger.Warn("repository close failed", "err", err)
		} else {
			rt.logger.Debug("repository closed")
		}
	}
	if err := rt.logger.Close(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "warning: close dev log:", err)
	}
}

// runTUI opens the board against the local database or a remote server.
func (o *cliOptions) runTUI(ctx context.Context) error {
	rt, err := o.load()
	if err != nil {
		return err
	}
	defer rt.Close()

	var api client.API
	if baseURL := strings.TrimSpace(rt.cfg.Client.BaseURL); baseURL != "" {
		api = client.NewHTTPClient(baseURL, client.StaticAuth{
			TokenValue: rt.cfg.Client.Token,
			User:       rt.cfg.Client.User,
		}, nil)
		rt.logger.Info("using remote server", "base_url", baseURL)
	} else {
		if err := rt.openStore(ctx); err != nil {
			return err
		}
		api = client.NewServiceBackend(rt.service(nil), client.StaticAuth{User: rt.cfg.Client.User})
	}

	m := tui.NewModel(api,
		tui.WithScope(rt.cfg.DefaultScope()),
		tui.WithIdentity(rt.cfg.Client.User),
	)
	rt.logger.Info("starting tui program loop", "scope", rt.cfg.DefaultScope())
	rt.logger.SetConsoleEnabled(false)
	_, runErr := programFactory(m).Run()
	rt.logger.SetConsoleEnabled(true)
	if runErr != nil {
		rt.logger.Error("tui program terminated with error", "err", runErr)
		return fmt.Errorf("run tui program: %w", runErr)
	}
	rt.logger.Info("tui program exited cleanly")
	return nil
}

// runServe serves every transport until ctx is cancelled.
func (o *cliOptions) runServe(ctx context.Context, bind string) error {
	rt, err := o.load()
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.openStore(ctx); err != nil {
		return err
	}

	hub := wsapi.NewHub(rt.logger)
	svc := rt.service(hub)
	if strings.TrimSpace(bind) == "" {
		bind = rt.cfg.Server.Bind
	}
	auth := authConfig(rt.cfg)
	if !auth.Enabled() {
		rt.logger.Warn("auth.jwt_secret is empty, serving without authentication")
	}
	return serveFunc(ctx, server.Config{
		HTTPBind:      bind,
		APIEndpoint:   rt.cfg.Server.APIEndpoint,
		MCPEndpoint:   rt.cfg.Server.MCPEndpoint,
		WSEndpoint:    rt.cfg.Server.WSEndpoint,
		ServerName:    "pipedesk",
		ServerVersion: version,
	}, server.Dependencies{
		Service: svc,
		Hub:     hub,
		Auth:    auth,
		Logger:  rt.logger,
	})
}

// runExport writes a snapshot to outPath or stdout.
func (o *cliOptions) runExport(ctx context.Context, outPath string) error {
	rt, err := o.load()
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.openStore(ctx); err != nil {
		return err
	}

	snap, err := rt.service(nil).ExportSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}
	encoded, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	encoded = append(encoded, '\n')

	outPath = strings.TrimSpace(outPath)
	if outPath == "" || outPath == "-" {
		_, err = o.stdout.Write(encoded)
		return err
	}
	if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
		return fmt.Errorf("write snapshot %q: %w", outPath, err)
	}
	rt.logger.Info("snapshot exported", "path", outPath, "funnels", len(snap.Funnels), "projects", len(snap.Projects))
	return nil
}

// runImport loads a snapshot file into the database.
func (o *cliOptions) runImport(ctx context.Context, inPath string) error {
	inPath = strings.TrimSpace(inPath)
	if inPath == "" {
		return errors.New("import requires --in <path>")
	}
	content, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("read snapshot %q: %w", inPath, err)
	}
	var snap app.Snapshot
	if err := json.Unmarshal(content, &snap); err != nil {
		return fmt.Errorf("decode snapshot %q: %w", inPath, err)
	}

	rt, err := o.load()
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.openStore(ctx); err != nil {
		return err
	}
	if err := rt.service(nil).ImportSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	rt.logger.Info("snapshot imported", "path", inPath, "funnels", len(snap.Funnels), "projects", len(snap.Projects))
	return nil
}

// authConfig maps the auth section onto the bearer middleware config.
func authConfig(cfg config.Config) httpapi.AuthConfig {
	ttl, err := cfg.TokenTTL()
	if err != nil {
		ttl = 0
	}
	return httpapi.AuthConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
		TTL:    ttl,
	}
}

// loadEnvFile loads KEY=VALUE pairs from path without overriding the process environment.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

// parseBoolEnv reads a boolean variable. ok is false when unset or malformed.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
