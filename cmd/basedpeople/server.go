package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/basedpeople/internal/api"
	"github.com/kalambet/basedpeople/internal/catalog"
	"github.com/kalambet/basedpeople/internal/config"
	"github.com/kalambet/basedpeople/internal/follow"
	"github.com/kalambet/basedpeople/internal/identity"
	"github.com/kalambet/basedpeople/internal/ingest"
	"github.com/kalambet/basedpeople/internal/query"
	"github.com/kalambet/basedpeople/internal/search"
	"github.com/kalambet/basedpeople/internal/seed"
	"github.com/kalambet/basedpeople/internal/storage"
	"github.com/kalambet/basedpeople/internal/taskapi"
	"github.com/kalambet/basedpeople/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and store status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// readSide is the store, catalog and text index shared by the server and
// the MCP command.
type readSide struct {
	store *storage.Store
	cat   *catalog.Catalog
	index *search.Index
	query *query.Service
}

func loadCatalog(cfg config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog.Path == "" {
		return catalog.Default()
	}
	return catalog.Load(cfg.Catalog.Path)
}

func openReadSide(cfg config.Config) (*readSide, error) {
	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	index, err := search.NewMemOnly()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating search index: %w", err)
	}
	if err := index.Rebuild(store); err != nil {
		index.Close()
		store.Close()
		return nil, fmt.Errorf("building search index: %w", err)
	}

	qs := query.NewService(store, cat)
	qs.SetIndex(index)

	return &readSide{store: store, cat: cat, index: index, query: qs}, nil
}

func (rs *readSide) Close() {
	if err := rs.index.Close(); err != nil {
		fmt.Fprintf(stderr, "warning: closing search index: %v\n", err)
	}
	if err := rs.store.Close(); err != nil {
		fmt.Fprintf(stderr, "warning: closing storage: %v\n", err)
	}
}

func newTaskClient(cfg config.Config) *taskapi.Client {
	client := taskapi.NewClientWithBaseURL(cfg.TaskAPI.APIKey, cfg.TaskAPI.BaseURL)
	client.SetTimeout(config.Duration(cfg.TaskAPI.Timeout, 30*time.Second))
	return client
}

func newResolver(cfg config.Config) identity.Resolver {
	if cfg.Auth.UserInfoURL == "" {
		slog.Warn("auth.userinfo_url not set, follow features are disabled")
		return identity.Disabled{}
	}
	return identity.NewCachingResolver(
		identity.NewHTTPResolver(cfg.Auth.UserInfoURL),
		config.Duration(cfg.Auth.CacheTTL, 5*time.Minute),
	)
}

func runServer() error {
	fmt.Fprintf(stderr, "basedpeople version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rs, err := openReadSide(cfg)
	if err != nil {
		return err
	}
	defer rs.Close()
	if n, err := rs.index.DocCount(); err == nil {
		slog.Info("search index ready", "documents", n)
	}

	client := newTaskClient(cfg)

	coordinator := ingest.NewCoordinator(rs.store, client, rs.cat)
	coordinator.SetIndexer(rs.index)

	handler := api.NewRouter(api.Deps{
		Store:      rs.store,
		Verifier:   webhook.NewVerifier(cfg.Webhook.Secret),
		Events:     coordinator,
		Query:      rs.query,
		Follow:     follow.NewManager(rs.store, newResolver(cfg), rs.cat),
		Seeder:     seed.NewSeeder(client, cfg.TaskAPI.Processor, cfg.Server.PublicURL, cfg.Seed.Concurrency),
		SeedSecret: cfg.Seed.Secret,
		AdminToken: cfg.Admin.Token,
		LoginURL:   cfg.Auth.LoginURL,
		FeedLimit:  cfg.Feed.Limit,
	})
	if cfg.Admin.Token == "" {
		slog.Warn("BP_ADMIN_TOKEN not set, admin routes reject every request")
	}

	// Refetch jobs queued by reconcile.
	worker := ingest.NewWorker(rs.store, coordinator, config.Duration(cfg.Worker.PollInterval, time.Second))
	go worker.Run(ctx)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("basedpeople listening", "addr", addr, "webhook_url", seed.WebhookURL(cfg.Server.PublicURL))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type healthResponse struct {
	Status      string `json:"status"`
	People      int    `json:"people"`
	Appearances int    `json:"appearances"`
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	client.httpClient.Timeout = 2 * time.Second

	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped (%s)", client.baseURL)
	} else {
		var health healthResponse
		if err := decodeJSON(resp, &health); err != nil {
			printStatus("Server", "error (%v)", err)
		} else {
			printStatus("Server", "running at %s", client.baseURL)
			printStatus("People", "%d", health.People)
			printStatus("Appearances", "%d", health.Appearances)
		}
	}

	if err := cfg.Validate(); err != nil {
		printWarning("%v", err)
	}
	printStatus("Public URL", "%s", cfg.Server.PublicURL)
	printStatus("Webhook URL", "%s", seed.WebhookURL(cfg.Server.PublicURL))
	printStatus("Processor", "%s", cfg.TaskAPI.Processor)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
