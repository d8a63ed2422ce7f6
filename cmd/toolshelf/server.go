package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/toolshelf/internal/api"
	"github.com/kalambet/toolshelf/internal/backup"
	"github.com/kalambet/toolshelf/internal/catalog"
	"github.com/kalambet/toolshelf/internal/cleanup"
	"github.com/kalambet/toolshelf/internal/config"
	"github.com/kalambet/toolshelf/internal/lockfile"
	"github.com/kalambet/toolshelf/internal/storage"
	"github.com/kalambet/toolshelf/internal/toolfs"
	"github.com/kalambet/toolshelf/internal/tools"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the toolshelf server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running toolshelf server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show toolshelf status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
}

func logLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "toolshelf version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})))

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	lock, err := lockfile.AcquireDir(cfg.Storage.DataDir)
	if err != nil {
		if errors.Is(err, lockfile.ErrAlreadyLocked) {
			printWarning("toolshelf is already running")
		}
		return err
	}
	defer lock.Release()

	apiToken, err := config.APIToken(cfg)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	store, err := storage.Open(cfg.Storage.DataDir,
		storage.WithMaxSnapshots(cfg.Snapshots.MaxGenerations),
		storage.WithMaxSnapshotBytes(cfg.Snapshots.MaxContentBytes),
	)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	files, err := toolfs.New(cfg.Storage.ToolsDir)
	if err != nil {
		return fmt.Errorf("opening tools dir: %w", err)
	}
	cat, err := catalog.Load(cfg.Storage.CatalogDir)
	if err != nil {
		return fmt.Errorf("loading template catalog: %w", err)
	}

	svc := tools.NewService(store, files)
	backups := backup.NewService(store.DB(), cfg.Backup.Dir, cfg.Backup.MaxGenerations)
	scheduler := backup.NewScheduler(backups, time.Duration(cfg.Backup.IntervalHours)*time.Hour, cfg.Backup.OnStartup)
	worker := cleanup.NewWorker(store, files, 30*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(api.Deps{
			Tools:   svc,
			Backups: backups,
			Catalog: cat,
			Schema:  store,
			Token:   apiToken,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "toolshelf listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Tools: svc, Version: version})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pid, ok := lockfile.Holder(lockfilePath(cfg))
	if !ok {
		printError("toolshelf is not running")
		return errors.New("not running")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop toolshelf (PID %d): %v", pid, err)
		return err
	}

	printSuccess("Sent stop signal to toolshelf (PID %d)", pid)
	return nil
}

func lockfilePath(cfg config.Config) string {
	return filepath.Join(cfg.Storage.DataDir, lockfile.Name)
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		printError("%v", err)
		return nil
	}

	var health struct {
		Status        string `json:"status"`
		SchemaVersion int    `json:"schema_version"`
	}
	resp, err := client.get(context.Background(), "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else if err := decodeJSON(resp, &health); err != nil {
		printStatus("Server", "error (%v)", err)
	} else {
		printStatus("Server", "running on port %d", cfg.Server.Port)
		printStatus("Schema", "v%d", health.SchemaVersion)

		var list []json.RawMessage
		if resp, err := client.get(context.Background(), "/api/tools?limit=500"); err == nil && decodeJSON(resp, &list) == nil {
			printStatus("Tools", "%s", countLabel(len(list), 500))
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Tools dir", "%s", cfg.Storage.ToolsDir)
	printStatus("Backups", "%s (every %dh, keep %d)", cfg.Backup.Dir, cfg.Backup.IntervalHours, cfg.Backup.MaxGenerations)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
