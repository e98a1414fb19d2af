package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/temlaunch/temlaunch/internal/api"
	"github.com/temlaunch/temlaunch/internal/config"
	"github.com/temlaunch/temlaunch/internal/updates"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the launcher HTTP API and MCP tools (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(cmd, withMCP)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show launcher status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", true, "serve MCP tools over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "temlaunch.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(cmd *cobra.Command, withMCP bool) error {
	fmt.Fprintf(os.Stderr, "temlaunch version %s\n", version)

	env, err := openEnv(os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := env.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()
	cfg := env.cfg

	apiToken, err := config.GetAPIToken(cfg.SecretStore())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice: a live /health means another server owns the port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	modNames := env.updater.Mods()
	if updates.Due(cfg.Updates.Check, updates.OnStart) {
		if _, err := updates.Enqueue(env.store, modNames...); err != nil {
			slog.Warn("queueing mod updates failed", "error", err)
		}
	}

	worker := updates.NewWorker(env.store, env.updater, 2*time.Second)
	workerDone := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(workerDone)
	}()

	sortOpt := env.sortOption()
	handler := api.NewAppHandler(api.AppDeps{
		Store:    env.store,
		Profiles: env.profiles,
		Launcher: env.launcher,
		Console:  env.console,
		Mods:     env.installer,
		ModNames: modNames,
		Sort:     sortOpt,
		Token:    apiToken,
		Logger:   env.logger,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:    env.store,
			Profiles: env.profiles,
			Launcher: env.launcher,
			Console:  env.console,
			ModNames: modNames,
			Sort:     sortOpt,
			Version:  version,
			Logger:   env.logger,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "temlaunch listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	<-workerDone

	if updates.Due(cfg.Updates.Check, updates.OnExit) {
		slog.Info("checking for mod updates before exit")
		exitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := env.checkUpdates(exitCtx); err != nil {
			slog.Warn("mod update check failed", "error", err)
		}
	}
	return serveErr
}

type launchSummary struct {
	ProfileName string
	StartedAt   time.Time
	FinishedAt  time.Time
	ExitCode    int
	Error       string
}

func showStatus(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	printStatus("Game", "%s", valueOr(cfg.Game.InstallPath, "not found"))
	printStatus("Config dir", "%s", cfg.Game.ConfigPath)
	printStatus("Mods dir", "%s", cfg.ModsDir())
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Updates", "%s", cfg.Updates.Check)

	client, err := newAPIClient()
	if err != nil {
		printStatus("Server", "unknown (%v)", err)
		return nil
	}
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return nil
	}
	printStatus("Server", "running on port %d", cfg.Server.Port)

	resp, err = client.get(ctx, "/launches?limit=1")
	if err != nil {
		return nil
	}
	var launches struct {
		Running  bool            `json:"running"`
		Launches []launchSummary `json:"launches"`
	}
	if err := decodeJSON(resp, &launches); err != nil {
		printWarning("reading launches: %v", err)
		return nil
	}
	switch {
	case launches.Running:
		printStatus("Game state", "running")
	case len(launches.Launches) > 0:
		printStatus("Last launch", "%s", describeLaunch(launches.Launches[0]))
	}
	return nil
}

func describeLaunch(l launchSummary) string {
	s := fmt.Sprintf("%s at %s", l.ProfileName, l.StartedAt.Local().Format("2006-01-02 15:04"))
	if l.FinishedAt.IsZero() {
		return s + " (running)"
	}
	if l.Error != "" {
		return fmt.Sprintf("%s (exit %d: %s)", s, l.ExitCode, l.Error)
	}
	return fmt.Sprintf("%s (exit %d)", s, l.ExitCode)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
