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

	"github.com/helpline-dev/helpline/internal/agent"
	"github.com/helpline-dev/helpline/internal/api"
	"github.com/helpline-dev/helpline/internal/config"
	"github.com/helpline-dev/helpline/internal/kb"
	"github.com/helpline-dev/helpline/internal/lifecycle"
	"github.com/helpline-dev/helpline/internal/notify"
	"github.com/helpline-dev/helpline/internal/ollama"
	"github.com/helpline-dev/helpline/internal/store"
	"github.com/helpline-dev/helpline/internal/suggest"
	"github.com/helpline-dev/helpline/internal/transport"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the helpline server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running helpline server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show helpline system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "helpline.pid")
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

func logLevel(name string) slog.Level {
	switch {
	case strings.EqualFold(name, "debug"):
		return slog.LevelDebug
	case strings.EqualFold(name, "warn"):
		return slog.LevelWarn
	case strings.EqualFold(name, "error"):
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "helpline version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	})))

	// Refuse to double-start. The health endpoint is the authority; the
	// PID file just names the culprit.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("helpline is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("helpline is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := store.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	resolver := kb.NewResolver(s)

	// Suggestions and summaries come from a local Ollama model. A missing
	// model is not fatal: the suggester degrades to canned text.
	var suggester *suggest.Suggester
	if cfg.Ollama.Model != "" {
		ollamaClient := ollama.New(cfg.Ollama.BaseURL)
		if !ollamaClient.IsRunning(ctx) {
			printWarning("Ollama not reachable at %s; answer suggestions will use fallback text", cfg.Ollama.BaseURL)
		}
		suggester = suggest.New(ollamaClient, resolver, cfg.Ollama.Model)
	}

	var notifier notify.Notifier
	if cfg.Notify.CallerWebhookURL != "" || cfg.Notify.SupervisorWebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.CallerWebhookURL, cfg.Notify.SupervisorWebhookURL)
	} else {
		notifier = notify.NewLog()
	}

	timeout, err := cfg.Lifecycle.Timeout()
	if err != nil {
		return err
	}
	sweepInterval, err := cfg.Lifecycle.Interval()
	if err != nil {
		return err
	}

	opts := lifecycle.Options{
		Store:    s,
		KB:       resolver,
		Notifier: notifier,
		Timeout:  timeout,
	}
	if suggester != nil {
		opts.Producer = suggester
	}
	manager := lifecycle.NewManager(opts)

	sweeper := lifecycle.NewSweeper(manager, sweepInterval)
	go sweeper.Run(ctx)

	if cfg.Agent.Simulate {
		callInterval, err := cfg.Agent.Interval()
		if err != nil {
			return err
		}
		sim := transport.NewSimulator(callInterval)
		ag := agent.New(sim, resolver, manager)
		go ag.Run(ctx)
		slog.Info("call simulator started", "interval", callInterval)
	}

	deps := api.AppDeps{
		Manager: manager,
		KB:      resolver,
		Token:   cfg.API.Token,
	}
	if suggester != nil {
		deps.Suggester = suggester
	}
	handler := api.NewAppHandler(deps)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server over stdio, for supervisor-side agents.
	mcpDeps := api.MCPDeps{
		Manager: manager,
		KB:      resolver,
	}
	if suggester != nil {
		mcpDeps.Suggester = suggester
	}
	stdioSrv := server.NewStdioServer(api.NewMCPServer(mcpDeps))
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "helpline listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("helpline is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop helpline (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to helpline (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}
	printStatus("Model", "%s", cfg.Ollama.Model)

	if running {
		if c, err := newAPIClient(); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			var pending []struct {
				ID string `json:"id"`
			}
			if resp, err := c.get(ctx, "/help-requests?status=pending"); err == nil {
				if decodeJSON(resp, &pending) == nil {
					printStatus("Pending requests", "%d", len(pending))
				}
			}

			var entries []struct {
				ID string `json:"id"`
			}
			if resp, err := c.get(ctx, "/knowledge-base"); err == nil {
				if decodeJSON(resp, &entries) == nil {
					printStatus("Knowledge base", "%d entries", len(entries))
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
