package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mcpwire/mcpwire/internal/config"
	"github.com/mcpwire/mcpwire/pkg/mcp"
	"github.com/mcpwire/mcpwire/pkg/transport"
)

var devMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the demo MCP server",
	Long: `Run the demo MCP server over stdio or HTTP/SSE.

The demo registers an echo tool, a clock resource and a greeting prompt,
which is enough surface to exercise a client against every registry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if devMode {
			cfg.DevMode = true
			cfg.SetDefaults()
		}
		return runServe(cfg)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "enable development mode (debug logs, payload dumps)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cfg *config.Config) error {
	logger := newLogger(cfg.Server.LogLevel)

	requestTimeout, err := time.ParseDuration(cfg.Session.RequestTimeout)
	if err != nil {
		return fmt.Errorf("parse request_timeout: %w", err)
	}
	idleTimeout, err := time.ParseDuration(cfg.Session.SSEIdleTimeout)
	if err != nil {
		return fmt.Errorf("parse sse_idle_timeout: %w", err)
	}

	reg := prometheus.NewRegistry()

	opts := &mcp.SessionOptions{
		Implementation:  mcp.Implementation{Name: "mcpwire-demo", Version: Version},
		Instructions:    "Demo server: echo tool, clock resource, greeting prompt.",
		ProtocolVersion: cfg.Session.ProtocolVersion,
		DefaultTimeout:  requestTimeout,
		Logger:          logger,
		MetricsRegistry: reg,
		LogPayloads:     cfg.Session.LogPayloads,
		MaxPayloadDump:  cfg.Session.MaxPayloadDump,
	}

	var tr transport.Transport
	var httpTransport *transport.HTTPTransport
	switch cfg.Server.Transport {
	case "http":
		httpTransport = transport.NewHTTPTransport(&transport.HTTPOptions{
			SessionIdleTimeout: idleTimeout,
			Logger:             logger,
		})
		tr = httpTransport
	default:
		// stdio: logs must stay off stdout, which carries frames.
		tr = transport.NewStdioTransport(logger)
	}

	session := mcp.NewSession(tr, opts)
	if err := registerDemoFeatures(session); err != nil {
		return err
	}
	if err := session.Connect(); err != nil {
		return err
	}
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if httpTransport != nil {
		mux := http.NewServeMux()
		mux.Handle("/mcp", transport.Handler(httpTransport))

		srv := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: mux}
		go func() {
			logger.Info("http server listening", "addr", cfg.Server.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server failed", "error", err)
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Server.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			logger.Info("metrics listening", "addr", cfg.Server.MetricsAddr)
			if err := http.ListenAndServe(cfg.Server.MetricsAddr, metricsMux); err != nil {
				logger.Warn("metrics server failed", "error", err)
			}
		}()
	}

	logger.Info("demo server ready",
		"transport", cfg.Server.Transport,
		"config", config.ConfigFileUsed(),
	)

	// Run until a signal arrives or the session closes underneath us
	// (stdio EOF surfaces as a transport error that drains the peer).
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-ticker.C:
			if session.State() == mcp.StateClosed {
				logger.Info("session closed")
				return nil
			}
		}
	}
}

// registerDemoFeatures fills the three registries with a small demo
// surface.
func registerDemoFeatures(session *mcp.Session) error {
	err := session.RegisterTool(mcp.Tool{
		Name:        "echo",
		Description: "Echoes the message back to the caller",
		InputSchema: json.RawMessage(`{"type":"object","required":["message"],"properties":{"message":{"type":"string"}}}`),
		Handler: func(rc *mcp.RequestContext, args json.RawMessage) (*mcp.CallToolResult, error) {
			var in struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent(in.Message)}}, nil
		},
	})
	if err != nil {
		return err
	}

	err = session.RegisterResource(mcp.Resource{
		URI:         "clock://now",
		Name:        "clock",
		Description: "Current server time",
		MIMEType:    "text/plain",
		Handler: func(rc *mcp.RequestContext) ([]mcp.ResourceContents, error) {
			return []mcp.ResourceContents{{Text: time.Now().Format(time.RFC3339)}}, nil
		},
	})
	if err != nil {
		return err
	}

	return session.RegisterPrompt(mcp.Prompt{
		Name:        "greeting",
		Description: "Greets someone by name",
		Arguments: []mcp.PromptArgument{
			{Name: "name", Description: "who to greet", Required: true},
		},
		Handler: func(rc *mcp.RequestContext, args map[string]string) (*mcp.GetPromptResult, error) {
			return &mcp.GetPromptResult{
				Messages: []mcp.PromptMessage{
					{Role: "user", Content: mcp.TextContent("Say hello to " + args["name"])},
				},
			}, nil
		},
	})
}

// newLogger builds the process logger. Output goes to stderr so stdio
// framing on stdout stays clean.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
