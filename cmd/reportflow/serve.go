package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/reportflow/reportflow/pkg/config"
	"github.com/reportflow/reportflow/pkg/server"
	"github.com/reportflow/reportflow/pkg/telemetry"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the notification endpoint",
	Long: `Start the HTTP server that receives storage notifications.

Each POST to / carries a base64 JSON envelope naming an uploaded file.
The server computes a metrics report for the file and acknowledges the
delivery; duplicate notifications are acknowledged without reprocessing.

Examples:
  reportflow serve                 # Start on default port (8080)
  reportflow serve --port 3000     # Start on custom port
  reportflow serve --host 0.0.0.0  # Listen on all interfaces`,
	RunE: runServe,
}

func init() {
	cfg := config.Global().Get()

	serveCmd.Flags().IntVarP(&servePort, "port", "p", cfg.Server.Port, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", cfg.Server.Host, "Host to bind to")

	rootCmd.AddCommand(serveCmd)
}

var (
	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().Bold(true)
)

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Telemetry.Enabled {
		otlpCfg := telemetry.DefaultConfig("reportflow")
		otlpCfg.ServiceVersion = version
		if a.cfg.Telemetry.Endpoint != "" {
			otlpCfg.Endpoint = a.cfg.Telemetry.Endpoint
		}
		shutdown, err := telemetry.Init(ctx, otlpCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(shutdownCtx)
		}()
	}

	srv := server.NewServer(a.processor, a.logger)

	addr := fmt.Sprintf("%s:%d", serveHost, servePort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	printBanner(a, addr)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.Serve(listener); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func printBanner(a *app, addr string) {
	lines := fmt.Sprintf("%s\n\n%s %s\n%s %s/%s\n%s %s\n%s %s",
		labelStyle.Render("REPORTFLOW SERVER"),
		labelStyle.Render("Listen:  "), addr,
		labelStyle.Render("Watch:   "), a.cfg.Input.Container, a.cfg.Input.Prefix,
		labelStyle.Render("Reports: "), a.cfg.Output.Prefix,
		labelStyle.Render("Tracking:"), a.tracker.Name(),
	)
	fmt.Println(bannerStyle.Render(lines))
}
