package commands

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cobot-run/cobot/internal/app"
	"github.com/cobot-run/cobot/internal/config"
	"github.com/cobot-run/cobot/internal/metrics"
	"github.com/cobot-run/cobot/internal/observability"
)

// NewRunCmd starts the agent: it builds the kernel/orchestrator from
// config, writes a PID file, and runs the poll loop until interrupted or
// asked to restart.
func NewRunCmd(deps *Deps) *cobra.Command {
	var stdin bool
	var cont bool
	var debug bool
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := deps.Logger()
			if debug {
				logger = NewLogger("debug", "json")
			}
			cfg, err := config.Load(*deps.ConfigPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var reg *prometheus.Registry
			var m *metrics.Metrics
			if metricsAddr != "" {
				reg = prometheus.NewRegistry()
				m = metrics.New(reg)
			}

			tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
				ServiceName: "cobot",
				Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			})
			defer shutdownTracer(context.Background())

			a, err := app.Build(ctx, cfg, "", logger, m, tracer)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}

			if err := a.Start(ctx); err != nil {
				return fmt.Errorf("start: %w", err)
			}
			defer a.Stop(context.Background())

			pidPath := pidFilePath(a.Workspace.Root())
			if err := writePIDFile(pidPath); err != nil {
				logger.Warn("could not write pid file", "path", pidPath, "error", err)
			}
			defer os.Remove(pidPath)

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
					w.Write([]byte("ok"))
				})
				server := &http.Server{Addr: metricsAddr, Handler: mux}
				go func() {
					if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Error("metrics server failed", "error", err)
					}
				}()
				defer server.Close()
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)

			done := make(chan struct{})
			go func() {
				a.Orchestrator.RunLoop(ctx)
				close(done)
			}()

			if stdin {
				go readStdinLoop(ctx, logger)
			}

			select {
			case sig := <-sigCh:
				logger.Info("received signal, shutting down", "signal", sig.String())
				cancel()
				<-done
				if sig == syscall.SIGUSR1 {
					return reexec()
				}
				return nil
			case <-done:
				return nil
			}
		},
	}

	cmd.Flags().BoolVar(&stdin, "stdin", false, "also accept messages typed on stdin")
	cmd.Flags().BoolVar(&cont, "continue", false, "resume the previous session instead of starting fresh (reserved; no persisted session store yet)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable verbose debug logging")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address (disabled by default)")

	return cmd
}

// readStdinLoop is a convenience for local testing: lines typed on stdin
// are logged, not injected into the orchestrator — stdin is not a
// registered session implementer, so there's nowhere in the hub to route
// it without a dedicated adapter.
func readStdinLoop(ctx context.Context, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		logger.Info("stdin input received (not routed: no stdin channel adapter)", "text", scanner.Text())
	}
}

func reexec() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	return syscall.Exec(exe, os.Args, os.Environ())
}
