package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/egress-agent/internal/api"
	"github.com/shaiso/egress-agent/internal/mq"
	"github.com/shaiso/egress-agent/internal/telemetry"
)

// RestartExitCode — код выхода процесса после запроса перезапуска.
// Супервизор (systemd, kubernetes) поднимает агент с новой конфигурацией.
const RestartExitCode = 3

// ErrRestartRequested возвращается командой run после удалённого обновления.
var ErrRestartRequested = errors.New("restart requested")

// --- run ---

// NewRunCmd создаёт команду запуска агента.
func NewRunCmd(settings *Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent: receive events and serve the local HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgent(cmd.Context(), *settings)
		},
	}
}

func runAgent(parent context.Context, s Settings) error {
	buffer := telemetry.NewLogBuffer(0)
	logger := telemetry.SetupLogger(buffer)
	logger.Info("starting egress-agent", "version", Version, "build", Build)

	shutdownTracer, err := telemetry.InitTracer(s.TracingEnabled, "egress-agent", s.TracingEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(ctx)
	}()

	restartCh := make(chan struct{}, 1)
	restart := func(context.Context) error {
		select {
		case restartCh <- struct{}{}:
		default:
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agent, err := BuildAgent(ctx, s, AgentOptions{
		Logger:  logger,
		Logs:    buffer,
		Restart: restart,
	})
	if err != nil {
		return err
	}
	defer agent.Close()

	handler := api.NewHandler(api.Config{
		Service: agent.Orchestrator,
		Metrics: agent.Metrics.Handler(),
		Logger:  logger,
	})
	server := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", s.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if err := agent.Orchestrator.Start(ctx); err != nil {
		_ = server.Close()
		return err
	}

	var result error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		result = err
	case <-restartCh:
		// Результат upgrade публикуется после вызова Restart.
		logger.Info("restart requested", "grace", s.RestartGrace)
		select {
		case <-time.After(s.RestartGrace):
		case <-ctx.Done():
		}
		result = ErrRestartRequested
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	agent.Orchestrator.Stop()

	logger.Info("stopped")
	return result
}

// --- health / reachability ---

// NewHealthCmd создаёт команду вывода health-информации агента.
func NewHealthCmd(settings *Settings, outputFn func() *Output) *cobra.Command {
	var traceID string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Print agent health information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			agent, err := BuildAgent(cmd.Context(), *settings, AgentOptions{
				Logger:          quietLogger(),
				WithoutReceiver: true,
			})
			if err != nil {
				return err
			}
			defer agent.Close()

			outputFn().KeyValues(agent.Orchestrator.HealthInformation(traceID))
			return nil
		},
	}
	cmd.Flags().StringVar(&traceID, "trace-id", "", "Trace id to include in the response")
	return cmd
}

// NewReachabilityCmd создаёт команду проверки связи с backend'ом.
func NewReachabilityCmd(settings *Settings, outputFn func() *Output) *cobra.Command {
	var traceID string

	cmd := &cobra.Command{
		Use:   "reachability",
		Short: "Check connectivity to the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			agent, err := BuildAgent(cmd.Context(), *settings, AgentOptions{
				Logger:          quietLogger(),
				WithoutReceiver: true,
			})
			if err != nil {
				return err
			}
			defer agent.Close()

			resp, err := agent.Orchestrator.RunReachabilityTest(cmd.Context(), traceID)
			if err != nil {
				return err
			}
			outputFn().KeyValues(resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&traceID, "trace-id", "", "Trace id (default: random UUID)")
	return cmd
}

// --- config ---

// NewConfigCmd создаёт группу команд runtime-конфигурации.
func NewConfigCmd(settings *Settings, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and update runtime configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show persisted configuration values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			agent, err := BuildAgent(cmd.Context(), *settings, AgentOptions{
				Logger:          quietLogger(),
				WithoutReceiver: true,
			})
			if err != nil {
				return err
			}
			defer agent.Close()

			values := make(map[string]any)
			for k, v := range agent.Config.All() {
				values[k] = v
			}
			outputFn().KeyValues(values)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set key=value [key=value...]",
		Short: "Persist configuration values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := ParseAssignments(args)
			if err != nil {
				return err
			}

			agent, err := BuildAgent(cmd.Context(), *settings, AgentOptions{
				Logger:          quietLogger(),
				WithoutReceiver: true,
			})
			if err != nil {
				return err
			}
			defer agent.Close()

			if err := agent.Config.SetValues(cmd.Context(), values); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Updated %d value(s)", len(values)))
			return nil
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}

// ParseAssignments разбирает аргументы вида key=value.
func ParseAssignments(args []string) (map[string]any, error) {
	values := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected key=value", arg)
		}
		values[key] = value
	}
	return values, nil
}

// --- events ---

// NewEventsCmd создаёт группу команд для очереди событий AMQP.
func NewEventsCmd(settings *Settings, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Manage the AMQP events queue",
	}

	var file string
	publish := &cobra.Command{
		Use:   "publish [json]",
		Short: "Publish an event to the agent exchange",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := eventBody(args, file)
			if err != nil {
				return err
			}

			conn, err := mq.Dial(mq.ConnectionConfig{URL: settings.AMQPURL, Logger: quietLogger()})
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := mq.NewPublisher(conn, quietLogger()).PublishEvent(cmd.Context(), body); err != nil {
				return err
			}
			outputFn().Success("Event published")
			return nil
		},
	}
	publish.Flags().StringVarP(&file, "file", "f", "", "Read the event from a file")

	setup := &cobra.Command{
		Use:   "setup-topology",
		Short: "Declare exchanges and queues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := mq.Dial(mq.ConnectionConfig{URL: settings.AMQPURL, Logger: quietLogger()})
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := mq.SetupTopology(cmd.Context(), conn); err != nil {
				return err
			}
			outputFn().Success("Topology declared")
			return nil
		},
	}

	cmd.AddCommand(publish, setup)
	return cmd
}

func eventBody(args []string, file string) ([]byte, error) {
	switch {
	case file != "" && len(args) > 0:
		return nil, errors.New("specify either an argument or --file, not both")
	case file != "":
		return os.ReadFile(file)
	case len(args) == 1:
		return []byte(args[0]), nil
	default:
		return nil, errors.New("event body is required")
	}
}

// quietLogger — логгер одноразовых команд: только предупреждения в stderr.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
