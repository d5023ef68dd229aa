package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/ozchestrator/internal/agent"
	"github.com/dohr-michael/ozchestrator/internal/breaker"
	"github.com/dohr-michael/ozchestrator/internal/config"
	"github.com/dohr-michael/ozchestrator/internal/events"
	"github.com/dohr-michael/ozchestrator/internal/gateway"
	"github.com/dohr-michael/ozchestrator/internal/gateway/codegen"
	"github.com/dohr-michael/ozchestrator/internal/heartbeat"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate/approval"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate/executor"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate/queue"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate/status"
	"github.com/dohr-michael/ozchestrator/internal/storage"
	"github.com/dohr-michael/ozchestrator/internal/tasks"
	"github.com/dohr-michael/ozchestrator/internal/vcs"
	"github.com/dohr-michael/ozchestrator/internal/workspace"
)

// NewGatewayCommand returns the gateway subcommand.
func NewGatewayCommand() *cli.Command {
	return &cli.Command{
		Name:  "gateway",
		Usage: "Start the ozchestrator gateway server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runGateway,
	}
}

func runGateway(_ context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", configPath, "error", err)
		cfg = &config.Config{}
	}

	logLevel := resolveLogLevel(cfg.Log.Level)
	if cmd.Bool("debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Event bus — spine for task/update/breaker lifecycle events (4.E/4.G/4.A).
	bus := events.NewBus(1024)
	defer bus.Close()

	// Event persistence — durable JSONL audit trail.
	logsDir := filepath.Join(config.DataPath(), "logs")
	eventLogger := storage.NewEventLogger(logsDir, bus)
	defer eventLogger.Close()

	// Circuit breaker — one per agent type (4.A).
	breakerCfg := breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		TimeoutDuration:  cfg.Breaker.TimeoutDuration.Duration,
		FailureWindow:    cfg.Breaker.FailureWindow.Duration,
	}
	agentTypes := []tasks.AgentType{
		tasks.SoftwareDeveloper,
		tasks.ProjectManager,
		tasks.Reviewer,
		tasks.Researcher,
	}
	breakers := make(map[tasks.AgentType]*breaker.Breaker, len(agentTypes))
	for _, at := range agentTypes {
		b := breaker.New(breakerCfg)
		agentID := string(at)
		b.OnTransition(func(from, to breaker.State) {
			if to == breaker.Open {
				bus.Publish(events.NewTypedEvent(events.SourceBreaker, events.BreakerTrippedPayload{
					AgentID:      agentID,
					FailureCount: b.Counters().FailureCount,
				}))
			}
			if to == breaker.Closed {
				bus.Publish(events.NewTypedEvent(events.SourceBreaker, events.BreakerResetPayload{
					AgentID: agentID,
				}))
			}
		})
		breakers[at] = b
	}

	// Config hot-reload — SIGHUP re-reads the YAML config and .env file and
	// pushes the refreshed thresholds/log level into the running process
	// without a restart.
	reloader := config.NewReloader(configPath, config.DotenvPath(), cfg)
	reloader.OnReload(func(newCfg *config.Config) {
		newLevel := resolveLogLevel(newCfg.Log.Level)
		if cmd.Bool("debug") {
			newLevel = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: newLevel})))
		for _, at := range agentTypes {
			breakers[at].UpdateConfig(breaker.Config{
				FailureThreshold: newCfg.Breaker.FailureThreshold,
				SuccessThreshold: newCfg.Breaker.SuccessThreshold,
				TimeoutDuration:  newCfg.Breaker.TimeoutDuration.Duration,
				FailureWindow:    newCfg.Breaker.FailureWindow.Duration,
			})
		}
	})
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := reloader.Reload(); err != nil {
					slog.Error("config reload failed", "error", err)
				}
			}
		}
	}()

	// Workspace manager — per-session isolated working directories (4.B).
	ws, err := workspace.NewManager(cfg.Workspace.Subdir, cfg.Workspace.CleanupAfter.Duration)
	if err != nil {
		return fmt.Errorf("init workspace manager: %w", err)
	}

	// Workspace cleanup sweep — the age-based GC (4.B) isn't driven by any
	// other component's loop, so it gets its own ticker here, surfaced as a
	// schedule.trigger event for anything watching the bus.
	go func() {
		ticker := time.NewTicker(cfg.Workspace.CleanupInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ws.Cleanup(); err != nil {
					slog.Warn("workspace cleanup failed", "error", err)
				}
				bus.Publish(events.NewTypedEvent(events.SourceScheduler, events.ScheduleTriggerPayload{Name: "workspace_cleanup"}))
			}
		}
	}()

	// Agent registry — one codegen-backed agent per AgentType (4.C/4.D).
	registry := agent.NewRegistry()
	for _, at := range agentTypes {
		gw, err := codegen.New(codegen.Config{
			BinaryPath:     cfg.Subprocess.BinaryPath,
			Timeout:        cfg.Subprocess.Timeout.Duration,
			PermissionMode: cfg.Subprocess.PermissionMode,
			AllowedTools:   cfg.Subprocess.AllowedTools,
		}, breakers[at], ws)
		if err != nil {
			return fmt.Errorf("init %s subprocess gateway: %w", at, err)
		}
		desc, err := agent.NewFactory(gw).New(at)
		if err != nil {
			return fmt.Errorf("construct %s agent: %w", at, err)
		}
		if err := registry.Register(desc); err != nil {
			return fmt.Errorf("register %s agent: %w", at, err)
		}
	}

	// Task orchestrator (4.E).
	orchCfg := tasks.OrchestratorConfig{
		MaxQueueSize:    cfg.TaskQueue.MaxQueueSize,
		PollInterval:    cfg.TaskQueue.PollInterval.Duration,
		CleanupInterval: cfg.TaskQueue.CleanupInterval.Duration,
		RetentionWindow: cfg.TaskQueue.RetentionWindow.Duration,
	}
	orch := tasks.NewOrchestrator(orchCfg, registry)
	orch.OnGC(func() {
		bus.Publish(events.NewTypedEvent(events.SourceScheduler, events.ScheduleTriggerPayload{Name: "task_queue_gc"}))
	})
	go orch.Run(ctx)
	defer orch.Stop()

	// Version-control adapter (4.F).
	vcsAdapter := vcs.New(cfg.VCS.RepoDir)
	if err := vcsAdapter.VerifyAvailable(ctx); err != nil {
		slog.Warn("vcs adapter unavailable, self-update disabled", "error", err)
	}

	// Self-update queue, approval manager, status tracker, executor (4.G-L).
	updateQueue := queue.New(queue.Config{
		MaxSize:        cfg.Update.MaxQueueSize,
		MaxConcurrent:  cfg.Update.MaxConcurrent,
		MaxContentSize: cfg.Update.MaxContentSize,
	})

	approvals := approval.New()
	approvals.OnSweep(func() {
		bus.Publish(events.NewTypedEvent(events.SourceScheduler, events.ScheduleTriggerPayload{Name: "approval_janitor"}))
	})
	go approvals.Run(ctx)

	tracker, err := status.New(config.StatusPath())
	if err != nil {
		return fmt.Errorf("init status tracker: %w", err)
	}

	// The self-update executor drives its own code-generation requests
	// through the software_developer agent's subprocess gateway.
	updateGW, err := codegen.New(codegen.Config{
		BinaryPath:     cfg.Subprocess.BinaryPath,
		Timeout:        cfg.Subprocess.Timeout.Duration,
		PermissionMode: cfg.Subprocess.PermissionMode,
		AllowedTools:   cfg.Subprocess.AllowedTools,
	}, breakers[tasks.SoftwareDeveloper], ws)
	if err != nil {
		return fmt.Errorf("init self-update subprocess gateway: %w", err)
	}
	updateExecutor := executor.New(cfg.VCS.RepoDir, updateQueue, vcsAdapter, updateGW, approvals, tracker)
	go updateExecutor.Run(ctx, cfg.TaskQueue.PollInterval.Duration)

	// Heartbeat writer — liveness for the `status` subcommand, carrying a
	// snapshot of the orchestrator's own load alongside PID/uptime.
	hbWriter := heartbeat.NewWriter(filepath.Join(config.DataPath(), "heartbeat.json"), func() heartbeat.Load {
		busy := 0
		for _, at := range agentTypes {
			if st, ok := orch.AgentStatus(at); ok && st.IsBusy {
				busy++
			}
		}
		return heartbeat.Load{
			TaskQueueDepth:   orch.QueueLength(),
			UpdateQueueDepth: updateQueue.Status().QueueSize,
			BusyAgents:       busy,
		}
	})
	hbWriter.Start()
	defer hbWriter.Stop()

	// Gateway server — its REST surface.
	server := gateway.NewServer(gateway.Config{
		Bus:       bus,
		Tasks:     gateway.NewTaskHandler(orch),
		Agents:    registry,
		Breakers:  breakers,
		Updates:   updateQueue,
		Approvals: approvals,
		Tracker:   tracker,
		Host:      cfg.Gateway.Host,
		Port:      cfg.Gateway.Port,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func resolveLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
