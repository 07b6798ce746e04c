package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/FreePeak/cloudbridge/internal/builder"
	"github.com/FreePeak/cloudbridge/internal/infrastructure/config"
	"github.com/FreePeak/cloudbridge/internal/infrastructure/logging"
	"github.com/FreePeak/cloudbridge/internal/infrastructure/server"
	"github.com/FreePeak/cloudbridge/internal/usecases/confirm"
	"github.com/FreePeak/cloudbridge/pkg/tools"
	"github.com/FreePeak/cloudbridge/pkg/types"
)

func main() {
	// Parse command-line flags
	var (
		host        = flag.String("host", "", "bridge listen host (overrides settings)")
		port        = flag.Int("port", -1, "bridge listen port (overrides settings)")
		configPath  = flag.String("config", "", "settings file path (defaults to ~/.cloudbridge/settings.yaml)")
		useStdio    = flag.Bool("stdio", true, "attach a local session on stdin/stdout")
		autoApprove = flag.Bool("auto-approve", false, "approve mutating commands without confirmation")
		debug       = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	newLogger := logging.NewProduction
	if *debug {
		newLogger = logging.NewDevelopment
	}
	log, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logging.SetDefault(log)

	// Create a context that cancels on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	path := *configPath
	if path == "" {
		defaultPath, err := config.DefaultPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resolving settings path: %v\n", err)
			os.Exit(1)
		}
		path = defaultPath
	}
	store, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading settings: %v\n", err)
		os.Exit(1)
	}
	if *host != "" || *port >= 0 {
		settings := store.Snapshot()
		endpointHost, endpointPort := settings.Host, settings.Port
		if *host != "" {
			endpointHost = *host
		}
		if *port >= 0 {
			endpointPort = *port
		}
		if err := store.SetEndpoint(endpointHost, endpointPort); err != nil {
			fmt.Fprintf(os.Stderr, "Error applying endpoint override: %v\n", err)
			os.Exit(1)
		}
	}

	gate := confirm.NewGate(nil)
	if *autoApprove {
		gate = confirm.NewGate(confirm.ApproveAll())
	}

	// Build the bridge manager with the built-in diagnostic tool
	b := builder.NewBridgeBuilder().
		WithName("cloudbridge").
		WithVersion("1.0.0").
		WithStore(store).
		WithConfirmationGate(gate).
		WithLogger(log).
		WithNotifier(stderrNotifier{})

	var mgr *server.SessionManager
	b.AddTool(statusTool(), types.InvokerFunc(func(ctx context.Context, command string, params map[string]interface{}) (string, error) {
		return describeStatus(mgr)
	}))
	mgr = b.Build()

	// React to settings file edits while running
	watcher := config.NewWatcher(store, log)
	if err := watcher.Start(ctx); err != nil {
		log.Warn("settings watcher unavailable", logging.Fields{"error": err.Error()})
	} else {
		go func() {
			for event := range watcher.Events() {
				mgr.ApplySettings(event.Settings)
			}
		}()
	}

	if err := mgr.StartBridge(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting bridge: %v\n", err)
		os.Exit(1)
	}
	status := mgr.CheckStatus()
	fmt.Fprintf(os.Stderr, "cloudbridge listening on %s:%d\n", status.Host, status.Port)

	if *useStdio {
		if err := runLocalSession(ctx, mgr); err != nil {
			fmt.Fprintf(os.Stderr, "Local session error: %v\n", err)
		}
	} else {
		<-ctx.Done()
	}

	mgr.StopAll()
}

// runLocalSession attaches stdin/stdout to an in-process session, queueing
// behind the shared capacity like any other client.
func runLocalSession(ctx context.Context, mgr *server.SessionManager) error {
	local, err := mgr.StartSession().Wait(ctx)
	if err != nil {
		return err
	}
	if local == nil {
		return nil
	}
	defer func() { _ = local.Close() }()

	go func() {
		_, _ = io.Copy(local.Client(), os.Stdin)
		_ = local.Close()
	}()
	go func() {
		_, _ = io.Copy(os.Stdout, local.Client())
	}()

	select {
	case <-ctx.Done():
	case <-local.Done():
	}
	return nil
}

func statusTool() types.Tool {
	tool := tools.NewTool("bridge.status",
		tools.WithDescription("Report bridge health: listener state, reachability, session load."),
		tools.WithSchema(map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		}),
	)
	return *tool
}

func describeStatus(mgr *server.SessionManager) (string, error) {
	status := mgr.CheckStatus()
	data, err := json.Marshal(status)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// stderrNotifier keeps user-visible notices off stdout, which carries the
// local session's protocol stream.
type stderrNotifier struct{}

func (stderrNotifier) Notify(message string) {
	fmt.Fprintln(os.Stderr, message)
}
