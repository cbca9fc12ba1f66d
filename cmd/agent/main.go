// Command agent runs the headless endpoint agent: it maintains a session
// with the console over a WebSocket, streams screen frames, and applies
// remote input. Re-invoked with --capture-helper it instead runs as the
// in-session capture/input helper spawned by the session-0 bridge.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avaropoint/agentcore/internal/bridge"
	"github.com/avaropoint/agentcore/internal/capture"
	"github.com/avaropoint/agentcore/internal/config"
	"github.com/avaropoint/agentcore/internal/helper"
	"github.com/avaropoint/agentcore/internal/hostmetrics"
	"github.com/avaropoint/agentcore/internal/inputsim"
	"github.com/avaropoint/agentcore/internal/protocol"
	"github.com/avaropoint/agentcore/internal/supervisor"
	"github.com/avaropoint/agentcore/internal/transport"
	"github.com/avaropoint/agentcore/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var captureHelper bool

	rootCmd := &cobra.Command{
		Use:           "agent",
		Short:         "Remote-support endpoint agent",
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if captureHelper {
				if len(args) != 2 {
					return fmt.Errorf("--capture-helper requires <capturePipe> <inputPipe>")
				}
				return helper.Run(args[0], args[1])
			}
			return runAgent()
		},
	}

	// The bridge re-invokes this executable with this flag; it is not
	// part of the operator-facing surface.
	rootCmd.Flags().BoolVar(&captureHelper, "capture-helper", false, "run as in-session capture helper")
	rootCmd.Flags().MarkHidden("capture-helper") //nolint:errcheck

	return rootCmd
}

func runAgent() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	log.Printf("Agent v%s (built %s)", version.Version, version.BuildTime)
	log.Printf("OS: %s, Arch: %s", runtime.GOOS, runtime.GOARCH)
	log.Printf("Console: %s", cfg.ConsoleURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := &supervisor.Supervisor{
		Config: cfg,
		Identity: protocol.AuthPayload{
			AgentID:  cfg.AgentID,
			Token:    cfg.AgentToken,
			Hostname: hostmetrics.Hostname(),
			OSInfo:   hostmetrics.OSInfo(),
		},
		Dialer:  transport.WebSocketDialer{},
		Sampler: hostmetrics.NewSampler(),
	}

	if hasInteractiveDesktop() {
		log.Println("Capture mode: direct")
		sup.NewProvider = func() capture.Provider { return capture.NewDirectBackend(nil) }
		sup.Input = &supervisor.DirectSink{Sim: inputsim.New(inputsim.NewHostPrimitives())}
	} else {
		log.Println("Capture mode: session-0 bridge")
		br := bridge.New()
		br.ConnectTimeout = cfg.HelperConnectTimeout
		defer br.Close() //nolint:errcheck
		sup.NewProvider = br.NewStreamProvider
		sup.Input = &supervisor.BridgeSink{Bridge: br}
	}

	return sup.Run(ctx)
}

// setupLogging points the standard logger at the configured file (in
// addition to stderr) when LogPath is set.
func setupLogging(cfg config.Config) {
	log.SetFlags(log.LstdFlags)
	if strings.EqualFold(cfg.LogLevel, "debug") {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}
	if cfg.LogPath == "" {
		return
	}
	f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("Cannot open log file %s: %v", cfg.LogPath, err)
		return
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
}
