// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli implements the taskwatch command line tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lyoapp/taskwatch"
	"github.com/lyoapp/taskwatch/client"
	"github.com/lyoapp/taskwatch/config"
	"github.com/lyoapp/taskwatch/internal/logging"
	"github.com/lyoapp/taskwatch/internal/telemetry"
	"github.com/lyoapp/taskwatch/monitor"
	"github.com/lyoapp/taskwatch/orchestrator"
	"github.com/lyoapp/taskwatch/poller"
	"github.com/lyoapp/taskwatch/transport"
)

// app holds the state shared by every command of one root.
type app struct {
	v       *viper.Viper
	cfgFile string
	output  string
}

// NewRootCommand returns the taskwatch root command. Each call gets its own
// configuration state.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "taskwatch",
		Short: "Start and follow long running course generation tasks",
		Long: `Taskwatch starts course generation tasks and follows their progress
over a WebSocket channel, falling back to HTTP polling when the channel
fails. Every task is bounded by one overall deadline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./taskwatch.yaml or $HOME/.config/taskwatch/taskwatch.yaml)")
	flags.StringVarP(&a.output, "output", "o", FormatText, "output format: text, json or yaml")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))

	root.AddCommand(
		newGenerateCommand(a),
		newWatchCommand(a),
		newDemoCommand(a),
	)

	return root
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand()
	err := root.ExecuteContext(ctx)
	var reported *reportedError
	if err != nil && !errors.As(err, &reported) {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	return err
}

// reportedError marks an error the renderer already printed.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

// load reads the configuration and builds the logger, which writes to the
// command's error stream.
func (a *app) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// build wires an orchestrator from cfg.
func build(cfg *config.Config, logger *slog.Logger, opts ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	api, err := client.New(cfg.API.BaseURL,
		client.WithBearerToken(cfg.API.Token),
		client.WithTimeout(cfg.API.Timeout),
		client.WithUserAgent(cfg.API.UserAgent),
		client.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	ws, err := transport.NewWebSocket(cfg.ChannelBaseURL(),
		transport.WithBearerToken(cfg.API.Token),
		transport.WithHandshakeTimeout(cfg.Channel.HandshakeTimeout),
		transport.WithHeader("User-Agent", cfg.API.UserAgent),
		transport.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create channel transport: %w", err)
	}

	base := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithDeadline(cfg.Monitor.Deadline),
		orchestrator.WithMetrics(telemetry.New(nil)),
		orchestrator.WithMonitorOptions(
			monitor.WithLivenessTimeout(cfg.Channel.LivenessTimeout),
			monitor.WithHeartbeatInterval(cfg.Channel.HeartbeatInterval),
		),
		orchestrator.WithPollerOptions(
			poller.WithInitialDelay(cfg.Polling.InitialDelay),
			poller.WithMaxDelay(cfg.Polling.MaxDelay),
		),
	}
	return orchestrator.New(api, ws, append(base, opts...)...), nil
}

// watch runs fn, rendering every update and the outcome. The session hook
// lets the renderer show which source is active.
func (a *app) watch(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger,
	fn func(o *orchestrator.Orchestrator, onUpdate func(taskwatch.TaskEvent)) (string, error),
) error {
	r, err := newRenderer(a.output, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer r.Close()

	var session *orchestrator.Session
	o, err := build(cfg, logger, orchestrator.WithSessionHook(func(s *orchestrator.Session) {
		session = s
	}))
	if err != nil {
		return err
	}

	var renderErr error
	onUpdate := func(ev taskwatch.TaskEvent) {
		var taskID, mode string
		if session != nil {
			taskID = session.TaskID()
			if session.FellBack() {
				mode = session.Mode().String()
			}
		}
		if err := r.Event(taskID, mode, ev); err != nil && renderErr == nil {
			renderErr = err
		}
	}

	result, err := fn(o, onUpdate)
	var taskID string
	if session != nil {
		taskID = session.TaskID()
	}
	if err != nil {
		if rerr := r.Failure(taskID, err); rerr != nil {
			return rerr
		}
		return &reportedError{err: err}
	}
	if renderErr != nil {
		return renderErr
	}
	return r.Result(taskID, result)
}
