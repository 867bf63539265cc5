// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/lyoapp/taskwatch"
	"github.com/lyoapp/taskwatch/internal/fakeserver"
	"github.com/lyoapp/taskwatch/internal/logging"
	"github.com/lyoapp/taskwatch/orchestrator"
)

func newDemoCommand(a *app) *cobra.Command {
	var (
		topic     string
		step      time.Duration
		noChannel bool
		silent    bool
		failWith  string
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a generation against a local scripted server",
		Long: `Demo starts a scripted task server on a loopback port and follows one
generation against it. Use --no-channel or --silent-channel to watch the
polling fallback take over.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}

			fs := fakeserver.New(fakeserver.Options{
				StepInterval:   step,
				DisableChannel: noChannel,
				SilentChannel:  silent,
				FailMessage:    failWith,
				Logger:         logging.Discard(),
			})
			srv := &http.Server{Handler: fs, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					cmd.PrintErrln("demo server:", err)
				}
			}()
			defer srv.Close()

			a.v.Set("api.base_url", "http://"+ln.Addr().String())
			a.v.Set("channel.url", "")
			a.v.Set("api.token", "")

			cfg, logger, err := a.load(cmd)
			if err != nil {
				return err
			}
			return a.watch(cmd, cfg, logger, func(o *orchestrator.Orchestrator, onUpdate func(taskwatch.TaskEvent)) (string, error) {
				return o.GenerateAndWatch(cmd.Context(), topic, nil, onUpdate)
			})
		},
	}

	cmd.Flags().StringVarP(&topic, "topic", "t", "Swift Concurrency", "course topic")
	cmd.Flags().DurationVar(&step, "step", 500*time.Millisecond, "time between scripted progress steps")
	cmd.Flags().BoolVar(&noChannel, "no-channel", false, "reject channel handshakes")
	cmd.Flags().BoolVar(&silent, "silent-channel", false, "accept channels but never send a frame")
	cmd.Flags().StringVar(&failWith, "fail", "", "end the task in the error state with this message")

	return cmd
}
