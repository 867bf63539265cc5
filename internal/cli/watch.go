// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"github.com/spf13/cobra"

	"github.com/lyoapp/taskwatch"
	"github.com/lyoapp/taskwatch/orchestrator"
)

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch TASK_ID",
		Short: "Follow an already started task to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.load(cmd)
			if err != nil {
				return err
			}
			return a.watch(cmd, cfg, logger, func(o *orchestrator.Orchestrator, onUpdate func(taskwatch.TaskEvent)) (string, error) {
				return o.MonitorTask(cmd.Context(), args[0], onUpdate)
			})
		},
	}
}
