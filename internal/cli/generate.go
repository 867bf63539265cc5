// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"github.com/spf13/cobra"

	"github.com/lyoapp/taskwatch"
	"github.com/lyoapp/taskwatch/orchestrator"
)

func newGenerateCommand(a *app) *cobra.Command {
	var (
		topic     string
		interests []string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Start a course generation task and follow it to completion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.load(cmd)
			if err != nil {
				return err
			}
			return a.watch(cmd, cfg, logger, func(o *orchestrator.Orchestrator, onUpdate func(taskwatch.TaskEvent)) (string, error) {
				return o.GenerateAndWatch(cmd.Context(), topic, interests, onUpdate)
			})
		},
	}

	cmd.Flags().StringVarP(&topic, "topic", "t", "", "course topic")
	cmd.Flags().StringSliceVarP(&interests, "interest", "i", nil, "learner interest (repeatable)")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}
