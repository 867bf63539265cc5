// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Command taskwatch starts course generation tasks and follows their
// progress.
package main

import (
	"os"

	"github.com/lyoapp/taskwatch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
