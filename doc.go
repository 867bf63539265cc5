// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package taskwatch tracks long-running server-side course generation tasks to
// completion.
//
// The root package holds the shared vocabulary: the [TaskEvent] progress record,
// the [TaskHandle] returned when a task is started, and the [Error] taxonomy
// every other package reports failures with.
//
// # Basic Usage
//
//	api, err := client.New("https://api.example.com/v1", client.WithBearerToken(token))
//	if err != nil {
//		log.Fatal(err)
//	}
//	ws, err := transport.NewWebSocket("https://api.example.com/v1")
//	if err != nil {
//		log.Fatal(err)
//	}
//	orch := orchestrator.New(api, ws)
//
//	resultID, err := orch.GenerateAndWatch(ctx, "Rust ownership", []string{"systems"},
//		func(ev taskwatch.TaskEvent) {
//			fmt.Println(ev)
//		})
//
// # Error Handling
//
// Failures surface as [*Error] values carrying a [Kind]:
//
//	if errors.Is(err, taskwatch.ErrTimedOut) {
//		// offer "try again"
//	}
package taskwatch
