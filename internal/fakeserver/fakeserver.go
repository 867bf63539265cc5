// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package fakeserver serves a scripted course generation API over HTTP and
// WebSocket. It backs end-to-end tests and the demo command.
package fakeserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lyoapp/taskwatch"
)

// Step is one scripted progress update.
type Step struct {
	Progress int
	Message  string
}

// DemoSteps returns the generation script for topic. The last step
// completes the task.
func DemoSteps(topic string) []Step {
	return []Step{
		{10, fmt.Sprintf("Analyzing topic: %s...", topic)},
		{25, "Gathering relevant content..."},
		{40, "Structuring course outline..."},
		{55, "Creating learning objectives..."},
		{70, "Generating chapter content..."},
		{85, "Adding exercises and assessments..."},
		{95, "Finalizing course structure..."},
		{100, "Course generation complete!"},
	}
}

// Options configures a Server.
type Options struct {
	// StepInterval is the time between scripted steps.
	StepInterval time.Duration
	// Token, when set, is the bearer token every request must carry.
	Token string
	// DisableChannel rejects every channel handshake.
	DisableChannel bool
	// SilentChannel accepts channels but never sends a frame.
	SilentChannel bool
	// FailPolls makes the first FailPolls status requests of each task
	// answer FailStatus.
	FailPolls  int
	FailStatus int
	// FailMessage, when set, makes tasks end in the error state with it
	// instead of completing.
	FailMessage string
	Logger      *slog.Logger
}

// Server is a scripted task server.
type Server struct {
	opts     Options
	router   chi.Router
	upgrader websocket.Upgrader

	mu          sync.Mutex
	tasks       map[string]*task
	idempotency map[string]string
}

type task struct {
	id       string
	resultID string
	steps    []Step
	created  time.Time
	polls    int
}

// New returns a Server.
func New(opts Options) *Server {
	if opts.StepInterval <= 0 {
		opts.StepInterval = time.Second
	}
	if opts.FailStatus == 0 {
		opts.FailStatus = http.StatusServiceUnavailable
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		tasks:       make(map[string]*task),
		idempotency: make(map[string]string),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.authenticate)
	r.Post("/tasks:generate", s.handleGenerate)
	r.Get("/tasks/{taskID}", s.handleStatus)
	r.Get("/ws/tasks/{taskID}", s.handleChannel)
	s.router = r

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Tasks returns how many distinct tasks were created.
func (s *Server) Tasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.opts.Token {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "Idempotency-Key header is required")
		return
	}

	var req taskwatch.GenerateRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "malformed request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
		return
	}

	s.mu.Lock()
	t, ok := s.tasks[s.idempotency[key]]
	if !ok {
		t = &task{
			id:       uuid.NewString(),
			resultID: "course-" + uuid.NewString(),
			steps:    DemoSteps(req.Topic),
			created:  time.Now(),
		}
		s.tasks[t.id] = t
		s.idempotency[key] = t.id
	}
	s.mu.Unlock()

	s.opts.Logger.InfoContext(r.Context(), "task created", "task_id", t.id, "topic", req.Topic)
	writeJSON(w, http.StatusAccepted, taskwatch.TaskHandle{
		TaskID:              t.id,
		ProvisionalResultID: t.resultID,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	t, ok := s.tasks[chi.URLParam(r, "taskID")]
	var failing bool
	if ok {
		t.polls++
		failing = t.polls <= s.opts.FailPolls
	}
	s.mu.Unlock()

	switch {
	case !ok:
		writeProblem(w, http.StatusNotFound, "Not Found", "no such task")
		return
	case failing:
		if s.opts.FailStatus == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "1")
		}
		writeProblem(w, s.opts.FailStatus, http.StatusText(s.opts.FailStatus), "scripted failure")
		return
	}

	step := min(int(time.Since(t.created)/s.opts.StepInterval), len(t.steps)-1)
	writeJSON(w, http.StatusOK, s.event(t, step))
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	if s.opts.DisableChannel {
		http.Error(w, "channel unavailable", http.StatusServiceUnavailable)
		return
	}

	s.mu.Lock()
	t, ok := s.tasks[chi.URLParam(r, "taskID")]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.Logger.Warn("channel upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// the read loop answers pings and notices the client leaving
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if s.opts.SilentChannel {
		<-gone
		return
	}

	for i := range t.steps {
		select {
		case <-time.After(s.opts.StepInterval):
		case <-gone:
			return
		}
		frame, err := json.Marshal(s.event(t, i))
		if err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "task finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	<-gone
}

// event returns the event for step i of t.
func (s *Server) event(t *task, i int) taskwatch.TaskEvent {
	st := t.steps[i]
	ev := taskwatch.TaskEvent{
		State:       taskwatch.StateRunning,
		ProgressPct: taskwatch.Percent(st.Progress),
		Message:     st.Message,
	}
	if i < len(t.steps)-1 {
		return ev
	}
	if s.opts.FailMessage != "" {
		ev.State = taskwatch.StateError
		ev.Message = "Generation failed"
		ev.Error = s.opts.FailMessage
		return ev
	}
	ev.State = taskwatch.StateDone
	ev.ResultID = t.resultID
	return ev
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.MarshalWrite(w, v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", taskwatch.ProblemContentType)
	w.WriteHeader(status)
	_ = json.MarshalWrite(w, taskwatch.ProblemDetails{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
