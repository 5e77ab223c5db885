package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bryanchriswhite/TaskSwitcher/internal/config"
	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
	"github.com/bryanchriswhite/TaskSwitcher/internal/relay"
	"github.com/bryanchriswhite/TaskSwitcher/internal/store"
	"github.com/bryanchriswhite/TaskSwitcher/internal/switcher"
	"github.com/bryanchriswhite/TaskSwitcher/internal/window"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is reported by /api/health
const Version = "0.1.0"

// WindowLister enumerates open windows
type WindowLister interface {
	ListWindows(ctx context.Context) []window.Descriptor
}

// WindowStream publishes window list changes
type WindowStream interface {
	Latest() []window.Descriptor
	Subscribe() chan []window.Descriptor
	Unsubscribe(ch chan []window.Descriptor)
}

// TabSource is the relay view used by the API
type TabSource interface {
	RequestTabs(ctx context.Context) []relay.Tab
	Status() relay.Status
}

// Activator raises windows and tabs
type Activator interface {
	Activate(ctx context.Context, app, titlePattern string) bool
	ActivateTab(tabID, windowID int) bool
}

// TaskStore persists tasks and their windows
type TaskStore interface {
	ListTasks(ctx context.Context) ([]store.Task, error)
	GetTask(ctx context.Context, id string) (store.Task, error)
	CreateTask(ctx context.Context, name, parentID string) (store.Task, error)
	UpdateTask(ctx context.Context, id string, u store.TaskUpdate) (store.Task, error)
	DeleteTask(ctx context.Context, id string) error
	GetTaskWindows(ctx context.Context, taskID string) ([]store.TaskWindow, error)
	AddTaskWindow(ctx context.Context, w store.TaskWindow) (store.TaskWindow, error)
	RemoveTaskWindow(ctx context.Context, id string) error
}

// TaskSwitcher restores a task's windows
type TaskSwitcher interface {
	SwitchTo(ctx context.Context, taskID string) (switcher.Report, error)
}

// Deps are the components served by the API. Windows, Tasks and Activator
// are required; the rest may be nil.
type Deps struct {
	Windows   WindowLister
	Stream    WindowStream
	Tabs      TabSource
	Activator Activator
	Tasks     TaskStore
	Switcher  TaskSwitcher
	Config    *config.Manager
	Gatherer  prometheus.Gatherer
}

// Server represents the HTTP API server
type Server struct {
	router     *mux.Router
	deps       Deps
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		upgrader: websocket.Upgrader{
			CheckOrigin: allowLocalOrigin,
		},
	}

	s.setupRoutes()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Windows and tabs
	api.HandleFunc("/windows", s.handleGetWindows).Methods("GET")
	api.HandleFunc("/windows/stream", s.handleWindowStream)
	api.HandleFunc("/tabs", s.handleGetTabs).Methods("GET")
	api.HandleFunc("/relay/status", s.handleRelayStatus).Methods("GET")

	// Activation
	api.HandleFunc("/activate", s.handleActivate).Methods("POST")
	api.HandleFunc("/tabs/activate", s.handleActivateTab).Methods("POST")

	// Tasks
	api.HandleFunc("/tasks", s.handleListTasks).Methods("GET")
	api.HandleFunc("/tasks", s.handleCreateTask).Methods("POST")
	api.HandleFunc("/tasks/{id}", s.handleGetTask).Methods("GET")
	api.HandleFunc("/tasks/{id}", s.handleUpdateTask).Methods("PATCH")
	api.HandleFunc("/tasks/{id}", s.handleDeleteTask).Methods("DELETE")
	api.HandleFunc("/tasks/{id}/windows", s.handleGetTaskWindows).Methods("GET")
	api.HandleFunc("/tasks/{id}/windows", s.handleAddTaskWindow).Methods("POST")
	api.HandleFunc("/tasks/{id}/switch", s.handleSwitchTask).Methods("POST")
	api.HandleFunc("/task-windows/{id}", s.handleRemoveTaskWindow).Methods("DELETE")

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.deps.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router.PathPrefix("/").HandlerFunc(s.handleIndex)
}

// Handler returns the routed handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on 127.0.0.1:port until Shutdown is called
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	logger.WithComponent("api").Info().
		Str("url", "http://"+ln.Addr().String()).
		Msg("Starting API server")

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server. A later Start returns immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allowLocalOrigin accepts same-machine pages and origin-less clients
func allowLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "file://"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalid), errors.Is(err, config.ErrInvalid):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logger.WithComponent("api").Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request body: %v: %w", err, store.ErrInvalid)
	}
	return nil
}

// HTTP Handlers

func (s *Server) handleGetWindows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Windows.ListWindows(r.Context()))
}

func (s *Server) handleWindowStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	if s.deps.Stream == nil {
		http.Error(w, "window stream disabled", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	updates := s.deps.Stream.Subscribe()
	defer s.deps.Stream.Unsubscribe(updates)

	// Drain reads so a client close is noticed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(s.deps.Stream.Latest()); err != nil {
		log.Debug().Err(err).Msg("WebSocket write error")
		return
	}

	for {
		select {
		case windows, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(windows); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleGetTabs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tabs == nil {
		writeJSON(w, http.StatusOK, []relay.Tab{})
		return
	}
	tabs := s.deps.Tabs.RequestTabs(r.Context())
	if tabs == nil {
		tabs = []relay.Tab{}
	}
	writeJSON(w, http.StatusOK, tabs)
}

func (s *Server) handleRelayStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tabs == nil {
		writeJSON(w, http.StatusOK, relay.Status{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Tabs.Status())
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		App   string `json:"app_name"`
		Title string `json:"window_title"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.App == "" {
		writeError(w, fmt.Errorf("app_name is required: %w", store.ErrInvalid))
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{
		"activated": s.deps.Activator.Activate(r.Context(), req.App, req.Title),
	})
}

func (s *Server) handleActivateTab(w http.ResponseWriter, r *http.Request) {
	var req relay.ActivateTabPayload
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{
		"sent": s.deps.Activator.ActivateTab(req.TabID, req.WindowID),
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.Config == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Config.Get())
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.Config == nil {
		http.NotFound(w, r)
		return
	}

	cfg := s.deps.Config.Get()
	if err := decodeBody(r, cfg); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Config.Update(cfg); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	relayConnected := false
	if s.deps.Tabs != nil {
		relayConnected = s.deps.Tabs.Status().Connected
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"version":         Version,
		"relay_connected": relayConnected,
	})
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>TaskSwitcher</title>
</head>
<body>
    <h1>TaskSwitcher</h1>
    <ul>
        <li><a href="/api/health">/api/health</a></li>
        <li><a href="/api/windows">/api/windows</a></li>
        <li><a href="/api/tabs">/api/tabs</a></li>
        <li><a href="/api/tasks">/api/tasks</a></li>
        <li><a href="/api/relay/status">/api/relay/status</a></li>
    </ul>
</body>
</html>`

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(indexHTML))
}
