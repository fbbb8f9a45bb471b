// Package server provides the HTTP pose server: the /save and /load pose
// routes, a classification API and a live prediction feed.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ayusman/mudra/internal/knn"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/store"
)

// Config wires the server. Routes are only mounted for the parts that are
// set: pose routes need Store, the model API needs Model, /api/live needs Hub.
type Config struct {
	StaticDir string
	Store     store.PoseStore
	Model     knn.Model
	Hub       *Hub
	Logger    *slog.Logger
}

// Server is the pose server's HTTP handler.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = logging.Logger()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		poses := api.NewPosesHandler(s.config.Store, s.config.Model, s.config.Logger)
		s.mux.HandleFunc("/save", poses.Save)
		s.mux.HandleFunc("/load", poses.Load)
	}

	if s.config.Model != nil {
		model := api.NewModelHandler(s.config.Model, s.config.Store, s.config.Logger)
		s.mux.HandleFunc("/api/classify", model.Classify)
		s.mux.HandleFunc("/api/learn", model.Learn)
		s.mux.HandleFunc("/api/samples", model.Samples)
		s.mux.HandleFunc("/api/samples/", model.Samples)
	}

	if s.config.Hub != nil {
		s.mux.Handle("/api/live", s.config.Hub)
	}

	if s.config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP allows cross-origin requests on every response and answers
// OPTIONS preflights itself.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}

type healthResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	Samples     *int   `json:"samples,omitempty"`
	LiveClients *int   `json:"liveClients,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.start).Round(time.Second).String(),
	}
	if s.config.Model != nil {
		n := s.config.Model.Len()
		resp.Samples = &n
	}
	if s.config.Hub != nil {
		n := s.config.Hub.Clients()
		resp.LiveClients = &n
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.config.Logger.WarnContext(r.Context(), "failed to write health response", slog.Any("error", err))
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.config.Logger.Info("pose server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
