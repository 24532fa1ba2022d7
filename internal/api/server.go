package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/AaronLay10/animgraph/internal/animgraph"
	"github.com/AaronLay10/animgraph/internal/events"
	"github.com/AaronLay10/animgraph/internal/manager"
	"github.com/AaronLay10/animgraph/internal/storage/postgres"
	"github.com/AaronLay10/animgraph/internal/version"
)

// HistoryStore queries the persisted event journal.
type HistoryStore interface {
	Query(ctx context.Context, limit int, instanceID string) ([]postgres.EventRow, error)
}

// Options configures a Server.
type Options struct {
	Port      int
	Manager   *manager.Manager
	Auth      *Auth
	Readiness *Readiness
	// History is nil when the Postgres journal is disabled.
	History HistoryStore
	TLS     *TLSConfig
	Logger  *slog.Logger
}

// Server exposes the engine over HTTP.
type Server struct {
	port      int
	manager   *manager.Manager
	auth      *Auth
	readiness *Readiness
	history   HistoryStore
	tls       *TLSConfig
	logger    *slog.Logger
	start     time.Time
}

// New creates a server. It does not listen until ListenAndServe.
func New(o Options) *Server {
	if o.Auth == nil {
		o.Auth = &Auth{}
	}
	if o.Readiness == nil {
		o.Readiness = NewReadiness()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Server{
		port:      o.Port,
		manager:   o.Manager,
		auth:      o.Auth,
		readiness: o.Readiness,
		history:   o.History,
		tls:       o.TLS,
		logger:    o.Logger.With("component", "api"),
		start:     time.Now(),
	}
}

// Readiness returns the readiness tracker the server reports.
func (s *Server) Readiness() *Readiness { return s.readiness }

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ready", s.readiness.handler)
	mux.HandleFunc("GET /metrics", s.metricsHandler)
	mux.HandleFunc("GET /events", s.auth.RequireAnyRole(s.eventsHandler))
	mux.HandleFunc("GET /events/history", s.auth.RequireAnyRole(s.historyHandler))
	mux.HandleFunc("GET /ws/events", s.auth.RequireAnyRole(s.wsEventsHandler))
	mux.HandleFunc("GET /graphs", s.auth.RequireAnyRole(s.graphsHandler))
	mux.HandleFunc("GET /instances", s.auth.RequireAnyRole(s.instancesHandler))
	mux.HandleFunc("GET /instances/{id}", s.auth.RequireAnyRole(s.instanceHandler))
	mux.HandleFunc("POST /instances/{id}/params", s.auth.RequireAnyRole(s.paramsHandler))
	mux.HandleFunc("POST /instances/{id}/state", s.auth.RequireAnyRole(s.stateHandler))
	mux.HandleFunc("POST /instances/{id}/rewind", s.auth.RequireAdmin(s.rewindHandler))
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	tlsCfg, err := s.tls.Load()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr, "tls", tlsCfg != nil, "auth", s.auth.Enabled())
		if tlsCfg != nil {
			errCh <- srv.ListenAndServeTLS("", "")
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		events.CloseAllSubscribers()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "animgraph",
		Version:   version.Version,
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// OperatorResponse is returned by the mutating endpoints.
type OperatorResponse struct {
	OK     bool              `json:"ok"`
	Error  string            `json:"error,omitempty"`
	Queued []string          `json:"queued,omitempty"`
	Failed map[string]string `json:"failed,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, OperatorResponse{OK: false, Error: msg})
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	instance := r.URL.Query().Get("instance")

	all := events.Snapshot()
	out := make([]events.Event, 0, len(all))
	for _, e := range all {
		if instance != "" && e.Fields["instance"] != instance {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "event journal not configured")
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.history.Query(r.Context(), limit, r.URL.Query().Get("instance"))
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// ParameterInfo describes a graph parameter.
type ParameterInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Default string `json:"default"`
}

// GraphInfo describes a registered graph.
type GraphInfo struct {
	Name       string          `json:"name"`
	Nodes      int             `json:"nodes"`
	Instances  int             `json:"instances"`
	Parameters []ParameterInfo `json:"parameters"`
	Problems   []string        `json:"problems,omitempty"`
}

func (s *Server) graphsHandler(w http.ResponseWriter, r *http.Request) {
	assets := s.manager.Graphs()
	out := make([]GraphInfo, 0, len(assets))
	for _, a := range assets {
		info := GraphInfo{
			Name:      a.Name,
			Nodes:     len(a.Graph.Nodes()),
			Instances: a.Graph.NumInstances(),
		}
		for _, p := range a.Graph.Parameters() {
			info.Parameters = append(info.Parameters, ParameterInfo{Name: p.Name, Type: p.Type.String(), Default: p.Default.String()})
		}
		if rep := a.Graph.Report(); rep != nil {
			for _, p := range rep.Problems {
				info.Problems = append(info.Problems, p.Error())
			}
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) instancesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.States())
}

func (s *Server) instanceHandler(w http.ResponseWriter, r *http.Request) {
	st, err := s.manager.State(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) paramsHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	inst, ok := s.manager.FindInstance(id)
	if !ok {
		writeError(w, http.StatusNotFound, "instance not found")
		return
	}

	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req) == 0 {
		writeError(w, http.StatusBadRequest, "no parameters")
		return
	}

	names := make([]string, 0, len(req))
	for name := range req {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := OperatorResponse{OK: true}
	for _, name := range names {
		v, err := animgraph.ValueFromJSON(req[name])
		if err == nil {
			err = inst.QueueParameterUpdate(name, v)
		}
		if err != nil {
			if resp.Failed == nil {
				resp.Failed = make(map[string]string)
			}
			resp.Failed[name] = err.Error()
			events.Emit("warning", "param.rejected", err.Error(), map[string]interface{}{
				"instance": id,
				"param":    name,
				"source":   "api",
			})
			continue
		}
		resp.Queued = append(resp.Queued, name)
		events.Emit("info", "operator.param", "", map[string]interface{}{
			"instance": id,
			"param":    name,
			"value":    v.String(),
		})
	}

	status := http.StatusOK
	if len(resp.Queued) == 0 {
		resp.OK = false
		resp.Error = "no parameter accepted"
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

// StateRequest asks for a state change of the root state machine.
type StateRequest struct {
	State string `json:"state"`
	// Mode is "switch" (immediate) or "transition" (blend using the
	// graph's transition when one exists). Defaults to transition.
	Mode string `json:"mode"`
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req StateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.State == "" {
		writeError(w, http.StatusBadRequest, "state required")
		return
	}
	if req.Mode == "" {
		req.Mode = "transition"
	}
	if req.Mode != "switch" && req.Mode != "transition" {
		writeError(w, http.StatusBadRequest, "mode must be switch or transition")
		return
	}

	err := s.manager.Do(id, func(inst *animgraph.Instance) error {
		if req.Mode == "switch" {
			return inst.SwitchToState(req.State)
		}
		return inst.TransitionToState(req.State)
	})
	if err != nil {
		s.writeDoError(w, err)
		return
	}

	events.Emit("info", "operator."+req.Mode, "", map[string]interface{}{
		"instance": id,
		"state":    req.State,
	})
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true})
}

func (s *Server) rewindHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.manager.Do(id, func(inst *animgraph.Instance) error {
		inst.Rewind()
		return nil
	})
	if err != nil {
		s.writeDoError(w, err)
		return
	}
	events.Emit("info", "operator.rewind", "", map[string]interface{}{"instance": id})
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true})
}

func (s *Server) writeDoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, manager.ErrInstanceNotFound), errors.Is(err, animgraph.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("operator request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
