package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Readiness tracks the state of the engine and its dependencies.
// Optional dependencies report "unavailable" without failing readiness.
type Readiness struct {
	mu                sync.RWMutex
	engineReady       bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}

// NewReadiness returns a tracker with both dependencies optional and
// disconnected, and the engine not yet ready.
func NewReadiness() *Readiness {
	return &Readiness{mqttOptional: true, postgresOptional: true}
}

// SetEngineReady marks the engine as loaded and running frames.
func (r *Readiness) SetEngineReady(ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engineReady = ready
}

// SetMQTTState records the MQTT connection state.
func (r *Readiness) SetMQTTState(connected, optional bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mqttConnected = connected
	r.mqttOptional = optional
}

// SetPostgresState records the Postgres connection state.
func (r *Readiness) SetPostgresState(connected, optional bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.postgresConnected = connected
	r.postgresOptional = optional
}

// CheckStatus is the result of one readiness check.
type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckStatus `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
	Timestamp   string                 `json:"ts"`
}

func dependencyCheck(connected, optional bool) CheckStatus {
	switch {
	case connected:
		return CheckStatus{Status: "ok", Optional: optional}
	case optional:
		return CheckStatus{Status: "unavailable", Optional: true}
	default:
		return CheckStatus{Status: "not_ready"}
	}
}

// Check evaluates every dependency.
func (r *Readiness) Check() ReadinessResponse {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resp := ReadinessResponse{
		Ready:     true,
		Checks:    make(map[string]CheckStatus, 3),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	var reasons []string

	if r.engineReady {
		resp.Checks["engine"] = CheckStatus{Status: "ok"}
	} else {
		resp.Checks["engine"] = CheckStatus{Status: "not_ready"}
		reasons = append(reasons, "engine not running")
	}

	resp.Checks["mqtt"] = dependencyCheck(r.mqttConnected, r.mqttOptional)
	if resp.Checks["mqtt"].Status == "not_ready" {
		reasons = append(reasons, "mqtt not connected")
	}
	resp.Checks["postgres"] = dependencyCheck(r.postgresConnected, r.postgresOptional)
	if resp.Checks["postgres"].Status == "not_ready" {
		reasons = append(reasons, "postgres not connected")
	}

	if len(reasons) > 0 {
		resp.Ready = false
		resp.NotReadyMsg = strings.Join(reasons, "; ")
	}
	return resp
}

// Connected reports the dependency connection flags, for metrics.
func (r *Readiness) Connected() (engine, mqtt, postgres bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engineReady, r.mqttConnected, r.postgresConnected
}

func (r *Readiness) handler(w http.ResponseWriter, req *http.Request) {
	resp := r.Check()
	w.Header().Set("Content-Type", "application/json")
	if !resp.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
