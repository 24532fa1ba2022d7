package api

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/AaronLay10/animgraph/internal/events"
	"github.com/AaronLay10/animgraph/internal/version"
)

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	engineReady, mqttConnected, postgresConnected := s.readiness.Connected()
	frame := s.manager.LastFrame()
	poses, refDatas := s.manager.PoolUsage()
	states := s.manager.States()

	transitioning := 0
	for _, st := range states {
		if st.Transitioning {
			transitioning++
		}
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		if labels != "" {
			fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
		} else {
			fmt.Fprintf(w, "%s %v\n", name, value)
		}
	}

	labels := fmt.Sprintf(`instance="%s",version="%s"`, hostname, version.Version)

	writeMetric("animgraph_uptime_seconds", "gauge",
		"Number of seconds since the engine started", time.Since(s.start).Seconds(), labels)
	writeMetric("animgraph_engine_ready", "gauge",
		"Whether the frame loop is running (1) or not (0)", boolGauge(engineReady), labels)
	writeMetric("animgraph_graphs", "gauge",
		"Number of registered graphs", len(s.manager.Graphs()), labels)
	writeMetric("animgraph_instances", "gauge",
		"Number of live graph instances", len(states), labels)
	writeMetric("animgraph_instances_transitioning", "gauge",
		"Number of instances whose root state machine is blending", transitioning, labels)
	writeMetric("animgraph_frames_total", "counter",
		"Total number of evaluated frames", frame.Frame, labels)
	writeMetric("animgraph_frame_duration_seconds", "gauge",
		"Wall time of the last frame", frame.Duration.Seconds(), labels)
	writeMetric("animgraph_worker_threads", "gauge",
		"Number of evaluation threads", s.manager.Threads(), labels)
	writeMetric("animgraph_pose_pool_in_use", "gauge",
		"Poses checked out of the pools after the last frame", poses, labels)
	writeMetric("animgraph_ref_data_in_use", "gauge",
		"Reference data payloads checked out of the pools after the last frame", refDatas, labels)
	writeMetric("animgraph_events_total", "counter",
		"Total number of events emitted since startup", events.TotalCount(), labels)
	writeMetric("animgraph_mqtt_connected", "gauge",
		"Whether MQTT broker is connected (1) or not (0)", boolGauge(mqttConnected), labels)
	writeMetric("animgraph_postgres_connected", "gauge",
		"Whether PostgreSQL is connected (1) or not (0)", boolGauge(postgresConnected), labels)
	writeMetric("animgraph_ws_clients", "gauge",
		"Number of active WebSocket client connections", events.SubscriberCount(), labels)
}
