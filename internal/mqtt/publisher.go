package mqtt

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AaronLay10/animgraph/internal/manager"
)

// Publisher sends a message to a topic.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

// StateSource lists instance snapshots.
type StateSource interface {
	States() []manager.InstanceState
}

// StatePublisher publishes the state of every instance to
// <prefix>/instances/<id>/state whenever it changes. Messages are retained
// so late subscribers see the current state.
type StatePublisher struct {
	mu     sync.Mutex
	prefix string
	pub    Publisher
	source StateSource
	logger *slog.Logger
	last   map[string]string // instance id -> state key
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewStatePublisher creates a publisher. Call Start to publish periodically
// or PublishChanges to publish once.
func NewStatePublisher(prefix string, pub Publisher, source StateSource, logger *slog.Logger) *StatePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatePublisher{
		prefix: strings.TrimSuffix(prefix, "/"),
		pub:    pub,
		source: source,
		logger: logger.With("component", "mqtt.state"),
		last:   make(map[string]string),
		stopCh: make(chan struct{}),
	}
}

// StateTopic returns the state topic of an instance.
func (s *StatePublisher) StateTopic(id string) string {
	return s.prefix + "/instances/" + id + "/state"
}

// PublishChanges publishes instances whose state changed since the last
// call. Removed instances get an empty retained message which clears the
// topic on the broker. It returns the number of messages sent.
func (s *StatePublisher) PublishChanges() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent := 0
	seen := make(map[string]bool)
	for _, st := range s.source.States() {
		seen[st.ID] = true
		key := st.Key()
		if s.last[st.ID] == key {
			continue
		}
		payload, err := json.Marshal(map[string]interface{}{
			"instance":      st.ID,
			"graph":         st.Graph,
			"state":         st.State,
			"transitioning": st.Transitioning,
			"ts":            time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			s.logger.Error("failed to encode state", "instance", st.ID, "error", err)
			continue
		}
		if err := s.pub.Publish(s.StateTopic(st.ID), true, payload); err != nil {
			if !errors.Is(err, ErrNotConnected) {
				s.logger.Warn("failed to publish state", "instance", st.ID, "error", err)
			}
			continue
		}
		s.last[st.ID] = key
		sent++
	}

	for id := range s.last {
		if seen[id] {
			continue
		}
		if err := s.pub.Publish(s.StateTopic(id), true, nil); err != nil {
			s.logger.Warn("failed to clear state", "instance", id, "error", err)
			continue
		}
		delete(s.last, id)
		sent++
	}
	return sent
}

// Start begins publishing at the given interval.
func (s *StatePublisher) Start(interval time.Duration) {
	s.wg.Add(1)
	go s.loop(interval)
}

// Stop stops the publishing loop.
func (s *StatePublisher) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *StatePublisher) loop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.PublishChanges()
		}
	}
}
