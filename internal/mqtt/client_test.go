package mqtt

import (
	"errors"
	"testing"
)

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Options{})
	if c.URL() != DefaultURL {
		t.Errorf("expected %s, got %s", DefaultURL, c.URL())
	}
	if c.IsConnected() {
		t.Error("expected new client to be disconnected")
	}
}

func TestPublishWhileDisconnected(t *testing.T) {
	c := NewClient(Options{URL: "tcp://127.0.0.1:1"})
	err := c.Publish("animgraph/instances/hero/state", true, []byte("{}"))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestTimeoutErrorMessage(t *testing.T) {
	err := &TimeoutError{Op: "subscribe", Topic: "animgraph/instances/+/params"}
	if got := err.Error(); got != "mqtt subscribe timeout: animgraph/instances/+/params" {
		t.Errorf("unexpected message %q", got)
	}
}
