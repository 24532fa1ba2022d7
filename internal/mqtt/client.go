package mqtt

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/animgraph/internal/events"
)

// Options configures a Client.
type Options struct {
	URL      string
	ClientID string
	Logger   *slog.Logger
}

// Client wraps the Paho MQTT client for the engine.
type Client struct {
	client paho.Client
	url    string
	logger *slog.Logger
	mu     sync.Mutex
}

// ErrNotConnected is returned by Publish while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

// DefaultURL is used when Options.URL is empty.
const DefaultURL = "tcp://localhost:1883"

// NewClient creates a new MQTT client but does not connect.
func NewClient(o Options) *Client {
	if o.URL == "" {
		o.URL = DefaultURL
	}
	if o.ClientID == "" {
		o.ClientID = "animgraph-engine"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	c := &Client{url: o.URL, logger: o.Logger.With("component", "mqtt")}

	opts := paho.NewClientOptions().
		AddBroker(o.URL).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(func(paho.Client) {
			events.Emit("info", "mqtt.connected", "", map[string]interface{}{"broker": o.URL})
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.logger.Warn("connection lost", "broker", o.URL, "error", err)
			events.Emit("warning", "mqtt.disconnected", err.Error(), map[string]interface{}{"broker": o.URL})
		})

	c.client = paho.NewClient(opts)
	return c
}

// URL returns the broker URL.
func (c *Client) URL() string { return c.url }

// Connect attempts to connect to the broker.
// Returns an error if connection fails, but does not block indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return &ConnectTimeoutError{}
	}
	return token.Error()
}

// Subscribe subscribes to a topic with the given handler.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Subscribe(topic, 1, handler)
	if !token.WaitTimeout(10 * time.Second) {
		return &TimeoutError{Op: "subscribe", Topic: topic}
	}
	return token.Error()
}

// Publish sends payload to topic. Retained messages are kept by the broker
// for late subscribers.
func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return &TimeoutError{Op: "publish", Topic: topic}
	}
	return token.Error()
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct{}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout"
}

// TimeoutError indicates a subscribe or publish timed out.
type TimeoutError struct {
	Op    string
	Topic string
}

func (e *TimeoutError) Error() string {
	return "mqtt " + e.Op + " timeout: " + e.Topic
}

// StartWithRetry attempts to connect and subscribe, logging errors but not crashing.
// Returns true if connected, false otherwise.
func (c *Client) StartWithRetry(topic string, handler paho.MessageHandler) bool {
	if err := c.Connect(); err != nil {
		c.logger.Error("failed to connect", "broker", c.url, "error", err)
		return false
	}

	if err := c.Subscribe(topic, handler); err != nil {
		c.logger.Error("failed to subscribe", "topic", topic, "error", err)
		return false
	}

	c.logger.Info("connected and subscribed", "broker", c.url, "topic", topic)
	return true
}
