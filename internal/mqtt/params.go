package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/animgraph/internal/animgraph"
	"github.com/AaronLay10/animgraph/internal/events"
)

// InstanceFinder resolves instance ids.
type InstanceFinder interface {
	FindInstance(id string) (*animgraph.Instance, bool)
}

// ParamSync applies parameter updates published to
// <prefix>/instances/<id>/params. The payload is a JSON object mapping
// parameter names to values. Updates are queued and take effect on the
// instance's next frame.
type ParamSync struct {
	prefix    string
	instances InstanceFinder
	logger    *slog.Logger
}

// NewParamSync creates a parameter subscriber for the given topic prefix.
func NewParamSync(prefix string, instances InstanceFinder, logger *slog.Logger) *ParamSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParamSync{
		prefix:    strings.TrimSuffix(prefix, "/"),
		instances: instances,
		logger:    logger.With("component", "mqtt.params"),
	}
}

// Topic returns the wildcard subscription topic.
func (p *ParamSync) Topic() string {
	return p.prefix + "/instances/+/params"
}

// Handler returns the paho handler for Topic.
func (p *ParamSync) Handler() paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		if _, err := p.Handle(msg.Topic(), msg.Payload()); err != nil {
			p.logger.Warn("parameter update failed", "topic", msg.Topic(), "error", err)
		}
	}
}

// instanceID extracts the instance id from a params topic.
func (p *ParamSync) instanceID(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, p.prefix+"/instances/")
	if !ok {
		return "", false
	}
	id, suffix, ok := strings.Cut(rest, "/")
	if !ok || suffix != "params" || id == "" {
		return "", false
	}
	return id, true
}

// Handle decodes one message and queues its updates. It returns the number
// of queued parameters. Invalid entries are rejected individually.
func (p *ParamSync) Handle(topic string, payload []byte) (int, error) {
	id, ok := p.instanceID(topic)
	if !ok {
		return 0, fmt.Errorf("unexpected topic %q", topic)
	}
	events.Emit("info", "mqtt.message", "", map[string]interface{}{"topic": topic, "bytes": len(payload)})

	inst, ok := p.instances.FindInstance(id)
	if !ok {
		return 0, fmt.Errorf("instance %q not found", id)
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return 0, fmt.Errorf("decode payload: %w", err)
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	queued := 0
	var errs []error
	for _, name := range names {
		err := queue(inst, name, raw[name])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			events.Emit("warning", "param.rejected", err.Error(), map[string]interface{}{
				"instance": id,
				"param":    name,
				"source":   "mqtt",
			})
			continue
		}
		queued++
		events.Emit("info", "param.queued", "", map[string]interface{}{
			"instance": id,
			"param":    name,
			"value":    raw[name],
			"source":   "mqtt",
		})
	}
	return queued, errors.Join(errs...)
}

func queue(inst *animgraph.Instance, name string, raw any) error {
	v, err := animgraph.ValueFromJSON(raw)
	if err != nil {
		return err
	}
	return inst.QueueParameterUpdate(name, v)
}
