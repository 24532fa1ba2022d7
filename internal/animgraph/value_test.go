package animgraph

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

func TestValueFromJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    Value
		wantErr bool
	}{
		{name: "bool", raw: true, want: BoolValue(true)},
		{name: "number", raw: 1.5, want: FloatValue(1.5)},
		{name: "vector", raw: []any{1.0, -2.0}, want: Vector2Value(r2.Vec{X: 1, Y: -2})},
		{name: "numeric string", raw: "1", want: FloatValue(1)},
		{name: "bool string", raw: "false", want: BoolValue(false)},
		{name: "vector string", raw: "3,4", want: Vector2Value(r2.Vec{X: 3, Y: 4})},
		{name: "short vector", raw: []any{1.0}, wantErr: true},
		{name: "text vector", raw: []any{"a", 1.0}, wantErr: true},
		{name: "garbage", raw: "fast", wantErr: true},
		{name: "object", raw: map[string]any{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValueFromJSON(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestQueueParameterUpdateChecksType(t *testing.T) {
	inst := conditionGraph(t, []ParameterDef{
		{Name: "speed", Type: ValueFloat},
		{Name: "dir", Type: ValueVector2},
	})

	err := inst.QueueParameterUpdate("dir", FloatValue(1))
	if !errors.Is(err, ErrParameterType) {
		t.Errorf("expected ErrParameterType, got %v", err)
	}
	if err := inst.QueueParameterUpdate("speed", BoolValue(true)); err != nil {
		t.Fatalf("expected bool to convert to float, got %v", err)
	}
	inst.Update(0.1)
	v, err := inst.ParameterByName("speed")
	if err != nil {
		t.Fatalf("failed to read speed: %v", err)
	}
	if v != FloatValue(1) {
		t.Errorf("expected speed 1, got %v", v)
	}
}
