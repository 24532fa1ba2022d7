package animgraph

import (
	"errors"
	"fmt"
)

var (
	// ErrLoad indicates a graph document could not be decoded.
	ErrLoad = errors.New("load error")
	// ErrStructural indicates a graph whose wiring violates the node model.
	ErrStructural = errors.New("structural error")
	// ErrNotFound indicates a lookup by name or id failed.
	ErrNotFound = errors.New("not found")
	// ErrParameterType indicates a parameter access with the wrong value type.
	ErrParameterType = errors.New("parameter type mismatch")
)

// Structural error kinds.
const (
	KindCycle              = "cycle"
	KindMissingFinalNode   = "missing_final_node"
	KindDanglingConnection = "dangling_connection"
	KindPortType           = "port_type"
	KindPortOccupied       = "port_occupied"
	KindPortIndex          = "port_index"
	KindMissingEntryState  = "missing_entry_state"
	KindUnresolved         = "unresolved_reference"
	KindDuplicateName      = "duplicate_name"
)

// StructuralError describes a wiring problem found while building or loading
// a graph.
type StructuralError struct {
	Kind string
	Node string
	Msg  string
}

func (e *StructuralError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("structural error: %s: node %s: %s", e.Kind, e.Node, e.Msg)
	}
	return fmt.Sprintf("structural error: %s: %s", e.Kind, e.Msg)
}

func (e *StructuralError) Unwrap() error { return ErrStructural }

// ParameterError describes a failed parameter access.
type ParameterError struct {
	Name     string
	Expected ValueType
	Got      ValueType
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("parameter %s: expected %s, got %s", e.Name, e.Expected, e.Got)
}

func (e *ParameterError) Unwrap() error { return ErrParameterType }
