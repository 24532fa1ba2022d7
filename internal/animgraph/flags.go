package animgraph

// Flags is the per-(object, instance) bitmask used by the phase scheduler.
type Flags uint32

const (
	FlagOutputReady Flags = 1 << iota
	FlagUpdateReady
	FlagTopDownUpdateReady
	FlagPostUpdateReady
	FlagSynced
	FlagResync
	FlagSyncIndexChanged
	FlagIsSyncLeader
)

// phaseFlags are cleared at the start of every frame.
const phaseFlags = FlagOutputReady | FlagUpdateReady | FlagTopDownUpdateReady | FlagPostUpdateReady |
	FlagSynced | FlagSyncIndexChanged | FlagIsSyncLeader

// EnableFlags sets bits on an object.
func (inst *Instance) EnableFlags(index int, f Flags) {
	inst.flags[index] |= f
}

// DisableFlags clears bits on an object.
func (inst *Instance) DisableFlags(index int, f Flags) {
	inst.flags[index] &^= f
}

// HasFlags reports whether all bits of f are set on an object.
func (inst *Instance) HasFlags(index int, f Flags) bool {
	return inst.flags[index]&f == f
}

// ResetFlags clears the per-frame bits of every object. FlagResync survives
// until the sync that consumes it.
func (inst *Instance) ResetFlags() {
	for i := range inst.flags {
		inst.flags[i] &^= phaseFlags
	}
}

// setFlagRecursive sets f on n and on everything feeding it through ports
// and pass-through containers. It stops at state machines, which manage
// their own children.
func (inst *Instance) setFlagRecursive(n Node, f Flags) {
	inst.EnableFlags(n.ObjectIndex(), f)
	if _, ok := n.(*StateMachine); ok {
		return
	}
	for _, c := range n.Base().Connections() {
		inst.setFlagRecursive(c.Source, f)
	}
	if bt, ok := n.(*BlendTree); ok && bt.final != nil {
		inst.setFlagRecursive(bt.final, f)
	}
}
