package animgraph

import (
	"fmt"
	"math"

	"github.com/AaronLay10/animgraph/internal/motion"
)

const epsilon = 1e-6

// SyncMode selects how a follower is time-aligned to its leader.
type SyncMode int

const (
	SyncDisabled SyncMode = iota
	SyncClip
	SyncTrack
)

func (m SyncMode) String() string {
	switch m {
	case SyncClip:
		return "clip"
	case SyncTrack:
		return "track"
	default:
		return "disabled"
	}
}

// ParseSyncMode parses "disabled", "clip" or "track". Empty means disabled.
func ParseSyncMode(s string) (SyncMode, error) {
	switch s {
	case "", "disabled", "none":
		return SyncDisabled, nil
	case "clip", "full":
		return SyncClip, nil
	case "track", "trackbased":
		return SyncTrack, nil
	}
	return SyncDisabled, fmt.Errorf("unknown sync mode %q", s)
}

func lerp(a, b, w float64) float64 {
	return a + (b-a)*w
}

// divideSpeed applies a sync factor to a play speed. Factors are duration
// ratios: a factor of 2 means the cycle is stretched to twice its length.
func divideSpeed(speed, factor float64) float64 {
	if factor <= epsilon {
		return speed
	}
	return speed / factor
}

// SyncPlaySpeeds blends the play speeds of a leader (A) and follower (B) and
// returns the factors that stretch each cycle to the weighted cycle length.
// Dividing a side's speed by its factor makes both sides finish their cycle at
// the same time. With weight 0 the leader keeps its pacing; with weight 1 the
// follower does.
func SyncPlaySpeeds(speedA, durationA, speedB, durationB, weight float64) (speed, factorA, factorB float64) {
	speed = lerp(speedA, speedB, weight)
	factorA, factorB = durationFactors(durationA, durationB, weight)
	return speed, factorA, factorB
}

func durationFactors(durationA, durationB, weight float64) (factorA, factorB float64) {
	if durationA <= epsilon || durationB <= epsilon {
		return 1, 1
	}
	factorA = lerp(1, durationB/durationA, weight)
	factorB = lerp(durationA/durationB, 1, weight)
	return factorA, factorB
}

// CalcSyncFactors computes the interpolated play speed and the leader and
// follower factors for two nodes' sync bases. Track mode falls back to full
// clip sync when either track is empty.
func CalcSyncFactors(leader, follower *NodeData, mode SyncMode, weight float64) (leaderFactor, followerFactor, speed float64) {
	if mode == SyncDisabled {
		return 1, 1, leader.PlaySpeed
	}
	speed = lerp(leader.PlaySpeed, follower.PlaySpeed, weight)

	if mode == SyncTrack && leader.SyncTrack.NumEvents() > 0 && follower.SyncTrack.NumEvents() > 0 {
		if leader.SyncIndex == motion.InvalidIndex || follower.SyncIndex == motion.InvalidIndex {
			return 1, 1, speed
		}
		segA := leader.SyncTrack.CalcSegmentLength(leader.SyncIndex, (leader.SyncIndex+1)%leader.SyncTrack.NumEvents())
		segB := follower.SyncTrack.CalcSegmentLength(follower.SyncIndex, (follower.SyncIndex+1)%follower.SyncTrack.NumEvents())
		leaderFactor, followerFactor = durationFactors(segA, segB, weight)
		return leaderFactor, followerFactor, speed
	}

	leaderFactor, followerFactor = durationFactors(leader.Duration, follower.Duration, weight)
	return leaderFactor, followerFactor, speed
}

// AutoSync aligns follower to leader with the given blend weight. The
// interpolated speed of the two is used as the follower's base speed.
func (inst *Instance) AutoSync(follower, leader Node, weight float64, mode SyncMode, resync bool) {
	if mode == SyncDisabled || leader == nil {
		return
	}
	ld := inst.NodeData(leader)
	fd := inst.NodeData(follower)
	inst.syncFollower(follower, leader, weight, mode, resync, lerp(ld.PlaySpeed, fd.PlaySpeed, weight))
}

// syncFollower maps the leader's play time onto the follower and sets the
// follower's speed to speed divided by its follower factor.
func (inst *Instance) syncFollower(follower, leader Node, weight float64, mode SyncMode, resync bool, speed float64) {
	if mode == SyncDisabled || leader == nil {
		return
	}
	ld := inst.NodeData(leader)
	fd := inst.NodeData(follower)

	if mode == SyncTrack && ld.SyncTrack.NumEvents() > 0 && fd.SyncTrack.NumEvents() > 0 {
		inst.syncUsingSyncTracks(follower, leader, weight, resync, speed)
		return
	}

	_, factor := durationFactors(ld.Duration, fd.Duration, weight)
	fd.PlaySpeed = divideSpeed(speed, factor)
	fd.SetNormalizedTime(ld.NormalizedTime())
}

// syncUsingSyncTracks aligns the follower segment-by-segment to the leader's
// sync track. The follower is left untouched when no matching segment can
// be found.
func (inst *Instance) syncUsingSyncTracks(follower, leader Node, weight float64, resync bool, speed float64) {
	ld := inst.NodeData(leader)
	fd := inst.NodeData(follower)
	trackA := ld.SyncTrack
	trackB := fd.SyncTrack

	currentTime := ld.CurrentTime
	forward := !ld.Backward

	firstA, nextA, ok := trackA.FindEventIndices(currentTime)
	if !ok {
		return
	}

	leaderIndex := leader.ObjectIndex()
	if ld.SyncIndex != firstA {
		inst.EnableFlags(leaderIndex, FlagSyncIndexChanged)
	}

	start := fd.SyncIndex
	if inst.HasFlags(leaderIndex, FlagSyncIndexChanged) {
		n := trackB.NumEvents()
		if forward {
			start++
		} else {
			start--
		}
		if start >= n {
			start = 0
		}
		if start < 0 {
			start = n - 1
		}
		inst.EnableFlags(follower.ObjectIndex(), FlagSyncIndexChanged)
	}

	hashA := trackA.Event(firstA).HashForSyncing(ld.Mirror)
	hashB := trackA.Event(nextA).HashForSyncing(ld.Mirror)

	var firstB, nextB int
	if resync {
		occurrence := trackA.CalcOccurrence(firstA, nextA, ld.Mirror)
		firstB, nextB, ok = trackB.ExtractOccurrence(occurrence, hashA, hashB, fd.Mirror)
	} else {
		firstB, nextB, ok = trackB.FindMatchingEvents(start, hashA, hashB, forward, fd.Mirror)
	}
	if !ok {
		return
	}

	ld.SyncIndex = firstA
	fd.SyncIndex = firstB

	segA := trackA.CalcSegmentLength(firstA, nextA)
	segB := trackB.CalcSegmentLength(firstB, nextB)

	var offset float64
	startA := trackA.Event(firstA).Start
	if firstA < nextA {
		offset = currentTime - startA
	} else if currentTime > trackA.Event(0).Start {
		offset = currentTime - startA
	} else {
		offset = ld.Duration - startA + currentTime
	}
	normalized := 0.0
	if segA > epsilon {
		normalized = offset / segA
	}

	newTime := trackB.Event(firstB).Start + segB*normalized
	if firstB >= nextB && newTime > fd.Duration && fd.Duration > epsilon {
		newTime = math.Mod(newTime, fd.Duration)
	}

	_, factor := durationFactors(segA, segB, weight)
	fd.PlaySpeed = divideSpeed(speed, factor)
	fd.CurrentTime = newTime
}

// hierarchicalSyncInputNode passes a parent's timing to one input. Inputs
// flagged as synced follow the parent's sync track; the rest inherit its
// speed.
func (inst *Instance) hierarchicalSyncInputNode(input, parent Node) {
	in := inst.NodeData(input)
	pd := inst.NodeData(parent)

	idx := input.ObjectIndex()
	if inst.HasFlags(idx, FlagSynced) {
		resync := inst.HasFlags(idx, FlagResync)
		inst.AutoSync(input, parent, 0, SyncTrack, resync)
		inst.DisableFlags(idx, FlagResync)
	} else {
		in.PlaySpeed = pd.PlaySpeed
	}
	in.GlobalWeight = pd.GlobalWeight
	in.LocalWeight = 1
}
