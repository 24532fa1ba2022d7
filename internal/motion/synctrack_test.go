package motion

import "testing"

func footTrack() *SyncTrack {
	// L at 0.0, R at 0.5, L at 1.0, R at 1.5 on a 2s clip
	return NewSyncTrack(2.0,
		NewEvent("R", "L", 0.5, 0.5),
		NewEvent("L", "R", 0.0, 0.0),
		NewEvent("R", "L", 1.5, 1.5),
		NewEvent("L", "R", 1.0, 1.0),
	)
}

func TestSyncTrackSortsEvents(t *testing.T) {
	tr := footTrack()
	for i := 1; i < tr.NumEvents(); i++ {
		if tr.Event(i).Start < tr.Event(i-1).Start {
			t.Fatalf("events not sorted at %d", i)
		}
	}
}

func TestFindEventIndices(t *testing.T) {
	tr := footTrack()
	tests := []struct {
		time          float64
		first, second int
	}{
		{0.0, 0, 1},
		{0.7, 1, 2},
		{1.2, 2, 3},
		{1.5, 3, 0},
		{1.9, 3, 0},
	}
	for _, tt := range tests {
		first, second, ok := tr.FindEventIndices(tt.time)
		if !ok {
			t.Errorf("t=%v: expected ok", tt.time)
			continue
		}
		if first != tt.first || second != tt.second {
			t.Errorf("t=%v: expected (%d,%d), got (%d,%d)", tt.time, tt.first, tt.second, first, second)
		}
	}

	empty := NewSyncTrack(1)
	if _, _, ok := empty.FindEventIndices(0.5); ok {
		t.Error("expected empty track to report no indices")
	}
}

func TestCalcSegmentLengthWraps(t *testing.T) {
	tr := footTrack()
	if got := tr.CalcSegmentLength(0, 1); got != 0.5 {
		t.Errorf("expected 0.5, got %v", got)
	}
	// 1.5 -> end (0.5) + start -> 0.0
	if got := tr.CalcSegmentLength(3, 0); got != 0.5 {
		t.Errorf("expected wrapped 0.5, got %v", got)
	}

	single := NewSyncTrack(1.0, NewEvent("L", "", 0.25, 0.25))
	if got := single.CalcSegmentLength(0, 0); got != 1.0 {
		t.Errorf("expected single event segment to span the clip, got %v", got)
	}
}

func TestFindMatchingEvents(t *testing.T) {
	tr := footTrack()
	hashL := HashName("L")
	hashR := HashName("R")

	first, second, ok := tr.FindMatchingEvents(1, hashL, hashR, true, false)
	if !ok || first != 2 || second != 3 {
		t.Errorf("expected (2,3) searching forward from 1, got (%d,%d,%v)", first, second, ok)
	}

	first, second, ok = tr.FindMatchingEvents(1, hashL, hashR, false, false)
	if !ok || first != 0 || second != 1 {
		t.Errorf("expected (0,1) searching backward from 1, got (%d,%d,%v)", first, second, ok)
	}

	// mirrored hashes swap L and R
	first, _, ok = tr.FindMatchingEvents(0, hashL, hashR, true, true)
	if !ok || first != 1 {
		t.Errorf("expected mirrored match at 1, got (%d,%v)", first, ok)
	}

	if _, _, ok := tr.FindMatchingEvents(0, HashName("X"), hashR, true, false); ok {
		t.Error("expected no match for unknown hash")
	}
}

func TestOccurrenceRoundTrip(t *testing.T) {
	tr := footTrack()
	occ := tr.CalcOccurrence(2, 3, false)
	if occ != 1 {
		t.Fatalf("expected occurrence 1, got %d", occ)
	}
	first, second, ok := tr.ExtractOccurrence(occ, HashName("L"), HashName("R"), false)
	if !ok || first != 2 || second != 3 {
		t.Errorf("expected (2,3), got (%d,%d,%v)", first, second, ok)
	}

	// fewer matches than requested wraps around
	first, _, ok = tr.ExtractOccurrence(2, HashName("L"), HashName("R"), false)
	if !ok || first != 0 {
		t.Errorf("expected wrapped occurrence at 0, got (%d,%v)", first, ok)
	}
}
