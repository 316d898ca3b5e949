package gpio

import (
	"errors"
	"testing"
	"time"
)

func TestFakeBoardInitialLevels(t *testing.T) {
	f := NewFakeBoard([]Input{
		{Pin: 17, Edge: EdgeBoth, PullUp: true},
		{Pin: 22, Edge: EdgeFalling, PullUp: false},
	}, nil)

	up, err := f.Level(17)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !up {
		t.Error("pull-up input should start high")
	}

	down, err := f.Level(22)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if down {
		t.Error("pull-down input should start low")
	}

	if _, err := f.Level(99); err == nil {
		t.Error("expected error for unknown pin")
	}
}

func TestFakeBoardDriveDeliversMatchingEdges(t *testing.T) {
	var got []EdgeEvent
	f := NewFakeBoard([]Input{
		{Pin: 17, Edge: EdgeBoth, PullUp: true},
		{Pin: 22, Edge: EdgeFalling, PullUp: true},
	}, func(ev EdgeEvent) { got = append(got, ev) })

	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	f.Drive(17, false, at) // falling
	f.Drive(17, false, at) // no change
	f.Drive(17, true, at)  // rising
	f.Drive(22, false, at) // falling, matches
	f.Drive(22, true, at)  // rising, filtered

	want := []EdgeEvent{
		{Pin: 17, Edge: EdgeFalling, Time: at},
		{Pin: 17, Edge: EdgeRising, Time: at},
		{Pin: 22, Edge: EdgeFalling, Time: at},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestFakeBoardSetCountsToggles(t *testing.T) {
	f := NewFakeBoard(nil, nil)

	for _, level := range []bool{true, true, false, false, true} {
		if err := f.Set(level); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if f.Toggles != 3 {
		t.Errorf("Toggles: got %d, want 3", f.Toggles)
	}
	if len(f.Writes) != 5 {
		t.Errorf("Writes: got %d, want 5", len(f.Writes))
	}
	if !f.LED {
		t.Error("LED should be on")
	}

	f.Reset()
	if f.Toggles != 0 || f.Writes != nil {
		t.Error("Reset should clear history")
	}
}

func TestFakeBoardErrors(t *testing.T) {
	f := NewFakeBoard([]Input{{Pin: 1, Edge: EdgeBoth}}, nil)
	f.LevelError = errors.New("simulated read error")
	f.SetError = errors.New("simulated write error")

	if _, err := f.Level(1); err == nil || err.Error() != "simulated read error" {
		t.Errorf("unexpected Level error: %v", err)
	}
	if err := f.Set(true); err == nil || err.Error() != "simulated write error" {
		t.Errorf("unexpected Set error: %v", err)
	}
	if f.LED {
		t.Error("failed Set should not change LED")
	}
}

func TestFakeBoardClose(t *testing.T) {
	f := NewFakeBoard(nil, nil)

	if f.Closed {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestParseEdge(t *testing.T) {
	tests := []struct {
		in      string
		want    Edge
		wantErr bool
	}{
		{"falling", EdgeFalling, false},
		{"Rising", EdgeRising, false},
		{"both", EdgeBoth, false},
		{"sideways", EdgeNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEdge(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err: got %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEdgeMatches(t *testing.T) {
	if !EdgeBoth.Matches(EdgeRising) || !EdgeBoth.Matches(EdgeFalling) {
		t.Error("EdgeBoth should match both transitions")
	}
	if EdgeFalling.Matches(EdgeRising) {
		t.Error("EdgeFalling should not match rising")
	}
}
