package gpio

import (
	"errors"
	"testing"

	"github.com/sweeney/treadmill-pod/internal/pace"
)

var _ EdgeSource = (*FakeEdgeSource)(nil)
var _ EdgeSource = (*RealEdgeSource)(nil)

func TestFakeEdgeSourceOrder(t *testing.T) {
	f := NewFakeEdgeSource(4)
	f.Fall(10)
	f.Push(pace.Edge{Counter: 20, Direction: pace.DirectionRising})
	f.Fall(30)

	want := []pace.Edge{
		{Counter: 10, Direction: pace.DirectionFalling},
		{Counter: 20, Direction: pace.DirectionRising},
		{Counter: 30, Direction: pace.DirectionFalling},
	}
	for i, w := range want {
		select {
		case got := <-f.Edges():
			if got != w {
				t.Errorf("edge %d: got %+v, want %+v", i, got, w)
			}
		default:
			t.Fatalf("edge %d: channel empty", i)
		}
	}
}

func TestFakeEdgeSourceDropsWhenFull(t *testing.T) {
	f := NewFakeEdgeSource(1)

	if !f.Fall(1) {
		t.Fatal("first push should fit")
	}
	if f.Fall(2) {
		t.Fatal("second push should be dropped")
	}
	if f.Dropped() != 1 {
		t.Errorf("Dropped: got %d, want 1", f.Dropped())
	}
}

func TestFakeEdgeSourceLevel(t *testing.T) {
	f := NewFakeEdgeSource(1)

	on, err := f.Level()
	if err != nil || on {
		t.Errorf("default level: got (%v, %v)", on, err)
	}

	f.Detected = true
	on, err = f.Level()
	if err != nil || !on {
		t.Errorf("detected level: got (%v, %v)", on, err)
	}

	f.LevelError = errors.New("simulated error")
	if _, err := f.Level(); err == nil || err.Error() != "simulated error" {
		t.Errorf("expected simulated error, got %v", err)
	}
}

func TestFakeEdgeSourceClose(t *testing.T) {
	f := NewFakeEdgeSource(1)

	if f.Closed {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
	if err := f.Close(); err == nil {
		t.Error("second Close should fail")
	}
}
