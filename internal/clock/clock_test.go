package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresInDeadlineOrder(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var order []string
	f.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	f.AfterFunc(time.Second, func() { order = append(order, "a") })
	f.AfterFunc(time.Second, func() { order = append(order, "a2") })

	f.Advance(3 * time.Second)

	if len(order) != 3 || order[0] != "a" || order[1] != "a2" || order[2] != "b" {
		t.Fatalf("unexpected fire order: %v", order)
	}
	if got := f.Now(); !got.Equal(time.Unix(3, 0)) {
		t.Fatalf("clock not at target: %v", got)
	}
}

func TestFakeStopPreventsFire(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := false
	timer := f.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatalf("expected Stop to report cancellation")
	}
	f.Advance(2 * time.Second)
	if fired {
		t.Fatalf("stopped timer fired")
	}
	if timer.Stop() {
		t.Fatalf("second Stop should report false")
	}
}

func TestFakeCallbackMaySchedule(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var fires []time.Time
	f.AfterFunc(time.Second, func() {
		fires = append(fires, f.Now())
		f.AfterFunc(time.Second, func() {
			fires = append(fires, f.Now())
		})
	})

	f.Advance(5 * time.Second)

	if len(fires) != 2 {
		t.Fatalf("expected chained timer to fire, got %d fires", len(fires))
	}
	if !fires[0].Equal(time.Unix(1, 0)) || !fires[1].Equal(time.Unix(2, 0)) {
		t.Fatalf("unexpected fire times: %v", fires)
	}
}
