package timing

import (
	"testing"
	"time"

	"pixelpilot/internal/clock"
)

func TestDebounceKeepsLastArgument(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	var got []string
	d := Debounce(clk, 300*time.Millisecond, func(v string) { got = append(got, v) })

	d.Call("p")
	clk.Advance(100 * time.Millisecond)
	d.Call("pi")
	clk.Advance(100 * time.Millisecond)
	d.Call("pix")

	if len(got) != 0 {
		t.Fatalf("debounced fn fired before quiet period: %v", got)
	}
	clk.Advance(300 * time.Millisecond)
	if len(got) != 1 || got[0] != "pix" {
		t.Fatalf("expected single call with last argument, got %v", got)
	}
}

func TestDebounceTimerResetsOnEveryCall(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	calls := 0
	d := Debounce(clk, time.Second, func(int) { calls++ })

	for i := 0; i < 5; i++ {
		d.Call(i)
		clk.Advance(900 * time.Millisecond)
	}
	if calls != 0 {
		t.Fatalf("fired despite constant resets: %d", calls)
	}
	clk.Advance(time.Second)
	if calls != 1 {
		t.Fatalf("expected exactly one trailing call, got %d", calls)
	}
}

func TestDebounceStopPreventsLateFire(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	calls := 0
	d := Debounce(clk, time.Second, func(string) { calls++ })
	d.Call("x")
	d.Stop()
	clk.Advance(2 * time.Second)
	if calls != 0 {
		t.Fatalf("stopped debounce fired")
	}
	d.Call("y")
	clk.Advance(2 * time.Second)
	if calls != 0 {
		t.Fatalf("call after Stop scheduled work")
	}
}

func TestThrottleOneInvocationPerWindowWithLatestArgs(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	var got []string
	th := Throttle(clk, time.Second, func(v string) { got = append(got, v) })

	th.Call("a")
	th.Call("b")
	th.Call("c")
	if len(got) != 0 {
		t.Fatalf("throttle fired leading edge: %v", got)
	}
	clk.Advance(time.Second)
	if len(got) != 1 || got[0] != "c" {
		t.Fatalf("expected trailing call with latest args, got %v", got)
	}

	// Next window behaves the same.
	th.Call("d")
	clk.Advance(500 * time.Millisecond)
	th.Call("e")
	clk.Advance(500 * time.Millisecond)
	if len(got) != 2 || got[1] != "e" {
		t.Fatalf("expected second window call with latest args, got %v", got)
	}
}

func TestThrottleSchedulesAtMostOnePending(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	calls := 0
	th := Throttle(clk, time.Second, func(int) { calls++ })
	for i := 0; i < 10; i++ {
		th.Call(i)
	}
	if clk.Pending() != 1 {
		t.Fatalf("expected one pending timer, got %d", clk.Pending())
	}
	clk.Advance(time.Second)
	if calls != 1 {
		t.Fatalf("expected one invocation, got %d", calls)
	}
}

func TestThrottleStopPreventsLateFire(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	calls := 0
	th := Throttle(clk, time.Second, func(string) { calls++ })
	th.Call("x")
	th.Stop()
	clk.Advance(2 * time.Second)
	if calls != 0 {
		t.Fatalf("stopped throttle fired")
	}
}
