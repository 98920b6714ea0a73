package metrics

import (
	"testing"
	"time"
)

func TestCounterIncDec(t *testing.T) {
	c := &Counter{}
	c.Inc(5)
	c.Dec(2)
	if got := c.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
}

func TestGaugeUpdate(t *testing.T) {
	g := &Gauge{}
	g.Update(47)
	if got := g.Value(); got != 47 {
		t.Errorf("Value() = %d, want 47", got)
	}
}

func TestTimerMean(t *testing.T) {
	tm := &Timer{}
	tm.Update(100 * time.Millisecond)
	tm.Update(200 * time.Millisecond)
	if got := tm.Mean(); got != 150*time.Millisecond {
		t.Errorf("Mean() = %v, want 150ms", got)
	}
}

func TestRegistryGetOrRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	a := r.GetOrRegisterCounter("apply.count")
	b := r.GetOrRegisterCounter("apply.count")
	if a != b {
		t.Error("GetOrRegisterCounter returned distinct counters for the same name")
	}
}
