// Package metrics is a small counter/timer registry in the shape of
// go-ethereum's metrics package (Counter, Timer, GetOrRegister), scoped
// down to what this node actually exercises: the txpool size gauge and the
// sandbox's gas-used counter.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a monotonically adjustable integer metric.
type Counter struct{ v int64 }

func (c *Counter) Inc(delta int64) { atomic.AddInt64(&c.v, delta) }
func (c *Counter) Dec(delta int64) { atomic.AddInt64(&c.v, -delta) }
func (c *Counter) Count() int64    { return atomic.LoadInt64(&c.v) }

// Gauge holds an instantaneous value.
type Gauge struct{ v int64 }

func (g *Gauge) Update(v int64) { atomic.StoreInt64(&g.v, v) }
func (g *Gauge) Value() int64   { return atomic.LoadInt64(&g.v) }

// Timer accumulates a count and total duration; Mean reports the mean.
type Timer struct {
	mu    sync.Mutex
	count int64
	total time.Duration
}

func (t *Timer) Update(d time.Duration) {
	t.mu.Lock()
	t.count++
	t.total += d
	t.mu.Unlock()
}

func (t *Timer) Mean() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count == 0 {
		return 0
	}
	return t.total / time.Duration(t.count)
}

// Registry is a name -> metric map, mirroring metrics.DefaultRegistry in
// the teacher repo closely enough to drop in a Prometheus exporter later
// without touching call sites.
type Registry struct {
	mu      sync.Mutex
	byName  map[string]any
}

func NewRegistry() *Registry { return &Registry{byName: make(map[string]any)} }

var defaultRegistry = NewRegistry()

func DefaultRegistry() *Registry { return defaultRegistry }

func (r *Registry) GetOrRegisterCounter(name string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.byName[name]; ok {
		return v.(*Counter)
	}
	c := &Counter{}
	r.byName[name] = c
	return c
}

func (r *Registry) GetOrRegisterGauge(name string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.byName[name]; ok {
		return v.(*Gauge)
	}
	g := &Gauge{}
	r.byName[name] = g
	return g
}

func (r *Registry) GetOrRegisterTimer(name string) *Timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.byName[name]; ok {
		return v.(*Timer)
	}
	t := &Timer{}
	r.byName[name] = t
	return t
}

func NewCounter(name string) *Counter { return DefaultRegistry().GetOrRegisterCounter(name) }
func NewGauge(name string) *Gauge     { return DefaultRegistry().GetOrRegisterGauge(name) }
func NewTimer(name string) *Timer     { return DefaultRegistry().GetOrRegisterTimer(name) }
