package logging

import "sync"

// Metrics accumulates named counters and gauges published by simulation
// subsystems. Safe for concurrent use.
type Metrics struct {
	mu     sync.RWMutex
	counts map[string]uint64
	gauges map[string]uint64
}

func NewMetrics() *Metrics {
	return &Metrics{
		counts: make(map[string]uint64),
		gauges: make(map[string]uint64),
	}
}

// TelemetryAdd increments the named counter by delta.
func (m *Metrics) TelemetryAdd(key string, delta uint64) {
	if m == nil || key == "" {
		return
	}
	m.mu.Lock()
	m.counts[key] += delta
	m.mu.Unlock()
}

// TelemetryStore overwrites the named gauge.
func (m *Metrics) TelemetryStore(key string, value uint64) {
	if m == nil || key == "" {
		return
	}
	m.mu.Lock()
	m.gauges[key] = value
	m.mu.Unlock()
}

// CounterValue reads a counter, returning zero for unknown keys.
func (m *Metrics) CounterValue(key string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[key]
}

// GaugeValue reads a gauge, returning zero for unknown keys.
func (m *Metrics) GaugeValue(key string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[key]
}

// Snapshot copies all counters and gauges into a flat map.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	flat := make(map[string]uint64, len(m.counts)+len(m.gauges))
	for k, v := range m.counts {
		flat[k] = v
	}
	for k, v := range m.gauges {
		flat[k] = v
	}
	return flat
}
