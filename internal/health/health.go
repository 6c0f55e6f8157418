// Package health aggregates per-subsystem probes behind the health
// endpoint. The server registers one probe per dependency it owns
// (store, dedup cache) and the handler reports the aggregate plus the
// per-subsystem breakdown.
package health

import (
	"context"
	"sync"
)

// Status is the outcome of one probe, shaped for the health response.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Probe checks one subsystem. A nil return means the subsystem is
// usable; the error message becomes the reported detail otherwise.
type Probe func(ctx context.Context) error

// Registry holds named probes and runs them on demand. Registration
// order is preserved in the report.
type Registry struct {
	mu     sync.RWMutex
	probes []namedProbe
}

type namedProbe struct {
	name  string
	probe Probe
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a probe under a subsystem name.
func (r *Registry) Register(name string, probe Probe) {
	r.mu.Lock()
	r.probes = append(r.probes, namedProbe{name: name, probe: probe})
	r.mu.Unlock()
}

// CheckAll runs every registered probe against ctx and returns the
// aggregate health with the individual results. The registry is healthy
// only when every probe passes; an empty registry is healthy.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	probes := make([]namedProbe, len(r.probes))
	copy(probes, r.probes)
	r.mu.RUnlock()

	healthy := true
	statuses := make([]Status, len(probes))
	for i, np := range probes {
		st := Status{Name: np.name, Healthy: true}
		if err := np.probe(ctx); err != nil {
			st.Healthy = false
			st.Detail = err.Error()
			healthy = false
		}
		statuses[i] = st
	}
	return healthy, statuses
}
