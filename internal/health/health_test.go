package health

import (
	"context"
	"errors"
	"testing"
)

func TestRegistryAllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("store", func(context.Context) error { return nil })
	r.Register("redis", func(context.Context) error { return nil })

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Error("CheckAll() healthy = false with all probes passing")
	}
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
	if statuses[0].Name != "store" || statuses[1].Name != "redis" {
		t.Errorf("statuses out of registration order: %+v", statuses)
	}
	if !statuses[0].Healthy || statuses[0].Detail != "" {
		t.Errorf("passing probe reported %+v", statuses[0])
	}
}

func TestRegistryOneUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("store", func(context.Context) error { return nil })
	r.Register("redis", func(context.Context) error {
		return errors.New("connection refused")
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Error("CheckAll() healthy = true with a failing probe")
	}
	if statuses[1].Healthy {
		t.Error("failing probe reported healthy")
	}
	if statuses[1].Detail != "connection refused" {
		t.Errorf("Detail = %q", statuses[1].Detail)
	}
}

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry()

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Error("empty registry should report healthy")
	}
	if len(statuses) != 0 {
		t.Errorf("got %d statuses, want 0", len(statuses))
	}
}
