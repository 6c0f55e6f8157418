// Package store persists transaction and alert records. Two
// implementations share one interface: PostgresStore for production and
// MemoryStore for development and tests.
package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/chainguardian-io/chainguardian/internal/oracle"
	"github.com/chainguardian-io/chainguardian/internal/pipeline"
)

// DefaultListLimit bounds list queries when the caller passes limit <= 0.
const DefaultListLimit = 100

// Statistics is the aggregate summary served by the stats endpoint.
type Statistics struct {
	TotalTx       int64   `json:"totalTx"`
	FraudDetected int64   `json:"fraudDetected"`
	Accuracy      float64 `json:"accuracy"`
	ActiveAlerts  int64   `json:"activeAlerts"`
}

// Store is the full persistence surface. It is a superset of
// pipeline.Store; the orchestrator only sees the narrow slice it needs.
type Store interface {
	InsertTransaction(ctx context.Context, rec *pipeline.TransactionRecord) error
	InsertAlert(ctx context.Context, rec *pipeline.AlertRecord) error
	GetAlertBySigHash(ctx context.Context, sigHash string) (*pipeline.AlertRecord, error)
	ListTransactions(ctx context.Context, limit int) ([]*pipeline.TransactionRecord, error)
	ListAlerts(ctx context.Context, limit int) ([]*pipeline.AlertRecord, error)
	Statistics(ctx context.Context) (*Statistics, error)
	Ping(ctx context.Context) error
	Close() error
}

// ComputeAccuracy derives the headline accuracy figure from totals:
// the share of transactions not flagged as fraud, as a percentage
// rounded to two decimals. Zero transactions yields zero.
func ComputeAccuracy(totalTx, fraudDetected int64) float64 {
	if totalTx == 0 {
		return 0
	}
	pct := float64(totalTx-fraudDetected) / float64(totalTx) * 100
	return math.Round(pct*100) / 100
}

// MemoryStore is an in-memory Store for tests and dependency-free runs.
// Safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	txs    []*pipeline.TransactionRecord
	alerts map[string]*pipeline.AlertRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts: make(map[string]*pipeline.AlertRecord),
	}
}

func (m *MemoryStore) InsertTransaction(_ context.Context, rec *pipeline.TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.txs = append(m.txs, &cp)
	return nil
}

// InsertAlert is idempotent on sigHash: a duplicate insert is a no-op,
// matching the Postgres ON CONFLICT DO NOTHING behavior.
func (m *MemoryStore) InsertAlert(_ context.Context, rec *pipeline.AlertRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[rec.SigHash]; ok {
		return nil
	}
	cp := *rec
	m.alerts[rec.SigHash] = &cp
	return nil
}

func (m *MemoryStore) GetAlertBySigHash(_ context.Context, sigHash string) (*pipeline.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.alerts[sigHash]
	if !ok {
		return nil, pipeline.ErrAlertNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) ListTransactions(_ context.Context, limit int) ([]*pipeline.TransactionRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*pipeline.TransactionRecord, 0, len(m.txs))
	for _, rec := range m.txs {
		cp := *rec
		out = append(out, &cp)
	}
	// Newest first; RFC 3339 strings order lexicographically.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListAlerts(_ context.Context, limit int) ([]*pipeline.AlertRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*pipeline.AlertRecord, 0, len(m.alerts))
	for _, rec := range m.alerts {
		cp := *rec
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Statistics(_ context.Context) (*Statistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Statistics{TotalTx: int64(len(m.txs))}
	for _, rec := range m.txs {
		if rec.Label == oracle.LabelSuspicious {
			stats.FraudDetected++
		}
	}
	for _, rec := range m.alerts {
		if rec.Status == pipeline.AlertStatusActive {
			stats.ActiveAlerts++
		}
	}
	stats.Accuracy = ComputeAccuracy(stats.TotalTx, stats.FraudDetected)
	return stats, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
