package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/chainguardian-io/chainguardian/internal/oracle"
	"github.com/chainguardian-io/chainguardian/internal/pipeline"
)

func txRecord(hash, timestamp, label string) *pipeline.TransactionRecord {
	return &pipeline.TransactionRecord{
		TxHash:       hash,
		From:         "0xsender",
		To:           "0xrecipient",
		Amount:       10,
		Timestamp:    timestamp,
		GasPrice:     50,
		GasUsed:      21000,
		RiskScore:    0.2,
		Label:        label,
		ModelVersion: "v1",
		ProcessedAt:  timestamp,
	}
}

func alertRecord(sigHash, timestamp string) *pipeline.AlertRecord {
	return &pipeline.AlertRecord{
		SigHash:        sigHash,
		TxHash:         "0xtx",
		FlaggedAddress: "0xsender",
		RiskScore:      0.9,
		Severity:       pipeline.SeverityHigh,
		Explanation:    oracle.EmptyExplanation(),
		Timestamp:      timestamp,
		Status:         pipeline.AlertStatusActive,
	}
}

func TestComputeAccuracy(t *testing.T) {
	tests := []struct {
		total, fraud int64
		want         float64
	}{
		{0, 0, 0},
		{100, 5, 95.0},
		{100, 0, 100.0},
		{3, 1, 66.67},
		{7, 2, 71.43},
	}

	for _, tt := range tests {
		if got := ComputeAccuracy(tt.total, tt.fraud); got != tt.want {
			t.Errorf("ComputeAccuracy(%d, %d) = %v, want %v", tt.total, tt.fraud, got, tt.want)
		}
	}
}

func TestMemoryStoreListTransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	timestamps := []string{
		"2026-09-01T10:00:00Z",
		"2026-09-01T12:00:00Z",
		"2026-09-01T11:00:00Z",
	}
	for i, ts := range timestamps {
		if err := st.InsertTransaction(ctx, txRecord(fmt.Sprintf("0x%d", i), ts, oracle.LabelNormal)); err != nil {
			t.Fatalf("InsertTransaction: %v", err)
		}
	}

	txs, err := st.ListTransactions(ctx, 10)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("got %d records, want 3", len(txs))
	}
	want := []string{"2026-09-01T12:00:00Z", "2026-09-01T11:00:00Z", "2026-09-01T10:00:00Z"}
	for i, ts := range want {
		if txs[i].Timestamp != ts {
			t.Errorf("txs[%d].Timestamp = %s, want %s", i, txs[i].Timestamp, ts)
		}
	}
}

func TestMemoryStoreListLimit(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	for i := 0; i < 5; i++ {
		ts := fmt.Sprintf("2026-09-01T10:0%d:00Z", i)
		if err := st.InsertTransaction(ctx, txRecord(fmt.Sprintf("0x%d", i), ts, oracle.LabelNormal)); err != nil {
			t.Fatalf("InsertTransaction: %v", err)
		}
	}

	txs, err := st.ListTransactions(ctx, 2)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 2 {
		t.Errorf("got %d records, want 2", len(txs))
	}
	if txs[0].Timestamp != "2026-09-01T10:04:00Z" {
		t.Errorf("limit did not keep the newest records, got %s", txs[0].Timestamp)
	}
}

func TestMemoryStoreInsertAlertIdempotent(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	first := alertRecord("a1", "2026-09-01T10:00:00Z")
	if err := st.InsertAlert(ctx, first); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}

	dup := alertRecord("a1", "2026-09-01T11:00:00Z")
	dup.RiskScore = 0.99
	if err := st.InsertAlert(ctx, dup); err != nil {
		t.Fatalf("duplicate InsertAlert: %v", err)
	}

	got, err := st.GetAlertBySigHash(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAlertBySigHash: %v", err)
	}
	if got.RiskScore != 0.9 {
		t.Errorf("duplicate insert overwrote the original record: RiskScore = %v", got.RiskScore)
	}
}

func TestMemoryStoreGetAlertNotFound(t *testing.T) {
	st := NewMemoryStore()

	_, err := st.GetAlertBySigHash(context.Background(), "missing")
	if err != pipeline.ErrAlertNotFound {
		t.Errorf("error = %v, want ErrAlertNotFound", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	if err := st.InsertAlert(ctx, alertRecord("a1", "2026-09-01T10:00:00Z")); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}

	got, _ := st.GetAlertBySigHash(ctx, "a1")
	got.Status = pipeline.AlertStatusResolved

	again, _ := st.GetAlertBySigHash(ctx, "a1")
	if again.Status != pipeline.AlertStatusActive {
		t.Error("mutating a returned record changed the stored one")
	}
}

func TestMemoryStoreStatistics(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	stats, err := st.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TotalTx != 0 || stats.Accuracy != 0 || stats.ActiveAlerts != 0 {
		t.Errorf("empty store stats = %+v, want zeros", stats)
	}

	for i := 0; i < 95; i++ {
		ts := "2026-09-01T10:00:00Z"
		if err := st.InsertTransaction(ctx, txRecord(fmt.Sprintf("0xn%d", i), ts, oracle.LabelNormal)); err != nil {
			t.Fatalf("InsertTransaction: %v", err)
		}
	}
	for i := 0; i < 5; i++ {
		ts := "2026-09-01T11:00:00Z"
		if err := st.InsertTransaction(ctx, txRecord(fmt.Sprintf("0xs%d", i), ts, oracle.LabelSuspicious)); err != nil {
			t.Fatalf("InsertTransaction: %v", err)
		}
		if err := st.InsertAlert(ctx, alertRecord(fmt.Sprintf("sig%d", i), ts)); err != nil {
			t.Fatalf("InsertAlert: %v", err)
		}
	}

	stats, err = st.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.TotalTx != 100 {
		t.Errorf("TotalTx = %d, want 100", stats.TotalTx)
	}
	if stats.FraudDetected != 5 {
		t.Errorf("FraudDetected = %d, want 5", stats.FraudDetected)
	}
	if stats.Accuracy != 95.0 {
		t.Errorf("Accuracy = %v, want 95.0", stats.Accuracy)
	}
	if stats.ActiveAlerts != 5 {
		t.Errorf("ActiveAlerts = %d, want 5", stats.ActiveAlerts)
	}
}
