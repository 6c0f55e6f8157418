package emitters

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainguardian-io/chainguardian/internal/pipeline"
)

func TestEventEnvelopeForTransaction(t *testing.T) {
	rec := &pipeline.TransactionRecord{
		TxHash:    "0xabc",
		From:      "0xsender",
		To:        "0xrecipient",
		Amount:    42.5,
		RiskScore: 0.2,
		Label:     "normal",
	}

	raw, err := json.Marshal(Event{
		Type:        EventTransactionProcessed,
		TxHash:      rec.TxHash,
		Transaction: rec,
	})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "transaction.processed", decoded["type"])
	require.Equal(t, "0xabc", decoded["txHash"])
	require.Contains(t, decoded, "transaction")
	require.NotContains(t, decoded, "alert", "empty alert must be omitted")
}

func TestEventEnvelopeForAlert(t *testing.T) {
	rec := &pipeline.AlertRecord{
		SigHash:        "deadbeef",
		TxHash:         "0xabc",
		FlaggedAddress: "0xsender",
		RiskScore:      0.95,
		Severity:       pipeline.SeverityHigh,
		Status:         pipeline.AlertStatusActive,
	}

	raw, err := json.Marshal(Event{
		Type:   EventAlertRaised,
		TxHash: rec.TxHash,
		Alert:  rec,
	})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "alert.raised", decoded["type"])
	require.Contains(t, decoded, "alert")
	require.NotContains(t, decoded, "transaction")
}

func TestWriterDoesNotBlockOnDelivery(t *testing.T) {
	e := NewKafkaEmitter([]string{"localhost:9092"}, "chainguardian.alerts", slog.Default())
	t.Cleanup(func() { _ = e.Close() })

	// The pipeline calls emitters inline on the intake path, so the
	// writer must enqueue rather than wait for broker acks.
	require.True(t, e.writer.Async)
	require.NotNil(t, e.writer.Completion)
}

func TestCloseIsIdempotent(t *testing.T) {
	e := NewKafkaEmitter([]string{"localhost:9092"}, "chainguardian.alerts", slog.Default())

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	// Emission after close is a silent no-op, not a panic.
	e.TransactionProcessed(&pipeline.TransactionRecord{TxHash: "0xabc"})
}
