// Package pipeline implements the transaction intake and fraud alert
// pipeline: it normalizes an incoming transaction, obtains a risk
// assessment, persists the annotated transaction record, and — when the
// oracle labels the transaction suspicious — derives a content-addressed
// fraud signature, classifies severity, and persists a tamper-evident
// alert record.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguardian-io/chainguardian/internal/oracle"
)

// Defaults applied during intake normalization.
const (
	DefaultGasPrice = 50.0
	DefaultGasUsed  = 21000
)

// Alert status values. Only "active" is assigned by this pipeline;
// terminal transitions belong to an external workflow.
const (
	AlertStatusActive   = "active"
	AlertStatusResolved = "resolved"
)

var (
	// ErrMissingField marks an input defect: a required intake field is absent.
	ErrMissingField = errors.New("pipeline: missing required field")

	// ErrInvalidAmount marks a negative transaction amount.
	ErrInvalidAmount = errors.New("pipeline: amount must be non-negative")
)

// AlertWriteError reports a partial-failure state: the transaction record
// was durably stored but the alert write failed. Callers must surface this
// distinctly so operators know reconciliation may be required.
type AlertWriteError struct {
	TxHash  string
	SigHash string
	Err     error
}

func (e *AlertWriteError) Error() string {
	return fmt.Sprintf("pipeline: transaction %s recorded but alert %s not persisted: %v", e.TxHash, e.SigHash, e.Err)
}

func (e *AlertWriteError) Unwrap() error { return e.Err }

// TxInput is the inbound request shape from the transport layer.
// txHash, from, to, and amount are required; the rest default at intake.
// Amount is a pointer so an absent field is distinguishable from an
// explicit zero, which is a valid amount.
type TxInput struct {
	TxHash    string   `json:"txHash" binding:"required"`
	From      string   `json:"from" binding:"required"`
	To        string   `json:"to" binding:"required"`
	Amount    *float64 `json:"amount" binding:"required"`
	Timestamp string   `json:"timestamp,omitempty"`
	GasPrice  *float64 `json:"gasPrice,omitempty"`
	GasUsed   *int64   `json:"gasUsed,omitempty"`
}

// Validate rejects input defects before any side effect.
func (in *TxInput) Validate() error {
	switch {
	case in.TxHash == "":
		return fmt.Errorf("%w: txHash", ErrMissingField)
	case in.From == "":
		return fmt.Errorf("%w: from", ErrMissingField)
	case in.To == "":
		return fmt.Errorf("%w: to", ErrMissingField)
	case in.Amount == nil:
		return fmt.Errorf("%w: amount", ErrMissingField)
	case *in.Amount < 0:
		return ErrInvalidAmount
	}
	return nil
}

// TransactionRecord is the persisted transaction document, annotated with
// the oracle's assessment. Immutable after persistence.
type TransactionRecord struct {
	TxHash       string  `json:"txHash"`
	From         string  `json:"from"`
	To           string  `json:"to"`
	Amount       float64 `json:"amount"`
	Timestamp    string  `json:"timestamp"`
	GasPrice     float64 `json:"gasPrice"`
	GasUsed      int64   `json:"gasUsed"`
	RiskScore    float64 `json:"riskScore"`
	Label        string  `json:"label"`
	ModelVersion string  `json:"modelVersion"`
	ProcessedAt  string  `json:"processedAt"`
}

// AlertRecord is the persisted alert document. sigHash is the primary key;
// one record exists per fraud signature.
type AlertRecord struct {
	SigHash        string             `json:"sigHash"`
	TxHash         string             `json:"txHash"`
	FlaggedAddress string             `json:"flaggedAddress"`
	RiskScore      float64            `json:"riskScore"`
	Severity       Severity           `json:"severity"`
	Explanation    oracle.Explanation `json:"explanation"`
	Timestamp      string             `json:"timestamp"`
	Status         string             `json:"status"`
}

// ProcessResult is the outbound response shape. SignatureHash is nil when
// no alert was raised.
type ProcessResult struct {
	Success         bool               `json:"success"`
	TxHash          string             `json:"txHash"`
	RiskScore       float64            `json:"riskScore"`
	Label           string             `json:"label"`
	Explanation     oracle.Explanation `json:"explanation"`
	AlertRegistered bool               `json:"alertRegistered"`
	SignatureHash   *string            `json:"signatureHash"`
}

// Store is the persistence surface the orchestrator consumes. Implemented
// by internal/store; kept narrow so tests can substitute doubles.
type Store interface {
	InsertTransaction(ctx context.Context, rec *TransactionRecord) error
	InsertAlert(ctx context.Context, rec *AlertRecord) error
	GetAlertBySigHash(ctx context.Context, sigHash string) (*AlertRecord, error)
}

// Events receives pipeline outcomes for best-effort fan-out (Kafka,
// websocket clients). Implementations must not block.
type Events interface {
	TransactionProcessed(rec *TransactionRecord)
	AlertRaised(rec *AlertRecord)
}

// DedupCache is an optional fast-path presence check for signature hashes,
// consulted before the store lookup on the alert path. Errors inside
// implementations must degrade to "not seen".
type DedupCache interface {
	Seen(ctx context.Context, sigHash string) bool
	Mark(ctx context.Context, sigHash string)
}
