package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguardian-io/chainguardian/internal/logging"
	"github.com/chainguardian-io/chainguardian/internal/metrics"
	"github.com/chainguardian-io/chainguardian/internal/oracle"
	"github.com/chainguardian-io/chainguardian/internal/traces"
)

// Service is the fraud alert orchestrator. It is stateless with respect to
// prior calls; any number of Process calls may run concurrently against
// the shared store.
type Service struct {
	store  Store
	oracle oracle.Oracle // nil means permanent fallback mode
	events Events        // nil means no fan-out
	dedup  DedupCache    // nil means store-only dedup
	now    func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithEvents attaches a best-effort event sink.
func WithEvents(e Events) Option {
	return func(s *Service) { s.events = e }
}

// WithDedupCache attaches a signature-hash presence cache.
func WithDedupCache(c DedupCache) Option {
	return func(s *Service) { s.dedup = c }
}

// WithNow overrides the clock (tests).
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the orchestrator. oracle may be nil, in which case
// every transaction receives the fallback assessment.
func NewService(store Store, o oracle.Oracle, opts ...Option) *Service {
	s := &Service{
		store:  store,
		oracle: o,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process runs the intake pipeline for one transaction:
//
//  1. Validate and normalize the input, filling defaults.
//  2. Obtain a risk assessment, falling back when the oracle is unavailable.
//  3. Persist the annotated transaction record (always).
//  4. If suspicious: derive the fraud signature, classify severity, and
//     persist the alert record.
//
// The transaction write always precedes the alert write, so a crash
// between them leaves a transaction with no alert, never the reverse.
// A failed transaction write aborts the call; a failed alert write after
// a durable transaction write returns *AlertWriteError.
func (s *Service) Process(ctx context.Context, in TxInput) (*ProcessResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "pipeline.Process", traces.TxHash(in.TxHash))
	defer span.End()

	txCtx := s.normalize(in)
	assessment := s.assess(ctx, txCtx)

	rec := BuildTransactionRecord(txCtx, assessment, s.timestamp())
	if err := s.store.InsertTransaction(ctx, rec); err != nil {
		return nil, fmt.Errorf("pipeline: insert transaction %s: %w", in.TxHash, err)
	}
	metrics.TransactionsProcessedTotal.WithLabelValues(assessment.Label).Inc()
	if s.events != nil {
		s.events.TransactionProcessed(rec)
	}

	result := &ProcessResult{
		Success:     true,
		TxHash:      in.TxHash,
		RiskScore:   assessment.RiskScore,
		Label:       assessment.Label,
		Explanation: assessment.Explanation,
	}

	if assessment.Label != oracle.LabelSuspicious {
		logging.L(ctx).Info("transaction processed",
			"tx_hash", in.TxHash,
			"risk_score", assessment.RiskScore,
			"label", assessment.Label,
		)
		return result, nil
	}

	sig := FraudSignature{
		TxHash:         in.TxHash,
		FlaggedAddress: txCtx.From,
		RiskScore:      assessment.RiskScore,
		Timestamp:      txCtx.Timestamp,
		ModelVersion:   assessment.ModelVersion,
		Explanation:    assessment.Explanation,
	}
	sigHash := sig.Derive()
	severity := ClassifySeverity(assessment.RiskScore)

	alert := BuildAlertRecord(sig, sigHash, severity, s.timestamp())
	if err := s.persistAlert(ctx, alert); err != nil {
		return nil, &AlertWriteError{TxHash: in.TxHash, SigHash: sigHash, Err: err}
	}

	logging.L(ctx).Warn("fraud detected",
		"tx_hash", in.TxHash,
		"sig_hash", sigHash,
		"risk_score", assessment.RiskScore,
		"severity", severity.String(),
	)

	result.AlertRegistered = true
	result.SignatureHash = &sigHash
	return result, nil
}

// normalize fills defaults into the internal transaction context.
func (s *Service) normalize(in TxInput) *oracle.TransactionContext {
	txCtx := &oracle.TransactionContext{
		TxHash:    in.TxHash,
		From:      in.From,
		To:        in.To,
		Amount:    *in.Amount,
		Timestamp: in.Timestamp,
		GasPrice:  DefaultGasPrice,
		GasUsed:   DefaultGasUsed,
	}
	if txCtx.Timestamp == "" {
		txCtx.Timestamp = s.timestamp()
	}
	if in.GasPrice != nil {
		txCtx.GasPrice = *in.GasPrice
	}
	if in.GasUsed != nil {
		txCtx.GasUsed = *in.GasUsed
	}
	return txCtx
}

// assess calls the oracle, substituting the fixed fallback assessment when
// it is absent or unavailable.
func (s *Service) assess(ctx context.Context, txCtx *oracle.TransactionContext) *oracle.Assessment {
	if s.oracle == nil {
		metrics.OracleRequestsTotal.WithLabelValues("fallback").Inc()
		return oracle.Fallback()
	}

	assessment, err := s.oracle.Predict(ctx, txCtx)
	if err != nil {
		logging.L(ctx).Warn("oracle unavailable, using fallback assessment",
			"tx_hash", txCtx.TxHash,
			"error", err,
		)
		metrics.OracleRequestsTotal.WithLabelValues("fallback").Inc()
		return oracle.Fallback()
	}

	metrics.OracleRequestsTotal.WithLabelValues("ok").Inc()
	return assessment
}

// persistAlert writes the alert unless the same signature hash is already
// registered. The cache is a fast path only; the store remains the source
// of truth.
func (s *Service) persistAlert(ctx context.Context, alert *AlertRecord) error {
	if s.dedup != nil && s.dedup.Seen(ctx, alert.SigHash) {
		return nil
	}

	existing, err := s.store.GetAlertBySigHash(ctx, alert.SigHash)
	if err != nil && !errors.Is(err, ErrAlertNotFound) {
		return err
	}
	if existing != nil {
		if s.dedup != nil {
			s.dedup.Mark(ctx, alert.SigHash)
		}
		return nil
	}

	if err := s.store.InsertAlert(ctx, alert); err != nil {
		return err
	}

	if s.dedup != nil {
		s.dedup.Mark(ctx, alert.SigHash)
	}
	metrics.AlertsRaisedTotal.WithLabelValues(alert.Severity.String()).Inc()
	if s.events != nil {
		s.events.AlertRaised(alert)
	}
	return nil
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// ErrAlertNotFound is returned by stores when no alert matches a signature
// hash. Declared here so the orchestrator and all store implementations
// agree on the sentinel.
var ErrAlertNotFound = errors.New("alert not found")

// BuildTransactionRecord assembles the persisted transaction document from
// the normalized context and the assessment. Pure; no I/O.
func BuildTransactionRecord(txCtx *oracle.TransactionContext, a *oracle.Assessment, processedAt string) *TransactionRecord {
	return &TransactionRecord{
		TxHash:       txCtx.TxHash,
		From:         txCtx.From,
		To:           txCtx.To,
		Amount:       txCtx.Amount,
		Timestamp:    txCtx.Timestamp,
		GasPrice:     txCtx.GasPrice,
		GasUsed:      txCtx.GasUsed,
		RiskScore:    a.RiskScore,
		Label:        a.Label,
		ModelVersion: a.ModelVersion,
		ProcessedAt:  processedAt,
	}
}

// BuildAlertRecord assembles the persisted alert document from the derived
// signature. Pure; no I/O.
func BuildAlertRecord(sig FraudSignature, sigHash string, severity Severity, raisedAt string) *AlertRecord {
	return &AlertRecord{
		SigHash:        sigHash,
		TxHash:         sig.TxHash,
		FlaggedAddress: sig.FlaggedAddress,
		RiskScore:      sig.RiskScore,
		Severity:       severity,
		Explanation:    sig.Explanation,
		Timestamp:      raisedAt,
		Status:         AlertStatusActive,
	}
}
