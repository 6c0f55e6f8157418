package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/chainguardian-io/chainguardian/internal/oracle"
	"github.com/chainguardian-io/chainguardian/internal/pipeline"
)

// PostgresStore persists records in PostgreSQL. Timestamps are stored as
// RFC 3339 TEXT so the persisted value is byte-identical to the value
// hashed into fraud signatures; explanations are JSONB.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// DB exposes the underlying pool for stats collection.
func (s *PostgresStore) DB() *sql.DB { return s.db }

func (s *PostgresStore) InsertTransaction(ctx context.Context, rec *pipeline.TransactionRecord) error {
	const q = `
		INSERT INTO transactions
			(tx_hash, from_address, to_address, amount, timestamp,
			 gas_price, gas_used, risk_score, label, model_version, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.ExecContext(ctx, q,
		rec.TxHash, rec.From, rec.To, rec.Amount, rec.Timestamp,
		rec.GasPrice, rec.GasUsed, rec.RiskScore, rec.Label,
		rec.ModelVersion, rec.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert transaction %s: %w", rec.TxHash, err)
	}
	return nil
}

// InsertAlert is idempotent on sig_hash: re-inserting an existing
// signature is a no-op rather than an error.
func (s *PostgresStore) InsertAlert(ctx context.Context, rec *pipeline.AlertRecord) error {
	explanation, err := json.Marshal(rec.Explanation)
	if err != nil {
		return fmt.Errorf("store: marshal explanation: %w", err)
	}

	const q = `
		INSERT INTO alerts
			(sig_hash, tx_hash, flagged_address, risk_score, severity,
			 explanation, timestamp, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (sig_hash) DO NOTHING`

	_, err = s.db.ExecContext(ctx, q,
		rec.SigHash, rec.TxHash, rec.FlaggedAddress, rec.RiskScore,
		int(rec.Severity), explanation, rec.Timestamp, rec.Status,
	)
	if err != nil {
		return fmt.Errorf("store: insert alert %s: %w", rec.SigHash, err)
	}
	return nil
}

func (s *PostgresStore) GetAlertBySigHash(ctx context.Context, sigHash string) (*pipeline.AlertRecord, error) {
	const q = `
		SELECT sig_hash, tx_hash, flagged_address, risk_score, severity,
		       explanation, timestamp, status
		FROM alerts
		WHERE sig_hash = $1`

	rec, err := scanAlert(s.db.QueryRowContext(ctx, q, sigHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pipeline.ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get alert %s: %w", sigHash, err)
	}
	return rec, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, limit int) ([]*pipeline.TransactionRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	const q = `
		SELECT tx_hash, from_address, to_address, amount, timestamp,
		       gas_price, gas_used, risk_score, label, model_version, processed_at
		FROM transactions
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list transactions: %w", err)
	}
	defer rows.Close()

	var out []*pipeline.TransactionRecord
	for rows.Next() {
		rec := &pipeline.TransactionRecord{}
		if err := rows.Scan(
			&rec.TxHash, &rec.From, &rec.To, &rec.Amount, &rec.Timestamp,
			&rec.GasPrice, &rec.GasUsed, &rec.RiskScore, &rec.Label,
			&rec.ModelVersion, &rec.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan transaction: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListAlerts(ctx context.Context, limit int) ([]*pipeline.AlertRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	const q = `
		SELECT sig_hash, tx_hash, flagged_address, risk_score, severity,
		       explanation, timestamp, status
		FROM alerts
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list alerts: %w", err)
	}
	defer rows.Close()

	var out []*pipeline.AlertRecord
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan alert: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Statistics(ctx context.Context) (*Statistics, error) {
	const q = `
		SELECT
			(SELECT COUNT(*) FROM transactions),
			(SELECT COUNT(*) FROM transactions WHERE label = $1),
			(SELECT COUNT(*) FROM alerts WHERE status = $2)`

	stats := &Statistics{}
	err := s.db.QueryRowContext(ctx, q, oracle.LabelSuspicious, pipeline.AlertStatusActive).
		Scan(&stats.TotalTx, &stats.FraudDetected, &stats.ActiveAlerts)
	if err != nil {
		return nil, fmt.Errorf("store: statistics: %w", err)
	}
	stats.Accuracy = ComputeAccuracy(stats.TotalTx, stats.FraudDetected)
	return stats, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*pipeline.AlertRecord, error) {
	rec := &pipeline.AlertRecord{}
	var severity int
	var explanation []byte
	if err := row.Scan(
		&rec.SigHash, &rec.TxHash, &rec.FlaggedAddress, &rec.RiskScore,
		&severity, &explanation, &rec.Timestamp, &rec.Status,
	); err != nil {
		return nil, err
	}
	rec.Severity = pipeline.Severity(severity)
	if len(explanation) > 0 {
		if err := json.Unmarshal(explanation, &rec.Explanation); err != nil {
			return nil, err
		}
	}
	return rec, nil
}
