package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/chainguardian-io/chainguardian/internal/oracle"
)

// FraudSignature is the canonical tuple describing a fraud finding. It is
// never persisted directly; its hash is the system's idempotency anchor,
// letting the database and the ledger agree on "the same alert" without a
// shared sequence counter.
type FraudSignature struct {
	TxHash         string
	FlaggedAddress string
	RiskScore      float64
	Timestamp      string
	ModelVersion   string
	Explanation    oracle.Explanation
}

// Derive canonicalizes the signature tuple and returns the lowercase hex
// SHA-256 digest. Object keys are serialized in lexicographic order
// (encoding/json sorts map keys) and float encoding is the shortest
// round-trip form, so logically identical inputs produce byte-identical
// canonical forms across processes and restarts.
//
// All fields must be populated by the caller; a missing field is a
// contract violation upstream, not a runtime condition handled here.
func (s FraudSignature) Derive() string {
	canonical, err := json.Marshal(map[string]interface{}{
		"txHash":         s.TxHash,
		"flaggedAddress": s.FlaggedAddress,
		"riskScore":      s.RiskScore,
		"timestamp":      s.Timestamp,
		"modelVersion":   s.ModelVersion,
		"explanation":    s.Explanation,
	})
	if err != nil {
		// Only reachable with non-serializable values, which the tuple
		// cannot carry.
		panic("pipeline: canonicalize fraud signature: " + err.Error())
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
