// Package oracle defines the risk-assessment collaborator for the intake
// pipeline: given a normalized transaction context it produces a fraud
// likelihood score, a categorical label, and an explanation payload.
//
// Two implementations exist: an HTTP client for an external model service
// and an embedded heuristic engine for deployments without one. The
// orchestrator treats any Predict error as "oracle unavailable" and falls
// back to a fixed safe assessment.
package oracle

import "context"

// Labels produced by the oracle.
const (
	LabelNormal     = "normal"
	LabelSuspicious = "suspicious"
)

// TransactionContext carries the normalized transaction data an oracle
// scores. All fields are populated by the orchestrator before Predict.
type TransactionContext struct {
	TxHash    string  `json:"txHash"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Amount    float64 `json:"amount"`
	Timestamp string  `json:"timestamp"`
	GasPrice  float64 `json:"gas_price"`
	GasUsed   int64   `json:"gas_used"`
}

// FeatureWeight is one entry of an explanation's top contributing features.
type FeatureWeight struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// Explanation is the oracle's reasoning payload. Field order matters for
// the canonical fraud-signature encoding: keys stay lexicographic.
type Explanation struct {
	ModelScores map[string]float64 `json:"model_scores"`
	TopFeatures []FeatureWeight    `json:"top_features"`
}

// EmptyExplanation returns an explanation with no content, used by the
// fallback assessment.
func EmptyExplanation() Explanation {
	return Explanation{
		ModelScores: map[string]float64{},
		TopFeatures: []FeatureWeight{},
	}
}

// Assessment is the oracle's verdict on a single transaction.
type Assessment struct {
	RiskScore    float64     `json:"risk_score"`
	Label        string      `json:"label"`
	Explanation  Explanation `json:"explanation"`
	ModelVersion string      `json:"model_version"`
	ModelHash    string      `json:"model_hash"`
}

// Oracle scores transactions. Predict blocks until the oracle answers or
// the context is canceled; callers decide how to degrade on error.
type Oracle interface {
	Predict(ctx context.Context, tx *TransactionContext) (*Assessment, error)
	Status(ctx context.Context) (map[string]interface{}, error)
}

// Fallback is the fixed assessment substituted when the oracle is
// unavailable: pipeline availability takes precedence over ML detection.
func Fallback() *Assessment {
	return &Assessment{
		RiskScore:    0.1,
		Label:        LabelNormal,
		Explanation:  EmptyExplanation(),
		ModelVersion: "N/A",
		ModelHash:    "N/A",
	}
}
