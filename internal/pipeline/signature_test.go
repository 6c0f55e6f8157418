package pipeline

import (
	"regexp"
	"testing"

	"github.com/chainguardian-io/chainguardian/internal/oracle"
)

func testSignature() FraudSignature {
	return FraudSignature{
		TxHash:         "0xabc123",
		FlaggedAddress: "0xfeed",
		RiskScore:      0.91,
		Timestamp:      "2026-09-01T12:00:00Z",
		ModelVersion:   "v2.1",
		Explanation: oracle.Explanation{
			ModelScores: map[string]float64{"xgboost": 0.93, "isolation_forest": 0.88},
			TopFeatures: []oracle.FeatureWeight{{Feature: "amount", Weight: 0.4}},
		},
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	sig := testSignature()

	first := sig.Derive()
	for i := 0; i < 10; i++ {
		if got := testSignature().Derive(); got != first {
			t.Fatalf("Derive() not deterministic: %s != %s", got, first)
		}
	}
}

func TestDeriveFormat(t *testing.T) {
	hash := testSignature().Derive()

	if !regexp.MustCompile(`^[a-f0-9]{64}$`).MatchString(hash) {
		t.Errorf("Derive() = %q, want lowercase 64-char hex", hash)
	}
}

func TestDeriveSensitiveToEveryField(t *testing.T) {
	base := testSignature().Derive()

	mutations := map[string]func(*FraudSignature){
		"txHash":         func(s *FraudSignature) { s.TxHash = "0xother" },
		"flaggedAddress": func(s *FraudSignature) { s.FlaggedAddress = "0xother" },
		"riskScore":      func(s *FraudSignature) { s.RiskScore = 0.92 },
		"timestamp":      func(s *FraudSignature) { s.Timestamp = "2026-09-01T12:00:01Z" },
		"modelVersion":   func(s *FraudSignature) { s.ModelVersion = "v2.2" },
		"explanation":    func(s *FraudSignature) { s.Explanation.ModelScores["xgboost"] = 0.94 },
	}

	for field, mutate := range mutations {
		sig := testSignature()
		mutate(&sig)
		if sig.Derive() == base {
			t.Errorf("changing %s did not change the derived hash", field)
		}
	}
}

func TestDeriveIgnoresMapInsertionOrder(t *testing.T) {
	a := testSignature()
	a.Explanation.ModelScores = map[string]float64{}
	a.Explanation.ModelScores["xgboost"] = 0.93
	a.Explanation.ModelScores["isolation_forest"] = 0.88

	b := testSignature()
	b.Explanation.ModelScores = map[string]float64{}
	b.Explanation.ModelScores["isolation_forest"] = 0.88
	b.Explanation.ModelScores["xgboost"] = 0.93

	if a.Derive() != b.Derive() {
		t.Error("hash depends on map insertion order")
	}
}
