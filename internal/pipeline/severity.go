package pipeline

// Severity is the ordinal tier of a fraud finding.
type Severity int

const (
	SeverityNone     Severity = 0 // non-suspicious records never reach the classifier
	SeverityElevated Severity = 1
	SeverityHigh     Severity = 2
)

// HighRiskThreshold is the risk score at which a suspicious finding is
// classified high severity.
const HighRiskThreshold = 0.8

// String returns the tier name for logs and metrics labels.
func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "high"
	case SeverityElevated:
		return "elevated"
	default:
		return "none"
	}
}

// ClassifySeverity maps a risk score to a severity tier. Pure and total
// over [0,1]; only called for records already labeled suspicious.
func ClassifySeverity(riskScore float64) Severity {
	if riskScore >= HighRiskThreshold {
		return SeverityHigh
	}
	return SeverityElevated
}
