package pipeline

import "testing"

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		score float64
		want  Severity
	}{
		{0.0, SeverityElevated},
		{0.5, SeverityElevated},
		{0.79, SeverityElevated},
		{0.7999999, SeverityElevated},
		{0.8, SeverityHigh},
		{0.81, SeverityHigh},
		{1.0, SeverityHigh},
	}

	for _, tt := range tests {
		if got := ClassifySeverity(tt.score); got != tt.want {
			t.Errorf("ClassifySeverity(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestSeverityString(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityNone, "none"},
		{SeverityElevated, "elevated"},
		{SeverityHigh, "high"},
	}

	for _, tt := range tests {
		if got := tt.severity.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %q, want %q", tt.severity, got, tt.want)
		}
	}
}
