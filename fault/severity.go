package fault

import (
	"errors"
	"strings"
)

// Severity describes how alarming a fault sounds. It shapes the user-facing
// message and never gates recovery eligibility.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// String returns the severity name.
func (s Severity) String() string {
	return string(s)
}

// Rank orders severities from 0 (low) to 3 (critical).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

var (
	criticalKinds    = []string{"security", "fatal", "panic"}
	criticalKeywords = []string{"critical", "fatal", "panic", "corrupt", "out of memory"}
	highKinds        = []string{"runtime", "typeerror", "referenceerror", "assertion"}
	highKeywords     = []string{"nil pointer", "invalid memory address", "index out of range", "unexpected"}
	mediumKeywords   = []string{"warning", "deprecated", "retry", "temporar", "timeout"}
)

// SeverityOf derives a severity from the fault's kind and message.
// It is total: nil and unmatched errors report SeverityLow.
func SeverityOf(err error) Severity {
	if IsNil(err) {
		return SeverityLow
	}

	var fe *Error
	if errors.As(err, &fe) && fe.Severity != "" {
		return fe.Severity
	}

	kind := strings.ToLower(Kind(err))
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(kind, criticalKinds) || containsAny(msg, criticalKeywords):
		return SeverityCritical
	case containsAny(kind, highKinds) || containsAny(msg, highKeywords):
		return SeverityHigh
	case containsAny(msg, mediumKeywords):
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
