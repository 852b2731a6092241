package model

import "strings"

const (
	// DecisionOther is the free-text outcome marker used for new writes.
	DecisionOther = "Other"
	// legacyOther is the prefix older builds stored for the same outcome.
	// It must keep decoding indefinitely for previously persisted records.
	legacyOther = "Dangerous - Other"
)

// ParseDecision splits a stored decision string into its base outcome and
// the free-text qualifier attached to an Other outcome. Non-Other decisions
// come back verbatim with an empty qualifier.
func ParseDecision(stored string) (base, other string) {
	if stored == "" {
		return "", ""
	}
	if strings.HasPrefix(stored, DecisionOther) || strings.HasPrefix(stored, legacyOther) {
		prefix := DecisionOther
		if !strings.HasPrefix(stored, DecisionOther) {
			prefix = legacyOther
		}
		rest := strings.TrimSpace(stored[len(prefix):])
		if strings.HasPrefix(rest, "-") {
			rest = strings.TrimSpace(rest[1:])
		}
		if strings.HasPrefix(rest, ":") {
			rest = strings.TrimSpace(rest[1:])
		}
		return DecisionOther, rest
	}
	return stored, ""
}

// BuildDecision composes the stored decision string. The qualifier only
// survives for the Other outcome; everything else stores the base alone.
func BuildDecision(base, other string) string {
	if base != DecisionOther {
		return base
	}
	trimmed := strings.TrimSpace(other)
	if trimmed == "" {
		return base
	}
	return DecisionOther + " - " + trimmed
}
