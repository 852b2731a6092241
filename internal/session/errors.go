package session

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError blocks a step transition until the assessor corrects
// input. It involves no store I/O and is fully recoverable.
type ValidationError struct {
	Op     string
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: validation failed", e.Op)
	}
	return fmt.Sprintf("%s: missing required fields: %s", e.Op, strings.Join(e.Fields, ", "))
}

// IsValidation reports whether err is a validation failure rather than a
// persistence one.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
