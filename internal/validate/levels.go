// SPDX-License-Identifier: MIT

package validate

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ErrInvalidLogLevel is wrapped by ParseLogLevel failures.
var ErrInvalidLogLevel = Error{
	Field:   "logLevel",
	Message: "invalid log level (must be: trace, debug, info, warn, error)",
}

// ParseLogLevel accepts the zerolog level names a daemon may run at.
// Levels that silence errors (fatal, panic, disabled) are rejected.
func ParseLogLevel(s string) (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" || lvl > zerolog.ErrorLevel {
		return zerolog.NoLevel, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
	}
	return lvl, nil
}

// LogLevel validates a log level name.
func (v *Validator) LogLevel(field, value string) {
	if _, err := ParseLogLevel(value); err != nil {
		v.AddError(field, ErrInvalidLogLevel.Message, value)
	}
}
