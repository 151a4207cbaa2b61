// SPDX-License-Identifier: MIT

// Package validate collects field-level configuration errors so a config
// file can be rejected with every problem listed at once.
package validate

import (
	"cmp"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Error is one rejected field.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// ValidationError is the joined result of a failed Validator.
type ValidationError struct {
	errors []Error
}

func (e ValidationError) Error() string {
	msgs := make([]string, len(e.errors))
	for i, fe := range e.errors {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationError) Errors() []Error { return e.errors }

// Unwrap lets errors.As reach individual field errors.
func (e ValidationError) Unwrap() []error {
	out := make([]error, len(e.errors))
	for i, fe := range e.errors {
		out[i] = fe
	}
	return out
}

// Fields returns the rejected field names in the order they were checked.
func (e ValidationError) Fields() []string {
	out := make([]string, len(e.errors))
	for i, fe := range e.errors {
		out[i] = fe.Field
	}
	return out
}

// Validator accumulates errors. The zero value is ready to use.
type Validator struct {
	errors []Error
}

func New() *Validator { return &Validator{} }

func (v *Validator) AddError(field, message string, value any) {
	v.errors = append(v.errors, Error{Field: field, Value: value, Message: message})
}

// require records format as the message for field unless ok holds.
func (v *Validator) require(ok bool, field string, value any, format string, args ...any) {
	if !ok {
		v.AddError(field, fmt.Sprintf(format, args...), value)
	}
}

func (v *Validator) IsValid() bool   { return len(v.errors) == 0 }
func (v *Validator) Errors() []Error { return v.errors }

// Err returns nil or a ValidationError snapshot of the errors so far.
func (v *Validator) Err() error {
	if v.IsValid() {
		return nil
	}
	return ValidationError{errors: slices.Clone(v.errors)}
}

// URL requires an absolute URL with a host and, when schemes is non-empty,
// one of those schemes.
func (v *Validator) URL(field, value string, schemes []string) {
	if value == "" {
		v.AddError(field, "URL cannot be empty", value)
		return
	}
	u, err := url.Parse(value)
	switch {
	case err != nil:
		v.AddError(field, fmt.Sprintf("invalid URL: %v", err), value)
	case u.Host == "":
		v.AddError(field, "URL must have a host", value)
	case len(schemes) > 0 && !slices.Contains(schemes, u.Scheme):
		v.AddError(field, fmt.Sprintf("unsupported URL scheme %q (allowed: %v)", u.Scheme, schemes), value)
	}
}

// ListenAddr accepts host:port with a numeric port in 1..65535. Empty
// means the listener is off and passes.
func (v *Validator) ListenAddr(field, addr string) {
	if addr == "" {
		return
	}
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid listen address: %v", err), addr)
		return
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid port %q", p), addr)
		return
	}
	v.require(port > 0 && port <= 65535, field, addr, "port must be between 1 and 65535, got %d", port)
}

func (v *Validator) NotEmpty(field, value string) {
	v.require(strings.TrimSpace(value) != "", field, value, "value cannot be empty")
}

func (v *Validator) OneOf(field, value string, allowed []string) {
	v.require(slices.Contains(allowed, value), field, value, "value must be one of %v, got %q", allowed, value)
}

// Range is inclusive on both ends.
func (v *Validator) Range(field string, value, lo, hi int) {
	inRange(v, field, value, lo, hi)
}

func (v *Validator) Positive(field string, n int) {
	v.require(n > 0, field, n, "value must be positive, got %d", n)
}

func (v *Validator) NonNegative(field string, n int) {
	v.require(n >= 0, field, n, "value cannot be negative, got %d", n)
}

func (v *Validator) PositiveFloat(field string, f float64) {
	v.require(f > 0, field, f, "value must be positive, got %g", f)
}

// Fraction accepts [0, 1].
func (v *Validator) Fraction(field string, f float64) {
	inRange(v, field, f, 0, 1)
}

func (v *Validator) DurationAtLeast(field string, d, floor time.Duration) {
	v.require(d >= floor, field, d, "duration must be at least %s, got %s", floor, d)
}

func inRange[T cmp.Ordered](v *Validator, field string, x, lo, hi T) {
	v.require(x >= lo && x <= hi, field, x, "value must be between %v and %v, got %v", lo, hi, x)
}
