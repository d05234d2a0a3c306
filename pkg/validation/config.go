package validation

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// FieldError is one failed rule of a config
type FieldError struct {
	Config string
	Field  string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	return e.Config + "." + e.Field + ": " + e.Reason
}

func (e *FieldError) Unwrap() error { return e.Err }

// Errors holds every failed rule of one Validate call
type Errors []*FieldError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, "; ")
}

// Fields returns the names of the failed fields in rule order
func (e Errors) Fields() []string {
	fields := make([]string, len(e))
	for i, fe := range e {
		fields[i] = fe.Field
	}
	return fields
}

// Unwrap exposes the individual field errors to errors.Is and errors.As
func (e Errors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, fe := range e {
		errs[i] = fe
	}
	return errs
}

// ConfigValidator checks config fields fluently and collects every failure
// instead of stopping at the first:
//
//	err := validation.NewConfigValidator("server").
//		ListenAddress("listen_addr", c.ListenAddr).
//		RangeInt("max_connections", c.MaxConnections, 1, 1<<20).
//		Validate()
type ConfigValidator struct {
	name   string
	errors Errors
}

// NewConfigValidator starts validating the config called name
func NewConfigValidator(name string) *ConfigValidator {
	return &ConfigValidator{name: name}
}

func (cv *ConfigValidator) fail(field string, err error, format string, args ...any) *ConfigValidator {
	cv.errors = append(cv.errors, &FieldError{
		Config: cv.name,
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
		Err:    err,
	})
	return cv
}

// Required rejects an empty string
func (cv *ConfigValidator) Required(field, value string) *ConfigValidator {
	if value == "" {
		return cv.fail(field, nil, "required")
	}
	return cv
}

// RangeInt rejects values outside [min, max]
func (cv *ConfigValidator) RangeInt(field string, value, min, max int) *ConfigValidator {
	if value < min || value > max {
		return cv.fail(field, nil, "%d is outside [%d, %d]", value, min, max)
	}
	return cv
}

// MinDuration rejects durations below min
func (cv *ConfigValidator) MinDuration(field string, value, min time.Duration) *ConfigValidator {
	if value < min {
		return cv.fail(field, nil, "%v is below the minimum %v", value, min)
	}
	return cv
}

// OneOf rejects values not in allowed. Comparison ignores case.
func (cv *ConfigValidator) OneOf(field, value string, allowed ...string) *ConfigValidator {
	if !slices.ContainsFunc(allowed, func(a string) bool { return strings.EqualFold(a, value) }) {
		return cv.fail(field, nil, "%q is not one of %s", value, strings.Join(allowed, ", "))
	}
	return cv
}

// ListenAddress requires host:port with a numeric port. The host may be
// empty to listen on every interface.
func (cv *ConfigValidator) ListenAddress(field, value string) *ConfigValidator {
	_, port, err := net.SplitHostPort(value)
	if err != nil {
		return cv.fail(field, err, "invalid address %q", value)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return cv.fail(field, err, "invalid port %q", port)
	}
	return cv
}

// URLScheme requires a URL with one of schemes
func (cv *ConfigValidator) URLScheme(field, value string, schemes ...string) *ConfigValidator {
	u, err := url.Parse(value)
	if err != nil {
		return cv.fail(field, err, "invalid URL %q", value)
	}
	if !slices.Contains(schemes, u.Scheme) {
		return cv.fail(field, nil, "scheme %q is not one of %s", u.Scheme, strings.Join(schemes, ", "))
	}
	return cv
}

// Identifier requires a C identifier, the form of node and port names that
// end up in generated code
func (cv *ConfigValidator) Identifier(field, value string) *ConfigValidator {
	if err := ValidateIdentifier(value); err != nil {
		return cv.fail(field, err, "%q is not a C identifier", value)
	}
	return cv
}

// Check records the error returned by fn, if any
func (cv *ConfigValidator) Check(field string, fn func() error) *ConfigValidator {
	if err := fn(); err != nil {
		return cv.fail(field, err, "%v", err)
	}
	return cv
}

// When applies validations only if condition holds
func (cv *ConfigValidator) When(condition bool, validations func(*ConfigValidator)) *ConfigValidator {
	if condition {
		validations(cv)
	}
	return cv
}

// Validate returns nil or the collected Errors
func (cv *ConfigValidator) Validate() error {
	if len(cv.errors) == 0 {
		return nil
	}
	return cv.errors
}

// AsErrors extracts the field errors of a Validate result
func AsErrors(err error) (Errors, bool) {
	var errs Errors
	ok := errors.As(err, &errs)
	return errs, ok
}

// DefaultOr returns value unless it is the zero value
func DefaultOr[T comparable](value, def T) T {
	var zero T
	if value == zero {
		return def
	}
	return value
}

// PositiveOr returns value when it is greater than zero and def otherwise
func PositiveOr[T int | int64 | time.Duration](value, def T) T {
	if value <= 0 {
		return def
	}
	return value
}
