package parameter

import (
	"fmt"

	oaerrors "github.com/go-openapi/errors"
	"github.com/pkg/errors"
)

// InvalidValue is returned when an assignment fails validation
type InvalidValue struct {
	Key     string
	Value   string
	Allowed string

	cause *oaerrors.Validation
}

func newInvalidValue(key, value, allowed string, cause *oaerrors.Validation) *InvalidValue {
	return &InvalidValue{Key: key, Value: value, Allowed: allowed, cause: cause}
}

func (e *InvalidValue) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: allowed %s but was %q (%s)", e.Key, e.Allowed, e.Value, e.cause.Error())
	}
	return fmt.Sprintf("%s: allowed %s but was %q", e.Key, e.Allowed, e.Value)
}

func (e *InvalidValue) Unwrap() error {
	if e.cause == nil {
		return nil
	}
	return e.cause
}

// IsInvalidValue reports whether err is, or wraps, an *InvalidValue
func IsInvalidValue(err error) bool {
	var iv *InvalidValue
	return errors.As(err, &iv)
}
