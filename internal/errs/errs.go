package errs

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is a machine-readable error identifier: domain.operation.reason.
type Code string

const (
	CodeConfigLoadFailure    Code = "config.load.failure"
	CodeConfigInvalidValue   Code = "config.validate.invalid_value"
	CodeStoreDatabaseFailure Code = "store.database.failure"
	CodeObservationInvalid   Code = "store.observation.invalid"
	CodeRequestInvalid       Code = "request.params.invalid"
	CodeProviderCallFailure  Code = "provider.call.failure"
)

func New(code Code, msg string, kv ...any) error {
	return oops.Code(code).With(kv...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

// Wrap tags err with code and leaves its message untouched.
func Wrap(err error, code Code) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).Wrap(err)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).Wrapf(err, format, args...)
}

// CodeOf returns the code attached to err, or "" for plain errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch c := oopsErr.Code().(type) {
	case Code:
		return c
	case string:
		return Code(c)
	default:
		return Code(fmt.Sprintf("%v", c))
	}
}

func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_value"
}

// HTTPStatus maps err to the status code the API should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsInvalidInput(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func reason(code Code) string {
	raw := string(code)
	if i := strings.LastIndex(raw, "."); i >= 0 {
		return raw[i+1:]
	}
	return raw
}
