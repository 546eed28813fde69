package envelope

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedEnvelope  = errors.New("malformed envelope")
	ErrIncompleteEnvelope = errors.New("incomplete envelope")
	ErrWrongSystem        = errors.New("envelope issued by another system")
	ErrMissingToken       = errors.New("envelope carries no bearer token")
	ErrRecordNotFound     = errors.New("record not found")
	ErrRecordInactive     = errors.New("record or qr code is deactivated")
	ErrTagMismatch        = errors.New("system tag does not match user type")
	ErrIdentityMismatch   = errors.New("full name does not match record")
	ErrTypeMismatch       = errors.New("user type does not match record")
	ErrRoleMismatch       = errors.New("role does not match user type")
)

// ValidationError reports the first failed validation step. Kind is one of the
// package sentinels; Missing is only set for ErrIncompleteEnvelope.
type ValidationError struct {
	Kind    error
	Missing []string
	Err     error
}

func (e *ValidationError) Error() string {
	switch {
	case len(e.Missing) > 0:
		return fmt.Sprintf("%s: missing %s", e.Kind, strings.Join(e.Missing, ", "))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func fail(kind error) *ValidationError {
	return &ValidationError{Kind: kind}
}

var codes = []struct {
	kind error
	code string
}{
	{ErrMalformedEnvelope, "malformed_envelope"},
	{ErrIncompleteEnvelope, "incomplete_envelope"},
	{ErrWrongSystem, "wrong_system"},
	{ErrMissingToken, "missing_token"},
	{ErrRecordNotFound, "record_not_found"},
	{ErrRecordInactive, "record_inactive"},
	{ErrTagMismatch, "tag_mismatch"},
	{ErrIdentityMismatch, "identity_mismatch"},
	{ErrTypeMismatch, "type_mismatch"},
	{ErrRoleMismatch, "role_mismatch"},
}

// Code returns a stable machine readable code for a validation failure, or an
// empty string when err is not one.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return ""
}
