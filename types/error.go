package types

import (
	"github.com/juju/errors"
)

var (
	_ error = &ValidateFailedError{}
	_ error = &ExecuteFailedError{}
	_ error = &BusinessError{}
	_ error = &NodeError{}
)

func NewValidateFailedf(format string, args ...interface{}) error {
	return &ValidateFailedError{baseError: newBaseErr(errors.Errorf(format, args...))}
}

func NewExecuteFailed(otherErr error) error {
	return &ExecuteFailedError{baseError: newBaseErr(otherErr)}
}

func NewExecuteFailedf(format string, args ...interface{}) error {
	return NewExecuteFailed(errors.Errorf(format, args...))
}

func NewBusinessError(code string, otherErr error) error {
	return &BusinessError{baseError: newBaseErr(otherErr), Code: code}
}

func newBaseErr(otherErr error) *baseError {
	return &baseError{unwrapErr(otherErr)}
}

func unwrapErr(err error) error {
	if err == nil {
		return nil
	}
	if ue, ok := err.(wrappedErr); ok {
		return unwrapErr(ue.UnwrapLocal())
	}
	return err
}

type wrappedErr interface {
	UnwrapLocal() error
}

type baseError struct {
	BaseErr error
}

func (e *baseError) Error() string {
	return e.BaseErr.Error()
}

func (e *baseError) UnwrapLocal() error {
	return e.BaseErr
}

// ValidateFailedError aborts a build before any side effect.
type ValidateFailedError struct {
	*baseError
}

func (e *ValidateFailedError) Error() string {
	return "validate failed: " + e.baseError.Error()
}

// ExecuteFailedError fails a run that already started.
type ExecuteFailedError struct {
	*baseError
}

func (e *ExecuteFailedError) Error() string {
	return "execute failed: " + e.baseError.Error()
}

// BusinessError carries a node's own error code to the caller.
type BusinessError struct {
	*baseError
	Code string
}

// NodeError is returned by node runners to describe how the failure should
// be treated. Any other error is a recorded failure that does not abort.
type NodeError struct {
	*baseError
	Code         string
	Throw        bool
	Unauthorized bool
}

func NewNodeErrorf(code string, format string, args ...interface{}) *NodeError {
	return &NodeError{baseError: newBaseErr(errors.Errorf(format, args...)), Code: code}
}

func NewUnauthorizedNodeError(code string, format string, args ...interface{}) *NodeError {
	e := NewNodeErrorf(code, format, args...)
	e.Throw = true
	e.Unauthorized = true
	return e
}

// Fatal makes the node failure abort the whole run.
func (e *NodeError) Fatal() *NodeError {
	e.Throw = true
	return e
}

func findErr[T error](err error) (T, bool) {
	var target T
	if errors.As(err, &target) {
		return target, true
	}
	target, ok := errors.Cause(err).(T)
	return target, ok
}

func IsValidateFailed(err error) bool {
	_, ok := findErr[*ValidateFailedError](err)
	return ok
}

func IsExecuteFailed(err error) bool {
	_, ok := findErr[*ExecuteFailedError](err)
	return ok
}

func AsBusinessError(err error) (*BusinessError, bool) {
	return findErr[*BusinessError](err)
}

func AsNodeError(err error) (*NodeError, bool) {
	return findErr[*NodeError](err)
}
