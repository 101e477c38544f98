package errors

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrConnectivity   = errors.New("connectivity failed")
	ErrExternalTool   = errors.New("external tool failed")
	ErrDataDependency = errors.New("data dependency unmet")
)

// ProvisionError carries the failure taxonomy alongside the step that
// produced it. The Type field is one of the sentinel errors above so callers
// can classify with errors.Is.
type ProvisionError struct {
	Type        error
	Step        string
	Cause       string
	Suggestion  string
	OriginalErr error
}

func (e *ProvisionError) Error() string {
	if e.OriginalErr != nil {
		return e.OriginalErr.Error()
	}
	return e.Cause
}

func (e *ProvisionError) Unwrap() error {
	if e.OriginalErr != nil {
		return e.OriginalErr
	}
	return e.Type
}

// Is lets errors.Is match a ProvisionError against its taxonomy sentinel.
func (e *ProvisionError) Is(target error) bool {
	return errors.Is(e.Type, target)
}

func New(errorType error, step, cause, suggestion string, originalErr error) *ProvisionError {
	return &ProvisionError{
		Type:        errorType,
		Step:        step,
		Cause:       cause,
		Suggestion:  suggestion,
		OriginalErr: originalErr,
	}
}

func NewValidationError(step, cause, suggestion string, originalErr error) *ProvisionError {
	return New(ErrValidation, step, cause, suggestion, originalErr)
}

func NewConnectivityError(step, cause, suggestion string, originalErr error) *ProvisionError {
	return New(ErrConnectivity, step, cause, suggestion, originalErr)
}

func NewExternalToolError(step, cause, suggestion string, originalErr error) *ProvisionError {
	return New(ErrExternalTool, step, cause, suggestion, originalErr)
}

func NewDataDependencyError(step, cause, suggestion string, originalErr error) *ProvisionError {
	return New(ErrDataDependency, step, cause, suggestion, originalErr)
}
