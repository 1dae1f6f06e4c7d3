package cyberark

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	authErrorTemplateConstant                 = "cyberark authentication failed: %s"
	credentialResolutionErrorTemplateConstant = "cyberark service credential resolution failed: %s"
	operationErrorTemplateConstant            = "%s operation failed: %s"
	unexpectedStatusTemplateConstant          = "unexpected HTTP status %d %s"
	unexpectedStatusWithBodyTemplateConstant  = "unexpected HTTP status %d %s: %s"
	responseDecodingErrorTemplateConstant     = "%s response decoding failed: %s"
	invalidInputErrorTemplateConstant         = "%s: %s"
	emptySessionTokenMessageConstant          = "logon response did not contain a session token"
	credentialNotFoundMessageConstant         = "no account matched the application, safe and object filter"
)

// OperationName identifies a vault API workflow.
type OperationName string

var (
	errEmptySessionToken  = errors.New(emptySessionTokenMessageConstant)
	errCredentialNotFound = errors.New(credentialNotFoundMessageConstant)
)

// AuthError reports a failed logon for the migration session.
type AuthError struct {
	Cause error
}

// Error describes the authentication failure.
func (authError AuthError) Error() string {
	return fmt.Sprintf(authErrorTemplateConstant, authError.Cause)
}

// Unwrap exposes the underlying cause.
func (authError AuthError) Unwrap() error {
	return authError.Cause
}

// CredentialResolutionError reports a failure to look up the service account password.
type CredentialResolutionError struct {
	Cause error
}

// Error describes the resolution failure.
func (resolutionError CredentialResolutionError) Error() string {
	return fmt.Sprintf(credentialResolutionErrorTemplateConstant, resolutionError.Cause)
}

// Unwrap exposes the underlying cause.
func (resolutionError CredentialResolutionError) Unwrap() error {
	return resolutionError.Cause
}

// OperationError wraps transport or status failures of a vault operation.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the operation failure.
func (operationError OperationError) Error() string {
	return fmt.Sprintf(operationErrorTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// UnexpectedStatusError reports a non-2xx response.
type UnexpectedStatusError struct {
	StatusCode int
	Body       string
}

// Error describes the status failure.
func (statusError UnexpectedStatusError) Error() string {
	statusText := http.StatusText(statusError.StatusCode)
	if len(statusError.Body) == 0 {
		return fmt.Sprintf(unexpectedStatusTemplateConstant, statusError.StatusCode, statusText)
	}
	return fmt.Sprintf(unexpectedStatusWithBodyTemplateConstant, statusError.StatusCode, statusText, statusError.Body)
}

// ResponseDecodingError indicates a response body could not be interpreted.
type ResponseDecodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the decoding failure.
func (decodingError ResponseDecodingError) Error() string {
	return fmt.Sprintf(responseDecodingErrorTemplateConstant, decodingError.Operation, decodingError.Cause)
}

// Unwrap exposes the underlying error.
func (decodingError ResponseDecodingError) Unwrap() error {
	return decodingError.Cause
}

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}
