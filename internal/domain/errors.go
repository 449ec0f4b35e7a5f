package domain

import (
	"errors"
	"fmt"
)

// ErrSessionMissing is a local precondition failure: no token is held, so no
// request was sent.
var ErrSessionMissing = errors.New("no authentication token found")

// ValidationError means the payload was rejected, either locally or by the server.
type ValidationError struct {
	Status  int
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// AuthError means the credentials or the bearer token were refused.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "authentication failed"
	}
	return "authentication failed: " + e.Message
}

// NetworkError covers transport failures, timeouts and unusable responses.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network failure: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

func IsValidation(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

func IsNetwork(err error) bool {
	var networkErr *NetworkError
	return errors.As(err, &networkErr)
}
