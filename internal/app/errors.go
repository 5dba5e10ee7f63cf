package app

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by the services wraps exactly one of them,
// and the HTTP layer maps each kind to a status code.
var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUpload       = errors.New("upload failed")
)

var (
	ErrUsernameExists = fmt.Errorf("%w: username already exists", ErrConflict)
	ErrEmailExists    = fmt.Errorf("%w: email already exists", ErrConflict)
	ErrUserExists     = fmt.Errorf("%w: user with email or username already exists", ErrConflict)

	ErrUserNotFound    = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrChannelNotFound = fmt.Errorf("%w: channel does not exist", ErrNotFound)

	ErrInvalidCredential   = fmt.Errorf("%w: invalid username or password", ErrUnauthorized)
	ErrWrongPassword       = fmt.Errorf("%w: old password is incorrect", ErrUnauthorized)
	ErrNotAuthenticated    = fmt.Errorf("%w: authentication required", ErrUnauthorized)
	ErrRefreshTokenInvalid = fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
	ErrRefreshTokenExpired = fmt.Errorf("%w: refresh token expired, please log in again", ErrUnauthorized)
	ErrRefreshTokenRevoked = fmt.Errorf("%w: refresh token is expired or used", ErrUnauthorized)

	ErrAvatarRequired = &ValidationError{Message: "avatar file is required", Fields: []string{"avatar"}}
)

// ValidationError lists the request fields that were missing or malformed.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// requireFields takes name/value pairs and reports every name whose value is blank.
func requireFields(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &ValidationError{Message: "all fields are required", Fields: missing}
}
