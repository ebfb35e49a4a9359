package errors

import (
	"errors"
	"fmt"
)

// Normalized error taxonomy for the client. Callers classify with
// errors.Is; every authentication-class error below means the session
// has already been cleared by the time the caller observes it.
var (
	// Session errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrSessionExpired   = errors.New("session expired")

	// Credential errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRefreshInvalid     = errors.New("refresh token rejected")

	// Transport errors
	ErrUnreachable = errors.New("authority unreachable")

	// Protocol errors
	ErrProtocol = errors.New("unexpected response shape")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
