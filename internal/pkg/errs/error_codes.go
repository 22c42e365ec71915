/*
Package errs provides custom error types and application-level error code constants.

These error codes identify protocol, authentication, and system failures both internally
within the server and on the wire, where each code is rendered as a single reason token.
*/
package errs

// 1xxx: Protocol Errors
const (
	// ErrUnknownCommand indicates that the client sent a command keyword the server does not recognize.
	ErrUnknownCommand = 1001

	// ErrMalformedCommand indicates that a known command arrived with the wrong number of arguments.
	ErrMalformedCommand = 1002

	// ErrBadPrivateMessage indicates a PM without a target or without a body.
	ErrBadPrivateMessage = 1003

	// ErrNotLoggedIn indicates a chat command sent before the session joined.
	ErrNotLoggedIn = 1004

	// ErrAlreadyLoggedIn indicates an authentication command sent after the session joined.
	ErrAlreadyLoggedIn = 1005

	// ErrInvalidRegistration indicates that REGISTER arguments failed validation.
	ErrInvalidRegistration = 1006

	// ErrInvalidName indicates that a guest name contains reserved words or separators.
	ErrInvalidName = 1007
)

// 2xxx: Authentication Errors
const (
	// ErrUserExists indicates that the requested username is already registered.
	ErrUserExists = 2001

	// ErrEmailNotFound indicates that no account is registered under the requested email.
	ErrEmailNotFound = 2002

	// ErrInvalidOTP indicates that the supplied one-time code does not match.
	ErrInvalidOTP = 2003

	// ErrOTPExpired indicates that the pending one-time code outlived its validity window.
	ErrOTPExpired = 2004

	// ErrOTPAttemptsExceeded indicates too many wrong codes; the pending flow was discarded.
	ErrOTPAttemptsExceeded = 2005

	// ErrNoPendingOTP indicates a verification request with no matching pending flow.
	ErrNoPendingOTP = 2006

	// ErrAlreadyOnline indicates that another connection is already joined under this account.
	ErrAlreadyOnline = 2007

	// ErrGuestsDisabled indicates a legacy CONNECT while guest joins are turned off.
	ErrGuestsDisabled = 2008
)

// 3xxx: Rate Limiting Errors
const (
	// ErrRateLimited indicates that the client address opened connections faster than allowed.
	ErrRateLimited = 3001
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrStoreFailed indicates that the persistence store rejected or failed a request.
	ErrStoreFailed = 5001
)
