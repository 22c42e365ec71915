/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct. Reason is the token sent
to chat clients in ERROR frames; Message is the human-readable description used by logs and the
HTTP API.
*/
package errs

import "net/http"

var errorMap = map[int]CustomError{
	// 1xxx: Protocol Errors
	ErrUnknownCommand:      {Code: ErrUnknownCommand, Reason: "UnknownCmd", Message: "Unknown command."},
	ErrMalformedCommand:    {Code: ErrMalformedCommand, Reason: "BadCommand", Message: "Malformed %s command."},
	ErrBadPrivateMessage:   {Code: ErrBadPrivateMessage, Reason: "BadPM", Message: "Private messages need a target and a body."},
	ErrNotLoggedIn:         {Code: ErrNotLoggedIn, Reason: "NotLoggedIn", Message: "Log in before chatting."},
	ErrAlreadyLoggedIn:     {Code: ErrAlreadyLoggedIn, Reason: "AlreadyLoggedIn", Message: "This connection is already signed in."},
	ErrInvalidRegistration: {Code: ErrInvalidRegistration, Reason: "InvalidRegistration", Message: "Invalid registration details."},
	ErrInvalidName:         {Code: ErrInvalidName, Reason: "InvalidName", Message: "That name cannot be used."},

	// 2xxx: Authentication Errors
	ErrUserExists:          {Code: ErrUserExists, Reason: "UserExists", Message: "Username is already taken."},
	ErrEmailNotFound:       {Code: ErrEmailNotFound, Reason: "EmailNotFound", Message: "No account uses that email."},
	ErrInvalidOTP:          {Code: ErrInvalidOTP, Reason: "InvalidOTP", Message: "Verification code is incorrect."},
	ErrOTPExpired:          {Code: ErrOTPExpired, Reason: "OTPExpired", Message: "Verification code expired. Request a new one."},
	ErrOTPAttemptsExceeded: {Code: ErrOTPAttemptsExceeded, Reason: "OTPAttemptsExceeded", Message: "Too many wrong codes. Request a new one."},
	ErrNoPendingOTP:        {Code: ErrNoPendingOTP, Reason: "NoPendingOTP", Message: "No verification is pending."},
	ErrAlreadyOnline:       {Code: ErrAlreadyOnline, Reason: "AlreadyOnline", Message: "This account is already signed in elsewhere."},
	ErrGuestsDisabled:      {Code: ErrGuestsDisabled, Reason: "GuestsDisabled", Message: "Guest access is disabled."},

	// 3xxx: Rate Limiting Errors
	ErrRateLimited: {Code: ErrRateLimited, Reason: "RateLimited", Message: "Too many connections. Please slow down.", Status: http.StatusTooManyRequests},

	// 5xxx: Internal System Errors
	ErrUnknown:     {Code: ErrUnknown, Reason: "InternalError", Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrStoreFailed: {Code: ErrStoreFailed, Reason: "StoreError", Message: "Storage is unavailable. Please try again.", Status: http.StatusServiceUnavailable},
}
