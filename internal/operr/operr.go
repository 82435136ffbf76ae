// Package operr defines the unified error taxonomy for device operations.
//
// Every failure that crosses the pipeline boundary is expressed as an *Error
// with a stable Kind. Adapter-level failures are wrapped at the adapter
// boundary so callers never handle vendor-specific errors directly.
//
// Kinds carry recoverability metadata consumed by the retry handler:
//
//	if operr.IsRecoverable(err) {
//	    // wait and retry
//	}
package operr

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies a stable category of device-operation failure.
type Kind string

// Authentication failures.
const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindTokenExpired       Kind = "token_expired"
	KindTokenRefreshFailed Kind = "token_refresh_failed"
	KindUnauthorized       Kind = "unauthorized"
)

// Device failures.
const (
	KindDeviceNotFound     Kind = "device_not_found"
	KindDeviceOffline      Kind = "device_offline"
	KindDeviceBusy         Kind = "device_busy"
	KindUnsupportedCommand Kind = "unsupported_command"
	KindUserNotFound       Kind = "user_not_found"
)

// Rate failures.
const (
	KindRateLimited Kind = "rate_limit_exceeded"
)

// Protocol and network failures.
const (
	KindTimeout         Kind = "timeout"
	KindInvalidResponse Kind = "invalid_response"
	KindNetwork         Kind = "network_error"
)

// kindMeta holds the fixed metadata for each kind.
type kindMeta struct {
	description string
	suggestion  string
	recoverable bool
	retryDelay  time.Duration
}

// kinds is the single source of truth for per-kind metadata.
// Retry delays are hints consumed by the retry handler as base-delay
// overrides for that specific failure.
var kinds = map[Kind]kindMeta{
	KindInvalidCredentials: {
		description: "the vendor rejected the supplied credentials",
		suggestion:  "re-link the vendor account from the integrations screen",
	},
	KindTokenExpired: {
		description: "the vendor access token has expired",
		suggestion:  "a token refresh is in progress; retry shortly",
		recoverable: true,
		retryDelay:  1 * time.Second,
	},
	KindTokenRefreshFailed: {
		description: "refreshing the vendor access token failed",
		suggestion:  "re-link the vendor account from the integrations screen",
	},
	KindUnauthorized: {
		description: "the user is not permitted to perform this operation",
		suggestion:  "contact the property manager to request access",
	},
	KindDeviceNotFound: {
		description: "the device does not exist",
		suggestion:  "refresh the device list and try again",
	},
	KindDeviceOffline: {
		description: "the device is offline",
		suggestion:  "check the device's power and network connection",
	},
	KindDeviceBusy: {
		description: "the device is busy processing another command",
		suggestion:  "wait a few seconds and try again",
		recoverable: true,
		retryDelay:  5 * time.Second,
	},
	KindUnsupportedCommand: {
		description: "the device does not support this command",
		suggestion:  "check the device's capabilities",
	},
	KindUserNotFound: {
		description: "the acting user does not exist",
		suggestion:  "sign in again",
	},
	KindRateLimited: {
		description: "too many commands for this device in a short period",
		suggestion:  "wait a minute before sending further commands",
		recoverable: true,
		retryDelay:  60 * time.Second,
	},
	KindTimeout: {
		description: "the vendor did not respond in time",
		suggestion:  "the command may still complete; check the device state",
		recoverable: true,
		retryDelay:  2 * time.Second,
	},
	KindInvalidResponse: {
		description: "the vendor returned an unparseable response",
		suggestion:  "try again; report the problem if it persists",
	},
	KindNetwork: {
		description: "a network error occurred talking to the vendor",
		suggestion:  "check the internet connection and try again",
	},
}

// Error is the unified device-operation error.
type Error struct {
	Kind    Kind
	Vendor  string // originating vendor, empty for pipeline-level failures
	Message string // optional context beyond the kind's description
	Err     error  // wrapped cause, may be nil
}

// E constructs an Error of the given kind. The optional message adds
// operation-specific context; the cause may be nil.
func E(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Vendor constructs an Error attributed to a specific vendor platform.
func Vendor(vendor string, kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Vendor: vendor, Message: message, Err: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	desc := e.Description()
	switch {
	case e.Vendor != "" && e.Message != "":
		return fmt.Sprintf("%s: %s: %s", e.Vendor, desc, e.Message)
	case e.Vendor != "":
		return fmt.Sprintf("%s: %s", e.Vendor, desc)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", desc, e.Message)
	default:
		return desc
	}
}

// Unwrap returns the wrapped cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Description returns the human-readable description for the error's kind.
func (e *Error) Description() string {
	if m, ok := kinds[e.Kind]; ok {
		return m.description
	}
	return string(e.Kind)
}

// Suggestion returns the recovery suggestion for the error's kind.
func (e *Error) Suggestion() string {
	return kinds[e.Kind].suggestion
}

// Recoverable reports whether a retry after a delay has a reasonable
// chance of success.
func (e *Error) Recoverable() bool {
	return kinds[e.Kind].recoverable
}

// RetryDelay returns the kind's fixed retry-delay hint, or zero if the
// kind has none.
func (e *Error) RetryDelay() time.Duration {
	return kinds[e.Kind].retryDelay
}

// KindOf extracts the Kind from an error chain. Returns the empty Kind
// if the chain contains no *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether the error chain contains an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRecoverable reports whether the error chain contains a recoverable
// *Error. Errors outside the taxonomy are treated as non-recoverable so
// unknown failures are never blindly retried.
func IsRecoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable()
	}
	return false
}

// RetryDelayOf returns the retry-delay hint from the error chain, or zero
// if none applies.
func RetryDelayOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryDelay()
	}
	return 0
}
