package errors

import (
	"fmt"
	"time"
)

// NavigationTimeout creates an error for a frame navigation that did not
// complete within the configured bound.
func NavigationTimeout(url string) TransportError {
	return NewError(
		CodeNavigationTimeout,
		fmt.Sprintf("Navigation to %s did not complete in time", url),
		CategoryTimeout,
		SeverityError,
	)
}

// NavigationFailed creates an error for a frame load failure.
func NavigationFailed(url string, cause error) TransportError {
	message := fmt.Sprintf("Navigation to %s failed", url)
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}
	return WrapError(cause, CodeNavigationFailed, message, CategoryTransport, SeverityError)
}

// HandshakeTimeout creates an error for a handshake that received no reply
// within the configured bound.
func HandshakeTimeout(sessionID string, timeout time.Duration) TransportError {
	return NewError(
		CodeHandshakeTimeout,
		fmt.Sprintf("Handshake did not complete within %v", timeout),
		CategoryTimeout,
		SeverityError,
	).WithContext(&Context{
		SessionID: sessionID,
		Operation: "handshake",
	})
}

// VersionIncompatible creates an error for disjoint version ranges.
func VersionIncompatible(clientMin, clientMax, serverMin, serverMax string) TransportError {
	return NewError(
		CodeVersionIncompatible,
		fmt.Sprintf("No mutually acceptable protocol version: client [%s, %s], server [%s, %s]",
			clientMin, clientMax, serverMin, serverMax),
		CategoryProtocol,
		SeverityError,
	)
}

// OriginRejected creates an error for a message arriving from an origin
// outside the allow-list.
func OriginRejected(origin string) TransportError {
	return NewError(
		CodeOriginRejected,
		fmt.Sprintf("Message origin %q is not trusted", origin),
		CategorySecurity,
		SeverityWarning,
	).WithContext(&Context{
		Origin: origin,
	})
}

// MalformedEnvelope creates an error for a payload that does not match the
// envelope contract.
func MalformedEnvelope(cause error) TransportError {
	message := "Malformed envelope"
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}
	return WrapError(cause, CodeMalformedEnvelope, message, CategoryValidation, SeverityWarning)
}

// SessionMismatch creates an error for an envelope tagged with a session ID
// other than the active one.
func SessionMismatch(want, got string) TransportError {
	return NewError(
		CodeSessionMismatch,
		fmt.Sprintf("Envelope session %q does not match active session", got),
		CategoryProtocol,
		SeverityWarning,
	).WithContext(&Context{
		SessionID: want,
	})
}

// TransportClosed creates an error for operations interrupted by transport
// closure. Pending requests are failed with this error so no caller is left
// suspended.
func TransportClosed(operation string) TransportError {
	return NewError(
		CodeTransportClosed,
		"Transport closed",
		CategoryTransport,
		SeverityInfo,
	).WithContext(&Context{
		Operation: operation,
	})
}

// InvalidState creates an error for a lifecycle call made in a state that
// does not permit it.
func InvalidState(operation, state string) TransportError {
	return NewError(
		CodeTransportError,
		fmt.Sprintf("Cannot %s while transport is %s", operation, state),
		CategoryTransport,
		SeverityError,
	).WithContext(&Context{
		Operation: operation,
	})
}
