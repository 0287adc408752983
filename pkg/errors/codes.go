package errors

// JSON-RPC 2.0 standard error codes.
const (
	// CodeParseError indicates invalid JSON was received
	CodeParseError int = -32700

	// CodeInvalidRequest indicates the JSON sent is not a valid Request object
	CodeInvalidRequest int = -32600

	// CodeMethodNotFound indicates the method does not exist / is not available
	CodeMethodNotFound int = -32601

	// CodeInvalidParams indicates invalid method parameter(s)
	CodeInvalidParams int = -32602

	// CodeInternalError indicates internal JSON-RPC error
	CodeInternalError int = -32603
)

// Transport error codes (-32500 to -32599).
const (
	// CodeTransportError is a generic transport fault
	CodeTransportError int = -32500

	// CodeTransportClosed indicates the transport was closed while an
	// operation was outstanding
	CodeTransportClosed int = -32501

	// CodeNavigationTimeout indicates the frame did not finish loading
	// within the configured bound
	CodeNavigationTimeout int = -32502

	// CodeNavigationFailed indicates the frame failed to load
	CodeNavigationFailed int = -32503

	// CodeHandshakeTimeout indicates no handshake reply arrived in time
	CodeHandshakeTimeout int = -32504
)

// Protocol / validation error codes (-32900 to -32999).
const (
	// CodeVersionIncompatible indicates the declared version ranges do
	// not overlap
	CodeVersionIncompatible int = -32901

	// CodeOriginRejected indicates the message origin is not in the
	// allow-list
	CodeOriginRejected int = -32902

	// CodeMalformedEnvelope indicates the payload does not match the
	// envelope contract
	CodeMalformedEnvelope int = -32903

	// CodeSessionMismatch indicates the envelope sessionId does not match
	// the active session
	CodeSessionMismatch int = -32904
)
