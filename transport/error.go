package transport

import "fmt"

// ErrorCode is the kind of error the core can surface to its caller.
// These map to spec.md §7's "Kinds".
type ErrorCode int

// Error kinds surfaced by the core.
const (
	NoError ErrorCode = iota
	InternalError
	InvalidArgument
	UnknownPacketType
	BufferTooSmall
	ProtocolViolation
	InvalidState
	MalformedAck
	StreamIDBlocked
	StreamInUse
	StreamDataBlocked
	FlowControlError
	StreamLimitError
	FinalSizeError
	CryptoError
	PacketNumberExhausted
	OutOfMemory
	RequiredTransportParameter
	MalformedTransportParameter
	FrameEncodingError
	TLSDecryptError
	StreamShutForWrite
	StreamNotFound
	StreamStateError
	NoKeyError
	EarlyDataRejected
	ReceivedVersionNegotiation
	ClosingError
	DrainingError
	TransportParameterError
	DiscardPacket
	PathValidationFailed
	ConnIDBlocked
	CallbackFailure
	CryptoBufferExceeded
)

var errorCodeNames = [...]string{
	"no_error",
	"internal_error",
	"invalid_argument",
	"unknown_packet_type",
	"buffer_too_small",
	"protocol_violation",
	"invalid_state",
	"malformed_ack",
	"stream_id_blocked",
	"stream_in_use",
	"stream_data_blocked",
	"flow_control_error",
	"stream_limit_error",
	"final_size_error",
	"crypto_error",
	"packet_number_exhausted",
	"out_of_memory",
	"required_transport_parameter",
	"malformed_transport_parameter",
	"frame_encoding_error",
	"tls_decrypt_error",
	"stream_shut_for_write",
	"stream_not_found",
	"stream_state_error",
	"no_key_error",
	"early_data_rejected",
	"received_version_negotiation",
	"closing",
	"draining",
	"transport_parameter_error",
	"discard_packet",
	"path_validation_failed",
	"conn_id_blocked",
	"callback_failure",
	"crypto_buffer_exceeded",
}

func (k ErrorCode) String() string {
	if int(k) < len(errorCodeNames) {
		return errorCodeNames[k]
	}
	return "unknown_error"
}

// Error is the error type returned by the core.
type Error struct {
	Code    ErrorCode
	Message string
}

func newError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code.String(), e.Message)
}

// IsFatal reports whether the error must terminate the connection.
// Per spec.md §7: discard-packet is local-only; everything else that is
// not explicitly exempted here is fatal to the connection (possibly after
// being mapped to a CONNECTION_CLOSE transport error code).
func (e *Error) IsFatal() bool {
	switch e.Code {
	case DiscardPacket:
		return false
	case ClosingError, DrainingError:
		return false
	default:
		return true
	}
}

// TransportErrorCode returns the QUIC transport error code that a fatal
// Error maps to when written into a CONNECTION_CLOSE frame.
// https://quicwg.org/base-drafts/draft-ietf-quic-transport.html#section-20
func (e *Error) TransportErrorCode() uint64 {
	switch e.Code {
	case NoError:
		return 0x0
	case InternalError:
		return 0x1
	case ConnIDBlocked:
		return 0x9
	case FlowControlError:
		return 0x3
	case StreamLimitError:
		return 0x4
	case StreamStateError:
		return 0x5
	case FinalSizeError:
		return 0x6
	case FrameEncodingError:
		return 0x7
	case TransportParameterError, MalformedTransportParameter, RequiredTransportParameter:
		return 0x8
	case ProtocolViolation:
		return 0xa
	case CryptoBufferExceeded:
		return 0xd
	case CryptoError:
		return 0x100 // base of the crypto_error_XX range; TLS alert is added by caller
	default:
		return 0x1
	}
}

// Common pre-built errors reused across the core, matching the teacher's
// style of package-level sentinel errors for hot paths.
var (
	errFlowControl  = newError(FlowControlError, "flow control limit exceeded")
	errInvalidToken = newError(ProtocolViolation, "invalid retry token")
	errShortBuffer  = newError(BufferTooSmall, "buffer too small")
	errFinalSize    = newError(FinalSizeError, "final size mismatch")
)

func errorCodeString(code uint64) string {
	if code >= 0x100 && code <= 0x1ff {
		return fmt.Sprintf("crypto_error_%d", code-0x100)
	}
	switch code {
	case 0x0:
		return "no_error"
	case 0x1:
		return "internal_error"
	case 0x2:
		return "connection_refused"
	case 0x3:
		return "flow_control_error"
	case 0x4:
		return "stream_limit_error"
	case 0x5:
		return "stream_state_error"
	case 0x6:
		return "final_size_error"
	case 0x7:
		return "frame_encoding_error"
	case 0x8:
		return "transport_parameter_error"
	case 0x9:
		return "connection_id_limit_error"
	case 0xa:
		return "protocol_violation"
	case 0xb:
		return "invalid_token"
	case 0xc:
		return "application_error"
	case 0xd:
		return "crypto_buffer_exceeded"
	case 0xe:
		return "key_update_error"
	case 0xf:
		return "aead_limit_reached"
	case 0x10:
		return "no_viable_path"
	default:
		return fmt.Sprintf("error_0x%x", code)
	}
}
