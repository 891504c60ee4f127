package transport

import "testing"

func TestErrorIsFatal(t *testing.T) {
	cases := []struct {
		code  ErrorCode
		fatal bool
	}{
		{DiscardPacket, false},
		{ClosingError, false},
		{DrainingError, false},
		{ProtocolViolation, true},
		{FlowControlError, true},
	}
	for _, c := range cases {
		e := newError(c.code, "")
		if got := e.IsFatal(); got != c.fatal {
			t.Errorf("Error{%v}.IsFatal() = %v, want %v", c.code, got, c.fatal)
		}
	}
}

func TestErrorTransportErrorCode(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want uint64
	}{
		{NoError, 0x0},
		{FlowControlError, 0x3},
		{FinalSizeError, 0x6},
		{MalformedTransportParameter, 0x8},
		{RequiredTransportParameter, 0x8},
		{CryptoBufferExceeded, 0xd},
		{InternalError, 0x1},
	}
	for _, c := range cases {
		e := newError(c.code, "")
		if got := e.TransportErrorCode(); got != c.want {
			t.Errorf("Error{%v}.TransportErrorCode() = %#x, want %#x", c.code, got, c.want)
		}
	}
}

func TestErrorErrorString(t *testing.T) {
	e := newError(FlowControlError, "limit exceeded")
	if got := e.Error(); got != "flow_control_error: limit exceeded" {
		t.Fatalf("Error() = %q, want %q", got, "flow_control_error: limit exceeded")
	}
	bare := newError(NoError, "")
	if got := bare.Error(); got != "no_error" {
		t.Fatalf("Error() with no message = %q, want %q", got, "no_error")
	}
}

func TestErrorCodeStringKnownAndCryptoRange(t *testing.T) {
	if got := errorCodeString(0x3); got != "flow_control_error" {
		t.Fatalf("errorCodeString(0x3) = %q, want flow_control_error", got)
	}
	if got := errorCodeString(0x145); got != "crypto_error_69" {
		t.Fatalf("errorCodeString(0x145) = %q, want crypto_error_69", got)
	}
	if got := errorCodeString(0xffff); got != "error_0xffff" {
		t.Fatalf("errorCodeString(0xffff) = %q, want error_0xffff", got)
	}
}
