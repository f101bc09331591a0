package session

import (
	"testing"

	"github.com/opnsec/yhsm-go/message"
)

func TestResponseToErrorRejectsUnrecognizedCode(t *testing.T) {
	// ResponseDeviceOK is a valid wire code but not a success code and not
	// mapped to an HsmErrorKind; it must surface as a protocol error rather
	// than nil.
	err := responseToError(&message.ResponseMessage{Code: message.ResponseDeviceOK})
	if err == nil {
		t.Fatal("expected an error for a non-success, non-device-error response code")
	}
	ce, ok := err.(*ClientError)
	if !ok {
		t.Fatalf("got %T, want *ClientError", err)
	}
	if ce.Kind() != KindProtocol {
		t.Fatalf("got kind %s, want %s", ce.Kind(), KindProtocol)
	}
}

func TestResponseToErrorSuccessIsNil(t *testing.T) {
	if err := responseToError(&message.ResponseMessage{Code: message.SuccessCode(message.CommandEcho)}); err != nil {
		t.Fatalf("expected nil for a success response, got %v", err)
	}
}
