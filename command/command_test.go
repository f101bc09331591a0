package command

import (
	"bytes"
	"testing"

	"github.com/opnsec/yhsm-go/message"
)

func TestGenerateAsymmetricKeyPayloadShape(t *testing.T) {
	cmd, err := GenerateAsymmetricKey(0x0002, []byte("myKey"), Domain1, CapabilityAsymmetricSignEddsa, AlgorithmEd25519)
	if err != nil {
		t.Fatalf("GenerateAsymmetricKey: %v", err)
	}
	if cmd.Code != message.CommandGenerateAsymmetricKey {
		t.Fatalf("got code %s, want GenerateAsymmetricKey", cmd.Code)
	}
	wantLen := 2 + LabelLength + 2 + 8 + 1
	if len(cmd.Data) != wantLen {
		t.Fatalf("payload length = %d, want %d", len(cmd.Data), wantLen)
	}
	if !bytes.HasPrefix(cmd.Data[2:], []byte("myKey")) {
		t.Fatalf("label not found at expected offset")
	}
}

func TestLabelTooLongRejected(t *testing.T) {
	label := bytes.Repeat([]byte{'x'}, LabelLength+1)
	if _, err := GenerateAsymmetricKey(1, label, Domain1, 0, AlgorithmEd25519); err == nil {
		t.Fatal("expected error for oversized label")
	}
}

func TestParseObjectInfoRoundTrip(t *testing.T) {
	label, err := padLabel([]byte("myKey"))
	if err != nil {
		t.Fatalf("padLabel: %v", err)
	}

	data := make([]byte, 0, 16+LabelLength)
	data = append(data, 0, 0, 0, 0, 0, 0, 1, 0) // capabilities = 0x100
	data = append(data, 0, 2)                   // object id
	data = append(data, 0, 0)                   // length
	data = append(data, 0, 1)                   // domains
	data = append(data, byte(ObjectTypeAsymmetricKey))
	data = append(data, byte(AlgorithmEd25519))
	data = append(data, label...)

	resp := &message.ResponseMessage{Code: message.SuccessCode(message.CommandGetObjectInfo), Data: data}
	info, err := ParseObjectInfo(resp)
	if err != nil {
		t.Fatalf("ParseObjectInfo: %v", err)
	}
	if info.ObjectID != 2 || info.Type != ObjectTypeAsymmetricKey || info.Algorithm != AlgorithmEd25519 {
		t.Fatalf("unexpected object info: %+v", info)
	}
	if !bytes.Equal(info.Label, []byte("myKey")) {
		t.Fatalf("label = %q, want %q", info.Label, "myKey")
	}
}

func TestParseListObjects(t *testing.T) {
	data := []byte{0x00, 0x01, byte(ObjectTypeAsymmetricKey), 0x00, 0x02, byte(ObjectTypeOpaque)}
	resp := &message.ResponseMessage{Code: message.SuccessCode(message.CommandListObjects), Data: data}
	entries, err := ParseListObjects(resp)
	if err != nil {
		t.Fatalf("ParseListObjects: %v", err)
	}
	if len(entries) != 2 || entries[0].ObjectID != 1 || entries[1].ObjectID != 2 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestListObjectsFilterEncoding(t *testing.T) {
	cmd := ListObjects(FilterByID(5), FilterByType(ObjectTypeOpaque))
	want := []byte{byte(ListObjectParamID), 0x00, 0x05, byte(ListObjectParamType), byte(ObjectTypeOpaque)}
	if !bytes.Equal(cmd.Data, want) {
		t.Fatalf("got % x, want % x", cmd.Data, want)
	}
}
