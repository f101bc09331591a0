package command

import (
	"encoding/binary"
	"fmt"

	"github.com/opnsec/yhsm-go/message"
)

// EchoResult returns the raw payload of an Echo response.
func EchoResult(resp *message.ResponseMessage) []byte {
	return resp.Data
}

// PublicKeyResult is the parsed payload of a GetPubKey response: the
// algorithm tag followed by the raw public key material.
type PublicKeyResult struct {
	Algorithm Algorithm
	Key       []byte
}

func ParsePublicKey(resp *message.ResponseMessage) (*PublicKeyResult, error) {
	if len(resp.Data) < 1 {
		return nil, fmt.Errorf("command: GetPubKey response too short")
	}
	return &PublicKeyResult{Algorithm: Algorithm(resp.Data[0]), Key: resp.Data[1:]}, nil
}

// SignatureResult is the raw signature bytes from a signing response.
func SignatureResult(resp *message.ResponseMessage) []byte {
	return resp.Data
}

// ObjectInfo is the parsed payload of a GetObjectInfo response.
type ObjectInfo struct {
	Capabilities Capability
	ObjectID     uint16
	Length       uint16
	Domains      Domain
	Type         ObjectType
	Algorithm    Algorithm
	Label        []byte
}

func ParseObjectInfo(resp *message.ResponseMessage) (*ObjectInfo, error) {
	const fixed = 8 + 2 + 2 + 2 + 1 + 1
	if len(resp.Data) < fixed+LabelLength {
		return nil, fmt.Errorf("command: GetObjectInfo response too short: %d bytes", len(resp.Data))
	}
	d := resp.Data
	info := &ObjectInfo{
		Capabilities: Capability(binary.BigEndian.Uint64(d[0:8])),
		ObjectID:     binary.BigEndian.Uint16(d[8:10]),
		Length:       binary.BigEndian.Uint16(d[10:12]),
		Domains:      Domain(binary.BigEndian.Uint16(d[12:14])),
		Type:         ObjectType(d[14]),
		Algorithm:    Algorithm(d[15]),
		Label:        trimLabel(d[fixed : fixed+LabelLength]),
	}
	return info, nil
}

func trimLabel(label []byte) []byte {
	n := len(label)
	for n > 0 && label[n-1] == 0x00 {
		n--
	}
	return append([]byte(nil), label[:n]...)
}

// ListedObject is one entry in a ListObjects response.
type ListedObject struct {
	ObjectID uint16
	Type     ObjectType
}

// ParseListObjects parses a ListObjects response into its entries
// (id(2) || type(1) per entry).
func ParseListObjects(resp *message.ResponseMessage) ([]ListedObject, error) {
	if len(resp.Data)%3 != 0 {
		return nil, fmt.Errorf("command: ListObjects response length %d not a multiple of 3", len(resp.Data))
	}
	entries := make([]ListedObject, 0, len(resp.Data)/3)
	for i := 0; i < len(resp.Data); i += 3 {
		entries = append(entries, ListedObject{
			ObjectID: binary.BigEndian.Uint16(resp.Data[i : i+2]),
			Type:     ObjectType(resp.Data[i+2]),
		})
	}
	return entries, nil
}

// DeviceInfoResult is the parsed payload of a DeviceInfo response.
type DeviceInfoResult struct {
	MajorVersion, MinorVersion, PatchVersion uint8
	Serial                                   uint32
	LogStoreSize                              uint8
	LogStoreUsed                              uint8
	Algorithms                                []byte
}

func ParseDeviceInfo(resp *message.ResponseMessage) (*DeviceInfoResult, error) {
	if len(resp.Data) < 3+4+1+1 {
		return nil, fmt.Errorf("command: DeviceInfo response too short")
	}
	d := resp.Data
	return &DeviceInfoResult{
		MajorVersion: d[0],
		MinorVersion: d[1],
		PatchVersion: d[2],
		Serial:       binary.BigEndian.Uint32(d[3:7]),
		LogStoreSize: d[7],
		LogStoreUsed: d[8],
		Algorithms:   append([]byte(nil), d[9:]...),
	}, nil
}

// PseudoRandomResult is the raw random bytes from a GetPseudoRandom
// response.
func PseudoRandomResult(resp *message.ResponseMessage) []byte {
	return resp.Data
}

// WrappedObjectResult is the raw wrapped blob from an ExportWrapped
// response.
func WrappedObjectResult(resp *message.ResponseMessage) []byte {
	return resp.Data
}
