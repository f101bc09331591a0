package command

import (
	"encoding/binary"
	"fmt"

	"github.com/opnsec/yhsm-go/message"
)

func padLabel(label []byte) ([]byte, error) {
	if len(label) > LabelLength {
		return nil, fmt.Errorf("command: label longer than %d bytes", LabelLength)
	}
	out := make([]byte, LabelLength)
	copy(out, label)
	return out, nil
}

// Echo builds a loopback command; the device returns the same payload.
func Echo(data []byte) *message.CommandMessage {
	return &message.CommandMessage{Code: message.CommandEcho, Data: data}
}

// GenerateAsymmetricKey builds a key-generation request.
func GenerateAsymmetricKey(keyID uint16, label []byte, domains Domain, capabilities Capability, algorithm Algorithm) (*message.CommandMessage, error) {
	paddedLabel, err := padLabel(label)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, 2+LabelLength+2+8+1)
	data = binary.BigEndian.AppendUint16(data, keyID)
	data = append(data, paddedLabel...)
	data = binary.BigEndian.AppendUint16(data, uint16(domains))
	data = binary.BigEndian.AppendUint64(data, uint64(capabilities))
	data = append(data, byte(algorithm))
	return &message.CommandMessage{Code: message.CommandGenerateAsymmetricKey, Data: data}, nil
}

// PutAsymmetricKey builds a request to import a private key directly.
func PutAsymmetricKey(keyID uint16, label []byte, domains Domain, capabilities Capability, algorithm Algorithm, keyBytes []byte) (*message.CommandMessage, error) {
	paddedLabel, err := padLabel(label)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, 2+LabelLength+2+8+1+len(keyBytes))
	data = binary.BigEndian.AppendUint16(data, keyID)
	data = append(data, paddedLabel...)
	data = binary.BigEndian.AppendUint16(data, uint16(domains))
	data = binary.BigEndian.AppendUint64(data, uint64(capabilities))
	data = append(data, byte(algorithm))
	data = append(data, keyBytes...)
	return &message.CommandMessage{Code: message.CommandPutAsymmetricKey, Data: data}, nil
}

// GetPubKey builds a public-key retrieval request.
func GetPubKey(keyID uint16) *message.CommandMessage {
	data := binary.BigEndian.AppendUint16(nil, keyID)
	return &message.CommandMessage{Code: message.CommandGetPubKey, Data: data}
}

// SignDataEddsa builds an Ed25519 signing request. The module frames and
// ships the signature bytes the device returns; it does not implement or
// validate Ed25519 signature math.
func SignDataEddsa(keyID uint16, data []byte) *message.CommandMessage {
	payload := binary.BigEndian.AppendUint16(nil, keyID)
	payload = append(payload, data...)
	return &message.CommandMessage{Code: message.CommandSignDataEddsa, Data: payload}
}

// SignDataEcdsa builds an ECDSA signing request over a pre-hashed digest.
func SignDataEcdsa(keyID uint16, digest []byte) *message.CommandMessage {
	payload := binary.BigEndian.AppendUint16(nil, keyID)
	payload = append(payload, digest...)
	return &message.CommandMessage{Code: message.CommandSignDataEcdsa, Data: payload}
}

// PutOpaque stores an opaque object (e.g. a certificate) under objectID.
func PutOpaque(objectID uint16, label []byte, domains Domain, capabilities Capability, algorithm Algorithm, data []byte) (*message.CommandMessage, error) {
	paddedLabel, err := padLabel(label)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 0, 2+LabelLength+2+8+1+len(data))
	payload = binary.BigEndian.AppendUint16(payload, objectID)
	payload = append(payload, paddedLabel...)
	payload = binary.BigEndian.AppendUint16(payload, uint16(domains))
	payload = binary.BigEndian.AppendUint64(payload, uint64(capabilities))
	payload = append(payload, byte(algorithm))
	payload = append(payload, data...)
	return &message.CommandMessage{Code: message.CommandPutOpaque, Data: payload}, nil
}

// GetOpaque retrieves a previously stored opaque object.
func GetOpaque(objectID uint16) *message.CommandMessage {
	data := binary.BigEndian.AppendUint16(nil, objectID)
	return &message.CommandMessage{Code: message.CommandGetOpaque, Data: data}
}

// DeleteObject removes an object of the given type.
func DeleteObject(objectID uint16, objectType ObjectType) *message.CommandMessage {
	data := binary.BigEndian.AppendUint16(nil, objectID)
	data = append(data, byte(objectType))
	return &message.CommandMessage{Code: message.CommandDeleteObject, Data: data}
}

// GetObjectInfo retrieves metadata for an object.
func GetObjectInfo(objectID uint16, objectType ObjectType) *message.CommandMessage {
	data := binary.BigEndian.AppendUint16(nil, objectID)
	data = append(data, byte(objectType))
	return &message.CommandMessage{Code: message.CommandGetObjectInfo, Data: data}
}

// ListFilter is one TLV filter term in a ListObjects request.
type ListFilter struct {
	Tag   ListObjectParamTag
	Value []byte
}

// FilterByID filters the object list by object ID.
func FilterByID(id uint16) ListFilter {
	return ListFilter{Tag: ListObjectParamID, Value: binary.BigEndian.AppendUint16(nil, id)}
}

// FilterByType filters the object list by object type.
func FilterByType(t ObjectType) ListFilter {
	return ListFilter{Tag: ListObjectParamType, Value: []byte{byte(t)}}
}

// FilterByDomain filters the object list by domain membership.
func FilterByDomain(d Domain) ListFilter {
	return ListFilter{Tag: ListObjectParamDomain, Value: binary.BigEndian.AppendUint16(nil, uint16(d))}
}

// FilterByLabel filters the object list by exact label match.
func FilterByLabel(label []byte) (ListFilter, error) {
	padded, err := padLabel(label)
	if err != nil {
		return ListFilter{}, err
	}
	return ListFilter{Tag: ListObjectParamLabel, Value: padded}, nil
}

// ListObjects builds a request to enumerate stored objects, optionally
// narrowed by one or more filters.
func ListObjects(filters ...ListFilter) *message.CommandMessage {
	var data []byte
	for _, f := range filters {
		data = append(data, byte(f.Tag))
		data = append(data, f.Value...)
	}
	return &message.CommandMessage{Code: message.CommandListObjects, Data: data}
}

// PutAuthKey provisions a new authentication key from its two 16-byte
// halves (K-ENC, K-MAC).
func PutAuthKey(keyID uint16, label []byte, domains Domain, capabilities Capability, encKey, macKey []byte) (*message.CommandMessage, error) {
	if len(encKey) != 16 || len(macKey) != 16 {
		return nil, fmt.Errorf("command: auth key halves must be 16 bytes each")
	}
	paddedLabel, err := padLabel(label)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, 2+LabelLength+2+8+32)
	data = binary.BigEndian.AppendUint16(data, keyID)
	data = append(data, paddedLabel...)
	data = binary.BigEndian.AppendUint16(data, uint16(domains))
	data = binary.BigEndian.AppendUint64(data, uint64(capabilities))
	data = append(data, encKey...)
	data = append(data, macKey...)
	return &message.CommandMessage{Code: message.CommandPutAuthKey, Data: data}, nil
}

// PutWrapKey provisions a wrap key used for ExportWrapped/ImportWrapped.
func PutWrapKey(keyID uint16, label []byte, domains Domain, capabilities Capability, delegatedCapabilities Capability, algorithm Algorithm, keyBytes []byte) (*message.CommandMessage, error) {
	paddedLabel, err := padLabel(label)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, 2+LabelLength+2+8+8+1+len(keyBytes))
	data = binary.BigEndian.AppendUint16(data, keyID)
	data = append(data, paddedLabel...)
	data = binary.BigEndian.AppendUint16(data, uint16(domains))
	data = binary.BigEndian.AppendUint64(data, uint64(capabilities))
	data = binary.BigEndian.AppendUint64(data, uint64(delegatedCapabilities))
	data = append(data, byte(algorithm))
	data = append(data, keyBytes...)
	return &message.CommandMessage{Code: message.CommandPutWrapKey, Data: data}, nil
}

// ExportWrapped exports an object encrypted under a wrap key.
func ExportWrapped(wrapKeyID uint16, objectType ObjectType, objectID uint16) *message.CommandMessage {
	data := binary.BigEndian.AppendUint16(nil, wrapKeyID)
	data = append(data, byte(objectType))
	data = binary.BigEndian.AppendUint16(data, objectID)
	return &message.CommandMessage{Code: message.CommandExportWrapped, Data: data}
}

// ImportWrapped imports an object previously produced by ExportWrapped.
func ImportWrapped(wrapKeyID uint16, wrapped []byte) *message.CommandMessage {
	data := binary.BigEndian.AppendUint16(nil, wrapKeyID)
	data = append(data, wrapped...)
	return &message.CommandMessage{Code: message.CommandImportWrapped, Data: data}
}

// GetPseudoRandom requests n bytes of device-generated randomness.
func GetPseudoRandom(n uint16) *message.CommandMessage {
	data := binary.BigEndian.AppendUint16(nil, n)
	return &message.CommandMessage{Code: message.CommandGetPseudoRandom, Data: data}
}

// DeviceInfo requests the device's firmware/serial metadata.
func DeviceInfo() *message.CommandMessage {
	return &message.CommandMessage{Code: message.CommandDeviceInfo}
}

// Reset requests a factory reset of the device.
func Reset() *message.CommandMessage {
	return &message.CommandMessage{Code: message.CommandReset}
}
