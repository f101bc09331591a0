package mockdevice

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"

	"github.com/opnsec/yhsm-go/authkey"
	"github.com/opnsec/yhsm-go/command"
	"github.com/opnsec/yhsm-go/message"
)

// dispatch routes one decrypted inner command to its handler. Caller holds
// d.mu.
func (d *Device) dispatch(cmd *message.CommandMessage) *message.ResponseMessage {
	switch cmd.Code {
	case message.CommandEcho:
		return success(cmd.Code, cmd.Data)
	case message.CommandCloseSession:
		return success(cmd.Code, nil)
	case message.CommandGenerateAsymmetricKey:
		return d.generateAsymmetricKey(cmd)
	case message.CommandPutAsymmetricKey:
		return d.putAsymmetricKey(cmd)
	case message.CommandGetPubKey:
		return d.getPubKey(cmd)
	case message.CommandSignDataEddsa:
		return d.signDataEddsa(cmd)
	case message.CommandPutOpaque:
		return d.putOpaque(cmd)
	case message.CommandGetOpaque:
		return d.getOpaque(cmd)
	case message.CommandDeleteObject:
		return d.deleteObject(cmd)
	case message.CommandGetObjectInfo:
		return d.getObjectInfo(cmd)
	case message.CommandListObjects:
		return d.listObjects(cmd)
	case message.CommandPutAuthKey:
		return d.putAuthKey(cmd)
	case message.CommandGetPseudoRandom:
		return d.getPseudoRandom(cmd)
	case message.CommandDeviceInfo:
		return d.deviceInfo(cmd)
	case message.CommandReset:
		return success(cmd.Code, nil)
	default:
		return errorResponse(cmd.Code, message.ResponseDeviceInvalidCommand)
	}
}

func success(cmd message.CommandCode, data []byte) *message.ResponseMessage {
	return &message.ResponseMessage{Code: message.SuccessCode(cmd), Data: data}
}

func (d *Device) generateAsymmetricKey(cmd *message.CommandMessage) *message.ResponseMessage {
	const fixed = 2 + command.LabelLength + 2 + 8 + 1
	if len(cmd.Data) != fixed {
		return errorResponse(cmd.Code, message.ResponseDeviceWrongLength)
	}
	keyID := binary.BigEndian.Uint16(cmd.Data[:2])
	if _, exists := d.objects[keyID]; exists {
		return errorResponse(cmd.Code, message.ResponseDeviceObjectExists)
	}
	label := cmd.Data[2 : 2+command.LabelLength]
	rest := cmd.Data[2+command.LabelLength:]
	domains := command.Domain(binary.BigEndian.Uint16(rest[:2]))
	capabilities := command.Capability(binary.BigEndian.Uint64(rest[2:10]))
	algorithm := command.Algorithm(rest[10])

	if algorithm != command.AlgorithmEd25519 {
		return errorResponse(cmd.Code, message.ResponseDeviceInvalidData)
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return errorResponse(cmd.Code, message.ResponseDeviceStorageFailed)
	}

	d.objects[keyID] = &object{
		id: keyID, objType: command.ObjectTypeAsymmetricKey, label: append([]byte(nil), label...),
		domains: domains, capabilities: capabilities, algorithm: algorithm,
		privateKey: priv, publicKey: pub,
	}
	return success(cmd.Code, nil)
}

func (d *Device) putAsymmetricKey(cmd *message.CommandMessage) *message.ResponseMessage {
	const fixed = 2 + command.LabelLength + 2 + 8 + 1
	if len(cmd.Data) < fixed {
		return errorResponse(cmd.Code, message.ResponseDeviceWrongLength)
	}
	keyID := binary.BigEndian.Uint16(cmd.Data[:2])
	label := cmd.Data[2 : 2+command.LabelLength]
	rest := cmd.Data[2+command.LabelLength:]
	domains := command.Domain(binary.BigEndian.Uint16(rest[:2]))
	capabilities := command.Capability(binary.BigEndian.Uint64(rest[2:10]))
	algorithm := command.Algorithm(rest[10])
	keyBytes := rest[11:]

	if algorithm != command.AlgorithmEd25519 || len(keyBytes) != ed25519.SeedSize {
		return errorResponse(cmd.Code, message.ResponseDeviceInvalidData)
	}
	priv := ed25519.NewKeyFromSeed(keyBytes)

	d.objects[keyID] = &object{
		id: keyID, objType: command.ObjectTypeAsymmetricKey, label: append([]byte(nil), label...),
		domains: domains, capabilities: capabilities, algorithm: algorithm,
		privateKey: priv, publicKey: priv.Public().(ed25519.PublicKey),
	}
	return success(cmd.Code, nil)
}

func (d *Device) getPubKey(cmd *message.CommandMessage) *message.ResponseMessage {
	if len(cmd.Data) != 2 {
		return errorResponse(cmd.Code, message.ResponseDeviceWrongLength)
	}
	keyID := binary.BigEndian.Uint16(cmd.Data)
	obj, ok := d.objects[keyID]
	if !ok || obj.publicKey == nil {
		return errorResponse(cmd.Code, message.ResponseDeviceObjectNotFound)
	}
	data := append([]byte{byte(obj.algorithm)}, obj.publicKey...)
	return success(cmd.Code, data)
}

func (d *Device) signDataEddsa(cmd *message.CommandMessage) *message.ResponseMessage {
	if len(cmd.Data) < 2 {
		return errorResponse(cmd.Code, message.ResponseDeviceWrongLength)
	}
	keyID := binary.BigEndian.Uint16(cmd.Data[:2])
	obj, ok := d.objects[keyID]
	if !ok || obj.privateKey == nil {
		return errorResponse(cmd.Code, message.ResponseDeviceObjectNotFound)
	}
	sig := ed25519.Sign(obj.privateKey, cmd.Data[2:])
	return success(cmd.Code, sig)
}

func (d *Device) putOpaque(cmd *message.CommandMessage) *message.ResponseMessage {
	const fixed = 2 + command.LabelLength + 2 + 8 + 1
	if len(cmd.Data) < fixed {
		return errorResponse(cmd.Code, message.ResponseDeviceWrongLength)
	}
	objID := binary.BigEndian.Uint16(cmd.Data[:2])
	label := cmd.Data[2 : 2+command.LabelLength]
	rest := cmd.Data[2+command.LabelLength:]
	domains := command.Domain(binary.BigEndian.Uint16(rest[:2]))
	capabilities := command.Capability(binary.BigEndian.Uint64(rest[2:10]))
	algorithm := command.Algorithm(rest[10])
	payload := rest[11:]

	d.objects[objID] = &object{
		id: objID, objType: command.ObjectTypeOpaque, label: append([]byte(nil), label...),
		domains: domains, capabilities: capabilities, algorithm: algorithm,
		data: append([]byte(nil), payload...),
	}
	return success(cmd.Code, nil)
}

func (d *Device) getOpaque(cmd *message.CommandMessage) *message.ResponseMessage {
	if len(cmd.Data) != 2 {
		return errorResponse(cmd.Code, message.ResponseDeviceWrongLength)
	}
	objID := binary.BigEndian.Uint16(cmd.Data)
	obj, ok := d.objects[objID]
	if !ok {
		return errorResponse(cmd.Code, message.ResponseDeviceObjectNotFound)
	}
	return success(cmd.Code, obj.data)
}

func (d *Device) deleteObject(cmd *message.CommandMessage) *message.ResponseMessage {
	if len(cmd.Data) != 3 {
		return errorResponse(cmd.Code, message.ResponseDeviceWrongLength)
	}
	objID := binary.BigEndian.Uint16(cmd.Data[:2])
	if _, ok := d.objects[objID]; !ok {
		return errorResponse(cmd.Code, message.ResponseDeviceObjectNotFound)
	}
	delete(d.objects, objID)
	return success(cmd.Code, nil)
}

func (d *Device) getObjectInfo(cmd *message.CommandMessage) *message.ResponseMessage {
	if len(cmd.Data) != 3 {
		return errorResponse(cmd.Code, message.ResponseDeviceWrongLength)
	}
	objID := binary.BigEndian.Uint16(cmd.Data[:2])
	obj, ok := d.objects[objID]
	if !ok {
		return errorResponse(cmd.Code, message.ResponseDeviceObjectNotFound)
	}

	data := make([]byte, 0, 16+command.LabelLength)
	data = binary.BigEndian.AppendUint64(data, uint64(obj.capabilities))
	data = binary.BigEndian.AppendUint16(data, obj.id)
	data = binary.BigEndian.AppendUint16(data, uint16(len(obj.data)))
	data = binary.BigEndian.AppendUint16(data, uint16(obj.domains))
	data = append(data, byte(obj.objType), byte(obj.algorithm))
	label := make([]byte, command.LabelLength)
	copy(label, obj.label)
	data = append(data, label...)
	return success(cmd.Code, data)
}

func (d *Device) listObjects(cmd *message.CommandMessage) *message.ResponseMessage {
	var data []byte
	for id, obj := range d.objects {
		if !matchesFilters(obj, cmd.Data) {
			continue
		}
		data = binary.BigEndian.AppendUint16(data, id)
		data = append(data, byte(obj.objType))
	}
	return success(cmd.Code, data)
}

// matchesFilters applies the TLV filter terms a ListObjects request may
// carry; an empty filter set matches everything.
func matchesFilters(obj *object, filters []byte) bool {
	i := 0
	for i < len(filters) {
		tag := command.ListObjectParamTag(filters[i])
		i++
		switch tag {
		case command.ListObjectParamID:
			if i+2 > len(filters) {
				return false
			}
			if binary.BigEndian.Uint16(filters[i:i+2]) != obj.id {
				return false
			}
			i += 2
		case command.ListObjectParamType:
			if i+1 > len(filters) {
				return false
			}
			if command.ObjectType(filters[i]) != obj.objType {
				return false
			}
			i++
		case command.ListObjectParamDomain:
			if i+2 > len(filters) {
				return false
			}
			if command.Domain(binary.BigEndian.Uint16(filters[i:i+2]))&obj.domains == 0 {
				return false
			}
			i += 2
		case command.ListObjectParamLabel:
			if i+command.LabelLength > len(filters) {
				return false
			}
			want := filters[i : i+command.LabelLength]
			got := make([]byte, command.LabelLength)
			copy(got, obj.label)
			if string(want) != string(got) {
				return false
			}
			i += command.LabelLength
		default:
			return false
		}
	}
	return true
}

func (d *Device) putAuthKey(cmd *message.CommandMessage) *message.ResponseMessage {
	const fixed = 2 + command.LabelLength + 2 + 8 + 32
	if len(cmd.Data) != fixed {
		return errorResponse(cmd.Code, message.ResponseDeviceWrongLength)
	}
	keyID := binary.BigEndian.Uint16(cmd.Data[:2])
	rest := cmd.Data[2+command.LabelLength:]
	encKey := rest[10:26]
	macKey := rest[26:42]

	key, err := authkey.FromHalves(encKey, macKey)
	if err != nil {
		return errorResponse(cmd.Code, message.ResponseDeviceInvalidData)
	}
	if keyID == d.authKeyID {
		d.authKey = key
	}
	return success(cmd.Code, nil)
}

func (d *Device) getPseudoRandom(cmd *message.CommandMessage) *message.ResponseMessage {
	if len(cmd.Data) != 2 {
		return errorResponse(cmd.Code, message.ResponseDeviceWrongLength)
	}
	n := binary.BigEndian.Uint16(cmd.Data)
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return errorResponse(cmd.Code, message.ResponseDeviceStorageFailed)
	}
	return success(cmd.Code, buf)
}

func (d *Device) deviceInfo(cmd *message.CommandMessage) *message.ResponseMessage {
	data := []byte{1, 0, 5}
	data = binary.BigEndian.AppendUint32(data, d.serial)
	data = append(data, 62, 0)
	data = append(data, byte(command.AlgorithmEC_P256), byte(command.AlgorithmEC_Secp256k1), byte(command.AlgorithmEd25519))
	return success(cmd.Code, data)
}
