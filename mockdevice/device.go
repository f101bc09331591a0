// Package mockdevice is an in-memory stand-in for a physical HSM: it speaks
// the device side of the SCP03 handshake and dispatches a handful of
// commands against an in-memory object store. It exists so the session and
// command packages can be exercised end-to-end without real hardware.
package mockdevice

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/opnsec/yhsm-go/authkey"
	"github.com/opnsec/yhsm-go/command"
	"github.com/opnsec/yhsm-go/message"
	"github.com/opnsec/yhsm-go/securechannel"
)

// object is one entry in the device's object store.
type object struct {
	id           uint16
	objType      command.ObjectType
	label        []byte
	domains      command.Domain
	capabilities command.Capability
	algorithm    command.Algorithm
	data         []byte
	privateKey   ed25519.PrivateKey
	publicKey    ed25519.PublicKey
}

// Device is an in-memory HSM. It holds one provisioned auth key slot and a
// map of stored objects, and authenticates incoming sessions against that
// key the way a real device authenticates against its auth-key partition.
type Device struct {
	mu sync.Mutex

	authKeyID uint16
	authKey   *authkey.AuthKey
	logger    *slog.Logger

	nextSessionID uint8
	sessions      map[uint8]*securechannel.SecureChannel

	objects map[uint16]*object
	serial  uint32
}

// New returns a device provisioned with a single auth key at authKeyID.
func New(authKeyID uint16, key *authkey.AuthKey, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		authKeyID: authKeyID,
		authKey:   key,
		logger:    logger,
		sessions:  make(map[uint8]*securechannel.SecureChannel),
		objects:   make(map[uint16]*object),
		serial:    0x00c0ffee,
	}
}

// handleCreateSession implements CreateSession: it allocates a session ID,
// generates the card challenge, and derives the device-side channel.
func (d *Device) handleCreateSession(cmd *message.CommandMessage) (*message.ResponseMessage, error) {
	if len(cmd.Data) != 10 {
		return errorResponse(message.CommandCreateSession, message.ResponseDeviceInvalidData), nil
	}
	authKeyID := binary.BigEndian.Uint16(cmd.Data[:2])
	if authKeyID != d.authKeyID {
		return errorResponse(message.CommandCreateSession, message.ResponseDeviceAuthFail), nil
	}
	var hostChallenge [8]byte
	copy(hostChallenge[:], cmd.Data[2:10])

	var cardChallenge [8]byte
	if _, err := rand.Read(cardChallenge[:]); err != nil {
		return nil, fmt.Errorf("mockdevice: generating card challenge: %w", err)
	}

	id := d.nextSessionID
	if id > message.MaxSessionID {
		return errorResponse(message.CommandCreateSession, message.ResponseDeviceSessionsFull), nil
	}
	d.nextSessionID++

	channel, err := securechannel.New(id, d.authKey, hostChallenge, cardChallenge, d.logger)
	if err != nil {
		return nil, fmt.Errorf("mockdevice: deriving channel: %w", err)
	}
	d.sessions[id] = channel

	cardCryptogram, err := channel.CardCryptogram()
	if err != nil {
		return nil, fmt.Errorf("mockdevice: computing card cryptogram: %w", err)
	}

	data := append([]byte{}, cardChallenge[:]...)
	data = append(data, cardCryptogram[:]...)
	resp := &message.ResponseMessage{Code: message.SuccessCode(message.CommandCreateSession), SessionID: &id, Data: data}
	return resp, nil
}

// handleAuthSession implements AUTHENTICATE_SESSION: it verifies the host
// cryptogram and C-MAC, and on success replies with the empty success
// response that completes the handshake.
func (d *Device) handleAuthSession(cmd *message.CommandMessage) (*message.ResponseMessage, error) {
	if cmd.SessionID == nil {
		return errorResponse(message.CommandAuthSession, message.ResponseDeviceInvalidSession), nil
	}
	channel, ok := d.sessions[*cmd.SessionID]
	if !ok {
		return errorResponse(message.CommandAuthSession, message.ResponseDeviceInvalidSession), nil
	}
	if err := channel.VerifyAuthenticateSession(cmd); err != nil {
		return errorResponse(message.CommandAuthSession, message.ResponseDeviceAuthFail), nil
	}
	return securechannel.BuildAuthSessionSuccess(), nil
}

// handleSessionMessage decrypts the outer SessionMessage command, dispatches
// the inner command, and re-encrypts the result.
func (d *Device) handleSessionMessage(outer *message.CommandMessage) (*message.ResponseMessage, error) {
	if outer.SessionID == nil {
		return errorResponse(message.CommandSessionMessage, message.ResponseDeviceInvalidSession), nil
	}
	channel, ok := d.sessions[*outer.SessionID]
	if !ok {
		return errorResponse(message.CommandSessionMessage, message.ResponseDeviceInvalidSession), nil
	}

	inner, err := channel.DecryptCommand(outer)
	if err != nil {
		return errorResponse(message.CommandSessionMessage, message.ResponseDeviceAuthFail), nil
	}

	innerResp := d.dispatch(inner)

	outerResp, err := channel.EncryptResponse(innerResp)
	if err != nil {
		return nil, fmt.Errorf("mockdevice: encrypting response: %w", err)
	}
	return outerResp, nil
}

// Handle is the device's single entry point: it routes CreateSession,
// AuthSession, and SessionMessage, and rejects everything else as an
// invalid command (a real device only accepts those three outside a
// session).
func (d *Device) Handle(_ context.Context, frame []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmd, err := message.ParseCommand(frame)
	if err != nil {
		return nil, err
	}

	var resp *message.ResponseMessage
	switch cmd.Code {
	case message.CommandCreateSession:
		resp, err = d.handleCreateSession(cmd)
	case message.CommandAuthSession:
		resp, err = d.handleAuthSession(cmd)
	case message.CommandSessionMessage:
		resp, err = d.handleSessionMessage(cmd)
	default:
		resp = errorResponse(cmd.Code, message.ResponseDeviceInvalidCommand)
	}
	if err != nil {
		return nil, err
	}
	return resp.Serialize()
}

func errorResponse(cmd message.CommandCode, code message.ResponseCode) *message.ResponseMessage {
	kind, _ := message.ErrorKindFromResponseCode(code)
	return &message.ResponseMessage{Code: code, Data: []byte{byte(kind)}}
}
