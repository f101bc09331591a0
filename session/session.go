package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/opnsec/yhsm-go/authkey"
	"github.com/opnsec/yhsm-go/message"
	"github.com/opnsec/yhsm-go/securechannel"
	"github.com/opnsec/yhsm-go/transport"
)

// Credentials identifies the auth key slot on the device and the shared
// key material used to authenticate against it.
type Credentials struct {
	AuthKeyID uint16
	Key       *authkey.AuthKey
}

// Session pairs a SecureChannel with a Transport: it owns the handshake,
// issues one command at a time, and converts channel/transport failures
// into ClientError.
type Session struct {
	mu        sync.Mutex
	transport transport.Transport
	channel   *securechannel.SecureChannel
	logger    *slog.Logger
}

// Open performs CreateSession, verifies the card cryptogram in constant
// time, and runs EXTERNAL_AUTHENTICATE, returning a ready session.
func Open(ctx context.Context, tr transport.Transport, creds Credentials, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var hostChallenge [8]byte
	if _, err := rand.Read(hostChallenge[:]); err != nil {
		return nil, wrapClientError(KindConnectionError, "generating host challenge", err)
	}

	createPayload := make([]byte, 2, 10)
	binary.BigEndian.PutUint16(createPayload, creds.AuthKeyID)
	createPayload = append(createPayload, hostChallenge[:]...)

	createCmd := &message.CommandMessage{Code: message.CommandCreateSession, Data: createPayload}
	createResp, err := roundTrip(ctx, tr, createCmd)
	if err != nil {
		return nil, err
	}
	if createResp.Code != message.SuccessCode(message.CommandCreateSession) {
		if err := responseToError(createResp); err != nil {
			return nil, err
		}
		return nil, newClientError(KindProtocol, fmt.Sprintf("unexpected response %s to CreateSession", createResp.Code))
	}
	if createResp.SessionID == nil || len(createResp.Data) != 16 {
		return nil, newClientError(KindProtocol, "malformed CreateSession response")
	}

	var cardChallenge [8]byte
	copy(cardChallenge[:], createResp.Data[:8])
	cardCryptogram := createResp.Data[8:16]

	logger.Debug("create session", "session_id", *createResp.SessionID)

	channel, err := securechannel.New(*createResp.SessionID, creds.Key, hostChallenge, cardChallenge, logger)
	if err != nil {
		return nil, fromChannelError(err)
	}

	wantCryptogram, err := channel.CardCryptogram()
	if err != nil {
		return nil, wrapClientError(KindProtocol, "computing card cryptogram", err)
	}
	if subtle.ConstantTimeCompare(wantCryptogram[:], cardCryptogram) != 1 {
		return nil, newClientError(KindAuthFail, "device sent an incorrect card cryptogram")
	}

	authCmd, err := channel.BuildAuthSessionCommand()
	if err != nil {
		return nil, fromChannelError(err)
	}
	authResp, err := roundTrip(ctx, tr, authCmd)
	if err != nil {
		return nil, err
	}
	if authResp.Code != message.SuccessCode(message.CommandAuthSession) {
		if err := responseToError(authResp); err != nil {
			return nil, err
		}
		return nil, newClientError(KindProtocol, fmt.Sprintf("unexpected response %s to AuthSession", authResp.Code))
	}
	if err := channel.FinishAuthenticateSession(authResp); err != nil {
		return nil, fromChannelError(err)
	}

	logger.Debug("session authenticated", "session_id", channel.ID())
	return &Session{transport: tr, channel: channel, logger: logger}, nil
}

// SendCommand encrypts inner, ships it, decrypts the response, and maps a
// device-error response onto DeviceError. Callers hold an exclusive handle
// for the duration: the channel's counter and chaining value cannot
// tolerate interleaved commands.
func (s *Session) SendCommand(ctx context.Context, inner *message.CommandMessage) (*message.ResponseMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendCommandLocked(ctx, inner)
}

// Close sends CloseSession and terminates the channel regardless of
// outcome — there is no safe retry at this layer. Close does not zero the
// Credentials.Key passed to Open: that key may be shared across several
// Session instances (see Pool, which derives one session per pooled slot
// from a single key and zeroes it only once in Pool.Close). A caller that
// owns an exclusive key should call Key.Zero() itself once Close returns.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.channel.Terminate()

	_, err := s.sendCommandLocked(ctx, &message.CommandMessage{Code: message.CommandCloseSession})
	return err
}

// sendCommandLocked is SendCommand's body; callers must hold s.mu.
func (s *Session) sendCommandLocked(ctx context.Context, inner *message.CommandMessage) (*message.ResponseMessage, error) {
	outerCmd, err := s.channel.EncryptCommand(inner)
	if err != nil {
		return nil, fromChannelError(err)
	}
	outerResp, err := roundTrip(ctx, s.transport, outerCmd)
	if err != nil {
		return nil, err
	}
	if outerResp.Code != message.SuccessCode(message.CommandSessionMessage) {
		if err := responseToError(outerResp); err != nil {
			return nil, err
		}
		return nil, newClientError(KindProtocol, fmt.Sprintf("unexpected response %s to SessionMessage", outerResp.Code))
	}
	innerResp, err := s.channel.DecryptResponse(outerResp)
	if err != nil {
		return nil, fromChannelError(err)
	}
	if err := responseToError(innerResp); err != nil {
		return nil, err
	}
	return innerResp, nil
}

func roundTrip(ctx context.Context, tr transport.Transport, cmd *message.CommandMessage) (*message.ResponseMessage, error) {
	frame, err := cmd.Serialize()
	if err != nil {
		return nil, wrapClientError(KindProtocol, "serializing command", err)
	}
	respFrame, err := tr.Request(ctx, frame)
	if err != nil {
		return nil, wrapClientError(KindConnectionError, "transport request", err)
	}
	resp, err := message.ParseResponse(respFrame)
	if err != nil {
		return nil, wrapClientError(KindProtocol, "parsing response", err)
	}
	return resp, nil
}

// responseToError maps a device-error response onto a KindDeviceError
// ClientError; a recognized one-byte payload tag takes precedence over the
// kind implied by the response code. It returns nil for any success
// response, and a KindProtocol error for a code that is neither a success
// nor a device error (ResponseDeviceOK).
func responseToError(resp *message.ResponseMessage) error {
	if resp.Code.IsSuccess() {
		return nil
	}
	kind, ok := message.ErrorKindFromResponseCode(resp.Code)
	if !ok {
		return newClientError(KindProtocol, fmt.Sprintf("unrecognized response code %s", resp.Code))
	}
	if len(resp.Data) == 1 {
		if tagged, ok := message.HsmErrorKindFromTag(resp.Data[0]); ok {
			kind = tagged
		}
	}
	return deviceError(kind)
}
