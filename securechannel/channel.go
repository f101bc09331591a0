// Package securechannel implements the SCP03 protocol state machine: session
// key derivation, mutual authentication, and per-message encryption and MAC
// chaining. The same SecureChannel type serves both sides of the channel —
// the host calls BuildAuthSessionCommand, FinishAuthenticateSession,
// EncryptCommand and DecryptResponse to produce authenticated requests and
// consume responses; a device-side implementation (see mockdevice) calls
// VerifyAuthenticateSession, DecryptCommand and EncryptResponse in the
// mirror image.
package securechannel

import (
	"crypto/aes"
	"crypto/subtle"
	"encoding/binary"
	"log/slog"
	"sync"

	"github.com/enceve/crypto/cmac"

	"github.com/opnsec/yhsm-go/authkey"
	"github.com/opnsec/yhsm-go/kdf"
	"github.com/opnsec/yhsm-go/message"
)

const (
	// MaxCommandsPerSession bounds the session counter; SCP03 requires the
	// channel to terminate once reached rather than wrap.
	MaxCommandsPerSession = 1 << 20

	macLength = 8
)

// SecurityLevel is the authentication state of a channel.
type SecurityLevel int

const (
	// SecurityLevelNone is the initial state: no authenticated traffic has
	// been exchanged.
	SecurityLevelNone SecurityLevel = iota
	// SecurityLevelAuthenticated permits encrypt/decrypt of session traffic.
	SecurityLevelAuthenticated
	// SecurityLevelTerminated is final; all key material has been zeroed.
	SecurityLevelTerminated
)

func (l SecurityLevel) String() string {
	switch l {
	case SecurityLevelNone:
		return "none"
	case SecurityLevelAuthenticated:
		return "authenticated"
	case SecurityLevelTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// SecureChannel holds the derived session keys, the monotonic message
// counter, the MAC chaining value, and the security-level state machine for
// one SCP03 session. Zero value is not usable; construct with New.
type SecureChannel struct {
	mu sync.Mutex

	id      uint8
	counter uint32
	level   SecurityLevel

	hostChallenge [8]byte
	cardChallenge [8]byte

	encKey  [16]byte
	macKey  [16]byte
	rmacKey [16]byte
	chain   [16]byte

	logger *slog.Logger
}

// New derives session keys from authKey and the host/card challenge pair
// and returns a channel in SecurityLevelNone, counter 0, zero chaining
// value. The auth key's bytes never leave the key object — New reads them
// but the channel never retains a reference to it.
func New(id uint8, key *authkey.AuthKey, hostChallenge, cardChallenge [8]byte, logger *slog.Logger) (*SecureChannel, error) {
	if id > message.MaxSessionID {
		return nil, newError(KindProtocol, "session ID exceeds maximum")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var context [16]byte
	copy(context[:8], hostChallenge[:])
	copy(context[8:], cardChallenge[:])

	s := &SecureChannel{
		id:            id,
		hostChallenge: hostChallenge,
		cardChallenge: cardChallenge,
		logger:        logger,
	}

	if err := kdf.Derive(key.EncKey(), kdf.LabelEncKey, context, &s.encKey); err != nil {
		return nil, wrapError(KindProtocol, "deriving S-ENC", err)
	}
	if err := kdf.Derive(key.MacKey(), kdf.LabelMacKey, context, &s.macKey); err != nil {
		return nil, wrapError(KindProtocol, "deriving S-MAC", err)
	}
	if err := kdf.Derive(key.MacKey(), kdf.LabelRMacKey, context, &s.rmacKey); err != nil {
		return nil, wrapError(KindProtocol, "deriving S-RMAC", err)
	}
	return s, nil
}

// ID returns the channel's session ID.
func (s *SecureChannel) ID() uint8 { return s.id }

// Level returns the channel's current security level.
func (s *SecureChannel) Level() SecurityLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// Counter returns the current message counter.
func (s *SecureChannel) Counter() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// SetCounterForTesting forces the counter to n. Exists so boundary tests
// (counter exhaustion) don't need to replay 2^20 commands.
func (s *SecureChannel) SetCounterForTesting(n uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter = n
}

func (s *SecureChannel) context() [16]byte {
	var context [16]byte
	copy(context[:8], s.hostChallenge[:])
	copy(context[8:], s.cardChallenge[:])
	return context
}

// HostCryptogram derives the 8-byte host cryptogram (KDF label 0x01 under
// S-MAC).
func (s *SecureChannel) HostCryptogram() ([8]byte, error) {
	return kdf.Derive8(s.macKey[:], kdf.LabelHostCryptogram, s.context())
}

// CardCryptogram derives the 8-byte card cryptogram (KDF label 0x00 under
// S-MAC).
func (s *SecureChannel) CardCryptogram() ([8]byte, error) {
	return kdf.Derive8(s.macKey[:], kdf.LabelCardCryptogram, s.context())
}

// terminate transitions the channel to Terminated and zeroizes all key
// material. Safe to call more than once. Caller must hold s.mu.
func (s *SecureChannel) terminate() {
	if s.level == SecurityLevelTerminated {
		return
	}
	s.level = SecurityLevelTerminated
	zero(s.encKey[:])
	zero(s.macKey[:])
	zero(s.rmacKey[:])
	zero(s.chain[:])
}

// Terminate closes the channel from the outside (e.g. CloseSession), with
// the same zeroization guarantee as an internal failure.
func (s *SecureChannel) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminate()
}

// KeysZeroed reports whether the three session keys are all-zero, for
// verifying the post-termination invariant in tests.
func (s *SecureChannel) KeysZeroed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero [16]byte
	return s.encKey == zero && s.macKey == zero && s.rmacKey == zero
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// --- host side -----------------------------------------------------------

// BuildAuthSessionCommand computes the host cryptogram and returns the
// MACed AuthSession command that carries it. Precondition: SecurityLevelNone
// and a zero chaining value, both true immediately after New.
func (s *SecureChannel) BuildAuthSessionCommand() (*message.CommandMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.level != SecurityLevelNone {
		return nil, newError(KindClosedSession, "channel is not in the initial state")
	}

	cryptogram, err := s.HostCryptogram()
	if err != nil {
		return nil, wrapError(KindProtocol, "computing host cryptogram", err)
	}
	return s.commandWithMACLocked(message.CommandAuthSession, cryptogram[:])
}

// FinishAuthenticateSession completes the handshake: the response to
// AuthSession must carry an empty payload. On success the channel enters
// SecurityLevelAuthenticated with counter reset to 1.
func (s *SecureChannel) FinishAuthenticateSession(resp *message.ResponseMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(resp.Data) != 0 {
		s.terminate()
		return newError(KindProtocol, "AuthSession response carried a non-empty payload")
	}
	s.level = SecurityLevelAuthenticated
	s.counter = 1
	return nil
}

// EncryptCommand wraps inner in an encrypted, MACed SessionMessage command.
func (s *SecureChannel) EncryptCommand(inner *message.CommandMessage) (*message.CommandMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.level != SecurityLevelAuthenticated {
		return nil, newError(KindClosedSession, "channel is not authenticated")
	}

	plaintext, err := inner.Serialize()
	if err != nil {
		return nil, wrapError(KindProtocol, "serializing inner command", err)
	}
	icv, err := computeICV(s.encKey[:], s.counter)
	if err != nil {
		return nil, wrapError(KindProtocol, "computing ICV", err)
	}
	ciphertext, err := cbcEncrypt(s.encKey[:], icv[:], plaintext)
	if err != nil {
		return nil, wrapError(KindProtocol, "encrypting command", err)
	}
	return s.commandWithMACLocked(message.CommandSessionMessage, ciphertext)
}

// DecryptResponse verifies and decrypts a SessionMessage response, returning
// the inner response with the outer session ID propagated onto it.
func (s *SecureChannel) DecryptResponse(outer *message.ResponseMessage) (*message.ResponseMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.level != SecurityLevelAuthenticated {
		return nil, newError(KindClosedSession, "channel is not authenticated")
	}

	icv, err := computeICV(s.encKey[:], s.counter)
	if err != nil {
		return nil, wrapError(KindProtocol, "computing ICV", err)
	}

	if err := s.verifyResponseMACLocked(outer); err != nil {
		return nil, err
	}

	plaintext, err := cbcDecrypt(s.encKey[:], icv[:], outer.Data)
	if err != nil {
		s.terminate()
		return nil, wrapError(KindProtocol, "decrypting response", err)
	}
	inner, err := message.ParseResponse(plaintext)
	if err != nil {
		s.terminate()
		return nil, wrapError(KindProtocol, "parsing inner response", err)
	}
	inner.SessionID = outer.SessionID
	return inner, nil
}

// --- device side -----------------------------------------------------------

// VerifyAuthenticateSession checks the host cryptogram carried by cmd in
// constant time and verifies its C-MAC. On success the channel enters
// SecurityLevelAuthenticated with counter reset to 1, and the caller should
// respond with an empty Success(AuthSession) built via BuildAuthSessionSuccess.
func (s *SecureChannel) VerifyAuthenticateSession(cmd *message.CommandMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(cmd.Data) != 8 {
		s.terminate()
		return newError(KindProtocol, "AuthSession command payload must be 8 bytes")
	}

	want, err := s.HostCryptogram()
	if err != nil {
		return wrapError(KindProtocol, "computing host cryptogram", err)
	}
	if subtle.ConstantTimeCompare(want[:], cmd.Data) != 1 {
		s.terminate()
		return newError(KindAuthFail, "host cryptogram mismatch")
	}

	if err := s.verifyCommandMACLocked(cmd); err != nil {
		return err
	}

	s.level = SecurityLevelAuthenticated
	s.counter = 1
	return nil
}

// DecryptCommand verifies the C-MAC of outer, updates the chaining value,
// and returns the decrypted inner command.
func (s *SecureChannel) DecryptCommand(outer *message.CommandMessage) (*message.CommandMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.level != SecurityLevelAuthenticated {
		return nil, newError(KindClosedSession, "channel is not authenticated")
	}

	if err := s.verifyCommandMACLocked(outer); err != nil {
		return nil, err
	}

	icv, err := computeICV(s.encKey[:], s.counter)
	if err != nil {
		return nil, wrapError(KindProtocol, "computing ICV", err)
	}
	plaintext, err := cbcDecrypt(s.encKey[:], icv[:], outer.Data)
	if err != nil {
		s.terminate()
		return nil, wrapError(KindProtocol, "decrypting command", err)
	}
	inner, err := message.ParseCommand(plaintext)
	if err != nil {
		s.terminate()
		return nil, wrapError(KindProtocol, "parsing inner command", err)
	}
	return inner, nil
}

// EncryptResponse encrypts inner and wraps it as a MACed SessionMessage
// response, advancing the counter on success — the device-side mirror of
// the host's response-verification counter advance.
func (s *SecureChannel) EncryptResponse(inner *message.ResponseMessage) (*message.ResponseMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.level != SecurityLevelAuthenticated {
		return nil, newError(KindClosedSession, "channel is not authenticated")
	}
	if s.counter >= MaxCommandsPerSession {
		s.terminate()
		return nil, newError(KindCommandLimitExceeded, "counter reached MaxCommandsPerSession")
	}

	plaintext, err := inner.Serialize()
	if err != nil {
		return nil, wrapError(KindProtocol, "serializing inner response", err)
	}
	icv, err := computeICV(s.encKey[:], s.counter)
	if err != nil {
		return nil, wrapError(KindProtocol, "computing ICV", err)
	}
	ciphertext, err := cbcEncrypt(s.encKey[:], icv[:], plaintext)
	if err != nil {
		return nil, wrapError(KindProtocol, "encrypting response", err)
	}

	resp, err := s.responseWithMACLocked(message.SuccessCode(message.CommandSessionMessage), ciphertext)
	if err != nil {
		return nil, err
	}
	s.counter++
	return resp, nil
}

// BuildAuthSessionSuccess returns the empty Success(AuthSession) response
// the device sends after VerifyAuthenticateSession succeeds. AuthSession's
// own handshake response carries no MAC or encryption — only SessionMessage
// traffic does.
func BuildAuthSessionSuccess() *message.ResponseMessage {
	return &message.ResponseMessage{Code: message.SuccessCode(message.CommandAuthSession)}
}

// --- shared MAC machinery --------------------------------------------------

// commandWithMACLocked implements the command C-MAC path shared by the
// host's handshake/session-message construction: it both advances the
// chaining value and carries the session-limit check, matching the rule
// that the chaining value is only ever written by a command MAC.
func (s *SecureChannel) commandWithMACLocked(code message.CommandCode, data []byte) (*message.CommandMessage, error) {
	if s.counter >= MaxCommandsPerSession {
		s.terminate()
		return nil, newError(KindCommandLimitExceeded, "counter reached MaxCommandsPerSession")
	}

	id := s.id
	tag, err := cmac16(s.macKey[:], s.chain, byte(code), 1+len(data)+macLength, id, data)
	if err != nil {
		return nil, wrapError(KindProtocol, "computing command MAC", err)
	}
	s.chain = tag

	var mac [8]byte
	copy(mac[:], tag[:macLength])
	return &message.CommandMessage{Code: code, SessionID: &id, Data: data, MAC: &mac}, nil
}

// verifyCommandMACLocked is the device-side counterpart of
// commandWithMACLocked: it recomputes the same tag and, on a match, applies
// the identical chaining update.
func (s *SecureChannel) verifyCommandMACLocked(cmd *message.CommandMessage) error {
	if cmd.SessionID == nil || *cmd.SessionID != s.id {
		s.terminate()
		return newError(KindMismatch, "command session ID does not match channel")
	}
	if cmd.MAC == nil {
		s.terminate()
		return newError(KindVerifyFailed, "command is missing a MAC")
	}

	tag, err := cmac16(s.macKey[:], s.chain, byte(cmd.Code), 1+len(cmd.Data)+macLength, *cmd.SessionID, cmd.Data)
	if err != nil {
		return wrapError(KindProtocol, "computing command MAC", err)
	}
	if subtle.ConstantTimeCompare(tag[:macLength], cmd.MAC[:]) != 1 {
		s.terminate()
		return newError(KindVerifyFailed, "command MAC mismatch")
	}
	s.chain = tag
	return nil
}

// responseWithMACLocked is the device-side response R-MAC path: it reads
// the current chaining value but does not update it.
func (s *SecureChannel) responseWithMACLocked(code message.ResponseCode, data []byte) (*message.ResponseMessage, error) {
	id := s.id
	tag, err := cmac16(s.rmacKey[:], s.chain, byte(code), 1+len(data)+macLength, id, data)
	if err != nil {
		return nil, wrapError(KindProtocol, "computing response MAC", err)
	}

	var mac [8]byte
	copy(mac[:], tag[:macLength])
	return &message.ResponseMessage{Code: code, SessionID: &id, Data: data, MAC: &mac}, nil
}

// verifyResponseMACLocked is the host-side counterpart: check the session
// ID, recompute the R-MAC tag against the current (unmodified) chaining
// value, and advance the counter only on success.
func (s *SecureChannel) verifyResponseMACLocked(resp *message.ResponseMessage) error {
	if resp.SessionID == nil || *resp.SessionID != s.id {
		s.terminate()
		return newError(KindMismatch, "response session ID does not match channel")
	}
	if resp.MAC == nil {
		s.terminate()
		return newError(KindVerifyFailed, "response is missing a MAC")
	}

	tag, err := cmac16(s.rmacKey[:], s.chain, byte(resp.Code), 1+len(resp.Data)+macLength, *resp.SessionID, resp.Data)
	if err != nil {
		return wrapError(KindProtocol, "computing response MAC", err)
	}
	if subtle.ConstantTimeCompare(tag[:macLength], resp.MAC[:]) != 1 {
		s.terminate()
		return newError(KindVerifyFailed, "response MAC mismatch")
	}
	// mac_chaining_value is intentionally left untouched here: commands
	// drive the chain, responses only consume it (see design notes on
	// response MAC chaining).
	s.counter++
	return nil
}

// cmac16 computes CMAC_AES128(key, chain || code || len_be16(total) ||
// sessionID || data) and returns the full 16-byte tag.
func cmac16(key []byte, chain [16]byte, code byte, total int, sessionID uint8, data []byte) ([16]byte, error) {
	var out [16]byte

	buf := make([]byte, 0, 16+1+2+1+len(data))
	buf = append(buf, chain[:]...)
	buf = append(buf, code)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(total))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, sessionID)
	buf = append(buf, data...)

	block, err := aes.NewCipher(key)
	if err != nil {
		return out, err
	}
	m, err := cmac.New(block)
	if err != nil {
		return out, err
	}
	if _, err := m.Write(buf); err != nil {
		return out, err
	}
	copy(out[:], m.Sum(nil))
	return out, nil
}
