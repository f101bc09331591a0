package message

import (
	"encoding/binary"
	"fmt"
)

// MaxFrameSize is the largest on-wire APDU this codec will produce or
// accept, command or response, including every framing byte.
const MaxFrameSize = 2048

// MaxSessionID is the largest valid session ID; the device allows at most
// 16 concurrent sessions (0-15).
const MaxSessionID = 15

// CommandMessage is a parsed command APDU.
type CommandMessage struct {
	Code      CommandCode
	SessionID *uint8
	Data      []byte
	MAC       *[8]byte
}

// ResponseMessage is a parsed response APDU.
type ResponseMessage struct {
	Code      ResponseCode
	SessionID *uint8
	Data      []byte
	MAC       *[8]byte
}

// ProtocolError reports a framing, length, or code violation encountered
// while parsing or validating an APDU.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "protocol error: " + e.Reason }

func protoErrf(format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// Serialize encodes a command to its on-wire form: code(1) len_be16
// [session_id(1)] payload [mac(8)].
func (c *CommandMessage) Serialize() ([]byte, error) {
	wantsSession := c.Code.hasSessionIDAndMAC()
	if wantsSession && c.SessionID == nil {
		return nil, protoErrf("command %s requires a session ID", c.Code)
	}
	if !wantsSession && (c.SessionID != nil || c.MAC != nil) {
		return nil, protoErrf("command %s must not carry a session ID or MAC", c.Code)
	}
	if c.SessionID != nil && *c.SessionID > MaxSessionID {
		return nil, protoErrf("session ID %d exceeds maximum %d", *c.SessionID, MaxSessionID)
	}

	body := 0
	if c.SessionID != nil {
		body++
	}
	body += len(c.Data)
	if c.MAC != nil {
		body += 8
	}

	out := make([]byte, 0, 3+body)
	out = append(out, byte(c.Code))
	out = appendLen(out, body)
	if c.SessionID != nil {
		out = append(out, *c.SessionID)
	}
	out = append(out, c.Data...)
	if c.MAC != nil {
		out = append(out, c.MAC[:]...)
	}

	if len(out) > MaxFrameSize {
		return nil, protoErrf("serialized command is %d bytes, exceeds max %d", len(out), MaxFrameSize)
	}
	return out, nil
}

// ParseCommand decodes a command APDU, validating every framing rule.
func ParseCommand(frame []byte) (*CommandMessage, error) {
	if len(frame) < 3 {
		return nil, protoErrf("frame too short: %d bytes", len(frame))
	}
	if len(frame) > MaxFrameSize {
		return nil, protoErrf("frame is %d bytes, exceeds max %d", len(frame), MaxFrameSize)
	}

	code := CommandCode(frame[0])
	if !code.IsValid() {
		return nil, protoErrf("unrecognized command code 0x%02x", frame[0])
	}
	length := int(binary.BigEndian.Uint16(frame[1:3]))
	if length+3 != len(frame) {
		return nil, protoErrf("length field %d inconsistent with frame size %d", length, len(frame))
	}

	rest := frame[3:]
	msg := &CommandMessage{Code: code}

	if code.hasSessionIDAndMAC() {
		if len(rest) < 1 {
			return nil, protoErrf("command %s missing session ID", code)
		}
		sid := rest[0]
		if sid > MaxSessionID {
			return nil, protoErrf("session ID %d exceeds maximum %d", sid, MaxSessionID)
		}
		msg.SessionID = &sid
		rest = rest[1:]

		if len(rest) < 8 {
			return nil, protoErrf("command %s missing MAC, only %d bytes remain", code, len(rest))
		}
		var mac [8]byte
		copy(mac[:], rest[len(rest)-8:])
		msg.MAC = &mac
		msg.Data = append([]byte(nil), rest[:len(rest)-8]...)
	} else {
		msg.Data = append([]byte(nil), rest...)
	}

	return msg, nil
}

// Serialize encodes a response to its on-wire form.
func (r *ResponseMessage) Serialize() ([]byte, error) {
	wantsSession := r.Code.hasSessionID()
	wantsMAC := r.Code.hasMAC()
	if wantsSession && r.SessionID == nil {
		return nil, protoErrf("response %s requires a session ID", r.Code)
	}
	if !wantsSession && r.SessionID != nil {
		return nil, protoErrf("response %s must not carry a session ID", r.Code)
	}
	if wantsMAC && r.MAC == nil {
		return nil, protoErrf("response %s requires a MAC", r.Code)
	}
	if !wantsMAC && r.MAC != nil {
		return nil, protoErrf("response %s must not carry a MAC", r.Code)
	}
	if r.SessionID != nil && *r.SessionID > MaxSessionID {
		return nil, protoErrf("session ID %d exceeds maximum %d", *r.SessionID, MaxSessionID)
	}

	body := 0
	if r.SessionID != nil {
		body++
	}
	body += len(r.Data)
	if r.MAC != nil {
		body += 8
	}

	out := make([]byte, 0, 3+body)
	out = append(out, byte(r.Code))
	out = appendLen(out, body)
	if r.SessionID != nil {
		out = append(out, *r.SessionID)
	}
	out = append(out, r.Data...)
	if r.MAC != nil {
		out = append(out, r.MAC[:]...)
	}

	if len(out) > MaxFrameSize {
		return nil, protoErrf("serialized response is %d bytes, exceeds max %d", len(out), MaxFrameSize)
	}
	return out, nil
}

// ParseResponse decodes a response APDU, validating every framing rule.
func ParseResponse(frame []byte) (*ResponseMessage, error) {
	if len(frame) < 3 {
		return nil, protoErrf("frame too short: %d bytes", len(frame))
	}
	if len(frame) > MaxFrameSize {
		return nil, protoErrf("frame is %d bytes, exceeds max %d", len(frame), MaxFrameSize)
	}

	code := ResponseCode(frame[0])
	if !code.IsValid() {
		return nil, protoErrf("unrecognized response code 0x%02x", frame[0])
	}
	length := int(binary.BigEndian.Uint16(frame[1:3]))
	if length+3 != len(frame) {
		return nil, protoErrf("length field %d inconsistent with frame size %d", length, len(frame))
	}

	rest := frame[3:]
	msg := &ResponseMessage{Code: code}

	if code.hasSessionID() {
		if len(rest) < 1 {
			return nil, protoErrf("response %s missing session ID", code)
		}
		sid := rest[0]
		if sid > MaxSessionID {
			return nil, protoErrf("session ID %d exceeds maximum %d", sid, MaxSessionID)
		}
		msg.SessionID = &sid
		rest = rest[1:]
	}

	if code.hasMAC() {
		if len(rest) < 8 {
			return nil, protoErrf("response %s missing MAC, only %d bytes remain", code, len(rest))
		}
		var mac [8]byte
		copy(mac[:], rest[len(rest)-8:])
		msg.MAC = &mac
		rest = rest[:len(rest)-8]
	}

	msg.Data = append([]byte(nil), rest...)
	return msg, nil
}

func appendLen(out []byte, n int) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(n))
	return append(out, buf[:]...)
}
