// Package message implements APDU framing: the on-wire layout shared by
// commands and responses, and the closed sets of command/response/error
// byte tags that appear in that framing.
package message

import "fmt"

// CommandCode identifies a command APDU. Only four values are consumed by
// the channel/session core; the rest are opaque payload-bearing commands
// forwarded unchanged.
type CommandCode uint8

const (
	CommandEcho                  CommandCode = 0x01
	CommandCreateSession         CommandCode = 0x03
	CommandAuthSession           CommandCode = 0x04
	CommandSessionMessage        CommandCode = 0x05
	CommandDeviceInfo            CommandCode = 0x06
	CommandReset                 CommandCode = 0x08
	CommandCloseSession          CommandCode = 0x40
	CommandPutOpaque             CommandCode = 0x42
	CommandGetOpaque             CommandCode = 0x43
	CommandPutAuthKey            CommandCode = 0x44
	CommandPutAsymmetricKey      CommandCode = 0x45
	CommandGenerateAsymmetricKey CommandCode = 0x46
	CommandListObjects           CommandCode = 0x48
	CommandExportWrapped         CommandCode = 0x4a
	CommandImportWrapped         CommandCode = 0x4b
	CommandPutWrapKey            CommandCode = 0x4c
	CommandGetObjectInfo         CommandCode = 0x4e
	CommandGetPseudoRandom       CommandCode = 0x51
	CommandGetPubKey             CommandCode = 0x54
	CommandSignDataEcdsa         CommandCode = 0x56
	CommandDeleteObject          CommandCode = 0x58
	CommandSignDataEddsa         CommandCode = 0x6a
)

func (c CommandCode) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CommandCode(0x%02x)", uint8(c))
}

// IsValid reports whether c is one of the closed set of recognized command
// codes. Parsing must reject anything else rather than pass it through.
func (c CommandCode) IsValid() bool {
	_, ok := commandNames[c]
	return ok
}

var commandNames = map[CommandCode]string{
	CommandEcho:                  "Echo",
	CommandCreateSession:         "CreateSession",
	CommandAuthSession:           "AuthSession",
	CommandSessionMessage:        "SessionMessage",
	CommandDeviceInfo:            "DeviceInfo",
	CommandReset:                 "Reset",
	CommandCloseSession:          "CloseSession",
	CommandPutOpaque:             "PutOpaque",
	CommandGetOpaque:             "GetOpaque",
	CommandPutAuthKey:            "PutAuthKey",
	CommandPutAsymmetricKey:      "PutAsymmetricKey",
	CommandGenerateAsymmetricKey: "GenerateAsymmetricKey",
	CommandListObjects:           "ListObjects",
	CommandExportWrapped:         "ExportWrapped",
	CommandImportWrapped:         "ImportWrapped",
	CommandPutWrapKey:            "PutWrapKey",
	CommandGetObjectInfo:         "GetObjectInfo",
	CommandGetPseudoRandom:       "GetPseudoRandom",
	CommandGetPubKey:             "GetPubKey",
	CommandSignDataEcdsa:         "SignDataEcdsa",
	CommandDeleteObject:          "DeleteObject",
	CommandSignDataEddsa:         "SignDataEddsa",
}

// hasSessionIDAndMAC reports whether a command of this code carries a
// session ID byte and a trailing MAC on the wire.
func (c CommandCode) hasSessionIDAndMAC() bool {
	return c == CommandAuthSession || c == CommandSessionMessage
}

// ResponseCode identifies a response APDU: either the success echo of a
// command code (command | 0x80) or one of the device error tags.
type ResponseCode uint8

const successOffset = 0x80

// SuccessCode builds the response code signalling successful execution of
// cmd.
func SuccessCode(cmd CommandCode) ResponseCode {
	return ResponseCode(uint8(cmd) | successOffset)
}

// IsSuccess reports whether r is a success code. Command reports which
// command it answers.
func (r ResponseCode) IsSuccess() bool {
	return uint8(r)&successOffset != 0 && r != ResponseGenericError
}

// Command returns the command code this success response answers. Only
// meaningful when IsSuccess is true.
func (r ResponseCode) Command() CommandCode {
	return CommandCode(uint8(r) &^ successOffset)
}

// Device error response codes. Every code except ResponseDeviceOK doubles as
// the one-byte HsmErrorKind payload tag carried in the response body, with
// the single exception of ResponseGenericError: its wire response code is
// 0x7f but the payload tag it carries is 0x10 (see
// ErrorKindFromResponseCode).
const (
	ResponseDeviceOK                ResponseCode = 0x00
	ResponseDeviceInvalidCommand    ResponseCode = 0x01
	ResponseDeviceInvalidData       ResponseCode = 0x02
	ResponseDeviceInvalidSession    ResponseCode = 0x03
	ResponseDeviceAuthFail          ResponseCode = 0x04
	ResponseDeviceSessionsFull      ResponseCode = 0x05
	ResponseDeviceSessionFailed     ResponseCode = 0x06
	ResponseDeviceStorageFailed     ResponseCode = 0x07
	ResponseDeviceWrongLength       ResponseCode = 0x08
	ResponseDeviceInvalidPermission ResponseCode = 0x09
	ResponseDeviceLogFull           ResponseCode = 0x0a
	ResponseDeviceObjectNotFound    ResponseCode = 0x0b
	ResponseDeviceIDIllegal         ResponseCode = 0x0c
	ResponseDeviceInvalidOTP        ResponseCode = 0x0d
	ResponseDeviceDemoMode          ResponseCode = 0x0e
	ResponseDeviceCmdUnexecuted     ResponseCode = 0x0f
	ResponseDeviceObjectExists      ResponseCode = 0x11
	ResponseGenericError            ResponseCode = 0x7f
)

func (r ResponseCode) String() string {
	if r.IsSuccess() {
		return fmt.Sprintf("Success(%s)", r.Command())
	}
	if s, ok := responseErrorNames[r]; ok {
		return s
	}
	return fmt.Sprintf("ResponseCode(0x%02x)", uint8(r))
}

// IsValid reports whether r is a success echo of a recognized command code
// or one of the closed set of device error codes. Parsing must reject
// anything else rather than pass it through.
func (r ResponseCode) IsValid() bool {
	if r.IsSuccess() {
		return r.Command().IsValid()
	}
	_, ok := responseErrorNames[r]
	return ok
}

var responseErrorNames = map[ResponseCode]string{
	ResponseDeviceOK:                "DeviceOK",
	ResponseDeviceInvalidCommand:    "DeviceInvalidCommand",
	ResponseDeviceInvalidData:       "DeviceInvalidData",
	ResponseDeviceInvalidSession:    "DeviceInvalidSession",
	ResponseDeviceAuthFail:          "DeviceAuthFail",
	ResponseDeviceSessionsFull:      "DeviceSessionsFull",
	ResponseDeviceSessionFailed:     "DeviceSessionFailed",
	ResponseDeviceStorageFailed:     "DeviceStorageFailed",
	ResponseDeviceWrongLength:       "DeviceWrongLength",
	ResponseDeviceInvalidPermission: "DeviceInvalidPermission",
	ResponseDeviceLogFull:           "DeviceLogFull",
	ResponseDeviceObjectNotFound:    "DeviceObjectNotFound",
	ResponseDeviceIDIllegal:         "DeviceIDIllegal",
	ResponseDeviceInvalidOTP:        "DeviceInvalidOTP",
	ResponseDeviceDemoMode:          "DeviceDemoMode",
	ResponseDeviceCmdUnexecuted:     "DeviceCmdUnexecuted",
	ResponseDeviceObjectExists:      "DeviceObjectExists",
	ResponseGenericError:            "GenericError",
}

// hasSessionID reports whether a response of this code carries a session ID
// byte; MAC presence is narrower (SessionMessage only, see hasMAC).
func (r ResponseCode) hasSessionID() bool {
	return r == SuccessCode(CommandCreateSession) || r == SuccessCode(CommandSessionMessage)
}

func (r ResponseCode) hasMAC() bool {
	return r == SuccessCode(CommandSessionMessage)
}

// HsmErrorKind is the one-byte error tag carried in the payload of a
// device-error response.
type HsmErrorKind uint8

const (
	HsmErrCommandInvalid    HsmErrorKind = 0x01
	HsmErrDataInvalid       HsmErrorKind = 0x02
	HsmErrSessionInvalid    HsmErrorKind = 0x03
	HsmErrAuthFail          HsmErrorKind = 0x04
	HsmErrSessionsFull      HsmErrorKind = 0x05
	HsmErrSessionFailed     HsmErrorKind = 0x06
	HsmErrStorageFailed     HsmErrorKind = 0x07
	HsmErrWrongLength       HsmErrorKind = 0x08
	HsmErrPermissionInvalid HsmErrorKind = 0x09
	HsmErrLogFull           HsmErrorKind = 0x0a
	HsmErrObjectNotFound    HsmErrorKind = 0x0b
	HsmErrIDIllegal         HsmErrorKind = 0x0c
	HsmErrInvalidOTP        HsmErrorKind = 0x0d
	HsmErrDemoMode          HsmErrorKind = 0x0e
	HsmErrCmdUnexecuted     HsmErrorKind = 0x0f
	HsmErrGenericError      HsmErrorKind = 0x10
	HsmErrObjectExists      HsmErrorKind = 0x11
)

// HsmErrorKindFromTag maps a payload byte to its HsmErrorKind. Unrecognized
// tags are returned as-is via ok=false; callers surface them as an unknown
// device error carrying the raw code.
func HsmErrorKindFromTag(tag byte) (kind HsmErrorKind, ok bool) {
	switch tag {
	case 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11:
		return HsmErrorKind(tag), true
	default:
		return HsmErrorKind(tag), false
	}
}

func (k HsmErrorKind) String() string {
	if s, ok := hsmErrorNames[k]; ok {
		return s
	}
	return fmt.Sprintf("unknown HSM error code: 0x%02x", uint8(k))
}

var hsmErrorNames = map[HsmErrorKind]string{
	HsmErrCommandInvalid:    "invalid command",
	HsmErrDataInvalid:       "invalid data",
	HsmErrSessionInvalid:    "invalid session",
	HsmErrAuthFail:          "authentication failed",
	HsmErrSessionsFull:      "sessions full (max 16)",
	HsmErrSessionFailed:     "session failed",
	HsmErrStorageFailed:     "storage failed",
	HsmErrWrongLength:       "incorrect length",
	HsmErrPermissionInvalid: "invalid permissions",
	HsmErrLogFull:           "audit log full",
	HsmErrObjectNotFound:    "object not found",
	HsmErrIDIllegal:         "ID illegal",
	HsmErrInvalidOTP:        "invalid OTP",
	HsmErrDemoMode:          "demo mode",
	HsmErrCmdUnexecuted:     "command unexecuted",
	HsmErrGenericError:      "generic error",
	HsmErrObjectExists:      "object already exists",
}

// ErrorKindFromResponseCode derives the HsmErrorKind implied by a device
// error ResponseCode, independent of any payload byte. GenericError is the
// one response code whose wire value (0x7f) does not equal its error tag
// (0x10); every other device error code equals its tag.
func ErrorKindFromResponseCode(r ResponseCode) (HsmErrorKind, bool) {
	if r == ResponseGenericError {
		return HsmErrGenericError, true
	}
	if r.IsSuccess() || r == ResponseDeviceOK {
		return 0, false
	}
	kind, ok := HsmErrorKindFromTag(uint8(r))
	return kind, ok
}
