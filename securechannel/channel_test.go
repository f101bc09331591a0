package securechannel

import (
	"bytes"
	"testing"

	"github.com/opnsec/yhsm-go/authkey"
	"github.com/opnsec/yhsm-go/message"
)

func zeroChallenge() [8]byte { return [8]byte{} }

func pairedChannels(t *testing.T) (host, device *SecureChannel) {
	t.Helper()
	key := authkey.FromPassword("password")
	host, err := New(0, key, zeroChallenge(), zeroChallenge(), nil)
	if err != nil {
		t.Fatalf("host New: %v", err)
	}
	device, err = New(0, key, zeroChallenge(), zeroChallenge(), nil)
	if err != nil {
		t.Fatalf("device New: %v", err)
	}
	return host, device
}

func handshake(t *testing.T, host, device *SecureChannel) {
	t.Helper()
	authCmd, err := host.BuildAuthSessionCommand()
	if err != nil {
		t.Fatalf("BuildAuthSessionCommand: %v", err)
	}
	if err := device.VerifyAuthenticateSession(authCmd); err != nil {
		t.Fatalf("VerifyAuthenticateSession: %v", err)
	}
	resp := BuildAuthSessionSuccess()
	if err := host.FinishAuthenticateSession(resp); err != nil {
		t.Fatalf("FinishAuthenticateSession: %v", err)
	}
}

// TestS1KeyDerivation reproduces the concrete password-derived key vector.
func TestS1KeyDerivation(t *testing.T) {
	key := authkey.FromPassword("password")
	wantEnc := []byte{0x09, 0x0b, 0x47, 0xdb, 0xed, 0x59, 0x56, 0x54, 0x90, 0x1d, 0xee, 0x1c, 0xc6, 0x55, 0xe4, 0x20}
	wantMac := []byte{0x59, 0x2f, 0xd4, 0x83, 0xf7, 0x59, 0xe2, 0x99, 0x09, 0xa0, 0x4c, 0x45, 0x05, 0xd2, 0xce, 0x0a}
	if !bytes.Equal(key.EncKey(), wantEnc) {
		t.Fatalf("K_ENC = % x, want % x", key.EncKey(), wantEnc)
	}
	if !bytes.Equal(key.MacKey(), wantMac) {
		t.Fatalf("K_MAC = % x, want % x", key.MacKey(), wantMac)
	}
}

// TestS2CryptogramSymmetry checks property 3: host and device derive
// identical cryptograms and session keys from the same inputs.
func TestS2CryptogramSymmetry(t *testing.T) {
	host, device := pairedChannels(t)

	hostHC, err := host.HostCryptogram()
	if err != nil {
		t.Fatalf("host HostCryptogram: %v", err)
	}
	deviceHC, err := device.HostCryptogram()
	if err != nil {
		t.Fatalf("device HostCryptogram: %v", err)
	}
	if hostHC != deviceHC {
		t.Fatalf("host cryptogram mismatch: % x vs % x", hostHC, deviceHC)
	}

	hostCC, _ := host.CardCryptogram()
	deviceCC, _ := device.CardCryptogram()
	if hostCC != deviceCC {
		t.Fatalf("card cryptogram mismatch: % x vs % x", hostCC, deviceCC)
	}

	if host.encKey != device.encKey || host.macKey != device.macKey || host.rmacKey != device.rmacKey {
		t.Fatal("host and device derived different session keys")
	}
}

// TestS3EchoRoundTrip drives a full handshake plus one SessionMessage round
// trip and checks the counter lands on 2.
func TestS3EchoRoundTrip(t *testing.T) {
	host, device := pairedChannels(t)
	handshake(t, host, device)

	echoCmd := &message.CommandMessage{Code: message.CommandEcho, Data: []byte("Hello, world!")}
	outerCmd, err := host.EncryptCommand(echoCmd)
	if err != nil {
		t.Fatalf("EncryptCommand: %v", err)
	}

	innerCmd, err := device.DecryptCommand(outerCmd)
	if err != nil {
		t.Fatalf("DecryptCommand: %v", err)
	}
	if innerCmd.Code != message.CommandEcho || !bytes.Equal(innerCmd.Data, echoCmd.Data) {
		t.Fatalf("device decrypted unexpected command: %+v", innerCmd)
	}

	echoResp := &message.ResponseMessage{Code: message.SuccessCode(message.CommandEcho), Data: innerCmd.Data}
	outerResp, err := device.EncryptResponse(echoResp)
	if err != nil {
		t.Fatalf("EncryptResponse: %v", err)
	}

	innerResp, err := host.DecryptResponse(outerResp)
	if err != nil {
		t.Fatalf("DecryptResponse: %v", err)
	}
	if !bytes.Equal(innerResp.Data, []byte("Hello, world!")) {
		t.Fatalf("got payload %q, want %q", innerResp.Data, "Hello, world!")
	}
	if host.Counter() != 2 {
		t.Fatalf("host counter = %d, want 2", host.Counter())
	}
	if device.Counter() != 2 {
		t.Fatalf("device counter = %d, want 2", device.Counter())
	}
	if host.chain != device.chain {
		t.Fatalf("chaining value diverged: host % x device % x", host.chain, device.chain)
	}
}

// TestS4MACTamper flips a bit in the response MAC and checks the channel
// terminates with zeroed keys.
func TestS4MACTamper(t *testing.T) {
	host, device := pairedChannels(t)
	handshake(t, host, device)

	echoCmd := &message.CommandMessage{Code: message.CommandEcho, Data: []byte("Hello, world!")}
	outerCmd, _ := host.EncryptCommand(echoCmd)
	innerCmd, _ := device.DecryptCommand(outerCmd)
	echoResp := &message.ResponseMessage{Code: message.SuccessCode(message.CommandEcho), Data: innerCmd.Data}
	outerResp, _ := device.EncryptResponse(echoResp)

	outerResp.MAC[0] ^= 0x01

	if _, err := host.DecryptResponse(outerResp); err == nil {
		t.Fatal("expected VerifyFailed on tampered MAC")
	} else if sce, ok := err.(*Error); !ok || sce.Kind() != KindVerifyFailed {
		t.Fatalf("got error %v, want KindVerifyFailed", err)
	}

	if host.Level() != SecurityLevelTerminated {
		t.Fatalf("host level = %v, want Terminated", host.Level())
	}
	if !host.KeysZeroed() {
		t.Fatal("expected session keys to be zeroed after VerifyFailed")
	}
}

// TestS5SessionMismatch answers with the wrong session ID: channel id is 0,
// response carries session id 1.
func TestS5SessionMismatch(t *testing.T) {
	host, device := pairedChannels(t)
	handshake(t, host, device)

	echoCmd := &message.CommandMessage{Code: message.CommandEcho, Data: []byte("hi")}
	outerCmd, err := host.EncryptCommand(echoCmd)
	if err != nil {
		t.Fatalf("EncryptCommand: %v", err)
	}
	innerCmd, err := device.DecryptCommand(outerCmd)
	if err != nil {
		t.Fatalf("DecryptCommand: %v", err)
	}
	innerResp := &message.ResponseMessage{Code: message.SuccessCode(message.CommandEcho), Data: innerCmd.Data}
	outerResp, err := device.EncryptResponse(innerResp)
	if err != nil {
		t.Fatalf("device EncryptResponse: %v", err)
	}

	wrongID := uint8(1)
	outerResp.SessionID = &wrongID

	if _, err := host.DecryptResponse(outerResp); err == nil {
		t.Fatal("expected MismatchError on session id mismatch")
	} else if sce, ok := err.(*Error); !ok || sce.Kind() != KindMismatch {
		t.Fatalf("got error %v, want KindMismatch", err)
	}
	if host.Level() != SecurityLevelTerminated {
		t.Fatalf("host level = %v, want Terminated", host.Level())
	}
}

// TestS6CounterExhaustion pre-sets the counter to its last valid value and
// checks the boundary.
func TestS6CounterExhaustion(t *testing.T) {
	host, device := pairedChannels(t)
	handshake(t, host, device)

	host.SetCounterForTesting(0x000F_FFFF)
	device.SetCounterForTesting(0x000F_FFFF)

	echoCmd := &message.CommandMessage{Code: message.CommandEcho, Data: []byte("ok")}
	outerCmd, err := host.EncryptCommand(echoCmd)
	if err != nil {
		t.Fatalf("EncryptCommand at boundary: %v", err)
	}
	innerCmd, err := device.DecryptCommand(outerCmd)
	if err != nil {
		t.Fatalf("DecryptCommand at boundary: %v", err)
	}
	resp := &message.ResponseMessage{Code: message.SuccessCode(message.CommandEcho), Data: innerCmd.Data}
	outerResp, err := device.EncryptResponse(resp)
	if err != nil {
		t.Fatalf("EncryptResponse at boundary: %v", err)
	}
	if _, err := host.DecryptResponse(outerResp); err != nil {
		t.Fatalf("DecryptResponse at boundary: %v", err)
	}
	if host.Counter() != 0x0010_0000 {
		t.Fatalf("host counter = 0x%x, want 0x100000", host.Counter())
	}

	// Next command must fail: counter has reached MaxCommandsPerSession.
	_, err = host.EncryptCommand(&message.CommandMessage{Code: message.CommandEcho, Data: []byte("no")})
	if err == nil {
		t.Fatal("expected CommandLimitExceeded")
	}
	sce, ok := err.(*Error)
	if !ok || sce.Kind() != KindCommandLimitExceeded {
		t.Fatalf("got error %v, want KindCommandLimitExceeded", err)
	}
	if host.Level() != SecurityLevelTerminated {
		t.Fatalf("host level = %v, want Terminated", host.Level())
	}
}

// TestPaddingAlwaysAddsBlockOnAlignedInput guards against the off-by-one
// padding bug: a block-aligned plaintext must still grow by one block.
func TestPaddingAlwaysAddsBlockOnAlignedInput(t *testing.T) {
	aligned := bytes.Repeat([]byte{0x42}, 32)
	padded := pad(aligned)
	if len(padded) != 48 {
		t.Fatalf("padded length = %d, want 48 (one full extra block)", len(padded))
	}
	unpadded, err := unpad(padded)
	if err != nil {
		t.Fatalf("unpad: %v", err)
	}
	if !bytes.Equal(unpadded, aligned) {
		t.Fatalf("unpad(pad(x)) != x")
	}
}
