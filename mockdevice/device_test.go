package mockdevice

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/opnsec/yhsm-go/authkey"
	"github.com/opnsec/yhsm-go/command"
	"github.com/opnsec/yhsm-go/session"
)

func openSession(t *testing.T) (*session.Session, *Device) {
	t.Helper()
	key := authkey.FromPassword("password")
	dev := New(1, key, nil)
	tr := NewTransport(dev)

	s, err := session.Open(context.Background(), tr, session.Credentials{AuthKeyID: 1, Key: key}, nil)
	if err != nil {
		t.Fatalf("session.Open: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s, dev
}

func TestEndToEndEchoRoundTrip(t *testing.T) {
	s, _ := openSession(t)
	payload := []byte("ping")
	resp, err := s.SendCommand(context.Background(), command.Echo(payload))
	if err != nil {
		t.Fatalf("SendCommand(Echo): %v", err)
	}
	if got := command.EchoResult(resp); !bytes.Equal(got, payload) {
		t.Fatalf("echo = %q, want %q", got, payload)
	}
}

func TestEndToEndGenerateSignVerify(t *testing.T) {
	s, _ := openSession(t)
	ctx := context.Background()

	genCmd, err := command.GenerateAsymmetricKey(0x1234, []byte("signing-key"), command.Domain1, command.CapabilityAsymmetricSignEddsa, command.AlgorithmEd25519)
	if err != nil {
		t.Fatalf("GenerateAsymmetricKey: %v", err)
	}
	if _, err := s.SendCommand(ctx, genCmd); err != nil {
		t.Fatalf("SendCommand(GenerateAsymmetricKey): %v", err)
	}

	pubResp, err := s.SendCommand(ctx, command.GetPubKey(0x1234))
	if err != nil {
		t.Fatalf("SendCommand(GetPubKey): %v", err)
	}
	pub, err := command.ParsePublicKey(pubResp)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if pub.Algorithm != command.AlgorithmEd25519 || len(pub.Key) != 32 {
		t.Fatalf("unexpected public key result: %+v", pub)
	}

	digest := []byte("sign me")
	sigResp, err := s.SendCommand(ctx, command.SignDataEddsa(0x1234, digest))
	if err != nil {
		t.Fatalf("SendCommand(SignDataEddsa): %v", err)
	}
	sig := command.SignatureResult(sigResp)
	if len(sig) != 64 {
		t.Fatalf("signature length = %d, want 64", len(sig))
	}
	if !ed25519.Verify(ed25519.PublicKey(pub.Key), digest, sig) {
		t.Fatal("signature does not verify under the returned public key")
	}
}

func TestEndToEndOpaqueObjectLifecycle(t *testing.T) {
	s, _ := openSession(t)
	ctx := context.Background()

	payload := []byte("certificate bytes")
	putCmd, err := command.PutOpaque(0x0010, []byte("cert"), command.Domain1, command.CapabilityPutOpaque, 0, payload)
	if err != nil {
		t.Fatalf("PutOpaque: %v", err)
	}
	if _, err := s.SendCommand(ctx, putCmd); err != nil {
		t.Fatalf("SendCommand(PutOpaque): %v", err)
	}

	getResp, err := s.SendCommand(ctx, command.GetOpaque(0x0010))
	if err != nil {
		t.Fatalf("SendCommand(GetOpaque): %v", err)
	}
	if !bytes.Equal(getResp.Data, payload) {
		t.Fatalf("opaque payload = %q, want %q", getResp.Data, payload)
	}

	infoResp, err := s.SendCommand(ctx, command.GetObjectInfo(0x0010, command.ObjectTypeOpaque))
	if err != nil {
		t.Fatalf("SendCommand(GetObjectInfo): %v", err)
	}
	info, err := command.ParseObjectInfo(infoResp)
	if err != nil {
		t.Fatalf("ParseObjectInfo: %v", err)
	}
	if info.ObjectID != 0x0010 || !bytes.Equal(info.Label, []byte("cert")) {
		t.Fatalf("unexpected object info: %+v", info)
	}

	if _, err := s.SendCommand(ctx, command.DeleteObject(0x0010, command.ObjectTypeOpaque)); err != nil {
		t.Fatalf("SendCommand(DeleteObject): %v", err)
	}
	if _, err := s.SendCommand(ctx, command.GetOpaque(0x0010)); err == nil {
		t.Fatal("expected error reading a deleted object")
	}
}

func TestEndToEndListObjectsFilter(t *testing.T) {
	s, _ := openSession(t)
	ctx := context.Background()

	for i := uint16(1); i <= 3; i++ {
		cmd, err := command.PutOpaque(i, []byte("obj"), command.Domain1, 0, 0, []byte{byte(i)})
		if err != nil {
			t.Fatalf("PutOpaque: %v", err)
		}
		if _, err := s.SendCommand(ctx, cmd); err != nil {
			t.Fatalf("SendCommand(PutOpaque): %v", err)
		}
	}

	resp, err := s.SendCommand(ctx, command.ListObjects(command.FilterByType(command.ObjectTypeOpaque)))
	if err != nil {
		t.Fatalf("SendCommand(ListObjects): %v", err)
	}
	entries, err := command.ParseListObjects(resp)
	if err != nil {
		t.Fatalf("ParseListObjects: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
}

func TestEndToEndDeviceInfo(t *testing.T) {
	s, _ := openSession(t)
	resp, err := s.SendCommand(context.Background(), command.DeviceInfo())
	if err != nil {
		t.Fatalf("SendCommand(DeviceInfo): %v", err)
	}
	info, err := command.ParseDeviceInfo(resp)
	if err != nil {
		t.Fatalf("ParseDeviceInfo: %v", err)
	}
	if info.MajorVersion != 1 {
		t.Fatalf("major version = %d, want 1", info.MajorVersion)
	}
}

func TestEndToEndWrongAuthKeyRejected(t *testing.T) {
	key := authkey.FromPassword("password")
	wrong := authkey.FromPassword("not the password")
	dev := New(1, key, nil)
	tr := NewTransport(dev)

	_, err := session.Open(context.Background(), tr, session.Credentials{AuthKeyID: 1, Key: wrong}, nil)
	if err == nil {
		t.Fatal("expected authentication failure with wrong key")
	}
}
