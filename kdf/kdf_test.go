package kdf

import "testing"

func TestDeriveRejectsShortKey(t *testing.T) {
	var out [Size]byte
	var ctx [16]byte
	if err := Derive(make([]byte, 15), LabelEncKey, ctx, &out); err == nil {
		t.Fatal("expected error for a 15-byte parent key")
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i)
	}
	var ctx [16]byte
	for i := range ctx {
		ctx[i] = byte(i * 3)
	}

	var a, b [Size]byte
	if err := Derive(key, LabelEncKey, ctx, &a); err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if err := Derive(key, LabelEncKey, ctx, &b); err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if a != b {
		t.Fatal("Derive is not deterministic for identical inputs")
	}
}

func TestDeriveLabelsProduceDistinctOutput(t *testing.T) {
	key := make([]byte, 16)
	var ctx [16]byte

	labels := []byte{LabelCardCryptogram, LabelHostCryptogram, LabelEncKey, LabelMacKey, LabelRMacKey}
	seen := map[[Size]byte]byte{}
	for _, l := range labels {
		var out [Size]byte
		if err := Derive(key, l, ctx, &out); err != nil {
			t.Fatalf("Derive(label=0x%02x): %v", l, err)
		}
		if other, dup := seen[out]; dup {
			t.Fatalf("labels 0x%02x and 0x%02x produced identical output", l, other)
		}
		seen[out] = l
	}
}

func TestDerive8TruncatesFullOutput(t *testing.T) {
	key := make([]byte, 16)
	var ctx [16]byte

	var full [Size]byte
	if err := Derive(key, LabelEncKey, ctx, &full); err != nil {
		t.Fatalf("Derive: %v", err)
	}
	short, err := Derive8(key, LabelEncKey, ctx)
	if err != nil {
		t.Fatalf("Derive8: %v", err)
	}
	for i := range short {
		if short[i] != full[i] {
			t.Fatalf("Derive8 byte %d = 0x%02x, want 0x%02x", i, short[i], full[i])
		}
	}
}
