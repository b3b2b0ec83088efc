package nostrkey

import "testing"

func TestParsePublic_HexAndBech32RoundTrip(t *testing.T) {
	secret := Generate()
	pub, err := secret.Derive()
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	npub, err := pub.Bech32()
	if err != nil {
		t.Fatalf("bech32: %v", err)
	}

	fromBech32, err := ParsePublic(npub)
	if err != nil {
		t.Fatalf("parse npub: %v", err)
	}
	if !fromBech32.Equal(pub) {
		t.Errorf("npub round-trip mismatch: got %s, want %s", fromBech32, pub)
	}

	fromHex, err := ParsePublic(pub.Hex())
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if !fromHex.Equal(pub) {
		t.Errorf("hex round-trip mismatch: got %s, want %s", fromHex, pub)
	}
}

func TestParsePublic_InvalidHex(t *testing.T) {
	cases := []string{"", "not-hex", "deadbeef"}
	for _, c := range cases {
		if _, err := ParsePublic(c); err == nil {
			t.Errorf("ParsePublic(%q) expected error, got nil", c)
		}
	}
}

func TestParseSecret_NsecRoundTrip(t *testing.T) {
	secret := Generate()
	nsec, err := secret.Bech32()
	if err != nil {
		t.Fatalf("bech32: %v", err)
	}

	got, err := ParseSecret(nsec)
	if err != nil {
		t.Fatalf("parse nsec: %v", err)
	}
	if got.Hex() != secret.Hex() {
		t.Errorf("nsec round-trip mismatch: got %s, want %s", got.Hex(), secret.Hex())
	}
}
