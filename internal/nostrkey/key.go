// Package nostrkey parses and formats the public/secret keypairs used
// throughout the validator: hex and bech32 (npub/nsec) forms of the same
// 32-byte value, as the teacher's loadKeys/runKeygen helpers do.
package nostrkey

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// Public is a 32-byte public key, compared by its hex value.
type Public struct {
	hex string
}

// Secret is a 32-byte secret key.
type Secret struct {
	hex string
}

// ParsePublic accepts either lowercase hex or an npub1... bech32 string.
func ParsePublic(s string) (Public, error) {
	if strings.HasPrefix(s, "npub") {
		prefix, val, err := nip19.Decode(s)
		if err != nil {
			return Public{}, fmt.Errorf("nostrkey: decode npub: %w", err)
		}
		if prefix != "npub" {
			return Public{}, fmt.Errorf("nostrkey: expected npub prefix, got %s", prefix)
		}
		return Public{hex: val.(string)}, nil
	}
	if err := validateHex32(s); err != nil {
		return Public{}, err
	}
	return Public{hex: strings.ToLower(s)}, nil
}

// ParseSecret accepts either lowercase hex or an nsec1... bech32 string.
func ParseSecret(s string) (Secret, error) {
	if strings.HasPrefix(s, "nsec") {
		prefix, val, err := nip19.Decode(s)
		if err != nil {
			return Secret{}, fmt.Errorf("nostrkey: decode nsec: %w", err)
		}
		if prefix != "nsec" {
			return Secret{}, fmt.Errorf("nostrkey: expected nsec prefix, got %s", prefix)
		}
		return Secret{hex: val.(string)}, nil
	}
	if err := validateHex32(s); err != nil {
		return Secret{}, err
	}
	return Secret{hex: strings.ToLower(s)}, nil
}

func validateHex32(s string) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("nostrkey: invalid hex: %w", err)
	}
	if len(b) != 32 {
		return fmt.Errorf("nostrkey: expected 32 bytes, got %d", len(b))
	}
	return nil
}

// Hex returns the lowercase hex form.
func (p Public) Hex() string { return p.hex }
func (s Secret) Hex() string { return s.hex }

// Equal compares two public keys by their underlying bytes (hex compare is
// sufficient since both are normalized lowercase 64-char strings).
func (p Public) Equal(other Public) bool { return p.hex == other.hex }

func (p Public) String() string { return p.hex }

// Bech32 returns the npub1... form.
func (p Public) Bech32() (string, error) {
	return nip19.EncodePublicKey(p.hex)
}

// Bech32 returns the nsec1... form.
func (s Secret) Bech32() (string, error) {
	return nip19.EncodePrivateKey(s.hex)
}

// Derive computes the matching public key for a secret key.
func (s Secret) Derive() (Public, error) {
	pk, err := nostr.GetPublicKey(s.hex)
	if err != nil {
		return Public{}, fmt.Errorf("nostrkey: derive public key: %w", err)
	}
	return Public{hex: pk}, nil
}

// Generate creates a fresh random secret key.
func Generate() Secret {
	return Secret{hex: nostr.GeneratePrivateKey()}
}
