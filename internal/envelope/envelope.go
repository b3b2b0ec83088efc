// Package envelope implements the two-layer NIP-59 sealed envelope: a rumor
// (unsigned record) sealed from sender to recipient, then wrapped a second
// time under a fresh ephemeral key so the relay never sees the true sender.
//
// Grounded on girino-tcp-over-nostr's manual rumor/seal/giftwrap construction
// (nostr.go's createEphemeralSeal/createEphemeralGiftWrap/
// UnwrapEphemeralGiftWrap), adapted from its ephemeral-kind experiment back
// onto the standard NIP-59 kinds, and on the teacher's nip59.GiftUnwrap call
// site for the "wrap author is untrusted" contract.
package envelope

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"

	"github.com/peek-community/validator/internal/nostrkey"
)

const (
	// KindSeal is the signed, encrypted-rumor event kind (NIP-59 seal).
	KindSeal = 13
	// KindWrap is the outer, ephemeral-signed gift wrap kind.
	KindWrap = 1059

	maxBackdate = 2 * 24 * time.Hour
	expireAfter = 3 * 24 * time.Hour
)

// Rumor is an unsigned structured record. It never touches a relay directly;
// only its sealed-and-wrapped ciphertext does.
type Rumor struct {
	PubKey    string          `json:"pubkey"`
	CreatedAt nostr.Timestamp `json:"created_at"`
	Kind      int             `json:"kind"`
	Tags      nostr.Tags      `json:"tags"`
	Content   string          `json:"content"`
	ID        string          `json:"id,omitempty"`
}

// Failure modes, per spec §4.1.
var (
	ErrDecryptFailed  = fmt.Errorf("envelope: decrypt failed")
	ErrMalformedEvent = fmt.Errorf("envelope: malformed event")
	ErrBadSignature   = fmt.Errorf("envelope: bad signature")
	ErrWrongRecipient = fmt.Errorf("envelope: wrong recipient")
)

// rumorID computes the same id a signed nostr.Event of identical fields
// would have, so a rumor can be correlated by id even though it is never
// signed itself.
func rumorID(r Rumor) string {
	evt := nostr.Event{
		PubKey:    r.PubKey,
		CreatedAt: r.CreatedAt,
		Kind:      r.Kind,
		Tags:      r.Tags,
		Content:   r.Content,
	}
	return evt.GetID()
}

// Wrap seals rumor from senderSecret to recipientPub, then wraps the seal a
// second time under a fresh ephemeral key, per spec §4.1.
func Wrap(senderSecret nostrkey.Secret, recipientPub nostrkey.Public, rumor Rumor, extraTags nostr.Tags) (*nostr.Event, error) {
	senderPub, err := senderSecret.Derive()
	if err != nil {
		return nil, fmt.Errorf("envelope: derive sender pubkey: %w", err)
	}
	rumor.PubKey = senderPub.Hex()
	if rumor.CreatedAt == 0 {
		rumor.CreatedAt = nostr.Now()
	}
	rumor.ID = rumorID(rumor)

	rumorJSON, err := json.Marshal(rumor)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal rumor: %w", err)
	}

	sealKey, err := nip44.GenerateConversationKey(recipientPub.Hex(), senderSecret.Hex())
	if err != nil {
		return nil, fmt.Errorf("envelope: seal conversation key: %w", err)
	}
	sealCiphertext, err := nip44.Encrypt(string(rumorJSON), sealKey)
	if err != nil {
		return nil, fmt.Errorf("envelope: encrypt seal: %w", err)
	}

	seal := nostr.Event{
		Kind:      KindSeal,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{},
		Content:   sealCiphertext,
	}
	if err := seal.Sign(senderSecret.Hex()); err != nil {
		return nil, fmt.Errorf("envelope: sign seal: %w", err)
	}

	ephemeral := nostrkey.Generate()
	sealJSON, err := json.Marshal(seal)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal seal: %w", err)
	}

	wrapKey, err := nip44.GenerateConversationKey(recipientPub.Hex(), ephemeral.Hex())
	if err != nil {
		return nil, fmt.Errorf("envelope: wrap conversation key: %w", err)
	}
	wrapCiphertext, err := nip44.Encrypt(string(sealJSON), wrapKey)
	if err != nil {
		return nil, fmt.Errorf("envelope: encrypt wrap: %w", err)
	}

	tags := nostr.Tags{
		{"p", recipientPub.Hex()},
		{"expiration", fmt.Sprintf("%d", time.Now().Add(expireAfter).Unix())},
	}
	tags = append(tags, extraTags...)

	wrap := nostr.Event{
		Kind:      KindWrap,
		CreatedAt: randomBackdated(),
		Tags:      tags,
		Content:   wrapCiphertext,
	}
	if err := wrap.Sign(ephemeral.Hex()); err != nil {
		return nil, fmt.Errorf("envelope: sign wrap: %w", err)
	}

	return &wrap, nil
}

// randomBackdated returns a timestamp uniformly distributed in
// [now - 2 days, now], so wraps can't be correlated by their outer
// created_at.
func randomBackdated() nostr.Timestamp {
	now := time.Now()
	maxOffset := int64(maxBackdate / time.Second)
	n, err := rand.Int(rand.Reader, big.NewInt(maxOffset+1))
	offset := maxOffset
	if err == nil {
		offset = n.Int64()
	}
	return nostr.Timestamp(now.Unix() - offset)
}

// Unwrap decrypts a gift-wrapped event addressed to recipientSecret,
// returning the authentic sender (the seal's author — never the wrap's
// ephemeral author) and the enclosed rumor.
func Unwrap(recipientSecret nostrkey.Secret, wrap *nostr.Event) (nostrkey.Public, Rumor, error) {
	if wrap == nil || wrap.Kind != KindWrap {
		return nostrkey.Public{}, Rumor{}, ErrMalformedEvent
	}

	recipientPub, err := recipientSecret.Derive()
	if err != nil {
		return nostrkey.Public{}, Rumor{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if !addressedTo(wrap, recipientPub.Hex()) {
		return nostrkey.Public{}, Rumor{}, ErrWrongRecipient
	}

	wrapKey, err := nip44.GenerateConversationKey(wrap.PubKey, recipientSecret.Hex())
	if err != nil {
		return nostrkey.Public{}, Rumor{}, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	sealJSON, err := nip44.Decrypt(wrap.Content, wrapKey)
	if err != nil {
		return nostrkey.Public{}, Rumor{}, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	var seal nostr.Event
	if err := json.Unmarshal([]byte(sealJSON), &seal); err != nil {
		return nostrkey.Public{}, Rumor{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if seal.Kind != KindSeal {
		return nostrkey.Public{}, Rumor{}, ErrMalformedEvent
	}
	if ok, err := seal.CheckSignature(); err != nil || !ok {
		return nostrkey.Public{}, Rumor{}, ErrBadSignature
	}

	rumorKey, err := nip44.GenerateConversationKey(seal.PubKey, recipientSecret.Hex())
	if err != nil {
		return nostrkey.Public{}, Rumor{}, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	rumorJSON, err := nip44.Decrypt(seal.Content, rumorKey)
	if err != nil {
		return nostrkey.Public{}, Rumor{}, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	var rumor Rumor
	if err := json.Unmarshal([]byte(rumorJSON), &rumor); err != nil {
		return nostrkey.Public{}, Rumor{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	senderPub, err := nostrkey.ParsePublic(seal.PubKey)
	if err != nil {
		return nostrkey.Public{}, Rumor{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if rumor.PubKey != "" && rumor.PubKey != seal.PubKey {
		return nostrkey.Public{}, Rumor{}, ErrMalformedEvent
	}

	return senderPub, rumor, nil
}

// addressedTo reports whether the wrap carries a p tag equal to pubHex.
func addressedTo(wrap *nostr.Event, pubHex string) bool {
	for _, tag := range wrap.Tags {
		if len(tag) >= 2 && tag[0] == "p" && tag[1] == pubHex {
			return true
		}
	}
	return false
}
