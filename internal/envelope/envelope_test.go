package envelope

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"github.com/peek-community/validator/internal/nostrkey"
)

func TestWrapUnwrap_RoundTrip(t *testing.T) {
	sender := nostrkey.Generate()
	recipient := nostrkey.Generate()
	recipientPub, err := recipient.Derive()
	if err != nil {
		t.Fatalf("derive recipient pub: %v", err)
	}

	rumor := Rumor{Kind: 27492, Content: `{"type":"preview_request","community_id":"11111111-2222-3333-4444-555555555555"}`}

	wrap, err := Wrap(sender, recipientPub, rumor, nil)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if wrap.Kind != KindWrap {
		t.Fatalf("wrap kind = %d, want %d", wrap.Kind, KindWrap)
	}

	senderPub, err := sender.Derive()
	if err != nil {
		t.Fatalf("derive sender pub: %v", err)
	}

	gotSender, gotRumor, err := Unwrap(recipient, wrap)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if !gotSender.Equal(senderPub) {
		t.Errorf("unwrap sender = %s, want %s", gotSender, senderPub)
	}
	if gotRumor.Content != rumor.Content {
		t.Errorf("unwrap content = %q, want %q", gotRumor.Content, rumor.Content)
	}
	if gotRumor.Kind != rumor.Kind {
		t.Errorf("unwrap kind = %d, want %d", gotRumor.Kind, rumor.Kind)
	}
}

func TestUnwrap_WrongRecipient(t *testing.T) {
	sender := nostrkey.Generate()
	recipient := nostrkey.Generate()
	recipientPub, _ := recipient.Derive()

	wrap, err := Wrap(sender, recipientPub, Rumor{Kind: 27492, Content: "{}"}, nil)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}

	other := nostrkey.Generate()
	_, _, err = Unwrap(other, wrap)
	if err == nil {
		t.Fatal("expected error unwrapping with the wrong recipient secret")
	}
}

func TestUnwrap_MalformedEvent(t *testing.T) {
	recipient := nostrkey.Generate()
	_, _, err := Unwrap(recipient, nil)
	if err != ErrMalformedEvent {
		t.Fatalf("err = %v, want %v", err, ErrMalformedEvent)
	}
}

func TestWrap_ExtraTags(t *testing.T) {
	sender := nostrkey.Generate()
	recipient := nostrkey.Generate()
	recipientPub, _ := recipient.Derive()

	wrap, err := Wrap(sender, recipientPub, Rumor{Kind: 27493, Content: "{}"}, nostr.Tags{{"e", "deadbeef"}})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}

	found := false
	for _, tag := range wrap.Tags {
		if len(tag) >= 2 && tag[0] == "e" && tag[1] == "deadbeef" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected extra e tag to survive onto the wrap event")
	}
}
