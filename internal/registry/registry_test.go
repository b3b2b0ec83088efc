package registry

import (
	"context"
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func TestParseMetadataTags(t *testing.T) {
	evt := &nostr.Event{
		Kind:      KindGroupMetadata,
		CreatedAt: nostr.Timestamp(1000),
		Tags: nostr.Tags{
			{"h", "peek-abc1234567"},
			{"d", "peek-abc1234567"},
			{"name", "Community 11111111"},
			{"about", "a neighborhood group"},
			{"private"},
			{"closed"},
			{"g", "9q8yyk1m"},
			{"dg", "9q8yyk1mf"},
			{"i", "peek:uuid:11111111-2222-3333-4444-555555555555"},
			{"rule", "be kind"},
			{"rule", "no spam"},
		},
	}

	md, err := parseMetadataTags("peek-abc1234567", evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if md.Name != "Community 11111111" {
		t.Errorf("Name = %q", md.Name)
	}
	if md.IsPublic {
		t.Error("expected IsPublic=false for a private tag")
	}
	if md.IsOpen {
		t.Error("expected IsOpen=false for a closed tag")
	}
	if md.Geohash != "9q8yyk1m" {
		t.Errorf("Geohash = %q", md.Geohash)
	}
	if md.DisplayGeo != "9q8yyk1mf" {
		t.Errorf("DisplayGeo = %q", md.DisplayGeo)
	}
	if md.UUID != "11111111-2222-3333-4444-555555555555" {
		t.Errorf("UUID = %q", md.UUID)
	}
	if len(md.Rules) != 2 {
		t.Errorf("Rules = %v, want 2 entries", md.Rules)
	}
}

func TestParseMetadataTags_RejectsOutOfPrecisionGeohash(t *testing.T) {
	evt := &nostr.Event{
		Kind: KindGroupMetadata,
		Tags: nostr.Tags{{"d", "H"}, {"g", "abc"}, {"dg", "abcdefgh"}},
	}
	md, err := parseMetadataTags("H", evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if md.Geohash != "" {
		t.Errorf("expected out-of-precision g tag to be ignored, got %q", md.Geohash)
	}
	if md.DisplayGeo != "" {
		t.Errorf("expected out-of-precision dg tag to be ignored, got %q", md.DisplayGeo)
	}
}

func TestCountMemberTags(t *testing.T) {
	tags := nostr.Tags{
		{"d", "peek-abc1234567"},
		{"p", "pub1"},
		{"p", "pub2"},
	}
	if got := countMemberTags(tags); got != 2 {
		t.Errorf("countMemberTags = %d, want 2", got)
	}
}

func TestRegistry_RememberAndFind(t *testing.T) {
	r := New(nil)
	r.Remember("U", "H")

	got, err := r.FindGroupByUUID(context.Background(), "U", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "H" {
		t.Errorf("got %q, want %q", got, "H")
	}
}

func TestRegistry_DisplayCells(t *testing.T) {
	r := New(nil)
	if got := r.DisplayCells(); len(got) != 0 {
		t.Fatalf("expected no display cells initially, got %v", got)
	}

	r.AddDisplayCell("9q8yyk1mf")
	r.AddDisplayCell("9q8yynqgc")

	got := r.DisplayCells()
	if len(got) != 2 || got[0] != "9q8yyk1mf" || got[1] != "9q8yynqgc" {
		t.Fatalf("DisplayCells() = %v, want [9q8yyk1mf 9q8yynqgc]", got)
	}

	// Mutating the returned slice must not affect the registry's own copy.
	got[0] = "tampered"
	if fresh := r.DisplayCells()[0]; fresh != "9q8yyk1mf" {
		t.Fatalf("DisplayCells() returned an aliased slice, got %q after mutation", fresh)
	}
}
