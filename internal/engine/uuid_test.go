package engine

import "testing"

func TestParseUUID_Valid(t *testing.T) {
	u := "11111111-2222-3333-4444-555555555555"
	got, err := parseUUID(u)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != u {
		t.Errorf("got %q, want %q", got, u)
	}
}

func TestParseUUID_Invalid(t *testing.T) {
	cases := []string{
		"",
		"not-a-uuid",
		"11111111-2222-3333-4444",                 // too short
		"111111112222333344445555555555555555555", // no dashes
		"1111111g-2222-3333-4444-555555555555",    // non-hex digit
	}
	for _, c := range cases {
		if _, err := parseUUID(c); err == nil {
			t.Errorf("parseUUID(%q) expected error, got nil", c)
		}
	}
}
