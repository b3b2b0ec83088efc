package mutator

import "testing"

func TestIsIdempotentFailure(t *testing.T) {
	cases := []struct {
		name string
		msgs []string
		want bool
	}{
		{"duplicate", []string{"relay1: duplicate: event already stored"}, true},
		{"already exists", []string{"wss://r: blocked: group already exists"}, true},
		{"already a member", []string{"wss://r: error: user is already a member"}, true},
		{"unrelated failure", []string{"wss://r: rate-limited"}, false},
		{"empty", nil, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := isIdempotentFailure(c.msgs); got != c.want {
				t.Errorf("isIdempotentFailure(%v) = %v, want %v", c.msgs, got, c.want)
			}
		})
	}
}

func TestShortUUID(t *testing.T) {
	cases := map[string]string{
		"11111111-2222-3333-4444-555555555555": "11111111",
		"nodashesatall12345678":                 "nodashes",
	}
	for in, want := range cases {
		if got := shortUUID(in); got != want {
			t.Errorf("shortUUID(%q) = %q, want %q", in, got, want)
		}
	}
}
