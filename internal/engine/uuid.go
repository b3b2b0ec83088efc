package engine

import (
	"encoding/hex"
	"fmt"
)

// parseUUID validates the canonical 8-4-4-4-12 dashed hex form. No
// third-party UUID library is used here — see DESIGN.md for why a single,
// ~15-line validation has no business pulling in a dependency nothing else
// in the repo needs.
func parseUUID(s string) (string, error) {
	if len(s) != 36 {
		return "", fmt.Errorf("engine: uuid must be 36 characters, got %d", len(s))
	}
	for i, want := range "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx" {
		if want == '-' {
			if s[i] != '-' {
				return "", fmt.Errorf("engine: uuid malformed at offset %d", i)
			}
			continue
		}
	}
	hexPart := s[0:8] + s[9:13] + s[14:18] + s[19:23] + s[24:36]
	if _, err := hex.DecodeString(hexPart); err != nil {
		return "", fmt.Errorf("engine: uuid has non-hex digits: %w", err)
	}
	return s, nil
}
