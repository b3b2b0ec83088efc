package engine

import "crypto/rand"

// randomBytes fills b with cryptographically random bytes, panicking only
// if the system CSPRNG itself is broken (matches crypto/rand's own
// documented contract: Read on rand.Reader never returns a short read
// without an error, and an error here means the process has no entropy
// source at all).
func randomBytes(b []byte) {
	if _, err := rand.Read(b); err != nil {
		panic("engine: system random source unavailable: " + err.Error())
	}
}
