// Package relayclient is the relay client façade: authenticated connections
// to one or more relays, a deduped subscription stream, timeout-bounded
// publish, and deadline-bounded fetch.
//
// Grounded on the teacher's nostr.SimplePool construction (main.go, with
// nostr.WithAuthHandler for NIP-42) and on girino-tcp-over-nostr's
// NostrRelayHandler, the pack's clearest example of wrapping a pool in a
// dedicated façade type with its own Publish/Subscribe methods instead of
// calling the pool inline from every call site.
package relayclient

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/peek-community/validator/internal/nostrkey"
)

// Client holds authenticated sessions to a set of relays.
type Client struct {
	pool   *nostr.SimplePool
	relays []string
}

// Connect opens a pool that authenticates via NIP-42 using serviceSecret
// when a relay challenges it, mirroring the teacher's
// nostr.WithAuthHandler(...) wiring in main.go.
func Connect(ctx context.Context, urls []string, serviceSecret nostrkey.Secret) *Client {
	pool := nostr.NewSimplePool(ctx, nostr.WithAuthHandler(func(ctx context.Context, ie nostr.RelayEvent) error {
		log.Printf("relayclient: NIP-42 auth requested by %s", ie.Relay.URL)
		evt := ie.Event
		return evt.Sign(serviceSecret.Hex())
	}))
	for _, u := range urls {
		if _, err := pool.EnsureRelay(u); err != nil {
			log.Printf("relayclient: failed to connect to %s: %v", u, err)
		}
	}
	return &Client{pool: pool, relays: urls}
}

// Close tears down every relay connection.
func (c *Client) Close() {
	c.pool.Close("shutdown")
}

// Subscribe opens a single long-lived, cross-relay deduped subscription.
// Events are delivered out of order as they arrive from any relay.
func (c *Client) Subscribe(ctx context.Context, filter nostr.Filter) <-chan nostr.RelayEvent {
	return c.pool.SubscribeMany(ctx, c.relays, filter)
}

// PublishOutcome is the result of a bounded publish attempt.
type PublishOutcome struct {
	Accepted []string
	Failed   map[string]error
}

// AllFailed reports whether no relay accepted the event.
func (o PublishOutcome) AllFailed() bool { return len(o.Accepted) == 0 }

// FailureMessages concatenates every relay's raw rejection message, so
// callers can classify idempotent failures (e.g. "duplicate") without the
// façade guessing intent for them.
func (o PublishOutcome) FailureMessages() []string {
	msgs := make([]string, 0, len(o.Failed))
	for relay, err := range o.Failed {
		msgs = append(msgs, fmt.Sprintf("%s: %v", relay, err))
	}
	return msgs
}

// Publish attempts to send evt to every relay in the pool, bounded by
// timeout. On expiry it returns whatever outcome has accumulated so far
// rather than blocking further.
func (c *Client) Publish(ctx context.Context, evt nostr.Event, timeout time.Duration) PublishOutcome {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome := PublishOutcome{Failed: make(map[string]error)}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, url := range c.relays {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			r, err := c.pool.EnsureRelay(url)
			if err != nil {
				mu.Lock()
				outcome.Failed[url] = err
				mu.Unlock()
				return
			}
			if err := r.Publish(ctx, evt); err != nil {
				mu.Lock()
				outcome.Failed[url] = err
				mu.Unlock()
				return
			}
			mu.Lock()
			outcome.Accepted = append(outcome.Accepted, url)
			mu.Unlock()
		}(url)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("relayclient: publish of %s timed out after %s", evt.ID, timeout)
	}

	return outcome
}

// Fetch queries every relay for filter and returns the deduped union of
// whatever arrives before deadline elapses.
func (c *Client) Fetch(ctx context.Context, filter nostr.Filter, deadline time.Duration) []nostr.Event {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	seen := make(map[string]struct{})
	var out []nostr.Event
	for ie := range c.pool.SubscribeMany(ctx, c.relays, filter) {
		if _, ok := seen[ie.ID]; ok {
			continue
		}
		seen[ie.ID] = struct{}{}
		out = append(out, *ie.Event)
	}
	return out
}

// FetchOne is a convenience for the common single-result lookup
// (find_group_by_uuid, get_group_metadata): returns the first event seen, or
// nil if the deadline elapses with nothing found.
func (c *Client) FetchOne(ctx context.Context, filter nostr.Filter, deadline time.Duration) *nostr.Event {
	filter.Limit = 1
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	for ie := range c.pool.SubscribeMany(ctx, c.relays, filter) {
		cancel()
		return ie.Event
	}
	return nil
}
