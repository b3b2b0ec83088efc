// Package listener holds the subscription for gift-wrapped requests
// addressed to the service key, and dispatches each to the validation
// engine with bounded concurrency.
//
// Grounded on the teacher's subscribeDMCmd (nostr_dm.go): subscribe to
// kind-1059 wraps tagged to our pubkey, unwrap each, continue past errors —
// generalized here from a single goroutine feeding a bubbletea channel into
// a bounded worker pool dispatching to typed handlers, per spec.md §5.
package listener

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/peek-community/validator/internal/engine"
	"github.com/peek-community/validator/internal/envelope"
	"github.com/peek-community/validator/internal/nostrkey"
	"github.com/peek-community/validator/internal/relayclient"
)

const (
	kindWrap     = envelope.KindWrap
	requestKind  = 27492
	responseKind = 27493

	minReconnectDelay = 1 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// Listener holds the subscription filter {kinds:[WRAP], p:[service_pub]}
// and fans incoming wraps out to a bounded pool of handler goroutines.
type Listener struct {
	client         *relayclient.Client
	serviceSecret  nostrkey.Secret
	servicePub     nostrkey.Public
	engine         *engine.Engine
	publishTimeout time.Duration
	handlerTimeout time.Duration
	concurrency    int

	inflight sync.Map // sender hex -> struct{}
}

func New(
	client *relayclient.Client,
	serviceSecret nostrkey.Secret,
	eng *engine.Engine,
	concurrency int,
	publishTimeout, handlerTimeout time.Duration,
) (*Listener, error) {
	servicePub, err := serviceSecret.Derive()
	if err != nil {
		return nil, err
	}
	return &Listener{
		client:         client,
		serviceSecret:  serviceSecret,
		servicePub:     servicePub,
		engine:         eng,
		publishTimeout: publishTimeout,
		handlerTimeout: handlerTimeout,
		concurrency:    concurrency,
	}, nil
}

// Run subscribes and processes wraps until ctx is cancelled. A dropped
// subscription (the teacher's handleDMSubEnded/handleChannelSubEnded, which
// found the channel does end on a relay hiccup) is resubscribed
// automatically with exponential backoff (min 1s, max 60s per spec.md §5),
// generalized from the teacher's fixed 5s dmReconnectDelayCmd/
// groupReconnectDelayCmd retry. It blocks the calling goroutine; callers
// should run it in its own goroutine.
func (l *Listener) Run(ctx context.Context) {
	filter := nostr.Filter{
		Kinds: []int{kindWrap},
		Tags:  nostr.TagMap{"p": []string{l.servicePub.Hex()}},
		Limit: 0,
	}

	sem := make(chan struct{}, l.concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	delay := minReconnectDelay
	for ctx.Err() == nil {
		received := false
		for ie := range l.client.Subscribe(ctx, filter) {
			received = true
			wrap := ie.Event
			sem <- struct{}{}
			wg.Add(1)
			go func(wrap *nostr.Event) {
				defer wg.Done()
				defer func() { <-sem }()
				l.handle(ctx, wrap)
			}(wrap)
		}

		if ctx.Err() != nil {
			return
		}

		if received {
			// The subscription was live at least once; start backing off
			// from the floor again instead of carrying over a long delay
			// from an earlier, unrelated outage.
			delay = minReconnectDelay
		}
		log.Printf("listener: subscription ended, reconnecting in %s", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// handle implements the per-message state machine of spec.md §4.6:
// received-wrap -> unwrapped -> authenticated -> dispatched -> replied, with
// decrypt-fail/bad-sender/unsupported-kind all dropping silently.
func (l *Listener) handle(ctx context.Context, wrap *nostr.Event) {
	sender, rumor, err := envelope.Unwrap(l.serviceSecret, wrap)
	if err != nil {
		log.Printf("listener: unwrap failed: %v", err)
		return
	}

	if rumor.Kind != requestKind {
		return
	}

	senderHex := sender.Hex()
	if _, busy := l.inflight.LoadOrStore(senderHex, struct{}{}); busy {
		log.Printf("listener: dropping request from %s, one already in flight", senderHex)
		return
	}
	defer l.inflight.Delete(senderHex)

	hctx, cancel := context.WithTimeout(ctx, l.handlerTimeout)
	defer cancel()

	parsed, err := engine.ParseRequest([]byte(rumor.Content))
	if err != nil {
		log.Printf("listener: unparseable request from %s: %v", senderHex, err)
		return
	}

	var replyContent any
	switch req := parsed.(type) {
	case engine.LocationValidationRequest:
		replyContent = l.engine.LocationValidation(hctx, req, sender)
	case engine.PreviewRequestBody:
		replyContent = l.engine.PreviewRequest(hctx, req)
	default:
		log.Printf("listener: unrecognized parsed request type from %s", senderHex)
		return
	}

	l.reply(hctx, sender, rumor.ID, replyContent)
}

func (l *Listener) reply(ctx context.Context, recipient nostrkey.Public, requestID string, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Printf("listener: marshal reply to %s: %v", recipient.Hex(), err)
		return
	}

	replyRumor := envelope.Rumor{
		Kind:    responseKind,
		Content: string(payload),
	}
	extraTags := nostr.Tags{{"e", requestID}}

	wrap, err := envelope.Wrap(l.serviceSecret, recipient, replyRumor, extraTags)
	if err != nil {
		log.Printf("listener: wrap reply to %s: %v", recipient.Hex(), err)
		return
	}

	outcome := l.client.Publish(ctx, *wrap, l.publishTimeout)
	if outcome.AllFailed() {
		log.Printf("listener: reply to %s failed on every relay: %v", recipient.Hex(), outcome.FailureMessages())
	}
}
