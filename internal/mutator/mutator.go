// Package mutator performs the NIP-29 group-membership mutations the
// validation engine needs: creating a group, admitting or removing a
// member, and publishing group metadata — the six-step sequence in
// spec.md §4.5.
//
// Grounded on the teacher's createGroupCmd/putUserCmd/editGroupMetadataCmd
// (nostr_group.go) for the event shapes, and joinGroupCmd's
// "already a member" tolerance check, reused here for add-member
// idempotence.
package mutator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/peek-community/validator/internal/geo"
	"github.com/peek-community/validator/internal/nostrkey"
	"github.com/peek-community/validator/internal/relayclient"
)

const (
	KindCreateGroup   = 9007
	KindPutUser       = 9000
	KindRemoveUser    = 9001
	KindEditMetadata  = 9002
	KindGroupMetadata = 39000

	// KindDiscoveryMap is the replaceable event publishing the full set of
	// known display cells for the public discovery map (spec.md §4.5 step
	// 7). Not a standard NIP-29 kind; spec.md leaves the exact wire kind
	// unpinned, so this is an application-level convention, parallel to the
	// 39000/39002 parameterized-replaceable range.
	KindDiscoveryMap = 39100
	discoveryMapD    = "peek-discovery-map"

	uuidTagPrefix = "peek:uuid:"
)

// idempotentFailureMarkers lists the relay rejection substrings that mean
// "this mutation already holds", which the mutator treats as success rather
// than as a hard failure.
var idempotentFailureMarkers = []string{
	"duplicate",
	"already exists",
	"already a member",
	"already-member",
}

// Mutator issues NIP-29 moderation events as serviceSecret, the relay-wide
// admin key used to bootstrap and then immediately demote itself out of each
// new group (spec.md §4.5 step 4).
type Mutator struct {
	client        *relayclient.Client
	serviceSecret nostrkey.Secret
	publishTimeout time.Duration
}

func New(client *relayclient.Client, serviceSecret nostrkey.Secret, publishTimeout time.Duration) *Mutator {
	return &Mutator{client: client, serviceSecret: serviceSecret, publishTimeout: publishTimeout}
}

// CreateGroupParams collects everything step 6's metadata publish needs.
type CreateGroupParams struct {
	GroupID  string
	UUID     string
	Name     string
	About    string
	Picture  string
	Rules    []string
	IsPublic bool
	IsOpen   bool
	Lat, Lon float64
}

// CreateGroup runs the full six-step bootstrap: create the group, promote
// the requester to admin, revoke the service key's own admin status,
// ensure the requester is a member, publish metadata (with validation and
// display geohashes), and return the display cell for the discovery map.
func (m *Mutator) CreateGroup(ctx context.Context, params CreateGroupParams, requester nostrkey.Public) (displayCell string, err error) {
	if err := m.createGroupEvent(ctx, params.GroupID); err != nil {
		return "", fmt.Errorf("mutator: create group: %w", err)
	}
	if err := m.putUser(ctx, params.GroupID, requester, "admin"); err != nil {
		// spec.md §4.5 step 3: failing to promote the requester is logged,
		// not fatal — step 5 still adds them as a plain member, so the
		// community is still usable even if they never got admin rights.
		log.Printf("mutator: promote requester %s in group %s failed (continuing): %v", requester.Hex(), params.GroupID, err)
	}
	if err := m.removeUser(ctx, params.GroupID, m.serviceKeyPublic()); err != nil {
		return "", fmt.Errorf("mutator: revoke service admin: %w", err)
	}
	if err := m.AddMember(ctx, params.GroupID, requester); err != nil {
		return "", fmt.Errorf("mutator: ensure membership: %w", err)
	}

	validationCell := geo.Encode(params.Lat, params.Lon, geo.CellPrecision)
	displayCell, err = geo.DisplayOffset(params.Lat, params.Lon)
	if err != nil {
		return "", fmt.Errorf("mutator: compute display offset: %w", err)
	}

	if err := m.publishMetadata(ctx, params, validationCell, displayCell); err != nil {
		return "", fmt.Errorf("mutator: publish metadata: %w", err)
	}

	return displayCell, nil
}

func (m *Mutator) serviceKeyPublic() nostrkey.Public {
	pub, _ := m.serviceSecret.Derive()
	return pub
}

func (m *Mutator) createGroupEvent(ctx context.Context, groupID string) error {
	evt := nostr.Event{
		Kind:      KindCreateGroup,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{"h", groupID}},
	}
	return m.publishTolerant(ctx, evt)
}

func (m *Mutator) putUser(ctx context.Context, groupID string, pub nostrkey.Public, role string) error {
	tags := nostr.Tags{
		{"h", groupID},
		{"p", pub.Hex(), role},
	}
	evt := nostr.Event{Kind: KindPutUser, CreatedAt: nostr.Now(), Tags: tags}
	return m.publishTolerant(ctx, evt)
}

func (m *Mutator) removeUser(ctx context.Context, groupID string, pub nostrkey.Public) error {
	evt := nostr.Event{
		Kind:      KindRemoveUser,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{"h", groupID}, {"p", pub.Hex()}},
	}
	return m.publishTolerant(ctx, evt)
}

// AddMember admits pub as a plain (non-admin) member, tolerating a relay
// telling us they already are one.
func (m *Mutator) AddMember(ctx context.Context, groupID string, pub nostrkey.Public) error {
	return m.putUser(ctx, groupID, pub, "member")
}

// PublishDiscoveryMap republishes the replaceable discovery-map event
// listing every known display cell, spec.md §4.5 step 7. Called only on
// create, not on every member add (DESIGN.md Open Question 3: member adds
// never change a group's dg, so there is nothing new for the map to show).
func (m *Mutator) PublishDiscoveryMap(ctx context.Context, displayCells []string) error {
	tags := nostr.Tags{{"d", discoveryMapD}}
	for _, cell := range displayCells {
		tags = append(tags, nostr.Tag{"dg", cell})
	}
	evt := nostr.Event{Kind: KindDiscoveryMap, CreatedAt: nostr.Now(), Tags: tags}
	return m.publishTolerant(ctx, evt)
}

// RemoveMember evicts pub from groupID. Not called by the validation engine
// today (spec.md §9 Open Question 4), but is part of the full NIP-29
// mutation surface spec.md §4.5 describes.
func (m *Mutator) RemoveMember(ctx context.Context, groupID string, pub nostrkey.Public) error {
	return m.removeUser(ctx, groupID, pub)
}

func (m *Mutator) publishMetadata(ctx context.Context, params CreateGroupParams, validationCell, displayCell string) error {
	name := params.Name
	if name == "" {
		name = "Community " + shortUUID(params.UUID)
	}

	visibility := "private"
	if params.IsPublic {
		visibility = "public"
	}
	openness := "closed"
	if params.IsOpen {
		openness = "open"
	}

	tags := nostr.Tags{
		{"h", params.GroupID},
		{"d", params.GroupID},
		{"name", name},
		{visibility},
		{openness},
		{"g", validationCell},
		{"dg", displayCell},
		{"i", uuidTagPrefix + params.UUID},
	}
	if params.About != "" {
		tags = append(tags, nostr.Tag{"about", params.About})
	}
	if params.Picture != "" {
		tags = append(tags, nostr.Tag{"picture", params.Picture})
	}
	for _, rule := range params.Rules {
		tags = append(tags, nostr.Tag{"rule", rule})
	}

	evt := nostr.Event{Kind: KindEditMetadata, CreatedAt: nostr.Now(), Tags: tags}
	return m.publishTolerant(ctx, evt)
}

// publishTolerant signs as the service key and publishes, treating any
// relay failure whose message matches an idempotence marker as success —
// the same tolerance the teacher's joinGroupCmd applies to "already a
// member" rejections.
func (m *Mutator) publishTolerant(ctx context.Context, evt nostr.Event) error {
	if err := evt.Sign(m.serviceSecret.Hex()); err != nil {
		return fmt.Errorf("sign event: %w", err)
	}
	outcome := m.client.Publish(ctx, evt, m.publishTimeout)
	if !outcome.AllFailed() {
		return nil
	}
	if isIdempotentFailure(outcome.FailureMessages()) {
		return nil
	}
	return fmt.Errorf("all relays rejected kind %d: %v", evt.Kind, outcome.FailureMessages())
}

// isIdempotentFailure reports whether any relay rejection in msgs matches
// a known idempotence marker ("duplicate", "already exists", ...), meaning
// the mutation already holds rather than having genuinely failed. An empty
// msgs reports false.
func isIdempotentFailure(msgs []string) bool {
	for _, msg := range msgs {
		lower := strings.ToLower(msg)
		for _, marker := range idempotentFailureMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

func shortUUID(u string) string {
	if i := strings.IndexByte(u, '-'); i > 0 {
		return u[:i]
	}
	if len(u) > 8 {
		return u[:8]
	}
	return u
}
