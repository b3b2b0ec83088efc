// Package registry resolves community UUIDs to NIP-29 group ids and reads
// group metadata/membership, with a small in-memory cache since the
// UUID-to-group-id mapping never changes once a group is created.
//
// Grounded on the teacher's fetchGroupMetaCmd/waitForGroupEvent tag-scanning
// pattern (nostr_group.go), generalized to the peek:uuid: external-id tag
// and the member-count fetch spec.md §4.4 requires.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip29"

	"github.com/peek-community/validator/internal/relayclient"
)

// ErrMetadataNotFound is returned by GetGroupMetadata when no kind-39000
// event for groupID is observed before the deadline. Since every call site
// only reaches GetGroupMetadata after a group id has already been resolved
// (the group is known to exist), this always signals a relay fetch failure
// or timeout, never a genuine absence — spec.md §4.7 requires it surface as
// COMMUNITY_ERROR rather than be mistaken for "community not found yet".
var ErrMetadataNotFound = errors.New("registry: group metadata not found")

const (
	KindGroupMetadata = 39000
	KindGroupMembers  = 39002

	uuidTagPrefix = "peek:uuid:"
)

// Metadata is the subset of a kind-39000 group-metadata event the engine
// needs, plus the member count read independently from kind 39002.
type Metadata struct {
	GroupID     string
	Name        string
	About       string
	Picture     string
	Rules       []string
	IsPublic    bool
	IsOpen      bool
	Geohash     string // g tag: precision-8 validation cell
	DisplayGeo  string // dg tag: precision-9 public discovery cell
	UUID        string
	CreatedAt   nostr.Timestamp
	MemberCount int
}

// Registry resolves community UUIDs against one or more relays and caches
// the UUID -> group-id mapping, since it is set once at creation and never
// changes (spec.md §4.4, §5: no other persistent state). It also accumulates
// the set of display cells (dg) published on creation, the in-process source
// of truth spec.md §6 says the HTTP discovery collaborator reads, and which
// the mutator's discovery-map republish (§4.5 step 7) draws from.
type Registry struct {
	client *relayclient.Client

	mu           sync.RWMutex
	byUUID       map[string]string
	displayCells []string
}

func New(client *relayclient.Client) *Registry {
	return &Registry{client: client, byUUID: make(map[string]string)}
}

// AddDisplayCell records a newly published community's dg cell.
func (r *Registry) AddDisplayCell(cell string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.displayCells = append(r.displayCells, cell)
}

// DisplayCells returns every known display cell, for the discovery-map
// republish and the external HTTP discovery collaborator alike.
func (r *Registry) DisplayCells() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.displayCells))
	copy(out, r.displayCells)
	return out
}

// FindGroupByUUID returns the NIP-29 group id addressed by u, or "" if no
// group advertises that external id within deadline.
func (r *Registry) FindGroupByUUID(ctx context.Context, u string, deadline time.Duration) (string, error) {
	r.mu.RLock()
	if gid, ok := r.byUUID[u]; ok {
		r.mu.RUnlock()
		return gid, nil
	}
	r.mu.RUnlock()

	filter := nostr.Filter{
		Kinds: []int{KindGroupMetadata},
		Tags:  nostr.TagMap{"i": []string{uuidTagPrefix + u}},
		Limit: 1,
	}
	evt := r.client.FetchOne(ctx, filter, deadline)
	if evt == nil {
		return "", nil
	}
	var gid string
	if dTag := evt.Tags.GetFirst([]string{"d"}); dTag != nil {
		gid = dTag.Value()
	}
	if gid == "" {
		return "", fmt.Errorf("registry: group metadata event %s missing d tag", evt.ID)
	}

	r.mu.Lock()
	r.byUUID[u] = gid
	r.mu.Unlock()
	return gid, nil
}

// Remember records a UUID -> group-id mapping the mutator just created,
// avoiding a redundant round-trip fetch right after creation.
func (r *Registry) Remember(u, groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUUID[u] = groupID
}

// GetGroupMetadata fetches the kind-39000 metadata event for groupID and,
// independently, the kind-39002 members event for its member count, as two
// separate replaceable-event lookups (spec.md §4.4).
func (r *Registry) GetGroupMetadata(ctx context.Context, groupID string, deadline time.Duration) (*Metadata, error) {
	metaFilter := nostr.Filter{
		Kinds: []int{KindGroupMetadata},
		Tags:  nostr.TagMap{"d": []string{groupID}},
		Limit: 1,
	}
	metaEvt := r.client.FetchOne(ctx, metaFilter, deadline)
	if metaEvt == nil {
		return nil, fmt.Errorf("%w: group %s", ErrMetadataNotFound, groupID)
	}
	md, err := parseMetadataTags(groupID, metaEvt)
	if err != nil {
		return nil, err
	}

	membersFilter := nostr.Filter{
		Kinds: []int{KindGroupMembers},
		Tags:  nostr.TagMap{"d": []string{groupID}},
		Limit: 1,
	}
	membersEvt := r.client.FetchOne(ctx, membersFilter, deadline)
	if membersEvt != nil {
		md.MemberCount = countMemberTags(membersEvt.Tags)
	}

	return md, nil
}

// parseMetadataTags implements spec.md §4.4's tag-parsing policy. The
// standard NIP-29 fields (name/about/picture, public-or-private,
// open-or-closed) are parsed by nip29.NewGroupFromMetadataEvent, the same
// call the teacher's fetchGroupMetaCmd makes; the g/dg/i/rule tags are
// application-level conventions nip29 doesn't know about and are still
// scanned by hand, with only precision-8 values accepted as g and
// precision-9 as dg, out-of-spec lengths silently ignored rather than
// rejected.
func parseMetadataTags(groupID string, evt *nostr.Event) (*Metadata, error) {
	g, err := nip29.NewGroupFromMetadataEvent("", evt)
	if err != nil {
		return nil, fmt.Errorf("registry: parse group metadata %s: %w", evt.ID, err)
	}

	md := &Metadata{
		GroupID:   groupID,
		CreatedAt: evt.CreatedAt,
		Name:      g.Name,
		About:     g.About,
		Picture:   g.Picture,
		IsPublic:  !g.Private,
		IsOpen:    !g.Closed,
	}

	for _, tag := range evt.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "rule":
			md.Rules = append(md.Rules, tag[1])
		case "g":
			if len(tag[1]) == 8 {
				md.Geohash = tag[1]
			}
		case "dg":
			if len(tag[1]) == 9 {
				md.DisplayGeo = tag[1]
			}
		case "i":
			if after, ok := cutPrefix(tag[1], uuidTagPrefix); ok {
				md.UUID = after
			}
		}
	}
	return md, nil
}

func countMemberTags(tags nostr.Tags) int {
	count := 0
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == "p" {
			count++
		}
	}
	return count
}

// GroupExistsWithoutGeohash reports whether the community identified by UUID
// u already has a group with at least one member but no g tag yet — the
// corrupted state spec.md §3/§4.4 names as the narrow window between group
// creation (step 2) and metadata publish (step 6) in the mutator's create
// sequence going wrong.
func (r *Registry) GroupExistsWithoutGeohash(ctx context.Context, u string, deadline time.Duration) (bool, error) {
	groupID, err := r.FindGroupByUUID(ctx, u, deadline)
	if err != nil {
		return false, err
	}
	if groupID == "" {
		return false, nil
	}
	md, err := r.GetGroupMetadata(ctx, groupID, deadline)
	if err != nil {
		return false, err
	}
	return md.MemberCount >= 1 && md.Geohash == "", nil
}

func cutPrefix(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return s, false
	}
	return s[len(prefix):], true
}
