package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/peek-community/validator/internal/geo"
	"github.com/peek-community/validator/internal/mutator"
	"github.com/peek-community/validator/internal/nostrkey"
	"github.com/peek-community/validator/internal/registry"
)

// Timeouts bundles the deadlines spec.md §5 assigns to each suspension
// point a handler can hit. Publish timeouts live with the mutator, which
// issues the writes; the engine only needs the query deadline for its own
// registry lookups.
type Timeouts struct {
	Query time.Duration
}

// groupRegistry is the slice of *registry.Registry the engine depends on.
// Narrowed to an interface (rather than the concrete type) so the six
// scenarios of spec.md §8 can be exercised against a fake without a live
// relay.
type groupRegistry interface {
	GroupExistsWithoutGeohash(ctx context.Context, uuid string, deadline time.Duration) (bool, error)
	FindGroupByUUID(ctx context.Context, uuid string, deadline time.Duration) (string, error)
	GetGroupMetadata(ctx context.Context, groupID string, deadline time.Duration) (*registry.Metadata, error)
	Remember(uuid, groupID string)
	AddDisplayCell(cell string)
	DisplayCells() []string
}

// groupMutator is the slice of *mutator.Mutator the engine depends on, for
// the same reason as groupRegistry above.
type groupMutator interface {
	CreateGroup(ctx context.Context, params mutator.CreateGroupParams, requester nostrkey.Public) (string, error)
	AddMember(ctx context.Context, groupID string, pub nostrkey.Public) error
	PublishDiscoveryMap(ctx context.Context, displayCells []string) error
}

// Engine is the validation engine of spec.md §4.7: it owns no state of its
// own beyond a reference to the registry, the mutator, and the public relay
// URL returned to callers on success.
type Engine struct {
	registry       groupRegistry
	mutator        groupMutator
	publicRelayURL string
	timeouts       Timeouts
}

func New(reg groupRegistry, mut groupMutator, publicRelayURL string, timeouts Timeouts) *Engine {
	return &Engine{registry: reg, mutator: mut, publicRelayURL: publicRelayURL, timeouts: timeouts}
}

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }
func u32p(n uint32) *uint32 { return &n }
func u64p(n uint64) *uint64 { return &n }

func failedValidation(code string) LocationValidationResponse {
	return LocationValidationResponse{
		Type:      TypeLocationValidationResponse,
		Success:   false,
		ErrorCode: strp(code),
	}
}

// LocationValidation implements spec.md §4.7's admission decision: parse the
// UUID, check for corrupted state, resolve or create the community, and
// either admit the sender as a member or reject on distance.
func (e *Engine) LocationValidation(ctx context.Context, req LocationValidationRequest, sender nostrkey.Public) LocationValidationResponse {
	uuid, err := parseUUID(req.CommunityID)
	if err != nil {
		return failedValidation(ErrInvalidID)
	}

	corrupted, err := e.registry.GroupExistsWithoutGeohash(ctx, uuid, e.timeouts.Query)
	if err != nil {
		return failedValidation(ErrCommunityError)
	}
	if corrupted {
		return failedValidation(ErrCommunityError)
	}

	groupID, err := e.registry.FindGroupByUUID(ctx, uuid, e.timeouts.Query)
	if err != nil {
		return failedValidation(ErrCommunityError)
	}
	if groupID == "" {
		// Genuinely unregistered: no group anywhere advertises this UUID.
		// spec.md §4.7 treats this case, and only this case, as "not found"
		// rather than an error.
		return e.createCommunity(ctx, uuid, req.Location, sender)
	}

	// groupID is already resolved, so the group is known to exist; a failed
	// metadata fetch here (including registry.ErrMetadataNotFound, which
	// covers both a timed-out relay and a metadata event that never
	// arrived) is a fetch failure, not evidence the community is new, and
	// must not fall through to community creation — spec.md §4.7 calls for
	// COMMUNITY_ERROR here, distinct from the UUID-lookup miss above.
	meta, err := e.registry.GetGroupMetadata(ctx, groupID, e.timeouts.Query)
	if err != nil {
		return failedValidation(ErrCommunityError)
	}

	if meta.MemberCount == 0 {
		return e.createCommunity(ctx, uuid, req.Location, sender)
	}

	if meta.Geohash == "" {
		// Shouldn't be reachable since GroupExistsWithoutGeohash already
		// checked this, but a member-count>0 group with no g tag is the
		// same corrupted-state condition spec.md §3 names.
		return failedValidation(ErrCommunityError)
	}

	ok, err := geo.InCellOrNeighbor(req.Location.Latitude, req.Location.Longitude, meta.Geohash)
	if err != nil {
		return failedValidation(ErrCommunityError)
	}
	if !ok {
		return failedValidation(ErrLocationInvalid)
	}

	if err := e.mutator.AddMember(ctx, meta.GroupID, sender); err != nil {
		return failedValidation(ErrGroupAddFailed)
	}

	return LocationValidationResponse{
		Type:     TypeLocationValidationResponse,
		Success:  true,
		GroupID:  strp(meta.GroupID),
		RelayURL: strp(e.publicRelayURL),
		IsAdmin:  boolp(false),
		IsMember: boolp(true),
	}
}

func (e *Engine) createCommunity(ctx context.Context, uuid string, loc Location, creator nostrkey.Public) LocationValidationResponse {
	groupID := freshGroupID()
	params := mutator.CreateGroupParams{
		GroupID: groupID,
		UUID:    uuid,
		Lat:     loc.Latitude,
		Lon:     loc.Longitude,
	}

	displayCell, err := e.mutator.CreateGroup(ctx, params, creator)
	if err != nil {
		return failedValidation(ErrCommunityError)
	}
	e.registry.Remember(uuid, groupID)
	e.registry.AddDisplayCell(displayCell)

	if err := e.mutator.PublishDiscoveryMap(ctx, e.registry.DisplayCells()); err != nil {
		log.Printf("engine: discovery map republish failed for %s: %v", groupID, err)
	}

	return LocationValidationResponse{
		Type:     TypeLocationValidationResponse,
		Success:  true,
		GroupID:  strp(groupID),
		RelayURL: strp(e.publicRelayURL),
		IsAdmin:  boolp(true),
		IsMember: boolp(true),
	}
}

// PreviewRequest implements spec.md §4.7's read-only community lookup.
func (e *Engine) PreviewRequest(ctx context.Context, req PreviewRequestBody) PreviewResponse {
	uuid, err := parseUUID(req.CommunityID)
	if err != nil {
		return PreviewResponse{Type: TypePreviewResponse, Success: false, Error: strp("invalid community id")}
	}

	groupID, err := e.registry.FindGroupByUUID(ctx, uuid, e.timeouts.Query)
	if err != nil || groupID == "" {
		return PreviewResponse{Type: TypePreviewResponse, Success: false, Error: strp("community not found")}
	}

	meta, err := e.registry.GetGroupMetadata(ctx, groupID, e.timeouts.Query)
	if err != nil || meta == nil {
		return PreviewResponse{Type: TypePreviewResponse, Success: false, Error: strp("community not found")}
	}

	resp := PreviewResponse{
		Type:        TypePreviewResponse,
		Success:     true,
		Name:        strp(meta.Name),
		Picture:     strp(meta.Picture),
		About:       strp(meta.About),
		MemberCount: u32p(uint32(meta.MemberCount)),
		IsPublic:    boolp(meta.IsPublic),
		IsOpen:      boolp(meta.IsOpen),
		CreatedAt:   u64p(uint64(meta.CreatedAt)),
	}
	if meta.Rules != nil {
		resp.Rules = &meta.Rules
	}
	return resp
}

// freshGroupID mints the "peek-<10 lower-alphanumeric>" token spec.md §3
// describes for H.
func freshGroupID() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 10)
	randomBytes(b)
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return fmt.Sprintf("peek-%s", b)
}
