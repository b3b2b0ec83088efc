// Package engine is the validation engine: request-handler logic tying the
// registry, mutator, and geo packages together, plus the tagged-union wire
// types spec.md §6 defines.
//
// Grounded directly on spec.md §4.7 and §6 for the type/field shapes, and on
// original_source/.../handlers/nostr_validation.rs for the exact error-code
// strings and original_source/.../models/community.rs for the
// "Community <uuid-prefix>" auto-name convention used on create.
package engine

import (
	"encoding/json"
	"errors"
)

// Request type discriminators.
const (
	TypeLocationValidation = "location_validation"
	TypePreviewRequest     = "preview_request"
)

// Response type discriminators.
const (
	TypeLocationValidationResponse = "location_validation_response"
	TypePreviewResponse            = "preview_response"
)

// Error codes, per spec.md §6/§7.
const (
	ErrInvalidID       = "INVALID_ID"
	ErrCommunityError  = "COMMUNITY_ERROR"
	ErrLocationInvalid = "LOCATION_INVALID"
	ErrGroupAddFailed  = "GROUP_ADD_FAILED"
)

// Location is the self-reported position carried by a location_validation
// request. Accuracy and Timestamp are recorded for observability only —
// spec.md §4.7 step 5 — and never feed the admission decision.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"`
}

// LocationValidationRequest is the tagged-union request body for an
// admission check.
type LocationValidationRequest struct {
	Type        string   `json:"type,omitempty"`
	CommunityID string   `json:"community_id"`
	Location    Location `json:"location"`
}

// PreviewRequestBody is the tagged-union request body for a read-only community
// lookup.
type PreviewRequestBody struct {
	Type        string `json:"type"`
	CommunityID string `json:"community_id"`
}

// LocationValidationResponse answers a location_validation request.
type LocationValidationResponse struct {
	Type      string  `json:"type"`
	Success   bool    `json:"success"`
	GroupID   *string `json:"group_id,omitempty"`
	RelayURL  *string `json:"relay_url,omitempty"`
	IsAdmin   *bool   `json:"is_admin,omitempty"`
	IsMember  *bool   `json:"is_member,omitempty"`
	Error     *string `json:"error,omitempty"`
	ErrorCode *string `json:"error_code,omitempty"`
}

// PreviewResponse answers a preview_request.
type PreviewResponse struct {
	Type         string    `json:"type"`
	Success      bool      `json:"success"`
	Name         *string   `json:"name,omitempty"`
	Picture      *string   `json:"picture,omitempty"`
	About        *string   `json:"about,omitempty"`
	Rules        *[]string `json:"rules,omitempty"`
	MemberCount  *uint32   `json:"member_count,omitempty"`
	IsPublic     *bool     `json:"is_public,omitempty"`
	IsOpen       *bool     `json:"is_open,omitempty"`
	CreatedAt    *uint64   `json:"created_at,omitempty"`
	Error        *string   `json:"error,omitempty"`
}

// typeProbe reads only the discriminator field, to decide how to parse the
// rest of the body.
type typeProbe struct {
	Type string `json:"type"`
}

// ParseRequest implements spec.md §4.6's tagged-union-with-legacy-fallback
// parse: try the discriminated shape first, and if "type" is absent or
// unrecognized, retry as the legacy untagged location_validation body.
func ParseRequest(content []byte) (any, error) {
	var probe typeProbe
	if err := json.Unmarshal(content, &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case TypePreviewRequest:
		var req PreviewRequestBody
		if err := json.Unmarshal(content, &req); err != nil {
			return nil, err
		}
		return req, nil
	case TypeLocationValidation:
		var req LocationValidationRequest
		if err := json.Unmarshal(content, &req); err != nil {
			return nil, err
		}
		return req, nil
	}

	// Legacy untagged shape: no "type" field, but otherwise matches
	// LocationValidationRequest (spec.md §6).
	var legacy LocationValidationRequest
	if err := json.Unmarshal(content, &legacy); err != nil {
		return nil, err
	}
	if legacy.CommunityID == "" {
		return nil, errUnrecognizedRequest
	}
	legacy.Type = TypeLocationValidation
	return legacy, nil
}

var errUnrecognizedRequest = errors.New("engine: unrecognized request body")
