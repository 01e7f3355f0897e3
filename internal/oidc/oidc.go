// Package oidc holds the authorization-interaction surface: pending
// authorizations, the client registry and the destination resolver shared by
// the account flows.
package oidc

import (
	"context"

	apperrors "github.com/louisbranch/authserver/internal/platform/errors"
)

// DenyReasonAccessDenied is the standard reason recorded when a user declines
// an authorization request.
const DenyReasonAccessDenied = "access_denied"

// ErrInvalidReturnURL indicates a return URL that is neither an interaction
// round trip nor a safe local path. Requests carrying one must fail rather
// than redirect.
var ErrInvalidReturnURL = apperrors.New(apperrors.CodeInvalidReturnURL, "invalid return URL")

// Interaction is one pending authorization round trip, joined with the
// registered client that initiated it.
type Interaction struct {
	ID           string
	ClientID     string
	NativeClient bool
	ReturnURL    string
}

// Interactions resolves and mutates pending authorizations.
type Interactions interface {
	// AuthorizationContext returns the pending interaction referenced by
	// returnURL, or nil when the URL does not reference a live one.
	AuthorizationContext(ctx context.Context, returnURL string) (*Interaction, error)
	// Deny marks the interaction as denied with the given reason.
	Deny(ctx context.Context, interaction *Interaction, reason string) error
}

// DestinationKind discriminates Destination values.
type DestinationKind int

const (
	// DestinationRedirect sends the browser straight to URL.
	DestinationRedirect DestinationKind = iota
	// DestinationLoadingPage renders an intermediate page that completes
	// the round trip for native clients.
	DestinationLoadingPage
)

// Destination is where a flow sends the user after it finishes.
type Destination struct {
	Kind DestinationKind
	URL  string
}

// RedirectTo builds a plain redirect destination.
func RedirectTo(url string) Destination {
	return Destination{Kind: DestinationRedirect, URL: url}
}

// LoadingPage builds the native-client loading page destination. The URL is
// the return URL the page forwards to once rendered.
func LoadingPage(returnURL string) Destination {
	return Destination{Kind: DestinationLoadingPage, URL: returnURL}
}
