// Package profile models the remote profile service owned by a separate
// microservice. The authorization server never stores profile data locally;
// it only forwards it during onboarding.
package profile

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/louisbranch/authserver/internal/platform/errors"
)

// Gender is the remote service's gender enumeration.
type Gender string

const (
	GenderUnspecified Gender = ""
	GenderFemale      Gender = "female"
	GenderMale        Gender = "male"
	GenderOther       Gender = "other"
)

// ErrEmptyAccountID indicates a payload without an owning account.
var ErrEmptyAccountID = apperrors.New(apperrors.CodeProfileEmptyAccountID, "profile account id is required")

// ErrInvalidGender indicates a gender value outside the enumeration.
var ErrInvalidGender = apperrors.New(apperrors.CodeProfileInvalidGender, "invalid gender value")

// Payload is the profile data forwarded to the remote service.
type Payload struct {
	AccountID   string
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Gender      Gender
	PhoneNumber string
}

// Validate checks the payload before it crosses the wire. The remote service
// remains authoritative; this only rejects requests that cannot succeed.
func (p Payload) Validate() error {
	if p.AccountID == "" {
		return ErrEmptyAccountID
	}
	switch p.Gender {
	case GenderUnspecified, GenderFemale, GenderMale, GenderOther:
	default:
		return ErrInvalidGender
	}
	return nil
}

// Client calls the remote profile service.
type Client interface {
	CreateProfile(ctx context.Context, p Payload) error
}

// RemoteError is a rejection reported by the remote profile service. Detail
// carries zero or more messages separated by '|'.
type RemoteError struct {
	Detail string
}

func (e *RemoteError) Error() string {
	if e.Detail == "" {
		return "profile service rejected the request"
	}
	return "profile service rejected the request: " + e.Detail
}

// Messages splits Detail into individual error messages. Empty segments are
// dropped so a trailing separator does not produce a blank message.
func (e *RemoteError) Messages() []string {
	if e.Detail == "" {
		return nil
	}
	parts := strings.Split(e.Detail, "|")
	msgs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			msgs = append(msgs, p)
		}
	}
	return msgs
}
