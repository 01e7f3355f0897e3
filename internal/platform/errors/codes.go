// Package errors provides structured error handling with machine-readable codes.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Account errors
	CodeAccountEmptyUsername   Code = "ACCOUNT_EMPTY_USERNAME"
	CodeAccountInvalidUsername Code = "ACCOUNT_INVALID_USERNAME"
	CodeAccountEmptyEmail      Code = "ACCOUNT_EMPTY_EMAIL"
	CodeAccountInvalidEmail    Code = "ACCOUNT_INVALID_EMAIL"
	CodeAccountEmptyPassword   Code = "ACCOUNT_EMPTY_PASSWORD"
	CodeAccountUsernameTaken   Code = "ACCOUNT_USERNAME_TAKEN"

	// Profile errors
	CodeProfileEmptyAccountID Code = "PROFILE_EMPTY_ACCOUNT_ID"
	CodeProfileInvalidGender  Code = "PROFILE_INVALID_GENDER"
	CodeProfileRemoteRejected Code = "PROFILE_REMOTE_REJECTED"

	// Interaction errors
	CodeInteractionExpired Code = "INTERACTION_EXPIRED"
	CodeInvalidReturnURL   Code = "INVALID_RETURN_URL"

	// Storage errors
	CodeNotFound    Code = "NOT_FOUND"
	CodeTransaction Code = "TRANSACTION_FAILED"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeAccountEmptyUsername,
		CodeAccountInvalidUsername,
		CodeAccountEmptyEmail,
		CodeAccountInvalidEmail,
		CodeAccountEmptyPassword,
		CodeProfileEmptyAccountID,
		CodeProfileInvalidGender,
		CodeInvalidReturnURL:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeInteractionExpired,
		CodeProfileRemoteRejected:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	// AlreadyExists - unique resource constraint
	case CodeAccountUsernameTaken:
		return codes.AlreadyExists

	default:
		return codes.Internal
	}
}
