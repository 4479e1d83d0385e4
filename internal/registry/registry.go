// Package registry is the host-side owner of the authority token
// collection and the revocation index. It serializes writer/reader
// interleaving on the index and threads caller-supplied evaluation
// times into the pure lifecycle engine; the engine itself stays free of
// locks and clocks.
package registry

import (
	"context"
	"errors"

	"mandate.org/internal/authority"
)

var (
	ErrNotFound      = errors.New("registry: token not found")
	ErrAlreadyExists = errors.New("registry: token id already exists")
)

// MintParams carries raw mint inputs from the host surface. Field
// validation is delegated to the engine's constructors so that the
// fail-closed checks live in exactly one place.
type MintParams struct {
	TokenID     string
	Issuer      string
	IssuerTrust authority.IssuerTrust
	Subject     string
	Capability  string
	Scope       []string
	IssuedAt    uint64
	ExpiresAt   uint64
}

// DelegateParams carries raw delegation inputs. No capability field:
// delegated tokens always inherit the parent's capability.
type DelegateParams struct {
	TokenID     string
	DelegatedBy string
	Subject     string
	Scope       []string
	DelegatedAt uint64
	ExpiresAt   uint64
}

// Service defines host-level authority token operations.
type Service interface {
	Mint(ctx context.Context, params MintParams) (authority.Token, error)
	Delegate(ctx context.Context, parentID authority.TokenID, params DelegateParams) (authority.Token, error)
	Revoke(ctx context.Context, tokenID authority.TokenID) error
	GetToken(ctx context.Context, tokenID authority.TokenID) (authority.Token, error)
	ListTokens(ctx context.Context, subject string, limit int) ([]authority.Token, error)
	RevokedIDs(ctx context.Context) ([]authority.TokenID, error)

	// ValidateAt classifies the stored collection at a policy boundary.
	ValidateAt(ctx context.Context, evaluationTime authority.Timestamp) (authority.BoundaryValidation, error)
	// RestoreAt re-runs full validation over the persisted collection,
	// never trusting previously computed validity.
	RestoreAt(ctx context.Context, restoreTime authority.Timestamp) (authority.BoundaryValidation, error)
}

// BuildMintRequest converts raw mint params through the engine's
// validating constructors. Shared by every Service implementation.
func BuildMintRequest(params MintParams) (authority.MintRequest, error) {
	tokenID, err := authority.NewTokenID(params.TokenID)
	if err != nil {
		return authority.MintRequest{}, err
	}
	issuer, err := authority.NewIssuer(params.Issuer)
	if err != nil {
		return authority.MintRequest{}, err
	}
	subject, err := authority.NewSubject(params.Subject)
	if err != nil {
		return authority.MintRequest{}, err
	}
	capability, err := authority.NewCapability(params.Capability)
	if err != nil {
		return authority.MintRequest{}, err
	}
	scope, err := authority.ParseScope(params.Scope)
	if err != nil {
		return authority.MintRequest{}, err
	}
	return authority.MintRequest{
		TokenID:     tokenID,
		Issuer:      issuer,
		IssuerTrust: params.IssuerTrust,
		Subject:     subject,
		Capability:  capability,
		Scope:       scope,
		IssuedAt:    authority.Timestamp(params.IssuedAt),
		ExpiresAt:   authority.Timestamp(params.ExpiresAt),
	}, nil
}

// BuildDelegationRequest converts raw delegation params through the
// engine's validating constructors.
func BuildDelegationRequest(params DelegateParams) (authority.DelegationRequest, error) {
	tokenID, err := authority.NewTokenID(params.TokenID)
	if err != nil {
		return authority.DelegationRequest{}, err
	}
	delegatedBy, err := authority.NewIssuer(params.DelegatedBy)
	if err != nil {
		return authority.DelegationRequest{}, err
	}
	subject, err := authority.NewSubject(params.Subject)
	if err != nil {
		return authority.DelegationRequest{}, err
	}
	scope, err := authority.ParseScope(params.Scope)
	if err != nil {
		return authority.DelegationRequest{}, err
	}
	return authority.DelegationRequest{
		TokenID:     tokenID,
		DelegatedBy: delegatedBy,
		Subject:     subject,
		Scope:       scope,
		DelegatedAt: authority.Timestamp(params.DelegatedAt),
		ExpiresAt:   authority.Timestamp(params.ExpiresAt),
	}, nil
}
