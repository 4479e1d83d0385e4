package authority

import (
	"errors"
	"fmt"
)

// Lifecycle rejections are terminal and caller-recoverable: every check
// returns an error the caller can inspect with errors.As / errors.Is,
// nothing is retried or downgraded inside the engine.

// ErrScopeNotStrictSubset rejects a delegation whose scope does not
// properly narrow the parent scope (equal scope counts as a violation).
var ErrScopeNotStrictSubset = errors.New("delegated scope must be a strict subset of the parent scope")

// EmptyFieldError reports a value type constructed from empty or
// whitespace-only text.
type EmptyFieldError struct {
	Field string
}

func (e *EmptyFieldError) Error() string {
	return fmt.Sprintf("authority field %q cannot be empty", e.Field)
}

// InvalidLifetimeError reports a token lifetime that does not progress
// forward in time, at mint or delegation-request level.
type InvalidLifetimeError struct {
	IssuedAt  Timestamp
	ExpiresAt Timestamp
}

func (e *InvalidLifetimeError) Error() string {
	return fmt.Sprintf("token lifetime is invalid: issued_at %d must be before expires_at %d",
		e.IssuedAt, e.ExpiresAt)
}

// UntrustedMinterError reports a mint attempt by an issuer outside the
// host trust class.
type UntrustedMinterError struct {
	Issuer Issuer
}

func (e *UntrustedMinterError) Error() string {
	return fmt.Sprintf("issuer %q is not trusted to mint authority tokens", e.Issuer)
}

// LifetimeNotNarrowedError reports a delegation whose expiry does not
// strictly precede the parent's expiry.
type LifetimeNotNarrowedError struct {
	DelegatedExpiresAt Timestamp
	ParentExpiresAt    Timestamp
}

func (e *LifetimeNotNarrowedError) Error() string {
	return fmt.Sprintf("delegated expiry %d must be before parent expiry %d",
		e.DelegatedExpiresAt, e.ParentExpiresAt)
}

// InvalidParentError reports a delegation attempted from a parent that
// is not currently valid (revoked or expired).
type InvalidParentError struct {
	TokenID TokenID
	Reason  InvalidReason
}

func (e *InvalidParentError) Error() string {
	return fmt.Sprintf("parent token %q cannot be delegated because it is %s", e.TokenID, e.Reason)
}

// DelegationBeforeIssuanceError reports a delegation that starts before
// the parent token was issued.
type DelegationBeforeIssuanceError struct {
	DelegatedAt    Timestamp
	ParentIssuedAt Timestamp
}

func (e *DelegationBeforeIssuanceError) Error() string {
	return fmt.Sprintf("delegated_at %d is before parent issued_at %d",
		e.DelegatedAt, e.ParentIssuedAt)
}

func validateLifetime(issuedAt, expiresAt Timestamp) error {
	if expiresAt <= issuedAt {
		return &InvalidLifetimeError{IssuedAt: issuedAt, ExpiresAt: expiresAt}
	}
	return nil
}
