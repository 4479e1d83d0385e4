// Package authority implements the authority token lifecycle: minting,
// strict-narrowing delegation, revocation tracking, and policy-boundary
// validation. All operations are pure functions over immutable values;
// the host owns the clock and serializes access to a shared
// RevocationIndex.
package authority

// Token is a bounded grant of capability to a subject over a scope,
// valid within a half-open time window. Tokens are created exactly once
// via Mint or Delegate and never mutated; revocation is tracked
// extrinsically in the RevocationIndex so one index can evaluate many
// token collections.
type Token struct {
	tokenID       TokenID
	issuer        Issuer
	subject       Subject
	capability    Capability
	scope         Scope
	issuedAt      Timestamp
	expiresAt     Timestamp
	parentTokenID TokenID // zero for minted roots
}

// Mint creates a root authority token from a host-trusted issuer.
//
// Checks run in order: lifetime well-formedness first, issuer trust
// second. Untrusted issuers are rejected fail-closed; there is no
// override path.
func Mint(request MintRequest) (Token, error) {
	if err := validateLifetime(request.IssuedAt, request.ExpiresAt); err != nil {
		return Token{}, err
	}
	if request.IssuerTrust != HostTrusted {
		return Token{}, &UntrustedMinterError{Issuer: request.Issuer}
	}
	return Token{
		tokenID:    request.TokenID,
		issuer:     request.Issuer,
		subject:    request.Subject,
		capability: request.Capability,
		scope:      request.Scope,
		issuedAt:   request.IssuedAt,
		expiresAt:  request.ExpiresAt,
	}, nil
}

// Delegate derives a child token from parent with strictly narrower
// scope and lifetime. The child inherits the parent's capability and
// records the parent id for audit-chain reconstruction.
//
// The gate order is part of the contract. Invalid parents are rejected
// before any property of the request itself is inspected, so revoked or
// expired parents fail closed no matter how the request is shaped.
func Delegate(parent Token, request DelegationRequest, index *RevocationIndex) (Token, error) {
	if index.IsRevoked(parent.TokenID()) {
		return Token{}, &InvalidParentError{TokenID: parent.TokenID(), Reason: ReasonRevoked}
	}
	if parent.IsExpiredAt(request.DelegatedAt) {
		return Token{}, &InvalidParentError{TokenID: parent.TokenID(), Reason: ReasonExpired}
	}
	if request.DelegatedAt < parent.IssuedAt() {
		return Token{}, &DelegationBeforeIssuanceError{
			DelegatedAt:    request.DelegatedAt,
			ParentIssuedAt: parent.IssuedAt(),
		}
	}
	if err := validateLifetime(request.DelegatedAt, request.ExpiresAt); err != nil {
		return Token{}, err
	}
	if !request.Scope.IsStrictSubsetOf(parent.Scope()) {
		return Token{}, ErrScopeNotStrictSubset
	}
	if request.ExpiresAt >= parent.ExpiresAt() {
		return Token{}, &LifetimeNotNarrowedError{
			DelegatedExpiresAt: request.ExpiresAt,
			ParentExpiresAt:    parent.ExpiresAt(),
		}
	}
	return Token{
		tokenID:       request.TokenID,
		issuer:        request.DelegatedBy,
		subject:       request.Subject,
		capability:    parent.Capability(),
		scope:         request.Scope,
		issuedAt:      request.DelegatedAt,
		expiresAt:     request.ExpiresAt,
		parentTokenID: parent.TokenID(),
	}, nil
}

// Grants reports whether this token authorizes the given subject to use
// the given capability on the given resource. All three must match.
//
// Grants performs no expiry or revocation check: callers must run the
// token through boundary validation first.
func (t Token) Grants(subject Subject, capability Capability, resource Resource) bool {
	return t.subject == subject && t.capability == capability && t.scope.Contains(resource)
}

// IsExpiredAt reports whether the token has expired at the evaluation
// time. The boundary is inclusive: a token expires the instant its
// expires_at is reached.
func (t Token) IsExpiredAt(evaluationTime Timestamp) bool {
	return evaluationTime >= t.expiresAt
}

// IsPreIssuanceAt reports whether the evaluation time precedes the
// token's issuance.
func (t Token) IsPreIssuanceAt(evaluationTime Timestamp) bool {
	return evaluationTime < t.issuedAt
}

// TokenID returns the stable identifier used for revocation lookups and
// lineage tracking.
func (t Token) TokenID() TokenID { return t.tokenID }

// Issuer returns the identity that minted or delegated this token.
func (t Token) Issuer() Issuer { return t.issuer }

// Subject returns the principal this token grants authority to.
func (t Token) Subject() Subject { return t.subject }

// Capability returns the capability this token encodes. Delegated
// tokens always carry their parent's capability.
func (t Token) Capability() Capability { return t.capability }

// Scope returns the resources this token permits.
func (t Token) Scope() Scope { return t.scope }

// IssuedAt returns the instant from which the token is valid.
func (t Token) IssuedAt() Timestamp { return t.issuedAt }

// ExpiresAt returns the instant at which the token expires (inclusive).
func (t Token) ExpiresAt() Timestamp { return t.expiresAt }

// ParentTokenID returns the parent lineage pointer. ok is false for
// minted root tokens.
func (t Token) ParentTokenID() (id TokenID, ok bool) {
	return t.parentTokenID, t.parentTokenID != ""
}

// Record is the portable snapshot of a token for persistence and
// transport. A record is a bag of bytes, not a proof of validity:
// rehydrated tokens must be revalidated on restore.
type Record struct {
	TokenID       string   `json:"token_id"`
	Issuer        string   `json:"issuer"`
	Subject       string   `json:"subject"`
	Capability    string   `json:"capability"`
	Scope         []string `json:"scope"`
	IssuedAt      uint64   `json:"issued_at"`
	ExpiresAt     uint64   `json:"expires_at"`
	ParentTokenID string   `json:"parent_token_id,omitempty"`
}

// Record returns the token's persistence snapshot.
func (t Token) Record() Record {
	resources := t.scope.Resources()
	scope := make([]string, len(resources))
	for i, r := range resources {
		scope[i] = string(r)
	}
	return Record{
		TokenID:       string(t.tokenID),
		Issuer:        string(t.issuer),
		Subject:       string(t.subject),
		Capability:    string(t.capability),
		Scope:         scope,
		IssuedAt:      uint64(t.issuedAt),
		ExpiresAt:     uint64(t.expiresAt),
		ParentTokenID: string(t.parentTokenID),
	}
}

// Rehydrate reconstructs a token from a persisted record. Only field
// well-formedness is checked (non-empty identifiers, non-empty scope,
// forward-progressing lifetime); lifecycle validity is deliberately not:
// restored tokens go through RevalidateOnRestore before use.
func Rehydrate(record Record) (Token, error) {
	tokenID, err := NewTokenID(record.TokenID)
	if err != nil {
		return Token{}, err
	}
	issuer, err := NewIssuer(record.Issuer)
	if err != nil {
		return Token{}, err
	}
	subject, err := NewSubject(record.Subject)
	if err != nil {
		return Token{}, err
	}
	capability, err := NewCapability(record.Capability)
	if err != nil {
		return Token{}, err
	}
	scope, err := ParseScope(record.Scope)
	if err != nil {
		return Token{}, err
	}
	issuedAt := Timestamp(record.IssuedAt)
	expiresAt := Timestamp(record.ExpiresAt)
	if err := validateLifetime(issuedAt, expiresAt); err != nil {
		return Token{}, err
	}
	token := Token{
		tokenID:    tokenID,
		issuer:     issuer,
		subject:    subject,
		capability: capability,
		scope:      scope,
		issuedAt:   issuedAt,
		expiresAt:  expiresAt,
	}
	if record.ParentTokenID != "" {
		parentID, err := NewTokenID(record.ParentTokenID)
		if err != nil {
			return Token{}, err
		}
		token.parentTokenID = parentID
	}
	return token, nil
}
