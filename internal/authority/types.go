package authority

import (
	"fmt"
	"sort"
	"strings"
)

// Timestamp is an opaque monotonic instant in the host clock domain,
// expressed as seconds. The engine never reads wall-clock time; every
// timestamp is supplied by the caller.
type Timestamp uint64

// Uint64 returns the wrapped timestamp value.
func (t Timestamp) Uint64() uint64 { return uint64(t) }

// TokenID is the stable identifier of an authority token.
type TokenID string

// Issuer identifies the party that minted or delegated a token.
type Issuer string

// Subject is the principal to whom authority is granted.
type Subject string

// Capability names the kind of authority a token encodes.
type Capability string

// Resource is a single tool target a token's capability may apply to.
type Resource string

// The identifier kinds are distinct named types on purpose: an Issuer
// cannot be passed where a Subject is expected without an explicit
// conversion at the call site.

// NewTokenID validates and wraps a token identifier.
func NewTokenID(value string) (TokenID, error) {
	if err := nonEmpty(value, "token_id"); err != nil {
		return "", err
	}
	return TokenID(value), nil
}

// NewIssuer validates and wraps an issuer identity.
func NewIssuer(value string) (Issuer, error) {
	if err := nonEmpty(value, "issuer"); err != nil {
		return "", err
	}
	return Issuer(value), nil
}

// NewSubject validates and wraps a subject identity.
func NewSubject(value string) (Subject, error) {
	if err := nonEmpty(value, "subject"); err != nil {
		return "", err
	}
	return Subject(value), nil
}

// NewCapability validates and wraps a capability name.
func NewCapability(value string) (Capability, error) {
	if err := nonEmpty(value, "capability"); err != nil {
		return "", err
	}
	return Capability(value), nil
}

// NewResource validates and wraps a scope resource.
func NewResource(value string) (Resource, error) {
	if err := nonEmpty(value, "scope_resource"); err != nil {
		return "", err
	}
	return Resource(value), nil
}

func (id TokenID) String() string   { return string(id) }
func (i Issuer) String() string     { return string(i) }
func (s Subject) String() string    { return string(s) }
func (c Capability) String() string { return string(c) }
func (r Resource) String() string   { return string(r) }

func nonEmpty(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return &EmptyFieldError{Field: field}
	}
	return nil
}

// Scope is the deduplicated, non-empty set of resources a token permits.
type Scope struct {
	resources map[Resource]struct{}
}

// NewScope builds a scope from resources, rejecting empty sets.
func NewScope(resources ...Resource) (Scope, error) {
	if len(resources) == 0 {
		return Scope{}, &EmptyFieldError{Field: "scope"}
	}
	set := make(map[Resource]struct{}, len(resources))
	for _, r := range resources {
		set[r] = struct{}{}
	}
	return Scope{resources: set}, nil
}

// ParseScope validates raw resource strings and builds a scope.
func ParseScope(raw []string) (Scope, error) {
	resources := make([]Resource, 0, len(raw))
	for _, value := range raw {
		r, err := NewResource(value)
		if err != nil {
			return Scope{}, err
		}
		resources = append(resources, r)
	}
	return NewScope(resources...)
}

// Contains reports whether the scope includes the resource.
func (s Scope) Contains(resource Resource) bool {
	_, ok := s.resources[resource]
	return ok
}

// IsStrictSubsetOf reports whether this scope properly narrows the
// parent scope: every resource present in the parent, and at least one
// parent resource absent here. Equal scopes do not qualify.
func (s Scope) IsStrictSubsetOf(parent Scope) bool {
	if len(s.resources) >= len(parent.resources) {
		return false
	}
	for r := range s.resources {
		if !parent.Contains(r) {
			return false
		}
	}
	return true
}

// Equal reports whether two scopes permit the same resource set.
func (s Scope) Equal(other Scope) bool {
	if len(s.resources) != len(other.resources) {
		return false
	}
	for r := range s.resources {
		if !other.Contains(r) {
			return false
		}
	}
	return true
}

// Len returns the number of distinct resources in the scope.
func (s Scope) Len() int { return len(s.resources) }

// Resources returns the scope contents in sorted order.
func (s Scope) Resources() []Resource {
	out := make([]Resource, 0, len(s.resources))
	for r := range s.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IssuerTrust is the trust class of a minting issuer, supplied by the
// host per request and never stored on the token.
type IssuerTrust int

const (
	// Untrusted issuers can never mint; there is no override path.
	Untrusted IssuerTrust = iota
	// HostTrusted marks the host-side minting authority.
	HostTrusted
)

func (t IssuerTrust) String() string {
	if t == HostTrusted {
		return "host-trusted"
	}
	return "untrusted"
}

// MintRequest carries the parameters for minting a root token.
type MintRequest struct {
	TokenID     TokenID
	Issuer      Issuer
	IssuerTrust IssuerTrust
	Subject     Subject
	Capability  Capability
	Scope       Scope
	IssuedAt    Timestamp
	ExpiresAt   Timestamp
}

// DelegationRequest carries the parameters for delegating a token.
// The capability is absent on purpose: a delegate cannot change what
// kind of authority is being narrowed, only its scope, subject and
// lifetime.
type DelegationRequest struct {
	TokenID     TokenID
	DelegatedBy Issuer
	Subject     Subject
	Scope       Scope
	DelegatedAt Timestamp
	ExpiresAt   Timestamp
}

// InvalidReason classifies why a token was stripped during boundary
// validation. It is attached to stripped tokens only, never stored on
// the token itself.
type InvalidReason int

const (
	// ReasonRevoked: the token id is present in the revocation index.
	ReasonRevoked InvalidReason = iota
	// ReasonExpired: the token expired at evaluation time (inclusive).
	ReasonExpired
	// ReasonPreIssuance: evaluation time precedes the token's issuance.
	ReasonPreIssuance
)

func (r InvalidReason) String() string {
	switch r {
	case ReasonRevoked:
		return "revoked"
	case ReasonExpired:
		return "expired"
	case ReasonPreIssuance:
		return "pre-issuance"
	default:
		return "unknown"
	}
}

// MarshalText makes reasons stable across JSON payloads and audit lines.
func (r InvalidReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses the textual reason form.
func (r *InvalidReason) UnmarshalText(text []byte) error {
	switch string(text) {
	case "revoked":
		*r = ReasonRevoked
	case "expired":
		*r = ReasonExpired
	case "pre-issuance":
		*r = ReasonPreIssuance
	default:
		return fmt.Errorf("unknown invalid reason %q", text)
	}
	return nil
}
