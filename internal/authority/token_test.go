package authority

import (
	"errors"
	"testing"
)

func mustScope(t *testing.T, resources ...string) Scope {
	t.Helper()
	scope, err := ParseScope(resources)
	if err != nil {
		t.Fatalf("ParseScope(%v): %v", resources, err)
	}
	return scope
}

func mintRequest(t *testing.T, id string) MintRequest {
	t.Helper()
	return MintRequest{
		TokenID:     TokenID(id),
		Issuer:      "policy-host",
		IssuerTrust: HostTrusted,
		Subject:     "assistant",
		Capability:  "EmailSendCap",
		Scope:       mustScope(t, "send_email", "draft_email"),
		IssuedAt:    10,
		ExpiresAt:   200,
	}
}

func mintParent(t *testing.T) Token {
	t.Helper()
	parent, err := Mint(mintRequest(t, "parent"))
	if err != nil {
		t.Fatalf("Mint parent: %v", err)
	}
	return parent
}

func delegationRequest(t *testing.T, scope Scope, delegatedAt, expiresAt Timestamp) DelegationRequest {
	t.Helper()
	return DelegationRequest{
		TokenID:     "child",
		DelegatedBy: "delegating-host",
		Subject:     "assistant",
		Scope:       scope,
		DelegatedAt: delegatedAt,
		ExpiresAt:   expiresAt,
	}
}

func TestMintRejectsNonForwardLifetime(t *testing.T) {
	for _, tc := range []struct {
		name      string
		issuedAt  Timestamp
		expiresAt Timestamp
	}{
		{"equal", 15, 15},
		{"reversed", 20, 10},
	} {
		req := mintRequest(t, "tok-lifetime")
		req.IssuedAt = tc.issuedAt
		req.ExpiresAt = tc.expiresAt
		_, err := Mint(req)
		var lifetimeErr *InvalidLifetimeError
		if !errors.As(err, &lifetimeErr) {
			t.Fatalf("%s: expected InvalidLifetimeError, got %v", tc.name, err)
		}
		if lifetimeErr.IssuedAt != tc.issuedAt || lifetimeErr.ExpiresAt != tc.expiresAt {
			t.Fatalf("%s: error did not carry request timestamps: %+v", tc.name, lifetimeErr)
		}
	}
}

func TestMintRejectsUntrustedIssuerFailClosed(t *testing.T) {
	req := mintRequest(t, "tok-untrusted")
	req.Issuer = "remote-agent"
	req.IssuerTrust = Untrusted
	_, err := Mint(req)
	var minterErr *UntrustedMinterError
	if !errors.As(err, &minterErr) {
		t.Fatalf("expected UntrustedMinterError, got %v", err)
	}
	if minterErr.Issuer != "remote-agent" {
		t.Fatalf("error did not carry the issuer: %+v", minterErr)
	}
}

func TestMintProducesRootToken(t *testing.T) {
	token := mintParent(t)
	if _, ok := token.ParentTokenID(); ok {
		t.Fatalf("minted token must have no parent lineage")
	}
	if token.TokenID() != "parent" || token.Issuer() != "policy-host" {
		t.Fatalf("unexpected identity fields: %q issued by %q", token.TokenID(), token.Issuer())
	}
	if token.IssuedAt() != 10 || token.ExpiresAt() != 200 {
		t.Fatalf("unexpected lifetime: %d..%d", token.IssuedAt(), token.ExpiresAt())
	}
}

func TestDelegateAcceptsStrictNarrowing(t *testing.T) {
	parent := mintParent(t)
	child, err := Delegate(parent, delegationRequest(t, mustScope(t, "send_email"), 20, 120), NewRevocationIndex())
	if err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	parentID, ok := child.ParentTokenID()
	if !ok || parentID != parent.TokenID() {
		t.Fatalf("child lineage not recorded: %q, ok=%v", parentID, ok)
	}
	if child.Capability() != parent.Capability() {
		t.Fatalf("capability must be inherited: %q != %q", child.Capability(), parent.Capability())
	}
	if child.Issuer() != "delegating-host" {
		t.Fatalf("child issuer should record the delegator, got %q", child.Issuer())
	}
	if child.IssuedAt() != 20 || child.ExpiresAt() != 120 {
		t.Fatalf("unexpected child lifetime: %d..%d", child.IssuedAt(), child.ExpiresAt())
	}
}

func TestDelegateRejectsNonStrictScope(t *testing.T) {
	parent := mintParent(t)
	for _, tc := range []struct {
		name  string
		scope Scope
	}{
		{"equal scope", mustScope(t, "send_email", "draft_email")},
		{"widened scope", mustScope(t, "send_email", "draft_email", "calendar_write")},
	} {
		_, err := Delegate(parent, delegationRequest(t, tc.scope, 20, 120), NewRevocationIndex())
		if !errors.Is(err, ErrScopeNotStrictSubset) {
			t.Fatalf("%s: expected ErrScopeNotStrictSubset, got %v", tc.name, err)
		}
	}
}

func TestDelegateRejectsNonStrictLifetime(t *testing.T) {
	parent := mintParent(t)
	_, err := Delegate(parent, delegationRequest(t, mustScope(t, "send_email"), 20, 200), NewRevocationIndex())
	var narrowErr *LifetimeNotNarrowedError
	if !errors.As(err, &narrowErr) {
		t.Fatalf("expected LifetimeNotNarrowedError, got %v", err)
	}
	if narrowErr.DelegatedExpiresAt != 200 || narrowErr.ParentExpiresAt != 200 {
		t.Fatalf("error did not carry both expiries: %+v", narrowErr)
	}

	// Strictly earlier expiry is accepted.
	if _, err := Delegate(parent, delegationRequest(t, mustScope(t, "send_email"), 20, 199), NewRevocationIndex()); err != nil {
		t.Fatalf("strictly narrowed lifetime should delegate: %v", err)
	}
}

func TestDelegateRejectsDelegationBeforeParentIssuance(t *testing.T) {
	parent := mintParent(t)
	_, err := Delegate(parent, delegationRequest(t, mustScope(t, "send_email"), 5, 120), NewRevocationIndex())
	var causalityErr *DelegationBeforeIssuanceError
	if !errors.As(err, &causalityErr) {
		t.Fatalf("expected DelegationBeforeIssuanceError, got %v", err)
	}
	if causalityErr.DelegatedAt != 5 || causalityErr.ParentIssuedAt != 10 {
		t.Fatalf("error did not carry both timestamps: %+v", causalityErr)
	}
}

func TestDelegateRejectsInvalidRequestLifetime(t *testing.T) {
	parent := mintParent(t)
	for _, tc := range []struct {
		name        string
		delegatedAt Timestamp
		expiresAt   Timestamp
	}{
		{"equal", 100, 100},
		{"reversed", 120, 100},
	} {
		_, err := Delegate(parent, delegationRequest(t, mustScope(t, "send_email"), tc.delegatedAt, tc.expiresAt), NewRevocationIndex())
		var lifetimeErr *InvalidLifetimeError
		if !errors.As(err, &lifetimeErr) {
			t.Fatalf("%s: expected InvalidLifetimeError, got %v", tc.name, err)
		}
		if lifetimeErr.IssuedAt != tc.delegatedAt {
			t.Fatalf("%s: error should carry delegated_at, got %+v", tc.name, lifetimeErr)
		}
	}
}

func TestDelegateRejectsExpiredParentInclusive(t *testing.T) {
	parent := mintParent(t)
	// delegated_at == parent expiry counts as expired.
	_, err := Delegate(parent, delegationRequest(t, mustScope(t, "send_email"), 200, 250), NewRevocationIndex())
	var parentErr *InvalidParentError
	if !errors.As(err, &parentErr) {
		t.Fatalf("expected InvalidParentError, got %v", err)
	}
	if parentErr.Reason != ReasonExpired || parentErr.TokenID != parent.TokenID() {
		t.Fatalf("unexpected parent rejection: %+v", parentErr)
	}
}

func TestDelegateRevokedCheckShortCircuitsFirst(t *testing.T) {
	parent := mintParent(t)
	index := NewRevocationIndex()
	index.Revoke(parent.TokenID())

	// The request is malformed in several other ways (reversed lifetime,
	// widened scope). The revoked gate must still fire first.
	request := delegationRequest(t, mustScope(t, "send_email", "draft_email", "calendar_write"), 120, 100)
	_, err := Delegate(parent, request, index)
	var parentErr *InvalidParentError
	if !errors.As(err, &parentErr) {
		t.Fatalf("expected InvalidParentError, got %v", err)
	}
	if parentErr.Reason != ReasonRevoked {
		t.Fatalf("revoked parent must be reported before request checks, got reason %s", parentErr.Reason)
	}
}

func TestGrantsMatchesSubjectCapabilityAndScope(t *testing.T) {
	token := mintParent(t)
	if !token.Grants("assistant", "EmailSendCap", "send_email") {
		t.Fatalf("expected grant for exact subject/capability/resource")
	}
	if token.Grants("other", "EmailSendCap", "send_email") {
		t.Fatalf("grant must not match a different subject")
	}
	if token.Grants("assistant", "OtherCap", "send_email") {
		t.Fatalf("grant must not match a different capability")
	}
	if token.Grants("assistant", "EmailSendCap", "calendar_write") {
		t.Fatalf("grant must not match a resource outside the scope")
	}
}

func TestIsExpiredAtInclusiveBoundary(t *testing.T) {
	req := mintRequest(t, "tok-expiry")
	req.ExpiresAt = 300
	token, err := Mint(req)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	for _, tc := range []struct {
		at      Timestamp
		expired bool
	}{
		{299, false},
		{300, true},
		{301, true},
	} {
		if got := token.IsExpiredAt(tc.at); got != tc.expired {
			t.Fatalf("IsExpiredAt(%d) = %v, want %v", tc.at, got, tc.expired)
		}
	}
}

func TestRecordRehydrateRoundTrip(t *testing.T) {
	parent := mintParent(t)
	child, err := Delegate(parent, delegationRequest(t, mustScope(t, "send_email"), 20, 120), NewRevocationIndex())
	if err != nil {
		t.Fatalf("Delegate: %v", err)
	}

	restored, err := Rehydrate(child.Record())
	if err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}
	if restored.TokenID() != child.TokenID() || restored.Capability() != child.Capability() {
		t.Fatalf("round trip lost identity fields")
	}
	parentID, ok := restored.ParentTokenID()
	if !ok || parentID != parent.TokenID() {
		t.Fatalf("round trip lost lineage: %q, ok=%v", parentID, ok)
	}
	if !restored.Scope().Equal(child.Scope()) {
		t.Fatalf("round trip lost scope: %v", restored.Scope().Resources())
	}
}

func TestRehydrateRejectsMalformedRecords(t *testing.T) {
	base := Record{
		TokenID:    "tok-1",
		Issuer:     "policy-host",
		Subject:    "assistant",
		Capability: "EmailSendCap",
		Scope:      []string{"send_email"},
		IssuedAt:   10,
		ExpiresAt:  200,
	}

	missingSubject := base
	missingSubject.Subject = "  "
	if _, err := Rehydrate(missingSubject); err == nil {
		t.Fatalf("expected error for blank subject")
	}

	emptyScope := base
	emptyScope.Scope = nil
	if _, err := Rehydrate(emptyScope); err == nil {
		t.Fatalf("expected error for empty scope")
	}

	backwardLifetime := base
	backwardLifetime.IssuedAt = 200
	backwardLifetime.ExpiresAt = 10
	var lifetimeErr *InvalidLifetimeError
	if _, err := Rehydrate(backwardLifetime); !errors.As(err, &lifetimeErr) {
		t.Fatalf("expected InvalidLifetimeError, got %v", err)
	}
}
