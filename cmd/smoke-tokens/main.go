package main

import (
	"context"
	"fmt"
	"log"

	"mandate.org/internal/authority"
	"mandate.org/internal/registry"
)

// Exercises the full token lifecycle against the in-memory registry:
// mint, strict-narrowing delegation, revocation, boundary validation
// and restore revalidation.
func main() {
	ctx := context.Background()
	reg := registry.NewInMemory()

	root, err := reg.Mint(ctx, registry.MintParams{
		TokenID:     "smoke-root",
		Issuer:      "policy-host",
		IssuerTrust: authority.HostTrusted,
		Subject:     "assistant",
		Capability:  "EmailSendCap",
		Scope:       []string{"send_email", "draft_email"},
		IssuedAt:    10,
		ExpiresAt:   200,
	})
	if err != nil {
		log.Fatalf("mint: %v", err)
	}

	child, err := reg.Delegate(ctx, root.TokenID(), registry.DelegateParams{
		TokenID:     "smoke-child",
		DelegatedBy: "policy-host",
		Subject:     "assistant",
		Scope:       []string{"send_email"},
		DelegatedAt: 20,
		ExpiresAt:   120,
	})
	if err != nil {
		log.Fatalf("delegate: %v", err)
	}
	if parentID, ok := child.ParentTokenID(); !ok || parentID != root.TokenID() {
		log.Fatalf("lineage missing on delegated token")
	}

	// Widening must fail closed.
	if _, err := reg.Delegate(ctx, root.TokenID(), registry.DelegateParams{
		TokenID:     "smoke-wide",
		DelegatedBy: "policy-host",
		Subject:     "assistant",
		Scope:       []string{"send_email", "draft_email", "calendar_write"},
		DelegatedAt: 20,
		ExpiresAt:   120,
	}); err == nil {
		log.Fatalf("widened delegation was accepted")
	}

	if err := reg.Revoke(ctx, child.TokenID()); err != nil {
		log.Fatalf("revoke: %v", err)
	}

	result, err := reg.ValidateAt(ctx, 50)
	if err != nil {
		log.Fatalf("validate: %v", err)
	}
	if len(result.Effective) != 1 || result.Effective[0].TokenID() != root.TokenID() {
		log.Fatalf("unexpected effective bucket: %d tokens", len(result.Effective))
	}
	if len(result.Invalid) != 1 || result.Invalid[0].Reason != authority.ReasonRevoked {
		log.Fatalf("unexpected invalid bucket: %+v", result.Invalid)
	}

	restored, err := reg.RestoreAt(ctx, 50)
	if err != nil {
		log.Fatalf("restore: %v", err)
	}
	if len(restored.Effective) != len(result.Effective) || len(restored.Invalid) != len(result.Invalid) {
		log.Fatalf("restore diverged from boundary validation")
	}

	fmt.Println("✅ token lifecycle smoke test passed")
}
