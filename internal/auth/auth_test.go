package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func withSecret(t *testing.T, value string) {
	t.Helper()
	t.Setenv("MANDATE_AUTH_SECRET", value)
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidate(t *testing.T) {
	withSecret(t, "unit-test-secret")

	token, err := GenerateToken("operator-1", []string{"Issuer", "viewer", "issuer"}, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "operator-1" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", claims.Roles)
	}
}

func TestGenerateTokenRequiresSubjectAndTTL(t *testing.T) {
	withSecret(t, "unit-test-secret")

	if _, err := GenerateToken("  ", []string{"viewer"}, time.Minute); err == nil {
		t.Fatalf("expected error for blank subject")
	}
	if _, err := GenerateToken("operator-1", nil, 0); err == nil {
		t.Fatalf("expected error for non-positive ttl")
	}
}

func TestParseAndValidateRejectsGarbage(t *testing.T) {
	withSecret(t, "unit-test-secret")

	for _, token := range []string{"", "   ", "not-a-jwt", "a.b.c"} {
		if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestParseAndValidateRejectsForeignSignature(t *testing.T) {
	withSecret(t, "secret-one")
	token, err := GenerateToken("operator-1", nil, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	withSecret(t, "secret-two")
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestMissingSecretFailsClosed(t *testing.T) {
	withSecret(t, "")

	if _, err := GenerateToken("operator-1", nil, time.Minute); err == nil {
		t.Fatalf("expected error without configured secret")
	}
	if _, err := ParseAndValidate("whatever"); err == nil {
		t.Fatalf("expected error without configured secret")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithPrincipal(ctx, "operator-7", []string{"Issuer", "Issuer", "viewer"})
	subject, ok := SubjectFromContext(ctx)
	if !ok || subject != "operator-7" {
		t.Fatalf("unexpected subject: %s, ok=%v", subject, ok)
	}
	roles := RolesFromContext(ctx)
	if len(roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", roles)
	}
	if !HasRole(ctx, "viewer") || !HasRole(ctx, "issuer") {
		t.Fatalf("HasRole missing expected roles: %v", roles)
	}
	if HasRole(ctx, "operator") {
		t.Fatalf("unexpected role found")
	}
}
