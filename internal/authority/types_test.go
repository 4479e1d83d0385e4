package authority

import (
	"errors"
	"testing"
)

func TestValueTypesRejectEmptyInput(t *testing.T) {
	cases := []struct {
		field string
		build func(string) error
	}{
		{"token_id", func(s string) error { _, err := NewTokenID(s); return err }},
		{"issuer", func(s string) error { _, err := NewIssuer(s); return err }},
		{"subject", func(s string) error { _, err := NewSubject(s); return err }},
		{"capability", func(s string) error { _, err := NewCapability(s); return err }},
		{"scope_resource", func(s string) error { _, err := NewResource(s); return err }},
	}
	for _, tc := range cases {
		for _, input := range []string{"", "   ", "\t\n"} {
			err := tc.build(input)
			var emptyErr *EmptyFieldError
			if !errors.As(err, &emptyErr) {
				t.Fatalf("%s(%q): expected EmptyFieldError, got %v", tc.field, input, err)
			}
			if emptyErr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, emptyErr.Field)
			}
		}
		if err := tc.build("value"); err != nil {
			t.Fatalf("%s: unexpected error for valid input: %v", tc.field, err)
		}
	}
}

func TestScopeRejectsEmptySet(t *testing.T) {
	_, err := NewScope()
	var emptyErr *EmptyFieldError
	if !errors.As(err, &emptyErr) || emptyErr.Field != "scope" {
		t.Fatalf("expected EmptyFieldError{scope}, got %v", err)
	}
	if _, err := ParseScope(nil); !errors.As(err, &emptyErr) {
		t.Fatalf("expected EmptyFieldError for nil resource list, got %v", err)
	}
}

func TestScopeDeduplicatesResources(t *testing.T) {
	scope, err := ParseScope([]string{"send_email", "send_email", "draft_email"})
	if err != nil {
		t.Fatalf("ParseScope: %v", err)
	}
	if scope.Len() != 2 {
		t.Fatalf("expected 2 distinct resources, got %d", scope.Len())
	}
	if !scope.Contains("send_email") || !scope.Contains("draft_email") {
		t.Fatalf("scope missing expected resources: %v", scope.Resources())
	}
	if scope.Contains("calendar_write") {
		t.Fatalf("scope contains resource it was never given")
	}
}

func TestScopeStrictSubsetIsExactlyStrict(t *testing.T) {
	parent, err := ParseScope([]string{"send_email", "draft_email"})
	if err != nil {
		t.Fatalf("ParseScope: %v", err)
	}
	narrower, _ := ParseScope([]string{"send_email"})
	equal, _ := ParseScope([]string{"draft_email", "send_email"})
	widened, _ := ParseScope([]string{"send_email", "draft_email", "calendar_write"})
	disjoint, _ := ParseScope([]string{"calendar_write"})

	if !narrower.IsStrictSubsetOf(parent) {
		t.Fatalf("proper subset should strictly narrow the parent")
	}
	if equal.IsStrictSubsetOf(parent) {
		t.Fatalf("equal scope must not count as a strict subset")
	}
	if widened.IsStrictSubsetOf(parent) {
		t.Fatalf("widened scope must not count as a strict subset")
	}
	if disjoint.IsStrictSubsetOf(parent) {
		t.Fatalf("disjoint scope must not count as a strict subset")
	}
	if !equal.Equal(parent) {
		t.Fatalf("scopes with identical resources should compare equal")
	}
}

func TestInvalidReasonText(t *testing.T) {
	cases := map[InvalidReason]string{
		ReasonRevoked:     "revoked",
		ReasonExpired:     "expired",
		ReasonPreIssuance: "pre-issuance",
	}
	for reason, want := range cases {
		if reason.String() != want {
			t.Fatalf("reason %d: expected %q, got %q", reason, want, reason.String())
		}
		text, err := reason.MarshalText()
		if err != nil || string(text) != want {
			t.Fatalf("MarshalText(%v) = %q, %v", reason, text, err)
		}
	}
}
