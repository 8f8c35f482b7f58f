package names

import "testing"

func TestValidateAccepts(t *testing.T) {
	cases := []string{"a", "sb1", "my-sandbox", "with_underscore", "A1"}
	for _, s := range cases {
		if err := Validate("sandbox", s); err != nil {
			t.Errorf("Validate(%q) unexpected error: %v", s, err)
		}
	}
}

func TestValidateRejectsWildcard(t *testing.T) {
	if err := Validate("sandbox", Wildcard); err == nil {
		t.Error("expected error for wildcard as a create target")
	}
}

func TestValidateRejectsLeadingSymbol(t *testing.T) {
	if err := Validate("sandbox", "-bad"); err == nil {
		t.Error("expected error for name starting with '-'")
	}
	if err := Validate("sandbox", "_bad"); err == nil {
		t.Error("expected error for name starting with '_'")
	}
}

func TestValidateRejectsEmpty(t *testing.T) {
	if err := Validate("sandbox", ""); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestValidateBoundary63Chars(t *testing.T) {
	s := "a"
	for len(s) < 63 {
		s += "b"
	}
	if len(s) != 63 {
		t.Fatalf("test setup: expected length 63, got %d", len(s))
	}
	if err := Validate("sandbox", s); err != nil {
		t.Errorf("63-char name should be valid: %v", err)
	}
	if err := Validate("sandbox", s+"c"); err == nil {
		t.Error("64-char name should be rejected")
	}
}

func TestValidateRejectsDisallowedChar(t *testing.T) {
	if err := Validate("sandbox", "bad.name"); err == nil {
		t.Error("expected error for name containing '.'")
	}
}

func TestValidateQueryAllowsWildcard(t *testing.T) {
	if err := ValidateQuery("namespace", Wildcard); err != nil {
		t.Errorf("ValidateQuery should accept wildcard: %v", err)
	}
}

func TestValidateAcceptsDigitLeading(t *testing.T) {
	if err := Validate("sandbox", "1abc"); err != nil {
		t.Errorf("name starting with digit should be valid: %v", err)
	}
}
