package preflight

import "testing"

func TestValidateRequestRejectsEmpty(t *testing.T) {
	if err := ValidateRequest("   "); err == nil {
		t.Fatalf("expected rejection of empty description")
	}
}

func TestValidateRequestRejectsTooFewTokens(t *testing.T) {
	if err := ValidateRequest("fix bug"); err == nil {
		t.Fatalf("expected rejection of description with fewer than 3 tokens")
	}
}

func TestValidateRequestRejectsDangerousPattern(t *testing.T) {
	cases := []string{
		"please run rm -rf / on the server",
		"DROP TABLE users please",
		"read ../../../etc/passwd now",
	}
	for _, c := range cases {
		if err := ValidateRequest(c); err == nil {
			t.Fatalf("expected rejection of dangerous description %q", c)
		}
	}
}

func TestValidateRequestAcceptsNormalDescription(t *testing.T) {
	if err := ValidateRequest("add a retry mechanism to the upload handler"); err != nil {
		t.Fatalf("expected normal description to pass, got %v", err)
	}
}
