package otc

import (
	"strings"
	"testing"
	"time"
)

func TestProvision(t *testing.T) {
	e := NewEngine("Single-Login")

	p, err := e.Provision("alice@example.com")
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if p.Secret == "" {
		t.Error("expected non-empty secret")
	}
	// 20 raw bytes base32-encode to 32 characters.
	if len(p.Secret) != 32 {
		t.Errorf("expected 32-char base32 secret, got %d chars", len(p.Secret))
	}
	if !strings.HasPrefix(p.URI, "otpauth://totp/") {
		t.Errorf("expected otpauth://totp/ URI, got %s", p.URI)
	}
	if !strings.Contains(p.URI, "Single-Login") {
		t.Errorf("expected issuer in URI, got %s", p.URI)
	}
	if !strings.Contains(p.URI, "alice@example.com") {
		t.Errorf("expected account label in URI, got %s", p.URI)
	}
}

func TestProvision_UniqueSecrets(t *testing.T) {
	e := NewEngine("Single-Login")

	p1, err := e.Provision("alice")
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	p2, err := e.Provision("alice")
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if p1.Secret == p2.Secret {
		t.Error("expected fresh random secret per provisioning")
	}
}

func TestValidate_CurrentCode(t *testing.T) {
	e := NewEngine("Single-Login")
	p, err := e.Provision("alice")
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	code := e.CurrentCode(p.Secret, now)
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}

	if !e.Validate(p.Secret, code, now) {
		t.Error("expected current code to validate at generation time")
	}
}

func TestValidate_ClockDriftTolerance(t *testing.T) {
	e := NewEngine("Single-Login")
	p, err := e.Provision("alice")
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	gen := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	code := e.CurrentCode(p.Secret, gen)

	// Half a period later the code is still inside the ±1-step window.
	if !e.Validate(p.Secret, code, gen.Add(period/2)) {
		t.Error("expected code to validate half a period after generation")
	}

	// One full period later is the adjacent step, still tolerated.
	if !e.Validate(p.Secret, code, gen.Add(period)) {
		t.Error("expected code to validate one period after generation")
	}

	// Two periods later is outside the tolerance and must be rejected even
	// though the code was once correct.
	if e.Validate(p.Secret, code, gen.Add(2*period)) {
		t.Error("expected code to be rejected two periods after generation")
	}
}

func TestValidate_WrongCode(t *testing.T) {
	e := NewEngine("Single-Login")
	p, err := e.Provision("alice")
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	now := time.Now()
	code := e.CurrentCode(p.Secret, now)

	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}
	if e.Validate(p.Secret, wrong, now) {
		t.Error("expected wrong code to fail validation")
	}
}

func TestValidate_MalformedInputs(t *testing.T) {
	e := NewEngine("Single-Login")
	now := time.Now()

	tests := []struct {
		name   string
		secret string
		code   string
	}{
		{"empty secret", "", "123456"},
		{"garbage secret", "!!!not-base32!!!", "123456"},
		{"empty code", "JBSWY3DPEHPK3PXP", ""},
		{"short code", "JBSWY3DPEHPK3PXP", "123"},
		{"alpha code", "JBSWY3DPEHPK3PXP", "abcdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if e.Validate(tt.secret, tt.code, now) {
				t.Error("expected malformed input to fail validation, not panic or pass")
			}
		})
	}
}

func TestCurrentCode_MalformedSecret(t *testing.T) {
	e := NewEngine("Single-Login")
	if code := e.CurrentCode("not base32", time.Now()); code != "" {
		t.Errorf("expected empty code for malformed secret, got %q", code)
	}
}

func TestCurrentCode_DeterministicPerStep(t *testing.T) {
	e := NewEngine("Single-Login")
	p, err := e.Provision("alice")
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	// Two instants inside the same 30s step produce the same code.
	base := time.Date(2024, 6, 1, 12, 0, 1, 0, time.UTC)
	if e.CurrentCode(p.Secret, base) != e.CurrentCode(p.Secret, base.Add(20*time.Second)) {
		t.Error("expected identical codes within one time step")
	}
}
