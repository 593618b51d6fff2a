package config

import (
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.StepUpMode != StepUpModeTOTP {
		t.Errorf("expected default step-up mode %q, got %q", StepUpModeTOTP, cfg.Auth.StepUpMode)
	}
	if cfg.Auth.RevalidateInterval <= 0 {
		t.Error("expected a positive default revalidate interval")
	}
}

func TestLoad_RejectsNonPositiveDurations(t *testing.T) {
	tests := []struct {
		envVar string
		value  string
	}{
		{"REVALIDATE_INTERVAL", "0s"},
		{"DEVICE_CODE_TTL", "-1m"},
		{"EMAIL_TOKEN_TTL", "0h"},
		{"ORIGIN_ATTEMPT_TIMEOUT", "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.envVar, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("expected %s=%s to be rejected", tt.envVar, tt.value)
			}
			if !strings.Contains(err.Error(), tt.envVar) {
				t.Errorf("expected the error to name %s, got %v", tt.envVar, err)
			}
		})
	}
}

func TestLoad_RejectsUnknownStepUpMode(t *testing.T) {
	t.Setenv("STEP_UP_MODE", "carrier-pigeon")
	if _, err := Load(); err == nil {
		t.Fatal("expected an unknown step-up mode to be rejected")
	}
}

func TestLoad_DeviceCodeInProductionNeedsSMTP(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("STEP_UP_MODE", StepUpModeDeviceCode)
	if _, err := Load(); err == nil {
		t.Fatal("expected devicecode without SMTP_HOST to be rejected in production")
	}

	t.Setenv("SMTP_HOST", "smtp.example.com")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error with SMTP configured: %v", err)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db.internal", User: "app", Password: "p@ss/word", Name: "single_login"}
	dsn := d.DSN()
	if !strings.Contains(dsn, "db.internal:3306") {
		t.Errorf("expected the default port to be appended, got %s", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("expected parseTime to be set, got %s", dsn)
	}

	d.dsnOverride = "app:pw@tcp(other:3307)/x"
	if d.DSN() != d.dsnOverride {
		t.Error("expected DATABASE_URL to take precedence")
	}
}
