package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

func generateCodeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()

	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("failed generating TOTP code: %v", err)
	}
	return code
}

func TestGenerateTOTPSecret(t *testing.T) {
	secret, uri, err := GenerateTOTPSecret("alice")
	if err != nil {
		t.Fatalf("GenerateTOTPSecret returned error: %v", err)
	}

	// 20 random bytes base32-encode to 32 characters.
	if len(secret) != 32 {
		t.Fatalf("expected 32-character base32 secret, got %d characters", len(secret))
	}

	if !strings.HasPrefix(uri, "otpauth://totp/") {
		t.Fatalf("expected otpauth URI, got %q", uri)
	}
	if !strings.Contains(uri, "secret="+secret) {
		t.Fatal("expected URI to carry the secret")
	}

	other, _, err := GenerateTOTPSecret("alice")
	if err != nil {
		t.Fatalf("GenerateTOTPSecret returned error: %v", err)
	}
	if other == secret {
		t.Fatal("expected two generated secrets to differ")
	}
}

func TestVerifyTOTPCode(t *testing.T) {
	secret, _, err := GenerateTOTPSecret("alice")
	if err != nil {
		t.Fatalf("GenerateTOTPSecret returned error: %v", err)
	}

	now := time.Now().UTC()
	// Anchor away from a step boundary so the validation clock cannot roll
	// into the next step mid-test and widen the accepted window.
	if remaining := 30 - now.Unix()%30; remaining < 2 {
		time.Sleep(time.Duration(remaining)*time.Second + 100*time.Millisecond)
		now = time.Now().UTC()
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{name: "current step verifies", at: now, want: true},
		{name: "previous step verifies", at: now.Add(-30 * time.Second), want: true},
		{name: "next step verifies", at: now.Add(30 * time.Second), want: true},
		{name: "two steps back fails", at: now.Add(-60 * time.Second), want: false},
		{name: "two steps ahead fails", at: now.Add(60 * time.Second), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := generateCodeAt(t, secret, tt.at)
			if got := VerifyTOTPCode(code, secret); got != tt.want {
				t.Fatalf("VerifyTOTPCode() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("garbage code fails", func(t *testing.T) {
		if VerifyTOTPCode("000000", secret) && VerifyTOTPCode("999999", secret) {
			t.Fatal("expected at least one of two fixed codes to fail")
		}
		if VerifyTOTPCode("not-a-code", secret) {
			t.Fatal("expected non-numeric code to fail")
		}
	})
}

func TestTOTPProvisioningURI(t *testing.T) {
	ConfigureTOTP("AuthGate")

	uri := TOTPProvisioningURI("alice", "JBSWY3DPEHPK3PXP")
	expected := "otpauth://totp/AuthGate:alice?secret=JBSWY3DPEHPK3PXP&issuer=AuthGate"
	if uri != expected {
		t.Fatalf("expected URI %q, got %q", expected, uri)
	}
}

func TestTOTPQRCodeDataURI(t *testing.T) {
	ConfigureTOTP("AuthGate")

	dataURI, err := TOTPQRCodeDataURI("alice", "JBSWY3DPEHPK3PXP")
	if err != nil {
		t.Fatalf("TOTPQRCodeDataURI returned error: %v", err)
	}
	if !strings.HasPrefix(dataURI, "data:image/png;base64,") {
		t.Fatal("expected PNG data URI")
	}
	if len(dataURI) < 100 {
		t.Fatal("expected a non-trivial encoded image")
	}
}
