package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIssuerIssuesLoginClaims(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		Clock:         func() time.Time { return fixed },
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	tokenString, err := issuer.Issue(42, DeviceAPI)
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}

	claims, err := issuer.Verify(tokenString)
	if err != nil {
		t.Fatalf("failed to verify issued token: %v", err)
	}
	userID, ok := claimUserID(claims)
	if !ok || userID != 42 {
		t.Fatalf("unexpected user id %d (ok=%v)", userID, ok)
	}
	if device := claimDevice(claims); device != DeviceAPI {
		t.Fatalf("unexpected device %s", device)
	}
	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		t.Fatalf("expected exp claim, err=%v", err)
	}
	if expiry.Year() != fixed.Year()+100 {
		t.Fatalf("expected exp a century out, got %s", expiry)
	}
}

func TestTokenIssuerRejectsMissingSecret(t *testing.T) {
	if _, err := NewTokenIssuer(TokenIssuerConfig{}); err == nil {
		t.Fatalf("expected constructor error for missing secret")
	}
}

func TestTokenIssuerRejectsInvalidInput(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, err := issuer.Issue(0, DeviceWeb); err == nil {
		t.Fatalf("expected error for zero user id")
	}
	if _, err := issuer.Issue(1, " "); err == nil {
		t.Fatalf("expected error for blank device")
	}
}

func TestVerifyIgnoresExpiry(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	expired := signClaims(t, []byte("secret"), jwt.MapClaims{
		"loginId": 5,
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	if _, err := issuer.Verify(expired); err != nil {
		t.Fatalf("expected expired token to verify, got %v", err)
	}
}

func TestVerifyRejectsForeignSignatures(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	testCases := []struct {
		name  string
		token string
	}{
		{name: "malformed", token: "invalid.token"},
		{name: "wrong-secret", token: signClaims(t, []byte("other"), jwt.MapClaims{"loginId": 1})},
		{name: "wrong-algorithm", token: signWithMethod(t, jwt.SigningMethodHS512, []byte("secret"), jwt.MapClaims{"loginId": 1})},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := issuer.Verify(testCase.token); err == nil {
				t.Fatalf("expected verification failure")
			}
		})
	}
}

func TestClaimUserIDPriority(t *testing.T) {
	testCases := []struct {
		name     string
		claims   jwt.MapClaims
		expected int64
		ok       bool
	}{
		{name: "login-id-number", claims: jwt.MapClaims{"loginId": float64(7)}, expected: 7, ok: true},
		{name: "string-form", claims: jwt.MapClaims{"userId": "12"}, expected: 12, ok: true},
		{name: "priority", claims: jwt.MapClaims{"sub": "3", "id": float64(9)}, expected: 9, ok: true},
		{name: "skips-unparseable", claims: jwt.MapClaims{"loginId": "abc", "login_id": "4"}, expected: 4, ok: true},
		{name: "missing", claims: jwt.MapClaims{"name": "x"}, ok: false},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			userID, ok := claimUserID(testCase.claims)
			if ok != testCase.ok || userID != testCase.expected {
				t.Fatalf("expected (%d,%v), got (%d,%v)", testCase.expected, testCase.ok, userID, ok)
			}
		})
	}
}

func TestClaimDeviceDefaultsToWeb(t *testing.T) {
	if device := claimDevice(jwt.MapClaims{}); device != DeviceWeb {
		t.Fatalf("expected WEB default, got %s", device)
	}
	if device := claimDevice(jwt.MapClaims{"loginType": "API"}); device != DeviceAPI {
		t.Fatalf("expected API from loginType, got %s", device)
	}
}

func signClaims(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	return signWithMethod(t, jwt.SigningMethodHS256, secret, claims)
}

func signWithMethod(t *testing.T, method jwt.SigningMethod, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
