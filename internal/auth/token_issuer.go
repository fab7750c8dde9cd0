package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DeviceWeb marks a browser session credential trusted on signature alone.
	DeviceWeb = "WEB"
	// DeviceAPI marks a long-lived credential that must match an issued API token.
	DeviceAPI = "API"

	defaultTokenLifetimeYears = 100
)

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingUserID        = errors.New("user id must be positive")
	errMissingDevice        = errors.New("device must be provided")
)

// Claim names accepted for the user identifier and the device class, in priority order.
var (
	userIDClaimNames = []string{"loginId", "userId", "id", "sub", "login_id"}
	deviceClaimNames = []string{"device", "loginType", "login_type", "deviceType"}
)

// TokenIssuerConfig configures the credential issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Clock         func() time.Time
}

// TokenIssuer signs and verifies HS256 credentials.
type TokenIssuer struct {
	signingSecret []byte
	clock         func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		clock:         clock,
	}, nil
}

// Issue produces a signed credential carrying loginId, device and a far-future exp.
// Every call yields a distinct credential.
func (i *TokenIssuer) Issue(userID int64, device string) (string, error) {
	if userID <= 0 {
		return "", errMissingUserID
	}
	device = strings.TrimSpace(device)
	if device == "" {
		return "", errMissingDevice
	}
	expiresAt := i.clock().UTC().AddDate(defaultTokenLifetimeYears, 0, 0)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"loginId": userID,
		"device":  device,
		"exp":     expiresAt.Unix(),
		"jti":     uuid.NewString(),
	})
	return token.SignedString(i.signingSecret)
}

// Verify checks the signature and algorithm and returns the raw claims.
// Registered time claims are not validated, so credentials never expire.
func (i *TokenIssuer) Verify(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(
		strings.TrimSpace(tokenString),
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return i.signingSecret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
		jwt.WithJSONNumber(),
	)
	if err != nil {
		return nil, err
	}
	if parsed == nil || !parsed.Valid {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}

func claimUserID(claims jwt.MapClaims) (int64, bool) {
	for _, name := range userIDClaimNames {
		raw, ok := claims[name]
		if !ok {
			continue
		}
		switch value := raw.(type) {
		case json.Number:
			if id, err := value.Int64(); err == nil {
				return id, true
			}
		case float64:
			if value == math.Trunc(value) {
				return int64(value), true
			}
		case string:
			if id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
				return id, true
			}
		}
	}
	return 0, false
}

func claimDevice(claims jwt.MapClaims) string {
	for _, name := range deviceClaimNames {
		if value, ok := claims[name].(string); ok {
			return value
		}
	}
	return DeviceWeb
}
