package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
)

type stubDirectory struct {
	roles     map[int64]string
	apiTokens map[int64]string
	err       error
}

func (d *stubDirectory) Role(_ context.Context, userID int64) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return d.roles[userID], nil
}

func (d *stubDirectory) APITokenIssued(_ context.Context, userID int64, token string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	return d.apiTokens[userID] == token, nil
}

func newTestResolver(t *testing.T, directory *stubDirectory) (*Resolver, *TokenIssuer) {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("resolver-secret")})
	if err != nil {
		t.Fatalf("failed to build issuer: %v", err)
	}
	resolver, err := NewResolver(ResolverConfig{Issuer: issuer, Directory: directory})
	if err != nil {
		t.Fatalf("failed to build resolver: %v", err)
	}
	return resolver, issuer
}

func TestResolveWebCredential(t *testing.T) {
	resolver, issuer := newTestResolver(t, &stubDirectory{roles: map[int64]string{1: RoleAdmin}})
	token, err := issuer.Issue(1, DeviceWeb)
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}

	principal, err := resolver.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if principal.UserID != 1 || principal.Device != DeviceWeb || !principal.IsAdmin() {
		t.Fatalf("unexpected principal %#v", principal)
	}
}

func TestResolveAPICredentialRequiresIssuedToken(t *testing.T) {
	directory := &stubDirectory{roles: map[int64]string{}, apiTokens: map[int64]string{}}
	resolver, issuer := newTestResolver(t, directory)

	first, err := issuer.Issue(2, DeviceAPI)
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}
	directory.apiTokens[2] = first
	if _, err := resolver.Resolve(context.Background(), first); err != nil {
		t.Fatalf("expected live api token to resolve: %v", err)
	}

	directory.apiTokens[2] = "rotated"
	_, err = resolver.Resolve(context.Background(), first)
	if !apperr.Is(err, apperr.KindAPITokenInvalid) {
		t.Fatalf("expected api token invalid, got %v", err)
	}
}

func TestResolveFailures(t *testing.T) {
	resolver, _ := newTestResolver(t, &stubDirectory{})
	foreign := signClaims(t, []byte("other-secret"), jwt.MapClaims{"loginId": 1})
	noUser := signClaims(t, []byte("resolver-secret"), jwt.MapClaims{"device": "WEB"})

	testCases := []struct {
		name       string
		credential string
	}{
		{name: "blank", credential: "  "},
		{name: "bad-signature", credential: foreign},
		{name: "missing-user", credential: noUser},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := resolver.Resolve(context.Background(), testCase.credential)
			if !apperr.Is(err, apperr.KindNeedLogin) {
				t.Fatalf("expected need login, got %v", err)
			}
		})
	}
}

func TestResolveMapsDirectoryFailureToSystem(t *testing.T) {
	resolver, issuer := newTestResolver(t, &stubDirectory{err: errors.New("db down")})
	token, err := issuer.Issue(3, DeviceWeb)
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}
	_, err = resolver.Resolve(context.Background(), token)
	if !apperr.Is(err, apperr.KindSystem) {
		t.Fatalf("expected system failure, got %v", err)
	}

	if _, err := resolver.ResolveOptional(context.Background(), token); !apperr.Is(err, apperr.KindSystem) {
		t.Fatalf("expected optional resolve to propagate system failure, got %v", err)
	}
}

func TestResolveOptionalDiscardsCredentialFailures(t *testing.T) {
	directory := &stubDirectory{apiTokens: map[int64]string{}}
	resolver, issuer := newTestResolver(t, directory)
	revoked, err := issuer.Issue(4, DeviceAPI)
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}

	for _, credential := range []string{"", "garbage", revoked} {
		principal, err := resolver.ResolveOptional(context.Background(), credential)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", credential, err)
		}
		if principal != nil {
			t.Fatalf("expected no principal for %q", credential)
		}
	}

	web, err := issuer.Issue(4, DeviceWeb)
	if err != nil {
		t.Fatalf("failed to issue: %v", err)
	}
	principal, err := resolver.ResolveOptional(context.Background(), web)
	if err != nil || principal == nil || principal.UserID != 4 {
		t.Fatalf("expected principal for web credential, got %#v err=%v", principal, err)
	}
}
