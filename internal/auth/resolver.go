package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/mblog/backend/internal/apperr"
	"go.uber.org/zap"
)

// RoleAdmin is the role granted moderation and settings rights.
const RoleAdmin = "ADMIN"

var (
	errMissingIssuer    = errors.New("token issuer is required")
	errMissingDirectory = errors.New("directory is required")
)

// Principal is the verified identity attached to a request.
type Principal struct {
	UserID int64
	Role   string
	Device string
}

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Directory answers the store-side questions the resolver asks.
type Directory interface {
	// Role returns the user's role, or "" when the user has none or does not exist.
	Role(ctx context.Context, userID int64) (string, error)
	// APITokenIssued reports whether token is the user's currently issued API token.
	APITokenIssued(ctx context.Context, userID int64, token string) (bool, error)
}

// ResolverConfig describes the resolver dependencies.
type ResolverConfig struct {
	Issuer    *TokenIssuer
	Directory Directory
	Logger    *zap.Logger
}

// Resolver turns a credential into a Principal.
type Resolver struct {
	issuer    *TokenIssuer
	directory Directory
	logger    *zap.Logger
}

// NewResolver validates dependencies and constructs a Resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Issuer == nil {
		return nil, errMissingIssuer
	}
	if cfg.Directory == nil {
		return nil, errMissingDirectory
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{issuer: cfg.Issuer, directory: cfg.Directory, logger: logger}, nil
}

// Resolve requires a valid credential.
func (r *Resolver) Resolve(ctx context.Context, credential string) (Principal, error) {
	return r.resolve(ctx, credential)
}

// ResolveOptional returns nil when the credential is absent, invalid or revoked.
// Store failures still propagate.
func (r *Resolver) ResolveOptional(ctx context.Context, credential string) (*Principal, error) {
	principal, err := r.resolve(ctx, credential)
	if err != nil {
		if apperr.Is(err, apperr.KindNeedLogin) || apperr.Is(err, apperr.KindAPITokenInvalid) {
			return nil, nil
		}
		return nil, err
	}
	return &principal, nil
}

func (r *Resolver) resolve(ctx context.Context, credential string) (Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Principal{}, apperr.NeedLogin()
	}

	claims, err := r.issuer.Verify(credential)
	if err != nil {
		r.logger.Debug("credential rejected", zap.Error(err))
		return Principal{}, apperr.NeedLogin()
	}

	userID, ok := claimUserID(claims)
	if !ok {
		return Principal{}, apperr.NeedLogin()
	}

	role, err := r.directory.Role(ctx, userID)
	if err != nil {
		r.logger.Error("role lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		return Principal{}, apperr.System(err)
	}

	device := claimDevice(claims)
	if device == DeviceAPI {
		issued, err := r.directory.APITokenIssued(ctx, userID, credential)
		if err != nil {
			r.logger.Error("api token lookup failed", zap.Int64("user_id", userID), zap.Error(err))
			return Principal{}, apperr.System(err)
		}
		if !issued {
			return Principal{}, apperr.APITokenInvalid()
		}
	}

	return Principal{UserID: userID, Role: role, Device: device}, nil
}
