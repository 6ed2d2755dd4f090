package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/studyhall-attendance/internal/dto"
	"github.com/noah-isme/studyhall-attendance/internal/models"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
)

const scopeCachePrefix = "studyhall:scope:"

type scopeCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type layoutReader interface {
	LayoutExists(ctx context.Context, tenantID, layoutID string) (bool, error)
}

// TokenConfig carries the signing material for both token kinds.
type TokenConfig struct {
	AdminSecret   string
	AdminIssuer   string
	AdminExpiry   time.Duration
	ScopeSecret   string
	ScopeTokenTTL time.Duration
}

// TokenService validates administrative access tokens and issues and resolves
// kiosk scope tokens.
type TokenService struct {
	layouts layoutReader
	cache   scopeCache
	config  TokenConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewTokenService constructs a token service. A nil cache disables caching.
func NewTokenService(layouts layoutReader, cache scopeCache, cfg TokenConfig, logger *zap.Logger) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AdminExpiry <= 0 {
		cfg.AdminExpiry = 15 * time.Minute
	}
	if cfg.ScopeTokenTTL <= 0 {
		cfg.ScopeTokenTTL = 30 * 24 * time.Hour
	}
	if cfg.ScopeSecret == "" {
		cfg.ScopeSecret = cfg.AdminSecret
	}
	return &TokenService{layouts: layouts, cache: cache, config: cfg, logger: logger, now: time.Now}
}

// ValidateToken parses an administrative access token.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc(s.config.AdminSecret), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	if !token.Valid || claims.TenantID == "" || claims.Role == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// IssueAdminToken signs an access token. Account management lives elsewhere;
// this is used by operators' tooling and tests.
func (s *TokenService) IssueAdminToken(userID, tenantID string, role models.UserRole) (string, time.Time, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.AdminExpiry)
	claims := &models.JWTClaims{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.AdminIssuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AdminSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// IssueScopeToken signs a kiosk token for a layout of the tenant.
func (s *TokenService) IssueScopeToken(ctx context.Context, tenantID string, req dto.IssueScopeTokenRequest) (*dto.ScopeTokenResponse, error) {
	if req.LayoutID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "layoutId is required")
	}
	exists, err := s.layouts.LayoutExists(ctx, tenantID, req.LayoutID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load seat layout")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "seat layout not found")
	}

	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.ScopeTokenTTL)
	claims := &models.ScopeClaims{
		TenantID: tenantID,
		LayoutID: req.LayoutID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.AdminIssuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.ScopeSecret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign scope token")
	}
	s.logger.Info("scope token issued", zap.String("tenant_id", tenantID), zap.String("layout_id", req.LayoutID))
	return &dto.ScopeTokenResponse{Token: signed, TenantID: tenantID, LayoutID: req.LayoutID, ExpiresAt: expiresAt}, nil
}

// ResolveScope maps a scope token to its tenant and layout. Resolved scopes are
// cached until the token expires.
func (s *TokenService) ResolveScope(ctx context.Context, tokenString string) (*models.Scope, error) {
	if tokenString == "" {
		return nil, appErrors.ErrInvalidScopeToken
	}
	key := scopeCacheKey(tokenString)

	if s.cache != nil {
		var cached models.Scope
		err := s.cache.Get(ctx, key, &cached)
		switch {
		case err == nil && cached.TenantID != "":
			return &cached, nil
		case err != nil && !errors.Is(err, appErrors.ErrCacheMiss):
			s.logger.Warn("scope cache read failed", zap.Error(err))
		}
	}

	claims := &models.ScopeClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc(s.config.ScopeSecret), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid || claims.TenantID == "" || claims.LayoutID == "" {
		return nil, appErrors.ErrInvalidScopeToken
	}

	scope := &models.Scope{TenantID: claims.TenantID, LayoutID: claims.LayoutID}
	if s.cache != nil && claims.ExpiresAt != nil {
		ttl := claims.ExpiresAt.Time.Sub(s.now())
		if ttl > 0 {
			if err := s.cache.Set(ctx, key, scope, ttl); err != nil {
				s.logger.Warn("scope cache write failed", zap.Error(err))
			}
		}
	}
	return scope, nil
}

func (s *TokenService) keyFunc(secret string) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}
}

func scopeCacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return scopeCachePrefix + hex.EncodeToString(sum[:])
}
