package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"codejudge/internal/common/cache"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/contextkey"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	revokedKeyPrefix  = "auth:revoked:"
	defaultAuthLookup = 200 * time.Millisecond
)

// TokenVerifier validates HS256 access tokens issued elsewhere.
type TokenVerifier struct {
	secret  []byte
	issuer  string
	revoked cache.BasicOps
	timeout time.Duration
}

// NewTokenVerifier creates a verifier. revoked may be nil to skip revocation checks.
func NewTokenVerifier(secret, issuer string, revoked cache.BasicOps) *TokenVerifier {
	return &TokenVerifier{
		secret:  []byte(secret),
		issuer:  issuer,
		revoked: revoked,
		timeout: defaultAuthLookup,
	}
}

type tokenClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Verify returns the user id carried by a valid access token.
func (v *TokenVerifier) Verify(ctx context.Context, raw string) (int64, error) {
	if raw == "" {
		return 0, appErr.New(appErr.TokenInvalid)
	}
	claims, err := v.parse(raw)
	if err != nil {
		return 0, err
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, appErr.New(appErr.TokenInvalid)
	}
	if v.revoked != nil {
		ctxCache, cancel := context.WithTimeout(ctx, v.timeout)
		defer cancel()
		n, err := v.revoked.Exists(ctxCache, RevokedTokenKey(raw))
		if err != nil {
			return 0, appErr.Wrap(err, appErr.ServiceUnavailable)
		}
		if n > 0 {
			return 0, appErr.New(appErr.TokenInvalid)
		}
	}
	return userID, nil
}

func (v *TokenVerifier) parse(raw string) (*tokenClaims, error) {
	if len(v.secret) == 0 {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErr.New(appErr.TokenExpired)
		}
		return nil, appErr.New(appErr.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	if claims.TokenType != "access" || claims.Subject == "" {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	return claims, nil
}

// RevokedTokenKey is the cache key marking a token as revoked.
func RevokedTokenKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return revokedKeyPrefix + hex.EncodeToString(sum[:])
}

// AuthMiddleware rejects requests without a valid bearer token and exposes
// the caller's id to handlers.
func AuthMiddleware(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			response.AbortWithErrorCode(c, appErr.ServiceUnavailable, "auth is not configured")
			return
		}
		token := extractBearerToken(c.GetHeader("Authorization"))
		userID, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		c.Set(userIDContextKey, userID)
		ctx := context.WithValue(c.Request.Context(), contextkey.UserID, strconv.FormatInt(userID, 10))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// UserID returns the authenticated caller id.
func UserID(c *gin.Context) (int64, bool) {
	val, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	id, ok := val.(int64)
	return id, ok && id > 0
}

func extractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
