package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName is the cookie carrying the signed session token.
const CookieName = "recipe_finder_session"

const issuer = "recipe-finder"

type contextKey string

const sessionIDKey contextKey = "sessionID"

// ID retrieves the session id stored by Middleware.
func ID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(sessionIDKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// WithID returns a copy of ctx carrying sessionID.
func WithID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// Tokens signs and verifies session tokens. The token only binds a browser
// to its view; it says nothing about who the user is.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

// NewTokens returns a signer using the HS256 secret and token lifetime.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	return &Tokens{secret: []byte(secret), ttl: ttl}, nil
}

// Issue signs a token for sessionID valid from now for the configured ttl.
func (t *Tokens) Issue(sessionID string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies tokenString and returns its session id.
func (t *Tokens) Parse(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid session token")
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", errors.New("invalid session id")
	}
	return claims.Subject, nil
}

// TTL is the lifetime of issued tokens.
func (t *Tokens) TTL() time.Duration {
	return t.ttl
}

// Middleware resolves the caller's session from the cookie, starting a new
// session when the cookie is missing, expired or tampered with. The cookie is
// re-issued on every request so active sessions do not expire.
func Middleware(tokens *Tokens, secureCookie bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := ""
		if raw, err := c.Cookie(CookieName); err == nil && raw != "" {
			if id, err := tokens.Parse(raw); err == nil {
				sessionID = id
			}
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		signed, err := tokens.Issue(sessionID, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to issue session"})
			return
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(CookieName, signed, int(tokens.TTL().Seconds()), "/", "", secureCookie, true)

		c.Request = c.Request.WithContext(WithID(c.Request.Context(), sessionID))
		c.Set(string(sessionIDKey), sessionID)

		c.Next()
	}
}
