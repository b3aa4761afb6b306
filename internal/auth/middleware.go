package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// SubjectKey is the echo context key holding the authenticated subject.
const SubjectKey = "admin_subject"

var ErrNoSecret = errors.New("admin secret is not configured")

// Guard protects admin routes. A request passes with the shared secret in
// X-Admin-Secret, the secret itself as a Bearer token, or a Bearer JWT
// signed with the secret (HS256).
type Guard struct {
	secret string

	once   sync.Once
	err    error
	logger zerolog.Logger
}

// NewGuard uses secret when set; otherwise an ephemeral random secret is
// generated on first use and every token minted before a restart dies with it.
func NewGuard(secret string, logger zerolog.Logger) *Guard {
	return &Guard{secret: strings.TrimSpace(secret), logger: logger}
}

func (g *Guard) resolve() (string, error) {
	g.once.Do(func() {
		if g.secret != "" {
			return
		}
		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			g.err = fmt.Errorf("failed to generate admin fallback secret: %w", err)
			return
		}
		g.secret = base64.RawURLEncoding.EncodeToString(buf)
		g.logger.Warn().Msg("admin secret is not set; using ephemeral in-memory fallback secret")
	})
	return g.secret, g.err
}

// Middleware validates the admin credentials and stores the subject.
func (g *Guard) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret, err := g.resolve()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server admin configuration error"})
		}

		if header := c.Request().Header.Get("X-Admin-Secret"); header != "" && equal(header, secret) {
			c.Set(SubjectKey, "admin")
			return next(c)
		}

		authHeader := c.Request().Header.Get("Authorization")
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			token := strings.TrimSpace(authHeader[7:])
			if equal(token, secret) {
				c.Set(SubjectKey, "admin")
				return next(c)
			}
			if sub, err := ParseToken(token, secret); err == nil {
				c.Set(SubjectKey, sub)
				return next(c)
			}
		}

		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// IssueToken mints an HS256 token for subject valid for ttl.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies an HMAC-signed token and returns its subject.
func ParseToken(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid or expired token: %w", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("invalid token subject")
	}
	return sub, nil
}
