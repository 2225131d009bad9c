package mockapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// Issuer is the iss claim of tokens minted for the mock backend.
const Issuer = "backoffice-mock"

const subjectContextKey = "subject"

// IssueToken mints an HS256 access token for subject.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required")
	}
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := time.Now()
	claims := &jwt.RegisteredClaims{
		Subject:  subject,
		Issuer:   Issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

// ParseToken verifies token and returns its subject.
func ParseToken(secret, token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(Issuer))
	if err != nil {
		return "", errors.Wrap(err, "invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// authenticate requires a valid bearer token when the server has a secret.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.config.Secret == "" {
			return next(c)
		}
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return respondError(c, http.StatusUnauthorized, "authentication required", nil)
		}
		subject, err := ParseToken(s.config.Secret, token)
		if err != nil {
			return respondError(c, http.StatusUnauthorized, "invalid or expired token", nil)
		}
		c.Set(subjectContextKey, subject)
		return next(c)
	}
}

// subjectKey keys rate limiting by the authenticated subject, else the client address.
func subjectKey(c echo.Context) string {
	if subject, ok := c.Get(subjectContextKey).(string); ok && subject != "" {
		return "sub:" + subject
	}
	return "ip:" + c.RealIP()
}
