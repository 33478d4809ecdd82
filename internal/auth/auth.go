package auth

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrInvalidToken   = errors.New("invalid token")
	ErrSubjectMissing = errors.New("token subject is required")
)

// Claims identify an API client. Roots restricts the project roots the
// client may open; an empty list allows every root.
type Claims struct {
	Roots []string `json:"roots,omitempty"`
	jwt.RegisteredClaims
}

// AllowsRoot reports whether root equals or lies below one of the allowed
// roots.
func (c *Claims) AllowsRoot(root string) bool {
	if c == nil {
		return false
	}
	if len(c.Roots) == 0 {
		return true
	}
	root = filepath.Clean(root)
	for _, allowed := range c.Roots {
		allowed = filepath.Clean(allowed)
		if root == allowed || strings.HasPrefix(root, allowed+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

type Service struct {
	secret   []byte
	duration time.Duration
}

func NewService(secret string, duration time.Duration) *Service {
	return &Service{
		secret:   []byte(secret),
		duration: duration,
	}
}

func (s *Service) GenerateToken(subject string, roots []string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", ErrSubjectMissing
	}
	now := time.Now()
	claims := &Claims{
		Roots: roots,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
