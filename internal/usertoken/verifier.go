package usertoken

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer   = "mastewal-auth"
	defaultAudience = "mastewal-api"
	defaultLeeway   = 30 * time.Second

	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Config configures user access-token verification.
type Config struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Claims is the authenticated identity carried by a verified token.
type Claims struct {
	UserID string
	Role   string
}

type tokenClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 user access tokens and extracts the caller
// identity. Identity is never taken from the request body.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// NewVerifier creates a token verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("token verifier requires a secret")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = defaultAudience
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	return &Verifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		leeway:   leeway,
	}, nil
}

// Verify validates the token and returns the caller's claims.
func (v *Verifier) Verify(token string) (Claims, error) {
	claims := tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return Claims{}, err
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Claims{}, errors.New("token subject missing")
	}
	role := strings.TrimSpace(claims.Role)
	if role == "" {
		role = RoleUser
	}
	return Claims{UserID: subject, Role: role}, nil
}
