package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Identity headers trusted in header mode
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
)

const identityKey = "identity"

var (
	ErrMissingIdentity = errors.New("missing identity")
	ErrInvalidToken    = errors.New("invalid token")
)

// Identity is the authenticated caller, as supplied by the session provider
type Identity struct {
	OwnerID     string
	DisplayName string
}

// IdentityProvider extracts the caller's identity from a request
type IdentityProvider interface {
	Identify(r *http.Request) (Identity, error)
}

// HeaderIdentity trusts identity headers set by an upstream auth proxy
type HeaderIdentity struct{}

// Identify reads X-User-ID and X-User-Name
func (HeaderIdentity) Identify(r *http.Request) (Identity, error) {
	owner := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if owner == "" {
		return Identity{}, ErrMissingIdentity
	}
	return Identity{
		OwnerID:     owner,
		DisplayName: strings.TrimSpace(r.Header.Get(HeaderUserName)),
	}, nil
}

// Claims carried by session tokens
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// JWTIdentity validates HS256 bearer tokens. The subject is the owner id.
type JWTIdentity struct {
	secret []byte
}

// NewJWTIdentity creates a token validator
func NewJWTIdentity(secret string) (*JWTIdentity, error) {
	if secret == "" {
		return nil, errors.New("secret key required for HS256")
	}
	return &JWTIdentity{secret: []byte(secret)}, nil
}

// Identify validates the Authorization bearer token
func (j *JWTIdentity) Identify(r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if tokenString == "" {
		return Identity{}, ErrMissingIdentity
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Identity{OwnerID: claims.Subject, DisplayName: claims.Name}, nil
}

// SignToken issues an HS256 session token. Used by the CLI and tests.
func (j *JWTIdentity) SignToken(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// RequireIdentity rejects requests without a usable identity
func RequireIdentity(provider IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := provider.Identify(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
				"kind":  "unauthorized",
			})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func identityFrom(c *gin.Context) Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(Identity)
	return id
}
