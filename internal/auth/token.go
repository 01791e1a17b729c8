package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("token is empty")
	ErrInvalidToken = errors.New("invalid token")
	ErrUserNotFound = errors.New("user not found")
)

// AuthError rejects a connection handshake. The connection never reaches
// the authenticated state.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "authentication error: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func Reject(err error) error {
	return &AuthError{Err: err}
}

// Claims carried by session tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID       string `json:"id"`
	TokenVersion *int   `json:"tokenVersion,omitempty"`
}

// Verifier checks HS256 session tokens.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Verify validates tokenString and returns its claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	if tokenString == "" {
		return nil, Reject(ErrMissingToken)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, Reject(fmt.Errorf("%w: %v", ErrInvalidToken, err))
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, Reject(ErrInvalidToken)
	}

	// Older tokens put the user id in "sub".
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, Reject(fmt.Errorf("%w: no user id", ErrInvalidToken))
	}

	return claims, nil
}

// Sign issues a token for userID. Credential issuance belongs to the HTTP API;
// this exists for tooling and tests.
func (v *Verifier) Sign(userID string, tokenVersion *int, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:       userID,
		TokenVersion: tokenVersion,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// ExtractTokenFromRequest extracts the token from the query or Authorization header.
func ExtractTokenFromRequest(r *http.Request) string {
	token := r.URL.Query().Get("token")
	if token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}

	return ""
}
