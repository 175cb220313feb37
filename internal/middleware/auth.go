package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/shyamanurag/stock-trading-app-sub000/internal/errors"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/logger"
)

// AuthMiddleware resolves the portfolio owner from an HS256 bearer token.
// Issuing tokens is the job of the surrounding identity service; the
// owner is carried in the "uid" claim.
type AuthMiddleware struct {
	secretKey []byte
	issuer    string
}

type Claims struct {
	OwnerID string `json:"uid"`
	jwt.RegisteredClaims
}

func NewAuthMiddleware(secretKey, issuer string) *AuthMiddleware {
	return &AuthMiddleware{
		secretKey: []byte(secretKey),
		issuer:    issuer,
	}
}

func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			WriteError(w, r, apperrors.NewAuthenticationError("missing bearer token", nil))
			return
		}

		ownerID, err := m.validateToken(token)
		if err != nil {
			WriteError(w, r, apperrors.NewInvalidTokenError(err))
			return
		}

		ctx := context.WithValue(r.Context(), logger.UserIDKey, ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GenerateToken signs a token for ownerID valid for ttl.
func (m *AuthMiddleware) GenerateToken(ownerID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		OwnerID: ownerID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

func (m *AuthMiddleware) validateToken(tokenString string) (uuid.UUID, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secretKey, nil
	}, opts...)
	if err != nil {
		return uuid.Nil, err
	}
	if !token.Valid {
		return uuid.Nil, errors.New("invalid token claims")
	}

	ownerID, err := uuid.Parse(claims.OwnerID)
	if err != nil || ownerID == uuid.Nil {
		return uuid.Nil, errors.New("token carries no owner id")
	}
	return ownerID, nil
}

// OwnerID returns the authenticated owner stored by Authenticate.
func OwnerID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(logger.UserIDKey).(uuid.UUID)
	return id, ok
}

func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
