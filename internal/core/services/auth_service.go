package services

import (
	"crypto/subtle"
	"errors"
	"time"

	"uplinkpolicy/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token expired")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidAPIKey = errors.New("invalid api key")
)

// AuthService issues operator tokens that guard policy changes.
type AuthService interface {
	IssueToken(apiKey string) (token string, expiresAt time.Time, err error)
	ValidateToken(tokenString string) (*Claims, error)
	Authorize(claims *Claims, required domain.OperatorRole) error
}

type Claims struct {
	OperatorID domain.OperatorID   `json:"operator_id"`
	Role       domain.OperatorRole `json:"role"`
	jwt.RegisteredClaims
}

type authService struct {
	jwtSecret      []byte
	apiKey         []byte
	accessTokenTTL time.Duration
	now            func() time.Time
}

// NewAuthService accepts apiKey in exchange for an editor token. With an
// empty apiKey no tokens are issued and policy changes are refused.
func NewAuthService(jwtSecret, apiKey string, accessTokenTTL time.Duration) AuthService {
	return &authService{
		jwtSecret:      []byte(jwtSecret),
		apiKey:         []byte(apiKey),
		accessTokenTTL: accessTokenTTL,
		now:            time.Now,
	}
}

func (s *authService) IssueToken(apiKey string) (string, time.Time, error) {
	if len(s.apiKey) == 0 || subtle.ConstantTimeCompare([]byte(apiKey), s.apiKey) != 1 {
		return "", time.Time{}, ErrInvalidAPIKey
	}

	now := s.now()
	expiresAt := now.Add(s.accessTokenTTL)
	claims := &Claims{
		OperatorID: domain.OperatorID(uuid.NewString()),
		Role:       domain.RoleEditor,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

func (s *authService) Authorize(claims *Claims, required domain.OperatorRole) error {
	if claims == nil {
		return ErrUnauthorized
	}
	if roleLevel(claims.Role) < roleLevel(required) {
		return ErrUnauthorized
	}
	return nil
}

func roleLevel(role domain.OperatorRole) int {
	switch role {
	case domain.RoleViewer:
		return 1
	case domain.RoleEditor:
		return 2
	default:
		return 0
	}
}
