package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/segmentio/ksuid"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/config"
)

// ErrInvalidToken is returned for any token that fails verification. Expired,
// malformed and badly signed tokens are not distinguished.
var ErrInvalidToken = errors.New("invalid token")

type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

type Claims struct {
	Kind TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type tokenKey struct {
	secret []byte
	ttl    time.Duration
}

type TokenService struct {
	keys map[TokenKind]tokenKey
	now  func() time.Time
}

func NewTokenService(cfg config.SecurityConfig) *TokenService {
	return &TokenService{
		keys: map[TokenKind]tokenKey{
			TokenAccess:  {secret: []byte(cfg.JWTAccessSecret), ttl: cfg.JWTAccessTTL},
			TokenRefresh: {secret: []byte(cfg.JWTRefreshSecret), ttl: cfg.JWTRefreshTTL},
		},
		now: time.Now,
	}
}

// WithClock replaces the time source used for issuing and verifying tokens.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

func (s *TokenService) AccessTTL() time.Duration {
	return s.keys[TokenAccess].ttl
}

// GenerateTokens signs a fresh access/refresh pair for userID. Every token
// carries a unique ID, so two pairs for the same user never collide.
func (s *TokenService) GenerateTokens(userID string) (TokenPair, error) {
	access, err := s.sign(TokenAccess, userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(TokenRefresh, userID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *TokenService) sign(kind TokenKind, userID string) (string, error) {
	key := s.keys[kind]
	now := s.now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(key.ttl)),
			ID:        ksuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(key.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

func (s *TokenService) ParseAccessToken(raw string) (*Claims, error) {
	return s.parse(TokenAccess, raw)
}

func (s *TokenService) ParseRefreshToken(raw string) (*Claims, error) {
	return s.parse(TokenRefresh, raw)
}

func (s *TokenService) parse(kind TokenKind, raw string) (*Claims, error) {
	key := s.keys[kind]
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return key.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Kind != kind || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
