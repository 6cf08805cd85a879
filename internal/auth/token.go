package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidSignature     = errors.New("invalid token signature")
	ErrExpired              = errors.New("token expired")
	ErrMalformedToken       = errors.New("malformed token")
	ErrWrongTokenKind       = errors.New("wrong token kind")
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
)

// TokenKind 区分 access 与 refresh token，防止两者混用。
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims 的 Subject 为用户名。
type Claims struct {
	Kind TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

// TokenService 签发和校验无状态 token。
type TokenService interface {
	IssueAccess(username string) (string, error)
	IssueRefresh(username string) (string, error)
	Validate(token string) (*Claims, error)
	ValidateAccess(token string) (*Claims, error)
	ValidateRefresh(token string) (*Claims, error)
}

type jwtService struct {
	secret     []byte
	method     *jwt.SigningMethodHMAC
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService 只接受对称签名算法 HS256/HS384/HS512。
func NewTokenService(secret, algorithm string, accessTTL, refreshTTL time.Duration) (TokenService, error) {
	if secret == "" {
		return nil, errors.New("signing secret must not be empty")
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	return &jwtService{
		secret:     []byte(secret),
		method:     method,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

func (s *jwtService) IssueAccess(username string) (string, error) {
	return s.issue(username, KindAccess, s.accessTTL)
}

func (s *jwtService) IssueRefresh(username string) (string, error) {
	return s.issue(username, KindRefresh, s.refreshTTL)
}

func (s *jwtService) issue(username string, kind TokenKind, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
}

// Validate 校验签名、算法和过期时间，错误归类为 ErrInvalidSignature / ErrExpired / ErrMalformedToken。
func (s *jwtService) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

func (s *jwtService) ValidateAccess(tokenStr string) (*Claims, error) {
	return s.validateKind(tokenStr, KindAccess)
}

func (s *jwtService) ValidateRefresh(tokenStr string) (*Claims, error) {
	return s.validateKind(tokenStr, KindRefresh)
}

func (s *jwtService) validateKind(tokenStr string, kind TokenKind) (*Claims, error) {
	claims, err := s.Validate(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: want %s, got %q", ErrWrongTokenKind, kind, claims.Kind)
	}
	return claims, nil
}
