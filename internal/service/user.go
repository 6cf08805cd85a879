package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/WBHankins93/messaging-app/internal/auth"
	"github.com/WBHankins93/messaging-app/internal/events"
	"github.com/WBHankins93/messaging-app/internal/models"
	"github.com/WBHankins93/messaging-app/internal/repository"

	"github.com/rs/zerolog/log"
)

const (
	maxUsernameLen  = 64
	maxPasswordLen  = 72 // bcrypt 上限，单位字节
	tokenTypeBearer = "bearer"
)

// UserService 封装用户相关的业务逻辑。
type UserService struct {
	users  repository.UserRepository
	hasher *auth.Hasher
	tokens auth.TokenService
	events events.Publisher

	dummyOnce sync.Once
	dummyHash string
}

func NewUserService(users repository.UserRepository, hasher *auth.Hasher, tokens auth.TokenService, pub events.Publisher) *UserService {
	if pub == nil {
		pub = events.Noop()
	}
	return &UserService{users: users, hasher: hasher, tokens: tokens, events: pub}
}

// TokenPair 是登录和刷新接口的响应体；刷新时 RefreshToken 为空。
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

// Signup 创建普通用户，用户名已存在时返回 repository.ErrDuplicateUsername。
func (s *UserService) Signup(ctx context.Context, username, password string) (*models.User, error) {
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.Create(ctx, username, hash, false)
	if err != nil {
		return nil, err
	}
	if err := s.events.Publish(ctx, events.UserSignup, events.NewEnvelope(events.UserSignup, user.Username)); err != nil {
		log.Warn().Err(err).Str("username", user.Username).Msg("publish signup event")
	}
	return user, nil
}

// EnsureAdmin 在启动时创建管理员账号。已存在的同名账号保持原样。
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) error {
	if err := validateCredentials(username, password); err != nil {
		return err
	}
	existing, err := s.users.FindByUsername(ctx, username)
	switch {
	case err == nil:
		if !existing.IsAdmin {
			log.Warn().Str("username", username).Msg("bootstrap admin name belongs to a regular user; leaving it unchanged")
		}
		return nil
	case !errors.Is(err, repository.ErrUserNotFound):
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.users.Create(ctx, username, hash, true); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil
		}
		return err
	}
	log.Info().Str("username", username).Msg("bootstrap admin created")
	return nil
}

// Login 校验用户名密码并签发 token 对。
func (s *UserService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	if username == "" || password == "" {
		return nil, ErrMalformedRequest
	}
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// 未知用户同样执行一次哈希比较
			s.hasher.Verify(s.dummy(), password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(user.HashedPassword, password) {
		return nil, ErrInvalidCredentials
	}
	if s.hasher.NeedsRehash(user.HashedPassword) {
		log.Debug().Str("username", username).Msg("password hash uses an outdated cost")
	}

	access, err := s.tokens.IssueAccess(user.Username)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefresh(user.Username)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: tokenTypeBearer}, nil
}

// Refresh 用 refresh token 换新的 access token。refresh token 不轮换也不作废。
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrMalformedRequest
	}
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh token rejected")
		return nil, fmt.Errorf("%w: %w", auth.ErrUnauthenticated, err)
	}
	if _, err := s.users.FindByUsername(ctx, claims.Subject); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, auth.ErrUnknownSubject
		}
		return nil, err
	}
	access, err := s.tokens.IssueAccess(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	return &TokenPair{AccessToken: access, TokenType: tokenTypeBearer}, nil
}

func (s *UserService) ListUsernames(ctx context.Context) ([]string, error) {
	return s.users.ListUsernames(ctx)
}

func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("not-a-real-password")
	})
	return s.dummyHash
}

func validateCredentials(username, password string) error {
	switch {
	case username == "", strings.TrimSpace(username) != username:
		return fmt.Errorf("%w: username must be non-empty without surrounding whitespace", ErrMalformedRequest)
	case utf8.RuneCountInString(username) > maxUsernameLen:
		return fmt.Errorf("%w: username longer than %d characters", ErrMalformedRequest, maxUsernameLen)
	case password == "":
		return fmt.Errorf("%w: password must not be empty", ErrMalformedRequest)
	case len(password) > maxPasswordLen:
		return fmt.Errorf("%w: password longer than %d bytes", ErrMalformedRequest, maxPasswordLen)
	}
	return nil
}
