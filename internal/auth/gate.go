// Package auth 负责密码哈希、token 签发校验以及 HTTP 与 WebSocket 共用的身份门禁。
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/WBHankins93/messaging-app/internal/models"
	"github.com/WBHankins93/messaging-app/internal/repository"

	"github.com/rs/zerolog/log"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnknownSubject  = errors.New("unknown token subject")
	ErrForbidden       = errors.New("forbidden")
)

// UserLookup 是门禁需要的凭据存储子集。
type UserLookup interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// Gate 把 bearer token 解析为用户，HTTP 中间件和 relay 握手都走这里。
type Gate struct {
	tokens TokenService
	users  UserLookup
}

func NewGate(tokens TokenService, users UserLookup) *Gate {
	return &Gate{tokens: tokens, users: users}
}

// Authenticate 接受 "Bearer <token>" 或裸 token。
// 过期、签名错误、格式错误和未知用户对调用方一律是 ErrUnauthenticated；
// 存储故障原样返回。
func (g *Gate) Authenticate(ctx context.Context, raw string) (*models.User, error) {
	token := BearerToken(raw)
	if token == "" {
		return nil, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}
	claims, err := g.tokens.ValidateAccess(token)
	if err != nil {
		log.Warn().Err(err).Msg("access token rejected")
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	user, err := g.users.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			log.Warn().Str("sub", claims.Subject).Msg("access token subject not found")
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrUnknownSubject)
		}
		return nil, err
	}
	return user, nil
}

// RequireAdmin 非管理员返回 ErrForbidden。
func RequireAdmin(user *models.User) (*models.User, error) {
	if user == nil || !user.IsAdmin {
		return nil, ErrForbidden
	}
	return user, nil
}

// BearerToken 去掉大小写不敏感的 "Bearer " 前缀。
func BearerToken(raw string) string {
	const prefix = "bearer "
	raw = strings.TrimSpace(raw)
	switch {
	case strings.EqualFold(raw, strings.TrimSpace(prefix)):
		return ""
	case len(raw) >= len(prefix) && strings.EqualFold(raw[:len(prefix)], prefix):
		raw = raw[len(prefix):]
	}
	return strings.TrimSpace(raw)
}
