// Package repository 提供基于 gorm 的用户与消息存储。
package repository

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrDuplicateUsername = errors.New("username already registered")
	ErrUserNotFound      = errors.New("user not found")
	ErrPersistence       = errors.New("persistence failure")
)

// isUniqueViolation 判断错误是否来自唯一索引冲突。
// gorm 会把已知方言翻译为 ErrDuplicatedKey，未开启 TranslateError 时再检查原始 pgconn 错误。
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
