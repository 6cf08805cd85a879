package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/WBHankins93/messaging-app/internal/models"

	"gorm.io/gorm"
)

// UserRepository 用户凭据存储接口
type UserRepository interface {
	Create(ctx context.Context, username, hashedPassword string, isAdmin bool) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsernames(ctx context.Context) ([]string, error)
	UsernamesByIDs(ctx context.Context, ids []uint) (map[uint]string, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储实例
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create 插入用户，用户名唯一性由唯一索引保证，并发注册只有一个成功。
func (r *userRepository) Create(ctx context.Context, username, hashedPassword string, isAdmin bool) (*models.User, error) {
	user := models.User{Username: username, HashedPassword: hashedPassword, IsAdmin: isAdmin}
	if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("%w: create user %s: %v", ErrPersistence, username, err)
	}
	return &user, nil
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: find user by username %s: %v", ErrPersistence, username, err)
	}
	return &user, nil
}

// ListUsernames 按插入顺序返回全部用户名。
func (r *userRepository) ListUsernames(ctx context.Context) ([]string, error) {
	var names []string
	if err := r.db.WithContext(ctx).Model(&models.User{}).Order("id asc").Pluck("username", &names).Error; err != nil {
		return nil, fmt.Errorf("%w: list usernames: %v", ErrPersistence, err)
	}
	return names, nil
}

func (r *userRepository) UsernamesByIDs(ctx context.Context, ids []uint) (map[uint]string, error) {
	usernames := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return usernames, nil
	}
	var users []models.User
	if err := r.db.WithContext(ctx).Select("id", "username").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("%w: resolve usernames: %v", ErrPersistence, err)
	}
	for _, u := range users {
		usernames[u.ID] = u.Username
	}
	return usernames, nil
}
