package mocks

import (
	"context"

	"github.com/WBHankins93/messaging-app/internal/models"

	"github.com/stretchr/testify/mock"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) Create(ctx context.Context, username, hashedPassword string, isAdmin bool) (*models.User, error) {
	args := m.Called(ctx, username, hashedPassword, isAdmin)
	var user *models.User
	if val := args.Get(0); val != nil {
		user = val.(*models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	var user *models.User
	if val := args.Get(0); val != nil {
		user = val.(*models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) ListUsernames(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	var names []string
	if val := args.Get(0); val != nil {
		names = val.([]string)
	}
	return names, args.Error(1)
}

func (m *UserRepositoryMock) UsernamesByIDs(ctx context.Context, ids []uint) (map[uint]string, error) {
	args := m.Called(ctx, ids)
	var names map[uint]string
	if val := args.Get(0); val != nil {
		names = val.(map[uint]string)
	}
	return names, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, content string, senderID uint, roomID string) (*models.Message, error) {
	args := m.Called(ctx, content, senderID, roomID)
	var msg *models.Message
	if val := args.Get(0); val != nil {
		msg = val.(*models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) History(ctx context.Context, roomID string) ([]models.Message, error) {
	args := m.Called(ctx, roomID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}
