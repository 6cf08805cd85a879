package service

import (
	"context"
	"time"

	"github.com/WBHankins93/messaging-app/internal/models"
	"github.com/WBHankins93/messaging-app/internal/repository"
)

// MessageService 封装消息相关的业务逻辑。
type MessageService struct {
	messages repository.MessageRepository
	users    repository.UserRepository
}

func NewMessageService(messages repository.MessageRepository, users repository.UserRepository) *MessageService {
	return &MessageService{messages: messages, users: users}
}

// HistoryEntry 是对外输出的历史消息。
type HistoryEntry struct {
	User      string    `json:"user"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// History 返回房间全部历史消息，按时间戳升序。roomID 为空时使用默认房间。
func (s *MessageService) History(ctx context.Context, roomID string) ([]HistoryEntry, error) {
	if roomID == "" {
		roomID = models.DefaultRoom
	}
	msgs, err := s.messages.History(ctx, roomID)
	if err != nil {
		return nil, err
	}

	// 批量获取用户名
	usernames, err := s.users.UsernamesByIDs(ctx, senderIDs(msgs))
	if err != nil {
		return nil, err
	}

	out := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, HistoryEntry{
			User:      usernames[m.SenderID],
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	return out, nil
}

func senderIDs(msgs []models.Message) []uint {
	seen := make(map[uint]struct{}, len(msgs))
	ids := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; ok {
			continue
		}
		seen[m.SenderID] = struct{}{}
		ids = append(ids, m.SenderID)
	}
	return ids
}
