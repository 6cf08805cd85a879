package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/WBHankins93/messaging-app/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository 消息存储接口
type MessageRepository interface {
	Append(ctx context.Context, content string, senderID uint, roomID string) (*models.Message, error)
	History(ctx context.Context, roomID string) ([]models.Message, error)
}

type messageRepository struct {
	db  *gorm.DB
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewMessageRepository 创建消息仓储实例
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Append 使用服务端时钟打上时间戳后写入消息。
func (r *messageRepository) Append(ctx context.Context, content string, senderID uint, roomID string) (*models.Message, error) {
	if roomID == "" {
		roomID = models.DefaultRoom
	}
	msg := models.Message{Content: content, SenderID: senderID, RoomID: roomID, Timestamp: r.stamp()}
	if err := r.db.WithContext(ctx).Omit("Sender").Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("%w: append message to room %s: %v", ErrPersistence, roomID, err)
	}
	return &msg, nil
}

// stamp 返回的时间不早于上一次，系统时钟回拨时也一样。
func (r *messageRepository) stamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := r.now()
	if ts.Before(r.last) {
		ts = r.last
	}
	r.last = ts
	return ts
}

// History 按时间升序返回房间内全部消息，时间相同则按插入顺序。
func (r *messageRepository) History(ctx context.Context, roomID string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}}).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: history for room %s: %v", ErrPersistence, roomID, err)
	}
	return msgs, nil
}
