package models

import "time"

// DefaultRoom 是未指定房间时使用的房间标识。
const DefaultRoom = "global"

type User struct {
	ID             uint   `gorm:"primaryKey"`
	Username       string `gorm:"uniqueIndex;size:64;not null"`
	HashedPassword string `gorm:"column:hashed_password;not null"`
	IsAdmin        bool   `gorm:"not null;default:false"`
	CreatedAt      time.Time
}

type Message struct {
	ID        uint      `gorm:"primaryKey"`
	Content   string    `gorm:"type:text;not null"`
	SenderID  uint      `gorm:"index;not null"`
	Sender    User      `gorm:"foreignKey:SenderID;constraint:OnDelete:RESTRICT"`
	RoomID    string    `gorm:"size:128;not null;default:global;index:idx_messages_room_ts,priority:1"`
	Timestamp time.Time `gorm:"column:timestamp;not null;index:idx_messages_room_ts,priority:2"`
}
