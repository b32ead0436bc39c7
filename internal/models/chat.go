// chat.go

package models

import (
	"time"
)

// MessageType 聊天消息类型
type MessageType string

const (
	// MessageText 普通文本
	MessageText MessageType = "text"
	// MessageEmote 表情
	MessageEmote MessageType = "emote"
	// MessageSystem 系统消息，只能由服务端产生
	MessageSystem MessageType = "system"
)

// ChatMessage 聊天消息，Seq 在同一会话内严格递增且连续
type ChatMessage struct {
	SessionID string      `json:"session_id"`
	Seq       int64       `json:"seq"`
	UserID    string      `json:"user_id,omitempty"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}
