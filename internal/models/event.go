// event.go

package models

import (
	"encoding/json"
)

// EventType 实时事件类型
type EventType string

const (
	// 会话范围事件
	EventSessionParticipants EventType = "session_participants"
	EventUserJoined          EventType = "user_joined"
	EventUserLeft            EventType = "user_left"
	EventNewMessage          EventType = "new_message"
	EventSessionEnded        EventType = "session_ended"

	// 信令转发事件，负载对服务端透明
	EventOffer        EventType = "offer"
	EventAnswer       EventType = "answer"
	EventICECandidate EventType = "ice_candidate"
	EventInput        EventType = "input"

	// 全局事件
	EventSessionCreated EventType = "session_created"
	EventUserOnline     EventType = "user_online"
	EventUserOffline    EventType = "user_offline"

	EventError EventType = "error"
)

// IsSignal 是否为可转发的信令类型
func (t EventType) IsSignal() bool {
	switch t {
	case EventOffer, EventAnswer, EventICECandidate, EventInput:
		return true
	}
	return false
}

// Event 下行事件信封
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	From      string          `json:"from,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent 创建事件并序列化负载
func NewEvent(eventType EventType, sessionID string, payload interface{}) (Event, error) {
	evt := Event{Type: eventType, SessionID: sessionID}
	if payload == nil {
		return evt, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return evt, err
	}
	evt.Payload = data
	return evt, nil
}

// ParticipantEvent user_joined / user_left 的负载
type ParticipantEvent struct {
	UserID         string          `json:"user_id"`
	Role           ParticipantRole `json:"role"`
	CurrentPlayers int             `json:"current_players"`
	SpectatorCount int             `json:"spectator_count"`
}

// SessionEndedEvent session_ended 的负载
type SessionEndedEvent struct {
	Status          SessionStatus `json:"status"`
	Reason          string        `json:"reason,omitempty"`
	DurationSeconds int64         `json:"duration_seconds"`
}

// PresenceEvent user_online / user_offline 的负载
type PresenceEvent struct {
	UserID string `json:"user_id"`
}

// ErrorEvent error 的负载
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
