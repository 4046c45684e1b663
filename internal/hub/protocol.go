package hub

import (
	"encoding/json"

	"focusroom/internal/model"
)

// Client to server events.
const (
	EventJoinRoom     = "join-room"
	EventUpdateStatus = "update-status"
	EventHeartbeat    = "heartbeat"
)

// Server to client events.
const (
	EventRoomUsers   = "room-users"
	EventUserJoined  = "user-joined"
	EventUserUpdated = "user-updated"
	EventUserLeft    = "user-left"
	EventError       = "error"
)

// Envelope frames every message on the push channel.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinRoomPayload struct {
	RoomCode       string `json:"roomCode"`
	UserID         string `json:"userId"`
	DisplayName    string `json:"displayName"`
	Color          string `json:"color"`
	IsFocusing     bool   `json:"isFocusing"`
	FocusStartTime *int64 `json:"focusStartTime,omitempty"`
	TotalFocusTime int64  `json:"totalFocusTime"`
}

type UpdateStatusPayload struct {
	IsFocusing bool `json:"isFocusing"`
}

type RoomUsersPayload struct {
	RoomCode string             `json:"roomCode"`
	Members  []model.MemberView `json:"members"`
	AsOf     int64              `json:"asOf"`
}

type MemberPayload struct {
	Member model.MemberView `json:"member"`
}

type UserLeftPayload struct {
	UserID string `json:"userId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Encode frames payload under eventType.
func Encode(eventType string, payload interface{}) ([]byte, error) {
	env := Envelope{Type: eventType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}
