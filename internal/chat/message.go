package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Frame is the envelope for every websocket message in both directions.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// server -> client
const (
	EventUsersUpdated      = "users-updated"
	EventChannelCreated    = "channel-created"
	EventMessageCreated    = "message-created"
	EventReplyCreated      = "reply-created"
	EventMessageUpdated    = "message-updated"
	EventReactionUpdated   = "reaction-updated"
	EventThreadUpdated     = "thread-updated"
	EventSessionExpired    = "session-expired"
	EventUserJoinedChannel = "user-joined-channel"
	EventUserJoinedThread  = "user-joined-thread"
	EventError             = "error"
)

// client -> server
const (
	RequestJoinChannel  = "join-channel"
	RequestLeaveChannel = "leave-channel"
	RequestJoinThread   = "join-thread"
	RequestLeaveThread  = "leave-thread"
)

type Target struct {
	ChannelID string `json:"channelId,omitempty"`
	ThreadID  string `json:"threadId,omitempty"`
}

type JoinedNotice struct {
	Username  string `json:"username"`
	ChannelID string `json:"channelId,omitempty"`
	ThreadID  string `json:"threadId,omitempty"`
}

type ErrorNotice struct {
	Code    string `json:"code"`
	Request string `json:"request,omitempty"`
}

type ExpiredNotice struct {
	Username string `json:"username"`
}

func encodeFrame(eventType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return json.Marshal(Frame{Type: eventType, Data: data})
}

func decodeData[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, fmt.Errorf("missing data")
	}
	err := json.Unmarshal(raw, &out)
	return out, err
}

// decodeID accepts either a bare JSON string or an object carrying the id
// under field.
func decodeID(raw json.RawMessage, field string) (string, error) {
	if s, err := decodeData[string](raw); err == nil {
		return strings.TrimSpace(s), nil
	}
	t, err := decodeData[Target](raw)
	if err != nil {
		return "", err
	}
	if field == "threadId" {
		return strings.TrimSpace(t.ThreadID), nil
	}
	return strings.TrimSpace(t.ChannelID), nil
}
