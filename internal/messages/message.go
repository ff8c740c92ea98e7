package messages

import (
	"slices"
	"time"
)

// Emoji keys accepted by the reaction engine.
var ReactionKeys = []string{"smile", "devil", "cool", "angry", "tired", "rofl"}

func KnownReaction(key string) bool {
	return slices.Contains(ReactionKeys, key)
}

// ForwardPlaceholder is stored as the text of a forward sent without a
// comment, so text is never empty.
const ForwardPlaceholder = " "

const DefaultChannel = "public"

// Original is the snapshot of a forwarded message, frozen at forward time.
type Original struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

type Message struct {
	ID              string              `json:"id"`
	Username        string              `json:"username"`
	Text            string              `json:"text"`
	Timestamp       time.Time           `json:"timestamp"`
	ChannelID       string              `json:"channelId"`
	ThreadID        string              `json:"threadId"`
	ParentID        *string             `json:"parentId"`
	Edited          bool                `json:"edited"`
	Reactions       map[string][]string `json:"reactions"`
	IsForwarded     bool                `json:"isForwarded"`
	OriginalMessage *Original           `json:"originalMessage"`
}

func (m Message) IsRoot() bool { return m.ParentID == nil }

// Root is a thread root annotated with the number of replies in its thread.
type Root struct {
	Message
	ReplyCount int `json:"replyCount"`
}

// clone returns a deep copy, so published snapshots are never shared with
// a message being mutated.
func (m Message) clone() Message {
	out := m
	if m.ParentID != nil {
		p := *m.ParentID
		out.ParentID = &p
	}
	if m.OriginalMessage != nil {
		o := *m.OriginalMessage
		out.OriginalMessage = &o
	}
	out.Reactions = make(map[string][]string, len(m.Reactions))
	for k, users := range m.Reactions {
		out.Reactions[k] = slices.Clone(users)
	}
	return out
}

// before orders messages by timestamp, then id.
func before(a, b Message) bool {
	if a.Timestamp.Equal(b.Timestamp) {
		return a.ID < b.ID
	}
	return a.Timestamp.Before(b.Timestamp)
}
