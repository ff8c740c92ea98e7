package messages

import (
	"context"
	"fmt"
	"time"

	"github.com/pelusa-v/threadchat/internal/apperr"
	"github.com/pelusa-v/threadchat/internal/docstore"
)

const recordVersion = 1

// messageRecord is the stored shape of a message.
type messageRecord struct {
	V               int                 `json:"v"`
	ID              string              `json:"id"`
	Username        string              `json:"username"`
	Text            string              `json:"text"`
	Timestamp       time.Time           `json:"timestamp"`
	ChannelID       string              `json:"channelId"`
	ThreadID        string              `json:"threadId"`
	ParentID        *string             `json:"parentId"`
	Reactions       map[string][]string `json:"reactions"`
	IsForwarded     bool                `json:"isForwarded"`
	OriginalMessage *Original           `json:"originalMessage"`
	Edited          bool                `json:"edited"`
}

func toRecord(m Message) messageRecord {
	return messageRecord{
		V:               recordVersion,
		ID:              m.ID,
		Username:        m.Username,
		Text:            m.Text,
		Timestamp:       m.Timestamp,
		ChannelID:       m.ChannelID,
		ThreadID:        m.ThreadID,
		ParentID:        m.ParentID,
		Reactions:       m.Reactions,
		IsForwarded:     m.IsForwarded,
		OriginalMessage: m.OriginalMessage,
		Edited:          m.Edited,
	}
}

func fromRecord(r messageRecord) Message {
	m := Message{
		ID:              r.ID,
		Username:        r.Username,
		Text:            r.Text,
		Timestamp:       r.Timestamp,
		ChannelID:       r.ChannelID,
		ThreadID:        r.ThreadID,
		ParentID:        r.ParentID,
		Edited:          r.Edited,
		Reactions:       r.Reactions,
		IsForwarded:     r.IsForwarded,
		OriginalMessage: r.OriginalMessage,
	}
	if m.Reactions == nil {
		m.Reactions = map[string][]string{}
	}
	return m
}

func (s *Store) persist(ctx context.Context, m Message) error {
	if err := docstore.PutJSON(ctx, s.docs, docstore.Messages, m.ID, toRecord(m)); err != nil {
		return apperr.Internal(fmt.Errorf("persist message %s: %w", m.ID, err))
	}
	return nil
}
