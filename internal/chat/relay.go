package chat

import (
	"github.com/pelusa-v/threadchat/internal/channels"
	"github.com/pelusa-v/threadchat/internal/messages"
)

// Relay turns committed store and registry mutations into hub events.
type Relay struct {
	hub *Hub
}

func NewRelay(hub *Hub) *Relay {
	return &Relay{hub: hub}
}

// messageGroups routes a message event: replies go to their thread, roots
// to their channel and to their own thread view.
func messageGroups(m messages.Message) []string {
	if !m.IsRoot() {
		return []string{ThreadGroup(m.ThreadID)}
	}
	return []string{ChannelGroup(m.ChannelID), ThreadGroup(m.ID)}
}

func (r *Relay) Created(m messages.Message, thread *messages.Root) {
	eventType := EventMessageCreated
	if !m.IsRoot() && !m.IsForwarded {
		eventType = EventReplyCreated
	}
	r.hub.Publish(eventType, m, messageGroups(m)...)
	if thread != nil {
		r.hub.Publish(EventThreadUpdated, thread, ChannelGroup(thread.ChannelID))
	}
}

func (r *Relay) Updated(m messages.Message) {
	r.hub.Publish(EventMessageUpdated, m, messageGroups(m)...)
}

func (r *Relay) Reacted(m messages.Message) {
	r.hub.Publish(EventReactionUpdated, m, messageGroups(m)...)
}

func (r *Relay) ChannelCreated(ch channels.Channel) {
	r.hub.PublishChannel(ch.ID, ch)
}

func (r *Relay) SessionExpired(username string) {
	r.hub.Publish(EventSessionExpired, ExpiredNotice{Username: username}, UserGroup(username))
}

var (
	_ messages.Observer = (*Relay)(nil)
	_ channels.Observer = (*Relay)(nil)
)
