package chat

import (
	"context"
	"log/slog"
	"sort"

	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/pelusa-v/threadchat/internal/metrics"
)

type delivery struct {
	groups []string
	data   []byte
	// to, when set, restricts delivery to a single client.
	to *Client
	// channel, when set, is a new channel group every client joins before
	// the frame goes out.
	channel string
}

type membership struct {
	client *Client
	group  string
	join   bool
	// notice is sent to the group after a successful join.
	notice []byte
	// channel marks a channel group, which must be known to the hub.
	channel string
}

type Options struct {
	SendBuffer int
	FrameRate  float64
	FrameBurst int
	// Channels seeds the known channel ids; every client joins them.
	Channels []string
	// Presence returns the usernames reported in users-updated. When nil
	// the connected usernames are used.
	Presence func() []string
}

// Hub owns every connection and group membership. All state below is
// touched only by the Run loop.
type Hub struct {
	RegisterChan   chan *Client
	UnregisterChan chan *Client
	PublishChan    chan delivery
	MembershipChan chan membership
	presenceChan   chan struct{}
	inspectChan    chan func()
	done           chan struct{}

	clients  map[*Client]bool
	subs     *Subscriptions
	channels map[string]bool
	dirty    bool

	presence   func() []string
	sendBuffer int
	frameRate  rate.Limit
	frameBurst int
	log        *slog.Logger
}

func NewHub(opts Options, logger *slog.Logger) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = 10
	}
	if opts.FrameBurst <= 0 {
		opts.FrameBurst = 20
	}
	h := &Hub{
		RegisterChan:   make(chan *Client),
		UnregisterChan: make(chan *Client),
		PublishChan:    make(chan delivery, 256),
		MembershipChan: make(chan membership, 64),
		presenceChan:   make(chan struct{}, 1),
		inspectChan:    make(chan func()),
		done:           make(chan struct{}),
		clients:        map[*Client]bool{},
		subs:           newSubscriptions(),
		channels:       map[string]bool{},
		presence:       opts.Presence,
		sendBuffer:     opts.SendBuffer,
		frameRate:      rate.Limit(opts.FrameRate),
		frameBurst:     opts.FrameBurst,
		log:            logger,
	}
	for _, id := range opts.Channels {
		h.channels[id] = true
	}
	return h
}

// Run is the hub loop. It returns when ctx is done, after closing every
// client's send queue.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.log.Info("hub_started", "channels", len(h.channels))

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			h.log.Info("hub_stopped")
			return

		case c := <-h.RegisterChan:
			h.clients[c] = true
			h.subs.Join(c, GlobalGroup)
			h.subs.Join(c, UserGroup(c.Username))
			for id := range h.channels {
				h.subs.Join(c, ChannelGroup(id))
			}
			metrics.HubConnections.Inc()
			h.dirty = true
			h.log.Debug("client_registered", "client", c.ID, "username", c.Username)

		case c := <-h.UnregisterChan:
			if h.clients[c] {
				h.remove(c)
				h.dirty = true
				h.log.Debug("client_unregistered", "client", c.ID, "username", c.Username)
			}

		case d := <-h.PublishChan:
			h.deliver(d)

		case m := <-h.MembershipChan:
			h.applyMembership(m)

		case <-h.presenceChan:
			h.dirty = true

		case fn := <-h.inspectChan:
			fn()
		}

		// a drop during the broadcast marks presence dirty again
		for h.dirty {
			h.dirty = false
			h.broadcastPresence()
		}
	}
}

// remove forgets c and closes both its connection and its queue, which
// unblocks both pumps. The connection goes first: closing the queue lets
// Serve return, after which the conn belongs to the websocket pool again.
func (h *Hub) remove(c *Client) {
	h.subs.LeaveAll(c)
	delete(h.clients, c)
	_ = c.Conn.Close()
	c.close()
	metrics.HubConnections.Dec()
}

func (h *Hub) deliver(d delivery) {
	if d.channel != "" {
		h.channels[d.channel] = true
		for c := range h.clients {
			h.subs.Join(c, ChannelGroup(d.channel))
		}
	}

	var targets []*Client
	if d.to != nil {
		if h.clients[d.to] {
			targets = []*Client{d.to}
		}
	} else {
		targets = h.subs.Members(d.groups...)
	}
	for _, c := range targets {
		select {
		case c.Send <- d.data:
		default:
			// a full queue means the client cannot keep up
			h.log.Warn("client_dropped", "client", c.ID, "username", c.Username)
			metrics.HubDropped.Inc()
			h.remove(c)
			h.dirty = true
		}
	}
}

func (h *Hub) applyMembership(m membership) {
	if !h.clients[m.client] {
		return
	}
	if !m.join {
		h.subs.Leave(m.client, m.group)
		return
	}
	if m.channel != "" && !h.channels[m.channel] {
		h.deliver(h.errorDelivery(m.client, "no-such-channel", RequestJoinChannel))
		return
	}
	if h.subs.Join(m.client, m.group) && m.notice != nil {
		h.deliver(delivery{groups: []string{m.group}, data: m.notice})
	}
}

func (h *Hub) broadcastPresence() {
	var names []string
	if h.presence != nil {
		names = h.presence()
	} else {
		names = h.connectedNames()
	}
	if names == nil {
		names = []string{}
	}
	data, err := encodeFrame(EventUsersUpdated, names)
	if err != nil {
		h.log.Error("presence_encode_failed", "error", err)
		return
	}
	metrics.HubEvents.WithLabelValues(EventUsersUpdated).Inc()
	h.deliver(delivery{groups: []string{GlobalGroup}, data: data})
}

func (h *Hub) errorDelivery(c *Client, code, request string) delivery {
	data, _ := encodeFrame(EventError, ErrorNotice{Code: code, Request: request})
	return delivery{to: c, data: data}
}

// enqueue hands d to the loop. It gives up silently once the hub stopped.
func (h *Hub) enqueue(d delivery) {
	select {
	case h.PublishChan <- d:
	case <-h.done:
	}
}

// Publish encodes payload as a typed event for the given groups. Failures
// are logged, never returned.
func (h *Hub) Publish(eventType string, payload any, groups ...string) {
	data, err := encodeFrame(eventType, payload)
	if err != nil {
		h.log.Error("event_encode_failed", "type", eventType, "error", err)
		return
	}
	metrics.HubEvents.WithLabelValues(eventType).Inc()
	h.enqueue(delivery{groups: groups, data: data})
}

// PublishChannel announces a new channel to global and joins every
// connected client to its group, in one step of the loop.
func (h *Hub) PublishChannel(id string, payload any) {
	data, err := encodeFrame(EventChannelCreated, payload)
	if err != nil {
		h.log.Error("event_encode_failed", "type", EventChannelCreated, "error", err)
		return
	}
	metrics.HubEvents.WithLabelValues(EventChannelCreated).Inc()
	h.enqueue(delivery{groups: []string{GlobalGroup}, data: data, channel: id})
}

// PresenceChanged schedules a users-updated broadcast. Bursts coalesce.
func (h *Hub) PresenceChanged() {
	select {
	case h.presenceChan <- struct{}{}:
	default:
	}
}

func (h *Hub) Register(c *Client) bool {
	select {
	case h.RegisterChan <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister is idempotent. After the hub stopped it closes c directly.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.UnregisterChan <- c:
	case <-h.done:
		c.close()
	}
}

func (h *Hub) membership(m membership) {
	select {
	case h.MembershipChan <- m:
	case <-h.done:
	}
}

func (h *Hub) replyError(c *Client, code, request string) {
	h.enqueue(h.errorDelivery(c, code, request))
}

func (h *Hub) handleRequest(c *Client, f Frame) {
	switch f.Type {
	case RequestJoinChannel, RequestLeaveChannel:
		id, err := decodeID(f.Data, "channelId")
		if err != nil || normalizeID(id) == "" {
			h.replyError(c, "invalid-channel", f.Type)
			return
		}
		m := membership{client: c, group: ChannelGroup(id), join: f.Type == RequestJoinChannel}
		if m.join {
			m.channel = id
			m.notice, _ = encodeFrame(EventUserJoinedChannel, JoinedNotice{Username: c.Username, ChannelID: id})
		}
		h.membership(m)

	case RequestJoinThread, RequestLeaveThread:
		id, err := decodeID(f.Data, "threadId")
		if err != nil || normalizeID(id) == "" {
			h.replyError(c, "invalid-tid", f.Type)
			return
		}
		m := membership{client: c, group: ThreadGroup(id), join: f.Type == RequestJoinThread}
		if m.join {
			m.notice, _ = encodeFrame(EventUserJoinedThread, JoinedNotice{Username: c.Username, ThreadID: id})
		}
		h.membership(m)

	default:
		h.replyError(c, "unknown-request", f.Type)
	}
}

// Serve runs one connection until it closes: it registers the client,
// pumps both directions and returns once the writer finished, so conn is
// no longer in use.
func (h *Hub) Serve(username string, conn ConnLike) {
	c := h.newClient(username, conn)
	if !h.Register(c) {
		_ = conn.Close()
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.WritePump()
	}()

	c.ReadPump()
	h.Unregister(c)
	<-writerDone
}

// ListClients returns the usernames of connected clients, sorted, each once.
func (h *Hub) ListClients() []string {
	out := make(chan []string, 1)
	select {
	case h.inspectChan <- func() { out <- h.connectedNames() }:
		return <-out
	case <-h.done:
		return nil
	}
}

// GroupSize reports how many clients are in group.
func (h *Hub) GroupSize(group string) int {
	out := make(chan int, 1)
	select {
	case h.inspectChan <- func() { out <- len(h.subs.GroupClients[group]) }:
		return <-out
	case <-h.done:
		return 0
	}
}

func (h *Hub) connectedNames() []string {
	names := lo.Uniq(lo.MapToSlice(h.clients, func(c *Client, _ bool) string { return c.Username }))
	sort.Strings(names)
	return names
}
