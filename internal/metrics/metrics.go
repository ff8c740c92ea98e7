package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threadchat_messages_created_total",
		Help: "Messages committed, by kind (root, reply, forward)",
	}, []string{"kind"})

	MessagesEdited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "threadchat_messages_edited_total",
		Help: "Committed message edits",
	})

	Reactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threadchat_reactions_total",
		Help: "Reaction toggles that changed state, by operation",
	}, []string{"op"})

	ChannelsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "threadchat_channels_created_total",
		Help: "Channels created after bootstrap",
	})

	HubConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "threadchat_hub_connections",
		Help: "Websocket clients registered with the hub",
	})

	HubEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threadchat_hub_events_total",
		Help: "Events published by the hub, by type",
	}, []string{"type"})

	HubDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "threadchat_hub_dropped_clients_total",
		Help: "Clients disconnected because their send queue was full",
	})

	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "threadchat_sessions_expired_total",
		Help: "Sessions removed by the expiry sweeper",
	})
)

const (
	KindRoot    = "root"
	KindReply   = "reply"
	KindForward = "forward"

	OpAdd    = "add"
	OpRemove = "remove"
)
