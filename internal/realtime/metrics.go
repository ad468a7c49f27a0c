package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_pushes_total",
		Help: "Notification pushes by result (delivered, published, no_subscribers, oversized, failed).",
	}, []string{"result"})
	authorizationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_channel_authorizations_total",
		Help: "Channel authorization decisions by result.",
	}, []string{"result"})
	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_frames_dropped_total",
		Help: "Frames dropped because a connection's send buffer was full.",
	})
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_active_connections",
		Help: "Open websocket connections on this instance.",
	})
	activeSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_active_subscriptions",
		Help: "Channel subscriptions held by connections on this instance.",
	})
)
