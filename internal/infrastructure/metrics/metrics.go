package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chat engine metrics
var (
	PushEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gigline",
			Subsystem: "chat_engine",
			Name:      "push_events_total",
			Help:      "Push events processed, by event name",
		},
		[]string{"event"},
	)

	PushEventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gigline",
			Subsystem: "chat_engine",
			Name:      "push_events_dropped_total",
			Help:      "Push events dropped as unrecognized or malformed",
		},
		[]string{"event"},
	)

	RESTRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gigline",
			Subsystem: "chat_engine",
			Name:      "rest_retries_total",
			Help:      "REST call retries, by endpoint",
		},
		[]string{"endpoint"},
	)

	BootstrapAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gigline",
			Subsystem: "chat_engine",
			Name:      "bootstrap_attempts_total",
			Help:      "Bootstrap attempts including retries",
		},
	)

	ChannelReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gigline",
			Subsystem: "chat_engine",
			Name:      "channel_reconnects_total",
			Help:      "Push channel reconnect attempts",
		},
	)

	MessagesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gigline",
			Subsystem: "chat_engine",
			Name:      "messages_sent_total",
			Help:      "Messages successfully acknowledged by the server",
		},
	)
)
