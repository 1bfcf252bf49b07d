package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	outboxEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "affiliation",
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox records processed by the worker, by event type and outcome.",
	}, []string{"event_type", "outcome"})

	notificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "affiliation",
		Subsystem: "mail",
		Name:      "notifications_total",
		Help:      "Notification emails attempted, by template and outcome.",
	}, []string{"template", "outcome"})
)
