package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holo_background_items_total",
			Help: "Background items processed by item type and result",
		},
		[]string{"item_type", "result"}, // success|failure|retry_later
	)

	CycleSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "holo_background_cycle_seconds",
			Help:    "Duration of a polling monitor cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	RemindersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holo_reminders_total",
			Help: "Reminder trigger outcomes",
		},
		[]string{"outcome"}, // delivered|rescheduled|deleted|forbidden|failed
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		ItemsTotal,
		CycleSeconds,
		RemindersTotal,
	)
}
