package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var workItemsAdded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_scheduler_items_added",
	Help: "Number of message events enqueued",
}, []string{"ident"})

var workItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_scheduler_items_processed",
	Help: "Number of message events processed",
}, []string{"ident"})

var workItemsActive = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_scheduler_items_active",
	Help: "Number of message events passed to a worker",
}, []string{"ident"})

var workersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "moderation_scheduler_workers_active",
	Help: "Number of workers",
}, []string{"ident"})
