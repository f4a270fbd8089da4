package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "moderation_event_duration_sec",
	Help: "Total duration of moderation event processing",
})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_event_processed",
	Help: "Number of events processed, by outcome",
}, []string{"outcome"})

var eventDuplicateCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "moderation_event_duplicates",
	Help: "Number of redelivered events suppressed by dedupe",
})

var actionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_actions",
	Help: "Number of sanctions applied, by kind",
}, []string{"action"})

var actionErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_action_errors",
	Help: "Number of failed platform effect calls, by stage",
}, []string{"stage"})

var ledgerErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "moderation_ledger_errors",
	Help: "Number of warning ledger failures",
})

var authzFailOpenCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "moderation_authz_fail_open",
	Help: "Number of events skipped because role resolution failed",
})
