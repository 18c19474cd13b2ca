package recon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reconcilePasses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bantay_reconcile_passes_total",
	Help: "The number of completed reconciliation passes per stream",
}, []string{"stream"})

var fetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bantay_fetch_failures_total",
	Help: "The number of failed stream fetches per stream",
}, []string{"stream"})

var newRecordsSeen = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bantay_new_records_total",
	Help: "The number of records seen past the cursor per stream",
}, []string{"stream"})

var alertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bantay_alerts_emitted_total",
	Help: "The number of alerts emitted per stream",
}, []string{"stream"})

var unreadItems = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "bantay_unread_items",
	Help: "The current aggregate unread badge count",
})

var userActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bantay_user_actions_total",
	Help: "The number of user actions handled, by action",
}, []string{"action"})
