package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	playersOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "itemconverter_players_online",
		Help: "Players currently joined to the session",
	})

	requestsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "itemconverter_requests_dropped_total",
		Help: "Requests dropped because the player was gone or malformed",
	})

	reloadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "itemconverter_reload_failures_total",
		Help: "Rule reloads that kept the previous graph",
	})
)
