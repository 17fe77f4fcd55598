package paths

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	directLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itemconverter_direct_lookups_total",
		Help: "Direct target lookups by cache result",
	}, []string{"cache"})

	pathQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itemconverter_path_queries_total",
		Help: "Shortest path queries by result",
	}, []string{"result"})
)
