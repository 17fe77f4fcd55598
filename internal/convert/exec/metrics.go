package exec

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	conversions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itemconverter_conversions_total",
		Help: "Conversion requests by backend and outcome",
	}, []string{"backend", "outcome"})

	unitsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itemconverter_units_extracted_total",
		Help: "Source units consumed by successful conversions",
	}, []string{"backend"})

	unitsProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itemconverter_units_produced_total",
		Help: "Target units produced by successful conversions",
	}, []string{"backend"})
)
