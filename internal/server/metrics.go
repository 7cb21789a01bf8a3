package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pageRenders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unitview_page_renders_total",
		Help: "Augmented pages served, by outcome",
	}, []string{"outcome"})
	interactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unitview_interactions_total",
		Help: "Interaction requests, by kind and outcome",
	}, []string{"kind", "outcome"})
	filterSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "unitview_filter_seconds",
		Help:    "Time from filter click to grid settled",
		Buckets: prometheus.DefBuckets,
	})
)

func countInteraction(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	interactions.WithLabelValues(kind, outcome).Inc()
}
