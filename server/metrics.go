package server

import "github.com/prometheus/client_golang/prometheus"

var queriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dnsgate_queries_total",
		Help: "How many DNS queries were processed, by qtype and outcome",
	},
	[]string{"qtype", "source"},
)

func init() {
	_ = prometheus.Register(queriesTotal)
}
