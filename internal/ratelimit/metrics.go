package ratelimit

import "github.com/prometheus/client_golang/prometheus"

var rejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "ratelimit_rejections_total",
	Help: "API key requests rejected because the window quota was used up.",
})

func init() {
	prometheus.MustRegister(rejectionsTotal)
}
