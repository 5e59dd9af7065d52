package metrics

import (
	"fmt"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/server/middlewares"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/server/sampler"
)

type promhttpLogrAdaptor struct {
	logr.Logger
}

func (p promhttpLogrAdaptor) Println(v ...interface{}) {
	p.Info(fmt.Sprintln(v...))
}

// Registry holds the process, http and sampling collectors of schemafuzzd.
func Registry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(
			collectors.WithGoCollectorRuntimeMetrics(collectors.MetricsAll),
		),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	middlewares.MustRegisterCollectors(r)
	sampler.MustRegisterCollectors(r)
	return r
}

func MetricHandler(l logr.Logger, r *prometheus.Registry) http.Handler {
	return promhttp.InstrumentMetricHandler(
		r,
		promhttp.HandlerFor(r, promhttp.HandlerOpts{
			ErrorLog: promhttpLogrAdaptor{l},
			Registry: r,
		}),
	)
}
