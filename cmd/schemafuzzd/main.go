package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"git.cs.nctu.edu.tw/aic/infra/schemafuzz"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/log"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/server/metrics"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/server/sampler"
)

func main() {
	opts := log.BuildZapOptions(flag.CommandLine)
	port := flag.Int("port", internal.SchemafuzzdPort, "port to serve samples on")
	metricsPort := flag.Int("metrics-port", internal.SchemafuzzdMetricsPort, "port to serve metrics on")
	flag.Parse()
	log := zap.New(zap.UseFlagOptions(&opts))

	must := func(err error, op string) {
		if err != nil {
			log.Error(err, "cannot "+op)
			panic(err)
		}
	}

	maxCount, err := internal.IntFromEnv(internal.SchemafuzzdEnvMaxCount, internal.SchemafuzzdDefaultMaxCount)
	must(err, "read max count")
	maxDepth, err := internal.IntFromEnv(internal.EnvMaxDepth, 5)
	must(err, "read max depth")
	maxItems, err := internal.IntFromEnv(internal.EnvMaxItems, 5)
	must(err, "read max items")

	listen, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", *port))
	must(err, "listen for http")
	promlisten, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", *metricsPort))
	must(err, "listen for metrics")
	go http.Serve(promlisten, metrics.MetricHandler(log.WithName("metrics"), metrics.Registry()))

	mux := &http.ServeMux{}
	mux.Handle(internal.SchemafuzzdSampleEndpointPath, sampler.SampleHandler{
		Path:     internal.SchemafuzzdSampleEndpointPath,
		MaxCount: maxCount,
		Options: []schemafuzz.Option{
			schemafuzz.WithMaxDepth(maxDepth),
			schemafuzz.WithMaxItems(maxItems),
		},
	}.Handler())

	readinessHandler := http.StripPrefix(internal.SchemafuzzdReadinessEndpointPath, &healthz.Handler{
		Checks: map[string]healthz.Checker{
			"ping": healthz.Ping,
		},
	})
	mux.Handle(internal.SchemafuzzdReadinessEndpointPath, readinessHandler)
	mux.Handle(internal.SchemafuzzdReadinessEndpointPath+"/", readinessHandler)

	log.Info("serving", "port", *port, "metricsPort", *metricsPort, "maxCount", maxCount)
	server := &http.Server{Handler: mux, BaseContext: func(net.Listener) context.Context {
		return logr.NewContext(context.Background(), log)
	}}
	must(server.Serve(listen), "serve http")
}
