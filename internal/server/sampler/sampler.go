package sampler

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/apimachinery/pkg/util/rand"

	"git.cs.nctu.edu.tw/aic/infra/schemafuzz"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/server"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/server/middlewares"
)

const (
	SeedHeader = "X-Schemafuzz-Seed"
)

var (
	samples = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schemafuzz_samples_total",
			Help: "Number of hoisted values served since the server started",
		},
	)
	failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schemafuzz_hoist_failures_total",
			Help: "Number of schemas that could not be sampled, by reason",
		},
		[]string{"reason"},
	)
)

func MustRegisterCollectors(r *prometheus.Registry) {
	r.MustRegister(samples, failures)
}

// reason classifies errors of the schemafuzz entry points for metrics.
func reason(err error) string {
	var resolution *schemafuzz.ResolutionError
	switch {
	case errors.As(err, &resolution):
		return "resolution"
	case errors.Is(err, schemafuzz.ErrUnsatisfiable):
		return "unsatisfiable"
	case errors.Is(err, schemafuzz.ErrInternal):
		return "internal"
	}
	return "unknown"
}

// SampleHandler serves hoisted samples of the JSON Schema in the request
// body. Query parameters: count (default 1, capped by MaxCount) and seed
// (random when absent, echoed in SeedHeader).
type SampleHandler struct {
	Path     string
	MaxCount int
	Options  []schemafuzz.Option
}

type sHandler SampleHandler

func (h sHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logr.FromContextOrDiscard(r.Context())
	q := r.URL.Query()

	count := 1
	if s := q.Get("count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			server.WriteError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = n
	}
	if count > h.MaxCount {
		log.Info("capping sample count", "requested", count, "max", h.MaxCount)
		count = h.MaxCount
	}

	seed := rand.Int63nRange(0, math.MaxInt64)
	if s := q.Get("seed"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			server.WriteError(w, http.StatusBadRequest, "seed must be an integer")
			return
		}
		seed = n
	}

	opts := append([]schemafuzz.Option{schemafuzz.WithLogger(log)}, h.Options...)
	f, err := schemafuzz.New(server.BodyFromContext(r.Context()), opts...)
	if err != nil {
		failures.WithLabelValues(reason(err)).Inc()
		log.Info("cannot compile schema", "error", err.Error())
		server.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	out := make([]any, 0, count)
	for i := 0; i < count; i++ {
		v, err := f.Sample(seed + int64(i))
		if err != nil {
			failures.WithLabelValues(reason(err)).Inc()
			log.Error(err, "cannot sample", "seed", seed+int64(i))
			server.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, v)
	}
	body, err := json.Marshal(out)
	if err != nil {
		log.Error(err, "cannot encode samples")
		server.WriteError(w, http.StatusInternalServerError, "")
		return
	}
	samples.Add(float64(count))

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(SeedHeader, strconv.FormatInt(seed, 10))
	w.Write(body)
	log.Info("sampled", "count", count, "seed", seed)
}

// Handler is h behind the middlewares every sample request goes through.
// It is meant to be built once, when the mux is set up.
func (h SampleHandler) Handler() http.Handler {
	return middlewares.Instrument(middlewares.LogWithIdentifier(
		middlewares.AllowMethod(http.MethodPost,
			middlewares.DrainBody(middlewares.ValidateSchema(sHandler(h))))), h.Path)
}
