package middlewares

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/apimachinery/pkg/util/rand"

	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/schema"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/server"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Number of the http requests received since the server started",
		},
		[]string{"handler", "code"},
	)
	httpRequestsDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_requests_duration_seconds",
			Help: "Duration in seconds to serve http requests",
		},
		[]string{"handler", "code"},
	)
	httpInflightRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of the inflight http requests",
		},
		[]string{"handler"},
	)
)

func MustRegisterCollectors(r *prometheus.Registry) {
	r.MustRegister(httpRequests, httpRequestsDuration, httpInflightRequests)
}

// DrainBody reads the whole request body into the context, refusing bodies
// over internal.SchemafuzzdMaxBodySize.
func DrainBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logr.FromContextOrDiscard(r.Context())

		if r.ContentLength > internal.SchemafuzzdMaxBodySize {
			log.Info("request body too large, rejecting", "length", r.ContentLength)
			server.WriteError(w, http.StatusRequestEntityTooLarge, "")
			return
		}
		bytes, err := io.ReadAll(http.MaxBytesReader(w, r.Body, internal.SchemafuzzdMaxBodySize))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				server.WriteError(w, http.StatusRequestEntityTooLarge, "")
				return
			}
			log.Error(err, "cannot drain body")
			server.WriteError(w, http.StatusBadRequest, "cannot read request body")
			return
		}

		next.ServeHTTP(w, r.WithContext(server.ContextWithBody(
			r.Context(), bytes)))
	})
}

// AllowMethod answers requests of any other method with 405.
func AllowMethod(method string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			server.WriteError(w, http.StatusMethodNotAllowed, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ValidateSchema lets through only bodies that are JSON Schema documents
// the validator accepts.
func ValidateSchema(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bytes := server.BodyFromContext(r.Context())

		var v interface{}
		if json.Unmarshal(bytes, &v) != nil {
			server.WriteError(w, http.StatusUnprocessableEntity, "request body is not json")
			return
		}
		if _, err := schema.CompileString(string(bytes)); err != nil {
			server.WriteError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func LogWithIdentifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := rand.String(5)
		ctx := server.ContextWithId(r.Context(), id)
		log := logr.FromContextOrDiscard(ctx).WithName(id)
		ctx = logr.NewContext(ctx, log)

		log.Info("requested", "method", r.Method, "uri", r.RequestURI, "referer", r.Referer(), "agent", r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func Instrument(next http.Handler, name string) http.Handler {
	prepopulateLabels := prometheus.Labels{"handler": name, "code": "200"}
	httpRequests.With(prepopulateLabels)
	httpRequestsDuration.With(prepopulateLabels)

	labels := prometheus.Labels{"handler": name}
	return promhttp.InstrumentHandlerCounter(
		httpRequests.MustCurryWith(labels),
		promhttp.InstrumentHandlerDuration(
			httpRequestsDuration.MustCurryWith(labels),
			promhttp.InstrumentHandlerInFlight(
				httpInflightRequests.With(labels),
				next,
			),
		),
	)
}
