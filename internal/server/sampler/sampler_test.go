package sampler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/schema"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/server"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/server/middlewares"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/server/sampler"
)

const pointSchema = `{
	"type": "object",
	"properties": {
		"x": {"type": "integer", "minimum": 0, "maximum": 9},
		"label": {"type": "string", "pattern": "^p[0-9]$"}
	},
	"required": ["x", "label"],
	"additionalProperties": false
}`

const maxCount = 5

var handler = sampler.SampleHandler{Path: "/sample", MaxCount: maxCount}.Handler()

func serve(method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(method, target, strings.NewReader(body)))
	return w
}

// requests reads http_requests_total of the sample handler for code.
func requests(code string) float64 {
	r := prometheus.NewRegistry()
	middlewares.MustRegisterCollectors(r)
	families, err := r.Gather()
	Expect(err).NotTo(HaveOccurred())
	for _, f := range families {
		if f.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["handler"] == "/sample" && labels["code"] == code {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func decodeSamples(w *httptest.ResponseRecorder) []any {
	var out []any
	Expect(json.Unmarshal(w.Body.Bytes(), &out)).To(Succeed())
	return out
}

var _ = Describe("sample handler", func() {
	It("serves count valid samples and the seed they came from", func() {
		w := serve(http.MethodPost, "/sample?count=3", pointSchema)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Header().Get("Content-Type")).To(Equal("application/json"))
		_, err := strconv.ParseInt(w.Header().Get(sampler.SeedHeader), 10, 64)
		Expect(err).NotTo(HaveOccurred())

		sc, err := schema.CompileString(pointSchema)
		Expect(err).NotTo(HaveOccurred())
		out := decodeSamples(w)
		Expect(out).To(HaveLen(3))
		for _, v := range out {
			Expect(schema.Validate(sc, v)).To(Succeed())
		}
	})

	It("answers the same seed with the same samples", func() {
		a := serve(http.MethodPost, "/sample?count=4&seed=1337", pointSchema)
		b := serve(http.MethodPost, "/sample?count=4&seed=1337", pointSchema)
		Expect(a.Code).To(Equal(http.StatusOK))
		Expect(a.Header().Get(sampler.SeedHeader)).To(Equal("1337"))
		Expect(a.Body.String()).To(Equal(b.Body.String()))
	})

	It("caps count", func() {
		w := serve(http.MethodPost, "/sample?count=50", `{"type": "boolean"}`)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(decodeSamples(w)).To(HaveLen(maxCount))
	})

	It("counts every request once, refused methods included", func() {
		ok, refused := requests("200"), requests("405")
		serve(http.MethodPost, "/sample", `{"type": "null"}`)
		serve(http.MethodPost, "/sample", `{"type": "null"}`)
		serve(http.MethodPut, "/sample", `{"type": "null"}`)
		Expect(requests("200")).To(Equal(ok + 2))
		Expect(requests("405")).To(Equal(refused + 1))
	})

	DescribeTable("rejects",
		func(method, target, body string, code int) {
			w := serve(method, target, body)
			Expect(w.Code).To(Equal(code))

			var e server.ErrorResponse
			Expect(json.Unmarshal(w.Body.Bytes(), &e)).To(Succeed())
			Expect(e.Message).NotTo(BeEmpty())
		},
		Entry("other methods", http.MethodGet, "/sample", "", http.StatusMethodNotAllowed),
		Entry("bodies that are not json", http.MethodPost, "/sample", "{", http.StatusUnprocessableEntity),
		Entry("documents that are not schemas", http.MethodPost, "/sample", `{"type": 3}`, http.StatusUnprocessableEntity),
		Entry("unknown fakers", http.MethodPost, "/sample", `{"type": "string", "faker": "lorem.haiku"}`, http.StatusUnprocessableEntity),
		Entry("unsatisfiable schemas", http.MethodPost, "/sample", `{"type": "integer", "minimum": 2, "maximum": 1}`, http.StatusUnprocessableEntity),
		Entry("dangling references", http.MethodPost, "/sample", `{"$ref": "#/definitions/none", "definitions": {}}`, http.StatusUnprocessableEntity),
		Entry("zero count", http.MethodPost, "/sample?count=0", pointSchema, http.StatusBadRequest),
		Entry("malformed seed", http.MethodPost, "/sample?seed=x", pointSchema, http.StatusBadRequest),
		Entry("oversized bodies", http.MethodPost, "/sample", `{"description": "`+strings.Repeat("a", 1<<20)+`"}`, http.StatusRequestEntityTooLarge),
	)
})
