package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentHandlerUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/evaluations/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/evaluations/{id}", "418"))
	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/evaluations/"+id, nil))
	}
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/evaluations/{id}", "418"))
	if after-before != 3 {
		t.Errorf("requests counted = %v, want 3", after-before)
	}
}

func TestStatusWriterDefaults(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: 200}
	sw.Write([]byte("abc"))
	if sw.status != 200 || sw.written != 3 {
		t.Errorf("status=%d written=%d, want 200/3", sw.status, sw.written)
	}
	if sw.Unwrap() != rec {
		t.Error("Unwrap should return the wrapped writer")
	}
}

type fakeQueue struct{ depth, capacity, workers int }

func (f fakeQueue) QueueDepth() int    { return f.depth }
func (f fakeQueue) QueueCapacity() int { return f.capacity }
func (f fakeQueue) Workers() int       { return f.workers }

func TestCollector(t *testing.T) {
	tests := []struct {
		name  string
		queue QueueStats
		want  string
	}{
		{"with_queue", fakeQueue{depth: 3, capacity: 500, workers: 2}, `
# HELP sttbench_queue_depth Evaluation jobs waiting for a worker.
# TYPE sttbench_queue_depth gauge
sttbench_queue_depth 3
# HELP sttbench_workers Evaluation worker goroutines.
# TYPE sttbench_workers gauge
sttbench_workers 2
`},
		{"nil_queue", nil, `
# HELP sttbench_queue_depth Evaluation jobs waiting for a worker.
# TYPE sttbench_queue_depth gauge
sttbench_queue_depth 0
# HELP sttbench_workers Evaluation worker goroutines.
# TYPE sttbench_workers gauge
sttbench_workers 0
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewPedanticRegistry()
			reg.MustRegister(NewCollector(nil, tt.queue))
			err := testutil.GatherAndCompare(reg, strings.NewReader(tt.want),
				"sttbench_queue_depth", "sttbench_workers")
			if err != nil {
				t.Error(err)
			}
		})
	}
}
