package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/odyssey-erp/odyssey-books/internal/jobs"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	clamps          *prometheus.CounterVec
	overdueCount    *prometheus.GaugeVec
	overdueAmount   *prometheus.GaugeVec
	jobs            *jobmetrics.Metrics
}

// NewMetrics menginisialisasi registry, metrik HTTP, metrik dokumen dan metrik job.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_document_transitions_total",
		Help: "Jumlah perpindahan status dokumen per jenis.",
	}, []string{"kind", "from", "to"})
	clamps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_payment_overpayment_clamped_total",
		Help: "Pembayaran yang dipangkas ke sisa tagihan.",
	}, []string{"kind"})
	overdueCount := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odyssey_documents_overdue",
		Help: "Jumlah tagihan yang lewat jatuh tempo pada pemindaian terakhir.",
	}, []string{"kind"})
	overdueAmount := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odyssey_documents_overdue_amount",
		Help: "Total sisa tagihan yang lewat jatuh tempo.",
	}, []string{"kind"})
	registry.MustRegister(requests, duration, transitions, clamps, overdueCount, overdueAmount)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		transitions:     transitions,
		clamps:          clamps,
		overdueCount:    overdueCount,
		overdueAmount:   overdueAmount,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// RecordTransition mencatat perpindahan status dokumen atau pembayaran.
func (m *Metrics) RecordTransition(kind, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, from, to).Inc()
}

// RecordOverpaymentClamp mencatat pembayaran yang melebihi sisa tagihan.
func (m *Metrics) RecordOverpaymentClamp(kind string) {
	if m == nil {
		return
	}
	m.clamps.WithLabelValues(kind).Inc()
}

// SetOverdue memperbarui gauge tagihan jatuh tempo untuk satu jenis dokumen.
func (m *Metrics) SetOverdue(kind string, count int, amount float64) {
	if m == nil {
		return
	}
	m.overdueCount.WithLabelValues(kind).Set(float64(count))
	m.overdueAmount.WithLabelValues(kind).Set(amount)
}

// Jobs mengembalikan metrik job yang terdaftar pada registry yang sama.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
