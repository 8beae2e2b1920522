package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/punchamoorthee/invoicesync/internal/domain"
	"github.com/punchamoorthee/invoicesync/internal/models"
	"github.com/punchamoorthee/invoicesync/internal/service"
)

// Metrics
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicesync_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "invoicesync_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "endpoint"})

	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicesync_webhook_events_total",
		Help: "Webhook deliveries by outcome",
	}, []string{"outcome"})
)

const (
	outcomeRejected          = "rejected"
	outcomeFailed            = "failed"
	outcomeAcknowledged      = "acknowledged"
	outcomePersistenceFailed = "persistence_failed"
)

// InvoiceService is what the handlers need from the pipeline.
type InvoiceService interface {
	ProcessBooking(ctx context.Context, bookingID string) (*service.Result, error)
	ListInvoices(ctx context.Context, start, end *time.Time) ([]domain.InvoiceRecord, error)
	LastProcessed() (service.Snapshot, bool)
	Location() *time.Location
}

// Pinger reports storage liveness for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	service InvoiceService
	storage Pinger
}

func NewHandler(svc InvoiceService, storage Pinger) *Handler {
	return &Handler{service: svc, storage: storage}
}

// NewRouter wires every endpoint. static, when non-nil, is served for
// everything not matched by an API route.
func NewRouter(h *Handler, base zerolog.Logger, static http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestLogger(base))

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)
	r.HandleFunc("/webhook", h.WebhookHandler).Methods(http.MethodPost)

	apiRoutes := r.PathPrefix("/api").Subrouter()
	apiRoutes.HandleFunc("/invoices", h.ListInvoicesHandler).Methods(http.MethodGet)
	apiRoutes.HandleFunc("/last-processed-data", h.LastProcessedHandler).Methods(http.MethodGet)

	if static != nil {
		r.PathPrefix("/").Handler(static).Methods(http.MethodGet, http.MethodHead)
	}
	return r
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, models.ErrorResponse{Error: message})
}

func respondWithText(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(message))
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}
