package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/invoicesync/internal/config"
	"github.com/punchamoorthee/invoicesync/internal/domain"
	"github.com/punchamoorthee/invoicesync/internal/models"
	"github.com/punchamoorthee/invoicesync/internal/service"
	"github.com/punchamoorthee/invoicesync/internal/simplybook"
	"github.com/punchamoorthee/invoicesync/internal/simplybook/simplybooktest"
	"github.com/punchamoorthee/invoicesync/internal/store"
	"github.com/punchamoorthee/invoicesync/internal/web"
)

type testServer struct {
	provider *simplybooktest.Server
	store    *store.MemoryStore
	router   http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	provider := simplybooktest.NewServer()
	t.Cleanup(provider.Close)

	cfg := config.SimplyBookConfig{
		BaseURL:  provider.URL,
		Company:  simplybooktest.Company,
		User:     simplybooktest.User,
		Password: simplybooktest.Password,
		Timeout:  2 * time.Second,
	}
	client := simplybook.NewClient(cfg, zerolog.Nop())
	mem := store.NewMemoryStore()
	svc := service.NewInvoiceService(
		service.NewAggregator(simplybook.NewTokenManager(client, cfg), client, 0),
		service.NewTaxCalculator(1.21, time.UTC),
		mem,
		service.NewSnapshotStore(),
		time.UTC,
	)

	static, err := web.Handler("")
	require.NoError(t, err)

	return &testServer{
		provider: provider,
		store:    mem,
		router:   NewRouter(NewHandler(svc, mem), zerolog.Nop(), static),
	}
}

func (s *testServer) loadBooking() {
	s.provider.AddBooking("42", `{"id":"42","client_id":"7","batch_bookings":[{"id":"43"},{"id":"44"}]}`)
	s.provider.AddBooking("43", `{"id":"43","client_id":"7","event_name":"Lesson 1","start_date_time":"2024-05-10 10:00:00","event_price":"121.00"}`)
	s.provider.AddBooking("44", `{"id":"44","client_id":"7","event_name":"Lesson 2","start_date_time":"2024-05-17 10:00:00","event_price":"60.50"}`)
	s.provider.AddClient("7", `{"id":"7","name":"Ana Garcia","email":"ana@example.com"}`)
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsMissingBookingID(t *testing.T) {
	s := newTestServer(t)
	before := testutil.ToFloat64(webhookEventsTotal.WithLabelValues(outcomeRejected))

	for _, body := range []string{`{}`, `{"booking_id":""}`, `{"booking_id":0}`, `{"booking_id":null}`, ``} {
		rec := s.do(http.MethodPost, "/webhook", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
		assert.Contains(t, rec.Body.String(), "booking_id")
	}

	assert.Zero(t, s.provider.CallCount(""))
	assert.Equal(t, before+5, testutil.ToFloat64(webhookEventsTotal.WithLabelValues(outcomeRejected)))
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/webhook", `{"booking_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, s.provider.CallCount(""))
}

func TestWebhookProcessesBooking(t *testing.T) {
	s := newTestServer(t)
	s.loadBooking()

	rec := s.do(http.MethodPost, "/webhook", `{"booking_id":42,"booking_hash":"abc","company":"acme-school","notification_type":"create"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var ack models.WebhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, models.StatusSuccess, ack.Status)

	rec = s.do(http.MethodGet, "/api/invoices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []domain.InvoiceRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "44", rows[0].LessonID)
	assert.Equal(t, 60.5, rows[0].Amount)
	assert.Equal(t, 100.0, rows[1].TaxBase)

	rec = s.do(http.MethodGet, "/api/last-processed-data", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"booking_id":"42"`)
	assert.Contains(t, rec.Body.String(), "Ana Garcia")
}

func TestWebhookAcknowledgesPersistenceFailure(t *testing.T) {
	s := newTestServer(t)
	s.loadBooking()
	s.store.FailWith(errors.New("database is down"))
	before := testutil.ToFloat64(webhookEventsTotal.WithLabelValues(outcomePersistenceFailed))

	rec := s.do(http.MethodPost, "/webhook", `{"booking_id":"42"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), models.StatusSuccess)
	assert.Equal(t, before+1, testutil.ToFloat64(webhookEventsTotal.WithLabelValues(outcomePersistenceFailed)))
}

func TestWebhookUpstreamFailure(t *testing.T) {
	s := newTestServer(t)
	s.loadBooking()
	s.provider.FailHTTP("getBookingDetails", http.StatusBadGateway)

	rec := s.do(http.MethodPost, "/webhook", `{"booking_id":"42"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var ack models.WebhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, models.StatusError, ack.Status)
	assert.NotEmpty(t, ack.Message)

	rec = s.do(http.MethodGet, "/api/last-processed-data", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "message")
}

func TestListInvoicesQueryParameters(t *testing.T) {
	s := newTestServer(t)
	s.loadBooking()
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/webhook", `{"booking_id":"42"}`).Code)

	tests := []struct {
		query string
		code  int
		rows  int
	}{
		{"", http.StatusOK, 2},
		{"?startSearch=2024-05-01&endSearch=2024-05-10", http.StatusOK, 1},
		{"?startSearch=2024-05-17&endSearch=2024-05-17", http.StatusOK, 1},
		{"?endSearch=2024-04-30", http.StatusOK, 0},
		{"?startSearch=2024-05-11", http.StatusOK, 1},
		{"?startSearch=10/05/2024", http.StatusBadRequest, 0},
		{"?endSearch=tomorrow", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := s.do(http.MethodGet, "/api/invoices"+tt.query, "")
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code != http.StatusOK {
				var problem models.ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
				assert.NotEmpty(t, problem.Error)
				return
			}
			var rows []domain.InvoiceRecord
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
			assert.Len(t, rows, tt.rows)
			if tt.rows == 0 {
				assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
			}
		})
	}
}

func TestListInvoicesStorageFailure(t *testing.T) {
	s := newTestServer(t)
	s.store.FailWith(errors.New("connection refused"))

	rec := s.do(http.MethodGet, "/api/invoices", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Could not load invoices"}`, rec.Body.String())
}

func TestHealthAndStatic(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<table>")

	s.store.FailWith(errors.New("down"))
	rec = s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, "req-1", rec.Header().Get(requestIDHeader))
}
