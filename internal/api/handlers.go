package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/punchamoorthee/invoicesync/internal/domain"
	ierr "github.com/punchamoorthee/invoicesync/internal/errors"
	"github.com/punchamoorthee/invoicesync/internal/logger"
	"github.com/punchamoorthee/invoicesync/internal/models"
	"github.com/punchamoorthee/invoicesync/internal/service"
)

const maxWebhookBody = 1 << 20

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if h.storage != nil {
		if err := h.storage.Ping(r.Context()); err != nil {
			logger.FromContext(r.Context()).Error().Err(err).Msg("storage ping failed")
			respondWithJSON(w, http.StatusServiceUnavailable, models.HealthResponse{Status: "degraded", Storage: "unreachable"})
			return
		}
	}
	respondWithJSON(w, http.StatusOK, models.HealthResponse{Status: "ok"})
}

// WebhookHandler runs the invoice pipeline for one provider notification.
// A storage failure after aggregation still answers 200.
func (h *Handler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			webhookEventsTotal.WithLabelValues(outcomeRejected).Inc()
			respondWithText(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		webhookEventsTotal.WithLabelValues(outcomeRejected).Inc()
		respondWithText(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	var event models.WebhookEvent
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &event); err != nil {
			webhookEventsTotal.WithLabelValues(outcomeRejected).Inc()
			log.Warn().Err(err).Msg("malformed webhook body")
			respondWithText(w, http.StatusBadRequest, "Malformed JSON body")
			return
		}
	}
	if event.BookingID.Empty() {
		webhookEventsTotal.WithLabelValues(outcomeRejected).Inc()
		log.Warn().Msg("webhook without booking_id")
		respondWithText(w, http.StatusBadRequest, "Missing booking_id in request body")
		return
	}

	bookingID := event.BookingID.String()
	evLog := log.With().
		Str("booking_id", bookingID).
		Str("notification_type", event.NotificationType).
		Logger()
	ctx := evLog.WithContext(r.Context())

	res, err := h.service.ProcessBooking(ctx, bookingID)
	if err != nil {
		webhookEventsTotal.WithLabelValues(outcomeFailed).Inc()
		failedAfter := service.StageReceived
		if res != nil {
			failedAfter = res.FailedAt
		}
		evLog.Error().Err(err).
			Str("stage", string(service.StageFailed)).
			Str("failed_after", string(failedAfter)).
			Msg("booking processing failed")
		respondWithJSON(w, ierr.HTTPStatusFromErr(err), models.WebhookResponse{
			Status:  models.StatusError,
			Message: ierr.Hint(err, "Internal server error"),
		})
		return
	}

	outcome := outcomeAcknowledged
	if res.PersistErr != nil {
		outcome = outcomePersistenceFailed
	}
	webhookEventsTotal.WithLabelValues(outcome).Inc()
	evLog.Info().
		Str("stage", string(service.StageAcknowledged)).
		Str("completed", string(res.Stage)).
		Int("lines", res.Lines).
		Int("skipped", res.Skipped).
		Int("inserted", res.Inserted).
		Msg("booking processed")

	respondWithJSON(w, http.StatusOK, models.WebhookResponse{
		Status:  models.StatusSuccess,
		Message: "Booking received and processed",
	})
}

// ListInvoicesHandler serves stored invoices filtered by the optional
// startSearch and endSearch days (YYYY-MM-DD, end inclusive).
func (h *Handler) ListInvoicesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := h.service.Location()

	start, err := domain.ParseSearchDate(q.Get("startSearch"), loc)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "startSearch: "+err.Error())
		return
	}
	end, err := domain.ParseSearchDate(q.Get("endSearch"), loc)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "endSearch: "+err.Error())
		return
	}

	invoices, err := h.service.ListInvoices(r.Context(), start, end)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("invoice query failed")
		respondWithError(w, http.StatusInternalServerError, "Could not load invoices")
		return
	}
	if invoices == nil {
		invoices = []domain.InvoiceRecord{}
	}
	respondWithJSON(w, http.StatusOK, invoices)
}

// LastProcessedHandler exposes the most recent aggregation for debugging.
func (h *Handler) LastProcessedHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.service.LastProcessed()
	if !ok {
		respondWithJSON(w, http.StatusBadRequest, models.MessageResponse{Message: "No booking has been processed yet"})
		return
	}
	respondWithJSON(w, http.StatusOK, snap)
}
