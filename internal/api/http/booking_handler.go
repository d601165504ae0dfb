package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/logger"
	"gearlend-backend/internal/money"
	"gearlend-backend/internal/service"

	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

// BookingHandler serves the booking lifecycle routes.
type BookingHandler struct {
	bookings  service.BookingService
	reconcile service.ReconciliationService
}

func NewBookingHandler(bookings service.BookingService, reconcile service.ReconciliationService) *BookingHandler {
	return &BookingHandler{bookings: bookings, reconcile: reconcile}
}

// decode reads an optional JSON body and validates it. An empty body decodes
// to the zero value.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeValidationError(w, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func mustActor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated", Code: "unauthenticated"})
	}
	return actor, ok
}

func (a actionRequest) options() service.ActionOptions {
	opts := service.ActionOptions{Reason: a.Reason}
	if a.ExpectedStatus != "" {
		s := domain.BookingStatus(a.ExpectedStatus)
		opts.ExpectedStatus = &s
	}
	return opts
}

func pageParams(r *http.Request) (int32, int32) {
	q := r.URL.Query()
	page, _ := strconv.ParseInt(q.Get("page"), 10, 32)
	size, _ := strconv.ParseInt(q.Get("page_size"), 10, 32)
	return int32(page), int32(size)
}

func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustActor(w, r)
	if !ok {
		return
	}
	var req createBookingRequest
	if !decode(w, r, &req) {
		return
	}
	var delivery money.Amount
	if req.DeliveryCharge != "" {
		d, err := money.Parse(req.DeliveryCharge)
		if err != nil {
			writeValidationError(w, fmt.Errorf("delivery_charge: %w", err))
			return
		}
		delivery = d
	}

	b, err := h.bookings.CreateBooking(r.Context(), actor, service.CreateBookingInput{
		ItemID:           req.ItemID,
		RentalDuration:   req.RentalDuration,
		RentalPeriodUnit: domain.RentalPeriodUnit(req.RentalPeriodUnit),
		DeliveryCharge:   delivery,
		PickupDate:       req.PickupDate,
		ReturnDate:       req.ReturnDate,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapBooking(b))
}

func (h *BookingHandler) UpdateBookingTerms(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustActor(w, r)
	if !ok {
		return
	}
	var req updateTermsRequest
	if !decode(w, r, &req) {
		return
	}
	upd := service.TermsUpdate{
		RentalDuration: req.RentalDuration,
		PickupDate:     req.PickupDate,
		ReturnDate:     req.ReturnDate,
	}
	if req.RentalPeriodUnit != nil {
		unit := domain.RentalPeriodUnit(*req.RentalPeriodUnit)
		upd.RentalPeriodUnit = &unit
	}
	if req.DeliveryCharge != nil {
		d, err := money.Parse(*req.DeliveryCharge)
		if err != nil {
			writeValidationError(w, fmt.Errorf("delivery_charge: %w", err))
			return
		}
		upd.DeliveryCharge = &d
	}

	b, err := h.bookings.UpdateBookingTerms(r.Context(), actor, mux.Vars(r)["id"], upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapBooking(b))
}

func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustActor(w, r)
	if !ok {
		return
	}
	b, err := h.bookings.GetBooking(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapBooking(b))
}

func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustActor(w, r)
	if !ok {
		return
	}
	page, size := pageParams(r)
	rows, total, err := h.bookings.ListBookings(r.Context(), actor, page, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[bookingResponse]{
		Items:      mapBookings(rows),
		TotalCount: total,
		Page:       page,
		PageSize:   size,
	})
}

type simpleAction func(svc service.BookingService, r *http.Request, actor service.Actor, id string, opts service.ActionOptions) (*domain.Booking, error)

// action adapts a lifecycle call that takes only the shared action body.
func (h *BookingHandler) action(name string, call simpleAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}
		var req actionRequest
		if !decode(w, r, &req) {
			return
		}
		id := mux.Vars(r)["id"]
		b, err := call(h.bookings, r, actor, id, req.options())
		if err != nil {
			logger.Debug("Booking action failed", "action", name, "booking_id", id, "error", err)
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, mapBooking(b))
	}
}

func (h *BookingHandler) RequestBooking() http.HandlerFunc {
	return h.action("request", func(svc service.BookingService, r *http.Request, actor service.Actor, id string, opts service.ActionOptions) (*domain.Booking, error) {
		return svc.RequestBooking(r.Context(), actor, id, opts)
	})
}

func (h *BookingHandler) CancelBooking() http.HandlerFunc {
	return h.action("cancel", func(svc service.BookingService, r *http.Request, actor service.Actor, id string, opts service.ActionOptions) (*domain.Booking, error) {
		return svc.CancelBooking(r.Context(), actor, id, opts)
	})
}

func (h *BookingHandler) RejectBooking() http.HandlerFunc {
	return h.action("reject", func(svc service.BookingService, r *http.Request, actor service.Actor, id string, opts service.ActionOptions) (*domain.Booking, error) {
		return svc.RejectBooking(r.Context(), actor, id, opts)
	})
}

func (h *BookingHandler) TerminateBooking() http.HandlerFunc {
	return h.action("terminate", func(svc service.BookingService, r *http.Request, actor service.Actor, id string, opts service.ActionOptions) (*domain.Booking, error) {
		return svc.TerminateBooking(r.Context(), actor, id, opts)
	})
}

func (h *BookingHandler) CloseBooking() http.HandlerFunc {
	return h.action("close", func(svc service.BookingService, r *http.Request, actor service.Actor, id string, opts service.ActionOptions) (*domain.Booking, error) {
		return svc.CloseBooking(r.Context(), actor, id, opts)
	})
}

func (h *BookingHandler) ApproveBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustActor(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if !decode(w, r, &req) {
		return
	}
	b, err := h.bookings.ApproveBooking(r.Context(), actor, mux.Vars(r)["id"], domain.PaymentMethod(req.PaymentMethod), req.options())
	if err != nil {
		// The approval stands even when the gateway call failed.
		writeErrorWithBooking(w, r, err, b)
		return
	}
	writeJSON(w, http.StatusOK, mapBooking(b))
}

func (h *BookingHandler) StartBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustActor(w, r)
	if !ok {
		return
	}
	var req startRequest
	if !decode(w, r, &req) {
		return
	}
	b, err := h.bookings.StartBooking(r.Context(), actor, mux.Vars(r)["id"], req.CashConfirmed, req.options())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapBooking(b))
}

func (h *BookingHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustActor(w, r)
	if !ok {
		return
	}
	b, pi, err := h.bookings.InitiatePayment(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		writeErrorWithBooking(w, r, err, b)
		return
	}
	writeJSON(w, http.StatusOK, paymentResponse{Booking: mapBooking(b), Intent: mapPaymentIntent(pi)})
}

func (h *BookingHandler) RefreshPaymentStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustActor(w, r)
	if !ok {
		return
	}
	b, err := h.reconcile.RefreshPaymentStatus(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapBooking(b))
}

func (h *BookingHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustActor(w, r)
	if !ok {
		return
	}
	rec, err := h.bookings.GetSettlement(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSettlement(rec))
}
