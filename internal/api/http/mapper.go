package http

import (
	"gearlend-backend/internal/domain"
)

func mapBooking(b *domain.Booking) bookingResponse {
	resp := bookingResponse{
		ID:               b.ID,
		ItemID:           b.ItemID,
		CustomerID:       b.CustomerID,
		OwnerID:          b.OwnerID,
		Category:         b.Category,
		PricePerUnit:     b.PricePerUnit.String(),
		RentalDuration:   b.RentalDuration,
		RentalPeriodUnit: string(b.RentalPeriodUnit),
		DeliveryCharge:   b.DeliveryCharge.String(),
		GrandTotal:       b.GrandTotal.String(),
		PickupDate:       b.PickupDate,
		ReturnDate:       b.ReturnDate,
		Status:           string(b.Status),
		PaymentMethod:    string(b.PaymentMethod),
		ApprovedAt:       b.ApprovedAt,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
	if b.PaymentIntentID != nil {
		resp.PaymentIntentID = *b.PaymentIntentID
	}
	return resp
}

func mapBookings(rows []domain.Booking) []bookingResponse {
	out := make([]bookingResponse, 0, len(rows))
	for i := range rows {
		out = append(out, mapBooking(&rows[i]))
	}
	return out
}

func mapPaymentIntent(pi *domain.PaymentIntent) *paymentIntentResponse {
	if pi == nil {
		return nil
	}
	return &paymentIntentResponse{
		ID:          pi.ID,
		Amount:      pi.Amount.String(),
		Provider:    string(pi.Provider),
		Status:      string(pi.Status),
		CheckoutURL: pi.CheckoutURL,
	}
}

func mapSettlement(rec *domain.SettlementRecord) settlementResponse {
	resp := settlementResponse{
		BookingID:        rec.BookingID,
		Method:           string(rec.Method),
		RentalAmount:     rec.RentalAmount.String(),
		CommissionRate:   rec.CommissionRate.String(),
		CommissionAmount: rec.CommissionAmount.String(),
		OwnerShare:       rec.OwnerShare.String(),
		SettledAt:        rec.SettledAt,
	}
	if rec.PaymentIntentID != nil {
		resp.PaymentIntentID = *rec.PaymentIntentID
	}
	return resp
}

func mapNotifications(rows []domain.Notification) []notificationResponse {
	out := make([]notificationResponse, 0, len(rows))
	for _, n := range rows {
		out = append(out, notificationResponse{
			ID:        n.ID,
			BookingID: n.BookingID,
			Kind:      n.Kind,
			Channel:   string(n.Channel),
			Title:     n.Title,
			Message:   n.Message,
			Status:    string(n.Status),
			Attempts:  n.Attempts,
			Data:      n.Attributes,
			CreatedAt: n.CreatedAt,
		})
	}
	return out
}
