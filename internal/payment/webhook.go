package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/money"
)

// SignatureHeader carries "t=<unix>,te=<hex hmac>,li=<hex hmac>".
const SignatureHeader = "Paymongo-Signature"

type EventType string

const (
	EventPaymentPaid   EventType = "payment.paid"
	EventPaymentFailed EventType = "payment.failed"
	EventQRPhExpired   EventType = "qrph.expired"
)

// Event is the reconciliation-relevant part of a gateway webhook.
type Event struct {
	ID              string
	Type            EventType
	PaymentIntentID string
	Amount          money.Amount
	FailureMessage  string
	LiveMode        bool
}

// Outcome maps the event to the intent status it reports. ok is false for
// event types reconciliation does not act on.
func (e Event) Outcome() (status domain.PaymentIntentStatus, ok bool) {
	switch e.Type {
	case EventPaymentPaid:
		return domain.PaymentIntentSucceeded, true
	case EventPaymentFailed:
		return domain.PaymentIntentFailed, true
	case EventQRPhExpired:
		return domain.PaymentIntentExpired, true
	}
	return "", false
}

// VerifySignature checks the webhook HMAC-SHA256 over "<t>.<raw body>" and
// rejects timestamps further than tolerance from now. Either the test-mode
// (te) or live-mode (li) signature may match.
func VerifySignature(raw []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if secret == "" {
		return fmt.Errorf("%w: webhook secret not configured", domain.ErrSignatureVerificationFailed)
	}

	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "te", "li":
			if v != "" {
				sigs = append(sigs, v)
			}
		}
	}
	if ts == "" || len(sigs) == 0 {
		return fmt.Errorf("%w: malformed signature header", domain.ErrSignatureVerificationFailed)
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", domain.ErrSignatureVerificationFailed)
	}
	if tolerance > 0 {
		skew := now.Sub(time.Unix(unix, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", domain.ErrSignatureVerificationFailed)
		}
	}

	expected := Sign(raw, secret, unix)
	for _, sig := range sigs {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return fmt.Errorf("%w: signature mismatch", domain.ErrSignatureVerificationFailed)
}

// Sign computes the hex signature for a payload sent at unix time ts.
func Sign(raw []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}

type webhookBody struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Type     string `json:"type"`
			LiveMode bool   `json:"livemode"`
			Data     struct {
				ID         string `json:"id"`
				Type       string `json:"type"`
				Attributes struct {
					Amount           int64  `json:"amount"`
					PaymentIntentID  string `json:"payment_intent_id"`
					FailedMessage    string `json:"failed_message"`
					LastPaymentError *struct {
						FailedMessage string `json:"failed_message"`
					} `json:"last_payment_error"`
				} `json:"attributes"`
			} `json:"data"`
		} `json:"attributes"`
	} `json:"data"`
}

// ParseEvent decodes a verified webhook body.
func ParseEvent(raw []byte) (Event, error) {
	var body webhookBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return Event{}, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	attrs := body.Data.Attributes
	if body.Data.ID == "" || attrs.Type == "" {
		return Event{}, fmt.Errorf("%w: missing event id or type", domain.ErrMalformedEvent)
	}

	resource := attrs.Data
	intentID := resource.Attributes.PaymentIntentID
	if intentID == "" && resource.Type == "payment_intent" {
		intentID = resource.ID
	}

	ev := Event{
		ID:              body.Data.ID,
		Type:            EventType(attrs.Type),
		PaymentIntentID: intentID,
		Amount:          money.Amount(resource.Attributes.Amount),
		FailureMessage:  resource.Attributes.FailedMessage,
		LiveMode:        attrs.LiveMode,
	}
	if ev.FailureMessage == "" && resource.Attributes.LastPaymentError != nil {
		ev.FailureMessage = resource.Attributes.LastPaymentError.FailedMessage
	}
	if _, known := ev.Outcome(); known && ev.PaymentIntentID == "" {
		return Event{}, fmt.Errorf("%w: %s without payment intent id", domain.ErrMalformedEvent, ev.Type)
	}
	return ev, nil
}
