package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/logger"
	"gearlend-backend/internal/money"
)

const (
	defaultPayMongoBaseURL = "https://api.paymongo.com"
	payMongoService        = "paymongo"
)

// PayMongoGateway talks to a PayMongo-compatible payment intent API. GCash
// resolves to a wallet redirect URL and QR Ph to a QR image URL.
type PayMongoGateway struct {
	Client    *http.Client
	BaseURL   string
	SecretKey string
	ReturnURL string
}

func NewPayMongoGateway(baseURL, secretKey, returnURL string, timeout time.Duration) *PayMongoGateway {
	if baseURL == "" {
		baseURL = defaultPayMongoBaseURL
	}
	return &PayMongoGateway{
		Client:    &http.Client{Timeout: timeout},
		BaseURL:   strings.TrimRight(baseURL, "/"),
		SecretKey: secretKey,
		ReturnURL: returnURL,
	}
}

type pmResource struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Attributes json.RawMessage `json:"attributes"`
}

type pmEnvelope struct {
	Data pmResource `json:"data"`
}

type pmErrorBody struct {
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

type pmIntentAttributes struct {
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	LastPaymentError *struct {
		FailedMessage string `json:"failed_message"`
	} `json:"last_payment_error"`
	NextAction *struct {
		Type     string `json:"type"`
		Redirect *struct {
			URL string `json:"url"`
		} `json:"redirect"`
		Code *struct {
			ImageURL string `json:"image_url"`
		} `json:"code"`
	} `json:"next_action"`
}

func (g *PayMongoGateway) CreateIntent(ctx context.Context, req CreateIntentRequest) (*domain.PaymentIntent, error) {
	logger.ExternalServiceCall(payMongoService, "CreateIntent", "bookingID", req.BookingID, "method", req.Method, "amount", req.Amount)

	if !req.Method.IsOnline() {
		return nil, fmt.Errorf("%w: unsupported method %q", ErrGatewayRejected, req.Method)
	}

	intentBody := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"amount":                 req.Amount.Centavos(),
				"currency":               "PHP",
				"payment_method_allowed": []string{string(req.Method)},
				"description":            req.Description,
				"metadata":               map[string]string{"booking_id": req.BookingID},
			},
		},
	}
	var intent pmEnvelope
	if err := g.do(ctx, http.MethodPost, "/v1/payment_intents", req.IdempotencyKey, intentBody, &intent); err != nil {
		logger.ExternalServiceResult(payMongoService, "CreateIntent", err, "bookingID", req.BookingID)
		return nil, err
	}

	methodBody := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"type": string(req.Method),
				"billing": map[string]string{
					"name":  req.Payer.Name,
					"email": req.Payer.Email,
					"phone": req.Payer.Phone,
				},
			},
		},
	}
	var method pmEnvelope
	if err := g.do(ctx, http.MethodPost, "/v1/payment_methods", req.IdempotencyKey+":pm", methodBody, &method); err != nil {
		logger.ExternalServiceResult(payMongoService, "CreateIntent", err, "bookingID", req.BookingID, "step", "payment_method")
		return nil, err
	}

	attachBody := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"payment_method": method.Data.ID,
				"return_url":     g.ReturnURL,
			},
		},
	}
	var attached pmEnvelope
	path := "/v1/payment_intents/" + intent.Data.ID + "/attach"
	if err := g.do(ctx, http.MethodPost, path, req.IdempotencyKey+":attach", attachBody, &attached); err != nil {
		logger.ExternalServiceResult(payMongoService, "CreateIntent", err, "bookingID", req.BookingID, "step", "attach")
		return nil, err
	}

	var attrs pmIntentAttributes
	if err := json.Unmarshal(attached.Data.Attributes, &attrs); err != nil {
		return nil, fmt.Errorf("%w: decode intent: %v", ErrGatewayUnavailable, err)
	}

	pi := &domain.PaymentIntent{
		ID:             intent.Data.ID,
		BookingID:      req.BookingID,
		Amount:         money.Amount(attrs.Amount),
		Provider:       req.Method,
		Status:         mapIntentStatus(attrs),
		CheckoutURL:    checkoutURL(attrs),
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	logger.ExternalServiceResult(payMongoService, "CreateIntent", nil, "bookingID", req.BookingID, "intentID", pi.ID, "status", pi.Status)
	return pi, nil
}

func (g *PayMongoGateway) QueryStatus(ctx context.Context, intentID string) (domain.PaymentIntentStatus, error) {
	logger.ExternalServiceCall(payMongoService, "QueryStatus", "intentID", intentID)

	var env pmEnvelope
	if err := g.do(ctx, http.MethodGet, "/v1/payment_intents/"+intentID, "", nil, &env); err != nil {
		logger.ExternalServiceResult(payMongoService, "QueryStatus", err, "intentID", intentID)
		return "", err
	}
	var attrs pmIntentAttributes
	if err := json.Unmarshal(env.Data.Attributes, &attrs); err != nil {
		return "", fmt.Errorf("%w: decode intent: %v", ErrGatewayUnavailable, err)
	}

	status := mapIntentStatus(attrs)
	logger.ExternalServiceResult(payMongoService, "QueryStatus", nil, "intentID", intentID, "status", status)
	return status, nil
}

func (g *PayMongoGateway) do(ctx context.Context, method, path, idempotencyKey string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.SecretKey, "")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return classifyStatus(resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGatewayUnavailable, err)
	}
	return nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
}

func classifyStatus(code int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	var parsed pmErrorBody
	if json.Unmarshal(body, &parsed) == nil && len(parsed.Errors) > 0 {
		detail = parsed.Errors[0].Code + ": " + parsed.Errors[0].Detail
	}
	switch {
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d: %s", ErrGatewayTimeout, code, detail)
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d: %s", ErrGatewayUnavailable, code, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, code, detail)
	}
}

func mapIntentStatus(attrs pmIntentAttributes) domain.PaymentIntentStatus {
	switch attrs.Status {
	case "succeeded":
		return domain.PaymentIntentSucceeded
	case "cancelled", "expired":
		return domain.PaymentIntentExpired
	case "awaiting_payment_method":
		// the processor resets a declined attempt to awaiting_payment_method
		if attrs.LastPaymentError != nil {
			return domain.PaymentIntentFailed
		}
	}
	return domain.PaymentIntentPending
}

func checkoutURL(attrs pmIntentAttributes) string {
	if attrs.NextAction == nil {
		return ""
	}
	if attrs.NextAction.Redirect != nil {
		return attrs.NextAction.Redirect.URL
	}
	if attrs.NextAction.Code != nil {
		return attrs.NextAction.Code.ImageURL
	}
	return ""
}
