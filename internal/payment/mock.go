package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/logger"
)

// MockGateway is an in-process gateway for local development. Intent IDs are
// derived from the idempotency key so replays return the same intent.
type MockGateway struct {
	mu       sync.Mutex
	intents  map[string]*domain.PaymentIntent
	statuses map[string]domain.PaymentIntentStatus
	baseURL  string
}

func NewMockGateway(checkoutBaseURL string) *MockGateway {
	return &MockGateway{
		intents:  make(map[string]*domain.PaymentIntent),
		statuses: make(map[string]domain.PaymentIntentStatus),
		baseURL:  checkoutBaseURL,
	}
}

func (g *MockGateway) CreateIntent(ctx context.Context, req CreateIntentRequest) (*domain.PaymentIntent, error) {
	if !req.Method.IsOnline() {
		return nil, fmt.Errorf("%w: unsupported method %q", ErrGatewayRejected, req.Method)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	sum := sha256.Sum256([]byte(req.IdempotencyKey))
	id := "pi_mock_" + hex.EncodeToString(sum[:8])
	if pi, ok := g.intents[id]; ok {
		cp := *pi
		return &cp, nil
	}

	pi := &domain.PaymentIntent{
		ID:             id,
		BookingID:      req.BookingID,
		Amount:         req.Amount,
		Provider:       req.Method,
		Status:         domain.PaymentIntentPending,
		CheckoutURL:    fmt.Sprintf("%s/%s/%s", g.baseURL, req.Method, id),
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	g.intents[id] = pi
	g.statuses[id] = domain.PaymentIntentPending
	logger.Info("Mock payment intent created", "intentID", id, "bookingID", req.BookingID, "amount", req.Amount)

	cp := *pi
	return &cp, nil
}

func (g *MockGateway) QueryStatus(ctx context.Context, intentID string) (domain.PaymentIntentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status, ok := g.statuses[intentID]
	if !ok {
		return "", fmt.Errorf("%w: unknown intent %s", ErrGatewayRejected, intentID)
	}
	return status, nil
}

// SetStatus simulates the customer completing or abandoning checkout.
func (g *MockGateway) SetStatus(intentID string, status domain.PaymentIntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[intentID] = status
}
