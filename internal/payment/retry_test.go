package payment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gearlend-backend/internal/domain"
	"gearlend-backend/internal/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) CreateIntent(ctx context.Context, req CreateIntentRequest) (*domain.PaymentIntent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentIntent), args.Error(1)
}

func (m *MockGatewayClient) QueryStatus(ctx context.Context, intentID string) (domain.PaymentIntentStatus, error) {
	args := m.Called(ctx, intentID)
	return args.Get(0).(domain.PaymentIntentStatus), args.Error(1)
}

func TestRetryingGateway_CreateIntent(t *testing.T) {
	req := CreateIntentRequest{BookingID: "b-1", Amount: money.FromPesos(1600), Method: domain.PaymentMethodQRPh,
		IdempotencyKey: IdempotencyKey("b-1", 1)}

	t.Run("Retries transient failures with the same key", func(t *testing.T) {
		next := new(MockGatewayClient)
		next.On("CreateIntent", mock.Anything, req).Return(nil, fmt.Errorf("%w: 503", ErrGatewayUnavailable)).Once()
		next.On("CreateIntent", mock.Anything, req).Return(nil, fmt.Errorf("%w: slow", ErrGatewayTimeout)).Once()
		next.On("CreateIntent", mock.Anything, req).Return(&domain.PaymentIntent{ID: "pi_1"}, nil).Once()

		g := NewRetryingGateway(next, 3, time.Millisecond, time.Second)
		pi, err := g.CreateIntent(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "pi_1", pi.ID)
		next.AssertNumberOfCalls(t, "CreateIntent", 3)
	})

	t.Run("Gives up after the attempt budget", func(t *testing.T) {
		next := new(MockGatewayClient)
		next.On("CreateIntent", mock.Anything, req).Return(nil, ErrGatewayUnavailable)

		g := NewRetryingGateway(next, 3, time.Millisecond, time.Second)
		_, err := g.CreateIntent(context.Background(), req)
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
		next.AssertNumberOfCalls(t, "CreateIntent", 3)
	})

	t.Run("Does not retry rejections", func(t *testing.T) {
		next := new(MockGatewayClient)
		next.On("CreateIntent", mock.Anything, req).Return(nil, ErrGatewayRejected)

		g := NewRetryingGateway(next, 3, time.Millisecond, time.Second)
		_, err := g.CreateIntent(context.Background(), req)
		assert.ErrorIs(t, err, ErrGatewayRejected)
		next.AssertNumberOfCalls(t, "CreateIntent", 1)
	})

	t.Run("Applies a per-call deadline", func(t *testing.T) {
		next := new(MockGatewayClient)
		next.On("CreateIntent", mock.Anything, req).Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			deadline, ok := ctx.Deadline()
			assert.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 40*time.Millisecond)
		}).Return(&domain.PaymentIntent{ID: "pi_1"}, nil)

		g := NewRetryingGateway(next, 3, time.Millisecond, 50*time.Millisecond)
		_, err := g.CreateIntent(context.Background(), req)
		require.NoError(t, err)
	})
}

func TestRetryingGateway_QueryStatus(t *testing.T) {
	next := new(MockGatewayClient)
	next.On("QueryStatus", mock.Anything, "pi_1").Return(domain.PaymentIntentStatus(""), ErrGatewayTimeout).Once()
	next.On("QueryStatus", mock.Anything, "pi_1").Return(domain.PaymentIntentSucceeded, nil).Once()

	g := NewRetryingGateway(next, 3, time.Millisecond, time.Second)
	status, err := g.QueryStatus(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentIntentSucceeded, status)
}

func TestMockGateway_IsIdempotent(t *testing.T) {
	g := NewMockGateway("http://localhost:8080/mock-checkout")
	req := CreateIntentRequest{BookingID: "b-1", Amount: money.FromPesos(1600), Method: domain.PaymentMethodGCash,
		IdempotencyKey: IdempotencyKey("b-1", 1)}

	first, err := g.CreateIntent(context.Background(), req)
	require.NoError(t, err)
	second, err := g.CreateIntent(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	req.IdempotencyKey = IdempotencyKey("b-1", 2)
	third, err := g.CreateIntent(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)

	g.SetStatus(first.ID, domain.PaymentIntentSucceeded)
	status, err := g.QueryStatus(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentIntentSucceeded, status)

	_, err = g.CreateIntent(context.Background(), CreateIntentRequest{Method: domain.PaymentMethodCash})
	assert.ErrorIs(t, err, ErrGatewayRejected)
}
