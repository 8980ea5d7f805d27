package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitekart/sitekart/internal/notify"
	"github.com/sitekart/sitekart/internal/pricing"
	"github.com/sitekart/sitekart/internal/quotation"
	"github.com/sitekart/sitekart/internal/shared"
)

var (
	seller   = shared.Actor{ID: 7, Role: shared.RoleSeller}
	customer = shared.Actor{ID: 21, Role: shared.RoleCustomer}
	start    = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
)

func acceptedQuotation(id int64) quotation.Quotation {
	q := quotation.Quotation{
		ID:              id,
		QuotationNumber: "QT-20261019-000001",
		Version:         1,
		ProjectID:       11,
		CustomerID:      21,
		SellerID:        7,
		Items: []pricing.LineItem{
			{LineNo: 1, MaterialID: 101, MaterialName: "Vitrified tiles", Quantity: 10, Unit: "box", PricePerUnit: 100, GSTRate: 18},
		},
		LaborCost:     200,
		TransportCost: 100,
		Discount:      10,
		DiscountType:  pricing.DiscountPercentage,
		Status:        quotation.StatusAccepted,
	}
	if err := q.Reprice(); err != nil {
		panic(err)
	}
	return q
}

type fixture struct {
	svc     *Service
	repo    *memoryRepo
	quotes  quotationStore
	events  *notify.Recorder
	metrics *countingMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sent := acceptedQuotation(2)
	sent.Status = quotation.StatusSent
	f := &fixture{
		repo:    newMemoryRepo(),
		quotes:  quotationStore{1: acceptedQuotation(1), 2: sent},
		events:  &notify.Recorder{},
		metrics: &countingMetrics{},
	}
	f.svc = NewService(Deps{
		Repo:       f.repo,
		Quotations: f.quotes,
		Numbers:    &counterNumbers{},
		Events:     notify.NewPublisher(f.events, nil),
		Metrics:    f.metrics,
	})
	f.svc.now = func() time.Time { return start }
	return f
}

func TestMaterializeOrderCopiesQuotation(t *testing.T) {
	f := newFixture(t)
	q := f.quotes[1]

	o, err := f.svc.MaterializeOrder(context.Background(), customer, 1)
	require.NoError(t, err)
	assert.Equal(t, "ORD-TEST-0001", o.OrderNumber)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, q.Items, o.Items)
	assert.Equal(t, q.GSTBreakdown, o.GSTBreakdown)
	assert.Equal(t, 1332.0, o.Total)
	assert.Equal(t, q.Subtotal, o.Subtotal)
	assert.Equal(t, q.GSTTotal, o.GSTTotal)
	assert.Equal(t, q.DiscountAmount, o.DiscountAmount)
	assert.Equal(t, int64(21), o.CustomerID)

	events := f.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.OrderCreated, events[0].Type)
	assert.Equal(t, int64(1), events[0].Payload["quotation_id"])
}

func TestMaterializeOrderGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.MaterializeOrder(ctx, customer, 2)
	require.ErrorIs(t, err, shared.ErrQuotationNotAccepted)

	_, err = f.svc.MaterializeOrder(ctx, shared.Actor{ID: 99, Role: shared.RoleCustomer}, 1)
	require.ErrorIs(t, err, shared.ErrActorNotPermitted)

	_, err = f.svc.MaterializeOrder(ctx, seller, 404)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.MaterializeOrder(ctx, seller, 1)
	require.NoError(t, err)
	_, err = f.svc.MaterializeOrder(ctx, customer, 1)
	require.ErrorIs(t, err, shared.ErrDuplicateOrder)
	assert.Equal(t, 1, f.repo.count())
}

func TestMaterializeOrderExactlyOnceUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 16
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.MaterializeOrder(ctx, shared.SystemActor, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, shared.ErrDuplicateOrder):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, duplicates)
	assert.Equal(t, 1, f.repo.count())
}

func TestOrderFulfilmentChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.MaterializeOrder(ctx, seller, 1)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, seller, o.ID, StatusChange{Target: StatusShipped})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.svc.UpdateStatus(ctx, customer, o.ID, StatusChange{Target: StatusConfirmed})
	require.ErrorIs(t, err, shared.ErrActorNotPermitted)

	for _, target := range []Status{StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered} {
		change := StatusChange{Target: target}
		if target == StatusShipped {
			change.TrackingNumber = "TRK-1001"
			change.Carrier = "Blue Dart"
		}
		o, err = f.svc.UpdateStatus(ctx, seller, o.ID, change)
		require.NoError(t, err, target)
		assert.Equal(t, target, o.Status)
	}
	require.NotNil(t, o.ConfirmedAt)
	require.NotNil(t, o.ProcessingAt)
	require.NotNil(t, o.ShippedAt)
	require.NotNil(t, o.DeliveredAt)
	assert.Equal(t, "TRK-1001", o.TrackingNumber)
	assert.Equal(t, "Blue Dart", o.Carrier)
	assert.Equal(t, int64(5), o.Revision)
	assert.Equal(t, []string{
		"order:pending->confirmed",
		"order:confirmed->processing",
		"order:processing->shipped",
		"order:shipped->delivered",
	}, f.metrics.transitions)

	_, err = f.svc.CancelOrder(ctx, customer, o.ID, "too late")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	assert.Len(t, f.events.Events(), 5)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.MaterializeOrder(ctx, customer, 1)
	require.NoError(t, err)

	o, err = f.svc.CancelOrder(ctx, customer, o.ID, "found a cheaper supplier")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, "found a cheaper supplier", o.CancellationReason)
	require.NotNil(t, o.CancelledAt)
	assert.Equal(t, notify.OrderStatusChanged, f.events.Types()[1])
}

func TestReturnShippedOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.MaterializeOrder(ctx, seller, 1)
	require.NoError(t, err)
	for _, target := range []Status{StatusConfirmed, StatusProcessing, StatusShipped} {
		o, err = f.svc.UpdateStatus(ctx, seller, o.ID, StatusChange{Target: target})
		require.NoError(t, err)
	}

	_, err = f.svc.CancelOrder(ctx, customer, o.ID, "")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.svc.UpdateStatus(ctx, customer, o.ID, StatusChange{Target: StatusReturned})
	require.ErrorIs(t, err, shared.ErrActorNotPermitted)

	o, err = f.svc.UpdateStatus(ctx, seller, o.ID, StatusChange{Target: StatusReturned})
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, o.Status)
	require.NotNil(t, o.ReturnedAt)
}

func TestGetOrderIsScopedToParties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.MaterializeOrder(ctx, seller, 1)
	require.NoError(t, err)

	_, err = f.svc.GetOrder(ctx, customer, o.ID)
	require.NoError(t, err)
	_, err = f.svc.GetOrder(ctx, shared.Actor{ID: 8, Role: shared.RoleSeller}, o.ID)
	require.ErrorIs(t, err, shared.ErrActorNotPermitted)
	_, err = f.svc.GetOrder(ctx, shared.Actor{ID: 3, Role: shared.RoleDesigner}, o.ID)
	require.ErrorIs(t, err, shared.ErrActorNotPermitted)
}
