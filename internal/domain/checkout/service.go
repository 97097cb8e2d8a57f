package checkout

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/apperr"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/catalog"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
)

const instrumentationName = "github.com/xenking/kart-checkout/internal/domain/checkout"

type options struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	now            func() time.Time
}

// Option configures a Service.
type Option func(*options)

// WithTracerProvider sets the tracer provider. Defaults to a no-op provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets the meter provider. Defaults to a no-op provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Service orchestrates checkout and prices carts for display.
type Service struct {
	carts   cart.Repository
	catalog catalog.Gateway
	uow     UnitOfWork
	now     func() time.Time

	tracer           trace.Tracer
	finalized        metric.Int64Counter
	failed           metric.Int64Counter
	rollbackFailures metric.Int64Counter
}

// NewService creates a checkout Service. Reads outside the UnitOfWork go
// through carts and catalog.
func NewService(carts cart.Repository, catalog catalog.Gateway, uow UnitOfWork, opts ...Option) (*Service, error) {
	o := options{
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter(instrumentationName)
	s := &Service{
		carts:   carts,
		catalog: catalog,
		uow:     uow,
		now:     o.now,
		tracer:  o.tracerProvider.Tracer(instrumentationName),
	}

	var err error
	if s.finalized, err = meter.Int64Counter("checkout.finalized",
		metric.WithDescription("Number of carts converted into orders"),
	); err != nil {
		return nil, errors.Wrap(err, "create finalized counter")
	}
	if s.failed, err = meter.Int64Counter("checkout.failed",
		metric.WithDescription("Number of failed checkouts by error code"),
	); err != nil {
		return nil, errors.Wrap(err, "create failed counter")
	}
	if s.rollbackFailures, err = meter.Int64Counter("checkout.rollback_failures",
		metric.WithDescription("Number of checkouts whose stock restoration failed"),
	); err != nil {
		return nil, errors.Wrap(err, "create rollback failures counter")
	}
	return s, nil
}

// GetCart prices the user's active cart against live catalog data. A user
// without a cart gets an empty priced cart.
func (s *Service) GetCart(ctx context.Context, userID string) (*pricing.PricedCart, error) {
	c, err := s.carts.FindActive(ctx, userID)
	switch {
	case errors.Is(err, cart.ErrNoActiveCart):
		c = &cart.Cart{UserID: userID, State: cart.StateOpen}
	case err != nil:
		return nil, apperr.Storage("load cart", err)
	}

	products, err := s.loadProducts(ctx, c)
	if err != nil {
		return nil, err
	}
	return pricing.Price(c, pricing.MapLookup(products))
}

// Finalize converts the user's cart into an order.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest) (_ *order.Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Finalize",
		trace.WithAttributes(attribute.String("user_id", req.UserID)),
	)
	defer func() {
		s.record(ctx, span, rerr)
		span.End()
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	lg := zctx.From(ctx).With(zap.String("user_id", req.UserID))

	c, err := s.carts.FindActive(ctx, req.UserID)
	switch {
	case errors.Is(err, cart.ErrNoActiveCart):
		return nil, apperr.ErrEmptyCart
	case err != nil:
		return nil, apperr.Storage("load cart", err)
	case c.State == cart.StateFinalizing:
		return nil, apperr.ErrCheckoutInProgress
	case c.IsEmpty():
		return nil, apperr.ErrEmptyCart
	}

	if err := s.carts.Transition(ctx, c.ID, cart.StateOpen, cart.StateFinalizing); err != nil {
		if errors.Is(err, cart.ErrStateConflict) {
			return nil, apperr.ErrCheckoutInProgress
		}
		return nil, apperr.Storage("lock cart", err)
	}
	lg = lg.With(zap.String("cart_id", c.ID))
	span.SetAttributes(attribute.String("cart_id", c.ID))

	stage := StageReserving
	o, err := s.finalize(ctx, c, req, &stage)
	if err != nil {
		s.reopen(ctx, lg, c.ID)
		lg.Info("Checkout failed",
			zap.Stringer("stage", stage),
			zap.String("code", string(apperr.CodeOf(err))),
			zap.Error(err),
		)
		return nil, err
	}

	lg.Info("Order placed",
		zap.String("order_id", o.ID),
		zap.Stringer("grand_total", o.GrandTotal),
		zap.Int("lines", len(o.Lines)),
	)
	return o, nil
}

// finalize runs the stages after the cart was locked. The cart is
// finalizing for the whole call.
func (s *Service) finalize(ctx context.Context, c *cart.Cart, req FinalizeRequest, stage *Stage) (*order.Order, error) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(stage.String())

	// Lines may have changed between the first read and the lock; the
	// finalizing cart is frozen, so read it again.
	locked, err := s.carts.FindActive(ctx, c.UserID)
	switch {
	case err != nil:
		return nil, apperr.Storage("reload cart", err)
	case locked.ID != c.ID || locked.State != cart.StateFinalizing:
		return nil, apperr.ErrCheckoutInProgress
	case locked.IsEmpty():
		return nil, apperr.ErrEmptyCart
	}
	c = locked

	products, err := s.loadProducts(ctx, c)
	if err != nil {
		return nil, err
	}
	for _, l := range c.Lines {
		if p := products[l.ProductID]; p.AvailableQuantity < l.Quantity {
			return nil, &apperr.InsufficientStockError{ProductID: p.ID, Available: p.AvailableQuantity}
		}
	}

	*stage = StagePricing
	span.AddEvent(stage.String())

	priced, err := pricing.Price(c, pricing.MapLookup(products))
	if err != nil {
		return nil, err
	}

	*stage = StagePersisting
	span.AddEvent(stage.String())

	// Once stock is being decremented the caller can no longer abort.
	var o *order.Order
	if err := s.uow.Do(context.WithoutCancel(ctx), func(ctx context.Context, st Stores) error {
		var err error
		o, err = s.commit(ctx, st, c, priced, req)
		return err
	}); err != nil {
		return nil, err
	}

	*stage = StageDone
	span.AddEvent(stage.String())
	return o, nil
}

// commit decrements stock for every line, persists the order and finalizes
// the cart. Decrements already applied are restored in reverse order when a
// later step fails.
//
// Stock is decremented in product id order whatever the cart order, so
// concurrent checkouts lock product rows in the same order.
func (s *Service) commit(
	ctx context.Context,
	st Stores,
	c *cart.Cart,
	priced *pricing.PricedCart,
	req FinalizeRequest,
) (*order.Order, error) {
	applied := make([]apperr.StockAdjustment, 0, len(priced.Lines))
	for _, l := range decrementOrder(priced.Lines) {
		if err := st.Stock.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
			return nil, s.compensate(ctx, st, applied, s.decrementError(ctx, st, l.ProductID, err))
		}
		applied = append(applied, apperr.StockAdjustment{ProductID: l.ProductID, Quantity: l.Quantity})
	}

	o, err := order.New(order.Params{
		UserID:          req.UserID,
		ShippingAddress: req.ShippingAddress,
		PaymentToken:    req.PaymentToken,
		CreatedAt:       s.now().UTC(),
	}, priced)
	if err != nil {
		return nil, s.compensate(ctx, st, applied, errors.Wrap(err, "build order"))
	}
	if err := st.Orders.Create(ctx, o); err != nil {
		return nil, s.compensate(ctx, st, applied, apperr.Storage("create order", err))
	}
	if err := st.Carts.Transition(ctx, c.ID, cart.StateFinalizing, cart.StateFinalized); err != nil {
		if errors.Is(err, cart.ErrStateConflict) {
			err = apperr.ErrCheckoutInProgress
		}
		return nil, s.compensate(ctx, st, applied, apperr.Storage("finalize cart", err))
	}
	return o, nil
}

// decrementOrder returns lines sorted by product id. The priced lines keep
// their cart order for the order snapshot.
func decrementOrder(lines []pricing.PricedLine) []pricing.PricedLine {
	sorted := slices.Clone(lines)
	slices.SortFunc(sorted, func(a, b pricing.PricedLine) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return sorted
}

// decrementError maps a failed decrement to the error reported to the
// caller, reading the current stock level for insufficient stock.
func (s *Service) decrementError(ctx context.Context, st Stores, productID string, err error) error {
	if !errors.Is(err, catalog.ErrInsufficientStock) {
		return apperr.Storage("decrement stock", err)
	}
	isErr := &apperr.InsufficientStockError{ProductID: productID}
	if p, ok, getErr := st.Stock.GetProduct(ctx, productID); getErr == nil && ok {
		isErr.Available = p.AvailableQuantity
	}
	return isErr
}

// compensate restores applied decrements in reverse order and returns cause,
// or a *apperr.RollbackFailureError when any restoration fails. A failed
// restore inside a transactional UnitOfWork is discarded along with the
// decrements, so cause is returned as is.
func (s *Service) compensate(ctx context.Context, st Stores, applied []apperr.StockAdjustment, cause error) error {
	var (
		firstErr   error
		unrestored []apperr.StockAdjustment
	)
	for i := len(applied) - 1; i >= 0; i-- {
		adj := applied[i]
		if err := st.Stock.RestoreStock(ctx, adj.ProductID, adj.Quantity); err != nil {
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "restore stock %s", adj.ProductID)
			}
			unrestored = append(unrestored, adj)
		}
	}
	switch {
	case firstErr == nil:
		return cause
	case st.Transactional:
		zctx.From(ctx).Warn("Stock restore failed, transaction rolls back",
			zap.Int("unrestored", len(unrestored)),
			zap.Error(firstErr),
		)
		return cause
	default:
		return &apperr.RollbackFailureError{Cause: cause, Err: firstErr, Unrestored: unrestored}
	}
}

// reopen moves the cart back to open after a failed checkout.
func (s *Service) reopen(ctx context.Context, lg *zap.Logger, cartID string) {
	ctx = context.WithoutCancel(ctx)
	err := s.carts.Transition(ctx, cartID, cart.StateFinalizing, cart.StateOpen)
	if err == nil || errors.Is(err, cart.ErrStateConflict) {
		return
	}
	lg.Error("Failed to reopen cart after checkout failure", zap.Error(err))
}

func (s *Service) record(ctx context.Context, span trace.Span, err error) {
	if err == nil {
		s.finalized.Add(ctx, 1)
		span.SetStatus(codes.Ok, "")
		return
	}

	code := apperr.CodeOf(err)
	s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("code", string(code))))
	span.RecordError(err)
	span.SetStatus(codes.Error, string(code))

	var rbErr *apperr.RollbackFailureError
	if errors.As(err, &rbErr) {
		s.rollbackFailures.Add(ctx, 1)
		fields := []zap.Field{
			zap.Bool("inventory_alert", true),
			zap.Error(err),
		}
		for _, adj := range rbErr.Unrestored {
			fields = append(fields, zap.Int("unrestored."+adj.ProductID, adj.Quantity))
		}
		zctx.From(ctx).Error("Stock restoration failed, inventory needs reconciliation", fields...)
	}
}

// RecoverStale reopens carts left finalizing for longer than olderThan, e.g.
// after a crash mid-checkout.
func (s *Service) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.carts.ReopenStale(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, apperr.Storage("reopen stale carts", err)
	}
	if n > 0 {
		zctx.From(ctx).Warn("Reopened stale checkouts", zap.Int64("carts", n))
	}
	return n, nil
}

// loadProducts reads every product referenced by c.
func (s *Service) loadProducts(ctx context.Context, c *cart.Cart) (map[string]catalog.Product, error) {
	products := make(map[string]catalog.Product, len(c.Lines))
	for _, l := range c.Lines {
		p, ok, err := s.catalog.GetProduct(ctx, l.ProductID)
		if err != nil {
			return nil, apperr.Storage("get product", err)
		}
		if !ok {
			return nil, &apperr.ProductNotFoundError{ProductID: l.ProductID}
		}
		products[l.ProductID] = p
	}
	return products, nil
}
