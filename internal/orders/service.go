// Package orders creates sales and visit negations in the local store.
package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldsync/internal/audit"
	"github.com/angelmondragon/fieldsync/internal/pricing"
	"github.com/angelmondragon/fieldsync/internal/store"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
	dbtypes "github.com/angelmondragon/fieldsync/pkg/db/types"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/logger"
)

// ServiceParams configure the order builder.
type ServiceParams struct {
	Store  store.LocalStore
	Audit  audit.Sink
	Logger *logger.Logger
	Now    func() time.Time
	// NewID returns the id suffix after the ORD-/NEG- prefix. Defaults to
	// unix milliseconds of Now, bumped to stay unique.
	NewID func() string
}

type service struct {
	store store.LocalStore
	audit audit.Sink
	logg  *logger.Logger
	now   func() time.Time
	newID func() string
}

// NewService builds the order service.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("local store required")
	}
	svc := &service{
		store: params.Store,
		audit: params.Audit,
		logg:  params.Logger,
		now:   params.Now,
		newID: params.NewID,
	}
	if svc.audit == nil {
		svc.audit = audit.Nop{}
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.newID == nil {
		svc.newID = newMSClock(svc.now).next
	}
	return svc, nil
}

// CreateOrder prices every line, persists the order as pending_sync and
// marks the client as visited with a sale.
func (s *service) CreateOrder(ctx context.Context, input Input) (models.Order, error) {
	if err := requireVisit(input.RepID, input.CustomerID); err != nil {
		return models.Order{}, err
	}
	if len(input.Items) == 0 {
		return models.Order{}, pkgerrors.New(pkgerrors.CodeValidation, "an order needs at least one item")
	}

	client, err := s.store.GetClient(ctx, input.CustomerID)
	if err != nil {
		return models.Order{}, err
	}

	items := make(dbtypes.JSONList[models.OrderItem], 0, len(input.Items))
	var violations []ItemViolation
	for i, in := range input.Items {
		item, violation, err := s.buildItem(ctx, i, in)
		if err != nil {
			return models.Order{}, err
		}
		if violation != nil {
			violations = append(violations, *violation)
			continue
		}
		items = append(items, item)
	}
	if len(violations) > 0 {
		return models.Order{}, pkgerrors.New(pkgerrors.CodeValidation, "one or more items are priced below the allowed discount").
			WithDetails(map[string]any{"items": violations})
	}

	order := models.Order{
		ID:             models.OrderIDPrefix + s.newID(),
		SalesRepID:     input.RepID,
		CustomerID:     client.ID,
		CustomerName:   client.Name,
		Items:          items,
		Status:         enums.OrderStatusPending,
		SyncStatus:     enums.SyncStatusPendingSync,
		Notes:          strings.TrimSpace(input.Notes),
		PaymentMethod:  strings.TrimSpace(input.PaymentMethod),
		PaymentTableID: input.PaymentTableID,
		CreatedAt:      s.now().UTC(),
	}
	order.Total = order.ComputeTotal()

	if err := s.persist(ctx, order, client, enums.ClientStatusPositivado); err != nil {
		return models.Order{}, err
	}
	s.audit.Record(ctx, audit.Event{
		Kind:       enums.AuditOrderCreated,
		OrderID:    order.ID,
		OccurredAt: order.CreatedAt,
		Metadata:   map[string]any{"items": len(order.Items), "total": order.Total.String()},
	})
	return order, nil
}

// RegisterNegation stores a refused visit. Repeat negations for the same
// client are kept as separate records.
func (s *service) RegisterNegation(ctx context.Context, input NegationInput) (models.Order, error) {
	if err := requireVisit(input.RepID, input.CustomerID); err != nil {
		return models.Order{}, err
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return models.Order{}, pkgerrors.New(pkgerrors.CodeValidation, "a negation needs a reason").
			WithDetails(map[string]any{"field": "reason"})
	}

	client, err := s.store.GetClient(ctx, input.CustomerID)
	if err != nil {
		return models.Order{}, err
	}

	order := models.Order{
		ID:           models.NegationIDPrefix + s.newID(),
		SalesRepID:   input.RepID,
		CustomerID:   client.ID,
		CustomerName: client.Name,
		Items:        dbtypes.JSONList[models.OrderItem]{},
		Status:       enums.OrderStatusPending,
		SyncStatus:   enums.SyncStatusPendingSync,
		Reason:       &reason,
		Notes:        strings.TrimSpace(input.Notes),
		CreatedAt:    s.now().UTC(),
	}
	order.Total = order.ComputeTotal()

	if err := s.persist(ctx, order, client, enums.ClientStatusNegativado); err != nil {
		return models.Order{}, err
	}
	s.audit.Record(ctx, audit.Event{
		Kind:       enums.AuditOrderNegated,
		OrderID:    order.ID,
		OccurredAt: order.CreatedAt,
		Metadata:   map[string]any{"reason": reason},
	})
	return order, nil
}

func (s *service) buildItem(ctx context.Context, index int, in ItemInput) (models.OrderItem, *ItemViolation, error) {
	violation := func(reason string) *ItemViolation {
		return &ItemViolation{Index: index, ProductID: in.ProductID.String(), Reason: reason}
	}
	if !in.Quantity.IsPositive() {
		return models.OrderItem{}, violation("quantity must be positive"), nil
	}

	product, err := s.store.GetProduct(ctx, in.ProductID)
	if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return models.OrderItem{}, violation("product not found"), nil
	}
	if err != nil {
		return models.OrderItem{}, nil, err
	}

	price := in.UnitPrice
	if price == nil {
		list, err := pricing.UnitPrice(product, in.Unit)
		if err != nil {
			return models.OrderItem{}, violation(pkgerrors.As(err).Message()), nil
		}
		price = &list
	}

	verdict, err := pricing.Validate(product, pricing.Candidate{Price: *price, Unit: in.Unit})
	if err != nil {
		return models.OrderItem{}, violation(pkgerrors.As(err).Message()), nil
	}
	if !verdict.Valid {
		v := violation(fmt.Sprintf("discount %s%% exceeds the allowed maximum", verdict.DiscountPercent.StringFixed(2)))
		if verdict.MinPrice != nil {
			v.MinPrice = verdict.MinPrice.StringFixed(2)
		}
		return models.OrderItem{}, v, nil
	}

	return models.OrderItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    in.Quantity,
		Unit:        in.Unit,
		UnitLabel:   pricing.UnitLabel(product, in.Unit),
		UnitPrice:   *price,
	}, nil, nil
}

// persist saves the order first; a failed client status update is logged
// because the order itself is already safe on the device.
func (s *service) persist(ctx context.Context, order models.Order, client models.Client, status enums.ClientStatus) error {
	if err := s.store.SaveOrder(ctx, order); err != nil {
		return err
	}
	client.Status = status
	if err := s.store.SaveClient(ctx, client); err != nil {
		ctx = s.logg.WithOrderID(ctx, order.ID)
		s.logg.Error(s.logg.WithField(ctx, "client_id", client.ID.String()), "failed to update client visit status", err)
	}
	return nil
}

func requireVisit(repID string, customerID uuid.UUID) error {
	if strings.TrimSpace(repID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "rep id is required").WithDetails(map[string]any{"field": "rep_id"})
	}
	if customerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id is required").WithDetails(map[string]any{"field": "customer_id"})
	}
	return nil
}
