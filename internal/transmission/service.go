// Package transmission moves locally created orders to the remote service
// and owns every sync status change after creation.
package transmission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/fieldsync/internal/audit"
	"github.com/angelmondragon/fieldsync/internal/remote"
	"github.com/angelmondragon/fieldsync/internal/store"
	"github.com/angelmondragon/fieldsync/pkg/auth"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/logger"
	"github.com/angelmondragon/fieldsync/pkg/metrics"
)

const defaultBatchTimeout = time.Minute

// Session is what the caller knows about connectivity and sign-in.
type Session struct {
	Credential string
	Online     bool
}

// Buckets groups a rep's orders by sync status.
type Buckets struct {
	Pending     []models.Order
	Transmitted []models.Order
	Error       []models.Order
	Synced      []models.Order
}

// OrderOutcome is the post-transmission state of one order.
type OrderOutcome struct {
	OrderID    string
	SyncStatus enums.SyncStatus
	Message    string
}

// TransmitReport summarises one TransmitAll call.
type TransmitReport struct {
	SuccessCount int
	ErrorCount   int
	Results      []OrderOutcome
}

// ServiceParams configure the transmission engine.
type ServiceParams struct {
	Store        store.LocalStore
	Remote       remote.Service
	Audit        audit.Sink
	Metrics      *metrics.TransmitMetrics
	Logger       *logger.Logger
	BatchTimeout time.Duration
	Now          func() time.Time
}

// Service is the single writer of order sync status.
type Service struct {
	store        store.LocalStore
	remote       remote.Service
	audit        audit.Sink
	metrics      *metrics.TransmitMetrics
	logg         *logger.Logger
	batchTimeout time.Duration
	now          func() time.Time

	mu sync.Mutex
}

// NewService builds the transmission engine.
func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("local store required")
	}
	if params.Remote == nil {
		return nil, fmt.Errorf("remote service required")
	}
	sink := params.Audit
	if sink == nil {
		sink = audit.Nop{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	timeout := params.BatchTimeout
	if timeout <= 0 {
		timeout = defaultBatchTimeout
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:        params.Store,
		remote:       params.Remote,
		audit:        sink,
		metrics:      params.Metrics,
		logg:         logg,
		batchTimeout: timeout,
		now:          now,
	}, nil
}

// LoadOrders reads the rep's orders grouped by status. It never writes.
func (s *Service) LoadOrders(ctx context.Context, repID string) (Buckets, error) {
	orders, err := s.store.QueryOrders(ctx, store.OrderFilter{SalesRepID: repID})
	if err != nil {
		return Buckets{}, err
	}
	var b Buckets
	for _, o := range orders {
		switch o.SyncStatus {
		case enums.SyncStatusPendingSync:
			b.Pending = append(b.Pending, o)
		case enums.SyncStatusTransmitted:
			b.Transmitted = append(b.Transmitted, o)
		case enums.SyncStatusError:
			b.Error = append(b.Error, o)
		case enums.SyncStatusSynced:
			b.Synced = append(b.Synced, o)
		}
	}
	return b, nil
}

// TransmitAll sends every pending order in one batch. orders only names the
// candidates: each is re-read and sent only if the store still holds it as
// pending, so a stale list cannot resend a transmitted order. A failed call
// moves all of them to error; a successful one moves each to transmitted
// unless the server rejected it individually.
func (s *Service) TransmitAll(ctx context.Context, orders []models.Order, sess Session) (TransmitReport, error) {
	ctx = s.logg.WithOperation(ctx, "transmission.transmit_all")

	s.mu.Lock()
	defer s.mu.Unlock()

	// Local reads and bookkeeping ignore cancellation; the batch call
	// reports it and every order it covered moves to error.
	writeCtx := context.WithoutCancel(ctx)

	pending, err := s.storedPending(writeCtx, orders)
	if err != nil {
		return TransmitReport{}, err
	}
	if err := s.checkPreconditions(pending, sess); err != nil {
		return TransmitReport{}, err
	}

	start := s.now()
	callCtx, cancel := context.WithTimeout(ctx, s.batchTimeout)
	resp, callErr := s.remote.TransmitOrders(callCtx, pending, sess.Credential)
	cancel()
	s.metrics.ObserveDuration(s.now().Sub(start))

	report := TransmitReport{Results: make([]OrderOutcome, 0, len(pending))}
	var writeErr error

	if callErr != nil {
		reason := ClassifyError(callErr)
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{"orders": len(pending), "reason": reason.Kind}), "batch transmission failed", callErr)
		for _, o := range pending {
			out, err := s.markError(writeCtx, o.ID, reason.Message)
			writeErr = multierr.Append(writeErr, err)
			report.add(out)
		}
		s.recordMetrics(report)
		return report, s.finish(ctx, callErr, writeErr)
	}

	for _, o := range pending {
		var (
			out OrderOutcome
			err error
		)
		if res, ok := resp.ResultFor(o.ID); ok && !res.Status.Succeeded() {
			msg := strings.TrimSpace(res.Message)
			if msg == "" {
				msg = "rejected by server"
			}
			out, err = s.markError(writeCtx, o.ID, msg)
		} else {
			out, err = s.markTransmitted(writeCtx, o.ID)
		}
		writeErr = multierr.Append(writeErr, err)
		report.add(out)
	}
	s.recordMetrics(report)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"transmitted": report.SuccessCount,
		"errors":      report.ErrorCount,
	}), "batch transmission completed")
	return report, s.finish(ctx, nil, writeErr)
}

func (r *TransmitReport) add(out OrderOutcome) {
	r.Results = append(r.Results, out)
	if out.SyncStatus == enums.SyncStatusTransmitted {
		r.SuccessCount++
	} else {
		r.ErrorCount++
	}
}

func (s *Service) recordMetrics(r TransmitReport) {
	s.metrics.AddOrders(enums.SyncStatusTransmitted.String(), r.SuccessCount)
	s.metrics.AddOrders(enums.SyncStatusError.String(), r.ErrorCount)
}

func (s *Service) finish(ctx context.Context, callErr, writeErr error) error {
	if writeErr != nil {
		s.logg.Error(ctx, "failed to record transmission outcome", writeErr)
	}
	if callErr != nil {
		return callErr
	}
	if writeErr != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, writeErr, "record transmission outcome")
	}
	return nil
}

// storedPending returns the stored copy of each candidate that is still
// pending. Orders deleted since the caller listed them are skipped.
func (s *Service) storedPending(ctx context.Context, candidates []models.Order) ([]models.Order, error) {
	pending := make([]models.Order, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		o, err := s.store.GetOrder(ctx, c.ID)
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if o.SyncStatus == enums.SyncStatusPendingSync {
			pending = append(pending, o)
		}
	}
	return pending, nil
}

func (s *Service) checkPreconditions(pending []models.Order, sess Session) error {
	fail := func(name, msg string) error {
		return pkgerrors.New(pkgerrors.CodePreconditionFailed, msg).
			WithDetails(map[string]any{"precondition": name})
	}
	switch {
	case len(pending) == 0:
		return fail("pending_orders", "no orders waiting to be transmitted")
	case strings.TrimSpace(sess.Credential) == "":
		return fail("credential", "no session credential; sign in first")
	case !sess.Online:
		return fail("online", "device is offline")
	}
	if err := auth.CheckExpiry(sess.Credential, s.now()); errors.Is(err, auth.ErrTokenExpired) {
		return fail("session_expired", "session expired; sign in again")
	}
	return nil
}

// markTransmitted stores the transition. If the write fails the order is
// moved to error instead so it does not look pending forever.
func (s *Service) markTransmitted(ctx context.Context, id string) (OrderOutcome, error) {
	now := s.now().UTC()
	err := s.transition(ctx, id, enums.SyncStatusTransmitted, func(o *models.Order) {
		o.TransmittedAt = &now
		o.LastError = nil
	})
	if err != nil {
		out, markErr := s.markError(ctx, id, "transmitted but not recorded locally: "+err.Error())
		return out, multierr.Append(err, markErr)
	}
	s.audit.Record(ctx, audit.Event{Kind: enums.AuditOrderTransmitted, OrderID: id, OccurredAt: now})
	return OrderOutcome{OrderID: id, SyncStatus: enums.SyncStatusTransmitted}, nil
}

func (s *Service) markError(ctx context.Context, id, msg string) (OrderOutcome, error) {
	out := OrderOutcome{OrderID: id, SyncStatus: enums.SyncStatusError, Message: msg}
	err := s.transition(ctx, id, enums.SyncStatusError, func(o *models.Order) {
		o.LastError = &msg
	})
	if err != nil {
		return out, err
	}
	s.audit.Record(ctx, audit.Event{Kind: enums.AuditOrderFailed, OrderID: id, Metadata: map[string]any{"reason": msg}})
	return out, nil
}

// transition reloads the order and applies a legal status change.
func (s *Service) transition(ctx context.Context, id string, next enums.SyncStatus, mutate func(*models.Order)) error {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if !o.SyncStatus.CanTransitionTo(next) {
		return pkgerrors.New(pkgerrors.CodePreconditionFailed, "illegal sync status change").
			WithDetails(map[string]any{"order_id": id, "from": o.SyncStatus.String(), "to": next.String()})
	}
	o.SyncStatus = next
	if mutate != nil {
		mutate(&o)
	}
	return s.store.SaveOrder(ctx, o)
}

// RetryOne moves one errored order back to pending_sync without contacting
// the server.
func (s *Service) RetryOne(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retry(ctx, orderID)
}

// RetryAllErrors requeues every errored order of the rep and returns how
// many were moved.
func (s *Service) RetryAllErrors(ctx context.Context, repID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders, err := s.store.QueryOrders(ctx, store.OrderFilter{
		SalesRepID:   repID,
		SyncStatuses: []enums.SyncStatus{enums.SyncStatusError},
	})
	if err != nil {
		return 0, err
	}
	var (
		moved int
		errs  error
	)
	for _, o := range orders {
		if err := s.retry(ctx, o.ID); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		moved++
	}
	return moved, errs
}

func (s *Service) retry(ctx context.Context, orderID string) error {
	err := s.transition(ctx, orderID, enums.SyncStatusPendingSync, func(o *models.Order) {
		o.LastError = nil
	})
	if err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Event{Kind: enums.AuditOrderRetried, OrderID: orderID})
	return nil
}

// DeleteTransmitted removes an order the server already holds. Any other
// status is refused and the order is left as is.
func (s *Service) DeleteTransmitted(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.SyncStatus != enums.SyncStatusTransmitted {
		return pkgerrors.New(pkgerrors.CodePreconditionFailed, "only transmitted orders can be deleted").
			WithDetails(map[string]any{"order_id": orderID, "sync_status": o.SyncStatus.String()})
	}
	if err := s.store.DeleteOrder(ctx, orderID); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Event{Kind: enums.AuditOrderDeleted, OrderID: orderID})
	return nil
}

// Reconcile marks transmitted orders the server acknowledged as synced.
// Ids that are missing or in another state are skipped.
func (s *Service) Reconcile(ctx context.Context, orderIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		synced int
		errs   error
	)
	for _, id := range orderIDs {
		o, err := s.store.GetOrder(ctx, id)
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			continue
		}
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if o.SyncStatus != enums.SyncStatusTransmitted {
			continue
		}
		o.SyncStatus = enums.SyncStatusSynced
		if err := s.store.SaveOrder(ctx, o); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		s.audit.Record(ctx, audit.Event{Kind: enums.AuditOrderSynced, OrderID: id})
		synced++
	}
	return synced, errs
}
