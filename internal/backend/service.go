// Package backend is a reference implementation of the central data service.
// It serves reference data from a fixture and accepts transmitted orders.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldsync/internal/remote"
	"github.com/angelmondragon/fieldsync/pkg/auth"
	"github.com/angelmondragon/fieldsync/pkg/config"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/idempotency"
	"github.com/angelmondragon/fieldsync/pkg/logger"
	"github.com/angelmondragon/fieldsync/pkg/security"
)

const idempotencyScope = "orders"

var errInvalidCredentials = pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid rep code or password")

// Service is the surface the HTTP controllers depend on.
type Service interface {
	Login(ctx context.Context, req remote.LoginRequest) (remote.Session, error)
	ClientsForRep(ctx context.Context, repID string) ([]models.Client, error)
	Products(ctx context.Context) ([]models.Product, error)
	PaymentTables(ctx context.Context) ([]models.PaymentTable, error)
	AcceptOrders(ctx context.Context, repID string, orders []models.Order) (remote.TransmitResponse, error)
}

type ServiceParams struct {
	Dataset     *Dataset
	JWT         config.JWTConfig
	Password    config.PasswordConfig
	Idempotency *idempotency.Manager
	Logger      *logger.Logger
	Now         func() time.Time
}

type service struct {
	data      *Dataset
	repByCode map[string]Rep
	customers map[uuid.UUID]string
	jwt       config.JWTConfig
	seen      *idempotency.Manager
	logg      *logger.Logger
	now       func() time.Time

	mu       sync.Mutex
	accepted []models.Order
}

func NewService(params ServiceParams) (Service, error) {
	return newService(params)
}

func newService(params ServiceParams) (*service, error) {
	if params.Dataset == nil {
		return nil, fmt.Errorf("dataset is required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if params.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	s := &service{
		data:      params.Dataset,
		repByCode: make(map[string]Rep, len(params.Dataset.Reps)),
		customers: make(map[uuid.UUID]string, len(params.Dataset.Clients)),
		jwt:       params.JWT,
		seen:      params.Idempotency,
		logg:      params.Logger,
		now:       now,
	}
	for _, rep := range params.Dataset.Reps {
		if rep.PasswordHash == "" {
			hash, err := security.HashPassword(rep.Password, params.Password)
			if err != nil {
				return nil, fmt.Errorf("hash password for rep %s: %w", rep.Code, err)
			}
			rep.PasswordHash = hash
		}
		rep.Password = ""
		s.repByCode[rep.Code] = rep
	}
	for _, c := range params.Dataset.Clients {
		s.customers[c.ID] = c.SalesRepID
	}
	return s, nil
}

func (s *service) Login(ctx context.Context, req remote.LoginRequest) (remote.Session, error) {
	code := strings.TrimSpace(req.RepCode)
	rep, ok := s.repByCode[code]
	if !ok {
		return remote.Session{}, errInvalidCredentials
	}
	match, err := security.VerifyPassword(req.Password, rep.PasswordHash)
	if err != nil {
		return remote.Session{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !match {
		s.logg.Warn(s.logg.WithField(ctx, "rep_code", code), "login rejected")
		return remote.Session{}, errInvalidCredentials
	}

	now := s.now()
	token, err := auth.MintAccessToken(s.jwt, now, auth.AccessTokenPayload{
		RepID:   rep.ID,
		RepCode: rep.Code,
		Name:    rep.Name,
	})
	if err != nil {
		return remote.Session{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}
	s.logg.Info(s.logg.WithRepID(ctx, rep.ID), "rep logged in")
	return remote.Session{
		Token:     token,
		RepID:     rep.ID,
		RepCode:   rep.Code,
		Name:      rep.Name,
		ExpiresAt: now.Add(time.Duration(s.jwt.ExpirationMinutes) * time.Minute),
	}, nil
}

// ClientsForRep returns the clients assigned to repID, including inactive ones.
func (s *service) ClientsForRep(ctx context.Context, repID string) ([]models.Client, error) {
	if strings.TrimSpace(repID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rep id is required")
	}
	out := make([]models.Client, 0)
	for _, c := range s.data.Clients {
		if c.SalesRepID == repID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *service) Products(ctx context.Context) ([]models.Product, error) {
	return append([]models.Product(nil), s.data.Products...), nil
}

func (s *service) PaymentTables(ctx context.Context) ([]models.PaymentTable, error) {
	return append([]models.PaymentTable(nil), s.data.PaymentTables...), nil
}

// AcceptOrders records every valid order once. Orders seen before are
// reported as duplicate so a device retry after a lost response succeeds.
func (s *service) AcceptOrders(ctx context.Context, repID string, orders []models.Order) (remote.TransmitResponse, error) {
	ctx = s.logg.WithRepID(ctx, repID)
	resp := remote.TransmitResponse{Success: true, Results: make([]remote.OrderResult, 0, len(orders))}

	for _, order := range orders {
		if reason := s.rejectReason(repID, order); reason != "" {
			resp.Results = append(resp.Results, remote.OrderResult{OrderID: order.ID, Status: remote.ResultRejected, Message: reason})
			continue
		}

		seen, err := s.seen.CheckAndMark(ctx, idempotencyScope, order.ID)
		if err != nil {
			return remote.TransmitResponse{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check order idempotency")
		}
		if seen {
			resp.Results = append(resp.Results, remote.OrderResult{OrderID: order.ID, Status: remote.ResultDuplicate})
			continue
		}

		s.mu.Lock()
		s.accepted = append(s.accepted, order)
		s.mu.Unlock()
		resp.Results = append(resp.Results, remote.OrderResult{OrderID: order.ID, Status: remote.ResultAccepted})
	}

	s.logg.Info(s.logg.WithField(ctx, "orders", len(orders)), "order batch processed")
	return resp, nil
}

func (s *service) rejectReason(repID string, order models.Order) string {
	switch {
	case !strings.HasPrefix(order.ID, models.OrderIDPrefix) && !strings.HasPrefix(order.ID, models.NegationIDPrefix):
		return "order id has an unknown prefix"
	case order.SalesRepID != repID:
		return "order belongs to another rep"
	}
	owner, known := s.customers[order.CustomerID]
	switch {
	case !known:
		return "unknown customer"
	case owner != repID:
		return "customer is not assigned to this rep"
	case !order.IsNegation() && len(order.Items) == 0:
		return "order has no items"
	case order.IsNegation() && (order.Reason == nil || strings.TrimSpace(*order.Reason) == ""):
		return "negation has no reason"
	}
	return ""
}

// Accepted returns a snapshot of every order accepted so far.
func (s *service) Accepted() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Order(nil), s.accepted...)
}

// IsInvalidCredentials reports whether err is the login rejection.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, errInvalidCredentials)
}
