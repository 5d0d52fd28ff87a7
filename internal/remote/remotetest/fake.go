// Package remotetest provides an in-memory remote.Service for package tests.
package remotetest

import (
	"context"
	"sync"

	"github.com/angelmondragon/fieldsync/internal/remote"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
)

// Fake serves canned reference data and records transmissions. Any Err
// field set makes the matching call fail.
type Fake struct {
	mu sync.Mutex

	Clients       []models.Client
	Products      []models.Product
	PaymentTables []models.PaymentTable

	ClientsErr       error
	ProductsErr      error
	PaymentTablesErr error
	TransmitErr      error
	LoginErr         error

	// Results overrides per-order outcomes; unlisted orders are accepted.
	Results map[string]remote.OrderResult
	Session remote.Session

	Calls       map[string]int
	Transmitted [][]models.Order
}

var _ remote.Service = (*Fake)(nil)

func (f *Fake) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Calls == nil {
		f.Calls = map[string]int{}
	}
	f.Calls[op]++
}

// CallCount returns how many times op was invoked.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[op]
}

// TotalCalls sums every recorded call.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		n += c
	}
	return n
}

func (f *Fake) Login(_ context.Context, repCode, _ string) (remote.Session, error) {
	f.record("login")
	if f.LoginErr != nil {
		return remote.Session{}, f.LoginErr
	}
	s := f.Session
	if s.RepCode == "" {
		s.RepCode = repCode
	}
	return s, nil
}

func (f *Fake) FetchClients(ctx context.Context, _, _ string) ([]models.Client, error) {
	f.record("clients")
	if err := firstErr(ctx.Err(), f.ClientsErr); err != nil {
		return nil, err
	}
	return append([]models.Client(nil), f.Clients...), nil
}

func (f *Fake) FetchProducts(ctx context.Context, _ string) ([]models.Product, error) {
	f.record("products")
	if err := firstErr(ctx.Err(), f.ProductsErr); err != nil {
		return nil, err
	}
	return append([]models.Product(nil), f.Products...), nil
}

func (f *Fake) FetchPaymentTables(ctx context.Context, _ string) ([]models.PaymentTable, error) {
	f.record("payment_tables")
	if err := firstErr(ctx.Err(), f.PaymentTablesErr); err != nil {
		return nil, err
	}
	return append([]models.PaymentTable(nil), f.PaymentTables...), nil
}

func (f *Fake) TransmitOrders(ctx context.Context, orders []models.Order, _ string) (remote.TransmitResponse, error) {
	f.record("transmit")
	if err := firstErr(ctx.Err(), f.TransmitErr); err != nil {
		return remote.TransmitResponse{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Transmitted = append(f.Transmitted, append([]models.Order(nil), orders...))
	resp := remote.TransmitResponse{Success: true}
	for _, o := range orders {
		res, ok := f.Results[o.ID]
		if !ok {
			res = remote.OrderResult{OrderID: o.ID, Status: remote.ResultAccepted}
		}
		resp.Results = append(resp.Results, res)
	}
	return resp, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
