// Package storetest holds the behaviour every LocalStore engine must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fieldsync/internal/store"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
	dbtypes "github.com/angelmondragon/fieldsync/pkg/db/types"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
)

// Factory returns a fresh, uninitialised store.
type Factory func(t *testing.T) store.LocalStore

// Run executes the conformance suite against the engine built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("operations before init are unavailable", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ListClients(context.Background())
		require.Error(t, err)
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStorageUnavailable))
	})

	t.Run("init is idempotent and stamps the schema version", func(t *testing.T) {
		s := initialised(t, newStore)
		require.NoError(t, s.Init(context.Background()))
		v, err := s.SchemaVersion(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, v)
	})

	t.Run("client crud and not found", func(t *testing.T) {
		ctx := context.Background()
		s := initialised(t, newStore)

		c := Client("rep-1", "Mercado Sol")
		seq := 2
		c.VisitSequence = &seq
		c.VisitDays, _ = dbtypes.NewWeekdayList("fri", "mon")
		require.NoError(t, s.SaveClient(ctx, c))

		got, err := s.GetClient(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Mercado Sol", got.Name)
		assert.Equal(t, "mon,fri", got.VisitDays.String())
		require.NotNil(t, got.VisitSequence)
		assert.Equal(t, 2, *got.VisitSequence)

		c.Name = "Mercado Sol Nascente"
		require.NoError(t, s.SaveClient(ctx, c))
		got, err = s.GetClient(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Mercado Sol Nascente", got.Name, "last write wins")

		require.NoError(t, s.DeleteClient(ctx, c.ID))
		_, err = s.GetClient(ctx, c.ID)
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
		err = s.DeleteClient(ctx, c.ID)
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	})

	t.Run("bulk save dedups by id", func(t *testing.T) {
		ctx := context.Background()
		s := initialised(t, newStore)

		a := Client("rep-1", "A")
		b := Client("rep-1", "B")
		a2 := a
		a2.Name = "A latest"
		input := []models.Client{a, b, a2, b}

		res, err := s.SaveClients(ctx, input)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Saved)
		assert.Equal(t, 2, res.DuplicatesFound)

		rows, err := s.ListClients(ctx)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
		assert.Equal(t, len(input)-len(rows), res.DuplicatesFound)

		got, err := s.GetClient(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "A latest", got.Name)
	})

	t.Run("query clients by rep status and active flag", func(t *testing.T) {
		ctx := context.Background()
		s := initialised(t, newStore)

		mine := Client("rep-1", "Mine")
		inactive := Client("rep-1", "Inactive")
		inactive.Active = false
		visited := Client("rep-1", "Visited")
		visited.Status = enums.ClientStatusPositivado
		other := Client("rep-2", "Other")
		_, err := s.SaveClients(ctx, []models.Client{mine, inactive, visited, other})
		require.NoError(t, err)

		rows, err := s.QueryClients(ctx, store.ClientFilter{SalesRepID: "rep-1", ActiveOnly: true})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"Mine", "Visited"}, clientNames(rows))

		rows, err = s.QueryClients(ctx, store.ClientFilter{Status: enums.ClientStatusPending})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"Mine", "Inactive", "Other"}, clientNames(rows))
	})

	t.Run("products and payment tables round trip", func(t *testing.T) {
		ctx := context.Background()
		s := initialised(t, newStore)

		p := Product(10, "100", "10")
		sub := "UN"
		ratio := 5
		p.SubUnit = &sub
		p.SubUnitRatio = &ratio
		res, err := s.SaveProducts(ctx, []models.Product{p, p})
		require.NoError(t, err)
		assert.Equal(t, 1, res.DuplicatesFound)

		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, got.SalePrice.Equal(decimal.RequireFromString("100")))
		require.NotNil(t, got.MaxDiscountPercent)
		assert.True(t, got.MaxDiscountPercent.Equal(decimal.NewFromInt(10)))
		assert.True(t, got.HasSubUnit())

		pt := models.PaymentTable{ID: uuid.New(), Name: "30 days", Active: true}
		require.NoError(t, s.SavePaymentTable(ctx, pt))
		tables, err := s.ListPaymentTables(ctx)
		require.NoError(t, err)
		require.Len(t, tables, 1)
		assert.Equal(t, "30 days", tables[0].Name)

		require.NoError(t, s.DeleteProduct(ctx, p.ID))
		_, err = s.GetProduct(ctx, p.ID)
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	})

	t.Run("orders query by rep and sync status", func(t *testing.T) {
		ctx := context.Background()
		s := initialised(t, newStore)

		base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		o1 := Order("ORD-1", "rep-1", enums.SyncStatusPendingSync, base)
		o2 := Order("ORD-2", "rep-1", enums.SyncStatusError, base.Add(time.Minute))
		o3 := Order("ORD-3", "rep-2", enums.SyncStatusPendingSync, base.Add(2*time.Minute))
		for _, o := range []models.Order{o3, o1, o2} {
			require.NoError(t, s.SaveOrder(ctx, o))
		}

		rows, err := s.QueryOrders(ctx, store.OrderFilter{SalesRepID: "rep-1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"ORD-1", "ORD-2"}, orderIDs(rows))

		rows, err = s.QueryOrders(ctx, store.OrderFilter{SyncStatuses: []enums.SyncStatus{enums.SyncStatusPendingSync}})
		require.NoError(t, err)
		assert.Equal(t, []string{"ORD-1", "ORD-3"}, orderIDs(rows))

		got, err := s.GetOrder(ctx, "ORD-2")
		require.NoError(t, err)
		require.Len(t, got.Items, 1)
		assert.True(t, got.Total.Equal(decimal.RequireFromString("25.5")))
		assert.True(t, got.CreatedAt.Equal(base.Add(time.Minute)))

		require.NoError(t, s.DeleteOrder(ctx, "ORD-2"))
		_, err = s.GetOrder(ctx, "ORD-2")
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	})

	t.Run("replace and clear reference data never touch orders", func(t *testing.T) {
		ctx := context.Background()
		s := initialised(t, newStore)

		_, err := s.SaveClients(ctx, []models.Client{Client("rep-1", "Old")})
		require.NoError(t, err)
		order := Order("ORD-9", "rep-1", enums.SyncStatusTransmitted, time.Now().UTC())
		require.NoError(t, s.SaveOrder(ctx, order))

		dup := Client("rep-1", "Dup")
		res, err := s.ReplaceReferenceData(ctx, store.ReferenceData{
			Clients:       []models.Client{Client("rep-1", "New"), dup, dup},
			Products:      []models.Product{Product(1, "5", "")},
			PaymentTables: []models.PaymentTable{{ID: uuid.New(), Name: "cash", Active: true}},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Clients.Saved)
		assert.Equal(t, 1, res.DuplicatesFound())

		counts, err := s.CountReferenceData(ctx)
		require.NoError(t, err)
		assert.Equal(t, store.ReferenceCounts{Clients: 2, Products: 1, PaymentTables: 1}, counts)

		rows, err := s.ListClients(ctx)
		require.NoError(t, err)
		assert.NotContains(t, clientNames(rows), "Old")

		require.NoError(t, s.ClearReferenceData(ctx))
		counts, err = s.CountReferenceData(ctx)
		require.NoError(t, err)
		assert.Zero(t, counts.Total())

		got, err := s.GetOrder(ctx, "ORD-9")
		require.NoError(t, err)
		assert.Equal(t, enums.SyncStatusTransmitted, got.SyncStatus)
	})

	t.Run("last sync timestamp", func(t *testing.T) {
		ctx := context.Background()
		s := initialised(t, newStore)

		at, err := s.LastSyncAt(ctx)
		require.NoError(t, err)
		assert.Nil(t, at)

		now := time.Date(2026, 5, 4, 12, 30, 0, 0, time.UTC)
		require.NoError(t, s.SetLastSyncAt(ctx, now))
		require.NoError(t, s.SetLastSyncAt(ctx, now.Add(time.Hour)))
		at, err = s.LastSyncAt(ctx)
		require.NoError(t, err)
		require.NotNil(t, at)
		assert.True(t, at.Equal(now.Add(time.Hour)))
	})

	t.Run("closed store is unavailable", func(t *testing.T) {
		s := initialised(t, newStore)
		require.NoError(t, s.Close())
		_, err := s.ListOrders(context.Background())
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStorageUnavailable))
	})
}

func initialised(t *testing.T, newStore Factory) store.LocalStore {
	t.Helper()
	s := newStore(t)
	require.NoError(t, s.Init(context.Background()))
	return s
}

// Client builds an active pending client for rep.
func Client(rep, name string) models.Client {
	return models.Client{
		ID:         uuid.New(),
		Name:       name,
		Code:       1,
		Active:     true,
		SalesRepID: rep,
		Status:     enums.ClientStatusPending,
	}
}

// Product builds a product priced in its main unit. An empty maxDiscount leaves it unset.
func Product(code int, price, maxDiscount string) models.Product {
	p := models.Product{
		ID:        uuid.New(),
		Code:      code,
		Name:      "product",
		SalePrice: decimal.RequireFromString(price),
		MainUnit:  "CX",
	}
	if maxDiscount != "" {
		d := decimal.RequireFromString(maxDiscount)
		p.MaxDiscountPercent = &d
	}
	return p
}

// Order builds a single-line order with total 25.5.
func Order(id, rep string, status enums.SyncStatus, createdAt time.Time) models.Order {
	item := models.OrderItem{
		ProductID:   uuid.New(),
		ProductName: "widget",
		Quantity:    decimal.NewFromInt(3),
		Unit:        enums.UnitKindMain,
		UnitPrice:   decimal.RequireFromString("8.5"),
	}
	o := models.Order{
		ID:           id,
		SalesRepID:   rep,
		CustomerID:   uuid.New(),
		CustomerName: "customer",
		Items:        dbtypes.JSONList[models.OrderItem]{item},
		Status:       enums.OrderStatusPending,
		SyncStatus:   status,
		CreatedAt:    createdAt,
	}
	o.Total = o.ComputeTotal()
	return o
}

func clientNames(rows []models.Client) []string {
	out := make([]string, 0, len(rows))
	for _, c := range rows {
		out = append(out, c.Name)
	}
	return out
}

func orderIDs(rows []models.Order) []string {
	out := make([]string, 0, len(rows))
	for _, o := range rows {
		out = append(out, o.ID)
	}
	return out
}
