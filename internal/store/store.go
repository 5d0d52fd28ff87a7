// Package store defines the LocalStore capability shared by every on-device
// storage engine. Engines are chosen once at startup; business logic only
// ever sees the interface.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/enums"
)

// ClientFilter narrows QueryClients. Zero values match everything.
type ClientFilter struct {
	SalesRepID string
	Status     enums.ClientStatus
	ActiveOnly bool
}

// OrderFilter narrows QueryOrders. Zero values match everything.
type OrderFilter struct {
	SalesRepID   string
	SyncStatuses []enums.SyncStatus
}

// SaveManyResult reports what a bulk save wrote after dedup-by-id.
type SaveManyResult struct {
	Saved           int
	DuplicatesFound int
}

// ReferenceData is the server-owned working set replaced by a sync.
type ReferenceData struct {
	Clients       []models.Client
	Products      []models.Product
	PaymentTables []models.PaymentTable
}

// ReplaceResult carries one SaveManyResult per collection.
type ReplaceResult struct {
	Clients       SaveManyResult
	Products      SaveManyResult
	PaymentTables SaveManyResult
}

// DuplicatesFound sums discarded duplicates across collections.
func (r ReplaceResult) DuplicatesFound() int {
	return r.Clients.DuplicatesFound + r.Products.DuplicatesFound + r.PaymentTables.DuplicatesFound
}

// ReferenceCounts is the number of stored rows per reference collection.
type ReferenceCounts struct {
	Clients       int
	Products      int
	PaymentTables int
}

// Total sums all collections.
func (c ReferenceCounts) Total() int {
	return c.Clients + c.Products + c.PaymentTables
}

// ClientStore covers client rows.
type ClientStore interface {
	GetClient(ctx context.Context, id uuid.UUID) (models.Client, error)
	ListClients(ctx context.Context) ([]models.Client, error)
	QueryClients(ctx context.Context, filter ClientFilter) ([]models.Client, error)
	SaveClient(ctx context.Context, client models.Client) error
	SaveClients(ctx context.Context, clients []models.Client) (SaveManyResult, error)
	DeleteClient(ctx context.Context, id uuid.UUID) error
}

// ProductStore covers product rows.
type ProductStore interface {
	GetProduct(ctx context.Context, id uuid.UUID) (models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	SaveProduct(ctx context.Context, product models.Product) error
	SaveProducts(ctx context.Context, products []models.Product) (SaveManyResult, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
}

// PaymentTableStore covers payment table rows.
type PaymentTableStore interface {
	GetPaymentTable(ctx context.Context, id uuid.UUID) (models.PaymentTable, error)
	ListPaymentTables(ctx context.Context) ([]models.PaymentTable, error)
	SavePaymentTable(ctx context.Context, table models.PaymentTable) error
	SavePaymentTables(ctx context.Context, tables []models.PaymentTable) (SaveManyResult, error)
	DeletePaymentTable(ctx context.Context, id uuid.UUID) error
}

// OrderStore covers locally created orders.
type OrderStore interface {
	GetOrder(ctx context.Context, id string) (models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	QueryOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error)
	SaveOrder(ctx context.Context, order models.Order) error
	DeleteOrder(ctx context.Context, id string) error
}

// LocalStore is the full persistence capability. Every method other than
// Init and Close returns a StorageUnavailable error until Init succeeds, and
// NotFound when an addressed row is absent. Writes are last-write-wins per
// primary key.
type LocalStore interface {
	ClientStore
	ProductStore
	PaymentTableStore
	OrderStore

	// Init acquires the storage handle and brings the schema up to date. It
	// is safe to call more than once.
	Init(ctx context.Context) error
	Close() error

	// ReplaceReferenceData swaps clients, products and payment tables for
	// the provided sets in one atomic step. Orders are untouched.
	ReplaceReferenceData(ctx context.Context, data ReferenceData) (ReplaceResult, error)
	// ClearReferenceData removes every client, product and payment table.
	ClearReferenceData(ctx context.Context) error
	CountReferenceData(ctx context.Context) (ReferenceCounts, error)

	SchemaVersion(ctx context.Context) (int, error)
	// LastSyncAt returns nil when no full sync has completed yet.
	LastSyncAt(ctx context.Context) (*time.Time, error)
	SetLastSyncAt(ctx context.Context, at time.Time) error
}
