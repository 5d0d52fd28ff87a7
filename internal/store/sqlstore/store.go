// Package sqlstore implements store.LocalStore over gorm. It runs on sqlite
// on devices and on postgres for shared kiosk hosts.
package sqlstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fieldsync/internal/repo"
	"github.com/angelmondragon/fieldsync/internal/store"
	"github.com/angelmondragon/fieldsync/pkg/db"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	"github.com/angelmondragon/fieldsync/pkg/logger"
	"github.com/angelmondragon/fieldsync/pkg/migrate"
)

// Store is the gorm-backed LocalStore.
type Store struct {
	client *db.Client
	logg   *logger.Logger

	mu    sync.RWMutex
	ready bool
	base  repo.Base
}

var _ store.LocalStore = (*Store)(nil)

// New wraps an opened client. Nothing is touched until Init.
func New(client *db.Client, logg *logger.Logger) *Store {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Store{client: client, logg: logg}
}

// Init pings the database and applies pending migrations. Repeated calls
// after a success are no-ops.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if s.client == nil || s.client.DB() == nil {
		return store.ErrNotInitialized
	}
	if err := s.client.Ping(ctx); err != nil {
		return store.Unavailable(err, "ping local database")
	}
	if _, err := migrate.Ensure(ctx, s.client, s.logg); err != nil {
		return err
	}
	s.base = repo.NewBase(s.client.DB())
	s.ready = true
	return nil
}

// Close releases the connection. The store must be re-initialised to be used again.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil
	}
	s.ready = false
	return s.client.Close()
}

func (s *Store) conn(ctx context.Context) (*gorm.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil, store.ErrNotInitialized
	}
	return s.base.DB(ctx), nil
}

func (s *Store) withTx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	if _, err := s.conn(ctx); err != nil {
		return err
	}
	if err := s.client.WithTx(ctx, fn); err != nil {
		return store.Unavailable(err, op)
	}
	return nil
}

func get[T any](ctx context.Context, s *Store, entity string, id any, idText string) (T, error) {
	var zero T
	conn, err := s.conn(ctx)
	if err != nil {
		return zero, err
	}
	row, err := repo.FindByID[T](conn, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return zero, store.NotFound(entity, idText)
	}
	if err != nil {
		return zero, store.Unavailable(err, "get "+entity)
	}
	return row, nil
}

func list[T any](ctx context.Context, s *Store, entity, order string) ([]T, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []T
	if err := conn.Order(order).Find(&rows).Error; err != nil {
		return nil, store.Unavailable(err, "list "+entity)
	}
	return rows, nil
}

func save[T any](ctx context.Context, s *Store, entity string, row T) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if err := repo.Upsert(conn, []T{row}, 1); err != nil {
		return store.Unavailable(err, "save "+entity)
	}
	return nil
}

func saveMany[T any, K comparable](ctx context.Context, s *Store, entity string, rows []T, key func(T) K) (store.SaveManyResult, error) {
	unique, dups := store.DedupByID(rows, key)
	res := store.SaveManyResult{Saved: len(unique), DuplicatesFound: dups}
	err := s.withTx(ctx, "save "+entity, func(tx *gorm.DB) error {
		return repo.Upsert(tx, unique, 0)
	})
	if err != nil {
		return store.SaveManyResult{}, err
	}
	if dups > 0 {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"entity": entity, "duplicates": dups}), "duplicate ids discarded on bulk save")
	}
	return res, nil
}

func remove[T any](ctx context.Context, s *Store, entity string, id any, idText string) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	existed, err := repo.DeleteByID[T](conn, id)
	if err != nil {
		return store.Unavailable(err, "delete "+entity)
	}
	if !existed {
		return store.NotFound(entity, idText)
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (models.Client, error) {
	return get[models.Client](ctx, s, "client", id, id.String())
}

func (s *Store) ListClients(ctx context.Context) ([]models.Client, error) {
	return list[models.Client](ctx, s, "clients", "visit_sequence, name")
}

func (s *Store) QueryClients(ctx context.Context, f store.ClientFilter) ([]models.Client, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	q := conn.Model(&models.Client{})
	if f.SalesRepID != "" {
		q = q.Where("sales_rep_id = ?", f.SalesRepID)
	}
	if f.Status != "" {
		// Rows written before step 2 have a NULL status, which reads as pending.
		if f.Status == enums.ClientStatusPending {
			q = q.Where("(status = ? OR status IS NULL OR status = '')", f.Status)
		} else {
			q = q.Where("status = ?", f.Status)
		}
	}
	if f.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	var rows []models.Client
	if err := q.Order("visit_sequence, name").Find(&rows).Error; err != nil {
		return nil, store.Unavailable(err, "query clients")
	}
	return rows, nil
}

func (s *Store) SaveClient(ctx context.Context, c models.Client) error {
	return save(ctx, s, "client", c)
}

// SaveClients upserts the batch after dedup-by-id.
func (s *Store) SaveClients(ctx context.Context, rows []models.Client) (store.SaveManyResult, error) {
	return saveMany(ctx, s, "clients", rows, store.ClientKey)
}

func (s *Store) DeleteClient(ctx context.Context, id uuid.UUID) error {
	return remove[models.Client](ctx, s, "client", id, id.String())
}

func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (models.Product, error) {
	return get[models.Product](ctx, s, "product", id, id.String())
}

func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	return list[models.Product](ctx, s, "products", "code")
}

func (s *Store) SaveProduct(ctx context.Context, p models.Product) error {
	return save(ctx, s, "product", p)
}

func (s *Store) SaveProducts(ctx context.Context, rows []models.Product) (store.SaveManyResult, error) {
	return saveMany(ctx, s, "products", rows, store.ProductKey)
}

func (s *Store) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return remove[models.Product](ctx, s, "product", id, id.String())
}

func (s *Store) GetPaymentTable(ctx context.Context, id uuid.UUID) (models.PaymentTable, error) {
	return get[models.PaymentTable](ctx, s, "payment table", id, id.String())
}

func (s *Store) ListPaymentTables(ctx context.Context) ([]models.PaymentTable, error) {
	return list[models.PaymentTable](ctx, s, "payment tables", "name")
}

func (s *Store) SavePaymentTable(ctx context.Context, p models.PaymentTable) error {
	return save(ctx, s, "payment table", p)
}

func (s *Store) SavePaymentTables(ctx context.Context, rows []models.PaymentTable) (store.SaveManyResult, error) {
	return saveMany(ctx, s, "payment tables", rows, store.PaymentTableKey)
}

func (s *Store) DeletePaymentTable(ctx context.Context, id uuid.UUID) error {
	return remove[models.PaymentTable](ctx, s, "payment table", id, id.String())
}

func (s *Store) GetOrder(ctx context.Context, id string) (models.Order, error) {
	return get[models.Order](ctx, s, "order", id, id)
}

func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	return list[models.Order](ctx, s, "orders", "created_at, id")
}

func (s *Store) QueryOrders(ctx context.Context, f store.OrderFilter) ([]models.Order, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	q := conn.Model(&models.Order{})
	if f.SalesRepID != "" {
		q = q.Where("sales_rep_id = ?", f.SalesRepID)
	}
	if len(f.SyncStatuses) > 0 {
		q = q.Where("sync_status IN ?", f.SyncStatuses)
	}
	var rows []models.Order
	if err := q.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, store.Unavailable(err, "query orders")
	}
	return rows, nil
}

func (s *Store) SaveOrder(ctx context.Context, o models.Order) error {
	return save(ctx, s, "order", o)
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	return remove[models.Order](ctx, s, "order", id, id)
}

// ReplaceReferenceData clears and repopulates the three reference
// collections in a single transaction.
func (s *Store) ReplaceReferenceData(ctx context.Context, data store.ReferenceData) (store.ReplaceResult, error) {
	unique, res := store.DedupReferenceData(data)
	err := s.withTx(ctx, "replace reference data", func(tx *gorm.DB) error {
		if err := clearReference(tx); err != nil {
			return err
		}
		if err := repo.Upsert(tx, unique.Clients, 0); err != nil {
			return err
		}
		if err := repo.Upsert(tx, unique.Products, 0); err != nil {
			return err
		}
		return repo.Upsert(tx, unique.PaymentTables, 0)
	})
	if err != nil {
		return store.ReplaceResult{}, err
	}
	return res, nil
}

func (s *Store) ClearReferenceData(ctx context.Context) error {
	return s.withTx(ctx, "clear reference data", clearReference)
}

func clearReference(tx *gorm.DB) error {
	if err := repo.DeleteAll[models.Client](tx); err != nil {
		return err
	}
	if err := repo.DeleteAll[models.Product](tx); err != nil {
		return err
	}
	return repo.DeleteAll[models.PaymentTable](tx)
}

func (s *Store) CountReferenceData(ctx context.Context) (store.ReferenceCounts, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return store.ReferenceCounts{}, err
	}
	var out store.ReferenceCounts
	if out.Clients, err = repo.Count[models.Client](conn); err != nil {
		return store.ReferenceCounts{}, store.Unavailable(err, "count clients")
	}
	if out.Products, err = repo.Count[models.Product](conn); err != nil {
		return store.ReferenceCounts{}, store.Unavailable(err, "count products")
	}
	if out.PaymentTables, err = repo.Count[models.PaymentTable](conn); err != nil {
		return store.ReferenceCounts{}, store.Unavailable(err, "count payment tables")
	}
	return out, nil
}

func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if _, err := s.conn(ctx); err != nil {
		return 0, err
	}
	m, err := migrate.NewManager(s.client, s.logg)
	if err != nil {
		return 0, err
	}
	return m.CurrentVersion(ctx)
}

func (s *Store) LastSyncAt(ctx context.Context) (*time.Time, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var row models.Meta
	err = conn.Where("key = ?", models.MetaKeyLastSyncAt).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Unavailable(err, "read last sync")
	}
	at, err := time.Parse(time.RFC3339Nano, row.Value)
	if err != nil {
		return nil, store.Unavailable(err, "parse last sync")
	}
	return &at, nil
}

func (s *Store) SetLastSyncAt(ctx context.Context, at time.Time) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	row := models.Meta{Key: models.MetaKeyLastSyncAt, Value: at.UTC().Format(time.RFC3339Nano)}
	err = conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error
	if err != nil {
		return store.Unavailable(err, "write last sync")
	}
	return nil
}
