// Package kvstore implements store.LocalStore on redis hashes. Each
// collection is one hash keyed by entity id holding the JSON encoded row.
// Reference collections live under a generation suffix so a full replace
// becomes visible with a single pointer write.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldsync/internal/store"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/logger"
	"github.com/angelmondragon/fieldsync/pkg/migrate"
	"github.com/angelmondragon/fieldsync/pkg/redis"
)

const (
	colClients       = "clients"
	colProducts      = "products"
	colPaymentTables = "payment_tables"
	colOrders        = "orders"
	colMeta          = "meta"

	fieldRefGen = "ref_gen"
)

// Store is the redis-backed LocalStore.
type Store struct {
	kv   redis.HashStore
	logg *logger.Logger

	mu    sync.RWMutex
	ready bool
	gen   string
}

var _ store.LocalStore = (*Store)(nil)

func New(kv redis.HashStore, logg *logger.Logger) *Store {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Store{kv: kv, logg: logg}
}

// Init verifies the connection, loads the reference generation pointer and
// stamps the data-format version. The version only ever moves forward.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if s.kv == nil {
		return store.ErrNotInitialized
	}
	if err := s.kv.Ping(ctx); err != nil {
		return store.Unavailable(err, "ping redis")
	}

	meta := s.kv.CollectionKey(colMeta)
	gen, err := s.kv.HGet(ctx, meta, fieldRefGen)
	switch {
	case errors.Is(err, redis.Nil):
		gen = uuid.NewString()
		if err := s.kv.HSet(ctx, meta, map[string]string{fieldRefGen: gen}); err != nil {
			return store.Unavailable(err, "write reference generation")
		}
	case err != nil:
		return store.Unavailable(err, "read reference generation")
	}

	current, err := s.readVersion(ctx)
	if err != nil {
		return err
	}
	if target := migrate.LatestVersion(); current < target {
		if err := s.kv.HSet(ctx, meta, map[string]string{models.MetaKeySchemaVersion: strconv.Itoa(target)}); err != nil {
			return store.Unavailable(err, "write schema version")
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"from_version": current, "to_version": target}), "key/value store format stamped")
	}

	s.gen = gen
	s.ready = true
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	return nil
}

func (s *Store) readVersion(ctx context.Context) (int, error) {
	raw, err := s.kv.HGet(ctx, s.kv.CollectionKey(colMeta), models.MetaKeySchemaVersion)
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, store.Unavailable(err, "read schema version")
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, store.Unavailable(err, "parse schema version")
	}
	return v, nil
}

// key resolves the hash key for a collection, applying the current
// generation to reference collections.
func (s *Store) key(collection string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return "", store.ErrNotInitialized
	}
	if collection == colOrders || collection == colMeta {
		return s.kv.CollectionKey(collection), nil
	}
	return s.kv.CollectionKey(collection, s.gen), nil
}

func get[T any](ctx context.Context, s *Store, collection, entity, id string) (T, error) {
	var zero T
	key, err := s.key(collection)
	if err != nil {
		return zero, err
	}
	raw, err := s.kv.HGet(ctx, key, id)
	if errors.Is(err, redis.Nil) {
		return zero, store.NotFound(entity, id)
	}
	if err != nil {
		return zero, store.Unavailable(err, "get "+entity)
	}
	var row T
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		return zero, store.Unavailable(err, "decode "+entity)
	}
	return row, nil
}

func list[T any](ctx context.Context, s *Store, collection string) ([]T, error) {
	key, err := s.key(collection)
	if err != nil {
		return nil, err
	}
	all, err := s.kv.HGetAll(ctx, key)
	if err != nil {
		return nil, store.Unavailable(err, "list "+collection)
	}
	rows := make([]T, 0, len(all))
	for _, raw := range all {
		var row T
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			return nil, store.Unavailable(err, "decode "+collection)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func encode[T any, K comparable](rows []T, key func(T) K) (map[string]string, error) {
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			return nil, err
		}
		out[idString(key(row))] = string(raw)
	}
	return out, nil
}

func idString(k any) string {
	switch v := k.(type) {
	case string:
		return v
	case uuid.UUID:
		return v.String()
	}
	return ""
}

func saveMany[T any, K comparable](ctx context.Context, s *Store, collection string, rows []T, key func(T) K) (store.SaveManyResult, error) {
	hkey, err := s.key(collection)
	if err != nil {
		return store.SaveManyResult{}, err
	}
	unique, dups := store.DedupByID(rows, key)
	values, err := encode(unique, key)
	if err != nil {
		return store.SaveManyResult{}, store.Unavailable(err, "encode "+collection)
	}
	if err := s.kv.HSet(ctx, hkey, values); err != nil {
		return store.SaveManyResult{}, store.Unavailable(err, "save "+collection)
	}
	if dups > 0 {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"entity": collection, "duplicates": dups}), "duplicate ids discarded on bulk save")
	}
	return store.SaveManyResult{Saved: len(unique), DuplicatesFound: dups}, nil
}

func remove(ctx context.Context, s *Store, collection, entity, id string) error {
	key, err := s.key(collection)
	if err != nil {
		return err
	}
	if _, err := s.kv.HGet(ctx, key, id); errors.Is(err, redis.Nil) {
		return store.NotFound(entity, id)
	} else if err != nil {
		return store.Unavailable(err, "delete "+entity)
	}
	if err := s.kv.HDel(ctx, key, id); err != nil {
		return store.Unavailable(err, "delete "+entity)
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (models.Client, error) {
	return get[models.Client](ctx, s, colClients, "client", id.String())
}

func (s *Store) ListClients(ctx context.Context) ([]models.Client, error) {
	rows, err := list[models.Client](ctx, s, colClients)
	sortClients(rows)
	return rows, err
}

func (s *Store) QueryClients(ctx context.Context, f store.ClientFilter) ([]models.Client, error) {
	rows, err := s.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, c := range rows {
		if store.MatchClient(c, f) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) SaveClient(ctx context.Context, c models.Client) error {
	_, err := saveMany(ctx, s, colClients, []models.Client{c}, store.ClientKey)
	return err
}

func (s *Store) SaveClients(ctx context.Context, rows []models.Client) (store.SaveManyResult, error) {
	return saveMany(ctx, s, colClients, rows, store.ClientKey)
}

func (s *Store) DeleteClient(ctx context.Context, id uuid.UUID) error {
	return remove(ctx, s, colClients, "client", id.String())
}

func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (models.Product, error) {
	return get[models.Product](ctx, s, colProducts, "product", id.String())
}

func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := list[models.Product](ctx, s, colProducts)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
	return rows, err
}

func (s *Store) SaveProduct(ctx context.Context, p models.Product) error {
	_, err := saveMany(ctx, s, colProducts, []models.Product{p}, store.ProductKey)
	return err
}

func (s *Store) SaveProducts(ctx context.Context, rows []models.Product) (store.SaveManyResult, error) {
	return saveMany(ctx, s, colProducts, rows, store.ProductKey)
}

func (s *Store) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return remove(ctx, s, colProducts, "product", id.String())
}

func (s *Store) GetPaymentTable(ctx context.Context, id uuid.UUID) (models.PaymentTable, error) {
	return get[models.PaymentTable](ctx, s, colPaymentTables, "payment table", id.String())
}

func (s *Store) ListPaymentTables(ctx context.Context) ([]models.PaymentTable, error) {
	rows, err := list[models.PaymentTable](ctx, s, colPaymentTables)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows, err
}

func (s *Store) SavePaymentTable(ctx context.Context, p models.PaymentTable) error {
	_, err := saveMany(ctx, s, colPaymentTables, []models.PaymentTable{p}, store.PaymentTableKey)
	return err
}

func (s *Store) SavePaymentTables(ctx context.Context, rows []models.PaymentTable) (store.SaveManyResult, error) {
	return saveMany(ctx, s, colPaymentTables, rows, store.PaymentTableKey)
}

func (s *Store) DeletePaymentTable(ctx context.Context, id uuid.UUID) error {
	return remove(ctx, s, colPaymentTables, "payment table", id.String())
}

func (s *Store) GetOrder(ctx context.Context, id string) (models.Order, error) {
	return get[models.Order](ctx, s, colOrders, "order", id)
}

func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	rows, err := list[models.Order](ctx, s, colOrders)
	sortOrders(rows)
	return rows, err
}

func (s *Store) QueryOrders(ctx context.Context, f store.OrderFilter) ([]models.Order, error) {
	rows, err := s.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, o := range rows {
		if store.MatchOrder(o, f) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Store) SaveOrder(ctx context.Context, o models.Order) error {
	_, err := saveMany(ctx, s, colOrders, []models.Order{o}, orderKey)
	return err
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	return remove(ctx, s, colOrders, "order", id)
}

func orderKey(o models.Order) string { return o.ID }

// ReplaceReferenceData writes the new sets under a fresh generation and then
// flips the pointer. Readers never observe a half-written working set.
func (s *Store) ReplaceReferenceData(ctx context.Context, data store.ReferenceData) (store.ReplaceResult, error) {
	if _, err := s.key(colMeta); err != nil {
		return store.ReplaceResult{}, err
	}
	unique, res := store.DedupReferenceData(data)

	gen := uuid.NewString()
	staged := map[string]func() (map[string]string, error){
		colClients:       func() (map[string]string, error) { return encode(unique.Clients, store.ClientKey) },
		colProducts:      func() (map[string]string, error) { return encode(unique.Products, store.ProductKey) },
		colPaymentTables: func() (map[string]string, error) { return encode(unique.PaymentTables, store.PaymentTableKey) },
	}
	for collection, build := range staged {
		values, err := build()
		if err == nil {
			err = s.kv.HSet(ctx, s.kv.CollectionKey(collection, gen), values)
		}
		if err != nil {
			s.dropGeneration(ctx, gen)
			return store.ReplaceResult{}, store.Unavailable(err, "stage "+collection)
		}
	}
	if err := s.switchGeneration(ctx, gen); err != nil {
		s.dropGeneration(ctx, gen)
		return store.ReplaceResult{}, err
	}
	return res, nil
}

// ClearReferenceData points the store at an empty generation.
func (s *Store) ClearReferenceData(ctx context.Context) error {
	if _, err := s.key(colMeta); err != nil {
		return err
	}
	return s.switchGeneration(ctx, uuid.NewString())
}

func (s *Store) switchGeneration(ctx context.Context, gen string) error {
	if err := s.kv.HSet(ctx, s.kv.CollectionKey(colMeta), map[string]string{fieldRefGen: gen}); err != nil {
		return store.Unavailable(err, "switch reference generation")
	}
	s.mu.Lock()
	old := s.gen
	s.gen = gen
	s.mu.Unlock()
	s.dropGeneration(ctx, old)
	return nil
}

func (s *Store) dropGeneration(ctx context.Context, gen string) {
	if gen == "" {
		return
	}
	err := s.kv.Del(ctx,
		s.kv.CollectionKey(colClients, gen),
		s.kv.CollectionKey(colProducts, gen),
		s.kv.CollectionKey(colPaymentTables, gen),
	)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "generation", gen), "failed to drop stale reference generation")
	}
}

func (s *Store) CountReferenceData(ctx context.Context) (store.ReferenceCounts, error) {
	var out store.ReferenceCounts
	for collection, dst := range map[string]*int{
		colClients:       &out.Clients,
		colProducts:      &out.Products,
		colPaymentTables: &out.PaymentTables,
	} {
		key, err := s.key(collection)
		if err != nil {
			return store.ReferenceCounts{}, err
		}
		n, err := s.kv.HLen(ctx, key)
		if err != nil {
			return store.ReferenceCounts{}, store.Unavailable(err, "count "+collection)
		}
		*dst = int(n)
	}
	return out, nil
}

func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if _, err := s.key(colMeta); err != nil {
		return 0, err
	}
	return s.readVersion(ctx)
}

func (s *Store) LastSyncAt(ctx context.Context) (*time.Time, error) {
	key, err := s.key(colMeta)
	if err != nil {
		return nil, err
	}
	raw, err := s.kv.HGet(ctx, key, models.MetaKeyLastSyncAt)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Unavailable(err, "read last sync")
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, store.Unavailable(err, "parse last sync")
	}
	return &at, nil
}

func (s *Store) SetLastSyncAt(ctx context.Context, at time.Time) error {
	key, err := s.key(colMeta)
	if err != nil {
		return err
	}
	if err := s.kv.HSet(ctx, key, map[string]string{models.MetaKeyLastSyncAt: at.UTC().Format(time.RFC3339Nano)}); err != nil {
		return store.Unavailable(err, "write last sync")
	}
	return nil
}

func sortClients(rows []models.Client) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].VisitSequence, rows[j].VisitSequence
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && *a != *b:
			return *a < *b
		}
		return rows[i].Name < rows[j].Name
	})
}

func sortOrders(rows []models.Order) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID < rows[j].ID
	})
}
