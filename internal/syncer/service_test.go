package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fieldsync/internal/remote/remotetest"
	"github.com/angelmondragon/fieldsync/internal/store"
	"github.com/angelmondragon/fieldsync/internal/store/sqlstore"
	"github.com/angelmondragon/fieldsync/internal/store/storetest"
	"github.com/angelmondragon/fieldsync/pkg/auth"
	"github.com/angelmondragon/fieldsync/pkg/config"
	"github.com/angelmondragon/fieldsync/pkg/db/dbtest"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/metrics"
	pkgredis "github.com/angelmondragon/fieldsync/pkg/redis"
)

var fixedNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	store  store.LocalStore
	remote *remotetest.Fake
	svc    *Service
	reg    *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := sqlstore.New(dbtest.NewSQLite(t), nil)
	require.NoError(t, st.Init(context.Background()))

	dup := storetest.Client("rep-1", "Padaria Dup")
	fake := &remotetest.Fake{
		Clients: []models.Client{
			storetest.Client("rep-1", "Mercado Sol"),
			dup,
			dup,
			storetest.Client("rep-2", "Someone Else's"),
		},
		Products:      []models.Product{storetest.Product(1, "100", "10"), storetest.Product(2, "40", "")},
		PaymentTables: []models.PaymentTable{{ID: uuid.New(), Name: "cash", Active: true}},
	}

	reg := prometheus.NewRegistry()
	svc, err := NewService(ServiceParams{
		Store:   st,
		Remote:  fake,
		Metrics: metrics.NewSyncMetrics(reg),
		Now:     func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &harness{store: st, remote: fake, svc: svc, reg: reg}
}

func validRequest() Request {
	return Request{RepID: "rep-1", Credential: "opaque-token", Online: true}
}

func TestBootstrapReplacesWorkingSet(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	res, err := h.svc.Bootstrap(ctx, validRequest())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NoError(t, res.Error)
	assert.Equal(t, Counts{Clients: 2, Products: 2, PaymentTables: 1, DuplicatesRemoved: 1, ExcludedClients: 1}, res.Counts)

	clients, err := h.store.ListClients(ctx)
	require.NoError(t, err)
	for _, c := range clients {
		assert.Equal(t, "rep-1", c.SalesRepID)
	}

	at, err := h.store.LastSyncAt(ctx)
	require.NoError(t, err)
	require.NotNil(t, at)
	assert.True(t, at.Equal(fixedNow))

	mfs, err := h.reg.Gather()
	require.NoError(t, err)
	var success float64
	for _, mf := range mfs {
		if mf.GetName() == "fieldsync_sync_success_total" {
			success = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), success)
}

func TestPreconditionsFailWithoutRemoteCalls(t *testing.T) {
	cases := map[string]Request{
		"credential": {RepID: "rep-1", Online: true},
		"online":     {RepID: "rep-1", Credential: "tok"},
		"rep_id":     {Credential: "tok", Online: true},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			res, err := h.svc.Bootstrap(context.Background(), req)
			require.Error(t, err)
			assert.False(t, res.Success)
			assert.True(t, pkgerrors.Is(err, pkgerrors.CodePreconditionFailed))
			details := pkgerrors.As(err).Details().(map[string]any)
			assert.Equal(t, name, details["precondition"])
			assert.Zero(t, h.remote.TotalCalls())
		})
	}
}

func TestExpiredSessionIsRejectedLocally(t *testing.T) {
	h := newHarness(t)
	cfg := config.JWTConfig{Secret: "s3cret", Issuer: "fieldsync", ExpirationMinutes: 30}
	token, err := auth.MintAccessToken(cfg, fixedNow.Add(-time.Hour), auth.AccessTokenPayload{RepID: "rep-1"})
	require.NoError(t, err)

	req := validRequest()
	req.Credential = token
	_, err = h.svc.Bootstrap(context.Background(), req)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodePreconditionFailed))
	assert.Zero(t, h.remote.TotalCalls())
}

func TestFetchFailureLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.Bootstrap(ctx, validRequest())
	require.NoError(t, err)
	before, err := h.store.CountReferenceData(ctx)
	require.NoError(t, err)

	h.remote.ProductsErr = pkgerrors.New(pkgerrors.CodeRemoteUnreachable, "connection reset")
	h.remote.Clients = []models.Client{storetest.Client("rep-1", "Only")}

	res, err := h.svc.Bootstrap(ctx, validRequest())
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeRemoteUnreachable))

	after, err := h.store.CountReferenceData(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestForceResyncFetchFailureKeepsWorkingSet(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.Bootstrap(ctx, validRequest())
	require.NoError(t, err)
	before, err := h.store.CountReferenceData(ctx)
	require.NoError(t, err)
	require.NotZero(t, before.Total())

	h.remote.ProductsErr = pkgerrors.New(pkgerrors.CodeRemoteUnreachable, "connection reset")

	res, err := h.svc.ForceResync(ctx, validRequest())
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeRemoteUnreachable))

	after, err := h.store.CountReferenceData(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestForceResyncCanceledKeepsWorkingSet(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Bootstrap(context.Background(), validRequest())
	require.NoError(t, err)
	before, err := h.store.CountReferenceData(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.svc.ForceResync(ctx, validRequest())
	require.Error(t, err)

	after, err := h.store.CountReferenceData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCanceledContextAbortsBeforeWrites(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.Bootstrap(ctx, validRequest())
	require.Error(t, err)

	counts, err := h.store.CountReferenceData(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts.Total())
}

func TestForceResyncPreservesOrders(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.Bootstrap(ctx, validRequest())
	require.NoError(t, err)

	statuses := []enums.SyncStatus{enums.SyncStatusPendingSync, enums.SyncStatusTransmitted, enums.SyncStatusError}
	for i, st := range statuses {
		o := storetest.Order("ORD-"+string(rune('A'+i)), "rep-1", st, fixedNow.Add(time.Duration(i)*time.Minute))
		require.NoError(t, h.store.SaveOrder(ctx, o))
	}

	h.remote.Products = []models.Product{storetest.Product(9, "5", "")}
	res, err := h.svc.ForceResync(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts.Products)

	orders, err := h.store.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, len(statuses))
	for i, o := range orders {
		assert.Equal(t, statuses[i], o.SyncStatus)
	}
}

func TestOverlappingSyncIsRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	lock := NewMemoryLock()
	h.svc.lock = lock

	ok, err := lock.Acquire(ctx, "rep-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.svc.Bootstrap(ctx, validRequest())
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodePreconditionFailed))
	assert.Zero(t, h.remote.TotalCalls())

	require.NoError(t, lock.Release(ctx, "rep-1"))
	_, err = h.svc.Bootstrap(ctx, validRequest())
	require.NoError(t, err)

	ok, err = lock.Acquire(ctx, "rep-1")
	require.NoError(t, err)
	assert.True(t, ok, "lock released after sync")
}

type fakeLockStore struct {
	data map[string]string
}

func (f *fakeLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = value.(string)
	return true, nil
}

func (f *fakeLockStore) Get(_ context.Context, key string) (string, error) {
	v, ok := f.data[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (f *fakeLockStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeLockStore) LockKey(scope, id string) string { return "fs:lock:" + scope + ":" + id }

func TestRedisLockOwnership(t *testing.T) {
	ctx := context.Background()
	kv := &fakeLockStore{data: map[string]string{}}

	a, err := NewRedisLock(kv, time.Minute)
	require.NoError(t, err)
	b, err := NewRedisLock(kv, time.Minute)
	require.NoError(t, err)

	ok, err := a.Acquire(ctx, "rep-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Acquire(ctx, "rep-1")
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	require.NoError(t, b.Release(ctx, "rep-1"))
	assert.Contains(t, kv.data, "fs:lock:sync:rep-1", "non-owner release is a no-op")

	require.NoError(t, a.Release(ctx, "rep-1"))
	assert.NotContains(t, kv.data, "fs:lock:sync:rep-1")

	ok, err = b.Acquire(ctx, "rep-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRedisLockRequiresClient(t *testing.T) {
	if _, err := NewRedisLock(nil, time.Minute); err == nil {
		t.Fatal("expected error for nil client")
	}
}
