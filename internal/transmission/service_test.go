package transmission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fieldsync/internal/audit"
	"github.com/angelmondragon/fieldsync/internal/remote"
	"github.com/angelmondragon/fieldsync/internal/remote/remotetest"
	"github.com/angelmondragon/fieldsync/internal/store"
	"github.com/angelmondragon/fieldsync/internal/store/sqlstore"
	"github.com/angelmondragon/fieldsync/internal/store/storetest"
	"github.com/angelmondragon/fieldsync/pkg/db/dbtest"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
)

var fixedNow = time.Date(2026, 7, 10, 15, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingSink) Record(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) kinds() []enums.AuditKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]enums.AuditKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

// flakyStore fails SaveOrder for the listed ids.
type flakyStore struct {
	store.LocalStore
	failSave map[string]bool
}

func (f *flakyStore) SaveOrder(ctx context.Context, o models.Order) error {
	if f.failSave[o.ID] {
		return pkgerrors.New(pkgerrors.CodeStorageUnavailable, "disk full")
	}
	return f.LocalStore.SaveOrder(ctx, o)
}

type harness struct {
	store  *flakyStore
	remote *remotetest.Fake
	audit  *recordingSink
	svc    *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := sqlstore.New(dbtest.NewSQLite(t), nil)
	require.NoError(t, st.Init(context.Background()))

	h := &harness{
		store:  &flakyStore{LocalStore: st, failSave: map[string]bool{}},
		remote: &remotetest.Fake{},
		audit:  &recordingSink{},
	}
	svc, err := NewService(ServiceParams{
		Store:  h.store,
		Remote: h.remote,
		Audit:  h.audit,
		Now:    func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) seed(t *testing.T, status enums.SyncStatus, ids ...string) []models.Order {
	t.Helper()
	out := make([]models.Order, 0, len(ids))
	for i, id := range ids {
		o := storetest.Order(id, "rep-1", status, fixedNow.Add(time.Duration(i)*time.Second))
		require.NoError(t, h.store.SaveOrder(context.Background(), o))
		out = append(out, o)
	}
	return out
}

func (h *harness) status(t *testing.T, id string) models.Order {
	t.Helper()
	o, err := h.store.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o
}

var online = Session{Credential: "tok", Online: true}

func TestTransmitAllSuccess(t *testing.T) {
	h := newHarness(t)
	orders := h.seed(t, enums.SyncStatusPendingSync, "ORD-1", "ORD-2")

	report, err := h.svc.TransmitAll(context.Background(), orders, online)
	require.NoError(t, err)
	assert.Equal(t, 2, report.SuccessCount)
	assert.Zero(t, report.ErrorCount)
	assert.Equal(t, 1, h.remote.CallCount("transmit"), "one batch call")

	for _, id := range []string{"ORD-1", "ORD-2"} {
		o := h.status(t, id)
		assert.Equal(t, enums.SyncStatusTransmitted, o.SyncStatus)
		require.NotNil(t, o.TransmittedAt)
		assert.True(t, o.TransmittedAt.Equal(fixedNow))
	}
	assert.Equal(t, []enums.AuditKind{enums.AuditOrderTransmitted, enums.AuditOrderTransmitted}, h.audit.kinds())
}

func TestTransmitAllBatchFailureMarksEveryOrder(t *testing.T) {
	h := newHarness(t)
	orders := h.seed(t, enums.SyncStatusPendingSync, "ORD-1", "ORD-2", "ORD-3")
	h.remote.TransmitErr = pkgerrors.Wrap(pkgerrors.CodeRemoteUnreachable, errors.New("i/o timeout"), "execute transmit orders request")

	report, err := h.svc.TransmitAll(context.Background(), orders, online)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeRemoteUnreachable))
	assert.Equal(t, 3, report.ErrorCount)
	assert.Zero(t, report.SuccessCount)

	for _, o := range orders {
		got := h.status(t, o.ID)
		assert.Equal(t, enums.SyncStatusError, got.SyncStatus)
		require.NotNil(t, got.LastError)
		assert.NotEmpty(t, *got.LastError)
		assert.Nil(t, got.TransmittedAt)
	}
}

func TestTransmitAllCanceledCallMarksError(t *testing.T) {
	h := newHarness(t)
	orders := h.seed(t, enums.SyncStatusPendingSync, "ORD-1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.TransmitAll(ctx, orders, online)
	require.Error(t, err)
	assert.Equal(t, enums.SyncStatusError, h.status(t, "ORD-1").SyncStatus)
}

func TestTransmitAllPerOrderResults(t *testing.T) {
	h := newHarness(t)
	orders := h.seed(t, enums.SyncStatusPendingSync, "ORD-1", "ORD-2", "ORD-3")
	h.remote.Results = map[string]remote.OrderResult{
		"ORD-2": {OrderID: "ORD-2", Status: remote.ResultRejected, Message: "customer blocked"},
		"ORD-3": {OrderID: "ORD-3", Status: remote.ResultDuplicate},
	}

	report, err := h.svc.TransmitAll(context.Background(), orders, online)
	require.NoError(t, err)
	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, 1, report.ErrorCount)

	assert.Equal(t, enums.SyncStatusTransmitted, h.status(t, "ORD-1").SyncStatus)
	rejected := h.status(t, "ORD-2")
	assert.Equal(t, enums.SyncStatusError, rejected.SyncStatus)
	require.NotNil(t, rejected.LastError)
	assert.Equal(t, "customer blocked", *rejected.LastError)
	assert.Equal(t, enums.SyncStatusTransmitted, h.status(t, "ORD-3").SyncStatus, "duplicate counts as delivered")
}

func TestTransmitAllLocalWriteFailureIsIsolated(t *testing.T) {
	h := newHarness(t)
	orders := h.seed(t, enums.SyncStatusPendingSync, "ORD-1", "ORD-2")
	h.store.failSave["ORD-2"] = true

	report, err := h.svc.TransmitAll(context.Background(), orders, online)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStorageUnavailable))
	assert.Equal(t, 1, report.SuccessCount)
	assert.Equal(t, 1, report.ErrorCount)
	assert.Equal(t, enums.SyncStatusTransmitted, h.status(t, "ORD-1").SyncStatus)
}

func TestTransmitAllUsesStoredStatus(t *testing.T) {
	h := newHarness(t)
	orders := h.seed(t, enums.SyncStatusPendingSync, "ORD-1", "ORD-2", "ORD-3")

	// ORD-1 went out in an earlier run and ORD-3 was deleted; the caller's
	// list still shows both as pending.
	sent := h.status(t, "ORD-1")
	sent.SyncStatus = enums.SyncStatusTransmitted
	require.NoError(t, h.store.SaveOrder(context.Background(), sent))
	require.NoError(t, h.store.DeleteOrder(context.Background(), "ORD-3"))

	report, err := h.svc.TransmitAll(context.Background(), orders, online)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SuccessCount)
	assert.Zero(t, report.ErrorCount)
	require.Len(t, h.remote.Transmitted, 1)
	require.Len(t, h.remote.Transmitted[0], 1)
	assert.Equal(t, "ORD-2", h.remote.Transmitted[0][0].ID)
}

func TestTransmitAllStaleListSkipsRemote(t *testing.T) {
	h := newHarness(t)
	orders := h.seed(t, enums.SyncStatusPendingSync, "ORD-1")
	_, err := h.svc.TransmitAll(context.Background(), orders, online)
	require.NoError(t, err)

	report, err := h.svc.TransmitAll(context.Background(), orders, online)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodePreconditionFailed))
	assert.Zero(t, report.ErrorCount)
	assert.Equal(t, 1, h.remote.CallCount("transmit"))
	assert.Equal(t, enums.SyncStatusTransmitted, h.status(t, "ORD-1").SyncStatus)
}

func TestTransmitAllPreconditions(t *testing.T) {
	cases := []struct {
		name    string
		pending bool
		sess    Session
	}{
		{"pending_orders", false, online},
		{"credential", true, Session{Online: true}},
		{"online", true, Session{Credential: "tok"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			status := enums.SyncStatusTransmitted
			if tc.pending {
				status = enums.SyncStatusPendingSync
			}
			orders := h.seed(t, status, "ORD-1")

			_, err := h.svc.TransmitAll(context.Background(), orders, tc.sess)
			require.Error(t, err)
			assert.True(t, pkgerrors.Is(err, pkgerrors.CodePreconditionFailed))
			assert.Equal(t, tc.name, pkgerrors.As(err).Details().(map[string]any)["precondition"])
			assert.Zero(t, h.remote.TotalCalls())
			assert.Equal(t, status, h.status(t, "ORD-1").SyncStatus)
		})
	}
}

func TestRetryRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	orders := h.seed(t, enums.SyncStatusPendingSync, "ORD-1")
	h.remote.TransmitErr = errors.New("connection refused")

	_, err := h.svc.TransmitAll(ctx, orders, online)
	require.Error(t, err)
	require.Equal(t, enums.SyncStatusError, h.status(t, "ORD-1").SyncStatus)

	calls := h.remote.TotalCalls()
	require.NoError(t, h.svc.RetryOne(ctx, "ORD-1"))
	assert.Equal(t, calls, h.remote.TotalCalls(), "retry does not contact the server")
	requeued := h.status(t, "ORD-1")
	assert.Equal(t, enums.SyncStatusPendingSync, requeued.SyncStatus)
	assert.Nil(t, requeued.LastError)

	h.remote.TransmitErr = nil
	report, err := h.svc.TransmitAll(ctx, []models.Order{requeued}, online)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SuccessCount)
	assert.Equal(t, enums.SyncStatusTransmitted, h.status(t, "ORD-1").SyncStatus)
}

func TestRetryOneRejectsNonErrorOrders(t *testing.T) {
	h := newHarness(t)
	h.seed(t, enums.SyncStatusTransmitted, "ORD-1")

	err := h.svc.RetryOne(context.Background(), "ORD-1")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodePreconditionFailed))
	assert.True(t, pkgerrors.Is(h.svc.RetryOne(context.Background(), "ORD-404"), pkgerrors.CodeNotFound))
}

func TestRetryAllErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t, enums.SyncStatusError, "ORD-1", "ORD-2")
	h.seed(t, enums.SyncStatusTransmitted, "ORD-3")

	moved, err := h.svc.RetryAllErrors(ctx, "rep-1")
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	buckets, err := h.svc.LoadOrders(ctx, "rep-1")
	require.NoError(t, err)
	assert.Len(t, buckets.Pending, 2)
	assert.Len(t, buckets.Transmitted, 1)
	assert.Empty(t, buckets.Error)
}

func TestDeleteTransmittedOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t, enums.SyncStatusTransmitted, "ORD-T")
	h.seed(t, enums.SyncStatusPendingSync, "ORD-P")
	h.seed(t, enums.SyncStatusError, "ORD-E")

	for _, id := range []string{"ORD-P", "ORD-E"} {
		before := h.status(t, id)
		err := h.svc.DeleteTransmitted(ctx, id)
		require.Error(t, err)
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodePreconditionFailed))
		assert.Equal(t, before.SyncStatus, h.status(t, id).SyncStatus)
	}

	require.NoError(t, h.svc.DeleteTransmitted(ctx, "ORD-T"))
	_, err := h.store.GetOrder(ctx, "ORD-T")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	assert.Contains(t, h.audit.kinds(), enums.AuditOrderDeleted)
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t, enums.SyncStatusTransmitted, "ORD-1")
	h.seed(t, enums.SyncStatusPendingSync, "ORD-2")

	n, err := h.svc.Reconcile(ctx, []string{"ORD-1", "ORD-2", "ORD-404"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, enums.SyncStatusSynced, h.status(t, "ORD-1").SyncStatus)
	assert.Equal(t, enums.SyncStatusPendingSync, h.status(t, "ORD-2").SyncStatus)
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ReasonKind
	}{
		{"auth", pkgerrors.Wrap(pkgerrors.CodeRemoteRejected, remote.ErrSessionRejected, "fetch rejected"), ReasonSessionExpired},
		{"canceled", pkgerrors.Wrap(pkgerrors.CodeRemoteUnreachable, context.Canceled, "execute"), ReasonNetwork},
		{"unreachable", pkgerrors.New(pkgerrors.CodeRemoteUnreachable, "dial"), ReasonNetwork},
		{"rejected", pkgerrors.New(pkgerrors.CodeRemoteRejected, "bad batch"), ReasonServerRejected},
		{"offline", pkgerrors.New(pkgerrors.CodePreconditionFailed, "offline").WithDetails(map[string]any{"precondition": "online"}), ReasonOffline},
		{"expired", pkgerrors.New(pkgerrors.CodePreconditionFailed, "expired").WithDetails(map[string]any{"precondition": "session_expired"}), ReasonSessionExpired},
		{"storage", pkgerrors.New(pkgerrors.CodeStorageUnavailable, "locked"), ReasonStorage},
		{"plain", errors.New("weird"), ReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyError(tc.err)
			assert.Equal(t, tc.want, got.Kind)
			assert.NotEmpty(t, got.Message)
		})
	}
	assert.Equal(t, Reason{}, ClassifyError(nil))
}
