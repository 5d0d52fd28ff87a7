package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fieldsync/internal/audit"
	"github.com/angelmondragon/fieldsync/internal/remote"
	"github.com/angelmondragon/fieldsync/internal/remote/remotetest"
	"github.com/angelmondragon/fieldsync/internal/store/sqlstore"
	"github.com/angelmondragon/fieldsync/internal/store/storetest"
	"github.com/angelmondragon/fieldsync/internal/syncer"
	"github.com/angelmondragon/fieldsync/pkg/auth"
	"github.com/angelmondragon/fieldsync/pkg/config"
	"github.com/angelmondragon/fieldsync/pkg/db/dbtest"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/logger"
)

const testRep = "rep-7"

type harness struct {
	t      *testing.T
	fake   *remotetest.Fake
	store  *sqlstore.Store
	online bool
	token  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv(envToken, "")
	t.Setenv(envRepID, "")
	token, err := auth.MintAccessToken(
		config.JWTConfig{Secret: "s", Issuer: "fieldsync", ExpirationMinutes: 60},
		time.Now(),
		auth.AccessTokenPayload{RepID: testRep, RepCode: "R07"},
	)
	require.NoError(t, err)

	product := storetest.Product(10, "100", "10")
	return &harness{
		t: t,
		fake: &remotetest.Fake{
			Clients:  []models.Client{storetest.Client(testRep, "Mercado Sol"), storetest.Client("rep-9", "Elsewhere")},
			Products: []models.Product{product},
			Session:  remote.Session{Token: "issued-token", RepID: testRep, Name: "Ana", ExpiresAt: time.Now().Add(time.Hour)},
		},
		store:  sqlstore.New(dbtest.NewSQLite(t), logger.Nop()),
		online: true,
		token:  token,
	}
}

func (h *harness) factory(_ context.Context, cfg *config.Config, logg *logger.Logger) (*app, error) {
	return assemble(cfg, logg, deps{
		store:  h.store,
		remote: h.fake,
		health: remote.StaticConnectivity(h.online),
		lock:   syncer.NewMemoryLock(),
		audit:  audit.Nop{},
	})
}

// run executes one command line and returns stdout and the error.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	root, rt := newRootCommand(h.factory, func() (*config.Config, error) {
		return &config.Config{Store: config.StoreConfig{Driver: config.StoreDriverSQLite}}, nil
	})
	rt.logOutput = io.Discard

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--env-file=", "--token=" + h.token}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInitReportsSchema(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("init")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version: 3")
	assert.Contains(t, out, "last sync:      never")
}

func TestSyncUsesRepFromToken(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("sync")
	require.NoError(t, err)
	assert.Contains(t, out, "synced 1 clients, 1 products, 0 payment tables")
	assert.Contains(t, out, "skipped 1 clients assigned to other reps")

	clients, err := h.store.ListClients(context.Background())
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, testRep, clients[0].SalesRepID)
}

func TestSyncOfflineIsPrecondition(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("sync", "--offline")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodePreconditionFailed, pkgerrors.CodeOf(err))
	assert.Zero(t, h.fake.TotalCalls())
}

func TestOrderLifecycle(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("sync")
	require.NoError(t, err)

	customer := h.fake.Clients[0].ID.String()
	product := h.fake.Products[0].ID.String()

	out, err := h.run("orders", "create", "--customer", customer, "--item", product+":2:main:95")
	require.NoError(t, err)
	assert.Contains(t, out, "total 190.00 (pending_sync)")

	_, err = h.run("orders", "create", "--customer", customer, "--item", product+":1:main:80")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	out, err = h.run("transmit")
	require.NoError(t, err)
	assert.Contains(t, out, "1 transmitted, 0 failed")
	assert.Equal(t, 1, h.fake.CallCount("transmit"))

	orders, err := h.store.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	id := orders[0].ID
	assert.Equal(t, enums.SyncStatusTransmitted, orders[0].SyncStatus)

	out, err = h.run("orders")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "transmitted")

	out, err = h.run("reconcile", id, "ORD-missing")
	require.NoError(t, err)
	assert.Contains(t, out, "marked 1 orders synced")

	_, err = h.run("delete", id)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodePreconditionFailed, pkgerrors.CodeOf(err))
}

func TestTransmitFailureThenRetry(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("sync")
	require.NoError(t, err)
	_, err = h.run("orders", "negate", "--customer", h.fake.Clients[0].ID.String(), "--reason", "closed")
	require.NoError(t, err)

	h.fake.TransmitErr = pkgerrors.New(pkgerrors.CodeRemoteUnreachable, "dial tcp")
	out, err := h.run("transmit")
	require.Error(t, err)
	assert.Contains(t, out, "0 transmitted, 1 failed")

	out, err = h.run("retry", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "requeued 1 orders")

	h.fake.TransmitErr = nil
	out, err = h.run("transmit")
	require.NoError(t, err)
	assert.Contains(t, out, "1 transmitted, 0 failed")
}

func TestTransmitWithNothingPending(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("transmit")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodePreconditionFailed, pkgerrors.CodeOf(err))
	assert.Zero(t, h.fake.CallCount("transmit"))
}

func TestPriceCheck(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("sync")
	require.NoError(t, err)
	product := h.fake.Products[0].ID.String()

	out, err := h.run("price", "--product", product, "--price", "90")
	require.NoError(t, err)
	assert.Contains(t, out, "minimum price:        90.00")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "ok"))

	_, err = h.run("price", "--product", product, "--price", "89.99")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestLoginPrintsToken(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("login", "--rep-code", "R07", "--password", "pw")
	require.NoError(t, err)
	assert.Contains(t, out, "export FIELDSYNC_TOKEN=issued-token")
	assert.Equal(t, 1, h.fake.CallCount("login"))
}

func TestRepRequiredWithoutToken(t *testing.T) {
	h := newHarness(t)
	h.token = ""

	_, err := h.run("orders")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodePreconditionFailed, pkgerrors.CodeOf(err))
}

func TestParseItem(t *testing.T) {
	item, err := parseItem("5d0c0a4e-0000-4000-8000-000000000001:5:sub:17.99")
	require.NoError(t, err)
	assert.Equal(t, enums.UnitKindSub, item.Unit)
	assert.Equal(t, "5", item.Quantity.String())
	require.NotNil(t, item.UnitPrice)
	assert.Equal(t, "17.99", item.UnitPrice.String())

	item, err = parseItem("5d0c0a4e-0000-4000-8000-000000000001:1")
	require.NoError(t, err)
	assert.Equal(t, enums.UnitKindMain, item.Unit)
	assert.Nil(t, item.UnitPrice)

	for _, bad := range []string{"nope", "x:1", "5d0c0a4e-0000-4000-8000-000000000001:abc", "5d0c0a4e-0000-4000-8000-000000000001:1:box"} {
		_, err := parseItem(bad)
		assert.Error(t, err, bad)
	}
}
