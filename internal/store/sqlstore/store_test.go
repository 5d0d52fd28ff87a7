package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fieldsync/internal/store"
	"github.com/angelmondragon/fieldsync/internal/store/storetest"
	"github.com/angelmondragon/fieldsync/pkg/db/dbtest"
	"github.com/angelmondragon/fieldsync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.LocalStore {
		return New(dbtest.NewSQLite(t), nil)
	})
}

func TestInitWithoutClient(t *testing.T) {
	s := New(nil, nil)
	err := s.Init(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStorageUnavailable))
}

func TestInitOnClosedDatabase(t *testing.T) {
	client := dbtest.NewSQLite(t)
	require.NoError(t, client.Close())

	err := New(client, nil).Init(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStorageUnavailable))
}

func TestReplaceRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	client := dbtest.NewSQLite(t)
	s := New(client, nil)
	require.NoError(t, s.Init(ctx))

	_, err := s.SaveClients(ctx, []models.Client{storetest.Client("rep-1", "Keep")})
	require.NoError(t, err)

	// Two products sharing a code violate the unique index mid-transaction.
	p1 := storetest.Product(7, "10", "")
	p2 := storetest.Product(7, "11", "")
	_, err = s.ReplaceReferenceData(ctx, store.ReferenceData{
		Clients:  []models.Client{storetest.Client("rep-1", "New")},
		Products: []models.Product{p1, p2},
	})
	require.Error(t, err)

	rows, err := s.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Keep", rows[0].Name)
}
