package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/cognicore/tidings/pkg/tidings/ingest"
	"github.com/cognicore/tidings/pkg/tidings/store"
	"github.com/cognicore/tidings/pkg/tidings/store/storetest"
)

func TestSQLiteStore(t *testing.T) {
	suite.Run(t, &storetest.Suite{Open: func() store.Store {
		st, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "tidings.db"))
		require.NoError(t, err)
		return st
	}})
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tidings.db")
	at := time.Date(2026, 5, 1, 8, 0, 0, 123456789, time.UTC)

	st, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, st.SaveItems(ctx, []*ingest.Item{{ID: "a", CollectedAt: at, Title: "Grid outage"}}))
	require.NoError(t, st.SetMark(ctx, "reset", at))
	require.NoError(t, st.Close())

	st, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer st.Close()

	got, err := st.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Grid outage", got.Title)
	assert.True(t, at.Equal(got.CollectedAt), "nanosecond precision survives")
	assert.Nil(t, got.Topics)

	mark, ok, err := st.Mark(ctx, "reset")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, at.Equal(mark))
}
