package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basewar/server/internal/geo"
)

// Runs against a real database only when TEST_DATABASE_URL is set.
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pg, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pg.Close)
	require.NoError(t, pg.EnsureSchema(ctx))

	_, err = pg.db.Exec(ctx, `TRUNCATE investments, bases, users`)
	require.NoError(t, err)

	location, err := EncodePoint(geo.Point{Lon: 6.63, Lat: 46.52})
	require.NoError(t, err)
	_, err = pg.db.Exec(ctx, `INSERT INTO users (id, name, money) VALUES ('a', 'alice', 5), ('b', 'bob', 100)`)
	require.NoError(t, err)
	_, err = pg.db.Exec(ctx, `INSERT INTO bases (id, name, owner_id, location) VALUES ('tower', 'Tower', 'a', $1)`, location)
	require.NoError(t, err)
	_, err = pg.db.Exec(ctx, `INSERT INTO investments (id, base_id, investor_id) VALUES ('i1', 'tower', 'b')`)
	require.NoError(t, err)

	user, err := pg.UserByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 100.0, user.Money)

	_, err = pg.UserByID(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, pg.SaveUserBalance(ctx, "b", 115))
	user, err = pg.UserByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 115.0, user.Money)
	assert.ErrorIs(t, pg.SaveUserBalance(ctx, "ghost", 1), ErrNotFound)

	bases, err := pg.ListBases(ctx)
	require.NoError(t, err)
	require.Len(t, bases, 1)
	assert.Equal(t, geo.Point{Lon: 6.63, Lat: 46.52}, bases[0].Location)

	count, err := pg.CountInvestments(ctx, "tower")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
