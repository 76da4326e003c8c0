package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/dosco/fxquery/core"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLTreeEngine(t *testing.T) {
	db := newTestDB(t)
	te := core.NewSQLTreeEngine(db, "sqlite", 0)
	ctx := context.Background()

	n, err := te.NodeByPath(ctx, false, "/news")
	require.NoError(t, err)
	assert.Equal(t, core.TreeNode{ID: 5, Ref: 1, Left: 10, Right: 20, Depth: 1, Path: "/news"}, n)

	n, err = te.Node(ctx, false, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n.Ref)
	assert.Equal(t, "/", n.Path)

	_, err = te.NodeByPath(ctx, false, "/missing")
	assert.True(t, errors.Is(err, core.ErrNotFound))

	// the live tree is empty
	_, err = te.Node(ctx, true, 5)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestSQLTreeEngineCache(t *testing.T) {
	db := newTestDB(t)
	te := core.NewSQLTreeEngine(db, "sqlite", time.Minute)
	ctx := context.Background()

	_, err := te.NodeByPath(ctx, false, "/news")
	require.NoError(t, err)

	_, err = db.Exec("DELETE FROM FXS_TREE WHERE id = 5")
	require.NoError(t, err)

	n, err := te.NodeByPath(ctx, false, "/news")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n.ID)

	te.Purge()
	_, err = te.NodeByPath(ctx, false, "/news")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}
