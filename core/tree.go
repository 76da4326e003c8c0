package core

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/dosco/fxquery/core/internal/qcode"
	"github.com/dosco/fxquery/core/internal/sdata"
	cache "github.com/go-pkgz/expirable-cache"
	"github.com/pkg/errors"
)

// TreeEngine resolves folders of the edit or live tree.
type TreeEngine interface {
	qcode.TreeResolver
}

const treeCacheKeys = 10000

var treeColumns = []string{"id", "ref", "lft", "rgt", "depth", "path"}

// SQLTreeEngine reads nodes from FXS_TREE and FXS_TREE_LIVE.
type SQLTreeEngine struct {
	db    *sql.DB
	ph    sq.PlaceholderFormat
	nodes cache.Cache
}

// NewSQLTreeEngine returns a tree engine. Nodes are cached for ttl,
// a zero ttl disables the cache.
func NewSQLTreeEngine(db *sql.DB, dbType string, ttl time.Duration) *SQLTreeEngine {
	te := &SQLTreeEngine{db: db, ph: placeholders(dbType)}
	if ttl > 0 {
		// only fails on invalid options
		te.nodes, _ = cache.NewCache(cache.MaxKeys(treeCacheKeys), cache.TTL(ttl))
	}
	return te
}

func (te *SQLTreeEngine) NodeByPath(c context.Context, live bool, path string) (qcode.TreeNode, error) {
	return te.node(c, live, "p:"+path, sq.Eq{"path": path}, path)
}

func (te *SQLTreeEngine) Node(c context.Context, live bool, id int64) (qcode.TreeNode, error) {
	ids := strconv.FormatInt(id, 10)
	return te.node(c, live, "i:"+ids, sq.Eq{"id": id}, ids)
}

func (te *SQLTreeEngine) node(c context.Context, live bool, key string, pred sq.Eq, ref string) (qcode.TreeNode, error) {
	table := sdata.TblTree
	if live {
		table = sdata.TblTreeLive
	}
	key = table + ":" + key

	if te.nodes != nil {
		if v, ok := te.nodes.Get(key); ok {
			return v.(qcode.TreeNode), nil
		}
	}

	query, args, err := sq.Select(treeColumns...).
		From(table).
		Where(pred).
		PlaceholderFormat(te.ph).
		ToSql()
	if err != nil {
		return qcode.TreeNode{}, err
	}

	n := qcode.TreeNode{Live: live}
	var nref sql.NullInt64

	err = te.db.QueryRowContext(c, query, args...).
		Scan(&n.ID, &nref, &n.Left, &n.Right, &n.Depth, &n.Path)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return n, errors.Wrapf(ErrNotFound, "folder %s", ref)
	case err != nil:
		return n, execError(query, err)
	}
	n.Ref = nref.Int64

	if te.nodes != nil {
		te.nodes.Set(key, n, 0)
	}
	return n, nil
}

// Purge drops all cached nodes.
func (te *SQLTreeEngine) Purge() {
	if te.nodes != nil {
		te.nodes.Purge()
	}
}
