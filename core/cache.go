package core

import (
	"strconv"
	"strings"

	"github.com/dosco/fxquery/core/internal/psql"
	"github.com/dosco/fxquery/core/internal/qcode"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mitchellh/hashstructure/v2"
	"golang.org/x/sync/singleflight"
)

// stmt is a compiled statement. It is never modified once cached.
type stmt struct {
	sql    string
	sel    *qcode.Select
	search *qcode.Search
	md     psql.Metadata
}

// stmtCache holds compiled statements keyed by a hash of the query, the
// ticket and the kind of statement. Concurrent compiles of one key are
// merged.
type stmtCache struct {
	cache *lru.TwoQueueCache[uint64, *stmt]
	group singleflight.Group
}

type stmtKey struct {
	Kind   string
	DBType string
	Query  interface{}
	Ticket *qcode.Ticket
}

// initCache initializes the cache
func (e *engine) initCache() (err error) {
	c := &stmtCache{}
	if c.cache, err = lru.New2Q[uint64, *stmt](e.conf.cacheSize()); err != nil {
		return
	}
	e.cache = c
	return
}

// get returns the cached statement or compiles it
func (c *stmtCache) get(key stmtKey, compile func() (*stmt, error)) (st *stmt, fromCache bool, err error) {
	h, err := hashstructure.Hash(key, hashstructure.FormatV2, nil)
	if err != nil {
		st, err = compile()
		return
	}

	if st, fromCache = c.cache.Get(h); fromCache {
		return
	}

	v, err, _ := c.group.Do(strconv.FormatUint(h, 16), func() (interface{}, error) {
		st, err := compile()
		if err != nil {
			return nil, err
		}
		c.cache.Add(h, st)
		return st, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*stmt), false, nil
}

func (c *stmtCache) purge() {
	c.cache.Purge()
}

// cacheable is false for conditions on folders, their tree position
// changes without the query changing.
func cacheable(w *qcode.Where) bool {
	if w == nil {
		return true
	}
	switch normalizeOp(w.Op) {
	case "IN_FOLDER", "IN_TREE", "IS CHILD OF", "IS DIRECT CHILD OF":
		return false
	}
	for _, c := range w.And {
		if !cacheable(c) {
			return false
		}
	}
	for _, c := range w.Or {
		if !cacheable(c) {
			return false
		}
	}
	return true
}

func normalizeOp(op string) string {
	return strings.ToUpper(strings.Join(strings.Fields(op), " "))
}
