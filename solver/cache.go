package solver

import (
	"crypto/sha256"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
	"golang.org/x/net/context"
)

// unsatBucket is the bbolt bucket holding cached unsat query digests.
var unsatBucket = []byte("unsat")

// CachedSolver wraps another Solver with a persistent cache of unsat answers, keyed by a
// digest of the encoded query script. Unsat is the only answer safe to replay across runs:
// it is deterministic for an identical script, while sat models and unknown answers depend on
// solver tactics and timeouts. Alias queries repeat heavily across paths and runs over the
// same contract, which is what makes the cache worthwhile.
type CachedSolver struct {
	inner Solver
	db    *bbolt.DB

	pendingWriteMutex sync.Mutex
	pendingWrites     [][]byte
	flushThreshold    int
}

// NewCachedSolver opens (or creates) the cache database at the given path and returns a
// caching wrapper around the inner solver. The database is closed when the context is
// cancelled.
func NewCachedSolver(ctx context.Context, inner Solver, dbPath string) (*CachedSolver, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "could not open solver cache db")
	}

	// create the bucket if it doesn't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(unsatBucket)
		return err
	})
	if err != nil {
		return nil, err
	}

	c := &CachedSolver{
		inner:          inner,
		db:             db,
		flushThreshold: 25,
		pendingWrites:  [][]byte{},
	}

	// close db if context cancelled
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()

	return c, nil
}

// CheckSat implements Solver. Queries that request model values bypass the cache entirely;
// the cache can only ever answer "unsat", which has no model.
func (c *CachedSolver) CheckSat(ctx context.Context, query Query) (*CheckResult, error) {
	if len(query.ValueNames) > 0 {
		return c.inner.CheckSat(ctx, query)
	}

	script, err := encodeQuery(query)
	if err != nil {
		return nil, err
	}
	key := sha256.Sum256([]byte(script))

	cached := false
	err = c.db.View(func(tx *bbolt.Tx) error {
		cached = tx.Bucket(unsatBucket).Get(key[:]) != nil
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not read solver cache")
	}
	if cached {
		return &CheckResult{Result: ResultUnsat}, nil
	}

	result, err := c.inner.CheckSat(ctx, query)
	if err != nil {
		return nil, err
	}
	if result.Result == ResultUnsat {
		if err = c.recordUnsat(key[:]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// recordUnsat queues the digest of an unsat query for persistence, flushing in batches.
func (c *CachedSolver) recordUnsat(key []byte) error {
	c.pendingWriteMutex.Lock()
	defer c.pendingWriteMutex.Unlock()

	c.pendingWrites = append(c.pendingWrites, key)
	if len(c.pendingWrites) >= c.flushThreshold {
		return c.flushWrites()
	}
	return nil
}

func (c *CachedSolver) flushWrites() error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(unsatBucket)
		for _, key := range c.pendingWrites {
			if err := bucket.Put(key, []byte{1}); err != nil {
				return err
			}
		}
		c.pendingWrites = c.pendingWrites[:0]
		return nil
	})
}

// Close flushes pending cache writes and closes the database.
func (c *CachedSolver) Close() error {
	c.pendingWriteMutex.Lock()
	defer c.pendingWriteMutex.Unlock()
	if err := c.flushWrites(); err != nil {
		return err
	}
	return c.db.Close()
}
