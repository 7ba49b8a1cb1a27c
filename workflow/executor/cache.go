package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/enqbot/enqbot/core"
)

// Cache holds workflow executors between tasks so an instance's history does
// not have to be replayed for every task.
type Cache interface {
	Store(ctx context.Context, instance *core.WorkflowInstance, workflow WorkflowExecutor) error
	Get(ctx context.Context, instance *core.WorkflowInstance) (WorkflowExecutor, bool, error)
	Evict(ctx context.Context, instance *core.WorkflowInstance) error

	StartEviction(ctx context.Context)
}

type lruCache struct {
	c *ttlcache.Cache[string, WorkflowExecutor]
}

var _ Cache = (*lruCache)(nil)

func NewCache(size int, ttl time.Duration) Cache {
	c := ttlcache.New(
		ttlcache.WithCapacity[string, WorkflowExecutor](uint64(size)),
		ttlcache.WithTTL[string, WorkflowExecutor](ttl),
	)

	c.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, i *ttlcache.Item[string, WorkflowExecutor]) {
		// Stop the executor's coroutines when it leaves the cache
		i.Value().Close()
	})

	return &lruCache{
		c: c,
	}
}

func (lc *lruCache) Get(ctx context.Context, instance *core.WorkflowInstance) (WorkflowExecutor, bool, error) {
	e := lc.c.Get(cacheKey(instance))
	if e != nil {
		return e.Value(), true, nil
	}

	return nil, false, nil
}

func (lc *lruCache) Store(ctx context.Context, instance *core.WorkflowInstance, workflow WorkflowExecutor) error {
	lc.c.Set(cacheKey(instance), workflow, ttlcache.DefaultTTL)

	return nil
}

func (lc *lruCache) Evict(ctx context.Context, instance *core.WorkflowInstance) error {
	lc.c.Delete(cacheKey(instance))

	return nil
}

func (lc *lruCache) StartEviction(ctx context.Context) {
	go lc.c.Start()

	<-ctx.Done()

	lc.c.Stop()

	// Close any executors still cached, their coroutines would leak otherwise
	lc.c.DeleteAll()
}

func cacheKey(instance *core.WorkflowInstance) string {
	return fmt.Sprintf("%s-%s", instance.InstanceID, instance.ExecutionID)
}
