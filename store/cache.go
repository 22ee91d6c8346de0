package store

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/becomeliminal/nim-assistant/core"
)

// CachedThreads is a read-through cache in front of a ThreadStore.
// Writes go to the inner store first and then refresh the cache.
type CachedThreads struct {
	inner ThreadStore
	cache *cache.Cache
}

// NewCachedThreads caches threads for ttl after their last access.
func NewCachedThreads(inner ThreadStore, ttl time.Duration) *CachedThreads {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CachedThreads{
		inner: inner,
		cache: cache.New(ttl, ttl/3),
	}
}

// GetThread implements ThreadStore.
func (c *CachedThreads) GetThread(ctx context.Context, id string) (*core.Thread, error) {
	if v, ok := c.cache.Get(id); ok {
		return cloneThread(v.(*core.Thread)), nil
	}
	th, err := c.inner.GetThread(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(id, cloneThread(th))
	return th, nil
}

// AppendTurns implements ThreadStore.
func (c *CachedThreads) AppendTurns(ctx context.Context, id string, turns []core.Turn, scratch core.Scratch) (*core.Thread, error) {
	th, err := c.inner.AppendTurns(ctx, id, turns, scratch)
	if err != nil {
		c.cache.Delete(id)
		return nil, err
	}
	c.cache.SetDefault(id, cloneThread(th))
	return th, nil
}

// Len returns the number of cached threads.
func (c *CachedThreads) Len() int {
	return c.cache.ItemCount()
}

func cloneThread(th *core.Thread) *core.Thread {
	out := *th
	out.Turns = append([]core.Turn(nil), th.Turns...)
	out.Scratch.LastMemories = append([]string(nil), th.Scratch.LastMemories...)
	out.Scratch.LastToolResults = append([]core.ToolExecution(nil), th.Scratch.LastToolResults...)
	if th.Scratch.Values != nil {
		out.Scratch.Values = make(map[string]string, len(th.Scratch.Values))
		for k, v := range th.Scratch.Values {
			out.Scratch.Values[k] = v
		}
	}
	return &out
}
