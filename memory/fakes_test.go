package memory_test

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/memory"
)

// fakeDurable is an in-memory store.MemoryStore that counts calls.
type fakeDurable struct {
	mu       sync.Mutex
	records  map[string]*core.Memory
	inserts  int
	reads    int
	failNext bool
	block    bool
	nextID   int
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{records: make(map[string]*core.Memory)}
}

func (f *fakeDurable) InsertMemory(ctx context.Context, mem *core.Memory) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return "", errors.New("disk full")
	}
	f.inserts++
	f.nextID++
	id := fmt.Sprintf("mem-%03d", f.nextID)
	cp := *mem
	cp.ID = id
	f.records[id] = &cp
	return id, nil
}

func (f *fakeDurable) GetMemory(ctx context.Context, id string) (*core.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	m, ok := f.records[id]
	if !ok {
		return nil, &core.NotFoundError{Kind: "memory", ID: id}
	}
	cp := *m
	return &cp, nil
}

func (f *fakeDurable) SetMemoryIndexID(ctx context.Context, id, indexID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.records[id]
	if !ok {
		return &core.NotFoundError{Kind: "memory", ID: id}
	}
	m.IndexID = indexID
	return nil
}

func (f *fakeDurable) ListUnindexedMemories(ctx context.Context, limit int) ([]*core.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	var out []*core.Memory
	for _, m := range f.records {
		if m.IndexID == "" {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeDurable) MaxImportanceByEntity(ctx context.Context, ids []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return map[string]float64{}, nil
}

// fakeIndex records entries and serves scripted or computed hits.
type fakeIndex struct {
	mu      sync.Mutex
	entries map[string]memory.Entry
	adds    int
	fail    bool
	hits    []memory.Hit
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{entries: make(map[string]memory.Entry)}
}

func (f *fakeIndex) Add(ctx context.Context, e memory.Entry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("index unavailable")
	}
	f.adds++
	f.entries[e.ID] = e
	return e.ID, nil
}

// Query returns the scripted hits as-is, ignoring thresholds, so tests
// can check the manager enforces them.
func (f *fakeIndex) Query(ctx context.Context, vec []float32, q memory.Query) ([]memory.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("index unavailable")
	}
	return append([]memory.Hit(nil), f.hits...), nil
}

func (f *fakeIndex) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// countingEmbedder wraps an embedder and counts calls.
type countingEmbedder struct {
	inner memory.Embedder
	mu    sync.Mutex
	calls int
	fail  bool
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	c.calls++
	fail := c.fail
	c.mu.Unlock()
	if fail {
		return nil, errors.New("embedding service down")
	}
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }

// conceptEmbedder maps words onto shared concept dimensions so that
// paraphrases land close together. Unknown words hash into their own
// buckets and stop words are dropped.
type conceptEmbedder struct{}

var concepts = map[string]int{
	"email": 0, "phone": 0, "contacted": 0, "contact": 0, "call": 0, "reach": 0, "emails": 0,
	"prefers": 1, "prefer": 1, "like": 1, "likes": 1, "preference": 1,
	"miller": 2,
	"invoice": 3, "payment": 3, "pay": 3,
}

var stopWords = map[string]bool{
	"how": true, "does": true, "to": true, "be": true, "over": true, "the": true,
	"a": true, "an": true, "of": true, "is": true, "and": true, "for": true,
}

const (
	conceptDims = 4
	hashBuckets = 64
)

func (conceptEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, conceptDims+hashBuckets)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'")
		if w == "" || stopWords[w] {
			continue
		}
		if d, ok := concepts[w]; ok {
			vec[d]++
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[conceptDims+int(h.Sum32()%hashBuckets)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

func (conceptEmbedder) Dimensions() int { return conceptDims + hashBuckets }
