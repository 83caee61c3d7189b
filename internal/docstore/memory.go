package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process store. Documents keep insertion order so scans are
// deterministic.
type Memory struct {
	mu          sync.Mutex
	collections map[string]*MemoryCollection
}

type MemoryCollection struct {
	mu    sync.Mutex
	order []string
	docs  map[string]map[string]any

	// updateHook lets tests intercept UpdateFields.
	updateHook func(id string) error
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*MemoryCollection)}
}

func (m *Memory) Collection(name string) Collection {
	return m.collection(name)
}

// Named exposes the concrete collection for seeding and fault injection in
// tests.
func (m *Memory) Named(name string) *MemoryCollection {
	return m.collection(name)
}

func (m *Memory) collection(name string) *MemoryCollection {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		c = &MemoryCollection{docs: make(map[string]map[string]any)}
		m.collections[name] = c
	}
	return c
}

func (m *Memory) Ping(ctx context.Context) error  { return ctx.Err() }
func (m *Memory) Close(ctx context.Context) error { return nil }
func (m *Memory) Driver() string                  { return DriverMemory }

// Seed stores a document under a fixed id, replacing any existing one.
func (c *MemoryCollection) Seed(id string, fields map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		c.order = append(c.order, id)
	}
	c.docs[id] = copyFields(fields)
}

// FailUpdates installs a hook consulted before every UpdateFields call.
func (c *MemoryCollection) FailUpdates(hook func(id string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateHook = hook
}

func (c *MemoryCollection) Insert(ctx context.Context, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	c.Seed(id, fields)
	return id, nil
}

func (c *MemoryCollection) FindByID(ctx context.Context, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fields, ok := c.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Document{ID: id, Fields: copyFields(fields)}, nil
}

func (c *MemoryCollection) Find(ctx context.Context, filter Filter, opts FindOptions) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	out := make([]Document, 0)
	for _, id := range c.order {
		fields, ok := c.docs[id]
		if !ok || !filter.Matches(fields) {
			continue
		}
		out = append(out, Document{ID: id, Fields: copyFields(fields)})
	}
	c.mu.Unlock()

	if opts.SortDesc != "" {
		sort.SliceStable(out, func(i, j int) bool {
			return timeField(out[i].Fields, opts.SortDesc).After(timeField(out[j].Fields, opts.SortDesc))
		})
	}
	if opts.Limit > 0 && int64(len(out)) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func timeField(fields map[string]any, key string) time.Time {
	switch v := fields[key].(type) {
	case time.Time:
		return v
	case string:
		t, _ := time.Parse(time.RFC3339Nano, v)
		return t
	}
	return time.Time{}
}

func (c *MemoryCollection) Count(ctx context.Context, filter Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, fields := range c.docs {
		if filter.Matches(fields) {
			n++
		}
	}
	return n, nil
}

func (c *MemoryCollection) UpdateFields(ctx context.Context, id string, set map[string]any, unset []string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.updateHook != nil {
		if err := c.updateHook(id); err != nil {
			return 0, err
		}
	}
	fields, ok := c.docs[id]
	if !ok {
		return 0, nil
	}

	changed := false
	for k, v := range set {
		v = normalizeValue(v)
		if old, exists := fields[k]; !exists || !equalValues(old, v) || isArray(old) != isArray(v) {
			fields[k] = v
			changed = true
		}
	}
	for _, k := range unset {
		if _, exists := fields[k]; exists {
			delete(fields, k)
			changed = true
		}
	}
	if !changed {
		return 0, nil
	}
	return 1, nil
}

func (c *MemoryCollection) Replace(ctx context.Context, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		return ErrNotFound
	}
	c.docs[id] = copyFields(fields)
	return nil
}

func (c *MemoryCollection) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		return ErrNotFound
	}
	delete(c.docs, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (c *MemoryCollection) Distinct(ctx context.Context, field string, filter Filter) ([]any, error) {
	docs, err := c.Find(ctx, filter, FindOptions{})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	out := make([]any, 0)
	for _, d := range docs {
		for _, v := range collectPath(d.Fields, []string{field}) {
			if v == nil {
				continue
			}
			key := fmt.Sprintf("%T:%v", v, v)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, v)
		}
	}
	return out, nil
}

func (c *MemoryCollection) Increment(ctx context.Context, id, field string, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fields, ok := c.docs[id]
	if !ok {
		fields = make(map[string]any)
		c.docs[id] = fields
		c.order = append(c.order, id)
	}
	cur, _ := toFloat(fields[field])
	next := int64(cur) + delta
	fields[field] = next
	fields["updatedAt"] = time.Now().UTC()
	return next, nil
}
