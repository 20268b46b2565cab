package persona

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedStore fronts a Store with an expiring LRU on GetPersona. Writes go
// straight through and evict the affected entry.
type CachedStore struct {
	Store
	cache *expirable.LRU[string, Persona]
}

// NewCachedStore wraps s. size <= 0 disables the size bound.
func NewCachedStore(s Store, size int, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store: s,
		cache: expirable.NewLRU[string, Persona](size, nil, ttl),
	}
}

func (c *CachedStore) GetPersona(ctx context.Context, id string) (*Persona, error) {
	if p, ok := c.cache.Get(id); ok {
		return &p, nil
	}
	p, err := c.Store.GetPersona(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, *p)
	return p, nil
}

func (c *CachedStore) UpdatePersona(ctx context.Context, p *Persona) error {
	c.cache.Remove(p.ID)
	return c.Store.UpdatePersona(ctx, p)
}

func (c *CachedStore) DeletePersona(ctx context.Context, id string) error {
	c.cache.Remove(id)
	return c.Store.DeletePersona(ctx, id)
}
