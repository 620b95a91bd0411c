// Package revocation answers whether an authority's revocation reference has
// been revoked. The validator treats any lookup error as revoked.
package revocation

import (
	"context"
	"strings"
	"sync"
)

// Registry is consulted by the action validator.
type Registry interface {
	IsRevoked(ctx context.Context, ref string) (bool, error)
}

// MemoryRegistry is an in-process set of revoked references.
type MemoryRegistry struct {
	mu      sync.RWMutex
	revoked map[string]struct{}
}

func NewMemoryRegistry(refs ...string) *MemoryRegistry {
	r := &MemoryRegistry{revoked: make(map[string]struct{}, len(refs))}
	for _, ref := range refs {
		r.Revoke(ref)
	}
	return r
}

// Revoke marks ref as revoked. Blank references are ignored.
func (r *MemoryRegistry) Revoke(ref string) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return
	}
	r.mu.Lock()
	r.revoked[ref] = struct{}{}
	r.mu.Unlock()
}

// Reinstate removes ref from the revoked set.
func (r *MemoryRegistry) Reinstate(ref string) {
	r.mu.Lock()
	delete(r.revoked, strings.TrimSpace(ref))
	r.mu.Unlock()
}

// Replace swaps the whole revoked set atomically.
func (r *MemoryRegistry) Replace(refs []string) {
	next := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if ref = strings.TrimSpace(ref); ref != "" {
			next[ref] = struct{}{}
		}
	}
	r.mu.Lock()
	r.revoked = next
	r.mu.Unlock()
}

func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.revoked)
}

func (r *MemoryRegistry) IsRevoked(ctx context.Context, ref string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	_, ok := r.revoked[strings.TrimSpace(ref)]
	r.mu.RUnlock()
	return ok, nil
}
