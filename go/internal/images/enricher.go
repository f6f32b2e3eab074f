package images

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Request lists the terms a round needs images for.
type Request struct {
	Location string
	// Roles maps player id to the role that player was dealt.
	Roles map[string]string
}

// Result carries whatever images were found. Missing entries mean no image.
type Result struct {
	LocationImage string
	// RoleImages maps player id to the image for that player's role.
	RoleImages map[string]string
}

// Enricher runs lookups off the caller's goroutine and reports back once.
type Enricher struct {
	cache       *Cache
	parallelism int
}

func NewEnricher(cache *Cache) *Enricher {
	return &Enricher{cache: cache, parallelism: 4}
}

// Enrich returns immediately. done is invoked exactly once from another
// goroutine after every lookup has finished or failed.
func (e *Enricher) Enrich(req Request, done func(Result)) {
	go func() {
		done(e.resolve(context.Background(), req))
	}()
}

func (e *Enricher) resolve(ctx context.Context, req Request) Result {
	res := Result{RoleImages: make(map[string]string, len(req.Roles))}
	if e.cache == nil {
		return res
	}

	// Several players often share a role; look each one up once.
	var roles []string
	seen := make(map[string]bool)
	for _, role := range req.Roles {
		if !seen[role] {
			seen[role] = true
			roles = append(roles, role)
		}
	}
	found := make(map[string]string, len(roles))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.parallelism)

	g.Go(func() error {
		url := e.cache.Get(ctx, req.Location, KindLocation)
		mu.Lock()
		res.LocationImage = url
		mu.Unlock()
		return nil
	})
	for _, role := range roles {
		g.Go(func() error {
			url := e.cache.Get(ctx, role, KindRole)
			mu.Lock()
			found[role] = url
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for playerID, role := range req.Roles {
		if url := found[role]; url != "" {
			res.RoleImages[playerID] = url
		}
	}
	return res
}
