package images

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Kind distinguishes what a term names, since the same word can be both a
// location and a role.
type Kind string

const (
	KindLocation Kind = "location"
	KindRole     Kind = "role"
)

// Lookup outcomes reported to the Recorder.
const (
	OutcomeHit      = "hit"
	OutcomeFetched  = "fetched"
	OutcomeFailed   = "failed"
	OutcomeDisabled = "disabled"
)

var ErrDisabled = errors.New("image lookup disabled")

// Searcher resolves a free-text query to an image URL.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Recorder receives one call per lookup.
type Recorder interface {
	RecordImageLookup(kind string, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordImageLookup(string, string) {}

// Disabled is a Searcher used when no image provider is configured.
type Disabled struct{}

func (Disabled) Search(context.Context, string) (string, error) {
	return "", ErrDisabled
}

type cacheKey struct {
	term string
	kind Kind
}

// Cache memoizes successful lookups per (term, kind) and collapses
// concurrent lookups of the same key into one provider call. Failures are not
// cached so a later round can retry.
type Cache struct {
	searcher Searcher
	timeout  time.Duration
	recorder Recorder

	mu      sync.RWMutex
	entries map[cacheKey]string
	group   singleflight.Group
}

func NewCache(searcher Searcher, timeout time.Duration, recorder Recorder) *Cache {
	if searcher == nil {
		searcher = Disabled{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Cache{
		searcher: searcher,
		timeout:  timeout,
		recorder: recorder,
		entries:  make(map[cacheKey]string),
	}
}

// Get returns the image URL for term, or "" when none could be found.
func (c *Cache) Get(ctx context.Context, term string, kind Kind) string {
	term = strings.TrimSpace(term)
	if term == "" {
		return ""
	}
	key := cacheKey{term: strings.ToLower(term), kind: kind}

	c.mu.RLock()
	url, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.recorder.RecordImageLookup(string(kind), OutcomeHit)
		return url
	}

	v, err, _ := c.group.Do(string(kind)+"\x00"+key.term, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		url, err := c.searcher.Search(lookupCtx, query(term, kind))
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.entries[key] = url
		c.mu.Unlock()
		return url, nil
	})
	if err != nil {
		if errors.Is(err, ErrDisabled) {
			c.recorder.RecordImageLookup(string(kind), OutcomeDisabled)
			return ""
		}
		log.Warn().Err(err).Str("term", term).Str("kind", string(kind)).Msg("image lookup failed")
		c.recorder.RecordImageLookup(string(kind), OutcomeFailed)
		return ""
	}

	c.recorder.RecordImageLookup(string(kind), OutcomeFetched)
	return v.(string)
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func query(term string, kind Kind) string {
	if kind == KindRole {
		return term + " person"
	}
	return term
}
