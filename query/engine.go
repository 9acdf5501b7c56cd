package query

import (
	"context"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"

	"nester/models"
	"nester/store"
)

// Reader is the read side of the record store.
type Reader interface {
	Query(ctx context.Context, f store.Filter) ([]models.ScanResult, error)
}

type cacheKey struct {
	generation uint64
	filter     store.Filter
}

// Engine runs listing and search against a Reader. Results can be cached;
// the cache is keyed by a generation counter that writers bump through
// Invalidate once their insert is visible.
type Engine struct {
	reader     Reader
	cache      *expirable.LRU[cacheKey, []models.ScanResult]
	generation atomic.Uint64
}

type Option func(*Engine)

// WithCache enables result caching. A size of zero leaves caching off.
func WithCache(size int, ttl time.Duration) Option {
	return func(e *Engine) {
		if size <= 0 {
			return
		}
		e.cache = expirable.NewLRU[cacheKey, []models.ScanResult](size, nil, ttl)
	}
}

func New(reader Reader, opts ...Option) (*Engine, error) {
	if reader == nil {
		return nil, errors.New("cannot instantiate a query engine, no reader provided")
	}
	e := &Engine{reader: reader}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) List(ctx context.Context) ([]models.ScanResult, error) {
	return e.Page(ctx, "", 0, 0)
}

// Search returns the rows containing term. Surrounding whitespace is
// ignored and a blank term lists everything.
func (e *Engine) Search(ctx context.Context, term string) ([]models.ScanResult, error) {
	return e.Page(ctx, term, 0, 0)
}

func (e *Engine) Page(ctx context.Context, term string, limit, offset int) ([]models.ScanResult, error) {
	f := store.Filter{Term: strings.TrimSpace(term), Limit: limit, Offset: offset}

	// snapshot before reading so a result that straddles a write is stored
	// under a generation nobody asks for again
	key := cacheKey{generation: e.generation.Load(), filter: f}
	if e.cache != nil {
		if res, ok := e.cache.Get(key); ok {
			return slices.Clone(res), nil
		}
	}

	res, err := e.reader.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Add(key, res)
	}
	return slices.Clone(res), nil
}

func (e *Engine) Invalidate() {
	e.generation.Add(1)
	if e.cache != nil {
		e.cache.Purge()
	}
}
