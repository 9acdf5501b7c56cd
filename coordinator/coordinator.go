// Package coordinator arbitrates between the ingestion path and the read
// path over one shared record store.
//
// Writers from this process are serialized by a mutex so the engine never
// sees two of them at once; readers take no lock and rely on the engine's
// isolation to see each row either fully written or not at all.
package coordinator

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"nester/models"
	"nester/validation"
)

type Store interface {
	Insert(ctx context.Context, r *models.ScanResult) (uint, error)
	Get(ctx context.Context, id uint) (*models.ScanResult, error)
	Count(ctx context.Context) (int64, error)
}

type Engine interface {
	Search(ctx context.Context, term string) ([]models.ScanResult, error)
	Page(ctx context.Context, term string, limit, offset int) ([]models.ScanResult, error)
	Invalidate()
}

type Coordinator struct {
	store  Store
	engine Engine
	log    zerolog.Logger

	writeMu sync.Mutex
}

func New(store Store, engine Engine, log zerolog.Logger) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("cannot instantiate a coordinator, no store provided")
	}
	if engine == nil {
		return nil, errors.New("cannot instantiate a coordinator, no query engine provided")
	}
	return &Coordinator{store: store, engine: engine, log: log}, nil
}

// IngestJSON decodes body and ingests it.
func (c *Coordinator) IngestJSON(ctx context.Context, body []byte) (uint, error) {
	payload, err := validation.Decode(body)
	if err != nil {
		return 0, err
	}
	return c.Ingest(ctx, payload)
}

// Ingest validates payload and appends it to the store. Validation runs
// before the write lock is taken; the cache is invalidated only once the
// insert has committed.
func (c *Coordinator) Ingest(ctx context.Context, payload map[string]any) (uint, error) {
	record, err := validation.Validate(payload)
	if err != nil {
		return 0, err
	}

	id, err := c.insert(ctx, record)
	if err != nil {
		return 0, err
	}
	c.engine.Invalidate()

	c.log.Debug().
		Uint("id", id).
		Str("franchise_id", record.FranchiseID).
		Str("ip_address", record.IPAddress).
		RawJSON("scan_data", record.ScanData).
		Msg("scan result stored")
	return id, nil
}

func (c *Coordinator) insert(ctx context.Context, record *models.ScanResult) (uint, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.store.Insert(ctx, record)
}

func (c *Coordinator) Search(ctx context.Context, term string) ([]models.ScanResult, error) {
	return c.engine.Search(ctx, term)
}

func (c *Coordinator) Page(ctx context.Context, term string, limit, offset int) ([]models.ScanResult, error) {
	return c.engine.Page(ctx, term, limit, offset)
}

func (c *Coordinator) Get(ctx context.Context, id uint) (*models.ScanResult, error) {
	return c.store.Get(ctx, id)
}

func (c *Coordinator) Count(ctx context.Context) (int64, error) {
	return c.store.Count(ctx)
}
