// Package enrich resolves the address for every normalized row and persists
// the result, one concurrent task per row.
package enrich

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/cep-loader/internal/model"
)

// Resolver looks up the address for a normalized postal code. A false result
// means nothing was found or the lookup failed.
type Resolver interface {
	Resolve(ctx context.Context, code string) (model.Address, bool)
}

// Saver persists one enriched record.
type Saver interface {
	UpsertRecord(ctx context.Context, rec model.Record) error
}

// Summary counts what happened to the rows of one run.
type Summary struct {
	Total    int `json:"total"`
	Resolved int `json:"resolved"`
	NotFound int `json:"not_found"`
	Saved    int `json:"saved"`
	Failed   int `json:"failed"`
}

// Orchestrator fans rows out to resolve+save tasks.
type Orchestrator struct {
	resolver    Resolver
	saver       Saver
	log         *zap.Logger
	concurrency int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l == nil {
			l = zap.NewNop()
		}
		o.log = l
	}
}

// WithConcurrency caps the number of rows in flight. n <= 0 starts every row at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		o.concurrency = n
	}
}

// New creates an Orchestrator.
func New(resolver Resolver, saver Saver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver: resolver,
		saver:    saver,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type counters struct {
	resolved, notFound, saved, failed atomic.Int64
}

// Run processes every row and returns once all of them have finished. A
// failure in one row is logged and counted; it never stops the others.
func (o *Orchestrator) Run(ctx context.Context, rows []model.NormalizedRow) Summary {
	var g errgroup.Group
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}

	var c counters
	for _, row := range rows {
		g.Go(func() error {
			o.processRow(ctx, row, &c)
			return nil // don't abort siblings on individual failure
		})
	}
	_ = g.Wait()

	return Summary{
		Total:    len(rows),
		Resolved: int(c.resolved.Load()),
		NotFound: int(c.notFound.Load()),
		Saved:    int(c.saved.Load()),
		Failed:   int(c.failed.Load()),
	}
}

func (o *Orchestrator) processRow(ctx context.Context, row model.NormalizedRow, c *counters) {
	log := o.log.With(zap.String("name", row.Name), zap.String("cep", row.PostalCode))
	defer func() {
		if r := recover(); r != nil {
			c.failed.Add(1)
			log.Error("row task panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()

	addr, ok := o.resolver.Resolve(ctx, row.PostalCode)
	if ok {
		c.resolved.Add(1)
	} else {
		c.notFound.Add(1)
		addr = model.Address{}
		log.Warn("address not found for CEP")
	}

	if err := o.saver.UpsertRecord(ctx, model.NewRecord(row, addr)); err != nil {
		c.failed.Add(1)
		log.Error("save record failed", zap.Error(err))
		return
	}
	c.saved.Add(1)
	log.Info("record saved", zap.Bool("address_found", ok))
}
