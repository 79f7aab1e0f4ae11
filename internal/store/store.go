package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/cep-loader/internal/db"
	"github.com/sells-group/cep-loader/internal/model"
)

// RecordFilter specifies criteria for listing records.
type RecordFilter struct {
	State  string `json:"state,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for enriched records.
type Store interface {
	// UpsertRecord creates the record for rec.Name or replaces its fields
	// according to the store's update policy.
	UpsertRecord(ctx context.Context, rec model.Record) error
	// GetRecord returns nil, nil when no record has the name.
	GetRecord(ctx context.Context, name string) (*model.Record, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.Record, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	policy model.UpdatePolicy
}

// WithUpdatePolicy sets how upserts treat address fields of existing records.
func WithUpdatePolicy(p model.UpdatePolicy) Option {
	return func(o *options) {
		if p != "" {
			o.policy = p
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{policy: model.PolicyOverwrite}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

const recordsTable = "records"

// recordColumns is the argument order of upsertArgs.
var recordColumns = []string{"id", "name", "age", "postal_code", "street", "state", "region", "created_at", "updated_at"}

// upsertSQL builds the record upsert for a dialect. id and created_at are
// set on insert only.
func upsertSQL(d db.Dialect, policy model.UpdatePolicy) (string, error) {
	cfg := db.UpsertConfig{
		Table:        recordsTable,
		Columns:      recordColumns,
		ConflictKeys: []string{"name"},
		UpdateCols:   []string{"age", "postal_code", "street", "state", "region", "updated_at"},
	}
	if policy == model.PolicyMerge {
		cfg.PreserveCols = []string{"street", "state", "region"}
	}
	return db.UpsertStatement(d, cfg)
}

func upsertArgs(rec model.Record, now time.Time) []any {
	return []any{
		uuid.New().String(),
		rec.Name,
		rec.Age,
		rec.PostalCode,
		rec.Street,
		rec.State,
		rec.Region,
		now,
		now,
	}
}

func listLimit(filter RecordFilter) int {
	if filter.Limit <= 0 {
		return 100
	}
	return filter.Limit
}
