package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Row is one parsed input line before postal code normalization.
type Row struct {
	Name       string `json:"name"`
	Age        int    `json:"age"`
	PostalCode string `json:"postal_code"`
}

// NormalizedRow is a Row whose PostalCode holds only digits and is never empty.
type NormalizedRow struct {
	Name       string `json:"name"`
	Age        int    `json:"age"`
	PostalCode string `json:"postal_code"`
}

// Address is the enrichment result for a postal code. A nil field was
// absent or null in the lookup response, or the lookup found nothing.
type Address struct {
	Street *string `json:"street,omitempty"`
	State  *string `json:"state,omitempty"`
	Region *string `json:"region,omitempty"`
}

// Record is the persisted, enriched form of a row. Name is the unique key.
type Record struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Age        int       `json:"age"`
	PostalCode string    `json:"postal_code"`
	Street     *string   `json:"street"`
	State      *string   `json:"state"`
	Region     *string   `json:"region"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewRecord combines a normalized row with its lookup result.
func NewRecord(row NormalizedRow, addr Address) Record {
	return Record{
		Name:       row.Name,
		Age:        row.Age,
		PostalCode: row.PostalCode,
		Street:     addr.Street,
		State:      addr.State,
		Region:     addr.Region,
	}
}

// UpdatePolicy controls how an upsert treats address fields of an existing record.
type UpdatePolicy string

const (
	// PolicyOverwrite replaces every non-key field, nulls included. Last write wins.
	PolicyOverwrite UpdatePolicy = "overwrite"
	// PolicyMerge keeps previously stored address fields when the new value is null.
	PolicyMerge UpdatePolicy = "merge"
)

// ParseUpdatePolicy maps a config value to an UpdatePolicy. Empty means overwrite.
func ParseUpdatePolicy(s string) (UpdatePolicy, error) {
	switch UpdatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyOverwrite:
		return PolicyOverwrite, nil
	case PolicyMerge:
		return PolicyMerge, nil
	default:
		return "", eris.Errorf("model: unknown update policy %q", s)
	}
}
