// Package storage holds the persistence contracts shared by every backend,
// the backend and schema registries, and the batched loader that commits
// validated records.
package storage

import (
	"context"

	"fuelimport/internal/domain"
	"fuelimport/internal/lookup"
)

// BatchWriter is the part of a repository the loader needs.
type BatchWriter interface {
	// ExistingKeys reports which of keys are already persisted.
	ExistingKeys(ctx context.Context, keys []domain.NaturalKey) (map[domain.NaturalKey]bool, error)

	// InsertBatch writes recs in one transaction. inserted[i] is false when
	// recs[i] hit the natural-key unique constraint and was not written. Any
	// error means nothing was committed.
	InsertBatch(ctx context.Context, recs []domain.StoredRecord) (inserted []bool, err error)
}

// Repository is a storage backend. It doubles as the lookup collaborator for
// the pipeline, answering from the same database the records land in.
type Repository interface {
	BatchWriter
	lookup.VehicleLookup
	lookup.VehicleDetailsLookup
	lookup.ReferenceLookup
	lookup.EntityExists

	// Exec runs a raw statement, typically DDL during bootstrap.
	Exec(ctx context.Context, sql string) error
	Close()
}

// Collaborators exposes repo through every lookup slot.
func Collaborators(repo Repository) lookup.Collaborators {
	return lookup.Collaborators{Vehicles: repo, Details: repo, Prices: repo, Entities: repo}
}
