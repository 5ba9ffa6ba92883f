// Package repository persists widget entities. Two backends implement the
// same interface: a namespaced key-value store with a maintained id index,
// and a SQLite document table with secondary indexes. Callers depend only on
// Repository, so a networked backend can slot in later.
package repository

import (
	"context"

	"github.com/gridline-labs/gridboard/internal/entity"
)

// Repository stores and retrieves widget entities by id.
//
// Load returns (nil, nil) when no entity exists under the id; errors are
// reserved for storage failures. Delete is idempotent.
type Repository interface {
	Save(ctx context.Context, e *entity.Entity) error
	Load(ctx context.Context, id string) (*entity.Entity, error)
	LoadAll(ctx context.Context) ([]*entity.Entity, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}
