package domain

import (
	"context"
	"time"
)

// Station is a charging-station listing.
// ID is zero until the record has been persisted; the store assigns it on first insert.
type Station struct {
	ID       int64
	Name     string
	Price    float64
	Address  string
	ImageRef string
}

// OrderField is a column stations can be sorted by.
type OrderField string

const (
	OrderByID    OrderField = "id"
	OrderByName  OrderField = "name"
	OrderByPrice OrderField = "price"
)

// OrderSpec is a resolved (field, direction) pair for sorted listings.
type OrderSpec struct {
	Field     OrderField
	Ascending bool
}

// ImageUsage is the reference state of an image key. UpdatedAt is the last time a
// reference was taken or released; both fields are zero for untracked keys.
type ImageUsage struct {
	References int
	UpdatedAt  time.Time
}

// StationRepository persists stations and tracks how many of them reference each image key.
type StationRepository interface {
	FindAll(ctx context.Context) ([]*Station, error)

	// FindByID returns nil and no error when the station does not exist.
	FindByID(ctx context.Context, id int64) (*Station, error)

	// FindAllOrderedByName returns at most limit stations ordered by name.
	// A limit of zero or less yields an empty slice.
	FindAllOrderedByName(ctx context.Context, limit int) ([]*Station, error)
	FindAllSorted(ctx context.Context, order OrderSpec) ([]*Station, error)

	// Save inserts the station when ID is zero, otherwise replaces the row at ID in full.
	// Image reference counts are adjusted in the same transaction.
	Save(ctx context.Context, s *Station) (*Station, error)
	DeleteByID(ctx context.Context, id int64) error

	// ImageReferences reports how many stations currently reference the image key.
	ImageReferences(ctx context.Context, key string) (int, error)
	ImageUsage(ctx context.Context, key string) (ImageUsage, error)
	// PruneImage forgets key if no station references it, reporting whether it did.
	PruneImage(ctx context.Context, key string) (bool, error)
}
