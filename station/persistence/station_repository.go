package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dfryer1193/evstations/shared/db"
	"github.com/dfryer1193/evstations/station/domain"
)

var _ domain.StationRepository = (*SQLiteStationRepository)(nil)

// SQLiteStationRepository implements domain.StationRepository using SQLite.
// It also owns the images table, which counts how many stations reference each image key.
type SQLiteStationRepository struct {
	db *sql.DB
}

func NewStationRepository(sqlDB *sql.DB) *SQLiteStationRepository {
	return &SQLiteStationRepository{
		db: sqlDB,
	}
}

const stationColumns = `id, name, price, address, image_ref`

const findAllStationsQuery = `
	SELECT ` + stationColumns + `
	FROM stations
	ORDER BY id ASC
`

func (r *SQLiteStationRepository) FindAll(ctx context.Context) ([]*domain.Station, error) {
	return r.queryStations(ctx, findAllStationsQuery)
}

const findStationByIDQuery = `
	SELECT ` + stationColumns + `
	FROM stations
	WHERE id = ?
`

// FindByID returns nil, nil when no station has the given id.
func (r *SQLiteStationRepository) FindByID(ctx context.Context, id int64) (*domain.Station, error) {
	var row stationRow
	err := db.GetExecutor(ctx, r.db).QueryRowContext(ctx, findStationByIDQuery, id).Scan(
		&row.ID,
		&row.Name,
		&row.Price,
		&row.Address,
		&row.ImageRef,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get station %d: %w: %w", id, domain.ErrStorageRead, err)
	}

	return row.toDomain(), nil
}

const findStationsOrderedByNameQuery = `
	SELECT ` + stationColumns + `
	FROM stations
	ORDER BY name ASC, id ASC
	LIMIT ?
`

func (r *SQLiteStationRepository) FindAllOrderedByName(ctx context.Context, limit int) ([]*domain.Station, error) {
	if limit <= 0 {
		return []*domain.Station{}, nil
	}
	return r.queryStations(ctx, findStationsOrderedByNameQuery, limit)
}

var orderColumns = map[domain.OrderField]string{
	domain.OrderByID:    "id",
	domain.OrderByName:  "name",
	domain.OrderByPrice: "price",
}

func (r *SQLiteStationRepository) FindAllSorted(ctx context.Context, order domain.OrderSpec) ([]*domain.Station, error) {
	column, ok := orderColumns[order.Field]
	if !ok {
		return nil, fmt.Errorf("%w: unknown order field %q", domain.ErrInvalidArgument, order.Field)
	}

	direction := "DESC"
	if order.Ascending {
		direction = "ASC"
	}

	// column and direction come from fixed sets, never from caller input
	query := fmt.Sprintf("SELECT %s FROM stations ORDER BY %s %s, id %s", stationColumns, column, direction, direction)
	return r.queryStations(ctx, query)
}

const insertStationQuery = `
	INSERT INTO stations (name, price, address, image_ref)
	VALUES (?, ?, ?, ?)
`

const replaceStationQuery = `
	INSERT INTO stations (id, name, price, address, image_ref)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		price = excluded.price,
		address = excluded.address,
		image_ref = excluded.image_ref
`

const findImageRefQuery = `SELECT image_ref FROM stations WHERE id = ?`

// Save inserts s when its ID is zero and replaces the row at s.ID otherwise.
// The image reference counts for the previous and new image are updated in the same transaction.
func (r *SQLiteStationRepository) Save(ctx context.Context, s *domain.Station) (*domain.Station, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: station cannot be nil", domain.ErrInvalidArgument)
	}
	if s.ID < 0 {
		return nil, fmt.Errorf("%w: station ID cannot be negative", domain.ErrInvalidArgument)
	}

	saved := *s
	err := db.RunInTransaction(ctx, r.db, func(txCtx context.Context) error {
		executor := db.GetExecutor(txCtx, r.db)

		previousRef := ""
		if saved.ID == 0 {
			result, err := executor.ExecContext(txCtx, insertStationQuery, saved.Name, saved.Price, saved.Address, saved.ImageRef)
			if err != nil {
				return fmt.Errorf("failed to insert station: %w: %w", domain.ErrStorageWrite, err)
			}
			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to read new station id: %w: %w", domain.ErrStorageWrite, err)
			}
			saved.ID = id
		} else {
			err := executor.QueryRowContext(txCtx, findImageRefQuery, saved.ID).Scan(&previousRef)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to read station %d: %w: %w", saved.ID, domain.ErrStorageRead, err)
			}

			_, err = executor.ExecContext(txCtx, replaceStationQuery, saved.ID, saved.Name, saved.Price, saved.Address, saved.ImageRef)
			if err != nil {
				return fmt.Errorf("failed to replace station %d: %w: %w", saved.ID, domain.ErrStorageWrite, err)
			}
		}

		return r.moveImageReference(txCtx, executor, domain.ImageKeyFromRef(previousRef), domain.ImageKeyFromRef(saved.ImageRef))
	})
	if err != nil {
		return nil, err
	}

	return &saved, nil
}

const deleteStationQuery = `DELETE FROM stations WHERE id = ?`

// DeleteByID removes the station and releases its image reference.
// It fails with domain.ErrNotFound when no station has the given id.
func (r *SQLiteStationRepository) DeleteByID(ctx context.Context, id int64) error {
	return db.RunInTransaction(ctx, r.db, func(txCtx context.Context) error {
		executor := db.GetExecutor(txCtx, r.db)

		var imageRef string
		err := executor.QueryRowContext(txCtx, findImageRefQuery, id).Scan(&imageRef)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("station %d: %w", id, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read station %d: %w: %w", id, domain.ErrStorageRead, err)
		}

		if _, err := executor.ExecContext(txCtx, deleteStationQuery, id); err != nil {
			return fmt.Errorf("failed to delete station %d: %w: %w", id, domain.ErrStorageWrite, err)
		}

		return r.moveImageReference(txCtx, executor, domain.ImageKeyFromRef(imageRef), "")
	})
}

const imageRefCountQuery = `SELECT ref_count FROM images WHERE key = ?`

// ImageReferences returns the number of stations referencing key; untracked keys have zero.
func (r *SQLiteStationRepository) ImageReferences(ctx context.Context, key string) (int, error) {
	var count int
	err := db.GetExecutor(ctx, r.db).QueryRowContext(ctx, imageRefCountQuery, key).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count references to image %s: %w: %w", key, domain.ErrStorageRead, err)
	}
	return count, nil
}

const imageUsageQuery = `SELECT ref_count, updated_at FROM images WHERE key = ?`

// ImageUsage returns the reference count of key and when it last changed. Untracked keys yield the zero value.
func (r *SQLiteStationRepository) ImageUsage(ctx context.Context, key string) (domain.ImageUsage, error) {
	var (
		count     int
		updatedAt int64
	)
	err := db.GetExecutor(ctx, r.db).QueryRowContext(ctx, imageUsageQuery, key).Scan(&count, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ImageUsage{}, nil
	}
	if err != nil {
		return domain.ImageUsage{}, fmt.Errorf("failed to read usage of image %s: %w: %w", key, domain.ErrStorageRead, err)
	}
	return domain.ImageUsage{
		References: count,
		UpdatedAt:  time.Unix(0, updatedAt),
	}, nil
}

const pruneImageQuery = `DELETE FROM images WHERE key = ? AND ref_count = 0`

// PruneImage forgets an image key that no station references. It reports whether a row was removed.
func (r *SQLiteStationRepository) PruneImage(ctx context.Context, key string) (bool, error) {
	result, err := db.GetExecutor(ctx, r.db).ExecContext(ctx, pruneImageQuery, key)
	if err != nil {
		return false, fmt.Errorf("failed to prune image %s: %w: %w", key, domain.ErrStorageWrite, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to prune image %s: %w: %w", key, domain.ErrStorageWrite, err)
	}
	return n > 0, nil
}

const acquireImageQuery = `
	INSERT INTO images (key, ref_count, created_at, updated_at)
	VALUES (?, 1, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		ref_count = images.ref_count + 1,
		updated_at = excluded.updated_at
`

const releaseImageQuery = `
	UPDATE images
	SET ref_count = ref_count - 1, updated_at = ?
	WHERE key = ? AND ref_count > 0
`

func (r *SQLiteStationRepository) moveImageReference(ctx context.Context, executor db.Executor, from, to string) error {
	if from == to {
		return nil
	}

	// timestamps are stored as unix nanoseconds
	now := time.Now().UnixNano()
	if from != "" {
		if _, err := executor.ExecContext(ctx, releaseImageQuery, now, from); err != nil {
			return fmt.Errorf("failed to release image %s: %w: %w", from, domain.ErrStorageWrite, err)
		}
	}
	if to != "" {
		if _, err := executor.ExecContext(ctx, acquireImageQuery, to, now, now); err != nil {
			return fmt.Errorf("failed to acquire image %s: %w: %w", to, domain.ErrStorageWrite, err)
		}
	}
	return nil
}

func (r *SQLiteStationRepository) queryStations(ctx context.Context, query string, args ...any) ([]*domain.Station, error) {
	rows, err := db.GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stations: %w: %w", domain.ErrStorageRead, err)
	}
	defer rows.Close()

	stations := make([]*domain.Station, 0)
	for rows.Next() {
		var row stationRow
		err := rows.Scan(
			&row.ID,
			&row.Name,
			&row.Price,
			&row.Address,
			&row.ImageRef,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan station row: %w: %w", domain.ErrStorageRead, err)
		}
		stations = append(stations, row.toDomain())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating station rows: %w: %w", domain.ErrStorageRead, err)
	}

	return stations, nil
}

// stationRow is a private struct used to scan database rows
type stationRow struct {
	ID       int64   `db:"id"`
	Name     string  `db:"name"`
	Price    float64 `db:"price"`
	Address  string  `db:"address"`
	ImageRef string  `db:"image_ref"`
}

func (sr *stationRow) toDomain() *domain.Station {
	return &domain.Station{
		ID:       sr.ID,
		Name:     sr.Name,
		Price:    sr.Price,
		Address:  sr.Address,
		ImageRef: sr.ImageRef,
	}
}
