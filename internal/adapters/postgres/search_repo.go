package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/pharmacover/internal/core/domain"
)

// SearchRepo implements ports.SearchRepository with pgx.
type SearchRepo struct {
	db *DB
}

// NewSearchRepo creates a new SearchRepo.
func NewSearchRepo(db *DB) *SearchRepo {
	return &SearchRepo{db: db}
}

const searchColumns = `
	s.id, s.schema_version, s.name, s.user_id,
	s.lat_min, s.lat_max, s.lon_min, s.lon_max, s.step, s.radius,
	s.total_requests, s.cells, s.failed_cells, s.created_at,
	(SELECT count(*) FROM search_places sp WHERE sp.search_id = s.id)`

func scanSearch(row pgx.Row, rec *domain.SearchRecord) error {
	return row.Scan(
		&rec.ID, &rec.SchemaVersion, &rec.Name, &rec.UserID,
		&rec.Box.LatMin, &rec.Box.LatMax, &rec.Box.LonMin, &rec.Box.LonMax,
		&rec.Policy.Step, &rec.Policy.Radius,
		&rec.TotalRequests, &rec.Cells, &rec.FailedCells, &rec.CreatedAt,
		&rec.PlaceCount,
	)
}

// Create stores the record and its places in one transaction. Places shared with
// earlier searches are stored once.
func (r *SearchRepo) Create(ctx context.Context, rec *domain.SearchRecord) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO searches (id, schema_version, name, user_id,
			                      lat_min, lat_max, lon_min, lon_max, step, radius,
			                      total_requests, cells, failed_cells, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING created_at
		`, rec.ID, rec.SchemaVersion, rec.Name, rec.UserID,
			rec.Box.LatMin, rec.Box.LatMax, rec.Box.LonMin, rec.Box.LonMax,
			rec.Policy.Step, rec.Policy.Radius,
			rec.TotalRequests, rec.Cells, rec.FailedCells, rec.CreatedAt,
		).Scan(&rec.CreatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", domain.ErrSearchNameTaken, rec.Name)
		}
		if err != nil {
			return fmt.Errorf("insert search: %w", err)
		}

		if len(rec.Places) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i, p := range rec.Places {
			batch.Queue(`
				WITH upserted AS (
					INSERT INTO places (name, address, latitude, longitude)
					VALUES ($2, $3, $4, $5)
					ON CONFLICT (name, latitude, longitude) DO UPDATE
					SET address = CASE WHEN places.address = '' THEN EXCLUDED.address ELSE places.address END
					RETURNING id
				)
				INSERT INTO search_places (search_id, place_id, position)
				SELECT $1, id, $6 FROM upserted
			`, rec.ID, p.Name, p.Address, p.Latitude, p.Longitude, i)
		}
		br := tx.SendBatch(ctx, batch)
		for range rec.Places {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("batch exec: %w", err)
			}
		}
		rec.PlaceCount = len(rec.Places)
		return br.Close()
	})
}

// GetByID returns a record with its places in their original order.
func (r *SearchRepo) GetByID(ctx context.Context, id string) (*domain.SearchRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}

	var rec domain.SearchRecord
	err := scanSearch(r.db.Pool.QueryRow(ctx, `SELECT `+searchColumns+` FROM searches s WHERE s.id = $1`, id), &rec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT p.name, p.address, p.latitude, p.longitude
		FROM search_places sp JOIN places p ON p.id = sp.place_id
		WHERE sp.search_id = $1
		ORDER BY sp.position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rec.Places = make([]domain.Place, 0, rec.PlaceCount)
	for rows.Next() {
		var p domain.Place
		if err := rows.Scan(&p.Name, &p.Address, &p.Latitude, &p.Longitude); err != nil {
			return nil, err
		}
		rec.Places = append(rec.Places, p)
	}
	return &rec, rows.Err()
}

// List returns records newest first, without places.
func (r *SearchRepo) List(ctx context.Context, userID string, offset, limit int) ([]domain.SearchRecord, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `
		SELECT count(*) FROM searches WHERE ($1 = '' OR user_id = $1)
	`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+searchColumns+`
		FROM searches s
		WHERE ($1 = '' OR s.user_id = $1)
		ORDER BY s.created_at DESC, s.name
		OFFSET $2 LIMIT $3
	`, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var recs []domain.SearchRecord
	for rows.Next() {
		var rec domain.SearchRecord
		if err := scanSearch(rows, &rec); err != nil {
			return nil, 0, err
		}
		recs = append(recs, rec)
	}
	return recs, total, rows.Err()
}

// NameExists reports whether userID already has a search called name.
func (r *SearchRepo) NameExists(ctx context.Context, userID, name string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM searches WHERE user_id = $1 AND name = $2)
	`, userID, name).Scan(&exists)
	return exists, err
}

// Delete removes a record. Shared places are kept.
func (r *SearchRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM searches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteByUser removes every record owned by userID.
func (r *SearchRepo) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM searches WHERE user_id = $1`, userID)
	return err
}

// SumRequests returns the total upstream requests over all saved searches.
func (r *SearchRepo) SumRequests(ctx context.Context) (int, error) {
	var total int
	err := r.db.Pool.QueryRow(ctx, `SELECT COALESCE(sum(total_requests), 0) FROM searches`).Scan(&total)
	return total, err
}
