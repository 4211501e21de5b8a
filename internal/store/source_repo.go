package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kdimtricp/timelens/internal/models"
)

type SourceRepo struct {
	db *DB
}

func NewSourceRepo(db *DB) *SourceRepo {
	return &SourceRepo{db: db}
}

func (r *SourceRepo) Create(ctx context.Context, source *models.Source) error {
	metadata, err := marshalMetadata(source.Metadata)
	if err != nil {
		return err
	}
	if source.CreatedAt.IsZero() {
		source.CreatedAt = time.Now()
	}

	query := r.db.bind(`
		INSERT INTO sources (id, source_type, filename, start_timestamp, end_timestamp, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	_, err = r.db.conn.ExecContext(ctx, query,
		source.ID,
		source.Type,
		source.Filename,
		source.StartTimestamp,
		source.EndTimestamp,
		metadata,
		source.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert source: %w", err)
	}
	return nil
}

// UpdateEnd closes a source. The end timestamp is the only field mutable
// after creation.
func (r *SourceRepo) UpdateEnd(ctx context.Context, sourceID string, end time.Time) error {
	query := r.db.bind(`UPDATE sources SET end_timestamp = ? WHERE id = ?`)
	result, err := r.db.conn.ExecContext(ctx, query, end, sourceID)
	if err != nil {
		return fmt.Errorf("failed to update source end: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("source not found: %s", sourceID)
	}
	return nil
}

func (r *SourceRepo) GetByID(ctx context.Context, id string) (*models.Source, error) {
	query := r.db.bind(`
		SELECT id, source_type, filename, start_timestamp, end_timestamp, metadata, created_at
		FROM sources WHERE id = ?`)

	source, err := scanSource(r.db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return source, nil
}

func (r *SourceRepo) List(ctx context.Context) ([]*models.Source, error) {
	query := `
		SELECT id, source_type, filename, start_timestamp, end_timestamp, metadata, created_at
		FROM sources ORDER BY start_timestamp DESC`

	rows, err := r.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

// GetOrCreateSystem returns the synthetic source used to anchor entities
// that have no capture origin, e.g. standalone user annotations. The
// lookup is keyed by filename and guarded by the store itself rather
// than a process-level cache.
func (r *SourceRepo) GetOrCreateSystem(ctx context.Context, sourceType, filename string) (*models.Source, error) {
	query := r.db.bind(`
		SELECT id, source_type, filename, start_timestamp, end_timestamp, metadata, created_at
		FROM sources WHERE source_type = ? AND filename = ? LIMIT 1`)

	source, err := scanSource(r.db.conn.QueryRowContext(ctx, query, sourceType, filename))
	if err == nil {
		return source, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up system source: %w", err)
	}

	source = models.NewSource(sourceType, filename, time.Now(), map[string]any{"system": true})
	if err := r.Create(ctx, source); err != nil {
		// Lost a create race; the winner's row is the one we want.
		if existing, lookupErr := r.lookupByName(ctx, sourceType, filename); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return source, nil
}

func (r *SourceRepo) lookupByName(ctx context.Context, sourceType, filename string) (*models.Source, error) {
	query := r.db.bind(`
		SELECT id, source_type, filename, start_timestamp, end_timestamp, metadata, created_at
		FROM sources WHERE source_type = ? AND filename = ? LIMIT 1`)
	source, err := scanSource(r.db.conn.QueryRowContext(ctx, query, sourceType, filename))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return source, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*models.Source, error) {
	var source models.Source
	var end sql.NullTime
	var metadata sql.NullString

	err := row.Scan(
		&source.ID,
		&source.Type,
		&source.Filename,
		&source.StartTimestamp,
		&end,
		&metadata,
		&source.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if end.Valid {
		source.EndTimestamp = &end.Time
	}
	source.Metadata = unmarshalMetadata(metadata)
	return &source, nil
}
