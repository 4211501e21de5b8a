package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kdimtricp/timelens/internal/models"
)

type AnnotationRepo struct {
	db *DB
}

func NewAnnotationRepo(db *DB) *AnnotationRepo {
	return &AnnotationRepo{db: db}
}

func (r *AnnotationRepo) Create(ctx context.Context, a *models.Annotation) error {
	if !models.ValidAnnotationType(a.Type) {
		return fmt.Errorf("invalid annotation type: %s", a.Type)
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt
	if a.CreatedBy == "" {
		a.CreatedBy = "system"
	}

	metadata, err := marshalMetadata(a.Metadata)
	if err != nil {
		return err
	}

	query := r.db.bind(`
		INSERT INTO timeframe_annotations (
			id, source_id, start_timestamp, end_timestamp, annotation_type,
			content, metadata, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = r.db.conn.ExecContext(ctx, query,
		a.ID, a.SourceID, a.StartTimestamp, a.EndTimestamp, a.Type,
		a.Content, metadata, a.CreatedBy, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert annotation: %w", err)
	}
	return nil
}

// CreateBatch inserts several annotations in one transaction.
func (r *AnnotationRepo) CreateBatch(ctx context.Context, annotations []*models.Annotation) error {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := r.db.bind(`
		INSERT INTO timeframe_annotations (
			id, source_id, start_timestamp, end_timestamp, annotation_type,
			content, metadata, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	now := time.Now()
	for _, a := range annotations {
		if !models.ValidAnnotationType(a.Type) {
			return fmt.Errorf("invalid annotation type: %s", a.Type)
		}
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		a.UpdatedAt = a.CreatedAt
		if a.CreatedBy == "" {
			a.CreatedBy = "system"
		}
		metadata, err := marshalMetadata(a.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query,
			a.ID, a.SourceID, a.StartTimestamp, a.EndTimestamp, a.Type,
			a.Content, metadata, a.CreatedBy, a.CreatedAt, a.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert annotation: %w", err)
		}
	}
	return tx.Commit()
}

// AnnotationUpdate carries the mutable annotation fields; nil means
// leave unchanged.
type AnnotationUpdate struct {
	Content  *string
	Type     *string
	Metadata map[string]any
}

func (r *AnnotationRepo) Update(ctx context.Context, id string, update AnnotationUpdate) error {
	set := ""
	var args []any

	if update.Content != nil {
		set += "content = ?, "
		args = append(args, *update.Content)
	}
	if update.Type != nil {
		if !models.ValidAnnotationType(*update.Type) {
			return fmt.Errorf("invalid annotation type: %s", *update.Type)
		}
		set += "annotation_type = ?, "
		args = append(args, *update.Type)
	}
	if update.Metadata != nil {
		metadata, err := marshalMetadata(update.Metadata)
		if err != nil {
			return err
		}
		set += "metadata = ?, "
		args = append(args, metadata)
	}
	if set == "" {
		return fmt.Errorf("no annotation fields to update")
	}

	set += "updated_at = ?"
	args = append(args, time.Now(), id)

	query := r.db.bind(`UPDATE timeframe_annotations SET ` + set + ` WHERE id = ?`)
	result, err := r.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update annotation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("annotation not found: %s", id)
	}
	return nil
}

func (r *AnnotationRepo) Delete(ctx context.Context, id string) error {
	query := r.db.bind(`DELETE FROM timeframe_annotations WHERE id = ?`)
	result, err := r.db.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete annotation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("annotation not found: %s", id)
	}
	return nil
}

func (r *AnnotationRepo) GetByID(ctx context.Context, id string) (*models.Annotation, error) {
	query := r.db.bind(annotationColumns + ` WHERE id = ?`)
	a, err := scanAnnotation(r.db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get annotation: %w", err)
	}
	return a, nil
}

// GetByTimeRange returns annotations whose range overlaps [start, end].
func (r *AnnotationRepo) GetByTimeRange(ctx context.Context, start, end time.Time, sourceID, annotationType string) ([]*models.Annotation, error) {
	query := annotationColumns + ` WHERE start_timestamp <= ? AND end_timestamp >= ?`
	args := []any{end, start}

	if sourceID != "" {
		query += " AND source_id = ?"
		args = append(args, sourceID)
	}
	if annotationType != "" {
		query += " AND annotation_type = ?"
		args = append(args, annotationType)
	}
	query += " ORDER BY start_timestamp"

	rows, err := r.db.conn.QueryContext(ctx, r.db.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotations: %w", err)
	}
	defer rows.Close()
	return collectAnnotations(rows)
}

// List pages annotations newest first with an independent total count.
func (r *AnnotationRepo) List(ctx context.Context, sourceID, annotationType string, limit, offset int) ([]*models.Annotation, int, error) {
	where := " WHERE 1=1"
	var args []any
	if sourceID != "" {
		where += " AND source_id = ?"
		args = append(args, sourceID)
	}
	if annotationType != "" {
		where += " AND annotation_type = ?"
		args = append(args, annotationType)
	}

	var total int
	countQuery := r.db.bind(`SELECT COUNT(*) FROM timeframe_annotations` + where)
	if err := r.db.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count annotations: %w", err)
	}

	query := annotationColumns + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.conn.QueryContext(ctx, r.db.bind(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list annotations: %w", err)
	}
	defer rows.Close()

	annotations, err := collectAnnotations(rows)
	if err != nil {
		return nil, 0, err
	}
	return annotations, total, nil
}

const annotationColumns = `
	SELECT id, source_id, start_timestamp, end_timestamp, annotation_type,
	       content, metadata, created_by, created_at, updated_at
	FROM timeframe_annotations`

func scanAnnotation(row rowScanner) (*models.Annotation, error) {
	var a models.Annotation
	var metadata sql.NullString
	err := row.Scan(
		&a.ID, &a.SourceID, &a.StartTimestamp, &a.EndTimestamp, &a.Type,
		&a.Content, &metadata, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Metadata = unmarshalMetadata(metadata)
	return &a, nil
}

func collectAnnotations(rows *sql.Rows) ([]*models.Annotation, error) {
	var annotations []*models.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan annotation: %w", err)
		}
		annotations = append(annotations, a)
	}
	return annotations, rows.Err()
}
