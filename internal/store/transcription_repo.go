package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kdimtricp/timelens/internal/models"
)

type TranscriptionRepo struct {
	db *DB
}

func NewTranscriptionRepo(db *DB) *TranscriptionRepo {
	return &TranscriptionRepo{db: db}
}

func (r *TranscriptionRepo) Create(ctx context.Context, t *models.Transcription) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	metadata, err := marshalMetadata(t.Metadata)
	if err != nil {
		return err
	}

	query := r.db.bind(`
		INSERT INTO transcriptions (
			id, source_id, start_timestamp, end_timestamp, text, confidence,
			language, model, has_overlap, overlap_start, overlap_end,
			speaker_name, speaker_confidence, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = r.db.conn.ExecContext(ctx, query,
		t.ID, t.SourceID, t.StartTimestamp, t.EndTimestamp, t.Text, t.Confidence,
		t.Language, t.Model, t.HasOverlap, t.OverlapStart, t.OverlapEnd,
		nullString(t.SpeakerName), t.SpeakerConfidence, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transcription: %w", err)
	}
	return nil
}

// LinkTimeline points existing timeline entries inside the
// transcription's window at it, so reconciliation can also ride the
// direct reference when one exists.
func (r *TranscriptionRepo) LinkTimeline(ctx context.Context, t *models.Transcription) error {
	query := r.db.bind(`
		UPDATE timeline SET transcription_id = ?
		WHERE source_id = ? AND timestamp >= ? AND timestamp <= ?`)
	if _, err := r.db.conn.ExecContext(ctx, query,
		t.ID, t.SourceID, t.StartTimestamp, t.EndTimestamp,
	); err != nil {
		return fmt.Errorf("failed to link timeline entries: %w", err)
	}
	return nil
}

func (r *TranscriptionRepo) GetByID(ctx context.Context, id string) (*models.Transcription, error) {
	query := r.db.bind(transcriptionColumns + ` WHERE id = ?`)
	t, err := scanTranscription(r.db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transcription: %w", err)
	}
	return t, nil
}

// GetByTimeRange returns transcriptions whose window intersects
// [start, end], ordered chronologically.
func (r *TranscriptionRepo) GetByTimeRange(ctx context.Context, start, end time.Time, sourceID string) ([]*models.Transcription, error) {
	query := transcriptionColumns + ` WHERE start_timestamp <= ? AND end_timestamp >= ?`
	args := []any{end, start}

	if sourceID != "" {
		query += " AND source_id = ?"
		args = append(args, sourceID)
	}
	query += " ORDER BY start_timestamp"

	rows, err := r.db.conn.QueryContext(ctx, r.db.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcriptions: %w", err)
	}
	defer rows.Close()
	return collectTranscriptions(rows)
}

// Search runs a case-insensitive substring match over stored transcript
// text, newest first, with an independently computed total.
func (r *TranscriptionRepo) Search(ctx context.Context, text, sourceID string, limit, offset int) ([]*models.Transcription, int, error) {
	where := ` WHERE LOWER(text) LIKE LOWER(?)`
	pattern := "%" + text + "%"
	args := []any{pattern}

	if sourceID != "" {
		where += " AND source_id = ?"
		args = append(args, sourceID)
	}

	var total int
	countQuery := r.db.bind(`SELECT COUNT(*) FROM transcriptions` + where)
	if err := r.db.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	query := transcriptionColumns + where + ` ORDER BY start_timestamp DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.conn.QueryContext(ctx, r.db.bind(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search transcriptions: %w", err)
	}
	defer rows.Close()

	results, err := collectTranscriptions(rows)
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

// UpdateSpeaker corrects the speaker attribution of a stored segment.
// Attribution is independently mutable after creation.
func (r *TranscriptionRepo) UpdateSpeaker(ctx context.Context, id, speakerName string, confidence float64) error {
	query := r.db.bind(`
		UPDATE transcriptions SET speaker_name = ?, speaker_confidence = ?
		WHERE id = ?`)
	result, err := r.db.conn.ExecContext(ctx, query, nullString(speakerName), confidence, id)
	if err != nil {
		return fmt.Errorf("failed to update speaker: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("transcription not found: %s", id)
	}
	return nil
}

const transcriptionColumns = `
	SELECT id, source_id, start_timestamp, end_timestamp, text, confidence,
	       language, model, has_overlap, overlap_start, overlap_end,
	       speaker_name, speaker_confidence, metadata
	FROM transcriptions`

func scanTranscription(row rowScanner) (*models.Transcription, error) {
	var t models.Transcription
	var language, model, speaker, metadata sql.NullString
	var overlapStart, overlapEnd sql.NullTime

	err := row.Scan(
		&t.ID, &t.SourceID, &t.StartTimestamp, &t.EndTimestamp, &t.Text, &t.Confidence,
		&language, &model, &t.HasOverlap, &overlapStart, &overlapEnd,
		&speaker, &t.SpeakerConfidence, &metadata,
	)
	if err != nil {
		return nil, err
	}

	t.Language = language.String
	t.Model = model.String
	t.SpeakerName = speaker.String
	if overlapStart.Valid {
		t.OverlapStart = &overlapStart.Time
	}
	if overlapEnd.Valid {
		t.OverlapEnd = &overlapEnd.Time
	}
	t.Metadata = unmarshalMetadata(metadata)
	return &t, nil
}

func collectTranscriptions(rows *sql.Rows) ([]*models.Transcription, error) {
	var results []*models.Transcription
	for rows.Next() {
		t, err := scanTranscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transcription: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
