package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kdimtricp/timelens/internal/models"
)

type FrameRepo struct {
	db *DB
}

func NewFrameRepo(db *DB) *FrameRepo {
	return &FrameRepo{db: db}
}

// Observation is one frame sighting at one instant, after the
// deduplicator has decided whether it is novel.
type Observation struct {
	SourceID       string
	Timestamp      time.Time
	PerceptualHash string
	Similarity     float64
	ShouldStore    bool
	ImageData      []byte
	Metadata       map[string]any
}

// RecordObservation persists one observation as a single transaction:
// either a new frame row or a last-seen bump on the matching frame, plus
// the append-only timeline entry. Entries for a source must be recorded
// in non-decreasing timestamp order; the caller's ingestion path is the
// serialization point.
func (r *FrameRepo) RecordObservation(ctx context.Context, obs Observation) (*models.TimelineEntry, error) {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var frameID *string

	if obs.ShouldStore {
		metadata, err := marshalMetadata(obs.Metadata)
		if err != nil {
			return nil, err
		}
		id := uuid.New().String()
		query := r.db.bind(`
			INSERT INTO frames (id, source_id, first_seen_timestamp, last_seen_timestamp, perceptual_hash, image_data, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, query,
			id, obs.SourceID, obs.Timestamp, obs.Timestamp, obs.PerceptualHash, obs.ImageData, metadata,
		); err != nil {
			return nil, fmt.Errorf("failed to insert frame: %w", err)
		}
		frameID = &id
	} else {
		// Duplicate observation: advance last-seen on the canonical frame.
		query := r.db.bind(`
			SELECT id FROM frames
			WHERE source_id = ? AND perceptual_hash = ?
			LIMIT 1`)
		var id string
		err := tx.QueryRowContext(ctx, query, obs.SourceID, obs.PerceptualHash).Scan(&id)
		switch {
		case err == sql.ErrNoRows:
			// Duplicate of a frame this store never saw (e.g. baseline
			// carried over a restart). The timeline entry still records
			// the sighting, just without a frame reference.
		case err != nil:
			return nil, fmt.Errorf("failed to look up frame by hash: %w", err)
		default:
			update := r.db.bind(`UPDATE frames SET last_seen_timestamp = ? WHERE id = ?`)
			if _, err := tx.ExecContext(ctx, update, obs.Timestamp, id); err != nil {
				return nil, fmt.Errorf("failed to update frame last seen: %w", err)
			}
			frameID = &id
		}
	}

	entry := &models.TimelineEntry{
		ID:              uuid.New().String(),
		SourceID:        obs.SourceID,
		Timestamp:       obs.Timestamp,
		FrameID:         frameID,
		SimilarityScore: obs.Similarity,
	}
	insert := r.db.bind(`
		INSERT INTO timeline (id, source_id, timestamp, frame_id, transcription_id, similarity_score)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insert,
		entry.ID, entry.SourceID, entry.Timestamp, frameID, nil, entry.SimilarityScore,
	); err != nil {
		return nil, fmt.Errorf("failed to insert timeline entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit observation: %w", err)
	}
	return entry, nil
}

func (r *FrameRepo) GetByID(ctx context.Context, id string) (*models.Frame, error) {
	query := r.db.bind(`
		SELECT id, source_id, first_seen_timestamp, last_seen_timestamp, perceptual_hash, image_data, metadata
		FROM frames WHERE id = ?`)

	var frame models.Frame
	var metadata sql.NullString
	err := r.db.conn.QueryRowContext(ctx, query, id).Scan(
		&frame.ID,
		&frame.SourceID,
		&frame.FirstSeenAt,
		&frame.LastSeenAt,
		&frame.PerceptualHash,
		&frame.ImageData,
		&metadata,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get frame: %w", err)
	}
	frame.Metadata = unmarshalMetadata(metadata)
	return &frame, nil
}

// GetByTimeRange returns the distinct frames observed in [start, end],
// resolved through the timeline.
func (r *FrameRepo) GetByTimeRange(ctx context.Context, start, end time.Time, sourceID string) ([]*models.Frame, error) {
	query := `
		SELECT DISTINCT f.id, f.source_id, f.first_seen_timestamp, f.last_seen_timestamp, f.perceptual_hash, f.image_data, f.metadata
		FROM frames f
		JOIN timeline t ON f.id = t.frame_id
		WHERE t.timestamp >= ? AND t.timestamp <= ?`
	args := []any{start, end}

	if sourceID != "" {
		query += " AND f.source_id = ?"
		args = append(args, sourceID)
	}
	query += " ORDER BY f.first_seen_timestamp"

	rows, err := r.db.conn.QueryContext(ctx, r.db.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	var frames []*models.Frame
	for rows.Next() {
		var frame models.Frame
		var metadata sql.NullString
		if err := rows.Scan(
			&frame.ID,
			&frame.SourceID,
			&frame.FirstSeenAt,
			&frame.LastSeenAt,
			&frame.PerceptualHash,
			&frame.ImageData,
			&metadata,
		); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		frame.Metadata = unmarshalMetadata(metadata)
		frames = append(frames, &frame)
	}
	return frames, rows.Err()
}

// CountBySource reports unique stored frames for a source.
func (r *FrameRepo) CountBySource(ctx context.Context, sourceID string) (int, error) {
	query := r.db.bind(`SELECT COUNT(*) FROM frames WHERE source_id = ?`)
	var count int
	if err := r.db.conn.QueryRowContext(ctx, query, sourceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count frames: %w", err)
	}
	return count, nil
}
