package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kdimtricp/timelens/internal/models"
)

type TimelineRepo struct {
	db *DB
}

func NewTimelineRepo(db *DB) *TimelineRepo {
	return &TimelineRepo{db: db}
}

// TimelineQuery selects a window of the shared time axis.
type TimelineQuery struct {
	Start            time.Time
	End              time.Time
	SourceID         string
	SceneChangesOnly bool
	SceneThreshold   float64
	Limit            int
	Offset           int
}

// TimelineRow is one reconciled observation: the entry itself, its
// frame reference, the transcription active at that instant, and every
// annotation whose range contains the instant. Transcripts and
// annotations are matched by time containment; nothing has to be
// pre-linked to the entry.
type TimelineRow struct {
	Entry          models.TimelineEntry
	SourceFilename string
	SourceType     string
	Transcription  *models.Transcription
	Annotations    []*models.Annotation
}

// QueryRange runs the reconciliation query over [start, end] with
// offset/limit pagination. The total count is computed independently of
// the returned page.
func (r *TimelineRepo) QueryRange(ctx context.Context, q TimelineQuery) ([]*TimelineRow, int, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.SceneThreshold <= 0 {
		q.SceneThreshold = 95.0
	}

	where := ` WHERE t.timestamp >= ? AND t.timestamp <= ?`
	args := []any{q.Start, q.End}
	if q.SourceID != "" {
		where += " AND t.source_id = ?"
		args = append(args, q.SourceID)
	}
	if q.SceneChangesOnly {
		where += " AND t.similarity_score < ?"
		args = append(args, q.SceneThreshold)
	}

	var total int
	countQuery := r.db.bind(`SELECT COUNT(*) FROM timeline t` + where)
	if err := r.db.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count timeline entries: %w", err)
	}

	// The transcription for an entry is the direct link when the
	// ingestion pipeline set one, falling back to containment of the
	// entry timestamp in the transcription window.
	query := `
		SELECT
			t.id, t.source_id, t.timestamp, t.frame_id, t.similarity_score,
			s.filename, s.source_type,
			tr.id, tr.start_timestamp, tr.end_timestamp, tr.text, tr.confidence, tr.language, tr.speaker_name
		FROM timeline t
		JOIN sources s ON t.source_id = s.id
		LEFT JOIN transcriptions tr ON tr.id = COALESCE(
			t.transcription_id,
			(SELECT x.id FROM transcriptions x
			 WHERE x.source_id = t.source_id
			   AND x.start_timestamp <= t.timestamp
			   AND x.end_timestamp >= t.timestamp
			 ORDER BY x.start_timestamp LIMIT 1))` +
		where + `
		ORDER BY t.timestamp, t.source_id
		LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)

	rows, err := r.db.conn.QueryContext(ctx, r.db.bind(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query timeline: %w", err)
	}
	defer rows.Close()

	var result []*TimelineRow
	for rows.Next() {
		row := &TimelineRow{}
		var frameID sql.NullString
		var trID, trText, trLanguage, trSpeaker sql.NullString
		var trStart, trEnd sql.NullTime
		var trConfidence sql.NullFloat64

		if err := rows.Scan(
			&row.Entry.ID, &row.Entry.SourceID, &row.Entry.Timestamp, &frameID, &row.Entry.SimilarityScore,
			&row.SourceFilename, &row.SourceType,
			&trID, &trStart, &trEnd, &trText, &trConfidence, &trLanguage, &trSpeaker,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan timeline row: %w", err)
		}

		if frameID.Valid {
			row.Entry.FrameID = &frameID.String
		}
		if trID.Valid {
			row.Entry.TranscriptionID = &trID.String
			row.Transcription = &models.Transcription{
				ID:             trID.String,
				SourceID:       row.Entry.SourceID,
				StartTimestamp: trStart.Time,
				EndTimestamp:   trEnd.Time,
				Text:           trText.String,
				Confidence:     trConfidence.Float64,
				Language:       trLanguage.String,
				SpeakerName:    trSpeaker.String,
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := r.attachAnnotations(ctx, q, result); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// attachAnnotations matches annotations to page rows by containment of
// the entry timestamp in the annotation range.
func (r *TimelineRepo) attachAnnotations(ctx context.Context, q TimelineQuery, page []*TimelineRow) error {
	if len(page) == 0 {
		return nil
	}

	query := annotationColumns + ` WHERE start_timestamp <= ? AND end_timestamp >= ?`
	args := []any{q.End, q.Start}
	if q.SourceID != "" {
		query += " AND source_id = ?"
		args = append(args, q.SourceID)
	}
	query += " ORDER BY start_timestamp"

	rows, err := r.db.conn.QueryContext(ctx, r.db.bind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to query annotations for timeline: %w", err)
	}
	defer rows.Close()

	annotations, err := collectAnnotations(rows)
	if err != nil {
		return err
	}

	for _, row := range page {
		for _, a := range annotations {
			if a.SourceID != row.Entry.SourceID {
				continue
			}
			ts := row.Entry.Timestamp
			if !ts.Before(a.StartTimestamp) && !ts.After(a.EndTimestamp) {
				row.Annotations = append(row.Annotations, a)
			}
		}
	}
	return nil
}

// Stats summarizes the store: source totals, unique frames vs timeline
// references (the deduplication ratio), and transcription counts.
type Stats struct {
	Sources         int
	UniqueFrames    int
	TimelineEntries int
	FrameReferences int
	DedupPercent    float64
	Transcriptions  int
	Annotations     int
}

func (r *TimelineRepo) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	queries := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM sources`, &stats.Sources},
		{`SELECT COUNT(*) FROM frames`, &stats.UniqueFrames},
		{`SELECT COUNT(*) FROM timeline`, &stats.TimelineEntries},
		{`SELECT COUNT(*) FROM timeline WHERE frame_id IS NOT NULL`, &stats.FrameReferences},
		{`SELECT COUNT(*) FROM transcriptions`, &stats.Transcriptions},
		{`SELECT COUNT(*) FROM timeframe_annotations`, &stats.Annotations},
	}
	for _, q := range queries {
		if err := r.db.conn.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("failed to gather store stats: %w", err)
		}
	}

	if stats.FrameReferences > 0 {
		stats.DedupPercent = (1 - float64(stats.UniqueFrames)/float64(stats.FrameReferences)) * 100
	}
	return stats, nil
}
