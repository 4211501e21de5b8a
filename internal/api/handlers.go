// Package api is the HTTP boundary: relay callbacks, frame ingestion,
// session management, timeline queries, transcript search, annotations,
// and batch capture jobs.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/kdimtricp/timelens/internal/capture"
	"github.com/kdimtricp/timelens/internal/dedup"
	"github.com/kdimtricp/timelens/internal/store"
	"github.com/kdimtricp/timelens/internal/stream"
)

type App struct {
	Sessions       *stream.Manager
	Dedup          *dedup.Deduplicator
	Sources        *store.SourceRepo
	Frames         *store.FrameRepo
	Transcriptions *store.TranscriptionRepo
	Annotations    *store.AnnotationRepo
	Timeline       *store.TimelineRepo
	Pipeline       *capture.Pipeline
	Jobs           *capture.JobRegistry
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, format string, args ...any) {
	respondJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// statusForSessionError maps the session manager's failure kinds onto
// HTTP statuses.
func statusForSessionError(err error) int {
	switch {
	case errors.Is(err, stream.ErrUnknownStreamKey):
		return http.StatusNotFound
	case errors.Is(err, stream.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, stream.ErrCapacity):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// StatusHandler reports the stream manager summary plus store totals.
func (app *App) StatusHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := app.Timeline.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to gather stats: %v", err)
		return
	}
	tracked, threshold := app.Dedup.Stats()
	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": app.Sessions.Status(),
		"store": map[string]any{
			"sources":          stats.Sources,
			"unique_frames":    stats.UniqueFrames,
			"timeline_entries": stats.TimelineEntries,
			"frame_references": stats.FrameReferences,
			"dedup_percent":    stats.DedupPercent,
			"transcriptions":   stats.Transcriptions,
			"annotations":      stats.Annotations,
		},
		"dedup": map[string]any{
			"sources_tracked":      tracked,
			"similarity_threshold": threshold,
		},
	})
}

// TimelineHandler runs the reconciliation query over a time range.
func (app *App) TimelineHandler(w http.ResponseWriter, r *http.Request) {
	query := store.TimelineQuery{
		SourceID:         r.URL.Query().Get("source_id"),
		SceneChangesOnly: r.URL.Query().Get("scene_changes_only") == "true",
		Limit:            intParam(r, "limit", 100),
		Offset:           intParam(r, "offset", 0),
		SceneThreshold:   app.Dedup.Threshold(),
	}

	var err error
	query.Start, query.End, err = timeRangeParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "%v", err)
		return
	}

	rows, total, err := app.Timeline.QueryRange(r.Context(), query)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "timeline query failed: %v", err)
		return
	}

	entries := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		entry := map[string]any{
			"id":               row.Entry.ID,
			"source_id":        row.Entry.SourceID,
			"source_filename":  row.SourceFilename,
			"source_type":      row.SourceType,
			"timestamp":        row.Entry.Timestamp,
			"similarity_score": row.Entry.SimilarityScore,
			"scene_changed":    row.Entry.SceneChanged(app.Dedup.Threshold()),
		}
		if row.Entry.FrameID != nil {
			entry["frame_id"] = *row.Entry.FrameID
		}
		if row.Transcription != nil {
			entry["transcription"] = map[string]any{
				"id":         row.Transcription.ID,
				"start":      row.Transcription.StartTimestamp,
				"end":        row.Transcription.EndTimestamp,
				"text":       row.Transcription.Text,
				"confidence": row.Transcription.Confidence,
				"speaker":    row.Transcription.SpeakerName,
			}
		}
		if len(row.Annotations) > 0 {
			entry["annotations"] = row.Annotations
		}
		entries = append(entries, entry)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
		"limit":   query.Limit,
		"offset":  query.Offset,
	})
}

// SearchTranscriptsHandler is the paginated substring search over
// stored transcript text.
func (app *App) SearchTranscriptsHandler(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("q")
	if text == "" {
		respondError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	limit := intParam(r, "limit", 50)
	offset := intParam(r, "offset", 0)
	results, total, err := app.Transcriptions.Search(r.Context(), text, r.URL.Query().Get("source_id"), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "search failed: %v", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// UpdateSpeakerHandler corrects speaker attribution on a stored segment.
func (app *App) UpdateSpeakerHandler(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	var req struct {
		SpeakerName string  `json:"speaker_name"`
		Confidence  float64 `json:"confidence"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	if err := app.Transcriptions.UpdateSpeaker(r.Context(), id, req.SpeakerName, req.Confidence); err != nil {
		respondError(w, http.StatusNotFound, "%v", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func intParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// timeRangeParams parses start/end query params as RFC3339, defaulting
// to the last hour.
func timeRangeParams(r *http.Request) (time.Time, time.Time, error) {
	end := time.Now()
	start := end.Add(-time.Hour)

	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %v", err)
		}
		start = t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %v", err)
		}
		end = t
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end time precedes start time")
	}
	return start, end, nil
}
