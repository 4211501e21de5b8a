package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kdimtricp/timelens/internal/models"
	"github.com/kdimtricp/timelens/internal/store"
)

type annotationRequest struct {
	SourceID string         `json:"source_id"`
	Start    time.Time      `json:"start"`
	End      time.Time      `json:"end"`
	Type     string         `json:"type"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Author   string         `json:"author,omitempty"`
}

func (req *annotationRequest) toModel() *models.Annotation {
	return &models.Annotation{
		SourceID:       req.SourceID,
		StartTimestamp: req.Start,
		EndTimestamp:   req.End,
		Type:           req.Type,
		Content:        req.Content,
		Metadata:       req.Metadata,
		CreatedBy:      req.Author,
	}
}

func (app *App) validateAnnotation(r *http.Request, req *annotationRequest) (int, string) {
	if req.Content == "" {
		return http.StatusBadRequest, "content is required"
	}
	if req.End.Before(req.Start) {
		return http.StatusBadRequest, "end precedes start"
	}
	if !models.ValidAnnotationType(req.Type) {
		return http.StatusBadRequest, "invalid annotation type: " + req.Type
	}

	// Standalone annotations with no capture origin anchor to the
	// synthetic user-annotations source.
	if req.SourceID == "" {
		source, err := app.Sources.GetOrCreateSystem(r.Context(), models.SourceVoiceNotes, "user_annotations")
		if err != nil {
			return http.StatusInternalServerError, "failed to resolve system source: " + err.Error()
		}
		req.SourceID = source.ID
	}
	return 0, ""
}

func (app *App) CreateAnnotationHandler(w http.ResponseWriter, r *http.Request) {
	var req annotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if status, msg := app.validateAnnotation(r, &req); status != 0 {
		respondError(w, status, "%s", msg)
		return
	}

	annotation := req.toModel()
	if err := app.Annotations.Create(r.Context(), annotation); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create annotation: %v", err)
		return
	}
	respondJSON(w, http.StatusCreated, annotation)
}

func (app *App) CreateAnnotationBatchHandler(w http.ResponseWriter, r *http.Request) {
	var reqs []annotationRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if len(reqs) == 0 {
		respondError(w, http.StatusBadRequest, "empty batch")
		return
	}

	annotations := make([]*models.Annotation, 0, len(reqs))
	for i := range reqs {
		if status, msg := app.validateAnnotation(r, &reqs[i]); status != 0 {
			respondError(w, status, "annotation %d: %s", i, msg)
			return
		}
		annotations = append(annotations, reqs[i].toModel())
	}

	if err := app.Annotations.CreateBatch(r.Context(), annotations); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create annotations: %v", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"annotations": annotations})
}

func (app *App) GetAnnotationHandler(w http.ResponseWriter, r *http.Request) {
	annotation, err := app.Annotations.GetByID(r.Context(), urlParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	if annotation == nil {
		respondError(w, http.StatusNotFound, "annotation not found")
		return
	}
	respondJSON(w, http.StatusOK, annotation)
}

func (app *App) UpdateAnnotationHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content  *string        `json:"content"`
		Type     *string        `json:"type"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	update := store.AnnotationUpdate{Content: req.Content, Type: req.Type, Metadata: req.Metadata}
	if err := app.Annotations.Update(r.Context(), urlParam(r, "id"), update); err != nil {
		if strings.Contains(err.Error(), "not found") {
			respondError(w, http.StatusNotFound, "%v", err)
		} else {
			respondError(w, http.StatusBadRequest, "%v", err)
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (app *App) DeleteAnnotationHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.Annotations.Delete(r.Context(), urlParam(r, "id")); err != nil {
		respondError(w, http.StatusNotFound, "%v", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (app *App) ListAnnotationsHandler(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 50)
	offset := intParam(r, "offset", 0)
	annotations, total, err := app.Annotations.List(r.Context(),
		r.URL.Query().Get("source_id"), r.URL.Query().Get("type"), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"annotations": annotations,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}

// AnnotationRangeHandler returns annotations overlapping a time range.
func (app *App) AnnotationRangeHandler(w http.ResponseWriter, r *http.Request) {
	start, end, err := timeRangeParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "%v", err)
		return
	}

	annotations, err := app.Annotations.GetByTimeRange(r.Context(), start, end,
		r.URL.Query().Get("source_id"), r.URL.Query().Get("type"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"annotations": annotations})
}
