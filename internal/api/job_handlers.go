package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/kdimtricp/timelens/internal/capture"
)

// StartJobHandler kicks off batch processing of a recorded file. The
// filename is validated synchronously so a bad request fails before a
// job exists; the processing itself runs in the background.
func (app *App) StartJobHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VideoPath string `json:"video_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if req.VideoPath == "" {
		respondError(w, http.StatusBadRequest, "video_path is required")
		return
	}
	if _, err := capture.ParseVideoTimestamp(req.VideoPath); err != nil {
		respondError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if app.Pipeline == nil {
		respondError(w, http.StatusServiceUnavailable, "batch capture disabled: ffmpeg is not available")
		return
	}

	job := app.Jobs.Start(req.VideoPath)
	go app.runJob(job.ID, req.VideoPath)
	respondJSON(w, http.StatusAccepted, job)
}

func (app *App) runJob(jobID, videoPath string) {
	result, err := app.Pipeline.ProcessVideo(context.Background(), videoPath)
	if err != nil {
		var ve *capture.ValidationError
		if errors.As(err, &ve) {
			log.Printf("Job %s rejected: %v", jobID, err)
		} else {
			log.Printf("Job %s failed: %v", jobID, err)
		}
		app.Jobs.Fail(jobID, result, err.Error())
		return
	}
	app.Jobs.Complete(jobID, result)
}

func (app *App) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := app.Jobs.Get(urlParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (app *App) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"jobs": app.Jobs.List()})
}
