package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
)

// CreateSessionHandler provisions an ingest session and returns its
// stream key.
func (app *App) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
	}

	session, err := app.Sessions.CreateSession(req.Name)
	if err != nil {
		respondError(w, statusForSessionError(err), "%v", err)
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

func (app *App) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"sessions": app.Sessions.Sessions()})
}

func (app *App) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := app.Sessions.GetSession(urlParam(r, "key"))
	if !ok {
		respondError(w, http.StatusNotFound, "unknown stream key")
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (app *App) StopSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.Sessions.Stop(r.Context(), urlParam(r, "key")); err != nil {
		respondError(w, statusForSessionError(err), "%v", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

func (app *App) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.Sessions.DeleteSession(r.Context(), urlParam(r, "key")); err != nil {
		respondError(w, statusForSessionError(err), "%v", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// OnPublishHandler is the relay's authorization callback. The relay
// posts the stream key as form value "name" and the publisher address
// as "addr". Any non-2xx answer makes the relay drop the publisher, so
// unknown keys must never return 200.
func (app *App) OnPublishHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form: %v", err)
		return
	}
	streamKey := r.FormValue("name")
	clientAddr := r.FormValue("addr")
	if clientAddr == "" {
		clientAddr = r.RemoteAddr
	}

	session, err := app.Sessions.AcceptPublish(r.Context(), streamKey, clientAddr)
	if err != nil {
		log.Printf("Rejected publish for key %q from %s: %v", streamKey, clientAddr, err)
		respondError(w, http.StatusForbidden, "publish rejected")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted", "session_id": session.ID})
}

func (app *App) OnPublishDoneHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form: %v", err)
		return
	}

	if err := app.Sessions.NotifyPublishDone(r.Context(), r.FormValue("name")); err != nil {
		// The publisher is gone either way; an already-ended session is
		// not an error worth failing the callback over.
		log.Printf("Publish-done for key %q: %v", r.FormValue("name"), err)
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// IngestFrameHandler accepts one binary frame payload for a live
// session.
func (app *App) IngestFrameHandler(w http.ResponseWriter, r *http.Request) {
	imageBytes, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 16<<20))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "frame too large: %v", err)
		return
	}
	if len(imageBytes) == 0 {
		respondError(w, http.StatusBadRequest, "empty frame payload")
		return
	}

	if err := app.Sessions.IngestFrame(r.Context(), urlParam(r, "key"), imageBytes); err != nil {
		respondError(w, statusForSessionError(err), "%v", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
