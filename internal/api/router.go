package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)

	// Media relay callbacks (form-encoded, nginx-rtmp convention).
	r.Post("/callbacks/on_publish", app.OnPublishHandler)
	r.Post("/callbacks/on_publish_done", app.OnPublishDoneHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", app.StatusHandler)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", app.CreateSessionHandler)
			r.Get("/", app.ListSessionsHandler)
			r.Get("/{key}", app.GetSessionHandler)
			r.Post("/{key}/stop", app.StopSessionHandler)
			r.Delete("/{key}", app.DeleteSessionHandler)
		})

		r.Post("/streams/{key}/frame", app.IngestFrameHandler)

		r.Get("/timeline", app.TimelineHandler)
		r.Get("/transcripts/search", app.SearchTranscriptsHandler)
		r.Put("/transcripts/{id}/speaker", app.UpdateSpeakerHandler)

		r.Route("/annotations", func(r chi.Router) {
			r.Post("/", app.CreateAnnotationHandler)
			r.Post("/batch", app.CreateAnnotationBatchHandler)
			r.Get("/", app.ListAnnotationsHandler)
			r.Get("/range", app.AnnotationRangeHandler)
			r.Get("/{id}", app.GetAnnotationHandler)
			r.Put("/{id}", app.UpdateAnnotationHandler)
			r.Delete("/{id}", app.DeleteAnnotationHandler)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", app.StartJobHandler)
			r.Get("/", app.ListJobsHandler)
			r.Get("/{id}", app.GetJobHandler)
		})
	})

	return r
}
