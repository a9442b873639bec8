package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

// NewRouter configures the download API, its legacy aliases and the health check.
func NewRouter(handler *Handler, submitLimiter *rate.Limiter) *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestLogger(handler.logger))

	submit := RateLimit(submitLimiter)(http.HandlerFunc(handler.Submit))

	r.Handle("/api/downloads", submit).Methods("POST")
	r.HandleFunc("/api/downloads", handler.List).Methods("GET")
	r.HandleFunc("/api/downloads/{id}", handler.Status).Methods("GET")
	r.HandleFunc("/api/downloads/{id}", handler.Delete).Methods("DELETE")
	r.HandleFunc("/api/downloads/{id}/file", handler.File).Methods("GET", "HEAD")

	r.Handle("/download", submit).Methods("POST")
	r.HandleFunc("/status/{id}", handler.Status).Methods("GET")
	r.HandleFunc("/download_file/{id}", handler.File).Methods("GET", "HEAD")

	r.HandleFunc("/health", handler.Health).Methods("GET")
	return r
}
