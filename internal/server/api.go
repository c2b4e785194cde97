package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sorilabs/sori/internal/content"
	"github.com/sorilabs/sori/internal/observe"
	"github.com/sorilabs/sori/internal/segment"
)

// lessonResponse is the GET /api/lessons/{id} body: the lesson plus its
// segmented practice sentences.
type lessonResponse struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Language  string             `json:"language"`
	Sentences []segment.Sentence `json:"sentences"`
}

// errorResponse is the JSON error body for all API endpoints.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleListLessons(w http.ResponseWriter, r *http.Request) {
	sums, err := s.cfg.Store.List(r.Context())
	if err != nil {
		s.apiError(w, r, http.StatusInternalServerError, "listing lessons failed", err)
		return
	}
	if sums == nil {
		sums = []content.LessonSummary{}
	}
	writeJSON(w, http.StatusOK, sums)
}

func (s *Server) handleGetLesson(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	lesson, err := s.cfg.Store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			s.apiError(w, r, http.StatusNotFound, "lesson not found", err)
			return
		}
		s.apiError(w, r, http.StatusInternalServerError, "loading lesson failed", err)
		return
	}

	writeJSON(w, http.StatusOK, lessonResponse{
		ID:        lesson.ID,
		Title:     lesson.Title,
		Language:  lesson.Language,
		Sentences: lesson.Sentences(),
	})
}

func (s *Server) handleCreateLesson(w http.ResponseWriter, r *http.Request) {
	var lesson content.Lesson
	if err := json.NewDecoder(r.Body).Decode(&lesson); err != nil {
		s.apiError(w, r, http.StatusBadRequest, "invalid lesson body", err)
		return
	}
	if err := s.cfg.Store.Create(r.Context(), &lesson); err != nil {
		s.apiError(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}
	writeJSON(w, http.StatusCreated, lesson)
}

func (s *Server) handleDeleteLesson(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Store.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.apiError(w, r, http.StatusInternalServerError, "deleting lesson failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiError(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	observe.Logger(r.Context()).Warn("api error",
		"path", r.URL.Path, "status", status, "err", err)
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
