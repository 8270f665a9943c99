package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"story-scheduler/internal/domain"
	"story-scheduler/internal/domain/model"
	"story-scheduler/internal/usecase"
)

type scheduleRequest struct {
	PostID         string     `json:"postId"`
	Text           string     `json:"text"`
	AuthorName     string     `json:"authorName"`
	AuthorUsername string     `json:"authorUsername"`
	AuthorImageURL string     `json:"authorImageUrl"`
	PostedAt       *time.Time `json:"postedAt,omitempty"`
	Theme          string     `json:"theme,omitempty"`
	PostType       string     `json:"postType,omitempty"`
	ScheduledFor   time.Time  `json:"scheduledFor"`
}

type jobResponse struct {
	ID               string     `json:"id"`
	PostID           string     `json:"postId"`
	Theme            string     `json:"theme"`
	PostType         string     `json:"postType"`
	Status           string     `json:"status"`
	ScheduledFor     time.Time  `json:"scheduledFor"`
	ImageURL         string     `json:"imageUrl,omitempty"`
	InstagramMediaID string     `json:"instagramMediaId,omitempty"`
	PublishedAt      *time.Time `json:"publishedAt,omitempty"`
	PostedAt         *time.Time `json:"postedAt,omitempty"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

func toJobResponse(p *model.ScheduledPost) jobResponse {
	return jobResponse{
		ID:               p.ID,
		PostID:           p.PostID,
		Theme:            p.Theme,
		PostType:         string(p.PostType),
		Status:           string(p.Status),
		ScheduledFor:     p.ScheduledFor,
		ImageURL:         p.ImageURL,
		InstagramMediaID: p.InstagramMediaID,
		PublishedAt:      p.PublishedAt,
		PostedAt:         p.PostedAt,
		ErrorMessage:     p.ErrorMessage,
		CreatedAt:        p.CreatedAt,
	}
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	post, err := s.scheduleUC.Schedule(r.Context(), UserID(r.Context()), usecase.ScheduleInput{
		PostID: req.PostID,
		Content: model.PostContent{
			Text:           req.Text,
			AuthorName:     req.AuthorName,
			AuthorUsername: req.AuthorUsername,
			AuthorImageURL: req.AuthorImageURL,
			PostedAt:       req.PostedAt,
		},
		Theme:        req.Theme,
		PostType:     model.PostType(req.PostType),
		ScheduledFor: req.ScheduledFor,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJobResponse(post))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	status := model.PostStatus(r.URL.Query().Get("status"))
	posts, err := s.scheduleUC.List(r.Context(), UserID(r.Context()), status)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]jobResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, toJobResponse(p))
	}
	writeJSON(w, http.StatusOK, struct {
		Data []jobResponse `json:"data"`
	}{Data: out})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduleUC.Cancel(r.Context(), UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	post, err := s.scheduleUC.Retry(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(post))
}

func (s *Server) handleMarkPosted(w http.ResponseWriter, r *http.Request) {
	post, err := s.scheduleUC.MarkPosted(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(post))
}

type notificationResponse struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	PostID    string    `json:"postId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	notifs, err := s.scheduleUC.Notifications(r.Context(), UserID(r.Context()), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]notificationResponse, 0, len(notifs))
	for _, n := range notifs {
		out = append(out, notificationResponse{
			ID:        n.ID,
			Kind:      string(n.Kind),
			Title:     n.Title,
			Body:      n.Body,
			ImageURL:  n.ImageURL,
			PostID:    n.PostID,
			CreatedAt: n.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Data []notificationResponse `json:"data"`
	}{Data: out})
}

// writeError maps domain errors to HTTP statuses without leaking internals.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrActiveJobExists):
		http.Error(w, "A job for this post is already scheduled or running", http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.log.Error().Err(err).Msg("request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
