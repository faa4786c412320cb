package handlers

import (
	"net/http"

	"lorelink/internal/models"
)

type CreatePostRequest struct {
	Text      string `json:"text" validate:"required"`
	Generated bool   `json:"generated"`
}

type AddCommentRequest struct {
	Text string `json:"text" validate:"required"`
}

func (h *Handlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	q, err := feedQuery(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	page, err := h.FeedService.ComposeFeed(r.Context(), p.UserID, q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, page, http.StatusOK)
}

func (h *Handlers) CreatePost(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req CreatePostRequest
	if err := h.decode(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	post, err := h.PostService.CreatePost(r.Context(), p.UserID, req.Text, req.Generated)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, post, http.StatusCreated)
}

// GetPost returns the post as a thread: the feed entry plus its first page of comments.
func (h *Handlers) GetPost(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	q, err := pageQuery(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	thread, err := h.FeedService.ComposeThread(r.Context(), p.UserID, pathID(r), commentOrder(r), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, thread, http.StatusOK)
}

func (h *Handlers) DeletePost(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.PostService.DeletePost(r.Context(), pathID(r), p.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ToggleLike(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	result, err := h.InteractionService.ToggleLike(r.Context(), pathID(r), p.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, result, http.StatusOK)
}

func (h *Handlers) GetComments(w http.ResponseWriter, r *http.Request) {
	if _, ok := principal(w, r); !ok {
		return
	}

	q, err := pageQuery(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	page, err := h.InteractionService.ListComments(r.Context(), pathID(r), commentOrder(r), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, page, http.StatusOK)
}

func (h *Handlers) AddComment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req AddCommentRequest
	if err := h.decode(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	comment, err := h.InteractionService.AddComment(r.Context(), pathID(r), p.UserID, req.Text)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, comment, http.StatusCreated)
}

func commentOrder(r *http.Request) models.CommentOrder {
	return models.CommentOrder(r.URL.Query().Get("order"))
}
