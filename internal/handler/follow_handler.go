package handlers

import (
	"context"
	"net/http"

	"lorelink/internal/models"
)

// ToggleFollow follows or unfollows the user in the path on behalf of the caller.
func (h *Handlers) ToggleFollow(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	result, err := h.FollowService.ToggleFollow(r.Context(), p.UserID, pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, result, http.StatusOK)
}

func (h *Handlers) GetFollowers(w http.ResponseWriter, r *http.Request) {
	h.listFollows(w, r, h.FollowService.ListFollowers)
}

func (h *Handlers) GetFollowing(w http.ResponseWriter, r *http.Request) {
	h.listFollows(w, r, h.FollowService.ListFollowing)
}

func (h *Handlers) listFollows(w http.ResponseWriter, r *http.Request, list func(context.Context, string, models.PageQuery) (*models.FollowPage, error)) {
	if _, ok := principal(w, r); !ok {
		return
	}

	q, err := pageQuery(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	page, err := list(r.Context(), pathID(r), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, page, http.StatusOK)
}
