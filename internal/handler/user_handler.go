package handlers

import (
	"net/http"

	"lorelink/internal/models"
)

type UpdateProfileRequest struct {
	DisplayName *string `json:"displayName" validate:"omitempty,max=50"`
	Bio         *string `json:"bio" validate:"omitempty,max=200"`
	AvatarRef   *string `json:"avatarRef" validate:"omitempty,max=512"`
}

func (req UpdateProfileRequest) patch() models.ProfilePatch {
	return models.ProfilePatch{DisplayName: req.DisplayName, Bio: req.Bio, AvatarRef: req.AvatarRef}
}

type DeleteAccountRequest struct {
	Password string `json:"password" validate:"required"`
}

func (h *Handlers) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	profile, err := h.ProfileService.GetProfile(r.Context(), p.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, profile, http.StatusOK)
}

func (h *Handlers) UpdateCurrentUser(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	h.updateProfile(w, r, p.UserID, p.UserID)
}

func (h *Handlers) DeleteCurrentUser(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req DeleteAccountRequest
	if err := h.decode(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.AccountService.DeleteAccount(r.Context(), p.UserID, req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := principal(w, r); !ok {
		return
	}

	profile, err := h.ProfileService.GetProfile(r.Context(), pathID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, profile, http.StatusOK)
}

func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	h.updateProfile(w, r, p.UserID, pathID(r))
}

func (h *Handlers) updateProfile(w http.ResponseWriter, r *http.Request, callerID, userID string) {
	var req UpdateProfileRequest
	if err := h.decode(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	profile, err := h.ProfileService.UpdateProfile(r.Context(), callerID, userID, req.patch())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, profile, http.StatusOK)
}

func (h *Handlers) GetUserPosts(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	q, err := feedQuery(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	page, err := h.FeedService.ComposeUserFeed(r.Context(), p.UserID, pathID(r), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, page, http.StatusOK)
}

func (h *Handlers) GetUserComments(w http.ResponseWriter, r *http.Request) {
	if _, ok := principal(w, r); !ok {
		return
	}

	q, err := pageQuery(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	page, err := h.InteractionService.ListUserComments(r.Context(), pathID(r), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, page, http.StatusOK)
}
