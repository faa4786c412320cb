package handlers

import (
	"net/http"
)

type RegisterRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
	Gender          string `json:"gender" validate:"omitempty,oneof=male female unspecified"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := h.decode(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	reg, err := h.AccountService.Register(r.Context(), req.Email, req.Password, req.ConfirmPassword, req.Gender)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, reg, http.StatusCreated)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.decode(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	sess, err := h.AuthService.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, sess, http.StatusOK)
}

func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := h.decode(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	sess, err := h.AuthService.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, sess, http.StatusOK)
}

func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	principalID, err := h.AccountService.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, map[string]any{"principalId": principalID, "verified": true}, http.StatusOK)
}

func (h *Handlers) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.decode(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.AccountService.ResendVerification(r.Context(), req.Email, req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, MessageResponse{Message: "verification email sent"}, http.StatusAccepted)
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.AuthService.SignOut(r.Context(), p.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := h.decode(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.AuthService.ChangePassword(r.Context(), p.UserID, req.OldPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, MessageResponse{Message: "password changed"}, http.StatusOK)
}
