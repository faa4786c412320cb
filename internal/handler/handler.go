package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"lorelink/internal/config"
	"lorelink/internal/models"
	"lorelink/internal/service"
	"lorelink/internal/session"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Handlers struct {
	AuthService        service.AuthService
	AccountService     service.AccountService
	ProfileService     service.ProfileService
	PostService        service.PostService
	InteractionService service.InteractionService
	FollowService      service.FollowService
	FeedService        service.FeedService
	Health             HealthChecker
	Cfg                *config.Config
	Validate           *validator.Validate
}

func NewHandlers(services *service.Service, health HealthChecker, cfg *config.Config) *Handlers {
	return &Handlers{
		AuthService:        services.Auth,
		AccountService:     services.Account,
		ProfileService:     services.Profile,
		PostService:        services.Post,
		InteractionService: services.Interaction,
		FollowService:      services.Follow,
		FeedService:        services.Feed,
		Health:             health,
		Cfg:                cfg,
		Validate:           validator.New(),
	}
}

// Routes registers the HTTP surface on r. Everything under /api except the
// public auth endpoints passes through auth first.
func (h *Handlers) Routes(r *mux.Router, auth mux.MiddlewareFunc) {
	r.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/refresh-token", h.RefreshToken).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/verify", h.VerifyEmail).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/resend-verification", h.ResendVerification).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth)

	api.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)
	api.HandleFunc("/auth/password", h.ChangePassword).Methods(http.MethodPut)

	api.HandleFunc("/me", h.GetCurrentUser).Methods(http.MethodGet)
	api.HandleFunc("/me", h.UpdateCurrentUser).Methods(http.MethodPatch)
	api.HandleFunc("/me", h.DeleteCurrentUser).Methods(http.MethodDelete)

	api.HandleFunc("/users/{id}", h.GetUser).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", h.UpdateUser).Methods(http.MethodPatch)
	api.HandleFunc("/users/{id}/posts", h.GetUserPosts).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/comments", h.GetUserComments).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/follow", h.ToggleFollow).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}/followers", h.GetFollowers).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/following", h.GetFollowing).Methods(http.MethodGet)

	api.HandleFunc("/feed", h.GetFeed).Methods(http.MethodGet)
	api.HandleFunc("/posts", h.CreatePost).Methods(http.MethodPost)
	api.HandleFunc("/posts/{id}", h.GetPost).Methods(http.MethodGet)
	api.HandleFunc("/posts/{id}", h.DeletePost).Methods(http.MethodDelete)
	api.HandleFunc("/posts/{id}/like", h.ToggleLike).Methods(http.MethodPost)
	api.HandleFunc("/posts/{id}/comments", h.GetComments).Methods(http.MethodGet)
	api.HandleFunc("/posts/{id}/comments", h.AddComment).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(h.RequireAdmin)
	admin.HandleFunc("/consistency", h.GetCounterDrift).Methods(http.MethodGet)
	admin.HandleFunc("/consistency/{id}/repair", h.RepairCounters).Methods(http.MethodPost)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, "route not found", http.StatusNotFound)
	})
}

func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.HealthCheck(r.Context()); err != nil {
			writeSuccess(w, map[string]string{"status": "unhealthy", "error": err.Error()}, http.StatusServiceUnavailable)
			return
		}
	}
	writeSuccess(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// decode reads a JSON body into dst and runs struct validation.
func (h *Handlers) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body", models.ErrValidation)
	}
	if err := h.Validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", models.ErrValidation, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		if fe.Param() != "" {
			return fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
	return "invalid request"
}

// pageQuery reads ?cursor= and ?limit=.
func pageQuery(r *http.Request) (models.PageQuery, error) {
	var q models.PageQuery

	cursor, err := models.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		return q, err
	}
	q.Cursor = cursor

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return q, fmt.Errorf("%w: limit must be a positive integer", models.ErrValidation)
		}
		q.Limit = limit
	}
	return q, nil
}

func feedQuery(r *http.Request) (models.FeedQuery, error) {
	page, err := pageQuery(r)
	if err != nil {
		return models.FeedQuery{}, err
	}

	since, err := models.DecodeCursor(r.URL.Query().Get("since"))
	if err != nil {
		return models.FeedQuery{}, err
	}
	if since != nil && page.Cursor != nil {
		return models.FeedQuery{}, fmt.Errorf("%w: cursor and since are mutually exclusive", models.ErrValidation)
	}

	return models.FeedQuery{Cursor: page.Cursor, Since: since, Limit: page.Limit}, nil
}

// principal is the authenticated caller. The auth middleware guarantees it on /api routes,
// so a miss is reported as AuthRequired rather than trusted.
func principal(w http.ResponseWriter, r *http.Request) (session.Principal, bool) {
	p, err := session.Require(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return session.Principal{}, false
	}
	return p, true
}

func pathID(r *http.Request) string {
	return mux.Vars(r)["id"]
}
