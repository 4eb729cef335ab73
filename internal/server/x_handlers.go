package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dgellow/x-connect/internal/auth"
	"github.com/dgellow/x-connect/internal/cookie"
	jsonwriter "github.com/dgellow/x-connect/internal/json"
	"github.com/dgellow/x-connect/internal/log"
	"github.com/dgellow/x-connect/internal/session"
	"github.com/dgellow/x-connect/internal/storage"
	"github.com/dgellow/x-connect/internal/xoauth"
)

// MaxActivityLimit caps the limit query parameter of the activity endpoint.
const MaxActivityLimit = 100

// XConnector is the connection service used by the X handlers.
type XConnector interface {
	Start() (*auth.AuthorizationRequest, error)
	Complete(ctx context.Context, userID string, params auth.CallbackParams) (*auth.Connection, error)
	Disconnect(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (*auth.Status, error)
	Profile(ctx context.Context, userID string) (*xoauth.Profile, error)
	Activity(ctx context.Context, userID string, limit int) ([]storage.AuditLog, error)
}

// XHandlers serves the X connection endpoints. Every handler expects
// NewRequireAuthMiddleware to have run first.
type XHandlers struct {
	service       XConnector
	connectionURL string
}

// NewXHandlers creates the handlers. connectionURL is where the browser is
// sent once the OAuth callback finishes.
func NewXHandlers(service XConnector, connectionURL string) *XHandlers {
	return &XHandlers{
		service:       service,
		connectionURL: connectionURL,
	}
}

type statusResponse struct {
	Connected bool       `json:"connected"`
	XUsername *string    `json:"x_username"`
	XUserID   *string    `json:"x_user_id"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type disconnectResponse struct {
	Disconnected bool `json:"disconnected"`
}

// StartHandler sets the flow cookies and redirects to X
func (h *XHandlers) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	req, err := h.service.Start()
	if err != nil {
		log.LogErrorWithFields("x_handlers", "Failed to start X OAuth flow", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to start X OAuth flow", "")
		return
	}

	cookie.SetOAuthFlow(w, req.State, req.Verifier)
	http.Redirect(w, r, req.URL, http.StatusFound)
}

// CallbackHandler completes the flow started by StartHandler
func (h *XHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	user, ok := session.UserFromContext(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w)
		return
	}

	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		log.LogWarnWithFields("x_handlers", "X authorization denied", map[string]any{
			"user":  user.ID,
			"error": providerErr,
		})
		cookie.ClearOAuthFlow(w)
		http.Redirect(w, r, h.redirectWithError(providerErr), http.StatusFound)
		return
	}

	code := query.Get("code")
	returnedState := query.Get("state")
	if code == "" || returnedState == "" {
		jsonwriter.WriteBadRequest(w, "Missing code or state")
		return
	}

	storedState, verifier := cookie.GetOAuthFlow(r)
	_, err := h.service.Complete(r.Context(), user.ID, auth.CallbackParams{
		Code:        code,
		State:       returnedState,
		StoredState: storedState,
		Verifier:    verifier,
	})
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidStateOrVerifier):
		jsonwriter.WriteBadRequest(w, "Invalid OAuth state")
		return
	case errors.Is(err, auth.ErrStoreFailed):
		jsonwriter.WriteInternalServerError(w, "Failed to save X tokens", err.Error())
		return
	default:
		jsonwriter.WriteInternalServerError(w, "X OAuth callback failed", err.Error())
		return
	}

	cookie.ClearOAuthFlow(w)
	http.Redirect(w, r, h.connectionURL, http.StatusFound)
}

// DisconnectHandler removes the caller's X connection
func (h *XHandlers) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	user, ok := session.UserFromContext(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w)
		return
	}

	if err := h.service.Disconnect(r.Context(), user.ID); err != nil {
		if errors.Is(err, auth.ErrAuditLogFailed) {
			jsonwriter.WriteInternalServerError(w, "Disconnected but failed to write audit log", err.Error())
			return
		}
		log.LogErrorWithFields("x_handlers", "Failed to disconnect X account", map[string]any{
			"user":  user.ID,
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to disconnect X account", err.Error())
		return
	}

	_ = jsonwriter.WriteData(w, disconnectResponse{Disconnected: true}, "Disconnected successfully")
}

// StatusHandler reports whether the caller has an X connection
func (h *XHandlers) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	user, ok := session.UserFromContext(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w)
		return
	}

	status, err := h.service.Status(r.Context(), user.ID)
	if err != nil {
		jsonwriter.WriteInternalServerError(w, "Failed to load X connection status", err.Error())
		return
	}

	resp := statusResponse{Connected: status.Connected}
	if status.Connected {
		resp.XUsername = &status.XUsername
		resp.XUserID = &status.XUserID
		if !status.ExpiresAt.IsZero() {
			expiresAt := status.ExpiresAt.UTC()
			resp.ExpiresAt = &expiresAt
		}
	}
	_ = jsonwriter.WriteData(w, resp, "")
}

// ProfileHandler returns the live X profile of the connected account
func (h *XHandlers) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	user, ok := session.UserFromContext(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w)
		return
	}

	profile, err := h.service.Profile(r.Context(), user.ID)
	if errors.Is(err, auth.ErrNotConnected) {
		jsonwriter.WriteNotFound(w, "X account not connected")
		return
	}
	if err != nil {
		jsonwriter.WriteError(w, http.StatusBadGateway, "Failed to fetch X profile", err.Error())
		return
	}
	_ = jsonwriter.WriteData(w, profile, "")
}

// ActivityHandler lists the caller's recent connection events
func (h *XHandlers) ActivityHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	user, ok := session.UserFromContext(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w)
		return
	}

	limit := auth.DefaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			jsonwriter.WriteBadRequest(w, "Invalid limit")
			return
		}
		limit = min(n, MaxActivityLimit)
	}

	entries, err := h.service.Activity(r.Context(), user.ID, limit)
	if err != nil {
		jsonwriter.WriteInternalServerError(w, "Failed to load activity", err.Error())
		return
	}
	if entries == nil {
		entries = []storage.AuditLog{}
	}
	_ = jsonwriter.WriteData(w, entries, "")
}

func (h *XHandlers) redirectWithError(providerErr string) string {
	u, err := url.Parse(h.connectionURL)
	if err != nil {
		return h.connectionURL
	}
	q := u.Query()
	q.Set("x_error", providerErr)
	u.RawQuery = q.Encode()
	return u.String()
}
