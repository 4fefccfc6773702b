package auth

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/feedmod/feedmod/internal/platform/httpx"
	"github.com/feedmod/feedmod/internal/profiles"
	"github.com/feedmod/feedmod/internal/shared"
)

// SessionPath is where the bridge posts completed logins. It is exempt from
// CSRF checks because it authenticates with the bridge token instead.
const SessionPath = "/session"

// Handler binds externally authenticated users to local sessions.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
	bridgeToken    []byte
}

// NewHandler constructs a Handler instance. An empty bridge token disables
// sign-in.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, bridgeToken string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
		bridgeToken:    []byte(bridgeToken),
	}
}

// MountRoutes registers session routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post(SessionPath, h.handleSignIn)
	r.Get(SessionPath, h.handleWhoami)
	r.Post(SessionPath+"/logout", h.handleLogout)
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if !h.bridgeAuthorized(r) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "bridge token required")
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during sign-in")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	var id Identity
	if err := httpx.DecodeJSON(r, &id); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	id.DID = strings.TrimSpace(id.DID)
	if err := h.validator.Struct(id); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid identity")
		return
	}
	if err := h.service.SignIn(r.Context(), id); err != nil {
		if errors.Is(err, profiles.ErrInvalidProfile) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid identity")
			return
		}
		h.logger.Error("sign in", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	sess.Regenerate()
	sess.SetUser(id.DID)
	h.respondWhoami(w, r, sess)
}

func (h *Handler) handleWhoami(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || strings.TrimSpace(sess.User()) == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	h.respondWhoami(w, r, sess)
}

func (h *Handler) respondWhoami(w http.ResponseWriter, r *http.Request, sess *shared.Session) {
	who, err := h.service.Describe(r.Context(), sess.User())
	if err != nil {
		h.logger.Error("describe session user", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Error("issue csrf token", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	who.CSRFToken = token
	httpx.JSON(w, http.StatusOK, who)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) bridgeAuthorized(r *http.Request) bool {
	if len(h.bridgeToken) == 0 {
		return false
	}
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), h.bridgeToken) == 1
}
