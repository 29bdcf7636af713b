package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/queuetify/internal/models"
	"github.com/desertthunder/queuetify/internal/shared"
)

const (
	SessionCookie = "queuetify_session"
	RoleCookie    = "queuetify_role"
	HostCookie    = "queuetify_host"
	stateCookie   = "queuetify_oauth_state"
	stateTTL      = 10 * time.Minute

	RoleHost = "host"
	RolePeer = "peer"
)

// OAuthHandler runs the authorization code flow that creates a session.
// Implements the [Handler] interface for registration with a [Router].
//
// GET /create stores a random state in a short-lived cookie and redirects to Spotify.
// GET /callback checks that state, exchanges the code, and creates a session owned by the caller.
type OAuthHandler struct {
	auth   Authenticator
	store  models.Store
	secure bool
	logger *log.Logger
}

// NewOAuthHandler creates an OAuth handler that persists new sessions to store.
func NewOAuthHandler(auth Authenticator, store models.Store, secure bool, logger *log.Logger) *OAuthHandler {
	return &OAuthHandler{auth: auth, store: store, secure: secure, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"/create", "/callback"}
}

// ServeHTTP dispatches on the request path.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch r.URL.Path {
	case "/create":
		h.create(w, r)
	case "/callback":
		h.callback(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *OAuthHandler) create(w http.ResponseWriter, r *http.Request) {
	state, err := shared.GenerateState()
	if err != nil {
		h.logger.Error("failed to generate state", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateTTL / time.Second),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusFound)
}

func (h *OAuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || query.Get("state") != cookie.Value {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	code := query.Get("code")
	if code == "" {
		h.logger.Warn("authorization denied", "error", query.Get("error"), "description", query.Get("error_description"))
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	creds, err := h.auth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("token exchange failed", "error", err)
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	if user, err := h.auth.UserProfile(r.Context(), *creds); err != nil {
		h.logger.Warn("profile lookup failed, market resolves from token", "error", err)
	} else {
		creds.Market = user.Country
	}

	hostToken, err := shared.GenerateState()
	if err != nil {
		h.logger.Error("failed to generate host token", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	session := &models.Session{ID: shared.GenerateID(), Credentials: *creds, HostTokenHash: shared.HashToken(hostToken)}
	if err := h.store.CreateSession(r.Context(), session); err != nil {
		h.logger.Error("failed to create session", "error", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	h.logger.Info("session created", "session", session.ID, "market", creds.Market)
	setMembership(w, session.ID, RoleHost, h.secure)
	http.SetCookie(w, &http.Cookie{
		Name:     HostCookie,
		Value:    hostToken,
		Path:     "/session/" + session.ID,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: session.ID})
}

// setMembership records which session the browser belongs to and in what role.
// The role is a display hint only; host authority is the [HostCookie] token.
func setMembership(w http.ResponseWriter, sessionID, role string, secure bool) {
	for name, value := range map[string]string{SessionCookie: sessionID, RoleCookie: role} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
