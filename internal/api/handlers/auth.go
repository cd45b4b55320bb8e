package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ams-cubing/public-calendar/internal/api/middleware"
	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/ams-cubing/public-calendar/internal/auth/oauth"
	"github.com/ams-cubing/public-calendar/internal/domain/users"
	"github.com/rs/zerolog"
)

// StateCookieName holds the OAuth state token between login and callback.
const StateCookieName = "ams_oauth_state"

const (
	loginFailedPath = "/?error=login_failed"
	msgSignedOut    = "Sesión cerrada"
)

type OAuthClient interface {
	GenerateAuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (*oauth.Profile, error)
}

type StateIssuer interface {
	Issue(returnTo string) (string, error)
	Verify(param, cookie string) (*auth.StateClaims, error)
}

type SessionManager interface {
	Start(ctx context.Context, wcaID, ipAddress, userAgent string) (string, time.Time, error)
	End(ctx context.Context, token string) error
	TTL() time.Duration
}

type AccountService interface {
	SyncFromWCA(ctx context.Context, profile oauth.Profile) (*users.User, error)
	Get(ctx context.Context, wcaID string) (*users.User, error)
}

type AuthConfig struct {
	StateTTL          time.Duration
	SecureCookies     bool
	TrustedProxyCIDRs []string
}

// AuthHandler signs users in with their WCA account.
type AuthHandler struct {
	oauth    OAuthClient
	state    StateIssuer
	sessions SessionManager
	accounts AccountService
	cfg      AuthConfig
	env      string
}

func NewAuthHandler(client OAuthClient, state StateIssuer, sessions SessionManager, accounts AccountService, cfg AuthConfig, env string) *AuthHandler {
	return &AuthHandler{oauth: client, state: state, sessions: sessions, accounts: accounts, cfg: cfg, env: env}
}

// Login handles GET /auth/login?returnTo=.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := h.state.Issue(auth.SafeReturnPath(r.URL.Query().Get("returnTo")))
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(h.cfg.StateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.oauth.GenerateAuthURL(state), http.StatusFound)
}

// Callback handles GET /auth/callback from the WCA authorization server.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())
	query := r.URL.Query()

	cookie, cookieErr := r.Cookie(StateCookieName)
	h.clearStateCookie(w)

	if errParam := query.Get("error"); errParam != "" {
		logger.Warn().Str("error", errParam).Str("description", query.Get("error_description")).Msg("wca oauth error")
		http.Redirect(w, r, loginFailedPath, http.StatusFound)
		return
	}

	cookieState := ""
	if cookieErr == nil {
		cookieState = cookie.Value
	}
	claims, err := h.state.Verify(query.Get("state"), cookieState)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid oauth state")
		http.Redirect(w, r, loginFailedPath, http.StatusFound)
		return
	}

	code := query.Get("code")
	if code == "" {
		logger.Warn().Msg("oauth code parameter missing")
		http.Redirect(w, r, loginFailedPath, http.StatusFound)
		return
	}

	accessToken, err := h.oauth.ExchangeCode(r.Context(), code)
	if err != nil {
		logger.Error().Err(err).Msg("failed to exchange oauth code")
		http.Redirect(w, r, loginFailedPath, http.StatusFound)
		return
	}
	profile, err := h.oauth.FetchProfile(r.Context(), accessToken)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch wca profile")
		http.Redirect(w, r, loginFailedPath, http.StatusFound)
		return
	}

	user, err := h.accounts.SyncFromWCA(r.Context(), *profile)
	if err != nil {
		logger.Error().Err(err).Str("wca_id", profile.WCAID).Msg("failed to sync wca user")
		http.Redirect(w, r, loginFailedPath, http.StatusFound)
		return
	}

	token, _, err := h.sessions.Start(r.Context(), user.WCAID, middleware.ClientIP(r, h.cfg.TrustedProxyCIDRs), r.UserAgent())
	if err != nil {
		logger.Error().Err(err).Str("wca_id", user.WCAID).Msg("failed to start session")
		http.Redirect(w, r, loginFailedPath, http.StatusFound)
		return
	}

	middleware.SetSessionCookie(w, token, int(h.sessions.TTL().Seconds()), h.cfg.SecureCookies)
	logger.Info().Str("wca_id", user.WCAID).Str("role", string(user.Role)).Msg("user signed in")
	http.Redirect(w, r, auth.SafeReturnPath(claims.ReturnTo), http.StatusFound)
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil {
		if err := h.sessions.End(r.Context(), cookie.Value); err != nil {
			writeError(w, r, err, h.env)
			return
		}
	}
	middleware.ClearSessionCookie(w, h.cfg.SecureCookies)
	writeJSON(w, http.StatusOK, result{Success: true, Message: msgSignedOut})
}

type meResponse struct {
	User      *users.User `json:"user"`
	CSRFToken string      `json:"csrfToken"`
}

// Me handles GET /api/v1/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.env)
	if !ok {
		return
	}
	user, err := h.accounts.Get(r.Context(), a.WCAID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			middleware.ClearSessionCookie(w, h.cfg.SecureCookies)
		}
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: user, CSRFToken: middleware.CSRFToken(r)})
}

func (h *AuthHandler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
