package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/ams-cubing/public-calendar/internal/domain/activity"
	"github.com/ams-cubing/public-calendar/internal/domain/users"
)

const msgUserUpdated = "Usuario actualizado exitosamente"

type UserService interface {
	Search(ctx context.Context, actor auth.Actor, query string) ([]users.User, error)
	ImportFromWCA(ctx context.Context, actor auth.Actor, wcaID string) (*users.ImportResult, error)
	UpdateProfile(ctx context.Context, actor auth.Actor, wcaID string, in users.ProfileUpdate) (*users.User, error)
}

type ActivityService interface {
	Recent(ctx context.Context, actor auth.Actor, limit int) ([]activity.Item, error)
}

// PanelUsersHandler serves user search, WCA import, profile edits and the
// activity log.
type PanelUsersHandler struct {
	users    UserService
	activity ActivityService
	env      string
}

func NewPanelUsersHandler(users UserService, activity ActivityService, env string) *PanelUsersHandler {
	return &PanelUsersHandler{users: users, activity: activity, env: env}
}

type userResult struct {
	result
	Created bool        `json:"created"`
	User    *users.User `json:"user"`
}

// Search handles GET /api/v1/panel/users?q=.
func (h *PanelUsersHandler) Search(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.env)
	if !ok {
		return
	}
	list, err := h.users.Search(r.Context(), a, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	if list == nil {
		list = []users.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": list})
}

type importBody struct {
	WCAID string `json:"wcaId"`
}

// Import handles POST /api/v1/panel/users.
func (h *PanelUsersHandler) Import(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.env)
	if !ok {
		return
	}
	var body importBody
	if err := decodeJSON(r, &body); err != nil {
		writeDecodeError(w, r, err, h.env)
		return
	}
	res, err := h.users.ImportFromWCA(r.Context(), a, body.WCAID)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, userResult{
		result:  result{Success: true, Message: res.Message},
		Created: res.Created,
		User:    res.User,
	})
}

// Update handles PATCH /api/v1/panel/users/{wcaId}.
func (h *PanelUsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.env)
	if !ok {
		return
	}
	var body users.ProfileUpdate
	if err := decodeJSON(r, &body); err != nil {
		writeDecodeError(w, r, err, h.env)
		return
	}
	user, err := h.users.UpdateProfile(r.Context(), a, r.PathValue("wcaId"), body)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, userResult{result: result{Success: true, Message: msgUserUpdated}, User: user})
}

// Activity handles GET /api/v1/panel/activity?limit=.
func (h *PanelUsersHandler) Activity(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.env)
	if !ok {
		return
	}
	limit := activity.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	items, err := h.activity.Recent(r.Context(), a, limit)
	if err != nil {
		writeError(w, r, err, h.env)
		return
	}
	if items == nil {
		items = []activity.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
